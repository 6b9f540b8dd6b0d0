/*
This is an example of application that will use the
engine package to test things out
*/
package main

import (
	"os"
	"os/signal"
	"syscall"

	"github.com/spaghettifunk/anima-gpu/engine"
	"github.com/spaghettifunk/anima-gpu/engine/core"
	"github.com/spaghettifunk/anima-gpu/testbed"
)

func main() {
	tb := testbed.NewTestGame()

	e, err := engine.New(tb.Game)
	if err != nil {
		core.LogFatal("failed to create the engine: %s", err)
	}

	if err := e.Initialize(); err != nil {
		core.LogFatal("failed to initialize the engine: %s", err)
	}

	// signal channel to capture system calls
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGTERM, syscall.SIGINT, syscall.SIGQUIT)

	// The loop owns the device, so a signal only asks it to stop.
	go func() {
		<-sigCh
		e.Stop()
	}()

	runErr := e.Run()
	if err := e.Shutdown(); err != nil {
		core.LogError("engine shutdown: %s", err)
	}
	if runErr != nil {
		core.LogFatal("engine stopped: %s", runErr)
	}
}
