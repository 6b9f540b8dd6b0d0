package core

import (
	"os"
	"strings"
	"sync"
	"time"

	"github.com/charmbracelet/log"
)

var once sync.Once

type logger struct {
	*log.Logger
}

var singleton *logger

func getLogger() *logger {
	once.Do(func() {
		l := log.NewWithOptions(os.Stderr, log.Options{
			ReportCaller:    true,
			ReportTimestamp: true,
			TimeFormat:      time.RFC3339,
			Prefix:          "GPU 🏎️ ",
			CallerOffset:    1,
		})
		l.SetLevel(log.DebugLevel)
		singleton = &logger{l}
	})
	return singleton
}

// SetLogLevel accepts the names used in the config file: trace, debug, info, warn, error, fatal.
// Trace maps onto the debug level, charmbracelet/log has nothing finer.
func SetLogLevel(level string) error {
	lvl, err := parseLevel(level)
	if err != nil {
		return WrapInvalidConfig(err, "log_level %q", level)
	}
	getLogger().SetLevel(lvl)
	return nil
}

func parseLevel(level string) (log.Level, error) {
	name := strings.ToLower(strings.TrimSpace(level))
	if name == "trace" {
		name = "debug"
	}
	return log.ParseLevel(name)
}

func LogTrace(msg string, args ...interface{}) {
	getLogger().Debugf(msg, args...)
}

func LogDebug(msg string, args ...interface{}) {
	getLogger().Debugf(msg, args...)
}

func LogInfo(msg string, args ...interface{}) {
	getLogger().Infof(msg, args...)
}

func LogWarn(msg string, args ...interface{}) {
	getLogger().Warnf(msg, args...)
}

func LogError(msg string, args ...interface{}) {
	getLogger().Errorf(msg, args...)
}

func LogFatal(msg string, args ...interface{}) {
	getLogger().Fatalf(msg, args...)
}
