package assets

import (
	"os"
	"path/filepath"
	"sync"

	"github.com/cockroachdb/errors"
	"github.com/fsnotify/fsnotify"

	"github.com/spaghettifunk/anima-gpu/engine/core"
)

// ShaderWatcher reports shader sources that change under a directory tree. Changes are
// delivered on Changes and, when a bus is set, fired as core.EVENT_CODE_SHADER_CHANGED.
type ShaderWatcher struct {
	root    string
	events  *core.EventBus
	watcher *fsnotify.Watcher

	changes chan string
	done    chan struct{}
	wg      sync.WaitGroup

	mutex    sync.Mutex
	isClosed bool
}

func NewShaderWatcher(root string, events *core.EventBus) (*ShaderWatcher, error) {
	fsWatch, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, errors.Wrap(err, "failed to create file watcher")
	}

	sw := &ShaderWatcher{
		root:    root,
		events:  events,
		watcher: fsWatch,
		changes: make(chan string, 64),
		done:    make(chan struct{}),
	}
	if err := sw.watchRecursive(root); err != nil {
		fsWatch.Close()
		return nil, err
	}

	sw.wg.Add(1)
	go sw.start()

	core.LogInfo("watching shaders under %s", root)
	return sw, nil
}

// Changes yields the path of every shader source written or created. It is closed by Close.
func (sw *ShaderWatcher) Changes() <-chan string {
	return sw.changes
}

func (sw *ShaderWatcher) Close() error {
	sw.mutex.Lock()
	if sw.isClosed {
		sw.mutex.Unlock()
		return nil
	}
	sw.isClosed = true
	sw.mutex.Unlock()

	close(sw.done)
	sw.wg.Wait()
	return sw.watcher.Close()
}

func (sw *ShaderWatcher) start() {
	defer sw.wg.Done()
	defer close(sw.changes)

	for {
		select {
		case e, ok := <-sw.watcher.Events:
			if !ok {
				return
			}
			sw.handleEvent(e)

		case err, ok := <-sw.watcher.Errors:
			if !ok {
				return
			}
			core.LogError("shader watcher: %s", err)

		case <-sw.done:
			return
		}
	}
}

func (sw *ShaderWatcher) handleEvent(e fsnotify.Event) {
	if e.Op&fsnotify.Create != 0 {
		if s, err := os.Stat(e.Name); err == nil && s.IsDir() {
			if err := sw.watchRecursive(e.Name); err != nil {
				core.LogWarn("failed to watch new directory %s: %s", e.Name, err)
			}
			return
		}
	}
	// A removed entry may have been a directory, there is no way to tell anymore.
	if e.Op&(fsnotify.Remove|fsnotify.Rename) != 0 {
		_ = sw.watcher.Remove(e.Name)
		return
	}
	if e.Op&(fsnotify.Create|fsnotify.Write) == 0 {
		return
	}
	if _, ok := ShaderStageFromPath(e.Name); !ok {
		return
	}

	core.LogDebug("shader changed: %s", e.Name)
	select {
	case sw.changes <- e.Name:
	case <-sw.done:
		return
	}
	if sw.events != nil {
		ctx := core.EventContext{}
		ctx.Data.C[0] = e.Name
		sw.events.Fire(core.EVENT_CODE_SHADER_CHANGED, sw, ctx)
	}
}

// watchRecursive adds path and every directory below it.
func (sw *ShaderWatcher) watchRecursive(path string) error {
	return filepath.WalkDir(path, func(walkPath string, d os.DirEntry, err error) error {
		if err != nil {
			return errors.Wrapf(err, "failed to walk %s", walkPath)
		}
		if !d.IsDir() {
			return nil
		}
		if err := sw.watcher.Add(walkPath); err != nil {
			return errors.Wrapf(err, "failed to watch %s", walkPath)
		}
		return nil
	})
}
