package assets

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/spaghettifunk/anima-gpu/engine/core"
)

func waitForChange(t *testing.T, sw *ShaderWatcher, want string) {
	t.Helper()
	timeout := time.After(5 * time.Second)
	for {
		select {
		case got, ok := <-sw.Changes():
			if !ok {
				t.Fatal("Changes closed before the expected change")
			}
			if got == want {
				return
			}
		case <-timeout:
			t.Fatalf("no change reported for %s", want)
		}
	}
}

func TestShaderWatcherReportsShaderWrites(t *testing.T) {
	dir := t.TempDir()
	bus := core.NewEventBus()
	fired := make(chan string, 16)
	bus.Register(core.EVENT_CODE_SHADER_CHANGED, t, func(code core.SystemEventCode, sender interface{}, listener interface{}, data core.EventContext) bool {
		fired <- data.Data.C[0]
		return true
	})

	sw, err := NewShaderWatcher(dir, bus)
	if err != nil {
		t.Fatalf("NewShaderWatcher() error = %v", err)
	}
	defer sw.Close()

	// Files without a shader stage are ignored.
	if err := os.WriteFile(filepath.Join(dir, "notes.txt"), []byte("x"), 0o644); err != nil {
		t.Fatal(err)
	}
	path := filepath.Join(dir, "triangle.frag")
	if err := os.WriteFile(path, []byte("void main() {}"), 0o644); err != nil {
		t.Fatal(err)
	}
	waitForChange(t, sw, path)

	select {
	case got := <-fired:
		if got != path {
			t.Errorf("event path = %q, want %q", got, path)
		}
	case <-time.After(5 * time.Second):
		t.Error("EVENT_CODE_SHADER_CHANGED not fired")
	}
}

func TestShaderWatcherFollowsNewDirectories(t *testing.T) {
	dir := t.TempDir()
	sw, err := NewShaderWatcher(dir, nil)
	if err != nil {
		t.Fatalf("NewShaderWatcher() error = %v", err)
	}
	defer sw.Close()

	sub := filepath.Join(dir, "compute")
	if err := os.Mkdir(sub, 0o755); err != nil {
		t.Fatal(err)
	}
	// The new directory is added by the event loop, retry until the write is seen.
	path := filepath.Join(sub, "cull.comp")
	deadline := time.Now().Add(5 * time.Second)
	for {
		if err := os.WriteFile(path, []byte("void main() {}"), 0o644); err != nil {
			t.Fatal(err)
		}
		select {
		case got := <-sw.Changes():
			if got == path {
				return
			}
		case <-time.After(200 * time.Millisecond):
		}
		if time.Now().After(deadline) {
			t.Fatalf("no change reported for %s", path)
		}
	}
}

func TestShaderWatcherClose(t *testing.T) {
	sw, err := NewShaderWatcher(t.TempDir(), nil)
	if err != nil {
		t.Fatalf("NewShaderWatcher() error = %v", err)
	}
	if err := sw.Close(); err != nil {
		t.Fatalf("Close() error = %v", err)
	}
	if _, ok := <-sw.Changes(); ok {
		t.Error("Changes still open after Close")
	}
	if err := sw.Close(); err != nil {
		t.Errorf("second Close() error = %v", err)
	}
}
