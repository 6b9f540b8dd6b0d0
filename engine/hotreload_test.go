package engine

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/cockroachdb/errors"

	"github.com/spaghettifunk/anima-gpu/engine/renderer/metadata"
)

type fakeFactory struct {
	next      metadata.ResourceIndex
	destroyed []metadata.PipelineHandle
	fail      bool
	stages    int
}

func (f *fakeFactory) CreatePipeline(creation metadata.PipelineCreation) (metadata.PipelineHandle, error) {
	if f.fail {
		return metadata.InvalidPipeline, errors.New("compile error")
	}
	f.stages = len(creation.Shaders.Stages)
	handle := metadata.PipelineHandle{Index: f.next}
	f.next++
	return handle, nil
}

func (f *fakeFactory) DestroyPipeline(handle metadata.PipelineHandle) {
	f.destroyed = append(f.destroyed, handle)
}

func writeShaders(t *testing.T) (string, string) {
	t.Helper()
	dir := t.TempDir()
	vert := filepath.Join(dir, "fullscreen.vert")
	frag := filepath.Join(dir, "fullscreen.frag")
	for _, p := range []string{vert, frag} {
		if err := os.WriteFile(p, []byte("void main() {}"), 0o644); err != nil {
			t.Fatal(err)
		}
	}
	return vert, frag
}

func TestPipelineReloaderRebuildsAffectedPipelines(t *testing.T) {
	vert, frag := writeShaders(t)
	factory := &fakeFactory{}
	r := newPipelineReloader(factory)

	p, err := r.create(metadata.PipelineCreation{Name: "fullscreen"}, vert, frag)
	if err != nil {
		t.Fatalf("create() error = %v", err)
	}
	if p.Handle.Index != 0 || factory.stages != 2 {
		t.Fatalf("handle = %d with %d stages, want 0 with 2", p.Handle.Index, factory.stages)
	}

	r.markChanged(filepath.Join(filepath.Dir(frag), "other.frag"))
	if n := r.reload(); n != 0 {
		t.Errorf("reload() = %d for an unrelated file, want 0", n)
	}

	r.markChanged(frag)
	r.markChanged(vert)
	if n := r.reload(); n != 1 {
		t.Fatalf("reload() = %d, want the pipeline rebuilt once", n)
	}
	if p.Handle.Index != 1 {
		t.Errorf("handle = %d after reload, want 1", p.Handle.Index)
	}
	if len(factory.destroyed) != 1 || factory.destroyed[0].Index != 0 {
		t.Errorf("destroyed = %v, want the previous pipeline", factory.destroyed)
	}
	if n := r.reload(); n != 0 {
		t.Errorf("reload() = %d with nothing pending, want 0", n)
	}
}

func TestPipelineReloaderKeepsPipelineOnFailure(t *testing.T) {
	vert, frag := writeShaders(t)
	factory := &fakeFactory{}
	r := newPipelineReloader(factory)

	p, err := r.create(metadata.PipelineCreation{Name: "fullscreen"}, vert, frag)
	if err != nil {
		t.Fatalf("create() error = %v", err)
	}

	factory.fail = true
	r.markChanged(vert)
	if n := r.reload(); n != 0 {
		t.Errorf("reload() = %d, want 0 on a failed build", n)
	}
	if p.Handle.Index != 0 || len(factory.destroyed) != 0 {
		t.Errorf("handle = %d, destroyed = %v, want the previous pipeline kept", p.Handle.Index, factory.destroyed)
	}
}

func TestPipelineReloaderDestroy(t *testing.T) {
	vert, frag := writeShaders(t)
	factory := &fakeFactory{}
	r := newPipelineReloader(factory)

	a, _ := r.create(metadata.PipelineCreation{Name: "a"}, vert)
	b, _ := r.create(metadata.PipelineCreation{Name: "b"}, frag)

	r.destroy(a)
	if a.Handle.IsValid() || len(r.pipelines) != 1 {
		t.Errorf("destroy left handle %d and %d tracked pipelines", a.Handle.Index, len(r.pipelines))
	}
	r.destroyAll()
	if b.Handle.IsValid() || len(factory.destroyed) != 2 {
		t.Errorf("destroyAll left handle %d, destroyed = %v", b.Handle.Index, factory.destroyed)
	}

	if _, err := r.create(metadata.PipelineCreation{Name: "missing"}, filepath.Join(t.TempDir(), "gone.vert")); err == nil {
		t.Error("create() with a missing source succeeded")
	}
}
