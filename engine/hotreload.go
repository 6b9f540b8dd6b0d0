package engine

import (
	"path/filepath"

	"github.com/spaghettifunk/anima-gpu/engine/assets"
	"github.com/spaghettifunk/anima-gpu/engine/core"
	"github.com/spaghettifunk/anima-gpu/engine/renderer/metadata"
)

type pipelineFactory interface {
	CreatePipeline(creation metadata.PipelineCreation) (metadata.PipelineHandle, error)
	DestroyPipeline(handle metadata.PipelineHandle)
}

// ReloadablePipeline is a pipeline built from shader files. Handle changes when one of
// the sources is edited, so read it every frame.
type ReloadablePipeline struct {
	Handle   metadata.PipelineHandle
	Creation metadata.PipelineCreation
	Sources  []string
}

type pipelineReloader struct {
	factory   pipelineFactory
	pipelines []*ReloadablePipeline
	pending   map[string]struct{}
}

func newPipelineReloader(factory pipelineFactory) *pipelineReloader {
	return &pipelineReloader{
		factory: factory,
		pending: make(map[string]struct{}),
	}
}

func (r *pipelineReloader) build(p *ReloadablePipeline) (metadata.PipelineHandle, error) {
	creation := p.Creation
	shaders, err := assets.LoadShaderState(creation.Name, p.Sources...)
	if err != nil {
		return metadata.InvalidPipeline, err
	}
	creation.Shaders = shaders
	return r.factory.CreatePipeline(creation)
}

func (r *pipelineReloader) create(creation metadata.PipelineCreation, sources ...string) (*ReloadablePipeline, error) {
	p := &ReloadablePipeline{
		Creation: creation,
		Sources:  make([]string, len(sources)),
	}
	for i, source := range sources {
		p.Sources[i] = normalizePath(source)
	}
	handle, err := r.build(p)
	if err != nil {
		return nil, err
	}
	p.Handle = handle
	r.pipelines = append(r.pipelines, p)
	return p, nil
}

func (r *pipelineReloader) markChanged(path string) {
	r.pending[normalizePath(path)] = struct{}{}
}

// reload rebuilds every pipeline with a changed source. A pipeline that fails to build
// keeps its previous handle. Returns the number of rebuilt pipelines.
func (r *pipelineReloader) reload() int {
	if len(r.pending) == 0 {
		return 0
	}
	rebuilt := 0
	for _, p := range r.pipelines {
		if !r.affected(p) {
			continue
		}
		handle, err := r.build(p)
		if err != nil {
			core.LogError("failed to reload pipeline %s, keeping the previous one: %s", p.Creation.Name, err)
			continue
		}
		r.factory.DestroyPipeline(p.Handle)
		p.Handle = handle
		rebuilt++
		core.LogInfo("reloaded pipeline %s", p.Creation.Name)
	}
	r.pending = make(map[string]struct{})
	return rebuilt
}

func (r *pipelineReloader) affected(p *ReloadablePipeline) bool {
	for _, source := range p.Sources {
		if _, ok := r.pending[source]; ok {
			return true
		}
	}
	return false
}

func (r *pipelineReloader) destroy(p *ReloadablePipeline) {
	for i, q := range r.pipelines {
		if q == p {
			r.pipelines = append(r.pipelines[:i], r.pipelines[i+1:]...)
			break
		}
	}
	r.factory.DestroyPipeline(p.Handle)
	p.Handle = metadata.InvalidPipeline
}

func (r *pipelineReloader) destroyAll() {
	for _, p := range r.pipelines {
		r.factory.DestroyPipeline(p.Handle)
		p.Handle = metadata.InvalidPipeline
	}
	r.pipelines = nil
}

func normalizePath(path string) string {
	if abs, err := filepath.Abs(path); err == nil {
		return abs
	}
	return filepath.Clean(path)
}
