package renderer

import (
	"sort"

	"github.com/cockroachdb/errors"
	vk "github.com/goki/vulkan"

	"github.com/spaghettifunk/anima-gpu/engine/core"
	"github.com/spaghettifunk/anima-gpu/engine/renderer/metadata"
	"github.com/spaghettifunk/anima-gpu/engine/renderer/spirv"
)

func (d *GPUDevice) CreateShaderState(creation metadata.ShaderStateCreation) (metadata.ShaderStateHandle, error) {
	name := resourceName(creation.Name, "shader")
	if len(creation.Stages) == 0 {
		core.LogError("Shader %s does not contain shader stages.", name)
		return metadata.InvalidShaderState, errors.Wrapf(core.ErrShaderCompilation, "shader %s has no stages", name)
	}

	index := d.shaders.Obtain()
	if index == metadata.INVALID_INDEX {
		return metadata.InvalidShaderState, errors.Wrap(core.ErrPoolExhausted, "shader")
	}

	state := d.shaders.Access(index)
	*state = metadata.ShaderState{
		Handle:           metadata.ShaderStateHandle{Index: index},
		Name:             name,
		GraphicsPipeline: true,
	}
	for _, stage := range creation.Stages {
		if stage.Type == vk.ShaderStageComputeBit {
			state.GraphicsPipeline = false
			break
		}
	}

	fail := func(err error) (metadata.ShaderStateHandle, error) {
		for _, module := range state.Modules {
			d.backend.DestroyShaderModule(module.Module)
		}
		d.shaders.Release(index)
		if !creation.SpvInput {
			creation.Name = name
			dumpShaderSource(&creation)
		} else {
			core.LogError("Error in creation of shader %s. Dumping all shader informations.", name)
		}
		return metadata.InvalidShaderState, errors.Mark(err, core.ErrShaderCompilation)
	}

	for _, stage := range creation.Stages {
		if len(stage.Code) == 0 {
			return fail(errors.Newf("stage %s of %s has no code", metadata.ShaderStageDefine(stage.Type), name))
		}

		var words []uint32
		var err error
		if creation.SpvInput {
			words, err = spirv.Words(stage.Code)
		} else {
			words, err = d.compiler.Compile(stage.Code, stage.Type, name)
		}
		if err != nil {
			return fail(err)
		}

		module, err := d.backend.CreateShaderModule(stage.Type, words, name)
		if err != nil {
			return fail(err)
		}
		state.Modules = append(state.Modules, metadata.ShaderModule{Stage: stage.Type, Module: module})

		reflect, err := spirv.Reflect(words)
		if err != nil {
			return fail(err)
		}
		mergeReflect(&state.Reflect, reflect, stage.Type)
	}
	return state.Handle, nil
}

// mergeReflect folds the reflection of one stage into the state of the whole program.
// Bindings visible from several stages are kept once.
func mergeReflect(dst *metadata.ShaderReflect, src metadata.ShaderReflect, stage vk.ShaderStageFlagBits) {
	switch stage {
	case vk.ShaderStageVertexBit:
		dst.Input = src.Input
	case vk.ShaderStageComputeBit:
		dst.LocalSize = src.LocalSize
	}
	dst.PushConstantSize = max(dst.PushConstantSize, src.PushConstantSize)

	for len(dst.Sets) < len(src.Sets) {
		dst.Sets = append(dst.Sets, metadata.DescriptorSetLayoutCreation{SetIndex: uint32(len(dst.Sets))})
	}
	for i, set := range src.Sets {
		target := &dst.Sets[i]
	bindings:
		for _, binding := range set.Bindings {
			for _, existing := range target.Bindings {
				if existing.Start == binding.Start {
					continue bindings
				}
			}
			target.Bindings = append(target.Bindings, binding)
		}
		sort.Slice(target.Bindings, func(a, b int) bool { return target.Bindings[a].Start < target.Bindings[b].Start })
	}
}

func (d *GPUDevice) AccessShaderState(handle metadata.ShaderStateHandle) *metadata.ShaderState {
	return d.shaders.Access(handle.Index)
}

func (d *GPUDevice) DestroyShaderState(handle metadata.ShaderStateHandle) {
	if !d.shaders.Live(handle.Index) {
		core.LogError("Trying to free invalid Shader %d", handle.Index)
		return
	}
	if !d.queueDeletion(metadata.RESOURCE_DELETION_TYPE_SHADER_STATE, handle.Index) {
		return
	}
}

func (d *GPUDevice) DestroyShaderStateInstant(index metadata.ResourceIndex) {
	if !d.shaders.Live(index) {
		return
	}
	state := d.shaders.Access(index)
	for _, module := range state.Modules {
		d.backend.DestroyShaderModule(module.Module)
	}
	state.Modules = nil
	d.shaders.Release(index)
}
