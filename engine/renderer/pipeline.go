package renderer

import (
	"fmt"

	"github.com/cockroachdb/errors"

	"github.com/spaghettifunk/anima-gpu/engine/core"
	"github.com/spaghettifunk/anima-gpu/engine/renderer/metadata"
)

func (d *GPUDevice) CreatePipeline(creation metadata.PipelineCreation) (metadata.PipelineHandle, error) {
	name := resourceName(creation.Name, "pipeline")
	if creation.DepthStencil.StencilEnable {
		core.LogError("pipeline %s: stencil test is not supported", name)
		return metadata.InvalidPipeline, errors.Wrapf(core.ErrUnsupported, "stencil test in pipeline %s", name)
	}

	index := d.pipelines.Obtain()
	if index == metadata.INVALID_INDEX {
		return metadata.InvalidPipeline, errors.Wrap(core.ErrPoolExhausted, "pipeline")
	}

	if creation.Shaders.Name == "" {
		creation.Shaders.Name = name
	}
	shaderHandle, err := d.CreateShaderState(creation.Shaders)
	if err != nil {
		// The pipeline slot is useless without shaders.
		d.pipelines.Release(index)
		return metadata.InvalidPipeline, err
	}
	shader := d.shaders.Access(shaderHandle.Index)

	pipeline := d.pipelines.Access(index)
	*pipeline = metadata.Pipeline{
		ShaderState:      shaderHandle,
		DepthStencil:     creation.DepthStencil,
		BlendState:       creation.BlendState,
		Rasterization:    creation.Rasterization,
		GraphicsPipeline: shader.GraphicsPipeline,
		Handle:           metadata.PipelineHandle{Index: index},
		Name:             name,
	}
	for i := range pipeline.DescriptorSetLayoutHandles {
		pipeline.DescriptorSetLayoutHandles[i] = metadata.InvalidDescriptorSetLayout
	}

	release := func(err error) (metadata.PipelineHandle, error) {
		for i := uint32(1); i < pipeline.NumActiveLayouts; i++ {
			d.DestroyDescriptorSetLayoutInstant(pipeline.DescriptorSetLayoutHandles[i].Index)
		}
		d.DestroyShaderStateInstant(shaderHandle.Index)
		d.pipelines.Release(index)
		return metadata.InvalidPipeline, err
	}

	numSets := max(uint32(len(shader.Reflect.Sets)), 1)
	if numSets > metadata.MAX_DESCRIPTOR_SET_LAYOUTS {
		core.LogError("pipeline %s uses %d descriptor sets", name, numSets)
		return release(errors.Wrapf(core.ErrUnsupported, "more than %d descriptor sets", metadata.MAX_DESCRIPTOR_SET_LAYOUTS))
	}

	layouts := make([]*metadata.DescriptorSetLayout, 0, numSets)
	pipeline.DescriptorSetLayoutHandles[metadata.BINDLESS_DESCRIPTOR_SET_INDEX] = d.bindlessLayout
	layouts = append(layouts, d.descriptorSetLayouts.Access(d.bindlessLayout.Index))
	pipeline.NumActiveLayouts = 1
	for set := uint32(1); set < numSets; set++ {
		layoutCreation := shader.Reflect.Sets[set]
		layoutCreation.SetIndex = set
		layoutCreation.Name = fmt.Sprintf("%s_set_%d", name, set)
		layout, err := d.CreateDescriptorSetLayout(layoutCreation)
		if err != nil {
			return release(err)
		}
		pipeline.DescriptorSetLayoutHandles[set] = layout
		pipeline.NumActiveLayouts++
		layouts = append(layouts, d.descriptorSetLayouts.Access(layout.Index))
	}

	if creation.ReflectVertexInput {
		creation.VertexInput = shader.Reflect.Input
	}
	creation.Name = name
	if err := d.backend.CreatePipeline(pipeline, &creation, shader, layouts); err != nil {
		core.LogError("failed to create pipeline %s: %s", name, err)
		return release(err)
	}
	return pipeline.Handle, nil
}

func (d *GPUDevice) AccessPipeline(handle metadata.PipelineHandle) *metadata.Pipeline {
	return d.pipelines.Access(handle.Index)
}

// GetDescriptorSetLayout returns the layout a pipeline uses for setIndex.
func (d *GPUDevice) GetDescriptorSetLayout(handle metadata.PipelineHandle, setIndex uint32) metadata.DescriptorSetLayoutHandle {
	if !d.pipelines.Live(handle.Index) {
		return metadata.InvalidDescriptorSetLayout
	}
	pipeline := d.pipelines.Access(handle.Index)
	if setIndex >= pipeline.NumActiveLayouts {
		return metadata.InvalidDescriptorSetLayout
	}
	return pipeline.DescriptorSetLayoutHandles[setIndex]
}

// DestroyPipeline also releases the shader state and the layouts the pipeline created.
func (d *GPUDevice) DestroyPipeline(handle metadata.PipelineHandle) {
	if !d.pipelines.Live(handle.Index) {
		core.LogError("Trying to free invalid Pipeline %d", handle.Index)
		return
	}
	if !d.queueDeletion(metadata.RESOURCE_DELETION_TYPE_PIPELINE, handle.Index) {
		return
	}

	pipeline := d.pipelines.Access(handle.Index)
	d.DestroyShaderState(pipeline.ShaderState)
	for i := uint32(1); i < pipeline.NumActiveLayouts; i++ {
		d.DestroyDescriptorSetLayout(pipeline.DescriptorSetLayoutHandles[i])
	}
}

func (d *GPUDevice) DestroyPipelineInstant(index metadata.ResourceIndex) {
	if !d.pipelines.Live(index) {
		return
	}
	d.backend.DestroyPipeline(d.pipelines.Access(index))
	d.pipelines.Release(index)
}
