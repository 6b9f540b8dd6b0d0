package renderer

import (
	"github.com/cockroachdb/errors"
	vk "github.com/goki/vulkan"

	"github.com/spaghettifunk/anima-gpu/engine/core"
	"github.com/spaghettifunk/anima-gpu/engine/renderer/metadata"
)

func (d *GPUDevice) CreateDescriptorSetLayout(creation metadata.DescriptorSetLayoutCreation) (metadata.DescriptorSetLayoutHandle, error) {
	index := d.descriptorSetLayouts.Obtain()
	if index == metadata.INVALID_INDEX {
		return metadata.InvalidDescriptorSetLayout, errors.Wrap(core.ErrPoolExhausted, "descriptor set layout")
	}

	layout := d.descriptorSetLayouts.Access(index)
	*layout = metadata.DescriptorSetLayout{
		Bindings: make([]metadata.DescriptorBinding, 0, len(creation.Bindings)),
		SetIndex: creation.SetIndex,
		Bindless: creation.Bindless,
		Dynamic:  creation.Dynamic,
		Handle:   metadata.DescriptorSetLayoutHandle{Index: index},
		Name:     resourceName(creation.Name, "descriptor_set_layout"),
	}

	for i, input := range creation.Bindings {
		binding := metadata.DescriptorBinding{
			Type:  input.Type,
			Start: input.Start,
			Count: max(input.Count, 1),
			Set:   uint16(creation.SetIndex),
			Name:  input.Name,
		}
		if binding.Start == metadata.BINDING_START_AUTO {
			binding.Start = uint16(i)
		}
		// Uniform buffers are always bound with a dynamic offset into the dynamic buffer.
		if binding.Type == vk.DescriptorTypeUniformBuffer {
			binding.Type = vk.DescriptorTypeUniformBufferDynamic
		}
		layout.Bindings = append(layout.Bindings, binding)
	}

	if err := d.backend.CreateDescriptorSetLayout(layout); err != nil {
		core.LogError("failed to create descriptor set layout %s: %s", layout.Name, err)
		d.descriptorSetLayouts.Release(index)
		return metadata.InvalidDescriptorSetLayout, err
	}
	return layout.Handle, nil
}

func (d *GPUDevice) AccessDescriptorSetLayout(handle metadata.DescriptorSetLayoutHandle) *metadata.DescriptorSetLayout {
	return d.descriptorSetLayouts.Access(handle.Index)
}

func (d *GPUDevice) DestroyDescriptorSetLayout(handle metadata.DescriptorSetLayoutHandle) {
	if !d.descriptorSetLayouts.Live(handle.Index) {
		core.LogError("Trying to free invalid DescriptorSetLayout %d", handle.Index)
		return
	}
	if !d.queueDeletion(metadata.RESOURCE_DELETION_TYPE_DESCRIPTOR_SET_LAYOUT, handle.Index) {
		return
	}
}

func (d *GPUDevice) DestroyDescriptorSetLayoutInstant(index metadata.ResourceIndex) {
	if !d.descriptorSetLayouts.Live(index) {
		return
	}
	d.backend.DestroyDescriptorSetLayout(d.descriptorSetLayouts.Access(index))
	d.descriptorSetLayouts.Release(index)
}

func (d *GPUDevice) CreateDescriptorSet(creation metadata.DescriptorSetCreation) (metadata.DescriptorSetHandle, error) {
	if !d.descriptorSetLayouts.Live(creation.Layout.Index) {
		core.LogError("descriptor set %s uses invalid layout %d", creation.Name, creation.Layout.Index)
		return metadata.InvalidDescriptorSet, errors.Wrapf(core.ErrInvalidHandle, "descriptor set layout %d", creation.Layout.Index)
	}
	if len(creation.Bindings) != len(creation.Resources) {
		core.LogError("descriptor set %s has %d resources for %d bindings", creation.Name, len(creation.Resources), len(creation.Bindings))
		return metadata.InvalidDescriptorSet, errors.Wrapf(core.ErrInvalidHandle,
			"descriptor set %s: %d resources, %d bindings", creation.Name, len(creation.Resources), len(creation.Bindings))
	}
	layout := d.descriptorSetLayouts.Access(creation.Layout.Index)

	index := d.descriptorSets.Obtain()
	if index == metadata.INVALID_INDEX {
		return metadata.InvalidDescriptorSet, errors.Wrap(core.ErrPoolExhausted, "descriptor set")
	}

	set := d.descriptorSets.Access(index)
	*set = metadata.DescriptorSet{
		Resources: append([]metadata.ResourceIndex(nil), creation.Resources...),
		Samplers:  append([]metadata.SamplerHandle(nil), creation.Samplers...),
		Bindings:  append([]uint16(nil), creation.Bindings...),
		Layout:    creation.Layout,
		Handle:    metadata.DescriptorSetHandle{Index: index},
		Name:      resourceName(creation.Name, "descriptor_set"),
	}

	writes := d.descriptorWrites(set, layout)
	if err := d.backend.CreateDescriptorSet(set, layout, writes); err != nil {
		core.LogError("failed to create descriptor set %s: %s", set.Name, err)
		d.descriptorSets.Release(index)
		return metadata.InvalidDescriptorSet, err
	}
	return set.Handle, nil
}

// descriptorWrites resolves the buffer bindings of set. Images and textures are reached
// through the bindless arrays and get no write.
func (d *GPUDevice) descriptorWrites(set *metadata.DescriptorSet, layout *metadata.DescriptorSetLayout) []metadata.DescriptorWrite {
	writes := make([]metadata.DescriptorWrite, 0, len(set.Resources))
	for i, resource := range set.Resources {
		bindingPoint := set.Bindings[i]
		var binding *metadata.DescriptorBinding
		for b := range layout.Bindings {
			if layout.Bindings[b].Start == bindingPoint {
				binding = &layout.Bindings[b]
				break
			}
		}
		if binding == nil {
			core.LogError("descriptor set %s: binding %d is not in layout %s", set.Name, bindingPoint, layout.Name)
			continue
		}

		switch binding.Type {
		case vk.DescriptorTypeCombinedImageSampler, vk.DescriptorTypeSampledImage, vk.DescriptorTypeStorageImage:
			continue
		case vk.DescriptorTypeUniformBufferDynamic, vk.DescriptorTypeUniformBuffer, vk.DescriptorTypeStorageBuffer:
			buffer := d.buffers.Access(resource)
			if buffer == nil {
				core.LogError("descriptor set %s: invalid buffer %d at binding %d", set.Name, resource, bindingPoint)
				continue
			}
			write := metadata.DescriptorWrite{
				Binding: uint32(bindingPoint),
				Type:    binding.Type,
				Buffer:  buffer,
				Range:   buffer.Size,
			}
			if buffer.IsDynamicChild() {
				write.Buffer = d.buffers.Access(buffer.ParentBuffer.Index)
				if binding.Type != vk.DescriptorTypeStorageBuffer {
					write.Type = vk.DescriptorTypeUniformBufferDynamic
				}
			}
			writes = append(writes, write)
		default:
			core.LogError("descriptor set %s: descriptor type %d at binding %d is not supported", set.Name, binding.Type, bindingPoint)
		}
	}
	return writes
}

func (d *GPUDevice) AccessDescriptorSet(handle metadata.DescriptorSetHandle) *metadata.DescriptorSet {
	return d.descriptorSets.Access(handle.Index)
}

func (d *GPUDevice) DestroyDescriptorSet(handle metadata.DescriptorSetHandle) {
	if !d.descriptorSets.Live(handle.Index) {
		core.LogError("Trying to free invalid DescriptorSet %d", handle.Index)
		return
	}
	if !d.queueDeletion(metadata.RESOURCE_DELETION_TYPE_DESCRIPTOR_SET, handle.Index) {
		return
	}
}

func (d *GPUDevice) DestroyDescriptorSetInstant(index metadata.ResourceIndex) {
	if !d.descriptorSets.Live(index) {
		return
	}
	d.backend.DestroyDescriptorSet(d.descriptorSets.Access(index))
	d.descriptorSets.Release(index)
}
