package vulkan

import (
	"unsafe"

	"github.com/cockroachdb/errors"
	vk "github.com/goki/vulkan"

	"github.com/spaghettifunk/anima-gpu/engine/core"
	"github.com/spaghettifunk/anima-gpu/engine/renderer/metadata"
)

// Sets of each type the conventional pool can hold.
const globalPoolElements uint32 = 128

type VulkanDescriptorSetLayout struct {
	Handle   vk.DescriptorSetLayout
	Bindless bool
}

type VulkanDescriptorSet struct {
	Handle vk.DescriptorSet
	// Pool is the pool the set was allocated from and must be freed to.
	Pool vk.DescriptorPool
}

func (b *Backend) createDescriptorPools() error {
	poolTypes := []vk.DescriptorType{
		vk.DescriptorTypeSampler,
		vk.DescriptorTypeCombinedImageSampler,
		vk.DescriptorTypeSampledImage,
		vk.DescriptorTypeStorageImage,
		vk.DescriptorTypeUniformTexelBuffer,
		vk.DescriptorTypeStorageTexelBuffer,
		vk.DescriptorTypeUniformBuffer,
		vk.DescriptorTypeStorageBuffer,
		vk.DescriptorTypeUniformBufferDynamic,
		vk.DescriptorTypeStorageBufferDynamic,
		vk.DescriptorTypeInputAttachment,
	}
	poolSizes := make([]vk.DescriptorPoolSize, len(poolTypes))
	for i, t := range poolTypes {
		poolSizes[i] = vk.DescriptorPoolSize{Type: t, DescriptorCount: globalPoolElements}
	}
	poolInfo := vk.DescriptorPoolCreateInfo{
		SType:         vk.StructureTypeDescriptorPoolCreateInfo,
		Flags:         vk.DescriptorPoolCreateFlags(vk.DescriptorPoolCreateFreeDescriptorSetBit),
		MaxSets:       globalPoolElements * uint32(len(poolSizes)),
		PoolSizeCount: uint32(len(poolSizes)),
		PPoolSizes:    poolSizes,
	}
	device := b.context.Device.LogicalDevice
	if res := vk.CreateDescriptorPool(device, &poolInfo, b.context.Allocator, &b.descriptorPool); res != vk.Success {
		err := core.NewVulkanError("vkCreateDescriptorPool", VulkanResultString(res, true))
		core.LogError(err.Error())
		return err
	}

	maxBindless := b.config.MaxBindlessResources
	bindlessSizes := []vk.DescriptorPoolSize{
		{Type: vk.DescriptorTypeCombinedImageSampler, DescriptorCount: maxBindless},
		{Type: vk.DescriptorTypeStorageImage, DescriptorCount: maxBindless},
	}
	bindlessInfo := vk.DescriptorPoolCreateInfo{
		SType: vk.StructureTypeDescriptorPoolCreateInfo,
		Flags: vk.DescriptorPoolCreateFlags(vk.DescriptorPoolCreateUpdateAfterBindBit |
			vk.DescriptorPoolCreateFreeDescriptorSetBit),
		MaxSets:       maxBindless * uint32(len(bindlessSizes)),
		PoolSizeCount: uint32(len(bindlessSizes)),
		PPoolSizes:    bindlessSizes,
	}
	if res := vk.CreateDescriptorPool(device, &bindlessInfo, b.context.Allocator, &b.bindlessPool); res != vk.Success {
		err := core.NewVulkanError("vkCreateDescriptorPool", VulkanResultString(res, true))
		core.LogError(err.Error())
		return err
	}
	return nil
}

func (b *Backend) destroyDescriptorPools() {
	device := b.context.Device.LogicalDevice
	if b.bindlessPool != vk.NullDescriptorPool {
		vk.DestroyDescriptorPool(device, b.bindlessPool, b.context.Allocator)
		b.bindlessPool = vk.NullDescriptorPool
	}
	if b.descriptorPool != vk.NullDescriptorPool {
		vk.DestroyDescriptorPool(device, b.descriptorPool, b.context.Allocator)
		b.descriptorPool = vk.NullDescriptorPool
	}
}

func (b *Backend) CreateDescriptorSetLayout(layout *metadata.DescriptorSetLayout) error {
	bindings := make([]vk.DescriptorSetLayoutBinding, len(layout.Bindings))
	for i, binding := range layout.Bindings {
		bindings[i] = vk.DescriptorSetLayoutBinding{
			Binding:         uint32(binding.Start),
			DescriptorType:  binding.Type,
			DescriptorCount: uint32(binding.Count),
			StageFlags:      vk.ShaderStageFlags(vk.ShaderStageAll),
		}
	}

	layoutInfo := vk.DescriptorSetLayoutCreateInfo{
		SType:        vk.StructureTypeDescriptorSetLayoutCreateInfo,
		BindingCount: uint32(len(bindings)),
		PBindings:    bindings,
	}
	if layout.Bindless {
		bindingFlags := make([]vk.DescriptorBindingFlags, len(bindings))
		for i := range bindingFlags {
			bindingFlags[i] = vk.DescriptorBindingFlags(vk.DescriptorBindingPartiallyBoundBit | vk.DescriptorBindingUpdateAfterBindBit)
		}
		// Only the highest binding may have a variable count.
		if len(bindingFlags) > 0 {
			bindingFlags[len(bindingFlags)-1] |= vk.DescriptorBindingFlags(vk.DescriptorBindingVariableDescriptorCountBit)
		}
		flagsInfo := vk.DescriptorSetLayoutBindingFlagsCreateInfo{
			SType:         vk.StructureTypeDescriptorSetLayoutBindingFlagsCreateInfo,
			BindingCount:  uint32(len(bindingFlags)),
			PBindingFlags: bindingFlags,
		}
		layoutInfo.PNext = unsafe.Pointer(flagsInfo.Ref())
		layoutInfo.Flags = vk.DescriptorSetLayoutCreateFlags(vk.DescriptorSetLayoutCreateUpdateAfterBindPoolBit)
	}

	native := &VulkanDescriptorSetLayout{Bindless: layout.Bindless}
	if err := b.context.lockPool.SafeCall(DescriptorManagement, func() error {
		if res := vk.CreateDescriptorSetLayout(b.context.Device.LogicalDevice, &layoutInfo, b.context.Allocator, &native.Handle); res != vk.Success {
			return core.NewVulkanError("vkCreateDescriptorSetLayout", VulkanResultString(res, true))
		}
		return nil
	}); err != nil {
		core.LogError(err.Error())
		return err
	}
	setObjectName(b.context, vk.ObjectTypeDescriptorSetLayout, unsafe.Pointer(native.Handle), layout.Name)
	layout.InternalData = native
	return nil
}

func (b *Backend) DestroyDescriptorSetLayout(layout *metadata.DescriptorSetLayout) {
	native, ok := layout.InternalData.(*VulkanDescriptorSetLayout)
	if !ok {
		return
	}
	b.context.lockPool.SafeCall(DescriptorManagement, func() error {
		vk.DestroyDescriptorSetLayout(b.context.Device.LogicalDevice, native.Handle, b.context.Allocator)
		return nil
	})
	layout.InternalData = nil
}

func (b *Backend) CreateDescriptorSet(set *metadata.DescriptorSet, layout *metadata.DescriptorSetLayout, writes []metadata.DescriptorWrite) error {
	nativeLayout, ok := layout.InternalData.(*VulkanDescriptorSetLayout)
	if !ok {
		return errors.Wrapf(core.ErrInvalidHandle, "descriptor set %s: layout %s has no native layout", set.Name, layout.Name)
	}

	allocInfo := vk.DescriptorSetAllocateInfo{
		SType:              vk.StructureTypeDescriptorSetAllocateInfo,
		DescriptorPool:     b.descriptorPool,
		DescriptorSetCount: 1,
		PSetLayouts:        []vk.DescriptorSetLayout{nativeLayout.Handle},
	}
	if nativeLayout.Bindless {
		countInfo := vk.DescriptorSetVariableDescriptorCountAllocateInfo{
			SType:              vk.StructureTypeDescriptorSetVariableDescriptorCountAllocateInfo,
			DescriptorSetCount: 1,
			PDescriptorCounts:  []uint32{b.config.MaxBindlessResources - 1},
		}
		allocInfo.DescriptorPool = b.bindlessPool
		allocInfo.PNext = unsafe.Pointer(countInfo.Ref())
	}

	native := &VulkanDescriptorSet{Pool: allocInfo.DescriptorPool}
	sets := make([]vk.DescriptorSet, 1)
	if err := b.context.lockPool.SafeCall(DescriptorManagement, func() error {
		if res := vk.AllocateDescriptorSets(b.context.Device.LogicalDevice, &allocInfo, &sets[0]); res != vk.Success {
			return core.NewVulkanError("vkAllocateDescriptorSets", VulkanResultString(res, true))
		}
		return nil
	}); err != nil {
		core.LogError(err.Error())
		return err
	}
	native.Handle = sets[0]

	descriptorWrites := make([]vk.WriteDescriptorSet, 0, len(writes))
	for _, write := range writes {
		buffer, ok := write.Buffer.InternalData.(*VulkanBuffer)
		if !ok {
			core.LogError("descriptor set %s: buffer %s at binding %d has no native buffer", set.Name, write.Buffer.Name, write.Binding)
			continue
		}
		descriptorWrites = append(descriptorWrites, vk.WriteDescriptorSet{
			SType:           vk.StructureTypeWriteDescriptorSet,
			DstSet:          native.Handle,
			DstBinding:      write.Binding,
			DstArrayElement: 0,
			DescriptorCount: 1,
			DescriptorType:  write.Type,
			PBufferInfo: []vk.DescriptorBufferInfo{{
				Buffer: buffer.Handle,
				Offset: vk.DeviceSize(write.Offset),
				Range:  vk.DeviceSize(write.Range),
			}},
		})
	}
	b.updateDescriptorSets(descriptorWrites)

	setObjectName(b.context, vk.ObjectTypeDescriptorSet, unsafe.Pointer(native.Handle), set.Name)
	set.InternalData = native
	return nil
}

func (b *Backend) updateDescriptorSets(writes []vk.WriteDescriptorSet) {
	if len(writes) == 0 {
		return
	}
	b.context.lockPool.SafeCall(DescriptorManagement, func() error {
		vk.UpdateDescriptorSets(b.context.Device.LogicalDevice, uint32(len(writes)), writes, 0, nil)
		return nil
	})
}

func (b *Backend) DestroyDescriptorSet(set *metadata.DescriptorSet) {
	native, ok := set.InternalData.(*VulkanDescriptorSet)
	if !ok {
		return
	}
	b.context.lockPool.SafeCall(DescriptorManagement, func() error {
		vk.FreeDescriptorSets(b.context.Device.LogicalDevice, native.Pool, 1, []vk.DescriptorSet{native.Handle})
		return nil
	})
	set.InternalData = nil
}

// UpdateBindlessTextures writes every texture at its array element of the sampled binding.
// Compute textures are also written to the storage image binding.
func (b *Backend) UpdateBindlessTextures(set *metadata.DescriptorSet, writes []metadata.BindlessWrite) error {
	native, ok := set.InternalData.(*VulkanDescriptorSet)
	if !ok {
		return errors.Wrapf(core.ErrInvalidHandle, "bindless set %s has no native set", set.Name)
	}

	descriptorWrites := make([]vk.WriteDescriptorSet, 0, len(writes))
	for _, write := range writes {
		texture, ok := write.Texture.InternalData.(*VulkanTexture)
		if !ok {
			core.LogWarn("bindless write %d: texture %s has no native image", write.ArrayElement, write.Texture.Name)
			continue
		}
		sampler, _ := write.Sampler.InternalData.(vk.Sampler)
		layout := readyLayout(write.Texture)

		descriptorWrites = append(descriptorWrites, vk.WriteDescriptorSet{
			SType:           vk.StructureTypeWriteDescriptorSet,
			DstSet:          native.Handle,
			DstBinding:      metadata.BINDLESS_TEXTURE_BINDING,
			DstArrayElement: write.ArrayElement,
			DescriptorCount: 1,
			DescriptorType:  vk.DescriptorTypeCombinedImageSampler,
			PImageInfo: []vk.DescriptorImageInfo{{
				Sampler:     sampler,
				ImageView:   texture.View,
				ImageLayout: layout,
			}},
		})
		if write.Texture.Flags&metadata.TEXTURE_FLAG_COMPUTE != 0 {
			descriptorWrites = append(descriptorWrites, vk.WriteDescriptorSet{
				SType:           vk.StructureTypeWriteDescriptorSet,
				DstSet:          native.Handle,
				DstBinding:      metadata.BINDLESS_IMAGE_BINDING,
				DstArrayElement: write.ArrayElement,
				DescriptorCount: 1,
				DescriptorType:  vk.DescriptorTypeStorageImage,
				PImageInfo: []vk.DescriptorImageInfo{{
					ImageView:   texture.View,
					ImageLayout: vk.ImageLayoutGeneral,
				}},
			})
		}
	}
	b.updateDescriptorSets(descriptorWrites)
	return nil
}
