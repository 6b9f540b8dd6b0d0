package vulkan

import (
	"unsafe"

	vk "github.com/goki/vulkan"

	"github.com/spaghettifunk/anima-gpu/engine/core"
	"github.com/spaghettifunk/anima-gpu/engine/renderer/metadata"
)

func (b *Backend) CreateSampler(sampler *metadata.Sampler) error {
	samplerInfo := vk.SamplerCreateInfo{
		SType:                   vk.StructureTypeSamplerCreateInfo,
		MagFilter:               sampler.MagFilter,
		MinFilter:               sampler.MinFilter,
		MipmapMode:              sampler.MipFilter,
		AddressModeU:            sampler.AddressModeU,
		AddressModeV:            sampler.AddressModeV,
		AddressModeW:            sampler.AddressModeW,
		AnisotropyEnable:        vk.False,
		MaxAnisotropy:           1.0,
		CompareEnable:           vk.False,
		CompareOp:               vk.CompareOpAlways,
		MinLod:                  0,
		MaxLod:                  16,
		BorderColor:             vk.BorderColorFloatOpaqueWhite,
		UnnormalizedCoordinates: vk.False,
	}

	var handle vk.Sampler
	if err := b.context.lockPool.SafeCall(SamplerManagement, func() error {
		if res := vk.CreateSampler(b.context.Device.LogicalDevice, &samplerInfo, b.context.Allocator, &handle); res != vk.Success {
			return core.NewVulkanError("vkCreateSampler", VulkanResultString(res, true))
		}
		return nil
	}); err != nil {
		core.LogError(err.Error())
		return err
	}
	setObjectName(b.context, vk.ObjectTypeSampler, unsafe.Pointer(handle), sampler.Name)
	sampler.InternalData = handle
	return nil
}

func (b *Backend) DestroySampler(sampler *metadata.Sampler) {
	handle, ok := sampler.InternalData.(vk.Sampler)
	if !ok || handle == vk.NullSampler {
		return
	}
	b.context.lockPool.SafeCall(SamplerManagement, func() error {
		vk.DestroySampler(b.context.Device.LogicalDevice, handle, b.context.Allocator)
		return nil
	})
	sampler.InternalData = nil
}
