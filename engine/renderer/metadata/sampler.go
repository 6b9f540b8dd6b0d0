package metadata

import vk "github.com/goki/vulkan"

type SamplerCreation struct {
	MinFilter    vk.Filter
	MagFilter    vk.Filter
	MipFilter    vk.SamplerMipmapMode
	AddressModeU vk.SamplerAddressMode
	AddressModeV vk.SamplerAddressMode
	AddressModeW vk.SamplerAddressMode
	Name         string
}

type Sampler struct {
	MinFilter    vk.Filter
	MagFilter    vk.Filter
	MipFilter    vk.SamplerMipmapMode
	AddressModeU vk.SamplerAddressMode
	AddressModeV vk.SamplerAddressMode
	AddressModeW vk.SamplerAddressMode
	Handle       SamplerHandle
	Name         string
	InternalData interface{}
}
