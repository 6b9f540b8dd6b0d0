package metadata

import (
	"math"

	vk "github.com/goki/vulkan"
)

// BINDING_START_AUTO lets a layout binding take its position in the creation as binding point.
const BINDING_START_AUTO uint16 = math.MaxUint16

type DescriptorSetLayoutBinding struct {
	Type  vk.DescriptorType
	Start uint16
	Count uint16
	Name  string
}

type DescriptorSetLayoutCreation struct {
	Bindings []DescriptorSetLayoutBinding
	SetIndex uint32
	Bindless bool
	Dynamic  bool
	Name     string
}

func (c *DescriptorSetLayoutCreation) AddBinding(t vk.DescriptorType, start, count uint16, name string) *DescriptorSetLayoutCreation {
	c.Bindings = append(c.Bindings, DescriptorSetLayoutBinding{Type: t, Start: start, Count: count, Name: name})
	return c
}

type DescriptorBinding struct {
	Type  vk.DescriptorType
	Start uint16
	Count uint16
	Set   uint16
	Name  string
}

type DescriptorSetLayout struct {
	Bindings     []DescriptorBinding
	SetIndex     uint32
	Bindless     bool
	Dynamic      bool
	Handle       DescriptorSetLayoutHandle
	Name         string
	InternalData interface{}
}

/**
 * @brief Resources[i] is bound at Bindings[i]. Textures use Samplers[i], an invalid
 * sampler falls back to the texture's own.
 */
type DescriptorSetCreation struct {
	Resources []ResourceIndex
	Samplers  []SamplerHandle
	Bindings  []uint16
	Layout    DescriptorSetLayoutHandle
	Name      string
}

func (c *DescriptorSetCreation) Buffer(buffer BufferHandle, binding uint16) *DescriptorSetCreation {
	c.Resources = append(c.Resources, buffer.Index)
	c.Samplers = append(c.Samplers, InvalidSampler)
	c.Bindings = append(c.Bindings, binding)
	return c
}

func (c *DescriptorSetCreation) Texture(texture TextureHandle, binding uint16) *DescriptorSetCreation {
	return c.TextureSampler(texture, InvalidSampler, binding)
}

func (c *DescriptorSetCreation) TextureSampler(texture TextureHandle, sampler SamplerHandle, binding uint16) *DescriptorSetCreation {
	c.Resources = append(c.Resources, texture.Index)
	c.Samplers = append(c.Samplers, sampler)
	c.Bindings = append(c.Bindings, binding)
	return c
}

type DescriptorSet struct {
	Resources    []ResourceIndex
	Samplers     []SamplerHandle
	Bindings     []uint16
	Layout       DescriptorSetLayoutHandle
	Handle       DescriptorSetHandle
	Name         string
	InternalData interface{}
}

/** @brief A resolved buffer write handed to the backend when a set is created. */
type DescriptorWrite struct {
	Binding uint32
	Type    vk.DescriptorType
	Buffer  *Buffer
	Offset  uint32
	Range   uint32
}

/** @brief One COMBINED_IMAGE_SAMPLER write into the bindless texture array. */
type BindlessWrite struct {
	ArrayElement uint32
	Texture      *Texture
	Sampler      *Sampler
}
