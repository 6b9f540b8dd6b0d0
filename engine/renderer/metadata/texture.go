package metadata

import vk "github.com/goki/vulkan"

/**
 * @brief Represents various types of textures.
 */
type TextureType int

const (
	TEXTURE_TYPE_1D TextureType = iota
	TEXTURE_TYPE_2D
	TEXTURE_TYPE_3D
	TEXTURE_TYPE_1D_ARRAY
	TEXTURE_TYPE_2D_ARRAY
	TEXTURE_TYPE_CUBE_ARRAY
)

/** @brief Holds bit flags for textures. */
type TextureFlags uint8

const (
	TEXTURE_FLAG_DEFAULT TextureFlags = 0x0
	/** @brief The texture can be used as a color or depth attachment. */
	TEXTURE_FLAG_RENDER_TARGET TextureFlags = 0x1
	/** @brief The texture can be written by compute shaders as a storage image. */
	TEXTURE_FLAG_COMPUTE TextureFlags = 0x2
)

type TextureCreation struct {
	Width   uint32
	Height  uint32
	Depth   uint32
	Mipmaps uint32
	Flags   TextureFlags
	Format  vk.Format
	Type    TextureType
	/** @brief When valid, the new texture is created on top of this texture's memory. */
	Alias TextureHandle
	/** @brief Tightly packed pixels for mip 0, uploaded through a staging buffer. */
	InitialData []byte
	Name        string
}

/**
 * @brief Represents a texture.
 */
type Texture struct {
	Width   uint32
	Height  uint32
	Depth   uint32
	Mipmaps uint32
	Flags   TextureFlags
	Format  vk.Format
	Type    TextureType
	Handle  TextureHandle
	/** @brief Weak link to the sampler used by bindless writes. Not owned. */
	Sampler SamplerHandle
	/** @brief The donor texture when this texture aliases another one's memory. */
	Alias TextureHandle
	Ready bool
	Name  string
	/** @brief The backend native image, view and allocation. */
	InternalData interface{}
}

func (t *Texture) IsDepth() bool {
	switch t.Format {
	case vk.FormatD16Unorm, vk.FormatD32Sfloat, vk.FormatD16UnormS8Uint,
		vk.FormatD24UnormS8Uint, vk.FormatD32SfloatS8Uint, vk.FormatX8D24UnormPack32:
		return true
	}
	return false
}

func (t *Texture) HasStencil() bool {
	switch t.Format {
	case vk.FormatD16UnormS8Uint, vk.FormatD24UnormS8Uint, vk.FormatD32SfloatS8Uint, vk.FormatS8Uint:
		return true
	}
	return false
}

// NewTextureCreation returns a 2D, single mip, non aliasing creation. Handles have no
// usable zero value, so start from here rather than from a literal.
func NewTextureCreation(name string, width, height uint32, format vk.Format) TextureCreation {
	return TextureCreation{
		Width:   width,
		Height:  height,
		Depth:   1,
		Mipmaps: 1,
		Format:  format,
		Type:    TEXTURE_TYPE_2D,
		Alias:   InvalidTexture,
		Name:    name,
	}
}
