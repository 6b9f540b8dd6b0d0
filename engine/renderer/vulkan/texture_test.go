package vulkan

import (
	"testing"

	vk "github.com/goki/vulkan"

	"github.com/spaghettifunk/anima-gpu/engine/renderer/metadata"
)

func TestImageTypes(t *testing.T) {
	tests := []struct {
		textureType metadata.TextureType
		image       vk.ImageType
		view        vk.ImageViewType
	}{
		{metadata.TEXTURE_TYPE_1D, vk.ImageType1d, vk.ImageViewType1d},
		{metadata.TEXTURE_TYPE_2D, vk.ImageType2d, vk.ImageViewType2d},
		{metadata.TEXTURE_TYPE_3D, vk.ImageType3d, vk.ImageViewType3d},
		{metadata.TEXTURE_TYPE_1D_ARRAY, vk.ImageType1d, vk.ImageViewType1dArray},
		{metadata.TEXTURE_TYPE_2D_ARRAY, vk.ImageType2d, vk.ImageViewType2dArray},
		{metadata.TEXTURE_TYPE_CUBE_ARRAY, vk.ImageType2d, vk.ImageViewTypeCubeArray},
	}
	for _, tt := range tests {
		image, view := imageTypes(tt.textureType)
		if image != tt.image || view != tt.view {
			t.Errorf("imageTypes(%d) = (%v, %v), want (%v, %v)", tt.textureType, image, view, tt.image, tt.view)
		}
	}
}

func TestTextureUsageAndLayout(t *testing.T) {
	tests := []struct {
		name    string
		texture metadata.Texture
		usage   vk.ImageUsageFlagBits
		layout  vk.ImageLayout
	}{
		{
			name:    "sampled color",
			texture: metadata.Texture{Format: vk.FormatR8g8b8a8Unorm},
			layout:  vk.ImageLayoutShaderReadOnlyOptimal,
		},
		{
			name:    "color render target",
			texture: metadata.Texture{Format: vk.FormatR8g8b8a8Unorm, Flags: metadata.TEXTURE_FLAG_RENDER_TARGET},
			usage:   vk.ImageUsageColorAttachmentBit,
			layout:  vk.ImageLayoutShaderReadOnlyOptimal,
		},
		{
			name:    "depth render target",
			texture: metadata.Texture{Format: vk.FormatD32Sfloat, Flags: metadata.TEXTURE_FLAG_RENDER_TARGET},
			usage:   vk.ImageUsageDepthStencilAttachmentBit,
			layout:  vk.ImageLayoutDepthStencilReadOnlyOptimal,
		},
		{
			name:    "compute storage",
			texture: metadata.Texture{Format: vk.FormatR32g32b32a32Sfloat, Flags: metadata.TEXTURE_FLAG_COMPUTE},
			usage:   vk.ImageUsageStorageBit,
			layout:  vk.ImageLayoutGeneral,
		},
	}
	base := vk.ImageUsageFlags(vk.ImageUsageSampledBit | vk.ImageUsageTransferSrcBit | vk.ImageUsageTransferDstBit)
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			want := base | vk.ImageUsageFlags(tt.usage)
			if got := textureUsage(&tt.texture); got != want {
				t.Errorf("textureUsage() = %b, want %b", got, want)
			}
			if got := readyLayout(&tt.texture); got != tt.layout {
				t.Errorf("readyLayout() = %v, want %v", got, tt.layout)
			}
		})
	}
}

func TestTextureAspect(t *testing.T) {
	color := vk.ImageAspectFlags(vk.ImageAspectColorBit)
	depth := vk.ImageAspectFlags(vk.ImageAspectDepthBit)
	depthStencil := depth | vk.ImageAspectFlags(vk.ImageAspectStencilBit)

	tests := []struct {
		format vk.Format
		want   vk.ImageAspectFlags
	}{
		{vk.FormatB8g8r8a8Srgb, color},
		{vk.FormatD32Sfloat, depth},
		{vk.FormatD24UnormS8Uint, depthStencil},
	}
	for _, tt := range tests {
		if got := textureAspect(&metadata.Texture{Format: tt.format}); got != tt.want {
			t.Errorf("textureAspect(%v) = %b, want %b", tt.format, got, tt.want)
		}
	}
}

func TestImageBarrierAccessMasks(t *testing.T) {
	barrier := imageBarrier(vk.NullImage, vk.ImageAspectFlags(vk.ImageAspectColorBit), 4, 1,
		vk.ImageLayoutTransferDstOptimal, vk.ImageLayoutShaderReadOnlyOptimal)
	if barrier.SrcAccessMask != vk.AccessFlags(vk.AccessTransferWriteBit) {
		t.Errorf("SrcAccessMask = %b, want transfer write", barrier.SrcAccessMask)
	}
	if barrier.DstAccessMask != vk.AccessFlags(vk.AccessShaderReadBit) {
		t.Errorf("DstAccessMask = %b, want shader read", barrier.DstAccessMask)
	}
	if barrier.SubresourceRange.LevelCount != 4 || barrier.SubresourceRange.LayerCount != 1 {
		t.Errorf("SubresourceRange = %+v, want 4 levels and 1 layer", barrier.SubresourceRange)
	}
	if barrier.SrcQueueFamilyIndex != vk.QueueFamilyIgnored {
		t.Errorf("SrcQueueFamilyIndex = %d, want ignored", barrier.SrcQueueFamilyIndex)
	}
}
