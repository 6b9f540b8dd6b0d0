package vulkan

import (
	"unsafe"

	"github.com/cockroachdb/errors"
	vk "github.com/goki/vulkan"

	"github.com/spaghettifunk/anima-gpu/engine/core"
	"github.com/spaghettifunk/anima-gpu/engine/renderer/metadata"
)

type VulkanTexture struct {
	Image      vk.Image
	View       vk.ImageView
	Allocation *Allocation
	// Layout is the layout the image is left in after the last recorded transition.
	Layout vk.ImageLayout
	Aspect vk.ImageAspectFlags
	Levels uint32
	Layers uint32

	// Aliased images borrow the memory of their donor and never free it.
	owned bool
}

func imageTypes(textureType metadata.TextureType) (vk.ImageType, vk.ImageViewType) {
	switch textureType {
	case metadata.TEXTURE_TYPE_1D:
		return vk.ImageType1d, vk.ImageViewType1d
	case metadata.TEXTURE_TYPE_3D:
		return vk.ImageType3d, vk.ImageViewType3d
	case metadata.TEXTURE_TYPE_1D_ARRAY:
		return vk.ImageType1d, vk.ImageViewType1dArray
	case metadata.TEXTURE_TYPE_2D_ARRAY:
		return vk.ImageType2d, vk.ImageViewType2dArray
	case metadata.TEXTURE_TYPE_CUBE_ARRAY:
		return vk.ImageType2d, vk.ImageViewTypeCubeArray
	}
	return vk.ImageType2d, vk.ImageViewType2d
}

func textureAspect(texture *metadata.Texture) vk.ImageAspectFlags {
	if !texture.IsDepth() {
		return vk.ImageAspectFlags(vk.ImageAspectColorBit)
	}
	aspect := vk.ImageAspectFlags(vk.ImageAspectDepthBit)
	if texture.HasStencil() {
		aspect |= vk.ImageAspectFlags(vk.ImageAspectStencilBit)
	}
	return aspect
}

func textureUsage(texture *metadata.Texture) vk.ImageUsageFlags {
	usage := vk.ImageUsageFlags(vk.ImageUsageSampledBit | vk.ImageUsageTransferSrcBit | vk.ImageUsageTransferDstBit)
	if texture.Flags&metadata.TEXTURE_FLAG_COMPUTE != 0 {
		usage |= vk.ImageUsageFlags(vk.ImageUsageStorageBit)
	}
	if texture.Flags&metadata.TEXTURE_FLAG_RENDER_TARGET != 0 {
		if texture.IsDepth() {
			usage |= vk.ImageUsageFlags(vk.ImageUsageDepthStencilAttachmentBit)
		} else {
			usage |= vk.ImageUsageFlags(vk.ImageUsageColorAttachmentBit)
		}
	}
	return usage
}

// readyLayout is the layout a texture rests in between uses.
func readyLayout(texture *metadata.Texture) vk.ImageLayout {
	if texture.Flags&metadata.TEXTURE_FLAG_COMPUTE != 0 {
		return vk.ImageLayoutGeneral
	}
	if texture.IsDepth() {
		return vk.ImageLayoutDepthStencilReadOnlyOptimal
	}
	return vk.ImageLayoutShaderReadOnlyOptimal
}

// layoutAccess returns the access mask and stages that touch an image in layout.
func layoutAccess(layout vk.ImageLayout) (vk.AccessFlags, vk.PipelineStageFlags) {
	switch layout {
	case vk.ImageLayoutUndefined:
		return 0, vk.PipelineStageFlags(vk.PipelineStageTopOfPipeBit)
	case vk.ImageLayoutPresentSrc:
		return 0, vk.PipelineStageFlags(vk.PipelineStageBottomOfPipeBit)
	case vk.ImageLayoutTransferDstOptimal:
		return vk.AccessFlags(vk.AccessTransferWriteBit), vk.PipelineStageFlags(vk.PipelineStageTransferBit)
	case vk.ImageLayoutTransferSrcOptimal:
		return vk.AccessFlags(vk.AccessTransferReadBit), vk.PipelineStageFlags(vk.PipelineStageTransferBit)
	case vk.ImageLayoutColorAttachmentOptimal:
		return vk.AccessFlags(vk.AccessColorAttachmentReadBit | vk.AccessColorAttachmentWriteBit),
			vk.PipelineStageFlags(vk.PipelineStageColorAttachmentOutputBit)
	case vk.ImageLayoutDepthStencilAttachmentOptimal:
		return vk.AccessFlags(vk.AccessDepthStencilAttachmentReadBit | vk.AccessDepthStencilAttachmentWriteBit),
			vk.PipelineStageFlags(vk.PipelineStageEarlyFragmentTestsBit | vk.PipelineStageLateFragmentTestsBit)
	case vk.ImageLayoutDepthStencilReadOnlyOptimal:
		return vk.AccessFlags(vk.AccessShaderReadBit | vk.AccessDepthStencilAttachmentReadBit),
			vk.PipelineStageFlags(vk.PipelineStageFragmentShaderBit | vk.PipelineStageEarlyFragmentTestsBit)
	case vk.ImageLayoutGeneral:
		return vk.AccessFlags(vk.AccessShaderReadBit | vk.AccessShaderWriteBit),
			vk.PipelineStageFlags(vk.PipelineStageComputeShaderBit | vk.PipelineStageFragmentShaderBit)
	}
	return vk.AccessFlags(vk.AccessShaderReadBit),
		vk.PipelineStageFlags(vk.PipelineStageFragmentShaderBit | vk.PipelineStageComputeShaderBit)
}

func imageBarrier(image vk.Image, aspect vk.ImageAspectFlags, levels, layers uint32, oldLayout, newLayout vk.ImageLayout) vk.ImageMemoryBarrier {
	srcAccess, _ := layoutAccess(oldLayout)
	dstAccess, _ := layoutAccess(newLayout)
	return vk.ImageMemoryBarrier{
		SType:               vk.StructureTypeImageMemoryBarrier,
		SrcAccessMask:       srcAccess,
		DstAccessMask:       dstAccess,
		OldLayout:           oldLayout,
		NewLayout:           newLayout,
		SrcQueueFamilyIndex: vk.QueueFamilyIgnored,
		DstQueueFamilyIndex: vk.QueueFamilyIgnored,
		Image:               image,
		SubresourceRange: vk.ImageSubresourceRange{
			AspectMask: aspect,
			LevelCount: levels,
			LayerCount: layers,
		},
	}
}

// transition records a barrier that moves the whole image to layout and remembers it.
func (vt *VulkanTexture) transition(cmd vk.CommandBuffer, layout vk.ImageLayout) {
	if vt.Layout == layout {
		return
	}
	_, srcStage := layoutAccess(vt.Layout)
	_, dstStage := layoutAccess(layout)
	barrier := imageBarrier(vt.Image, vt.Aspect, vt.Levels, vt.Layers, vt.Layout, layout)
	vk.CmdPipelineBarrier(cmd, srcStage, dstStage, 0, 0, nil, 0, nil, 1, []vk.ImageMemoryBarrier{barrier})
	vt.Layout = layout
}

func (b *Backend) CreateTexture(texture *metadata.Texture, alias *metadata.Texture, data []byte) error {
	imageType, viewType := imageTypes(texture.Type)
	native := &VulkanTexture{
		Layout: vk.ImageLayoutUndefined,
		Aspect: textureAspect(texture),
		Levels: max(texture.Mipmaps, 1),
		Layers: 1,
	}
	depth := max(texture.Depth, 1)
	var flags vk.ImageCreateFlags
	switch texture.Type {
	case metadata.TEXTURE_TYPE_1D_ARRAY, metadata.TEXTURE_TYPE_2D_ARRAY:
		native.Layers, depth = depth, 1
	case metadata.TEXTURE_TYPE_CUBE_ARRAY:
		native.Layers, depth = max(texture.Depth, 1)*6, 1
		flags |= vk.ImageCreateFlags(vk.ImageCreateCubeCompatibleBit)
	}

	imageCreateInfo := vk.ImageCreateInfo{
		SType:     vk.StructureTypeImageCreateInfo,
		Flags:     flags,
		ImageType: imageType,
		Format:    texture.Format,
		Extent: vk.Extent3D{
			Width:  texture.Width,
			Height: texture.Height,
			Depth:  depth,
		},
		MipLevels:     native.Levels,
		ArrayLayers:   native.Layers,
		Samples:       vk.SampleCount1Bit,
		Tiling:        vk.ImageTilingOptimal,
		Usage:         textureUsage(texture),
		SharingMode:   vk.SharingModeExclusive,
		InitialLayout: vk.ImageLayoutUndefined,
	}

	device := b.context.Device.LogicalDevice
	if err := b.context.lockPool.SafeCall(ImageManagement, func() error {
		if res := vk.CreateImage(device, &imageCreateInfo, b.context.Allocator, &native.Image); res != vk.Success {
			return core.NewVulkanError("vkCreateImage", VulkanResultString(res, true))
		}
		return nil
	}); err != nil {
		core.LogError(err.Error())
		return err
	}

	if alias != nil {
		donor, ok := alias.InternalData.(*VulkanTexture)
		if !ok || donor.Allocation == nil {
			vk.DestroyImage(device, native.Image, b.context.Allocator)
			return errors.Wrapf(core.ErrInvalidHandle, "alias %s has no memory", alias.Name)
		}
		if err := b.context.Memory.BindImage(native.Image, donor.Allocation); err != nil {
			vk.DestroyImage(device, native.Image, b.context.Allocator)
			return err
		}
		native.Allocation = donor.Allocation
	} else {
		allocation, err := b.context.Memory.AllocateForImage(native.Image, AllocationCreateInfo{Usage: MemoryUsageGPUOnly})
		if err != nil {
			vk.DestroyImage(device, native.Image, b.context.Allocator)
			return err
		}
		native.Allocation = allocation
		native.owned = true
	}

	viewCreateInfo := vk.ImageViewCreateInfo{
		SType:    vk.StructureTypeImageViewCreateInfo,
		Image:    native.Image,
		ViewType: viewType,
		Format:   texture.Format,
		SubresourceRange: vk.ImageSubresourceRange{
			// Views of depth stencil images only sample depth.
			AspectMask: native.Aspect &^ vk.ImageAspectFlags(vk.ImageAspectStencilBit),
			LevelCount: native.Levels,
			LayerCount: native.Layers,
		},
	}
	if res := vk.CreateImageView(device, &viewCreateInfo, b.context.Allocator, &native.View); res != vk.Success {
		err := core.NewVulkanError("vkCreateImageView", VulkanResultString(res, true))
		core.LogError(err.Error())
		b.destroyNativeTexture(native)
		return err
	}

	setObjectName(b.context, vk.ObjectTypeImage, unsafe.Pointer(native.Image), texture.Name)
	setObjectName(b.context, vk.ObjectTypeImageView, unsafe.Pointer(native.View), texture.Name)
	texture.InternalData = native

	if len(data) > 0 {
		if err := b.uploadTexture(texture, native, data); err != nil {
			b.destroyNativeTexture(native)
			texture.InternalData = nil
			return err
		}
		return nil
	}

	// Aliased images must not wipe their donor with an UNDEFINED transition.
	if alias != nil {
		return nil
	}
	return b.immediateSubmit(func(cmd vk.CommandBuffer) {
		native.transition(cmd, readyLayout(texture))
	})
}

// uploadTexture copies data into mip 0 through a staging buffer and fills the rest of the
// chain with linear blits.
func (b *Backend) uploadTexture(texture *metadata.Texture, native *VulkanTexture, data []byte) error {
	staging, err := b.createStagingBuffer(data)
	if err != nil {
		return err
	}
	defer b.destroyNativeBuffer(staging)

	return b.immediateSubmit(func(cmd vk.CommandBuffer) {
		native.transition(cmd, vk.ImageLayoutTransferDstOptimal)

		region := vk.BufferImageCopy{
			ImageSubresource: vk.ImageSubresourceLayers{
				AspectMask: native.Aspect,
				LayerCount: native.Layers,
			},
			ImageExtent: vk.Extent3D{
				Width:  texture.Width,
				Height: texture.Height,
				Depth:  1,
			},
		}
		vk.CmdCopyBufferToImage(cmd, staging.Handle, native.Image, vk.ImageLayoutTransferDstOptimal, 1, []vk.BufferImageCopy{region})

		if native.Levels > 1 {
			generateMipmaps(cmd, native, int32(texture.Width), int32(texture.Height))
		}
		native.transition(cmd, readyLayout(texture))
	})
}

// generateMipmaps expects every level in TRANSFER_DST and leaves every level in TRANSFER_SRC.
func generateMipmaps(cmd vk.CommandBuffer, native *VulkanTexture, width, height int32) {
	transferStage := vk.PipelineStageFlags(vk.PipelineStageTransferBit)
	for level := uint32(1); level < native.Levels; level++ {
		barrier := imageBarrier(native.Image, native.Aspect, 1, native.Layers,
			vk.ImageLayoutTransferDstOptimal, vk.ImageLayoutTransferSrcOptimal)
		barrier.SubresourceRange.BaseMipLevel = level - 1
		vk.CmdPipelineBarrier(cmd, transferStage, transferStage, 0, 0, nil, 0, nil, 1, []vk.ImageMemoryBarrier{barrier})

		nextWidth, nextHeight := max(width/2, 1), max(height/2, 1)
		blit := vk.ImageBlit{
			SrcSubresource: vk.ImageSubresourceLayers{
				AspectMask: native.Aspect,
				MipLevel:   level - 1,
				LayerCount: native.Layers,
			},
			SrcOffsets: [2]vk.Offset3D{{}, {X: width, Y: height, Z: 1}},
			DstSubresource: vk.ImageSubresourceLayers{
				AspectMask: native.Aspect,
				MipLevel:   level,
				LayerCount: native.Layers,
			},
			DstOffsets: [2]vk.Offset3D{{}, {X: nextWidth, Y: nextHeight, Z: 1}},
		}
		vk.CmdBlitImage(cmd, native.Image, vk.ImageLayoutTransferSrcOptimal, native.Image, vk.ImageLayoutTransferDstOptimal,
			1, []vk.ImageBlit{blit}, vk.FilterLinear)
		width, height = nextWidth, nextHeight
	}

	last := imageBarrier(native.Image, native.Aspect, 1, native.Layers,
		vk.ImageLayoutTransferDstOptimal, vk.ImageLayoutTransferSrcOptimal)
	last.SubresourceRange.BaseMipLevel = native.Levels - 1
	vk.CmdPipelineBarrier(cmd, transferStage, transferStage, 0, 0, nil, 0, nil, 1, []vk.ImageMemoryBarrier{last})
	native.Layout = vk.ImageLayoutTransferSrcOptimal
}

func (b *Backend) DestroyTexture(texture *metadata.Texture) {
	native, ok := texture.InternalData.(*VulkanTexture)
	if !ok {
		return
	}
	b.destroyNativeTexture(native)
	texture.InternalData = nil
}

func (b *Backend) destroyNativeTexture(native *VulkanTexture) {
	device := b.context.Device.LogicalDevice
	if native.View != vk.NullImageView {
		vk.DestroyImageView(device, native.View, b.context.Allocator)
		native.View = vk.NullImageView
	}
	if native.Image != vk.NullImage {
		b.context.lockPool.SafeCall(ImageManagement, func() error {
			vk.DestroyImage(device, native.Image, b.context.Allocator)
			return nil
		})
		native.Image = vk.NullImage
	}
	if native.owned {
		b.context.Memory.Free(native.Allocation)
	}
	native.Allocation = nil
}
