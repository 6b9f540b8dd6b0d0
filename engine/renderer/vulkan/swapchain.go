package vulkan

import (
	"math"

	"github.com/cockroachdb/errors"
	vk "github.com/goki/vulkan"

	"github.com/spaghettifunk/anima-gpu/engine/core"
	amath "github.com/spaghettifunk/anima-gpu/engine/math"
	"github.com/spaghettifunk/anima-gpu/engine/renderer/metadata"
)

type VulkanSwapchain struct {
	Handle      vk.Swapchain
	ImageFormat vk.SurfaceFormat
	PresentMode vk.PresentMode
	Extent      vk.Extent2D
	ImageCount  uint32
	Images      []vk.Image
	Views       []vk.ImageView
}

type VulkanSwapchainSupportInfo struct {
	Capabilities vk.SurfaceCapabilities
	Formats      []vk.SurfaceFormat
	PresentModes []vk.PresentMode
}

func (vs *VulkanSwapchain) Info() metadata.SwapchainInfo {
	return metadata.SwapchainInfo{
		Width:       vs.Extent.Width,
		Height:      vs.Extent.Height,
		ImageCount:  vs.ImageCount,
		Format:      vs.ImageFormat.Format,
		PresentMode: vs.PresentMode,
	}
}

func chooseSurfaceFormat(formats []vk.SurfaceFormat) (vk.SurfaceFormat, error) {
	for _, format := range formats {
		if format.Format == vk.FormatB8g8r8a8Srgb && format.ColorSpace == vk.ColorSpaceSrgbNonlinear {
			return format, nil
		}
	}
	return vk.SurfaceFormat{}, errors.Wrap(core.ErrNoSuitableSurfaceFormat, "B8G8R8A8_SRGB with SRGB_NONLINEAR")
}

// choosePresentMode prefers mailbox and falls back to FIFO, which every device supports.
func choosePresentMode(modes []vk.PresentMode, vsync bool) vk.PresentMode {
	if vsync {
		return vk.PresentModeFifo
	}
	for _, mode := range modes {
		if mode == vk.PresentModeMailbox {
			return mode
		}
	}
	return vk.PresentModeFifo
}

func chooseExtent(capabilities *vk.SurfaceCapabilities, width, height uint32) vk.Extent2D {
	if capabilities.CurrentExtent.Width != math.MaxUint32 {
		return capabilities.CurrentExtent
	}
	min := capabilities.MinImageExtent
	max := capabilities.MaxImageExtent
	return vk.Extent2D{
		Width:  amath.Clamp(width, min.Width, max.Width),
		Height: amath.Clamp(height, min.Height, max.Height),
	}
}

// chooseImageCount asks for two images in immediate mode and three otherwise.
func chooseImageCount(capabilities *vk.SurfaceCapabilities, mode vk.PresentMode) uint32 {
	count := uint32(3)
	if mode == vk.PresentModeImmediate {
		count = 2
	}
	count = max(count, capabilities.MinImageCount)
	if capabilities.MaxImageCount > 0 {
		count = min(count, capabilities.MaxImageCount)
	}
	return min(count, metadata.MAX_SWAPCHAIN_IMAGES)
}

func createSwapchain(context *VulkanContext, width, height uint32, vsync bool) (*VulkanSwapchain, error) {
	device := context.Device
	if err := deviceQuerySwapchainSupport(device.PhysicalDevice, context.Surface, &device.SwapchainSupport); err != nil {
		return nil, err
	}
	support := &device.SwapchainSupport

	format, err := chooseSurfaceFormat(support.Formats)
	if err != nil {
		core.LogError(err.Error())
		return nil, err
	}
	swapchain := &VulkanSwapchain{
		ImageFormat: format,
		PresentMode: choosePresentMode(support.PresentModes, vsync),
		Extent:      chooseExtent(&support.Capabilities, width, height),
	}
	imageCount := chooseImageCount(&support.Capabilities, swapchain.PresentMode)

	swapchainCreateInfo := vk.SwapchainCreateInfo{
		SType:            vk.StructureTypeSwapchainCreateInfo,
		Surface:          context.Surface,
		MinImageCount:    imageCount,
		ImageFormat:      format.Format,
		ImageColorSpace:  format.ColorSpace,
		ImageExtent:      swapchain.Extent,
		ImageArrayLayers: 1,
		// The final image is copied in, nothing renders into the swapchain directly.
		ImageUsage:       vk.ImageUsageFlags(vk.ImageUsageColorAttachmentBit | vk.ImageUsageTransferDstBit),
		ImageSharingMode: vk.SharingModeExclusive,
		PreTransform:     support.Capabilities.CurrentTransform,
		CompositeAlpha:   vk.CompositeAlphaOpaqueBit,
		PresentMode:      swapchain.PresentMode,
		Clipped:          vk.True,
	}

	if err := context.lockPool.SafeCall(SwapchainManagement, func() error {
		if res := vk.CreateSwapchain(device.LogicalDevice, &swapchainCreateInfo, context.Allocator, &swapchain.Handle); res != vk.Success {
			return core.NewVulkanError("vkCreateSwapchainKHR", VulkanResultString(res, true))
		}
		return nil
	}); err != nil {
		core.LogError(err.Error())
		return nil, err
	}

	if res := vk.GetSwapchainImages(device.LogicalDevice, swapchain.Handle, &swapchain.ImageCount, nil); res != vk.Success {
		err := core.NewVulkanError("vkGetSwapchainImagesKHR", VulkanResultString(res, true))
		core.LogError(err.Error())
		return nil, err
	}
	swapchain.Images = make([]vk.Image, swapchain.ImageCount)
	swapchain.Views = make([]vk.ImageView, swapchain.ImageCount)
	if res := vk.GetSwapchainImages(device.LogicalDevice, swapchain.Handle, &swapchain.ImageCount, swapchain.Images); res != vk.Success {
		err := core.NewVulkanError("vkGetSwapchainImagesKHR", VulkanResultString(res, true))
		core.LogError(err.Error())
		return nil, err
	}

	for i := range swapchain.Images {
		viewInfo := vk.ImageViewCreateInfo{
			SType:    vk.StructureTypeImageViewCreateInfo,
			Image:    swapchain.Images[i],
			ViewType: vk.ImageViewType2d,
			Format:   format.Format,
			SubresourceRange: vk.ImageSubresourceRange{
				AspectMask: vk.ImageAspectFlags(vk.ImageAspectColorBit),
				LevelCount: 1,
				LayerCount: 1,
			},
		}
		if res := vk.CreateImageView(device.LogicalDevice, &viewInfo, context.Allocator, &swapchain.Views[i]); res != vk.Success {
			err := core.NewVulkanError("vkCreateImageView", VulkanResultString(res, true))
			core.LogError(err.Error())
			return nil, err
		}
	}

	core.LogInfo("Swapchain created: %dx%d, %d images.", swapchain.Extent.Width, swapchain.Extent.Height, swapchain.ImageCount)
	return swapchain, nil
}

func (vs *VulkanSwapchain) destroy(context *VulkanContext) {
	device := context.Device.LogicalDevice
	// Only the views are destroyed, the images belong to the swapchain.
	for i := range vs.Views {
		if vs.Views[i] != vk.NullImageView {
			vk.DestroyImageView(device, vs.Views[i], context.Allocator)
		}
	}
	vs.Views = nil
	vs.Images = nil
	if vs.Handle != vk.NullSwapchain {
		context.lockPool.SafeCall(SwapchainManagement, func() error {
			vk.DestroySwapchain(device, vs.Handle, context.Allocator)
			return nil
		})
		vs.Handle = vk.NullSwapchain
	}
}

// transitionToPresent moves every image out of UNDEFINED, so the frame copy can always
// start from PRESENT_SRC.
func (vs *VulkanSwapchain) transitionToPresent(b *Backend) error {
	return b.immediateSubmit(func(cmd vk.CommandBuffer) {
		barriers := make([]vk.ImageMemoryBarrier, len(vs.Images))
		for i, image := range vs.Images {
			barriers[i] = imageBarrier(image, vk.ImageAspectFlags(vk.ImageAspectColorBit), 1, 1,
				vk.ImageLayoutUndefined, vk.ImageLayoutPresentSrc)
		}
		vk.CmdPipelineBarrier(cmd,
			vk.PipelineStageFlags(vk.PipelineStageTopOfPipeBit),
			vk.PipelineStageFlags(vk.PipelineStageBottomOfPipeBit),
			0, 0, nil, 0, nil, uint32(len(barriers)), barriers)
	})
}
