package metadata

import vk "github.com/goki/vulkan"

type RenderPassOperation int

const (
	RENDER_PASS_OPERATION_DONT_CARE RenderPassOperation = iota
	RENDER_PASS_OPERATION_LOAD
	RENDER_PASS_OPERATION_CLEAR
)

func (op RenderPassOperation) LoadOp() vk.AttachmentLoadOp {
	switch op {
	case RENDER_PASS_OPERATION_LOAD:
		return vk.AttachmentLoadOpLoad
	case RENDER_PASS_OPERATION_CLEAR:
		return vk.AttachmentLoadOpClear
	}
	return vk.AttachmentLoadOpDontCare
}

/** @brief Formats and operations of the attachments a pass writes. */
type RenderPassOutput struct {
	ColorFormats            []vk.Format
	ColorFinalLayouts       []vk.ImageLayout
	ColorOperations         []RenderPassOperation
	DepthStencilFormat      vk.Format
	DepthStencilFinalLayout vk.ImageLayout
	DepthOperation          RenderPassOperation
	StencilOperation        RenderPassOperation
}

func (o *RenderPassOutput) Color(format vk.Format, layout vk.ImageLayout, op RenderPassOperation) *RenderPassOutput {
	o.ColorFormats = append(o.ColorFormats, format)
	o.ColorFinalLayouts = append(o.ColorFinalLayouts, layout)
	o.ColorOperations = append(o.ColorOperations, op)
	return o
}

func (o *RenderPassOutput) Depth(format vk.Format, layout vk.ImageLayout) *RenderPassOutput {
	o.DepthStencilFormat = format
	o.DepthStencilFinalLayout = layout
	return o
}

func (o *RenderPassOutput) SetDepthStencilOperations(depth, stencil RenderPassOperation) *RenderPassOutput {
	o.DepthOperation = depth
	o.StencilOperation = stencil
	return o
}

type RenderPassCreation struct {
	Output RenderPassOutput
	Name   string
}

/** @brief CPU side description of a pass. Rendering is dynamic, there is no native object. */
type RenderPass struct {
	Output           RenderPassOutput
	NumRenderTargets uint32
	Handle           RenderPassHandle
	Name             string
}

type FramebufferCreation struct {
	RenderPass          RenderPassHandle
	OutputTextures      []TextureHandle
	DepthStencilTexture TextureHandle
	Width               uint32
	Height              uint32
	ScaleX              float32
	ScaleY              float32
	/** @brief Resize the attachments when the swapchain changes size. */
	Resize bool
	/** @brief The attachments outlive the framebuffer and are destroyed by their owner. */
	ManualResourcesFree bool
	Name                string
}

func NewFramebufferCreation(name string, renderPass RenderPassHandle, width, height uint32) FramebufferCreation {
	return FramebufferCreation{
		RenderPass:          renderPass,
		DepthStencilTexture: InvalidTexture,
		Width:               width,
		Height:              height,
		ScaleX:              1.0,
		ScaleY:              1.0,
		Name:                name,
	}
}

type Framebuffer struct {
	RenderPass             RenderPassHandle
	ColorAttachments       []TextureHandle
	DepthStencilAttachment TextureHandle
	Width                  uint32
	Height                 uint32
	ScaleX                 float32
	ScaleY                 float32
	Resize                 bool
	ManualResourcesFree    bool
	Handle                 FramebufferHandle
	Name                   string
}

/** @brief Everything the backend needs to begin dynamic rendering. */
type RenderingInfo struct {
	Output       *RenderPassOutput
	Colors       []*Texture
	Depth        *Texture
	Width        uint32
	Height       uint32
	ClearColor   [4]float32
	ClearDepth   float32
	ClearStencil uint32
}
