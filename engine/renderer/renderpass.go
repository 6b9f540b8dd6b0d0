package renderer

import (
	"github.com/cockroachdb/errors"

	"github.com/spaghettifunk/anima-gpu/engine/core"
	"github.com/spaghettifunk/anima-gpu/engine/renderer/metadata"
)

// CreateRenderPass only records the output description, rendering is dynamic.
func (d *GPUDevice) CreateRenderPass(creation metadata.RenderPassCreation) (metadata.RenderPassHandle, error) {
	index := d.renderPasses.Obtain()
	if index == metadata.INVALID_INDEX {
		return metadata.InvalidRenderPass, errors.Wrap(core.ErrPoolExhausted, "render pass")
	}
	if uint32(len(creation.Output.ColorFormats)) > metadata.MAX_IMAGE_OUTPUTS {
		d.renderPasses.Release(index)
		core.LogError("render pass %s has %d color outputs", creation.Name, len(creation.Output.ColorFormats))
		return metadata.InvalidRenderPass, errors.Wrapf(core.ErrUnsupported, "more than %d color outputs", metadata.MAX_IMAGE_OUTPUTS)
	}

	pass := d.renderPasses.Access(index)
	*pass = metadata.RenderPass{
		Output:           creation.Output,
		NumRenderTargets: uint32(len(creation.Output.ColorFormats)),
		Handle:           metadata.RenderPassHandle{Index: index},
		Name:             resourceName(creation.Name, "render_pass"),
	}
	return pass.Handle, nil
}

func (d *GPUDevice) AccessRenderPass(handle metadata.RenderPassHandle) *metadata.RenderPass {
	return d.renderPasses.Access(handle.Index)
}

func (d *GPUDevice) DestroyRenderPass(handle metadata.RenderPassHandle) {
	if !d.renderPasses.Live(handle.Index) {
		core.LogError("Trying to free invalid RenderPass %d", handle.Index)
		return
	}
	if !d.queueDeletion(metadata.RESOURCE_DELETION_TYPE_RENDER_PASS, handle.Index) {
		return
	}
}

func (d *GPUDevice) DestroyRenderPassInstant(index metadata.ResourceIndex) {
	if !d.renderPasses.Live(index) {
		return
	}
	d.renderPasses.Release(index)
}

func (d *GPUDevice) CreateFramebuffer(creation metadata.FramebufferCreation) (metadata.FramebufferHandle, error) {
	if !d.renderPasses.Live(creation.RenderPass.Index) {
		core.LogError("framebuffer %s uses invalid render pass %d", creation.Name, creation.RenderPass.Index)
		return metadata.InvalidFramebuffer, errors.Wrapf(core.ErrInvalidHandle, "render pass %d", creation.RenderPass.Index)
	}
	index := d.framebuffers.Obtain()
	if index == metadata.INVALID_INDEX {
		return metadata.InvalidFramebuffer, errors.Wrap(core.ErrPoolExhausted, "framebuffer")
	}

	framebuffer := d.framebuffers.Access(index)
	*framebuffer = metadata.Framebuffer{
		RenderPass:             creation.RenderPass,
		ColorAttachments:       append([]metadata.TextureHandle(nil), creation.OutputTextures...),
		DepthStencilAttachment: creation.DepthStencilTexture,
		Width:                  creation.Width,
		Height:                 creation.Height,
		ScaleX:                 creation.ScaleX,
		ScaleY:                 creation.ScaleY,
		Resize:                 creation.Resize,
		ManualResourcesFree:    creation.ManualResourcesFree,
		Handle:                 metadata.FramebufferHandle{Index: index},
		Name:                   resourceName(creation.Name, "framebuffer"),
	}
	if framebuffer.ScaleX == 0 {
		framebuffer.ScaleX = 1
	}
	if framebuffer.ScaleY == 0 {
		framebuffer.ScaleY = 1
	}
	return framebuffer.Handle, nil
}

func (d *GPUDevice) AccessFramebuffer(handle metadata.FramebufferHandle) *metadata.Framebuffer {
	return d.framebuffers.Access(handle.Index)
}

// ResizeFramebuffer brings the attachments of a resizable framebuffer to the scaled
// swapchain size.
func (d *GPUDevice) ResizeFramebuffer(handle metadata.FramebufferHandle) error {
	if !d.framebuffers.Live(handle.Index) {
		core.LogError("Trying to resize invalid Framebuffer %d", handle.Index)
		return errors.Wrapf(core.ErrInvalidHandle, "framebuffer %d", handle.Index)
	}
	framebuffer := d.framebuffers.Access(handle.Index)
	if !framebuffer.Resize {
		return nil
	}
	width := uint32(float32(d.swapchain.Width) * framebuffer.ScaleX)
	height := uint32(float32(d.swapchain.Height) * framebuffer.ScaleY)
	if width == framebuffer.Width && height == framebuffer.Height {
		return nil
	}

	for _, attachment := range framebuffer.ColorAttachments {
		if err := d.ResizeTexture(attachment, width, height); err != nil {
			return err
		}
	}
	if framebuffer.DepthStencilAttachment.IsValid() {
		if err := d.ResizeTexture(framebuffer.DepthStencilAttachment, width, height); err != nil {
			return err
		}
	}
	framebuffer.Width = width
	framebuffer.Height = height
	return nil
}

func (d *GPUDevice) DestroyFramebuffer(handle metadata.FramebufferHandle) {
	if !d.framebuffers.Live(handle.Index) {
		core.LogError("Trying to free invalid Framebuffer %d", handle.Index)
		return
	}
	if !d.queueDeletion(metadata.RESOURCE_DELETION_TYPE_FRAMEBUFFER, handle.Index) {
		return
	}
}

// DestroyFramebufferInstant takes the attachments down with the framebuffer unless their
// lifetime is managed by the caller.
func (d *GPUDevice) DestroyFramebufferInstant(index metadata.ResourceIndex) {
	if !d.framebuffers.Live(index) {
		return
	}
	framebuffer := d.framebuffers.Access(index)
	if !framebuffer.ManualResourcesFree {
		attachments := append([]metadata.TextureHandle(nil), framebuffer.ColorAttachments...)
		if framebuffer.DepthStencilAttachment.IsValid() {
			attachments = append(attachments, framebuffer.DepthStencilAttachment)
		}
		for _, attachment := range attachments {
			if d.textures.Live(attachment.Index) {
				d.queueBindlessUpdate(attachment.Index, true)
				d.DestroyTextureInstant(attachment.Index)
			}
		}
	}
	d.framebuffers.Release(index)
}

// renderingInfo collects the attachments of framebuffer for dynamic rendering.
func (d *GPUDevice) renderingInfo(pass *metadata.RenderPass, framebuffer *metadata.Framebuffer) *metadata.RenderingInfo {
	info := &metadata.RenderingInfo{
		Output:     &pass.Output,
		Width:      framebuffer.Width,
		Height:     framebuffer.Height,
		ClearDepth: 1.0,
	}
	for _, attachment := range framebuffer.ColorAttachments {
		if texture := d.textures.Access(attachment.Index); texture != nil {
			info.Colors = append(info.Colors, texture)
		}
	}
	if framebuffer.DepthStencilAttachment.IsValid() {
		info.Depth = d.textures.Access(framebuffer.DepthStencilAttachment.Index)
	}
	return info
}
