package renderer

import (
	"github.com/cockroachdb/errors"

	"github.com/spaghettifunk/anima-gpu/engine/core"
	"github.com/spaghettifunk/anima-gpu/engine/renderer/metadata"
)

func (d *GPUDevice) CreateTexture(creation metadata.TextureCreation) (metadata.TextureHandle, error) {
	var alias *metadata.Texture
	if creation.Alias.IsValid() {
		if !d.textures.Live(creation.Alias.Index) {
			core.LogError("texture %s aliases invalid texture %d", creation.Name, creation.Alias.Index)
			return metadata.InvalidTexture, errors.Wrapf(core.ErrInvalidHandle, "alias texture %d", creation.Alias.Index)
		}
		alias = d.textures.Access(creation.Alias.Index)
	}

	index := d.textures.Obtain()
	if index == metadata.INVALID_INDEX {
		return metadata.InvalidTexture, errors.Wrap(core.ErrPoolExhausted, "texture")
	}

	texture := d.textures.Access(index)
	*texture = metadata.Texture{
		Width:   creation.Width,
		Height:  creation.Height,
		Depth:   max(creation.Depth, 1),
		Mipmaps: max(creation.Mipmaps, 1),
		Flags:   creation.Flags,
		Format:  creation.Format,
		Type:    creation.Type,
		Handle:  metadata.TextureHandle{Index: index},
		Sampler: metadata.InvalidSampler,
		Alias:   metadata.InvalidTexture,
		Name:    resourceName(creation.Name, "texture"),
	}
	if alias != nil {
		texture.Alias = alias.Handle
	}

	if err := d.backend.CreateTexture(texture, alias, creation.InitialData); err != nil {
		core.LogError("failed to create texture %s: %s", texture.Name, err)
		d.textures.Release(index)
		return metadata.InvalidTexture, err
	}
	texture.Ready = true

	d.queueBindlessUpdate(index, false)
	return texture.Handle, nil
}

func (d *GPUDevice) AccessTexture(handle metadata.TextureHandle) *metadata.Texture {
	return d.textures.Access(handle.Index)
}

func (d *GPUDevice) TextureReady(handle metadata.TextureHandle) bool {
	if !d.textures.Live(handle.Index) {
		return false
	}
	return d.textures.Access(handle.Index).Ready
}

// ResizeTexture recreates the image of handle in place. The old native image moves to a
// temporary slot that goes through the deletion queue, so frames in flight keep using it.
// A resized alias gets its own memory and stops aliasing.
func (d *GPUDevice) ResizeTexture(handle metadata.TextureHandle, width, height uint32) error {
	if !d.textures.Live(handle.Index) {
		core.LogError("Trying to resize invalid Texture %d", handle.Index)
		return errors.Wrapf(core.ErrInvalidHandle, "texture %d", handle.Index)
	}
	texture := d.textures.Access(handle.Index)
	if texture.Width == width && texture.Height == height {
		return nil
	}

	oldIndex := d.textures.Obtain()
	if oldIndex == metadata.INVALID_INDEX {
		return errors.Wrapf(core.ErrPoolExhausted, "resizing texture %s", texture.Name)
	}
	old := d.textures.Access(oldIndex)
	*old = *texture
	old.Handle = metadata.TextureHandle{Index: oldIndex}

	texture.Width = width
	texture.Height = height
	texture.InternalData = nil
	texture.Alias = metadata.InvalidTexture
	texture.Ready = false
	if err := d.backend.CreateTexture(texture, nil, nil); err != nil {
		core.LogError("failed to resize texture %s to %dx%d: %s", texture.Name, width, height, err)
		// Put the old image back, the caller keeps a working texture.
		*texture = *old
		texture.Handle = handle
		d.textures.Release(oldIndex)
		return err
	}
	texture.Ready = true

	d.DestroyTexture(old.Handle)
	d.queueBindlessUpdate(handle.Index, false)
	return nil
}

// LinkTextureSampler sets the sampler used when the texture is written to the bindless array.
func (d *GPUDevice) LinkTextureSampler(texture metadata.TextureHandle, sampler metadata.SamplerHandle) {
	if !d.textures.Live(texture.Index) {
		core.LogError("Trying to link sampler to invalid Texture %d", texture.Index)
		return
	}
	d.textures.Access(texture.Index).Sampler = sampler
	d.queueBindlessUpdate(texture.Index, false)
}

func (d *GPUDevice) DestroyTexture(handle metadata.TextureHandle) {
	if !d.textures.Live(handle.Index) {
		core.LogError("Trying to free invalid Texture %d", handle.Index)
		return
	}
	if !d.queueDeletion(metadata.RESOURCE_DELETION_TYPE_TEXTURE, handle.Index) {
		return
	}
	d.queueBindlessUpdate(handle.Index, true)
}

func (d *GPUDevice) DestroyTextureInstant(index metadata.ResourceIndex) {
	if !d.textures.Live(index) {
		return
	}
	d.backend.DestroyTexture(d.textures.Access(index))
	d.textures.Release(index)
}
