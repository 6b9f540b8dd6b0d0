package renderer

import (
	"github.com/spaghettifunk/anima-gpu/engine/core"
	"github.com/spaghettifunk/anima-gpu/engine/renderer/metadata"
)

// queueBindlessUpdate schedules a write of texture index into the bindless array. A pending
// entry for the same index is replaced, the latest state wins.
func (d *GPUDevice) queueBindlessUpdate(index metadata.ResourceIndex, deleting bool) {
	update := metadata.ResourceUpdate{
		Type:         metadata.RESOURCE_DELETION_TYPE_TEXTURE,
		Index:        index,
		CurrentFrame: d.currentFrame,
		Deleting:     deleting,
	}
	for i := range d.bindlessUpdates {
		if d.bindlessUpdates[i].Index == index {
			d.bindlessUpdates[i] = update
			return
		}
	}
	d.bindlessUpdates = append(d.bindlessUpdates, update)
}

// updateBindlessTextures drains the queue into a single descriptor update.
func (d *GPUDevice) updateBindlessTextures() error {
	if len(d.bindlessUpdates) == 0 {
		return nil
	}
	set := d.descriptorSets.Access(d.bindlessSet.Index)
	defaultSampler := d.samplers.Access(d.defaultSampler.Index)
	dummy := d.textures.Access(d.dummyTexture.Index)
	if set == nil || defaultSampler == nil || dummy == nil {
		return nil
	}

	writes := make([]metadata.BindlessWrite, 0, len(d.bindlessUpdates))
	for i := len(d.bindlessUpdates) - 1; i >= 0; i-- {
		update := d.bindlessUpdates[i]

		last := len(d.bindlessUpdates) - 1
		d.bindlessUpdates[i] = d.bindlessUpdates[last]
		d.bindlessUpdates = d.bindlessUpdates[:last]

		write := metadata.BindlessWrite{
			ArrayElement: update.Index,
			Texture:      dummy,
			Sampler:      defaultSampler,
		}
		if !update.Deleting {
			if !d.textures.Live(update.Index) {
				continue
			}
			write.Texture = d.textures.Access(update.Index)
			if sampler := write.Texture.Sampler; sampler.IsValid() && d.samplers.Live(sampler.Index) {
				write.Sampler = d.samplers.Access(sampler.Index)
			}
		}
		writes = append(writes, write)
	}

	if len(writes) == 0 {
		return nil
	}
	if err := d.backend.UpdateBindlessTextures(set, writes); err != nil {
		core.LogError("failed to update %d bindless textures: %s", len(writes), err)
		return err
	}
	d.processedBindlessWrites += uint64(len(writes))
	return nil
}

func (d *GPUDevice) PendingBindlessUpdates() []metadata.ResourceUpdate {
	return append([]metadata.ResourceUpdate(nil), d.bindlessUpdates...)
}

// ProcessedBindlessWrites counts every bindless descriptor written since Initialize.
func (d *GPUDevice) ProcessedBindlessWrites() uint64 {
	return d.processedBindlessWrites
}
