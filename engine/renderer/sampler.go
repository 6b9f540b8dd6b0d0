package renderer

import (
	"github.com/cockroachdb/errors"

	"github.com/spaghettifunk/anima-gpu/engine/core"
	"github.com/spaghettifunk/anima-gpu/engine/renderer/metadata"
)

func (d *GPUDevice) CreateSampler(creation metadata.SamplerCreation) (metadata.SamplerHandle, error) {
	index := d.samplers.Obtain()
	if index == metadata.INVALID_INDEX {
		return metadata.InvalidSampler, errors.Wrap(core.ErrPoolExhausted, "sampler")
	}

	sampler := d.samplers.Access(index)
	*sampler = metadata.Sampler{
		MinFilter:    creation.MinFilter,
		MagFilter:    creation.MagFilter,
		MipFilter:    creation.MipFilter,
		AddressModeU: creation.AddressModeU,
		AddressModeV: creation.AddressModeV,
		AddressModeW: creation.AddressModeW,
		Handle:       metadata.SamplerHandle{Index: index},
		Name:         resourceName(creation.Name, "sampler"),
	}

	if err := d.backend.CreateSampler(sampler); err != nil {
		core.LogError("failed to create sampler %s: %s", sampler.Name, err)
		d.samplers.Release(index)
		return metadata.InvalidSampler, err
	}
	return sampler.Handle, nil
}

func (d *GPUDevice) AccessSampler(handle metadata.SamplerHandle) *metadata.Sampler {
	return d.samplers.Access(handle.Index)
}

func (d *GPUDevice) DestroySampler(handle metadata.SamplerHandle) {
	if !d.samplers.Live(handle.Index) {
		core.LogError("Trying to free invalid Sampler %d", handle.Index)
		return
	}
	if !d.queueDeletion(metadata.RESOURCE_DELETION_TYPE_SAMPLER, handle.Index) {
		return
	}
}

func (d *GPUDevice) DestroySamplerInstant(index metadata.ResourceIndex) {
	if !d.samplers.Live(index) {
		return
	}
	d.backend.DestroySampler(d.samplers.Access(index))
	d.samplers.Release(index)
}
