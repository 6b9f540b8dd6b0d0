package renderer

import (
	"github.com/spaghettifunk/anima-gpu/engine/core"
	"github.com/spaghettifunk/anima-gpu/engine/renderer/metadata"
)

// queueDeletion returns false when the resource already waits in the queue.
func (d *GPUDevice) queueDeletion(kind metadata.ResourceDeletionType, index metadata.ResourceIndex) bool {
	if d.deletionPending(kind, index) {
		core.LogError("%s %d is already queued for deletion", kind, index)
		return false
	}
	d.resourceDeletionQueue = append(d.resourceDeletionQueue, metadata.ResourceUpdate{
		Type:         kind,
		Index:        index,
		CurrentFrame: d.currentFrame,
	})
	return true
}

func (d *GPUDevice) deletionPending(kind metadata.ResourceDeletionType, index metadata.ResourceIndex) bool {
	for _, entry := range d.resourceDeletionQueue {
		if entry.Type == kind && entry.Index == index {
			return true
		}
	}
	return false
}

// processDeletions destroys the resources released the last time this frame slot was
// recorded. By then every submission that could reference them has completed.
func (d *GPUDevice) processDeletions() {
	for i := len(d.resourceDeletionQueue) - 1; i >= 0; i-- {
		entry := d.resourceDeletionQueue[i]
		if entry.CurrentFrame != d.currentFrame {
			continue
		}
		d.destroyInstant(entry)

		last := len(d.resourceDeletionQueue) - 1
		d.resourceDeletionQueue[i] = d.resourceDeletionQueue[last]
		d.resourceDeletionQueue = d.resourceDeletionQueue[:last]
	}
}

// flushDeletions destroys everything still queued, whatever the frame. Only valid once
// the device is idle.
func (d *GPUDevice) flushDeletions() {
	for len(d.resourceDeletionQueue) > 0 {
		queue := d.resourceDeletionQueue
		d.resourceDeletionQueue = nil
		for _, entry := range queue {
			d.destroyInstant(entry)
		}
	}
}

func (d *GPUDevice) destroyInstant(entry metadata.ResourceUpdate) {
	switch entry.Type {
	case metadata.RESOURCE_DELETION_TYPE_SAMPLER:
		d.DestroySamplerInstant(entry.Index)
	case metadata.RESOURCE_DELETION_TYPE_TEXTURE:
		d.DestroyTextureInstant(entry.Index)
	case metadata.RESOURCE_DELETION_TYPE_BUFFER:
		d.DestroyBufferInstant(entry.Index)
	case metadata.RESOURCE_DELETION_TYPE_SHADER_STATE:
		d.DestroyShaderStateInstant(entry.Index)
	case metadata.RESOURCE_DELETION_TYPE_PIPELINE:
		d.DestroyPipelineInstant(entry.Index)
	case metadata.RESOURCE_DELETION_TYPE_DESCRIPTOR_SET_LAYOUT:
		d.DestroyDescriptorSetLayoutInstant(entry.Index)
	case metadata.RESOURCE_DELETION_TYPE_DESCRIPTOR_SET:
		d.DestroyDescriptorSetInstant(entry.Index)
	case metadata.RESOURCE_DELETION_TYPE_RENDER_PASS:
		d.DestroyRenderPassInstant(entry.Index)
	case metadata.RESOURCE_DELETION_TYPE_FRAMEBUFFER:
		d.DestroyFramebufferInstant(entry.Index)
	default:
		core.LogError("unknown resource deletion type %d for index %d", entry.Type, entry.Index)
	}
}

// PendingDeletions returns a copy of the deletion queue.
func (d *GPUDevice) PendingDeletions() []metadata.ResourceUpdate {
	return append([]metadata.ResourceUpdate(nil), d.resourceDeletionQueue...)
}
