package renderer

import (
	"github.com/cockroachdb/errors"

	"github.com/spaghettifunk/anima-gpu/engine/core"
	"github.com/spaghettifunk/anima-gpu/engine/renderer/metadata"
)

// Thread whose command pool records the copy into the swapchain image.
const SWAPCHAIN_COPY_THREAD uint32 = 1

// NewFrame waits until the GPU is done with the current frame slot, reads back its queries
// and acquires the next swapchain image. core.ErrSwapchainOutOfDate means the swapchain was
// recreated and the frame must be skipped.
func (d *GPUDevice) NewFrame() error {
	if !d.initialized {
		return errors.New("NewFrame called on an uninitialized device")
	}
	if err := d.backend.WaitForFrame(d.currentFrame); err != nil {
		core.LogError("failed waiting for frame %d: %s", d.currentFrame, err)
		return err
	}

	pools := make([]uint32, 0, d.config.NumThreads)
	for thread := uint32(0); thread < d.config.NumThreads; thread++ {
		pools = append(pools, d.commands.poolIndex(d.currentFrame, thread))
	}
	if gpuTime := d.timestamps.resolve(d.backend, pools, d.absoluteFrame); gpuTime > 0 {
		d.Metrics.UpdateGPU(gpuTime)
	}
	if statsPool := pools[0]; d.commands.queriesReset[statsPool] {
		if stats, err := d.backend.GetPipelineStatistics(statsPool); err == nil {
			d.statistics = stats
		} else {
			core.LogWarn("failed to read pipeline statistics of pool %d: %s", statsPool, err)
		}
	}

	imageIndex, err := d.backend.AcquireNextImage(d.currentFrame)
	if err != nil {
		if errors.Is(err, core.ErrSwapchainOutOfDate) {
			if _, rerr := d.ResizeSwapchain(); rerr != nil {
				return rerr
			}
			return err
		}
		core.LogError("failed to acquire swapchain image: %s", err)
		return err
	}
	d.imageIndex = imageIndex

	if err := d.commands.reset(d.currentFrame); err != nil {
		return err
	}
	d.beginDynamicFrame()
	return nil
}

// Present submits the queued command buffers, copies final into the swapchain image and
// presents it. An invalid final texture presents a cleared image. After presenting the
// frame counters advance and the deletions queued for the new frame slot run. A present
// that recreates the swapchain returns without advancing.
func (d *GPUDevice) Present(final metadata.TextureHandle) error {
	if !d.initialized {
		return errors.New("Present called on an uninitialized device")
	}

	natives := make([]NativeCommandBuffer, 0, len(d.queuedCommands))
	for _, cb := range d.queuedCommands {
		if err := cb.End(); err != nil {
			return err
		}
		natives = append(natives, cb.native)
	}

	if err := d.updateBindlessTextures(); err != nil {
		return err
	}

	if len(natives) > 0 {
		if err := d.backend.Submit(d.currentFrame, natives); err != nil {
			core.LogError("failed to submit %d command buffers: %s", len(natives), err)
			return err
		}
	}
	for _, cb := range d.queuedCommands {
		cb.State = COMMAND_BUFFER_STATE_SUBMITTED
	}
	d.queuedCommands = d.queuedCommands[:0]

	copyCmd, err := d.GetPrimaryCmd(SWAPCHAIN_COPY_THREAD, true)
	if err != nil {
		return err
	}
	var source *metadata.Texture
	if final.IsValid() {
		if d.textures.Live(final.Index) {
			source = d.textures.Access(final.Index)
		} else {
			core.LogWarn("presenting invalid texture %d, clearing instead", final.Index)
		}
	}
	if err := d.backend.SubmitSwapchainCopy(d.currentFrame, d.imageIndex, copyCmd.native, source); err != nil {
		core.LogError("failed to submit the swapchain copy: %s", err)
		return err
	}
	copyCmd.State = COMMAND_BUFFER_STATE_SUBMITTED

	err = d.backend.Present(d.currentFrame, d.imageIndex)
	d.SwapchainResizedLastFrame = false
	if errors.Is(err, core.ErrSwapchainOutOfDate) || d.resizeRequested {
		d.resizeRequested = false
		// The frame slot is reused by the next NewFrame.
		_, rerr := d.ResizeSwapchain()
		return rerr
	}
	if err != nil {
		core.LogError("failed to present frame %d: %s", d.absoluteFrame, err)
		return err
	}

	d.advanceFrame()
	d.processDeletions()
	return nil
}

func (d *GPUDevice) advanceFrame() {
	d.previousFrame = d.currentFrame
	d.currentFrame = (d.currentFrame + 1) % d.framesInFlight
	d.absoluteFrame++
}

// RequestResize recreates the swapchain at the end of the next Present.
func (d *GPUDevice) RequestResize() {
	d.resizeRequested = true
}

// GPUTimestamps returns the scopes of the most recently resolved frame.
func (d *GPUDevice) GPUTimestamps() []metadata.GPUTimestamp {
	return d.timestamps.latest()
}

// PipelineStatistics returns the last counters read for thread 0, empty until queries were recorded.
func (d *GPUDevice) PipelineStatistics() []uint64 {
	return append([]uint64(nil), d.statistics...)
}
