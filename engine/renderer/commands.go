package renderer

import (
	"github.com/cockroachdb/errors"

	"github.com/spaghettifunk/anima-gpu/engine/core"
	"github.com/spaghettifunk/anima-gpu/engine/renderer/metadata"
)

const (
	PRIMARY_COMMAND_BUFFERS_PER_POOL   uint32 = 3
	SECONDARY_COMMAND_BUFFERS_PER_POOL uint32 = 5
)

// commandBufferManager owns one command pool per thread per frame in flight.
// Pool frame*numThreads+thread is only touched by that thread.
type commandBufferManager struct {
	device     *GPUDevice
	numThreads uint32
	numPools   uint32

	primaries       [][]*CommandBuffer
	secondaries     [][]*CommandBuffer
	usedPrimaries   []uint32
	usedSecondaries []uint32
	queriesReset    []bool
}

func newCommandBufferManager(device *GPUDevice, numThreads, framesInFlight uint32) (*commandBufferManager, error) {
	m := &commandBufferManager{
		device:     device,
		numThreads: numThreads,
		numPools:   numThreads * framesInFlight,
	}
	m.primaries = make([][]*CommandBuffer, m.numPools)
	m.secondaries = make([][]*CommandBuffer, m.numPools)
	m.usedPrimaries = make([]uint32, m.numPools)
	m.usedSecondaries = make([]uint32, m.numPools)
	m.queriesReset = make([]bool, m.numPools)

	for pool := uint32(0); pool < m.numPools; pool++ {
		primaries, secondaries, err := device.backend.AllocateCommandBuffers(pool, PRIMARY_COMMAND_BUFFERS_PER_POOL, SECONDARY_COMMAND_BUFFERS_PER_POOL)
		if err != nil {
			core.LogError("failed to allocate command buffers of pool %d: %s", pool, err)
			return nil, err
		}
		thread := pool % numThreads
		queries := &device.timestamps.pools[pool]
		for _, native := range primaries {
			m.primaries[pool] = append(m.primaries[pool], newCommandBuffer(device, native, queries, pool, thread, false))
		}
		for _, native := range secondaries {
			m.secondaries[pool] = append(m.secondaries[pool], newCommandBuffer(device, native, queries, pool, thread, true))
		}
	}
	return m, nil
}

func (m *commandBufferManager) poolIndex(frame, thread uint32) uint32 {
	return frame*m.numThreads + thread
}

// reset recycles every pool of frame. The GPU must be done with that frame.
func (m *commandBufferManager) reset(frame uint32) error {
	for thread := uint32(0); thread < m.numThreads; thread++ {
		pool := m.poolIndex(frame, thread)
		if err := m.device.backend.ResetCommandPool(pool); err != nil {
			core.LogError("failed to reset command pool %d: %s", pool, err)
			return err
		}
		for _, cb := range m.primaries[pool] {
			cb.Reset()
		}
		for _, cb := range m.secondaries[pool] {
			cb.Reset()
		}
		m.usedPrimaries[pool] = 0
		m.usedSecondaries[pool] = 0
		m.queriesReset[pool] = false
	}
	return nil
}

func (m *commandBufferManager) primary(frame, thread uint32, begin bool) (*CommandBuffer, error) {
	if thread >= m.numThreads {
		return nil, errors.Newf("thread %d out of range, %d recording threads configured", thread, m.numThreads)
	}
	pool := m.poolIndex(frame, thread)
	used := m.usedPrimaries[pool]
	if used >= PRIMARY_COMMAND_BUFFERS_PER_POOL {
		core.LogError("no primary command buffer left in pool %d", pool)
		return nil, errors.Wrapf(core.ErrPoolExhausted, "primary command buffers of pool %d", pool)
	}
	cb := m.primaries[pool][used]
	if !begin {
		return cb, nil
	}

	m.usedPrimaries[pool] = used + 1
	cb.Reset()
	if err := cb.Begin(); err != nil {
		return nil, err
	}
	if !m.queriesReset[pool] {
		cb.native.ResetQueries(0, metadata.GPU_TIME_QUERIES_PER_FRAME*2)
		m.queriesReset[pool] = true
	}
	return cb, nil
}

func (m *commandBufferManager) secondary(frame, thread uint32) (*CommandBuffer, error) {
	if thread >= m.numThreads {
		return nil, errors.Newf("thread %d out of range, %d recording threads configured", thread, m.numThreads)
	}
	pool := m.poolIndex(frame, thread)
	used := m.usedSecondaries[pool]
	if used >= SECONDARY_COMMAND_BUFFERS_PER_POOL {
		core.LogError("no secondary command buffer left in pool %d", pool)
		return nil, errors.Wrapf(core.ErrPoolExhausted, "secondary command buffers of pool %d", pool)
	}
	m.usedSecondaries[pool] = used + 1
	cb := m.secondaries[pool][used]
	cb.Reset()
	return cb, nil
}

// GetPrimaryCmd returns a primary command buffer of thread for the current frame. With
// begin set the buffer is taken out of the pool and starts recording.
func (d *GPUDevice) GetPrimaryCmd(thread uint32, begin bool) (*CommandBuffer, error) {
	return d.commands.primary(d.currentFrame, thread, begin)
}

// GetSecondaryCmd returns a secondary command buffer of thread. Safe to call from the
// worker that owns thread.
func (d *GPUDevice) GetSecondaryCmd(thread uint32) (*CommandBuffer, error) {
	return d.commands.secondary(d.currentFrame, thread)
}

// QueueCmd schedules cb for submission at Present.
func (d *GPUDevice) QueueCmd(cb *CommandBuffer) {
	d.queuedCommands = append(d.queuedCommands, cb)
}
