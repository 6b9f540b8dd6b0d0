package containers

import (
	"math"

	"github.com/spaghettifunk/anima-gpu/engine/core"
)

// INVALID_INDEX marks a handle that refers to no slot.
const INVALID_INDEX uint32 = math.MaxUint32

// ResourcePool is a fixed capacity slot allocator. Indices handed out by Obtain stay
// stable until they are released, and slots are never moved.
type ResourcePool[T any] struct {
	name      string
	slots     []T
	live      []bool
	freeStack []uint32
}

func NewResourcePool[T any](capacity uint32, name string) *ResourcePool[T] {
	p := &ResourcePool[T]{
		name:      name,
		slots:     make([]T, capacity),
		live:      make([]bool, capacity),
		freeStack: make([]uint32, capacity),
	}
	// Lowest indices come out first.
	for i := uint32(0); i < capacity; i++ {
		p.freeStack[i] = capacity - 1 - i
	}
	return p
}

// Obtain returns INVALID_INDEX when every slot is in use.
func (p *ResourcePool[T]) Obtain() uint32 {
	if len(p.freeStack) == 0 {
		core.LogError("%s pool exhausted: all %d slots are in use", p.name, len(p.slots))
		return INVALID_INDEX
	}
	last := len(p.freeStack) - 1
	index := p.freeStack[last]
	p.freeStack = p.freeStack[:last]

	var zero T
	p.slots[index] = zero
	p.live[index] = true
	return index
}

// Access returns nil for out of range indices. Released slots are still returned,
// their content is stale.
func (p *ResourcePool[T]) Access(index uint32) *T {
	if index >= uint32(len(p.slots)) {
		if index != INVALID_INDEX {
			core.LogError("%s pool: access to out of range index %d", p.name, index)
		}
		return nil
	}
	if !p.live[index] {
		core.LogWarn("%s pool: access to released index %d", p.name, index)
	}
	return &p.slots[index]
}

// Release returns false and leaves the pool untouched on a bad or double release.
func (p *ResourcePool[T]) Release(index uint32) bool {
	if index >= uint32(len(p.slots)) {
		core.LogError("%s pool: release of out of range index %d", p.name, index)
		return false
	}
	if !p.live[index] {
		core.LogError("%s pool: double release of index %d", p.name, index)
		return false
	}
	p.live[index] = false
	p.freeStack = append(p.freeStack, index)
	return true
}

// ReleaseAll frees every live slot, used at shutdown after the native objects are gone.
func (p *ResourcePool[T]) ReleaseAll() {
	for i := range p.live {
		if p.live[i] {
			p.Release(uint32(i))
		}
	}
}

func (p *ResourcePool[T]) Live(index uint32) bool {
	return index < uint32(len(p.live)) && p.live[index]
}

func (p *ResourcePool[T]) Capacity() uint32 {
	return uint32(len(p.slots))
}

func (p *ResourcePool[T]) FreeCount() uint32 {
	return uint32(len(p.freeStack))
}

func (p *ResourcePool[T]) UsedCount() uint32 {
	return p.Capacity() - p.FreeCount()
}

// Each calls fn for every live slot in index order.
func (p *ResourcePool[T]) Each(fn func(index uint32, item *T)) {
	for i := range p.slots {
		if p.live[i] {
			fn(uint32(i), &p.slots[i])
		}
	}
}
