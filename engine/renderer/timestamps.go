package renderer

import (
	"github.com/spaghettifunk/anima-gpu/engine/containers"
	"github.com/spaghettifunk/anima-gpu/engine/core"
	"github.com/spaghettifunk/anima-gpu/engine/renderer/metadata"
)

// Number of resolved frames kept for inspection.
const GPU_TIMESTAMP_HISTORY = 16

type timestampScope struct {
	name   string
	depth  uint32
	query  uint32
	closed bool
}

// timestampQueries tracks the scopes written into the timestamp pool of one command pool.
// Scope i uses queries 2i and 2i+1.
type timestampQueries struct {
	scopes []timestampScope
	stack  []int
}

func (q *timestampQueries) push(name string) (uint32, bool) {
	if uint32(len(q.scopes)) >= metadata.GPU_TIME_QUERIES_PER_FRAME {
		core.LogWarn("too many gpu timestamps this frame, dropping %s", name)
		return 0, false
	}
	query := uint32(len(q.scopes)) * 2
	q.scopes = append(q.scopes, timestampScope{name: name, depth: uint32(len(q.stack)), query: query})
	q.stack = append(q.stack, len(q.scopes)-1)
	return query, true
}

func (q *timestampQueries) pop() (uint32, bool) {
	if len(q.stack) == 0 {
		core.LogWarn("gpu timestamp pop without a matching push")
		return 0, false
	}
	top := q.stack[len(q.stack)-1]
	q.stack = q.stack[:len(q.stack)-1]
	q.scopes[top].closed = true
	return q.scopes[top].query + 1, true
}

func (q *timestampQueries) reset() {
	q.scopes = q.scopes[:0]
	q.stack = q.stack[:0]
}

type timestampManager struct {
	pools   []timestampQueries
	period  float32
	history *containers.RingQueue[[]metadata.GPUTimestamp]
}

func newTimestampManager(numPools uint32, period float32) *timestampManager {
	return &timestampManager{
		pools:   make([]timestampQueries, numPools),
		period:  period,
		history: containers.NewRingQueue[[]metadata.GPUTimestamp](GPU_TIMESTAMP_HISTORY),
	}
}

// resolve reads back the scopes recorded in pools and clears them. It returns the
// time spent in top level scopes.
func (m *timestampManager) resolve(backend GPUBackend, pools []uint32, frame uint64) float64 {
	var resolved []metadata.GPUTimestamp
	total := 0.0
	for _, pool := range pools {
		queries := &m.pools[pool]
		if len(queries.scopes) == 0 {
			continue
		}
		if len(queries.stack) != 0 {
			core.LogWarn("%d gpu timestamps still open in pool %d, skipping", len(queries.stack), pool)
			queries.reset()
			continue
		}
		ticks, err := backend.GetTimestampResults(pool, uint32(len(queries.scopes))*2)
		if err != nil {
			core.LogWarn("failed to read gpu timestamps of pool %d: %s", pool, err)
			queries.reset()
			continue
		}
		for _, scope := range queries.scopes {
			start, end := ticks[scope.query], ticks[scope.query+1]
			elapsed := 0.0
			if end > start {
				elapsed = float64(end-start) * float64(m.period) / 1e6
			}
			resolved = append(resolved, metadata.GPUTimestamp{
				Name:      scope.name,
				Depth:     scope.depth,
				Frame:     frame,
				Start:     start,
				End:       end,
				ElapsedMS: elapsed,
			})
			if scope.depth == 0 {
				total += elapsed
			}
		}
		queries.reset()
	}
	if len(resolved) > 0 {
		m.history.Push(resolved)
	}
	return total
}

func (m *timestampManager) latest() []metadata.GPUTimestamp {
	timestamps, err := m.history.Newest()
	if err != nil {
		return nil
	}
	return timestamps
}
