package containers

import "testing"

type slot struct {
	name string
	size uint32
}

func TestResourcePoolExhaustion(t *testing.T) {
	pool := NewResourcePool[slot](4, "test")

	seen := map[uint32]bool{}
	for i := 0; i < 4; i++ {
		index := pool.Obtain()
		if index == INVALID_INDEX {
			t.Fatalf("obtain %d returned the invalid index", i)
		}
		if index >= pool.Capacity() {
			t.Fatalf("obtain returned %d beyond capacity", index)
		}
		if seen[index] {
			t.Fatalf("index %d handed out twice", index)
		}
		seen[index] = true
	}

	if index := pool.Obtain(); index != INVALID_INDEX {
		t.Errorf("fifth obtain = %d, want INVALID_INDEX", index)
	}
	if pool.FreeCount() != 0 || pool.UsedCount() != 4 {
		t.Errorf("free=%d used=%d", pool.FreeCount(), pool.UsedCount())
	}
}

func TestResourcePoolUniqueLiveIndices(t *testing.T) {
	pool := NewResourcePool[slot](8, "test")
	live := map[uint32]bool{}

	// Interleave obtains and releases, live indices must never collide.
	ops := []bool{true, true, true, false, true, false, false, true, true, true, true, false, true}
	var held []uint32
	for step, obtain := range ops {
		if obtain {
			index := pool.Obtain()
			if index == INVALID_INDEX {
				t.Fatalf("step %d: unexpected exhaustion", step)
			}
			if live[index] {
				t.Fatalf("step %d: index %d is already live", step, index)
			}
			live[index] = true
			held = append(held, index)
			continue
		}
		index := held[0]
		held = held[1:]
		if !pool.Release(index) {
			t.Fatalf("step %d: release of %d failed", step, index)
		}
		delete(live, index)
	}
	if pool.UsedCount() != uint32(len(live)) {
		t.Errorf("used count %d, live %d", pool.UsedCount(), len(live))
	}
}

func TestResourcePoolReleaseMisuse(t *testing.T) {
	pool := NewResourcePool[slot](2, "test")
	index := pool.Obtain()

	if !pool.Release(index) {
		t.Fatal("first release should succeed")
	}
	if pool.Release(index) {
		t.Error("double release should be rejected")
	}
	if pool.Release(17) {
		t.Error("out of range release should be rejected")
	}
	if pool.FreeCount() != 2 {
		t.Errorf("free count = %d, want 2", pool.FreeCount())
	}
}

func TestResourcePoolAccess(t *testing.T) {
	pool := NewResourcePool[slot](2, "test")
	index := pool.Obtain()

	item := pool.Access(index)
	if item == nil {
		t.Fatal("access to a live index returned nil")
	}
	item.name = "vertex buffer"
	if pool.Access(index).name != "vertex buffer" {
		t.Error("access should return a pointer into the slot")
	}
	if pool.Access(INVALID_INDEX) != nil {
		t.Error("invalid index access should return nil")
	}
	if pool.Access(2) != nil {
		t.Error("out of range access should return nil")
	}

	// A reobtained slot starts zeroed.
	pool.Release(index)
	again := pool.Obtain()
	if again != index {
		t.Fatalf("expected the released index %d back, got %d", index, again)
	}
	if pool.Access(again).name != "" {
		t.Error("reobtained slot should be zeroed")
	}
}

func TestResourcePoolReleaseAll(t *testing.T) {
	pool := NewResourcePool[slot](3, "test")
	pool.Obtain()
	pool.Obtain()

	count := 0
	pool.Each(func(uint32, *slot) { count++ })
	if count != 2 {
		t.Errorf("each visited %d slots, want 2", count)
	}

	pool.ReleaseAll()
	if pool.FreeCount() != 3 {
		t.Errorf("free count = %d after ReleaseAll", pool.FreeCount())
	}
}
