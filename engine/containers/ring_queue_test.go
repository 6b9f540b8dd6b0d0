package containers

import "testing"

func TestRingQueue(t *testing.T) {
	rq := NewRingQueue[int](3)
	if _, err := rq.Dequeue(); err != ErrQueueEmpty {
		t.Fatalf("dequeue on empty = %v", err)
	}
	for i := 1; i <= 3; i++ {
		if err := rq.Enqueue(i); err != nil {
			t.Fatalf("enqueue %d: %v", i, err)
		}
	}
	if err := rq.Enqueue(4); err != ErrQueueFull {
		t.Errorf("enqueue on full = %v", err)
	}

	rq.Push(4)
	if front, _ := rq.Peek(); front != 2 {
		t.Errorf("push should drop the oldest, front = %d", front)
	}
	if newest, _ := rq.Newest(); newest != 4 {
		t.Errorf("newest = %d, want 4", newest)
	}
	for _, want := range []int{2, 3, 4} {
		got, err := rq.Dequeue()
		if err != nil || got != want {
			t.Errorf("dequeue = %d, %v, want %d", got, err, want)
		}
	}
	if !rq.IsEmpty() || rq.Len() != 0 {
		t.Error("queue should be empty")
	}
}
