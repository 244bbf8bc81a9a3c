package queue

import (
	"sync"
	"testing"
)

func TestQueue_FIFO(t *testing.T) {
	q := New[int](4)
	for i := 1; i <= 3; i++ {
		if !q.Push(i) {
			t.Fatalf("Push(%d) returned false", i)
		}
	}

	for want := 1; want <= 3; want++ {
		got, ok := q.TryPop()
		if !ok || got != want {
			t.Errorf("TryPop() = %d, %v; want %d, true", got, ok, want)
		}
	}

	if _, ok := q.TryPop(); ok {
		t.Error("expected empty queue")
	}
}

func TestQueue_DropOldest(t *testing.T) {
	q := New[int](3)
	for i := 1; i <= 5; i++ {
		q.Push(i)
	}

	if q.Len() != 3 {
		t.Errorf("Len() = %d, want 3", q.Len())
	}
	if q.Dropped() != 2 {
		t.Errorf("Dropped() = %d, want 2", q.Dropped())
	}

	var got []int
	for {
		v, ok := q.TryPop()
		if !ok {
			break
		}
		got = append(got, v)
	}
	want := []int{3, 4, 5}
	if len(got) != len(want) {
		t.Fatalf("got %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("got %v, want %v", got, want)
			break
		}
	}
}

func TestQueue_Close(t *testing.T) {
	q := New[string](2)
	q.Push("a")
	q.Close()

	if q.Push("b") {
		t.Error("Push after Close should return false")
	}
	if v, ok := q.TryPop(); !ok || v != "a" {
		t.Errorf("TryPop() = %q, %v; want buffered item", v, ok)
	}
}

func TestQueue_ConcurrentProducers(t *testing.T) {
	q := New[int](100000)

	var wg sync.WaitGroup
	for p := 0; p < 8; p++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := 0; i < 1000; i++ {
				q.Push(i)
			}
		}()
	}
	wg.Wait()

	pushed, _ := q.Stats()
	if pushed != 8000 {
		t.Errorf("pushed = %d, want 8000", pushed)
	}
	if q.Len() != 8000 {
		t.Errorf("Len() = %d, want 8000", q.Len())
	}
	if q.Cap() != 100000 {
		t.Errorf("Cap() = %d, want 100000", q.Cap())
	}
}
