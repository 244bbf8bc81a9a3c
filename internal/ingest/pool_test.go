package ingest

import (
	"context"
	"fmt"
	"sync"
	"testing"
)

// fakeConn records pool interactions without a network.
type fakeConn struct {
	mu      sync.Mutex
	id      int
	assets  []string
	adds    [][]string
	started bool
	stopped bool
}

func (f *fakeConn) ID() int { return f.id }

func (f *fakeConn) Len() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.assets)
}

func (f *fakeConn) AddAssets(ids []string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.stopped {
		return ErrWorkerStopped
	}
	f.assets = append(f.assets, ids...)
	f.adds = append(f.adds, append([]string(nil), ids...))
	return nil
}

func (f *fakeConn) Start(ctx context.Context) { f.started = true }

func (f *fakeConn) Stop() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.stopped = true
}

func (f *fakeConn) Status() WorkerStatus {
	return WorkerStatus{ID: f.id, State: StateStreaming, Assets: f.Len()}
}

type fakeFactory struct {
	mu    sync.Mutex
	conns []*fakeConn
}

func (ff *fakeFactory) New(id int, chunk []string) Conn {
	ff.mu.Lock()
	defer ff.mu.Unlock()
	c := &fakeConn{id: id, assets: append([]string(nil), chunk...)}
	ff.conns = append(ff.conns, c)
	return c
}

func ids(prefix string, n int) []string {
	out := make([]string, n)
	for i := range out {
		out[i] = fmt.Sprintf("%s%d", prefix, i)
	}
	return out
}

func TestPartition(t *testing.T) {
	tests := []struct {
		n, max int
		sizes  []int
	}{
		{0, 3, nil},
		{3, 3, []int{3}},
		{7, 3, []int{3, 3, 1}},
		{2, 5, []int{2}},
		{4, 0, nil},
	}

	for _, tt := range tests {
		chunks := Partition(ids("x", tt.n), tt.max)
		if len(chunks) != len(tt.sizes) {
			t.Errorf("Partition(%d, %d) gave %d chunks, want %d", tt.n, tt.max, len(chunks), len(tt.sizes))
			continue
		}
		for i, c := range chunks {
			if len(c) != tt.sizes[i] {
				t.Errorf("Partition(%d, %d) chunk %d size %d, want %d", tt.n, tt.max, i, len(c), tt.sizes[i])
			}
		}
	}

	// Appending to a chunk must not clobber the next one
	src := ids("y", 4)
	chunks := Partition(src, 2)
	_ = append(chunks[0], "z")
	if chunks[1][0] != "y2" {
		t.Errorf("chunk aliasing: %v", chunks[1])
	}
}

func TestPool_Start(t *testing.T) {
	ff := &fakeFactory{}
	p := NewPool(ff.New, 3, 0, nil)

	n := p.Start(context.Background(), ids("a", 7))
	if n != 3 {
		t.Fatalf("started %d workers, want 3", n)
	}
	for i, c := range ff.conns {
		if c.id != i+1 {
			t.Errorf("worker %d has id %d, want sequential", i, c.id)
		}
		if !c.started {
			t.Errorf("worker %d not started", c.id)
		}
	}
}

func TestPool_RebalanceFillsLargestSpareFirst(t *testing.T) {
	// Capacity 10 with occupancy [5, 8, 10]: spare [5, 2, 0]
	ff := &fakeFactory{}
	p := NewPool(ff.New, 10, 0, nil)
	p.mu.Lock()
	for i, occ := range []int{5, 8, 10} {
		p.nextID++
		p.workers = append(p.workers, ff.New(i+1, ids(fmt.Sprintf("w%d-", i+1), occ)))
	}
	p.mu.Unlock()

	res := p.Rebalance(context.Background(), ids("new", 12))

	if res.Assigned != 7 {
		t.Errorf("Assigned = %d, want 7", res.Assigned)
	}
	if res.Spawned != 5 || res.NewWorkers != 1 {
		t.Errorf("Spawned/NewWorkers = %d/%d, want 5/1", res.Spawned, res.NewWorkers)
	}

	w1, w2, w3 := ff.conns[0], ff.conns[1], ff.conns[2]
	if len(w1.adds) != 1 || len(w1.adds[0]) != 5 || w1.adds[0][0] != "new0" {
		t.Errorf("worker 1 adds = %v, want one batch new0..new4", w1.adds)
	}
	if len(w2.adds) != 1 || len(w2.adds[0]) != 2 || w2.adds[0][0] != "new5" {
		t.Errorf("worker 2 adds = %v, want one batch new5..new6", w2.adds)
	}
	if len(w3.adds) != 0 {
		t.Errorf("full worker received %v", w3.adds)
	}

	if len(ff.conns) != 4 {
		t.Fatalf("expected 4 workers, got %d", len(ff.conns))
	}
	w4 := ff.conns[3]
	if w4.id != 4 || w4.Len() != 5 || w4.assets[0] != "new7" {
		t.Errorf("new worker = id %d assets %v", w4.id, w4.assets)
	}
	if p.Size() != 4 {
		t.Errorf("Size() = %d, want 4", p.Size())
	}
}

func TestPool_RebalanceReroutesStoppedWorker(t *testing.T) {
	ff := &fakeFactory{}
	p := NewPool(ff.New, 10, 0, nil)
	p.mu.Lock()
	p.nextID = 1
	dead := ff.New(1, ids("old", 2))
	p.workers = append(p.workers, dead)
	p.mu.Unlock()
	dead.Stop()

	res := p.Rebalance(context.Background(), ids("new", 4))

	if res.Assigned != 0 || res.Spawned != 4 || res.NewWorkers != 1 {
		t.Errorf("result = %+v, want all 4 spawned on one worker", res)
	}
	if len(ff.conns) != 2 || ff.conns[1].Len() != 4 {
		t.Fatalf("expected a new worker holding 4 ids, got %d workers", len(ff.conns))
	}
	if ff.conns[1].assets[0] != "new0" {
		t.Errorf("rerouted order = %v", ff.conns[1].assets)
	}
}

func TestPool_RebalanceTieBreaksOnID(t *testing.T) {
	ff := &fakeFactory{}
	p := NewPool(ff.New, 4, 0, nil)
	p.Start(context.Background(), ids("a", 6)) // [4, 2]
	p.Rebalance(context.Background(), ids("b", 2))
	p.Rebalance(context.Background(), ids("c", 3)) // spare [0, 0] -> spawn

	if got := len(ff.conns[1].adds); got != 1 {
		t.Errorf("worker 2 add calls = %d, want 1", got)
	}

	// Equal spare: lower id fills first
	ff2 := &fakeFactory{}
	p2 := NewPool(ff2.New, 5, 0, nil)
	p2.mu.Lock()
	for i := 1; i <= 2; i++ {
		p2.nextID++
		p2.workers = append(p2.workers, ff2.New(i, ids(fmt.Sprintf("w%d-", i), 2)))
	}
	p2.mu.Unlock()

	p2.Rebalance(context.Background(), ids("z", 3))
	if n := len(ff2.conns[0].adds); n != 1 {
		t.Errorf("worker 1 should take the batch, got %d adds", n)
	}
	if n := len(ff2.conns[1].adds); n != 0 {
		t.Errorf("worker 2 should be untouched, got %d adds", n)
	}
}

func TestPool_StopAndStatuses(t *testing.T) {
	ff := &fakeFactory{}
	p := NewPool(ff.New, 2, 0, nil)
	p.Start(context.Background(), ids("a", 3))

	st := p.Statuses()
	if len(st) != 2 || st[0].ID != 1 || st[1].Assets != 1 {
		t.Errorf("unexpected statuses: %+v", st)
	}

	p.Stop()
	for _, c := range ff.conns {
		if !c.stopped {
			t.Errorf("worker %d not stopped", c.id)
		}
	}
}

func TestPool_SpawnHonoursCancel(t *testing.T) {
	ff := &fakeFactory{}
	p := NewPool(ff.New, 1, 0, nil)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if n := p.Start(ctx, ids("a", 3)); n != 0 {
		t.Errorf("started %d workers after cancel, want 0", n)
	}
}
