package ingest

import (
	"context"
	"errors"
	"log/slog"
	"sort"
	"sync"
	"time"
)

// Conn is the part of a connection worker the pool depends on.
type Conn interface {
	ID() int
	Len() int
	AddAssets(ids []string) error
	Start(ctx context.Context)
	Stop()
	Status() WorkerStatus
}

// Factory creates the worker for a chunk. Ids are assigned sequentially by the pool.
type Factory func(id int, chunk []string) Conn

// NewWorkerFactory returns a Factory producing websocket workers that feed out.
func NewWorkerFactory(out EventQueue, cfg WorkerConfig) Factory {
	return func(id int, chunk []string) Conn {
		return NewWorker(id, chunk, out, cfg)
	}
}

// RebalanceResult reports where new ids went.
type RebalanceResult struct {
	Assigned   int
	Spawned    int
	NewWorkers int
}

// Partition splits ids into contiguous chunks of at most size.
func Partition(ids []string, size int) [][]string {
	if size < 1 || len(ids) == 0 {
		return nil
	}
	chunks := make([][]string, 0, (len(ids)+size-1)/size)
	for start := 0; start < len(ids); start += size {
		end := start + size
		if end > len(ids) {
			end = len(ids)
		}
		chunks = append(chunks, ids[start:end:end])
	}
	return chunks
}

// Pool manages the set of connection workers.
type Pool struct {
	factory   Factory
	chunkSize int
	stagger   time.Duration
	log       *slog.Logger

	mu      sync.Mutex
	workers []Conn
	nextID  int
}

// NewPool creates a pool that caps each worker at chunkSize instruments.
func NewPool(factory Factory, chunkSize int, stagger time.Duration, logger *slog.Logger) *Pool {
	if logger == nil {
		logger = slog.Default()
	}
	return &Pool{
		factory:   factory,
		chunkSize: chunkSize,
		stagger:   stagger,
		log:       logger,
	}
}

// Start partitions ids and spawns one worker per chunk.
func (p *Pool) Start(ctx context.Context, ids []string) int {
	chunks := Partition(ids, p.chunkSize)
	n := p.spawn(ctx, chunks)
	p.log.Info("pool_started", "workers", n, "assets", len(ids), "chunk_size", p.chunkSize)
	return n
}

// Rebalance places newIDs into spare capacity of existing workers, largest
// spare first, and spawns workers for whatever does not fit.
func (p *Pool) Rebalance(ctx context.Context, newIDs []string) RebalanceResult {
	var res RebalanceResult
	if len(newIDs) == 0 {
		return res
	}

	type slot struct {
		w     Conn
		spare int
	}

	p.mu.Lock()
	slots := make([]slot, 0, len(p.workers))
	for _, w := range p.workers {
		if spare := p.chunkSize - w.Len(); spare > 0 {
			slots = append(slots, slot{w: w, spare: spare})
		}
	}
	p.mu.Unlock()

	sort.SliceStable(slots, func(i, j int) bool {
		if slots[i].spare != slots[j].spare {
			return slots[i].spare > slots[j].spare
		}
		return slots[i].w.ID() < slots[j].w.ID()
	})

	remaining := newIDs
	var rejected []string
	for _, s := range slots {
		if len(remaining) == 0 {
			break
		}
		take := s.spare
		if take > len(remaining) {
			take = len(remaining)
		}
		batch := remaining[:take:take]
		remaining = remaining[take:]

		err := s.w.AddAssets(batch)
		if errors.Is(err, ErrWorkerStopped) {
			rejected = append(rejected, batch...)
			continue
		}
		if err != nil {
			// The ids are recorded on the worker and resubscribed on reconnect
			p.log.Error("pool_assign_failed", "worker_id", s.w.ID(), "count", len(batch), "error", err)
		}
		res.Assigned += len(batch)
		p.log.Info("pool_assets_assigned", "worker_id", s.w.ID(), "count", len(batch))
	}
	if len(rejected) > 0 {
		remaining = append(rejected, remaining...)
	}

	if len(remaining) > 0 {
		res.NewWorkers = p.spawn(ctx, Partition(remaining, p.chunkSize))
		res.Spawned = len(remaining)
	}

	p.log.Info("pool_rebalanced", "assigned", res.Assigned, "spawned", res.Spawned, "new_workers", res.NewWorkers)
	return res
}

// spawn creates and starts one worker per chunk, staggering the starts.
func (p *Pool) spawn(ctx context.Context, chunks [][]string) int {
	started := 0
	for i, chunk := range chunks {
		if i > 0 && p.stagger > 0 {
			timer := time.NewTimer(p.stagger)
			select {
			case <-ctx.Done():
				timer.Stop()
				return started
			case <-timer.C:
			}
		}
		if ctx.Err() != nil {
			return started
		}

		p.mu.Lock()
		p.nextID++
		w := p.factory(p.nextID, chunk)
		p.workers = append(p.workers, w)
		p.mu.Unlock()

		w.Start(ctx)
		started++
	}
	return started
}

// Stop stops every worker and waits for them.
func (p *Pool) Stop() {
	p.mu.Lock()
	workers := append([]Conn(nil), p.workers...)
	p.mu.Unlock()

	var wg sync.WaitGroup
	for _, w := range workers {
		wg.Add(1)
		go func(w Conn) {
			defer wg.Done()
			w.Stop()
		}(w)
	}
	wg.Wait()
	p.log.Info("pool_stopped", "workers", len(workers))
}

// Statuses returns a status per worker in id order.
func (p *Pool) Statuses() []WorkerStatus {
	p.mu.Lock()
	workers := append([]Conn(nil), p.workers...)
	p.mu.Unlock()

	out := make([]WorkerStatus, 0, len(workers))
	for _, w := range workers {
		out = append(out, w.Status())
	}
	return out
}

// Size returns the number of workers.
func (p *Pool) Size() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.workers)
}
