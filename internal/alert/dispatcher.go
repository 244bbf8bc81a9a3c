// Package alert fans spike alerts out to independent delivery sinks.
package alert

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/polyinsider/spikewatch/internal/store"
)

// Defaults used when the dispatcher is built with zero values.
const (
	DefaultBuffer  = 256
	DefaultTimeout = 10 * time.Second
)

// Sink delivers alerts to one destination.
type Sink interface {
	Name() string
	Deliver(ctx context.Context, alert store.SpikeAlert) error
}

type sinkWorker struct {
	sink      Sink
	ch        chan store.SpikeAlert
	delivered atomic.Int64
	failed    atomic.Int64
	dropped   atomic.Int64
}

// SinkStats counts outcomes for one sink.
type SinkStats struct {
	Name      string
	Delivered int64
	Failed    int64
	Dropped   int64
}

// Dispatcher gives every sink its own buffer and goroutine so a slow sink
// cannot hold up the engine or the other sinks.
type Dispatcher struct {
	workers []*sinkWorker
	timeout time.Duration
	log     *slog.Logger

	mu      sync.RWMutex
	closed  bool
	started bool
	wg      sync.WaitGroup
}

// NewDispatcher creates a dispatcher for sinks.
func NewDispatcher(sinks []Sink, buffer int, timeout time.Duration, logger *slog.Logger) *Dispatcher {
	if buffer <= 0 {
		buffer = DefaultBuffer
	}
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	if logger == nil {
		logger = slog.Default()
	}
	d := &Dispatcher{timeout: timeout, log: logger}
	for _, s := range sinks {
		d.workers = append(d.workers, &sinkWorker{
			sink: s,
			ch:   make(chan store.SpikeAlert, buffer),
		})
	}
	return d
}

// Start launches one consumer per sink. Calling it twice is a no-op.
func (d *Dispatcher) Start() {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.started || d.closed {
		return
	}
	d.started = true
	for _, w := range d.workers {
		d.wg.Add(1)
		go d.consume(w)
	}
	d.log.Info("dispatcher_started", "sinks", len(d.workers))
}

// Publish enqueues alert for every sink without blocking. A sink whose
// buffer is full loses this alert.
func (d *Dispatcher) Publish(alert store.SpikeAlert) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	if d.closed {
		return
	}
	for _, w := range d.workers {
		select {
		case w.ch <- alert:
		default:
			w.dropped.Add(1)
			d.log.Warn("sink_buffer_full",
				"sink", w.sink.Name(),
				"alert_id", alert.ID,
				"dropped", w.dropped.Load(),
			)
		}
	}
}

// Close stops accepting alerts, lets each sink drain its buffer and waits.
func (d *Dispatcher) Close() {
	d.mu.Lock()
	if d.closed {
		d.mu.Unlock()
		return
	}
	d.closed = true
	for _, w := range d.workers {
		close(w.ch)
	}
	started := d.started
	d.mu.Unlock()

	if started {
		d.wg.Wait()
	}
	d.log.Info("dispatcher_stopped")
}

// Stats returns per-sink counters.
func (d *Dispatcher) Stats() []SinkStats {
	stats := make([]SinkStats, 0, len(d.workers))
	for _, w := range d.workers {
		stats = append(stats, SinkStats{
			Name:      w.sink.Name(),
			Delivered: w.delivered.Load(),
			Failed:    w.failed.Load(),
			Dropped:   w.dropped.Load(),
		})
	}
	return stats
}

func (d *Dispatcher) consume(w *sinkWorker) {
	defer d.wg.Done()
	for alert := range w.ch {
		d.deliver(w, alert)
	}
}

func (d *Dispatcher) deliver(w *sinkWorker, alert store.SpikeAlert) {
	ctx, cancel := context.WithTimeout(context.Background(), d.timeout)
	defer cancel()

	defer func() {
		if r := recover(); r != nil {
			w.failed.Add(1)
			d.log.Error("sink_panic", "sink", w.sink.Name(), "alert_id", alert.ID, "panic", r)
		}
	}()

	if err := w.sink.Deliver(ctx, alert); err != nil {
		w.failed.Add(1)
		d.log.Error("sink_delivery_failed", "sink", w.sink.Name(), "alert_id", alert.ID, "error", err)
		return
	}
	w.delivered.Add(1)
}
