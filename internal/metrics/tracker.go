// Package metrics provides real-time metrics tracking for the pipeline.
package metrics

import (
	"sort"
	"sync"
	"time"
)

const (
	// rateWindow is the span used for events/sec
	rateWindow = 60

	// maxLargeBuys caps the recent qualifying buys kept for display
	maxLargeBuys = 200

	// activityTTL drops instruments with no qualifying buys for this long
	activityTTL = 60 * time.Minute
)

// LargeBuy is a qualifying BUY seen by the engine.
type LargeBuy struct {
	InstrumentID string
	Question     string
	Outcome      string
	Price        float64
	USDValue     float64
	WorkerID     int
	Timestamp    time.Time
}

// InstrumentActivity tracks window totals for one instrument.
type InstrumentActivity struct {
	InstrumentID string
	Question     string
	Outcome      string
	WindowCount  int
	WindowUSD    float64
	LastPrice    float64
	Alerts       int
	LastUpdate   time.Time
}

// WorkerInfo is the display form of a connection worker status.
type WorkerInfo struct {
	ID             int
	State          string
	Assets         int
	Attempts       int
	ConnectedSince time.Time
	Messages       int64
}

// MetricsSnapshot is a point-in-time view of metrics.
type MetricsSnapshot struct {
	EventsProcessed  int64
	QualifyingBuys   int64
	Alerts           int64
	Suppressed       int64
	UnknownAssets    int64
	EventRate        float64 // events per second
	ActiveCounters   int
	Instruments      int
	QueueLen         int
	QueueCap         int
	QueueDropped     int64
	Workers          []WorkerInfo
	WorkersConnected int
	LargeBuys        []LargeBuy
	HotInstruments   []InstrumentActivity
	Uptime           time.Duration
	LastRefresh      time.Time
}

// MetricsTracker provides thread-safe metrics tracking.
type MetricsTracker struct {
	mu              sync.RWMutex
	now             func() time.Time
	eventsProcessed int64
	qualifyingBuys  int64
	alerts          int64
	suppressed      int64
	unknownAssets   int64
	buckets         [rateWindow]int64 // events per second, ring indexed by unix second
	bucketSec       [rateWindow]int64
	activeCounters  int
	instruments     int
	queueLen        int
	queueCap        int
	queueDropped    int64
	workers         []WorkerInfo
	largeBuys       []LargeBuy
	activity        map[string]*InstrumentActivity
	startTime       time.Time
	lastRefresh     time.Time
}

// NewMetricsTracker creates a new MetricsTracker.
func NewMetricsTracker() *MetricsTracker {
	return NewMetricsTrackerWithClock(time.Now)
}

// NewMetricsTrackerWithClock creates a tracker reading time from now.
func NewMetricsTrackerWithClock(now func() time.Time) *MetricsTracker {
	return &MetricsTracker{
		now:       now,
		largeBuys: make([]LargeBuy, 0, maxLargeBuys),
		activity:  make(map[string]*InstrumentActivity),
		startTime: now(),
	}
}

// IncrementEvents counts one processed event.
func (m *MetricsTracker) IncrementEvents() {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.eventsProcessed++
	sec := m.now().Unix()
	idx := sec % rateWindow
	if m.bucketSec[idx] != sec {
		m.bucketSec[idx] = sec
		m.buckets[idx] = 0
	}
	m.buckets[idx]++
}

// IncrementUnknown counts an event for an instrument missing from the registry.
func (m *MetricsTracker) IncrementUnknown() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.unknownAssets++
}

// IncrementSuppressed counts an alert dropped by the price ceiling.
func (m *MetricsTracker) IncrementSuppressed() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.suppressed++
}

// RecordQualifyingBuy records a BUY that entered a window and the window totals after it.
func (m *MetricsTracker) RecordQualifyingBuy(buy LargeBuy, windowCount int, windowUSD float64) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.qualifyingBuys++

	if len(m.largeBuys) >= maxLargeBuys {
		copy(m.largeBuys, m.largeBuys[1:])
		m.largeBuys = m.largeBuys[:len(m.largeBuys)-1]
	}
	m.largeBuys = append(m.largeBuys, buy)

	act, exists := m.activity[buy.InstrumentID]
	if !exists {
		act = &InstrumentActivity{
			InstrumentID: buy.InstrumentID,
			Question:     buy.Question,
			Outcome:      buy.Outcome,
		}
		m.activity[buy.InstrumentID] = act
	}
	act.WindowCount = windowCount
	act.WindowUSD = windowUSD
	act.LastPrice = buy.Price
	act.LastUpdate = buy.Timestamp
}

// IncrementAlert counts a published alert for instrumentID.
func (m *MetricsTracker) IncrementAlert(instrumentID string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.alerts++
	if act, ok := m.activity[instrumentID]; ok {
		act.Alerts++
	}
}

// SetActiveCounters sets the number of live spike counters.
func (m *MetricsTracker) SetActiveCounters(n int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.activeCounters = n
}

// SetInstruments sets the registry size.
func (m *MetricsTracker) SetInstruments(n int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.instruments = n
}

// SetQueue sets the event queue usage.
func (m *MetricsTracker) SetQueue(used, capacity int, dropped int64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.queueLen = used
	m.queueCap = capacity
	m.queueDropped = dropped
}

// SetWorkers replaces the worker status list.
func (m *MetricsTracker) SetWorkers(workers []WorkerInfo) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.workers = append(m.workers[:0], workers...)
}

// SetLastRefresh records the last catalog refresh time.
func (m *MetricsTracker) SetLastRefresh(t time.Time) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.lastRefresh = t
}

// Snapshot returns a point-in-time snapshot of metrics.
func (m *MetricsTracker) Snapshot() MetricsSnapshot {
	m.mu.RLock()
	defer m.mu.RUnlock()

	now := m.now()

	// Events per second over the last full rateWindow seconds
	var windowEvents int64
	sec := now.Unix()
	for i := 0; i < rateWindow; i++ {
		if sec-m.bucketSec[i] < rateWindow {
			windowEvents += m.buckets[i]
		}
	}
	span := now.Sub(m.startTime).Seconds()
	if span > rateWindow {
		span = rateWindow
	}
	rate := 0.0
	if span >= 1 {
		rate = float64(windowEvents) / span
	}

	workers := append([]WorkerInfo(nil), m.workers...)
	connected := 0
	for _, w := range workers {
		if w.State == "streaming" || w.State == "subscribed" {
			connected++
		}
	}

	// Newest first
	buys := make([]LargeBuy, len(m.largeBuys))
	for i, b := range m.largeBuys {
		buys[len(buys)-1-i] = b
	}

	return MetricsSnapshot{
		EventsProcessed:  m.eventsProcessed,
		QualifyingBuys:   m.qualifyingBuys,
		Alerts:           m.alerts,
		Suppressed:       m.suppressed,
		UnknownAssets:    m.unknownAssets,
		EventRate:        rate,
		ActiveCounters:   m.activeCounters,
		Instruments:      m.instruments,
		QueueLen:         m.queueLen,
		QueueCap:         m.queueCap,
		QueueDropped:     m.queueDropped,
		Workers:          workers,
		WorkersConnected: connected,
		LargeBuys:        buys,
		HotInstruments:   m.hotInstruments(),
		Uptime:           now.Sub(m.startTime),
		LastRefresh:      m.lastRefresh,
	}
}

// hotInstruments ranks instruments by window count, then window USD.
// Must be called with lock held.
func (m *MetricsTracker) hotInstruments() []InstrumentActivity {
	hot := make([]InstrumentActivity, 0, len(m.activity))
	for _, act := range m.activity {
		hot = append(hot, *act)
	}
	sort.Slice(hot, func(i, j int) bool {
		if hot[i].WindowCount != hot[j].WindowCount {
			return hot[i].WindowCount > hot[j].WindowCount
		}
		if hot[i].WindowUSD != hot[j].WindowUSD {
			return hot[i].WindowUSD > hot[j].WindowUSD
		}
		return hot[i].InstrumentID < hot[j].InstrumentID
	})
	return hot
}

// Cleanup removes stale instrument activity from the tracker.
func (m *MetricsTracker) Cleanup() {
	m.mu.Lock()
	defer m.mu.Unlock()

	cutoff := m.now().Add(-activityTTL)
	for id, act := range m.activity {
		if act.LastUpdate.Before(cutoff) {
			delete(m.activity, id)
		}
	}
}
