package metrics

import (
	"testing"
	"time"
)

type fakeClock struct{ t time.Time }

func (c *fakeClock) Now() time.Time          { return c.t }
func (c *fakeClock) Advance(d time.Duration) { c.t = c.t.Add(d) }

func TestMetricsTracker_EventRate(t *testing.T) {
	clock := &fakeClock{t: time.Unix(1_700_000_000, 0)}
	m := NewMetricsTrackerWithClock(clock.Now)

	for s := 0; s < 10; s++ {
		for i := 0; i < 5; i++ {
			m.IncrementEvents()
		}
		clock.Advance(time.Second)
	}

	snap := m.Snapshot()
	if snap.EventsProcessed != 50 {
		t.Errorf("EventsProcessed = %d, want 50", snap.EventsProcessed)
	}
	if snap.EventRate != 5 {
		t.Errorf("EventRate = %v, want 5", snap.EventRate)
	}

	// Old buckets age out of the window
	clock.Advance(2 * time.Minute)
	if rate := m.Snapshot().EventRate; rate != 0 {
		t.Errorf("EventRate after idle = %v, want 0", rate)
	}
}

func TestMetricsTracker_QualifyingBuysAndAlerts(t *testing.T) {
	clock := &fakeClock{t: time.Unix(1_700_000_000, 0)}
	m := NewMetricsTrackerWithClock(clock.Now)

	m.RecordQualifyingBuy(LargeBuy{InstrumentID: "a", Question: "QA", USDValue: 3000, Timestamp: clock.Now()}, 1, 3000)
	m.RecordQualifyingBuy(LargeBuy{InstrumentID: "b", Question: "QB", USDValue: 5000, Timestamp: clock.Now()}, 1, 5000)
	m.RecordQualifyingBuy(LargeBuy{InstrumentID: "a", Question: "QA", USDValue: 4000, Timestamp: clock.Now()}, 2, 7000)
	m.IncrementAlert("a")
	m.IncrementSuppressed()
	m.IncrementUnknown()

	snap := m.Snapshot()
	if snap.QualifyingBuys != 3 || snap.Alerts != 1 || snap.Suppressed != 1 || snap.UnknownAssets != 1 {
		t.Errorf("unexpected counters: %+v", snap)
	}
	if len(snap.LargeBuys) != 3 || snap.LargeBuys[0].USDValue != 4000 {
		t.Errorf("large buys should be newest first: %+v", snap.LargeBuys)
	}
	if len(snap.HotInstruments) != 2 || snap.HotInstruments[0].InstrumentID != "a" {
		t.Fatalf("hot instruments = %+v", snap.HotInstruments)
	}
	if snap.HotInstruments[0].Alerts != 1 || snap.HotInstruments[0].WindowUSD != 7000 {
		t.Errorf("unexpected activity for a: %+v", snap.HotInstruments[0])
	}

	clock.Advance(2 * time.Hour)
	m.Cleanup()
	if n := len(m.Snapshot().HotInstruments); n != 0 {
		t.Errorf("expected stale activity removed, got %d", n)
	}
}

func TestMetricsTracker_LargeBuysCapped(t *testing.T) {
	m := NewMetricsTracker()
	for i := 0; i < maxLargeBuys+25; i++ {
		m.RecordQualifyingBuy(LargeBuy{InstrumentID: "x", USDValue: float64(i)}, 1, 0)
	}
	snap := m.Snapshot()
	if len(snap.LargeBuys) != maxLargeBuys {
		t.Errorf("len(LargeBuys) = %d, want %d", len(snap.LargeBuys), maxLargeBuys)
	}
	if snap.LargeBuys[0].USDValue != float64(maxLargeBuys+24) {
		t.Errorf("newest buy = %v", snap.LargeBuys[0].USDValue)
	}
}

func TestMetricsTracker_Workers(t *testing.T) {
	m := NewMetricsTracker()
	m.SetWorkers([]WorkerInfo{
		{ID: 1, State: "streaming"},
		{ID: 2, State: "reconnecting"},
		{ID: 3, State: "subscribed"},
	})
	m.SetQueue(10, 100, 3)

	snap := m.Snapshot()
	if snap.WorkersConnected != 2 {
		t.Errorf("WorkersConnected = %d, want 2", snap.WorkersConnected)
	}
	if snap.QueueLen != 10 || snap.QueueCap != 100 || snap.QueueDropped != 3 {
		t.Errorf("unexpected queue stats: %+v", snap)
	}
}
