package store

import (
	"sync"
	"sync/atomic"
)

// Instruments is a copy-on-write registry of InstrumentRecords keyed by instrument id.
// Readers never block; writers serialize on a mutex and publish a new map.
type Instruments struct {
	mu   sync.Mutex
	recs atomic.Pointer[map[string]InstrumentRecord]
}

// NewInstruments creates a registry seeded with recs.
func NewInstruments(recs map[string]InstrumentRecord) *Instruments {
	in := &Instruments{}
	m := make(map[string]InstrumentRecord, len(recs))
	for id, rec := range recs {
		m[id] = rec
	}
	in.recs.Store(&m)
	return in
}

// Lookup returns the record for id.
func (in *Instruments) Lookup(id string) (InstrumentRecord, bool) {
	m := in.recs.Load()
	if m == nil {
		return InstrumentRecord{}, false
	}
	rec, ok := (*m)[id]
	return rec, ok
}

// Add inserts records whose ids are not yet present and returns how many were added.
// Existing records are never replaced.
func (in *Instruments) Add(recs map[string]InstrumentRecord) int {
	in.mu.Lock()
	defer in.mu.Unlock()

	cur := in.recs.Load()
	size := len(recs)
	if cur != nil {
		size += len(*cur)
	}
	next := make(map[string]InstrumentRecord, size)
	if cur != nil {
		for id, rec := range *cur {
			next[id] = rec
		}
	}

	added := 0
	for id, rec := range recs {
		if _, exists := next[id]; exists {
			continue
		}
		next[id] = rec
		added++
	}
	if added > 0 {
		in.recs.Store(&next)
	}
	return added
}

// Len returns the number of registered instruments.
func (in *Instruments) Len() int {
	m := in.recs.Load()
	if m == nil {
		return 0
	}
	return len(*m)
}
