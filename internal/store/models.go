// Package store provides data models, the instrument registry and signal persistence.
package store

import (
	"time"

	"github.com/google/uuid"
)

// Trade sides as sent by the CLOB market channel.
const (
	SideBuy  = "BUY"
	SideSell = "SELL"
)

// SignalSpike is the type tag carried by every volume-spike alert.
const SignalSpike = "spike"

// InstrumentRecord describes one outcome token of a market.
// Built once per catalog load and never mutated afterwards.
type InstrumentRecord struct {
	// InstrumentID is the CLOB token id (asset_id on the wire)
	InstrumentID string

	// MarketID is the owning market's condition id
	MarketID string

	// Question is the market question text
	Question string

	Slug      string
	EventSlug string

	// Outcomes and Prices are parallel lists as published by the catalog
	Outcomes []string
	Prices   []float64

	// OutcomeIndex is the position of this token within Outcomes
	OutcomeIndex int
}

// Outcome returns the label this instrument represents, or "" if the index is out of range.
func (r InstrumentRecord) Outcome() string {
	if r.OutcomeIndex < 0 || r.OutcomeIndex >= len(r.Outcomes) {
		return ""
	}
	return r.Outcomes[r.OutcomeIndex]
}

// TradeEvent is a single parsed last-trade message.
type TradeEvent struct {
	InstrumentID string
	Size         float64
	Price        float64

	// Side is BUY or SELL
	Side string

	// ObservedAt is the ingestion clock reading, not exchange time
	ObservedAt time.Time

	// WorkerID is the connection worker that received the message
	WorkerID int
}

// USDValue is size × price.
func (e TradeEvent) USDValue() float64 {
	return e.Size * e.Price
}

// SpikeAlert is emitted once per threshold crossing.
type SpikeAlert struct {
	ID           string    `json:"id"`
	MarketID     string    `json:"market_id"`
	Question     string    `json:"question"`
	Outcome      string    `json:"outcome"`
	Price        float64   `json:"price"`
	InstrumentID string    `json:"asset_id"`
	EventSlug    string    `json:"event_slug"`
	Count        int       `json:"count"`
	AmountUSD    float64   `json:"amount_usd"`
	Type         string    `json:"type"`
	Timestamp    time.Time `json:"timestamp"`
}

// NewSpikeAlert builds an alert for rec from the window totals.
func NewSpikeAlert(rec InstrumentRecord, price float64, count int, amountUSD float64, at time.Time) SpikeAlert {
	return SpikeAlert{
		ID:           uuid.NewString(),
		MarketID:     rec.MarketID,
		Question:     rec.Question,
		Outcome:      rec.Outcome(),
		Price:        price,
		InstrumentID: rec.InstrumentID,
		EventSlug:    rec.EventSlug,
		Count:        count,
		AmountUSD:    amountUSD,
		Type:         SignalSpike,
		Timestamp:    at,
	}
}
