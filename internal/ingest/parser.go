// Package ingest handles the Polymarket market channel: catalog loading,
// connection workers, the worker pool and message parsing.
package ingest

import (
	"bytes"
	"encoding/json"
	"log/slog"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/polyinsider/spikewatch/internal/store"
)

// EventTypeLastTrade is the only market channel event that carries an execution.
const EventTypeLastTrade = "last_trade_price"

// LastTradePriceEvent is the last_trade_price payload from the market channel.
// Size and Price arrive either as JSON numbers or as numeric strings.
type LastTradePriceEvent struct {
	EventType string          `json:"event_type"`
	AssetID   string          `json:"asset_id"`
	Market    string          `json:"market"`
	Price     json.RawMessage `json:"price"`
	Size      json.RawMessage `json:"size"`
	Side      string          `json:"side"`
	Timestamp string          `json:"timestamp"`
}

// ParseMessage decodes one websocket frame into zero or more trade events.
// The frame may be a single object or an array of objects. Frames that are
// not JSON (PONG, empty) and objects that fail validation yield nothing.
// Returned events have no ObservedAt or WorkerID; the caller stamps them.
func ParseMessage(data []byte) []store.TradeEvent {
	data = bytes.TrimSpace(data)
	if len(data) == 0 {
		return nil
	}

	switch data[0] {
	case '[':
		var raws []json.RawMessage
		if err := json.Unmarshal(data, &raws); err != nil {
			slog.Debug("ws_parse_error", "error", err)
			return nil
		}
		var events []store.TradeEvent
		for _, raw := range raws {
			if ev, ok := parseObject(raw); ok {
				events = append(events, ev)
			}
		}
		return events
	case '{':
		if ev, ok := parseObject(data); ok {
			return []store.TradeEvent{ev}
		}
		return nil
	default:
		return nil
	}
}

// parseObject validates a single event object.
func parseObject(raw json.RawMessage) (store.TradeEvent, bool) {
	var msg LastTradePriceEvent
	if err := json.Unmarshal(raw, &msg); err != nil {
		slog.Debug("ws_parse_error", "error", err)
		return store.TradeEvent{}, false
	}

	if msg.EventType != EventTypeLastTrade {
		return store.TradeEvent{}, false
	}
	if msg.AssetID == "" {
		slog.Debug("trade_rejected", "reason", "missing asset_id")
		return store.TradeEvent{}, false
	}

	size, ok := parseAmount(msg.Size)
	if !ok {
		slog.Debug("trade_rejected", "reason", "invalid size", "asset_id", msg.AssetID)
		return store.TradeEvent{}, false
	}
	price, ok := parseAmount(msg.Price)
	if !ok {
		slog.Debug("trade_rejected", "reason", "invalid price", "asset_id", msg.AssetID)
		return store.TradeEvent{}, false
	}

	side := strings.ToUpper(strings.TrimSpace(msg.Side))
	if side == "" {
		slog.Debug("trade_rejected", "reason", "missing side", "asset_id", msg.AssetID)
		return store.TradeEvent{}, false
	}

	return store.TradeEvent{
		InstrumentID: msg.AssetID,
		Size:         size,
		Price:        price,
		Side:         side,
	}, true
}

// parseAmount accepts a JSON number or a numeric string and requires a strictly positive value.
func parseAmount(raw json.RawMessage) (float64, bool) {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || bytes.Equal(raw, []byte("null")) {
		return 0, false
	}

	text := string(raw)
	if raw[0] == '"' {
		var s string
		if err := json.Unmarshal(raw, &s); err != nil {
			return 0, false
		}
		text = strings.TrimSpace(s)
	}

	d, err := decimal.NewFromString(text)
	if err != nil || !d.IsPositive() {
		return 0, false
	}
	f, _ := d.Float64()
	return f, true
}
