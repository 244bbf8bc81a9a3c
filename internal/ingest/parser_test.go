package ingest

import (
	"testing"
)

func TestParseMessage_Valid(t *testing.T) {
	tests := []struct {
		name  string
		input string
		size  float64
		price float64
		side  string
	}{
		{
			name:  "string amounts",
			input: `{"event_type":"last_trade_price","asset_id":"123","size":"5000","price":"0.62","side":"BUY"}`,
			size:  5000, price: 0.62, side: "BUY",
		},
		{
			name:  "numeric amounts",
			input: `{"event_type":"last_trade_price","asset_id":"123","size":250.5,"price":0.4,"side":"SELL"}`,
			size:  250.5, price: 0.4, side: "SELL",
		},
		{
			name:  "lowercase side",
			input: `{"event_type":"last_trade_price","asset_id":"123","size":"10","price":"0.1","side":"buy"}`,
			size:  10, price: 0.1, side: "BUY",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			events := ParseMessage([]byte(tt.input))
			if len(events) != 1 {
				t.Fatalf("expected 1 event, got %d", len(events))
			}
			ev := events[0]
			if ev.InstrumentID != "123" {
				t.Errorf("InstrumentID = %q, want 123", ev.InstrumentID)
			}
			if ev.Size != tt.size || ev.Price != tt.price {
				t.Errorf("size/price = %v/%v, want %v/%v", ev.Size, ev.Price, tt.size, tt.price)
			}
			if ev.Side != tt.side {
				t.Errorf("Side = %q, want %q", ev.Side, tt.side)
			}
		})
	}
}

func TestParseMessage_Array(t *testing.T) {
	input := `[
		{"event_type":"last_trade_price","asset_id":"a","size":"1","price":"0.5","side":"BUY"},
		{"event_type":"price_change","asset_id":"a"},
		{"event_type":"last_trade_price","asset_id":"b","size":"2","price":"0.25","side":"SELL"}
	]`

	events := ParseMessage([]byte(input))
	if len(events) != 2 {
		t.Fatalf("expected 2 events, got %d", len(events))
	}
	if events[0].InstrumentID != "a" || events[1].InstrumentID != "b" {
		t.Errorf("unexpected order: %+v", events)
	}
	if events[1].USDValue() != 0.5 {
		t.Errorf("USDValue() = %v, want 0.5", events[1].USDValue())
	}
}

func TestParseMessage_Rejected(t *testing.T) {
	inputs := map[string]string{
		"pong":           `PONG`,
		"empty":          ``,
		"whitespace":     "   \n",
		"invalid json":   `{"event_type":`,
		"wrong type":     `{"event_type":"book","asset_id":"a","size":"1","price":"0.5","side":"BUY"}`,
		"missing asset":  `{"event_type":"last_trade_price","size":"1","price":"0.5","side":"BUY"}`,
		"zero size":      `{"event_type":"last_trade_price","asset_id":"a","size":"0","price":"0.5","side":"BUY"}`,
		"negative price": `{"event_type":"last_trade_price","asset_id":"a","size":"1","price":-0.5,"side":"BUY"}`,
		"text size":      `{"event_type":"last_trade_price","asset_id":"a","size":"lots","price":"0.5","side":"BUY"}`,
		"null price":     `{"event_type":"last_trade_price","asset_id":"a","size":"1","price":null,"side":"BUY"}`,
		"missing side":   `{"event_type":"last_trade_price","asset_id":"a","size":"1","price":"0.5"}`,
		"bare number":    `42`,
	}

	for name, input := range inputs {
		t.Run(name, func(t *testing.T) {
			if events := ParseMessage([]byte(input)); len(events) != 0 {
				t.Errorf("expected no events, got %+v", events)
			}
		})
	}
}

func TestParseMessage_Idempotent(t *testing.T) {
	inputs := []string{
		`garbage`,
		`{"event_type":"last_trade_price","asset_id":"a","size":"1","price":"0.5","side":"BUY"}`,
		`[{"event_type":"last_trade_price"}]`,
	}

	for _, input := range inputs {
		first := ParseMessage([]byte(input))
		second := ParseMessage([]byte(input))
		if len(first) != len(second) {
			t.Errorf("ParseMessage(%q) not repeatable: %d vs %d events", input, len(first), len(second))
		}
	}
}
