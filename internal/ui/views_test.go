package ui

import (
	"context"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/polyinsider/spikewatch/internal/metrics"
	"github.com/polyinsider/spikewatch/internal/store"
)

func TestSignalAlerterView_NewestFirstAndCapped(t *testing.T) {
	v := NewSignalAlerterView()
	for i := 0; i < 60; i++ {
		v.AddAlert(store.SpikeAlert{ID: fmt.Sprintf("a%d", i), Question: "Q", Count: 4, AmountUSD: 12000})
	}
	if v.Len() != 50 {
		t.Errorf("Len = %d, want 50", v.Len())
	}
	if v.alerts[0].ID != "a59" {
		t.Errorf("first alert = %s, want newest a59", v.alerts[0].ID)
	}
	if v.list.GetItemCount() != 50 {
		t.Errorf("list items = %d, want 50", v.list.GetItemCount())
	}
}

func TestFormatAlert(t *testing.T) {
	mainText, secondary := formatAlert(store.SpikeAlert{
		Question:     "Will it rain?",
		Outcome:      "Yes",
		Price:        0.42,
		Count:        8,
		AmountUSD:    35000,
		InstrumentID: "123456789012345678901234",
		Timestamp:    time.Now(),
	})
	if !strings.Contains(mainText, "🚨🚨🚨") || !strings.Contains(mainText, "x8") || !strings.Contains(mainText, "[red]") {
		t.Errorf("main text = %q", mainText)
	}
	if !strings.Contains(secondary, "Buy Yes @ 0.42") || !strings.Contains(secondary, "$35000") {
		t.Errorf("secondary text = %q", secondary)
	}
}

func TestTruncateText(t *testing.T) {
	tests := []struct {
		in   string
		n    int
		want string
	}{
		{"short", 10, "short"},
		{"exactly10!", 10, "exactly10!"},
		{"this is too long", 10, "this is..."},
		{"héllo wörld", 8, "héllo..."},
		{"abcdef", 2, "ab"},
	}
	for _, tt := range tests {
		if got := truncateText(tt.in, tt.n); got != tt.want {
			t.Errorf("truncateText(%q, %d) = %q, want %q", tt.in, tt.n, got, tt.want)
		}
	}
}

func TestTableViews_Update(t *testing.T) {
	snap := metrics.MetricsSnapshot{
		LargeBuys: []metrics.LargeBuy{
			{InstrumentID: "a", Question: "QA", Outcome: "Yes", USDValue: 5000},
			{InstrumentID: "b", Question: "QB", Outcome: "No", USDValue: 15000},
		},
		HotInstruments: []metrics.InstrumentActivity{
			{InstrumentID: "a", Question: "QA", WindowCount: 3, Alerts: 0},
			{InstrumentID: "b", Question: "QB", WindowCount: 1, Alerts: 2},
		},
		Workers: []metrics.WorkerInfo{
			{ID: 1, State: "streaming", Assets: 3000},
			{ID: 2, State: "reconnecting", Assets: 1200},
		},
		WorkersConnected: 1,
	}

	trades := NewLiveTradesView()
	trades.Update(snap)
	if trades.Rows() != 2 {
		t.Errorf("large buy rows = %d, want 2", trades.Rows())
	}

	hot := NewMarketOverviewView(4)
	hot.Update(snap)
	if n := hot.table.GetRowCount(); n != 3 {
		t.Errorf("hot rows = %d, want 3 including header", n)
	}

	movers := NewTopMoversView()
	movers.Update(snap)
	if got := movers.table.GetCell(1, 1).Text; got != "2" {
		t.Errorf("top mover alerts = %q, want 2", got)
	}
	if n := movers.table.GetRowCount(); n != 2 {
		t.Errorf("mover rows = %d, want only instruments with alerts", n)
	}

	workers := NewWorkerPoolView()
	workers.Update(snap)
	if got := workers.table.GetCell(2, 1).Text; got != "reconnecting" {
		t.Errorf("worker state cell = %q", got)
	}

	stats := NewStatsDashboardView()
	stats.Update(snap)
	if text := stats.textView.GetText(true); !strings.Contains(text, "1/2 connected") {
		t.Errorf("stats text missing worker summary: %q", text)
	}
}

func TestApp_DeliverRespectsContext(t *testing.T) {
	a := NewApp(metrics.NewMetricsTracker(), time.Second, 4)

	for i := 0; i < alertBuffer; i++ {
		if err := a.Deliver(context.Background(), store.SpikeAlert{ID: "x"}); err != nil {
			t.Fatalf("Deliver %d: %v", i, err)
		}
	}

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	if err := a.Deliver(ctx, store.SpikeAlert{ID: "overflow"}); err == nil {
		t.Error("expected context error when the UI is not draining")
	}

	a.cancel()
	if err := a.Deliver(context.Background(), store.SpikeAlert{ID: "after-stop"}); err != nil {
		t.Errorf("Deliver after stop = %v, want nil", err)
	}
}

func TestFormatDuration(t *testing.T) {
	tests := []struct {
		d    time.Duration
		want string
	}{
		{30 * time.Second, "30s"},
		{5 * time.Minute, "5m"},
		{2*time.Hour + 15*time.Minute, "2h 15m"},
	}
	for _, tt := range tests {
		if got := formatDuration(tt.d); got != tt.want {
			t.Errorf("formatDuration(%v) = %q, want %q", tt.d, got, tt.want)
		}
	}
}
