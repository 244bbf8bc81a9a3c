package ingest

import (
	"testing"
	"time"
)

func TestReconnectDelay(t *testing.T) {
	base := 5 * time.Second
	tests := []struct {
		attempts int
		want     time.Duration
	}{
		{-1, 5 * time.Second},
		{0, 5 * time.Second},
		{1, 10 * time.Second},
		{2, 20 * time.Second},
		{3, 40 * time.Second},
		{5, 160 * time.Second},
		{6, 160 * time.Second},   // capped at 2^5
		{100, 160 * time.Second}, // still capped
	}

	for _, tt := range tests {
		if got := ReconnectDelay(base, tt.attempts, 5); got != tt.want {
			t.Errorf("ReconnectDelay(%s, %d, 5) = %s, want %s", base, tt.attempts, got, tt.want)
		}
	}
}

func TestReconnectDelay_NonDecreasing(t *testing.T) {
	prev := time.Duration(0)
	for attempts := 0; attempts < 20; attempts++ {
		d := ReconnectDelay(time.Second, attempts, 5)
		if d < prev {
			t.Fatalf("delay decreased at attempt %d: %s < %s", attempts, d, prev)
		}
		if d > 32*time.Second {
			t.Fatalf("delay %s exceeds cap at attempt %d", d, attempts)
		}
		prev = d
	}
}

func TestCatalogBackoff(t *testing.T) {
	tests := []struct {
		attempt int
		want    time.Duration
	}{
		{0, 1 * time.Second},
		{1, 2 * time.Second},
		{3, 8 * time.Second},
		{4, 10 * time.Second},
		{40, 10 * time.Second},
	}
	for _, tt := range tests {
		if got := catalogBackoff(tt.attempt); got != tt.want {
			t.Errorf("catalogBackoff(%d) = %s, want %s", tt.attempt, got, tt.want)
		}
	}
}
