package ui

import (
	"fmt"
	"time"

	"github.com/polyinsider/spikewatch/internal/metrics"
	"github.com/rivo/tview"
)

// StatsDashboardView displays pipeline health and throughput.
type StatsDashboardView struct {
	textView *tview.TextView
}

// NewStatsDashboardView creates a new stats dashboard view.
func NewStatsDashboardView() *StatsDashboardView {
	textView := tview.NewTextView().
		SetDynamicColors(true).
		SetScrollable(false)

	textView.SetTitle(" Stats Dashboard ").SetBorder(true)

	return &StatsDashboardView{
		textView: textView,
	}
}

// Widget returns the tview primitive.
func (v *StatsDashboardView) Widget() tview.Primitive {
	return v.textView
}

// Update refreshes the stats display.
func (v *StatsDashboardView) Update(snapshot metrics.MetricsSnapshot) {
	v.textView.Clear()

	wsColor := "green"
	switch {
	case snapshot.WorkersConnected == 0:
		wsColor = "red"
	case snapshot.WorkersConnected < len(snapshot.Workers):
		wsColor = "yellow"
	}

	queuePct := 0.0
	if snapshot.QueueCap > 0 {
		queuePct = float64(snapshot.QueueLen) / float64(snapshot.QueueCap) * 100
	}
	queueColor := "white"
	if queuePct >= 80 {
		queueColor = "red"
	}

	fmt.Fprintf(v.textView, `[yellow]System Status[-]
Uptime: %s
Workers: [%s]%d/%d connected[-]
Instruments: %d
Catalog refresh: %s

[yellow]Event Stats[-]
Processed: %d
Rate: %.2f events/sec
Qualifying buys: %d
Unknown assets: %d

[yellow]Spikes[-]
Alerts: %d
Suppressed: %d
Active counters: %d

[yellow]Queue[-]
Depth: [%s]%d/%d (%.1f%%)[-]
Dropped: %d
`,
		formatDuration(snapshot.Uptime),
		wsColor, snapshot.WorkersConnected, len(snapshot.Workers),
		snapshot.Instruments,
		formatTimeAgo(snapshot.LastRefresh),
		snapshot.EventsProcessed,
		snapshot.EventRate,
		snapshot.QualifyingBuys,
		snapshot.UnknownAssets,
		snapshot.Alerts,
		snapshot.Suppressed,
		snapshot.ActiveCounters,
		queueColor, snapshot.QueueLen, snapshot.QueueCap, queuePct,
		snapshot.QueueDropped,
	)
}

// formatDuration formats a duration in human-readable form.
func formatDuration(d time.Duration) string {
	if d < time.Minute {
		return fmt.Sprintf("%.0fs", d.Seconds())
	}
	if d < time.Hour {
		return fmt.Sprintf("%.0fm", d.Minutes())
	}
	hours := int(d.Hours())
	minutes := int(d.Minutes()) % 60
	return fmt.Sprintf("%dh %dm", hours, minutes)
}

// formatTimeAgo formats a time as "X ago".
func formatTimeAgo(t time.Time) string {
	if t.IsZero() {
		return "never"
	}

	elapsed := time.Since(t)
	switch {
	case elapsed < time.Minute:
		return fmt.Sprintf("%.0fs ago", elapsed.Seconds())
	case elapsed < time.Hour:
		return fmt.Sprintf("%.0fm ago", elapsed.Minutes())
	case elapsed < 24*time.Hour:
		return fmt.Sprintf("%.0fh ago", elapsed.Hours())
	}
	return fmt.Sprintf("%.0fd ago", elapsed.Hours()/24)
}
