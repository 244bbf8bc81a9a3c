package ui

import (
	"fmt"

	"github.com/gdamore/tcell/v2"
	"github.com/polyinsider/spikewatch/internal/metrics"
	"github.com/rivo/tview"
)

var workerHeaders = []string{"ID", "State", "Assets", "Retries", "Msgs", "Since"}

// WorkerPoolView lists connection workers and their state.
type WorkerPoolView struct {
	table *tview.Table
}

// NewWorkerPoolView creates a new worker pool view.
func NewWorkerPoolView() *WorkerPoolView {
	table := tview.NewTable().
		SetBorders(false).
		SetFixed(1, 0)

	table.SetTitle(" Workers ").SetBorder(true)
	setHeader(table, workerHeaders)

	return &WorkerPoolView{table: table}
}

// Widget returns the tview primitive.
func (v *WorkerPoolView) Widget() tview.Primitive {
	return v.table
}

// Update redraws one row per worker.
func (v *WorkerPoolView) Update(snapshot metrics.MetricsSnapshot) {
	v.table.Clear()
	setHeader(v.table, workerHeaders)

	for i, w := range snapshot.Workers {
		since := "-"
		if !w.ConnectedSince.IsZero() {
			since = formatTimeAgo(w.ConnectedSince)
		}
		cells := []*tview.TableCell{
			tview.NewTableCell(fmt.Sprintf("%d", w.ID)),
			tview.NewTableCell(w.State).SetTextColor(stateColor(w.State)),
			tview.NewTableCell(fmt.Sprintf("%d", w.Assets)).SetAlign(tview.AlignRight),
			tview.NewTableCell(fmt.Sprintf("%d", w.Attempts)).SetAlign(tview.AlignRight),
			tview.NewTableCell(fmt.Sprintf("%d", w.Messages)).SetAlign(tview.AlignRight),
			tview.NewTableCell(since),
		}
		for col, cell := range cells {
			v.table.SetCell(i+1, col, cell)
		}
	}

	v.table.SetTitle(fmt.Sprintf(" Workers (%d/%d) ", snapshot.WorkersConnected, len(snapshot.Workers)))
}

func stateColor(state string) tcell.Color {
	switch state {
	case "streaming":
		return tcell.ColorGreen
	case "subscribed", "connecting":
		return tcell.ColorYellow
	case "stopped":
		return tcell.ColorGray
	default:
		return tcell.ColorRed
	}
}
