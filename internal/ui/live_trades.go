package ui

import (
	"fmt"

	"github.com/gdamore/tcell/v2"
	"github.com/polyinsider/spikewatch/internal/metrics"
	"github.com/rivo/tview"
)

var largeBuyHeaders = []string{"Time", "Market", "Outcome", "Price", "Value", "Worker"}

// LiveTradesView is a scrolling feed of the qualifying buys feeding the counters.
type LiveTradesView struct {
	table   *tview.Table
	maxRows int
}

// NewLiveTradesView creates a new large-buy feed.
func NewLiveTradesView() *LiveTradesView {
	table := tview.NewTable().
		SetBorders(false).
		SetFixed(1, 0)

	table.SetTitle(" Large Buys ").SetBorder(true)
	setHeader(table, largeBuyHeaders)

	return &LiveTradesView{
		table:   table,
		maxRows: 100,
	}
}

// Widget returns the tview primitive.
func (v *LiveTradesView) Widget() tview.Primitive {
	return v.table
}

// Update redraws the feed from the snapshot's newest-first buys.
func (v *LiveTradesView) Update(snapshot metrics.MetricsSnapshot) {
	v.table.Clear()
	setHeader(v.table, largeBuyHeaders)

	buys := snapshot.LargeBuys
	if len(buys) > v.maxRows {
		buys = buys[:v.maxRows]
	}

	for i, buy := range buys {
		valueColor := tcell.ColorWhite
		if buy.USDValue >= 10000 {
			valueColor = tcell.ColorYellow
		}

		cells := []*tview.TableCell{
			tview.NewTableCell(buy.Timestamp.Local().Format("15:04:05")),
			tview.NewTableCell(truncateText(buy.Question, 40)).SetExpansion(1),
			tview.NewTableCell(buy.Outcome),
			tview.NewTableCell(fmt.Sprintf("%.3f", buy.Price)).SetAlign(tview.AlignRight),
			tview.NewTableCell(fmt.Sprintf("$%.0f", buy.USDValue)).SetAlign(tview.AlignRight).SetTextColor(valueColor),
			tview.NewTableCell(fmt.Sprintf("#%d", buy.WorkerID)).SetAlign(tview.AlignRight),
		}
		for col, cell := range cells {
			v.table.SetCell(i+1, col, cell)
		}
	}

	v.table.SetTitle(fmt.Sprintf(" Large Buys (%d) ", snapshot.QualifyingBuys))
}

// Rows returns the number of data rows shown.
func (v *LiveTradesView) Rows() int {
	return v.table.GetRowCount() - 1
}

// setHeader writes the header row of a table.
func setHeader(table *tview.Table, headers []string) {
	for col, header := range headers {
		cell := tview.NewTableCell(header).
			SetTextColor(tview.Styles.SecondaryTextColor).
			SetAlign(tview.AlignLeft).
			SetSelectable(false)
		table.SetCell(0, col, cell)
	}
}
