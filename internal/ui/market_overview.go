package ui

import (
	"fmt"

	"github.com/gdamore/tcell/v2"
	"github.com/polyinsider/spikewatch/internal/metrics"
	"github.com/rivo/tview"
)

var hotHeaders = []string{"Market", "Outcome", "Window", "Volume", "Price", "Updated"}

// MarketOverviewView shows instruments with the most qualifying buys in their window.
type MarketOverviewView struct {
	table     *tview.Table
	limit     int
	threshold int
}

// NewMarketOverviewView creates a new hot-instrument view. threshold colors
// instruments close to firing.
func NewMarketOverviewView(threshold int) *MarketOverviewView {
	table := tview.NewTable().
		SetBorders(false).
		SetFixed(1, 0)

	table.SetTitle(" Hot Instruments ").SetBorder(true)
	setHeader(table, hotHeaders)

	return &MarketOverviewView{
		table:     table,
		limit:     10,
		threshold: threshold,
	}
}

// Widget returns the tview primitive.
func (v *MarketOverviewView) Widget() tview.Primitive {
	return v.table
}

// Update refreshes the view. HotInstruments arrive already ranked.
func (v *MarketOverviewView) Update(snapshot metrics.MetricsSnapshot) {
	v.table.Clear()
	setHeader(v.table, hotHeaders)

	hot := snapshot.HotInstruments
	if len(hot) > v.limit {
		hot = hot[:v.limit]
	}

	for i, act := range hot {
		countColor := tcell.ColorWhite
		if v.threshold > 0 && act.WindowCount >= v.threshold-1 {
			countColor = tcell.ColorRed
		}

		cells := []*tview.TableCell{
			tview.NewTableCell(truncateText(act.Question, 30)).SetExpansion(1),
			tview.NewTableCell(act.Outcome),
			tview.NewTableCell(fmt.Sprintf("%d", act.WindowCount)).SetAlign(tview.AlignRight).SetTextColor(countColor),
			tview.NewTableCell(fmt.Sprintf("$%.0f", act.WindowUSD)).SetAlign(tview.AlignRight),
			tview.NewTableCell(fmt.Sprintf("%.3f", act.LastPrice)).SetAlign(tview.AlignRight),
			tview.NewTableCell(formatTimeAgo(act.LastUpdate)),
		}
		for col, cell := range cells {
			v.table.SetCell(i+1, col, cell)
		}
	}

	v.table.SetTitle(fmt.Sprintf(" Hot Instruments (%d active) ", len(snapshot.HotInstruments)))
}
