package ui

import (
	"fmt"
	"sort"

	"github.com/gdamore/tcell/v2"
	"github.com/polyinsider/spikewatch/internal/metrics"
	"github.com/rivo/tview"
)

var moverHeaders = []string{"Market", "Alerts", "Window", "Volume"}

// TopMoversView ranks instruments by alerts fired in the last hour.
type TopMoversView struct {
	table *tview.Table
}

// NewTopMoversView creates a new top movers view.
func NewTopMoversView() *TopMoversView {
	table := tview.NewTable().
		SetBorders(false).
		SetFixed(1, 0)

	table.SetTitle(" Top Movers ").SetBorder(true)
	setHeader(table, moverHeaders)

	return &TopMoversView{
		table: table,
	}
}

// Widget returns the tview primitive.
func (v *TopMoversView) Widget() tview.Primitive {
	return v.table
}

// Update refreshes the top movers display.
func (v *TopMoversView) Update(snapshot metrics.MetricsSnapshot) {
	v.table.Clear()
	setHeader(v.table, moverHeaders)

	movers := make([]metrics.InstrumentActivity, 0, len(snapshot.HotInstruments))
	for _, act := range snapshot.HotInstruments {
		if act.Alerts > 0 {
			movers = append(movers, act)
		}
	}
	sort.SliceStable(movers, func(i, j int) bool {
		if movers[i].Alerts != movers[j].Alerts {
			return movers[i].Alerts > movers[j].Alerts
		}
		return movers[i].WindowUSD > movers[j].WindowUSD
	})

	if len(movers) == 0 {
		cell := tview.NewTableCell("No alerts yet...").
			SetAlign(tview.AlignCenter).
			SetExpansion(1)
		v.table.SetCell(1, 0, cell)
		return
	}

	if len(movers) > 10 {
		movers = movers[:10]
	}
	for i, m := range movers {
		row := i + 1

		v.table.SetCell(row, 0, tview.NewTableCell(truncateText(m.Question+" "+m.Outcome, 28)).SetExpansion(1))
		v.table.SetCell(row, 1, tview.NewTableCell(fmt.Sprintf("%d", m.Alerts)).
			SetAlign(tview.AlignRight).
			SetTextColor(tcell.ColorRed))
		v.table.SetCell(row, 2, tview.NewTableCell(fmt.Sprintf("%d", m.WindowCount)).SetAlign(tview.AlignRight))
		v.table.SetCell(row, 3, tview.NewTableCell(fmt.Sprintf("$%.0f", m.WindowUSD)).SetAlign(tview.AlignRight))
	}
}
