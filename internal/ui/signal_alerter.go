package ui

import (
	"fmt"

	"github.com/gdamore/tcell/v2"
	"github.com/polyinsider/spikewatch/internal/notify"
	"github.com/polyinsider/spikewatch/internal/store"
	"github.com/rivo/tview"
)

// SignalAlerterView displays published spike alerts, newest first.
type SignalAlerterView struct {
	list     *tview.List
	alerts   []store.SpikeAlert
	maxItems int
}

// NewSignalAlerterView creates a new spike alert view.
func NewSignalAlerterView() *SignalAlerterView {
	list := tview.NewList().
		ShowSecondaryText(true)

	list.SetTitle(" 🚨 Volume Spikes ").SetBorder(true)
	list.SetMainTextColor(tcell.ColorWhite)
	list.SetSecondaryTextColor(tcell.ColorGray)

	v := &SignalAlerterView{
		list:     list,
		alerts:   make([]store.SpikeAlert, 0, 50),
		maxItems: 50,
	}
	v.rebuildList()
	return v
}

// Widget returns the tview primitive.
func (v *SignalAlerterView) Widget() tview.Primitive {
	return v.list
}

// AddAlert puts alert at the top of the list.
func (v *SignalAlerterView) AddAlert(alert store.SpikeAlert) {
	v.alerts = append([]store.SpikeAlert{alert}, v.alerts...)
	if len(v.alerts) > v.maxItems {
		v.alerts = v.alerts[:v.maxItems]
	}
	v.rebuildList()
}

// Refresh redraws the list.
func (v *SignalAlerterView) Refresh() {
	v.rebuildList()
}

// Len returns the number of alerts shown.
func (v *SignalAlerterView) Len() int {
	return len(v.alerts)
}

func (v *SignalAlerterView) rebuildList() {
	v.list.Clear()

	if len(v.alerts) == 0 {
		v.list.AddItem("No spikes detected yet", "", 0, nil)
		v.list.SetTitle(" 🚨 Volume Spikes ")
		return
	}

	for _, alert := range v.alerts {
		mainText, secondaryText := formatAlert(alert)
		v.list.AddItem(mainText, secondaryText, 0, nil)
	}

	v.list.SetTitle(fmt.Sprintf(" 🚨 Volume Spikes (%d) ", len(v.alerts)))
}

// formatAlert renders the two list lines for an alert.
func formatAlert(alert store.SpikeAlert) (string, string) {
	color := "white"
	switch {
	case alert.AmountUSD >= 30000:
		color = "red"
	case alert.AmountUSD >= 10000:
		color = "yellow"
	}

	mainText := fmt.Sprintf("%s %s [%s]%s[-] x%d",
		alert.Timestamp.Local().Format("15:04:05"),
		notify.StrengthEmoji(alert.AmountUSD),
		color,
		truncateText(alert.Question, 48),
		alert.Count,
	)
	secondaryText := fmt.Sprintf("Buy %s @ %.2f | $%.0f | %s",
		alert.Outcome, alert.Price, alert.AmountUSD, truncateText(alert.InstrumentID, 14))
	return mainText, secondaryText
}

// truncateText shortens s to n runes with an ellipsis.
func truncateText(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	if n <= 3 {
		return string(r[:n])
	}
	return string(r[:n-3]) + "..."
}
