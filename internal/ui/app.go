// Package ui provides terminal user interface components.
package ui

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/gdamore/tcell/v2"
	"github.com/polyinsider/spikewatch/internal/metrics"
	"github.com/polyinsider/spikewatch/internal/store"
	"github.com/rivo/tview"
)

const alertBuffer = 64

// App is the main TUI application. It also acts as an alert sink.
type App struct {
	app    *tview.Application
	layout *tview.Flex

	// Views
	marketOverview *MarketOverviewView
	signalAlerter  *SignalAlerterView
	liveTrades     *LiveTradesView
	statsDashboard *StatsDashboardView
	topMovers      *TopMoversView
	workerPool     *WorkerPoolView

	// Data sources
	alerts         chan store.SpikeAlert
	metricsTracker *metrics.MetricsTracker
	refreshRate    time.Duration

	onQuit   func()
	stopOnce sync.Once
	ctx      context.Context
	cancel   context.CancelFunc
}

// NewApp creates a new TUI application. threshold highlights instruments
// one buy short of firing.
func NewApp(tracker *metrics.MetricsTracker, refreshRate time.Duration, threshold int) *App {
	ctx, cancel := context.WithCancel(context.Background())
	if refreshRate <= 0 {
		refreshRate = 500 * time.Millisecond
	}

	app := &App{
		app:            tview.NewApplication(),
		alerts:         make(chan store.SpikeAlert, alertBuffer),
		metricsTracker: tracker,
		refreshRate:    refreshRate,
		ctx:            ctx,
		cancel:         cancel,
	}

	app.marketOverview = NewMarketOverviewView(threshold)
	app.signalAlerter = NewSignalAlerterView()
	app.liveTrades = NewLiveTradesView()
	app.statsDashboard = NewStatsDashboardView()
	app.topMovers = NewTopMoversView()
	app.workerPool = NewWorkerPoolView()

	app.setupLayout()
	app.setupKeyboard()

	return app
}

// SetOnQuit registers fn to run when the user quits from the keyboard.
func (a *App) SetOnQuit(fn func()) {
	a.onQuit = fn
}

// setupLayout creates the 6-panel layout.
func (a *App) setupLayout() {
	// Top row: Hot Instruments (left) | Spike Alerts (right)
	topRow := tview.NewFlex().
		AddItem(a.marketOverview.Widget(), 0, 1, false).
		AddItem(a.signalAlerter.Widget(), 0, 1, false)

	// Middle row: Large Buys (full width)
	middleRow := a.liveTrades.Widget()

	// Bottom row: Stats | Top Movers | Workers
	bottomRow := tview.NewFlex().
		AddItem(a.statsDashboard.Widget(), 0, 1, false).
		AddItem(a.topMovers.Widget(), 0, 1, false).
		AddItem(a.workerPool.Widget(), 0, 1, false)

	a.layout = tview.NewFlex().SetDirection(tview.FlexRow).
		AddItem(topRow, 0, 2, false).
		AddItem(middleRow, 0, 2, false).
		AddItem(bottomRow, 0, 2, false)

	a.app.SetRoot(a.layout, true)
}

// setupKeyboard configures keyboard shortcuts.
func (a *App) setupKeyboard() {
	a.app.SetInputCapture(func(event *tcell.EventKey) *tcell.EventKey {
		switch event.Key() {
		case tcell.KeyCtrlC:
			a.quit()
			return nil
		case tcell.KeyRune:
			switch event.Rune() {
			case 'q', 'Q':
				a.quit()
				return nil
			case 'r', 'R':
				a.refresh()
				return nil
			}
		}
		return event
	})
}

// Run starts the TUI application (blocking).
func (a *App) Run() error {
	go a.processAlerts()
	go a.updateLoop()

	if err := a.app.Run(); err != nil {
		return fmt.Errorf("app run failed: %w", err)
	}
	return nil
}

// Stop gracefully stops the application.
func (a *App) Stop() {
	a.stopOnce.Do(func() {
		a.cancel()
		a.app.Stop()
	})
}

func (a *App) quit() {
	a.Stop()
	if a.onQuit != nil {
		a.onQuit()
	}
}

// Name implements alert.Sink.
func (a *App) Name() string { return "tui" }

// Deliver hands alert to the alert panel.
func (a *App) Deliver(ctx context.Context, alert store.SpikeAlert) error {
	select {
	case a.alerts <- alert:
		return nil
	case <-a.ctx.Done():
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// processAlerts moves delivered alerts onto the UI goroutine.
func (a *App) processAlerts() {
	for {
		select {
		case <-a.ctx.Done():
			return
		case alert := <-a.alerts:
			a.app.QueueUpdateDraw(func() {
				a.signalAlerter.AddAlert(alert)
			})
		}
	}
}

// updateLoop periodically refreshes views with metrics data.
func (a *App) updateLoop() {
	ticker := time.NewTicker(a.refreshRate)
	defer ticker.Stop()

	for {
		select {
		case <-a.ctx.Done():
			return
		case <-ticker.C:
			snapshot := a.metricsTracker.Snapshot()
			a.app.QueueUpdateDraw(func() {
				a.update(snapshot)
			})
		}
	}
}

// refresh manually refreshes all views.
func (a *App) refresh() {
	snapshot := a.metricsTracker.Snapshot()
	a.app.QueueUpdateDraw(func() {
		a.update(snapshot)
		a.signalAlerter.Refresh()
	})
}

func (a *App) update(snapshot metrics.MetricsSnapshot) {
	a.marketOverview.Update(snapshot)
	a.liveTrades.Update(snapshot)
	a.statsDashboard.Update(snapshot)
	a.topMovers.Update(snapshot)
	a.workerPool.Update(snapshot)
}
