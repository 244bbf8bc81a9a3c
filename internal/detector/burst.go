package detector

import "time"

// buyMark is one qualifying buy inside a window.
type buyMark struct {
	at    time.Time
	usd   float64
	price float64
}

// AssetCounter tracks qualifying buys for one instrument within a sliding window.
// Owned by the engine goroutine; not safe for concurrent use.
type AssetCounter struct {
	buys           []buyMark
	lastAlertCount int
	lastActivity   time.Time
}

// Record appends a buy observed at at.
func (c *AssetCounter) Record(at time.Time, usd, price float64, now time.Time) {
	c.buys = append(c.buys, buyMark{at: at, usd: usd, price: price})
	c.lastActivity = now
}

// Prune drops buys older than window relative to now. If the count falls
// from at least threshold to below it, the alert level resets.
func (c *AssetCounter) Prune(now time.Time, window time.Duration, threshold int) {
	before := len(c.buys)

	cut := 0
	for cut < len(c.buys) && now.Sub(c.buys[cut].at) > window {
		cut++
	}
	if cut > 0 {
		// Shift down so the backing array does not grow without bound
		n := copy(c.buys, c.buys[cut:])
		for i := n; i < len(c.buys); i++ {
			c.buys[i] = buyMark{}
		}
		c.buys = c.buys[:n]
	}

	if before >= threshold && len(c.buys) < threshold {
		c.lastAlertCount = 0
	}
}

// CheckSpike reports whether the current count crosses a new multiple of
// threshold, and records it as alerted if so.
func (c *AssetCounter) CheckSpike(threshold int) bool {
	count := len(c.buys)
	if count >= threshold && count > c.lastAlertCount && count%threshold == 0 {
		c.lastAlertCount = count
		return true
	}
	return false
}

// Count returns the number of buys in the window.
func (c *AssetCounter) Count() int {
	return len(c.buys)
}

// AmountUSD sums the USD value of buys in the window.
func (c *AssetCounter) AmountUSD() float64 {
	total := 0.0
	for _, b := range c.buys {
		total += b.usd
	}
	return total
}

// LastPrice returns the price of the most recent buy.
func (c *AssetCounter) LastPrice() float64 {
	if len(c.buys) == 0 {
		return 0
	}
	return c.buys[len(c.buys)-1].price
}

// LastAlertCount returns the count at the most recent alert.
func (c *AssetCounter) LastAlertCount() int {
	return c.lastAlertCount
}

// Stale reports whether the counter is empty and idle for longer than after.
func (c *AssetCounter) Stale(now time.Time, after time.Duration) bool {
	return len(c.buys) == 0 && now.Sub(c.lastActivity) > after
}
