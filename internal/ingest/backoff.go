package ingest

import "time"

// maxShift keeps 1<<n inside int64 range for any sane base.
const maxShift = 30

// ReconnectDelay returns base × 2^min(attempts, capExponent).
// Negative attempts are treated as zero.
func ReconnectDelay(base time.Duration, attempts, capExponent int) time.Duration {
	if attempts < 0 {
		attempts = 0
	}
	if capExponent < 0 {
		capExponent = 0
	}
	n := attempts
	if n > capExponent {
		n = capExponent
	}
	if n > maxShift {
		n = maxShift
	}
	return base * time.Duration(1<<n)
}

// catalogBackoff is the page retry delay: min(10s, 1s × 2^attempt).
func catalogBackoff(attempt int) time.Duration {
	const maxDelay = 10 * time.Second
	d := ReconnectDelay(time.Second, attempt, maxShift)
	if d > maxDelay {
		return maxDelay
	}
	return d
}
