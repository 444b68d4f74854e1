// Package wind turns anemometer pulses into a wind speed.
package wind

import (
	"time"

	"go.uber.org/atomic"
)

// MetresPerPulse converts pulses per second into m/s for the cup anemometer.
const MetresPerPulse = 0.0875

// Counter accumulates anemometer pulses. Inc is safe to call from an edge
// handler concurrently with Drain; it never blocks.
type Counter struct {
	n atomic.Uint64
}

func (c *Counter) Inc() {
	c.n.Inc()
}

// Pending returns the pulses counted since the last drain.
func (c *Counter) Pending() uint64 {
	return c.n.Load()
}

// Drain returns the counted pulses and zeroes the counter in one step.
// Pulses that land after the swap are kept for the next drain.
func (c *Counter) Drain() uint64 {
	return c.n.Swap(0)
}

// Gauge derives the instantaneous wind speed from a Counter.
type Gauge struct {
	counter  *Counter
	last     time.Time
	speed    float64
	perPulse float64
}

// NewGauge starts measuring from start.
func NewGauge(counter *Counter, start time.Time) *Gauge {
	return &Gauge{counter: counter, last: start, perPulse: MetresPerPulse}
}

// Sample computes pulses/elapsed*MetresPerPulse at now, zeroes the counter and
// moves the measurement window forward. With no elapsed time it returns the
// previous speed and leaves the counter alone.
func (g *Gauge) Sample(now time.Time) float64 {
	elapsed := now.Sub(g.last).Seconds()
	if elapsed <= 0 {
		return g.speed
	}
	pulses := g.counter.Drain()
	g.speed = Speed(pulses, elapsed, g.perPulse)
	g.last = now
	return g.speed
}

// Speed is the plain calibration formula.
func Speed(pulses uint64, elapsedSeconds, perPulse float64) float64 {
	return float64(pulses) / elapsedSeconds * perPulse
}
