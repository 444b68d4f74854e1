package wind

import (
	"sync"
	"testing"
	"time"
)

func TestGauge_Sample(t *testing.T) {
	start := time.Date(2024, 3, 5, 14, 0, 0, 0, time.UTC)

	t.Run("ten pulses over five seconds", func(t *testing.T) {
		c := &Counter{}
		g := NewGauge(c, start)
		for range 10 {
			c.Inc()
		}
		got := g.Sample(start.Add(5 * time.Second))
		if got != 0.175 {
			t.Errorf("Sample() = %v; want 0.175", got)
		}
		if c.Pending() != 0 {
			t.Errorf("Pending() = %d; want 0 after sample", c.Pending())
		}
	})

	t.Run("zero elapsed keeps speed and counter", func(t *testing.T) {
		c := &Counter{}
		g := NewGauge(c, start)
		for range 10 {
			c.Inc()
		}
		first := g.Sample(start.Add(5 * time.Second))

		for range 7 {
			c.Inc()
		}
		got := g.Sample(start.Add(5 * time.Second))
		if got != first {
			t.Errorf("Sample() = %v; want previous %v", got, first)
		}
		if c.Pending() != 7 {
			t.Errorf("Pending() = %d; want 7 (not zeroed)", c.Pending())
		}

		got = g.Sample(start.Add(6 * time.Second))
		if want := Speed(7, 1, MetresPerPulse); got != want {
			t.Errorf("Sample() after 1s = %v; want %v", got, want)
		}
	})

	t.Run("calm", func(t *testing.T) {
		g := NewGauge(&Counter{}, start)
		if got := g.Sample(start.Add(time.Second)); got != 0 {
			t.Errorf("Sample() = %v; want 0", got)
		}
	})
}

func TestCounter_DrainDoesNotLosePulses(t *testing.T) {
	c := &Counter{}
	const producers, each = 4, 5000

	var wg sync.WaitGroup
	for range producers {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for range each {
				c.Inc()
			}
		}()
	}

	var drained uint64
	done := make(chan struct{})
	go func() {
		wg.Wait()
		close(done)
	}()
	for {
		select {
		case <-done:
			drained += c.Drain()
			if drained != producers*each {
				t.Fatalf("drained %d pulses; want %d", drained, producers*each)
			}
			return
		default:
			drained += c.Drain()
		}
	}
}
