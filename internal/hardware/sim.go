package hardware

import (
	"context"
	"log/slog"
	"math"
	"math/rand/v2"
	"sync"
	"time"

	"cloudpico-station/internal/snapshot"
)

// SimSensor produces a slow daily temperature swing with some noise.
type SimSensor struct {
	mu    sync.Mutex
	now   func() time.Time
	rng   *rand.Rand
	Fails bool
}

func NewSimSensor(now func() time.Time, seed uint64) *SimSensor {
	return &SimSensor{now: now, rng: rand.New(rand.NewPCG(seed, seed^0x9e3779b97f4a7c15))}
}

func (s *SimSensor) ReadEnvironment() (Environment, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.Fails {
		return Environment{}, errSimFailure
	}
	t := s.now()
	dayFrac := float64(t.Hour()*3600+t.Minute()*60+t.Second()) / 86400
	swing := math.Sin(2 * math.Pi * (dayFrac - 0.25))
	return Environment{
		Temperature: round1(15 + 6*swing + s.rng.NormFloat64()*0.2),
		Humidity:    round1(55 - 15*swing + s.rng.NormFloat64()),
		Pressure:    round1(1013 + s.rng.NormFloat64()*0.5),
	}, nil
}

type simError string

func (e simError) Error() string { return string(e) }

const errSimFailure = simError("simulated sensor failure")

func round1(v float64) float64 {
	return math.Round(v*10) / 10
}

// SimAnemometer fires edges at a fixed rate.
type SimAnemometer struct {
	Period time.Duration
}

func (a SimAnemometer) OnEdge(ctx context.Context, handler func()) error {
	if a.Period <= 0 {
		<-ctx.Done()
		return ctx.Err()
	}
	tick := time.NewTicker(a.Period)
	defer tick.Stop()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-tick.C:
			handler()
		}
	}
}

// LogDisplay writes the panel text to a logger at debug level.
type LogDisplay struct {
	Logger *slog.Logger
}

func (d LogDisplay) Render(snap snapshot.Snapshot) error {
	if d.Logger != nil {
		d.Logger.Debug("display", "lines", DisplayLines(snap))
	}
	return nil
}

// NopLED discards LED state.
type NopLED struct{}

func (NopLED) Set(bool) error { return nil }
