// Package snapshot holds the station's current readings and running extrema.
//
// The store is written by a single sampler goroutine and read by any number of
// other goroutines. Each Update publishes a new immutable Snapshot through an
// atomic pointer swap, so readers never block the writer and never observe a
// half-applied cycle; at worst they see the previous cycle's values.
package snapshot

import (
	"math"

	"go.uber.org/atomic"
)

// Reading is one sampling cycle's worth of measurements.
type Reading struct {
	Temperature float64 `json:"temperature_c"`
	Humidity    float64 `json:"humidity_pct"`
	Pressure    float64 `json:"pressure_hpa"`
	WindSpeed   float64 `json:"wind_speed_ms"`
}

// Range is the running minimum and maximum of one measure.
type Range struct {
	Min float64
	Max float64
}

func emptyRange() Range {
	return Range{Min: math.Inf(1), Max: math.Inf(-1)}
}

func (r Range) widen(v float64) Range {
	if v < r.Min {
		r.Min = v
	}
	if v > r.Max {
		r.Max = v
	}
	return r
}

// IsEmpty reports whether no value was observed since the last reset.
func (r Range) IsEmpty() bool {
	return math.IsInf(r.Min, 1) && math.IsInf(r.Max, -1)
}

type Extrema struct {
	Temperature Range
	Humidity    Range
	Pressure    Range
	WindSpeed   Range
}

func emptyExtrema() Extrema {
	return Extrema{
		Temperature: emptyRange(),
		Humidity:    emptyRange(),
		Pressure:    emptyRange(),
		WindSpeed:   emptyRange(),
	}
}

type Snapshot struct {
	Current Reading
	Extrema Extrema
	// Updates counts readings since start; ResetExtrema keeps it.
	Updates uint64
}

// Store is the process-wide snapshot holder. The zero value is not usable;
// call NewStore.
type Store struct {
	v *atomic.Pointer[Snapshot]
}

// NewStore returns a store with zeroed current readings and empty extrema.
func NewStore() *Store {
	return &Store{v: atomic.NewPointer(&Snapshot{Extrema: emptyExtrema()})}
}

// Update overwrites the current readings and widens every extrema range.
// Only one goroutine may call Update or ResetExtrema.
func (s *Store) Update(r Reading) {
	prev := s.v.Load()
	next := &Snapshot{
		Current: r,
		Extrema: Extrema{
			Temperature: prev.Extrema.Temperature.widen(r.Temperature),
			Humidity:    prev.Extrema.Humidity.widen(r.Humidity),
			Pressure:    prev.Extrema.Pressure.widen(r.Pressure),
			WindSpeed:   prev.Extrema.WindSpeed.widen(r.WindSpeed),
		},
		Updates: prev.Updates + 1,
	}
	s.v.Store(next)
}

// Read returns a copy of the latest published snapshot.
func (s *Store) Read() Snapshot {
	return *s.v.Load()
}

// ResetExtrema sets every range back to the +Inf/-Inf sentinel. Current
// readings are kept.
func (s *Store) ResetExtrema() {
	prev := s.v.Load()
	s.v.Store(&Snapshot{Current: prev.Current, Extrema: emptyExtrema(), Updates: prev.Updates})
}
