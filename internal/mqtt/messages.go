package mqtt

import (
	"fmt"
	"math"
	"time"

	"cloudpico-station/internal/snapshot"
)

func TelemetryTopic(stationID string) string { return fmt.Sprintf("stations/%s/telemetry", stationID) }
func BucketsTopic(stationID string) string   { return fmt.Sprintf("stations/%s/buckets", stationID) }
func HealthTopic(stationID string) string    { return fmt.Sprintf("stations/%s/health", stationID) }

type Telemetry struct {
	StationID   string    `json:"station_id"`
	Timestamp   time.Time `json:"timestamp"`
	Temperature float64   `json:"temperature_c"`
	Humidity    float64   `json:"humidity_pct"`
	Pressure    float64   `json:"pressure_hpa"`
	WindSpeed   float64   `json:"wind_speed_ms"`
	Extrema     *Extrema  `json:"extrema,omitempty"`
	Sequence    uint64    `json:"sequence"`
}

// Range mirrors snapshot.Range with nil for an empty side, since JSON has no
// infinities.
type Range struct {
	Min *float64 `json:"min"`
	Max *float64 `json:"max"`
}

type Extrema struct {
	Temperature Range `json:"temperature_c"`
	Humidity    Range `json:"humidity_pct"`
	Pressure    Range `json:"pressure_hpa"`
	WindSpeed   Range `json:"wind_speed_ms"`
}

// BucketNotice announces an hourly bucket file.
type BucketNotice struct {
	StationID string           `json:"station_id"`
	Path      string           `json:"path"`
	Hour      time.Time        `json:"hour"`
	Reading   snapshot.Reading `json:"reading"`
	Extrema   Extrema          `json:"extrema"`
}

type StationHealth struct {
	StationID string    `json:"station_id"`
	LastSeen  time.Time `json:"last_seen"`
	Healthy   bool      `json:"healthy"`
	Uptime    float64   `json:"uptime_s,omitempty"`
}

// NewTelemetry builds a telemetry message from a snapshot. Extrema are left
// out while empty, before the first reading and right after an hourly reset.
func NewTelemetry(snap snapshot.Snapshot, at time.Time, seq uint64) Telemetry {
	t := Telemetry{
		Timestamp:   at,
		Temperature: snap.Current.Temperature,
		Humidity:    snap.Current.Humidity,
		Pressure:    snap.Current.Pressure,
		WindSpeed:   snap.Current.WindSpeed,
		Sequence:    seq,
	}
	if !snap.Extrema.Temperature.IsEmpty() {
		ext := NewExtrema(snap.Extrema)
		t.Extrema = &ext
	}
	return t
}

func NewBucketNotice(path string, at time.Time, snap snapshot.Snapshot) BucketNotice {
	return BucketNotice{
		Path:    path,
		Hour:    at.Truncate(time.Hour),
		Reading: snap.Current,
		Extrema: NewExtrema(snap.Extrema),
	}
}

func NewExtrema(e snapshot.Extrema) Extrema {
	return Extrema{
		Temperature: newRange(e.Temperature),
		Humidity:    newRange(e.Humidity),
		Pressure:    newRange(e.Pressure),
		WindSpeed:   newRange(e.WindSpeed),
	}
}

func newRange(r snapshot.Range) Range {
	return Range{Min: finite(r.Min), Max: finite(r.Max)}
}

func finite(v float64) *float64 {
	if math.IsInf(v, 0) || math.IsNaN(v) {
		return nil
	}
	return &v
}
