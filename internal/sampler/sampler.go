// Package sampler runs the station's sampling loop: read the sensor, derive
// wind speed, publish the snapshot, refresh the display and close hourly
// buckets.
package sampler

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"cloudpico-station/internal/bucket"
	"cloudpico-station/internal/hardware"
	"cloudpico-station/internal/metrics"
	"cloudpico-station/internal/snapshot"
	"cloudpico-station/internal/wind"
)

const (
	defaultInterval     = time.Second
	defaultErrorBackoff = 5 * time.Second
	hourlyEvery         = time.Hour
	dailyEvery          = 24 * time.Hour
)

type Sensor interface {
	ReadEnvironment() (hardware.Environment, error)
}

type Display interface {
	Render(snapshot.Snapshot) error
}

// Persistence is the bucket store as seen by the sampler.
type Persistence interface {
	WriteHourly(t time.Time, snap snapshot.Snapshot) (string, error)
	Sweep(now time.Time) bucket.SweepReport
}

type Clock interface {
	Now() time.Time
}

// BucketFunc is called after every successful hourly write.
type BucketFunc func(path string, at time.Time, snap snapshot.Snapshot)

type Options struct {
	Interval     time.Duration
	ErrorBackoff time.Duration
}

type Sampler struct {
	opts    Options
	store   *snapshot.Store
	sensor  Sensor
	display Display
	persist Persistence
	gauge   *wind.Gauge
	clock   Clock
	logger  *slog.Logger
	metrics *metrics.Collector

	watermark time.Time
	onBucket  []BucketFunc
}

// New builds a sampler whose watermark and wind window start at clock.Now().
// display may be nil.
func New(opts Options, store *snapshot.Store, sensor Sensor, display Display, persist Persistence,
	pulses *wind.Counter, clock Clock, logger *slog.Logger, m *metrics.Collector) *Sampler {
	if opts.Interval <= 0 {
		opts.Interval = defaultInterval
	}
	if opts.ErrorBackoff <= 0 {
		opts.ErrorBackoff = defaultErrorBackoff
	}
	if logger == nil {
		logger = slog.Default()
	}
	now := clock.Now()
	return &Sampler{
		opts:      opts,
		store:     store,
		sensor:    sensor,
		display:   display,
		persist:   persist,
		gauge:     wind.NewGauge(pulses, now),
		clock:     clock,
		logger:    logger.With("component", "sampler"),
		metrics:   m,
		watermark: now,
	}
}

// OnBucket registers fn to run after each hourly bucket write. Register
// before Run.
func (s *Sampler) OnBucket(fn BucketFunc) {
	s.onBucket = append(s.onBucket, fn)
}

// Run samples every Interval until ctx is done. A failed cycle is logged and
// followed by ErrorBackoff instead of Interval.
func (s *Sampler) Run(ctx context.Context) error {
	s.logger.Info("sampler started", "interval", s.opts.Interval)
	for {
		delay := s.opts.Interval
		if err := s.safeCycle(); err != nil {
			s.logger.Error("unhandled error in sampling cycle", "error", err, "backoff", s.opts.ErrorBackoff)
			s.metrics.SampleFailures.WithLabelValues("cycle").Inc()
			delay = s.opts.ErrorBackoff
		}

		select {
		case <-ctx.Done():
			s.logger.Info("sampler stopped")
			return ctx.Err()
		case <-time.After(delay):
		}
	}
}

func (s *Sampler) safeCycle() (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic: %v", r)
		}
	}()
	start := time.Now()
	defer func() { s.metrics.CycleDuration.Observe(time.Since(start).Seconds()) }()
	return s.cycle()
}

func (s *Sampler) cycle() error {
	env, err := s.sensor.ReadEnvironment()
	if err != nil {
		s.logger.Warn("sensor read failed, skipping cycle", "error", err)
		s.metrics.SampleFailures.WithLabelValues("sensor").Inc()
		return nil
	}

	now := s.clock.Now()
	reading := snapshot.Reading{
		Temperature: env.Temperature,
		Humidity:    env.Humidity,
		Pressure:    env.Pressure,
		WindSpeed:   s.gauge.Sample(now),
	}
	s.store.Update(reading)
	s.metrics.SampleCycles.Inc()
	s.observe(reading)

	if s.display != nil {
		if err := s.display.Render(s.store.Read()); err != nil {
			s.logger.Warn("display refresh failed", "error", err)
			s.metrics.SampleFailures.WithLabelValues("display").Inc()
		}
	}

	return s.checkBoundaries(now)
}

// checkBoundaries closes the hour (write, then reset extrema) and the day.
// It measures both thresholds against the elapsed time taken
// before the hour branch moves the watermark, so the day branch can only run
// in a cycle that also closes an hour.
func (s *Sampler) checkBoundaries(now time.Time) error {
	elapsed := now.Sub(s.watermark)

	if elapsed >= hourlyEvery {
		snap := s.store.Read()
		path, err := s.persist.WriteHourly(now, snap)
		if err != nil {
			return fmt.Errorf("hourly write: %w", err)
		}
		for _, fn := range s.onBucket {
			fn(path, now, snap)
		}
		s.store.ResetExtrema()
		s.watermark = now
	}

	if elapsed >= dailyEvery {
		s.store.ResetExtrema()
		s.logger.Info("extrema reset")
		if rep := s.persist.Sweep(now); rep.Err != nil {
			s.logger.Warn("retention sweep finished with errors", "error", rep.Err)
		}
	}
	return nil
}

func (s *Sampler) observe(r snapshot.Reading) {
	s.metrics.Current.WithLabelValues("temperature").Set(r.Temperature)
	s.metrics.Current.WithLabelValues("humidity").Set(r.Humidity)
	s.metrics.Current.WithLabelValues("pressure").Set(r.Pressure)
	s.metrics.Current.WithLabelValues("wind_speed").Set(r.WindSpeed)
}

// Watermark returns the time of the last hourly write, or the start time.
func (s *Sampler) Watermark() time.Time {
	return s.watermark
}
