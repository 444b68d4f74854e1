package sampler

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"cloudpico-station/internal/bucket"
	"cloudpico-station/internal/hardware"
	"cloudpico-station/internal/metrics"
	"cloudpico-station/internal/snapshot"
	"cloudpico-station/internal/wind"
)

var t0 = time.Date(2024, 6, 15, 10, 0, 0, 0, time.UTC)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

type fakeSensor struct {
	env   hardware.Environment
	err   error
	panic bool
}

func (s *fakeSensor) ReadEnvironment() (hardware.Environment, error) {
	if s.panic {
		panic("i2c bus gone")
	}
	return s.env, s.err
}

type fakeDisplay struct {
	calls int
	err   error
}

func (d *fakeDisplay) Render(snapshot.Snapshot) error {
	d.calls++
	return d.err
}

type fakePersistence struct {
	writes   []time.Time
	sweeps   []time.Time
	writeErr error
}

func (p *fakePersistence) WriteHourly(t time.Time, _ snapshot.Snapshot) (string, error) {
	if p.writeErr != nil {
		return "", p.writeErr
	}
	p.writes = append(p.writes, t)
	return "/sd" + bucket.RelPath(t), nil
}

func (p *fakePersistence) Sweep(now time.Time) bucket.SweepReport {
	p.sweeps = append(p.sweeps, now)
	return bucket.SweepReport{}
}

type fixture struct {
	s       *Sampler
	store   *snapshot.Store
	sensor  *fakeSensor
	display *fakeDisplay
	persist *fakePersistence
	pulses  *wind.Counter
	clock   *fakeClock
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	f := &fixture{
		store:   snapshot.NewStore(),
		sensor:  &fakeSensor{env: hardware.Environment{Temperature: 20, Pressure: 1010, Humidity: 50}},
		display: &fakeDisplay{},
		persist: &fakePersistence{},
		pulses:  &wind.Counter{},
		clock:   &fakeClock{now: t0},
	}
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	f.s = New(Options{}, f.store, f.sensor, f.display, f.persist, f.pulses, f.clock, logger, metrics.New())
	return f
}

func TestCycle_updatesSnapshotAndDisplay(t *testing.T) {
	f := newFixture(t)
	f.clock.advance(5 * time.Second)
	for i := 0; i < 10; i++ {
		f.pulses.Inc()
	}

	if err := f.s.cycle(); err != nil {
		t.Fatalf("cycle: %v", err)
	}

	got := f.store.Read().Current
	want := snapshot.Reading{Temperature: 20, Humidity: 50, Pressure: 1010, WindSpeed: 0.175}
	if got != want {
		t.Fatalf("current = %+v, want %+v", got, want)
	}
	if f.display.calls != 1 {
		t.Errorf("display calls = %d, want 1", f.display.calls)
	}
	if f.pulses.Pending() != 0 {
		t.Errorf("pulses pending = %d, want 0", f.pulses.Pending())
	}
}

func TestCycle_sensorFailureSkips(t *testing.T) {
	f := newFixture(t)
	f.sensor.err = errors.New("no ack")
	f.pulses.Inc()

	if err := f.s.cycle(); err != nil {
		t.Fatalf("cycle: %v", err)
	}
	if !f.store.Read().Extrema.Temperature.IsEmpty() {
		t.Fatal("snapshot changed after sensor failure")
	}
	if f.display.calls != 0 {
		t.Errorf("display calls = %d, want 0", f.display.calls)
	}
	if f.pulses.Pending() != 1 {
		t.Errorf("pulses were drained on a skipped cycle")
	}
}

func TestCycle_displayErrorIsNotFatal(t *testing.T) {
	f := newFixture(t)
	f.display.err = errors.New("nack")
	if err := f.s.cycle(); err != nil {
		t.Fatalf("cycle: %v", err)
	}
	if f.store.Read().Current.Temperature != 20 {
		t.Fatal("snapshot not updated")
	}
}

func TestCycle_hourlyBoundary(t *testing.T) {
	f := newFixture(t)
	var seen []string
	f.s.OnBucket(func(path string, _ time.Time, _ snapshot.Snapshot) { seen = append(seen, path) })

	f.clock.advance(3599 * time.Second)
	if err := f.s.cycle(); err != nil {
		t.Fatal(err)
	}
	if len(f.persist.writes) != 0 {
		t.Fatalf("wrote before an hour elapsed")
	}

	f.clock.advance(time.Second)
	if err := f.s.cycle(); err != nil {
		t.Fatal(err)
	}
	if len(f.persist.writes) != 1 {
		t.Fatalf("writes = %d, want 1", len(f.persist.writes))
	}
	if want := t0.Add(time.Hour); !f.s.Watermark().Equal(want) {
		t.Errorf("watermark = %v, want %v", f.s.Watermark(), want)
	}
	if len(seen) != 1 || seen[0] != "/sd/2024/06/15/2024-06-15-11" {
		t.Errorf("OnBucket paths = %v", seen)
	}
	if len(f.persist.sweeps) != 0 {
		t.Errorf("sweep ran on an hourly boundary")
	}
	if ext := f.store.Read().Extrema; !ext.Temperature.IsEmpty() || !ext.WindSpeed.IsEmpty() {
		t.Errorf("extrema not reset after the hourly write: %+v", ext)
	}

	f.clock.advance(time.Second)
	if err := f.s.cycle(); err != nil {
		t.Fatal(err)
	}
	if len(f.persist.writes) != 1 {
		t.Errorf("wrote twice within the same hour")
	}
}

func TestCycle_bucketsCoverOneHourEach(t *testing.T) {
	f := newFixture(t)
	var got []snapshot.Range
	f.s.OnBucket(func(_ string, _ time.Time, snap snapshot.Snapshot) {
		got = append(got, snap.Extrema.Temperature)
	})

	// Two readings per hour: one 10 minutes in, one on the hour.
	temps := [][2]float64{{10, 30}, {15, 20}, {18, 18}}
	for _, hour := range temps {
		for i, step := range []time.Duration{10 * time.Minute, 50 * time.Minute} {
			f.clock.advance(step)
			f.sensor.env.Temperature = hour[i]
			if err := f.s.cycle(); err != nil {
				t.Fatal(err)
			}
		}
	}

	want := []snapshot.Range{{Min: 10, Max: 30}, {Min: 15, Max: 20}, {Min: 18, Max: 18}}
	if len(got) != len(want) {
		t.Fatalf("buckets = %d, want %d", len(got), len(want))
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("bucket %d temperature range = %+v, want %+v", i, got[i], want[i])
		}
	}
}

func TestCycle_dailyBoundary(t *testing.T) {
	f := newFixture(t)
	f.sensor.env.Temperature = 30
	if err := f.s.cycle(); err != nil {
		t.Fatal(err)
	}
	f.sensor.env.Temperature = 10

	f.clock.advance(24 * time.Hour)
	if err := f.s.cycle(); err != nil {
		t.Fatal(err)
	}
	if len(f.persist.writes) != 1 || len(f.persist.sweeps) != 1 {
		t.Fatalf("writes=%d sweeps=%d, want 1 and 1", len(f.persist.writes), len(f.persist.sweeps))
	}
	ext := f.store.Read().Extrema.Temperature
	if !ext.IsEmpty() {
		t.Fatalf("extrema not reset: %+v", ext)
	}
	if got := f.store.Read().Current.Temperature; got != 10 {
		t.Errorf("current temperature = %v, want 10", got)
	}
}

func TestCycle_writeFailureKeepsWatermark(t *testing.T) {
	f := newFixture(t)
	f.persist.writeErr = errors.New("card removed")
	f.clock.advance(2 * time.Hour)

	if err := f.s.cycle(); err == nil {
		t.Fatal("expected error")
	}
	if !f.s.Watermark().Equal(t0) {
		t.Fatalf("watermark moved to %v", f.s.Watermark())
	}

	f.persist.writeErr = nil
	if err := f.s.cycle(); err != nil {
		t.Fatal(err)
	}
	if len(f.persist.writes) != 1 {
		t.Fatalf("retry did not write")
	}
}

func TestSafeCycle_recoversPanic(t *testing.T) {
	f := newFixture(t)
	f.sensor.panic = true
	err := f.s.safeCycle()
	if err == nil {
		t.Fatal("expected error from panic")
	}
}

func TestRun_stopsOnCancel(t *testing.T) {
	f := newFixture(t)
	f.s.opts.Interval = time.Millisecond
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- f.s.Run(ctx) }()

	deadline := time.Now().Add(2 * time.Second)
	for f.store.Read().Current.Temperature != 20 && time.Now().Before(deadline) {
		time.Sleep(time.Millisecond)
	}
	cancel()

	select {
	case err := <-done:
		if !errors.Is(err, context.Canceled) {
			t.Fatalf("Run returned %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("Run did not stop")
	}
}
