package hardware

import (
	"context"
	"image"
	"math"
	"sync/atomic"
	"testing"
	"time"

	"periph.io/x/conn/v3/physic"

	"cloudpico-station/internal/snapshot"
)

func TestFromPhysic(t *testing.T) {
	env := physic.Env{
		Temperature: physic.ZeroCelsius + 25*physic.Celsius,
		Pressure:    101325 * physic.Pascal,
		Humidity:    40 * physic.PercentRH,
	}
	got := fromPhysic(env)
	want := Environment{Temperature: 25, Pressure: 1013.25, Humidity: 40}
	if got != want {
		t.Fatalf("fromPhysic = %+v, want %+v", got, want)
	}
}

func TestDisplayLines(t *testing.T) {
	snap := snapshot.Snapshot{Current: snapshot.Reading{
		Temperature: 21.5, Humidity: 40, Pressure: 1013.2, WindSpeed: 0.175,
	}}
	got := DisplayLines(snap)
	want := []string{"21.5C, 40%", "Pres: 1013.2hPa", "Wind: 0.175 m/s"}
	if len(got) != len(want) {
		t.Fatalf("got %d lines, want %d", len(got), len(want))
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("line %d = %q, want %q", i, got[i], want[i])
		}
	}
}

func TestDrawLines_setsPixels(t *testing.T) {
	img := drawLines(image.Rect(0, 0, 128, 32), []string{"21.5C, 40%", "Pres", "Wind"})
	lit := 0
	for y := 0; y < 32; y++ {
		for x := 0; x < 128; x++ {
			if img.BitAt(x, y) {
				lit++
			}
		}
	}
	if lit == 0 {
		t.Fatal("no pixels drawn")
	}
}

func TestSimSensor(t *testing.T) {
	at := time.Date(2024, 6, 15, 14, 0, 0, 0, time.UTC)
	s := NewSimSensor(func() time.Time { return at }, 1)

	env, err := s.ReadEnvironment()
	if err != nil {
		t.Fatalf("ReadEnvironment: %v", err)
	}
	if env.Temperature < 5 || env.Temperature > 25 {
		t.Errorf("temperature %v out of range", env.Temperature)
	}
	if math.Abs(env.Pressure-1013) > 5 {
		t.Errorf("pressure %v out of range", env.Pressure)
	}

	s.Fails = true
	if _, err := s.ReadEnvironment(); err == nil {
		t.Fatal("expected failure")
	}
}

func TestSimAnemometer_stopsOnCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	var edges atomic.Int64
	done := make(chan error, 1)
	go func() {
		done <- SimAnemometer{Period: time.Millisecond}.OnEdge(ctx, func() { edges.Add(1) })
	}()

	deadline := time.Now().Add(2 * time.Second)
	for edges.Load() < 3 && time.Now().Before(deadline) {
		time.Sleep(time.Millisecond)
	}
	cancel()

	select {
	case err := <-done:
		if err != context.Canceled {
			t.Fatalf("err = %v, want context.Canceled", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("OnEdge did not return after cancel")
	}
	if edges.Load() < 3 {
		t.Fatalf("edges = %d, want >= 3", edges.Load())
	}
}
