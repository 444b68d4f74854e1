// Package hardware adapts the station's sensor, display, anemometer and
// status LED to small interfaces. The periph.io backed types drive real
// I2C and GPIO devices; the Sim types stand in for them off-device.
package hardware

import (
	"context"
	"fmt"
	"strconv"
	"sync"

	"periph.io/x/conn/v3/i2c"
	"periph.io/x/conn/v3/i2c/i2creg"
	"periph.io/x/host/v3"

	"cloudpico-station/internal/snapshot"
)

// Environment is one BME280 measurement.
type Environment struct {
	Temperature float64 // °C
	Pressure    float64 // hPa
	Humidity    float64 // %RH
}

type EnvironmentSensor interface {
	ReadEnvironment() (Environment, error)
}

type Display interface {
	Render(snapshot.Snapshot) error
}

// Anemometer calls handler once per rising edge until ctx is done. handler
// must not block.
type Anemometer interface {
	OnEdge(ctx context.Context, handler func()) error
}

type LED interface {
	Set(on bool) error
}

var (
	initOnce sync.Once
	initErr  error
)

// Init loads the periph host drivers once per process.
func Init() error {
	initOnce.Do(func() {
		if _, err := host.Init(); err != nil {
			initErr = fmt.Errorf("periph host init: %w", err)
		}
	})
	return initErr
}

// OpenBus opens an I2C bus by name; "" picks the first bus (usually
// /dev/i2c-1).
func OpenBus(name string) (i2c.BusCloser, error) {
	if err := Init(); err != nil {
		return nil, err
	}
	bus, err := i2creg.Open(name)
	if err != nil {
		return nil, fmt.Errorf("open i2c bus %q: %w", name, err)
	}
	return bus, nil
}

// DisplayLines is the text shown on the 128x32 panel.
func DisplayLines(snap snapshot.Snapshot) []string {
	c := snap.Current
	return []string{
		num(c.Temperature) + "C, " + num(c.Humidity) + "%",
		"Pres: " + num(c.Pressure) + "hPa",
		"Wind: " + num(c.WindSpeed) + " m/s",
	}
}

func num(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}
