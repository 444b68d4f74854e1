package app

import (
	"errors"
	"fmt"
	"log/slog"
	"time"

	"cloudpico-station/internal/config"
	"cloudpico-station/internal/hardware"
	"cloudpico-station/internal/sampler"
)

const (
	panelWidth  = 128
	panelHeight = 32
	simPulseGap = 400 * time.Millisecond
)

// devices is the hardware the station runs with, real or simulated.
type devices struct {
	sensor     hardware.EnvironmentSensor
	display    sampler.Display
	anemometer hardware.Anemometer
	led        hardware.LED

	closers []func() error
}

func (d *devices) Close() error {
	var errs []error
	for i := len(d.closers) - 1; i >= 0; i-- {
		if err := d.closers[i](); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func openDevices(cfg config.Config, now func() time.Time, logger *slog.Logger) (*devices, error) {
	if cfg.SensorDriver == "sim" {
		return simDevices(cfg, now, logger), nil
	}

	d := &devices{}
	bus, err := hardware.OpenBus(cfg.I2CBus)
	if err != nil {
		return nil, err
	}
	d.closers = append(d.closers, bus.Close)

	bme, err := hardware.NewBME280(bus, cfg.BME280Address)
	if err != nil {
		_ = d.Close()
		return nil, err
	}
	d.sensor = bme
	d.closers = append(d.closers, bme.Halt)

	if cfg.DisplayEnabled {
		oled, err := hardware.NewOLED(bus, panelWidth, panelHeight)
		if err != nil {
			logger.Warn("display unavailable, continuing without it", "error", err)
		} else {
			d.display = oled
			d.closers = append(d.closers, oled.Halt)
		}
	}

	reed, err := hardware.NewReedSwitch(cfg.WindPin)
	if err != nil {
		_ = d.Close()
		return nil, fmt.Errorf("anemometer: %w", err)
	}
	d.anemometer = reed

	d.led = hardware.NopLED{}
	if cfg.StatusLEDPin != "" {
		led, err := hardware.NewPinLED(cfg.StatusLEDPin)
		if err != nil {
			logger.Warn("status led unavailable", "pin", cfg.StatusLEDPin, "error", err)
		} else {
			d.led = led
		}
	}
	return d, nil
}

func simDevices(cfg config.Config, now func() time.Time, logger *slog.Logger) *devices {
	d := &devices{
		sensor:     hardware.NewSimSensor(now, uint64(time.Now().UnixNano())),
		anemometer: hardware.SimAnemometer{Period: simPulseGap},
		led:        hardware.NopLED{},
	}
	if cfg.DisplayEnabled {
		d.display = hardware.LogDisplay{Logger: logger.With("component", "display")}
	}
	return d
}
