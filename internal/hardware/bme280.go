package hardware

import (
	"fmt"
	"sync"

	"periph.io/x/conn/v3/i2c"
	"periph.io/x/conn/v3/physic"
	"periph.io/x/devices/v3/bmxx80"
)

// BME280 reads temperature, pressure and humidity over I2C.
type BME280 struct {
	mu  sync.Mutex
	dev *bmxx80.Dev
}

func NewBME280(bus i2c.Bus, addr uint16) (*BME280, error) {
	dev, err := bmxx80.NewI2C(bus, addr, &bmxx80.DefaultOpts)
	if err != nil {
		return nil, fmt.Errorf("bme280 at %#x: %w", addr, err)
	}
	return &BME280{dev: dev}, nil
}

func (b *BME280) ReadEnvironment() (Environment, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	var env physic.Env
	if err := b.dev.Sense(&env); err != nil {
		return Environment{}, fmt.Errorf("bme280 sense: %w", err)
	}
	return fromPhysic(env), nil
}

func (b *BME280) Halt() error {
	return b.dev.Halt()
}

// fromPhysic converts periph's fixed point units: nano Kelvin, nano Pascal
// and 0.00001 %rH.
func fromPhysic(env physic.Env) Environment {
	return Environment{
		Temperature: env.Temperature.Celsius(),
		Pressure:    float64(env.Pressure) / float64(100*physic.Pascal),
		Humidity:    float64(env.Humidity) / float64(physic.PercentRH),
	}
}
