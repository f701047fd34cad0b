// Package lightsensor adapts the BH1750 driver to the agent's sensor
// contract: Initialize once, then ReadLux every tick.
package lightsensor

import (
	"math"

	"tinygo.org/x/drivers"

	"luxmon-go/drivers/bh1750"
	"luxmon-go/errcode"
)

type Sensor struct {
	dev bh1750.Device
	cfg bh1750.Config
}

// New binds a BH1750 on bus. addr 0 selects the default address.
func New(bus drivers.I2C, addr uint16) *Sensor {
	return &Sensor{
		dev: bh1750.New(bus),
		cfg: bh1750.Config{Address: addr, Mode: bh1750.ContinuousHigh},
	}
}

// Initialize powers up and configures the sensor. False means the device
// did not answer on the bus.
func (s *Sensor) Initialize() bool {
	return s.dev.Configure(s.cfg) == nil
}

// ReadLux returns the latest illuminance. Bus errors and values that are
// not finite and non-negative are reported as errcode.SensorRead.
func (s *Sensor) ReadLux() (float64, error) {
	sample, err := s.dev.Read()
	if err != nil {
		return 0, errcode.Wrap(errcode.SensorRead, "lightsensor.read", err)
	}
	lux := float64(sample.Lux())
	if math.IsNaN(lux) || math.IsInf(lux, 0) || lux < 0 {
		return 0, errcode.SensorRead
	}
	return lux, nil
}
