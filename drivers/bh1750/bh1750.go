// Package bh1750 provides a driver for the BH1750 ambient-light sensor.
// It exposes the same two-phase measurement API as the other drivers here:
//
//	d.Trigger()             // start a conversion (one-time modes) or no-op
//	err := d.Collect(&s)    // fetch the latest 16-bit count
//
// d.Read() performs trigger + wait + collect in one call.
//
// Counts are converted to lux with the datasheet factor of 1.2 counts/lx at the
// default measurement time register (MTreg = 69).
package bh1750

import (
	"errors"
	"time"

	"tinygo.org/x/drivers"
)

// I2C addresses (ADDR pin low / high).
const (
	Address    = 0x23
	AddressAlt = 0x5C
)

const (
	cmdPowerDown = 0x00
	cmdPowerOn   = 0x01
	cmdReset     = 0x07
)

// Mode selects resolution and whether the device converts continuously.
type Mode byte

const (
	ContinuousHigh  Mode = 0x10 // 1 lx resolution, ~120 ms
	ContinuousHigh2 Mode = 0x11 // 0.5 lx resolution, ~120 ms
	ContinuousLow   Mode = 0x13 // 4 lx resolution, ~16 ms
	OneTimeHigh     Mode = 0x20
	OneTimeHigh2    Mode = 0x21
	OneTimeLow      Mode = 0x23
)

func (m Mode) oneTime() bool { return m&0x20 != 0 }
func (m Mode) high2() bool   { return m == ContinuousHigh2 || m == OneTimeHigh2 }
func (m Mode) low() bool     { return m == ContinuousLow || m == OneTimeLow }

// Errors returned by the driver.
var (
	ErrNotConfigured = errors.New("bh1750: not configured")
	ErrProtocol      = errors.New("bh1750: protocol error")
)

// Config controls non-hardware behaviour. All fields are optional.
type Config struct {
	// Address defaults to 0x23 if zero.
	Address uint16
	// Mode defaults to ContinuousHigh, matching the common Arduino library.
	Mode Mode
	// Settle bounds the wait in Read() after a trigger. Defaults to the
	// mode's conversion time plus a small margin.
	Settle time.Duration
}

// Device wraps an I2C connection to a BH1750.
type Device struct {
	bus     drivers.I2C
	Address uint16

	cfg        Config
	configured bool
	buf        [2]byte
	last       Sample
}

// New creates a Device. The I2C bus must already be configured; this does
// not touch the hardware.
func New(bus drivers.I2C) Device {
	return Device{bus: bus, Address: Address}
}

// Configure powers the sensor on, resets its data register and selects the
// measurement mode.
func (d *Device) Configure(cfgs ...Config) error {
	var c Config
	if len(cfgs) > 0 {
		c = cfgs[0]
	}
	if c.Address != 0 {
		d.Address = c.Address
	}
	if c.Mode == 0 {
		c.Mode = ContinuousHigh
	}
	if c.Settle <= 0 {
		c.Settle = hint(c.Mode) + 60*time.Millisecond
	}
	d.cfg = c

	if err := d.cmd(cmdPowerOn); err != nil {
		return err
	}
	if err := d.cmd(cmdReset); err != nil {
		return err
	}
	if !c.Mode.oneTime() {
		if err := d.cmd(byte(c.Mode)); err != nil {
			return err
		}
	}
	d.configured = true
	return nil
}

// PowerDown puts the sensor into its low-power state. Configure wakes it.
func (d *Device) PowerDown() error {
	d.configured = false
	return d.cmd(cmdPowerDown)
}

// Trigger starts a conversion in one-time modes; continuous modes are
// already converting and Trigger only validates state.
func (d *Device) Trigger() error {
	if !d.configured {
		return ErrNotConfigured
	}
	if d.cfg.Mode.oneTime() {
		return d.cmd(byte(d.cfg.Mode))
	}
	return nil
}

// Collect reads the 16-bit result into the device cache and out.
func (d *Device) Collect(out *Sample) error {
	if !d.configured {
		return ErrNotConfigured
	}
	data := d.buf[:]
	if err := d.bus.Tx(d.Address, nil, data); err != nil {
		return err
	}
	s := Sample{Raw: uint16(data[0])<<8 | uint16(data[1]), Mode: d.cfg.Mode}
	// An all-ones word is what a floating bus returns.
	if s.Raw == 0xFFFF {
		return ErrProtocol
	}
	d.last = s
	if out != nil {
		*out = s
	}
	return nil
}

// Read performs a full measurement cycle. In continuous modes the first
// call after Configure waits one conversion time; later calls return the
// latest conversion immediately.
func (d *Device) Read() (Sample, error) {
	if err := d.Trigger(); err != nil {
		return Sample{}, err
	}
	if d.cfg.Mode.oneTime() || d.last.Mode == 0 {
		time.Sleep(d.cfg.Settle)
	}
	var s Sample
	if err := d.Collect(&s); err != nil {
		return Sample{}, err
	}
	return s, nil
}

// Last returns the most recently collected sample.
func (d *Device) Last() Sample { return d.last }

func (d *Device) cmd(b byte) error {
	return d.bus.Tx(d.Address, []byte{b}, nil)
}

func hint(m Mode) time.Duration {
	if m.low() {
		return 16 * time.Millisecond
	}
	return 120 * time.Millisecond
}

// Sample holds one raw conversion and the mode it was taken in.
type Sample struct {
	Raw  uint16
	Mode Mode
}

// Lux converts the raw count to lux.
func (s Sample) Lux() float32 {
	v := float32(s.Raw) / 1.2
	if s.Mode.high2() {
		v /= 2
	}
	return v
}
