//go:build !linux && !rp2040 && !rp2350

package platform

import (
	"errors"

	"tinygo.org/x/drivers"
)

type closerI2C interface {
	drivers.I2C
	Close() error
}

func OpenI2C(path string) (closerI2C, error) {
	return nil, errors.New("i2c: no bus support on this OS")
}
