//go:build linux && !(rp2040 || rp2350)

package platform

import (
	"fmt"
	"io"
	"os"
	"sync"

	"golang.org/x/sys/unix"
)

// i2cSlave is I2C_SLAVE from linux/i2c-dev.h.
const i2cSlave = 0x0703

// LinuxI2C implements tinygo drivers.I2C over /dev/i2c-N.
type LinuxI2C struct {
	mu   sync.Mutex
	f    *os.File
	addr uint16
}

func OpenI2C(path string) (*LinuxI2C, error) {
	f, err := os.OpenFile(path, os.O_RDWR, 0)
	if err != nil {
		return nil, err
	}
	return &LinuxI2C{f: f}, nil
}

// Tx writes w then reads len(r) bytes from addr, as two transfers.
func (b *LinuxI2C) Tx(addr uint16, w, r []byte) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if addr != b.addr {
		if err := unix.IoctlSetInt(int(b.f.Fd()), i2cSlave, int(addr)); err != nil {
			return fmt.Errorf("i2c set address 0x%02x: %w", addr, err)
		}
		b.addr = addr
	}
	if len(w) > 0 {
		if _, err := b.f.Write(w); err != nil {
			return err
		}
	}
	if len(r) > 0 {
		if _, err := io.ReadFull(b.f, r); err != nil {
			return err
		}
	}
	return nil
}

func (b *LinuxI2C) Close() error { return b.f.Close() }
