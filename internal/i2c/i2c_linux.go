//go:build linux

// Package i2c writes to a single peripheral on a Linux /dev/i2c-* bus.
package i2c

import (
	"errors"
	"fmt"
	"os"

	"golang.org/x/sys/unix"
)

// I2C_SLAVE from linux/i2c-dev.h.
const ioctlSlave = 0x0703

// Conn is bound to one 7-bit address. Plain writes on the bus file go to
// that address. Conn is not safe for concurrent use.
type Conn struct {
	f    *os.File
	addr uint16
}

func Open(bus string, addr uint16) (*Conn, error) {
	if addr == 0 || addr > 0x7F {
		return nil, fmt.Errorf("i2c: invalid addr 0x%X", addr)
	}
	f, err := os.OpenFile(bus, os.O_RDWR, 0)
	if err != nil {
		return nil, err
	}
	if err := unix.IoctlSetInt(int(f.Fd()), ioctlSlave, int(addr)); err != nil {
		_ = f.Close()
		return nil, fmt.Errorf("i2c: select 0x%02X on %s: %w", addr, bus, err)
	}
	return &Conn{f: f, addr: addr}, nil
}

func (c *Conn) Write(p []byte) error {
	if c == nil || c.f == nil {
		return errors.New("i2c: closed")
	}
	n, err := c.f.Write(p)
	if err != nil {
		return fmt.Errorf("i2c: write 0x%02X: %w", c.addr, err)
	}
	if n != len(p) {
		return fmt.Errorf("i2c: write 0x%02X: short write %d/%d", c.addr, n, len(p))
	}
	return nil
}

func (c *Conn) Close() error {
	if c == nil || c.f == nil {
		return nil
	}
	err := c.f.Close()
	c.f = nil
	return err
}
