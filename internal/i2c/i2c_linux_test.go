//go:build linux

package i2c

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func nullConn(t *testing.T) *Conn {
	t.Helper()
	f, err := os.OpenFile("/dev/null", os.O_RDWR, 0)
	if err != nil {
		t.Fatalf("OpenFile /dev/null: %v", err)
	}
	t.Cleanup(func() { _ = f.Close() })
	return &Conn{f: f, addr: 0x27}
}

func TestOpen_InvalidAddr(t *testing.T) {
	for _, addr := range []uint16{0, 0x80} {
		_, err := Open("/dev/null", addr)
		if err == nil || !strings.Contains(err.Error(), "invalid addr") {
			t.Fatalf("addr=0x%X err=%v want invalid addr", addr, err)
		}
	}
}

func TestOpen_MissingDevice(t *testing.T) {
	_, err := Open(filepath.Join(t.TempDir(), "i2c-9"), 0x27)
	if err == nil {
		t.Fatalf("expected error")
	}
}

func TestOpen_NotAnI2CBus(t *testing.T) {
	_, err := Open("/dev/null", 0x27)
	if err == nil || !strings.Contains(err.Error(), "select 0x27") {
		t.Fatalf("err=%v want select failure", err)
	}
}

func TestConnWrite(t *testing.T) {
	c := nullConn(t)
	if err := c.Write([]byte{0x0C, 0x08}); err != nil {
		t.Fatalf("Write: %v", err)
	}
}

func TestConnWrite_Closed(t *testing.T) {
	c := nullConn(t)
	if err := c.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	if err := c.Write([]byte{0x08}); err == nil || !strings.Contains(err.Error(), "closed") {
		t.Fatalf("err=%v want closed", err)
	}
	if err := c.Close(); err != nil {
		t.Fatalf("second Close: %v", err)
	}
}
