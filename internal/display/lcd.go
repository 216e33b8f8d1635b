package display

import (
	"fmt"
	"log"
	"strings"
	"time"

	"probmeter/internal/i2c"
)

// HD44780 character LCD behind a PCF8574 I2C expander ("LCM1602" backpacks).
//
// Expander bits: P0=RS P1=RW P2=EN P3=backlight P4..P7=D4..D7.
const (
	pcfRS        = 0x01
	pcfEN        = 0x04
	pcfBacklight = 0x08

	lcdClear       = 0x01
	lcdEntryMode   = 0x06 // increment, no shift
	lcdDisplayOn   = 0x0C // display on, cursor off, blink off
	lcdFunction4x2 = 0x28 // 4-bit bus, 2 lines, 5x8 font
	lcdSetDDRAM    = 0x80
)

var lcdRowOffsets = [4]byte{0x00, 0x40, 0x14, 0x54}

var sleepFn = time.Sleep

type byteWriter interface {
	Write(p []byte) error
}

type LCDConfig struct {
	Bus  string // e.g. /dev/i2c-1
	Addr uint16 // usually 0x27 or 0x3F
	Cols int
	Rows int
}

type LCD struct {
	dev   byteWriter
	conn  *i2c.Conn
	cols  int
	rows  int
	lines []string
	err   error
}

func OpenLCD(cfg LCDConfig) (*LCD, error) {
	conn, err := i2c.Open(cfg.Bus, cfg.Addr)
	if err != nil {
		return nil, fmt.Errorf("display: open lcd: %w", err)
	}
	l, err := newLCD(conn, cfg.Cols, cfg.Rows)
	if err != nil {
		_ = conn.Close()
		return nil, err
	}
	l.conn = conn
	return l, nil
}

func newLCD(dev byteWriter, cols, rows int) (*LCD, error) {
	if cols <= 0 {
		cols = 16
	}
	if rows <= 0 {
		rows = 2
	}
	if rows > len(lcdRowOffsets) {
		return nil, fmt.Errorf("display: lcd rows must be <= %d", len(lcdRowOffsets))
	}
	l := &LCD{dev: dev, cols: cols, rows: rows}
	if err := l.init(); err != nil {
		return nil, fmt.Errorf("display: lcd init: %w", err)
	}
	return l, nil
}

func (l *LCD) init() error {
	sleepFn(50 * time.Millisecond)
	// Reset into 8-bit mode three times, then switch to 4-bit.
	for _, wait := range []time.Duration{4500 * time.Microsecond, 4500 * time.Microsecond, 150 * time.Microsecond} {
		if err := l.writeNibble(0x30, 0); err != nil {
			return err
		}
		sleepFn(wait)
	}
	if err := l.writeNibble(0x20, 0); err != nil {
		return err
	}
	for _, cmd := range []byte{lcdFunction4x2, lcdDisplayOn, lcdClear, lcdEntryMode} {
		if err := l.command(cmd); err != nil {
			return err
		}
	}
	sleepFn(2 * time.Millisecond)
	return nil
}

func (l *LCD) Show(st Status) {
	lines := lcdLines(st, l.cols, l.rows)
	for row, text := range lines {
		if row < len(l.lines) && l.lines[row] == text {
			continue
		}
		if err := l.writeLine(row, text); err != nil {
			if l.err == nil {
				log.Printf("display: lcd write failed: %v", err)
			}
			l.err = err
			l.lines = nil
			return
		}
	}
	l.err = nil
	l.lines = lines
}

// Close clears the screen and releases the bus.
func (l *LCD) Close() error {
	_ = l.command(lcdClear)
	if l.conn != nil {
		return l.conn.Close()
	}
	return nil
}

func (l *LCD) writeLine(row int, text string) error {
	if err := l.command(lcdSetDDRAM | lcdRowOffsets[row]); err != nil {
		return err
	}
	for i := 0; i < len(text); i++ {
		if err := l.write(text[i], pcfRS); err != nil {
			return err
		}
	}
	return nil
}

func (l *LCD) command(b byte) error {
	if err := l.write(b, 0); err != nil {
		return err
	}
	if b == lcdClear {
		sleepFn(2 * time.Millisecond)
	}
	return nil
}

func (l *LCD) write(b byte, mode byte) error {
	if err := l.writeNibble(b&0xF0, mode); err != nil {
		return err
	}
	return l.writeNibble((b<<4)&0xF0, mode)
}

// writeNibble latches the high nibble of v by pulsing EN.
func (l *LCD) writeNibble(v byte, mode byte) error {
	base := v | mode | pcfBacklight
	return l.dev.Write([]byte{base | pcfEN, base})
}

// lcdLines lays out st as exactly rows lines of exactly cols ASCII chars.
func lcdLines(st Status, cols, rows int) []string {
	var top, bottom string
	switch st.State {
	case StateConnecting:
		top, bottom = "Connecting...", st.Err
	case StateFetching:
		top, bottom = titleOr(st, "Fetching..."), "Fetching..."
	case StateOff:
		top, bottom = titleOr(st, "Meter"), "Off"
	case StateError:
		top = titleOr(st, "Error")
		bottom = "Err: " + st.Err
	default:
		fallback := "Probability"
		if st.State == StateManual {
			fallback = "Manual"
		}
		top = titleOr(st, fallback)
		if st.HaveProbability {
			bottom = fmt.Sprintf("P: %.1f%%", st.Probability*100)
			if st.Volume != nil {
				bottom += fmt.Sprintf(" V:%d", *st.Volume)
			}
		}
	}

	out := make([]string, rows)
	out[0] = fitLine(top, cols)
	if rows > 1 {
		out[1] = fitLine(bottom, cols)
	}
	for i := 2; i < rows; i++ {
		out[i] = fitLine("", cols)
	}
	return out
}

func titleOr(st Status, fallback string) string {
	if st.Title != "" {
		return st.Title
	}
	return fallback
}

func fitLine(s string, cols int) string {
	var b strings.Builder
	for _, r := range s {
		if b.Len() == cols {
			break
		}
		if r < 0x20 || r > 0x7E {
			r = '?'
		}
		b.WriteRune(r)
	}
	for b.Len() < cols {
		b.WriteByte(' ')
	}
	return b.String()
}
