package display

import (
	"fmt"
	"log"
)

type outputLine interface {
	SetValue(v int) error
	Close() error
}

type LEDConfig struct {
	Chip string // e.g. gpiochip0
	Pin  int    // line offset on Chip (BCM number on a Pi)
}

// LED drives a single status LED: lit while the meter shows a live value.
type LED struct {
	line outputLine
	on   bool
	set  bool
}

func OpenLED(cfg LEDConfig) (*LED, error) {
	if cfg.Pin < 0 {
		return nil, fmt.Errorf("display: invalid led pin %d", cfg.Pin)
	}
	if cfg.Chip == "" {
		cfg.Chip = "gpiochip0"
	}
	line, err := openLineFn(cfg.Chip, cfg.Pin)
	if err != nil {
		return nil, err
	}
	return &LED{line: line}, nil
}

func (l *LED) Show(st Status) {
	on := st.Lit()
	if l.set && on == l.on {
		return
	}
	v := 0
	if on {
		v = 1
	}
	if err := l.line.SetValue(v); err != nil {
		log.Printf("display: led set %d failed: %v", v, err)
		return
	}
	l.on = on
	l.set = true
}

// Close turns the LED off and releases the line.
func (l *LED) Close() error {
	_ = l.line.SetValue(0)
	return l.line.Close()
}
