package pwm

import (
	"fmt"
	"sync"

	"probmeter/internal/meter"
)

// Device is a meter.Actuator backed by real or simulated hardware.
//
// SetDuty never returns an error; the most recent hardware failure (if any) is
// available via Err and cleared by the next successful write.
type Device interface {
	meter.Actuator
	Err() error
	Close() error
}

type Config struct {
	// Backend is "sysfs" or "dry-run".
	Backend string
	// Chip is a sysfs chip name such as "pwmchip0". Empty means auto-detect.
	Chip    string
	Channel int
	// FrequencyHz is the PWM output frequency.
	FrequencyHz int
	// DutyRange is the level that corresponds to 100% duty.
	DutyRange int
}

var openSysfsFn = openSysfs

func Open(cfg Config) (Device, error) {
	if cfg.DutyRange <= 0 {
		return nil, fmt.Errorf("pwm: invalid duty range %d", cfg.DutyRange)
	}
	if cfg.FrequencyHz <= 0 {
		cfg.FrequencyHz = 1000
	}
	switch cfg.Backend {
	case "", "sysfs":
		return openSysfsFn(cfg)
	case "dry-run":
		return NewRecorder(cfg.DutyRange), nil
	default:
		return nil, fmt.Errorf("pwm: unknown backend %q", cfg.Backend)
	}
}

func clampLevel(level, dutyRange int) int {
	if level < 0 {
		return 0
	}
	if level > dutyRange {
		return dutyRange
	}
	return level
}

// Recorder is an in-memory Device. It remembers every level it was given.
//
// Safe for concurrent use.
type Recorder struct {
	dutyRange int

	mu     sync.Mutex
	levels []int
}

func NewRecorder(dutyRange int) *Recorder {
	return &Recorder{dutyRange: dutyRange}
}

func (r *Recorder) SetDuty(level int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.levels = append(r.levels, clampLevel(level, r.dutyRange))
}

// Last returns the most recent level and whether any level was written.
func (r *Recorder) Last() (int, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if len(r.levels) == 0 {
		return 0, false
	}
	return r.levels[len(r.levels)-1], true
}

func (r *Recorder) Levels() []int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]int(nil), r.levels...)
}

func (r *Recorder) Err() error { return nil }

func (r *Recorder) Close() error { return nil }
