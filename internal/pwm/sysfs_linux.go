//go:build linux

package pwm

import (
	"errors"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"time"

	"golang.org/x/sys/unix"
)

// sysfsPWM drives a hardware PWM channel via /sys/class/pwm.
//
// On Raspberry Pi this needs `dtoverlay=pwm` (or pwm-2chan) so the meter pin
// is exposed as a PWM channel. Levels are converted to nanoseconds of the
// configured period: duty_cycle = period * level / dutyRange.
type sysfsPWM struct {
	chipPath string // /sys/class/pwm/pwmchipN
	pwmPath  string // /sys/class/pwm/pwmchipN/pwmM
	channel  int

	dutyRange int
	periodNS  uint64

	mu      sync.Mutex
	enabled bool
	err     error
}

var pwmSysfsBase = "/sys/class/pwm"

var (
	exportWait   = 500 * time.Millisecond
	writeTimeout = 2 * time.Second
)

func openSysfs(cfg Config) (Device, error) {
	chipPath, err := findPWMChip(cfg.Chip)
	if err != nil {
		return nil, err
	}

	d := &sysfsPWM{
		chipPath:  chipPath,
		channel:   cfg.Channel,
		pwmPath:   filepath.Join(chipPath, fmt.Sprintf("pwm%d", cfg.Channel)),
		dutyRange: cfg.DutyRange,
	}
	if err := d.ensureExported(); err != nil {
		return nil, err
	}
	if err := d.setFrequencyHz(cfg.FrequencyHz); err != nil {
		return nil, err
	}
	return d, nil
}

func findPWMChip(want string) (string, error) {
	base := pwmSysfsBase
	if want != "" {
		chip := filepath.Join(base, want)
		if _, err := readInt(filepath.Join(chip, "npwm")); err != nil {
			return "", fmt.Errorf("pwm: %s unusable: %w", chip, err)
		}
		return chip, nil
	}

	entries, err := os.ReadDir(base)
	if err != nil {
		return "", fmt.Errorf("pwm: read %s: %w", base, err)
	}
	// pwmchipN entries are usually symlinks, not directories. ReadDir is sorted,
	// so pwmchip0 is preferred when present.
	for _, e := range entries {
		name := e.Name()
		if !strings.HasPrefix(name, "pwmchip") {
			continue
		}
		chip := filepath.Join(base, name)
		n, rerr := readInt(filepath.Join(chip, "npwm"))
		if rerr != nil || n <= 0 {
			continue
		}
		return chip, nil
	}
	return "", fmt.Errorf("pwm: no sysfs pwmchip found (is the pwm overlay enabled?)")
}

func (d *sysfsPWM) ensureExported() error {
	if _, err := os.Stat(d.pwmPath); err == nil {
		return nil
	}
	exportPath := filepath.Join(d.chipPath, "export")
	if err := writeSysfs(exportPath, strconv.Itoa(d.channel)); err != nil {
		// Someone else may have exported it in the meantime.
		if _, statErr := os.Stat(d.pwmPath); statErr == nil {
			return nil
		}
		return fmt.Errorf("pwm: export channel %d: %w", d.channel, err)
	}

	deadline := time.Now().Add(exportWait)
	for time.Now().Before(deadline) {
		if _, err := os.Stat(d.pwmPath); err == nil {
			return nil
		}
		time.Sleep(10 * time.Millisecond)
	}
	if _, err := os.Stat(d.pwmPath); err != nil {
		return fmt.Errorf("pwm: path not created after export: %w", err)
	}
	return nil
}

func (d *sysfsPWM) setFrequencyHz(hz int) error {
	if hz <= 0 {
		return fmt.Errorf("pwm: invalid frequency %d", hz)
	}
	periodNS := uint64(1_000_000_000 / hz)
	if periodNS == 0 {
		periodNS = 1
	}

	// Most PWM drivers reject a period change while enabled, and a period
	// shorter than the current duty_cycle.
	_ = d.writeBool("enable", false)
	_ = d.writeUint("duty_cycle", 0)
	if err := d.writeUint("period", periodNS); err != nil {
		return fmt.Errorf("pwm: set period: %w", err)
	}
	d.periodNS = periodNS
	d.enabled = false
	return nil
}

func (d *sysfsPWM) SetDuty(level int) {
	level = clampLevel(level, d.dutyRange)
	duty := d.periodNS * uint64(level) / uint64(d.dutyRange)

	d.mu.Lock()
	defer d.mu.Unlock()

	err := d.writeUint("duty_cycle", duty)
	if err == nil && !d.enabled {
		if err = d.writeBool("enable", true); err == nil {
			d.enabled = true
		}
	}
	if err != nil {
		if d.err == nil || d.err.Error() != err.Error() {
			log.Printf("pwm: set duty %d failed: %v", level, err)
		}
		d.err = err
		return
	}
	d.err = nil
}

func (d *sysfsPWM) Err() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.err
}

// Close parks the needle at zero and disables the channel.
func (d *sysfsPWM) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	err1 := d.writeUint("duty_cycle", 0)
	err2 := d.writeBool("enable", false)
	d.enabled = false
	return errors.Join(err1, err2)
}

func (d *sysfsPWM) writeUint(name string, v uint64) error {
	return writeSysfs(filepath.Join(d.pwmPath, name), strconv.FormatUint(v, 10))
}

func (d *sysfsPWM) writeBool(name string, v bool) error {
	val := "0"
	if v {
		val = "1"
	}
	return writeSysfs(filepath.Join(d.pwmPath, name), val)
}

func writeSysfs(path string, value string) error {
	// O_WRONLY without O_TRUNC/O_CREATE: some sysfs attributes reject
	// truncation. Right after export udev may still be fixing permissions, so
	// EACCES/ENOENT are retried for a short window.
	deadline := time.Now().Add(writeTimeout)
	for {
		err := writeOnce(path, value)
		if err == nil {
			return nil
		}
		if time.Now().Before(deadline) && isRetryableSysfsErr(err) {
			time.Sleep(25 * time.Millisecond)
			continue
		}
		return err
	}
}

func writeOnce(path string, value string) error {
	f, err := os.OpenFile(path, os.O_WRONLY, 0)
	if err != nil {
		return err
	}
	_, werr := f.WriteString(value)
	cerr := f.Close()
	return errors.Join(werr, cerr)
}

func isRetryableSysfsErr(err error) bool {
	return errors.Is(err, unix.EACCES) || errors.Is(err, unix.EPERM) || errors.Is(err, unix.ENOENT)
}

func readInt(path string) (int, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return 0, err
	}
	s := strings.TrimSpace(string(b))
	if s == "" {
		return 0, fmt.Errorf("empty")
	}
	return strconv.Atoi(s)
}
