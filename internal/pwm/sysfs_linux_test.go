//go:build linux

package pwm

import (
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"testing"
	"time"
)

// fakeChip lays out a sysfs-like pwmchip with channel 0 already exported.
func fakeChip(t *testing.T) (base string, pwmDir string) {
	t.Helper()
	dir := t.TempDir()
	base = filepath.Join(dir, "pwm")
	chip := filepath.Join(base, "pwmchip0")
	pwmDir = filepath.Join(chip, "pwm0")
	if err := os.MkdirAll(pwmDir, 0o755); err != nil {
		t.Fatalf("MkdirAll: %v", err)
	}
	files := map[string]string{
		filepath.Join(chip, "npwm"):         "2\n",
		filepath.Join(chip, "export"):       "",
		filepath.Join(pwmDir, "period"):     "0\n",
		filepath.Join(pwmDir, "duty_cycle"): "0\n",
		filepath.Join(pwmDir, "enable"):     "0\n",
	}
	for p, v := range files {
		if err := os.WriteFile(p, []byte(v), 0o644); err != nil {
			t.Fatalf("WriteFile %s: %v", p, err)
		}
	}

	old := pwmSysfsBase
	pwmSysfsBase = base
	oldTimeout := writeTimeout
	writeTimeout = 0
	t.Cleanup(func() {
		pwmSysfsBase = old
		writeTimeout = oldTimeout
	})
	return base, pwmDir
}

func readAttr(t *testing.T, path string) string {
	t.Helper()
	b, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("ReadFile %s: %v", path, err)
	}
	return strings.TrimSpace(string(b))
}

// readAttrInt tolerates stale trailing digits: regular files are not
// truncated by writeSysfs the way sysfs attributes are replaced.
func readAttrInt(t *testing.T, path string) int {
	t.Helper()
	n, err := strconv.Atoi(readAttr(t, path))
	if err != nil {
		t.Fatalf("Atoi %s: %v", path, err)
	}
	return n
}

func TestFindPWMChip_AcceptsSymlinkedPWMChip(t *testing.T) {
	dir := t.TempDir()
	base := filepath.Join(dir, "pwm")
	if err := os.MkdirAll(base, 0o755); err != nil {
		t.Fatalf("MkdirAll: %v", err)
	}

	realChip := filepath.Join(dir, "realchip0")
	if err := os.MkdirAll(realChip, 0o755); err != nil {
		t.Fatalf("MkdirAll realChip: %v", err)
	}
	if err := os.WriteFile(filepath.Join(realChip, "npwm"), []byte("2\n"), 0o644); err != nil {
		t.Fatalf("WriteFile npwm: %v", err)
	}
	link := filepath.Join(base, "pwmchip0")
	if err := os.Symlink(realChip, link); err != nil {
		t.Fatalf("Symlink: %v", err)
	}

	old := pwmSysfsBase
	pwmSysfsBase = base
	t.Cleanup(func() { pwmSysfsBase = old })

	chipPath, err := findPWMChip("")
	if err != nil {
		t.Fatalf("findPWMChip: %v", err)
	}
	if chipPath != link {
		t.Fatalf("chipPath=%q want %q", chipPath, link)
	}
}

func TestFindPWMChip_NamedChipMissing(t *testing.T) {
	fakeChip(t)
	if _, err := findPWMChip("pwmchip7"); err == nil {
		t.Fatalf("expected error for missing chip")
	}
}

func TestSysfsSetDuty_ScalesToPeriod(t *testing.T) {
	_, pwmDir := fakeChip(t)

	dev, err := openSysfs(Config{FrequencyHz: 1000, DutyRange: 1023})
	if err != nil {
		t.Fatalf("openSysfs: %v", err)
	}
	if got := readAttr(t, filepath.Join(pwmDir, "period")); got != "1000000" {
		t.Fatalf("period=%s want 1000000", got)
	}

	dev.SetDuty(470)
	if got := readAttr(t, filepath.Join(pwmDir, "duty_cycle")); got != "459433" {
		t.Fatalf("duty_cycle=%s want 459433", got)
	}
	if got := readAttr(t, filepath.Join(pwmDir, "enable")); got != "1" {
		t.Fatalf("enable=%s want 1", got)
	}

	dev.SetDuty(99999)
	if got := readAttr(t, filepath.Join(pwmDir, "duty_cycle")); got != "1000000" {
		t.Fatalf("duty_cycle=%s want 1000000 (clamped)", got)
	}
	if err := dev.Err(); err != nil {
		t.Fatalf("Err=%v", err)
	}

	if err := dev.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	if got := readAttrInt(t, filepath.Join(pwmDir, "duty_cycle")); got != 0 {
		t.Fatalf("duty_cycle after close=%d want 0", got)
	}
	if got := readAttr(t, filepath.Join(pwmDir, "enable")); got != "0" {
		t.Fatalf("enable after close=%s want 0", got)
	}
}

func TestSysfsSetDuty_RecordsErrorWithoutReturning(t *testing.T) {
	_, pwmDir := fakeChip(t)

	dev, err := openSysfs(Config{FrequencyHz: 1000, DutyRange: 1023})
	if err != nil {
		t.Fatalf("openSysfs: %v", err)
	}
	if err := os.Remove(filepath.Join(pwmDir, "duty_cycle")); err != nil {
		t.Fatalf("Remove: %v", err)
	}
	dev.SetDuty(10)
	if dev.Err() == nil {
		t.Fatalf("expected recorded error")
	}

	if err := os.WriteFile(filepath.Join(pwmDir, "duty_cycle"), []byte("0\n"), 0o644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}
	dev.SetDuty(10)
	if err := dev.Err(); err != nil {
		t.Fatalf("Err after recovery=%v want nil", err)
	}
}

func TestSysfsExport_WaitsForChannel(t *testing.T) {
	base, pwmDir := fakeChip(t)
	if err := os.RemoveAll(pwmDir); err != nil {
		t.Fatalf("RemoveAll: %v", err)
	}
	oldWait := exportWait
	exportWait = 20 * time.Millisecond
	t.Cleanup(func() { exportWait = oldWait })

	d := &sysfsPWM{
		chipPath: filepath.Join(base, "pwmchip0"),
		pwmPath:  pwmDir,
		channel:  0,
	}
	if err := d.ensureExported(); err == nil {
		t.Fatalf("expected error when channel never appears")
	}
	if got := readAttr(t, filepath.Join(base, "pwmchip0", "export")); got != "0" {
		t.Fatalf("export=%q want 0", got)
	}
}
