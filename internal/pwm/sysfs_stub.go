//go:build !linux

package pwm

import "fmt"

func openSysfs(cfg Config) (Device, error) {
	return nil, fmt.Errorf("pwm: sysfs backend unsupported on this platform")
}
