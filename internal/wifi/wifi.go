// Package wifi keeps the uplink associated using NetworkManager (nmcli).
//
// The commands need root (or a polkit rule for nmcli).
package wifi

import (
	"context"
	"fmt"
	"os/exec"
	"strings"
)

type Config struct {
	Enable    bool
	Interface string
	SSID      string
	Password  string
}

// Status is the uplink as NetworkManager reports it.
type Status struct {
	Interface  string `json:"interface"`
	Connection string `json:"connection,omitempty"`
	State      string `json:"state"`
	IP         string `json:"ip,omitempty"`
}

func (s Status) Connected() bool {
	return strings.Contains(s.State, "(connected)")
}

const connName = "probmeter"

type runFunc func(ctx context.Context, name string, args ...string) ([]byte, error)

func execRun(ctx context.Context, name string, args ...string) ([]byte, error) {
	return exec.CommandContext(ctx, name, args...).CombinedOutput()
}

type Connector struct {
	cfg Config
	run runFunc
}

func New(cfg Config) *Connector {
	if cfg.Interface == "" {
		cfg.Interface = "wlan0"
	}
	return &Connector{cfg: cfg, run: execRun}
}

// Reconnect (re)associates the configured interface with the configured SSID.
// It is a no-op when the connector is disabled.
func (c *Connector) Reconnect(ctx context.Context) error {
	if !c.cfg.Enable {
		return nil
	}
	if c.cfg.SSID == "" {
		return fmt.Errorf("wifi: ssid is required")
	}
	iface := c.cfg.Interface

	// Make sure NetworkManager manages the device, and drop any stale profile
	// so 'device wifi connect' re-detects the security settings.
	_, _ = c.run(ctx, "nmcli", "dev", "set", iface, "managed", "yes")
	_, _ = c.run(ctx, "nmcli", "con", "delete", connName)

	args := []string{
		"device", "wifi", "connect", c.cfg.SSID,
		"ifname", iface,
		"name", connName,
	}
	if c.cfg.Password != "" {
		args = append(args, "password", c.cfg.Password)
	}
	if out, err := c.run(ctx, "nmcli", args...); err != nil {
		return fmt.Errorf("wifi: connect %q: %v, output: %s", c.cfg.SSID, err, strings.TrimSpace(string(out)))
	}
	return nil
}

// Status queries the interface state. Disabled connectors report "unmanaged".
func (c *Connector) Status(ctx context.Context) (Status, error) {
	st := Status{Interface: c.cfg.Interface, State: "unmanaged"}
	if !c.cfg.Enable {
		return st, nil
	}
	out, err := c.run(ctx, "nmcli", "-t", "-f", "GENERAL.STATE,GENERAL.CONNECTION,IP4.ADDRESS", "dev", "show", c.cfg.Interface)
	if err != nil {
		return st, fmt.Errorf("wifi: status %s: %v", c.cfg.Interface, err)
	}
	return parseDeviceShow(c.cfg.Interface, string(out)), nil
}

// parseDeviceShow parses `nmcli -t dev show` output (key:value per line).
func parseDeviceShow(iface, out string) Status {
	st := Status{Interface: iface}
	for _, line := range strings.Split(out, "\n") {
		key, val, ok := strings.Cut(strings.TrimSpace(line), ":")
		if !ok {
			continue
		}
		switch {
		case key == "GENERAL.STATE":
			st.State = val
		case key == "GENERAL.CONNECTION":
			st.Connection = val
		case strings.HasPrefix(key, "IP4.ADDRESS") && st.IP == "":
			st.IP = val
		}
	}
	return st
}
