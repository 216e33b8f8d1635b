package wifi

import (
	"context"
	"errors"
	"reflect"
	"strings"
	"testing"
)

type call struct {
	name string
	args []string
}

func fakeRunner(calls *[]call, fail map[string]error, outputs map[string]string) runFunc {
	return func(ctx context.Context, name string, args ...string) ([]byte, error) {
		*calls = append(*calls, call{name: name, args: args})
		key := strings.Join(args, " ")
		for prefix, err := range fail {
			if strings.HasPrefix(key, prefix) {
				return []byte("Error: no network"), err
			}
		}
		for prefix, out := range outputs {
			if strings.HasPrefix(key, prefix) {
				return []byte(out), nil
			}
		}
		return nil, nil
	}
}

func TestReconnect_Disabled(t *testing.T) {
	var calls []call
	c := New(Config{})
	c.run = fakeRunner(&calls, nil, nil)
	if err := c.Reconnect(context.Background()); err != nil {
		t.Fatalf("err=%v", err)
	}
	if len(calls) != 0 {
		t.Fatalf("calls=%v want none", calls)
	}
}

func TestReconnect_ConnectsWithPassword(t *testing.T) {
	var calls []call
	c := New(Config{Enable: true, SSID: "HomeNet", Password: "secret"})
	c.run = fakeRunner(&calls, nil, nil)
	if err := c.Reconnect(context.Background()); err != nil {
		t.Fatalf("err=%v", err)
	}
	if len(calls) != 3 {
		t.Fatalf("calls=%d want 3", len(calls))
	}
	want := []string{"device", "wifi", "connect", "HomeNet", "ifname", "wlan0", "name", "probmeter", "password", "secret"}
	if !reflect.DeepEqual(calls[2].args, want) {
		t.Fatalf("args=%v want %v", calls[2].args, want)
	}
}

func TestReconnect_ReportsFailureOutput(t *testing.T) {
	var calls []call
	c := New(Config{Enable: true, SSID: "HomeNet", Interface: "wlan1"})
	c.run = fakeRunner(&calls, map[string]error{"device wifi connect": errors.New("exit status 10")}, nil)
	err := c.Reconnect(context.Background())
	if err == nil || !strings.Contains(err.Error(), "no network") {
		t.Fatalf("err=%v want output in message", err)
	}
	for _, a := range calls[2].args {
		if a == "password" {
			t.Fatalf("password arg present without password: %v", calls[2].args)
		}
	}
}

func TestReconnect_RequiresSSID(t *testing.T) {
	c := New(Config{Enable: true})
	if err := c.Reconnect(context.Background()); err == nil {
		t.Fatalf("expected error")
	}
}

func TestStatus_ParsesDeviceShow(t *testing.T) {
	var calls []call
	out := "GENERAL.STATE:100 (connected)\nGENERAL.CONNECTION:probmeter\nIP4.ADDRESS[1]:192.168.1.50/24\nIP4.ADDRESS[2]:10.0.0.2/8\n"
	c := New(Config{Enable: true, SSID: "HomeNet"})
	c.run = fakeRunner(&calls, nil, map[string]string{"-t": out})

	st, err := c.Status(context.Background())
	if err != nil {
		t.Fatalf("err=%v", err)
	}
	if !st.Connected() {
		t.Fatalf("state=%q want connected", st.State)
	}
	if st.Connection != "probmeter" || st.IP != "192.168.1.50/24" || st.Interface != "wlan0" {
		t.Fatalf("status=%+v", st)
	}
}

func TestStatus_Disabled(t *testing.T) {
	st, err := New(Config{}).Status(context.Background())
	if err != nil {
		t.Fatalf("err=%v", err)
	}
	if st.State != "unmanaged" || st.Connected() {
		t.Fatalf("status=%+v", st)
	}
}

func TestParseDeviceShow_Disconnected(t *testing.T) {
	st := parseDeviceShow("wlan0", "GENERAL.STATE:30 (disconnected)\nGENERAL.CONNECTION:\n")
	if st.Connected() {
		t.Fatalf("state=%q should not be connected", st.State)
	}
}
