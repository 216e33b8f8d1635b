package main

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"probmeter/internal/config"
	"probmeter/internal/display"
	"probmeter/internal/pwm"
)

type fakeSink struct {
	mu     sync.Mutex
	shown  []display.Status
	closed bool
}

func (s *fakeSink) Show(st display.Status) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.shown = append(s.shown, st)
}

func (s *fakeSink) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	return nil
}

func (s *fakeSink) last() (display.Status, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.shown) == 0 {
		return display.Status{}, false
	}
	return s.shown[len(s.shown)-1], true
}

func stubDevices(t *testing.T) (*pwm.Recorder, *fakeSink) {
	t.Helper()
	rec := pwm.NewRecorder(1023)
	sink := &fakeSink{}

	prevPWM, prevLCD, prevLED, prevMQTT := openPWMFn, openLCDFn, openLEDFn, openMQTTFn
	t.Cleanup(func() {
		openPWMFn, openLCDFn, openLEDFn, openMQTTFn = prevPWM, prevLCD, prevLED, prevMQTT
	})
	openPWMFn = func(cfg pwm.Config) (pwm.Device, error) { return rec, nil }
	openLCDFn = func(cfg display.LCDConfig) (display.Sink, error) { return sink, nil }
	openLEDFn = func(cfg display.LEDConfig) (display.Sink, error) { return nil, errors.New("no gpio") }
	openMQTTFn = func(cfg display.MQTTConfig) (display.Sink, error) { return nil, errors.New("no broker") }
	return rec, sink
}

func testConfig(t *testing.T, url string) config.Config {
	t.Helper()
	cfg, err := config.Parse([]byte("source:\n  url: '" + url + "'\nmeter:\n  backend: dry-run\nloop:\n  delay: 5ms\nlcd:\n  enable: true\nled:\n  enable: true\n  pin: 17\nmqtt:\n  enable: true\n  broker: tcp://127.0.0.1:1\n"))
	require.NoError(t, err)
	return cfg
}

func TestNewRuntime_SkipsFailedOptionalSinks(t *testing.T) {
	_, _ = stubDevices(t)
	rt, err := newRuntime(testConfig(t, "http://127.0.0.1:1/p"))
	require.NoError(t, err)
	// Log + LCD; LED and MQTT failed to open.
	assert.Len(t, rt.sinks, 2)
	assert.Nil(t, rt.wifi)
	require.NoError(t, rt.Close())
}

func TestNewRuntime_PWMFailureIsFatal(t *testing.T) {
	_, _ = stubDevices(t)
	openPWMFn = func(cfg pwm.Config) (pwm.Device, error) { return nil, errors.New("no pwmchip") }
	_, err := newRuntime(testConfig(t, "http://127.0.0.1:1/p"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no pwmchip")
}

func TestRun_PollsSourceAndClosesSinks(t *testing.T) {
	rec, sink := stubDevices(t)
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"probability": 0.75, "title": "Rain tomorrow"}`))
	}))
	t.Cleanup(ts.Close)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- run(ctx, testConfig(t, ts.URL), nil) }()

	require.Eventually(t, func() bool {
		st, ok := sink.last()
		return ok && st.State == display.StateOK
	}, 2*time.Second, 5*time.Millisecond)
	st, _ := sink.last()
	assert.Equal(t, 700, st.Duty)
	assert.Equal(t, "Rain tomorrow", st.Title)

	cancel()
	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatalf("run did not stop")
	}
	assert.Contains(t, rec.Levels(), 700)
	sink.mu.Lock()
	assert.True(t, sink.closed)
	sink.mu.Unlock()
}

func TestNewRuntime_PassesMQTTSettings(t *testing.T) {
	_, _ = stubDevices(t)
	var got display.MQTTConfig
	openMQTTFn = func(cfg display.MQTTConfig) (display.Sink, error) {
		got = cfg
		return &fakeSink{}, nil
	}
	cfg := testConfig(t, "http://127.0.0.1:1/p")
	cfg.MQTT.Timeout = 750 * time.Millisecond

	rt, err := newRuntime(cfg)
	require.NoError(t, err)
	t.Cleanup(func() { _ = rt.Close() })

	assert.Equal(t, "tcp://127.0.0.1:1", got.Broker)
	assert.Equal(t, "probmeter/status", got.Topic)
	assert.Equal(t, 750*time.Millisecond, got.Timeout)
}
