package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"time"

	"probmeter/internal/config"
	"probmeter/internal/controller"
	"probmeter/internal/display"
	"probmeter/internal/meter"
	"probmeter/internal/pwm"
	"probmeter/internal/source"
	"probmeter/internal/wifi"
)

var (
	openPWMFn  = pwm.Open
	openLCDFn  = func(cfg display.LCDConfig) (display.Sink, error) { return display.OpenLCD(cfg) }
	openLEDFn  = func(cfg display.LEDConfig) (display.Sink, error) { return display.OpenLED(cfg) }
	openMQTTFn = func(cfg display.MQTTConfig) (display.Sink, error) { return display.OpenMQTT(cfg) }
)

// runtime owns every device opened for one run of the meter.
type runtime struct {
	ctrl  *controller.Controller
	pwm   pwm.Device
	sinks display.Multi
	wifi  *wifi.Connector
}

func newRuntime(cfg config.Config) (*runtime, error) {
	cal := meter.Calibration{
		CenterDuty: cfg.Meter.CenterDuty,
		MaxDuty:    cfg.Meter.MaxDuty,
		DutyRange:  cfg.Meter.DutyRange,
	}
	if err := cal.Validate(); err != nil {
		return nil, err
	}

	dev, err := openPWMFn(pwm.Config{
		Backend:     cfg.Meter.Backend,
		Chip:        cfg.Meter.PWMChip,
		Channel:     cfg.Meter.PWMChannel,
		FrequencyHz: cfg.Meter.FrequencyHz,
		DutyRange:   cfg.Meter.DutyRange,
	})
	if err != nil {
		return nil, fmt.Errorf("pwm init failed: %w", err)
	}
	drv, err := meter.NewDriver(cal, dev)
	if err != nil {
		_ = dev.Close()
		return nil, err
	}

	client, err := source.NewClient(source.Config{
		URL:       cfg.Source.URL,
		Timeout:   cfg.Source.Timeout,
		UserAgent: "probmeter",
	}, &http.Client{})
	if err != nil {
		_ = dev.Close()
		return nil, err
	}

	r := &runtime{pwm: dev, sinks: display.Multi{display.NewLog()}}

	var net controller.Reconnector
	if cfg.WiFi.Enable {
		r.wifi = wifi.New(wifi.Config{
			Enable:    true,
			Interface: cfg.WiFi.Interface,
			SSID:      cfg.WiFi.SSID,
			Password:  cfg.WiFi.Password,
		})
		net = r.wifi
	}

	// Optional sinks are best effort.
	if cfg.LCD.Enable {
		if s, err := openLCDFn(display.LCDConfig{
			Bus:  cfg.LCD.Bus,
			Addr: uint16(cfg.LCD.Addr),
			Cols: cfg.LCD.Cols,
			Rows: cfg.LCD.Rows,
		}); err != nil {
			log.Printf("lcd init failed: %v", err)
		} else {
			r.sinks = append(r.sinks, s)
		}
	}
	if cfg.LED.Enable {
		if s, err := openLEDFn(display.LEDConfig{Chip: cfg.LED.Chip, Pin: cfg.LED.Pin}); err != nil {
			log.Printf("led init failed: %v", err)
		} else {
			r.sinks = append(r.sinks, s)
		}
	}
	if cfg.MQTT.Enable {
		if s, err := openMQTTFn(display.MQTTConfig{
			Broker:   cfg.MQTT.Broker,
			Topic:    cfg.MQTT.Topic,
			ClientID: cfg.MQTT.ClientID,
			Timeout:  cfg.MQTT.Timeout,
		}); err != nil {
			log.Printf("mqtt init failed: %v", err)
		} else {
			r.sinks = append(r.sinks, s)
		}
	}

	r.ctrl = controller.New(controller.Config{
		PollInterval:     cfg.Source.Interval,
		LoopDelay:        cfg.Loop.Delay,
		ReconnectTimeout: cfg.Loop.ReconnectTimeout,
	}, drv, client, net, r.sinks)
	return r, nil
}

// connect brings the network up once before the first poll.
func (r *runtime) connect(ctx context.Context, timeout time.Duration) {
	if r.wifi == nil {
		return
	}
	cctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	if err := r.wifi.Reconnect(cctx); err != nil {
		log.Printf("wifi connect failed: %v", err)
	}
}

// Close parks the needle at zero and releases every device.
func (r *runtime) Close() error {
	return errors.Join(r.pwm.Close(), r.sinks.Close())
}
