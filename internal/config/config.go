package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"net/url"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

type Config struct {
	Meter   MeterConfig   `yaml:"meter"`
	Source  SourceConfig  `yaml:"source"`
	Loop    LoopConfig    `yaml:"loop"`
	WiFi    WiFiConfig    `yaml:"wifi"`
	Console ConsoleConfig `yaml:"console"`
	LCD     LCDConfig     `yaml:"lcd"`
	LED     LEDConfig     `yaml:"led"`
	MQTT    MQTTConfig    `yaml:"mqtt"`
	Web     WebConfig     `yaml:"web"`
}

// MeterConfig holds the per-unit calibration and the PWM output it drives.
type MeterConfig struct {
	CenterDuty int `yaml:"center_duty"`
	MaxDuty    int `yaml:"max_duty"`
	DutyRange  int `yaml:"duty_range"`

	// Backend is "sysfs" or "dry-run".
	Backend     string `yaml:"backend"`
	PWMChip     string `yaml:"pwm_chip"`
	PWMChannel  int    `yaml:"pwm_channel"`
	FrequencyHz int    `yaml:"frequency_hz"`
}

type SourceConfig struct {
	URL      string        `yaml:"url"`
	Interval time.Duration `yaml:"interval"`
	Timeout  time.Duration `yaml:"timeout"`
}

type LoopConfig struct {
	Delay            time.Duration `yaml:"delay"`
	ReconnectTimeout time.Duration `yaml:"reconnect_timeout"`
}

type WiFiConfig struct {
	Enable    bool   `yaml:"enable"`
	Interface string `yaml:"interface"`
	SSID      string `yaml:"ssid"`
	Password  string `yaml:"password"`
}

type ConsoleConfig struct {
	Port  string `yaml:"port"`
	Baud  int    `yaml:"baud"`
	Stdin bool   `yaml:"stdin"`
}

type LCDConfig struct {
	Enable bool   `yaml:"enable"`
	Bus    string `yaml:"bus"`
	Addr   int    `yaml:"addr"`
	Cols   int    `yaml:"cols"`
	Rows   int    `yaml:"rows"`
}

type LEDConfig struct {
	Enable bool   `yaml:"enable"`
	Chip   string `yaml:"chip"`
	Pin    int    `yaml:"pin"`
}

type MQTTConfig struct {
	Enable   bool          `yaml:"enable"`
	Broker   string        `yaml:"broker"`
	Topic    string        `yaml:"topic"`
	ClientID string        `yaml:"client_id"`
	Timeout  time.Duration `yaml:"timeout"`
}

type WebConfig struct {
	Listen string `yaml:"listen"`
}

func Load(path string) (Config, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return Config{}, err
	}
	return Parse(b)
}

func Parse(b []byte) (Config, error) {
	var cfg Config
	dec := yaml.NewDecoder(bytes.NewReader(b))
	dec.KnownFields(true)
	if err := dec.Decode(&cfg); err != nil && !errors.Is(err, io.EOF) {
		return Config{}, err
	}
	applyDefaults(&cfg)
	if err := validate(cfg); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func applyDefaults(cfg *Config) {
	// Reference calibration (first hardware revision).
	if cfg.Meter.CenterDuty == 0 && cfg.Meter.MaxDuty == 0 {
		cfg.Meter.CenterDuty = 46
		cfg.Meter.MaxDuty = 91
	}
	if cfg.Meter.DutyRange == 0 {
		cfg.Meter.DutyRange = 1023
	}
	if cfg.Meter.Backend == "" {
		cfg.Meter.Backend = "sysfs"
	}
	if cfg.Meter.FrequencyHz == 0 {
		cfg.Meter.FrequencyHz = 1000
	}

	if cfg.Source.Interval <= 0 {
		cfg.Source.Interval = 30 * time.Second
	}
	if cfg.Source.Timeout <= 0 {
		cfg.Source.Timeout = 10 * time.Second
	}

	if cfg.Loop.Delay <= 0 {
		cfg.Loop.Delay = 100 * time.Millisecond
	}
	if cfg.Loop.ReconnectTimeout <= 0 {
		cfg.Loop.ReconnectTimeout = 30 * time.Second
	}

	if cfg.WiFi.Interface == "" {
		cfg.WiFi.Interface = "wlan0"
	}

	if cfg.Console.Baud == 0 {
		cfg.Console.Baud = 115200
	}

	if cfg.LCD.Bus == "" {
		cfg.LCD.Bus = "/dev/i2c-1"
	}
	if cfg.LCD.Addr == 0 {
		cfg.LCD.Addr = 0x27
	}
	if cfg.LCD.Cols == 0 {
		cfg.LCD.Cols = 16
	}
	if cfg.LCD.Rows == 0 {
		cfg.LCD.Rows = 2
	}

	if cfg.LED.Chip == "" {
		cfg.LED.Chip = "gpiochip0"
	}

	if cfg.MQTT.Topic == "" {
		cfg.MQTT.Topic = "probmeter/status"
	}
	if cfg.MQTT.ClientID == "" {
		cfg.MQTT.ClientID = "probmeter"
	}
	if cfg.MQTT.Timeout <= 0 {
		cfg.MQTT.Timeout = 5 * time.Second
	}
}

func validate(cfg Config) error {
	m := cfg.Meter
	if m.DutyRange < 0 {
		return fmt.Errorf("meter.duty_range must be > 0")
	}
	if m.CenterDuty < 0 || m.CenterDuty > 100 {
		return fmt.Errorf("meter.center_duty must be within 0..100")
	}
	if m.MaxDuty < m.CenterDuty || m.MaxDuty > 100 {
		return fmt.Errorf("meter.max_duty must be within meter.center_duty..100")
	}
	switch m.Backend {
	case "sysfs", "dry-run":
	default:
		return fmt.Errorf("meter.backend must be 'sysfs' or 'dry-run'")
	}
	if m.FrequencyHz < 0 {
		return fmt.Errorf("meter.frequency_hz must be > 0")
	}

	if cfg.Source.URL == "" {
		return fmt.Errorf("source.url is required")
	}
	u, err := url.Parse(cfg.Source.URL)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return fmt.Errorf("source.url must be an absolute http(s) URL")
	}

	if cfg.WiFi.Enable && cfg.WiFi.SSID == "" {
		return fmt.Errorf("wifi.ssid is required when wifi.enable is true")
	}

	if cfg.Console.Port != "" && cfg.Console.Stdin {
		return fmt.Errorf("console.port and console.stdin cannot both be set")
	}
	if cfg.Console.Baud < 0 {
		return fmt.Errorf("console.baud must be > 0")
	}

	if cfg.LCD.Enable {
		if cfg.LCD.Addr <= 0 || cfg.LCD.Addr > 0x7F {
			return fmt.Errorf("lcd.addr must be a 7-bit i2c address")
		}
		if cfg.LCD.Rows < 1 || cfg.LCD.Rows > 4 {
			return fmt.Errorf("lcd.rows must be within 1..4")
		}
		if cfg.LCD.Cols < 1 {
			return fmt.Errorf("lcd.cols must be > 0")
		}
	}

	if cfg.LED.Enable && cfg.LED.Pin < 0 {
		return fmt.Errorf("led.pin must be >= 0")
	}

	if cfg.MQTT.Enable && cfg.MQTT.Broker == "" {
		return fmt.Errorf("mqtt.broker is required when mqtt.enable is true")
	}
	return nil
}
