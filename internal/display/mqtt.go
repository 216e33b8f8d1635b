package display

import (
	"bytes"
	"encoding/json"
	"fmt"
	"log"
	"sync"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
)

type MQTTConfig struct {
	Broker   string // tcp://host:1883
	Topic    string
	ClientID string
	Timeout  time.Duration
}

// MQTT publishes every distinct Status as a retained JSON message.
type MQTT struct {
	topic   string
	timeout time.Duration
	publish func(topic string, payload []byte) mqtt.Token
	close   func()

	mu   sync.Mutex
	last []byte
	wg   sync.WaitGroup
}

func OpenMQTT(cfg MQTTConfig) (*MQTT, error) {
	if cfg.Topic == "" {
		return nil, fmt.Errorf("display: mqtt topic is required")
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 5 * time.Second
	}
	opts := mqtt.NewClientOptions().
		AddBroker(cfg.Broker).
		SetClientID(cfg.ClientID).
		SetAutoReconnect(true).
		SetConnectRetry(true).
		SetConnectTimeout(cfg.Timeout)
	client := mqtt.NewClient(opts)

	token := client.Connect()
	if !token.WaitTimeout(cfg.Timeout) {
		// ConnectRetry keeps trying in the background; publishes queue meanwhile.
		log.Printf("display: mqtt broker %s not reachable yet", cfg.Broker)
	} else if err := token.Error(); err != nil {
		return nil, fmt.Errorf("display: mqtt connect %s: %w", cfg.Broker, err)
	}

	return &MQTT{
		topic:   cfg.Topic,
		timeout: cfg.Timeout,
		publish: func(topic string, payload []byte) mqtt.Token {
			return client.Publish(topic, 0, true, payload)
		},
		close: func() { client.Disconnect(250) },
	}, nil
}

// Show queues st for publishing and returns without waiting for the broker.
// A publish that fails is retried on the next Show.
func (m *MQTT) Show(st Status) {
	payload, err := json.Marshal(st)
	if err != nil {
		log.Printf("display: mqtt marshal: %v", err)
		return
	}
	m.mu.Lock()
	if bytes.Equal(payload, m.last) {
		m.mu.Unlock()
		return
	}
	m.last = payload
	m.mu.Unlock()

	tok := m.publish(m.topic, payload)
	m.wg.Add(1)
	go m.await(tok, payload)
}

func (m *MQTT) await(tok mqtt.Token, payload []byte) {
	defer m.wg.Done()
	var err error
	if !tok.WaitTimeout(m.timeout) {
		err = fmt.Errorf("publish %s: timed out", m.topic)
	} else {
		err = tok.Error()
	}
	if err == nil {
		return
	}
	log.Printf("display: mqtt %v", err)
	m.mu.Lock()
	if bytes.Equal(payload, m.last) {
		m.last = nil
	}
	m.mu.Unlock()
}

// Close disconnects and waits for outstanding publishes to settle.
func (m *MQTT) Close() error {
	if m.close != nil {
		m.close()
	}
	m.wg.Wait()
	return nil
}
