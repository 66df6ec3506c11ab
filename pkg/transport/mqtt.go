// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 the ramses-rf authors

package transport

import (
	"encoding/json"
	"fmt"
	"sync"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/sirupsen/logrus"
)

// mqttFrame is the JSON envelope carried on the rx/tx topics.
type mqttFrame struct {
	Timestamp string `json:"ts,omitempty"`
	Message   string `json:"msg"`
}

// MQTTConfig configures an MQTT gateway connection.
type MQTTConfig struct {
	Broker    string // e.g. tcp://homeassistant:1883
	Username  string
	Password  string
	ClientID  string
	BaseTopic string // frames arrive on <base>/rx, leave on <base>/tx
}

// MQTTTransport bridges to a RAMSES gateway over an MQTT broker. The
// broker does not echo, so an echo is synthesized locally for every
// published frame.
type MQTTTransport struct {
	client mqtt.Client
	cfg    MQTTConfig
	lines  chan Line
	log    logrus.FieldLogger
	stats  *Stats

	mu        sync.Mutex
	closed    bool
	closeOnce sync.Once
	err       error
}

// OpenMQTT connects to the broker and subscribes to the rx topic.
func OpenMQTT(cfg MQTTConfig, log logrus.FieldLogger) (*MQTTTransport, error) {
	if cfg.ClientID == "" {
		cfg.ClientID = "ramses-rf"
	}
	t := &MQTTTransport{
		cfg:   cfg,
		lines: make(chan Line, 64),
		log:   log,
		stats: &Stats{},
	}

	opts := mqtt.NewClientOptions().
		AddBroker(cfg.Broker).
		SetClientID(cfg.ClientID).
		SetUsername(cfg.Username).
		SetPassword(cfg.Password).
		SetAutoReconnect(true).
		SetConnectionLostHandler(func(_ mqtt.Client, err error) {
			log.WithError(err).Warn("mqtt connection lost")
		})

	t.client = mqtt.NewClient(opts)
	token := t.client.Connect()
	if !token.WaitTimeout(15*time.Second) || token.Error() != nil {
		return nil, fmt.Errorf("mqtt connect to %s: %w", cfg.Broker, token.Error())
	}

	rxTopic := cfg.BaseTopic + "/rx"
	token = t.client.Subscribe(rxTopic, 0, t.onMessage)
	if !token.WaitTimeout(15*time.Second) || token.Error() != nil {
		t.client.Disconnect(250)
		return nil, fmt.Errorf("mqtt subscribe %s: %w", rxTopic, token.Error())
	}

	log.WithField("broker", cfg.Broker).WithField("topic", rxTopic).Info("mqtt gateway connected")
	return t, nil
}

func (t *MQTTTransport) onMessage(_ mqtt.Client, msg mqtt.Message) {
	var frame mqttFrame
	if err := json.Unmarshal(msg.Payload(), &frame); err != nil {
		// Some bridges publish the bare frame line instead of JSON.
		frame.Message = string(msg.Payload())
	}
	t.deliver(frame.Message)
}

func (t *MQTTTransport) deliver(text string) {
	if !wantLine(text) {
		t.stats.Skipped.Inc()
		return
	}
	t.stats.LinesIn.Inc()
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.closed {
		return
	}
	select {
	case t.lines <- Line{Text: text, When: time.Now()}:
	default:
		t.log.Warn("mqtt line buffer full, dropping frame")
	}
}

// Lines returns the inbound line stream.
func (t *MQTTTransport) Lines() <-chan Line { return t.lines }

// WriteLine publishes one frame line to the tx topic and loops it back
// as a synthesized echo.
func (t *MQTTTransport) WriteLine(text string) error {
	t.stats.LinesOut.Inc()
	payload, err := json.Marshal(mqttFrame{
		Timestamp: time.Now().UTC().Format(time.RFC3339Nano),
		Message:   text,
	})
	if err != nil {
		return err
	}
	token := t.client.Publish(t.cfg.BaseTopic+"/tx", 0, false, payload)
	if !token.WaitTimeout(5*time.Second) || token.Error() != nil {
		return fmt.Errorf("mqtt publish: %w", token.Error())
	}
	t.deliver(text)
	return nil
}

// Close disconnects from the broker.
func (t *MQTTTransport) Close() error {
	t.closeOnce.Do(func() {
		t.client.Disconnect(250)
		t.mu.Lock()
		t.closed = true
		close(t.lines)
		t.mu.Unlock()
	})
	return nil
}

// Err reports why the line stream ended, nil on a clean close.
func (t *MQTTTransport) Err() error { return t.err }

// Statistics returns the transport's line counters.
func (t *MQTTTransport) Statistics() *Stats { return t.stats }
