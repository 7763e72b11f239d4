// Copyright 2026 The Zaparoo Project Contributors.
// SPDX-License-Identifier: Apache-2.0
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.


// Package publish forwards delivered response sets to an MQTT broker.
package publish

import (
	"crypto/tls"
	"crypto/x509"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"sort"
	"strings"
	"time"

	"github.com/ZaparooProject/go-smartcard"
	paho "github.com/eclipse/paho.mqtt.golang"
)

const (
	defaultPort     = 1883
	defaultTopic    = "smartcard/responses"
	publishTimeout  = 5 * time.Second
	disconnectQuiet = 250 // milliseconds
)

// Config holds MQTT connection settings. An empty Host disables publishing.
type Config struct {
	Host       string `yaml:"host"`
	Topic      string `yaml:"topic"`
	ClientID   string `yaml:"client_id"`
	CACert     string `yaml:"ca_cert"`
	ClientCert string `yaml:"client_cert"`
	ClientKey  string `yaml:"client_key"`
	Port       int    `yaml:"port"`
	QoS        byte   `yaml:"qos"`
	Retain     bool   `yaml:"retain"`
}

// Enabled reports whether the configuration names a broker.
func (c Config) Enabled() bool {
	return c.Host != ""
}

// Validate checks the settings that New cannot default.
func (c Config) Validate() error {
	if !c.Enabled() {
		return nil
	}
	if c.Port < 0 || c.Port > 65535 {
		return fmt.Errorf("mqtt port %d out of range", c.Port)
	}
	if c.QoS > 2 {
		return fmt.Errorf("mqtt qos %d must be 0, 1 or 2", c.QoS)
	}
	if strings.ContainsAny(c.Topic, "+#") {
		return fmt.Errorf("mqtt topic %q must not contain wildcards", c.Topic)
	}
	if (c.ClientCert == "") != (c.ClientKey == "") {
		return errors.New("mqtt client_cert and client_key must be set together")
	}
	return nil
}

// Entry is one response in a published message.
type Entry struct {
	Data    string `json:"data"`
	Channel int    `json:"channel"`
}

// Message is the JSON document published for each delivered response set.
type Message struct {
	Time      time.Time          `json:"time"`
	Terminals map[string][]Entry `json:"terminals"`
}

// NewMessage converts a response set into its published form. Data is
// upper case hex.
func NewMessage(at time.Time, responses map[string][]smartcard.Response) Message {
	msg := Message{Time: at.UTC(), Terminals: make(map[string][]Entry, len(responses))}
	for name, list := range responses {
		entries := make([]Entry, 0, len(list))
		for _, r := range list {
			entries = append(entries, Entry{
				Channel: r.Channel(),
				Data:    strings.ToUpper(hex.EncodeToString(r.Data())),
			})
		}
		msg.Terminals[name] = entries
	}
	return msg
}

// Publisher sends response sets to a broker. A disabled Publisher accepts
// every call and does nothing.
type Publisher struct {
	client  paho.Client
	topic   string
	qos     byte
	retain  bool
	enabled bool
}

// New creates a Publisher. It returns a disabled Publisher when cfg has no
// host.
func New(cfg Config) (*Publisher, error) {
	if !cfg.Enabled() {
		smartcard.Debugln("MQTT disabled (no host configured)")
		return &Publisher{}, nil
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	opts, err := clientOptions(cfg)
	if err != nil {
		return nil, err
	}
	return newPublisher(cfg, paho.NewClient(opts)), nil
}

func newPublisher(cfg Config, client paho.Client) *Publisher {
	topic := cfg.Topic
	if topic == "" {
		topic = defaultTopic
	}
	return &Publisher{
		client:  client,
		topic:   topic,
		qos:     cfg.QoS,
		retain:  cfg.Retain,
		enabled: true,
	}
}

// brokerURL returns the broker address, using ssl:// when any TLS material
// is configured.
func brokerURL(cfg Config) string {
	if cfg.CACert != "" || cfg.ClientCert != "" {
		port := cfg.Port
		if port == 0 {
			port = 8883
		}
		return fmt.Sprintf("ssl://%s:%d", cfg.Host, port)
	}
	port := cfg.Port
	if port == 0 {
		port = defaultPort
	}
	return fmt.Sprintf("tcp://%s:%d", cfg.Host, port)
}

func clientOptions(cfg Config) (*paho.ClientOptions, error) {
	clientID := cfg.ClientID
	if clientID == "" {
		host, _ := os.Hostname()
		clientID = "cardpoll-" + host
	}

	opts := paho.NewClientOptions().
		AddBroker(brokerURL(cfg)).
		SetClientID(clientID).
		SetAutoReconnect(true).
		SetConnectRetry(true).
		SetKeepAlive(60 * time.Second).
		SetConnectionLostHandler(func(_ paho.Client, err error) {
			smartcard.Debugf("MQTT connection lost: %v", err)
		}).
		SetOnConnectHandler(func(paho.Client) {
			smartcard.Debugln("MQTT connection established")
		})

	if cfg.CACert != "" || cfg.ClientCert != "" {
		tlsConfig, err := buildTLSConfig(cfg)
		if err != nil {
			return nil, fmt.Errorf("build TLS config: %w", err)
		}
		opts.SetTLSConfig(tlsConfig)
	}
	return opts, nil
}

func buildTLSConfig(cfg Config) (*tls.Config, error) {
	tlsConfig := &tls.Config{MinVersion: tls.VersionTLS12}

	if cfg.CACert != "" {
		caCert, err := os.ReadFile(cfg.CACert)
		if err != nil {
			return nil, fmt.Errorf("read CA cert: %w", err)
		}
		caPool := x509.NewCertPool()
		if !caPool.AppendCertsFromPEM(caCert) {
			return nil, fmt.Errorf("no certificates in %s", cfg.CACert)
		}
		tlsConfig.RootCAs = caPool
	}

	if cfg.ClientCert != "" && cfg.ClientKey != "" {
		cert, err := tls.LoadX509KeyPair(cfg.ClientCert, cfg.ClientKey)
		if err != nil {
			return nil, fmt.Errorf("load client cert: %w", err)
		}
		tlsConfig.Certificates = []tls.Certificate{cert}
	}

	return tlsConfig, nil
}

// Enabled reports whether the Publisher talks to a broker.
func (p *Publisher) Enabled() bool {
	return p.enabled
}

// Topic returns the topic messages are published on.
func (p *Publisher) Topic() string {
	return p.topic
}

// Connect connects to the broker. It is a no-op when disabled.
func (p *Publisher) Connect() error {
	if !p.enabled {
		return nil
	}
	if token := p.client.Connect(); token.Wait() && token.Error() != nil {
		return fmt.Errorf("connect: %w", token.Error())
	}
	return nil
}

// Disconnect closes the broker connection. It is a no-op when disabled.
func (p *Publisher) Disconnect() {
	if !p.enabled || p.client == nil {
		return
	}
	p.client.Disconnect(disconnectQuiet)
}

// Publish sends responses as one JSON message.
func (p *Publisher) Publish(responses map[string][]smartcard.Response) error {
	if !p.enabled {
		return nil
	}

	payload, err := json.Marshal(NewMessage(time.Now(), responses))
	if err != nil {
		return fmt.Errorf("encode responses: %w", err)
	}

	token := p.client.Publish(p.topic, p.qos, p.retain, payload)
	if !token.WaitTimeout(publishTimeout) {
		return fmt.Errorf("publish to %s: timed out after %s", p.topic, publishTimeout)
	}
	if err := token.Error(); err != nil {
		return fmt.Errorf("publish to %s: %w", p.topic, err)
	}
	return nil
}

// Deliver publishes responses and logs a failure. It has the shape of a
// polling callback.
func (p *Publisher) Deliver(responses map[string][]smartcard.Response) {
	if err := p.Publish(responses); err != nil {
		smartcard.Debugf("MQTT publish failed: %v", err)
	}
}

// TerminalNames returns the terminal names of a response set in order.
func TerminalNames(responses map[string][]smartcard.Response) []string {
	names := make([]string, 0, len(responses))
	for name := range responses {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
