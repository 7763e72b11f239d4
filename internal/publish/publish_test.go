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


package publish

import (
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/ZaparooProject/go-smartcard"
	paho "github.com/eclipse/paho.mqtt.golang"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeToken struct {
	err     error
	pending bool
}

func (t *fakeToken) Wait() bool { return !t.pending }

func (t *fakeToken) WaitTimeout(time.Duration) bool { return !t.pending }

func (*fakeToken) Done() <-chan struct{} {
	ch := make(chan struct{})
	close(ch)
	return ch
}

func (t *fakeToken) Error() error { return t.err }

type published struct {
	topic   string
	payload []byte
	qos     byte
	retain  bool
}

// fakeClient records publishes. Methods the Publisher never calls are left
// to the embedded nil interface.
type fakeClient struct {
	paho.Client
	token       *fakeToken
	messages    []published
	mu          sync.Mutex
	connects    int
	disconnects int
}

func newFakeClient() *fakeClient {
	return &fakeClient{token: &fakeToken{}}
}

func (c *fakeClient) Connect() paho.Token {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.connects++
	return c.token
}

func (c *fakeClient) Disconnect(uint) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.disconnects++
}

func (c *fakeClient) Publish(topic string, qos byte, retained bool, payload any) paho.Token {
	c.mu.Lock()
	defer c.mu.Unlock()
	b, _ := payload.([]byte)
	c.messages = append(c.messages, published{topic: topic, payload: b, qos: qos, retain: retained})
	return c.token
}

func sampleResponses() map[string][]smartcard.Response {
	return map[string][]smartcard.Response{
		"reader-b": {smartcard.NewResponse(0, []byte{0xCA, 0xFE})},
		"reader-a": {smartcard.NewResponse(1, []byte{0x01}), smartcard.NewResponse(1, nil)},
		"reader-c": {},
	}
}

func TestConfig_Validate(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		wantErr string
		cfg     Config
	}{
		{name: "disabled", cfg: Config{Port: -1}},
		{name: "plain", cfg: Config{Host: "broker", Topic: "cards/seen"}},
		{name: "bad port", cfg: Config{Host: "broker", Port: 70000}, wantErr: "out of range"},
		{name: "bad qos", cfg: Config{Host: "broker", QoS: 3}, wantErr: "qos"},
		{name: "wildcard topic", cfg: Config{Host: "broker", Topic: "cards/#"}, wantErr: "wildcards"},
		{name: "cert without key", cfg: Config{Host: "broker", ClientCert: "c.pem"}, wantErr: "together"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			err := tt.cfg.Validate()
			if tt.wantErr == "" {
				require.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestBrokerURL(t *testing.T) {
	t.Parallel()

	assert.Equal(t, "tcp://broker:1883", brokerURL(Config{Host: "broker"}))
	assert.Equal(t, "tcp://broker:1884", brokerURL(Config{Host: "broker", Port: 1884}))
	assert.Equal(t, "ssl://broker:8883", brokerURL(Config{Host: "broker", CACert: "ca.pem"}))
	assert.Equal(t, "ssl://broker:9000", brokerURL(Config{Host: "broker", Port: 9000, ClientCert: "c.pem"}))
}

func TestNew_Disabled(t *testing.T) {
	t.Parallel()

	p, err := New(Config{})
	require.NoError(t, err)
	assert.False(t, p.Enabled())
	require.NoError(t, p.Connect())
	require.NoError(t, p.Publish(sampleResponses()))
	p.Deliver(sampleResponses())
	p.Disconnect()
}

func TestNew_InvalidConfig(t *testing.T) {
	t.Parallel()

	_, err := New(Config{Host: "broker", QoS: 5})
	require.Error(t, err)
}

func TestNew_MissingCACert(t *testing.T) {
	t.Parallel()

	_, err := New(Config{Host: "broker", CACert: "/nonexistent/ca.pem"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "read CA cert")
}

func TestNewMessage(t *testing.T) {
	t.Parallel()

	at := time.Date(2026, 3, 1, 12, 0, 0, 0, time.FixedZone("CET", 3600))
	msg := NewMessage(at, sampleResponses())

	assert.Equal(t, at.UTC(), msg.Time)
	assert.Equal(t, []Entry{{Channel: 0, Data: "CAFE"}}, msg.Terminals["reader-b"])
	assert.Equal(t, []Entry{{Channel: 1, Data: "01"}, {Channel: 1, Data: ""}}, msg.Terminals["reader-a"])
	assert.Empty(t, msg.Terminals["reader-c"])
	assert.Contains(t, msg.Terminals, "reader-c", "terminals without responses are kept")
}

func TestPublisher_Publish(t *testing.T) {
	t.Parallel()

	client := newFakeClient()
	p := newPublisher(Config{Host: "broker", QoS: 1, Retain: true}, client)
	require.True(t, p.Enabled())
	assert.Equal(t, defaultTopic, p.Topic())

	require.NoError(t, p.Connect())
	require.NoError(t, p.Publish(sampleResponses()))
	p.Disconnect()

	assert.Equal(t, 1, client.connects)
	assert.Equal(t, 1, client.disconnects)
	require.Len(t, client.messages, 1)

	sent := client.messages[0]
	assert.Equal(t, defaultTopic, sent.topic)
	assert.Equal(t, byte(1), sent.qos)
	assert.True(t, sent.retain)

	var msg Message
	require.NoError(t, json.Unmarshal(sent.payload, &msg))
	assert.Equal(t, []Entry{{Channel: 0, Data: "CAFE"}}, msg.Terminals["reader-b"])
}

func TestPublisher_PublishErrors(t *testing.T) {
	t.Parallel()

	tests := []struct {
		token   *fakeToken
		name    string
		wantErr string
	}{
		{name: "broker error", token: &fakeToken{err: errors.New("not connected")}, wantErr: "not connected"},
		{name: "timeout", token: &fakeToken{pending: true}, wantErr: "timed out"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			client := newFakeClient()
			client.token = tt.token
			p := newPublisher(Config{Host: "broker", Topic: "cards"}, client)

			err := p.Publish(sampleResponses())
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
			assert.Contains(t, err.Error(), "cards")

			p.Deliver(sampleResponses())
		})
	}
}

func TestPublisher_ConnectError(t *testing.T) {
	t.Parallel()

	client := newFakeClient()
	client.token = &fakeToken{err: errors.New("connection refused")}
	p := newPublisher(Config{Host: "broker"}, client)

	err := p.Connect()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "connection refused")
}

func TestTerminalNames(t *testing.T) {
	t.Parallel()

	assert.Equal(t, []string{"reader-a", "reader-b", "reader-c"}, TerminalNames(sampleResponses()))
	assert.Empty(t, TerminalNames(nil))
}
