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

package smartcard

import (
	"context"
	"time"

	"github.com/ZaparooProject/go-smartcard/internal/syncutil"
)

// Terminal is a card reading slot. Implementations must tolerate being
// used from several goroutines; Connect is called once per read.
type Terminal interface {
	// Name identifies the terminal. Names must be unique within a provider.
	Name() string

	// Connect opens a session with the card currently in the terminal.
	Connect(ctx context.Context) (Card, error)
}

// Card is an open session with a card.
type Card interface {
	// Channel returns the logical channel the session uses.
	Channel() int

	// Transmit sends one command APDU and returns the raw response APDU,
	// status word included.
	Transmit(ctx context.Context, apdu []byte) ([]byte, error)

	// Disconnect ends the session.
	Disconnect() error
}

// TerminalProvider enumerates the terminals currently available.
type TerminalProvider interface {
	Terminals(ctx context.Context) ([]Terminal, error)
}

// StaticTerminals is a TerminalProvider over a fixed list.
type StaticTerminals []Terminal

// Terminals returns the list unchanged.
func (s StaticTerminals) Terminals(_ context.Context) ([]Terminal, error) {
	return s, nil
}

// TerminalProviderFunc adapts a function to the TerminalProvider interface.
type TerminalProviderFunc func(ctx context.Context) ([]Terminal, error)

// Terminals calls f(ctx).
func (f TerminalProviderFunc) Terminals(ctx context.Context) ([]Terminal, error) {
	return f(ctx)
}

// MockTerminal is a scripted Terminal for tests.
type MockTerminal struct {
	responses   map[string][]byte
	connectErr  error
	transmitErr error
	name        string
	log         [][]byte
	delay       time.Duration
	connects    int
	channel     int
	mu          syncutil.Mutex
}

// NewMockTerminal creates a mock terminal that answers every command with
// 90 00 until told otherwise.
func NewMockTerminal(name string) *MockTerminal {
	return &MockTerminal{
		name:      name,
		responses: make(map[string][]byte),
	}
}

// Name implements Terminal.
func (m *MockTerminal) Name() string {
	return m.name
}

// Connect implements Terminal.
func (m *MockTerminal) Connect(ctx context.Context) (Card, error) {
	m.mu.Lock()
	m.connects++
	connectErr := m.connectErr
	channel := m.channel
	m.mu.Unlock()

	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if connectErr != nil {
		return nil, connectErr
	}
	return &mockCard{terminal: m, channel: channel}, nil
}

// SetResponse configures the raw response (data plus status word) returned
// for an exact command.
func (m *MockTerminal) SetResponse(cmd Command, raw []byte) {
	m.mu.Lock()
	m.responses[string(cmd.raw)] = append([]byte(nil), raw...)
	m.mu.Unlock()
}

// ClearResponses forgets all configured responses.
func (m *MockTerminal) ClearResponses() {
	m.mu.Lock()
	m.responses = make(map[string][]byte)
	m.mu.Unlock()
}

// SetConnectError makes Connect fail with err; nil restores normal behavior.
func (m *MockTerminal) SetConnectError(err error) {
	m.mu.Lock()
	m.connectErr = err
	m.mu.Unlock()
}

// SetTransmitError makes Transmit fail with err; nil restores normal behavior.
func (m *MockTerminal) SetTransmitError(err error) {
	m.mu.Lock()
	m.transmitErr = err
	m.mu.Unlock()
}

// SetChannel sets the channel reported by cards from this terminal.
func (m *MockTerminal) SetChannel(channel int) {
	m.mu.Lock()
	m.channel = channel
	m.mu.Unlock()
}

// SetDelay simulates a slow card.
func (m *MockTerminal) SetDelay(delay time.Duration) {
	m.mu.Lock()
	m.delay = delay
	m.mu.Unlock()
}

// ConnectCount returns how many times Connect was called.
func (m *MockTerminal) ConnectCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.connects
}

// Transmitted returns copies of every APDU transmitted so far.
func (m *MockTerminal) Transmitted() [][]byte {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([][]byte, len(m.log))
	for i, apdu := range m.log {
		out[i] = append([]byte(nil), apdu...)
	}
	return out
}

type mockCard struct {
	terminal *MockTerminal
	channel  int
}

func (c *mockCard) Channel() int {
	return c.channel
}

func (c *mockCard) Transmit(ctx context.Context, apdu []byte) ([]byte, error) {
	m := c.terminal
	m.mu.Lock()
	m.log = append(m.log, append([]byte(nil), apdu...))
	delay := m.delay
	err := m.transmitErr
	raw, ok := m.responses[string(apdu)]
	m.mu.Unlock()

	if delay > 0 {
		select {
		case <-time.After(delay):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	if err != nil {
		return nil, err
	}
	if !ok {
		return []byte{0x90, 0x00}, nil
	}
	return append([]byte(nil), raw...), nil
}

func (*mockCard) Disconnect() error {
	return nil
}
