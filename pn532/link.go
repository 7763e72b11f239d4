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

package pn532

import (
	"context"
	"time"

	"github.com/ZaparooProject/go-smartcard"
	"github.com/ZaparooProject/go-smartcard/internal/syncutil"
)

// Link carries PN532 commands to the controller and returns its replies.
//
// SendCommand frames cmd and args, waits for the ACK and the response frame
// and returns the response payload after the TFI byte, so a successful reply
// starts with cmd+1. An application error frame is returned as [0x7F, code].
type Link interface {
	SendCommand(ctx context.Context, cmd byte, args []byte) ([]byte, error)
	Close() error
}

// Call records one command sent through a MockLink.
type Call struct {
	Args []byte
	Cmd  byte
}

// MockLink provides a scripted Link for testing
type MockLink struct {
	responses map[byte][][]byte
	errs      map[byte]error
	calls     []Call
	delay     time.Duration
	mu        syncutil.Mutex
	closed    bool
}

// NewMockLink creates a mock link. Commands without a scripted response
// are answered with [cmd+1, 0x00].
func NewMockLink() *MockLink {
	return &MockLink{
		responses: make(map[byte][][]byte),
		errs:      make(map[byte]error),
	}
}

// SendCommand implements Link.
func (m *MockLink) SendCommand(ctx context.Context, cmd byte, args []byte) ([]byte, error) {
	m.mu.Lock()
	closed := m.closed
	delay := m.delay
	m.calls = append(m.calls, Call{Cmd: cmd, Args: append([]byte(nil), args...)})
	m.mu.Unlock()

	if closed {
		return nil, smartcard.NewTransportError("SendCommand", "mock", smartcard.ErrTransportClosed,
			smartcard.ErrorTypePermanent)
	}

	if delay > 0 {
		select {
		case <-time.After(delay):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if err, ok := m.errs[cmd]; ok {
		return nil, err
	}

	queue := m.responses[cmd]
	switch len(queue) {
	case 0:
		return []byte{cmd + 1, 0x00}, nil
	case 1:
		return append([]byte(nil), queue[0]...), nil
	default:
		m.responses[cmd] = queue[1:]
		return append([]byte(nil), queue[0]...), nil
	}
}

// Close implements Link.
func (m *MockLink) Close() error {
	m.mu.Lock()
	m.closed = true
	m.mu.Unlock()
	return nil
}

// SetResponse sets the reply for cmd, replacing any queued replies.
func (m *MockLink) SetResponse(cmd byte, response []byte) {
	m.mu.Lock()
	m.responses[cmd] = [][]byte{append([]byte(nil), response...)}
	m.mu.Unlock()
}

// QueueResponses appends replies for cmd. They are returned in order and the
// last one keeps being returned once the others are used up.
func (m *MockLink) QueueResponses(cmd byte, responses ...[]byte) {
	m.mu.Lock()
	for _, r := range responses {
		m.responses[cmd] = append(m.responses[cmd], append([]byte(nil), r...))
	}
	m.mu.Unlock()
}

// SetError makes cmd fail with err.
func (m *MockLink) SetError(cmd byte, err error) {
	m.mu.Lock()
	m.errs[cmd] = err
	m.mu.Unlock()
}

// ClearError removes an error set with SetError.
func (m *MockLink) ClearError(cmd byte) {
	m.mu.Lock()
	delete(m.errs, cmd)
	m.mu.Unlock()
}

// SetDelay simulates a slow controller.
func (m *MockLink) SetDelay(delay time.Duration) {
	m.mu.Lock()
	m.delay = delay
	m.mu.Unlock()
}

// Calls returns every command sent so far.
func (m *MockLink) Calls() []Call {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]Call(nil), m.calls...)
}

// CallCount returns how many times cmd was sent.
func (m *MockLink) CallCount(cmd byte) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := 0
	for _, c := range m.calls {
		if c.Cmd == cmd {
			n++
		}
	}
	return n
}

var _ Link = (*MockLink)(nil)
