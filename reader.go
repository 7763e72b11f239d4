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
	"errors"
	"fmt"
	"time"
)

// ReaderOption configures a Reader.
type ReaderOption func(*Reader)

// WithPreamble makes the reader transmit cmds after every connect and before
// the requested commands. Their responses are discarded.
func WithPreamble(cmds ...Command) ReaderOption {
	return func(r *Reader) {
		r.preamble = append([]Command(nil), cmds...)
	}
}

// WithTerminalTimeout bounds the time spent on a single terminal per read.
// Zero means no bound beyond the caller's context.
func WithTerminalTimeout(timeout time.Duration) ReaderOption {
	return func(r *Reader) {
		r.timeout = timeout
	}
}

// Reader runs commands against the terminals of a provider. A Reader is
// created once and shared by reference; it holds no per-read state and is
// safe for concurrent use as long as its terminals are.
type Reader struct {
	provider TerminalProvider
	preamble []Command
	timeout  time.Duration
}

// NewReader creates a reader over the given terminals.
func NewReader(provider TerminalProvider, opts ...ReaderOption) *Reader {
	r := &Reader{provider: provider}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Terminals lists the available terminals. Enumeration failures are logged
// and reported as an empty list.
func (r *Reader) Terminals(ctx context.Context) []Terminal {
	terminals, err := r.provider.Terminals(ctx)
	if err != nil {
		Debugf("terminal enumeration failed: %v", err)
		return nil
	}
	return terminals
}

// Read transmits cmds to every available terminal and returns the responses
// keyed by terminal name, one per command in command order. A terminal that
// fails to connect or transmit is logged and maps to an empty list; it does
// not affect the other terminals.
func (r *Reader) Read(ctx context.Context, cmds []Command) map[string][]Response {
	terminals := r.Terminals(ctx)
	results := make(map[string][]Response, len(terminals))
	for _, terminal := range terminals {
		responses, err := r.ReadOnTerminal(ctx, terminal, cmds)
		if err != nil {
			Debugf("terminal %s skipped: %v", terminal.Name(), err)
			responses = []Response{}
		}
		results[terminal.Name()] = responses
	}
	return results
}

// ReadOnTerminal transmits cmds to a single terminal. Either every command
// yields a response or an error is returned.
func (r *Reader) ReadOnTerminal(ctx context.Context, terminal Terminal, cmds []Command) ([]Response, error) {
	if r.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, r.timeout)
		defer cancel()
	}

	card, err := terminal.Connect(ctx)
	if err != nil {
		return nil, fmt.Errorf("connect %s: %w", terminal.Name(), err)
	}
	defer func() {
		if err := card.Disconnect(); err != nil {
			Debugf("disconnect %s: %v", terminal.Name(), err)
		}
	}()

	for _, cmd := range r.preamble {
		if _, err := card.Transmit(ctx, cmd.raw); err != nil {
			return nil, fmt.Errorf("preamble %s on %s: %w", cmd, terminal.Name(), err)
		}
	}

	responses := make([]Response, 0, len(cmds))
	for _, cmd := range cmds {
		raw, err := card.Transmit(ctx, cmd.raw)
		if err != nil {
			return nil, fmt.Errorf("transmit %s on %s: %w", cmd, terminal.Name(), err)
		}
		data, sw, err := SplitStatusWord(raw)
		if err != nil {
			return nil, fmt.Errorf("transmit %s on %s: %w", cmd, terminal.Name(), err)
		}
		if !sw.IsSuccess() {
			Debugf("%s: %s returned status %s", terminal.Name(), cmd, sw)
		}
		responses = append(responses, Response{channel: card.Channel(), data: data})
	}
	return responses, nil
}

// IsNoCard reports whether err means the terminal had no card to talk to.
func IsNoCard(err error) bool {
	return errors.Is(err, ErrNoCard)
}
