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
	"fmt"
	"time"

	"github.com/ZaparooProject/go-smartcard"
	"github.com/ZaparooProject/go-smartcard/internal/syncutil"
)

// releaseTimeout bounds the InRelease sent when a card is disconnected.
const releaseTimeout = time.Second

// Terminal exposes a PN532 as a smartcard terminal. Each Connect activates
// the card currently in the field; the controller is initialized on first
// use and again after the link reports a fatal error.
type Terminal struct {
	device      *Device
	initRetry   *RetryConfig
	name        string
	mu          syncutil.Mutex
	initialized bool
}

// NewTerminal creates a terminal named name on top of link.
func NewTerminal(name string, link Link) *Terminal {
	return &Terminal{name: name, device: New(link), initRetry: DefaultRetryConfig()}
}

// SetInitRetry replaces the retry policy of controller initialization. A
// nil config disables retries.
func (t *Terminal) SetInitRetry(cfg *RetryConfig) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.initRetry = cfg
}

// Name implements smartcard.Terminal.
func (t *Terminal) Name() string {
	return t.name
}

// Device returns the underlying controller.
func (t *Terminal) Device() *Device {
	return t.device
}

// Connect implements smartcard.Terminal. It fails with smartcard.ErrNoCard
// when the field is empty and with ErrNotISO14443_4 when the card cannot
// exchange APDUs.
func (t *Terminal) Connect(ctx context.Context) (smartcard.Card, error) {
	if err := t.ensureInitialized(ctx); err != nil {
		return nil, err
	}

	target, err := t.device.InListPassiveTarget(ctx)
	if err != nil {
		t.noteError(err)
		return nil, err
	}
	if target == nil {
		return nil, smartcard.ErrNoCard
	}

	if !target.SupportsISO14443_4() {
		if err := t.device.InRelease(ctx, target.Number); err != nil {
			smartcard.Debugf("%s: release %s: %v", t.name, target, err)
		}
		return nil, fmt.Errorf("%s: %w", target, ErrNotISO14443_4)
	}

	return &card{terminal: t, target: target}, nil
}

// Close closes the controller link.
func (t *Terminal) Close() error {
	return t.device.Close()
}

func (t *Terminal) ensureInitialized(ctx context.Context) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.initialized {
		return nil
	}
	err := retry(ctx, t.initRetry, func() error {
		return t.device.Init(ctx)
	})
	if err != nil {
		return fmt.Errorf("initialize %s: %w", t.name, err)
	}
	t.initialized = true
	return nil
}

// noteError forces a new initialization after errors that mean the
// controller may have been reset or replugged.
func (t *Terminal) noteError(err error) {
	if !smartcard.IsFatal(err) {
		return
	}
	t.mu.Lock()
	t.initialized = false
	t.mu.Unlock()
}

// card is an activated ISO 14443-4 target.
type card struct {
	terminal *Terminal
	target   *Target
}

// Channel implements smartcard.Card. The PN532 only exposes the basic channel.
func (*card) Channel() int {
	return 0
}

// Transmit implements smartcard.Card.
func (c *card) Transmit(ctx context.Context, apdu []byte) ([]byte, error) {
	if len(apdu) > MaxAPDULength {
		return nil, smartcard.NewDataTooLargeError("Transmit", c.terminal.name)
	}
	res, err := c.terminal.device.InDataExchange(ctx, c.target.Number, apdu)
	if err != nil {
		c.terminal.noteError(err)
		return nil, err
	}
	return res, nil
}

// Disconnect implements smartcard.Card.
func (c *card) Disconnect() error {
	ctx, cancel := context.WithTimeout(context.Background(), releaseTimeout)
	defer cancel()
	if err := c.terminal.device.InRelease(ctx, c.target.Number); err != nil {
		c.terminal.noteError(err)
		return err
	}
	return nil
}

var _ smartcard.Terminal = (*Terminal)(nil)
