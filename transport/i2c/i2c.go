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


// Package i2c implements a PN532 link over an I2C bus using periph.io.
package i2c

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/ZaparooProject/go-smartcard"
	"github.com/ZaparooProject/go-smartcard/internal/frame"
	"github.com/ZaparooProject/go-smartcard/internal/syncutil"
	"github.com/ZaparooProject/go-smartcard/pn532"
	"periph.io/x/conn/v3"
	"periph.io/x/conn/v3/i2c"
	"periph.io/x/conn/v3/i2c/i2creg"
	"periph.io/x/conn/v3/physic"
	"periph.io/x/host/v3"
)

const (
	// PN532 7-bit I2C address. The datasheet quotes 0x48, the 8-bit write
	// address including the R/W bit.
	pn532Addr = 0x24

	pn532Ready = 0x01

	maxClockFreq = 400 * physic.KiloHertz

	defaultTimeout = 100 * time.Millisecond
	processDelay   = 6 * time.Millisecond
	readyRetries   = 5
	maxFrameTries  = 3
)

// Transport is a pn532.Link over I2C.
type Transport struct {
	dev     conn.Conn
	bus     io.Closer
	busName string
	timeout time.Duration
	mu      syncutil.Mutex
	closed  bool
}

var _ pn532.Link = (*Transport)(nil)

// parseI2CPath accepts "/dev/i2c-1:0x24" or a bare bus name.
func parseI2CPath(path string) string {
	bus, _, _ := strings.Cut(path, ":")
	return bus
}

// New opens busName and addresses the PN532 on it.
func New(busName string) (*Transport, error) {
	if _, err := host.Init(); err != nil {
		return nil, fmt.Errorf("failed to initialize periph host: %w", err)
	}

	bus, err := i2creg.Open(parseI2CPath(busName))
	if err != nil {
		return nil, fmt.Errorf("failed to open I2C bus %s: %w", busName, err)
	}

	// Buses that cannot run at 400kHz keep their default speed.
	_ = bus.SetSpeed(maxClockFreq)

	return newTransport(busName, &i2c.Dev{Addr: pn532Addr, Bus: bus}, bus), nil
}

func newTransport(busName string, dev conn.Conn, bus io.Closer) *Transport {
	return &Transport{
		dev:     dev,
		bus:     bus,
		busName: busName,
		timeout: defaultTimeout,
	}
}

// SetTimeout sets how long to wait for the ACK and for each response frame.
func (t *Transport) SetTimeout(timeout time.Duration) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.timeout = timeout
}

// String implements fmt.Stringer.
func (t *Transport) String() string {
	return "i2c:" + t.busName
}

// SendCommand implements pn532.Link.
func (t *Transport) SendCommand(ctx context.Context, cmd byte, args []byte) ([]byte, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.closed {
		return nil, smartcard.NewTransportError("SendCommand", t.busName, smartcard.ErrTransportClosed,
			smartcard.ErrorTypePermanent)
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	frm, err := frame.Build(cmd, args)
	if err != nil {
		return nil, err
	}
	if err := t.dev.Tx(frm, nil); err != nil {
		return nil, t.busError("send", err)
	}

	if err := t.waitAck(ctx); err != nil {
		return nil, err
	}

	if err := sleepCtx(ctx, processDelay); err != nil {
		return nil, err
	}

	res, err := t.receiveFrame(ctx, cmd)
	if err != nil {
		return nil, err
	}

	if err := t.dev.Tx(frame.AckFrame, nil); err != nil {
		smartcard.Debugf("I2C %s: ACK after response failed: %v", t.busName, err)
	}
	return res, nil
}

// Close releases the bus. Further commands fail with ErrTransportClosed.
func (t *Transport) Close() error {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.closed {
		return nil
	}
	t.closed = true
	if t.bus == nil {
		return nil
	}
	if err := t.bus.Close(); err != nil {
		return fmt.Errorf("failed to close I2C bus: %w", err)
	}
	return nil
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (t *Transport) busError(op string, err error) error {
	return smartcard.NewTransportError(op, t.busName, fmt.Errorf("%w: %w", smartcard.ErrTransportWrite, err),
		smartcard.ErrorTypeTransient)
}

// checkReady polls the status byte with exponential backoff: 1ms, 2ms, 4ms...
func (t *Transport) checkReady(ctx context.Context) error {
	ready := frame.GetBuffer(1)
	defer frame.PutBuffer(ready)

	delay := time.Millisecond
	for attempt := range readyRetries {
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := t.dev.Tx(nil, ready); err == nil && ready[0] == pn532Ready {
			return nil
		}
		if attempt < readyRetries-1 {
			if err := sleepCtx(ctx, delay); err != nil {
				return err
			}
			delay *= 2
		}
	}
	return smartcard.NewTransportNotReadyError("checkReady", t.busName)
}

// read performs one read transaction of n frame bytes. The PN532 prefixes
// every read with its status byte, which is stripped here.
//
// Each transaction restarts at the beginning of the controller's output
// buffer, so a frame must be read in a single transaction.
func (t *Transport) read(n int) ([]byte, error) {
	tmp := frame.GetBuffer(n + 1)
	defer frame.PutBuffer(tmp)

	if err := t.dev.Tx(nil, tmp); err != nil {
		return nil, smartcard.NewTransportError("read", t.busName, fmt.Errorf("%w: %w", smartcard.ErrTransportRead, err),
			smartcard.ErrorTypeTransient)
	}
	if tmp[0] != pn532Ready {
		return nil, smartcard.NewTransportNotReadyError("read", t.busName)
	}
	return append([]byte(nil), tmp[1:]...), nil
}

func (t *Transport) waitAck(ctx context.Context) error {
	deadline := time.Now().Add(t.timeout)

	for time.Now().Before(deadline) {
		if err := t.checkReady(ctx); err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			continue
		}

		ack, err := t.read(len(frame.AckFrame))
		if err != nil {
			return err
		}
		if bytes.Equal(ack, frame.AckFrame) {
			return nil
		}
		if bytes.Equal(ack, frame.NackFrame) {
			return smartcard.NewNACKReceivedError("waitAck", t.busName)
		}
		if err := sleepCtx(ctx, time.Millisecond); err != nil {
			return err
		}
	}

	return smartcard.NewNoACKError("waitAck", t.busName)
}

func (t *Transport) receiveFrame(ctx context.Context, cmd byte) ([]byte, error) {
	deadline := time.Now().Add(t.timeout)
	if d, ok := ctx.Deadline(); ok && d.Before(deadline) {
		deadline = d
	}

	var failure error = smartcard.NewTimeoutError("receiveFrame", t.busName)
	for range maxFrameTries {
		if time.Now().After(deadline) {
			return nil, smartcard.NewTimeoutError("receiveFrame", t.busName)
		}

		if err := t.checkReady(ctx); err != nil {
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			continue
		}

		buf, err := t.read(frame.MaxFrameDataLength + frame.Overhead)
		if err != nil {
			return nil, err
		}

		lenIdx := frame.FindStart(buf)
		if lenIdx < 0 {
			return nil, smartcard.NewFrameCorruptedError("receiveFrame", t.busName)
		}

		data, retry, err := frame.Extract(buf, lenIdx)
		if err != nil {
			return nil, err
		}
		if !retry {
			return data, nil
		}

		smartcard.Debugf("I2C %s: corrupted frame for 0x%02X, sending NACK", t.busName, cmd)
		if err := t.dev.Tx(frame.NackFrame, nil); err != nil {
			return nil, t.busError("nack", err)
		}
		failure = smartcard.NewFrameCorruptedError("receiveFrame", t.busName)
	}

	return nil, failure
}
