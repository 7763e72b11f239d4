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


// Package uart implements a PN532 link over a serial port using the
// high speed UART framing.
package uart

import (
	"context"
	"fmt"
	"runtime"
	"strings"
	"time"

	"github.com/ZaparooProject/go-smartcard"
	"github.com/ZaparooProject/go-smartcard/internal/frame"
	"github.com/ZaparooProject/go-smartcard/internal/syncutil"
	"github.com/ZaparooProject/go-smartcard/pn532"
	"go.bug.st/serial"
)

const (
	baudRate = 115200

	// responseTimeout bounds the wait for a response frame when the caller's
	// context carries no deadline.
	responseTimeout = 2 * time.Second
	ackTimeout      = 100 * time.Millisecond
	processDelay    = 6 * time.Millisecond
	maxNackRetries  = 3
)

// port is the part of serial.Port the link uses.
type port interface {
	Read(p []byte) (int, error)
	Write(p []byte) (int, error)
	Drain() error
	SetReadTimeout(t time.Duration) error
	Close() error
}

// Transport is a pn532.Link over a serial port.
type Transport struct {
	port     port
	portName string
	mu       syncutil.Mutex
	closed   bool
}

var _ pn532.Link = (*Transport)(nil)

func isWindows() bool {
	return runtime.GOOS == "windows"
}

// readTimeout returns the per-read timeout of the serial port.
func readTimeout() time.Duration {
	if isWindows() {
		return 100 * time.Millisecond
	}
	return 50 * time.Millisecond
}

// windowsPostWriteDelay gives the Windows driver time to flush its buffers.
func windowsPostWriteDelay() {
	if isWindows() {
		time.Sleep(15 * time.Millisecond)
	}
}

// New opens portName at 115200 8N1.
func New(portName string) (*Transport, error) {
	p, err := serial.Open(portName, &serial.Mode{
		BaudRate: baudRate,
		DataBits: 8,
		Parity:   serial.NoParity,
		StopBits: serial.OneStopBit,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to open UART port %s: %w", portName, err)
	}

	t, err := newTransport(portName, p)
	if err != nil {
		_ = p.Close()
		return nil, err
	}
	return t, nil
}

func newTransport(portName string, p port) (*Transport, error) {
	if err := p.SetReadTimeout(readTimeout()); err != nil {
		return nil, fmt.Errorf("failed to set UART read timeout: %w", err)
	}
	return &Transport{port: p, portName: portName}, nil
}

// PortName returns the serial port the transport was opened on.
func (t *Transport) PortName() string {
	return t.portName
}

// String implements fmt.Stringer.
func (t *Transport) String() string {
	return "uart:" + t.portName
}

// SendCommand implements pn532.Link.
func (t *Transport) SendCommand(ctx context.Context, cmd byte, args []byte) ([]byte, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.closed {
		return nil, smartcard.NewTransportError("SendCommand", t.portName, smartcard.ErrTransportClosed,
			smartcard.ErrorTypePermanent)
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	frm, err := frame.Build(cmd, args)
	if err != nil {
		return nil, err
	}

	if err := t.wakeUp(); err != nil {
		return nil, err
	}
	if err := t.write(frm); err != nil {
		return nil, err
	}

	pending, err := t.waitAck(ctx)
	if err != nil {
		return nil, err
	}

	if err := sleepCtx(ctx, processDelay); err != nil {
		return nil, err
	}

	res, err := t.receiveFrame(ctx, pending, cmd)
	if err != nil {
		return nil, err
	}

	if err := t.write(frame.AckFrame); err != nil {
		smartcard.Debugf("UART %s: ACK after response failed: %v", t.portName, err)
	}
	return res, nil
}

// Close closes the serial port. Further commands fail with ErrTransportClosed.
func (t *Transport) Close() error {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.closed {
		return nil
	}
	t.closed = true
	if err := t.port.Close(); err != nil {
		return fmt.Errorf("failed to close UART port %s: %w", t.portName, err)
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

// isInterruptedSystemCall reports an EINTR surfaced by the serial driver.
func isInterruptedSystemCall(err error) bool {
	if err == nil {
		return false
	}
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "interrupted system call") || strings.Contains(msg, "eintr")
}

// drainWithRetry drains the port, retrying interrupted system calls.
func (t *Transport) drainWithRetry(operation string) error {
	const maxRetries = 3
	delay := 2 * time.Millisecond

	var err error
	for attempt := range maxRetries {
		err = t.port.Drain()
		if err == nil {
			return nil
		}
		if !isInterruptedSystemCall(err) || attempt == maxRetries-1 {
			break
		}
		time.Sleep(delay)
		delay *= 2
	}
	return fmt.Errorf("UART %s drain failed: %w", operation, err)
}

// wakeUp sends the HSU wake-up sequence: 0x55 followed by idle bytes long
// enough for the controller to leave power-down.
func (t *Transport) wakeUp() error {
	wake := make([]byte, 16)
	wake[0] = 0x55
	return t.write(wake)
}

func (t *Transport) write(data []byte) error {
	n, err := t.port.Write(data)
	if err != nil {
		if isInterruptedSystemCall(err) {
			return smartcard.NewTransportWriteError("write", t.portName)
		}
		return smartcard.NewTransportError("write", t.portName, fmt.Errorf("%w: %w", smartcard.ErrTransportWrite, err),
			smartcard.ErrorTypePermanent)
	}
	if n != len(data) {
		return smartcard.NewTransportWriteError("write", t.portName)
	}
	if err := t.drainWithRetry("write"); err != nil {
		return err
	}
	windowsPostWriteDelay()
	return nil
}

// read performs one port read. A read that hits the port timeout returns
// no bytes and no error.
func (t *Transport) read(buf []byte) (int, error) {
	n, err := t.port.Read(buf)
	if err != nil {
		if isInterruptedSystemCall(err) {
			return 0, nil
		}
		return 0, smartcard.NewTransportError("read", t.portName, fmt.Errorf("%w: %w", smartcard.ErrTransportRead, err),
			smartcard.ErrorTypePermanent)
	}
	return n, nil
}

// waitAck reads until an ACK frame arrives. Bytes received around the ACK
// are returned so the response parser can use them; some adapters deliver
// the response in the same read as the ACK.
func (t *Transport) waitAck(ctx context.Context) ([]byte, error) {
	deadline := time.Now().Add(ackTimeout)
	buf := frame.GetBuffer(frame.SmallBufferSize)
	defer frame.PutBuffer(buf)

	var seen []byte
	for {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		n, err := t.read(buf)
		if err != nil {
			return nil, err
		}
		seen = append(seen, buf[:n]...)

		if idx := indexOf(seen, frame.AckFrame); idx >= 0 {
			pending := append([]byte(nil), seen[:idx]...)
			return append(pending, seen[idx+len(frame.AckFrame):]...), nil
		}
		if frame.IsNack(seen) {
			return nil, smartcard.NewNACKReceivedError("waitAck", t.portName)
		}
		if time.Now().After(deadline) {
			smartcard.Debugf("UART %s: no ACK, got % X", t.portName, seen)
			return nil, smartcard.NewNoACKError("waitAck", t.portName)
		}
	}
}

// receiveFrame collects and validates the response frame, sending a NACK
// to request retransmission when a checksum fails.
func (t *Transport) receiveFrame(ctx context.Context, pending []byte, cmd byte) ([]byte, error) {
	deadline := time.Now().Add(responseTimeout)
	if d, ok := ctx.Deadline(); ok && d.Before(deadline) {
		deadline = d
	}

	buf := pending
	for attempt := 0; attempt <= maxNackRetries; attempt++ {
		full, lenIdx, err := t.collectFrame(ctx, buf, deadline)
		if err != nil {
			return nil, err
		}

		data, retry, err := frame.Extract(full, lenIdx)
		if err != nil {
			return nil, err
		}
		if !retry {
			return data, nil
		}

		smartcard.Debugf("UART %s: corrupted frame for 0x%02X, sending NACK", t.portName, cmd)
		if err := t.write(frame.NackFrame); err != nil {
			return nil, err
		}
		buf = nil
	}

	// An InListPassiveTarget reply that keeps arriving corrupted is usually
	// the controller giving up on a half-seen card.
	if cmd == 0x4A {
		return []byte{0x4B, 0x00}, nil
	}
	return nil, smartcard.NewFrameCorruptedError("receiveFrame", t.portName)
}

// collectFrame reads until buf holds a complete frame and returns the bytes
// with the index of the frame's LEN byte.
func (t *Transport) collectFrame(ctx context.Context, buf []byte, deadline time.Time) ([]byte, int, error) {
	chunk := frame.GetBuffer(frame.FrameBufferSize)
	defer frame.PutBuffer(chunk)

	for {
		if lenIdx := frame.FindStart(buf); lenIdx >= 0 {
			if need := frame.Need(buf, lenIdx); need > 0 && len(buf)-lenIdx >= need-1 {
				return buf, lenIdx, nil
			}
		}

		if time.Now().After(deadline) {
			return nil, 0, smartcard.NewTimeoutError("receiveFrame", t.portName)
		}
		if err := ctx.Err(); err != nil {
			return nil, 0, err
		}

		n, err := t.read(chunk)
		if err != nil {
			return nil, 0, err
		}
		buf = append(buf, chunk[:n]...)
	}
}

func indexOf(buf, pattern []byte) int {
	for i := 0; i+len(pattern) <= len(buf); i++ {
		if string(buf[i:i+len(pattern)]) == string(pattern) {
			return i
		}
	}
	return -1
}

