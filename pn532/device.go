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

// Package pn532 drives ISO 14443-4 smart cards through an NXP PN532 NFC
// controller and exposes the controller as a smartcard.Terminal.
package pn532

import (
	"context"
	"encoding/hex"
	"fmt"

	"github.com/ZaparooProject/go-smartcard"
	"github.com/ZaparooProject/go-smartcard/internal/syncutil"
)

// FirmwareVersion contains PN532 firmware information
type FirmwareVersion struct {
	Version          string
	IC               byte
	SupportIso14443a bool
	SupportIso14443b bool
	SupportIso18092  bool
}

// Target is a card activated by InListPassiveTarget.
type Target struct {
	ATQ    []byte // SENS_RES
	UID    []byte // NFCID1
	ATS    []byte // Answer to select, when the card sent one
	Number byte   // Logical target number assigned by the PN532
	SAK    byte   // SEL_RES
}

// SupportsISO14443_4 reports whether the card advertised ISO 14443-4 in its SAK.
func (t *Target) SupportsISO14443_4() bool { //nolint:revive,stylecheck // protocol name
	return t.SAK&0x20 != 0
}

func (t *Target) String() string {
	return fmt.Sprintf("target %d (UID %s, SAK 0x%02X)", t.Number, hex.EncodeToString(t.UID), t.SAK)
}

// Device is a PN532 controller reached over a Link. Commands are serialized.
type Device struct {
	link Link
	mu   syncutil.Mutex
}

// New creates a device on top of link.
func New(link Link) *Device {
	return &Device{link: link}
}

// Init reads the firmware version and switches the SAM to normal mode so the
// controller can act as a reader. A failing firmware query is only logged,
// since several clone chips answer it incorrectly.
func (d *Device) Init(ctx context.Context) error {
	if fw, err := d.FirmwareVersion(ctx); err != nil {
		smartcard.Debugf("firmware version check failed: %v", err)
	} else {
		smartcard.Debugf("PN5%02X firmware %s", fw.IC, fw.Version)
	}
	return d.SAMConfiguration(ctx, SAMModeNormal, 0x00, 0x00)
}

// FirmwareVersion queries the IC type and firmware revision.
func (d *Device) FirmwareVersion(ctx context.Context) (*FirmwareVersion, error) {
	res, err := d.call(ctx, "GetFirmwareVersion", cmdGetFirmwareVersion, nil)
	if err != nil {
		return nil, err
	}
	if len(res) < 5 {
		return nil, fmt.Errorf("GetFirmwareVersion: response too short (%d bytes): %w",
			len(res), smartcard.ErrInvalidResponse)
	}
	if res[1] != 0x32 {
		return nil, fmt.Errorf("GetFirmwareVersion: unexpected IC 0x%02X: %w", res[1], smartcard.ErrInvalidResponse)
	}
	return &FirmwareVersion{
		IC:               res[1],
		Version:          fmt.Sprintf("%d.%d", res[2], res[3]),
		SupportIso14443a: res[4]&0x01 == 0x01,
		SupportIso14443b: res[4]&0x02 == 0x02,
		SupportIso18092:  res[4]&0x04 == 0x04,
	}, nil
}

// SAMConfiguration configures the security access module.
func (d *Device) SAMConfiguration(ctx context.Context, mode SAMMode, timeout, irq byte) error {
	_, err := d.call(ctx, "SAMConfiguration", cmdSamConfiguration, []byte{byte(mode), timeout, irq})
	return err
}

// InListPassiveTarget activates at most one ISO 14443 type A card at
// 106 kbps. It returns nil without error when no card is in the field.
func (d *Device) InListPassiveTarget(ctx context.Context) (*Target, error) {
	res, err := d.call(ctx, "InListPassiveTarget", cmdInListPassiveTarget, []byte{0x01, BaudRate106kbpsTypeA})
	if err != nil {
		return nil, err
	}
	if len(res) < 2 {
		return nil, fmt.Errorf("InListPassiveTarget: response too short: %w", smartcard.ErrInvalidResponse)
	}
	if res[1] == 0 {
		return nil, nil //nolint:nilnil // no card is not an error
	}
	target, err := parseTypeATarget(res[2:])
	if err != nil {
		return nil, err
	}
	smartcard.Debugf("InListPassiveTarget: %s", target)
	return target, nil
}

// parseTypeATarget decodes Tg SENS_RES(2) SEL_RES NFCIDLength NFCID [ATS].
func parseTypeATarget(data []byte) (*Target, error) {
	if len(data) < 5 {
		return nil, fmt.Errorf("InListPassiveTarget: truncated target data %X: %w", data, smartcard.ErrInvalidResponse)
	}
	uidLen := int(data[4])
	if len(data) < 5+uidLen {
		return nil, fmt.Errorf("InListPassiveTarget: truncated UID in %X: %w", data, smartcard.ErrInvalidResponse)
	}

	target := &Target{
		Number: data[0],
		ATQ:    append([]byte(nil), data[1:3]...),
		SAK:    data[3],
		UID:    append([]byte(nil), data[5:5+uidLen]...),
	}

	// The ATS length byte counts itself.
	rest := data[5+uidLen:]
	if len(rest) > 0 {
		atsLen := int(rest[0])
		if atsLen > 0 && atsLen <= len(rest) {
			target.ATS = append([]byte(nil), rest[:atsLen]...)
		}
	}
	return target, nil
}

// InDataExchange sends data to target tg and returns the card's reply. Replies
// the controller splits with the MI bit are reassembled.
func (d *Device) InDataExchange(ctx context.Context, tg byte, data []byte) ([]byte, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	args := append([]byte{tg}, data...)
	var reply []byte
	for range maxChainedFrames {
		res, err := d.callLocked(ctx, "InDataExchange", cmdInDataExchange, args)
		if err != nil {
			return nil, err
		}
		if len(res) < 2 {
			return nil, fmt.Errorf("InDataExchange: response too short: %w", smartcard.ErrInvalidResponse)
		}

		status := res[1]
		if code := status & statusErrorMask; code != 0 {
			return nil, NewPN532Error(code, "InDataExchange", fmt.Sprintf("target %d", tg))
		}
		reply = append(reply, res[2:]...)
		if status&statusMoreInformation == 0 {
			return reply, nil
		}
		// Fetch the next part of the reply.
		args = []byte{tg}
	}
	return nil, fmt.Errorf("InDataExchange: reply spans more than %d frames: %w",
		maxChainedFrames, smartcard.ErrInvalidResponse)
}

// InRelease deactivates target tg; 0 releases every target.
func (d *Device) InRelease(ctx context.Context, tg byte) error {
	res, err := d.call(ctx, "InRelease", cmdInRelease, []byte{tg})
	if err != nil {
		return err
	}
	if len(res) < 2 {
		return fmt.Errorf("InRelease: response too short: %w", smartcard.ErrInvalidResponse)
	}
	if res[1]&statusErrorMask != 0 {
		return NewPN532Error(res[1]&statusErrorMask, "InRelease", fmt.Sprintf("target %d", tg))
	}
	return nil
}

// Close closes the underlying link.
func (d *Device) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if err := d.link.Close(); err != nil {
		return fmt.Errorf("failed to close link: %w", err)
	}
	return nil
}

func (d *Device) call(ctx context.Context, name string, cmd byte, args []byte) ([]byte, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.callLocked(ctx, name, cmd, args)
}

// callLocked sends one command and checks the response code.
func (d *Device) callLocked(ctx context.Context, name string, cmd byte, args []byte) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	res, err := d.link.SendCommand(ctx, cmd, args)
	if err != nil {
		return nil, fmt.Errorf("%s command failed: %w", name, err)
	}

	if len(res) >= 2 && res[0] == 0x7F {
		return nil, NewPN532Error(res[1], name, "error frame")
	}
	if len(res) == 0 || res[0] != cmd+1 {
		return nil, fmt.Errorf("%s: unexpected response %X: %w", name, res, smartcard.ErrInvalidResponse)
	}
	return res, nil
}
