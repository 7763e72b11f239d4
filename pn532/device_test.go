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
	"errors"
	"testing"

	"github.com/ZaparooProject/go-smartcard"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// iso14443_4Target is an InListPassiveTarget reply for a DESFire-like card
// with a 7 byte UID and an ATS.
var iso14443_4Target = []byte{
	0x4B, 0x01, // response code, one target
	0x01,       // Tg
	0x03, 0x44, // SENS_RES
	0x20,       // SEL_RES
	0x07,       // UID length
	0x04, 0x12, 0x34, 0x56, 0x78, 0x9A, 0xBC,
	0x06, 0x75, 0x77, 0x81, 0x02, 0x80, // ATS
}

// ntagTarget is an InListPassiveTarget reply for a tag without ISO 14443-4.
var ntagTarget = []byte{
	0x4B, 0x01, 0x01, 0x00, 0x44, 0x00, 0x07,
	0x04, 0xA1, 0xB2, 0xC3, 0xD4, 0xE5, 0xF6,
}

func TestDevice_FirmwareVersion(t *testing.T) {
	t.Parallel()

	link := NewMockLink()
	link.SetResponse(cmdGetFirmwareVersion, []byte{0x03, 0x32, 0x01, 0x06, 0x07})

	fw, err := New(link).FirmwareVersion(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "1.6", fw.Version)
	assert.Equal(t, byte(0x32), fw.IC)
	assert.True(t, fw.SupportIso14443a)
	assert.True(t, fw.SupportIso14443b)
	assert.True(t, fw.SupportIso18092)
}

func TestDevice_FirmwareVersionInvalid(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name     string
		response []byte
	}{
		{name: "too short", response: []byte{0x03, 0x32}},
		{name: "wrong IC", response: []byte{0x03, 0x31, 0x01, 0x06, 0x07}},
		{name: "wrong response code", response: []byte{0x15}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			link := NewMockLink()
			link.SetResponse(cmdGetFirmwareVersion, tt.response)
			_, err := New(link).FirmwareVersion(context.Background())
			require.ErrorIs(t, err, smartcard.ErrInvalidResponse)
		})
	}
}

func TestDevice_Init(t *testing.T) {
	t.Parallel()

	link := NewMockLink()
	// A broken firmware reply does not prevent initialization.
	link.SetResponse(cmdGetFirmwareVersion, []byte{0x03})

	require.NoError(t, New(link).Init(context.Background()))

	calls := link.Calls()
	require.Len(t, calls, 2)
	assert.Equal(t, byte(cmdSamConfiguration), calls[1].Cmd)
	assert.Equal(t, []byte{byte(SAMModeNormal), 0x00, 0x00}, calls[1].Args)
}

func TestDevice_InitSAMFailure(t *testing.T) {
	t.Parallel()

	link := NewMockLink()
	link.SetError(cmdSamConfiguration, smartcard.NewNoACKError("waitAck", "/dev/ttyUSB0"))

	err := New(link).Init(context.Background())
	require.ErrorIs(t, err, smartcard.ErrNoACK)
}

func TestDevice_InListPassiveTarget(t *testing.T) {
	t.Parallel()

	link := NewMockLink()
	link.SetResponse(cmdInListPassiveTarget, iso14443_4Target)

	target, err := New(link).InListPassiveTarget(context.Background())
	require.NoError(t, err)
	require.NotNil(t, target)

	assert.Equal(t, byte(1), target.Number)
	assert.Equal(t, []byte{0x03, 0x44}, target.ATQ)
	assert.Equal(t, byte(0x20), target.SAK)
	assert.Equal(t, []byte{0x04, 0x12, 0x34, 0x56, 0x78, 0x9A, 0xBC}, target.UID)
	assert.Equal(t, []byte{0x06, 0x75, 0x77, 0x81, 0x02, 0x80}, target.ATS)
	assert.True(t, target.SupportsISO14443_4())
	assert.Equal(t, "target 1 (UID 04123456789abc, SAK 0x20)", target.String())

	assert.Equal(t, []byte{0x01, BaudRate106kbpsTypeA}, link.Calls()[0].Args)
}

func TestDevice_InListPassiveTargetEmptyField(t *testing.T) {
	t.Parallel()

	link := NewMockLink()
	link.SetResponse(cmdInListPassiveTarget, []byte{0x4B, 0x00})

	target, err := New(link).InListPassiveTarget(context.Background())
	require.NoError(t, err)
	assert.Nil(t, target)
}

func TestDevice_InListPassiveTargetTruncated(t *testing.T) {
	t.Parallel()

	for _, response := range [][]byte{
		{0x4B},
		{0x4B, 0x01, 0x01, 0x00},
		{0x4B, 0x01, 0x01, 0x00, 0x44, 0x00, 0x07, 0x04},
	} {
		link := NewMockLink()
		link.SetResponse(cmdInListPassiveTarget, response)
		_, err := New(link).InListPassiveTarget(context.Background())
		assert.ErrorIs(t, err, smartcard.ErrInvalidResponse, "response %X", response)
	}
}

func TestDevice_InDataExchange(t *testing.T) {
	t.Parallel()

	link := NewMockLink()
	link.SetResponse(cmdInDataExchange, []byte{0x41, 0x00, 0x6F, 0x10, 0x90, 0x00})

	res, err := New(link).InDataExchange(context.Background(), 1, []byte{0x00, 0xA4, 0x04, 0x00})
	require.NoError(t, err)
	assert.Equal(t, []byte{0x6F, 0x10, 0x90, 0x00}, res)
	assert.Equal(t, []byte{0x01, 0x00, 0xA4, 0x04, 0x00}, link.Calls()[0].Args)
}

func TestDevice_InDataExchangeChaining(t *testing.T) {
	t.Parallel()

	link := NewMockLink()
	link.QueueResponses(cmdInDataExchange,
		[]byte{0x41, 0x40, 0x01, 0x02},
		[]byte{0x41, 0x40, 0x03},
		[]byte{0x41, 0x00, 0x90, 0x00},
	)

	res, err := New(link).InDataExchange(context.Background(), 1, []byte{0x00, 0xB0, 0x00, 0x00, 0x00})
	require.NoError(t, err)
	assert.Equal(t, []byte{0x01, 0x02, 0x03, 0x90, 0x00}, res)

	calls := link.Calls()
	require.Len(t, calls, 3)
	assert.Equal(t, []byte{0x01}, calls[1].Args)
	assert.Equal(t, []byte{0x01}, calls[2].Args)
}

func TestDevice_InDataExchangeErrors(t *testing.T) {
	t.Parallel()

	tests := []struct {
		check    func(t *testing.T, err error)
		name     string
		response []byte
	}{
		{
			name:     "status error",
			response: []byte{0x41, 0x01},
			check: func(t *testing.T, err error) {
				t.Helper()
				var pe *PN532Error
				require.ErrorAs(t, err, &pe)
				assert.True(t, pe.IsTimeoutError())
			},
		},
		{
			name:     "card removed",
			response: []byte{0x41, 0x2B},
			check: func(t *testing.T, err error) {
				t.Helper()
				assert.True(t, IsCardGone(err))
			},
		},
		{
			name:     "error frame",
			response: []byte{0x7F, 0x81},
			check: func(t *testing.T, err error) {
				t.Helper()
				var pe *PN532Error
				require.ErrorAs(t, err, &pe)
				assert.True(t, pe.IsCommandNotSupported())
			},
		},
		{
			name:     "wrong response code",
			response: []byte{0x4B, 0x00},
			check: func(t *testing.T, err error) {
				t.Helper()
				assert.ErrorIs(t, err, smartcard.ErrInvalidResponse)
			},
		},
		{
			name:     "missing status",
			response: []byte{0x41},
			check: func(t *testing.T, err error) {
				t.Helper()
				assert.ErrorIs(t, err, smartcard.ErrInvalidResponse)
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			link := NewMockLink()
			link.SetResponse(cmdInDataExchange, tt.response)
			_, err := New(link).InDataExchange(context.Background(), 1, []byte{0x00})
			require.Error(t, err)
			tt.check(t, err)
		})
	}
}

func TestDevice_InDataExchangeEndlessChain(t *testing.T) {
	t.Parallel()

	link := NewMockLink()
	link.SetResponse(cmdInDataExchange, []byte{0x41, 0x40, 0x00})

	_, err := New(link).InDataExchange(context.Background(), 1, []byte{0x00})
	require.ErrorIs(t, err, smartcard.ErrInvalidResponse)
	assert.Equal(t, maxChainedFrames, link.CallCount(cmdInDataExchange))
}

func TestDevice_InRelease(t *testing.T) {
	t.Parallel()

	link := NewMockLink()
	device := New(link)
	require.NoError(t, device.InRelease(context.Background(), 1))

	link.SetResponse(cmdInRelease, []byte{0x53, 0x27})
	var pe *PN532Error
	require.ErrorAs(t, device.InRelease(context.Background(), 1), &pe)
	assert.Equal(t, byte(0x27), pe.ErrorCode)
}

func TestDevice_LinkErrorsAreWrapped(t *testing.T) {
	t.Parallel()

	link := NewMockLink()
	linkErr := errors.New("serial port gone")
	link.SetError(cmdInRelease, linkErr)

	err := New(link).InRelease(context.Background(), 1)
	require.ErrorIs(t, err, linkErr)
	assert.Contains(t, err.Error(), "InRelease command failed")
}

func TestDevice_CancelledContext(t *testing.T) {
	t.Parallel()

	link := NewMockLink()
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := New(link).InListPassiveTarget(ctx)
	require.ErrorIs(t, err, context.Canceled)
	assert.Empty(t, link.Calls())
}

func TestDevice_Close(t *testing.T) {
	t.Parallel()

	link := NewMockLink()
	device := New(link)
	require.NoError(t, device.Close())

	_, err := device.FirmwareVersion(context.Background())
	require.ErrorIs(t, err, smartcard.ErrTransportClosed)
}

func TestPN532Error(t *testing.T) {
	t.Parallel()

	err := NewPN532Error(0x01, "InDataExchange", "target 1")
	assert.Equal(t, "InDataExchange error 0x01 (timeout): target 1", err.Error())
	assert.Equal(t, "InRelease error 0xEE (unknown error)", NewPN532Error(0xEE, "InRelease", "").Error())
	assert.False(t, IsCardGone(errors.New("other")))
	assert.True(t, IsCardGone(NewPN532Error(0x29, "InDataExchange", "")))
}
