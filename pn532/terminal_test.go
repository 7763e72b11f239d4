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
	"bytes"
	"context"
	"testing"

	"github.com/ZaparooProject/go-smartcard"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newCardLink() *MockLink {
	link := NewMockLink()
	link.SetResponse(cmdGetFirmwareVersion, []byte{0x03, 0x32, 0x01, 0x06, 0x07})
	link.SetResponse(cmdInListPassiveTarget, iso14443_4Target)
	return link
}

func TestTerminal_ConnectAndTransmit(t *testing.T) {
	t.Parallel()

	link := newCardLink()
	link.SetResponse(cmdInDataExchange, []byte{0x41, 0x00, 0x01, 0x02, 0x90, 0x00})
	terminal := NewTerminal("PN532 /dev/ttyUSB0", link)
	assert.Equal(t, "PN532 /dev/ttyUSB0", terminal.Name())

	card, err := terminal.Connect(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 0, card.Channel())

	res, err := card.Transmit(context.Background(), []byte{0x00, 0xB0, 0x00, 0x00, 0x02})
	require.NoError(t, err)
	assert.Equal(t, []byte{0x01, 0x02, 0x90, 0x00}, res)

	require.NoError(t, card.Disconnect())
	assert.Equal(t, 1, link.CallCount(cmdInRelease))
}

func TestTerminal_InitializesOnce(t *testing.T) {
	t.Parallel()

	link := newCardLink()
	terminal := NewTerminal("pn532", link)

	for range 3 {
		card, err := terminal.Connect(context.Background())
		require.NoError(t, err)
		require.NoError(t, card.Disconnect())
	}
	assert.Equal(t, 1, link.CallCount(cmdSamConfiguration))
	assert.Equal(t, 3, link.CallCount(cmdInListPassiveTarget))
}

func TestTerminal_ReinitializesAfterFatalError(t *testing.T) {
	t.Parallel()

	link := newCardLink()
	terminal := NewTerminal("pn532", link)

	_, err := terminal.Connect(context.Background())
	require.NoError(t, err)

	link.SetError(cmdInListPassiveTarget, smartcard.NewTransportError("read", "/dev/ttyUSB0",
		smartcard.ErrTerminalGone, smartcard.ErrorTypePermanent))
	_, err = terminal.Connect(context.Background())
	require.Error(t, err)

	link.ClearError(cmdInListPassiveTarget)
	_, err = terminal.Connect(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, link.CallCount(cmdSamConfiguration))
}

func TestTerminal_NoCard(t *testing.T) {
	t.Parallel()

	link := newCardLink()
	link.SetResponse(cmdInListPassiveTarget, []byte{0x4B, 0x00})

	_, err := NewTerminal("pn532", link).Connect(context.Background())
	require.ErrorIs(t, err, smartcard.ErrNoCard)
	assert.True(t, smartcard.IsNoCard(err))
}

func TestTerminal_RejectsNonISO14443_4Card(t *testing.T) {
	t.Parallel()

	link := newCardLink()
	link.SetResponse(cmdInListPassiveTarget, ntagTarget)

	_, err := NewTerminal("pn532", link).Connect(context.Background())
	require.ErrorIs(t, err, ErrNotISO14443_4)
	assert.Equal(t, 1, link.CallCount(cmdInRelease))
}

func TestTerminal_InitFailure(t *testing.T) {
	t.Parallel()

	link := newCardLink()
	link.SetResponse(cmdSamConfiguration, []byte{0x7F, 0x81})

	_, err := NewTerminal("pn532", link).Connect(context.Background())
	var pe *PN532Error
	require.ErrorAs(t, err, &pe)
	assert.Equal(t, 0, link.CallCount(cmdInListPassiveTarget))
}

func TestCard_TransmitTooLarge(t *testing.T) {
	t.Parallel()

	link := newCardLink()
	card, err := NewTerminal("pn532", link).Connect(context.Background())
	require.NoError(t, err)

	_, err = card.Transmit(context.Background(), make([]byte, MaxAPDULength+1))
	require.ErrorIs(t, err, smartcard.ErrDataTooLarge)
	assert.Equal(t, 0, link.CallCount(cmdInDataExchange))

	_, err = card.Transmit(context.Background(), make([]byte, MaxAPDULength))
	assert.NoError(t, err)
}

func TestTerminal_WithReader(t *testing.T) {
	t.Parallel()

	selectAID := smartcard.NewBuilder().SetINS(smartcard.InsSelectFile).SetP1(0x04).
		SetDataHex("F000000001").SetLe(256).MustBuild()

	link := newCardLink()
	link.SetResponse(cmdInDataExchange, []byte{0x41, 0x00, 0xCA, 0xFE, 0x90, 0x00})
	terminal := NewTerminal("pn532", link)
	reader := smartcard.NewReader(smartcard.StaticTerminals{terminal})

	got := reader.Read(context.Background(), []smartcard.Command{selectAID})
	require.Len(t, got["pn532"], 1)
	assert.Equal(t, []byte{0xCA, 0xFE}, got["pn532"][0].Data())

	var sent []byte
	for _, call := range link.Calls() {
		if call.Cmd == cmdInDataExchange {
			sent = call.Args
		}
	}
	assert.True(t, bytes.Equal(append([]byte{0x01}, selectAID.Bytes()...), sent))
}

func TestTerminal_EmptyFieldWithReader(t *testing.T) {
	t.Parallel()

	link := newCardLink()
	link.SetResponse(cmdInListPassiveTarget, []byte{0x4B, 0x00})
	reader := smartcard.NewReader(smartcard.StaticTerminals{NewTerminal("pn532", link)})

	got := reader.Read(context.Background(), []smartcard.Command{smartcard.NewBuilder().SetLe(1).MustBuild()})
	require.Contains(t, got, "pn532")
	assert.Empty(t, got["pn532"])
}

func TestTerminal_Close(t *testing.T) {
	t.Parallel()

	link := newCardLink()
	terminal := NewTerminal("pn532", link)
	require.NoError(t, terminal.Close())
	assert.NotNil(t, terminal.Device())

	_, err := terminal.Connect(context.Background())
	require.ErrorIs(t, err, smartcard.ErrTransportClosed)
}
