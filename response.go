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
	"bytes"
	"encoding/hex"
	"fmt"
)

// Response is the data a terminal returned for one command, tagged with the
// logical channel it arrived on. Two responses are equal when both the
// channel and the data bytes match.
type Response struct {
	data    []byte
	channel int
}

// ResponseKey is a comparable form of a Response, suitable as a map key.
type ResponseKey struct {
	data    string
	channel int
}

// NewResponse creates a response. The data is copied.
func NewResponse(channel int, data []byte) Response {
	return Response{channel: channel, data: append([]byte{}, data...)}
}

// Channel returns the logical channel number.
func (r Response) Channel() int {
	return r.channel
}

// Data returns a copy of the response data.
func (r Response) Data() []byte {
	return append([]byte{}, r.data...)
}

// Len returns the number of data bytes.
func (r Response) Len() int {
	return len(r.data)
}

// Equal reports structural equality.
func (r Response) Equal(other Response) bool {
	return r.channel == other.channel && bytes.Equal(r.data, other.data)
}

// Key returns the comparable form of r.
func (r Response) Key() ResponseKey {
	return ResponseKey{channel: r.channel, data: string(r.data)}
}

func (r Response) String() string {
	return fmt.Sprintf("Response{Channel: %d, Data: %s}", r.channel, hex.EncodeToString(r.data))
}

// StatusWord is the SW1 SW2 trailer of a response APDU.
type StatusWord uint16

// Common status words.
const (
	SWSuccess            StatusWord = 0x9000
	SWWrongLength        StatusWord = 0x6700
	SWFileNotFound       StatusWord = 0x6A82
	SWInsNotSupported    StatusWord = 0x6D00
	SWClassNotSupported  StatusWord = 0x6E00
	SWSecurityNotSatisfy StatusWord = 0x6982
)

// SW1 returns the first status byte.
func (sw StatusWord) SW1() byte {
	return byte(sw >> 8)
}

// SW2 returns the second status byte.
func (sw StatusWord) SW2() byte {
	return byte(sw)
}

// IsSuccess reports 0x9000 and the 0x61XX "more data available" family.
func (sw StatusWord) IsSuccess() bool {
	return sw == SWSuccess || sw.SW1() == 0x61
}

func (sw StatusWord) String() string {
	return fmt.Sprintf("%04X", uint16(sw))
}

// SplitStatusWord separates a raw response APDU into its data and trailer.
func SplitStatusWord(raw []byte) ([]byte, StatusWord, error) {
	if len(raw) < 2 {
		return nil, 0, fmt.Errorf("response of %d bytes has no status word: %w", len(raw), ErrInvalidResponse)
	}
	n := len(raw) - 2
	sw := StatusWord(uint16(raw[n])<<8 | uint16(raw[n+1]))
	return append([]byte{}, raw[:n]...), sw, nil
}
