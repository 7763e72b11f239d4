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
	"errors"
	"fmt"
)

// ErrNotISO14443_4 means the card in the field does not speak ISO 14443-4
// and therefore cannot exchange APDUs.
var ErrNotISO14443_4 = errors.New("target is not ISO 14443-4 compliant") //nolint:revive,stylecheck // protocol name

// PN532Error wraps PN532 device errors with error code context.
type PN532Error struct {
	Command   string
	Context   string
	ErrorCode byte
}

func (e *PN532Error) Error() string {
	base := fmt.Sprintf("%s error 0x%02X (%s)", e.Command, e.ErrorCode, errorCodeMeaning(e.ErrorCode))
	if e.Context != "" {
		base += ": " + e.Context
	}
	return base
}

// errorCodeMeaning returns a human-readable meaning for PN532 error codes
// (PN532 User Manual section 7.1).
func errorCodeMeaning(code byte) string {
	meanings := map[byte]string{
		0x00: "success",
		0x01: "timeout",
		0x02: "CRC error",
		0x03: "parity error",
		0x04: "erroneous bit count during anti-collision",
		0x05: "framing error during mifare operation",
		0x06: "abnormal bit collision",
		0x07: "communication buffer size insufficient",
		0x09: "RF buffer overflow",
		0x0A: "RF field not activated in time",
		0x0B: "RF protocol error",
		0x0D: "overheating",
		0x0E: "internal buffer overflow",
		0x10: "invalid parameter",
		0x12: "DEP protocol not supported",
		0x13: "dataformat does not match",
		0x14: "authentication error",
		0x23: "UID check byte is wrong",
		0x25: "DEP invalid state",
		0x26: "operation not allowed",
		0x27: "wrong context for command",
		0x29: "target released by initiator",
		0x2A: "card ID mismatch",
		0x2B: "card disappeared",
		0x2C: "NFCID3 initiator/target mismatch",
		0x2D: "over-current event",
		0x2E: "NAD missing in DEP frame",
		0x81: "command not supported",
	}
	if m, ok := meanings[code]; ok {
		return m
	}
	return "unknown error"
}

// IsTimeoutError returns true if the card did not answer in time.
func (e *PN532Error) IsTimeoutError() bool {
	return e.ErrorCode == 0x01
}

// IsCardGone returns true if the card left the field mid exchange.
func (e *PN532Error) IsCardGone() bool {
	return e.ErrorCode == 0x29 || e.ErrorCode == 0x2B
}

// IsCommandNotSupported returns true if the PN532 rejected the command code.
func (e *PN532Error) IsCommandNotSupported() bool {
	return e.ErrorCode == 0x81
}

// NewPN532Error creates a PN532 error with the specified error code and context
func NewPN532Error(errorCode byte, command, context string) *PN532Error {
	return &PN532Error{
		ErrorCode: errorCode,
		Command:   command,
		Context:   context,
	}
}

// IsCardGone reports whether err means the card was removed during an exchange.
func IsCardGone(err error) bool {
	var pe *PN532Error
	if errors.As(err, &pe) {
		return pe.IsCardGone()
	}
	return false
}
