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

// Package frame builds and parses PN532 normal information frames. It is
// shared by the serial and I2C links.
package frame

import (
	"fmt"

	"github.com/ZaparooProject/go-smartcard"
)

// Frame identifiers
const (
	HostToPn532 = 0xD4 // Commands from host to PN532
	Pn532ToHost = 0xD5 // Responses from PN532 to host
	ErrorFrame  = 0x7F // Application level error frame
)

// Frame markers
const (
	Preamble   = 0x00
	StartCode1 = 0x00
	StartCode2 = 0xFF
	Postamble  = 0x00
)

const (
	// MaxFrameDataLength is the largest LEN a response frame may carry.
	MaxFrameDataLength = 263
	// MaxCommandDataLength is the largest LEN a normal command frame may carry
	// (TFI, command code and arguments).
	MaxCommandDataLength = 255
	// Overhead is preamble, start code, LEN, LCS, DCS and postamble.
	Overhead = 7
)

var (
	AckFrame  = []byte{0x00, 0x00, 0xFF, 0x00, 0xFF, 0x00}
	NackFrame = []byte{0x00, 0x00, 0xFF, 0xFF, 0x00, 0x00}
)

// Checksum returns the byte sum of data. A frame section is valid when the
// sum including its checksum byte is zero.
func Checksum(data []byte) byte {
	chk := byte(0)
	for _, b := range data {
		chk += b
	}
	return chk
}

// Build encodes a host command frame:
// 00 00 FF LEN LCS D4 CMD ARGS... DCS 00.
func Build(cmd byte, args []byte) ([]byte, error) {
	dataLen := 2 + len(args)
	if dataLen > MaxCommandDataLength {
		return nil, fmt.Errorf("command 0x%02X with %d argument bytes: %w", cmd, len(args), smartcard.ErrDataTooLarge)
	}

	frm := make([]byte, 0, Overhead+dataLen)
	frm = append(frm, Preamble, StartCode1, StartCode2, byte(dataLen), ^byte(dataLen)+1, HostToPn532, cmd)
	frm = append(frm, args...)
	frm = append(frm, ^(HostToPn532+cmd+Checksum(args))+1, Postamble)
	return frm, nil
}

// FindStart returns the index of the LEN byte of the first frame in buf, or
// -1 when buf holds no start code.
func FindStart(buf []byte) int {
	for i := 0; i+1 < len(buf); i++ {
		if buf[i] == StartCode1 && buf[i+1] == StartCode2 {
			return i + 2
		}
	}
	return -1
}

// IsAck reports whether buf contains an ACK frame.
func IsAck(buf []byte) bool {
	return indexOf(buf, AckFrame) >= 0
}

// IsNack reports whether buf contains a NACK frame.
func IsNack(buf []byte) bool {
	return indexOf(buf, NackFrame) >= 0
}

func indexOf(buf, pattern []byte) int {
	for i := 0; i+len(pattern) <= len(buf); i++ {
		match := true
		for j := range pattern {
			if buf[i+j] != pattern[j] {
				match = false
				break
			}
		}
		if match {
			return i
		}
	}
	return -1
}

// Need returns how many bytes a frame starting at lenIdx occupies from lenIdx
// to the postamble, or 0 when the LEN byte is not yet available.
func Need(buf []byte, lenIdx int) int {
	if lenIdx < 0 || lenIdx >= len(buf) {
		return 0
	}
	return 2 + int(buf[lenIdx]) + 2
}

// Extract validates the response frame whose LEN byte is at lenIdx and
// returns its payload after the TFI, starting with the response code.
//
// An application error frame is returned as [0x7F, code]. retry reports a
// checksum or TFI mismatch that a NACK may fix; err reports a frame that
// cannot be parsed at all.
func Extract(buf []byte, lenIdx int) (data []byte, retry bool, err error) {
	if lenIdx < 0 || lenIdx+1 >= len(buf) {
		return nil, false, smartcard.NewFrameCorruptedError("extract", "")
	}

	frameLen := int(buf[lenIdx])
	if (frameLen+int(buf[lenIdx+1]))&0xFF != 0 {
		return nil, true, nil
	}
	if frameLen == 0 {
		return nil, false, smartcard.NewFrameCorruptedError("extract", "")
	}

	start := lenIdx + 2
	end := start + frameLen + 1 // data plus DCS
	if end > len(buf) {
		return nil, false, smartcard.NewFrameCorruptedError("extract", "")
	}

	tfi := buf[start]
	if tfi == ErrorFrame {
		code := byte(0)
		if start+1 < len(buf) {
			code = buf[start+1]
		}
		return []byte{ErrorFrame, code}, false, nil
	}

	if Checksum(buf[start:end]) != 0 {
		return nil, true, nil
	}
	if tfi != Pn532ToHost {
		return nil, true, nil
	}

	data = make([]byte, frameLen-1)
	copy(data, buf[start+1:start+frameLen])
	return data, false, nil
}
