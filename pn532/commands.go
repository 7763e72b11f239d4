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

// PN532 command codes used by this package
const (
	cmdGetFirmwareVersion  = 0x02
	cmdSamConfiguration    = 0x14
	cmdInDataExchange      = 0x40
	cmdInListPassiveTarget = 0x4A
	cmdInRelease           = 0x52
)

// SAMMode selects how the PN532 uses its security access module.
type SAMMode byte

// SAM configuration modes
const (
	SAMModeNormal      SAMMode = 0x01
	SAMModeVirtualCard SAMMode = 0x02
	SAMModeWiredCard   SAMMode = 0x03
	SAMModeDualCard    SAMMode = 0x04
)

// Baud rate and modulation for InListPassiveTarget
const (
	BaudRate106kbpsTypeA = 0x00
)

const (
	// MaxAPDULength is the largest command APDU that fits a normal
	// InDataExchange frame: 255 bytes minus TFI, command code and target.
	MaxAPDULength = 252

	// statusMoreInformation is the MI bit of an InDataExchange status byte.
	statusMoreInformation = 0x40
	// statusErrorMask extracts the error code from a status byte.
	statusErrorMask = 0x3F

	// maxChainedFrames bounds MI chaining of a single response.
	maxChainedFrames = 16
)
