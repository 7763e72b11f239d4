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
	"encoding/binary"
	"errors"
	"fmt"
)

// Length field boundaries. A length below ShortLengthLimit is written as a
// single byte, anything larger uses the three byte extended form.
const (
	ShortLengthLimit  = 256
	MinFieldLength    = 1
	MaxDataLength     = 65535
	MaxExpectedLength = 65535
)

// HeaderLength is the size of the CLA INS P1 P2 header.
const HeaderLength = 4

// EncodeLength returns the ISO/IEC 7816-4 encoding of an Lc or Le value.
// Callers are expected to have checked n against the field bounds.
func EncodeLength(n int) []byte {
	if n < ShortLengthLimit {
		return []byte{byte(n)}
	}
	buf := make([]byte, 3)
	binary.BigEndian.PutUint16(buf[1:], uint16(n)) //nolint:gosec // bounded by MaxDataLength
	return buf
}

// Builder accumulates the fields of a command APDU.
//
// Setters return the builder so calls can be chained. A setter that receives
// an out of range value records an error wrapping ErrInvalidArgument and
// leaves the field unchanged; the error is available from Err straight away
// and is returned by Build. The error belongs to the field: a later valid
// setter call for the same field clears it.
type Builder struct {
	dataErr error
	leErr   error
	lc      []byte
	data    []byte
	le      []byte
	header  [HeaderLength]byte
}

// NewBuilder returns a builder with an all-zero header and no body.
func NewBuilder() *Builder {
	return &Builder{}
}

// SetCLA sets the class byte.
func (b *Builder) SetCLA(cla byte) *Builder {
	b.header[0] = cla
	return b
}

// SetINS sets the instruction byte.
func (b *Builder) SetINS(ins byte) *Builder {
	b.header[1] = ins
	return b
}

// SetP1 sets the first parameter byte.
func (b *Builder) SetP1(p1 byte) *Builder {
	b.header[2] = p1
	return b
}

// SetP2 sets the second parameter byte.
func (b *Builder) SetP2(p2 byte) *Builder {
	b.header[3] = p2
	return b
}

// SetData sets the command data field and its Lc encoding.
// The data is copied.
func (b *Builder) SetData(data ...byte) *Builder {
	if len(data) < MinFieldLength || len(data) > MaxDataLength {
		b.dataErr = NewArgumentError("SetData", "data", len(data),
			fmt.Sprintf("length must be between %d..%d", MinFieldLength, MaxDataLength))
		return b
	}
	b.data = append([]byte(nil), data...)
	b.lc = EncodeLength(len(data))
	b.dataErr = nil
	return b
}

// SetDataHex sets the command data field from a hexadecimal string.
// An empty string clears the data field.
func (b *Builder) SetDataHex(s string) *Builder {
	data, err := DecodeHex(s)
	if err != nil {
		b.dataErr = err
		return b
	}
	if len(data) == 0 {
		return b.ClearData()
	}
	return b.SetData(data...)
}

// ClearData removes the data field together with its Lc encoding.
func (b *Builder) ClearData() *Builder {
	b.data = nil
	b.lc = nil
	b.dataErr = nil
	return b
}

// SetLe sets the expected response length.
func (b *Builder) SetLe(n int) *Builder {
	if n < MinFieldLength || n > MaxExpectedLength {
		b.leErr = NewArgumentError("SetLe", "le", n,
			fmt.Sprintf("must be between %d..%d", MinFieldLength, MaxExpectedLength))
		return b
	}
	b.le = EncodeLength(n)
	b.leErr = nil
	return b
}

// ClearLe removes the expected response length.
func (b *Builder) ClearLe() *Builder {
	b.le = nil
	b.leErr = nil
	return b
}

// Err returns the errors of the fields whose most recent setter call was
// rejected, or nil when every field holds a valid value.
func (b *Builder) Err() error {
	return errors.Join(b.dataErr, b.leErr)
}

// Build assembles the command. It does not modify the builder and may be
// called any number of times.
func (b *Builder) Build() (Command, error) {
	if err := b.Err(); err != nil {
		return Command{}, err
	}

	raw := make([]byte, 0, HeaderLength+len(b.lc)+len(b.data)+len(b.le))
	raw = append(raw, b.header[:]...)
	if b.lc != nil {
		raw = append(raw, b.lc...)
		raw = append(raw, b.data...)
	}
	raw = append(raw, b.le...)

	return Command{raw: raw, nc: len(b.data), ne: decodeLength(b.le)}, nil
}

// MustBuild is like Build but panics on a recorded error. It is meant for
// package level command tables built from constants.
func (b *Builder) MustBuild() Command {
	cmd, err := b.Build()
	if err != nil {
		panic(err)
	}
	return cmd
}

// decodeLength is the inverse of EncodeLength for a complete field.
func decodeLength(field []byte) int {
	switch len(field) {
	case 1:
		return int(field[0])
	case 3:
		return int(binary.BigEndian.Uint16(field[1:]))
	default:
		return 0
	}
}

// Command is an encoded command APDU. The zero value is not a valid command.
type Command struct {
	raw []byte
	nc  int
	ne  int
}

// Bytes returns a copy of the encoded command.
func (c Command) Bytes() []byte {
	return append([]byte(nil), c.raw...)
}

// Len returns the encoded length in bytes.
func (c Command) Len() int {
	return len(c.raw)
}

// Header returns CLA, INS, P1 and P2.
func (c Command) Header() (cla, ins, p1, p2 byte) {
	if len(c.raw) < HeaderLength {
		return 0, 0, 0, 0
	}
	return c.raw[0], c.raw[1], c.raw[2], c.raw[3]
}

// Nc returns the length of the data field.
func (c Command) Nc() int {
	return c.nc
}

// Ne returns the expected response length, 0 when Le is absent.
func (c Command) Ne() int {
	return c.ne
}

// Data returns a copy of the data field.
func (c Command) Data() []byte {
	if c.nc == 0 {
		return nil
	}
	start := HeaderLength + len(EncodeLength(c.nc))
	return append([]byte(nil), c.raw[start:start+c.nc]...)
}

// Equal reports whether two commands encode to the same bytes.
func (c Command) Equal(other Command) bool {
	return string(c.raw) == string(other.raw)
}

func (c Command) String() string {
	return fmt.Sprintf("CommandAPDU: %d bytes, nc=%d, ne=%d", len(c.raw), c.nc, c.ne)
}

// ParseCommand decodes a raw command APDU in the layout produced by Build.
// A body that is not exactly [Lc DATA] [Le] is rejected. A short Le of 00
// is also accepted and means 256, as card documentation commonly writes it;
// the raw bytes are kept as given.
func ParseCommand(raw []byte) (Command, error) {
	if len(raw) < HeaderLength {
		return Command{}, NewArgumentError("ParseCommand", "raw", len(raw), "shorter than header")
	}
	cmd := Command{raw: append([]byte(nil), raw...)}
	body := raw[HeaderLength:]
	if len(body) == 0 {
		return cmd, nil
	}

	lcLen, nc := readLengthField(body)
	switch {
	case nc > 0 && lcLen+nc == len(body):
		cmd.nc = nc
		return cmd, nil
	case nc > 0 && lcLen+nc < len(body):
		if ne := parseLe(body[lcLen+nc:]); ne > 0 {
			cmd.nc, cmd.ne = nc, ne
			return cmd, nil
		}
	case lcLen == len(body):
		// Header followed by Le only.
		if ne := parseLe(body); ne > 0 {
			cmd.ne = ne
			return cmd, nil
		}
	}
	return Command{}, NewArgumentError("ParseCommand", "raw", len(raw), "malformed body")
}

// parseLe returns the expected length encoded by field, or 0 if field is not
// a valid Le.
func parseLe(field []byte) int {
	if len(field) == 1 && field[0] == 0x00 {
		return ShortLengthLimit
	}
	if ne := decodeLength(field); ne > 0 && len(EncodeLength(ne)) == len(field) {
		return ne
	}
	return 0
}

// readLengthField reads a length field at the start of body and returns the
// number of bytes it occupies together with its value.
func readLengthField(body []byte) (size, value int) {
	if body[0] != 0x00 {
		return 1, int(body[0])
	}
	if len(body) >= 3 {
		if v := int(binary.BigEndian.Uint16(body[1:3])); v >= ShortLengthLimit {
			return 3, v
		}
	}
	return 1, 0
}
