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
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDecodeHex(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name  string
		input string
		want  []byte
	}{
		{name: "empty", input: "", want: []byte{}},
		{name: "single byte", input: "ff", want: []byte{0xFF}},
		{name: "mixed case", input: "aBcD", want: []byte{0xAB, 0xCD}},
		{name: "aid", input: "A0000000041010", want: []byte{0xA0, 0x00, 0x00, 0x00, 0x04, 0x10, 0x10}},
		{name: "lone nibble", input: "1", want: []byte{0x10}},
		{name: "odd length", input: "abc", want: []byte{0xAB, 0xC0}},
		{name: "trailing zero kept", input: "100", want: []byte{0x10, 0x00}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			got, err := DecodeHex(tt.input)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestDecodeHex_Invalid(t *testing.T) {
	t.Parallel()

	for _, input := range []string{"qerb11", "0g", "12 34", "0x12", "é1"} {
		t.Run(input, func(t *testing.T) {
			t.Parallel()
			_, err := DecodeHex(input)
			require.ErrorIs(t, err, ErrInvalidArgument)

			var argErr *ArgumentError
			require.ErrorAs(t, err, &argErr)
			assert.Equal(t, input, argErr.Value)
		})
	}
}
