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

import "encoding/hex"

// DecodeHex decodes a string of hexadecimal digits. Upper and lower case are
// accepted. When the string has an odd number of digits the final digit is
// taken as the high nibble of one more byte, so "1" decodes to 0x10 and
// "abc" to 0xAB 0xC0.
func DecodeHex(s string) ([]byte, error) {
	padded := s
	if len(padded)%2 == 1 {
		padded += "0"
	}
	data, err := hex.DecodeString(padded)
	if err != nil {
		return nil, NewArgumentError("DecodeHex", "hex", s, err.Error())
	}
	return data, nil
}
