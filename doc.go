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

/*
Package smartcard builds ISO/IEC 7816-4 command APDUs and reads the responses
from card terminals.

Commands are assembled with a Builder:

	cmd, err := smartcard.NewBuilder().
	    SetINS(smartcard.InsSelectFile).
	    SetP1(0x04).
	    SetDataHex("D1580000010000000000000000001100").
	    Build()
	if err != nil {
	    return err
	}

Length fields follow ISO/IEC 7816-4: values up to 255 take one byte, larger
values take three bytes (0x00 followed by the big-endian length). The same
encoding, EncodeLength, serves both Lc and Le.

Terminals are supplied by a TerminalProvider. The pn532 package offers
terminals backed by a PN532 controller over UART or I2C; StaticTerminals and
MockTerminal cover fixed setups and tests. A Reader ties a provider to
command execution:

	reader := smartcard.NewReader(smartcard.StaticTerminals{terminal})
	responses := reader.Read(ctx, []smartcard.Command{cmd})
	for name, list := range responses {
	    fmt.Println(name, list)
	}

A terminal that fails during Read is logged through Debugf and reported with
an empty response list, so one broken reader never hides the others.

For continuous reading with change detection see the polling package.

Debug output is enabled with SMARTCARD_DEBUG=1 or SetDebugEnabled, and can be
captured to a file with InitSessionLog.
*/
package smartcard
