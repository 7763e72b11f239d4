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

// Interindustry instruction codes from ISO/IEC 7816-4.
const (
	InsEraseBinary          byte = 0x0E
	InsVerify               byte = 0x20
	InsManageChannel        byte = 0x70
	InsExternalAuthenticate byte = 0x82
	InsGetChallenge         byte = 0x84
	InsInternalAuthenticate byte = 0x88
	InsSelectFile           byte = 0xA4
	InsReadBinary           byte = 0xB0
	InsReadRecord           byte = 0xB2
	InsGetResponse          byte = 0xC0
	InsEnvelope             byte = 0xC2
	InsGetData              byte = 0xCA
	InsWriteBinary          byte = 0xD0
	InsWriteRecord          byte = 0xD2
	InsUpdateBinary         byte = 0xD6
	InsPutData              byte = 0xDA
	InsUpdateData           byte = 0xDC
	InsAppendRecord         byte = 0xE2
)
