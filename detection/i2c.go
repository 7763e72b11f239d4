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


package detection

import (
	"context"
	"fmt"

	"periph.io/x/conn/v3/i2c/i2creg"
	"periph.io/x/host/v3"
)

// listI2CBuses returns the names of the I2C buses periph knows about.
func listI2CBuses() ([]string, error) {
	if _, err := host.Init(); err != nil {
		return nil, fmt.Errorf("failed to initialize periph host: %w", err)
	}

	refs := i2creg.All()
	names := make([]string, 0, len(refs))
	for _, ref := range refs {
		names = append(names, ref.Name)
	}
	return names, nil
}

// detectI2C reports buses with a PN532 at its fixed address. Buses carry no
// descriptors, so passive mode reports every bus with low confidence.
func (d *Detector) detectI2C(ctx context.Context, opts *Options) ([]DeviceInfo, error) {
	buses, err := d.listI2C()
	if err != nil {
		return nil, err
	}

	var devices []DeviceInfo
	for _, bus := range buses {
		if ctx.Err() != nil {
			return devices, nil
		}
		if IsPathIgnored(bus, opts.IgnorePaths) {
			continue
		}

		confidence := Low
		if opts.Mode != Passive {
			if !d.probeWithTimeout(ctx, opts, TransportI2C, bus) {
				continue
			}
			confidence = High
		}

		devices = append(devices, DeviceInfo{
			Transport:  TransportI2C,
			Path:       bus,
			Name:       bus,
			Confidence: confidence,
			Metadata:   map[string]string{"address": "0x24"},
		})
	}
	return devices, nil
}
