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
	"strings"

	"go.bug.st/serial/enumerator"
)

// serialPort represents a serial port with metadata
type serialPort struct {
	Path         string
	Name         string
	VIDPID       string
	Product      string
	SerialNumber string
}

func listSerialPorts() ([]serialPort, error) {
	details, err := enumerator.GetDetailedPortsList()
	if err != nil {
		return nil, fmt.Errorf("failed to enumerate serial ports: %w", err)
	}

	ports := make([]serialPort, 0, len(details))
	for _, p := range details {
		port := serialPort{
			Path:    p.Name,
			Name:    p.Name[strings.LastIndexAny(p.Name, `/\`)+1:],
			Product: p.Product,
		}
		if p.IsUSB {
			port.VIDPID = strings.ToUpper(p.VID + ":" + p.PID)
			port.SerialNumber = p.SerialNumber
		}
		ports = append(ports, port)
	}
	return ports, nil
}

func (d *Detector) detectUART(ctx context.Context, opts *Options) ([]DeviceInfo, error) {
	ports, err := d.listSerial()
	if err != nil {
		return nil, err
	}

	var devices []DeviceInfo
	for i := range ports {
		if ctx.Err() != nil {
			return devices, nil
		}

		port := &ports[i]
		if port.VIDPID != "" && IsBlocked(port.VIDPID, opts.Blocklist) {
			continue
		}
		if IsPathIgnored(port.Path, opts.IgnorePaths) {
			continue
		}

		if device, ok := d.classifyPort(ctx, port, opts); ok {
			devices = append(devices, device)
		}
	}
	return devices, nil
}

// classifyPort decides whether port is reported and with what confidence.
func (d *Detector) classifyPort(ctx context.Context, port *serialPort, opts *Options) (DeviceInfo, bool) {
	likely := isLikelyPN532(port) || matchesGoodPatterns(port)

	confidence := Low
	if likely {
		confidence = Medium
	}

	switch opts.Mode {
	case Passive:
		if !likely {
			return DeviceInfo{}, false
		}
	case Safe, Full:
		if d.probeWithTimeout(ctx, opts, TransportUART, port.Path) {
			confidence = High
		} else if opts.Mode == Safe && !likely {
			return DeviceInfo{}, false
		}
	}

	device := DeviceInfo{
		Transport:  TransportUART,
		Path:       port.Path,
		Name:       port.Name,
		Confidence: confidence,
		Metadata:   make(map[string]string),
	}
	if port.VIDPID != "" {
		device.Metadata["vidpid"] = port.VIDPID
	}
	if port.Product != "" {
		device.Metadata["product"] = port.Product
	}
	if port.SerialNumber != "" {
		device.Metadata["serial"] = port.SerialNumber
	}
	return device, true
}

// matchesGoodPatterns checks for the names USB-serial adapters get.
func matchesGoodPatterns(port *serialPort) bool {
	goodPatterns := []string{
		"usbserial",      // FTDI and similar USB-serial adapters
		"slab_usbtouart", // Silicon Labs CP210x
		"usbmodem",       // Arduino and similar devices
		"ttyusb",
		"ttyacm",
	}

	lowerName := strings.ToLower(port.Name)
	lowerPath := strings.ToLower(port.Path)
	for _, pattern := range goodPatterns {
		if strings.Contains(lowerName, pattern) || strings.Contains(lowerPath, pattern) {
			return true
		}
	}
	return false
}

// isLikelyPN532 checks if a serial port is likely to be a PN532 device
func isLikelyPN532(port *serialPort) bool {
	knownPN532 := []string{
		"067B:2303", // Prolific PL2303
		"0403:6001", // FTDI FT232
		"10C4:EA60", // Silicon Labs CP210x
		"1A86:7523", // QinHeng CH340
	}

	upperVIDPID := strings.ToUpper(port.VIDPID)
	for _, known := range knownPN532 {
		if upperVIDPID == known {
			return true
		}
	}

	lowerProduct := strings.ToLower(port.Product)
	for _, keyword := range []string{"pn532", "nfc", "rfid", "13.56"} {
		if strings.Contains(lowerProduct, keyword) {
			return true
		}
	}
	return false
}
