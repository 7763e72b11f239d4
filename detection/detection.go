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


// Package detection finds PN532 controllers on serial ports and I2C buses.
package detection

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/ZaparooProject/go-smartcard"
	"github.com/ZaparooProject/go-smartcard/pn532"
	"github.com/ZaparooProject/go-smartcard/transport/i2c"
	"github.com/ZaparooProject/go-smartcard/transport/uart"
)

// Mode represents the level of invasiveness for device detection
type Mode int

const (
	// Passive mode only checks device descriptors without any communication
	Passive Mode = iota
	// Safe mode probes with GetFirmwareVersion
	Safe
	// Full mode probes with a complete controller initialization
	Full
)

// Confidence represents the confidence level of device detection
type Confidence int

const (
	// Low confidence - device might be PN532
	Low Confidence = iota
	// Medium confidence - descriptors match a known PN532 board
	Medium
	// High confidence - device answered as a PN532
	High
)

func (c Confidence) String() string {
	switch c {
	case Low:
		return "low"
	case Medium:
		return "medium"
	case High:
		return "high"
	default:
		return "unknown"
	}
}

// Transport names reported in DeviceInfo.
const (
	TransportUART = "uart"
	TransportI2C  = "i2c"
)

// DeviceInfo represents a detected PN532 device
type DeviceInfo struct {
	// Additional metadata (e.g., VID:PID for USB devices)
	Metadata map[string]string
	// Transport type: "uart" or "i2c"
	Transport string
	// Connection path (e.g., "/dev/ttyUSB0", "/dev/i2c-1")
	Path string
	// Human-readable device name
	Name string
	// Detection confidence level
	Confidence Confidence
}

// String returns a human-readable representation of the device
func (d DeviceInfo) String() string {
	return fmt.Sprintf("%s device at %s (confidence: %s)", d.Transport, d.Path, d.Confidence)
}

// Options configures the detection behavior
type Options struct {
	// USB VID:PID pairs to skip (e.g., ["1234:5678", "ABCD:EF01"])
	Blocklist []string
	// Device paths to explicitly ignore (e.g., ["/dev/ttyUSB0", "COM2"])
	IgnorePaths []string
	// Which transports to check (empty = all)
	Transports []string
	// Bound for probing a single device
	ProbeTimeout time.Duration
	// Detection invasiveness level
	Mode Mode
}

// DefaultOptions returns sensible default detection options
func DefaultOptions() Options {
	return Options{
		Mode:         Safe,
		Blocklist:    DefaultBlocklist(),
		ProbeTimeout: 2 * time.Second,
	}
}

func (o *Options) wants(transport string) bool {
	if len(o.Transports) == 0 {
		return true
	}
	for _, t := range o.Transports {
		if t == transport {
			return true
		}
	}
	return false
}

var (
	// ErrNoDevicesFound indicates no PN532 devices were detected
	ErrNoDevicesFound = errors.New("no PN532 devices found")
)

// Prober checks whether the device at path answers as a PN532.
type Prober func(ctx context.Context, transport, path string, mode Mode) bool

// Detector searches the serial ports and I2C buses of the host.
type Detector struct {
	listSerial func() ([]serialPort, error)
	listI2C    func() ([]string, error)
	probe      Prober
}

// New creates a Detector for the local host.
func New() *Detector {
	return &Detector{
		listSerial: listSerialPorts,
		listI2C:    listI2CBuses,
		probe:      probeDevice,
	}
}

// Detect returns the devices found, most confident first. It returns
// ErrNoDevicesFound when nothing qualifies.
func (d *Detector) Detect(ctx context.Context, opts *Options) ([]DeviceInfo, error) {
	if opts == nil {
		defaults := DefaultOptions()
		opts = &defaults
	}

	var devices []DeviceInfo
	var errs []error

	if opts.wants(TransportUART) {
		found, err := d.detectUART(ctx, opts)
		if err != nil {
			errs = append(errs, err)
		}
		devices = append(devices, found...)
	}
	if opts.wants(TransportI2C) {
		found, err := d.detectI2C(ctx, opts)
		if err != nil {
			errs = append(errs, err)
		}
		devices = append(devices, found...)
	}

	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if len(devices) == 0 {
		if len(errs) > 0 {
			return nil, fmt.Errorf("%w: %w", ErrNoDevicesFound, errors.Join(errs...))
		}
		return nil, ErrNoDevicesFound
	}

	sort.SliceStable(devices, func(i, j int) bool {
		return devices[i].Confidence > devices[j].Confidence
	})
	return devices, nil
}

func (d *Detector) probeWithTimeout(ctx context.Context, opts *Options, transport, path string) bool {
	timeout := opts.ProbeTimeout
	if timeout <= 0 {
		timeout = 2 * time.Second
	}
	probeCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	return d.probe(probeCtx, transport, path, opts.Mode)
}

// probeDevice opens the device and talks to it once.
//
// Probing makes a single attempt per device; retrying would hammer
// devices that are not PN532 readers at all.
func probeDevice(ctx context.Context, transport, path string, mode Mode) bool {
	var link pn532.Link
	switch transport {
	case TransportUART:
		t, err := uart.New(path)
		if err != nil {
			return false
		}
		link = t
	case TransportI2C:
		t, err := i2c.New(path)
		if err != nil {
			return false
		}
		link = t
	default:
		return false
	}

	device := pn532.New(link)
	defer func() { _ = device.Close() }()

	switch mode {
	case Safe:
		_, err := device.FirmwareVersion(ctx)
		if err != nil {
			smartcard.Debugf("probe %s %s: %v", transport, path, err)
		}
		return err == nil
	case Full:
		err := device.Init(ctx)
		if err != nil {
			smartcard.Debugf("probe %s %s: %v", transport, path, err)
		}
		return err == nil
	default:
		return false
	}
}
