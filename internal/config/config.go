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


// Package config loads the YAML configuration of the cardpoll command.
package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/ZaparooProject/go-smartcard"
	"github.com/ZaparooProject/go-smartcard/internal/publish"
	"github.com/ZaparooProject/go-smartcard/polling"
	"gopkg.in/yaml.v3"
)

// Transport names accepted in a terminal entry.
const (
	TransportUART = "uart"
	TransportI2C  = "i2c"
)

type Config struct {
	MQTT      publish.Config   `yaml:"mqtt"`
	Log       LogConfig        `yaml:"log"`
	Terminals []TerminalConfig `yaml:"terminals"`
	Commands  []string         `yaml:"commands"`
	Preamble  []string         `yaml:"preamble"`
	Poll      PollConfig       `yaml:"poll"`
}

// ---- TERMINAL ----

type TerminalConfig struct {
	Name      string `yaml:"name"`
	Transport string `yaml:"transport"`
	Path      string `yaml:"path"`
}

// ---- POLL ----

type PollConfig struct {
	IntervalMs        int `yaml:"interval_ms"`
	TickTimeoutMs     int `yaml:"tick_timeout_ms"`
	TerminalTimeoutMs int `yaml:"terminal_timeout_ms"`
}

// ---- LOG ----

type LogConfig struct {
	SessionDir string `yaml:"session_dir"`
	Debug      bool   `yaml:"debug"`
}

// Load reads, validates and normalizes the file at path.
func Load(path string) (*Config, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open config: %w", err)
	}
	defer func() { _ = f.Close() }()

	cfg, err := Decode(f)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return cfg, nil
}

// Decode parses a YAML document, rejecting unknown keys, then validates and
// normalizes it.
func Decode(r io.Reader) (*Config, error) {
	cfg := &Config{}
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("parse config: %w", err)
	}

	if err := Validate(cfg); err != nil {
		return nil, err
	}
	Normalize(cfg)
	return cfg, nil
}

// Parse is Decode on an in-memory document.
func Parse(data []byte) (*Config, error) {
	return Decode(bytes.NewReader(data))
}

// PollingConfig returns the scheduler settings.
func (c *Config) PollingConfig() *polling.Config {
	pc := polling.DefaultConfig()
	if c.Poll.IntervalMs > 0 {
		pc.PollInterval = time.Duration(c.Poll.IntervalMs) * time.Millisecond
	}
	pc.TickTimeout = time.Duration(c.Poll.TickTimeoutMs) * time.Millisecond
	return pc
}

// TerminalTimeout returns the per-terminal exchange bound, zero for none.
func (c *Config) TerminalTimeout() time.Duration {
	return time.Duration(c.Poll.TerminalTimeoutMs) * time.Millisecond
}

// PolledCommands decodes the polled command APDUs.
func (c *Config) PolledCommands() ([]smartcard.Command, error) {
	return parseCommands("commands", c.Commands)
}

// PreambleCommands decodes the commands sent after every connect.
func (c *Config) PreambleCommands() ([]smartcard.Command, error) {
	return parseCommands("preamble", c.Preamble)
}

func parseCommands(field string, list []string) ([]smartcard.Command, error) {
	cmds := make([]smartcard.Command, 0, len(list))
	for i, s := range list {
		cmd, err := ParseCommandHex(s)
		if err != nil {
			return nil, fmt.Errorf("%s[%d]: %w", field, i, err)
		}
		cmds = append(cmds, cmd)
	}
	return cmds, nil
}

// ParseCommandHex decodes a complete command APDU written as hex digits.
// Spaces and colons between bytes are ignored.
func ParseCommandHex(s string) (smartcard.Command, error) {
	raw, err := smartcard.DecodeHex(stripSeparators(s))
	if err != nil {
		return smartcard.Command{}, err
	}
	return smartcard.ParseCommand(raw)
}

func stripSeparators(s string) string {
	out := make([]byte, 0, len(s))
	for i := 0; i < len(s); i++ {
		switch s[i] {
		case ' ', ':', '\t':
		default:
			out = append(out, s[i])
		}
	}
	return string(out)
}
