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


package config

import (
	"fmt"
)

// Validate checks configuration correctness.
// It performs declarative validation only and does not mutate cfg.
func Validate(cfg *Config) error {
	if cfg == nil {
		return fmt.Errorf("config is nil")
	}

	if len(cfg.Terminals) == 0 {
		return fmt.Errorf("at least one terminal is required")
	}

	names := make(map[string]int)
	paths := make(map[string]int)
	for i, t := range cfg.Terminals {
		switch t.Transport {
		case TransportUART, TransportI2C:
		default:
			return fmt.Errorf("terminal %d: unknown transport %q (want %q or %q)",
				i, t.Transport, TransportUART, TransportI2C)
		}

		if t.Path == "" {
			return fmt.Errorf("terminal %d: path is required", i)
		}
		if prev, exists := paths[t.Path]; exists {
			return fmt.Errorf("terminals %d and %d share path %s", prev, i, t.Path)
		}
		paths[t.Path] = i

		if t.Name == "" {
			continue
		}
		if prev, exists := names[t.Name]; exists {
			return fmt.Errorf("terminals %d and %d share name %q", prev, i, t.Name)
		}
		names[t.Name] = i
	}

	if len(cfg.Commands) == 0 {
		return fmt.Errorf("at least one command is required")
	}
	if _, err := cfg.PolledCommands(); err != nil {
		return err
	}
	if _, err := cfg.PreambleCommands(); err != nil {
		return err
	}

	if cfg.Poll.IntervalMs < 0 {
		return fmt.Errorf("poll.interval_ms must not be negative")
	}
	if cfg.Poll.TickTimeoutMs < 0 {
		return fmt.Errorf("poll.tick_timeout_ms must not be negative")
	}
	if cfg.Poll.TerminalTimeoutMs < 0 {
		return fmt.Errorf("poll.terminal_timeout_ms must not be negative")
	}

	if err := cfg.MQTT.Validate(); err != nil {
		return err
	}

	return nil
}
