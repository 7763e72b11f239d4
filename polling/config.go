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

package polling

import (
	"fmt"
	"time"

	"github.com/ZaparooProject/go-smartcard"
)

// Config holds polling configuration options
type Config struct {
	// PollInterval is used when Start is given a zero interval.
	PollInterval time.Duration
	// TickTimeout bounds the transport work of a single tick. Zero leaves
	// the tick bounded only by the context passed to Start.
	TickTimeout time.Duration
}

// DefaultConfig returns the default polling configuration
func DefaultConfig() *Config {
	return &Config{
		PollInterval: time.Second,
	}
}

// Validate checks the configuration for values the scheduler cannot use.
func (c *Config) Validate() error {
	if c.PollInterval <= 0 {
		return smartcard.NewArgumentError("polling.Config", "poll interval", c.PollInterval, "must be positive")
	}
	if c.TickTimeout < 0 {
		return smartcard.NewArgumentError("polling.Config", "tick timeout", c.TickTimeout, "must not be negative")
	}
	return nil
}

func (c *Config) String() string {
	return fmt.Sprintf("poll every %s (tick timeout %s)", c.PollInterval, c.TickTimeout)
}
