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
	"path/filepath"
)

// Normalize applies post-validation defaults.
// It must be called only after Validate.
func Normalize(cfg *Config) {
	if cfg == nil {
		return
	}

	used := make(map[string]bool, len(cfg.Terminals))
	for _, t := range cfg.Terminals {
		if t.Name != "" {
			used[t.Name] = true
		}
	}

	for i := range cfg.Terminals {
		t := &cfg.Terminals[i]
		if t.Name != "" {
			continue
		}

		// Unnamed terminals are named after their transport and device,
		// e.g. "uart:ttyUSB0".
		name := t.Transport + ":" + filepath.Base(t.Path)
		if used[name] {
			name = fmt.Sprintf("%s#%d", name, i)
		}
		t.Name = name
		used[name] = true
	}
}
