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

//nolint:paralleltest // Tests modify package-level session log state, cannot run in parallel
package smartcard

import (
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// cleanupSessionLog makes sure no session log outlives the test.
func cleanupSessionLog(t *testing.T) {
	t.Helper()
	t.Cleanup(func() {
		_ = CloseSessionLog()
	})
}

func TestInitSessionLog_CreatesFile(t *testing.T) {
	cleanupSessionLog(t)
	dir := t.TempDir()

	path, err := InitSessionLog(dir)
	require.NoError(t, err)

	_, err = os.Stat(path)
	require.NoError(t, err, "log file should exist")
	assert.Equal(t, dir, filepath.Dir(path))

	matched, err := regexp.MatchString(`^smartcard_\d{8}_\d{6}\.log$`, filepath.Base(path))
	require.NoError(t, err)
	assert.True(t, matched, "unexpected file name %s", path)
}

func TestInitSessionLog_HeaderAndFooter(t *testing.T) {
	cleanupSessionLog(t)

	path, err := InitSessionLog(t.TempDir())
	require.NoError(t, err)
	Debugf("reader %s connected", "ACR122U")
	require.NoError(t, CloseSessionLog())

	content, err := os.ReadFile(path) //nolint:gosec // path is from InitSessionLog
	require.NoError(t, err)

	text := string(content)
	assert.True(t, strings.HasPrefix(text, "=== Smart Card Session Log ===\n"))
	for _, field := range []string{"Started:", "PID:", "OS:", "Go Version:", "Command Line:"} {
		assert.Contains(t, text, field)
	}
	assert.Contains(t, text, "DEBUG: reader ACR122U connected")
	assert.Contains(t, text, "=== Session ended ===")
}

func TestInitSessionLog_InvalidDirectory(t *testing.T) {
	cleanupSessionLog(t)

	_, err := InitSessionLog(filepath.Join(t.TempDir(), "missing"))
	require.Error(t, err)
	assert.Empty(t, GetSessionLogPath())
}

func TestCloseSessionLog_NothingOpen(t *testing.T) {
	cleanupSessionLog(t)
	require.NoError(t, CloseSessionLog())

	assert.NoError(t, CloseSessionLog())
}

func TestGetSessionLogPath(t *testing.T) {
	cleanupSessionLog(t)
	require.NoError(t, CloseSessionLog())
	assert.Empty(t, GetSessionLogPath())

	path, err := InitSessionLog(t.TempDir())
	require.NoError(t, err)
	assert.Equal(t, path, GetSessionLogPath())

	require.NoError(t, CloseSessionLog())
	assert.Empty(t, GetSessionLogPath())
}

func TestInitSessionLog_ReplacesOpenLog(t *testing.T) {
	cleanupSessionLog(t)

	first, err := InitSessionLog(t.TempDir())
	require.NoError(t, err)
	second, err := InitSessionLog(t.TempDir())
	require.NoError(t, err)

	assert.NotEqual(t, first, second)
	assert.Equal(t, second, GetSessionLogPath())
}
