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

//nolint:paralleltest // Tests modify package-level debug state, cannot run in parallel
package smartcard

import (
	"bytes"
	"io"
	"regexp"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// captureDebug routes debug output to a buffer for the duration of the test.
func captureDebug(t *testing.T) *bytes.Buffer {
	t.Helper()

	origEnabled := debugEnabled.Load()
	sessionLogMu.Lock()
	origWriter := sessionLogWriter
	var buf bytes.Buffer
	sessionLogWriter = &buf
	sessionLogMu.Unlock()
	debugEnabled.Store(false)

	t.Cleanup(func() {
		debugEnabled.Store(origEnabled)
		sessionLogMu.Lock()
		sessionLogWriter = origWriter
		sessionLogMu.Unlock()
	})
	return &buf
}

func setSessionWriter(w io.Writer) {
	sessionLogMu.Lock()
	sessionLogWriter = w
	sessionLogMu.Unlock()
}

func TestDebugf_WritesToSessionLog(t *testing.T) {
	buf := captureDebug(t)

	Debugf("test message %d", 42)

	assert.Contains(t, buf.String(), "DEBUG: test message 42\n")
}

func TestDebugf_IncludesTimestamp(t *testing.T) {
	buf := captureDebug(t)

	Debugf("test message")

	matched, err := regexp.MatchString(`^\d{2}:\d{2}:\d{2}\.\d{3} DEBUG:`, buf.String())
	require.NoError(t, err)
	assert.True(t, matched, "missing HH:MM:SS.mmm timestamp: %s", buf.String())
}

func TestDebug_NilSessionWriter(t *testing.T) {
	captureDebug(t)
	setSessionWriter(nil)

	assert.NotPanics(t, func() {
		Debugf("test message %d", 42)
		Debugln("test", "message")
	})
}

func TestDebugln_MultipleArgs(t *testing.T) {
	buf := captureDebug(t)

	Debugln("value1", 42, "value2", true)

	// fmt.Sprint only adds spaces between non-string operands
	assert.Contains(t, buf.String(), "DEBUG: value142value2true")
}

func TestDebugf_MultipleMessages(t *testing.T) {
	buf := captureDebug(t)

	Debugf("message 1")
	Debugf("message 2")
	Debugf("message 3")

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	require.Len(t, lines, 3)
	for i, line := range lines {
		assert.Contains(t, line, "message "+string(rune('1'+i)))
	}
}

func TestSetDebugEnabled(t *testing.T) {
	captureDebug(t)

	SetDebugEnabled(true)
	assert.True(t, DebugEnabled())

	SetDebugEnabled(false)
	assert.False(t, DebugEnabled())
}
