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

import "github.com/ZaparooProject/go-smartcard"

// State is the lifecycle state of a Scheduler.
type State int

const (
	// StateIdle means no polling loop is active.
	StateIdle State = iota
	// StateRunning means a polling loop is scheduled.
	StateRunning
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateRunning:
		return "running"
	default:
		return "unknown"
	}
}

// responseSet is a set of responses under structural equality.
type responseSet map[smartcard.ResponseKey]struct{}

func newResponseSet(responses []smartcard.Response) responseSet {
	set := make(responseSet, len(responses))
	for _, r := range responses {
		set[r.Key()] = struct{}{}
	}
	return set
}

func (s responseSet) contains(r smartcard.Response) bool {
	_, ok := s[r.Key()]
	return ok
}

// pollState is the change detector of one polling loop. It remembers the
// responses of the last delivered tick.
type pollState struct {
	last responseSet
}

func newPollState() *pollState {
	return &pollState{last: responseSet{}}
}

// observe feeds one tick's responses to the detector and reports whether
// they must be delivered. A tick is delivered when it is non-empty and holds
// at least one response absent from the last delivered set; the delivered
// responses then become the new last set. Ticks that only lose responses,
// including empty ticks, leave the last set untouched.
func (p *pollState) observe(candidate []smartcard.Response) bool {
	if len(candidate) == 0 {
		return false
	}

	grew := false
	for _, r := range candidate {
		if !p.last.contains(r) {
			grew = true
			break
		}
	}
	if !grew {
		return false
	}

	p.last = newResponseSet(candidate)
	return true
}

// flatten collects every terminal's responses into one list.
func flatten(results map[string][]smartcard.Response) []smartcard.Response {
	n := 0
	for _, responses := range results {
		n += len(responses)
	}
	all := make([]smartcard.Response, 0, n)
	for _, responses := range results {
		all = append(all, responses...)
	}
	return all
}
