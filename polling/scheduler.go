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
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/ZaparooProject/go-smartcard"
	"github.com/ZaparooProject/go-smartcard/internal/syncutil"
)

// Querier runs commands against every available terminal. *smartcard.Reader
// implements it.
type Querier interface {
	Read(ctx context.Context, cmds []smartcard.Command) map[string][]smartcard.Response
}

// Callback receives the responses of a tick that brought something new,
// keyed by terminal name. It runs on the polling goroutine.
type Callback func(responses map[string][]smartcard.Response)

// Metrics tracks operational metrics for a Scheduler
type Metrics struct {
	Ticks           int64         // Ticks that reached the transport
	Deliveries      int64         // Ticks that invoked the callback
	Suppressed      int64         // Ticks with nothing new
	LastTickLatency time.Duration // Duration of the last transport round
}

// loop is one Start call's polling goroutine and its change detector.
type loop struct {
	callback   Callback
	state      *pollState
	stop       chan struct{}
	frames     []smartcard.Command
	interval   time.Duration
	deliverMu  syncutil.Mutex // held across the stopped check and the callback
	stopped    atomic.Bool
	inCallback atomic.Bool
	once       sync.Once
}

// halt stops l. No callback of l starts after halt returns. Outside the
// callback it also waits for a delivery that passed its stopped check before
// the halt; from inside the callback it returns at once.
func (l *loop) halt() {
	l.once.Do(func() {
		l.stopped.Store(true)
		close(l.stop)
	})
	if !l.inCallback.Load() {
		l.deliverMu.Lock()
		l.deliverMu.Unlock() //nolint:staticcheck // waits out an in-flight delivery
	}
}

// Scheduler periodically reads a fixed set of commands from all terminals and
// calls back when the responses change.
//
// At most one polling loop is active per scheduler: Start replaces any running
// loop. Ticks never overlap, including ticks of a replaced loop that is still
// finishing its transport round, and callbacks run one at a time.
type Scheduler struct {
	reader Querier
	config *Config
	active *loop
	wg     sync.WaitGroup
	mu     syncutil.RWMutex // guards active
	tickMu syncutil.Mutex   // serializes ticks

	ticks           int64
	deliveries      int64
	suppressed      int64
	lastTickLatency int64 // in nanoseconds
}

// NewScheduler creates an idle scheduler. A nil config means DefaultConfig.
func NewScheduler(reader Querier, config *Config) *Scheduler {
	if config == nil {
		config = DefaultConfig()
	}
	return &Scheduler{
		reader: reader,
		config: config,
	}
}

// Start begins polling frames every interval, cancelling any loop already
// running and forgetting what it had seen. A zero interval uses the
// configured PollInterval. The first tick happens one interval after Start.
// Polling ends on Stop, on another Start, or when ctx is done; ctx is also
// passed to the transport.
func (s *Scheduler) Start(ctx context.Context, interval time.Duration, frames []smartcard.Command,
	callback Callback,
) error {
	if interval == 0 {
		interval = s.config.PollInterval
	}
	if interval <= 0 {
		return smartcard.NewArgumentError("Start", "interval", interval, "must be positive")
	}
	if callback == nil {
		return smartcard.NewArgumentError("Start", "callback", nil, "must not be nil")
	}
	if s.reader == nil {
		return smartcard.NewArgumentError("Start", "reader", nil, "scheduler has no reader")
	}

	l := &loop{
		callback: callback,
		state:    newPollState(),
		stop:     make(chan struct{}),
		frames:   append([]smartcard.Command(nil), frames...),
		interval: interval,
	}

	s.mu.Lock()
	previous := s.active
	s.active = l
	s.wg.Add(1)
	s.mu.Unlock()

	if previous != nil {
		previous.halt()
	}

	smartcard.Debugf("polling %d frame(s) every %s", len(l.frames), interval)
	go s.run(ctx, l)
	return nil
}

// Stop prevents any further ticks. It is safe to call at any time, from any
// goroutine (the callback included), and more than once. A transport round
// already in progress is not interrupted, but its result is not delivered.
// No callback starts after Stop returns. A delivery that had already passed
// its change test is waited for unless its callback is running.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	l := s.active
	s.active = nil
	s.mu.Unlock()

	if l != nil {
		l.halt()
	}
}

// Wait blocks until every polling goroutine started so far has exited.
// It must not be called from the callback.
func (s *Scheduler) Wait() {
	s.wg.Wait()
}

// State reports whether a loop is active.
func (s *Scheduler) State() State {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.active == nil {
		return StateIdle
	}
	return StateRunning
}

// Running is shorthand for State() == StateRunning.
func (s *Scheduler) Running() bool {
	return s.State() == StateRunning
}

// run drives one loop until it is halted or ctx is done.
func (s *Scheduler) run(ctx context.Context, l *loop) {
	defer s.wg.Done()
	ticker := time.NewTicker(l.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			s.tick(ctx, l)
		case <-l.stop:
			return
		case <-ctx.Done():
			s.mu.Lock()
			if s.active == l {
				s.active = nil
			}
			s.mu.Unlock()
			l.halt()
			return
		}
	}
}

// tick performs one transport round for l and delivers it if it changed.
func (s *Scheduler) tick(ctx context.Context, l *loop) {
	s.tickMu.Lock()
	defer s.tickMu.Unlock()

	// A halt may have raced the ticker, or a newer loop may have taken over
	// while this tick waited for the previous one.
	if l.stopped.Load() {
		return
	}

	if s.config.TickTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.config.TickTimeout)
		defer cancel()
	}

	start := time.Now()
	results := s.reader.Read(ctx, l.frames)
	atomic.StoreInt64(&s.lastTickLatency, time.Since(start).Nanoseconds())
	atomic.AddInt64(&s.ticks, 1)

	s.deliver(l, results)
}

// deliver runs the change test and the callback unless l has been halted.
// l.deliverMu is held throughout, so a halt from another goroutine either
// lands before the check or waits for the callback to return.
func (s *Scheduler) deliver(l *loop, results map[string][]smartcard.Response) {
	l.deliverMu.Lock()
	defer l.deliverMu.Unlock()
	if l.stopped.Load() {
		return
	}
	if !l.state.observe(flatten(results)) {
		atomic.AddInt64(&s.suppressed, 1)
		return
	}

	atomic.AddInt64(&s.deliveries, 1)
	l.inCallback.Store(true)
	defer l.inCallback.Store(false)
	l.callback(results)
}

// GetMetrics returns current operational metrics
func (s *Scheduler) GetMetrics() Metrics {
	return Metrics{
		Ticks:           atomic.LoadInt64(&s.ticks),
		Deliveries:      atomic.LoadInt64(&s.deliveries),
		Suppressed:      atomic.LoadInt64(&s.suppressed),
		LastTickLatency: time.Duration(atomic.LoadInt64(&s.lastTickLatency)),
	}
}
