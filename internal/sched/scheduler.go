// Copyright 2016 Qubit Digital Ltd.
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
// http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.
// Package sched drives the engine's three periodic heartbeats and its
// wall-clock-aligned named timers (C5), per spec.md §4.5.
package sched

import (
	"context"
	"sync"
	"time"

	"github.com/qubitproducts/logwatchd/internal/config"
)

// Kind discriminates the events a Scheduler can raise.
type Kind int

// The heartbeats and timer fires a Scheduler emits.
const (
	HeartbeatExpand Kind = iota
	HeartbeatWindow
	HeartbeatSave
	TimerFire
)

// Event is one scheduler occurrence, delivered to the engine's single
// event loop.
type Event struct {
	Kind Kind
	Zone string // TimerFire only
	Name string // TimerFire only
}

// Scheduler owns the three fixed-period heartbeats and the
// configured named timers. It never mutates zone state itself; it
// only emits events for the engine to act on, preserving the
// single-writer discipline of spec.md §5.
//
// Grounded on server.Tail's bare time.Ticker-driven 5s heartbeat loop
// in server/server.go, generalized from one ticker to three plus a
// set of independently-armed wall-clock timers.
type Scheduler struct {
	expandPeriod time.Duration
	windowSize   time.Duration
	savePeriod   time.Duration

	timers map[string]config.TimerSpec

	events chan Event

	mu      sync.Mutex
	pending map[string]*time.Timer
}

// New creates a Scheduler. timers is the fully-parsed set of
// `--timer` arguments.
func New(expandPeriod, windowSize, savePeriod time.Duration, timers []config.TimerSpec) *Scheduler {
	byKey := make(map[string]config.TimerSpec, len(timers))
	for _, t := range timers {
		byKey[timerKey(t.Zone, t.Name)] = t
	}
	return &Scheduler{
		expandPeriod: expandPeriod,
		windowSize:   windowSize,
		savePeriod:   savePeriod,
		timers:       byKey,
		events:       make(chan Event, 16),
		pending:      make(map[string]*time.Timer),
	}
}

func timerKey(zone, name string) string { return zone + ":" + name }

// Events returns the channel heartbeats and timer fires are delivered
// on. The engine is the sole reader.
func (s *Scheduler) Events() <-chan Event {
	return s.events
}

// Run starts the three heartbeat tickers and arms every configured
// named timer, blocking until ctx is cancelled.
func (s *Scheduler) Run(ctx context.Context) {
	expand := time.NewTicker(s.expandPeriod)
	window := time.NewTicker(s.windowSize)
	save := time.NewTicker(s.savePeriod)
	defer expand.Stop()
	defer window.Stop()
	defer save.Stop()

	now := time.Now()
	for _, t := range s.timers {
		s.arm(t, now)
	}

	for {
		select {
		case <-ctx.Done():
			s.mu.Lock()
			for _, t := range s.pending {
				t.Stop()
			}
			s.mu.Unlock()
			return
		case <-expand.C:
			s.emit(Event{Kind: HeartbeatExpand})
		case <-window.C:
			s.emit(Event{Kind: HeartbeatWindow})
		case <-save.C:
			s.emit(Event{Kind: HeartbeatSave})
		}
	}
}

// Rearm re-arms the zone:name timer from now, per spec.md §3's rule
// that a timer only re-arms if the plugin's process_timer handler
// returned true. The engine calls this after dispatching a TimerFire
// event and inspecting the plugin's return value.
func (s *Scheduler) Rearm(zone, name string) {
	s.mu.Lock()
	spec, ok := s.timers[timerKey(zone, name)]
	s.mu.Unlock()
	if !ok {
		return
	}
	s.arm(spec, time.Now())
}

func (s *Scheduler) arm(spec config.TimerSpec, now time.Time) {
	d := spec.NextFire(now).Sub(now)
	if d < 0 {
		d = 0
	}
	key := timerKey(spec.Zone, spec.Name)

	t := time.AfterFunc(d, func() {
		s.emit(Event{Kind: TimerFire, Zone: spec.Zone, Name: spec.Name})
	})

	s.mu.Lock()
	if old, exists := s.pending[key]; exists {
		old.Stop()
	}
	s.pending[key] = t
	s.mu.Unlock()
}

func (s *Scheduler) emit(e Event) {
	select {
	case s.events <- e:
	default:
		// A slow engine drops a heartbeat rather than deadlocking the
		// scheduler; the next tick will still arrive on schedule.
	}
}
