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
// Package zone owns the per-zone counter state: the public/private
// maps and the bounded window ring, plus the configuration-ordered
// zone registry the engine drives everything else from.
package zone

import (
	"sort"
	"sync"

	"github.com/qubitproducts/logwatchd/internal/plugin"
)

// State is one zone's accumulated data: long-term public counters,
// plugin-private scratch, and the window ring (newest, currently
// accumulating window at index 0).
type State struct {
	Public  plugin.Public
	Private plugin.Private
	Windows plugin.Windows
}

// Snapshot is the JSON-serializable form of a State, matching
// spec.md §4.7's `{"public": ..., "private": ..., "windows": [...]}`
// persisted shape exactly.
type Snapshot struct {
	Public  plugin.Public  `json:"public"`
	Private plugin.Private `json:"private"`
	Windows plugin.Windows `json:"windows"`
}

func newState() *State {
	return &State{
		Public:  plugin.Public{},
		Private: plugin.Private{},
		Windows: plugin.Windows{plugin.Window{}},
	}
}

func (s *State) toSnapshot() Snapshot {
	return Snapshot{Public: s.Public, Private: s.Private, Windows: s.Windows}
}

func fromSnapshot(s Snapshot) *State {
	st := &State{Public: s.Public, Private: s.Private, Windows: s.Windows}
	if st.Public == nil {
		st.Public = plugin.Public{}
	}
	if st.Private == nil {
		st.Private = plugin.Private{}
	}
	if len(st.Windows) == 0 {
		st.Windows = plugin.Windows{plugin.Window{}}
	}
	return st
}

// Store is the ordered zone-name -> State registry (C2). Active zones
// preserve configuration order; inactive zones (persisted-but-not-
// configured) are listed alphabetically for determinism, since JSON
// object decoding does not preserve key order.
type Store struct {
	windowsNum int

	mu       sync.Mutex
	states   map[string]*State
	active   map[string]bool
	order    []string // configuration order, active zones only
}

// New creates an empty Store bounding every zone's window ring to
// windowsNum entries.
func New(windowsNum int) *Store {
	if windowsNum < 1 {
		windowsNum = 1
	}
	return &Store{
		windowsNum: windowsNum,
		states:     map[string]*State{},
		active:     map[string]bool{},
	}
}

// Load assigns persisted per-zone state as the initial state for
// every zone named in snap. Zones later Ensure'd that aren't present
// here start fresh; zones present here but never Ensure'd remain
// inactive.
func (s *Store) Load(snap map[string]Snapshot) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for name, sn := range snap {
		s.states[name] = fromSnapshot(sn)
	}
}

// Ensure returns the zone's State, creating it with empty maps and a
// single empty window if it doesn't exist yet, and marks it active
// (configured). Ensure is idempotent and safe to call once per
// configured zone at startup, in configuration order, to build
// s.order correctly.
func (s *Store) Ensure(name string) *State {
	s.mu.Lock()
	defer s.mu.Unlock()

	st, ok := s.states[name]
	if !ok {
		st = newState()
		s.states[name] = st
	}
	if !s.active[name] {
		s.active[name] = true
		s.order = append(s.order, name)
	}
	return st
}

// Get returns a zone's state and whether it exists at all (active or
// inactive).
func (s *Store) Get(name string) (*State, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	st, ok := s.states[name]
	return st, ok
}

// IsActive reports whether name has at least one configured wildcard.
func (s *Store) IsActive(name string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.active[name]
}

// Active returns every active zone name in configuration order.
func (s *Store) Active() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]string, len(s.order))
	copy(out, s.order)
	return out
}

// Inactive returns every inactive zone name (exists only in persisted
// state), sorted for determinism.
func (s *Store) Inactive() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []string
	for name := range s.states {
		if !s.active[name] {
			out = append(out, name)
		}
	}
	sort.Strings(out)
	return out
}

// Wipe removes an inactive zone. It refuses to remove an active zone
// or a zone that doesn't exist at all, returning ok=false with a
// reason distinguishing the two per spec.md §4.6.
func (s *Store) Wipe(name string) (ok bool, isActive bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.active[name] {
		return false, true
	}
	if _, exists := s.states[name]; !exists {
		return false, false
	}
	delete(s.states, name)
	return true, false
}

// WipeAllInactive removes every inactive zone and returns how many
// were removed.
func (s *Store) WipeAllInactive() int {
	s.mu.Lock()
	defer s.mu.Unlock()

	n := 0
	for name := range s.states {
		if !s.active[name] {
			delete(s.states, name)
			n++
		}
	}
	return n
}

// Snapshot returns a JSON-serializable copy of every zone's state,
// active and inactive alike.
func (s *Store) Snapshot() map[string]Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make(map[string]Snapshot, len(s.states))
	for name, st := range s.states {
		out[name] = st.toSnapshot()
	}
	return out
}

// SlideWindow prepends a new empty window at index 0 and truncates the
// ring to at most windowsNum entries, per spec.md §4.5. Callers must
// invoke plugin.ProcessWindow on this zone's state *before* calling
// SlideWindow, since spec.md §9 requires the just-completed window to
// still be observable at windows[0] during that call.
func (s *State) SlideWindow(windowsNum int) {
	s.Windows = append(plugin.Windows{plugin.Window{}}, s.Windows...)
	if len(s.Windows) > windowsNum {
		s.Windows = s.Windows[:windowsNum]
	}
}

// Completed returns the windows a stats/dump/timer handler should see:
// every window except the one currently accumulating.
func (s *State) Completed() plugin.Windows {
	if len(s.Windows) <= 1 {
		return plugin.Windows{}
	}
	return s.Windows[1:]
}

// Current returns the currently-accumulating window (index 0).
func (s *State) Current() plugin.Window {
	return s.Windows[0]
}
