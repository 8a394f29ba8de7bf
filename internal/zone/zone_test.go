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
package zone

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEnsureCreatesEmptySingleWindow(t *testing.T) {
	s := New(3)
	st := s.Ensure("a")
	require.Len(t, st.Windows, 1)
	assert.Empty(t, st.Public)
	assert.Empty(t, st.Private)
	assert.True(t, s.IsActive("a"))
}

func TestActiveOrderIsConfigurationOrder(t *testing.T) {
	s := New(3)
	s.Ensure("b")
	s.Ensure("a")
	s.Ensure("c")
	assert.Equal(t, []string{"b", "a", "c"}, s.Active())
}

func TestSlideWindowBoundsRing(t *testing.T) {
	s := New(3)
	st := s.Ensure("a")

	for i := 0; i < 10; i++ {
		st.SlideWindow(3)
		assert.GreaterOrEqual(t, len(st.Windows), 1)
		assert.LessOrEqual(t, len(st.Windows), 3)
	}
	assert.Len(t, st.Windows, 3)
}

func TestSlideWindowOrdering(t *testing.T) {
	s := New(5)
	st := s.Ensure("a")
	st.Windows[0]["hit"] = 1

	// process_window must see the completed window still at index 0
	assert.Equal(t, float64(1), st.Windows[0]["hit"])

	st.SlideWindow(5)
	// after slide, that same data has moved to index 1
	assert.Equal(t, float64(1), st.Windows[1]["hit"])
	assert.Empty(t, st.Windows[0])
}

func TestCompletedExcludesCurrent(t *testing.T) {
	s := New(5)
	st := s.Ensure("a")
	assert.Empty(t, st.Completed())

	st.SlideWindow(5)
	assert.Len(t, st.Completed(), 1)
}

func TestWipeRefusesActiveZone(t *testing.T) {
	s := New(3)
	s.Ensure("a")

	ok, isActive := s.Wipe("a")
	assert.False(t, ok)
	assert.True(t, isActive)
}

func TestWipeRemovesInactiveZone(t *testing.T) {
	s := New(3)
	s.Load(map[string]Snapshot{"old": {}})

	assert.Contains(t, s.Inactive(), "old")

	ok, isActive := s.Wipe("old")
	assert.True(t, ok)
	assert.False(t, isActive)
	assert.NotContains(t, s.Inactive(), "old")
}

func TestWipeUnknownZone(t *testing.T) {
	s := New(3)
	ok, isActive := s.Wipe("nope")
	assert.False(t, ok)
	assert.False(t, isActive)
}

func TestSnapshotRoundTrip(t *testing.T) {
	s := New(3)
	st := s.Ensure("a")
	st.Public["hits"] = 42
	st.Private["scratch"] = "x"
	st.Windows[0]["hits"] = 1

	snap := s.Snapshot()

	s2 := New(3)
	s2.Load(snap)
	got, ok := s2.Get("a")
	require.True(t, ok)
	assert.Equal(t, st.Public, got.Public)
	assert.Equal(t, st.Private, got.Private)
	assert.Equal(t, st.Windows, got.Windows)
}

func TestLoadThenEnsureBecomesActive(t *testing.T) {
	s := New(3)
	s.Load(map[string]Snapshot{"a": {Public: map[string]float64{"x": 1}}})
	assert.Contains(t, s.Inactive(), "a")

	s.Ensure("a")
	assert.Contains(t, s.Active(), "a")
	assert.NotContains(t, s.Inactive(), "a")

	st, _ := s.Get("a")
	assert.Equal(t, float64(1), st.Public["x"])
}
