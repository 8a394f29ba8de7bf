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
package watch

import (
	"io/ioutil"
	"os"
	"path/filepath"
	"testing"

	"github.com/qubitproducts/logwatchd/internal/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestExpandSingleZoneMatch(t *testing.T) {
	dir, err := ioutil.TempDir("", "expander-test")
	require.NoError(t, err)
	defer os.RemoveAll(dir)

	a := filepath.Join(dir, "a.log")
	b := filepath.Join(dir, "b.log")
	require.NoError(t, ioutil.WriteFile(a, nil, 0644))
	require.NoError(t, ioutil.WriteFile(b, nil, 0644))

	e := NewExpander([]config.Wildcard{
		{Zone: "web", Pattern: filepath.Join(dir, "*.log")},
	}, false)

	matches, err := e.Expand()
	require.NoError(t, err)
	require.Len(t, matches, 2)
	for _, m := range matches {
		assert.Equal(t, []string{"web"}, m.Zones)
	}
}

func TestExpandOverlappingWildcardsMergeZones(t *testing.T) {
	dir, err := ioutil.TempDir("", "expander-test")
	require.NoError(t, err)
	defer os.RemoveAll(dir)

	f := filepath.Join(dir, "shared.log")
	require.NoError(t, ioutil.WriteFile(f, nil, 0644))

	e := NewExpander([]config.Wildcard{
		{Zone: "web", Pattern: filepath.Join(dir, "*.log")},
		{Zone: "audit", Pattern: filepath.Join(dir, "shared.*")},
	}, false)

	matches, err := e.Expand()
	require.NoError(t, err)
	require.Len(t, matches, 1)
	assert.Equal(t, []string{"web", "audit"}, matches[0].Zones)
}

func TestExpandNoMatches(t *testing.T) {
	dir, err := ioutil.TempDir("", "expander-test")
	require.NoError(t, err)
	defer os.RemoveAll(dir)

	e := NewExpander([]config.Wildcard{
		{Zone: "web", Pattern: filepath.Join(dir, "*.log")},
	}, false)

	matches, err := e.Expand()
	require.NoError(t, err)
	assert.Empty(t, matches)
}

func TestWatchDirsDeduplicates(t *testing.T) {
	e := NewExpander([]config.Wildcard{
		{Zone: "web", Pattern: "/var/log/*.log"},
		{Zone: "audit", Pattern: "/var/log/*.audit"},
		{Zone: "app", Pattern: "/opt/app/logs/*.log"},
	}, false)
	assert.ElementsMatch(t, []string{"/var/log", "/opt/app/logs"}, e.WatchDirs())
}

func TestExpandBasenameModeMatchesRecursively(t *testing.T) {
	dir, err := ioutil.TempDir("", "expander-test")
	require.NoError(t, err)
	defer os.RemoveAll(dir)

	sub := filepath.Join(dir, "sub")
	require.NoError(t, os.Mkdir(sub, 0755))

	top := filepath.Join(dir, "access.log")
	nested := filepath.Join(sub, "access.log")
	other := filepath.Join(sub, "ignore.txt")
	require.NoError(t, ioutil.WriteFile(top, nil, 0644))
	require.NoError(t, ioutil.WriteFile(nested, nil, 0644))
	require.NoError(t, ioutil.WriteFile(other, nil, 0644))

	e := NewExpander([]config.Wildcard{
		{Zone: "web", Pattern: filepath.Join(dir, "access.log")},
	}, true)

	matches, err := e.Expand()
	require.NoError(t, err)

	var paths []string
	for _, m := range matches {
		paths = append(paths, m.Path)
	}
	assert.Len(t, matches, 2)
	assert.Contains(t, paths, top)
	assert.Contains(t, paths, nested)
}
