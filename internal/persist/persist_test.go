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
package persist

import (
	"io/ioutil"
	"os"
	"path/filepath"
	"testing"

	"github.com/qubitproducts/logwatchd/internal/plugin"
	"github.com/qubitproducts/logwatchd/internal/zone"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSaveThenLoadRoundTrip(t *testing.T) {
	dir, err := ioutil.TempDir("", "persist-test")
	require.NoError(t, err)
	defer os.RemoveAll(dir)

	path := filepath.Join(dir, "logwatchd.db")

	zones := map[string]zone.Snapshot{
		"web": {
			Public:  plugin.Public{"http_request": 200},
			Private: plugin.Private{},
			Windows: plugin.Windows{{"http_request": 12}},
		},
	}

	require.NoError(t, Save(path, zones))

	loaded, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, zones, loaded)

	// No leftover temp file.
	_, err = os.Stat(path + "~")
	assert.True(t, os.IsNotExist(err))
}

func TestLoadMissingFileReturnsEmpty(t *testing.T) {
	dir, err := ioutil.TempDir("", "persist-test")
	require.NoError(t, err)
	defer os.RemoveAll(dir)

	loaded, err := Load(filepath.Join(dir, "does-not-exist.db"))
	require.NoError(t, err)
	assert.Empty(t, loaded)
}

func TestSaveOverwritesExistingFile(t *testing.T) {
	dir, err := ioutil.TempDir("", "persist-test")
	require.NoError(t, err)
	defer os.RemoveAll(dir)

	path := filepath.Join(dir, "logwatchd.db")
	require.NoError(t, Save(path, map[string]zone.Snapshot{"a": {Public: plugin.Public{}, Private: plugin.Private{}, Windows: plugin.Windows{{}}}}))
	require.NoError(t, Save(path, map[string]zone.Snapshot{"b": {Public: plugin.Public{}, Private: plugin.Private{}, Windows: plugin.Windows{{}}}}))

	loaded, err := Load(path)
	require.NoError(t, err)
	_, hasA := loaded["a"]
	_, hasB := loaded["b"]
	assert.False(t, hasA)
	assert.True(t, hasB)
}
