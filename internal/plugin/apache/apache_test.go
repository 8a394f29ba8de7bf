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
package apache

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/qubitproducts/logwatchd/internal/plugin"
)

func newZone(t *testing.T, p plugin.Plugin) (plugin.Public, plugin.Private, plugin.Window) {
	t.Helper()
	public := plugin.Public{}
	private := plugin.Private{}
	current := plugin.Window{}
	p.InitZone("a", public, private, current)
	return public, private, current
}

func TestApacheCLF(t *testing.T) {
	p, err := New(plugin.Options{"clf": ""}, "")
	require.NoError(t, err)

	public, private, current := newZone(t, p)

	lines := []string{
		`127.0.0.1 - - [10/Oct/2023:13:55:36 -0700] "GET /index.html HTTP/1.0" 200 2326`,
		`127.0.0.1 - - [10/Oct/2023:13:55:37 -0700] "POST /submit HTTP/1.1" 404 512`,
		`this line does not match at all`,
	}

	for _, l := range lines {
		parsed, ok := p.ProcessLine(l)
		if !ok {
			continue
		}
		p.ProcessData(parsed, public, private, current)
	}

	assert.Equal(t, float64(2), public["http_request"])
	assert.Equal(t, float64(1), public["http_status_2xx"])
	assert.Equal(t, float64(1), public["http_status_4xx"])
	assert.Equal(t, float64(1), public["http_method_get"])
	assert.Equal(t, float64(1), public["http_method_post"])
	assert.Equal(t, float64(1), public["http_version_1_0"])
	assert.Equal(t, float64(1), public["http_version_1_1"])
	assert.Equal(t, float64(0), public["malformed_request"])
}

func TestApacheMalformedRequestField(t *testing.T) {
	p, err := New(plugin.Options{}, "")
	require.NoError(t, err)
	public, private, current := newZone(t, p)

	parsed, ok := p.ProcessLine(`127.0.0.1 - - [10/Oct/2023:13:55:36 -0700] "GARBAGE" 200 100`)
	require.True(t, ok)
	p.ProcessData(parsed, public, private, current)

	assert.Equal(t, float64(1), public["http_request"])
	assert.Equal(t, float64(1), public["malformed_request"])
}

func TestApacheInitZoneIdempotent(t *testing.T) {
	p, err := New(plugin.Options{}, "")
	require.NoError(t, err)
	public := plugin.Public{"http_request": 42}
	private := plugin.Private{}
	current := plugin.Window{}

	p.InitZone("a", public, private, current)
	p.InitZone("a", public, private, current)

	assert.Equal(t, float64(42), public["http_request"])
}

func TestApacheStatsSorted(t *testing.T) {
	p, err := New(plugin.Options{}, "")
	require.NoError(t, err)
	public, private, current := newZone(t, p)

	for i := 0; i < 3; i++ {
		parsed, _ := p.ProcessLine(`127.0.0.1 - - [10/Oct/2023:13:55:36 -0700] "GET / HTTP/1.1" 200 1`)
		p.ProcessData(parsed, public, private, current)
	}

	lines := p.StatsZone("a", public, private, nil)
	require.NotEmpty(t, lines)
	for i := 1; i < len(lines); i++ {
		assert.LessOrEqual(t, lines[i-1], lines[i])
	}
}
