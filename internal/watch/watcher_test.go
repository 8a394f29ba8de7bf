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
	"context"
	"fmt"
	"io/ioutil"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func tempLogFile(t *testing.T) string {
	t.Helper()
	dir, err := ioutil.TempDir("", "watch-test")
	require.NoError(t, err)
	t.Cleanup(func() { os.RemoveAll(dir) })
	path := filepath.Join(dir, "app.log")
	require.NoError(t, ioutil.WriteFile(path, nil, 0644))
	return path
}

func TestWatcherDeliversNewLines(t *testing.T) {
	path := tempLogFile(t)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	w, err := New(ctx, path, "web")
	require.NoError(t, err)
	defer w.Close()

	f, err := os.OpenFile(path, os.O_APPEND|os.O_WRONLY, 0644)
	require.NoError(t, err)
	defer f.Close()

	_, err = f.WriteString("hello\nworld\n")
	require.NoError(t, err)

	var lines []string
	timeout := time.After(5 * time.Second)
	for len(lines) < 2 {
		select {
		case ev := <-w.Events():
			if ev.Kind == EventLine {
				lines = append(lines, ev.Line)
			}
		case <-timeout:
			t.Fatalf("timed out waiting for lines, got %v", lines)
		}
	}

	assert.Equal(t, []string{"hello", "world"}, lines)
}

func TestWatcherZoneSubscription(t *testing.T) {
	path := tempLogFile(t)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	w, err := New(ctx, path, "web")
	require.NoError(t, err)
	defer w.Close()

	assert.True(t, w.HasZone("web"))
	assert.False(t, w.HasZone("db"))

	w.AddZone("db")
	assert.True(t, w.HasZone("db"))
	assert.Equal(t, []string{"web", "db"}, w.Zones())

	w.AddZone("db") // idempotent
	assert.Equal(t, []string{"web", "db"}, w.Zones())
}

func TestWatcherBlocksRatherThanDroppingLinesUnderBurst(t *testing.T) {
	path := tempLogFile(t)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	w, err := New(ctx, path, "web")
	require.NoError(t, err)
	defer w.Close()

	f, err := os.OpenFile(path, os.O_APPEND|os.O_WRONLY, 0644)
	require.NoError(t, err)
	defer f.Close()

	const total = 200 // well past the 64-slot events buffer
	var want []string
	for i := 0; i < total; i++ {
		line := fmt.Sprintf("line-%d", i)
		want = append(want, line)
		_, err := f.WriteString(line + "\n")
		require.NoError(t, err)
	}

	// Give the tail loop time to poll and fill (and block on) the
	// events buffer before this test starts draining it, so a
	// drop-on-full emit would lose lines here.
	time.Sleep(200 * time.Millisecond)

	var got []string
	timeout := time.After(10 * time.Second)
	for len(got) < total {
		select {
		case ev := <-w.Events():
			if ev.Kind == EventLine {
				got = append(got, ev.Line)
			}
		case <-timeout:
			t.Fatalf("timed out after %d/%d lines; the rest were dropped", len(got), total)
		}
	}

	assert.Equal(t, want, got)
}

func TestWatcherOffsetTracksBytesWritten(t *testing.T) {
	path := tempLogFile(t)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	w, err := New(ctx, path, "web")
	require.NoError(t, err)
	defer w.Close()

	assert.Equal(t, int64(0), w.Offset())

	f, err := os.OpenFile(path, os.O_APPEND|os.O_WRONLY, 0644)
	require.NoError(t, err)
	defer f.Close()
	_, err = f.WriteString("12345\n")
	require.NoError(t, err)

	timeout := time.After(5 * time.Second)
	for {
		select {
		case ev := <-w.Events():
			if ev.Kind == EventLine {
				assert.Equal(t, int64(6), w.Offset())
				return
			}
		case <-timeout:
			t.Fatal("timed out waiting for line")
		}
	}
}
