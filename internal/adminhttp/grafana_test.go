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
package adminhttp

import (
	"context"
	"testing"
	"time"

	"github.com/qubitproducts/logwatchd/internal/plugin"
	"github.com/qubitproducts/logwatchd/internal/zone"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeStore adapts a *zone.Store directly to ZoneLister/StatsReader
// for tests, standing in for the request/reply round trip
// *engine.Engine does in production.
type fakeStore struct {
	store *zone.Store
}

func (f *fakeStore) ActiveZones() []string {
	return f.store.Active()
}

func (f *fakeStore) ZoneStats(ctx context.Context, zoneName string) (plugin.Public, plugin.Windows, bool) {
	st, ok := f.store.Get(zoneName)
	if !ok {
		return nil, nil, false
	}
	return st.Public, st.Windows, true
}

func TestSearchListsZoneDotCounter(t *testing.T) {
	store := zone.New(10)
	st := store.Ensure("web")
	st.Public["http_request"] = 5

	fs := &fakeStore{store: store}
	ds := NewDatasource(fs, fs, time.Second)
	assert.Equal(t, []string{"web.http_request"}, ds.Search(context.Background()))
}

func TestQueryUnknownZoneErrors(t *testing.T) {
	store := zone.New(10)
	fs := &fakeStore{store: store}
	ds := NewDatasource(fs, fs, time.Second)

	_, err := ds.Query(context.Background(), "ghost.count", time.Now().Add(-time.Hour), time.Now())
	assert.Error(t, err)
}

func TestQueryReturnsChronologicalOrder(t *testing.T) {
	store := zone.New(10)
	st := store.Ensure("web")
	st.Windows = plugin.Windows{
		{"count": 3}, // current
		{"count": 2},
		{"count": 1},
	}

	fs := &fakeStore{store: store}
	ds := NewDatasource(fs, fs, time.Minute)
	points, err := ds.Query(context.Background(), "web.count", time.Now().Add(-time.Hour), time.Now().Add(time.Hour))
	require.NoError(t, err)
	require.Len(t, points, 3)

	assert.True(t, points[0].Time.Before(points[1].Time))
	assert.True(t, points[1].Time.Before(points[2].Time))
	assert.Equal(t, float64(1), points[0].Value)
	assert.Equal(t, float64(3), points[2].Value)
}

func TestSplitTargetRejectsMissingDot(t *testing.T) {
	_, _, err := splitTarget("noseparator")
	assert.Error(t, err)
}
