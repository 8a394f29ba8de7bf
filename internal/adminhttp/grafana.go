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
	"encoding/json"
	"fmt"
	"net/http"
	"sort"
	"strings"
	"time"

	"github.com/qubitproducts/logwatchd/internal/plugin"
	grafanasj "github.com/tcolgate/grafana-simple-json-go"
)

// StatsReader is satisfied by *engine.Engine. It returns a
// concurrency-safe, point-in-time copy of one zone's public counters
// and window ring, computed inside the engine's single-writer event
// loop rather than read directly off the live maps the loop mutates.
type StatsReader interface {
	ZoneStats(ctx context.Context, zone string) (plugin.Public, plugin.Windows, bool)
}

// ZoneLister is satisfied by *engine.Engine. It only touches
// zone.Store's registry lock, never a zone's mutable State, so it's
// safe to call directly from an HTTP handler goroutine.
type ZoneLister interface {
	ActiveZones() []string
}

// Datasource answers Grafana's SimpleJSON datasource protocol over
// zone public counters and their window history, so an operator can
// point a Grafana panel directly at logwatchd instead of scraping
// through the TCP query protocol. Grounded on indexer.Indexer's
// GrafanaQuery/GrafanaQueryTable methods in indexer/grafana.go,
// generalized from "search the message index" to "read a zone's
// public counter and window ring."
//
// A target has the form "<zone>.<counter>". Query reconstructs a
// window's wall-clock time as now minus its ring offset times
// windowSize, since the window ring itself carries no timestamps
// (a plain map, not a time series) — an approximation documented in
// DESIGN.md.
type Datasource struct {
	zones      ZoneLister
	stats      StatsReader
	windowSize time.Duration
}

// NewDatasource creates a Datasource over zones/stats.
func NewDatasource(zones ZoneLister, stats StatsReader, windowSize time.Duration) *Datasource {
	return &Datasource{zones: zones, stats: stats, windowSize: windowSize}
}

// Search lists every "<zone>.<counter>" pair currently known, sorted,
// for Grafana's target autocomplete.
func (d *Datasource) Search(ctx context.Context) []string {
	var out []string
	for _, z := range d.zones.ActiveZones() {
		public, _, ok := d.stats.ZoneStats(ctx, z)
		if !ok {
			continue
		}
		for counter := range public {
			out = append(out, z+"."+counter)
		}
	}
	sort.Strings(out)
	return out
}

// Query returns grafanasj.DataPoint points for one target within [from,
// to], per the window ring's newest-first-at-index-0 semantics.
func (d *Datasource) Query(ctx context.Context, target string, from, to time.Time) ([]grafanasj.DataPoint, error) {
	zoneName, counter, err := splitTarget(target)
	if err != nil {
		return nil, err
	}

	_, windows, ok := d.stats.ZoneStats(ctx, zoneName)
	if !ok {
		return nil, fmt.Errorf("no such zone %q", zoneName)
	}

	now := time.Now()
	var data []grafanasj.DataPoint
	for i, w := range windows {
		t := now.Add(-time.Duration(i) * d.windowSize)
		if t.Before(from) || t.After(to) {
			continue
		}
		data = append(data, grafanasj.DataPoint{Time: t, Value: w[counter]})
	}

	// windows is newest-first; SimpleJSON expects chronological order.
	for i, j := 0, len(data)-1; i < j; i, j = i+1, j-1 {
		data[i], data[j] = data[j], data[i]
	}

	return data, nil
}

func splitTarget(target string) (zoneName, counter string, err error) {
	idx := strings.Index(target, ".")
	if idx < 0 {
		return "", "", fmt.Errorf("target %q must be <zone>.<counter>", target)
	}
	return target[:idx], target[idx+1:], nil
}

type simpleJSONRange struct {
	From time.Time `json:"from"`
	To   time.Time `json:"to"`
}

type simpleJSONTarget struct {
	Target string `json:"target"`
}

type simpleJSONQueryRequest struct {
	Range   simpleJSONRange    `json:"range"`
	Targets []simpleJSONTarget `json:"targets"`
}

type simpleJSONSeries struct {
	Target     string      `json:"target"`
	Datapoints [][]float64 `json:"datapoints"`
}

func (s *Server) handleGrafanaPing(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
}

func (s *Server) handleGrafanaSearch(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(s.datasource.Search(r.Context()))
}

func (s *Server) handleGrafanaQuery(w http.ResponseWriter, r *http.Request) {
	var req simpleJSONQueryRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	series := make([]simpleJSONSeries, 0, len(req.Targets))
	for _, target := range req.Targets {
		points, err := s.datasource.Query(r.Context(), target.Target, req.Range.From, req.Range.To)
		if err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		dp := make([][]float64, 0, len(points))
		for _, p := range points {
			dp = append(dp, []float64{p.Value, float64(p.Time.UnixNano() / int64(time.Millisecond))})
		}
		series = append(series, simpleJSONSeries{Target: target.Target, Datapoints: dp})
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(series)
}
