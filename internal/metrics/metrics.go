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
// Package metrics defines the process's prometheus metrics, exposed
// by internal/adminhttp. Grounded on the package-level
// prometheus.NewCounterVec/MustRegister idiom in sources/reader.go and
// server/subscribers.go.
package metrics

import "github.com/prometheus/client_golang/prometheus"

var (
	// LinesProcessed counts lines successfully folded into a zone's
	// counters, per zone.
	LinesProcessed = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "logwatchd_lines_processed_total",
		Help: "Counter of lines successfully parsed and processed, per zone.",
	}, []string{"zone"})

	// ParseErrors counts lines the plugin could not parse, per zone.
	ParseErrors = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "logwatchd_parse_errors_total",
		Help: "Counter of lines the plugin failed to parse, per zone.",
	}, []string{"zone"})

	// WatchedFiles is the current number of files under active tail.
	WatchedFiles = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "logwatchd_watched_files",
		Help: "Gauge of files currently being tailed.",
	})

	// ActiveZones is the current number of configured (active) zones.
	ActiveZones = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "logwatchd_active_zones",
		Help: "Gauge of zones with at least one configured wildcard.",
	})

	// SaveFailures counts failed attempts to persist the database file.
	SaveFailures = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "logwatchd_save_failures_total",
		Help: "Counter of failed database snapshot writes.",
	})

	// ClientCommands counts TCP query/command server commands, per verb.
	ClientCommands = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "logwatchd_client_commands_total",
		Help: "Counter of query server commands handled, per verb.",
	}, []string{"verb"})
)

func init() {
	prometheus.MustRegister(LinesProcessed)
	prometheus.MustRegister(ParseErrors)
	prometheus.MustRegister(WatchedFiles)
	prometheus.MustRegister(ActiveZones)
	prometheus.MustRegister(SaveFailures)
	prometheus.MustRegister(ClientCommands)
}
