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
// Package apache implements a plugin.Plugin for Apache/NCSA
// Common and Combined Log Format access logs.
package apache

import (
	"fmt"
	"regexp"
	"sort"
	"strings"

	"github.com/qubitproducts/logwatchd/internal/plugin"
)

func init() {
	plugin.Register("apache", New)
}

// clfPattern matches the request line of a Common or Combined Log
// Format record. Combined-only fields (referrer, user agent) are
// captured when present but never consulted, with or without the
// `combined` option.
var clfPattern = regexp.MustCompile(
	`^(\S+) (\S+) (\S+) \[([^\]]+)\] "([^"]*)" (\d{3}) (\S+)(?: "([^"]*)" "([^"]*)")?`,
)

// requestPattern splits a well-formed "METHOD URI HTTP/x.y" request
// field.
var requestPattern = regexp.MustCompile(`^([A-Za-z]+) (\S+) HTTP/(\d)\.(\d)$`)

// Apache is a plugin.Plugin for Apache-style access logs.
type Apache struct {
	re       *regexp.Regexp
	combined bool
}

// parsedLine is the tuple ProcessLine hands to ProcessData.
type parsedLine struct {
	status    string
	method    string
	verMajor  string
	verMinor  string
	malformed bool
}

// New constructs an Apache plugin. The `combined` option is recorded
// but changes neither matching nor the reported counters; the default
// pattern matches Combined records either way. The `clf` option is
// accepted for symmetry with the CLI but changes nothing, since Common
// Log Format is the default mode.
func New(opts plugin.Options, regexOverride string) (plugin.Plugin, error) {
	p := &Apache{re: clfPattern, combined: opts.Bool("combined")}

	pattern := regexOverride
	if pattern == "" {
		if r, ok := opts.Regex(); ok {
			pattern = r
		}
	}
	if pattern != "" {
		re, err := regexp.Compile(pattern)
		if err != nil {
			return nil, fmt.Errorf("apache: invalid regex override: %w", err)
		}
		p.re = re
	}
	return p, nil
}

// ParseErrorDefault implements plugin.Plugin.
func (p *Apache) ParseErrorDefault() plugin.Level {
	return plugin.LevelInfo
}

// InitZone implements plugin.Plugin.
func (p *Apache) InitZone(zone string, public plugin.Public, private plugin.Private, current plugin.Window) {
	if _, ok := public["http_request"]; !ok {
		public["http_request"] = 0
	}
	if _, ok := public["malformed_request"]; !ok {
		public["malformed_request"] = 0
	}
}

// ProcessLine implements plugin.Plugin.
func (p *Apache) ProcessLine(line string) (interface{}, bool) {
	m := p.re.FindStringSubmatch(line)
	if m == nil {
		return nil, false
	}

	pl := parsedLine{status: m[6]}

	rm := requestPattern.FindStringSubmatch(m[5])
	if rm == nil {
		pl.malformed = true
	} else {
		pl.method = strings.ToLower(rm[1])
		pl.verMajor = rm[3]
		pl.verMinor = rm[4]
	}

	return pl, true
}

// ProcessData implements plugin.Plugin.
func (p *Apache) ProcessData(parsed interface{}, public plugin.Public, private plugin.Private, current plugin.Window) {
	pl := parsed.(parsedLine)

	bump(public, "http_request", 1)
	bump(current, "http_request", 1)

	if pl.malformed {
		bump(public, "malformed_request", 1)
		bump(current, "malformed_request", 1)
		return
	}

	if len(pl.status) == 3 {
		key := "http_status_" + string(pl.status[0]) + "xx"
		bump(public, key, 1)
		bump(current, key, 1)
	}

	methodKey := "http_method_" + pl.method
	bump(public, methodKey, 1)
	bump(current, methodKey, 1)

	versionKey := "http_version_" + pl.verMajor + "_" + pl.verMinor
	bump(public, versionKey, 1)
	bump(current, versionKey, 1)
}

// ProcessWindow implements plugin.Plugin. Apache stats are cumulative
// totals held in public; nothing needs rolling on slide.
func (p *Apache) ProcessWindow(public plugin.Public, private plugin.Private, windows plugin.Windows) {
}

// ProcessTimer implements plugin.Plugin. The apache plugin defines no
// named timers of its own; any fired for its zone are acknowledged
// without re-arming.
func (p *Apache) ProcessTimer(name string, public plugin.Public, private plugin.Private, windows plugin.Windows) bool {
	return false
}

// StatsZone implements plugin.Plugin.
func (p *Apache) StatsZone(zone string, public plugin.Public, private plugin.Private, windows plugin.Windows) []string {
	return sortedLines(public)
}

// DumpZone implements plugin.Plugin.
func (p *Apache) DumpZone(zone string, public plugin.Public, private plugin.Private, windows plugin.Windows) []string {
	return sortedLines(public)
}

func bump(m map[string]float64, key string, delta float64) {
	m[key] += delta
}

func sortedLines(public plugin.Public) []string {
	keys := make([]string, 0, len(public))
	for k := range public {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	lines := make([]string, 0, len(keys))
	for _, k := range keys {
		lines = append(lines, k+": "+plugin.FormatNumber(public[k]))
	}
	return lines
}
