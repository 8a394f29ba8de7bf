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
// Package clamd implements a plugin.Plugin for clamd/clamdscan style
// antivirus scan logs.
package clamd

import (
	"fmt"
	"regexp"
	"sort"

	"github.com/qubitproducts/logwatchd/internal/plugin"
)

func init() {
	plugin.Register("clamd", New)
}

// scanPattern matches a clamd scan result line of the form
// "<anything>: OK" or "<anything>: <Signature.Name-1> FOUND".
var scanPattern = regexp.MustCompile(`: (OK|(.+) FOUND)\s*$`)

// Clamd is a plugin.Plugin for clamd-style AV scan logs.
type Clamd struct {
	re     *regexp.Regexp
	byType bool
}

type parsedResult struct {
	clean     bool
	signature string
}

// New constructs a Clamd plugin. The `type` option additionally
// tracks a `malware:<signature>` counter per distinct signature seen,
// on top of the aggregate `clean`/`malware` totals.
func New(opts plugin.Options, regexOverride string) (plugin.Plugin, error) {
	p := &Clamd{re: scanPattern, byType: opts.Bool("type")}

	pattern := regexOverride
	if pattern == "" {
		if r, ok := opts.Regex(); ok {
			pattern = r
		}
	}
	if pattern != "" {
		re, err := regexp.Compile(pattern)
		if err != nil {
			return nil, fmt.Errorf("clamd: invalid regex override: %w", err)
		}
		p.re = re
	}
	return p, nil
}

// ParseErrorDefault implements plugin.Plugin.
func (p *Clamd) ParseErrorDefault() plugin.Level {
	return plugin.LevelDebug
}

// InitZone implements plugin.Plugin.
func (p *Clamd) InitZone(zone string, public plugin.Public, private plugin.Private, current plugin.Window) {
	if _, ok := public["clean"]; !ok {
		public["clean"] = 0
	}
	if _, ok := public["malware"]; !ok {
		public["malware"] = 0
	}
}

// ProcessLine implements plugin.Plugin.
func (p *Clamd) ProcessLine(line string) (interface{}, bool) {
	m := p.re.FindStringSubmatch(line)
	if m == nil {
		return nil, false
	}
	if m[1] == "OK" {
		return parsedResult{clean: true}, true
	}
	return parsedResult{clean: false, signature: m[2]}, true
}

// ProcessData implements plugin.Plugin.
func (p *Clamd) ProcessData(parsed interface{}, public plugin.Public, private plugin.Private, current plugin.Window) {
	pr := parsed.(parsedResult)

	if pr.clean {
		public["clean"]++
		current["clean"]++
		return
	}

	public["malware"]++
	current["malware"]++

	if p.byType && pr.signature != "" {
		key := "malware:" + pr.signature
		public[key]++
		current[key]++
	}
}

// ProcessWindow implements plugin.Plugin. clamd's counters are
// cumulative totals; nothing rolls over on slide.
func (p *Clamd) ProcessWindow(public plugin.Public, private plugin.Private, windows plugin.Windows) {
}

// ProcessTimer implements plugin.Plugin. clamd defines no named
// timers of its own.
func (p *Clamd) ProcessTimer(name string, public plugin.Public, private plugin.Private, windows plugin.Windows) bool {
	return false
}

// StatsZone implements plugin.Plugin.
func (p *Clamd) StatsZone(zone string, public plugin.Public, private plugin.Private, windows plugin.Windows) []string {
	return sortedLines(public)
}

// DumpZone implements plugin.Plugin.
func (p *Clamd) DumpZone(zone string, public plugin.Public, private plugin.Private, windows plugin.Windows) []string {
	return sortedLines(public)
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
