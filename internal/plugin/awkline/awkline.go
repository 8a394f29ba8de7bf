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
// Package awkline implements a plugin.Plugin driven by a
// user-supplied AWK program instead of a regular expression, for
// formats the built-in plugins don't cover. The AWK program receives
// one log line on stdin and is expected to print zero or more
// "counter value" pairs, one per line, on stdout; those become
// counter increments in the zone's public map and current window.
package awkline

import (
	"bufio"
	"bytes"
	"fmt"
	"io/ioutil"
	"sort"
	"strconv"
	"strings"

	"github.com/benhoyt/goawk/interp"
	"github.com/benhoyt/goawk/parser"

	"github.com/qubitproducts/logwatchd/internal/plugin"
)

func init() {
	plugin.Register("awkline", New)
}

// Awkline is a plugin.Plugin that runs a compiled AWK program
// in-process, through goawk's interpreter, to extract counters per
// line.
type Awkline struct {
	prog *parser.Program
}

// increment is one "counter value" pair emitted by the AWK program
// for a single line.
type increment struct {
	counter string
	value   float64
}

// New constructs an Awkline plugin. The `script` option names a file
// containing the AWK program; `program` supplies it inline instead.
// Exactly one of the two must be given. regexOverride is accepted for
// interface symmetry but unused: this plugin has no regex of its own.
func New(opts plugin.Options, regexOverride string) (plugin.Plugin, error) {
	var src []byte
	switch {
	case opts["script"] != "":
		b, err := ioutil.ReadFile(opts["script"])
		if err != nil {
			return nil, fmt.Errorf("awkline: reading script: %w", err)
		}
		src = b
	case opts["program"] != "":
		src = []byte(opts["program"])
	default:
		return nil, fmt.Errorf("awkline: requires -o script=<path> or -o program=<awk>")
	}

	prog, err := parser.ParseProgram(src, nil)
	if err != nil {
		return nil, fmt.Errorf("awkline: parsing awk program: %w", err)
	}

	return &Awkline{prog: prog}, nil
}

// ParseErrorDefault implements plugin.Plugin.
func (p *Awkline) ParseErrorDefault() plugin.Level {
	return plugin.LevelDebug
}

// InitZone implements plugin.Plugin. The awkline plugin has no fixed
// counters of its own: every key comes from the AWK program's output.
func (p *Awkline) InitZone(zone string, public plugin.Public, private plugin.Private, current plugin.Window) {
}

// ProcessLine implements plugin.Plugin by running the configured AWK
// program against the line and collecting its "counter value" output
// pairs. A program that emits nothing (or errors) yields an
// unparsable line.
func (p *Awkline) ProcessLine(line string) (interface{}, bool) {
	var out bytes.Buffer
	config := &interp.Config{
		Stdin:  strings.NewReader(line + "\n"),
		Output: &out,
	}

	if _, err := interp.ExecProgram(p.prog, config); err != nil {
		return nil, false
	}

	var incs []increment
	sc := bufio.NewScanner(&out)
	for sc.Scan() {
		fields := strings.Fields(sc.Text())
		if len(fields) != 2 {
			continue
		}
		v, err := strconv.ParseFloat(fields[1], 64)
		if err != nil {
			continue
		}
		incs = append(incs, increment{counter: fields[0], value: v})
	}

	if len(incs) == 0 {
		return nil, false
	}
	return incs, true
}

// ProcessData implements plugin.Plugin.
func (p *Awkline) ProcessData(parsed interface{}, public plugin.Public, private plugin.Private, current plugin.Window) {
	for _, inc := range parsed.([]increment) {
		public[inc.counter] += inc.value
		current[inc.counter] += inc.value
	}
}

// ProcessWindow implements plugin.Plugin. Counters are cumulative;
// nothing rolls over on slide.
func (p *Awkline) ProcessWindow(public plugin.Public, private plugin.Private, windows plugin.Windows) {
}

// ProcessTimer implements plugin.Plugin. awkline defines no named
// timers of its own.
func (p *Awkline) ProcessTimer(name string, public plugin.Public, private plugin.Private, windows plugin.Windows) bool {
	return false
}

// StatsZone implements plugin.Plugin.
func (p *Awkline) StatsZone(zone string, public plugin.Public, private plugin.Private, windows plugin.Windows) []string {
	return sortedLines(public)
}

// DumpZone implements plugin.Plugin.
func (p *Awkline) DumpZone(zone string, public plugin.Public, private plugin.Private, windows plugin.Windows) []string {
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
