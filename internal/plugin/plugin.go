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
// Package plugin defines the pluggable extraction/accumulation
// strategy that the engine drives for every zone. A plugin owns line
// parsing, counter updates, window rollover, named timers and query
// formatting; the engine never inspects a zone's counters directly.
package plugin

// Level is a suggested log level for a plugin-raised event (typically
// an unparsable line). It mirrors glog's own severities plus a
// "none" value meaning "don't log this at all".
type Level string

// Log levels a plugin may request for parse-error reporting.
const (
	LevelDebug   Level = "debug"
	LevelInfo    Level = "info"
	LevelNotice  Level = "notice"
	LevelWarning Level = "warning"
	LevelError   Level = "error"
	LevelNone    Level = "none"
)

// Options carries the `-o key=val,flag` plugin option string, already
// split. A `regex` key here is the option-level pattern override; the
// CLI -r/--regex-from override is passed to the Constructor
// separately. Boolean-style options (a bare `flag` with no `=value`)
// are stored with an empty string value; use Bool to test for presence.
type Options map[string]string

// Bool reports whether key was set at all (bare flag or any non-empty
// value), matching the source CLI's "options: map<string,string|bool>"
// contract.
func (o Options) Bool(key string) bool {
	_, ok := o[key]
	return ok
}

// Regex returns the plugin-option regex override, if any, and whether
// one was supplied.
func (o Options) Regex() (string, bool) {
	v, ok := o["regex"]
	return v, ok
}

// Public is the long-term, client-visible per-zone counter map.
type Public map[string]float64

// Private is plugin-owned scratch state, opaque to clients but still
// JSON-serializable so it survives a snapshot round-trip.
type Private map[string]interface{}

// Window is one fixed-duration accumulator.
type Window map[string]float64

// Windows is the zone's window ring, newest (currently accumulating)
// entry at index 0.
type Windows []Window

// Plugin is the sole coupling point between the engine and
// format-specific parsing/accumulation logic. Every method executes
// synchronously inside the engine's single event-loop handler and
// must not block.
type Plugin interface {
	// ParseErrorDefault is the log level to use for unparsable lines
	// when the operator hasn't overridden it with --parse-error.
	ParseErrorDefault() Level

	// InitZone seeds public/private state for a zone right after load
	// or fresh creation. Called unconditionally on every configured
	// zone at startup, so it must be idempotent: calling it twice on
	// already-populated state must not clobber accumulated counters.
	InitZone(zone string, public Public, private Private, current Window)

	// ProcessLine applies the plugin's matcher and any semantic
	// validation to one line. A nil parsed value (ok == false) means
	// "unparsable" and triggers a parse-error log at ParseErrorDefault
	// (or the operator override), unless that level is LevelNone.
	ProcessLine(line string) (parsed interface{}, ok bool)

	// ProcessData folds one parsed line into the zone's long-term
	// public counters and the currently-accumulating window. It may
	// also read or write private scratch state.
	ProcessData(parsed interface{}, public Public, private Private, current Window)

	// ProcessWindow is invoked once a new empty window has been
	// selected to become windows[0], but before it is actually
	// prepended: the just-completed window is still at windows[0]
	// during this call (see spec.md §9). The plugin may roll
	// historical sums into public, compute rates, or reset ephemeral
	// private state here.
	ProcessWindow(public Public, private Private, windows Windows)

	// ProcessTimer handles a named timer firing. The return value
	// controls re-arming: true re-arms the timer for its next
	// wall-clock-aligned fire time, false cancels it.
	ProcessTimer(name string, public Public, private Private, windows Windows) bool

	// StatsZone renders the `stats` command's reply lines. windows
	// excludes the currently-accumulating window (windows[1:] of the
	// full ring). Lines must be returned in sorted order.
	StatsZone(zone string, public Public, private Private, windows Windows) []string

	// DumpZone renders the `dump` command's reply lines, using the
	// same windows convention as StatsZone.
	DumpZone(zone string, public Public, private Private, windows Windows) []string
}

// Constructor builds a Plugin from its option string. regexOverride,
// if non-empty, takes precedence over any `regex` option and over the
// plugin's own default pattern (CLI -r/--regex-from wins over -o
// regex=... wins over the plugin default).
type Constructor func(opts Options, regexOverride string) (Plugin, error)
