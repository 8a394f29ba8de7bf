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
package config

import (
	"fmt"
	"regexp"
	"strconv"
	"time"
)

// TimerUnit is the wall-clock truncation unit a named timer's next
// fire time is rounded down to, per spec.md §3.
type TimerUnit string

// Truncation units a named timer may align to.
const (
	UnitSecond TimerUnit = "second"
	UnitMinute TimerUnit = "minute"
	UnitHour   TimerUnit = "hour"
	UnitDay    TimerUnit = "day"
	UnitWeek   TimerUnit = "week"
)

// TimerSpec is one parsed `--timer=zone:name:N[wdhms]` argument.
type TimerSpec struct {
	Zone   string
	Name   string
	Period time.Duration
	Unit   TimerUnit
}

var timerRE = regexp.MustCompile(`^([A-Za-z0-9_-]+):([A-Za-z0-9_-]+):(\d+)([wdhms])$`)

var unitSeconds = map[string]struct {
	unit    TimerUnit
	seconds int64
}{
	"s": {UnitSecond, 1},
	"m": {UnitMinute, 60},
	"h": {UnitHour, 3600},
	"d": {UnitDay, 86400},
	"w": {UnitWeek, 604800},
}

// ParseTimer parses one `--timer` argument.
func ParseTimer(s string) (TimerSpec, error) {
	m := timerRE.FindStringSubmatch(s)
	if m == nil {
		return TimerSpec{}, fmt.Errorf("invalid --timer %q: want zone:name:N[wdhms]", s)
	}

	n, err := strconv.ParseInt(m[3], 10, 64)
	if err != nil {
		return TimerSpec{}, fmt.Errorf("invalid --timer %q: %w", s, err)
	}

	u := unitSeconds[m[4]]
	return TimerSpec{
		Zone:   m[1],
		Name:   m[2],
		Period: time.Duration(n*u.seconds) * time.Second,
		Unit:   u.unit,
	}, nil
}

// ParseTimers parses every configured --timer argument.
func ParseTimers(specs []string) ([]TimerSpec, error) {
	out := make([]TimerSpec, 0, len(specs))
	for _, s := range specs {
		t, err := ParseTimer(s)
		if err != nil {
			return nil, err
		}
		out = append(out, t)
	}
	return out, nil
}

// Truncate rounds t down to unit's boundary, in t's own location, so a
// "daily" timer aligns to local midnight as spec.md §3 requires.
func (u TimerUnit) Truncate(t time.Time) time.Time {
	switch u {
	case UnitSecond:
		return t.Truncate(time.Second)
	case UnitMinute:
		return t.Truncate(time.Minute)
	case UnitHour:
		return t.Truncate(time.Hour)
	case UnitDay:
		y, m, d := t.Date()
		return time.Date(y, m, d, 0, 0, 0, 0, t.Location())
	case UnitWeek:
		y, m, d := t.Date()
		midnight := time.Date(y, m, d, 0, 0, 0, 0, t.Location())
		// ISO-ish: truncate back to the most recent Monday.
		offset := (int(midnight.Weekday()) + 6) % 7
		return midnight.AddDate(0, 0, -offset)
	default:
		return t
	}
}

// NextFire computes the next fire time for a timer armed at now, per
// spec.md §3: "now + period, then truncated downward to the unit
// boundary."
func (t TimerSpec) NextFire(now time.Time) time.Time {
	return t.Unit.Truncate(now.Add(t.Period))
}
