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
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParsePositionalZonePrefix(t *testing.T) {
	c := New()
	err := c.ParsePositional([]string{"apache", "a:/tmp/log", "web:/var/log/*.log"})
	require.NoError(t, err)
	assert.Equal(t, "apache", c.Plugin)
	assert.Equal(t, []string{"a", "web"}, c.ZonesInOrder())
	assert.Equal(t, []string{"/tmp/log"}, c.WildcardsForZone("a"))
}

func TestParsePositionalFallsBackToAggregateZone(t *testing.T) {
	c := New()
	c.AggregateZone = "agg"
	err := c.ParsePositional([]string{"apache", "/tmp/log"})
	require.NoError(t, err)
	assert.Equal(t, []string{"agg"}, c.ZonesInOrder())
}

func TestParsePositionalNoAggregateFails(t *testing.T) {
	c := New()
	c.AggregateZone = ""
	err := c.ParsePositional([]string{"apache", "/tmp/log"})
	assert.Error(t, err)
}

func TestValidateRejectsBadZoneName(t *testing.T) {
	c := New()
	c.Wildcards = []Wildcard{{Zone: "bad zone", Pattern: "/tmp/x"}}
	assert.Error(t, c.Validate())
}

func TestValidateRejectsBadIdentity(t *testing.T) {
	c := New()
	c.Identity = "not valid!"
	assert.Error(t, c.Validate())
}

func TestValidateRejectsMutuallyExclusiveRegex(t *testing.T) {
	c := New()
	c.Regex = "x"
	c.RegexFrom = "y"
	assert.Error(t, c.Validate())
}

func TestParsePluginOptions(t *testing.T) {
	opts := ParsePluginOptions("clf,type,foo=bar")
	assert.Equal(t, "", opts["clf"])
	assert.Equal(t, "", opts["type"])
	assert.Equal(t, "bar", opts["foo"])
}

func TestParseTimer(t *testing.T) {
	ts, err := ParseTimer("a:daily:1d")
	require.NoError(t, err)
	assert.Equal(t, "a", ts.Zone)
	assert.Equal(t, "daily", ts.Name)
	assert.Equal(t, 24*time.Hour, ts.Period)
	assert.Equal(t, UnitDay, ts.Unit)
}

func TestTimerNextFireAlignsToMidnight(t *testing.T) {
	ts, err := ParseTimer("a:daily:1d")
	require.NoError(t, err)

	now := time.Date(2026, 8, 6, 14, 30, 0, 0, time.UTC)
	next := ts.NextFire(now)

	assert.Equal(t, 0, next.Hour())
	assert.Equal(t, 0, next.Minute())
	assert.Equal(t, 0, next.Second())
	assert.True(t, next.After(now))
}

func TestParseTimerRejectsBadFormat(t *testing.T) {
	_, err := ParseTimer("garbage")
	assert.Error(t, err)
}
