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
// Package config defines the command-line surface (spec.md §6):
// flag registration, positional [zone:]wildcard parsing, named-timer
// and plugin-option parsing, and startup validation.
package config

import (
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/pkg/errors"
	"github.com/spf13/pflag"
)

var (
	zoneNameRE = regexp.MustCompile(`^[A-Za-z0-9_-]+$`)
	identityRE = regexp.MustCompile(`^\w+$`)
)

// Wildcard is one configured `[zone:]wildcard` positional argument.
type Wildcard struct {
	Zone    string
	Pattern string
}

// Config is the fully-parsed command-line configuration.
type Config struct {
	Plugin    string
	Wildcards []Wildcard

	AggregateZone string
	DatabaseFile  string
	Basename      bool
	ChangeDir     string
	Debug         bool
	Foreground    bool

	LogFacility string
	LogLevel    string
	LogFile     string

	ExpandPeriod time.Duration
	Identity     string
	ListenAddr   string
	Multiple     bool
	WindowsNum   int
	PluginOpts   string
	Overrides    []string
	PidFile      string
	ParseError   string
	Regex        string
	RegexFrom    string
	StorePeriod  time.Duration
	Timers       []string
	User         string
	Version      bool
	WindowSize   time.Duration

	// Supplemented (SPEC_FULL.md §SUPPLEMENTED FEATURES).
	AdminAddr   string
	ArchiveDir  string
	ArchiveKeep int
	EncryptTo   string
	DecryptKey  string
}

// New returns a Config seeded with spec.md §6's documented defaults.
func New() *Config {
	return &Config{
		DatabaseFile: "logwatchd.db",
		ExpandPeriod: 60 * time.Second,
		ListenAddr:   "127.0.0.1:3638",
		WindowsNum:   60,
		StorePeriod:  10 * time.Second,
		WindowSize:   10 * time.Second,
		ArchiveKeep:  24,
	}
}

// RegisterFlags binds every spec.md §6 flag (plus the supplemented
// admin/archive/crypto flags) onto fs.
func (c *Config) RegisterFlags(fs *pflag.FlagSet) {
	fs.StringVarP(&c.AggregateZone, "aggregate-zone", "a", "aggregate", "zone to use for wildcards given without a zone: prefix")
	fs.StringVarP(&c.DatabaseFile, "database-file", "b", c.DatabaseFile, "path to the JSON state database")
	fs.BoolVar(&c.Basename, "basename", false, "match wildcards against file basenames only")
	fs.StringVarP(&c.ChangeDir, "change-dir", "c", "", "directory to chdir into while expanding wildcards")
	fs.BoolVarP(&c.Debug, "debug", "d", false, "shortcut for -log-level=debug -foreground")
	fs.BoolVarP(&c.Foreground, "foreground", "f", false, "do not daemonize")
	fs.StringVar(&c.LogFacility, "log-facility", "", "syslog facility to log to")
	fs.StringVar(&c.LogLevel, "log-level", "info", "minimum level to log")
	fs.StringVar(&c.LogFile, "log-file", "", "file to log to instead of syslog/console")
	fs.DurationVarP(&c.ExpandPeriod, "expand-period", "e", c.ExpandPeriod, "how often to re-expand wildcards")
	fs.StringVarP(&c.Identity, "identity", "i", "logwatchd", "identity string reported by this instance")
	fs.StringVarP(&c.ListenAddr, "listen-addr", "l", c.ListenAddr, "address:port for the query server")
	fs.BoolVar(&c.Multiple, "multiple", false, "allow a file to be watched by every matching zone, not just the first")
	fs.IntVarP(&c.WindowsNum, "windows-num", "n", c.WindowsNum, "number of windows to retain per zone")
	fs.StringVarP(&c.PluginOpts, "plugin-options", "o", "", "comma-separated key=value plugin options")
	fs.StringArrayVar(&c.Overrides, "override-from", nil, "YAML file overriding configuration (repeatable)")
	fs.StringVarP(&c.PidFile, "pid-file", "p", "", "path to write the daemon's pid to")
	fs.StringVar(&c.ParseError, "parse-error", "", "log level for unparsable lines (overrides plugin default)")
	fs.StringVarP(&c.Regex, "regex", "r", "", "regex overriding the plugin's default pattern")
	fs.StringVar(&c.RegexFrom, "regex-from", "", "file containing a regex overriding the plugin's default pattern")
	fs.DurationVarP(&c.StorePeriod, "store-period", "s", c.StorePeriod, "how often to persist zone state")
	fs.StringArrayVar(&c.Timers, "timer", nil, "zone:name:N[wdhms] named timer (repeatable)")
	fs.StringVarP(&c.User, "user", "u", "", "user to drop privileges to")
	fs.BoolVarP(&c.Version, "version", "v", false, "print version and exit")
	fs.DurationVarP(&c.WindowSize, "window-size", "w", c.WindowSize, "duration of each window")

	fs.StringVar(&c.AdminAddr, "admin-addr", "", "address:port for /metrics and the grafana datasource (disabled if empty)")
	fs.StringVar(&c.ArchiveDir, "archive-dir", "", "directory to archive persisted snapshots into (disabled if empty)")
	fs.IntVar(&c.ArchiveKeep, "archive-keep", c.ArchiveKeep, "number of most recent archived snapshots to retain (0 keeps every copy)")
	fs.StringVar(&c.EncryptTo, "encrypt-to", "", "armored OpenPGP public key to encrypt archived snapshots to (the database file itself stays plain JSON)")
	fs.StringVar(&c.DecryptKey, "decrypt-key", "", "armored OpenPGP private key; accepted but not used on startup load")
}

// ParsePositional parses the `plugin [zone:]wildcard...` positional
// arguments left over after flag parsing.
func (c *Config) ParsePositional(args []string) error {
	if len(args) < 2 {
		return errors.New("usage: logwatchd <plugin> [zone:]wildcard [[zone:]wildcard ...]")
	}
	c.Plugin = args[0]

	for _, a := range args[1:] {
		w, err := parseWildcard(a, c.AggregateZone)
		if err != nil {
			return err
		}
		c.Wildcards = append(c.Wildcards, w)
	}
	return nil
}

func parseWildcard(arg, aggregateZone string) (Wildcard, error) {
	if idx := strings.Index(arg, ":"); idx > 0 {
		zone, pattern := arg[:idx], arg[idx+1:]
		if zoneNameRE.MatchString(zone) {
			return Wildcard{Zone: zone, Pattern: pattern}, nil
		}
	}
	if aggregateZone == "" {
		return Wildcard{}, fmt.Errorf("wildcard %q has no zone prefix and no aggregate-zone is configured", arg)
	}
	return Wildcard{Zone: aggregateZone, Pattern: arg}, nil
}

// ZonesInOrder returns each distinct zone name named by a Wildcard, in
// first-seen (configuration) order.
func (c *Config) ZonesInOrder() []string {
	seen := map[string]bool{}
	var zones []string
	for _, w := range c.Wildcards {
		if !seen[w.Zone] {
			seen[w.Zone] = true
			zones = append(zones, w.Zone)
		}
	}
	return zones
}

// WildcardsForZone returns every wildcard pattern configured for zone,
// in configuration order.
func (c *Config) WildcardsForZone(zone string) []string {
	var pats []string
	for _, w := range c.Wildcards {
		if w.Zone == zone {
			pats = append(pats, w.Pattern)
		}
	}
	return pats
}

// Validate checks the fatal-at-startup constraints from spec.md §6/§7:
// zone name grammar, identity grammar, and mutually exclusive flags.
func (c *Config) Validate() error {
	for _, w := range c.Wildcards {
		if !zoneNameRE.MatchString(w.Zone) {
			return fmt.Errorf("invalid zone name %q: must match [A-Za-z0-9_-]+", w.Zone)
		}
	}
	if c.Identity != "" && !identityRE.MatchString(c.Identity) {
		return fmt.Errorf("invalid identity %q: must be word characters only", c.Identity)
	}
	if c.Regex != "" && c.RegexFrom != "" {
		return errors.New("-r/--regex and --regex-from are mutually exclusive")
	}
	if c.WindowsNum < 1 {
		return errors.New("windows-num must be at least 1")
	}
	if c.WindowSize <= 0 {
		return errors.New("window-size must be positive")
	}
	if c.ParseError != "" {
		switch c.ParseError {
		case "debug", "info", "notice", "warning", "error", "none":
		default:
			return fmt.Errorf("invalid parse-error level %q", c.ParseError)
		}
	}
	return nil
}
