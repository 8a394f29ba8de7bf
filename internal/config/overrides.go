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
	"io/ioutil"
	"strings"
	"time"

	"github.com/pkg/errors"
	"github.com/spf13/pflag"
	"gopkg.in/yaml.v2"
)

// overrideDoc is the shape of a `--override-from` YAML file. Unknown
// keys are rejected via the inline XXX catch-all, the same idiom
// relabel.Rule.UnmarshalYAML uses to reject unrecognized relabel rule
// fields.
type overrideDoc struct {
	WindowSize    *string  `yaml:"window-size"`
	StorePeriod   *string  `yaml:"store-period"`
	ExpandPeriod  *string  `yaml:"expand-period"`
	ListenAddr    *string  `yaml:"listen-addr"`
	PluginOptions *string  `yaml:"plugin-options"`
	Multiple      *bool    `yaml:"multiple"`
	Basename      *bool    `yaml:"basename"`
	ParseError    *string  `yaml:"parse-error"`
	AdminAddr     *string  `yaml:"admin-addr"`
	ArchiveDir    *string  `yaml:"archive-dir"`
	ArchiveKeep   *int     `yaml:"archive-keep"`
	Timers        []string `yaml:"timers"`

	XXX map[string]interface{} `yaml:",inline"`
}

func (d *overrideDoc) checkUnknown() error {
	if len(d.XXX) == 0 {
		return nil
	}
	keys := make([]string, 0, len(d.XXX))
	for k := range d.XXX {
		keys = append(keys, k)
	}
	return fmt.Errorf("unknown override-from fields: %s", strings.Join(keys, ", "))
}

// LoadOverrides applies each file in files, in order, onto c. Only
// fields the operator did not already pass explicitly on the command
// line (per fs.Changed) are overridden, so `--override-from` fills in
// defaults rather than fighting an explicit flag.
func LoadOverrides(files []string, c *Config, fs *pflag.FlagSet) error {
	for _, path := range files {
		raw, err := ioutil.ReadFile(path)
		if err != nil {
			return errors.Wrapf(err, "reading override-from file %q", path)
		}

		var doc overrideDoc
		if err := yaml.Unmarshal(raw, &doc); err != nil {
			return errors.Wrapf(err, "parsing override-from file %q", path)
		}
		if err := doc.checkUnknown(); err != nil {
			return errors.Wrapf(err, "override-from file %q", path)
		}

		if err := applyOverride(&doc, c, fs); err != nil {
			return errors.Wrapf(err, "applying override-from file %q", path)
		}
	}
	return nil
}

func applyOverride(d *overrideDoc, c *Config, fs *pflag.FlagSet) error {
	set := func(name string) bool { return fs == nil || !fs.Changed(name) }

	if d.WindowSize != nil && set("window-size") {
		v, err := time.ParseDuration(*d.WindowSize)
		if err != nil {
			return err
		}
		c.WindowSize = v
	}
	if d.StorePeriod != nil && set("store-period") {
		v, err := time.ParseDuration(*d.StorePeriod)
		if err != nil {
			return err
		}
		c.StorePeriod = v
	}
	if d.ExpandPeriod != nil && set("expand-period") {
		v, err := time.ParseDuration(*d.ExpandPeriod)
		if err != nil {
			return err
		}
		c.ExpandPeriod = v
	}
	if d.ListenAddr != nil && set("listen-addr") {
		c.ListenAddr = *d.ListenAddr
	}
	if d.PluginOptions != nil && set("plugin-options") {
		c.PluginOpts = *d.PluginOptions
	}
	if d.Multiple != nil && set("multiple") {
		c.Multiple = *d.Multiple
	}
	if d.Basename != nil && set("basename") {
		c.Basename = *d.Basename
	}
	if d.ParseError != nil && set("parse-error") {
		c.ParseError = *d.ParseError
	}
	if d.AdminAddr != nil && set("admin-addr") {
		c.AdminAddr = *d.AdminAddr
	}
	if d.ArchiveDir != nil && set("archive-dir") {
		c.ArchiveDir = *d.ArchiveDir
	}
	if d.ArchiveKeep != nil && set("archive-keep") {
		c.ArchiveKeep = *d.ArchiveKeep
	}
	if len(d.Timers) > 0 && set("timer") {
		c.Timers = append(c.Timers, d.Timers...)
	}
	return nil
}
