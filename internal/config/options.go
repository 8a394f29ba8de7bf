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

import "strings"

// PluginOptionsMap describes the parsed form of the `-o` plugin
// options string, kept here (rather than importing internal/plugin)
// so config has no dependency on the plugin package; callers convert
// to plugin.Options at the point of use.
type PluginOptionsMap map[string]string

// ParsePluginOptions parses a comma- and `=`-separated option string
// such as `clf,combined,foo=bar` into a map. Options without a `=`
// are bare flags, stored with an empty value.
func ParsePluginOptions(s string) PluginOptionsMap {
	out := PluginOptionsMap{}
	if s == "" {
		return out
	}
	for _, part := range strings.Split(s, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		if idx := strings.Index(part, "="); idx >= 0 {
			out[part[:idx]] = part[idx+1:]
		} else {
			out[part] = ""
		}
	}
	return out
}
