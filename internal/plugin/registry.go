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
package plugin

import "fmt"

// registry is the fixed set of built-in plugins, keyed by the name
// given on the command line. spec.md §9 explicitly redirects the
// source's dynamic plugin loading here: "a systems-language port
// should expose a fixed registry of built-in plugins keyed by name."
var registry = map[string]Constructor{}

// Register adds a plugin constructor under name. Called from each
// plugin subpackage's init(), mirroring the package-level
// prometheus.MustRegister(...) init-time registration idiom.
func Register(name string, ctor Constructor) {
	if _, exists := registry[name]; exists {
		panic(fmt.Sprintf("plugin: duplicate registration for %q", name))
	}
	registry[name] = ctor
}

// Lookup returns the constructor registered under name.
func Lookup(name string) (Constructor, bool) {
	ctor, ok := registry[name]
	return ctor, ok
}

// Names returns every registered plugin name, for usage/help text.
func Names() []string {
	names := make([]string, 0, len(registry))
	for n := range registry {
		names = append(names, n)
	}
	return names
}
