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
package watch

import (
	"context"
	"os"
	"path/filepath"
	"sort"

	"github.com/golang/glog"
	"github.com/qubitproducts/logwatchd/internal/config"
	"github.com/rjeczalik/notify"
)

// Match is one file discovered by wildcard expansion, together with
// every zone whose wildcard pattern matched it, in configuration
// order. Whether a file subscribes to one zone or all of them is a
// policy decision left to the caller (see spec.md §4.4, "multiple").
type Match struct {
	Path  string
	Zones []string
}

// Expander re-globs the configured wildcards and reports the current
// file set, grounded on filesystem.Watcher.Next's filepath.Walk
// pass in sources/filesystem/filewatcher.go, generalized from a
// single recursive directory walk to the plugin's glob-per-zone
// wildcard model.
type Expander struct {
	wildcards []config.Wildcard
	basename  bool
}

// NewExpander creates an Expander for the given wildcards, in the
// order zones were declared on the command line. basename mirrors
// --basename: when true, a wildcard's pattern is matched against file
// basenames only, recursively under the pattern's directory, instead
// of a single non-recursive filepath.Glob.
func NewExpander(wildcards []config.Wildcard, basename bool) *Expander {
	return &Expander{wildcards: wildcards, basename: basename}
}

// Expand re-globs every configured wildcard and returns the current
// set of matched files, each annotated with every zone that claims
// it. Files are canonicalized with filepath.EvalSymlinks (falling
// back to filepath.Abs if that fails) so the same file reached
// through different wildcard spellings, or through a symlink,
// collapses to one entry.
func (e *Expander) Expand() ([]Match, error) {
	zonesByPath := map[string][]string{}
	order := []string{}

	for _, w := range e.wildcards {
		matches, err := e.matchWildcard(w)
		if err != nil {
			return nil, err
		}
		for _, m := range matches {
			real, err := canonicalize(m)
			if err != nil {
				glog.Warningf("expander: skipping %q: %v", m, err)
				continue
			}
			if _, seen := zonesByPath[real]; !seen {
				order = append(order, real)
			}
			if !containsString(zonesByPath[real], w.Zone) {
				zonesByPath[real] = append(zonesByPath[real], w.Zone)
			}
		}
	}

	sort.Strings(order)
	out := make([]Match, 0, len(order))
	for _, path := range order {
		out = append(out, Match{Path: path, Zones: zonesByPath[path]})
	}
	return out, nil
}

// matchWildcard resolves one wildcard's pattern to the files
// currently matching it. In basename mode the directory component of
// the pattern is walked recursively and each entry's basename is
// matched against the pattern's basename; otherwise it's a plain,
// non-recursive filepath.Glob.
func (e *Expander) matchWildcard(w config.Wildcard) ([]string, error) {
	if !e.basename {
		return filepath.Glob(w.Pattern)
	}

	dir := filepath.Dir(w.Pattern)
	base := filepath.Base(w.Pattern)

	var matches []string
	err := filepath.Walk(dir, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			// An unreadable subdirectory shouldn't abort the whole scan.
			return nil
		}
		if info.IsDir() {
			return nil
		}
		if ok, _ := filepath.Match(base, info.Name()); ok {
			matches = append(matches, path)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return matches, nil
}

// canonicalize resolves path to its real, symlink-free absolute form.
// If symlink resolution fails (the path doesn't exist yet, a
// permission error, and so on) it falls back to a plain absolute
// path, since a not-yet-created file can still be a valid glob match
// for a not-yet-rotated-into log target.
func canonicalize(path string) (string, error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return "", err
	}
	real, err := filepath.EvalSymlinks(abs)
	if err != nil {
		return abs, nil
	}
	return real, nil
}

func containsString(ss []string, s string) bool {
	for _, x := range ss {
		if x == s {
			return true
		}
	}
	return false
}

// WatchDirs is the set of parent directories worth watching with
// rjeczalik/notify for a create-event fast path, so a new file
// matching a wildcard is picked up before the next expand heartbeat
// rather than waiting up to ExpandPeriod.
func (e *Expander) WatchDirs() []string {
	seen := map[string]bool{}
	var dirs []string
	for _, w := range e.wildcards {
		dir := filepath.Dir(w.Pattern)
		if !seen[dir] {
			seen[dir] = true
			dirs = append(dirs, dir)
		}
	}
	return dirs
}

// StartNotify watches WatchDirs() for file creation and sends on the
// returned channel whenever one occurs, so the engine can trigger an
// early Expand instead of waiting for the next heartbeat. Grounded on
// filesystem.Watcher.watch's use of rjeczalik/notify in
// sources/filesystem/filewatcher.go; simplified to a single
// coalescing signal since the engine always calls Expand() fresh
// rather than consuming individual notify.EventInfo values. The
// returned channel is consumed by engine.Run's select loop alongside
// the scheduler's expand heartbeat.
func (e *Expander) StartNotify(ctx context.Context) (<-chan struct{}, error) {
	ec := make(chan notify.EventInfo, 64)
	sig := make(chan struct{}, 1)

	for _, dir := range e.WatchDirs() {
		if err := notify.Watch(dir, ec, notify.Create, notify.Rename); err != nil {
			glog.Warningf("expander: cannot watch %q: %v", dir, err)
			continue
		}
	}

	go func() {
		defer notify.Stop(ec)
		for {
			select {
			case <-ctx.Done():
				return
			case <-ec:
				select {
				case sig <- struct{}{}:
				default:
				}
			}
		}
	}()

	return sig, nil
}
