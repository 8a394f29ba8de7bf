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
// Package persist implements the atomic JSON dump/restore of all zone
// state (C7), per spec.md §4.7, plus the optional archival and
// encryption of each snapshot generation.
package persist

import (
	"encoding/json"
	"io/ioutil"
	"os"

	"github.com/pkg/errors"
	"github.com/qubitproducts/logwatchd/internal/zone"
)

// Document is the on-disk shape of the database file: a single
// top-level "zones" object keyed by zone name, per spec.md §7's
// persisted state format.
type Document struct {
	Zones map[string]zone.Snapshot `json:"zones"`
}

// Save writes zones to path using the write-temp/unlink/rename dance
// spec.md §4.7 requires: encode to `<path>~`, remove any existing
// `path`, then rename the temp file into place. A failure at any
// step must not disturb the previous, still-valid database file.
func Save(path string, zones map[string]zone.Snapshot) error {
	doc := Document{Zones: zones}

	data, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return errors.Wrap(err, "encoding snapshot")
	}

	tmp := path + "~"
	if err := ioutil.WriteFile(tmp, data, 0644); err != nil {
		return errors.Wrapf(err, "writing temp file %q", tmp)
	}

	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		return errors.Wrapf(err, "removing previous database file %q", path)
	}

	if err := os.Rename(tmp, path); err != nil {
		return errors.Wrapf(err, "renaming %q to %q", tmp, path)
	}

	return nil
}

// Load reads and decodes path, returning an empty zone set if the
// file does not exist yet (fresh install, per spec.md §4.7).
func Load(path string) (map[string]zone.Snapshot, error) {
	data, err := ioutil.ReadFile(path)
	if os.IsNotExist(err) {
		return map[string]zone.Snapshot{}, nil
	}
	if err != nil {
		return nil, errors.Wrapf(err, "reading database file %q", path)
	}

	var doc Document
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, errors.Wrapf(err, "decoding database file %q", path)
	}
	if doc.Zones == nil {
		doc.Zones = map[string]zone.Snapshot{}
	}
	return doc.Zones, nil
}
