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
package persist

import (
	"bytes"
	"fmt"
	"math/rand"
	"sort"
	"time"

	"github.com/golang/glog"
	"github.com/graymeta/stow"
	_ "github.com/graymeta/stow/local"
	"github.com/oklog/ulid"
	"github.com/pkg/errors"
	"golang.org/x/crypto/openpgp"
)

const archiveContainerName = "logwatchd-snapshots"

// Archiver uploads each successful snapshot generation to a stow
// container, so a history of database files survives host loss
// independent of the local disk. Grounded on indexer.shardArchive's
// stow.ConfigMap field, generalized from "archive completed log
// shards" to "archive completed database snapshots". Uses stow's
// "local" backend, its zero-configuration provider.
type Archiver struct {
	container stow.Container
	encryptTo openpgp.EntityList
	keep      int
	entropy   *rand.Rand
}

// NewArchiver dials a stow "local" location rooted at dir and ensures
// a container exists there. encryptTo may be nil to archive snapshots
// in the clear. keep bounds the container to its keep most recent
// snapshots (0 disables pruning, keeping every copy forever).
func NewArchiver(dir string, encryptTo openpgp.EntityList, keep int) (*Archiver, error) {
	loc, err := stow.Dial("local", stow.ConfigMap{"path": dir})
	if err != nil {
		return nil, errors.Wrap(err, "dialing archive location")
	}

	container, err := loc.CreateContainer(archiveContainerName)
	if err != nil {
		// The container may already exist from a previous run; open it
		// by the deterministic ID the local backend derives from dir
		// and name rather than guessing at the exact "already exists"
		// error text.
		container, err = loc.Container(archiveContainerName)
		if err != nil {
			return nil, errors.Wrap(err, "opening archive container")
		}
	}

	return &Archiver{
		container: container,
		encryptTo: encryptTo,
		keep:      keep,
		entropy:   rand.New(rand.NewSource(time.Now().UnixNano())),
	}, nil
}

// Archive uploads data (a completed snapshot's bytes) under a
// ulid-stamped key, encrypting it first if the Archiver was
// constructed with a keyring. Failures are logged, not fatal, mirroring
// spec.md §4.7's "failures ... are logged but non-fatal" rule for the
// primary database file.
func (a *Archiver) Archive(data []byte) {
	if a.encryptTo != nil {
		enc, err := Encrypt(data, a.encryptTo)
		if err != nil {
			glog.Warningf("archive: encrypting snapshot: %v", err)
			return
		}
		data = enc
	}

	id := ulid.MustNew(ulid.Timestamp(time.Now()), a.entropy)
	name := fmt.Sprintf("%s.json", id.String())

	if _, err := a.container.Put(name, bytes.NewReader(data), int64(len(data)), nil); err != nil {
		glog.Warningf("archive: uploading snapshot %q: %v", name, err)
		return
	}

	a.prune()
}

// prune removes the oldest archived snapshots once the container
// holds more than a.keep of them. ULID-prefixed names sort
// lexicographically in creation order, so no per-item timestamp lookup
// is needed. keep of 0 disables pruning.
func (a *Archiver) prune() {
	if a.keep <= 0 {
		return
	}

	var names []string
	cursor := stow.CursorStart
	for {
		items, next, err := a.container.Items("", cursor, 100)
		if err != nil {
			glog.Warningf("archive: listing snapshots for pruning: %v", err)
			return
		}
		for _, it := range items {
			names = append(names, it.Name())
		}
		if stow.IsCursorEnd(next) {
			break
		}
		cursor = next
	}

	if len(names) <= a.keep {
		return
	}

	sort.Strings(names)
	for _, name := range names[:len(names)-a.keep] {
		if err := a.container.RemoveItem(name); err != nil {
			glog.Warningf("archive: pruning snapshot %q: %v", name, err)
		}
	}
}
