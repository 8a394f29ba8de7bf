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
	"io"
	"io/ioutil"

	"github.com/pkg/errors"
	"golang.org/x/crypto/openpgp"
	"golang.org/x/crypto/openpgp/armor"
)

func armorEncode(w io.Writer) (io.WriteCloser, error) {
	return armor.Encode(w, "PGP MESSAGE", nil)
}

// LoadEncryptToKeyring reads an armored public keyring from path, for
// the `--encrypt-to` option, filling in the standard armored-keyring
// read that a bare []openpgp.Entity field leaves up to the caller.
func LoadEncryptToKeyring(path string) (openpgp.EntityList, error) {
	f, err := ioutil.ReadFile(path)
	if err != nil {
		return nil, errors.Wrapf(err, "reading encrypt-to keyring %q", path)
	}
	el, err := openpgp.ReadArmoredKeyRing(bytes.NewReader(f))
	if err != nil {
		return nil, errors.Wrapf(err, "parsing encrypt-to keyring %q", path)
	}
	return el, nil
}

// Encrypt returns plaintext encrypted to every entity in to, PGP
// armored so the archived object remains a text-safe blob.
func Encrypt(plaintext []byte, to openpgp.EntityList) ([]byte, error) {
	var buf bytes.Buffer

	armorWriter, err := armorEncode(&buf)
	if err != nil {
		return nil, err
	}

	w, err := openpgp.Encrypt(armorWriter, to, nil, nil, nil)
	if err != nil {
		armorWriter.Close()
		return nil, errors.Wrap(err, "opening pgp encryption stream")
	}
	if _, err := w.Write(plaintext); err != nil {
		w.Close()
		armorWriter.Close()
		return nil, errors.Wrap(err, "writing plaintext to pgp stream")
	}
	if err := w.Close(); err != nil {
		armorWriter.Close()
		return nil, errors.Wrap(err, "closing pgp stream")
	}
	if err := armorWriter.Close(); err != nil {
		return nil, errors.Wrap(err, "closing armor encoder")
	}

	return buf.Bytes(), nil
}
