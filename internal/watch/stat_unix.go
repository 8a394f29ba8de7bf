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
// +build !windows

package watch

import (
	"os"
	"syscall"
)

// statDevIno returns path's device and inode numbers along with its
// current size, for rotation detection. All three are zero if the
// file cannot currently be stat'd.
func statDevIno(path string) (dev, ino uint64, size int64) {
	info, err := os.Stat(path)
	if err != nil {
		return 0, 0, 0
	}
	st, ok := info.Sys().(*syscall.Stat_t)
	if !ok {
		return 0, 0, info.Size()
	}
	return uint64(st.Dev), uint64(st.Ino), info.Size()
}
