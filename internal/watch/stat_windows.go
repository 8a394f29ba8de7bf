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
// +build windows

package watch

import "os"

// statDevIno has no portable device/inode pair on Windows, so it
// always reports zero for both. checkRotation treats that as "file
// missing" and reports no rotation; there is no size-shrink fallback.
func statDevIno(path string) (dev, ino uint64, size int64) {
	info, err := os.Stat(path)
	if err != nil {
		return 0, 0, 0
	}
	return 0, 0, info.Size()
}
