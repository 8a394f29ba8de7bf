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
package server

import (
	"time"

	"github.com/golang/glog"
	"golang.org/x/time/rate"
)

// warnLimiter throttles the "engine busy" warning to at most once a
// second so a run of slow commands doesn't flood the log, the same
// idiom as server.blockLimiter in server/subscribers.go.
type warnLimiter struct {
	limiter *rate.Limiter
}

func newWarnLimiter() *warnLimiter {
	return &warnLimiter{limiter: rate.NewLimiter(rate.Every(1*time.Second), 1)}
}

func (w *warnLimiter) Warnf(format string, args ...interface{}) {
	if w.limiter.Allow() {
		glog.Warningf(format, args...)
	}
}
