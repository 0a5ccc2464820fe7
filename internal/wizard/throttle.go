/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except
 * in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the
 *  specific language governing permissions and limitations under the License.
 */

package wizard

import (
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// throttle limits manual regeneration per page. A zero interval disables it.
type throttle struct {
	mu       sync.Mutex
	every    time.Duration
	burst    int
	limiters map[int]*rate.Limiter
	now      func() time.Time
}

func newThrottle(every time.Duration, burst int) *throttle {
	if burst < 1 {
		burst = 1
	}
	return &throttle{every: every, burst: burst, limiters: map[int]*rate.Limiter{}, now: time.Now}
}

// allow consumes one token for page n.
func (t *throttle) allow(n int) bool {
	if t == nil || t.every <= 0 {
		return true
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	l, ok := t.limiters[n]
	if !ok {
		l = rate.NewLimiter(rate.Every(t.every), t.burst)
		t.limiters[n] = l
	}
	return l.AllowN(t.now(), 1)
}

func (t *throttle) reset() {
	if t == nil {
		return
	}
	t.mu.Lock()
	t.limiters = map[int]*rate.Limiter{}
	t.mu.Unlock()
}
