// Copyright 2026 Teradata
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//	http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package server

import (
	"sync"
	"time"
)

// bucket is one per-key token bucket. Tokens refill continuously at
// capacity/window per second.
type bucket struct {
	tokens     float64
	lastRefill time.Time
	lastSeen   time.Time
}

// RateLimiter is an in-memory token bucket limiter keyed by API key.
// Idle buckets are dropped after bucketTTL to bound memory.
type RateLimiter struct {
	mu       sync.Mutex
	buckets  map[string]*bucket
	capacity float64
	window   time.Duration
	now      func() time.Time
}

const bucketTTL = 24 * time.Hour

// NewRateLimiter creates a limiter allowing `requests` per `window`.
func NewRateLimiter(requests int, window time.Duration) *RateLimiter {
	return &RateLimiter{
		buckets:  make(map[string]*bucket),
		capacity: float64(requests),
		window:   window,
		now:      time.Now,
	}
}

// Allow consumes one token for the key. It reports whether the request
// may proceed, the remaining whole tokens, and, when denied, how long
// until a token is available.
func (l *RateLimiter) Allow(key string) (allowed bool, remaining int, retryAfter time.Duration) {
	now := l.now()
	refillRate := l.capacity / l.window.Seconds()

	l.mu.Lock()
	defer l.mu.Unlock()

	b, ok := l.buckets[key]
	if !ok {
		b = &bucket{tokens: l.capacity, lastRefill: now, lastSeen: now}
		l.buckets[key] = b
		l.evictIdle(now)
	}

	elapsed := now.Sub(b.lastRefill).Seconds()
	b.tokens = min(l.capacity, b.tokens+elapsed*refillRate)
	b.lastRefill = now
	b.lastSeen = now

	if b.tokens >= 1 {
		b.tokens--
		return true, int(b.tokens), 0
	}

	need := 1 - b.tokens
	return false, 0, time.Duration(need / refillRate * float64(time.Second))
}

// evictIdle drops buckets unused for bucketTTL. Called while holding
// the lock, only on the bucket-creation path.
func (l *RateLimiter) evictIdle(now time.Time) {
	for key, b := range l.buckets {
		if now.Sub(b.lastSeen) > bucketTTL {
			delete(l.buckets, key)
		}
	}
}
