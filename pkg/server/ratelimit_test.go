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
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRateLimiterAllow(t *testing.T) {
	t.Parallel()

	now := time.Unix(1_700_000_000, 0)
	limiter := NewRateLimiter(3, time.Minute)
	limiter.now = func() time.Time { return now }

	for i := 0; i < 3; i++ {
		allowed, _, _ := limiter.Allow("key")
		require.True(t, allowed, "request %d", i)
	}

	allowed, remaining, retryAfter := limiter.Allow("key")
	assert.False(t, allowed)
	assert.Zero(t, remaining)
	assert.Greater(t, retryAfter, time.Duration(0))
	assert.LessOrEqual(t, retryAfter, 20*time.Second)

	t.Run("tokens refill continuously", func(t *testing.T) {
		// 3 per minute refills one token every 20 seconds.
		now = now.Add(20 * time.Second)
		allowed, _, _ := limiter.Allow("key")
		assert.True(t, allowed)

		allowed, _, _ = limiter.Allow("key")
		assert.False(t, allowed)
	})

	t.Run("keys are independent", func(t *testing.T) {
		allowed, remaining, _ := limiter.Allow("other")
		assert.True(t, allowed)
		assert.Equal(t, 2, remaining)
	})

	t.Run("refill never exceeds capacity", func(t *testing.T) {
		now = now.Add(24 * time.Hour)
		for i := 0; i < 3; i++ {
			allowed, _, _ := limiter.Allow("other")
			require.True(t, allowed, "request %d", i)
		}
		allowed, _, _ := limiter.Allow("other")
		assert.False(t, allowed)
	})
}

func TestRateLimiterEvictsIdleBuckets(t *testing.T) {
	t.Parallel()

	now := time.Unix(1_700_000_000, 0)
	limiter := NewRateLimiter(10, time.Minute)
	limiter.now = func() time.Time { return now }

	limiter.Allow("stale")
	assert.Len(t, limiter.buckets, 1)

	now = now.Add(bucketTTL + time.Hour)
	limiter.Allow("fresh")

	assert.Len(t, limiter.buckets, 1)
	assert.Contains(t, limiter.buckets, "fresh")
}
