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

package storage

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/teradata-labs/relay/pkg/anthropic"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	store, err := Open(filepath.Join(t.TempDir(), "relay.db"), zaptest.NewLogger(t))
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })
	return store
}

func TestOpenSeedsPricing(t *testing.T) {
	t.Parallel()
	store := openTestStore(t)
	ctx := context.Background()

	p, err := store.GetPricing(ctx, "global.anthropic.claude-sonnet-4-5-20250929-v1:0")
	require.NoError(t, err)
	require.NotNil(t, p)
	assert.Equal(t, 3.0, p.InputPerMTok)
	assert.Equal(t, 15.0, p.OutputPerMTok)

	// Operator overrides survive a reopen; seeding never clobbers.
	require.NoError(t, store.SetPricing(ctx, Pricing{
		Model: "global.anthropic.claude-sonnet-4-5-20250929-v1:0", InputPerMTok: 9.0, OutputPerMTok: 45.0,
	}))
	require.NoError(t, store.seedPricing(ctx))

	p, err = store.GetPricing(ctx, "global.anthropic.claude-sonnet-4-5-20250929-v1:0")
	require.NoError(t, err)
	assert.Equal(t, 9.0, p.InputPerMTok)
}

func TestValidateKey(t *testing.T) {
	t.Parallel()
	store := openTestStore(t)
	ctx := context.Background()

	limit := 5.0
	require.NoError(t, store.CreateKey(ctx, APIKey{
		Key: "sk-relay-valid", Name: "ci", Active: true, ServiceTier: "flex", BudgetLimitMTD: &limit,
	}))

	t.Run("valid key", func(t *testing.T) {
		key, err := store.ValidateKey(ctx, "sk-relay-valid")
		require.NoError(t, err)
		assert.Equal(t, "ci", key.Name)
		assert.Equal(t, "flex", key.ServiceTier)
	})

	t.Run("unknown key", func(t *testing.T) {
		_, err := store.ValidateKey(ctx, "sk-relay-nope")
		apiErr := anthropic.AsAPIError(err)
		assert.Equal(t, anthropic.ErrAuthentication, apiErr.Kind)
	})

	t.Run("disabled key", func(t *testing.T) {
		require.NoError(t, store.CreateKey(ctx, APIKey{Key: "sk-relay-off", Active: false}))
		_, err := store.ValidateKey(ctx, "sk-relay-off")
		apiErr := anthropic.AsAPIError(err)
		assert.Equal(t, anthropic.ErrPermission, apiErr.Kind)
		assert.Contains(t, apiErr.Message, "disabled")
	})

	t.Run("expired key", func(t *testing.T) {
		past := time.Now().Add(-time.Hour)
		require.NoError(t, store.CreateKey(ctx, APIKey{Key: "sk-relay-old", Active: true, ExpiresAt: &past}))
		_, err := store.ValidateKey(ctx, "sk-relay-old")
		apiErr := anthropic.AsAPIError(err)
		assert.Equal(t, anthropic.ErrPermission, apiErr.Kind)
		assert.Contains(t, apiErr.Message, "expired")
	})

	t.Run("budget exceeded deactivates the key", func(t *testing.T) {
		require.NoError(t, store.AddBudgetUsed(ctx, "sk-relay-valid", 5.0))
		_, err := store.ValidateKey(ctx, "sk-relay-valid")
		apiErr := anthropic.AsAPIError(err)
		assert.Equal(t, anthropic.ErrBudgetExceeded, apiErr.Kind)

		var (
			active int
			reason string
		)
		require.NoError(t, store.db.QueryRowContext(ctx,
			`SELECT active, deactivated_reason FROM api_keys WHERE key = 'sk-relay-valid'`).Scan(&active, &reason))
		assert.Zero(t, active)
		assert.Equal(t, DeactivatedBudget, reason)

		// The stored reason keeps the error on the budget path instead
		// of the generic permission one.
		_, err = store.ValidateKey(ctx, "sk-relay-valid")
		apiErr = anthropic.AsAPIError(err)
		assert.Equal(t, anthropic.ErrBudgetExceeded, apiErr.Kind)
		assert.Contains(t, apiErr.Message, "deactivated")
	})
}

func TestBudgetRollover(t *testing.T) {
	t.Parallel()
	store := openTestStore(t)
	ctx := context.Background()

	limit := 1.0
	require.NoError(t, store.CreateKey(ctx, APIKey{
		Key: "sk-relay-roll", Active: true, BudgetLimitMTD: &limit,
	}))
	require.NoError(t, store.AddBudgetUsed(ctx, "sk-relay-roll", 2.5))

	// Spend sits in a past month: validation must reset the counter
	// instead of rejecting, and archive the old spend.
	_, err := store.db.ExecContext(ctx,
		`UPDATE api_keys SET budget_mtd_month = '2025-01' WHERE key = 'sk-relay-roll'`)
	require.NoError(t, err)

	key, err := store.ValidateKey(ctx, "sk-relay-roll")
	require.NoError(t, err)
	assert.Zero(t, key.BudgetUsedMTD)
	assert.Equal(t, monthKey(time.Now()), key.BudgetMonth)

	var archived float64
	require.NoError(t, store.db.QueryRowContext(ctx,
		`SELECT used FROM budget_history WHERE key = 'sk-relay-roll' AND month = '2025-01'`).Scan(&archived))
	assert.Equal(t, 2.5, archived)

	t.Run("budget deactivation lifts with the new month", func(t *testing.T) {
		backLimit := 1.0
		require.NoError(t, store.CreateKey(ctx, APIKey{
			Key: "sk-relay-back", Active: true, BudgetLimitMTD: &backLimit,
		}))
		require.NoError(t, store.AddBudgetUsed(ctx, "sk-relay-back", 1.5))

		_, err := store.ValidateKey(ctx, "sk-relay-back")
		assert.Equal(t, anthropic.ErrBudgetExceeded, anthropic.AsAPIError(err).Kind)

		_, err = store.db.ExecContext(ctx,
			`UPDATE api_keys SET budget_mtd_month = '2025-01' WHERE key = 'sk-relay-back'`)
		require.NoError(t, err)

		key, err := store.ValidateKey(ctx, "sk-relay-back")
		require.NoError(t, err)
		assert.True(t, key.Active)
		assert.Empty(t, key.DeactivatedReason)
		assert.Zero(t, key.BudgetUsedMTD)
	})
}

func TestRecordAndAggregateUsage(t *testing.T) {
	t.Parallel()
	store := openTestStore(t)
	ctx := context.Background()

	require.NoError(t, store.CreateKey(ctx, APIKey{Key: "sk-relay-use", Active: true}))

	now := time.Now()
	for i := 0; i < 3; i++ {
		require.NoError(t, store.RecordUsage(ctx, UsageRecord{
			APIKey: "sk-relay-use", RequestID: "req_a", Model: "global.anthropic.claude-opus-4-6-v1",
			InputTokens: 100, OutputTokens: 50, Cost: 0.01, CreatedAt: now.Add(-time.Minute),
		}))
	}

	key, err := store.ValidateKey(ctx, "sk-relay-use")
	require.NoError(t, err)
	assert.InDelta(t, 0.03, key.BudgetUsedMTD, 1e-9)

	require.NoError(t, store.AggregateUsage(ctx))
	stats, err := store.UsageStats(ctx, "sk-relay-use", 10)
	require.NoError(t, err)
	require.Len(t, stats, 1)
	assert.Equal(t, 3, stats[0].Requests)
	assert.Equal(t, 300, stats[0].InputTokens)
	assert.Equal(t, 150, stats[0].OutputTokens)

	t.Run("cursor makes reruns incremental", func(t *testing.T) {
		require.NoError(t, store.AggregateUsage(ctx))
		stats, err := store.UsageStats(ctx, "sk-relay-use", 10)
		require.NoError(t, err)
		require.Len(t, stats, 1)
		assert.Equal(t, 3, stats[0].Requests)
	})
}

func TestPurgeExpiredUsage(t *testing.T) {
	t.Parallel()
	store := openTestStore(t)
	ctx := context.Background()

	require.NoError(t, store.RecordUsage(ctx, UsageRecord{
		APIKey: "k", RequestID: "r", Model: "m",
		CreatedAt: time.Now().AddDate(0, 0, -40),
	}))
	require.NoError(t, store.RecordUsage(ctx, UsageRecord{
		APIKey: "k", RequestID: "r2", Model: "m",
	}))

	purged, err := store.PurgeExpiredUsage(ctx, 30)
	require.NoError(t, err)
	assert.Equal(t, int64(1), purged)

	t.Run("disabled retention is a no-op", func(t *testing.T) {
		purged, err := store.PurgeExpiredUsage(ctx, 0)
		require.NoError(t, err)
		assert.Zero(t, purged)
	})
}

func TestResolveModel(t *testing.T) {
	t.Parallel()
	store := openTestStore(t)
	ctx := context.Background()

	t.Run("built-in default", func(t *testing.T) {
		id, err := store.ResolveModel(ctx, "claude-opus-4-6")
		require.NoError(t, err)
		assert.Equal(t, "global.anthropic.claude-opus-4-6-v1", id)
	})

	t.Run("pass-through", func(t *testing.T) {
		id, err := store.ResolveModel(ctx, "amazon.titan-text-express-v1")
		require.NoError(t, err)
		assert.Equal(t, "amazon.titan-text-express-v1", id)
	})

	t.Run("persisted mapping wins", func(t *testing.T) {
		require.NoError(t, store.SetModelMapping(ctx, "claude-opus-4-6", "us.anthropic.claude-opus-4-6-v1"))
		id, err := store.ResolveModel(ctx, "claude-opus-4-6")
		require.NoError(t, err)
		assert.Equal(t, "us.anthropic.claude-opus-4-6-v1", id)

		mappings, err := store.ListModelMappings(ctx)
		require.NoError(t, err)
		assert.Len(t, mappings, 1)

		require.NoError(t, store.DeleteModelMapping(ctx, "claude-opus-4-6"))
		id, err = store.ResolveModel(ctx, "claude-opus-4-6")
		require.NoError(t, err)
		assert.Equal(t, "global.anthropic.claude-opus-4-6-v1", id)
	})
}

func TestComputeCost(t *testing.T) {
	t.Parallel()
	store := openTestStore(t)
	ctx := context.Background()

	const model = "global.anthropic.claude-sonnet-4-5-20250929-v1:0"

	t.Run("default tier", func(t *testing.T) {
		cost, err := store.ComputeCost(ctx, model, "default", 1_000_000, 1_000_000, 0, 0)
		require.NoError(t, err)
		assert.InDelta(t, 18.0, cost, 1e-9)
	})

	t.Run("tier multipliers", func(t *testing.T) {
		flex, err := store.ComputeCost(ctx, model, "flex", 1_000_000, 0, 0, 0)
		require.NoError(t, err)
		assert.InDelta(t, 1.5, flex, 1e-9)

		priority, err := store.ComputeCost(ctx, model, "priority", 1_000_000, 0, 0, 0)
		require.NoError(t, err)
		assert.InDelta(t, 5.25, priority, 1e-9)
	})

	t.Run("cache tokens priced separately", func(t *testing.T) {
		cost, err := store.ComputeCost(ctx, model, "", 0, 0, 1_000_000, 1_000_000)
		require.NoError(t, err)
		assert.InDelta(t, 0.30+3.75, cost, 1e-9)
	})

	t.Run("unpriced model is free", func(t *testing.T) {
		cost, err := store.ComputeCost(ctx, "amazon.titan-text-express-v1", "default", 1_000_000, 0, 0, 0)
		require.NoError(t, err)
		assert.Zero(t, cost)
	})
}
