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
	"database/sql"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/teradata-labs/relay/pkg/anthropic"
)

// APIKey is one provisioned gateway key.
type APIKey struct {
	Key               string
	Name              string
	Active            bool
	DeactivatedReason string
	ServiceTier       string
	ExpiresAt         *time.Time
	BudgetLimitMTD    *float64
	BudgetUsedMTD     float64
	BudgetMonth       string
	CreatedAt         time.Time
}

// DeactivatedBudget marks a key switched off because its month-to-date
// budget ran out. The deactivation clears on the next month rollover;
// any other reason is permanent until an operator intervenes.
const DeactivatedBudget = "budget_exceeded"

// monthKey renders the month bucket used for budget rollover.
func monthKey(t time.Time) string {
	return t.UTC().Format("2006-01")
}

// CreateKey provisions a key. Used by the admin CLI and tests.
func (s *Store) CreateKey(ctx context.Context, key APIKey) error {
	var expires *int64
	if key.ExpiresAt != nil {
		v := key.ExpiresAt.Unix()
		expires = &v
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO api_keys (key, name, active, service_tier, expires_at, budget_limit_mtd, budget_used_mtd, budget_mtd_month, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		key.Key, key.Name, key.Active, orDefault(key.ServiceTier), expires,
		key.BudgetLimitMTD, key.BudgetUsedMTD, monthKey(time.Now()), time.Now().Unix(),
	)
	if err != nil {
		return fmt.Errorf("failed to create api key: %w", err)
	}
	return nil
}

func orDefault(tier string) string {
	if tier == "" {
		return "default"
	}
	return tier
}

// ValidateKey authenticates a key and enforces expiry and the
// month-to-date budget. The budget counter rolls over lazily: when the
// stored month differs from the current one, the old value is archived
// to budget_history and the counter resets, guarded by a conditional
// update so concurrent requests roll over exactly once. The rollover
// also lifts a budget deactivation, so a key switched off over budget
// comes back with the new month.
func (s *Store) ValidateKey(ctx context.Context, key string) (*APIKey, error) {
	record, err := s.getKey(ctx, key)
	if err != nil {
		return nil, err
	}

	current := monthKey(time.Now())
	if record.BudgetMonth != current {
		if err := s.rolloverBudget(ctx, record, current); err != nil {
			return nil, err
		}
		record.BudgetUsedMTD = 0
		record.BudgetMonth = current
		if !record.Active && record.DeactivatedReason == DeactivatedBudget {
			record.Active = true
			record.DeactivatedReason = ""
		}
	}

	if !record.Active {
		if record.DeactivatedReason == DeactivatedBudget {
			return nil, anthropic.NewError(anthropic.ErrBudgetExceeded,
				"API key deactivated: monthly budget exceeded")
		}
		return nil, anthropic.NewError(anthropic.ErrPermission, "API key is disabled")
	}
	if record.ExpiresAt != nil && time.Now().After(*record.ExpiresAt) {
		return nil, anthropic.NewError(anthropic.ErrPermission, "API key has expired")
	}

	if record.BudgetLimitMTD != nil && record.BudgetUsedMTD >= *record.BudgetLimitMTD {
		s.deactivateForBudget(ctx, record.Key)
		return nil, anthropic.NewError(anthropic.ErrBudgetExceeded, fmt.Sprintf(
			"monthly budget exceeded: %.4f of %.4f USD used", record.BudgetUsedMTD, *record.BudgetLimitMTD))
	}
	return record, nil
}

// deactivateForBudget switches a key off once its budget runs out, so
// later requests fail on the stored reason instead of re-deriving it.
func (s *Store) deactivateForBudget(ctx context.Context, key string) {
	_, err := s.db.ExecContext(ctx, `
		UPDATE api_keys SET active = 0, deactivated_reason = ?
		WHERE key = ? AND active = 1`,
		DeactivatedBudget, key)
	if err != nil {
		s.logger.Warn("failed to deactivate key over budget", zap.Error(err))
	}
}

func (s *Store) getKey(ctx context.Context, key string) (*APIKey, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT key, name, active, deactivated_reason, service_tier, expires_at, budget_limit_mtd, budget_used_mtd, budget_mtd_month, created_at
		FROM api_keys WHERE key = ?`, key)

	var (
		record    APIKey
		active    int
		expires   sql.NullInt64
		limit     sql.NullFloat64
		createdAt int64
	)
	err := row.Scan(&record.Key, &record.Name, &active, &record.DeactivatedReason, &record.ServiceTier,
		&expires, &limit, &record.BudgetUsedMTD, &record.BudgetMonth, &createdAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, anthropic.NewError(anthropic.ErrAuthentication, "invalid API key")
	}
	if err != nil {
		return nil, fmt.Errorf("failed to look up api key: %w", err)
	}

	record.Active = active != 0
	record.CreatedAt = time.Unix(createdAt, 0)
	if expires.Valid {
		t := time.Unix(expires.Int64, 0)
		record.ExpiresAt = &t
	}
	if limit.Valid {
		record.BudgetLimitMTD = &limit.Float64
	}
	return &record, nil
}

// rolloverBudget archives last month's spend and resets the counter.
// The WHERE clause on the stored month makes concurrent rollovers a
// no-op for all but the first.
func (s *Store) rolloverBudget(ctx context.Context, record *APIKey, current string) error {
	res, err := s.db.ExecContext(ctx, `
		UPDATE api_keys SET budget_used_mtd = 0, budget_mtd_month = ?,
			active = CASE WHEN deactivated_reason = ? THEN 1 ELSE active END,
			deactivated_reason = CASE WHEN deactivated_reason = ? THEN '' ELSE deactivated_reason END
		WHERE key = ? AND budget_mtd_month = ?`,
		current, DeactivatedBudget, DeactivatedBudget, record.Key, record.BudgetMonth)
	if err != nil {
		return fmt.Errorf("failed to roll over budget: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return nil
	}
	if record.BudgetMonth != "" && record.BudgetUsedMTD > 0 {
		_, err = s.db.ExecContext(ctx, `
			INSERT INTO budget_history (key, month, used) VALUES (?, ?, ?)
			ON CONFLICT(key, month) DO UPDATE SET used = excluded.used`,
			record.Key, record.BudgetMonth, record.BudgetUsedMTD)
		if err != nil {
			s.logger.Warn("failed to archive budget history",
				zap.String("key_name", record.Name), zap.Error(err))
		}
	}
	return nil
}

// AddBudgetUsed charges cost against the key's month-to-date budget.
func (s *Store) AddBudgetUsed(ctx context.Context, key string, cost float64) error {
	if cost <= 0 {
		return nil
	}
	_, err := s.db.ExecContext(ctx,
		`UPDATE api_keys SET budget_used_mtd = budget_used_mtd + ? WHERE key = ?`, cost, key)
	if err != nil {
		return fmt.Errorf("failed to update budget: %w", err)
	}
	return nil
}
