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
	"fmt"
	"time"

	"go.uber.org/zap"
)

// UsageRecord is one billed backend call.
type UsageRecord struct {
	APIKey       string
	RequestID    string
	Model        string
	InputTokens  int
	OutputTokens int
	CacheRead    int
	CacheWrite   int
	Cost         float64
	ServiceTier  string
	CreatedAt    time.Time
}

// RecordUsage appends a usage row and charges the key's budget.
func (s *Store) RecordUsage(ctx context.Context, rec UsageRecord) error {
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = time.Now()
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO usage (api_key, request_id, model, input_tokens, output_tokens, cache_read, cache_write, cost, service_tier, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		rec.APIKey, rec.RequestID, rec.Model, rec.InputTokens, rec.OutputTokens,
		rec.CacheRead, rec.CacheWrite, rec.Cost, orDefault(rec.ServiceTier), rec.CreatedAt.Unix(),
	)
	if err != nil {
		return fmt.Errorf("failed to record usage: %w", err)
	}
	return s.AddBudgetUsed(ctx, rec.APIKey, rec.Cost)
}

// PurgeExpiredUsage deletes usage rows older than the retention window.
func (s *Store) PurgeExpiredUsage(ctx context.Context, ttlDays int) (int64, error) {
	if ttlDays <= 0 {
		return 0, nil
	}
	cutoff := time.Now().AddDate(0, 0, -ttlDays).Unix()
	res, err := s.db.ExecContext(ctx, `DELETE FROM usage WHERE created_at < ?`, cutoff)
	if err != nil {
		return 0, fmt.Errorf("failed to purge usage: %w", err)
	}
	n, _ := res.RowsAffected()
	if n > 0 {
		s.logger.Info("purged expired usage rows", zap.Int64("rows", n))
	}
	return n, nil
}

// AggregateUsage rolls new usage rows into per-day, per-key, per-model
// stats. A cursor in the meta table makes each run incremental: only
// rows after the last aggregated timestamp are folded in.
func (s *Store) AggregateUsage(ctx context.Context) error {
	var cursor int64
	row := s.db.QueryRowContext(ctx,
		`SELECT value FROM meta WHERE key = 'last_aggregated_timestamp'`)
	var value string
	if err := row.Scan(&value); err == nil {
		fmt.Sscanf(value, "%d", &cursor)
	} else if err != sql.ErrNoRows {
		return fmt.Errorf("failed to read aggregation cursor: %w", err)
	}

	now := time.Now().Unix()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin aggregation: %w", err)
	}
	defer tx.Rollback()

	_, err = tx.ExecContext(ctx, `
		INSERT INTO usage_stats (api_key, day, model, requests, input_tokens, output_tokens, cost)
		SELECT api_key,
		       strftime('%Y-%m-%d', created_at, 'unixepoch') AS day,
		       model,
		       COUNT(*),
		       SUM(input_tokens),
		       SUM(output_tokens),
		       SUM(cost)
		FROM usage
		WHERE created_at > ? AND created_at <= ?
		GROUP BY api_key, day, model
		ON CONFLICT(api_key, day, model) DO UPDATE SET
			requests      = requests + excluded.requests,
			input_tokens  = input_tokens + excluded.input_tokens,
			output_tokens = output_tokens + excluded.output_tokens,
			cost          = cost + excluded.cost`,
		cursor, now)
	if err != nil {
		return fmt.Errorf("failed to aggregate usage: %w", err)
	}

	_, err = tx.ExecContext(ctx, `
		INSERT INTO meta (key, value) VALUES ('last_aggregated_timestamp', ?)
		ON CONFLICT(key) DO UPDATE SET value = excluded.value`,
		fmt.Sprintf("%d", now))
	if err != nil {
		return fmt.Errorf("failed to advance aggregation cursor: %w", err)
	}

	return tx.Commit()
}

// UsageStat is one aggregated row.
type UsageStat struct {
	APIKey       string
	Day          string
	Model        string
	Requests     int
	InputTokens  int
	OutputTokens int
	Cost         float64
}

// UsageStats returns aggregated stats for a key, newest day first.
func (s *Store) UsageStats(ctx context.Context, apiKey string, limit int) ([]UsageStat, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT api_key, day, model, requests, input_tokens, output_tokens, cost
		FROM usage_stats WHERE api_key = ?
		ORDER BY day DESC, model ASC LIMIT ?`, apiKey, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query usage stats: %w", err)
	}
	defer rows.Close()

	var stats []UsageStat
	for rows.Next() {
		var st UsageStat
		if err := rows.Scan(&st.APIKey, &st.Day, &st.Model, &st.Requests,
			&st.InputTokens, &st.OutputTokens, &st.Cost); err != nil {
			return nil, fmt.Errorf("failed to scan usage stats: %w", err)
		}
		stats = append(stats, st)
	}
	return stats, rows.Err()
}
