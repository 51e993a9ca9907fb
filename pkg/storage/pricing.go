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
)

// Pricing holds per-million-token USD rates for one model.
type Pricing struct {
	Model             string
	InputPerMTok      float64
	OutputPerMTok     float64
	CacheReadPerMTok  float64
	CacheWritePerMTok float64
}

// tierMultipliers scale costs by service tier.
var tierMultipliers = map[string]float64{
	"default":  1.0,
	"flex":     0.5,
	"priority": 1.75,
}

// defaultPricing seeds the pricing table on first open, keyed by the
// resolved Bedrock model id. Rates are USD per million tokens.
var defaultPricing = []Pricing{
	{Model: "global.anthropic.claude-opus-4-6-v1", InputPerMTok: 15.0, OutputPerMTok: 75.0, CacheReadPerMTok: 1.50, CacheWritePerMTok: 18.75},
	{Model: "global.anthropic.claude-opus-4-5-20251101-v1:0", InputPerMTok: 15.0, OutputPerMTok: 75.0, CacheReadPerMTok: 1.50, CacheWritePerMTok: 18.75},
	{Model: "global.anthropic.claude-sonnet-4-5-20250929-v1:0", InputPerMTok: 3.0, OutputPerMTok: 15.0, CacheReadPerMTok: 0.30, CacheWritePerMTok: 3.75},
	{Model: "global.anthropic.claude-haiku-4-5-20251001-v1:0", InputPerMTok: 1.0, OutputPerMTok: 5.0, CacheReadPerMTok: 0.10, CacheWritePerMTok: 1.25},
	{Model: "us.anthropic.claude-3-5-haiku-20241022-v1:0", InputPerMTok: 0.8, OutputPerMTok: 4.0, CacheReadPerMTok: 0.08, CacheWritePerMTok: 1.0},
}

// SetPricing upserts rates for a model.
func (s *Store) SetPricing(ctx context.Context, p Pricing) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO model_pricing (model, input_per_mtok, output_per_mtok, cache_read_per_mtok, cache_write_per_mtok)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(model) DO UPDATE SET
			input_per_mtok       = excluded.input_per_mtok,
			output_per_mtok      = excluded.output_per_mtok,
			cache_read_per_mtok  = excluded.cache_read_per_mtok,
			cache_write_per_mtok = excluded.cache_write_per_mtok`,
		p.Model, p.InputPerMTok, p.OutputPerMTok, p.CacheReadPerMTok, p.CacheWritePerMTok)
	if err != nil {
		return fmt.Errorf("failed to set pricing: %w", err)
	}
	return nil
}

// GetPricing returns rates for a model, or nil if none are configured.
func (s *Store) GetPricing(ctx context.Context, model string) (*Pricing, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT model, input_per_mtok, output_per_mtok, cache_read_per_mtok, cache_write_per_mtok
		FROM model_pricing WHERE model = ?`, model)

	var p Pricing
	err := row.Scan(&p.Model, &p.InputPerMTok, &p.OutputPerMTok, &p.CacheReadPerMTok, &p.CacheWritePerMTok)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to look up pricing: %w", err)
	}
	return &p, nil
}

// ComputeCost prices one call in USD. Unpriced models cost zero so
// requests never fail on missing rates. The service tier scales the
// total.
func (s *Store) ComputeCost(ctx context.Context, model, tier string, inputTokens, outputTokens, cacheRead, cacheWrite int) (float64, error) {
	p, err := s.GetPricing(ctx, model)
	if err != nil {
		return 0, err
	}
	if p == nil {
		return 0, nil
	}

	const mtok = 1_000_000
	cost := float64(inputTokens)/mtok*p.InputPerMTok +
		float64(outputTokens)/mtok*p.OutputPerMTok +
		float64(cacheRead)/mtok*p.CacheReadPerMTok +
		float64(cacheWrite)/mtok*p.CacheWritePerMTok

	if mult, ok := tierMultipliers[orDefault(tier)]; ok {
		cost *= mult
	}
	return cost, nil
}

// seedPricing installs default rates for models that have none.
func (s *Store) seedPricing(ctx context.Context) error {
	for _, p := range defaultPricing {
		_, err := s.db.ExecContext(ctx, `
			INSERT INTO model_pricing (model, input_per_mtok, output_per_mtok, cache_read_per_mtok, cache_write_per_mtok)
			VALUES (?, ?, ?, ?, ?)
			ON CONFLICT(model) DO NOTHING`,
			p.Model, p.InputPerMTok, p.OutputPerMTok, p.CacheReadPerMTok, p.CacheWritePerMTok)
		if err != nil {
			return fmt.Errorf("failed to seed pricing for %s: %w", p.Model, err)
		}
	}
	return nil
}
