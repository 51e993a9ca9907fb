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

// defaultModelMapping maps Anthropic model ids onto Bedrock model ids.
// Persisted mappings in the model_mapping table take precedence; ids
// absent from both pass through unchanged.
var defaultModelMapping = map[string]string{
	"claude-opus-4-6":            "global.anthropic.claude-opus-4-6-v1",
	"claude-opus-4-5-20251101":   "global.anthropic.claude-opus-4-5-20251101-v1:0",
	"claude-sonnet-4-5-20250929": "global.anthropic.claude-sonnet-4-5-20250929-v1:0",
	"claude-haiku-4-5-20251001":  "global.anthropic.claude-haiku-4-5-20251001-v1:0",
	"claude-3-5-haiku-20241022":  "us.anthropic.claude-3-5-haiku-20241022-v1:0",
}

// ResolveModel translates an Anthropic model id to a Bedrock model id.
// Lookup order: persisted mapping, built-in defaults, pass-through.
func (s *Store) ResolveModel(ctx context.Context, model string) (string, error) {
	if model == "" {
		return model, nil
	}

	row := s.db.QueryRowContext(ctx,
		`SELECT model_id FROM model_mapping WHERE alias = ?`, model)
	var mapped string
	err := row.Scan(&mapped)
	if err == nil {
		return mapped, nil
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return "", fmt.Errorf("failed to look up model mapping: %w", err)
	}

	if mapped, ok := defaultModelMapping[model]; ok {
		return mapped, nil
	}
	return model, nil
}

// SetModelMapping upserts one alias, overriding the built-in defaults.
func (s *Store) SetModelMapping(ctx context.Context, alias, modelID string) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO model_mapping (alias, model_id) VALUES (?, ?)
		ON CONFLICT(alias) DO UPDATE SET model_id = excluded.model_id`,
		alias, modelID)
	if err != nil {
		return fmt.Errorf("failed to set model mapping: %w", err)
	}
	return nil
}

// DeleteModelMapping removes a persisted alias, restoring default or
// pass-through behavior.
func (s *Store) DeleteModelMapping(ctx context.Context, alias string) error {
	_, err := s.db.ExecContext(ctx,
		`DELETE FROM model_mapping WHERE alias = ?`, alias)
	if err != nil {
		return fmt.Errorf("failed to delete model mapping: %w", err)
	}
	return nil
}

// ListModelMappings returns all persisted aliases.
func (s *Store) ListModelMappings(ctx context.Context) (map[string]string, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT alias, model_id FROM model_mapping`)
	if err != nil {
		return nil, fmt.Errorf("failed to list model mappings: %w", err)
	}
	defer rows.Close()

	mappings := make(map[string]string)
	for rows.Next() {
		var alias, modelID string
		if err := rows.Scan(&alias, &modelID); err != nil {
			return nil, fmt.Errorf("failed to scan model mapping: %w", err)
		}
		mappings[alias] = modelID
	}
	return mappings, rows.Err()
}
