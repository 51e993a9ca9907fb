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
package main

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	relayconfig "github.com/teradata-labs/relay/pkg/config"
	"github.com/teradata-labs/relay/pkg/storage"
	"go.uber.org/zap"
)

var keysCmd = &cobra.Command{
	Use:   "keys",
	Short: "Manage gateway API keys",
}

var keysCreateCmd = &cobra.Command{
	Use:   "create",
	Short: "Provision a new API key",
	RunE:  runKeysCreate,
}

func init() {
	keysCreateCmd.Flags().String("name", "", "human-readable key name")
	keysCreateCmd.Flags().String("tier", "default", "service tier (default, flex, priority)")
	keysCreateCmd.Flags().Float64("budget", 0, "monthly budget in USD (0 = unlimited)")
	keysCreateCmd.Flags().Int("expires-days", 0, "days until the key expires (0 = never)")
	_ = keysCreateCmd.MarkFlagRequired("name")

	keysCmd.AddCommand(keysCreateCmd)
	rootCmd.AddCommand(keysCmd)
}

func runKeysCreate(cmd *cobra.Command, args []string) error {
	cfg := relayconfig.FromViper(viper.GetViper())

	store, err := storage.Open(cfg.Database.Path, zap.NewNop())
	if err != nil {
		return fmt.Errorf("failed to open store: %w", err)
	}
	defer store.Close()

	name, _ := cmd.Flags().GetString("name")
	tier, _ := cmd.Flags().GetString("tier")
	budget, _ := cmd.Flags().GetFloat64("budget")
	expiresDays, _ := cmd.Flags().GetInt("expires-days")

	key := storage.APIKey{
		Key:         "sk-relay-" + strings.ReplaceAll(uuid.NewString(), "-", ""),
		Name:        name,
		Active:      true,
		ServiceTier: tier,
	}
	if budget > 0 {
		key.BudgetLimitMTD = &budget
	}
	if expiresDays > 0 {
		t := time.Now().AddDate(0, 0, expiresDays)
		key.ExpiresAt = &t
	}

	if err := store.CreateKey(context.Background(), key); err != nil {
		return err
	}

	fmt.Println(key.Key)
	return nil
}
