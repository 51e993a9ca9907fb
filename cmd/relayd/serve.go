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
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"

	"github.com/teradata-labs/relay/internal/log"
	"github.com/teradata-labs/relay/pkg/bedrock"
	relayconfig "github.com/teradata-labs/relay/pkg/config"
	"github.com/teradata-labs/relay/pkg/ptc"
	"github.com/teradata-labs/relay/pkg/sandbox"
	"github.com/teradata-labs/relay/pkg/server"
	"github.com/teradata-labs/relay/pkg/storage"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the gateway HTTP server",
	Long: `Start the gateway.

The server will:
- Serve the Anthropic Messages API over AWS Bedrock
- Persist API keys, usage, and pricing in SQLite
- Run Programmatic Tool Calling in Docker sandboxes (if Docker is available)

Press Ctrl+C to gracefully shutdown.`,
	RunE: runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg := relayconfig.FromViper(viper.GetViper())

	if err := log.Init(cfg.Logging.Level, cfg.Logging.Format); err != nil {
		return err
	}
	logger := log.Logger()
	defer func() { _ = log.Sync() }()

	store, err := storage.Open(cfg.Database.Path, logger.Named("storage"))
	if err != nil {
		return fmt.Errorf("failed to open store: %w", err)
	}
	defer store.Close()

	ctx := context.Background()
	invoker, err := bedrock.NewClient(ctx, cfg.Bedrock, logger.Named("bedrock"))
	if err != nil {
		return fmt.Errorf("failed to create bedrock client: %w", err)
	}

	// PTC is best-effort at startup: a missing Docker daemon degrades the
	// gateway to plain translation instead of failing boot.
	var (
		executor *sandbox.Executor
		orch     *ptc.Orchestrator
		sessions *ptc.SessionManager
	)
	if cfg.PTC.Enabled {
		executor, err = sandbox.NewExecutor(ctx, cfg.PTC, logger.Named("sandbox"))
		if err != nil {
			logger.Warn("docker unavailable, programmatic tool calling disabled", zap.Error(err))
		} else {
			runtime := ptc.DockerSandbox{Executor: executor}
			sessions = ptc.NewSessionManager(runtime, cfg.PTC, logger.Named("ptc"))
			backend := server.NewBedrockBackend(invoker, store, logger.Named("backend"))
			orch = ptc.NewOrchestrator(backend, sessions, runtime, cfg.PTC, logger.Named("ptc"))

			pullCtx, cancel := context.WithTimeout(ctx, 5*time.Minute)
			if err := executor.EnsureImage(pullCtx); err != nil {
				logger.Warn("sandbox image pull failed, will retry on first use",
					zap.String("image", cfg.PTC.Image), zap.Error(err))
			}
			cancel()
		}
	}

	// Background jobs: usage rollup and retention.
	jobs := cron.New()
	if _, err := jobs.AddFunc(fmt.Sprintf("@every %s", cfg.Usage.AggregateInterval), func() {
		if err := store.AggregateUsage(context.Background()); err != nil {
			logger.Warn("usage aggregation failed", zap.Error(err))
		}
	}); err != nil {
		return fmt.Errorf("failed to schedule usage aggregation: %w", err)
	}
	if _, err := jobs.AddFunc("@every 1h", func() {
		if _, err := store.PurgeExpiredUsage(context.Background(), cfg.Usage.TTLDays); err != nil {
			logger.Warn("usage purge failed", zap.Error(err))
		}
	}); err != nil {
		return fmt.Errorf("failed to schedule usage purge: %w", err)
	}
	jobs.Start()

	srv := server.New(cfg, store, invoker, orch, executor, logger.Named("server"))

	errCh := make(chan error, 1)
	go func() { errCh <- srv.Start() }()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)

	select {
	case err := <-errCh:
		return err
	case sig := <-sigCh:
		logger.Info("shutting down", zap.String("signal", sig.String()))
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Warn("http shutdown incomplete", zap.Error(err))
	}
	jobs.Stop()
	if sessions != nil {
		sessions.Shutdown(shutdownCtx)
	}
	if executor != nil {
		_ = executor.Close()
	}
	logger.Info("shutdown complete")
	return nil
}
