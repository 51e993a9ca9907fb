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

// Package config holds the typed gateway configuration and its defaults.
package config

import (
	"path/filepath"
	"time"

	"github.com/spf13/viper"
)

// Defaults for configuration values not supplied by file, flag, or env.
const (
	DefaultHost = "0.0.0.0"
	DefaultPort = 8000

	DefaultAPIKeyHeader     = "x-api-key"
	DefaultRateLimitCount   = 1000
	DefaultRateLimitWindow  = 60 * time.Second
	DefaultUsageTTLDays     = 7
	DefaultServiceTier      = "default"
	DefaultAggregateEvery   = 5 * time.Minute
	DefaultBedrockRegion    = "us-east-1"
	DefaultBedrockTimeout   = 600 * time.Second
	DefaultConnectTimeout   = 30 * time.Second
	DefaultBedrockRetries   = 3
	DefaultWorkers          = 15
	DefaultStreamDeadline   = 1800 * time.Second
	DefaultPTCImage         = "python:3.11-slim"
	DefaultSessionTimeout   = 270 * time.Second
	DefaultExecutionTimeout = 60 * time.Second
	DefaultMemoryLimitMB    = 256
)

// Config is the full gateway configuration tree.
type Config struct {
	Server    ServerConfig
	Auth      AuthConfig
	RateLimit RateLimitConfig
	Bedrock   BedrockConfig
	Database  DatabaseConfig
	Usage     UsageConfig
	PTC       PTCConfig
	Logging   LoggingConfig
}

// ServerConfig controls the HTTP listener.
type ServerConfig struct {
	Host string
	Port int
	// StreamDeadline bounds a single SSE response.
	StreamDeadline time.Duration
}

// AuthConfig controls API key authentication.
type AuthConfig struct {
	// Header carrying the API key, default "x-api-key".
	Header string
	// MasterAPIKey bypasses the key store when matched. Empty disables.
	MasterAPIKey string
	// Require toggles authentication entirely (off for local development).
	Require bool
}

// RateLimitConfig controls the per-key sliding window limiter.
type RateLimitConfig struct {
	Enabled  bool
	Requests int
	Window   time.Duration
}

// BedrockConfig controls the backend client.
type BedrockConfig struct {
	Region          string
	Profile         string
	AccessKeyID     string
	SecretAccessKey string
	SessionToken    string
	ReadTimeout     time.Duration
	ConnectTimeout  time.Duration
	MaxRetries      int
	// Workers caps concurrent backend calls (semaphore width).
	Workers int
	// DefaultServiceTier is applied when a key has no tier of its own.
	DefaultServiceTier string
}

// DatabaseConfig locates the SQLite database backing the key, usage,
// pricing, and mapping stores.
type DatabaseConfig struct {
	Path string
}

// UsageConfig controls usage recording and rollup.
type UsageConfig struct {
	TTLDays           int
	AggregateInterval time.Duration
}

// PTCConfig controls programmatic tool calling.
type PTCConfig struct {
	Enabled          bool
	Image            string
	SessionTimeout   time.Duration
	ExecutionTimeout time.Duration
	MemoryLimitMB    int64
	NetworkDisabled  bool
	Workspace        string
}

// LoggingConfig controls the zap logger.
type LoggingConfig struct {
	Level  string
	Format string
}

// Default returns a fully-populated configuration with all defaults
// applied. FromViper starts from this and overlays bound values.
func Default() *Config {
	return &Config{
		Server: ServerConfig{
			Host:           DefaultHost,
			Port:           DefaultPort,
			StreamDeadline: DefaultStreamDeadline,
		},
		Auth: AuthConfig{
			Header:  DefaultAPIKeyHeader,
			Require: true,
		},
		RateLimit: RateLimitConfig{
			Enabled:  true,
			Requests: DefaultRateLimitCount,
			Window:   DefaultRateLimitWindow,
		},
		Bedrock: BedrockConfig{
			Region:             DefaultBedrockRegion,
			ReadTimeout:        DefaultBedrockTimeout,
			ConnectTimeout:     DefaultConnectTimeout,
			MaxRetries:         DefaultBedrockRetries,
			Workers:            DefaultWorkers,
			DefaultServiceTier: DefaultServiceTier,
		},
		Database: DatabaseConfig{
			Path: filepath.Join(GetRelayDataDir(), "relay.db"),
		},
		Usage: UsageConfig{
			TTLDays:           DefaultUsageTTLDays,
			AggregateInterval: DefaultAggregateEvery,
		},
		PTC: PTCConfig{
			Enabled:          true,
			Image:            DefaultPTCImage,
			SessionTimeout:   DefaultSessionTimeout,
			ExecutionTimeout: DefaultExecutionTimeout,
			MemoryLimitMB:    DefaultMemoryLimitMB,
			NetworkDisabled:  true,
			Workspace:        "/workspace",
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "text",
		},
	}
}

// FromViper overlays viper-bound keys onto the defaults. Keys follow the
// dotted layout documented in the README (server.port, bedrock.region, ...).
func FromViper(v *viper.Viper) *Config {
	cfg := Default()

	setString(v, "server.host", &cfg.Server.Host)
	setInt(v, "server.port", &cfg.Server.Port)
	setDuration(v, "server.stream_deadline", &cfg.Server.StreamDeadline)

	setString(v, "auth.api_key_header", &cfg.Auth.Header)
	setString(v, "auth.master_api_key", &cfg.Auth.MasterAPIKey)
	setBool(v, "auth.require", &cfg.Auth.Require)

	setBool(v, "ratelimit.enabled", &cfg.RateLimit.Enabled)
	setInt(v, "ratelimit.requests", &cfg.RateLimit.Requests)
	setDuration(v, "ratelimit.window", &cfg.RateLimit.Window)

	setString(v, "bedrock.region", &cfg.Bedrock.Region)
	setString(v, "bedrock.profile", &cfg.Bedrock.Profile)
	setString(v, "bedrock.access_key_id", &cfg.Bedrock.AccessKeyID)
	setString(v, "bedrock.secret_access_key", &cfg.Bedrock.SecretAccessKey)
	setString(v, "bedrock.session_token", &cfg.Bedrock.SessionToken)
	setDuration(v, "bedrock.read_timeout", &cfg.Bedrock.ReadTimeout)
	setDuration(v, "bedrock.connect_timeout", &cfg.Bedrock.ConnectTimeout)
	setInt(v, "bedrock.max_retries", &cfg.Bedrock.MaxRetries)
	setInt(v, "concurrency.workers", &cfg.Bedrock.Workers)
	setString(v, "tier.default", &cfg.Bedrock.DefaultServiceTier)

	setString(v, "database.path", &cfg.Database.Path)

	setInt(v, "usage.ttl_days", &cfg.Usage.TTLDays)
	setDuration(v, "usage.aggregate_interval", &cfg.Usage.AggregateInterval)

	setBool(v, "ptc.enabled", &cfg.PTC.Enabled)
	setString(v, "ptc.image", &cfg.PTC.Image)
	setDuration(v, "ptc.session_timeout", &cfg.PTC.SessionTimeout)
	setDuration(v, "ptc.execution_timeout", &cfg.PTC.ExecutionTimeout)
	setInt64(v, "ptc.memory_limit_mb", &cfg.PTC.MemoryLimitMB)
	setBool(v, "ptc.network_disabled", &cfg.PTC.NetworkDisabled)
	setString(v, "ptc.workspace", &cfg.PTC.Workspace)

	setString(v, "logging.level", &cfg.Logging.Level)
	setString(v, "logging.format", &cfg.Logging.Format)

	return cfg
}

func setString(v *viper.Viper, key string, dst *string) {
	if v.IsSet(key) {
		*dst = v.GetString(key)
	}
}

func setInt(v *viper.Viper, key string, dst *int) {
	if v.IsSet(key) {
		*dst = v.GetInt(key)
	}
}

func setInt64(v *viper.Viper, key string, dst *int64) {
	if v.IsSet(key) {
		*dst = v.GetInt64(key)
	}
}

func setBool(v *viper.Viper, key string, dst *bool) {
	if v.IsSet(key) {
		*dst = v.GetBool(key)
	}
}

func setDuration(v *viper.Viper, key string, dst *time.Duration) {
	if v.IsSet(key) {
		*dst = v.GetDuration(key)
	}
}
