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
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/teradata-labs/relay/internal/version"
	relayconfig "github.com/teradata-labs/relay/pkg/config"
)

var cfgFile string

// rootCmd represents the base command
var rootCmd = &cobra.Command{
	Use:     "relayd",
	Short:   "Relay - Anthropic-compatible gateway for AWS Bedrock",
	Long:    `Relay (relayd) serves the Anthropic Messages API over AWS Bedrock, with streaming, token counting, API key management, and Programmatic Tool Calling in Docker sandboxes.`,
	Version: version.Get(),
}

// Execute runs the root command
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func init() {
	cobra.OnInitialize(initConfig)

	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default: $RELAY_DATA_DIR/relayd.yaml)")

	// Server flags
	rootCmd.PersistentFlags().String("host", relayconfig.DefaultHost, "HTTP listen host")
	rootCmd.PersistentFlags().Int("port", relayconfig.DefaultPort, "HTTP listen port")

	// Bedrock flags
	rootCmd.PersistentFlags().String("region", "", "AWS region (falls back to AWS_REGION)")
	rootCmd.PersistentFlags().String("profile", "", "AWS shared config profile")
	rootCmd.PersistentFlags().Int("workers", relayconfig.DefaultWorkers, "max concurrent backend calls")

	// Database flags
	defaultDBPath := filepath.Join(relayconfig.GetRelayDataDir(), "relay.db")
	rootCmd.PersistentFlags().String("db", defaultDBPath, "SQLite database path")

	// Auth flags
	rootCmd.PersistentFlags().String("master-key", "", "master API key that bypasses the key store")
	rootCmd.PersistentFlags().Bool("auth", true, "require API keys (use --auth=false for local development)")

	// PTC flags
	rootCmd.PersistentFlags().Bool("ptc", true, "enable Programmatic Tool Calling")
	rootCmd.PersistentFlags().String("ptc-image", relayconfig.DefaultPTCImage, "sandbox container image")

	// Logging flags
	rootCmd.PersistentFlags().String("log-level", "info", "log level (debug, info, warn, error)")
	rootCmd.PersistentFlags().String("log-format", "text", "log format (text, json)")

	// Bind flags to viper
	_ = viper.BindPFlag("server.host", rootCmd.PersistentFlags().Lookup("host"))
	_ = viper.BindPFlag("server.port", rootCmd.PersistentFlags().Lookup("port"))
	_ = viper.BindPFlag("bedrock.region", rootCmd.PersistentFlags().Lookup("region"))
	_ = viper.BindPFlag("bedrock.profile", rootCmd.PersistentFlags().Lookup("profile"))
	_ = viper.BindPFlag("concurrency.workers", rootCmd.PersistentFlags().Lookup("workers"))
	_ = viper.BindPFlag("database.path", rootCmd.PersistentFlags().Lookup("db"))
	_ = viper.BindPFlag("auth.master_api_key", rootCmd.PersistentFlags().Lookup("master-key"))
	_ = viper.BindPFlag("auth.require", rootCmd.PersistentFlags().Lookup("auth"))
	_ = viper.BindPFlag("ptc.enabled", rootCmd.PersistentFlags().Lookup("ptc"))
	_ = viper.BindPFlag("ptc.image", rootCmd.PersistentFlags().Lookup("ptc-image"))
	_ = viper.BindPFlag("logging.level", rootCmd.PersistentFlags().Lookup("log-level"))
	_ = viper.BindPFlag("logging.format", rootCmd.PersistentFlags().Lookup("log-format"))
}

// initConfig reads the config file and RELAY_-prefixed env variables.
func initConfig() {
	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	} else {
		viper.AddConfigPath(relayconfig.GetRelayDataDir())
		viper.SetConfigName("relayd")
		viper.SetConfigType("yaml")
	}

	viper.SetEnvPrefix("RELAY")
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	viper.AutomaticEnv()

	if err := viper.ReadInConfig(); err == nil {
		fmt.Fprintln(os.Stderr, "Using config file:", viper.ConfigFileUsed())
		// Pick up model-map and pricing edits without a restart.
		viper.WatchConfig()
	}
}
