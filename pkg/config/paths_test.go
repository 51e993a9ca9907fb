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

package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGetRelayDataDir(t *testing.T) {
	// Save original env var
	originalEnv := os.Getenv("RELAY_DATA_DIR")
	defer func() {
		if originalEnv != "" {
			_ = os.Setenv("RELAY_DATA_DIR", originalEnv)
		} else {
			_ = os.Unsetenv("RELAY_DATA_DIR")
		}
	}()

	t.Run("default to ~/.relay", func(t *testing.T) {
		_ = os.Unsetenv("RELAY_DATA_DIR")

		dataDir := GetRelayDataDir()

		homeDir, err := os.UserHomeDir()
		require.NoError(t, err)
		expected := filepath.Join(homeDir, ".relay")
		assert.Equal(t, expected, dataDir)
	})

	t.Run("use RELAY_DATA_DIR when set", func(t *testing.T) {
		customDir := "/custom/relay/data"
		_ = os.Setenv("RELAY_DATA_DIR", customDir)

		dataDir := GetRelayDataDir()

		assert.Equal(t, customDir, dataDir)
	})

	t.Run("expand ~ in RELAY_DATA_DIR", func(t *testing.T) {
		_ = os.Setenv("RELAY_DATA_DIR", "~/custom/.relay")

		dataDir := GetRelayDataDir()

		homeDir, err := os.UserHomeDir()
		require.NoError(t, err)
		expected := filepath.Join(homeDir, "custom", ".relay")
		assert.Equal(t, expected, dataDir)
	})

	t.Run("make relative path absolute in RELAY_DATA_DIR", func(t *testing.T) {
		_ = os.Setenv("RELAY_DATA_DIR", "relative/path")

		dataDir := GetRelayDataDir()

		// Should be absolute
		assert.True(t, filepath.IsAbs(dataDir))
		assert.True(t, strings.HasSuffix(dataDir, "relative/path") || strings.HasSuffix(dataDir, "relative\\path"))
	})
}

func TestGetRelaySubDir(t *testing.T) {
	// Save original env var
	originalEnv := os.Getenv("RELAY_DATA_DIR")
	defer func() {
		if originalEnv != "" {
			_ = os.Setenv("RELAY_DATA_DIR", originalEnv)
		} else {
			_ = os.Unsetenv("RELAY_DATA_DIR")
		}
	}()

	t.Run("return subdirectory path", func(t *testing.T) {
		_ = os.Unsetenv("RELAY_DATA_DIR")

		dbDir := GetRelaySubDir("db")

		homeDir, err := os.UserHomeDir()
		require.NoError(t, err)
		expected := filepath.Join(homeDir, ".relay", "db")
		assert.Equal(t, expected, dbDir)
	})

	t.Run("respect RELAY_DATA_DIR for subdirectories", func(t *testing.T) {
		customDir := "/custom/relay"
		_ = os.Setenv("RELAY_DATA_DIR", customDir)

		dbDir := GetRelaySubDir("db")

		expected := filepath.Join(customDir, "db")
		assert.Equal(t, expected, dbDir)
	})
}

func TestExpandPath(t *testing.T) {
	homeDir, err := os.UserHomeDir()
	require.NoError(t, err)

	tests := []struct {
		name     string
		input    string
		expected string
	}{
		{
			name:     "expand tilde",
			input:    "~/test/path",
			expected: filepath.Join(homeDir, "test", "path"),
		},
		{
			name:     "absolute path unchanged",
			input:    "/absolute/path",
			expected: "/absolute/path",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, expandPath(tt.input))
		})
	}
}

func TestFromViperDefaults(t *testing.T) {
	cfg := Default()

	assert.Equal(t, DefaultPort, cfg.Server.Port)
	assert.Equal(t, DefaultWorkers, cfg.Bedrock.Workers)
	assert.Equal(t, DefaultPTCImage, cfg.PTC.Image)
	assert.Equal(t, DefaultSessionTimeout, cfg.PTC.SessionTimeout)
	assert.True(t, cfg.PTC.NetworkDisabled)
	assert.True(t, cfg.Auth.Require)
}
