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
)

// GetRelayDataDir returns the gateway data directory.
//
// Priority:
// 1. RELAY_DATA_DIR environment variable (if set and non-empty)
// 2. ~/.relay (default)
//
// The returned path is always absolute. Tilde (~) is expanded to the user's
// home directory and relative paths are made absolute.
//
// This reads os.Getenv directly rather than viper because it is called
// during bootstrap, before the config file itself has been located.
func GetRelayDataDir() string {
	if dataDir := os.Getenv("RELAY_DATA_DIR"); dataDir != "" {
		return expandPath(dataDir)
	}

	homeDir, err := os.UserHomeDir()
	if err != nil {
		return ".relay"
	}
	return filepath.Join(homeDir, ".relay")
}

// GetRelaySubDir returns a subdirectory within the data directory.
// Example: GetRelaySubDir("db") returns ~/.relay/db.
func GetRelaySubDir(subdir string) string {
	return filepath.Join(GetRelayDataDir(), subdir)
}

// expandPath expands ~ and resolves to an absolute path.
func expandPath(path string) string {
	if strings.HasPrefix(path, "~/") {
		homeDir, err := os.UserHomeDir()
		if err != nil {
			return path
		}
		return filepath.Join(homeDir, path[2:])
	}

	absPath, err := filepath.Abs(path)
	if err != nil {
		return path
	}
	return absPath
}
