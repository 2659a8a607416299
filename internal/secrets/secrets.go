// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package secrets loads API keys and credentials from a directory of plain-text files.
// Each file in the directory represents one secret: the filename is the key name and the
// file contents (trimmed) are the value. Keys absent from the directory fall back to the
// corresponding environment variable (tavily-api-key -> TAVILY_API_KEY).
//
// Supported key files: tavily-api-key, brave-api-key, anthropic-api-key.
package secrets

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
)

// Load reads all files in dir and returns a map of filename to trimmed contents.
// A missing directory or missing files are not errors; Load returns an empty map.
// Unreadable files produce a warning but do not abort. A nil logger falls back
// to slog.Default().
func Load(dir string, log *slog.Logger) (map[string]string, error) {
	if log == nil {
		log = slog.Default()
	}

	entries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return map[string]string{}, nil
		}
		return nil, fmt.Errorf("reading secrets directory %s: %w", dir, err)
	}

	secrets := make(map[string]string)
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		name := entry.Name()
		if strings.HasPrefix(name, ".") {
			continue
		}

		data, err := os.ReadFile(filepath.Join(dir, name))
		if err != nil {
			log.Warn("could not read secret", "name", name, "err", err)
			continue
		}

		value := strings.TrimSpace(string(data))
		if value != "" {
			secrets[name] = value
		}
	}

	return secrets, nil
}

// EnvKey converts a secret file name to its environment variable form:
// "tavily-api-key" becomes "TAVILY_API_KEY".
func EnvKey(name string) string {
	return strings.ToUpper(strings.ReplaceAll(name, "-", "_"))
}

// Lookup returns the secret by name, preferring the loaded map and falling
// back to the environment. Returns "" when the key is set nowhere.
func Lookup(m map[string]string, name string) string {
	if v, ok := m[name]; ok {
		return v
	}
	return strings.TrimSpace(os.Getenv(EnvKey(name)))
}
