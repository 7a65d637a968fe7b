// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Punchcard Contributors

package config

import (
	_ "embed"
	"log/slog"
	"os"
	"path/filepath"

	pcerr "github.com/punchcard-dev/punchcard/pkg/errors"
)

//go:embed punchcard.yaml.default
var DefaultConfigYAML []byte

// DefaultConfigPath returns ~/.config/punchcard/punchcard.yaml.
func DefaultConfigPath() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", pcerr.Errorf(pcerr.CodeConfigLoadReadFailure, "resolving home directory: %w", err)
	}
	return filepath.Join(home, ".config", "punchcard", "punchcard.yaml"), nil
}

// BootstrapConfig writes the default commented config if none exists yet.
// It returns the path written, or "" when the file already existed or could
// not be written. Failures are logged and skipped.
func BootstrapConfig() string {
	cfgPath, err := DefaultConfigPath()
	if err != nil {
		slog.Debug("skipping config bootstrap", "error", err)
		return ""
	}
	return bootstrapAt(cfgPath)
}

func bootstrapAt(cfgPath string) string {
	if _, err := os.Stat(cfgPath); err == nil {
		return ""
	}

	dir := filepath.Dir(cfgPath)
	if err := os.MkdirAll(dir, 0o700); err != nil {
		slog.Debug("skipping config bootstrap: cannot create directory", "path", dir, "error", err)
		return ""
	}

	if err := os.WriteFile(cfgPath, DefaultConfigYAML, 0o600); err != nil {
		slog.Debug("skipping config bootstrap: cannot write config", "path", cfgPath, "error", err)
		return ""
	}

	slog.Info("created default config", "path", cfgPath)
	return cfgPath
}
