// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Punchcard Contributors

package main

import (
	"context"
	"fmt"
	"os"
	"runtime"
	"time"

	"github.com/punchcard-dev/punchcard/internal/config"
	"github.com/punchcard-dev/punchcard/internal/secrets"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"golang.org/x/sys/unix"
)

func newDoctorCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "doctor",
		Short: "Run diagnostics",
		Long:  "Check configuration, keyring secrets, backend reachability, the local API, and free disk space.",
		RunE:  runDoctor,
	}

	cmd.Flags().String("address", "", "local API address to check (defaults to server.listen)")

	return cmd
}

func runDoctor(cmd *cobra.Command, _ []string) error {
	w := cmd.OutOrStdout()

	cfg, cfgErr := loadConfig()
	dataDir := viper.GetString("storage.data_dir")
	addr, _ := cmd.Flags().GetString("address")
	if addr == "" {
		addr = viper.GetString("server.listen")
	}
	store := secretStoreFactory()
	service := keyringService()

	checks := []struct {
		name string
		fn   func() string
	}{
		{"Binary", checkBinary},
		{"Platform", checkPlatform},
		{"Config", func() string { return checkConfig(cfgErr) }},
		{"Device Key", func() string { return checkSecret(store, service, apiKeyName) }},
		{"Snapshot Key", func() string {
			return checkSecret(store, service, viper.GetString("keyring.snapshot_key_alias"))
		}},
		{"Backend", func() string { return checkBackend(cmd.Context(), cfg) }},
		{"Local API", func() string { return checkLocalAPI(addr) }},
		{"Disk Space", func() string { return checkDiskSpace(dataDir) }},
	}

	for _, c := range checks {
		if _, err := fmt.Fprintf(w, "%-20s %s\n", c.name+":", c.fn()); err != nil {
			return err
		}
	}

	return nil
}

func checkBinary() string {
	return fmt.Sprintf("punchcard %s (%s/%s)", version, runtime.GOOS, runtime.GOARCH)
}

func checkPlatform() string {
	return fmt.Sprintf("%s/%s, Go %s", runtime.GOOS, runtime.GOARCH, runtime.Version())
}

func checkConfig(loadErr error) string {
	if loadErr != nil {
		return fmt.Sprintf("invalid: %s", loadErr)
	}
	cfgFile := viper.ConfigFileUsed()
	if cfgFile != "" {
		return fmt.Sprintf("loaded from %s", cfgFile)
	}
	return "using defaults (no config file found)"
}

func checkSecret(store secrets.Store, service, key string) string {
	if _, err := store.Retrieve(service, key); err != nil {
		return fmt.Sprintf("missing %s/%s", service, key)
	}
	return fmt.Sprintf("present (%s/%s)", service, key)
}

func checkBackend(ctx context.Context, cfg *config.Config) string {
	if cfg == nil {
		return "skipped (config invalid)"
	}
	if cfg.Remote.BaseURL == "" {
		return "not configured (offline only)"
	}

	apiKey := cfg.Remote.APIKey
	if secrets.IsKeyringURI(apiKey) {
		apiKey = ""
	}
	authority, err := authorityFactory(cfg.Remote, apiKey)
	if err != nil {
		return fmt.Sprintf("error: %s", err)
	}

	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := authority.Ping(ctx); err != nil {
		return fmt.Sprintf("unreachable at %s: %s", cfg.Remote.BaseURL, err)
	}
	return fmt.Sprintf("reachable at %s", cfg.Remote.BaseURL)
}

func checkDiskSpace(dataDir string) string {
	path := dataDir
	if _, err := os.Stat(path); os.IsNotExist(err) {
		// Fall back to home directory if data dir doesn't exist yet.
		path, _ = os.UserHomeDir()
	}

	var stat unix.Statfs_t
	if err := unix.Statfs(path, &stat); err != nil {
		return fmt.Sprintf("unable to check: %s", err)
	}

	availBytes := stat.Bavail * uint64(stat.Bsize)
	return formatBytes(availBytes) + " available"
}

// formatBytes formats a byte count as a human-readable string.
func formatBytes(b uint64) string {
	const (
		gb = 1024 * 1024 * 1024
		mb = 1024 * 1024
	)
	switch {
	case b >= gb:
		return fmt.Sprintf("%.1f GB", float64(b)/float64(gb))
	case b >= mb:
		return fmt.Sprintf("%.1f MB", float64(b)/float64(mb))
	default:
		return fmt.Sprintf("%d bytes", b)
	}
}
