// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Punchcard Contributors

package main

import (
	"errors"
	"log/slog"

	"github.com/joho/godotenv"
	"github.com/punchcard-dev/punchcard/internal/config"
	"github.com/punchcard-dev/punchcard/internal/secrets"
	pcerr "github.com/punchcard-dev/punchcard/pkg/errors"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

// NewRootCmd creates the root punchcard command with all subcommands registered.
func NewRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:           "punchcard",
		Short:         "Punchcard offline clock terminal",
		Long:          "Punchcard identifies people by face embedding, queues clock events offline, and syncs them to the backend when it is reachable.",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			// A missing .env is normal.
			_ = godotenv.Load()
			if err := initViper(cmd); err != nil {
				return err
			}
			setupLogging(cmd)
			return nil
		},
	}

	root.PersistentFlags().StringP("config", "c", "", "path to config file")
	root.PersistentFlags().String("data-dir", "", "path to data directory")
	root.PersistentFlags().BoolP("verbose", "v", false, "enable verbose output")

	root.AddCommand(
		newVersionCmd(),
		newRegisterCmd(),
		newStartCmd(),
		newSyncCmd(),
		newIdentifyCmd(),
		newClockCmd(),
		newPendingCmd(),
		newPurgeCmd(),
		newStatusCmd(),
		newResetCmd(),
		newSecretCmd(),
		newDoctorCmd(),
	)

	return root
}

// initViper sets up the global Viper with defaults, env bindings, flag
// bindings, and optional config file so the standard precedence
// (flag > env > file > defaults) is handled uniformly.
func initViper(cmd *cobra.Command) error {
	v := viper.GetViper()

	config.SetDefaults(v)
	config.SetupEnv(v)

	if cfgFile, _ := cmd.Flags().GetString("config"); cfgFile != "" {
		v.SetConfigFile(cfgFile)
		if err := v.ReadInConfig(); err != nil {
			return pcerr.Errorf(pcerr.CodeConfigLoadReadFailure, "reading config file: %w", err)
		}
	} else {
		// SetConfigType stays unset: with it Viper also tries the bare
		// name, which collides with a ./punchcard binary.
		v.SetConfigName("punchcard")
		v.AddConfigPath(".")
		v.AddConfigPath("$HOME/.config/punchcard")
		v.AddConfigPath("/etc/punchcard")
		if err := v.ReadInConfig(); err != nil {
			var notFound viper.ConfigFileNotFoundError
			if !errors.As(err, &notFound) {
				return pcerr.Errorf(pcerr.CodeConfigLoadReadFailure, "reading config: %w", err)
			}
			if path := config.BootstrapConfig(); path != "" {
				v.SetConfigFile(path)
				if err := v.ReadInConfig(); err != nil {
					return pcerr.Errorf(pcerr.CodeConfigLoadReadFailure, "reading bootstrapped config: %w", err)
				}
			}
		}
	}

	if err := v.BindPFlag("storage.data_dir", cmd.Root().PersistentFlags().Lookup("data-dir")); err != nil {
		return pcerr.Errorf(pcerr.CodeCLISetupFailure, "binding data-dir flag: %w", err)
	}
	if err := v.BindPFlag("verbose", cmd.Root().PersistentFlags().Lookup("verbose")); err != nil {
		return pcerr.Errorf(pcerr.CodeCLISetupFailure, "binding verbose flag: %w", err)
	}

	return nil
}

func setupLogging(cmd *cobra.Command) {
	level := slog.LevelInfo
	if viper.GetBool("verbose") {
		level = slog.LevelDebug
	}
	handler := slog.NewTextHandler(cmd.ErrOrStderr(), &slog.HandlerOptions{Level: level})
	slog.SetDefault(slog.New(handler))
}

// loadConfig resolves keyring:// references and decodes the global viper
// into a validated Config. The device API key may legitimately be missing
// before registration, so unresolved keys only warn.
func loadConfig() (*config.Config, error) {
	v := viper.GetViper()
	config.WarnInsecurePermissions(v.ConfigFileUsed())

	if unresolved := secrets.ResolveViperSecrets(v, secretStoreFactory()); len(unresolved) > 0 {
		slog.Debug("config keys left unresolved", "keys", unresolved)
	}
	return config.FromViper(v)
}
