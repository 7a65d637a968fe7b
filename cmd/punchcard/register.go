// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Punchcard Contributors

package main

import (
	"bytes"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/punchcard-dev/punchcard/internal/config"
	"github.com/punchcard-dev/punchcard/internal/remote"
	"github.com/punchcard-dev/punchcard/internal/secrets"
	pcerr "github.com/punchcard-dev/punchcard/pkg/errors"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"
)

// apiKeyName is the keyring entry holding the device API key.
const apiKeyName = "device-api-key"

// configPathForWrite returns the default config path. Exported as a
// variable so tests can override it.
var configPathForWrite = config.DefaultConfigPath

func newRegisterCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "register",
		Short: "Register this terminal with the backend",
		Long: "Register the device with the backend, keep the issued API key in the OS keyring, " +
			"and record the backend and device identity in the config file.",
		RunE: runRegister,
	}

	cmd.Flags().String("backend", "", "backend base URL (defaults to remote.base_url)")
	cmd.Flags().String("device-id", "", "device id (defaults to device.id)")
	cmd.Flags().String("location", "", "location name (defaults to device.location_name)")
	cmd.Flags().String("name", "", "human readable device name")
	cmd.Flags().Bool("force", false, "re-register even if an API key is already stored")

	return cmd
}

func runRegister(cmd *cobra.Command, _ []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	flagOr := func(name, fallback string) string {
		if v, _ := cmd.Flags().GetString(name); v != "" {
			return v
		}
		return fallback
	}
	backend := flagOr("backend", cfg.Remote.BaseURL)
	req := remote.RegisterRequest{
		DeviceID:     flagOr("device-id", cfg.Device.ID),
		LocationName: flagOr("location", cfg.Device.LocationName),
		Name:         flagOr("name", cfg.Device.Name),
	}
	if backend == "" {
		return pcerr.New(pcerr.CodeCLIInputInvalid, "backend URL is required (--backend or remote.base_url)")
	}
	if req.LocationName == "" {
		return pcerr.New(pcerr.CodeCLIInputInvalid, "location name is required (--location or device.location_name)")
	}

	store := secretStoreFactory()
	service := cfg.Keyring.Service
	force, _ := cmd.Flags().GetBool("force")
	if _, err := store.Retrieve(service, apiKeyName); err == nil && !force {
		return pcerr.Errorf(pcerr.CodeConfigAlreadyExists,
			"device already registered (keyring holds %s); use --force to register again", apiKeyName)
	}

	authority, err := authorityFactory(config.RemoteConfig{BaseURL: backend, Timeout: cfg.Remote.Timeout}, "")
	if err != nil {
		return err
	}
	reg, err := authority.Register(cmd.Context(), req)
	if err != nil {
		return err
	}

	if err := store.Store(service, apiKeyName, reg.APIKey); err != nil {
		return pcerr.Wrap(err, pcerr.CodeSecretStoreFailure, "storing device API key")
	}

	cfgPath := viper.ConfigFileUsed()
	if cfgPath == "" {
		if cfgPath, err = configPathForWrite(); err != nil {
			return err
		}
	}
	deviceID := reg.DeviceID
	if deviceID == "" {
		deviceID = req.DeviceID
	}
	locationName := reg.LocationName
	if locationName == "" {
		locationName = req.LocationName
	}
	if err := writeRegistration(cfgPath, map[string]string{
		"device.id":            deviceID,
		"device.name":          req.Name,
		"device.location_name": locationName,
		"remote.base_url":      backend,
		"remote.api_key":       secrets.KeyringURI(service, apiKeyName),
	}); err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	_, _ = fmt.Fprintf(out, "Registered device %s at %s", deviceID, locationName)
	if reg.LocationID != "" {
		_, _ = fmt.Fprintf(out, " (location id %s)", reg.LocationID)
	}
	_, _ = fmt.Fprintf(out, "\nAPI key stored in keyring as %s\nConfig written to %s\n", apiKeyName, cfgPath)
	return nil
}

// writeRegistration sets dotted keys in the YAML file at path, keeping the
// rest of the document and its comments. A missing file is created.
func writeRegistration(path string, values map[string]string) error {
	var doc yaml.Node
	raw, err := os.ReadFile(path)
	switch {
	case errors.Is(err, fs.ErrNotExist):
	case err != nil:
		return pcerr.Errorf(pcerr.CodeConfigLoadReadFailure, "reading config %s: %w", path, err)
	default:
		if err := yaml.Unmarshal(raw, &doc); err != nil {
			return pcerr.Errorf(pcerr.CodeConfigParseInvalidFormat, "parsing config %s: %w", path, err)
		}
	}

	for key, value := range values {
		setYAMLValue(&doc, strings.Split(key, "."), value)
	}

	var buf bytes.Buffer
	enc := yaml.NewEncoder(&buf)
	enc.SetIndent(2)
	if err := enc.Encode(&doc); err != nil {
		return pcerr.Errorf(pcerr.CodeConfigParseInvalidFormat, "encoding config: %w", err)
	}
	if err := enc.Close(); err != nil {
		return pcerr.Errorf(pcerr.CodeConfigParseInvalidFormat, "encoding config: %w", err)
	}

	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return pcerr.Errorf(pcerr.CodeConfigLoadReadFailure, "creating config directory: %w", err)
	}
	if err := os.WriteFile(path, buf.Bytes(), 0o600); err != nil {
		return pcerr.Errorf(pcerr.CodeConfigLoadReadFailure, "writing config to %s: %w", path, err)
	}
	return nil
}

// setYAMLValue sets a scalar at path, creating intermediate mappings and
// replacing non-mapping nodes on the way.
func setYAMLValue(doc *yaml.Node, path []string, value string) {
	if doc.Kind == 0 {
		doc.Kind = yaml.DocumentNode
	}
	if len(doc.Content) == 0 {
		doc.Content = []*yaml.Node{{Kind: yaml.MappingNode, Tag: "!!map"}}
	}

	node := doc.Content[0]
	for i, key := range path {
		if node.Kind != yaml.MappingNode {
			*node = yaml.Node{Kind: yaml.MappingNode, Tag: "!!map", HeadComment: node.HeadComment, LineComment: node.LineComment}
		}

		var child *yaml.Node
		for j := 0; j+1 < len(node.Content); j += 2 {
			if node.Content[j].Value == key {
				child = node.Content[j+1]
				break
			}
		}
		if child == nil {
			child = &yaml.Node{}
			node.Content = append(node.Content, &yaml.Node{Kind: yaml.ScalarNode, Tag: "!!str", Value: key}, child)
		}

		if i == len(path)-1 {
			child.Kind = yaml.ScalarNode
			child.Tag = "!!str"
			child.Value = value
			child.Style = 0
			child.Content = nil
		}
		node = child
	}
}
