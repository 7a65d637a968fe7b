// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Punchcard Contributors

package secrets

import (
	"log/slog"
	"strings"

	pcerr "github.com/punchcard-dev/punchcard/pkg/errors"
	"github.com/spf13/viper"
)

const keyringScheme = "keyring://"

// IsKeyringURI reports whether value uses the keyring:// scheme.
func IsKeyringURI(value string) bool {
	return strings.HasPrefix(value, keyringScheme)
}

// KeyringURI formats a keyring://service/key reference.
func KeyringURI(service, key string) string {
	return keyringScheme + service + "/" + key
}

// ParseKeyringURI splits keyring://service/key into its parts.
func ParseKeyringURI(uri string) (service, key string, err error) {
	if !IsKeyringURI(uri) {
		return "", "", pcerr.Errorf(pcerr.CodeSecretInvalidInput, "not a keyring URI: %q", uri)
	}

	service, key, ok := strings.Cut(strings.TrimPrefix(uri, keyringScheme), "/")
	if !ok || service == "" || key == "" {
		return "", "", pcerr.Errorf(pcerr.CodeSecretInvalidInput,
			"invalid keyring URI %q: expected keyring://service/key", uri)
	}
	return service, key, nil
}

// ResolveKeyringURI returns the secret behind a keyring:// reference, or value
// unchanged when it is a literal.
func ResolveKeyringURI(store Store, value string) (string, error) {
	if !IsKeyringURI(value) {
		return value, nil
	}

	service, key, err := ParseKeyringURI(value)
	if err != nil {
		return "", err
	}

	secret, err := store.Retrieve(service, key)
	if err != nil {
		return "", pcerr.Wrapf(err, pcerr.CodeSecretResolveFailure, "resolving keyring URI %q", value)
	}
	return secret, nil
}

// ResolveViperSecrets replaces every keyring:// string in v with the stored
// secret. Keys that fail to resolve keep their URI and are returned so the
// caller can decide whether the missing secret matters.
func ResolveViperSecrets(v *viper.Viper, store Store) []string {
	var unresolved []string
	for _, key := range v.AllKeys() {
		val := v.GetString(key)
		if !IsKeyringURI(val) {
			continue
		}

		resolved, err := ResolveKeyringURI(store, val)
		if err != nil {
			slog.Warn("failed to resolve keyring URI, keeping original value",
				"config_key", key,
				"error", err,
			)
			unresolved = append(unresolved, key)
			continue
		}
		v.Set(key, resolved)
	}
	return unresolved
}
