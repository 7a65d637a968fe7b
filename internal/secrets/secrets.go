// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Punchcard Contributors

// Package secrets keeps device credentials and snapshot keys in the OS
// keyring and provides authenticated encryption backed by those keys.
package secrets

// Store provides secure secret storage operations.
type Store interface {
	// Store saves a secret value under the given service and key.
	Store(service, key, value string) error

	// Retrieve fetches the secret value for the given service and key.
	// Missing keys report pcerr.CodeSecretNotFound.
	Retrieve(service, key string) (string, error)

	// Delete removes the secret for the given service and key.
	// Missing keys report pcerr.CodeSecretNotFound.
	Delete(service, key string) error

	// List returns all key names stored under the given service.
	List(service string) ([]string, error)
}
