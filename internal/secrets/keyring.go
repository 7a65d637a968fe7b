// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Punchcard Contributors

package secrets

import (
	"encoding/json"
	"errors"
	"log/slog"
	"slices"
	"sync"

	pcerr "github.com/punchcard-dev/punchcard/pkg/errors"
	"github.com/zalando/go-keyring"
)

// go-keyring cannot enumerate entries, so each service keeps a JSON list of
// its key names under this suffix.
const keysIndexSuffix = "::keys-index"

// KeyringStore implements Store on top of the OS keyring (Keychain,
// secret-service over D-Bus, or the Windows Credential Manager).
type KeyringStore struct {
	// mu covers each entry write together with its index update.
	mu sync.RWMutex
}

func NewKeyringStore() *KeyringStore {
	return &KeyringStore{}
}

func (s *KeyringStore) Store(service, key, value string) error {
	if err := checkRef("store", service, key); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if err := keyring.Set(service, key, value); err != nil {
		return pcerr.Wrapf(err, pcerr.CodeSecretStoreFailure, "storing secret %s/%s", service, key)
	}

	return s.updateIndex(service, func(keys []string) []string {
		if slices.Contains(keys, key) {
			return keys
		}
		return append(keys, key)
	})
}

func (s *KeyringStore) Retrieve(service, key string) (string, error) {
	if err := checkRef("retrieve", service, key); err != nil {
		return "", err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	val, err := keyring.Get(service, key)
	if err != nil {
		if errors.Is(err, keyring.ErrNotFound) {
			return "", pcerr.Errorf(pcerr.CodeSecretNotFound, "secret %s/%s not found", service, key)
		}
		return "", pcerr.Wrapf(err, pcerr.CodeSecretStoreFailure, "retrieving secret %s/%s", service, key)
	}
	return val, nil
}

func (s *KeyringStore) Delete(service, key string) error {
	if err := checkRef("delete", service, key); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if err := keyring.Delete(service, key); err != nil {
		if errors.Is(err, keyring.ErrNotFound) {
			return pcerr.Errorf(pcerr.CodeSecretNotFound, "secret %s/%s not found", service, key)
		}
		return pcerr.Wrapf(err, pcerr.CodeSecretDeleteFailure, "deleting secret %s/%s", service, key)
	}

	return s.updateIndex(service, func(keys []string) []string {
		return slices.DeleteFunc(keys, func(k string) bool { return k == key })
	})
}

func (s *KeyringStore) List(service string) ([]string, error) {
	if service == "" {
		return nil, pcerr.New(pcerr.CodeSecretInvalidInput, "secret list: service must not be empty")
	}

	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.loadIndex(service)
}

func checkRef(op, service, key string) error {
	if service == "" {
		return pcerr.Errorf(pcerr.CodeSecretInvalidInput, "secret %s: service must not be empty", op)
	}
	if key == "" {
		return pcerr.Errorf(pcerr.CodeSecretInvalidInput, "secret %s: key must not be empty", op)
	}
	return nil
}

// updateIndex must be called with mu held.
func (s *KeyringStore) updateIndex(service string, mutate func([]string) []string) error {
	keys, err := s.loadIndex(service)
	if err != nil {
		return err
	}
	return s.saveIndex(service, mutate(keys))
}

func (s *KeyringStore) loadIndex(service string) ([]string, error) {
	raw, err := keyring.Get(service, service+keysIndexSuffix)
	if err != nil {
		if errors.Is(err, keyring.ErrNotFound) {
			return nil, nil
		}
		return nil, pcerr.Wrapf(err, pcerr.CodeSecretListFailure, "loading key index for service %s", service)
	}

	var keys []string
	if err := json.Unmarshal([]byte(raw), &keys); err != nil {
		return nil, pcerr.Wrapf(err, pcerr.CodeSecretListFailure, "decoding key index for service %s", service)
	}
	return keys, nil
}

func (s *KeyringStore) saveIndex(service string, keys []string) error {
	indexKey := service + keysIndexSuffix

	if len(keys) == 0 {
		if err := keyring.Delete(service, indexKey); err != nil && !errors.Is(err, keyring.ErrNotFound) {
			slog.Debug("failed to clean up empty key index", "service", service, "error", err)
		}
		return nil
	}

	data, err := json.Marshal(keys)
	if err != nil {
		return pcerr.Wrapf(err, pcerr.CodeSecretListFailure, "encoding key index for service %s", service)
	}
	if err := keyring.Set(service, indexKey, string(data)); err != nil {
		return pcerr.Wrapf(err, pcerr.CodeSecretListFailure, "saving key index for service %s", service)
	}
	return nil
}
