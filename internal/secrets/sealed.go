// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Punchcard Contributors

package secrets

import (
	"crypto/cipher"
	"crypto/rand"
	"encoding/base64"
	"sync"

	pcerr "github.com/punchcard-dev/punchcard/pkg/errors"
	"golang.org/x/crypto/chacha20poly1305"
)

// KeyHandle names a symmetric key held by a Sealer. It never carries key
// material.
type KeyHandle struct {
	alias string
}

func (h KeyHandle) Alias() string { return h.alias }

// Sealer encrypts and authenticates payloads under named keys that never
// leave the secret store in plaintext form at rest.
type Sealer interface {
	// GetOrCreateKey returns the key under alias, generating it on first use.
	GetOrCreateKey(alias string) (KeyHandle, error)
	// Seal encrypts plaintext with a fresh random nonce.
	Seal(key KeyHandle, plaintext []byte) (nonce, ciphertext []byte, err error)
	// Open authenticates and decrypts. Tampered input or a missing key fails
	// with pcerr.CodeSecretOpenFailure.
	Open(key KeyHandle, nonce, ciphertext []byte) ([]byte, error)
}

// KeyringSealer implements Sealer with ChaCha20-Poly1305 keys
// stored base64-encoded in a Store. The alias is bound as associated data
// so a blob sealed under one key cannot be opened as another.
type KeyringSealer struct {
	store   Store
	service string

	mu    sync.Mutex
	aeads map[string]cipher.AEAD
}

func NewKeyringSealer(store Store, service string) *KeyringSealer {
	return &KeyringSealer{
		store:   store,
		service: service,
		aeads:   make(map[string]cipher.AEAD),
	}
}

func (s *KeyringSealer) GetOrCreateKey(alias string) (KeyHandle, error) {
	if alias == "" {
		return KeyHandle{}, pcerr.New(pcerr.CodeSecretInvalidInput, "key alias must not be empty")
	}
	if _, err := s.aead(alias, true); err != nil {
		return KeyHandle{}, err
	}
	return KeyHandle{alias: alias}, nil
}

func (s *KeyringSealer) Seal(key KeyHandle, plaintext []byte) ([]byte, []byte, error) {
	aead, err := s.aead(key.alias, false)
	if err != nil {
		return nil, nil, pcerr.Wrap(err, pcerr.CodeSecretSealFailure, "loading sealing key")
	}

	nonce := make([]byte, aead.NonceSize())
	if _, err := rand.Read(nonce); err != nil {
		return nil, nil, pcerr.Wrap(err, pcerr.CodeSecretSealFailure, "generating nonce")
	}
	return nonce, aead.Seal(nil, nonce, plaintext, []byte(key.alias)), nil
}

func (s *KeyringSealer) Open(key KeyHandle, nonce, ciphertext []byte) ([]byte, error) {
	aead, err := s.aead(key.alias, false)
	if err != nil {
		return nil, pcerr.Wrap(err, pcerr.CodeSecretOpenFailure, "loading sealing key")
	}
	if len(nonce) != aead.NonceSize() {
		return nil, pcerr.Errorf(pcerr.CodeSecretOpenFailure, "nonce is %d bytes, want %d", len(nonce), aead.NonceSize())
	}

	plaintext, err := aead.Open(nil, nonce, ciphertext, []byte(key.alias))
	if err != nil {
		return nil, pcerr.Wrap(err, pcerr.CodeSecretOpenFailure, "authenticating sealed payload")
	}
	return plaintext, nil
}

// DeleteKey drops the key under alias. Anything sealed with it becomes
// unreadable.
func (s *KeyringSealer) DeleteKey(alias string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	delete(s.aeads, alias)
	err := s.store.Delete(s.service, alias)
	if pcerr.IsNotFound(err) {
		return nil
	}
	return err
}

func (s *KeyringSealer) aead(alias string, create bool) (cipher.AEAD, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if aead, ok := s.aeads[alias]; ok {
		return aead, nil
	}

	key, err := s.loadKey(alias, create)
	if err != nil {
		return nil, err
	}
	defer clear(key)

	aead, err := chacha20poly1305.New(key)
	if err != nil {
		return nil, pcerr.Wrapf(err, pcerr.CodeSecretKeyInvalid, "initialising cipher for key %q", alias)
	}
	s.aeads[alias] = aead
	return aead, nil
}

func (s *KeyringSealer) loadKey(alias string, create bool) ([]byte, error) {
	encoded, err := s.store.Retrieve(s.service, alias)
	switch {
	case err == nil:
		key, decErr := base64.StdEncoding.DecodeString(encoded)
		if decErr != nil || len(key) != chacha20poly1305.KeySize {
			clear(key)
			return nil, pcerr.Errorf(pcerr.CodeSecretKeyInvalid, "stored key %q is malformed", alias)
		}
		return key, nil
	case pcerr.IsNotFound(err) && create:
	default:
		return nil, err
	}

	key := make([]byte, chacha20poly1305.KeySize)
	if _, err := rand.Read(key); err != nil {
		return nil, pcerr.Wrap(err, pcerr.CodeSecretKeyInvalid, "generating key")
	}
	if err := s.store.Store(s.service, alias, base64.StdEncoding.EncodeToString(key)); err != nil {
		clear(key)
		return nil, err
	}
	return key, nil
}
