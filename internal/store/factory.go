// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Punchcard Contributors

package store

import (
	"sync"

	"github.com/punchcard-dev/punchcard/internal/secrets"
	pcerr "github.com/punchcard-dev/punchcard/pkg/errors"
)

// EmbeddingStoreFactory opens the snapshot store under dataPath, sealing with
// the key named keyAlias.
type EmbeddingStoreFactory func(dataPath string, sealer secrets.Sealer, keyAlias string) (EmbeddingStore, error)

// EventQueueFactory opens the event queue under dataPath.
type EventQueueFactory func(dataPath string) (EventQueue, error)

var (
	embeddingFactories = map[string]EmbeddingStoreFactory{}
	queueFactories     = map[string]EventQueueFactory{}
	factoriesMu        sync.RWMutex
)

// RegisterBackend registers factory functions for a named storage backend.
// Backend packages call this from init().
func RegisterBackend(name string, emb EmbeddingStoreFactory, q EventQueueFactory) {
	factoriesMu.Lock()
	defer factoriesMu.Unlock()
	embeddingFactories[name] = emb
	queueFactories[name] = q
}

func resolveBackend(cfg *StorageConfig) string {
	if cfg == nil || cfg.Backend == "" {
		return "sqlite"
	}
	return cfg.Backend
}

func NewEmbeddingStore(cfg *StorageConfig, dataPath string, sealer secrets.Sealer) (EmbeddingStore, error) {
	backend := resolveBackend(cfg)

	factoriesMu.RLock()
	factory, ok := embeddingFactories[backend]
	factoriesMu.RUnlock()
	if !ok {
		return nil, pcerr.Errorf(pcerr.CodeStoreBackendUnsupported, "unsupported storage backend: %q", backend)
	}

	alias := DefaultSnapshotKeyAlias
	if cfg != nil && cfg.SnapshotKeyAlias != "" {
		alias = cfg.SnapshotKeyAlias
	}
	return factory(dataPath, sealer, alias)
}

func NewEventQueue(cfg *StorageConfig, dataPath string) (EventQueue, error) {
	backend := resolveBackend(cfg)

	factoriesMu.RLock()
	factory, ok := queueFactories[backend]
	factoriesMu.RUnlock()
	if !ok {
		return nil, pcerr.Errorf(pcerr.CodeStoreBackendUnsupported, "unsupported storage backend: %q", backend)
	}
	return factory(dataPath)
}
