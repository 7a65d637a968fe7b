// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Punchcard Contributors

package sqlite

import (
	"path/filepath"

	"github.com/punchcard-dev/punchcard/internal/secrets"
	"github.com/punchcard-dev/punchcard/internal/store"
)

const (
	EmbeddingsFile = "embeddings.db"
	EventsFile     = "events.db"
)

func init() {
	store.RegisterBackend("sqlite", newEmbeddingStore, newEventQueue)
}

func newEmbeddingStore(dataPath string, sealer secrets.Sealer, keyAlias string) (store.EmbeddingStore, error) {
	s, err := NewEmbeddingStore(filepath.Join(dataPath, EmbeddingsFile), sealer, keyAlias)
	if err != nil {
		return nil, err
	}
	return s, nil
}

func newEventQueue(dataPath string) (store.EventQueue, error) {
	q, err := NewEventQueue(filepath.Join(dataPath, EventsFile))
	if err != nil {
		return nil, err
	}
	return q, nil
}
