// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Punchcard Contributors

package store

// StorageConfig controls which backend the store factory uses.
type StorageConfig struct {
	Backend          string // "sqlite" is the only backend.
	SnapshotKeyAlias string // sealed key alias; empty uses DefaultSnapshotKeyAlias.
}

const DefaultSnapshotKeyAlias = "embedding-snapshot-key"
