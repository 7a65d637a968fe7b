// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Punchcard Contributors

package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/punchcard-dev/punchcard/internal/codec"
	"github.com/punchcard-dev/punchcard/internal/secrets"
	"github.com/punchcard-dev/punchcard/internal/store"
	pcerr "github.com/punchcard-dev/punchcard/pkg/errors"
)

var _ store.EmbeddingStore = (*EmbeddingStore)(nil)

const snapshotVersion = 1

// The snapshot lives in a single row. Writing it is one statement, so a
// reader sees the old blob or the new one.
const embeddingsDDL = `
CREATE TABLE IF NOT EXISTS embedding_snapshot (
	slot         INTEGER PRIMARY KEY CHECK (slot = 1),
	key_alias    TEXT    NOT NULL,
	nonce_size   INTEGER NOT NULL,
	blob         BLOB    NOT NULL,
	record_count INTEGER NOT NULL,
	updated_at   INTEGER NOT NULL
);
`

type snapshotPayload struct {
	Version int              `cbor:"1,keyasint"`
	Records []snapshotRecord `cbor:"2,keyasint"`
}

type snapshotRecord struct {
	Identity    string    `cbor:"1,keyasint"`
	DisplayName string    `cbor:"2,keyasint"`
	Vector      []float32 `cbor:"3,keyasint"`
}

// EmbeddingStore implements store.EmbeddingStore as one sealed CBOR blob.
type EmbeddingStore struct {
	db     *sql.DB
	sealer secrets.Sealer
	alias  string

	// mu orders whole-snapshot writes against read-decrypt passes.
	mu sync.RWMutex
}

// NewEmbeddingStore opens (or creates) the snapshot database at dbPath. The
// sealing key is fetched on first use, not here.
func NewEmbeddingStore(dbPath string, sealer secrets.Sealer, keyAlias string) (*EmbeddingStore, error) {
	if sealer == nil {
		return nil, pcerr.New(pcerr.CodeStoreInvalidInput, "embedding store: sealer is required")
	}
	if keyAlias == "" {
		keyAlias = store.DefaultSnapshotKeyAlias
	}

	db, err := openDB(dbPath, embeddingsDDL)
	if err != nil {
		return nil, pcerr.Wrap(err, pcerr.CodeStoreDatabaseFailure, "opening embedding store")
	}
	return &EmbeddingStore{db: db, sealer: sealer, alias: keyAlias}, nil
}

func (s *EmbeddingStore) ReplaceAll(ctx context.Context, records []store.EmbeddingRecord) error {
	if err := store.ValidateSnapshot(records); err != nil {
		return err
	}
	if dims := store.Dimensions(records); len(dims) > 1 {
		slog.Warn("embedding snapshot mixes vector lengths", "dimensions", dims, "records", len(records))
	}
	if ids := store.Unmatchable(records); len(ids) > 0 {
		slog.Warn("embedding snapshot holds unmatchable records", "identities", ids, "records", len(records))
	}

	payload := snapshotPayload{Version: snapshotVersion, Records: make([]snapshotRecord, len(records))}
	for i, r := range records {
		payload.Records[i] = snapshotRecord{Identity: r.Identity, DisplayName: r.DisplayName, Vector: r.Vector}
	}
	plaintext, err := codec.Marshal(payload)
	if err != nil {
		return pcerr.Wrap(err, pcerr.CodeStoreSnapshotEncryptFailure, "encoding embedding snapshot")
	}
	defer clear(plaintext)

	key, err := s.sealer.GetOrCreateKey(s.alias)
	if err != nil {
		return pcerr.Wrap(err, pcerr.CodeStoreSnapshotEncryptFailure, "loading snapshot key")
	}
	nonce, ciphertext, err := s.sealer.Seal(key, plaintext)
	if err != nil {
		return pcerr.Wrap(err, pcerr.CodeStoreSnapshotEncryptFailure, "sealing embedding snapshot")
	}
	blob := make([]byte, 0, len(nonce)+len(ciphertext))
	blob = append(append(blob, nonce...), ciphertext...)

	s.mu.Lock()
	defer s.mu.Unlock()

	const q = `INSERT INTO embedding_snapshot (slot, key_alias, nonce_size, blob, record_count, updated_at)
VALUES (1, ?, ?, ?, ?, ?)
ON CONFLICT(slot) DO UPDATE SET
	key_alias = excluded.key_alias,
	nonce_size = excluded.nonce_size,
	blob = excluded.blob,
	record_count = excluded.record_count,
	updated_at = excluded.updated_at`

	if _, err := s.db.ExecContext(ctx, q, s.alias, len(nonce), blob, len(records), time.Now().UnixNano()); err != nil {
		return pcerr.Wrapf(fmt.Errorf("%w: %w", store.ErrDatabase, err), pcerr.CodeStoreDatabaseFailure, "writing embedding snapshot")
	}

	slog.Info("embedding snapshot replaced", "records", len(records))
	return nil
}

func (s *EmbeddingStore) LoadAll(ctx context.Context) []store.EmbeddingRecord {
	records, err := s.load(ctx)
	if err != nil {
		slog.Warn("embedding snapshot unreadable, treating as empty", "error", err)
		return nil
	}
	return records
}

func (s *EmbeddingStore) Get(ctx context.Context, identity string) (*store.EmbeddingRecord, error) {
	for _, r := range s.LoadAll(ctx) {
		if r.Identity == identity {
			return &r, nil
		}
	}
	return nil, pcerr.Errorf(pcerr.CodeStoreEmbeddingGetNotFound, "embedding %s: %w", identity, store.ErrNotFound)
}

func (s *EmbeddingStore) Clear(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, err := s.db.ExecContext(ctx, `DELETE FROM embedding_snapshot`); err != nil {
		return pcerr.Wrapf(fmt.Errorf("%w: %w", store.ErrDatabase, err), pcerr.CodeStoreDatabaseFailure, "clearing embedding snapshot")
	}
	slog.Info("embedding snapshot cleared")
	return nil
}

func (s *EmbeddingStore) Close() error {
	return s.db.Close()
}

func (s *EmbeddingStore) load(ctx context.Context) ([]store.EmbeddingRecord, error) {
	var (
		alias     string
		nonceSize int
		blob      []byte
	)

	s.mu.RLock()
	err := s.db.QueryRowContext(ctx,
		`SELECT key_alias, nonce_size, blob FROM embedding_snapshot WHERE slot = 1`,
	).Scan(&alias, &nonceSize, &blob)
	s.mu.RUnlock()

	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, pcerr.Wrap(err, pcerr.CodeStoreDatabaseFailure, "reading embedding snapshot")
	}
	if nonceSize <= 0 || nonceSize > len(blob) {
		return nil, pcerr.Errorf(pcerr.CodeStoreSnapshotDecryptFailure, "snapshot blob shorter than its nonce (%d < %d)", len(blob), nonceSize)
	}

	key, err := s.sealer.GetOrCreateKey(alias)
	if err != nil {
		return nil, pcerr.Wrap(err, pcerr.CodeStoreSnapshotDecryptFailure, "loading snapshot key")
	}
	plaintext, err := s.sealer.Open(key, blob[:nonceSize], blob[nonceSize:])
	if err != nil {
		return nil, pcerr.Wrap(err, pcerr.CodeStoreSnapshotDecryptFailure, "opening embedding snapshot")
	}
	defer clear(plaintext)

	var payload snapshotPayload
	if err := codec.Unmarshal(plaintext, &payload); err != nil {
		return nil, pcerr.Wrap(err, pcerr.CodeStoreSnapshotDecodeFailure, "decoding embedding snapshot")
	}
	if payload.Version != snapshotVersion {
		return nil, pcerr.Errorf(pcerr.CodeStoreSnapshotDecodeFailure, "unsupported snapshot version %d", payload.Version)
	}

	records := make([]store.EmbeddingRecord, len(payload.Records))
	for i, r := range payload.Records {
		records[i] = store.EmbeddingRecord{Identity: r.Identity, DisplayName: r.DisplayName, Vector: r.Vector}
	}
	return records, nil
}
