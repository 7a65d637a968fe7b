// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Punchcard Contributors

package store

import (
	"math"
	"slices"
	"strings"

	pcerr "github.com/punchcard-dev/punchcard/pkg/errors"
)

func (k EventKind) Valid() bool {
	switch k {
	case EventKindClockIn, EventKindClockOut:
		return true
	default:
		return false
	}
}

// ParseEventKind accepts the canonical names plus the short IN/OUT forms.
func ParseEventKind(s string) (EventKind, error) {
	switch strings.ToUpper(strings.TrimSpace(s)) {
	case "CLOCK_IN", "IN":
		return EventKindClockIn, nil
	case "CLOCK_OUT", "OUT":
		return EventKindClockOut, nil
	default:
		return "", pcerr.Errorf(pcerr.CodeStoreInvalidInput, "unknown event kind %q", s)
	}
}

func (m AuthMethod) Valid() bool {
	switch m {
	case AuthMethodFace, AuthMethodPIN:
		return true
	default:
		return false
	}
}

func ParseAuthMethod(s string) (AuthMethod, error) {
	m := AuthMethod(strings.ToUpper(strings.TrimSpace(s)))
	if !m.Valid() {
		return "", pcerr.Errorf(pcerr.CodeStoreInvalidInput, "unknown auth method %q", s)
	}
	return m, nil
}

func (s SyncState) Valid() bool {
	return s == SyncStatePending || s == SyncStateSynced
}

// Validate checks the fields an event must carry before it is queued.
func (e ClockEvent) Validate() error {
	if e.ID == "" {
		return pcerr.New(pcerr.CodeStoreEventAppendInvalid, "clock event: ID is required")
	}
	if e.Identity == "" {
		return pcerr.New(pcerr.CodeStoreEventAppendInvalid, "clock event: Identity is required",
			pcerr.FieldEventID(e.ID))
	}
	if !e.Kind.Valid() {
		return pcerr.Errorf(pcerr.CodeStoreEventAppendInvalid, "clock event %s: invalid kind %q", e.ID, e.Kind)
	}
	if !e.Method.Valid() {
		return pcerr.Errorf(pcerr.CodeStoreEventAppendInvalid, "clock event %s: invalid method %q", e.ID, e.Method)
	}
	if e.EventTime.IsZero() {
		return pcerr.Errorf(pcerr.CodeStoreEventAppendInvalid, "clock event %s: EventTime is required", e.ID)
	}
	if e.CreatedAt.IsZero() {
		return pcerr.Errorf(pcerr.CodeStoreEventAppendInvalid, "clock event %s: CreatedAt is required", e.ID)
	}
	if e.State != "" && e.State != SyncStatePending {
		return pcerr.Errorf(pcerr.CodeStoreEventAppendInvalid, "clock event %s: new events must be PENDING, got %q", e.ID, e.State)
	}
	return nil
}

// Validate checks the record can be keyed. The vector is not inspected;
// see Matchable.
func (r EmbeddingRecord) Validate() error {
	if r.Identity == "" {
		return pcerr.New(pcerr.CodeStoreSnapshotInvalid, "embedding record: Identity is required")
	}
	return nil
}

// Matchable reports whether the vector is non-empty and finite. Records that
// are not matchable are still stored; the matcher never selects them.
func (r EmbeddingRecord) Matchable() bool {
	if len(r.Vector) == 0 {
		return false
	}
	for _, v := range r.Vector {
		if f := float64(v); math.IsNaN(f) || math.IsInf(f, 0) {
			return false
		}
	}
	return true
}

// ValidateSnapshot checks that every record has an identity and that
// identities are unique. Mixed vector lengths and unmatchable vectors are
// allowed; the matcher skips records it cannot score.
func ValidateSnapshot(records []EmbeddingRecord) error {
	seen := make(map[string]struct{}, len(records))
	for _, r := range records {
		if err := r.Validate(); err != nil {
			return err
		}
		if _, dup := seen[r.Identity]; dup {
			return pcerr.New(pcerr.CodeStoreSnapshotInvalid, "embedding snapshot: duplicate identity",
				pcerr.FieldIdentity(r.Identity))
		}
		seen[r.Identity] = struct{}{}
	}
	return nil
}

// Unmatchable returns the identities of records whose vector is empty or
// not finite.
func Unmatchable(records []EmbeddingRecord) []string {
	var ids []string
	for _, r := range records {
		if !r.Matchable() {
			ids = append(ids, r.Identity)
		}
	}
	return ids
}

// Dimensions returns the distinct vector lengths in records, in first-seen
// order.
func Dimensions(records []EmbeddingRecord) []int {
	var dims []int
	for _, r := range records {
		if !slices.Contains(dims, len(r.Vector)) {
			dims = append(dims, len(r.Vector))
		}
	}
	return dims
}
