// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Punchcard Contributors

// Package matcher resolves a probe embedding to the closest enrolled
// identity by exhaustive cosine comparison.
package matcher

import (
	"context"
	"log/slog"
	"math"

	"github.com/punchcard-dev/punchcard/internal/store"
)

// Source supplies the reference snapshot. store.EmbeddingStore satisfies it.
type Source interface {
	LoadAll(ctx context.Context) []store.EmbeddingRecord
}

// Result is the outcome of a successful match. It is never persisted.
type Result struct {
	Identity    string  `json:"identity"`
	DisplayName string  `json:"display_name"`
	Confidence  float64 `json:"confidence"`
	Accepted    bool    `json:"accepted"`
}

type Matcher struct {
	src Source
}

func New(src Source) *Matcher {
	return &Matcher{src: src}
}

// Match scans every reference record and returns the best one if its score
// reaches threshold. The second return is false for an empty snapshot, for
// a best score below threshold, and when no record has the probe's length
// and a finite vector; callers must treat all three the same way. On equal scores the record
// stored first wins.
func (m *Matcher) Match(ctx context.Context, probe []float32, threshold float64) (Result, bool) {
	records := m.src.LoadAll(ctx)
	if len(records) == 0 {
		slog.Info("no reference data", "probe_len", len(probe))
		return Result{}, false
	}

	var (
		best    *store.EmbeddingRecord
		score   = math.Inf(-1)
		skipped int
	)
	for i := range records {
		if !records[i].Matchable() {
			skipped++
			slog.Debug("skipping unmatchable reference record", "identity", records[i].Identity)
			continue
		}
		s, err := Similarity(probe, records[i].Vector)
		if err != nil {
			skipped++
			slog.Debug("skipping reference record",
				"identity", records[i].Identity,
				"reference_len", len(records[i].Vector),
				"probe_len", len(probe),
			)
			continue
		}
		if s > score {
			best, score = &records[i], s
		}
	}
	if skipped > 0 {
		slog.Warn("reference records skipped",
			"skipped", skipped,
			"records", len(records),
			"probe_len", len(probe),
		)
	}

	if best == nil {
		return Result{}, false
	}
	if score < threshold {
		slog.Info("match rejected", "best_identity", best.Identity, "score", score, "threshold", threshold)
		return Result{}, false
	}

	slog.Info("match accepted", "identity", best.Identity, "score", score, "threshold", threshold)
	return Result{
		Identity:    best.Identity,
		DisplayName: best.DisplayName,
		Confidence:  score,
		Accepted:    true,
	}, true
}
