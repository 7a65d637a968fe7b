// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Punchcard Contributors

package matcher

import (
	"math"

	pcerr "github.com/punchcard-dev/punchcard/pkg/errors"
)

// Similarity returns the cosine similarity of a and b, accumulated in
// float64 and clamped to [-1, 1]. A zero vector has similarity 0 with
// everything. Vectors of different length are a DimensionMismatch.
func Similarity(a, b []float32) (float64, error) {
	if len(a) != len(b) {
		return 0, pcerr.New(pcerr.CodeMatcherDimensionMismatch, "vector lengths differ",
			pcerr.Field("probe_len", len(a)),
			pcerr.Field("reference_len", len(b)),
		)
	}

	var dot, normA, normB float64
	for i := range a {
		x, y := float64(a[i]), float64(b[i])
		dot += x * y
		normA += x * x
		normB += y * y
	}
	if normA == 0 || normB == 0 {
		return 0, nil
	}

	return max(-1, min(1, dot/(math.Sqrt(normA)*math.Sqrt(normB)))), nil
}

// ValidateProbe rejects probes that cannot produce a meaningful score.
func ValidateProbe(probe []float32) error {
	if len(probe) == 0 {
		return pcerr.New(pcerr.CodeMatcherProbeInvalid, "probe vector is empty")
	}
	for i, v := range probe {
		if f := float64(v); math.IsNaN(f) || math.IsInf(f, 0) {
			return pcerr.Errorf(pcerr.CodeMatcherProbeInvalid, "probe component %d is not finite", i)
		}
	}
	return nil
}
