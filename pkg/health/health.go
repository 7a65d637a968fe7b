// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Punchcard Contributors

// Package health holds the reachability snapshot shared by the sync layer
// and the local API.
package health

import "time"

// Metrics is a point-in-time view of the remote authority's health, safe to
// serialize to JSON.
type Metrics struct {
	FailureCount  int64      `json:"failure_count"`
	LastFailureAt *time.Time `json:"last_failure_at,omitempty"`
	CooldownUntil *time.Time `json:"cooldown_until,omitempty"`
	Available     bool       `json:"available"`
}
