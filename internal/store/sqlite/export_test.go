// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Punchcard Contributors

package sqlite

import "time"

// SetQueueClock replaces the clock used to stamp synced_at.
func SetQueueClock(q *EventQueue, now func() time.Time) {
	q.now = now
}
