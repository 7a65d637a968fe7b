// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Punchcard Contributors

package reconcile

import (
	"sync"
	"time"

	pcerr "github.com/punchcard-dev/punchcard/pkg/errors"
	"github.com/punchcard-dev/punchcard/pkg/health"
)

// DefaultUnavailableCooldown is how long the backend is left alone after it
// could not be reached.
const DefaultUnavailableCooldown = 30 * time.Second

// HealthTracker remembers whether the backend was reachable on the last
// attempt. After a failure it reports unavailable until the cooldown passes,
// then lets the next pass probe again.
type HealthTracker struct {
	mu           sync.RWMutex
	healthy      bool
	failedAt     time.Time
	cooldown     time.Duration
	failureCount int64
	nowFunc      func() time.Time
}

// NewHealthTracker creates a tracker that starts healthy. The cooldown must
// be positive.
func NewHealthTracker(cooldown time.Duration) (*HealthTracker, error) {
	if cooldown <= 0 {
		return nil, pcerr.Errorf(pcerr.CodeConfigValidateInvalidValue,
			"unavailable cooldown must be positive, got %s", cooldown)
	}
	return &HealthTracker{
		healthy:  true,
		cooldown: cooldown,
		nowFunc:  time.Now,
	}, nil
}

// Caller holds at least h.mu.RLock.
func (h *HealthTracker) isHealthyLocked() bool {
	if h.healthy {
		return true
	}
	return h.nowFunc().Sub(h.failedAt) >= h.cooldown
}

func (h *HealthTracker) IsHealthy() bool {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.isHealthyLocked()
}

func (h *HealthTracker) RecordSuccess() {
	h.mu.Lock()
	h.healthy = true
	h.mu.Unlock()
}

func (h *HealthTracker) RecordFailure() {
	h.mu.Lock()
	h.healthy = false
	h.failedAt = h.nowFunc()
	h.failureCount++
	h.mu.Unlock()
}

// SetNowFunc overrides the time source (for testing).
func (h *HealthTracker) SetNowFunc(fn func() time.Time) {
	h.mu.Lock()
	h.nowFunc = fn
	h.mu.Unlock()
}

// Metrics returns a point-in-time copy of the tracker state.
func (h *HealthTracker) Metrics() health.Metrics {
	h.mu.RLock()
	defer h.mu.RUnlock()

	m := health.Metrics{FailureCount: h.failureCount}
	if h.failureCount > 0 {
		t := h.failedAt
		m.LastFailureAt = &t
	}

	m.Available = h.isHealthyLocked()
	if !h.healthy {
		end := h.failedAt.Add(h.cooldown)
		m.CooldownUntil = &end
	}
	return m
}
