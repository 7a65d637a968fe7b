// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Punchcard Contributors

package store

import "errors"

// Sentinel errors for store operations, usable with errors.Is alongside the
// pcerr codes attached by backends.
var (
	ErrNotFound     = errors.New("not found")
	ErrConflict     = errors.New("conflict")
	ErrInvalidInput = errors.New("invalid input")
	ErrDatabase     = errors.New("database error")
)
