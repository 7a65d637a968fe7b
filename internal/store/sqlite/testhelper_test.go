// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Punchcard Contributors

package sqlite_test

import (
	"path/filepath"
	"strings"
	"testing"

	"github.com/punchcard-dev/punchcard/internal/secrets"
	"github.com/zalando/go-keyring"
)

func init() {
	keyring.MockInit()
}

func testDBPath(t *testing.T, name string) string {
	t.Helper()
	return filepath.Join(t.TempDir(), name+".db")
}

// testSealer returns a keyring-backed sealer in a service namespace unique
// to the test, so mock keyring state never leaks between tests.
func testSealer(t *testing.T) *secrets.KeyringSealer {
	t.Helper()
	service := "punchcard-test-" + strings.ReplaceAll(t.Name(), "/", "-")
	return secrets.NewKeyringSealer(secrets.NewKeyringStore(), service)
}
