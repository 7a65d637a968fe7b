// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Punchcard Contributors

package main

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"runtime"
	"testing"

	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRootCommand_Help(t *testing.T) {
	root := NewRootCmd()
	buf := new(bytes.Buffer)
	root.SetOut(buf)
	root.SetArgs([]string{"--help"})

	err := root.Execute()
	require.NoError(t, err)
	for _, sub := range []string{"punchcard", "start", "register", "sync", "clock", "pending", "status", "doctor"} {
		assert.Contains(t, buf.String(), sub)
	}
}

func TestVersionCommand(t *testing.T) {
	env := newCLIEnv(t, "")

	out, err := env.run(t, "version")
	require.NoError(t, err)
	assert.Contains(t, out, "punchcard dev")
	assert.Contains(t, out, runtime.GOOS+"/"+runtime.GOARCH)
}

func TestVersionCommand_JSON(t *testing.T) {
	env := newCLIEnv(t, "")

	out, err := env.run(t, "version", "--json")
	require.NoError(t, err)

	var info buildInfo
	require.NoError(t, json.Unmarshal([]byte(out), &info))
	assert.Equal(t, "dev", info.Version)
	assert.Equal(t, runtime.Version(), info.Go)
	assert.NotEmpty(t, info.Commit)
}

func TestRootCommand_MissingConfigFile(t *testing.T) {
	t.Cleanup(viper.Reset)
	root := NewRootCmd()
	buf := new(bytes.Buffer)
	root.SetOut(buf)
	root.SetErr(buf)
	root.SetArgs([]string{"status", "--config", "/nonexistent/path.yaml"})

	err := root.Execute()
	assert.Error(t, err)
}

func TestRootCommand_BootstrapsDefaultConfig(t *testing.T) {
	home := t.TempDir()
	t.Setenv("HOME", home)
	t.Chdir(t.TempDir())
	t.Cleanup(viper.Reset)
	viper.Reset()

	root := NewRootCmd()
	root.SetOut(new(bytes.Buffer))
	root.SetErr(new(bytes.Buffer))
	root.SetArgs([]string{"version"})
	require.NoError(t, root.Execute())

	_, err := os.Stat(filepath.Join(home, ".config", "punchcard", "punchcard.yaml"))
	assert.NoError(t, err)
}

func TestRootCommand_DataDirFlagOverridesConfig(t *testing.T) {
	env := newCLIEnv(t, "")
	other := filepath.Join(env.dir, "elsewhere")

	_, err := env.run(t, "pending", "--data-dir", other)
	require.NoError(t, err)

	_, err = os.Stat(filepath.Join(other, "events.db"))
	assert.NoError(t, err)
	_, err = os.Stat(filepath.Join(env.dataDir, "events.db"))
	assert.True(t, os.IsNotExist(err))
}

func TestRootCommand_EnvOverridesConfig(t *testing.T) {
	env := newCLIEnv(t, "")
	t.Setenv("PUNCHCARD_DEVICE_ID", "kiosk-env")

	out, err := env.run(t, "status")
	require.NoError(t, err)
	assert.Contains(t, out, "kiosk-env")
}

func TestRootCommand_InvalidConfigFails(t *testing.T) {
	env := newCLIEnv(t, "matching:\n  threshold: 3\n")

	_, err := env.run(t, "pending")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "matching.threshold")
}
