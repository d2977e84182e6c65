package main

import (
	"bytes"
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/meigma/assetcache"
	"github.com/meigma/assetcache/config"
)

func clearEnv(t *testing.T) {
	t.Helper()
	for _, key := range []string{
		config.EnvDatabaseURL,
		config.EnvCacheDir,
		config.EnvSQLitePath,
		config.EnvStorageSecret,
		config.EnvLogLevel,
	} {
		t.Setenv(key, "")
	}
}

func runCLI(t *testing.T, args ...string) (stdout, stderr string, err error) {
	t.Helper()
	var out, errOut bytes.Buffer
	cmd := newRootCommand()
	cmd.SetArgs(args)
	cmd.SetOut(&out)
	cmd.SetErr(&errOut)
	err = cmd.ExecuteContext(context.Background())
	return out.String(), errOut.String(), err
}

type cliEnv struct {
	cacheDir    string
	sqlitePath  string
	storageRoot string
}

func (e cliEnv) args(args ...string) []string {
	return append([]string{"--cache-dir", e.cacheDir, "--log-level", "error"}, args...)
}

func newCLIEnv(t *testing.T) cliEnv {
	t.Helper()
	clearEnv(t)
	base := t.TempDir()
	return cliEnv{
		cacheDir:    filepath.Join(base, "cache"),
		sqlitePath:  filepath.Join(base, "assets.db"),
		storageRoot: filepath.Join(base, "objects"),
	}
}

func TestConfigSampleSkipsLoading(t *testing.T) {
	clearEnv(t)
	// A missing config file would fail loading.
	out, _, err := runCLI(t, "--config", filepath.Join(t.TempDir(), "missing.toml"), "config", "sample")
	require.NoError(t, err)
	assert.Contains(t, out, "[cache]")
}

func TestConfigShowReflectsFlags(t *testing.T) {
	env := newCLIEnv(t)
	out, _, err := runCLI(t, env.args("config", "show")...)
	require.NoError(t, err)
	assert.Contains(t, out, env.cacheDir)
}

func TestSeedThenPrepare(t *testing.T) {
	env := newCLIEnv(t)
	src := filepath.Join(t.TempDir(), "logo.png")
	require.NoError(t, os.WriteFile(src, []byte("not really a png"), 0o600))

	out, _, err := runCLI(t, env.args("seed",
		"--user", "user-1", "--id", "logo",
		"--sqlite", env.sqlitePath, "--storage-root", env.storageRoot, src)...)
	require.NoError(t, err)
	assert.Contains(t, out, "logo")

	out, _, err = runCLI(t, env.args("prepare",
		"--job", "job-1", "--user", "user-1",
		"--sqlite", env.sqlitePath, "--storage-root", env.storageRoot, "logo")...)
	require.NoError(t, err)

	var m assetcache.Manifest
	require.NoError(t, json.Unmarshal([]byte(out), &m))
	assert.Equal(t, "job-1", m.JobID)
	asset, ok := m.Assets["logo"]
	require.True(t, ok)
	assert.True(t, asset.Verified)
	assert.Equal(t, ".png", filepath.Ext(asset.LocalPath))

	data, err := os.ReadFile(asset.LocalPath)
	require.NoError(t, err)
	assert.Equal(t, "not really a png", string(data))
}

func TestPrepareRequiresIdentity(t *testing.T) {
	env := newCLIEnv(t)
	_, _, err := runCLI(t, env.args("prepare", "logo")...)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "--job and --user are required")
}

func TestPrepareRequiresMetadataStore(t *testing.T) {
	env := newCLIEnv(t)
	_, _, err := runCLI(t, env.args("prepare", "--job", "j", "--user", "u", "logo")...)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no metadata store configured")
}

func TestJanitorOnceAndStats(t *testing.T) {
	env := newCLIEnv(t)
	shared := filepath.Join(env.cacheDir, "shared")
	require.NoError(t, os.MkdirAll(shared, 0o750))
	require.NoError(t, os.WriteFile(filepath.Join(shared, "abc.png"), make([]byte, 2048), 0o600))

	out, _, err := runCLI(t, env.args("janitor", "once")...)
	require.NoError(t, err)
	assert.Contains(t, out, "scanned 1 files")
	assert.Contains(t, out, "removed 0 expired, 0 over budget")

	out, _, err = runCLI(t, env.args("stats")...)
	require.NoError(t, err)
	assert.Contains(t, out, "2.0 KiB")
	assert.Contains(t, out, shared)
}

func TestProbe(t *testing.T) {
	env := newCLIEnv(t)
	out, _, err := runCLI(t, env.args("probe")...)
	require.NoError(t, err)
	assert.Contains(t, out, "hard links:")
}

func TestCPUProfileWritten(t *testing.T) {
	env := newCLIEnv(t)
	profile := filepath.Join(t.TempDir(), "cpu.pprof")
	_, _, err := runCLI(t, env.args("--cpu-profile", profile, "stats")...)
	require.NoError(t, err)
	info, err := os.Stat(profile)
	require.NoError(t, err)
	assert.Positive(t, info.Size())
}
