package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/meigma/assetcache/janitor"
)

// clearEnv unsets the override variables for the duration of the test.
func clearEnv(t *testing.T) {
	t.Helper()
	for _, key := range []string{EnvDatabaseURL, EnvCacheDir, EnvSQLitePath, EnvStorageSecret, EnvLogLevel} {
		t.Setenv(key, "")
		require.NoError(t, os.Unsetenv(key))
	}
}

func writeFile(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func TestLoadDefaults(t *testing.T) {
	clearEnv(t)
	root := t.TempDir()
	t.Setenv(EnvCacheDir, root)

	cfg, err := Load("", writeFile(t, ".env", ""))
	require.NoError(t, err)

	assert.Equal(t, root, cfg.Cache.Root)
	assert.Equal(t, 8, cfg.Cache.DownloadConcurrency)
	assert.Equal(t, ByteSize(2<<30), cfg.Cache.MaxJobSize)
	assert.Equal(t, 2*time.Hour, cfg.Cache.SignedURLTTL.Std())
	assert.Equal(t, 3, cfg.Retry.MaxAttempts)
	assert.Equal(t, ByteSize(10<<30), cfg.Janitor.MaxTotalSize)
	assert.Equal(t, 7*24*time.Hour, cfg.Janitor.MaxFileAge.Std())
	assert.Equal(t, time.Hour, cfg.Janitor.CleanupInterval.Std())
	assert.False(t, cfg.Janitor.Enabled)
	assert.Equal(t, filepath.Join(root, "shared"), cfg.SharedDir())
	assert.Equal(t, filepath.Join(root, "jobs", "j1"), cfg.JobDir("j1"))
}

func TestLoadFile(t *testing.T) {
	clearEnv(t)
	root := t.TempDir()
	path := writeFile(t, "assetcache.toml", `
[cache]
root = "`+root+`"
jobs_dir = "`+filepath.Join(root, "render")+`"
download_concurrency = 4
max_job_size = "512MiB"
signed_url_ttl = "30m"

[retry]
max_attempts = 5
initial_interval = "250ms"
max_interval = "2s"

[janitor]
enabled = true
max_total_size = 1048576
max_file_age = "24h"
cleanup_interval = "10m"

[metadata]
sqlite_path = "`+filepath.Join(root, "meta.db")+`"

[logging]
level = "DEBUG"
format = "json"
`)

	cfg, err := Load(path, writeFile(t, ".env", ""))
	require.NoError(t, err)

	assert.Equal(t, 4, cfg.Cache.DownloadConcurrency)
	assert.Equal(t, ByteSize(512<<20), cfg.Cache.MaxJobSize)
	assert.Equal(t, 30*time.Minute, cfg.Cache.SignedURLTTL.Std())
	assert.Equal(t, 5, cfg.Retry.MaxAttempts)
	assert.Equal(t, 250*time.Millisecond, cfg.Retry.InitialInterval.Std())
	assert.Equal(t, 2.0, cfg.Retry.Multiplier, "unset keys keep defaults")
	assert.True(t, cfg.Janitor.Enabled)
	assert.Equal(t, ByteSize(1<<20), cfg.Janitor.MaxTotalSize)
	assert.Equal(t, filepath.Join(root, "meta.db"), cfg.Metadata.SQLitePath)
	assert.Equal(t, "debug", cfg.Logging.Level)
	assert.Equal(t, filepath.Join(root, "render", "job-9"), cfg.JobDir("job-9"))

	policy := cfg.RetryPolicy()
	assert.Equal(t, 5, policy.MaxAttempts)
	assert.Equal(t, 2*time.Second, policy.MaxInterval)

	// Manager and janitor options are constructible from the result.
	assert.Len(t, cfg.Apply("job-9", nil), 9)
	j, err := janitor.New(cfg.SharedDir(), cfg.JanitorOptions(nil)...)
	require.NoError(t, err)
	assert.Equal(t, int64(1<<20), j.Config().MaxTotalBytes)
	assert.Equal(t, 10*time.Minute, j.Config().CleanupInterval)
}

func TestLoadEnvOverrides(t *testing.T) {
	clearEnv(t)
	root := t.TempDir()
	path := writeFile(t, "assetcache.toml", `
[cache]
root = "/should/be/overridden"

[metadata]
database_url = "postgres://file"
`)
	envFile := writeFile(t, ".env", EnvDatabaseURL+"=postgres://dotenv\n"+EnvLogLevel+"=warn\n")
	t.Setenv(EnvCacheDir, root)

	cfg, err := Load(path, envFile)
	require.NoError(t, err)

	assert.Equal(t, root, cfg.Cache.Root)
	assert.Equal(t, "postgres://dotenv", cfg.Metadata.DatabaseURL)
	assert.Equal(t, "warn", cfg.Logging.Level)
}

func TestLoadProcessEnvBeatsDotEnv(t *testing.T) {
	clearEnv(t)
	t.Setenv(EnvCacheDir, t.TempDir())
	t.Setenv(EnvDatabaseURL, "postgres://process")
	envFile := writeFile(t, ".env", EnvDatabaseURL+"=postgres://dotenv\n")

	cfg, err := Load("", envFile)
	require.NoError(t, err)
	assert.Equal(t, "postgres://process", cfg.Metadata.DatabaseURL)
}

func TestLoadErrors(t *testing.T) {
	clearEnv(t)
	t.Setenv(EnvCacheDir, t.TempDir())
	envFile := writeFile(t, ".env", "")

	tests := []struct {
		name string
		toml string
	}{
		{"syntax", "[cache\n"},
		{"bad duration", "[cache]\nsigned_url_ttl = \"soon\"\n"},
		{"bad size", "[cache]\nmax_job_size = \"lots\"\n"},
		{"zero concurrency", "[cache]\ndownload_concurrency = 0\n"},
		{"zero attempts", "[retry]\nmax_attempts = 0\n"},
		{"inverted intervals", "[retry]\ninitial_interval = \"20s\"\nmax_interval = \"1s\"\n"},
		{"zero cleanup interval", "[janitor]\ncleanup_interval = \"0s\"\n"},
		{"bad level", "[logging]\nlevel = \"loud\"\n"},
		{"bad format", "[logging]\nformat = \"xml\"\n"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Load(writeFile(t, "bad.toml", tt.toml), envFile)
			require.Error(t, err)
		})
	}

	_, err := Load(filepath.Join(t.TempDir(), "missing.toml"), envFile)
	require.Error(t, err)
}

func TestSampleConfigParses(t *testing.T) {
	clearEnv(t)
	t.Setenv(EnvCacheDir, t.TempDir())

	cfg, err := Load(writeFile(t, "sample.toml", SampleConfig()), writeFile(t, ".env", ""))
	require.NoError(t, err)
	def := Default()
	assert.Equal(t, def.Cache.MaxJobSize, cfg.Cache.MaxJobSize)
	assert.Equal(t, def.Janitor.MaxFileAge, cfg.Janitor.MaxFileAge)
}

func TestByteSizeText(t *testing.T) {
	t.Parallel()

	var b ByteSize
	require.NoError(t, b.UnmarshalText([]byte("10GiB")))
	assert.Equal(t, ByteSize(10<<30), b)
	require.NoError(t, b.UnmarshalText([]byte("1500")))
	assert.Equal(t, ByteSize(1500), b)
	assert.Equal(t, "1.5 KiB", b.String())
	require.Error(t, b.UnmarshalText([]byte("many")))
}

func TestMarshalRoundTrip(t *testing.T) {
	clearEnv(t)
	root := t.TempDir()
	t.Setenv(EnvCacheDir, root)

	def := Default()
	def.Cache.Root = root
	data, err := def.Marshal()
	require.NoError(t, err)

	cfg, err := Load(writeFile(t, "out.toml", string(data)), writeFile(t, ".env", ""))
	require.NoError(t, err)
	assert.Equal(t, def.Cache.MaxJobSize, cfg.Cache.MaxJobSize)
	assert.Equal(t, def.Retry, cfg.Retry)
	assert.Equal(t, def.Janitor, cfg.Janitor)
}
