package cmd

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/football-dw/warehouse/pkg/config"
	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/urfave/cli/v2"
)

func TestLogFileName(t *testing.T) {
	t.Parallel()

	now := time.Date(2024, 3, 10, 7, 5, 9, 0, time.UTC)
	assert.Equal(t, filepath.Join("logs", "etl_auto_20240310_070509.log"), logFileName("logs", now))
}

func TestOpenLogFile(t *testing.T) {
	t.Parallel()

	memfs := afero.NewMemMapFs()
	now := time.Date(2024, 3, 10, 7, 5, 9, 0, time.UTC)

	f, err := openLogFile(memfs, "logs/etl", now)
	require.NoError(t, err)
	_, err = f.WriteString("first\n")
	require.NoError(t, err)
	require.NoError(t, f.Close())

	f, err = openLogFile(memfs, "logs/etl", now)
	require.NoError(t, err)
	_, err = f.WriteString("second\n")
	require.NoError(t, err)
	require.NoError(t, f.Close())

	content, err := afero.ReadFile(memfs, logFileName("logs/etl", now))
	require.NoError(t, err)
	assert.Equal(t, "first\nsecond\n", string(content))
}

func TestMakeLogger(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name      string
		debug     bool
		wantDebug bool
	}{
		{name: "info level", debug: false, wantDebug: false},
		{name: "debug level", debug: true, wantDebug: true},
	}
	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			var buf bytes.Buffer
			logger := makeLogger(tt.debug, &buf)
			logger.Infow("dimension loaded", "dimension", "dim_team")
			logger.Debugf("lookup of %d keys", 42)
			_ = logger.Sync()

			out := buf.String()
			assert.Contains(t, out, "dimension loaded")
			assert.Contains(t, out, "dim_team")
			assert.Equal(t, tt.wantDebug, bytes.Contains(buf.Bytes(), []byte("lookup of 42 keys")))
		})
	}
}

func TestNewRunID(t *testing.T) {
	t.Setenv("ETL_RUN_ID", "")
	first, second := NewRunID(), NewRunID()
	assert.Len(t, first, 36)
	assert.NotEqual(t, first, second)

	t.Setenv("ETL_RUN_ID", "nightly")
	assert.Equal(t, "nightly", NewRunID())
}

var databaseEnvVars = []string{"DB_HOST", "DB_PORT", "DB_NAME", "DB_USER", "DB_PASSWORD"}

// unsetDatabaseEnv removes the database variables for the duration of the test; an empty variable would
// still count as set.
func unsetDatabaseEnv(t *testing.T) {
	t.Helper()
	for _, key := range databaseEnvVars {
		t.Setenv(key, "")
		require.NoError(t, os.Unsetenv(key))
	}
}

func runWithConfig(t *testing.T, args ...string) *config.Config {
	t.Helper()

	var loaded *config.Config
	app := &cli.App{
		Name:  "test",
		Flags: GlobalFlags(),
		Action: func(c *cli.Context) error {
			var err error
			loaded, err = loadConfig(c)
			return err
		},
	}

	require.NoError(t, app.Run(append([]string{"test"}, args...)))
	require.NotNil(t, loaded)
	return loaded
}

func TestLoadConfig_FlagsOverrideFile(t *testing.T) {
	unsetDatabaseEnv(t)

	dir := t.TempDir()
	file := filepath.Join(dir, "etl.yml")
	require.NoError(t, afero.WriteFile(afero.NewOsFs(), file, []byte("database:\n  host: from-file\n  name: football\n"), 0o644))

	cfg := runWithConfig(t, "--config", file, "--db-host", "from-flag", "--db-port", "6543")

	assert.Equal(t, "from-flag", cfg.Database.Host)
	assert.Equal(t, 6543, cfg.Database.Port)
	assert.Equal(t, "football", cfg.Database.Name)
	assert.Equal(t, "football_admin", cfg.Database.User)
}

func TestLoadConfig_EnvironmentVariables(t *testing.T) {
	unsetDatabaseEnv(t)
	t.Setenv("DB_HOST", "db.internal")
	t.Setenv("DB_USER", "loader")
	t.Setenv("DB_PASSWORD", "secret")

	cfg := runWithConfig(t, "--config", filepath.Join(t.TempDir(), "missing.yml"))

	assert.Equal(t, "db.internal", cfg.Database.Host)
	assert.Equal(t, "loader", cfg.Database.User)
	assert.Equal(t, "secret", cfg.Database.Password)
	assert.Equal(t, 5432, cfg.Database.Port)
}

func TestLoadConfig_InvalidFile(t *testing.T) {
	unsetDatabaseEnv(t)

	dir := t.TempDir()
	file := filepath.Join(dir, "etl.yml")
	require.NoError(t, afero.WriteFile(afero.NewOsFs(), file, []byte("pipeline:\n  max_retries: 100\n"), 0o644))

	app := &cli.App{
		Name:  "test",
		Flags: GlobalFlags(),
		Action: func(c *cli.Context) error {
			_, err := loadConfig(c)
			return err
		},
	}

	err := app.Run([]string{"test", "--config", file})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to load the configuration")
}
