package config

import (
	"testing"
	"time"

	"github.com/football-dw/warehouse/pkg/checkpoint"
	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const fullConfig = `
database:
  host: db.internal
  port: 6543
  name: football
  user: etl
  password: secret
  ssl_mode: require
warehouse_schema: analytics
pipeline:
  max_retries: 5
  retry_delay: 30s
  enable_snapshot: false
  checkpoint_file: state/checkpoint.json
quality:
  core_tables: [dim_player]
date_dimension:
  start: "2010-01-01"
  end: "2012-12-31"
fact_chunk_size: 1000
sources:
  player_profiles:
    file: player_profiles/player_profiles.csv
    table: player_profiles
    chunk_size: 100
`

func TestLoadFromFile(t *testing.T) {
	t.Parallel()

	fs := afero.NewMemMapFs()
	require.NoError(t, afero.WriteFile(fs, "etl.yml", []byte(fullConfig), 0o644))

	c, err := LoadFromFile(fs, "etl.yml")
	require.NoError(t, err)

	assert.Equal(t, "db.internal", c.Database.Host)
	assert.Equal(t, 6543, c.Database.Port)
	assert.Equal(t, "analytics", c.WarehouseSchema)
	assert.Equal(t, 5, c.Pipeline.MaxRetries)
	assert.Equal(t, 30*time.Second, c.Pipeline.RetryDelay)
	assert.False(t, c.Pipeline.SnapshotEnabled())
	assert.Equal(t, "state/checkpoint.json", c.Pipeline.CheckpointFile)
	assert.Equal(t, "logs", c.Pipeline.LogsDir)
	assert.Equal(t, []string{"dim_player"}, c.Quality.CoreTables)
	assert.Equal(t, 1000, c.FactChunkSize)
	assert.Equal(t, []string{"player_profiles"}, c.SourceTables())

	pg := c.Database.ToPostgres()
	assert.Equal(t, "etl", pg.Username)
	assert.Equal(t, "football", pg.Database)
	assert.Equal(t, "require", pg.SslMode)

	opts, err := c.CatalogOptions()
	require.NoError(t, err)
	assert.Equal(t, "analytics", opts.Schema)
	assert.Equal(t, time.Date(2010, 1, 1, 0, 0, 0, 0, time.UTC), opts.DateStart)
	assert.Equal(t, time.Date(2012, 12, 31, 0, 0, 0, 0, time.UTC), opts.DateEnd)
}

func TestLoadFromFile_Invalid(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		content string
	}{
		{
			name:    "bad date",
			content: "date_dimension:\n  start: 01/01/2010\n",
		},
		{
			name:    "bad ssl mode",
			content: "database:\n  ssl_mode: sometimes\n",
		},
		{
			name:    "source without table",
			content: "sources:\n  x:\n    file: x.csv\n",
		},
		{
			name:    "not yaml",
			content: "database: [",
		},
	}
	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			fs := afero.NewMemMapFs()
			require.NoError(t, afero.WriteFile(fs, "etl.yml", []byte(tt.content), 0o644))

			_, err := LoadFromFile(fs, "etl.yml")
			require.Error(t, err)
		})
	}
}

func TestLoadOrDefault_MissingFile(t *testing.T) {
	t.Parallel()

	fs := afero.NewMemMapFs()
	c, err := LoadOrDefault(fs, "etl.yml")
	require.NoError(t, err)

	assert.Equal(t, "localhost", c.Database.Host)
	assert.Equal(t, 5432, c.Database.Port)
	assert.Equal(t, "football_data_sa", c.Database.Name)
	assert.Equal(t, "football_admin", c.Database.User)
	assert.Empty(t, c.Database.Password)
	assert.Equal(t, "dw", c.WarehouseSchema)
	assert.Equal(t, 3, c.Pipeline.MaxRetries)
	assert.Equal(t, 5*time.Second, c.Pipeline.RetryDelay)
	assert.True(t, c.Pipeline.SnapshotEnabled())
	assert.Equal(t, checkpoint.DefaultFile, c.Pipeline.CheckpointFile)
	assert.Equal(t, 5000, c.FactChunkSize)
	assert.Len(t, c.Sources, 11)
	assert.Equal(t, []string{"from_date", "end_date"}, c.Sources["player_injuries"].DateColumns)
}

func TestCatalogOptions_EndBeforeStart(t *testing.T) {
	t.Parallel()

	c := Default()
	c.DateDimension = DateDimension{Start: "2020-01-01", End: "2019-01-01"}

	_, err := c.CatalogOptions()
	require.ErrorContains(t, err, "is before start")
}

func TestPersist(t *testing.T) {
	t.Parallel()

	fs := afero.NewMemMapFs()
	c, err := LoadOrDefault(fs, "project/etl.yml")
	require.NoError(t, err)
	c.Database.Password = "secret"
	require.NoError(t, c.Persist())

	reloaded, err := LoadFromFile(fs, "project/etl.yml")
	require.NoError(t, err)
	assert.Equal(t, "secret", reloaded.Database.Password)
	assert.Equal(t, c.Pipeline.RetryDelay, reloaded.Pipeline.RetryDelay)
	assert.Equal(t, c.Sources, reloaded.Sources)

	gitignore, err := afero.ReadFile(fs, "project/.gitignore")
	require.NoError(t, err)
	assert.Equal(t, "etl.yml\n", string(gitignore))

	// persisting again must not duplicate the entry
	require.NoError(t, reloaded.Persist())
	gitignore, err = afero.ReadFile(fs, "project/.gitignore")
	require.NoError(t, err)
	assert.Equal(t, "etl.yml\n", string(gitignore))
}

func TestEnsureConfigIsInGitignore_Appends(t *testing.T) {
	t.Parallel()

	fs := afero.NewMemMapFs()
	require.NoError(t, afero.WriteFile(fs, ".gitignore", []byte("logs/"), 0o644))

	require.NoError(t, ensureConfigIsInGitignore(fs, "etl.yml"))

	content, err := afero.ReadFile(fs, ".gitignore")
	require.NoError(t, err)
	assert.Equal(t, "logs/\netl.yml\n", string(content))
}
