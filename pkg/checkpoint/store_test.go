package checkpoint

import (
	"testing"
	"time"

	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newStore(fs afero.Fs) *FileStore {
	s := NewFileStore(fs, "state/etl_checkpoint.json")
	s.now = func() time.Time { return time.Date(2024, 5, 1, 10, 0, 0, 0, time.FixedZone("CEST", 7200)) }
	return s
}

func TestFileStore_SaveAndGet(t *testing.T) {
	t.Parallel()

	fs := afero.NewMemMapFs()
	s := newStore(fs)

	records, err := s.All()
	require.NoError(t, err)
	assert.Empty(t, records)

	require.NoError(t, s.Save("load_dimensions", StatusFailed, map[string]any{"attempt": 1, "error": "boom"}))
	require.NoError(t, s.Save("load_dimensions", StatusSuccess, map[string]any{"attempt": 2}))
	require.NoError(t, s.Save("load_facts", StatusError, nil))

	rec, ok, err := s.Get("load_dimensions")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, StatusSuccess, rec.Status)
	assert.Equal(t, time.Date(2024, 5, 1, 8, 0, 0, 0, time.UTC), rec.Timestamp)
	assert.InDelta(t, 2, rec.Details["attempt"], 0)

	_, ok, err = s.Get("validate")
	require.NoError(t, err)
	assert.False(t, ok)

	reopened := NewFileStore(fs, "state/etl_checkpoint.json")
	records, err = reopened.All()
	require.NoError(t, err)
	assert.Len(t, records, 2)
	assert.Equal(t, StatusError, records["load_facts"].Status)

	entries, err := afero.ReadDir(fs, "state")
	require.NoError(t, err)
	assert.Len(t, entries, 1, "temporary files must not be left behind")
}

func TestFileStore_Reset(t *testing.T) {
	t.Parallel()

	fs := afero.NewMemMapFs()
	s := newStore(fs)

	require.NoError(t, s.Reset())
	require.NoError(t, s.Save(PipelineStep, StatusSuccess, nil))
	require.NoError(t, s.Reset())

	records, err := s.All()
	require.NoError(t, err)
	assert.Empty(t, records)
}

func TestFileStore_ReopenFinished(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name         string
		records      map[string]Status
		wantReopened bool
		wantSteps    []string
	}{
		{
			name:         "empty store",
			wantReopened: false,
		},
		{
			name:         "finished run is cleared",
			records:      map[string]Status{"load_dimensions": StatusSuccess, PipelineStep: StatusSuccess},
			wantReopened: true,
		},
		{
			name:         "failed run is kept",
			records:      map[string]Status{"load_dimensions": StatusSuccess, PipelineStep: StatusFailed},
			wantReopened: false,
			wantSteps:    []string{"load_dimensions", PipelineStep},
		},
		{
			name:         "unfinished run is kept",
			records:      map[string]Status{"load_dimensions": StatusSuccess},
			wantReopened: false,
			wantSteps:    []string{"load_dimensions"},
		},
	}
	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			s := newStore(afero.NewMemMapFs())
			for step, status := range tt.records {
				require.NoError(t, s.Save(step, status, nil))
			}

			reopened, err := s.ReopenFinished()
			require.NoError(t, err)
			assert.Equal(t, tt.wantReopened, reopened)

			records, err := s.All()
			require.NoError(t, err)
			steps := make([]string, 0, len(records))
			for step := range records {
				steps = append(steps, step)
			}
			assert.ElementsMatch(t, tt.wantSteps, steps)
		})
	}
}

func TestFileStore_CorruptFile(t *testing.T) {
	t.Parallel()

	fs := afero.NewMemMapFs()
	require.NoError(t, afero.WriteFile(fs, "etl_checkpoint.json", []byte("{not json"), 0o644))

	s := NewFileStore(fs, "")
	_, err := s.All()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "checkpoint file etl_checkpoint.json is corrupt")

	err = s.Save("load_facts", StatusSuccess, nil)
	require.Error(t, err)
}

func TestDecodeDetails(t *testing.T) {
	t.Parallel()

	fs := afero.NewMemMapFs()
	s := newStore(fs)
	in := AttemptDetails{RunID: "run-1", Attempt: 2, MaxAttempts: 3, Error: "timeout", DurationMs: 1500, Interrupted: true}
	require.NoError(t, s.Save("load_facts", StatusError, in.ToMap()))

	rec, _, err := s.Get("load_facts")
	require.NoError(t, err)

	got, err := DecodeDetails(rec.Details)
	require.NoError(t, err)
	assert.Equal(t, in, got)
}
