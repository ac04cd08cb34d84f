package snapshot

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

type mockCounter struct {
	mock.Mock
}

func (m *mockCounter) TableCounts(ctx context.Context, schema string, tables []string) (map[string]int64, error) {
	args := m.Called(ctx, schema, tables)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(map[string]int64), args.Error(1)
}

func TestTake(t *testing.T) {
	t.Parallel()

	tables := []string{"dim_player", "fact_transfer"}
	now := time.Date(2024, 6, 1, 9, 30, 15, 0, time.UTC)

	m := new(mockCounter)
	m.On("TableCounts", mock.Anything, "dw", tables).Return(map[string]int64{"dim_player": 10}, nil).Once()
	snap, err := Take(context.Background(), m, "dw", tables, "run-1", now)
	require.NoError(t, err)
	assert.Equal(t, &Snapshot{Timestamp: now, RunID: "run-1", Counts: map[string]int64{"dim_player": 10}}, snap)

	m.On("TableCounts", mock.Anything, "dw", tables).Return(nil, errors.New("connection refused")).Once()
	_, err = Take(context.Background(), m, "dw", tables, "run-2", now)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to count warehouse tables")
	m.AssertExpectations(t)
}

func TestStore_WriteAndLatest(t *testing.T) {
	t.Parallel()

	fs := afero.NewMemMapFs()
	store := NewStore(fs, "logs")

	first := &Snapshot{Timestamp: time.Date(2024, 6, 1, 9, 0, 0, 0, time.UTC), RunID: "a", Counts: map[string]int64{"dim_player": 1}}
	second := &Snapshot{Timestamp: time.Date(2024, 6, 2, 9, 0, 0, 0, time.UTC), RunID: "b", Counts: map[string]int64{"dim_player": 2}}

	name, err := store.Write(second)
	require.NoError(t, err)
	assert.Equal(t, "logs/snapshot_20240602_090000.json", name)
	_, err = store.Write(first)
	require.NoError(t, err)

	_, err = store.Write(second)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "already exists")

	latest, err := store.Latest()
	require.NoError(t, err)
	assert.Equal(t, "b", latest.RunID)
	assert.Equal(t, int64(2), latest.Counts["dim_player"])
}

func TestStore_LatestEmpty(t *testing.T) {
	t.Parallel()

	fs := afero.NewMemMapFs()
	require.NoError(t, fs.MkdirAll("logs", 0o755))

	_, err := NewStore(fs, "logs").Latest()
	require.Error(t, err)
}

func TestStore_LatestWithoutDirectory(t *testing.T) {
	t.Parallel()

	_, err := NewStore(afero.NewMemMapFs(), "logs").Latest()
	require.ErrorIs(t, err, ErrNoSnapshots)
}

func TestCompare(t *testing.T) {
	t.Parallel()

	before := &Snapshot{Counts: map[string]int64{"dim_player": 100, "fact_transfer": 50}}
	deltas := Compare(before, map[string]int64{"fact_transfer": 40, "dim_player": 120, "dim_agent": 7})

	require.Len(t, deltas, 3)
	assert.Equal(t, "dim_agent: 7 (new)", deltas[0].String())
	assert.Equal(t, "dim_player: 100 -> 120 (+20)", deltas[1].String())
	assert.Equal(t, int64(-10), deltas[2].Change())

	noBaseline := Compare(nil, map[string]int64{"dim_player": 3})
	assert.False(t, noBaseline[0].Existed)
}
