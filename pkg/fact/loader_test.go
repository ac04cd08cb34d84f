package fact

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/football-dw/warehouse/pkg/dw"
	"github.com/football-dw/warehouse/pkg/postgres"
	"github.com/pashagolub/pgxmock/v3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

var (
	playerDim = dw.Dimension{
		Schema:       "dw",
		Name:         "dim_player",
		SurrogateKey: "player_sk",
		NaturalKey:   dw.Column{Name: "player_nk", Type: "TEXT"},
		Versioned:    true,
	}
	competitionDim = dw.Dimension{
		Schema:       "dw",
		Name:         "dim_competition",
		SurrogateKey: "competition_sk",
		NaturalKey:   dw.Column{Name: "competition_id", Type: "TEXT"},
	}
	performanceFact = dw.Fact{
		Schema:       "dw",
		Name:         "fact_performance",
		SurrogateKey: "performance_sk",
		References: []dw.Reference{
			{Column: "player_sk", Dimension: "dim_player", Mandatory: true},
			{Column: "competition_sk", Dimension: "dim_competition", Normalize: func(raw any) string {
				s, _ := raw.(string)
				return strings.ToLower(s)
			}},
		},
		Measures: []dw.Column{{Name: "goals", Type: "INTEGER"}},
		Source:   "SELECT player_id, competition_name, goals FROM player_performances",
	}
	testCatalog = dw.Catalog{
		Schema:     "dw",
		Dimensions: []dw.Dimension{playerDim, competitionDim},
		Facts:      []dw.Fact{performanceFact},
	}
)

func newLoader(t *testing.T, chunkSize int) (*Loader, pgxmock.PgxPoolIface) {
	t.Helper()

	mock, err := pgxmock.NewPool(pgxmock.QueryMatcherOption(pgxmock.QueryMatcherEqual))
	require.NoError(t, err)

	return NewLoader(postgres.NewClientWithConnection(mock), testCatalog, zap.NewNop().Sugar(), chunkSize), mock
}

func expectLookups(mock pgxmock.PgxPoolIface) {
	mock.ExpectQuery(postgres.KeyLookupQuery(playerDim)).WillReturnRows(
		pgxmock.NewRows([]string{"player_nk", "player_sk"}).AddRow("1", int64(101)).AddRow("2", int64(102)),
	)
	mock.ExpectQuery(postgres.KeyLookupQuery(competitionDim)).WillReturnRows(
		pgxmock.NewRows([]string{"competition_id", "competition_sk"}).AddRow("laliga", int64(7)),
	)
}

func TestLoader_Load(t *testing.T) {
	t.Parallel()

	l, mock := newLoader(t, 2)
	expectLookups(mock)
	mock.ExpectBegin()
	mock.ExpectExec(postgres.TruncateQuery(performanceFact)).WillReturnResult(pgxmock.NewResult("TRUNCATE TABLE", 0))
	mock.ExpectQuery(performanceFact.Source).WillReturnRows(
		pgxmock.NewRows([]string{"player_id", "competition_name", "goals"}).
			AddRow(int64(1), "LaLiga", 30).
			AddRow(int64(2), "Serie A", 12).
			AddRow(int64(9), "LaLiga", 4).
			AddRow(int64(1), nil, 1),
	)
	mock.ExpectCopyFrom(performanceFact.Table(), performanceFact.Columns()).WillReturnResult(2)
	mock.ExpectCopyFrom(performanceFact.Table(), performanceFact.Columns()).WillReturnResult(1)
	mock.ExpectCommit()

	res := l.Load(context.Background(), performanceFact)

	require.NoError(t, res.Err)
	assert.Equal(t, 4, res.Read)
	assert.Equal(t, 3, res.Loaded)
	assert.Equal(t, 1, res.Rejected)
	assert.Equal(t, 1, res.NulledOptional)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestLoader_Load_CopyFailureRollsBack(t *testing.T) {
	t.Parallel()

	l, mock := newLoader(t, 10)
	expectLookups(mock)
	mock.ExpectBegin()
	mock.ExpectExec(postgres.TruncateQuery(performanceFact)).WillReturnResult(pgxmock.NewResult("TRUNCATE TABLE", 0))
	mock.ExpectQuery(performanceFact.Source).WillReturnRows(
		pgxmock.NewRows([]string{"player_id", "competition_name", "goals"}).AddRow(int64(1), "LaLiga", 30),
	)
	mock.ExpectCopyFrom(performanceFact.Table(), performanceFact.Columns()).WillReturnError(errors.New("disk full"))
	mock.ExpectRollback()

	res := l.Load(context.Background(), performanceFact)

	require.Error(t, res.Err)
	assert.Contains(t, res.Err.Error(), "disk full")
	assert.Zero(t, res.Loaded)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestLoader_LoadAll_LookupFailure(t *testing.T) {
	t.Parallel()

	l, mock := newLoader(t, 10)
	mock.ExpectQuery(postgres.KeyLookupQuery(playerDim)).WillReturnError(errors.New("relation does not exist"))

	results, err := l.LoadAll(context.Background())

	require.Error(t, err)
	assert.Equal(t, "1 of 1 facts failed to load: fact_performance", err.Error())
	require.Len(t, results, 1)
	assert.Contains(t, results[0].Err.Error(), "failed to build key lookup for dim_player")
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestLoader_resolve(t *testing.T) {
	t.Parallel()

	lookups := map[string]map[string]int64{
		"dim_player":      {"1": 101},
		"dim_competition": {"laliga": 7},
	}

	tests := []struct {
		name         string
		values       []any
		want         []any
		wantOK       bool
		wantRejected int
		wantNulled   int
	}{
		{
			name:   "all keys resolve",
			values: []any{int64(1), "LaLiga", 30},
			want:   []any{int64(101), int64(7), 30},
			wantOK: true,
		},
		{
			name:       "unknown optional key becomes null",
			values:     []any{int64(1), "Ligue 1", 3},
			want:       []any{int64(101), nil, 3},
			wantOK:     true,
			wantNulled: 1,
		},
		{
			name:   "absent optional key",
			values: []any{int64(1), nil, 3},
			want:   []any{int64(101), nil, 3},
			wantOK: true,
		},
		{
			name:         "unknown mandatory key",
			values:       []any{int64(5), "LaLiga", 3},
			wantRejected: 1,
		},
		{
			name:         "absent mandatory key",
			values:       []any{nil, "LaLiga", 3},
			wantRejected: 1,
		},
	}
	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			l := NewLoader(nil, testCatalog, zap.NewNop().Sugar(), 0)
			res := &Result{}

			got, ok := l.resolve(performanceFact, lookups, tt.values, res)

			require.Equal(t, tt.wantOK, ok)
			assert.Equal(t, tt.want, got)
			assert.Equal(t, tt.wantRejected, res.Rejected)
			assert.Equal(t, tt.wantNulled, res.NulledOptional)
		})
	}
}
