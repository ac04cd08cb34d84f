package verify

import (
	"bytes"
	"context"
	"errors"
	"testing"
	"time"

	"github.com/football-dw/warehouse/pkg/dw"
	"github.com/football-dw/warehouse/pkg/postgres"
	"github.com/pashagolub/pgxmock/v3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

var testCatalog = dw.Catalog{
	Schema:     "dw",
	Dimensions: []dw.Dimension{{Name: "dim_player"}},
	Facts:      []dw.Fact{{Name: "fact_transfer"}, {Name: "fact_injury"}},
}

func expectReport(mock pgxmock.PgxPoolIface, failSamples bool) {
	mock.ExpectQuery(tableCountsQuery("dw", []string{"dim_player"})).WillReturnRows(
		pgxmock.NewRows([]string{"table_name", "row_count"}).AddRow("dim_player", int64(42)),
	)
	mock.ExpectQuery(tableCountsQuery("dw", []string{"fact_transfer", "fact_injury"})).WillReturnRows(
		pgxmock.NewRows([]string{"table_name", "row_count"}).
			AddRow("fact_transfer", int64(10)).
			AddRow("fact_injury", int64(0)),
	)
	if failSamples {
		mock.ExpectQuery(samplePlayersQuery("dw")).WillReturnError(errors.New("column \"foot\" does not exist"))
	} else {
		mock.ExpectQuery(samplePlayersQuery("dw")).WillReturnRows(
			pgxmock.NewRows([]string{"player_nk", "player_name", "position", "country_of_birth", "date_of_birth", "is_current"}).
				AddRow("1", "Lionel", "Forward", "Argentina", time.Date(1987, 6, 24, 0, 0, 0, 0, time.UTC), true),
		)
	}
	mock.ExpectQuery(sampleTeamsQuery("dw")).WillReturnRows(
		pgxmock.NewRows([]string{"team_nk", "team_name", "country_name", "primary_competition_id"}),
	)
	mock.ExpectQuery(seasonsQuery("dw")).WillReturnRows(
		pgxmock.NewRows([]string{"season_name", "season_start_year", "season_end_year", "is_current_season"}).
			AddRow("24/25", int32(2024), int32(2025), true),
	)
	mock.ExpectQuery(qualityMetricsQuery("dw")).WillReturnRows(
		pgxmock.NewRows([]string{"players_without_agent", "duplicate_current_players", "first_date", "last_date", "current_season"}).
			AddRow(int64(3), int64(0), time.Date(2000, 1, 1, 0, 0, 0, 0, time.UTC), time.Date(2030, 12, 31, 0, 0, 0, 0, time.UTC), nil),
	)
	mock.ExpectQuery(topScorersQuery("dw")).WillReturnRows(
		pgxmock.NewRows([]string{"player_name", "team_name", "season_name", "competition_name", "goals", "assists", "minutes_played"}),
	)
	mock.ExpectQuery(indexesQuery).WithArgs("dw").WillReturnRows(
		pgxmock.NewRows([]string{"tablename", "indexname"}).AddRow("dim_player", "ux_dim_player_current"),
	)
	mock.ExpectQuery(sizeQuery).WithArgs("dw").WillReturnRows(
		pgxmock.NewRows([]string{"database_size", "schema_size"}).AddRow("1200 MB", "300 MB"),
	)
	mock.ExpectQuery(sourceVolumesQuery).WithArgs([]string{"player_profiles"}).WillReturnRows(
		pgxmock.NewRows([]string{"table_name", "approximate_rows"}).AddRow("player_profiles", int64(92671)),
	)
}

func newReporter(t *testing.T) (*Reporter, pgxmock.PgxPoolIface) {
	t.Helper()

	mock, err := pgxmock.NewPool(pgxmock.QueryMatcherOption(pgxmock.QueryMatcherEqual))
	require.NoError(t, err)

	client := postgres.NewClientWithConnection(mock)
	return NewReporter(client, testCatalog, []string{"player_profiles"}, zap.NewNop().Sugar()), mock
}

func TestReporter_Run(t *testing.T) {
	t.Parallel()

	r, mock := newReporter(t)
	expectReport(mock, false)

	report, err := r.Run(context.Background())

	require.NoError(t, err)
	require.Len(t, report.Sections, 10)
	assert.Equal(t, map[string]int64{"dim_player": 42, "fact_transfer": 10, "fact_injury": 0}, report.Totals)

	facts := report.Sections[1]
	assert.Equal(t, []string{"table_name", "row_count", "status"}, facts.Columns)
	assert.Equal(t, "OK", facts.Rows[0][2])
	assert.Equal(t, "EMPTY", facts.Rows[1][2])

	metrics := report.Sections[5]
	assert.Equal(t, []any{"Players without agent", int64(3), "INFO"}, metrics.Rows[0])
	assert.Equal(t, []any{"Date range coverage", "2000-01-01 to 2030-12-31", "OK"}, metrics.Rows[2])
	assert.Equal(t, []any{"Current season", "NONE", "WARNING"}, metrics.Rows[3])

	assert.Equal(t, "no performance facts loaded", report.Sections[6].Note)

	var out bytes.Buffer
	report.Render(&out)
	assert.Contains(t, out.String(), "FACT TABLES")
	assert.Contains(t, out.String(), "EMPTY")
	assert.Contains(t, out.String(), "1987-06-24")
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestReporter_Run_SectionFailure(t *testing.T) {
	t.Parallel()

	r, mock := newReporter(t)
	expectReport(mock, true)

	report, err := r.Run(context.Background())

	require.Error(t, err)
	assert.Equal(t, "verification failed for: Sample players", err.Error())
	require.Len(t, report.Failed(), 1)

	var out bytes.Buffer
	report.Render(&out)
	assert.Contains(t, out.String(), "failed: failed to execute query")
	require.NoError(t, mock.ExpectationsWereMet())
}
