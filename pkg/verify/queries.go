package verify

import (
	"fmt"
	"strings"

	"github.com/football-dw/warehouse/pkg/dw"
	"github.com/football-dw/warehouse/pkg/postgres"
)

func tableCountsQuery(schema string, tables []string) string {
	parts := make([]string, len(tables))
	for i, table := range tables {
		parts[i] = fmt.Sprintf("SELECT '%s' AS table_name, COUNT(*) AS row_count FROM %s.%s",
			table, postgres.QuoteIdentifier(schema), postgres.QuoteIdentifier(table))
	}
	return strings.Join(parts, "\nUNION ALL\n")
}

func samplePlayersQuery(schema string) string {
	return fmt.Sprintf(`SELECT player_nk, player_name, position, country_of_birth, date_of_birth, is_current
FROM %s.%s
WHERE is_current
ORDER BY player_sk
LIMIT 5`, postgres.QuoteIdentifier(schema), dw.DimPlayer)
}

func sampleTeamsQuery(schema string) string {
	return fmt.Sprintf(`SELECT team_nk, team_name, country_name, primary_competition_id
FROM %s.%s
ORDER BY team_sk
LIMIT 5`, postgres.QuoteIdentifier(schema), dw.DimTeam)
}

func seasonsQuery(schema string) string {
	return fmt.Sprintf(`SELECT season_name, season_start_year, season_end_year, is_current_season
FROM %s.%s
ORDER BY season_start_year DESC
LIMIT 10`, postgres.QuoteIdentifier(schema), dw.DimSeason)
}

func qualityMetricsQuery(schema string) string {
	s := postgres.QuoteIdentifier(schema)
	return fmt.Sprintf(`SELECT
    (SELECT COUNT(*) FROM %[1]s.dim_player WHERE is_current AND agent_sk IS NULL) AS players_without_agent,
    (SELECT COUNT(*) FROM (
        SELECT player_nk FROM %[1]s.dim_player WHERE is_current GROUP BY player_nk HAVING COUNT(*) > 1
    ) duplicates) AS duplicate_current_players,
    (SELECT MIN(date_value) FROM %[1]s.dim_date) AS first_date,
    (SELECT MAX(date_value) FROM %[1]s.dim_date) AS last_date,
    (SELECT MIN(season_name) FROM %[1]s.dim_season WHERE is_current_season) AS current_season`, s)
}

func topScorersQuery(schema string) string {
	s := postgres.QuoteIdentifier(schema)
	return fmt.Sprintf(`SELECT p.player_name, t.team_name, s.season_name, c.competition_name, fp.goals, fp.assists, fp.minutes_played
FROM %[1]s.fact_player_performance fp
JOIN %[1]s.dim_player p ON fp.player_sk = p.player_sk
JOIN %[1]s.dim_team t ON fp.team_sk = t.team_sk
JOIN %[1]s.dim_season s ON fp.season_sk = s.season_sk
JOIN %[1]s.dim_competition c ON fp.competition_sk = c.competition_sk
WHERE fp.goals > 0
ORDER BY fp.goals DESC
LIMIT 5`, s)
}

const indexesQuery = `SELECT tablename, indexname
FROM pg_indexes
WHERE schemaname = $1
ORDER BY tablename, indexname`

const sizeQuery = `SELECT
    pg_size_pretty(pg_database_size(current_database())) AS database_size,
    pg_size_pretty(COALESCE(SUM(pg_total_relation_size(quote_ident(schemaname) || '.' || quote_ident(tablename))), 0)::bigint) AS schema_size
FROM pg_tables
WHERE schemaname = $1`

// sourceVolumesQuery reads the statistics collector so that missing source tables do not fail the report.
const sourceVolumesQuery = `SELECT relname AS table_name, n_live_tup AS approximate_rows
FROM pg_stat_user_tables
WHERE schemaname = 'public' AND relname = ANY($1)
ORDER BY relname`
