package dw

import (
	"strings"
	"time"

	"github.com/football-dw/warehouse/pkg/helpers"
)

const DefaultSchema = "dw"

type Options struct {
	Schema    string
	DateStart time.Time
	DateEnd   time.Time
}

func DefaultOptions() Options {
	return Options{
		Schema:    DefaultSchema,
		DateStart: time.Date(2000, time.January, 1, 0, 0, 0, 0, time.UTC),
		DateEnd:   time.Date(2030, time.December, 31, 0, 0, 0, 0, time.UTC),
	}
}

const (
	DimDate         = "dim_date"
	DimAgent        = "dim_agent"
	DimTeam         = "dim_team"
	DimCompetition  = "dim_competition"
	DimSeason       = "dim_season"
	DimTransferType = "dim_transfer_type"
	DimInjuryType   = "dim_injury_type"
	DimPlayer       = "dim_player"

	FactPlayerPerformance    = "fact_player_performance"
	FactMarketValue          = "fact_market_value"
	FactTransfer             = "fact_transfer"
	FactInjury               = "fact_injury"
	FactNationalPerformance  = "fact_national_performance"
	FactTeammateRelationship = "fact_teammate_relationship"
	FactPlayerSeasonSummary  = "fact_player_season_summary"
)

const (
	text    = "TEXT"
	integer = "INTEGER"
	boolean = "BOOLEAN"
	date    = "DATE"
	bigint  = "BIGINT"
	money   = "NUMERIC(15,2)"
)

// NewCatalog describes the football warehouse: eight dimensions and seven facts.
func NewCatalog(opts Options) Catalog {
	if opts.Schema == "" {
		opts.Schema = DefaultSchema
	}

	c := Catalog{
		Schema: opts.Schema,
		Dimensions: []Dimension{
			dateDimension(opts.DateStart, opts.DateEnd),
			agentDimension(),
			teamDimension(),
			competitionDimension(),
			seasonDimension(),
			transferTypeDimension(),
			injuryTypeDimension(),
			playerDimension(),
		},
		Facts: []Fact{
			playerPerformanceFact(),
			marketValueFact(),
			transferFact(),
			injuryFact(),
			nationalPerformanceFact(),
			teammateRelationshipFact(),
			playerSeasonSummaryFact(),
		},
	}

	for i := range c.Dimensions {
		c.Dimensions[i].Schema = opts.Schema
	}
	for i := range c.Facts {
		c.Facts[i].Schema = opts.Schema
	}

	return c
}

func dateDimension(start, end time.Time) Dimension {
	return Dimension{
		Name:         DimDate,
		SurrogateKey: "date_sk",
		NaturalKey:   Column{Name: "date_value", Type: date},
		Attributes: []Column{
			{Name: "year", Type: integer},
			{Name: "quarter", Type: integer},
			{Name: "month", Type: integer},
			{Name: "month_name", Type: text},
			{Name: "day_of_month", Type: integer},
			{Name: "day_of_week", Type: integer},
			{Name: "day_name", Type: text},
			{Name: "is_weekend", Type: boolean},
		},
		Generate: func() [][]any {
			return Calendar(start, end)
		},
	}
}

func agentDimension() Dimension {
	return Dimension{
		Name:         DimAgent,
		SurrogateKey: "agent_sk",
		NaturalKey:   Column{Name: "agent_id", Type: text},
		Attributes: []Column{
			{Name: "agent_name", Type: text},
		},
		Source: `SELECT DISTINCT CAST(player_agent_id AS TEXT) AS agent_id, player_agent_name
FROM player_profiles
WHERE player_agent_id IS NOT NULL
ORDER BY agent_id, player_agent_name`,
	}
}

func teamDimension() Dimension {
	return Dimension{
		Name:         DimTeam,
		SurrogateKey: "team_sk",
		NaturalKey:   Column{Name: "team_nk", Type: text},
		Attributes: []Column{
			{Name: "team_name", Type: text},
			{Name: "country_name", Type: text},
			{Name: "primary_competition_id", Type: text},
			{Name: "division_level", Type: integer},
		},
		Required: []string{"team_name"},
		Source: `SELECT DISTINCT ON (club_id)
	CAST(club_id AS TEXT) AS team_nk,
	club_name,
	COALESCE(country_name, 'Unknown') AS country_name,
	competition_name,
	club_division
FROM team_details
ORDER BY club_id, season_id DESC NULLS LAST`,
		Transform: func(raw []any) ([]any, error) {
			return []any{
				raw[0],
				raw[1],
				raw[2],
				nullIfEmpty(CompetitionID(helpers.ToText(raw[3]))),
				DivisionLevel(helpers.ToText(raw[4])),
			}, nil
		},
	}
}

func competitionDimension() Dimension {
	return Dimension{
		Name:         DimCompetition,
		SurrogateKey: "competition_sk",
		NaturalKey:   Column{Name: "competition_id", Type: text},
		Attributes: []Column{
			{Name: "competition_name", Type: text},
			{Name: "country_name", Type: text},
			{Name: "tier_level", Type: integer},
		},
		Required: []string{"competition_name"},
		Source: `SELECT DISTINCT competition_name, country_name, club_division
FROM team_details
WHERE competition_name IS NOT NULL
ORDER BY competition_name, country_name, club_division`,
		Transform: func(raw []any) ([]any, error) {
			name := helpers.ToText(raw[0])
			return []any{
				nullIfEmpty(CompetitionID(name)),
				raw[0],
				raw[1],
				DivisionLevel(helpers.ToText(raw[2])),
			}, nil
		},
	}
}

func seasonDimension() Dimension {
	return Dimension{
		Name:         DimSeason,
		SurrogateKey: "season_sk",
		NaturalKey:   Column{Name: "season_name", Type: text},
		Attributes: []Column{
			{Name: "season_start_year", Type: integer},
			{Name: "season_end_year", Type: integer},
			{Name: "is_current_season", Type: boolean},
		},
		Source: `SELECT season_name FROM player_performances WHERE season_name IS NOT NULL
UNION
SELECT season_name FROM transfer_history WHERE season_name IS NOT NULL
UNION
SELECT season_name FROM player_injuries WHERE season_name IS NOT NULL
ORDER BY 1`,
		Transform: func(raw []any) ([]any, error) {
			season, err := ParseSeason(helpers.ToText(raw[0]))
			if err != nil {
				return nil, err
			}
			return []any{season.Name, season.StartYear, season.EndYear, false}, nil
		},
		Finalize: markCurrentSeason,
	}
}

// markCurrentSeason flags the first season with the latest start year.
func markCurrentSeason(rows [][]any) {
	current, latest := -1, -1
	for i, row := range rows {
		if start, ok := row[1].(int); ok && start > latest {
			current, latest = i, start
		}
	}
	if current >= 0 {
		rows[current][3] = true
	}
}

func transferTypeDimension() Dimension {
	return Dimension{
		Name:         DimTransferType,
		SurrogateKey: "transfer_type_sk",
		NaturalKey:   Column{Name: "transfer_type", Type: text},
		Attributes: []Column{
			{Name: "is_loan", Type: boolean},
			{Name: "is_free", Type: boolean},
		},
		Source: `SELECT DISTINCT transfer_type
FROM transfer_history
WHERE transfer_type IS NOT NULL
ORDER BY transfer_type`,
		Transform: func(raw []any) ([]any, error) {
			kind := ClassifyTransfer(helpers.ToText(raw[0]))
			return []any{raw[0], kind.IsLoan, kind.IsFree}, nil
		},
	}
}

func injuryTypeDimension() Dimension {
	return Dimension{
		Name:         DimInjuryType,
		SurrogateKey: "injury_type_sk",
		NaturalKey:   Column{Name: "injury_category", Type: text},
		Attributes: []Column{
			{Name: "injury_severity", Type: text},
		},
		Source: `SELECT DISTINCT injury_reason
FROM player_injuries
WHERE injury_reason IS NOT NULL
ORDER BY injury_reason`,
		Transform: func(raw []any) ([]any, error) {
			injury := CategorizeInjury(helpers.ToText(raw[0]))
			return []any{injury.Category, injury.Severity}, nil
		},
	}
}

func playerDimension() Dimension {
	return Dimension{
		Name:         DimPlayer,
		SurrogateKey: "player_sk",
		NaturalKey:   Column{Name: "player_nk", Type: text},
		Attributes: []Column{
			{Name: "player_name", Type: text},
			{Name: "position", Type: text},
			{Name: "date_of_birth", Type: date},
			{Name: "height_cm", Type: "NUMERIC(5,2)"},
			{Name: "foot", Type: text},
			{Name: "current_club_nk", Type: text},
			{Name: "current_club_name", Type: text},
			{Name: "country_of_birth", Type: text},
			{Name: "citizenship", Type: text},
			{Name: "contract_expires", Type: date},
			{Name: "agent_sk", Type: bigint},
		},
		Versioned: true,
		Tracked:   []string{"player_name", "position", "current_club_nk", "contract_expires", "agent_sk"},
		Required:  []string{"player_name"},
		References: []Reference{
			{Column: "agent_sk", Dimension: DimAgent},
		},
		DependsOn: []string{DimAgent},
		Source: `SELECT
	CAST(player_id AS TEXT) AS player_nk,
	player_name,
	position,
	CAST(date_of_birth AS DATE),
	CAST(height AS NUMERIC(5,2)),
	foot,
	CAST(current_club_id AS TEXT),
	current_club_name,
	country_of_birth,
	citizenship,
	CAST(contract_expires AS DATE),
	CAST(player_agent_id AS TEXT)
FROM player_profiles
ORDER BY player_id`,
	}
}

func playerPerformanceFact() Fact {
	return Fact{
		Name:         FactPlayerPerformance,
		SurrogateKey: "performance_sk",
		References: []Reference{
			{Column: "player_sk", Dimension: DimPlayer, Mandatory: true},
			{Column: "season_sk", Dimension: DimSeason, Mandatory: true, Normalize: seasonKey},
			{Column: "team_sk", Dimension: DimTeam},
			{Column: "competition_sk", Dimension: DimCompetition, Normalize: textKey(CompetitionID)},
		},
		Measures: []Column{
			{Name: "squad_appearances", Type: integer},
			{Name: "appearances", Type: integer},
			{Name: "goals", Type: integer},
			{Name: "assists", Type: integer},
			{Name: "own_goals", Type: integer},
			{Name: "yellow_cards", Type: integer},
			{Name: "second_yellow_cards", Type: integer},
			{Name: "direct_red_cards", Type: integer},
			{Name: "penalty_goals", Type: integer},
			{Name: "minutes_played", Type: integer},
			{Name: "goals_conceded", Type: integer},
			{Name: "clean_sheets", Type: integer},
		},
		Source: `SELECT
	CAST(player_id AS TEXT),
	season_name,
	CAST(team_id AS TEXT),
	competition_name,
	CAST(nb_in_group AS INTEGER),
	CAST(nb_on_pitch AS INTEGER),
	CAST(goals AS INTEGER),
	CAST(assists AS INTEGER),
	CAST(own_goals AS INTEGER),
	CAST(yellow_cards AS INTEGER),
	CAST(second_yellow_cards AS INTEGER),
	CAST(direct_red_cards AS INTEGER),
	CAST(penalty_goals AS INTEGER),
	CAST(minutes_played AS INTEGER),
	CAST(goals_conceded AS INTEGER),
	CAST(clean_sheets AS INTEGER)
FROM player_performances
ORDER BY player_id, season_name`,
	}
}

func marketValueFact() Fact {
	return Fact{
		Name:         FactMarketValue,
		SurrogateKey: "market_value_sk",
		References: []Reference{
			{Column: "player_sk", Dimension: DimPlayer, Mandatory: true},
			{Column: "date_sk", Dimension: DimDate},
		},
		Measures: []Column{
			{Name: "market_value", Type: money},
		},
		Source: `SELECT
	CAST(player_id AS TEXT),
	CASE
		WHEN CAST(date_unix AS TEXT) ~ '^[0-9]+$' THEN CAST(to_timestamp(CAST(CAST(date_unix AS TEXT) AS BIGINT)) AS DATE)
		ELSE CAST(CAST(date_unix AS TEXT) AS DATE)
	END,
	CAST(value AS NUMERIC(15,2))
FROM player_market_value
ORDER BY player_id, date_unix`,
	}
}

func transferFact() Fact {
	return Fact{
		Name:         FactTransfer,
		SurrogateKey: "transfer_sk",
		References: []Reference{
			{Column: "player_sk", Dimension: DimPlayer, Mandatory: true},
			{Column: "season_sk", Dimension: DimSeason, Normalize: seasonKey},
			{Column: "from_team_sk", Dimension: DimTeam},
			{Column: "to_team_sk", Dimension: DimTeam},
			{Column: "transfer_type_sk", Dimension: DimTransferType},
			{Column: "transfer_date_sk", Dimension: DimDate},
		},
		Measures: []Column{
			{Name: "transfer_fee", Type: money},
			{Name: "value_at_transfer", Type: money},
		},
		Source: `SELECT
	CAST(player_id AS TEXT),
	season_name,
	CAST(from_team_id AS TEXT),
	CAST(to_team_id AS TEXT),
	transfer_type,
	CAST(transfer_date AS DATE),
	CAST(transfer_fee AS NUMERIC(15,2)),
	CAST(value_at_transfer AS NUMERIC(15,2))
FROM transfer_history
ORDER BY player_id, transfer_date`,
	}
}

func injuryFact() Fact {
	return Fact{
		Name:         FactInjury,
		SurrogateKey: "injury_sk",
		References: []Reference{
			{Column: "player_sk", Dimension: DimPlayer, Mandatory: true},
			{Column: "season_sk", Dimension: DimSeason, Normalize: seasonKey},
			{Column: "injury_type_sk", Dimension: DimInjuryType, Normalize: textKey(func(reason string) string {
				return CategorizeInjury(reason).Category
			})},
			{Column: "from_date_sk", Dimension: DimDate},
			{Column: "end_date_sk", Dimension: DimDate},
		},
		Measures: []Column{
			{Name: "days_missed", Type: integer},
			{Name: "games_missed", Type: integer},
		},
		Attributes: []Column{
			{Name: "injury_reason", Type: text},
		},
		Source: `SELECT
	CAST(player_id AS TEXT),
	season_name,
	injury_reason,
	CAST(from_date AS DATE),
	CAST(end_date AS DATE),
	CAST(days_missed AS INTEGER),
	CAST(games_missed AS INTEGER),
	injury_reason
FROM player_injuries
ORDER BY player_id, from_date`,
	}
}

func nationalPerformanceFact() Fact {
	return Fact{
		Name:         FactNationalPerformance,
		SurrogateKey: "national_performance_sk",
		References: []Reference{
			{Column: "player_sk", Dimension: DimPlayer, Mandatory: true},
			{Column: "team_sk", Dimension: DimTeam},
			{Column: "first_game_date_sk", Dimension: DimDate},
		},
		Measures: []Column{
			{Name: "matches", Type: integer},
			{Name: "goals", Type: integer},
		},
		Source: `SELECT
	CAST(player_id AS TEXT),
	CAST(team_id AS TEXT),
	CAST(first_game_date AS DATE),
	CAST(matches AS INTEGER),
	CAST(goals AS INTEGER)
FROM player_national_performances
ORDER BY player_id, team_id`,
	}
}

func teammateRelationshipFact() Fact {
	return Fact{
		Name:         FactTeammateRelationship,
		SurrogateKey: "relationship_sk",
		References: []Reference{
			{Column: "player_sk", Dimension: DimPlayer, Mandatory: true},
			{Column: "teammate_sk", Dimension: DimPlayer, Mandatory: true},
		},
		Measures: []Column{
			{Name: "ppg_played_with", Type: "NUMERIC(6,2)"},
			{Name: "joint_goal_participation", Type: "NUMERIC(10,2)"},
			{Name: "minutes_played_with", Type: integer},
		},
		Source: `SELECT
	CAST(player_id AS TEXT),
	CAST(teammate_player_id AS TEXT),
	CAST(ppg_played_with AS NUMERIC(6,2)),
	CAST(joint_goal_participation AS NUMERIC(10,2)),
	CAST(minutes_played_with AS INTEGER)
FROM player_teammates_played_with
ORDER BY player_id, teammate_player_id`,
	}
}

func playerSeasonSummaryFact() Fact {
	return Fact{
		Name:         FactPlayerSeasonSummary,
		SurrogateKey: "summary_sk",
		References: []Reference{
			{Column: "player_sk", Dimension: DimPlayer, Mandatory: true},
			{Column: "season_sk", Dimension: DimSeason, Mandatory: true, Normalize: seasonKey},
		},
		Measures: []Column{
			{Name: "competitions_played", Type: integer},
			{Name: "total_appearances", Type: integer},
			{Name: "total_goals", Type: integer},
			{Name: "total_assists", Type: integer},
			{Name: "total_minutes", Type: integer},
			{Name: "total_yellow_cards", Type: integer},
			{Name: "total_red_cards", Type: integer},
		},
		Source: `SELECT
	CAST(player_id AS TEXT),
	season_name,
	CAST(COUNT(DISTINCT competition_name) AS INTEGER),
	CAST(COALESCE(SUM(nb_on_pitch), 0) AS INTEGER),
	CAST(COALESCE(SUM(goals), 0) AS INTEGER),
	CAST(COALESCE(SUM(assists), 0) AS INTEGER),
	CAST(COALESCE(SUM(minutes_played), 0) AS INTEGER),
	CAST(COALESCE(SUM(yellow_cards), 0) AS INTEGER),
	CAST(COALESCE(SUM(second_yellow_cards), 0) + COALESCE(SUM(direct_red_cards), 0) AS INTEGER)
FROM player_performances
GROUP BY player_id, season_name
ORDER BY player_id, season_name`,
	}
}

// seasonKey matches the trimmed names stored in dim_season.
var seasonKey = textKey(strings.TrimSpace)

func textKey(fn func(string) string) func(any) string {
	return func(raw any) string {
		value := helpers.ToText(raw)
		if value == "" {
			return ""
		}
		return fn(value)
	}
}

func nullIfEmpty(s string) any {
	if s == "" {
		return nil
	}
	return s
}
