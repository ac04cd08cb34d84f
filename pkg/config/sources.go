package config

// DefaultSources maps the datasets produced by the CSV loader to their relational tables.
func DefaultSources() map[string]Source {
	return map[string]Source{
		"player_profiles": {
			File:      "player_profiles/player_profiles.csv",
			Table:     "player_profiles",
			ChunkSize: 5000,
			DateColumns: []string{
				"date_of_birth", "joined", "contract_expires",
				"date_of_last_contract_extension", "contract_there_expires", "date_of_death",
			},
		},
		"player_injuries": {
			File:        "player_injuries/player_injuries.csv",
			Table:       "player_injuries",
			ChunkSize:   10000,
			DateColumns: []string{"from_date", "end_date"},
		},
		"player_market_value": {
			File:      "player_market_value/player_market_value.csv",
			Table:     "player_market_value",
			ChunkSize: 20000,
		},
		"player_latest_market_value": {
			File:      "player_latest_market_value/player_latest_market_value.csv",
			Table:     "player_latest_market_value",
			ChunkSize: 10000,
		},
		"player_national_performances": {
			File:        "player_national_performances/player_national_performances.csv",
			Table:       "player_national_performances",
			ChunkSize:   10000,
			DateColumns: []string{"first_game_date"},
		},
		"player_performances": {
			File:      "player_performances/player_performances.csv",
			Table:     "player_performances",
			ChunkSize: 50000,
		},
		"player_teammates_played_with": {
			File:      "player_teammates_played_with/player_teammates_played_with.csv",
			Table:     "player_teammates_played_with",
			ChunkSize: 50000,
		},
		"team_details": {
			File:      "team_details/team_details.csv",
			Table:     "team_details",
			ChunkSize: 5000,
		},
		"team_children": {
			File:      "team_children/team_children.csv",
			Table:     "team_children",
			ChunkSize: 5000,
		},
		"team_competitions_seasons": {
			File:      "team_competitions_seasons/team_competitions_seasons.csv",
			Table:     "team_competitions_seasons",
			ChunkSize: 5000,
		},
		"transfer_history": {
			File:        "transfer_history/transfer_history.csv",
			Table:       "transfer_history",
			ChunkSize:   20000,
			DateColumns: []string{"transfer_date"},
		},
	}
}
