package dw

import (
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/pkg/errors"
)

const defaultDivisionLevel = 99

var firstNumber = regexp.MustCompile(`[0-9]+`)

type Season struct {
	Name      string
	StartYear int
	EndYear   int
}

// ParseSeason reads season names such as "24/25", "99/00" or "2020". Two-digit years from 50 upwards belong
// to the 1900s.
func ParseSeason(name string) (Season, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return Season{}, errors.New("empty season name")
	}

	first := name
	if i := strings.Index(name, "/"); i >= 0 {
		first = name[:i]
		if _, err := strconv.Atoi(strings.TrimSpace(name[i+1:])); err != nil {
			return Season{}, errors.Errorf("invalid season name '%s'", name)
		}
	}

	year, err := strconv.Atoi(strings.TrimSpace(first))
	if err != nil || year < 0 {
		return Season{}, errors.Errorf("invalid season name '%s'", name)
	}

	if year < 100 {
		if year >= 50 {
			year += 1900
		} else {
			year += 2000
		}
	}

	return Season{Name: name, StartYear: year, EndYear: year + 1}, nil
}

type InjuryType struct {
	Category string
	Severity string
}

var injuryRules = []struct {
	keywords []string
	injury   InjuryType
}{
	{keywords: []string{"muscle", "strain", "tear"}, injury: InjuryType{Category: "Muscular", Severity: "Medium"}},
	{keywords: []string{"fracture", "break", "rupture"}, injury: InjuryType{Category: "Bone/Ligament", Severity: "High"}},
	{keywords: []string{"ankle", "knee", "hip"}, injury: InjuryType{Category: "Joint", Severity: "Medium"}},
}

// CategorizeInjury groups a free-text injury reason; the first matching rule wins.
func CategorizeInjury(reason string) InjuryType {
	lower := strings.ToLower(reason)
	for _, rule := range injuryRules {
		for _, keyword := range rule.keywords {
			if strings.Contains(lower, keyword) {
				return rule.injury
			}
		}
	}

	return InjuryType{Category: "Other", Severity: "Low"}
}

// CompetitionID derives the competition natural key from its display name.
func CompetitionID(name string) string {
	return strings.ReplaceAll(strings.ToLower(strings.TrimSpace(name)), " ", "_")
}

// DivisionLevel returns the first number in a division label such as "Premier League 1", or 99.
func DivisionLevel(division string) int {
	match := firstNumber.FindString(division)
	if match == "" {
		return defaultDivisionLevel
	}

	level, err := strconv.Atoi(match)
	if err != nil {
		return defaultDivisionLevel
	}
	return level
}

type TransferKind struct {
	IsLoan bool
	IsFree bool
}

func ClassifyTransfer(transferType string) TransferKind {
	lower := strings.ToLower(transferType)
	return TransferKind{
		IsLoan: strings.Contains(lower, "loan"),
		IsFree: strings.Contains(lower, "free"),
	}
}

// Calendar produces one dim_date row per day between start and end, both inclusive.
func Calendar(start, end time.Time) [][]any {
	start = truncateDay(start)
	end = truncateDay(end)
	if end.Before(start) {
		return nil
	}

	rows := make([][]any, 0, int(end.Sub(start).Hours()/24)+1)
	for day := start; !day.After(end); day = day.AddDate(0, 0, 1) {
		weekday := isoWeekday(day)
		rows = append(rows, []any{
			day,
			day.Year(),
			(int(day.Month())-1)/3 + 1,
			int(day.Month()),
			day.Month().String(),
			day.Day(),
			weekday,
			day.Weekday().String(),
			weekday >= 6,
		})
	}
	return rows
}

func isoWeekday(t time.Time) int {
	if t.Weekday() == time.Sunday {
		return 7
	}
	return int(t.Weekday())
}

func truncateDay(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}
