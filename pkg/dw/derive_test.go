package dw

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseSeason(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		want    Season
		wantErr bool
	}{
		{name: "24/25", want: Season{Name: "24/25", StartYear: 2024, EndYear: 2025}},
		{name: "99/00", want: Season{Name: "99/00", StartYear: 1999, EndYear: 2000}},
		{name: "50/51", want: Season{Name: "50/51", StartYear: 1950, EndYear: 1951}},
		{name: "2020", want: Season{Name: "2020", StartYear: 2020, EndYear: 2021}},
		{name: "2019/2020", want: Season{Name: "2019/2020", StartYear: 2019, EndYear: 2020}},
		{name: "", wantErr: true},
		{name: "unknown", wantErr: true},
		{name: "24/xx", wantErr: true},
	}
	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			got, err := ParseSeason(tt.name)
			if tt.wantErr {
				require.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestCategorizeInjury(t *testing.T) {
	t.Parallel()

	tests := map[string]InjuryType{
		"Muscle injury":           {Category: "Muscular", Severity: "Medium"},
		"Hamstring strain":        {Category: "Muscular", Severity: "Medium"},
		"Cruciate ligament tear":  {Category: "Muscular", Severity: "Medium"},
		"Metatarsal fracture":     {Category: "Bone/Ligament", Severity: "High"},
		"Achilles tendon rupture": {Category: "Bone/Ligament", Severity: "High"},
		"Ankle problems":          {Category: "Joint", Severity: "Medium"},
		"Knee surgery":            {Category: "Joint", Severity: "Medium"},
		"Corona virus":            {Category: "Other", Severity: "Low"},
		"":                        {Category: "Other", Severity: "Low"},
	}
	for reason, want := range tests {
		assert.Equal(t, want, CategorizeInjury(reason), reason)
	}
}

func TestCompetitionIDAndDivisionLevel(t *testing.T) {
	t.Parallel()

	assert.Equal(t, "premier_league", CompetitionID("Premier League"))
	assert.Equal(t, "la_liga", CompetitionID(" La Liga "))

	assert.Equal(t, 1, DivisionLevel("First Tier 1"))
	assert.Equal(t, 2, DivisionLevel("2. Bundesliga"))
	assert.Equal(t, 99, DivisionLevel("First Tier"))
	assert.Equal(t, 99, DivisionLevel(""))
}

func TestClassifyTransfer(t *testing.T) {
	t.Parallel()

	assert.Equal(t, TransferKind{IsLoan: true}, ClassifyTransfer("Loan"))
	assert.Equal(t, TransferKind{IsLoan: true, IsFree: true}, ClassifyTransfer("free loan"))
	assert.Equal(t, TransferKind{IsFree: true}, ClassifyTransfer("Free transfer"))
	assert.Equal(t, TransferKind{}, ClassifyTransfer("Permanent"))
}

func TestCalendar(t *testing.T) {
	t.Parallel()

	rows := Calendar(time.Date(2024, 2, 28, 15, 0, 0, 0, time.UTC), time.Date(2024, 3, 3, 0, 0, 0, 0, time.UTC))
	require.Len(t, rows, 5)

	first := rows[0]
	assert.Equal(t, time.Date(2024, 2, 28, 0, 0, 0, 0, time.UTC), first[0])
	assert.Equal(t, 2024, first[1])
	assert.Equal(t, 1, first[2])
	assert.Equal(t, 2, first[3])
	assert.Equal(t, "February", first[4])
	assert.Equal(t, 28, first[5])
	assert.Equal(t, 3, first[6])
	assert.Equal(t, "Wednesday", first[7])
	assert.Equal(t, false, first[8])

	leapDay := rows[1]
	assert.Equal(t, 29, leapDay[5])

	sunday := rows[4]
	assert.Equal(t, 7, sunday[6])
	assert.Equal(t, true, sunday[8])

	assert.Empty(t, Calendar(time.Date(2024, 3, 3, 0, 0, 0, 0, time.UTC), time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)))
}
