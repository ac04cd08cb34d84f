package query

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestQuery_ToExplainQuery(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name  string
		query string
		want  string
	}{
		{
			name:  "semicolon is appended",
			query: "SELECT 1",
			want:  "EXPLAIN SELECT 1;",
		},
		{
			name:  "existing semicolon is kept",
			query: "  SELECT * FROM dw.dim_player;\n",
			want:  "EXPLAIN SELECT * FROM dw.dim_player;",
		},
	}
	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			assert.Equal(t, tt.want, New(tt.query).ToExplainQuery())
		})
	}
}

func TestNew_KeepsArguments(t *testing.T) {
	t.Parallel()

	q := New("SELECT $1, $2", "P1", 42)
	assert.Equal(t, "SELECT $1, $2", q.String())
	assert.Equal(t, []any{"P1", 42}, q.Args)
}
