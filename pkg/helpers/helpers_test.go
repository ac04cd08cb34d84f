package helpers

import (
	"math/big"
	"testing"
	"time"

	"github.com/jackc/pgx/v5/pgtype"
	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCastResultToInteger(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		res     [][]interface{}
		want    int64
		wantErr bool
	}{
		{name: "int64", res: [][]interface{}{{int64(12)}}, want: 12},
		{name: "int32", res: [][]interface{}{{int32(7)}}, want: 7},
		{name: "string", res: [][]interface{}{{"42"}}, want: 42},
		{name: "bool", res: [][]interface{}{{true}}, want: 1},
		{name: "numeric", res: [][]interface{}{{pgtype.Numeric{Int: big.NewInt(5), Valid: true}}}, want: 5},
		{name: "nil", res: [][]interface{}{{nil}}, wantErr: true},
		{name: "multiple rows", res: [][]interface{}{{1}, {2}}, wantErr: true},
		{name: "not a number", res: [][]interface{}{{"abc"}}, wantErr: true},
	}
	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			got, err := CastResultToInteger(tt.res)
			if tt.wantErr {
				require.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestToText(t *testing.T) {
	t.Parallel()

	name := "Forward"
	var missing *string

	tests := []struct {
		name  string
		value any
		want  string
	}{
		{name: "nil", value: nil, want: ""},
		{name: "nil pointer", value: missing, want: ""},
		{name: "pointer", value: &name, want: "Forward"},
		{name: "int", value: int32(1024), want: "1024"},
		{name: "float", value: 1.5, want: "1.5"},
		{name: "whole float", value: float64(3), want: "3"},
		{name: "date", value: time.Date(2024, 7, 1, 0, 0, 0, 0, time.UTC), want: "2024-07-01"},
		{name: "timestamp", value: time.Date(2024, 7, 1, 10, 30, 0, 0, time.UTC), want: "2024-07-01T10:30:00Z"},
		{name: "invalid pgtype", value: pgtype.Text{}, want: ""},
		{name: "valid pgtype", value: pgtype.Text{String: "Left", Valid: true}, want: "Left"},
		{name: "invalid numeric", value: pgtype.Numeric{}, want: ""},
		{name: "bool", value: false, want: "false"},
	}
	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			assert.Equal(t, tt.want, ToText(tt.value))
		})
	}
}

func TestToInt64(t *testing.T) {
	t.Parallel()

	v, ok := ToInt64(int16(9))
	assert.True(t, ok)
	assert.Equal(t, int64(9), v)

	_, ok = ToInt64(2.5)
	assert.False(t, ok)

	_, ok = ToInt64(nil)
	assert.False(t, ok)

	v, ok = ToInt64(pgtype.Int8{Int64: 77, Valid: true})
	assert.True(t, ok)
	assert.Equal(t, int64(77), v)
}

func TestJSONFiles(t *testing.T) {
	t.Parallel()

	fs := afero.NewMemMapFs()
	require.NoError(t, WriteJSONToFile(fs, map[string]int{"dim_player": 3}, "logs/snapshot_20240101_000000.json"))
	require.NoError(t, WriteJSONToFile(fs, map[string]int{"dim_player": 4}, "logs/snapshot_20240102_000000.json"))
	require.NoError(t, afero.WriteFile(fs, "logs/etl_auto_20240103_000000.log", []byte("x"), 0o644))

	latest, err := GetLatestFileInDir(fs, "logs", "snapshot_")
	require.NoError(t, err)
	assert.Equal(t, "logs/snapshot_20240102_000000.json", latest)

	var got map[string]int
	require.NoError(t, ReadJSONFile(fs, latest, &got))
	assert.Equal(t, map[string]int{"dim_player": 4}, got)

	_, err = GetLatestFileInDir(fs, "logs", "checkpoint_")
	require.Error(t, err)
}
