// Package fingerprint detects attribute changes between loads of a versioned dimension.
package fingerprint

import (
	"crypto/md5" //nolint:gosec
	"encoding/hex"
	"strings"

	"github.com/football-dw/warehouse/pkg/helpers"
)

// separator cannot appear in football data, so shifting characters between neighbouring values always
// changes the fingerprint.
const separator = "\x1f"

// Compute returns a 32 character hex fingerprint of the ordered values. Missing values of any kind hash the
// same as an empty string. The result is for equality checks only.
func Compute(values ...any) string {
	parts := make([]string, len(values))
	for i, v := range values {
		parts[i] = helpers.ToText(v)
	}

	sum := md5.Sum([]byte(strings.Join(parts, separator))) //nolint:gosec
	return hex.EncodeToString(sum[:])
}

// Row fingerprints the values of row found at the given indexes.
func Row(row []any, indexes []int) string {
	values := make([]any, len(indexes))
	for i, idx := range indexes {
		values[i] = row[idx]
	}
	return Compute(values...)
}
