package helpers

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"math"
	"path/filepath"
	"reflect"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/pkg/errors"
	"github.com/spf13/afero"
)

const dateLayout = "2006-01-02"

func CastResultToInteger(res [][]interface{}) (int64, error) {
	if len(res) != 1 || len(res[0]) != 1 {
		return 0, errors.Errorf("multiple results are returned from query, please make sure your query just expects one value - value: %v", res)
	}

	if res[0][0] == nil {
		return 0, errors.Errorf("unexpected result from query, result is nil")
	}

	if b, ok := res[0][0].(bool); ok {
		if b {
			return 1, nil
		}
		return 0, nil
	}

	v, ok := ToInt64(res[0][0])
	if !ok {
		return 0, errors.Errorf("unexpected result from query, cannot cast result to integer: %v", res)
	}

	return v, nil
}

// ToInt64 converts the integer-like values returned by pgx into an int64.
func ToInt64(v any) (int64, bool) {
	v = deref(v)
	switch val := v.(type) {
	case nil:
		return 0, false
	case int:
		return int64(val), true
	case int8:
		return int64(val), true
	case int16:
		return int64(val), true
	case int32:
		return int64(val), true
	case int64:
		return val, true
	case uint8:
		return int64(val), true
	case uint16:
		return int64(val), true
	case uint32:
		return int64(val), true
	case uint64:
		if val > math.MaxInt64 {
			return 0, false
		}
		return int64(val), true
	case float32:
		return int64(val), float64(val) == math.Trunc(float64(val))
	case float64:
		return int64(val), val == math.Trunc(val)
	case string:
		if i, err := strconv.ParseInt(strings.TrimSpace(val), 10, 64); err == nil {
			return i, true
		}
		if f, err := strconv.ParseFloat(strings.TrimSpace(val), 64); err == nil && f == math.Trunc(f) {
			return int64(f), true
		}
		return 0, false
	case driver.Valuer:
		dv, err := val.Value()
		if err != nil {
			return 0, false
		}
		return ToInt64(dv)
	}

	return 0, false
}

// ToText renders a database value as the text PostgreSQL would produce for CAST(value AS TEXT).
// Absent values (nil, nil pointers, invalid pgtype values) become the empty string.
func ToText(v any) string {
	v = deref(v)
	switch val := v.(type) {
	case nil:
		return ""
	case string:
		return val
	case []byte:
		return string(val)
	case bool:
		return strconv.FormatBool(val)
	case int, int8, int16, int32, int64, uint, uint8, uint16, uint32, uint64:
		return fmt.Sprintf("%d", val)
	case float32:
		return strconv.FormatFloat(float64(val), 'f', -1, 32)
	case float64:
		return strconv.FormatFloat(val, 'f', -1, 64)
	case time.Time:
		return FormatTime(val)
	case driver.Valuer:
		dv, err := val.Value()
		if err != nil || dv == nil {
			return ""
		}
		return ToText(dv)
	case fmt.Stringer:
		return val.String()
	}

	return fmt.Sprint(v)
}

// FormatTime renders midnight timestamps as plain dates.
func FormatTime(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	if t.Hour() == 0 && t.Minute() == 0 && t.Second() == 0 && t.Nanosecond() == 0 {
		return t.Format(dateLayout)
	}
	return t.Format(time.RFC3339Nano)
}

func deref(v any) any {
	if v == nil {
		return nil
	}
	rv := reflect.ValueOf(v)
	for rv.Kind() == reflect.Pointer {
		if rv.IsNil() {
			return nil
		}
		rv = rv.Elem()
	}
	return rv.Interface()
}

func WriteJSONToFile(fs afero.Fs, data interface{}, filename string) error {
	file, err := json.MarshalIndent(data, "", "  ")
	if err != nil {
		return errors.Wrap(err, "failed to marshal json")
	}

	if err := fs.MkdirAll(filepath.Dir(filename), 0o755); err != nil {
		return errors.Wrapf(err, "failed to create directory for %s", filename)
	}

	return errors.Wrapf(afero.WriteFile(fs, filename, file, 0o644), "failed to write %s", filename)
}

func ReadJSONFile(fs afero.Fs, filename string, v interface{}) error {
	file, err := afero.ReadFile(fs, filename)
	if err != nil {
		return err
	}

	return errors.Wrapf(json.Unmarshal(file, v), "failed to parse %s", filename)
}

// GetLatestFileInDir returns the lexically greatest file in dir whose name starts with prefix.
// Timestamped file names sort chronologically.
func GetLatestFileInDir(fs afero.Fs, dir, prefix string) (string, error) {
	entries, err := afero.ReadDir(fs, dir)
	if err != nil {
		return "", err
	}

	names := make([]string, 0, len(entries))
	for _, entry := range entries {
		if entry.IsDir() || !strings.HasPrefix(entry.Name(), prefix) {
			continue
		}
		names = append(names, entry.Name())
	}

	if len(names) == 0 {
		return "", errors.New("no files found in directory")
	}

	sort.Strings(names)
	return filepath.Join(dir, names[len(names)-1]), nil
}
