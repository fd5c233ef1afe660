package stats

import (
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/jackc/pgx/v5/pgtype"
	"github.com/shopspring/decimal"
)

// toFloat64 coerces a stored amount. Missing, malformed and non-finite values
// count as zero.
func toFloat64(v any) float64 {
	var f float64
	switch val := v.(type) {
	case nil:
		return 0
	case float64:
		f = val
	case float32:
		f = float64(val)
	case int:
		f = float64(val)
	case int16:
		f = float64(val)
	case int32:
		f = float64(val)
	case int64:
		f = float64(val)
	case uint32:
		f = float64(val)
	case uint64:
		f = float64(val)
	case decimal.Decimal:
		f = val.InexactFloat64()
	case pgtype.Numeric:
		f8, err := val.Float64Value()
		if err != nil || !f8.Valid {
			return 0
		}
		f = f8.Float64
	case pgtype.Float8:
		if !val.Valid {
			return 0
		}
		f = val.Float64
	case pgtype.Int8:
		if !val.Valid {
			return 0
		}
		f = float64(val.Int64)
	case pgtype.Int4:
		if !val.Valid {
			return 0
		}
		f = float64(val.Int32)
	case string:
		f = parseAmount(val)
	case []byte:
		f = parseAmount(string(val))
	default:
		return 0
	}
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return 0
	}
	return f
}

// parseAmount reads comma-grouped amounts such as "1,234,000".
func parseAmount(s string) float64 {
	s = strings.ReplaceAll(strings.TrimSpace(s), ",", "")
	if s == "" {
		return 0
	}
	d, err := decimal.NewFromString(s)
	if err != nil {
		return 0
	}
	return d.InexactFloat64()
}

var zonedLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02 15:04:05Z07:00",
	"2006-01-02 15:04:05.999999999Z07:00",
	"2006-01-02 15:04:05.999999-07",
	"2006-01-02 15:04:05-07",
}

var calendarLayouts = []string{
	"2006-01-02T15:04:05.999999999",
	"2006-01-02 15:04:05.999999999",
	"2006-01-02",
	"2006-01",
}

// toTime resolves a stored date or timestamp to a wall-clock time in loc.
// Instants are converted into loc; calendar values (dates, timestamps without
// zone) keep their face value.
func toTime(v any, loc *time.Location) (time.Time, bool) {
	switch val := v.(type) {
	case time.Time:
		if val.IsZero() {
			return time.Time{}, false
		}
		if isCalendarDate(val) {
			return time.Date(val.Year(), val.Month(), val.Day(), 0, 0, 0, 0, loc), true
		}
		return val.In(loc), true
	case pgtype.Date:
		if !val.Valid || val.InfinityModifier != pgtype.Finite {
			return time.Time{}, false
		}
		return time.Date(val.Time.Year(), val.Time.Month(), val.Time.Day(), 0, 0, 0, 0, loc), true
	case pgtype.Timestamptz:
		if !val.Valid || val.InfinityModifier != pgtype.Finite {
			return time.Time{}, false
		}
		return val.Time.In(loc), true
	case pgtype.Timestamp:
		if !val.Valid || val.InfinityModifier != pgtype.Finite {
			return time.Time{}, false
		}
		t := val.Time
		return time.Date(t.Year(), t.Month(), t.Day(), t.Hour(), t.Minute(), t.Second(), t.Nanosecond(), loc), true
	case string:
		return parseTime(strings.TrimSpace(val), loc)
	case []byte:
		return parseTime(strings.TrimSpace(string(val)), loc)
	}
	return time.Time{}, false
}

func parseTime(s string, loc *time.Location) (time.Time, bool) {
	if s == "" {
		return time.Time{}, false
	}
	for _, layout := range zonedLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t.In(loc), true
		}
	}
	for _, layout := range calendarLayouts {
		if t, err := time.ParseInLocation(layout, s, loc); err == nil {
			return t, true
		}
	}
	return time.Time{}, false
}

// pgx decodes date columns as UTC midnight.
func isCalendarDate(t time.Time) bool {
	if t.Location() != time.UTC {
		return false
	}
	h, m, s := t.Clock()
	return h == 0 && m == 0 && s == 0 && t.Nanosecond() == 0
}

func truthy(v any) bool {
	switch val := v.(type) {
	case bool:
		return val
	case pgtype.Bool:
		return val.Valid && val.Bool
	case string:
		b, err := strconv.ParseBool(strings.TrimSpace(val))
		return err == nil && b
	case nil:
		return false
	}
	return toFloat64(v) != 0
}

func toInt(v any) (int64, bool) {
	switch val := v.(type) {
	case int:
		return int64(val), true
	case int16:
		return int64(val), true
	case int32:
		return int64(val), true
	case int64:
		return val, true
	case float64:
		if val != math.Trunc(val) {
			return 0, false
		}
		return int64(val), true
	case pgtype.Int2:
		return int64(val.Int16), val.Valid
	case pgtype.Int4:
		return int64(val.Int32), val.Valid
	case pgtype.Int8:
		return val.Int64, val.Valid
	case string:
		n, err := strconv.ParseInt(strings.TrimSpace(val), 10, 64)
		return n, err == nil
	}
	return 0, false
}

func toString(v any) string {
	switch val := v.(type) {
	case nil:
		return ""
	case string:
		return val
	case []byte:
		return string(val)
	case pgtype.Text:
		if !val.Valid {
			return ""
		}
		return val.String
	case fmt.Stringer:
		return val.String()
	}
	return fmt.Sprint(v)
}
