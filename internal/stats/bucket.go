package stats

import (
	"time"

	"github.com/misung-crm/misung-crm/internal/rowstore"
)

// Months holds one accumulator per calendar month, January first.
type Months [12]float64

// Total sums all twelve months.
func (m Months) Total() float64 {
	var total float64
	for _, v := range m {
		total += v
	}
	return total
}

// Add returns the month-wise sum of m and o.
func (m Months) Add(o Months) Months {
	for i := range m {
		m[i] += o[i]
	}
	return m
}

// Sub returns the month-wise difference m - o.
func (m Months) Sub(o Months) Months {
	for i := range m {
		m[i] -= o[i]
	}
	return m
}

// DateFunc resolves the calendar year and month a row belongs to.
type DateFunc func(row rowstore.Row, loc *time.Location) (year, month int, ok bool)

// DateColumn reads a date or timestamp column.
func DateColumn(column string) DateFunc {
	return func(row rowstore.Row, loc *time.Location) (int, int, bool) {
		t, ok := toTime(row[column], loc)
		if !ok {
			return 0, 0, false
		}
		return t.Year(), int(t.Month()), true
	}
}

// PeriodColumns reads pre-aggregated rows keyed by integer year and month columns.
func PeriodColumns(yearColumn, monthColumn string) DateFunc {
	return func(row rowstore.Row, _ *time.Location) (int, int, bool) {
		y, okY := toInt(row[yearColumn])
		m, okM := toInt(row[monthColumn])
		if !okY || !okM {
			return 0, 0, false
		}
		return int(y), int(m), true
	}
}

// Measure extracts the amount a row contributes to its month.
type Measure func(row rowstore.Row) float64

// Sum adds the numeric value of column.
func Sum(column string) Measure {
	return func(row rowstore.Row) float64 {
		return toFloat64(row[column])
	}
}

// CountIf adds one for each row whose flag column is set.
func CountIf(column string) Measure {
	return func(row rowstore.Row) float64 {
		if truthy(row[column]) {
			return 1
		}
		return 0
	}
}

// Bucketizer groups rows into calendar months observed in Location.
type Bucketizer struct {
	Location *time.Location
}

// Bucket accumulates measure into the month of each row dated in year. Rows
// with unreadable dates, other years or out-of-range months are skipped.
func (b Bucketizer) Bucket(rows []rowstore.Row, date DateFunc, measure Measure, year int) Months {
	var out Months
	loc := b.Location
	if loc == nil {
		loc = time.UTC
	}
	for _, row := range rows {
		y, m, ok := date(row, loc)
		if !ok || y != year || m < 1 || m > 12 {
			continue
		}
		out[m-1] += measure(row)
	}
	return out
}

// Bucketize sums amountField by the UTC month of dateField.
func Bucketize(rows []rowstore.Row, dateField, amountField string, year int) Months {
	return Bucketizer{Location: time.UTC}.Bucket(rows, DateColumn(dateField), Sum(amountField), year)
}
