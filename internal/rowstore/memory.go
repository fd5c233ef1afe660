package rowstore

import (
	"context"
	"fmt"
	"math"
	"sort"
	"strings"
	"sync"
	"time"
)

// Memory is an in-process row store evaluating the same conditions as Postgres.
type Memory struct {
	mu      sync.RWMutex
	tables  map[string][]Row
	failing map[string]error
	queries []Query
}

// NewMemory returns an empty store.
func NewMemory() *Memory {
	return &Memory{
		tables:  make(map[string][]Row),
		failing: make(map[string]error),
	}
}

// Insert appends rows to table.
func (m *Memory) Insert(table string, rows ...Row) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, row := range rows {
		cp := make(Row, len(row))
		for k, v := range row {
			cp[k] = v
		}
		m.tables[table] = append(m.tables[table], cp)
	}
}

// Fail makes every subsequent query on table return err. A nil err clears it.
func (m *Memory) Fail(table string, err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err == nil {
		delete(m.failing, table)
		return
	}
	m.failing[table] = err
}

// Queries returns the queries executed so far.
func (m *Memory) Queries() []Query {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]Query, len(m.queries))
	copy(out, m.queries)
	return out
}

// Query evaluates q against the seeded rows.
func (m *Memory) Query(ctx context.Context, q Query) ([]Row, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if err := q.Validate(); err != nil {
		return nil, err
	}
	m.mu.Lock()
	m.queries = append(m.queries, q)
	failErr := m.failing[q.Table]
	source := m.tables[q.Table]
	m.mu.Unlock()

	if failErr != nil {
		return nil, fmt.Errorf("rowstore: query %s: %w", q.Table, failErr)
	}

	matched := make([]Row, 0, len(source))
	for _, row := range source {
		if matchAll(row, q.Where) {
			matched = append(matched, row)
		}
	}

	if len(q.OrderBy) > 0 {
		sort.SliceStable(matched, func(i, j int) bool {
			for _, o := range q.OrderBy {
				cmp, ok := compareValues(matched[i][o.Column], matched[j][o.Column])
				if !ok || cmp == 0 {
					continue
				}
				if o.Desc {
					return cmp > 0
				}
				return cmp < 0
			}
			return false
		})
	}

	if q.Offset > 0 {
		if q.Offset >= len(matched) {
			matched = matched[:0]
		} else {
			matched = matched[q.Offset:]
		}
	}
	if q.Limit > 0 && q.Limit < len(matched) {
		matched = matched[:q.Limit]
	}

	out := make([]Row, 0, len(matched))
	for _, row := range matched {
		out = append(out, project(row, q.Columns))
	}
	return out, nil
}

func project(row Row, columns []string) Row {
	if len(columns) == 0 {
		cp := make(Row, len(row))
		for k, v := range row {
			cp[k] = v
		}
		return cp
	}
	cp := make(Row, len(columns))
	for _, col := range columns {
		cp[col] = row[col]
	}
	return cp
}

func matchAll(row Row, conds []Condition) bool {
	for _, c := range conds {
		if !match(row, c) {
			return false
		}
	}
	return true
}

func match(row Row, c Condition) bool {
	switch c.Op {
	case OpOr:
		for _, alt := range c.Any {
			if match(row, alt) {
				return true
			}
		}
		return false
	case OpIn:
		for _, v := range c.Values {
			if equalValues(row[c.Column], v) {
				return true
			}
		}
		return false
	case OpEq:
		return equalValues(row[c.Column], c.Value)
	}
	cmp, ok := compareValues(row[c.Column], c.Value)
	if !ok {
		return false
	}
	switch c.Op {
	case OpGte:
		return cmp >= 0
	case OpLt:
		return cmp < 0
	case OpLte:
		return cmp <= 0
	}
	return false
}

func equalValues(a, b any) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	if ab, ok := a.(bool); ok {
		bb, ok := b.(bool)
		return ok && ab == bb
	}
	cmp, ok := compareValues(a, b)
	return ok && cmp == 0
}

// compareValues orders two scalars. Numbers compare numerically, timestamps
// chronologically and everything else as strings.
func compareValues(a, b any) (int, bool) {
	if a == nil || b == nil {
		return 0, false
	}
	if af, ok := asNumber(a); ok {
		if bf, ok := asNumber(b); ok {
			switch {
			case af < bf:
				return -1, true
			case af > bf:
				return 1, true
			default:
				return 0, true
			}
		}
	}
	_, aTime := a.(time.Time)
	_, bTime := b.(time.Time)
	if aTime || bTime {
		at, okA := asTime(a)
		bt, okB := asTime(b)
		if !okA || !okB {
			return 0, false
		}
		return at.Compare(bt), true
	}
	return strings.Compare(fmt.Sprint(a), fmt.Sprint(b)), true
}

func asNumber(v any) (float64, bool) {
	var f float64
	switch val := v.(type) {
	case int:
		f = float64(val)
	case int32:
		f = float64(val)
	case int64:
		f = float64(val)
	case float32:
		f = float64(val)
	case float64:
		f = val
	default:
		return 0, false
	}
	if math.IsNaN(f) {
		return 0, false
	}
	return f, true
}

var memoryTimeLayouts = []string{time.RFC3339Nano, "2006-01-02T15:04:05", "2006-01-02 15:04:05", "2006-01-02", "2006-01"}

func asTime(v any) (time.Time, bool) {
	switch val := v.(type) {
	case time.Time:
		return val, true
	case string:
		for _, layout := range memoryTimeLayouts {
			if t, err := time.Parse(layout, val); err == nil {
				return t, true
			}
		}
	}
	return time.Time{}, false
}
