// Package rowstore describes the queryable table interface the statistics core
// reads from, together with a Postgres and an in-memory implementation.
package rowstore

import (
	"context"
	"errors"
	"fmt"
)

// ErrInvalidQuery is returned when a query cannot be executed as described.
var ErrInvalidQuery = errors.New("rowstore: invalid query")

// Row is one record keyed by column name.
type Row map[string]any

// Op enumerates the supported condition operators.
type Op string

const (
	OpEq  Op = "="
	OpGte Op = ">="
	OpLt  Op = "<"
	OpLte Op = "<="
	OpIn  Op = "IN"
	OpOr  Op = "OR"
)

// Condition is a single predicate. OpOr conditions hold their alternatives in Any.
type Condition struct {
	Column string
	Op     Op
	Value  any
	Values []any
	Any    []Condition
}

// Eq matches rows whose column equals value.
func Eq(column string, value any) Condition {
	return Condition{Column: column, Op: OpEq, Value: value}
}

// Gte matches rows whose column is greater than or equal to value.
func Gte(column string, value any) Condition {
	return Condition{Column: column, Op: OpGte, Value: value}
}

// Lt matches rows whose column is strictly less than value.
func Lt(column string, value any) Condition {
	return Condition{Column: column, Op: OpLt, Value: value}
}

// Lte matches rows whose column is less than or equal to value.
func Lte(column string, value any) Condition {
	return Condition{Column: column, Op: OpLte, Value: value}
}

// In matches rows whose column equals one of values. An empty list matches nothing.
func In[T any](column string, values ...T) Condition {
	vals := make([]any, 0, len(values))
	for _, v := range values {
		vals = append(vals, v)
	}
	return Condition{Column: column, Op: OpIn, Values: vals}
}

// Or matches rows satisfying at least one of conds.
func Or(conds ...Condition) Condition {
	return Condition{Op: OpOr, Any: conds}
}

// Order sorts the result set by a column.
type Order struct {
	Column string
	Desc   bool
}

// Query selects rows from a single table. Where is a conjunction.
type Query struct {
	Table   string
	Columns []string
	Where   []Condition
	OrderBy []Order
	Limit   int
	Offset  int
}

// Client executes queries against a row store.
type Client interface {
	Query(ctx context.Context, q Query) ([]Row, error)
}

// Validate reports structural problems before a query reaches a backend.
func (q Query) Validate() error {
	if q.Table == "" {
		return fmt.Errorf("%w: table required", ErrInvalidQuery)
	}
	if q.Limit < 0 || q.Offset < 0 {
		return fmt.Errorf("%w: negative limit or offset", ErrInvalidQuery)
	}
	for _, cond := range q.Where {
		if err := cond.validate(); err != nil {
			return err
		}
	}
	for _, o := range q.OrderBy {
		if o.Column == "" {
			return fmt.Errorf("%w: order column required", ErrInvalidQuery)
		}
	}
	return nil
}

func (c Condition) validate() error {
	switch c.Op {
	case OpEq, OpGte, OpLt, OpLte, OpIn:
		if c.Column == "" {
			return fmt.Errorf("%w: %s condition without column", ErrInvalidQuery, c.Op)
		}
		return nil
	case OpOr:
		for _, alt := range c.Any {
			if err := alt.validate(); err != nil {
				return err
			}
		}
		return nil
	default:
		return fmt.Errorf("%w: unsupported operator %q", ErrInvalidQuery, c.Op)
	}
}
