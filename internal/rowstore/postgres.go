package rowstore

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

type querier interface {
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
}

// Postgres executes row store queries through a pgx connection pool.
type Postgres struct {
	db querier
}

// NewPostgres wires the row store onto an existing pool.
func NewPostgres(pool *pgxpool.Pool) *Postgres {
	return &Postgres{db: pool}
}

// Query renders q as a parameterised SELECT and collects every row as a map.
func (p *Postgres) Query(ctx context.Context, q Query) ([]Row, error) {
	sql, args, err := BuildSQL(q)
	if err != nil {
		return nil, err
	}
	rows, err := p.db.Query(ctx, sql, args...)
	if err != nil {
		return nil, fmt.Errorf("rowstore: query %s: %w", q.Table, err)
	}
	defer rows.Close()

	fields := rows.FieldDescriptions()
	result := make([]Row, 0)
	for rows.Next() {
		values, err := rows.Values()
		if err != nil {
			return nil, fmt.Errorf("rowstore: scan %s: %w", q.Table, err)
		}
		row := make(Row, len(fields))
		for i, field := range fields {
			row[field.Name] = values[i]
		}
		result = append(result, row)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rowstore: iterate %s: %w", q.Table, err)
	}
	return result, nil
}

// BuildSQL renders the SELECT statement and positional arguments for q.
func BuildSQL(q Query) (string, []any, error) {
	if err := q.Validate(); err != nil {
		return "", nil, err
	}
	var b strings.Builder
	var args []any

	b.WriteString("SELECT ")
	if len(q.Columns) == 0 {
		b.WriteString("*")
	} else {
		cols := make([]string, 0, len(q.Columns))
		for _, col := range q.Columns {
			cols = append(cols, ident(col))
		}
		b.WriteString(strings.Join(cols, ", "))
	}
	b.WriteString(" FROM ")
	b.WriteString(ident(q.Table))

	if len(q.Where) > 0 {
		clauses := make([]string, 0, len(q.Where))
		for _, cond := range q.Where {
			clauses = append(clauses, renderCondition(cond, &args))
		}
		b.WriteString(" WHERE ")
		b.WriteString(strings.Join(clauses, " AND "))
	}

	if len(q.OrderBy) > 0 {
		orders := make([]string, 0, len(q.OrderBy))
		for _, o := range q.OrderBy {
			dir := "ASC"
			if o.Desc {
				dir = "DESC"
			}
			orders = append(orders, ident(o.Column)+" "+dir)
		}
		b.WriteString(" ORDER BY ")
		b.WriteString(strings.Join(orders, ", "))
	}
	if q.Limit > 0 {
		args = append(args, q.Limit)
		b.WriteString(" LIMIT " + placeholder(len(args)))
	}
	if q.Offset > 0 {
		args = append(args, q.Offset)
		b.WriteString(" OFFSET " + placeholder(len(args)))
	}
	return b.String(), args, nil
}

func renderCondition(c Condition, args *[]any) string {
	switch c.Op {
	case OpIn:
		if len(c.Values) == 0 {
			return "FALSE"
		}
		marks := make([]string, 0, len(c.Values))
		for _, v := range c.Values {
			*args = append(*args, v)
			marks = append(marks, placeholder(len(*args)))
		}
		return ident(c.Column) + " IN (" + strings.Join(marks, ", ") + ")"
	case OpOr:
		if len(c.Any) == 0 {
			return "FALSE"
		}
		parts := make([]string, 0, len(c.Any))
		for _, alt := range c.Any {
			parts = append(parts, renderCondition(alt, args))
		}
		return "(" + strings.Join(parts, " OR ") + ")"
	default:
		*args = append(*args, c.Value)
		return ident(c.Column) + " " + string(c.Op) + " " + placeholder(len(*args))
	}
}

func ident(name string) string {
	return pgx.Identifier{name}.Sanitize()
}

func placeholder(n int) string {
	return "$" + strconv.Itoa(n)
}
