package overinvestment

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/misung-crm/misung-crm/internal/platform/db"
)

// Store persists ledger rows.
type Store interface {
	List(ctx context.Context, year, month int) ([]Entry, error)
	Replace(ctx context.Context, year, month int, rows []Row, createdBy string) error
	Delete(ctx context.Context, year, month int) (int64, error)
}

// Repository provides PostgreSQL backed persistence for the ledger.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs a repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

const listSQL = `
	SELECT id, year, month, manager_name, amount, COALESCE(created_by, ''), created_at
	FROM monthly_over_investment
	WHERE year = $1 AND month = $2
	ORDER BY manager_name ASC`

const deleteSQL = `DELETE FROM monthly_over_investment WHERE year = $1 AND month = $2`

const insertSQL = `
	INSERT INTO monthly_over_investment (year, month, manager_name, amount, created_by)
	VALUES ($1, $2, $3, $4, $5)`

// List returns the month's rows ordered by manager name.
func (r *Repository) List(ctx context.Context, year, month int) ([]Entry, error) {
	rows, err := r.pool.Query(ctx, listSQL, year, month)
	if err != nil {
		return nil, fmt.Errorf("overinvestment: list: %w", err)
	}
	defer rows.Close()

	entries := make([]Entry, 0)
	for rows.Next() {
		var (
			e         Entry
			amount    pgtype.Numeric
			createdAt pgtype.Timestamptz
		)
		if err := rows.Scan(&e.ID, &e.Year, &e.Month, &e.ManagerName, &amount, &e.CreatedBy, &createdAt); err != nil {
			return nil, fmt.Errorf("overinvestment: scan: %w", err)
		}
		if f, err := amount.Float64Value(); err == nil && f.Valid {
			e.Amount = f.Float64
		}
		if createdAt.Valid {
			e.CreatedAt = createdAt.Time
		}
		entries = append(entries, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("overinvestment: list rows: %w", err)
	}
	return entries, nil
}

// Replace deletes the month and inserts rows inside one transaction.
func (r *Repository) Replace(ctx context.Context, year, month int, rows []Row, createdBy string) error {
	return db.WithTx(ctx, r.pool, func(tx pgx.Tx) error {
		if _, err := tx.Exec(ctx, deleteSQL, year, month); err != nil {
			return fmt.Errorf("%w: %v", ErrClearMonth, err)
		}
		if len(rows) == 0 {
			return nil
		}
		if err := tx.SendBatch(ctx, insertBatch(year, month, rows, createdBy)).Close(); err != nil {
			return fmt.Errorf("%w: %v", ErrInsertRows, err)
		}
		return nil
	})
}

// insertBatch binds amounts as exact decimals for the NUMERIC column.
func insertBatch(year, month int, rows []Row, createdBy string) *pgx.Batch {
	batch := &pgx.Batch{}
	for _, row := range rows {
		batch.Queue(insertSQL, year, month, row.ManagerName, row.Amount.Decimal, createdBy)
	}
	return batch
}

// Delete removes the month and reports how many rows went.
func (r *Repository) Delete(ctx context.Context, year, month int) (int64, error) {
	tag, err := r.pool.Exec(ctx, deleteSQL, year, month)
	if err != nil {
		return 0, fmt.Errorf("overinvestment: delete: %w", err)
	}
	return tag.RowsAffected(), nil
}
