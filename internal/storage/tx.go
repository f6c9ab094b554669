package storage

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/jmoiron/sqlx"
)

// Tx is the scoped handle passed to a transaction body. Same query surface as
// DataAccess but no caching; invalidation for touched tables happens once,
// after commit.
type Tx struct {
	d       *DataAccess
	tx      *sqlx.Tx
	touched map[string]struct{}
}

// Query runs a read inside the transaction. Never cached.
func (t *Tx) Query(ctx context.Context, query string, args ...any) (*Result, error) {
	t.d.stats.query()

	rows, err := t.tx.QueryxContext(ctx, query, args...)
	if err != nil {
		return nil, t.d.fail(err, query)
	}
	defer rows.Close()

	var out []map[string]any
	for rows.Next() {
		row := make(map[string]any)
		if err := rows.MapScan(row); err != nil {
			return nil, t.d.fail(err, query)
		}
		out = append(out, normalizeRow(row))
	}
	if err := rows.Err(); err != nil {
		return nil, t.d.fail(err, query)
	}
	return &Result{Rows: out, Count: len(out)}, nil
}

// Exec runs an arbitrary statement inside the transaction.
func (t *Tx) Exec(ctx context.Context, query string, args ...any) (int64, error) {
	t.d.stats.query()

	res, err := t.tx.ExecContext(ctx, query, args...)
	if err != nil {
		return 0, t.d.fail(err, query)
	}
	affected, _ := res.RowsAffected()
	return affected, nil
}

// Insert writes one row; the table's cache collection is invalidated after
// the surrounding transaction commits.
func (t *Tx) Insert(ctx context.Context, table string, data map[string]any) (int64, error) {
	cols := make([]string, 0, len(data))
	for col := range data {
		cols = append(cols, col)
	}
	sort.Strings(cols)

	placeholders := make([]string, len(cols))
	vals := make([]any, len(cols))
	for i, col := range cols {
		placeholders[i] = fmt.Sprintf("$%d", i+1)
		vals[i] = data[col]
	}

	query := fmt.Sprintf(
		"INSERT INTO %s (%s) VALUES (%s)",
		table, strings.Join(cols, ", "), strings.Join(placeholders, ", "),
	)

	affected, err := t.Exec(ctx, query, vals...)
	if err != nil {
		return 0, err
	}
	t.touched[table] = struct{}{}
	return affected, nil
}

// Delete removes rows; invalidation is deferred to commit.
func (t *Tx) Delete(ctx context.Context, table string, where string, args ...any) (int64, error) {
	affected, err := t.Exec(ctx, fmt.Sprintf("DELETE FROM %s WHERE %s", table, where), args...)
	if err != nil {
		return 0, err
	}
	t.touched[table] = struct{}{}
	return affected, nil
}

// Transaction runs fn inside one transaction on one pooled connection.
// Commit on success, rollback on error or panic; the connection is always
// released. Touched tables are invalidated only after a successful commit.
func (d *DataAccess) Transaction(ctx context.Context, fn func(tx *Tx) error) error {
	raw, err := d.db.BeginTxx(ctx, nil)
	if err != nil {
		return d.fail(err, "BEGIN")
	}

	t := &Tx{d: d, tx: raw, touched: make(map[string]struct{})}

	defer func() {
		if p := recover(); p != nil {
			_ = raw.Rollback()
			panic(p)
		}
	}()

	if err := fn(t); err != nil {
		_ = raw.Rollback()
		return Translate(err, d.production)
	}

	if err := raw.Commit(); err != nil {
		return d.fail(err, "COMMIT")
	}

	for table := range t.touched {
		d.invalidate(ctx, table)
	}
	return nil
}
