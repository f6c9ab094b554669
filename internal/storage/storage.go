// Package storage implements the cache-aside data access layer. It owns the
// pooled connection to the relational store and an optional cache client;
// module code only ever touches the store through this package.
package storage

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/modgate/modgate/internal/cache"
	"github.com/modgate/modgate/internal/logging"
)

// DefaultTTL is the cache population policy when the caller supplies a cache
// key without an explicit TTL.
const DefaultTTL = 300 * time.Second

// Recorder receives data-layer events. The metrics package implements it;
// a nil recorder is valid and drops everything.
type Recorder interface {
	CacheHit()
	CacheMiss()
	StoreQuery(d time.Duration)
	StoreError()
}

// Result is the outcome of a read query.
type Result struct {
	Rows      []map[string]any `json:"rows"`
	Count     int              `json:"count"`
	FromCache bool             `json:"fromCache"`
	Duration  time.Duration    `json:"-"`
}

// ExecResult is the outcome of a mutating statement.
type ExecResult struct {
	RowsAffected int64
	ID           string
}

// Config tunes the pooled connection.
type Config struct {
	DSN             string
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
	Production      bool
}

// Open connects to Postgres and applies the pool bounds.
func Open(cfg Config) (*sqlx.DB, error) {
	db, err := sqlx.Open("postgres", cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	if cfg.MaxOpenConns > 0 {
		db.SetMaxOpenConns(cfg.MaxOpenConns)
	}
	if cfg.MaxIdleConns > 0 {
		db.SetMaxIdleConns(cfg.MaxIdleConns)
	}
	if cfg.ConnMaxLifetime > 0 {
		db.SetConnMaxLifetime(cfg.ConnMaxLifetime)
	}
	return db, nil
}

// DataAccess bundles the store, the cache, and the counters.
type DataAccess struct {
	db         *sqlx.DB
	cache      cache.Cache
	log        *logging.Logger
	rec        Recorder
	stats      Stats
	production bool
}

// Option configures a DataAccess.
type Option func(*DataAccess)

// WithRecorder attaches a metrics recorder.
func WithRecorder(rec Recorder) Option {
	return func(d *DataAccess) { d.rec = rec }
}

// WithProductionMode hides raw store error messages from responses.
func WithProductionMode(on bool) Option {
	return func(d *DataAccess) { d.production = on }
}

// New builds a DataAccess. A nil cache degrades to cache.Noop.
func New(db *sqlx.DB, c cache.Cache, log *logging.Logger, opts ...Option) *DataAccess {
	if c == nil {
		c = cache.Noop{}
	}
	d := &DataAccess{db: db, cache: c, log: log}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// QueryOption tunes a single read.
type QueryOption func(*queryOptions)

type queryOptions struct {
	cacheKey string
	ttl      time.Duration
}

// WithCacheKey enables cache-aside behaviour for this read under key.
func WithCacheKey(key string) QueryOption {
	return func(o *queryOptions) { o.cacheKey = key }
}

// WithTTL overrides the default cache TTL.
func WithTTL(ttl time.Duration) QueryOption {
	return func(o *queryOptions) { o.ttl = ttl }
}

// Query runs a read. With a cache key: hit returns the cached rows without
// touching the store; miss falls through to the store and populates the cache
// when the read returned at least one row. Writes never pass through here.
func (d *DataAccess) Query(ctx context.Context, query string, args []any, opts ...QueryOption) (*Result, error) {
	o := queryOptions{ttl: DefaultTTL}
	for _, opt := range opts {
		opt(&o)
	}

	d.stats.query()

	if o.cacheKey != "" {
		if payload, hit := d.cache.Get(ctx, o.cacheKey); hit {
			var rows []map[string]any
			if err := json.Unmarshal(payload, &rows); err == nil {
				d.stats.hit()
				if d.rec != nil {
					d.rec.CacheHit()
				}
				return &Result{Rows: rows, Count: len(rows), FromCache: true}, nil
			}
			// Corrupt entry: treat as a miss and drop it.
			d.cache.Delete(ctx, o.cacheKey)
		}
		d.stats.miss()
		if d.rec != nil {
			d.rec.CacheMiss()
		}
	}

	rows, elapsed, err := d.queryStore(ctx, d.db, query, args)
	if err != nil {
		return nil, d.fail(err, query)
	}

	if o.cacheKey != "" && len(rows) > 0 {
		if payload, err := json.Marshal(rows); err == nil {
			d.cache.Set(ctx, o.cacheKey, payload, o.ttl)
		}
	}

	return &Result{Rows: rows, Count: len(rows), Duration: elapsed}, nil
}

// Insert writes one row into table and invalidates the table's cache
// collection. Column order is deterministic.
func (d *DataAccess) Insert(ctx context.Context, table string, data map[string]any) (*ExecResult, error) {
	cols, vals := splitColumns(data)

	placeholders := make([]string, len(cols))
	for i := range cols {
		placeholders[i] = fmt.Sprintf("$%d", i+1)
	}

	query := fmt.Sprintf(
		"INSERT INTO %s (%s) VALUES (%s)",
		table, strings.Join(cols, ", "), strings.Join(placeholders, ", "),
	)

	res, err := d.exec(ctx, d.db, query, vals)
	if err != nil {
		return nil, err
	}

	d.invalidate(ctx, table)

	out := &ExecResult{RowsAffected: res}
	if id, ok := data["id"]; ok {
		out.ID = fmt.Sprintf("%v", id)
	}
	return out, nil
}

// Update writes the given columns on rows matching where. Placeholders in
// where must start at $1; set-clause placeholders are appended after.
func (d *DataAccess) Update(ctx context.Context, table string, data map[string]any, where string, whereArgs ...any) (int64, error) {
	cols, vals := splitColumns(data)

	sets := make([]string, len(cols))
	for i, col := range cols {
		sets[i] = fmt.Sprintf("%s = $%d", col, len(whereArgs)+i+1)
	}

	query := fmt.Sprintf("UPDATE %s SET %s WHERE %s", table, strings.Join(sets, ", "), where)
	args := append(append([]any{}, whereArgs...), vals...)

	affected, err := d.exec(ctx, d.db, query, args)
	if err != nil {
		return 0, err
	}

	d.invalidate(ctx, table)
	return affected, nil
}

// Delete removes rows matching where and invalidates the table's collection.
func (d *DataAccess) Delete(ctx context.Context, table string, where string, args ...any) (int64, error) {
	query := fmt.Sprintf("DELETE FROM %s WHERE %s", table, where)

	affected, err := d.exec(ctx, d.db, query, args)
	if err != nil {
		return 0, err
	}

	d.invalidate(ctx, table)
	return affected, nil
}

// InvalidatePattern removes cached entries matching pattern.
func (d *DataAccess) InvalidatePattern(ctx context.Context, pattern string) int {
	return d.cache.DeletePattern(ctx, pattern)
}

// Stats returns a snapshot of the data-layer counters.
func (d *DataAccess) Stats() StatsSnapshot {
	return d.stats.snapshot()
}

// Cache exposes the cache client for the execution context.
func (d *DataAccess) Cache() cache.Cache {
	return d.cache
}

// Healthy reports whether the store answers a ping.
func (d *DataAccess) Healthy(ctx context.Context) bool {
	return d.db.PingContext(ctx) == nil
}

// --- internals --------------------------------------------------------------

func (d *DataAccess) queryStore(ctx context.Context, q sqlx.QueryerContext, query string, args []any) ([]map[string]any, time.Duration, error) {
	start := time.Now()
	rows, err := q.QueryxContext(ctx, query, args...)
	elapsed := time.Since(start)

	if d.rec != nil {
		d.rec.StoreQuery(elapsed)
	}
	d.log.WithFields(map[string]any{
		"query":       firstWord(query),
		"duration_ms": elapsed.Milliseconds(),
	}).Debug("store query")

	if err != nil {
		return nil, elapsed, err
	}
	defer rows.Close()

	var out []map[string]any
	for rows.Next() {
		row := make(map[string]any)
		if err := rows.MapScan(row); err != nil {
			return nil, elapsed, err
		}
		out = append(out, normalizeRow(row))
	}
	return out, elapsed, rows.Err()
}

func (d *DataAccess) exec(ctx context.Context, e sqlx.ExecerContext, query string, args []any) (int64, error) {
	start := time.Now()
	res, err := e.ExecContext(ctx, query, args...)
	elapsed := time.Since(start)

	if d.rec != nil {
		d.rec.StoreQuery(elapsed)
	}
	d.log.WithFields(map[string]any{
		"query":       firstWord(query),
		"duration_ms": elapsed.Milliseconds(),
	}).Debug("store exec")

	if err != nil {
		return 0, d.fail(err, query)
	}
	affected, _ := res.RowsAffected()
	return affected, nil
}

func (d *DataAccess) fail(err error, query string) error {
	d.stats.storeError()
	if d.rec != nil {
		d.rec.StoreError()
	}
	d.log.WithError(err).WithField("query", firstWord(query)).Warn("store error")
	return Translate(err, d.production)
}

func (d *DataAccess) invalidate(ctx context.Context, table string) {
	if n := d.cache.DeletePattern(ctx, table+":*"); n > 0 {
		d.log.WithFields(map[string]any{"table": table, "removed": n}).Debug("cache invalidated")
	}
}

// splitColumns returns columns sorted by name with their values aligned, so
// generated SQL is deterministic.
func splitColumns(data map[string]any) ([]string, []any) {
	cols := make([]string, 0, len(data))
	for col := range data {
		cols = append(cols, col)
	}
	sort.Strings(cols)

	vals := make([]any, len(cols))
	for i, col := range cols {
		vals[i] = data[col]
	}
	return cols, vals
}

// normalizeRow makes scanned rows JSON-stable: byte slices become strings so
// a cached copy decodes to the same shape the store path returned.
func normalizeRow(row map[string]any) map[string]any {
	for k, v := range row {
		switch t := v.(type) {
		case []byte:
			row[k] = string(t)
		case time.Time:
			row[k] = t.UTC().Format(time.RFC3339Nano)
		}
	}
	return row
}

func firstWord(query string) string {
	fields := strings.Fields(query)
	if len(fields) == 0 {
		return ""
	}
	return strings.ToUpper(fields[0])
}
