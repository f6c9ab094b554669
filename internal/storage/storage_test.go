package storage

import (
	"context"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/alicebob/miniredis/v2"
	"github.com/go-redis/redis/v8"
	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/modgate/modgate/internal/cache"
	"github.com/modgate/modgate/internal/logging"
)

func newTestDataAccess(t *testing.T) (*DataAccess, sqlmock.Sqlmock, *miniredis.Miniredis) {
	t.Helper()

	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherEqual))
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	mr := miniredis.RunT(t)
	client := redis.NewUniversalClient(&redis.UniversalOptions{Addrs: []string{mr.Addr()}})
	c := cache.NewRedisWithClient(client, "test", logging.NewDefault("cache"))
	t.Cleanup(func() { _ = c.Close() })

	da := New(sqlx.NewDb(db, "sqlmock"), c, logging.NewDefault("storage"))
	return da, mock, mr
}

const listRecords = "SELECT id, name FROM records ORDER BY id"

func recordRows() *sqlmock.Rows {
	return sqlmock.NewRows([]string{"id", "name"}).
		AddRow("r1", "first").
		AddRow("r2", "second")
}

func TestQueryCacheAside(t *testing.T) {
	da, mock, _ := newTestDataAccess(t)
	ctx := context.Background()

	// Only one store round trip is expected for two identical reads.
	mock.ExpectQuery(listRecords).WillReturnRows(recordRows())

	first, err := da.Query(ctx, listRecords, nil, WithCacheKey("records:list"))
	require.NoError(t, err)
	assert.False(t, first.FromCache)
	assert.Equal(t, 2, first.Count)

	second, err := da.Query(ctx, listRecords, nil, WithCacheKey("records:list"))
	require.NoError(t, err)
	assert.True(t, second.FromCache)
	assert.Equal(t, first.Rows, second.Rows)

	require.NoError(t, mock.ExpectationsWereMet())

	snap := da.Stats()
	assert.Equal(t, int64(2), snap.TotalQueries)
	assert.Equal(t, int64(1), snap.CacheHits)
	assert.Equal(t, int64(1), snap.CacheMisses)
	assert.InDelta(t, 0.5, snap.HitRate, 0.001)
}

func TestQueryWithoutCacheKeyAlwaysHitsStore(t *testing.T) {
	da, mock, _ := newTestDataAccess(t)
	ctx := context.Background()

	mock.ExpectQuery(listRecords).WillReturnRows(recordRows())
	mock.ExpectQuery(listRecords).WillReturnRows(recordRows())

	for i := 0; i < 2; i++ {
		res, err := da.Query(ctx, listRecords, nil)
		require.NoError(t, err)
		assert.False(t, res.FromCache)
	}
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestEmptyResultIsNotCached(t *testing.T) {
	da, mock, mr := newTestDataAccess(t)
	ctx := context.Background()

	mock.ExpectQuery(listRecords).WillReturnRows(sqlmock.NewRows([]string{"id", "name"}))

	res, err := da.Query(ctx, listRecords, nil, WithCacheKey("records:list"))
	require.NoError(t, err)
	assert.Equal(t, 0, res.Count)
	assert.False(t, mr.Exists("test:records:list"), "empty reads must not populate the cache")
}

func TestInsertInvalidatesCollection(t *testing.T) {
	da, mock, mr := newTestDataAccess(t)
	ctx := context.Background()

	mock.ExpectQuery(listRecords).WillReturnRows(recordRows())
	_, err := da.Query(ctx, listRecords, nil, WithCacheKey("records:list"))
	require.NoError(t, err)
	require.True(t, mr.Exists("test:records:list"))

	mock.ExpectExec("INSERT INTO records (id, name) VALUES ($1, $2)").
		WithArgs("r3", "third").
		WillReturnResult(sqlmock.NewResult(0, 1))

	res, err := da.Insert(ctx, "records", map[string]any{"id": "r3", "name": "third"})
	require.NoError(t, err)
	assert.Equal(t, int64(1), res.RowsAffected)
	assert.Equal(t, "r3", res.ID)

	assert.False(t, mr.Exists("test:records:list"), "write must invalidate the collection pattern")

	// Next read recomputes.
	mock.ExpectQuery(listRecords).WillReturnRows(recordRows())
	again, err := da.Query(ctx, listRecords, nil, WithCacheKey("records:list"))
	require.NoError(t, err)
	assert.False(t, again.FromCache)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestUpdateAndDelete(t *testing.T) {
	da, mock, _ := newTestDataAccess(t)
	ctx := context.Background()

	mock.ExpectExec("UPDATE records SET name = $2 WHERE id = $1").
		WithArgs("r1", "renamed").
		WillReturnResult(sqlmock.NewResult(0, 1))

	affected, err := da.Update(ctx, "records", map[string]any{"name": "renamed"}, "id = $1", "r1")
	require.NoError(t, err)
	assert.Equal(t, int64(1), affected)

	mock.ExpectExec("DELETE FROM records WHERE id = $1").
		WithArgs("r1").
		WillReturnResult(sqlmock.NewResult(0, 1))

	affected, err = da.Delete(ctx, "records", "id = $1", "r1")
	require.NoError(t, err)
	assert.Equal(t, int64(1), affected)

	require.NoError(t, mock.ExpectationsWereMet())
}

func TestStoreErrorIncrementsCounterOnce(t *testing.T) {
	da, mock, _ := newTestDataAccess(t)
	ctx := context.Background()

	mock.ExpectQuery(listRecords).WillReturnError(assert.AnError)

	_, err := da.Query(ctx, listRecords, nil)
	require.Error(t, err)

	snap := da.Stats()
	assert.Equal(t, int64(1), snap.StoreErrors)
}

func TestTransactionCommit(t *testing.T) {
	da, mock, _ := newTestDataAccess(t)
	ctx := context.Background()

	mock.ExpectBegin()
	mock.ExpectExec("INSERT INTO records (id, name) VALUES ($1, $2)").
		WithArgs("r9", "nine").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec("INSERT INTO audit (record_id) VALUES ($1)").
		WithArgs("r9").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	err := da.Transaction(ctx, func(tx *Tx) error {
		if _, err := tx.Insert(ctx, "records", map[string]any{"id": "r9", "name": "nine"}); err != nil {
			return err
		}
		_, err := tx.Insert(ctx, "audit", map[string]any{"record_id": "r9"})
		return err
	})
	require.NoError(t, err)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestTransactionRollbackOnError(t *testing.T) {
	da, mock, _ := newTestDataAccess(t)
	ctx := context.Background()

	mock.ExpectBegin()
	mock.ExpectExec("INSERT INTO records (id, name) VALUES ($1, $2)").
		WithArgs("r9", "nine").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectRollback()

	err := da.Transaction(ctx, func(tx *Tx) error {
		if _, err := tx.Insert(ctx, "records", map[string]any{"id": "r9", "name": "nine"}); err != nil {
			return err
		}
		return assert.AnError
	})
	require.Error(t, err)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestTransactionRollbackOnPanic(t *testing.T) {
	da, mock, _ := newTestDataAccess(t)
	ctx := context.Background()

	mock.ExpectBegin()
	mock.ExpectRollback()

	require.Panics(t, func() {
		_ = da.Transaction(ctx, func(tx *Tx) error {
			panic("boom")
		})
	})
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestTransactionInvalidatesAfterCommitOnly(t *testing.T) {
	da, mock, mr := newTestDataAccess(t)
	ctx := context.Background()

	// Prime the cache.
	mock.ExpectQuery(listRecords).WillReturnRows(recordRows())
	_, err := da.Query(ctx, listRecords, nil, WithCacheKey("records:list"))
	require.NoError(t, err)

	// A rolled-back transaction leaves the cache untouched.
	mock.ExpectBegin()
	mock.ExpectExec("DELETE FROM records WHERE id = $1").
		WithArgs("r1").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectRollback()

	_ = da.Transaction(ctx, func(tx *Tx) error {
		if _, err := tx.Delete(ctx, "records", "id = $1", "r1"); err != nil {
			return err
		}
		return assert.AnError
	})
	assert.True(t, mr.Exists("test:records:list"), "rollback must not invalidate")

	// A committed transaction invalidates.
	mock.ExpectBegin()
	mock.ExpectExec("DELETE FROM records WHERE id = $1").
		WithArgs("r1").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	err = da.Transaction(ctx, func(tx *Tx) error {
		_, err := tx.Delete(ctx, "records", "id = $1", "r1")
		return err
	})
	require.NoError(t, err)
	assert.False(t, mr.Exists("test:records:list"), "commit must invalidate touched tables")
}

func TestQuerySurvivesCacheOutage(t *testing.T) {
	da, mock, mr := newTestDataAccess(t)
	ctx := context.Background()

	mr.Close()

	mock.ExpectQuery(listRecords).WillReturnRows(recordRows())

	res, err := da.Query(ctx, listRecords, nil, WithCacheKey("records:list"))
	require.NoError(t, err, "cache unavailability must never fail a request")
	assert.False(t, res.FromCache)
	assert.Equal(t, 2, res.Count)
}

func TestCacheTTLHonored(t *testing.T) {
	da, mock, mr := newTestDataAccess(t)
	ctx := context.Background()

	mock.ExpectQuery(listRecords).WillReturnRows(recordRows())
	_, err := da.Query(ctx, listRecords, nil, WithCacheKey("records:list"), WithTTL(30*time.Second))
	require.NoError(t, err)

	mr.FastForward(31 * time.Second)

	mock.ExpectQuery(listRecords).WillReturnRows(recordRows())
	res, err := da.Query(ctx, listRecords, nil, WithCacheKey("records:list"), WithTTL(30*time.Second))
	require.NoError(t, err)
	assert.False(t, res.FromCache, "expired entry must recompute")
}
