package storage

import (
	"database/sql"
	stderrors "errors"
	"net/http"

	"github.com/lib/pq"

	"github.com/modgate/modgate/internal/errors"
)

// Postgres error classes the framework translates into domain error kinds.
const (
	pqUniqueViolation     = "23505"
	pqForeignKeyViolation = "23503"
	pqNotNullViolation    = "23502"
	pqUndefinedColumn     = "42703"
	pqUndefinedTable      = "42P01"
)

// Translate maps a raw store failure into the framework taxonomy. In
// production the original message is withheld from generic database errors.
func Translate(err error, production bool) error {
	if err == nil {
		return nil
	}

	if ae := errors.GetAppError(err); ae != nil {
		return ae
	}

	if stderrors.Is(err, sql.ErrNoRows) {
		return errors.NotFound("record not found")
	}

	var pqErr *pq.Error
	if stderrors.As(err, &pqErr) {
		switch string(pqErr.Code) {
		case pqUniqueViolation:
			return errors.Database(errors.CodeDuplicateEntry, "duplicate entry", http.StatusConflict, err)
		case pqForeignKeyViolation:
			return errors.Database(errors.CodeForeignKey, "referenced record does not exist", http.StatusBadRequest, err)
		case pqNotNullViolation:
			return errors.Database(errors.CodeNotNull, "required column missing", http.StatusBadRequest, err)
		case pqUndefinedColumn:
			return errors.Database(errors.CodeUnknownColumn, "unknown column", http.StatusInternalServerError, err)
		case pqUndefinedTable:
			return errors.Database(errors.CodeUnknownTable, "unknown table", http.StatusInternalServerError, err)
		}
	}

	message := "database error"
	if !production {
		message = err.Error()
	}
	return errors.Database(errors.CodeDatabase, message, http.StatusInternalServerError, err)
}
