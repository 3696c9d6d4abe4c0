package aggregates

import (
	"context"
	"errors"
	"strings"

	"github.com/jackc/pgx/v5/pgconn"
	"gorm.io/gorm"

	domainagg "github.com/yungbote/datasetagg/internal/domain/aggregates"
)

// sqlstateCodes classifies the Postgres SQLSTATEs the dataset tables raise.
// Anything else from Postgres is a storage failure.
var sqlstateCodes = map[string]domainagg.ErrorCode{
	"23505": domainagg.CodeConflict,   // unique_violation (calculation name)
	"23503": domainagg.CodeValidation, // foreign_key_violation
	"23502": domainagg.CodeValidation, // not_null_violation
	"22P02": domainagg.CodeValidation, // invalid_text_representation (bad uuid)
	"40001": domainagg.CodeRetryable,  // serialization_failure
	"40P01": domainagg.CodeRetryable,  // deadlock_detected
	"55P03": domainagg.CodeRetryable,  // lock_not_available
	"57014": domainagg.CodeRetryable,  // query_canceled
}

// messageCodes covers drivers that report failures only as text, SQLite in
// particular. Matching is on the lowercased message.
var messageCodes = []struct {
	needle string
	code   domainagg.ErrorCode
}{
	{"unique constraint failed", domainagg.CodeConflict},
	{"duplicate key", domainagg.CodeConflict},
	{"not null constraint failed", domainagg.CodeValidation},
	{"foreign key constraint failed", domainagg.CodeValidation},
	{"database is locked", domainagg.CodeRetryable},
	{"database table is locked", domainagg.CodeRetryable},
	{"deadlock", domainagg.CodeRetryable},
	{"could not serialize", domainagg.CodeRetryable},
	{"timeout", domainagg.CodeRetryable},
}

// MapError classifies a persistence failure from op. Errors that already carry
// a code pass through unchanged; anything unrecognised is CodeStorage.
func MapError(op string, err error) error {
	if err == nil {
		return nil
	}
	var coded *domainagg.Error
	if errors.As(err, &coded) {
		return err
	}
	return domainagg.Wrap(classify(err), op, err)
}

func classify(err error) domainagg.ErrorCode {
	switch {
	case errors.Is(err, gorm.ErrRecordNotFound):
		return domainagg.CodeNotFound
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return domainagg.CodeRetryable
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		if code, ok := sqlstateCodes[strings.TrimSpace(pgErr.Code)]; ok {
			return code
		}
		return domainagg.CodeStorage
	}
	msg := strings.ToLower(err.Error())
	for _, m := range messageCodes {
		if strings.Contains(msg, m.needle) {
			return m.code
		}
	}
	return domainagg.CodeStorage
}

// statusOf is the hook status label for an operation result.
func statusOf(err error) string {
	if err == nil {
		return "success"
	}
	if code := domainagg.CodeOf(err); code != "" {
		return string(code)
	}
	return string(classify(err))
}
