package aggregates

import (
	"strings"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	domainagg "github.com/yungbote/datasetagg/internal/domain/aggregates"
	"github.com/yungbote/datasetagg/internal/platform/dbctx"
)

// CASGuard performs version-checked writes on one table. Rows carry an
// integer version column that every guarded write advances by one.
type CASGuard struct {
	db    *gorm.DB
	table string
}

func NewCASGuard(db *gorm.DB, table string) CASGuard {
	return CASGuard{db: db, table: strings.TrimSpace(table)}
}

// Bump applies updates to row id only while its version still equals
// expected, and moves the version to expected+1. A row whose version moved on
// is reported as CodeConflict.
func (g CASGuard) Bump(dbc dbctx.Context, id uuid.UUID, expected int, updates map[string]any) error {
	const op = "cas.bump"
	if g.table == "" || id == uuid.Nil {
		return domainagg.NewError(domainagg.CodeValidation, op, "table and id are required", nil)
	}
	if expected < 0 {
		return domainagg.Errorf(domainagg.CodeValidation, op, "expected version %d is negative", expected)
	}
	t := dbc.Tx
	if t == nil {
		t = g.db
	}
	if t == nil {
		return domainagg.NewError(domainagg.CodeInternal, op, "no database handle", nil)
	}

	set := make(map[string]any, len(updates)+2)
	for k, v := range updates {
		set[k] = v
	}
	set["version"] = expected + 1
	if _, ok := set["updated_at"]; !ok {
		set["updated_at"] = time.Now().UTC()
	}
	res := t.WithContext(dbc.Ctx).
		Table(g.table).
		Where("id = ? AND version = ?", id, expected).
		Updates(set)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return domainagg.Errorf(domainagg.CodeConflict, op, "%s %s: version %d is stale", g.table, id, expected)
	}
	return nil
}
