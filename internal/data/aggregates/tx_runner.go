package aggregates

import (
	"context"

	"gorm.io/gorm"

	domainagg "github.com/yungbote/datasetagg/internal/domain/aggregates"
	"github.com/yungbote/datasetagg/internal/platform/dbctx"
)

// TxRunner opens a transaction around fn. The ctx handed to fn carries the
// open transaction, so repos and Dataset handles called with it join it.
type TxRunner interface {
	InTx(ctx context.Context, fn func(ctx context.Context) error) error
}

// GormTxRunner runs fn in a GORM transaction, or in a savepoint when ctx
// already carries one.
type GormTxRunner struct {
	DB *gorm.DB
}

func NewGormTxRunner(db *gorm.DB) *GormTxRunner {
	return &GormTxRunner{DB: db}
}

func (r *GormTxRunner) InTx(ctx context.Context, fn func(ctx context.Context) error) error {
	if fn == nil {
		return nil
	}
	if r == nil || r.DB == nil {
		return domainagg.NewError(domainagg.CodeInternal, "dataset.tx", "transaction runner has no database", nil)
	}
	body := func(tx *gorm.DB) error { return fn(dbctx.WithTx(ctx, tx)) }
	if outer := dbctx.Tx(ctx); outer != nil {
		return outer.WithContext(ctx).Transaction(body)
	}
	return r.DB.WithContext(ctx).Transaction(body)
}
