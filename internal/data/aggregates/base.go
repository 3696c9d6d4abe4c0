package aggregates

import (
	"context"
	"time"

	"gorm.io/gorm"

	domainagg "github.com/yungbote/datasetagg/internal/domain/aggregates"
	"github.com/yungbote/datasetagg/internal/platform/dbctx"
	"github.com/yungbote/datasetagg/internal/platform/logger"
)

// BaseDeps are the collaborators shared by every dataset write boundary.
type BaseDeps struct {
	DB     *gorm.DB
	Log    *logger.Logger
	Runner TxRunner
	Hooks  Hooks
}

func (d BaseDeps) withDefaults() BaseDeps {
	if d.Log == nil {
		d.Log = logger.Nop()
	}
	if d.Runner == nil {
		d.Runner = NewGormTxRunner(d.DB)
	}
	if d.Hooks == nil {
		d.Hooks = noopHooks{}
	}
	return d
}

// write runs fn as one unit of work. A transaction already carried by ctx is
// joined through a savepoint, so a failed nested write leaves the caller's
// transaction usable. Every call is reported to Hooks under op.
func (d BaseDeps) write(ctx context.Context, op string, fn func(dbc dbctx.Context) error) error {
	start := time.Now()
	err := MapError(op, d.Runner.InTx(ctx, func(ctx context.Context) error {
		return fn(dbctx.From(ctx))
	}))

	switch {
	case domainagg.IsCode(err, domainagg.CodeConflict):
		d.Hooks.IncConflict(op)
	case domainagg.IsCode(err, domainagg.CodeRetryable):
		d.Hooks.IncRetry(op)
	}
	d.Hooks.ObserveOperation(op, statusOf(err), time.Since(start))
	return err
}

// read runs fn without opening a transaction, joining one already in ctx.
func (d BaseDeps) read(ctx context.Context, op string, fn func(dbc dbctx.Context) error) error {
	return MapError(op, fn(dbctx.From(ctx)))
}
