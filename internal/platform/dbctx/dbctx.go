// Package dbctx carries an open gorm transaction through a context so that
// collaborators behind narrow interfaces join the caller's transaction.
package dbctx

import (
	"context"

	"gorm.io/gorm"
)

// Context pairs a request context with an optional open transaction. Repos
// use Tx when set and fall back to their own handle otherwise.
type Context struct {
	Ctx context.Context
	Tx  *gorm.DB
}

// From builds a Context from ctx, picking up a transaction stored by WithTx.
func From(ctx context.Context) Context {
	return Context{Ctx: ctx, Tx: Tx(ctx)}
}

type txKey struct{}

func WithTx(ctx context.Context, tx *gorm.DB) context.Context {
	return context.WithValue(ctx, txKey{}, tx)
}

// Tx returns the transaction stored in ctx, or nil.
func Tx(ctx context.Context) *gorm.DB {
	if ctx == nil {
		return nil
	}
	tx, _ := ctx.Value(txKey{}).(*gorm.DB)
	return tx
}

// DB returns the transaction in ctx when present, else fallback, bound to ctx.
func DB(ctx context.Context, fallback *gorm.DB) *gorm.DB {
	if tx := Tx(ctx); tx != nil {
		return tx.WithContext(ctx)
	}
	if fallback == nil {
		return nil
	}
	return fallback.WithContext(ctx)
}
