package testutil

import (
	"context"
	"sync"

	"github.com/yungbote/datasetagg/internal/aggregator"
	"github.com/yungbote/datasetagg/internal/data/aggregates"
)

// TxCalls counts transaction outcomes seen by an InjectedTxRunner.
type TxCalls struct {
	Begin    int
	Commit   int
	Rollback int
}

// InjectedTxRunner injects transaction failures. With Next set the body runs
// inside Next, so FailCommit makes a real runner roll back its writes.
type InjectedTxRunner struct {
	Next aggregates.TxRunner

	FailBegin  error
	FailCommit error

	mu    sync.Mutex
	calls TxCalls
}

var (
	_ aggregates.TxRunner = (*InjectedTxRunner)(nil)
	_ aggregator.TxRunner = (*InjectedTxRunner)(nil)
)

func (r *InjectedTxRunner) InTx(ctx context.Context, fn func(ctx context.Context) error) error {
	r.record(func(c *TxCalls) { c.Begin++ })
	if r.FailBegin != nil {
		return r.FailBegin
	}

	body := func(ctx context.Context) error {
		if fn != nil {
			if err := fn(ctx); err != nil {
				return err
			}
		}
		return r.FailCommit
	}
	var err error
	if r.Next != nil {
		err = r.Next.InTx(ctx, body)
	} else {
		err = body(ctx)
	}

	if err != nil {
		r.record(func(c *TxCalls) { c.Rollback++ })
		return err
	}
	r.record(func(c *TxCalls) { c.Commit++ })
	return nil
}

// Calls returns a snapshot of the counters.
func (r *InjectedTxRunner) Calls() TxCalls {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.calls
}

func (r *InjectedTxRunner) record(fn func(*TxCalls)) {
	r.mu.Lock()
	fn(&r.calls)
	r.mu.Unlock()
}
