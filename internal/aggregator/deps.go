package aggregator

import (
	"context"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"

	"github.com/yungbote/datasetagg/internal/locks"
	"github.com/yungbote/datasetagg/internal/platform/logger"
)

const tracerName = "github.com/yungbote/datasetagg/internal/aggregator"

// TxRunner groups the storage writes made by fn into one atomic unit. The
// context handed to fn carries whatever the runner needs to join them.
type TxRunner interface {
	InTx(ctx context.Context, fn func(ctx context.Context) error) error
}

type directRunner struct{}

func (directRunner) InTx(ctx context.Context, fn func(ctx context.Context) error) error {
	if fn == nil {
		return nil
	}
	return fn(ctx)
}

// Hooks receives aggregation-level observability events.
type Hooks interface {
	ObserveOperation(name, status string, dur time.Duration)
	IncLinkCreated(signature string)
	IncUpdatePath(path string)
}

type noopHooks struct{}

func (noopHooks) ObserveOperation(string, string, time.Duration) {}
func (noopHooks) IncLinkCreated(string)                          {}
func (noopHooks) IncUpdatePath(string)                           {}

// Deps are the collaborators shared by Linker and Aggregator. Zero fields get
// in-process defaults.
type Deps struct {
	Log      *logger.Logger
	Locker   locks.Locker
	Runner   TxRunner
	Resolver ColumnResolver
	Hooks    Hooks
	Tracer   trace.Tracer
}

func (d Deps) withDefaults() Deps {
	if d.Log == nil {
		d.Log = logger.Nop()
	}
	if d.Locker == nil {
		d.Locker = locks.NewKeyedMutex()
	}
	if d.Runner == nil {
		d.Runner = directRunner{}
	}
	if d.Hooks == nil {
		d.Hooks = noopHooks{}
	}
	if d.Tracer == nil {
		d.Tracer = otel.Tracer(tracerName)
	}
	return d
}
