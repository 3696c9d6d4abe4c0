package aggregator

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"

	"github.com/yungbote/datasetagg/internal/domain/aggregates"
	"github.com/yungbote/datasetagg/internal/frame"
	"github.com/yungbote/datasetagg/internal/platform/logger"
)

// Linker finds or creates the aggregated dataset stored for a parent's group
// signature. At most one aggregated dataset is linked per (parent, signature).
type Linker struct {
	deps Deps
	log  *logger.Logger
}

func NewLinker(deps Deps) *Linker {
	deps = deps.withDefaults()
	return &Linker{deps: deps, log: deps.Log.With("component", "Linker")}
}

// errLinkLost aborts the create transaction when another writer linked first.
var errLinkLost = errors.New("aggregated dataset link lost")

func linkLockKey(parentID uuid.UUID, signature string) string {
	return "link:" + parentID.String() + ":" + signature
}

// Find looks up the aggregated dataset for groups. It returns nil when the
// parent has none.
func (l *Linker) Find(ctx context.Context, parent Dataset, groups []string) (Dataset, error) {
	return parent.AggregatedDataset(ctx, groups)
}

// CreateAndLink stores result in a new dataset and links it under the
// signature of groups. The child is created and populated before the link is
// written, all in one transaction. When the signature turns out to be linked
// already, the existing dataset is returned with created=false and result is
// not stored.
func (l *Linker) CreateAndLink(ctx context.Context, parent Dataset, groups []string, result *frame.Frame) (child Dataset, created bool, err error) {
	sig := parent.JoinGroups(groups)
	ctx, span := l.deps.Tracer.Start(ctx, "aggregator.link")
	span.SetAttributes(attribute.String("parent_id", parent.ID().String()), attribute.String("signature", sig))
	defer span.End()

	unlock, err := l.deps.Locker.Lock(ctx, linkLockKey(parent.ID(), sig))
	if err != nil {
		return nil, false, err
	}
	defer unlock()

	existing, err := parent.AggregatedDataset(ctx, groups)
	if err != nil {
		return nil, false, err
	}
	if existing != nil {
		return existing, false, nil
	}

	var fresh Dataset
	err = l.deps.Runner.InTx(ctx, func(ctx context.Context) error {
		c, err := parent.Create(ctx)
		if err != nil {
			return err
		}
		if err := c.SaveObservations(ctx, result); err != nil {
			return err
		}
		winner, err := parent.LinkAggregatedDataset(ctx, sig, c.ID())
		if err != nil {
			return err
		}
		if winner != c.ID() {
			return errLinkLost
		}
		fresh = c
		return nil
	})
	switch {
	case errors.Is(err, errLinkLost):
		l.log.Info("aggregated dataset linked concurrently; using existing", "parent_id", parent.ID(), "signature", sig)
		existing, err := parent.AggregatedDataset(ctx, groups)
		if err != nil {
			return nil, false, err
		}
		if existing == nil {
			return nil, false, aggregates.Errorf(aggregates.CodeConflict, "aggregator.link", "signature %q lost link race but no winner is visible", sig)
		}
		return existing, false, nil
	case err != nil:
		span.RecordError(err)
		return nil, false, err
	}

	l.deps.Hooks.IncLinkCreated(sig)
	l.log.Info("aggregated dataset created", "parent_id", parent.ID(), "child_id", fresh.ID(), "signature", sig, "rows", result.Len())
	return fresh, true, nil
}

// Share links an existing child under the signature of groups on parent, so
// that parent can feed the child too. Linking the same child again is a no-op;
// a signature already linked to another dataset is a conflict.
func (l *Linker) Share(ctx context.Context, parent Dataset, groups []string, child Dataset) error {
	sig := parent.JoinGroups(groups)
	unlock, err := l.deps.Locker.Lock(ctx, linkLockKey(parent.ID(), sig))
	if err != nil {
		return err
	}
	defer unlock()

	winner, err := parent.LinkAggregatedDataset(ctx, sig, child.ID())
	if err != nil {
		return err
	}
	if winner != child.ID() {
		return aggregates.Errorf(aggregates.CodeConflict, "aggregator.share", "signature %q of dataset %s is linked to %s", sig, parent.ID(), winner)
	}
	return nil
}
