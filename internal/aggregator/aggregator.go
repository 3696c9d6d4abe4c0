package aggregator

import (
	"context"
	"strings"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"github.com/yungbote/datasetagg/internal/aggregations"
	"github.com/yungbote/datasetagg/internal/domain/aggregates"
	"github.com/yungbote/datasetagg/internal/frame"
	"github.com/yungbote/datasetagg/internal/platform/ctxutil"
	"github.com/yungbote/datasetagg/internal/platform/logger"
)

const (
	PathReduce    = "reduce"
	PathRecompute = "recompute"
)

// Aggregator applies one aggregation, grouped by groups, to columns of a
// source frame and stores the result as a dataset linked to the parent.
//
// Aggregators that may touch the same child dataset concurrently must share
// one Locker through Deps.
type Aggregator struct {
	deps     Deps
	log      *logger.Logger
	linker   *Linker
	source   *frame.Frame
	groups   []string
	kind     aggregations.Kind
	name     string
	columns  []frame.Series
	strategy aggregations.Strategy

	result *frame.Frame
}

// New binds an aggregation strategy of kind to source. An unknown kind fails
// with CodeUnsupportedAggregation.
func New(deps Deps, source *frame.Frame, groups []string, kind aggregations.Kind, name string, columns []frame.Series) (*Aggregator, error) {
	deps = deps.withDefaults()
	strategy, err := aggregations.New(kind, name, groups, source)
	if err != nil {
		return nil, err
	}
	return &Aggregator{
		deps:     deps,
		log:      deps.Log.With("component", "Aggregator", "aggregation", name, "kind", string(kind)),
		linker:   NewLinker(deps),
		source:   source,
		groups:   append([]string(nil), groups...),
		kind:     kind,
		name:     name,
		columns:  columns,
		strategy: strategy,
	}, nil
}

func (a *Aggregator) Groups() []string { return append([]string(nil), a.groups...) }
func (a *Aggregator) Name() string     { return a.name }

// Result is the frame written by the last successful Save.
func (a *Aggregator) Result() *frame.Frame { return a.result }

// IsReducible reports whether an update may take the reduce path: the caller
// allows it, the aggregation is ungrouped and the strategy implements Reducer.
func (a *Aggregator) IsReducible(reducible bool) bool {
	return reducible && len(a.groups) == 0 && aggregations.CanReduce(a.strategy)
}

// Save evaluates the aggregation, stamps the rows with the dataset's id and
// stores them in the dataset's aggregated dataset for this grouping. A new
// aggregated dataset is created and linked on first use; afterwards the fresh
// result is merged by group key into the rows ds contributed before, and rows
// of other parents sharing the child are kept as they are. A parent with no
// rows in the child yet contributes the fresh result as is.
func (a *Aggregator) Save(ctx context.Context, ds Dataset) (err error) {
	ctx, finish := a.begin(ctx, "aggregator.save", ds)
	defer func() { finish(err) }()

	result, err := a.strategy.Eval(a.columns)
	if err != nil {
		return err
	}
	result = StampParent(result, ds.ID())

	child, err := a.linker.Find(ctx, ds, a.groups)
	if err != nil {
		return err
	}
	if child == nil {
		var created bool
		child, created, err = a.linker.CreateAndLink(ctx, ds, a.groups, result)
		if err != nil {
			return err
		}
		if created {
			a.result = result
			return nil
		}
	}

	unlock, err := a.deps.Locker.Lock(ctx, childLockKey(child))
	if err != nil {
		return err
	}
	defer unlock()

	var merged *frame.Frame
	err = a.deps.Runner.InTx(ctx, func(ctx context.Context) error {
		existing, err := child.Frame(ctx, FrameOptions{KeepParentIDs: true, Reload: true})
		if err != nil {
			return err
		}
		block := result
		if own := RowsForParent(existing, ds.ID()); own.Len() > 0 {
			if block, err = frame.GroupJoin(a.groups, own, result); err != nil {
				return err
			}
		}
		merged = block
		if others := RowsExceptParent(existing, ds.ID()); others.Len() > 0 {
			merged = frame.Concat(others, block)
		}
		return child.ReplaceObservations(ctx, merged)
	})
	if err != nil {
		return err
	}
	a.result = merged
	a.log.Debug("aggregation merged", append(ctxutil.LogFields(ctx), "child_id", child.ID(), "rows", merged.Len())...)
	return nil
}

// Update replaces the rows that ds contributes to child, a dataset that may
// be fed by several parents, and returns child's new observations without
// provenance.
//
// The reduce path folds the columns this aggregator was built with (the rows
// newly added to ds) into ds's previous row; it falls back to recompute when
// ds does not have exactly one previous row in child. The recompute path resolves
// formula against ds's current rows and evaluates the aggregation afresh;
// columns of ds's previous rows that the fresh result does not produce are
// carried over by group key, and fresh values win where both exist. Rows of
// other parents are left untouched.
func (a *Aggregator) Update(ctx context.Context, ds, child Dataset, formula string, reducible bool) (out *frame.Frame, err error) {
	ctx, finish := a.begin(ctx, "aggregator.update", ds)
	defer func() { finish(err) }()

	unlock, err := a.deps.Locker.Lock(ctx, childLockKey(child))
	if err != nil {
		return nil, err
	}
	defer unlock()

	path := PathRecompute
	if a.IsReducible(reducible) {
		path = PathReduce
	}

	err = a.deps.Runner.InTx(ctx, func(ctx context.Context) error {
		current, err := child.Frame(ctx, FrameOptions{KeepParentIDs: true, Reload: true})
		if err != nil {
			return err
		}
		own := RowsForParent(current, ds.ID())
		if path == PathReduce && own.Len() != 1 {
			// Nothing to fold into: the delta alone is not ds's total.
			path = PathRecompute
		}

		if err := child.RemoveParentObservations(ctx, ds.ID()); err != nil {
			return err
		}

		var block *frame.Frame
		if path == PathReduce {
			block, err = a.strategy.(aggregations.Reducer).Reduce(own, a.columns)
		} else {
			block, err = a.recompute(ctx, ds, formula, own)
		}
		if err != nil {
			return err
		}
		block = StampParent(block, ds.ID())

		others, err := child.Frame(ctx, FrameOptions{KeepParentIDs: true, Reload: true})
		if err != nil {
			return err
		}
		return child.ReplaceObservations(ctx, frame.Concat(others, block))
	})
	if err != nil {
		return nil, err
	}
	a.deps.Hooks.IncUpdatePath(path)
	a.log.Debug("aggregation updated", append(ctxutil.LogFields(ctx), "child_id", child.ID(), "path", path)...)

	return child.Frame(ctx, FrameOptions{Reload: true})
}

func (a *Aggregator) recompute(ctx context.Context, ds Dataset, formula string, own *frame.Frame) (*frame.Frame, error) {
	if a.deps.Resolver == nil {
		return nil, aggregates.NewError(aggregates.CodeInternal, "aggregator.recompute", "no column resolver configured", nil)
	}
	full, err := ds.Frame(ctx, FrameOptions{Reload: true})
	if err != nil {
		return nil, err
	}
	columns, err := a.deps.Resolver.Resolve(ctx, ds, formula, a.name, full)
	if err != nil {
		return nil, err
	}
	strategy, err := aggregations.New(a.kind, a.name, a.groups, full)
	if err != nil {
		return nil, err
	}
	fresh, err := strategy.Eval(columns)
	if err != nil {
		return nil, err
	}

	isGroup := make(map[string]struct{}, len(a.groups))
	for _, g := range a.groups {
		isGroup[g] = struct{}{}
	}
	var produced []string
	for _, c := range fresh.Columns() {
		if _, ok := isGroup[c]; !ok {
			produced = append(produced, c)
		}
	}
	return frame.GroupJoin(a.groups, fresh, own.Drop(produced...))
}

func childLockKey(child Dataset) string {
	return "aggregated:" + child.ID().String()
}

// begin opens a span and returns a func that records the outcome of op.
func (a *Aggregator) begin(ctx context.Context, op string, ds Dataset) (context.Context, func(error)) {
	start := time.Now()
	ctx, span := a.deps.Tracer.Start(ctx, op)
	span.SetAttributes(
		attribute.String("dataset_id", ds.ID().String()),
		attribute.String("aggregation", a.name),
		attribute.String("kind", string(a.kind)),
		attribute.String("groups", strings.Join(a.groups, ",")),
	)
	return ctx, func(err error) {
		status := "success"
		if err != nil {
			status = string(aggregates.CodeOf(err))
			if status == "" {
				status = "failure"
			}
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
			a.log.Warn("aggregation failed", append(ctxutil.LogFields(ctx), "op", op, "dataset_id", ds.ID(), "error", err)...)
		}
		span.End()
		a.deps.Hooks.ObserveOperation(op, status, time.Since(start))
	}
}
