package aggregates_test

import (
	"context"
	"errors"
	"testing"

	"github.com/google/uuid"

	"github.com/yungbote/datasetagg/internal/aggregations"
	"github.com/yungbote/datasetagg/internal/aggregator"
	"github.com/yungbote/datasetagg/internal/data/aggregates"
	aggtestutil "github.com/yungbote/datasetagg/internal/data/aggregates/testutil"
	"github.com/yungbote/datasetagg/internal/data/repos/testutil"
	types "github.com/yungbote/datasetagg/internal/domain"
	domainagg "github.com/yungbote/datasetagg/internal/domain/aggregates"
	"github.com/yungbote/datasetagg/internal/formula"
	"github.com/yungbote/datasetagg/internal/frame"
	"github.com/yungbote/datasetagg/internal/locks"
)

func newStore(t *testing.T, hooks aggregates.Hooks) *aggregates.Store {
	t.Helper()
	return aggregates.NewStore(aggregates.BaseDeps{
		DB:    testutil.DB(t),
		Log:   testutil.Logger(t),
		Hooks: hooks,
	})
}

func mustCreate(t *testing.T, s *aggregates.Store, f *frame.Frame) *aggregates.Dataset {
	t.Helper()
	ctx := context.Background()
	ds, err := s.Create(ctx, "test")
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	if f != nil {
		if err := ds.SaveObservations(ctx, f); err != nil {
			t.Fatalf("SaveObservations: %v", err)
		}
	}
	return ds
}

func TestStoreGetMissing(t *testing.T) {
	s := newStore(t, nil)
	if !s.Contract().OwnsTx() {
		t.Fatalf("dataset writes should own their transaction")
	}
	if _, err := s.Get(context.Background(), uuid.New()); !domainagg.IsCode(err, domainagg.CodeNotFound) {
		t.Fatalf("Get missing: want not_found got=%v", err)
	}
}

func TestDatasetObservationsRoundTrip(t *testing.T) {
	ctx := context.Background()
	s := newStore(t, nil)
	parent := uuid.New()
	in := frame.MustNew([]string{"a", "mean", aggregator.ParentColumn, "label"},
		frame.Row{"a": 1, "mean": 2.0, aggregator.ParentColumn: parent.String(), "label": "x"},
		frame.Row{"a": 2, "mean": 2.5, aggregator.ParentColumn: parent.String(), "label": nil},
	)
	ds := mustCreate(t, s, in)

	got, err := ds.Frame(ctx, aggregator.FrameOptions{KeepParentIDs: true, Reload: true})
	if err != nil {
		t.Fatalf("Frame: %v", err)
	}
	if !frame.Equal(got, in) {
		t.Fatalf("round trip: want=%s got=%s", in, got)
	}
	if _, ok := got.Value(0, "mean").(float64); !ok {
		t.Fatalf("integral float should stay float64, got %T", got.Value(0, "mean"))
	}
	if _, ok := got.Value(0, "a").(int64); !ok {
		t.Fatalf("integers should stay int64, got %T", got.Value(0, "a"))
	}

	plain, _ := ds.Frame(ctx, aggregator.FrameOptions{})
	if plain.HasColumn(aggregator.ParentColumn) {
		t.Fatalf("provenance should be hidden by default: %s", plain)
	}

	more := frame.MustNew([]string{"a", "extra"}, frame.Row{"a": 3, "extra": true})
	if err := ds.SaveObservations(ctx, more); err != nil {
		t.Fatalf("append: %v", err)
	}
	got, _ = ds.Frame(ctx, aggregator.FrameOptions{KeepParentIDs: true})
	wantCols := []string{"a", "mean", aggregator.ParentColumn, "label", "extra"}
	if cols := got.Columns(); len(cols) != len(wantCols) || cols[4] != "extra" {
		t.Fatalf("columns after append: %v", cols)
	}
	if got.Len() != 3 || got.Value(2, aggregator.ParentColumn) != nil || got.Value(0, "extra") != nil {
		t.Fatalf("appended rows: %s", got)
	}
}

func TestDatasetFrameCache(t *testing.T) {
	ctx := context.Background()
	s := newStore(t, nil)
	ds := mustCreate(t, s, frame.MustNew([]string{"b"}, frame.Row{"b": 1}))

	if f, _ := ds.Frame(ctx, aggregator.FrameOptions{}); f.Len() != 1 {
		t.Fatalf("first read: %s", f)
	}
	other, err := s.Get(ctx, ds.ID())
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if err := other.SaveObservations(ctx, frame.MustNew([]string{"b"}, frame.Row{"b": 2})); err != nil {
		t.Fatalf("write via second handle: %v", err)
	}
	if f, _ := ds.Frame(ctx, aggregator.FrameOptions{}); f.Len() != 1 {
		t.Fatalf("cached read should not see foreign write: %s", f)
	}
	if f, _ := ds.Frame(ctx, aggregator.FrameOptions{Reload: true}); f.Len() != 2 {
		t.Fatalf("reload should see foreign write: %s", f)
	}
}

func TestDatasetReplaceAndRemoveParent(t *testing.T) {
	ctx := context.Background()
	s := newStore(t, nil)
	p1, p2 := uuid.New(), uuid.New()
	ds := mustCreate(t, s, frame.MustNew([]string{"old"}, frame.Row{"old": 1}))

	next := frame.MustNew([]string{"n", aggregator.ParentColumn},
		frame.Row{"n": 1, aggregator.ParentColumn: p1.String()},
		frame.Row{"n": 2, aggregator.ParentColumn: p2.String()},
		frame.Row{"n": 3, aggregator.ParentColumn: p1.String()},
	)
	if err := ds.ReplaceObservations(ctx, next); err != nil {
		t.Fatalf("ReplaceObservations: %v", err)
	}
	got, _ := ds.Frame(ctx, aggregator.FrameOptions{KeepParentIDs: true, Reload: true})
	if !frame.Equal(got, next) {
		t.Fatalf("replace: want=%s got=%s", next, got)
	}

	if err := ds.RemoveParentObservations(ctx, p1); err != nil {
		t.Fatalf("RemoveParentObservations: %v", err)
	}
	got, _ = ds.Frame(ctx, aggregator.FrameOptions{KeepParentIDs: true, Reload: true})
	if got.Len() != 1 || got.Value(0, "n") != int64(2) {
		t.Fatalf("after remove: %s", got)
	}

	bad := frame.MustNew([]string{aggregator.ParentColumn}, frame.Row{aggregator.ParentColumn: "not-a-uuid"})
	if err := ds.ReplaceObservations(ctx, bad); !domainagg.IsCode(err, domainagg.CodeValidation) {
		t.Fatalf("invalid provenance: want validation got=%v", err)
	}
}

func TestDatasetUpdateFields(t *testing.T) {
	ctx := context.Background()
	s := newStore(t, nil)
	ds := mustCreate(t, s, nil)
	if err := ds.Update(ctx, map[string]any{"title": "renamed"}); err != nil {
		t.Fatalf("Update title: %v", err)
	}
	if err := ds.Update(ctx, map[string]any{"aggregated_datasets": "{}"}); !domainagg.IsCode(err, domainagg.CodeValidation) {
		t.Fatalf("Update links: want validation got=%v", err)
	}
}

func TestLinkAggregatedDatasetKeepsFirstWinner(t *testing.T) {
	ctx := context.Background()
	hooks := &aggtestutil.HooksRecorder{}
	s := newStore(t, hooks)
	parent := mustCreate(t, s, nil)
	c1, c2 := uuid.New(), uuid.New()

	winner, err := parent.LinkAggregatedDataset(ctx, "a,b", c1)
	if err != nil || winner != c1 {
		t.Fatalf("first link: winner=%s err=%v", winner, err)
	}
	winner, err = parent.LinkAggregatedDataset(ctx, "a,b", c2)
	if err != nil || winner != c1 {
		t.Fatalf("second link must keep first: winner=%s err=%v", winner, err)
	}
	if _, err := parent.LinkAggregatedDataset(ctx, "", c2); err != nil {
		t.Fatalf("ungrouped link: %v", err)
	}
	links, err := parent.AggregatedDatasets(ctx)
	if err != nil || len(links) != 2 || links["a,b"] != c1 || links[""] != c2 {
		t.Fatalf("links: %v err=%v", links, err)
	}
	child, err := parent.AggregatedDataset(ctx, []string{"a", "b"})
	if err != nil || child == nil || child.ID() != c1 {
		t.Fatalf("AggregatedDataset: child=%v err=%v", child, err)
	}
	if child, _ := parent.AggregatedDataset(ctx, []string{"b", "a"}); child != nil {
		t.Fatalf("signature is order sensitive, got %s", child.ID())
	}
	if ops := hooks.OperationsNamed("dataset.link_aggregated_dataset"); len(ops) != 3 {
		t.Fatalf("link operations observed: %+v", ops)
	}
}

func newAggregator(t *testing.T, deps aggregator.Deps, ds aggregator.Dataset, source *frame.Frame, groups []string, f, name string) *aggregator.Aggregator {
	t.Helper()
	expr, err := formula.Parse(f)
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	cols, err := formula.NewResolver().Resolve(context.Background(), ds, f, name, source)
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	agg, err := aggregator.New(deps, source, groups, expr.Kind, name, cols)
	if err != nil {
		t.Fatalf("aggregator.New: %v", err)
	}
	return agg
}

func TestAggregatorOnStoreGroupedSum(t *testing.T) {
	ctx := context.Background()
	s := newStore(t, nil)
	deps := aggregator.Deps{Locker: locks.NewKeyedMutex(), Runner: s.Runner(), Resolver: formula.NewResolver()}

	base := frame.MustNew([]string{"a", "b"},
		frame.Row{"a": 1, "b": 10}, frame.Row{"a": 1, "b": 20}, frame.Row{"a": 2, "b": 5})
	parent := mustCreate(t, s, base)

	if err := newAggregator(t, deps, parent, base, []string{"a"}, "sum(b)", "sum_b").Save(ctx, parent); err != nil {
		t.Fatalf("Save: %v", err)
	}
	child, err := parent.AggregatedDataset(ctx, []string{"a"})
	if err != nil || child == nil {
		t.Fatalf("child: %v err=%v", child, err)
	}
	got, _ := child.Frame(ctx, aggregator.FrameOptions{Reload: true})
	want := frame.MustNew([]string{"a", "sum_b"}, frame.Row{"a": 1, "sum_b": 30}, frame.Row{"a": 2, "sum_b": 5})
	if !frame.Equal(got, want) {
		t.Fatalf("first save: want=%s got=%s", want, got)
	}

	if err := parent.SaveObservations(ctx, frame.MustNew([]string{"a", "b"}, frame.Row{"a": 1, "b": 5})); err != nil {
		t.Fatalf("append: %v", err)
	}
	full, _ := parent.Frame(ctx, aggregator.FrameOptions{Reload: true})
	if err := newAggregator(t, deps, parent, full, []string{"a"}, "sum(b)", "sum_b").Save(ctx, parent); err != nil {
		t.Fatalf("second Save: %v", err)
	}
	got, _ = child.Frame(ctx, aggregator.FrameOptions{Reload: true})
	want = frame.MustNew([]string{"a", "sum_b"}, frame.Row{"a": 1, "sum_b": 35}, frame.Row{"a": 2, "sum_b": 5})
	if !frame.Equal(got, want) {
		t.Fatalf("second save: want=%s got=%s", want, got)
	}
}

func TestAggregatorOnStoreReduceKeepsOtherParent(t *testing.T) {
	ctx := context.Background()
	s := newStore(t, nil)
	deps := aggregator.Deps{Locker: locks.NewKeyedMutex(), Runner: s.Runner(), Resolver: formula.NewResolver()}

	p1 := mustCreate(t, s, frame.MustNew([]string{"b"}, frame.Row{"b": 1}, frame.Row{"b": 2}, frame.Row{"b": 3}))
	p2 := mustCreate(t, s, frame.MustNew([]string{"b"}, frame.Row{"b": 1}, frame.Row{"b": 1}, frame.Row{"b": 1}, frame.Row{"b": 1}))
	child := mustCreate(t, s, frame.MustNew([]string{"count_b", aggregator.ParentColumn},
		frame.Row{"count_b": 3, aggregator.ParentColumn: p1.ID().String()},
		frame.Row{"count_b": 4, aggregator.ParentColumn: p2.ID().String()},
	))
	linker := aggregator.NewLinker(deps)
	for _, p := range []*aggregates.Dataset{p1, p2} {
		if err := linker.Share(ctx, p, nil, child); err != nil {
			t.Fatalf("Share: %v", err)
		}
	}

	delta := frame.MustNew([]string{"b"}, frame.Row{"b": 4})
	if err := p1.SaveObservations(ctx, delta); err != nil {
		t.Fatalf("append: %v", err)
	}
	out, err := newAggregator(t, deps, p1, delta, nil, "count(b)", "count_b").Update(ctx, p1, child, "count(b)", true)
	if err != nil {
		t.Fatalf("Update: %v", err)
	}
	want := frame.MustNew([]string{"count_b"}, frame.Row{"count_b": 4}, frame.Row{"count_b": 4})
	if !frame.Equal(out, want) {
		t.Fatalf("Update result: want=%s got=%s", want, out)
	}
	full, _ := child.Frame(ctx, aggregator.FrameOptions{KeepParentIDs: true, Reload: true})
	if full.Value(0, aggregator.ParentColumn) != p2.ID().String() || full.Value(1, aggregator.ParentColumn) != p1.ID().String() {
		t.Fatalf("other parent's rows should come first: %s", full)
	}
}

func TestAggregatorSaveOnSharedChildKeepsOtherProvenance(t *testing.T) {
	ctx := context.Background()
	s := newStore(t, nil)
	deps := aggregator.Deps{Locker: locks.NewKeyedMutex(), Runner: s.Runner(), Resolver: formula.NewResolver()}

	p1 := mustCreate(t, s, frame.MustNew([]string{"b"}, frame.Row{"b": 1}, frame.Row{"b": 2}, frame.Row{"b": 3}))
	p2src := frame.MustNew([]string{"b"}, frame.Row{"b": 1}, frame.Row{"b": 1}, frame.Row{"b": 1}, frame.Row{"b": 1})
	p2 := mustCreate(t, s, p2src)
	child := mustCreate(t, s, frame.MustNew([]string{"count_b", aggregator.ParentColumn},
		frame.Row{"count_b": 3, aggregator.ParentColumn: p1.ID().String()},
		frame.Row{"count_b": 4, aggregator.ParentColumn: p2.ID().String()},
	))
	linker := aggregator.NewLinker(deps)
	for _, p := range []*aggregates.Dataset{p1, p2} {
		if err := linker.Share(ctx, p, nil, child); err != nil {
			t.Fatalf("Share: %v", err)
		}
	}

	if err := newAggregator(t, deps, p2, p2src, nil, "sum(b)", "sum_b").Save(ctx, p2); err != nil {
		t.Fatalf("Save: %v", err)
	}
	full, err := child.Frame(ctx, aggregator.FrameOptions{KeepParentIDs: true, Reload: true})
	if err != nil {
		t.Fatalf("Frame: %v", err)
	}
	p1Rows := aggregator.RowsForParent(full, p1.ID())
	if p1Rows.Len() != 1 || !frame.ValuesEqual(p1Rows.Value(0, "count_b"), 3) || p1Rows.Value(0, "sum_b") != nil {
		t.Fatalf("p1 row must be untouched: %s", full)
	}
	p2Rows := aggregator.RowsForParent(full, p2.ID())
	if p2Rows.Len() != 1 || !frame.ValuesEqual(p2Rows.Value(0, "count_b"), 4) || !frame.ValuesEqual(p2Rows.Value(0, "sum_b"), 4) {
		t.Fatalf("p2 row: %s", full)
	}
}

func TestCreateAndLinkRollsBackOnFailure(t *testing.T) {
	ctx := context.Background()
	s := newStore(t, nil)
	boom := errors.New("commit refused")
	runner := &aggtestutil.InjectedTxRunner{Next: s.Runner(), FailCommit: boom}
	deps := aggregator.Deps{Locker: locks.NewKeyedMutex(), Runner: runner, Resolver: formula.NewResolver()}

	base := frame.MustNew([]string{"a", "b"}, frame.Row{"a": 1, "b": 1})
	parent := mustCreate(t, s, base)
	agg, err := aggregator.New(deps, base, []string{"a"}, aggregations.KindSum, "sum_b", []frame.Series{{Name: "b", Values: []any{int64(1)}}})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if err := agg.Save(ctx, parent); !errors.Is(err, boom) {
		t.Fatalf("Save: want commit error got=%v", err)
	}
	if runner.Calls().Rollback != 1 {
		t.Fatalf("rollback calls: %+v", runner.Calls())
	}
	links, err := parent.AggregatedDatasets(ctx)
	if err != nil || len(links) != 0 {
		t.Fatalf("rolled back link must not persist: %v err=%v", links, err)
	}
}

// staleLinkView hides the parent's links on the first lookup, as if another
// process linked the signature right after this one checked.
type staleLinkView struct {
	*aggregates.Dataset
	looked bool
}

func (v *staleLinkView) AggregatedDataset(ctx context.Context, groups []string) (aggregator.Dataset, error) {
	if !v.looked {
		v.looked = true
		return nil, nil
	}
	return v.Dataset.AggregatedDataset(ctx, groups)
}

func TestCreateAndLinkLosingRaceRollsBackChild(t *testing.T) {
	ctx := context.Background()
	db := testutil.DB(t)
	s := aggregates.NewStore(aggregates.BaseDeps{DB: db, Log: testutil.Logger(t)})
	deps := aggregator.Deps{Locker: locks.NewKeyedMutex(), Runner: s.Runner(), Resolver: formula.NewResolver()}

	parent := mustCreate(t, s, nil)
	winner := mustCreate(t, s, nil)
	if _, err := parent.LinkAggregatedDataset(ctx, "a", winner.ID()); err != nil {
		t.Fatalf("link winner: %v", err)
	}
	var before int64
	if err := db.Model(&types.Dataset{}).Count(&before).Error; err != nil {
		t.Fatalf("count: %v", err)
	}

	result := frame.MustNew([]string{"a", "sum_b"}, frame.Row{"a": 1, "sum_b": 2})
	child, created, err := aggregator.NewLinker(deps).CreateAndLink(ctx, &staleLinkView{Dataset: parent}, []string{"a"}, result)
	if err != nil {
		t.Fatalf("CreateAndLink: %v", err)
	}
	if created || child.ID() != winner.ID() {
		t.Fatalf("want existing winner=%s got=%s created=%v", winner.ID(), child.ID(), created)
	}
	var after int64
	if err := db.Model(&types.Dataset{}).Count(&after).Error; err != nil {
		t.Fatalf("count: %v", err)
	}
	if after != before {
		t.Fatalf("losing child must be rolled back: datasets before=%d after=%d", before, after)
	}
	got, err := winner.Frame(ctx, aggregator.FrameOptions{Reload: true})
	if err != nil || got.Len() != 0 {
		t.Fatalf("winner must not receive the losing result: %v err=%v", got, err)
	}
}
