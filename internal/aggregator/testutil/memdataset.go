package testutil

import (
	"context"
	"sync"

	"github.com/google/uuid"

	"github.com/yungbote/datasetagg/internal/aggregator"
	"github.com/yungbote/datasetagg/internal/domain/aggregates"
	"github.com/yungbote/datasetagg/internal/frame"
)

// MemStore keeps datasets in memory. It implements the storage side of
// aggregator.Dataset for tests and supports failure injection per operation.
type MemStore struct {
	mu       sync.Mutex
	datasets map[uuid.UUID]*memRecord
	order    []uuid.UUID

	// Fail maps an operation name ("create", "save", "replace", "remove",
	// "frame", "link", "update") to the error it should return.
	Fail map[string]error
	// Calls counts operations by name.
	Calls map[string]int
}

type memRecord struct {
	frame  *frame.Frame
	links  map[string]uuid.UUID
	fields map[string]any
}

var _ aggregator.Dataset = (*MemDataset)(nil)

func NewMemStore() *MemStore {
	return &MemStore{
		datasets: map[uuid.UUID]*memRecord{},
		Fail:     map[string]error{},
		Calls:    map[string]int{},
	}
}

// NewDataset registers a dataset holding f (nil for empty).
func (s *MemStore) NewDataset(f *frame.Frame) *MemDataset {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.newLocked(f)
}

func (s *MemStore) newLocked(f *frame.Frame) *MemDataset {
	if f == nil {
		f = frame.Empty()
	}
	id := uuid.New()
	s.datasets[id] = &memRecord{frame: f, links: map[string]uuid.UUID{}, fields: map[string]any{}}
	s.order = append(s.order, id)
	return &MemDataset{store: s, id: id}
}

// Count is the number of datasets in the store.
func (s *MemStore) Count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.datasets)
}

// Get returns a handle for id, or nil.
func (s *MemStore) Get(id uuid.UUID) *MemDataset {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.datasets[id]; !ok {
		return nil
	}
	return &MemDataset{store: s, id: id}
}

func (s *MemStore) enter(op string) error {
	s.Calls[op]++
	return s.Fail[op]
}

func (s *MemStore) record(op string, id uuid.UUID) (*memRecord, error) {
	if err := s.enter(op); err != nil {
		return nil, err
	}
	rec, ok := s.datasets[id]
	if !ok {
		return nil, aggregates.Errorf(aggregates.CodeNotFound, "memstore."+op, "dataset %s not found", id)
	}
	return rec, nil
}

// MemDataset is a handle onto a dataset in a MemStore.
type MemDataset struct {
	store *MemStore
	id    uuid.UUID
}

func (d *MemDataset) ID() uuid.UUID { return d.id }

func (d *MemDataset) Create(context.Context) (aggregator.Dataset, error) {
	d.store.mu.Lock()
	defer d.store.mu.Unlock()
	if err := d.store.enter("create"); err != nil {
		return nil, err
	}
	return d.store.newLocked(nil), nil
}

func (d *MemDataset) SaveObservations(_ context.Context, f *frame.Frame) error {
	d.store.mu.Lock()
	defer d.store.mu.Unlock()
	rec, err := d.store.record("save", d.id)
	if err != nil {
		return err
	}
	rec.frame = frame.Concat(rec.frame, f)
	return nil
}

func (d *MemDataset) ReplaceObservations(_ context.Context, f *frame.Frame) error {
	d.store.mu.Lock()
	defer d.store.mu.Unlock()
	rec, err := d.store.record("replace", d.id)
	if err != nil {
		return err
	}
	rec.frame = f
	return nil
}

func (d *MemDataset) Frame(_ context.Context, opts aggregator.FrameOptions) (*frame.Frame, error) {
	d.store.mu.Lock()
	defer d.store.mu.Unlock()
	rec, err := d.store.record("frame", d.id)
	if err != nil {
		return nil, err
	}
	if opts.KeepParentIDs {
		return rec.frame, nil
	}
	return rec.frame.Drop(aggregator.ParentColumn), nil
}

func (d *MemDataset) RemoveParentObservations(_ context.Context, parentID uuid.UUID) error {
	d.store.mu.Lock()
	defer d.store.mu.Unlock()
	rec, err := d.store.record("remove", d.id)
	if err != nil {
		return err
	}
	want := parentID.String()
	rec.frame = rec.frame.Filter(func(r frame.Row) bool { return r[aggregator.ParentColumn] != want })
	return nil
}

func (d *MemDataset) Update(_ context.Context, fields map[string]any) error {
	d.store.mu.Lock()
	defer d.store.mu.Unlock()
	rec, err := d.store.record("update", d.id)
	if err != nil {
		return err
	}
	for k, v := range fields {
		rec.fields[k] = v
	}
	return nil
}

func (d *MemDataset) AggregatedDataset(_ context.Context, groups []string) (aggregator.Dataset, error) {
	d.store.mu.Lock()
	defer d.store.mu.Unlock()
	rec, err := d.store.record("find", d.id)
	if err != nil {
		return nil, err
	}
	id, ok := rec.links[d.JoinGroups(groups)]
	if !ok {
		return nil, nil
	}
	return &MemDataset{store: d.store, id: id}, nil
}

func (d *MemDataset) AggregatedDatasets(context.Context) (map[string]uuid.UUID, error) {
	d.store.mu.Lock()
	defer d.store.mu.Unlock()
	rec, err := d.store.record("find", d.id)
	if err != nil {
		return nil, err
	}
	out := make(map[string]uuid.UUID, len(rec.links))
	for k, v := range rec.links {
		out[k] = v
	}
	return out, nil
}

func (d *MemDataset) LinkAggregatedDataset(_ context.Context, signature string, child uuid.UUID) (uuid.UUID, error) {
	d.store.mu.Lock()
	defer d.store.mu.Unlock()
	rec, err := d.store.record("link", d.id)
	if err != nil {
		return uuid.Nil, err
	}
	if existing, ok := rec.links[signature]; ok {
		return existing, nil
	}
	rec.links[signature] = child
	return child, nil
}

func (d *MemDataset) JoinGroups(groups []string) string {
	return aggregator.JoinGroups(groups)
}

// Field returns a metadata field written through Update.
func (d *MemDataset) Field(name string) any {
	d.store.mu.Lock()
	defer d.store.mu.Unlock()
	return d.store.datasets[d.id].fields[name]
}
