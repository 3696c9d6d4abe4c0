package aggregates

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"sync"

	"github.com/google/uuid"
	"gorm.io/datatypes"

	"github.com/yungbote/datasetagg/internal/aggregator"
	"github.com/yungbote/datasetagg/internal/data/repos"
	types "github.com/yungbote/datasetagg/internal/domain"
	domainagg "github.com/yungbote/datasetagg/internal/domain/aggregates"
	"github.com/yungbote/datasetagg/internal/frame"
	"github.com/yungbote/datasetagg/internal/platform/dbctx"
	"github.com/yungbote/datasetagg/internal/platform/logger"
)

const (
	datasetTable           = "dataset"
	defaultMaxLinkAttempts = 5
)

// Store hands out Dataset handles over the dataset and observation tables.
type Store struct {
	deps         BaseDeps
	log          *logger.Logger
	datasets     repos.DatasetRepo
	observations repos.ObservationRepo
	links        CASGuard

	// MaxLinkAttempts bounds the compare-and-set loop of LinkAggregatedDataset.
	MaxLinkAttempts int
}

func NewStore(deps BaseDeps) *Store {
	deps = deps.withDefaults()
	return &Store{
		deps:            deps,
		log:             deps.Log.With("component", "DatasetStore"),
		datasets:        repos.NewDatasetRepo(deps.DB, deps.Log),
		observations:    repos.NewObservationRepo(deps.DB, deps.Log),
		links:           NewCASGuard(deps.DB, datasetTable),
		MaxLinkAttempts: defaultMaxLinkAttempts,
	}
}

var _ domainagg.Aggregate = (*Store)(nil)

func (s *Store) Contract() domainagg.Contract { return domainagg.DatasetContract }

// Runner is the transaction runner handles join through their context.
func (s *Store) Runner() TxRunner { return s.deps.Runner }

// Create inserts an empty dataset.
func (s *Store) Create(ctx context.Context, title string) (*Dataset, error) {
	var row *types.Dataset
	err := s.deps.write(ctx, "dataset.create", func(dbc dbctx.Context) error {
		var err error
		row, err = s.datasets.Create(dbc, &types.Dataset{
			Title:              strings.TrimSpace(title),
			Columns:            datatypes.JSON([]byte("[]")),
			AggregatedDatasets: datatypes.JSON([]byte("{}")),
		})
		return err
	})
	if err != nil {
		return nil, err
	}
	return s.handle(row.ID), nil
}

// Get returns a handle for an existing dataset.
func (s *Store) Get(ctx context.Context, id uuid.UUID) (*Dataset, error) {
	if _, err := s.load(dbctx.From(ctx), "dataset.get", id); err != nil {
		return nil, err
	}
	return s.handle(id), nil
}

func (s *Store) handle(id uuid.UUID) *Dataset {
	return &Dataset{store: s, id: id}
}

func (s *Store) load(dbc dbctx.Context, op string, id uuid.UUID) (*types.Dataset, error) {
	row, err := s.datasets.GetByID(dbc, id)
	if err != nil {
		return nil, MapError(op, err)
	}
	if row == nil {
		return nil, domainagg.Errorf(domainagg.CodeNotFound, op, "dataset %s not found", id)
	}
	return row, nil
}

var _ aggregator.Dataset = (*Dataset)(nil)

// Dataset is a handle on one dataset row. Reads made outside a transaction
// are cached on the handle until the next write through it.
type Dataset struct {
	store *Store
	id    uuid.UUID

	mu    sync.Mutex
	cache *frame.Frame
}

func (d *Dataset) ID() uuid.UUID { return d.id }

func (d *Dataset) JoinGroups(groups []string) string { return aggregator.JoinGroups(groups) }

func (d *Dataset) Create(ctx context.Context) (aggregator.Dataset, error) {
	return d.store.Create(ctx, "")
}

func (d *Dataset) invalidate() {
	d.mu.Lock()
	d.cache = nil
	d.mu.Unlock()
}

// SaveObservations appends the rows of f. New columns are added to the
// dataset's column list in f's order.
func (d *Dataset) SaveObservations(ctx context.Context, f *frame.Frame) error {
	defer d.invalidate()
	return d.store.deps.write(ctx, "dataset.save_observations", func(dbc dbctx.Context) error {
		row, err := d.store.load(dbc, "dataset.save_observations", d.id)
		if err != nil {
			return err
		}
		columns, err := decodeColumns(row.Columns)
		if err != nil {
			return err
		}
		obs, err := toObservations(f)
		if err != nil {
			return err
		}
		if _, err := d.store.observations.Append(dbc, d.id, obs); err != nil {
			return err
		}
		merged := unionColumns(columns, f.Columns())
		if len(merged) == len(columns) {
			return nil
		}
		return d.store.datasets.UpdateFields(dbc, d.id, map[string]interface{}{"columns": encodeJSON(merged)})
	})
}

// ReplaceObservations swaps every row for the rows of f and takes f's column
// list, in one transaction.
func (d *Dataset) ReplaceObservations(ctx context.Context, f *frame.Frame) error {
	defer d.invalidate()
	return d.store.deps.write(ctx, "dataset.replace_observations", func(dbc dbctx.Context) error {
		if _, err := d.store.load(dbc, "dataset.replace_observations", d.id); err != nil {
			return err
		}
		obs, err := toObservations(f)
		if err != nil {
			return err
		}
		if err := d.store.observations.DeleteByDataset(dbc, d.id); err != nil {
			return err
		}
		if _, err := d.store.observations.Append(dbc, d.id, obs); err != nil {
			return err
		}
		return d.store.datasets.UpdateFields(dbc, d.id, map[string]interface{}{"columns": encodeJSON(f.Columns())})
	})
}

func (d *Dataset) Frame(ctx context.Context, opts aggregator.FrameOptions) (*frame.Frame, error) {
	inTx := dbctx.Tx(ctx) != nil
	d.mu.Lock()
	cached := d.cache
	d.mu.Unlock()

	f := cached
	if f == nil || opts.Reload || inTx {
		var err error
		f, err = d.read(ctx)
		if err != nil {
			return nil, err
		}
		if !inTx {
			d.mu.Lock()
			d.cache = f
			d.mu.Unlock()
		}
	}
	if opts.KeepParentIDs {
		return f, nil
	}
	return f.Drop(aggregator.ParentColumn), nil
}

func (d *Dataset) read(ctx context.Context) (*frame.Frame, error) {
	const op = "dataset.frame"
	var out *frame.Frame
	err := d.store.deps.read(ctx, op, func(dbc dbctx.Context) error {
		row, err := d.store.load(dbc, op, d.id)
		if err != nil {
			return err
		}
		columns, err := decodeColumns(row.Columns)
		if err != nil {
			return err
		}
		obs, err := d.store.observations.ListByDataset(dbc, d.id)
		if err != nil {
			return err
		}
		out, err = fromObservations(columns, obs)
		return err
	})
	return out, err
}

func (d *Dataset) RemoveParentObservations(ctx context.Context, parentID uuid.UUID) error {
	defer d.invalidate()
	return d.store.deps.write(ctx, "dataset.remove_parent_observations", func(dbc dbctx.Context) error {
		return d.store.observations.DeleteByParent(dbc, d.id, parentID)
	})
}

// Update writes metadata fields. Only "title" is writable; columns and links
// are owned by the observation and link operations.
func (d *Dataset) Update(ctx context.Context, fields map[string]any) error {
	const op = "dataset.update"
	updates := map[string]interface{}{}
	for k, v := range fields {
		switch k {
		case "title":
			updates["title"] = fmt.Sprint(v)
		default:
			return domainagg.Errorf(domainagg.CodeValidation, op, "field %q is not writable", k)
		}
	}
	return d.store.deps.write(ctx, op, func(dbc dbctx.Context) error {
		if _, err := d.store.load(dbc, op, d.id); err != nil {
			return err
		}
		return d.store.datasets.UpdateFields(dbc, d.id, updates)
	})
}

func (d *Dataset) AggregatedDataset(ctx context.Context, groups []string) (aggregator.Dataset, error) {
	links, err := d.AggregatedDatasets(ctx)
	if err != nil {
		return nil, err
	}
	id, ok := links[d.JoinGroups(groups)]
	if !ok {
		return nil, nil
	}
	return d.store.handle(id), nil
}

func (d *Dataset) AggregatedDatasets(ctx context.Context) (map[string]uuid.UUID, error) {
	const op = "dataset.aggregated_datasets"
	var links map[string]uuid.UUID
	err := d.store.deps.read(ctx, op, func(dbc dbctx.Context) error {
		row, err := d.store.load(dbc, op, d.id)
		if err != nil {
			return err
		}
		links, err = decodeLinks(row.AggregatedDatasets)
		return err
	})
	return links, err
}

// LinkAggregatedDataset records signature -> child with a version
// compare-and-set on the dataset row. A signature that is already linked is
// left alone and its id returned. Lost races are retried a bounded number of
// times before failing with CodeConflict.
func (d *Dataset) LinkAggregatedDataset(ctx context.Context, signature string, child uuid.UUID) (uuid.UUID, error) {
	const op = "dataset.link_aggregated_dataset"
	attempts := d.store.MaxLinkAttempts
	if attempts <= 0 {
		attempts = defaultMaxLinkAttempts
	}
	for attempt := 1; attempt <= attempts; attempt++ {
		var winner uuid.UUID
		err := d.store.deps.write(ctx, op, func(dbc dbctx.Context) error {
			row, err := d.store.load(dbc, op, d.id)
			if err != nil {
				return err
			}
			links, err := decodeLinks(row.AggregatedDatasets)
			if err != nil {
				return err
			}
			if existing, ok := links[signature]; ok {
				winner = existing
				return nil
			}
			links[signature] = child
			if err := d.store.links.Bump(dbc, d.id, row.Version, map[string]any{
				"aggregated_datasets": encodeJSON(links),
			}); err != nil {
				return err
			}
			winner = child
			return nil
		})
		if err == nil {
			return winner, nil
		}
		if !domainagg.IsCode(err, domainagg.CodeConflict) {
			return uuid.Nil, err
		}
		d.store.log.Debug("link compare-and-set lost; retrying", "dataset_id", d.id, "signature", signature, "attempt", attempt)
	}
	return uuid.Nil, domainagg.Errorf(domainagg.CodeConflict, op, "could not link signature %q on dataset %s after %d attempts", signature, d.id, attempts)
}

func toObservations(f *frame.Frame) ([]*types.Observation, error) {
	const op = "dataset.encode_rows"
	if f == nil {
		return nil, nil
	}
	var dataCols []string
	for _, c := range f.Columns() {
		if c != aggregator.ParentColumn {
			dataCols = append(dataCols, c)
		}
	}
	out := make([]*types.Observation, 0, f.Len())
	for i := 0; i < f.Len(); i++ {
		r := f.Row(i)
		data, err := frame.EncodeRow(r, dataCols)
		if err != nil {
			return nil, domainagg.NewError(domainagg.CodeValidation, op, fmt.Sprintf("row %d is not encodable", i), err)
		}
		o := &types.Observation{Data: datatypes.JSON(data)}
		if raw, ok := r[aggregator.ParentColumn].(string); ok && raw != "" {
			pid, err := uuid.Parse(raw)
			if err != nil {
				return nil, domainagg.Errorf(domainagg.CodeValidation, op, "row %d has invalid %s %q", i, aggregator.ParentColumn, raw)
			}
			o.ParentDatasetID = &pid
		}
		out = append(out, o)
	}
	return out, nil
}

func fromObservations(columns []string, obs []*types.Observation) (*frame.Frame, error) {
	rows := make([]frame.Row, 0, len(obs))
	hasParent := false
	for _, c := range columns {
		if c == aggregator.ParentColumn {
			hasParent = true
		}
	}
	for _, o := range obs {
		r, err := frame.DecodeRow(o.Data)
		if err != nil {
			return nil, domainagg.NewError(domainagg.CodeStorage, "dataset.decode_rows", "corrupt observation data", err)
		}
		if o.ParentDatasetID != nil {
			r[aggregator.ParentColumn] = o.ParentDatasetID.String()
			if !hasParent {
				columns = append(columns, aggregator.ParentColumn)
				hasParent = true
			}
		}
		rows = append(rows, r)
	}
	return frame.New(columns, rows)
}

func decodeColumns(raw datatypes.JSON) ([]string, error) {
	var cols []string
	if len(raw) == 0 {
		return cols, nil
	}
	if err := json.Unmarshal(raw, &cols); err != nil {
		return nil, domainagg.NewError(domainagg.CodeStorage, "dataset.decode_columns", "corrupt column list", err)
	}
	return cols, nil
}

func decodeLinks(raw datatypes.JSON) (map[string]uuid.UUID, error) {
	links := map[string]uuid.UUID{}
	if len(raw) == 0 {
		return links, nil
	}
	if err := json.Unmarshal(raw, &links); err != nil {
		return nil, domainagg.NewError(domainagg.CodeStorage, "dataset.decode_links", "corrupt aggregated dataset links", err)
	}
	return links, nil
}

func encodeJSON(v any) datatypes.JSON {
	raw, _ := json.Marshal(v)
	return datatypes.JSON(raw)
}

func unionColumns(have, add []string) []string {
	out := append([]string(nil), have...)
	seen := make(map[string]struct{}, len(have))
	for _, c := range have {
		seen[c] = struct{}{}
	}
	for _, c := range add {
		if _, ok := seen[c]; !ok {
			seen[c] = struct{}{}
			out = append(out, c)
		}
	}
	return out
}
