package services

import (
	"context"
	"encoding/json"
	"strings"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"
	"gorm.io/datatypes"

	"github.com/yungbote/datasetagg/internal/aggregator"
	"github.com/yungbote/datasetagg/internal/data/aggregates"
	"github.com/yungbote/datasetagg/internal/data/repos"
	types "github.com/yungbote/datasetagg/internal/domain"
	domainagg "github.com/yungbote/datasetagg/internal/domain/aggregates"
	"github.com/yungbote/datasetagg/internal/formula"
	"github.com/yungbote/datasetagg/internal/frame"
	"github.com/yungbote/datasetagg/internal/platform/dbctx"
	"github.com/yungbote/datasetagg/internal/platform/logger"
)

type CalculationService interface {
	CreateDataset(ctx context.Context, title string, rows *frame.Frame) (uuid.UUID, error)
	AddCalculation(ctx context.Context, datasetID uuid.UUID, name, formula string, groups []string) (*types.Calculation, error)
	AppendObservations(ctx context.Context, datasetID uuid.UUID, rows *frame.Frame) error
	AggregatedFrame(ctx context.Context, datasetID uuid.UUID, groups []string) (*frame.Frame, error)
	ListCalculations(ctx context.Context, datasetID uuid.UUID) ([]*types.Calculation, error)
}

type CalculationServiceDeps struct {
	Log   *logger.Logger
	Store *aggregates.Store
	Calcs repos.CalculationRepo
	// Aggregator carries the locker, resolver, hooks and tracer. Its Runner is
	// replaced by the store's so handle writes join the same transaction.
	Aggregator     aggregator.Deps
	MaxConcurrency int
}

type calculationService struct {
	log            *logger.Logger
	store          *aggregates.Store
	calcs          repos.CalculationRepo
	deps           aggregator.Deps
	maxConcurrency int
}

func NewCalculationService(d CalculationServiceDeps) CalculationService {
	log := d.Log
	if log == nil {
		log = logger.Nop()
	}
	deps := d.Aggregator
	deps.Log = log
	if deps.Runner == nil {
		deps.Runner = d.Store.Runner()
	}
	if deps.Resolver == nil {
		deps.Resolver = formula.NewResolver()
	}
	limit := d.MaxConcurrency
	if limit <= 0 {
		limit = 1
	}
	return &calculationService{
		log:            log.With("service", "CalculationService"),
		store:          d.Store,
		calcs:          d.Calcs,
		deps:           deps,
		maxConcurrency: limit,
	}
}

func (s *calculationService) CreateDataset(ctx context.Context, title string, rows *frame.Frame) (uuid.UUID, error) {
	ds, err := s.store.Create(ctx, strings.TrimSpace(title))
	if err != nil {
		return uuid.Nil, err
	}
	if rows != nil && len(rows.Columns()) > 0 {
		if err := ds.SaveObservations(ctx, rows); err != nil {
			return uuid.Nil, err
		}
	}
	s.log.Info("dataset created", "dataset_id", ds.ID(), "rows", frameLen(rows))
	return ds.ID(), nil
}

// AddCalculation evaluates formula over the dataset's current rows, saves the
// result into the aggregated dataset for groups and records the calculation
// so later appends keep it current. Names are unique per dataset.
func (s *calculationService) AddCalculation(ctx context.Context, datasetID uuid.UUID, name, f string, groups []string) (*types.Calculation, error) {
	const op = "calculation.add"
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, domainagg.NewError(domainagg.CodeValidation, op, "calculation name is required", nil)
	}
	expr, err := formula.Parse(f)
	if err != nil {
		return nil, err
	}
	groups = cleanGroups(groups)

	parent, err := s.store.Get(ctx, datasetID)
	if err != nil {
		return nil, err
	}
	dbc := dbctx.From(ctx)
	existing, err := s.calcs.GetByName(dbc, datasetID, name)
	if err != nil {
		return nil, aggregates.MapError(op, err)
	}
	if existing != nil {
		return nil, domainagg.Errorf(domainagg.CodeConflict, op, "calculation %q already exists on dataset %s", name, datasetID)
	}

	full, err := parent.Frame(ctx, aggregator.FrameOptions{Reload: true})
	if err != nil {
		return nil, err
	}
	for _, g := range groups {
		if !full.HasColumn(g) {
			return nil, domainagg.Errorf(domainagg.CodeValidation, op, "group column %q is not in dataset %s", g, datasetID)
		}
	}
	columns, err := s.deps.Resolver.Resolve(ctx, parent, f, name, full)
	if err != nil {
		return nil, err
	}
	agg, err := aggregator.New(s.deps, full, groups, expr.Kind, name, columns)
	if err != nil {
		return nil, err
	}
	if err := agg.Save(ctx, parent); err != nil {
		return nil, err
	}

	row, err := s.calcs.Create(dbc, &types.Calculation{
		DatasetID: datasetID,
		Name:      name,
		Formula:   strings.TrimSpace(f),
		Kind:      string(expr.Kind),
		Groups:    encodeGroups(groups),
	})
	if err != nil {
		return nil, aggregates.MapError(op, err)
	}
	s.log.Info("calculation added", "dataset_id", datasetID, "name", name, "formula", row.Formula, "groups", groups)
	return row, nil
}

// AppendObservations saves rows on the dataset and brings every calculation's
// aggregated dataset up to date. Calculations run concurrently up to
// MaxConcurrency; writers to the same aggregated dataset are serialised by its
// lock.
func (s *calculationService) AppendObservations(ctx context.Context, datasetID uuid.UUID, rows *frame.Frame) error {
	const op = "calculation.append"
	if rows == nil || rows.Len() == 0 {
		return nil
	}
	parent, err := s.store.Get(ctx, datasetID)
	if err != nil {
		return err
	}
	if err := parent.SaveObservations(ctx, rows); err != nil {
		return err
	}
	calcs, err := s.calcs.ListByDataset(dbctx.From(ctx), datasetID)
	if err != nil {
		return aggregates.MapError(op, err)
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.maxConcurrency)
	for _, c := range calcs {
		c := c
		g.Go(func() error {
			return s.refresh(gctx, parent, c, rows)
		})
	}
	if err := g.Wait(); err != nil {
		return err
	}
	s.log.Debug("observations appended", "dataset_id", datasetID, "rows", rows.Len(), "calculations", len(calcs))
	return nil
}

func (s *calculationService) refresh(ctx context.Context, parent *aggregates.Dataset, c *types.Calculation, delta *frame.Frame) error {
	groups, err := decodeGroups(c.Groups)
	if err != nil {
		return domainagg.Wrap(domainagg.CodeStorage, "calculation.refresh", err)
	}
	child, err := parent.AggregatedDataset(ctx, groups)
	if err != nil {
		return err
	}
	if child == nil {
		// The aggregated dataset is gone; rebuild it from every row.
		s.log.Warn("aggregated dataset missing; recomputing", "dataset_id", parent.ID(), "calculation", c.Name)
		full, err := parent.Frame(ctx, aggregator.FrameOptions{Reload: true})
		if err != nil {
			return err
		}
		agg, err := s.bind(ctx, parent, c, groups, full)
		if err != nil {
			return err
		}
		return agg.Save(ctx, parent)
	}
	agg, err := s.bind(ctx, parent, c, groups, delta)
	if err != nil {
		return err
	}
	_, err = agg.Update(ctx, parent, child, c.Formula, true)
	return err
}

func (s *calculationService) bind(ctx context.Context, parent *aggregates.Dataset, c *types.Calculation, groups []string, source *frame.Frame) (*aggregator.Aggregator, error) {
	expr, err := formula.Parse(c.Formula)
	if err != nil {
		return nil, err
	}
	columns, err := s.deps.Resolver.Resolve(ctx, parent, c.Formula, c.Name, source)
	if err != nil {
		return nil, err
	}
	return aggregator.New(s.deps, source, groups, expr.Kind, c.Name, columns)
}

func (s *calculationService) AggregatedFrame(ctx context.Context, datasetID uuid.UUID, groups []string) (*frame.Frame, error) {
	parent, err := s.store.Get(ctx, datasetID)
	if err != nil {
		return nil, err
	}
	groups = cleanGroups(groups)
	child, err := parent.AggregatedDataset(ctx, groups)
	if err != nil {
		return nil, err
	}
	if child == nil {
		return nil, domainagg.Errorf(domainagg.CodeNotFound, "calculation.aggregated_frame", "dataset %s has no aggregated dataset for %q", datasetID, aggregator.JoinGroups(groups))
	}
	return child.Frame(ctx, aggregator.FrameOptions{Reload: true})
}

func (s *calculationService) ListCalculations(ctx context.Context, datasetID uuid.UUID) ([]*types.Calculation, error) {
	out, err := s.calcs.ListByDataset(dbctx.From(ctx), datasetID)
	if err != nil {
		return nil, aggregates.MapError("calculation.list", err)
	}
	return out, nil
}

func cleanGroups(groups []string) []string {
	out := make([]string, 0, len(groups))
	for _, g := range groups {
		if g = strings.TrimSpace(g); g != "" {
			out = append(out, g)
		}
	}
	return out
}

func encodeGroups(groups []string) datatypes.JSON {
	if groups == nil {
		groups = []string{}
	}
	b, _ := json.Marshal(groups)
	return datatypes.JSON(b)
}

func decodeGroups(raw datatypes.JSON) ([]string, error) {
	if len(raw) == 0 {
		return nil, nil
	}
	var out []string
	if err := json.Unmarshal(raw, &out); err != nil {
		return nil, err
	}
	return out, nil
}

func frameLen(f *frame.Frame) int {
	if f == nil {
		return 0
	}
	return f.Len()
}
