package datasets

import (
	"github.com/google/uuid"
	"gorm.io/gorm"

	types "github.com/yungbote/datasetagg/internal/domain"
	"github.com/yungbote/datasetagg/internal/platform/dbctx"
	"github.com/yungbote/datasetagg/internal/platform/logger"
)

type CalculationRepo interface {
	Create(dbc dbctx.Context, row *types.Calculation) (*types.Calculation, error)

	GetByName(dbc dbctx.Context, datasetID uuid.UUID, name string) (*types.Calculation, error)
	ListByDataset(dbc dbctx.Context, datasetID uuid.UUID) ([]*types.Calculation, error)
}

type calculationRepo struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewCalculationRepo(db *gorm.DB, baseLog *logger.Logger) CalculationRepo {
	return &calculationRepo{db: db, log: baseLog.With("repo", "CalculationRepo")}
}

func (r *calculationRepo) Create(dbc dbctx.Context, row *types.Calculation) (*types.Calculation, error) {
	t := dbc.Tx
	if t == nil {
		t = r.db
	}
	if err := t.WithContext(dbc.Ctx).Create(row).Error; err != nil {
		return nil, err
	}
	return row, nil
}

func (r *calculationRepo) GetByName(dbc dbctx.Context, datasetID uuid.UUID, name string) (*types.Calculation, error) {
	t := dbc.Tx
	if t == nil {
		t = r.db
	}
	var out []*types.Calculation
	if err := t.WithContext(dbc.Ctx).
		Where("dataset_id = ? AND name = ?", datasetID, name).
		Limit(1).
		Find(&out).Error; err != nil {
		return nil, err
	}
	if len(out) == 0 {
		return nil, nil
	}
	return out[0], nil
}

func (r *calculationRepo) ListByDataset(dbc dbctx.Context, datasetID uuid.UUID) ([]*types.Calculation, error) {
	t := dbc.Tx
	if t == nil {
		t = r.db
	}
	var out []*types.Calculation
	if datasetID == uuid.Nil {
		return out, nil
	}
	if err := t.WithContext(dbc.Ctx).
		Where("dataset_id = ?", datasetID).
		Order("created_at ASC, name ASC").
		Find(&out).Error; err != nil {
		return nil, err
	}
	return out, nil
}
