package datasets

import (
	"github.com/google/uuid"
	"gorm.io/gorm"

	types "github.com/yungbote/datasetagg/internal/domain"
	"github.com/yungbote/datasetagg/internal/platform/dbctx"
	"github.com/yungbote/datasetagg/internal/platform/logger"
)

type DatasetRepo interface {
	Create(dbc dbctx.Context, row *types.Dataset) (*types.Dataset, error)

	GetByID(dbc dbctx.Context, id uuid.UUID) (*types.Dataset, error)
	GetByIDs(dbc dbctx.Context, ids []uuid.UUID) ([]*types.Dataset, error)

	UpdateFields(dbc dbctx.Context, id uuid.UUID, updates map[string]interface{}) error

	SoftDeleteByIDs(dbc dbctx.Context, ids []uuid.UUID) error
}

type datasetRepo struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewDatasetRepo(db *gorm.DB, baseLog *logger.Logger) DatasetRepo {
	return &datasetRepo{db: db, log: baseLog.With("repo", "DatasetRepo")}
}

func (r *datasetRepo) Create(dbc dbctx.Context, row *types.Dataset) (*types.Dataset, error) {
	t := dbc.Tx
	if t == nil {
		t = r.db
	}
	if row == nil {
		row = &types.Dataset{}
	}
	if err := t.WithContext(dbc.Ctx).Create(row).Error; err != nil {
		return nil, err
	}
	return row, nil
}

func (r *datasetRepo) GetByID(dbc dbctx.Context, id uuid.UUID) (*types.Dataset, error) {
	if id == uuid.Nil {
		return nil, nil
	}
	rows, err := r.GetByIDs(dbc, []uuid.UUID{id})
	if err != nil {
		return nil, err
	}
	if len(rows) == 0 {
		return nil, nil
	}
	return rows[0], nil
}

func (r *datasetRepo) GetByIDs(dbc dbctx.Context, ids []uuid.UUID) ([]*types.Dataset, error) {
	t := dbc.Tx
	if t == nil {
		t = r.db
	}
	var out []*types.Dataset
	if len(ids) == 0 {
		return out, nil
	}
	if err := t.WithContext(dbc.Ctx).Where("id IN ?", ids).Find(&out).Error; err != nil {
		return nil, err
	}
	return out, nil
}

func (r *datasetRepo) UpdateFields(dbc dbctx.Context, id uuid.UUID, updates map[string]interface{}) error {
	t := dbc.Tx
	if t == nil {
		t = r.db
	}
	if id == uuid.Nil || len(updates) == 0 {
		return nil
	}
	return t.WithContext(dbc.Ctx).
		Model(&types.Dataset{}).
		Where("id = ?", id).
		Updates(updates).Error
}

func (r *datasetRepo) SoftDeleteByIDs(dbc dbctx.Context, ids []uuid.UUID) error {
	t := dbc.Tx
	if t == nil {
		t = r.db
	}
	if len(ids) == 0 {
		return nil
	}
	return t.WithContext(dbc.Ctx).Where("id IN ?", ids).Delete(&types.Dataset{}).Error
}
