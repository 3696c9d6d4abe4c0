package datasets

import (
	"github.com/google/uuid"
	"gorm.io/gorm"

	types "github.com/yungbote/datasetagg/internal/domain"
	"github.com/yungbote/datasetagg/internal/platform/dbctx"
	"github.com/yungbote/datasetagg/internal/platform/logger"
)

type ObservationRepo interface {
	// Append stores rows after the dataset's current last position.
	Append(dbc dbctx.Context, datasetID uuid.UUID, rows []*types.Observation) ([]*types.Observation, error)

	ListByDataset(dbc dbctx.Context, datasetID uuid.UUID) ([]*types.Observation, error)
	CountByDataset(dbc dbctx.Context, datasetID uuid.UUID) (int64, error)

	DeleteByDataset(dbc dbctx.Context, datasetID uuid.UUID) error
	DeleteByParent(dbc dbctx.Context, datasetID, parentID uuid.UUID) error
}

type observationRepo struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewObservationRepo(db *gorm.DB, baseLog *logger.Logger) ObservationRepo {
	return &observationRepo{db: db, log: baseLog.With("repo", "ObservationRepo")}
}

func (r *observationRepo) Append(dbc dbctx.Context, datasetID uuid.UUID, rows []*types.Observation) ([]*types.Observation, error) {
	t := dbc.Tx
	if t == nil {
		t = r.db
	}
	if len(rows) == 0 {
		return []*types.Observation{}, nil
	}
	var next struct{ N *int }
	if err := t.WithContext(dbc.Ctx).
		Model(&types.Observation{}).
		Select("MAX(position) AS n").
		Where("dataset_id = ?", datasetID).
		Scan(&next).Error; err != nil {
		return nil, err
	}
	pos := 0
	if next.N != nil {
		pos = *next.N + 1
	}
	for i, row := range rows {
		row.DatasetID = datasetID
		row.Position = pos + i
	}
	if err := t.WithContext(dbc.Ctx).CreateInBatches(&rows, 500).Error; err != nil {
		return nil, err
	}
	return rows, nil
}

func (r *observationRepo) ListByDataset(dbc dbctx.Context, datasetID uuid.UUID) ([]*types.Observation, error) {
	t := dbc.Tx
	if t == nil {
		t = r.db
	}
	var out []*types.Observation
	if datasetID == uuid.Nil {
		return out, nil
	}
	if err := t.WithContext(dbc.Ctx).
		Where("dataset_id = ?", datasetID).
		Order("position ASC").
		Find(&out).Error; err != nil {
		return nil, err
	}
	return out, nil
}

func (r *observationRepo) CountByDataset(dbc dbctx.Context, datasetID uuid.UUID) (int64, error) {
	t := dbc.Tx
	if t == nil {
		t = r.db
	}
	var n int64
	if err := t.WithContext(dbc.Ctx).
		Model(&types.Observation{}).
		Where("dataset_id = ?", datasetID).
		Count(&n).Error; err != nil {
		return 0, err
	}
	return n, nil
}

func (r *observationRepo) DeleteByDataset(dbc dbctx.Context, datasetID uuid.UUID) error {
	t := dbc.Tx
	if t == nil {
		t = r.db
	}
	if datasetID == uuid.Nil {
		return nil
	}
	return t.WithContext(dbc.Ctx).
		Where("dataset_id = ?", datasetID).
		Delete(&types.Observation{}).Error
}

func (r *observationRepo) DeleteByParent(dbc dbctx.Context, datasetID, parentID uuid.UUID) error {
	t := dbc.Tx
	if t == nil {
		t = r.db
	}
	if datasetID == uuid.Nil || parentID == uuid.Nil {
		return nil
	}
	return t.WithContext(dbc.Ctx).
		Where("dataset_id = ? AND parent_dataset_id = ?", datasetID, parentID).
		Delete(&types.Observation{}).Error
}
