package datasets

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// Dataset is a named collection of observation rows. Aggregated datasets are
// ordinary datasets linked from their parent by group signature.
type Dataset struct {
	ID    uuid.UUID `gorm:"type:uuid;primaryKey" json:"id"`
	Title string    `gorm:"column:title" json:"title"`

	// Columns is the ordered column list of the observations ([]string).
	Columns datatypes.JSON `gorm:"column:columns;type:jsonb" json:"columns"`
	// AggregatedDatasets maps group signature -> aggregated dataset id.
	AggregatedDatasets datatypes.JSON `gorm:"column:aggregated_datasets;type:jsonb" json:"aggregated_datasets"`

	Version int `gorm:"column:version;not null;default:0" json:"version"`

	CreatedAt time.Time      `gorm:"not null" json:"created_at"`
	UpdatedAt time.Time      `gorm:"not null" json:"updated_at"`
	DeletedAt gorm.DeletedAt `gorm:"index" json:"deleted_at,omitempty"`
}

func (Dataset) TableName() string { return "dataset" }

func (d *Dataset) BeforeCreate(*gorm.DB) error {
	if d.ID == uuid.Nil {
		d.ID = uuid.New()
	}
	return nil
}
