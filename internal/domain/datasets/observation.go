package datasets

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// Observation is one row of a dataset. Rows of an aggregated dataset record
// the parent they were computed from in ParentDatasetID.
type Observation struct {
	ID              uuid.UUID      `gorm:"type:uuid;primaryKey" json:"id"`
	DatasetID       uuid.UUID      `gorm:"type:uuid;not null;index:idx_observation_dataset_position,priority:1" json:"dataset_id"`
	ParentDatasetID *uuid.UUID     `gorm:"type:uuid;index" json:"parent_dataset_id,omitempty"`
	Position        int            `gorm:"column:position;not null;index:idx_observation_dataset_position,priority:2" json:"position"`
	Data            datatypes.JSON `gorm:"column:data;type:jsonb" json:"data"`

	CreatedAt time.Time `gorm:"not null" json:"created_at"`
}

func (Observation) TableName() string { return "observation" }

func (o *Observation) BeforeCreate(*gorm.DB) error {
	if o.ID == uuid.Nil {
		o.ID = uuid.New()
	}
	return nil
}
