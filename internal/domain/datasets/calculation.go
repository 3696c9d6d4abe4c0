package datasets

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// Calculation is a named formula attached to a dataset. Its result lives in
// the aggregated dataset linked under the signature of Groups.
type Calculation struct {
	ID        uuid.UUID      `gorm:"type:uuid;primaryKey" json:"id"`
	DatasetID uuid.UUID      `gorm:"type:uuid;not null;uniqueIndex:idx_calculation_dataset_name,priority:1" json:"dataset_id"`
	Name      string         `gorm:"column:name;not null;uniqueIndex:idx_calculation_dataset_name,priority:2" json:"name"`
	Formula   string         `gorm:"column:formula;not null" json:"formula"`
	Kind      string         `gorm:"column:kind;not null" json:"kind"`
	Groups    datatypes.JSON `gorm:"column:groups;type:jsonb" json:"groups"`

	CreatedAt time.Time `gorm:"not null" json:"created_at"`
}

func (Calculation) TableName() string { return "calculation" }

func (c *Calculation) BeforeCreate(*gorm.DB) error {
	if c.ID == uuid.Nil {
		c.ID = uuid.New()
	}
	return nil
}
