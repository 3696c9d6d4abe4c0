package aggregator

import (
	"context"
	"strings"

	"github.com/google/uuid"

	"github.com/yungbote/datasetagg/internal/frame"
)

// ParentColumn is the reserved column recording which parent dataset a row of
// an aggregated dataset came from. Its value is the parent id as a string.
const ParentColumn = "parent_dataset_id"

// FrameOptions controls how a dataset materialises its observations.
type FrameOptions struct {
	// KeepParentIDs keeps ParentColumn in the returned frame.
	KeepParentIDs bool
	// Reload bypasses any cached copy and reads storage.
	Reload bool
}

// Dataset is the storage collaborator that owns a set of observation rows and
// the parent's group-signature -> aggregated dataset links.
type Dataset interface {
	ID() uuid.UUID
	// Create allocates a new, empty dataset in the same storage.
	Create(ctx context.Context) (Dataset, error)
	// SaveObservations appends rows. ParentColumn values become provenance.
	SaveObservations(ctx context.Context, f *frame.Frame) error
	// ReplaceObservations swaps the whole observation set for f.
	ReplaceObservations(ctx context.Context, f *frame.Frame) error
	Frame(ctx context.Context, opts FrameOptions) (*frame.Frame, error)
	// RemoveParentObservations deletes rows whose provenance is parentID.
	RemoveParentObservations(ctx context.Context, parentID uuid.UUID) error
	// Update persists metadata fields of the dataset record.
	Update(ctx context.Context, fields map[string]any) error
	// AggregatedDataset returns the dataset linked under the signature of
	// groups, or nil when there is none.
	AggregatedDataset(ctx context.Context, groups []string) (Dataset, error)
	AggregatedDatasets(ctx context.Context) (map[string]uuid.UUID, error)
	// LinkAggregatedDataset records signature -> child unless the signature is
	// already linked. It returns the id that ends up linked.
	LinkAggregatedDataset(ctx context.Context, signature string, child uuid.UUID) (uuid.UUID, error)
	JoinGroups(groups []string) string
}

// ColumnResolver turns a formula into column vectors aligned with source.
type ColumnResolver interface {
	Resolve(ctx context.Context, ds Dataset, formula, name string, source *frame.Frame) ([]frame.Series, error)
}

// JoinGroups is the canonical group signature: the group columns joined by
// commas in the given order. No grouping maps to "".
func JoinGroups(groups []string) string {
	return strings.Join(groups, ",")
}

// StampParent sets ParentColumn to parentID on every row of f.
func StampParent(f *frame.Frame, parentID uuid.UUID) *frame.Frame {
	return f.WithColumn(ParentColumn, parentID.String())
}

// RowsForParent keeps the rows of f whose provenance is parentID. A frame
// without ParentColumn has no rows for any parent.
func RowsForParent(f *frame.Frame, parentID uuid.UUID) *frame.Frame {
	if !f.HasColumn(ParentColumn) {
		return frame.Empty(f.Columns()...)
	}
	want := parentID.String()
	return f.Filter(func(r frame.Row) bool { return r[ParentColumn] == want })
}

// RowsExceptParent keeps the rows of f whose provenance is not parentID,
// including rows without provenance.
func RowsExceptParent(f *frame.Frame, parentID uuid.UUID) *frame.Frame {
	if !f.HasColumn(ParentColumn) {
		return f
	}
	skip := parentID.String()
	return f.Filter(func(r frame.Row) bool { return r[ParentColumn] != skip })
}
