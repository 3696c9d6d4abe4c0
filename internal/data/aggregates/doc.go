// Package aggregates is the gorm-backed storage side of aggregation.
//
// It composes the table-level repos from internal/data/repos into Dataset
// handles that implement aggregator.Dataset, and owns the transaction
// boundary, error mapping and compare-and-set guard those writes share.
package aggregates
