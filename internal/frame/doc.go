// Package frame provides the in-memory tabular structure exchanged between the
// aggregation engine and its storage collaborators.
//
// A Frame has an ordered set of named columns and positionally ordered rows.
// Frames are immutable by convention: every operation returns a new Frame and
// never mutates its receiver or arguments. Row position carries no identity;
// merges across frames are keyed by explicit columns (see GroupJoin).
package frame
