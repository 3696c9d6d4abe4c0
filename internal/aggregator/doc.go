// Package aggregator materialises aggregation results as child datasets linked
// to the parent dataset that produced them, and keeps those children current.
//
// Save evaluates an aggregation over a parent's rows and either creates the
// linked child for the parent's group signature or merges the fresh result
// into the existing child by group key. Update replaces one parent's block of
// rows inside a child that may be fed by several parents, folding new rows in
// algebraically when the aggregation allows it and recomputing otherwise.
//
// Writes to one child dataset are serialised through a Locker and grouped in a
// single TxRunner transaction, so a concurrent writer never observes or
// overwrites a half-applied merge.
package aggregator
