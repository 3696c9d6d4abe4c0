// Package aggregates defines the error vocabulary shared by the aggregation
// engine and its storage collaborators.
//
// Every failure that crosses a package boundary is an *Error carrying a Code,
// so callers decide retry and reporting policy without inspecting driver errors.
package aggregates
