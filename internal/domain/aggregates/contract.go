package aggregates

import "fmt"

// TxOwnership says which side opens the transaction around a write.
type TxOwnership string

const (
	// TxOwnedByAggregate: write methods open their own transaction, or join
	// one carried in the caller's context.
	TxOwnedByAggregate TxOwnership = "aggregate_owned"
	// TxOwnedByCaller: write methods expect the caller to have opened one.
	TxOwnedByCaller TxOwnership = "caller_owned"
)

// ReadScope limits which reads an aggregate exposes.
type ReadScope string

const (
	// ReadScopeInvariant exposes only the reads write flows need to decide.
	ReadScopeInvariant ReadScope = "invariant_scoped"
	// ReadScopeOpen also serves listing and reporting queries.
	ReadScopeOpen ReadScope = "open"
)

// Contract is the stable policy description an aggregate publishes.
type Contract struct {
	Name        string
	TxOwnership TxOwnership
	ReadScope   ReadScope
	Notes       string
}

// Aggregate is implemented by write boundaries that publish a Contract.
type Aggregate interface {
	Contract() Contract
}

func (c Contract) OwnsTx() bool { return c.TxOwnership == TxOwnedByAggregate }

func (c Contract) String() string {
	return fmt.Sprintf("%s(tx=%s, reads=%s)", c.Name, c.TxOwnership, c.ReadScope)
}

// DatasetContract describes the dataset write boundary: observation rewrites
// and the signature to aggregated dataset link map.
var DatasetContract = Contract{
	Name:        "datasets.dataset",
	TxOwnership: TxOwnedByAggregate,
	ReadScope:   ReadScopeInvariant,
	Notes:       "observation rewrites and link map updates; joins a transaction carried in context",
}
