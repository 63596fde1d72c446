// Package chain is the boundary to the blockchain indexer the invoice
// reconciler polls. Only transfer amounts and hashes cross it.
package chain

import "context"

// Transfer is one observed incoming token transfer to the receiving address.
type Transfer struct {
	AmountAtomic int64  `json:"amount_atomic"`
	TxHash       string `json:"tx_hash"`
}

// Query reads recent transfers. Transient failures are expected; callers
// treat them as "no match this round", never as invoice errors.
type Query interface {
	RecentTransfers(ctx context.Context, receivingAddress string, lookbackBlocks int64) ([]Transfer, error)
}
