package port

import "context"

// ExplorerGateway is the block-explorer API used as a secondary receipt
// source when the RPC node has not answered for a pending transaction.
type ExplorerGateway interface {
	// ReceiptStatus reports whether the explorer has indexed the transaction
	// and, if so, whether it succeeded.
	ReceiptStatus(ctx context.Context, hash string) (found bool, success bool, err error)
}
