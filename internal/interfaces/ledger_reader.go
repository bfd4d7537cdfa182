package interfaces

import (
	"context"
	"math/big"
)

// Transfer is one observed movement of value toward a watched address.
// LogIndex is -1 for transfers without sub-transaction ordering (native coin moves).
type Transfer struct {
	TxHash        string
	LogIndex      int
	FromAddress   string
	ToAddress     string
	TokenContract string // empty for the native asset
	AmountRaw     *big.Int
	BlockNumber   uint64
}

// WatchList narrows a block scan to the addresses and token contracts the
// gateway currently cares about. Addresses are normalized (lowercase hex for
// account-family chains) before lookup.
type WatchList struct {
	Addresses      map[string]struct{}
	TokenContracts []string
}

// HasAddress reports whether addr is watched.
func (w WatchList) HasAddress(addr string) bool {
	_, ok := w.Addresses[addr]
	return ok
}

// Empty reports whether a scan can be skipped entirely.
func (w WatchList) Empty() bool {
	return len(w.Addresses) == 0
}

// LedgerReader abstracts one chain's RPC surface. Implementations must be safe
// for use from a single watcher goroutine; errors are transient and retried by
// the caller without advancing the watermark.
type LedgerReader interface {
	// TipHeight returns the chain's current tip block number.
	TipHeight(ctx context.Context) (uint64, error)

	// TransfersInBlock returns the watched transfers contained in the block at
	// height. A returned error means the block must be retried, never skipped.
	TransfersInBlock(ctx context.Context, height uint64, watch WatchList) ([]Transfer, error)

	// TransactionBlock reports the block currently containing txHash on the
	// canonical chain. found is false when the transaction is gone (reorged out).
	TransactionBlock(ctx context.Context, txHash string) (blockNumber uint64, found bool, err error)

	// Close releases the underlying RPC connection.
	Close()
}
