package chain

import (
	"context"
	"math/big"

	"github.com/vietddude/mint-oracle/internal/core/domain"
)

// Batch is the result of a steady-state poll.
type Batch struct {
	Events []domain.MintRequestEvent
	// Head is the chain head the poll read up to.
	Head uint64
	// NextBlock is where the following poll should start.
	NextBlock uint64
}

// EventSource delivers MintRequest events in chain order (block, then log index).
// Implementations do not retry; transport errors propagate to the caller.
type EventSource interface {
	// LatestBlock returns the current chain head.
	LatestBlock(ctx context.Context) (uint64, error)

	// FetchRange returns every MintRequest event in [fromBlock, toBlock].
	FetchRange(ctx context.Context, fromBlock, toBlock uint64) ([]domain.MintRequestEvent, error)

	// FetchSince returns events from fromBlock up to the current head.
	FetchSince(ctx context.Context, fromBlock uint64) (Batch, error)
}

// MarkerReader reads the contract-owned processing marker.
type MarkerReader interface {
	LastProcessedNonce(ctx context.Context) (*big.Int, error)
}

// Submitter sends a mint call and waits for it to be mined.
type Submitter interface {
	SubmitMint(ctx context.Context, sub domain.Submission) (*domain.Receipt, error)
}
