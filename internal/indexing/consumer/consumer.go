// Package consumer turns the contract's MintRequest log into mint transactions.
//
// A Consumer runs one catch-up pass from the configured start block to the
// chain head, then polls for new requests every PollInterval. The contract's
// lastProcessedNonce is the durable position; the in-memory cursor only
// prevents this process from handling a nonce twice while it runs.
package consumer

import (
	"log/slog"
	"time"

	"github.com/vietddude/mint-oracle/internal/core/cursor"
	"github.com/vietddude/mint-oracle/internal/core/domain"
	"github.com/vietddude/mint-oracle/internal/infra/chain"
	"github.com/vietddude/mint-oracle/internal/infra/rpc"
	"github.com/vietddude/mint-oracle/internal/lottery"
)

const (
	DefaultPollInterval = 5 * time.Second
	DefaultRestartDelay = 10 * time.Second
	DefaultChunkSize    = 5000
)

// Policies groups the retry policy used per call category.
type Policies struct {
	Read      rpc.Policy
	FetchLogs rpc.Policy
	Submit    rpc.Policy
}

// DefaultPolicies returns the standard policies.
func DefaultPolicies() Policies {
	return Policies{
		Read:      rpc.ReadPolicy,
		FetchLogs: rpc.FetchLogsPolicy,
		Submit:    rpc.SubmitPolicy,
	}
}

// Config tunes the consumption loop.
type Config struct {
	// StartBlock is where the catch-up scan begins.
	StartBlock   uint64
	PollInterval time.Duration
	// RestartDelay is the pause before a failed catch-up pass is retried.
	RestartDelay time.Duration
	// ChunkSize is the block window of one catch-up fetch.
	ChunkSize uint64
	// MaxQuantity, when set, skips requests asking for more items. Such a
	// request is never minted. 0 disables the cap.
	MaxQuantity uint64
	Policies    Policies
}

func (c Config) withDefaults() Config {
	if c.PollInterval <= 0 {
		c.PollInterval = DefaultPollInterval
	}
	if c.RestartDelay <= 0 {
		c.RestartDelay = DefaultRestartDelay
	}
	if c.ChunkSize == 0 {
		c.ChunkSize = DefaultChunkSize
	}
	if c.Policies == (Policies{}) {
		c.Policies = DefaultPolicies()
	}
	return c
}

// Deps are the collaborators of a Consumer.
type Deps struct {
	Source    chain.EventSource
	Marker    chain.MarkerReader
	Submitter chain.Submitter
	Batcher   *lottery.Batcher
	Caller    *rpc.Caller
	// Tracker may be shared with health reporting. Nil creates a new one.
	Tracker *cursor.Tracker
}

// Consumer is the resumable consumption loop.
type Consumer struct {
	cfg       Config
	source    chain.EventSource
	marker    chain.MarkerReader
	submitter chain.Submitter
	batcher   *lottery.Batcher
	caller    *rpc.Caller
	tracker   *cursor.Tracker
	log       *slog.Logger

	// Item lists of submissions that failed with a transport error, by nonce.
	// Only the loop goroutine touches it.
	pending map[string][]domain.ItemID
}

// New creates a Consumer.
func New(cfg Config, deps Deps, log *slog.Logger) *Consumer {
	if log == nil {
		log = slog.Default()
	}
	if deps.Tracker == nil {
		deps.Tracker = cursor.NewTracker()
	}
	if deps.Batcher == nil {
		deps.Batcher = lottery.NewBatcher(nil)
	}
	if deps.Caller == nil {
		deps.Caller = rpc.NewCaller(rpc.Options{Logger: log})
	}
	return &Consumer{
		cfg:       cfg.withDefaults(),
		source:    deps.Source,
		marker:    deps.Marker,
		submitter: deps.Submitter,
		batcher:   deps.Batcher,
		caller:    deps.Caller,
		tracker:   deps.Tracker,
		log:       log.With("component", "consumer"),
		pending:   make(map[string][]domain.ItemID),
	}
}

// Tracker exposes the cursor for health reporting.
func (c *Consumer) Tracker() *cursor.Tracker { return c.tracker }

// Status returns a snapshot of the consumer position.
func (c *Consumer) Status() domain.Cursor { return c.tracker.Snapshot() }
