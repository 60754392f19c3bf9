package consumer

import (
	"context"
	"errors"
	"math/big"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common"

	"github.com/vietddude/mint-oracle/internal/core/domain"
	"github.com/vietddude/mint-oracle/internal/infra/chain"
	"github.com/vietddude/mint-oracle/internal/infra/rpc"
)

var (
	errTransport = errors.New("dial tcp: connection refused")
	alice        = common.HexToAddress("0x00000000000000000000000000000000000a11ce")
	bob          = common.HexToAddress("0x0000000000000000000000000000000000000b0b")
)

func testPolicies() Policies {
	p := rpc.Policy{MaxAttempts: 2, InitialDelay: time.Millisecond, MaxDelay: time.Millisecond, Timeout: time.Second}
	read, fetch, submit := p, p, p
	read.Name, fetch.Name, submit.Name = "read", "fetch_logs", "submit"
	return Policies{Read: read, FetchLogs: fetch, Submit: submit}
}

func request(block uint64, user common.Address, nonce int64, premium bool, qty uint64) domain.MintRequestEvent {
	return domain.MintRequestEvent{
		Request: domain.MintRequest{
			Requester: user,
			Nonce:     big.NewInt(nonce),
			Premium:   premium,
			Quantity:  qty,
		},
		BlockNumber: block,
		TxHash:      common.BigToHash(big.NewInt(nonce)),
	}
}

// fakeChain plays both the log source and the contract's marker.
type fakeChain struct {
	mu sync.Mutex

	head   uint64
	marker *big.Int
	events []domain.MintRequestEvent

	// Errors returned by the next calls, consumed in order.
	markerErrs []error
	headErrs   []error
	fetchErrs  []error

	ranges [][2]uint64
	since  []uint64
}

func newFakeChain(marker int64, head uint64, events ...domain.MintRequestEvent) *fakeChain {
	return &fakeChain{marker: big.NewInt(marker), head: head, events: events}
}

func pop(errs *[]error) error {
	if len(*errs) == 0 {
		return nil
	}
	err := (*errs)[0]
	*errs = (*errs)[1:]
	return err
}

func (f *fakeChain) LastProcessedNonce(context.Context) (*big.Int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := pop(&f.markerErrs); err != nil {
		return nil, err
	}
	return new(big.Int).Set(f.marker), nil
}

func (f *fakeChain) LatestBlock(context.Context) (uint64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := pop(&f.headErrs); err != nil {
		return 0, err
	}
	return f.head, nil
}

func (f *fakeChain) FetchRange(_ context.Context, from, to uint64) ([]domain.MintRequestEvent, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.ranges = append(f.ranges, [2]uint64{from, to})
	if err := pop(&f.fetchErrs); err != nil {
		return nil, err
	}
	return f.between(from, to), nil
}

func (f *fakeChain) FetchSince(_ context.Context, from uint64) (chain.Batch, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.since = append(f.since, from)
	if err := pop(&f.fetchErrs); err != nil {
		return chain.Batch{}, err
	}
	if from > f.head {
		return chain.Batch{Head: f.head, NextBlock: from}, nil
	}
	return chain.Batch{Events: f.between(from, f.head), Head: f.head, NextBlock: f.head + 1}, nil
}

func (f *fakeChain) between(from, to uint64) []domain.MintRequestEvent {
	var out []domain.MintRequestEvent
	for _, ev := range f.events {
		if ev.BlockNumber >= from && ev.BlockNumber <= to {
			out = append(out, ev)
		}
	}
	return out
}

// emit appends a new request at a new head block.
func (f *fakeChain) emit(ev domain.MintRequestEvent) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.events = append(f.events, ev)
	if ev.BlockNumber > f.head {
		f.head = ev.BlockNumber
	}
}

func (f *fakeChain) advanceMarker(nonce *big.Int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if nonce.Cmp(f.marker) > 0 {
		f.marker = new(big.Int).Set(nonce)
	}
}

// fakeSubmitter records every attempt and advances the chain's marker on success.
type fakeSubmitter struct {
	mu    sync.Mutex
	chain *fakeChain

	attempts []domain.Submission
	minted   []domain.Submission
	// errs maps a nonce to the errors returned by its next attempts.
	errs map[int64][]error
	// onSubmit runs before every attempt.
	onSubmit func(ctx context.Context, sub domain.Submission)
}

func newFakeSubmitter(c *fakeChain) *fakeSubmitter {
	return &fakeSubmitter{chain: c, errs: make(map[int64][]error)}
}

func (s *fakeSubmitter) SubmitMint(ctx context.Context, sub domain.Submission) (*domain.Receipt, error) {
	if s.onSubmit != nil {
		s.onSubmit(ctx, sub)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.attempts = append(s.attempts, sub)

	nonce := sub.Request.Nonce.Int64()
	if errs := s.errs[nonce]; len(errs) > 0 {
		err := errs[0]
		s.errs[nonce] = errs[1:]
		if errors.Is(err, domain.ErrSubmissionReverted) {
			s.chain.advanceMarker(sub.Request.Nonce)
		}
		return nil, err
	}

	s.minted = append(s.minted, sub)
	if s.chain != nil {
		s.chain.advanceMarker(sub.Request.Nonce)
	}
	return &domain.Receipt{
		TxHash:      common.BigToHash(big.NewInt(nonce * 1000)),
		BlockNumber: 1,
		Success:     true,
	}, nil
}

func (s *fakeSubmitter) mintedNonces() []int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]int64, len(s.minted))
	for i, sub := range s.minted {
		out[i] = sub.Request.Nonce.Int64()
	}
	return out
}
