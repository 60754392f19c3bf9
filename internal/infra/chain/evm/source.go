package evm

import (
	"context"
	"fmt"
	"log/slog"
	"math/big"
	"sort"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"

	"github.com/vietddude/mint-oracle/internal/core/domain"
	"github.com/vietddude/mint-oracle/internal/infra/chain"
)

// DefaultChunkSize is the widest block range requested in one eth_getLogs call.
const DefaultChunkSize uint64 = 5000

// Source reads MintRequest logs and the processing marker from the contract.
type Source struct {
	client    Client
	contract  *Contract
	chunkSize uint64
	log       *slog.Logger
}

var (
	_ chain.EventSource  = (*Source)(nil)
	_ chain.MarkerReader = (*Source)(nil)
)

// NewSource creates a Source. chunkSize 0 selects DefaultChunkSize.
func NewSource(client Client, contract *Contract, chunkSize uint64, log *slog.Logger) *Source {
	if chunkSize == 0 {
		chunkSize = DefaultChunkSize
	}
	if log == nil {
		log = slog.Default()
	}
	return &Source{client: client, contract: contract, chunkSize: chunkSize, log: log}
}

// LatestBlock returns the current chain head.
func (s *Source) LatestBlock(ctx context.Context) (uint64, error) {
	head, err := s.client.BlockNumber(ctx)
	if err != nil {
		return 0, fmt.Errorf("get block number: %w", err)
	}
	return head, nil
}

// LastProcessedNonce calls the contract's view function at the latest block.
func (s *Source) LastProcessedNonce(ctx context.Context) (*big.Int, error) {
	input, err := s.contract.PackLastProcessedNonce()
	if err != nil {
		return nil, err
	}
	addr := s.contract.Address()
	out, err := s.client.CallContract(ctx, ethereum.CallMsg{To: &addr, Data: input}, nil)
	if err != nil {
		return nil, fmt.Errorf("call %s: %w", MethodLastProcessedNonce, err)
	}
	return s.contract.UnpackLastProcessedNonce(out)
}

// FetchRange scans [fromBlock, toBlock] in chunks and returns the decoded
// events sorted by block and log index. Logs flagged as removed are dropped.
func (s *Source) FetchRange(ctx context.Context, fromBlock, toBlock uint64) ([]domain.MintRequestEvent, error) {
	if fromBlock > toBlock {
		return nil, nil
	}

	var events []domain.MintRequestEvent
	for start := fromBlock; start <= toBlock; {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		end := start + s.chunkSize - 1
		if end > toBlock || end < start {
			end = toBlock
		}

		logs, err := s.client.FilterLogs(ctx, s.query(start, end))
		if err != nil {
			return nil, fmt.Errorf("filter logs [%d, %d]: %w", start, end, err)
		}
		for _, lg := range logs {
			if lg.Removed {
				continue
			}
			events = append(events, s.contract.DecodeLog(lg))
		}
		s.log.Debug("Fetched log chunk", "from", start, "to", end, "logs", len(logs))

		if end == toBlock {
			break
		}
		start = end + 1
	}

	sort.SliceStable(events, func(i, j int) bool {
		return events[i].Before(events[j])
	})
	return events, nil
}

// FetchSince reads the head and returns events in [fromBlock, head].
// When fromBlock is past the head the batch is empty and NextBlock is unchanged.
func (s *Source) FetchSince(ctx context.Context, fromBlock uint64) (chain.Batch, error) {
	head, err := s.LatestBlock(ctx)
	if err != nil {
		return chain.Batch{}, err
	}
	if fromBlock > head {
		return chain.Batch{Head: head, NextBlock: fromBlock}, nil
	}
	events, err := s.FetchRange(ctx, fromBlock, head)
	if err != nil {
		return chain.Batch{}, err
	}
	return chain.Batch{Events: events, Head: head, NextBlock: head + 1}, nil
}

func (s *Source) query(from, to uint64) ethereum.FilterQuery {
	return ethereum.FilterQuery{
		FromBlock: new(big.Int).SetUint64(from),
		ToBlock:   new(big.Int).SetUint64(to),
		Addresses: []common.Address{s.contract.Address()},
		Topics:    [][]common.Hash{{s.contract.EventID()}},
	}
}
