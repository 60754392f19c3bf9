package evm

import (
	"context"
	"errors"
	"math/big"
	"os"
	"sync"
	"testing"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/stretchr/testify/require"
)

var testContractAddr = common.HexToAddress("0x00000000000000000000000000000000000c0ffe")

func loadTestContract(t *testing.T) *Contract {
	t.Helper()
	raw, err := os.ReadFile("testdata/oracle_abi.json")
	require.NoError(t, err)
	c, err := NewContract(testContractAddr, string(raw))
	require.NoError(t, err)
	return c
}

// mintLog builds a MintRequest log the way the contract emits it.
func mintLog(t *testing.T, c *Contract, block uint64, index uint, user common.Address, nonce int64, flag int64, qty int64) types.Log {
	t.Helper()
	data, err := c.abi.Events[EventMintRequest].Inputs.NonIndexed().Pack(big.NewInt(qty))
	require.NoError(t, err)
	return types.Log{
		Address: c.Address(),
		Topics: []common.Hash{
			c.EventID(),
			common.BytesToHash(user.Bytes()),
			common.BigToHash(big.NewInt(nonce)),
			common.BigToHash(big.NewInt(flag)),
		},
		Data:        data,
		BlockNumber: block,
		Index:       index,
		TxHash:      common.BigToHash(big.NewInt(int64(block)*1000 + int64(index))),
	}
}

type fakeClient struct {
	mu sync.Mutex

	head    uint64
	logs    []types.Log
	queries []ethereum.FilterQuery
	logsErr error

	callOut []byte
	callErr error

	chainID      *big.Int
	pendingNonce uint64
	gasPrice     *big.Int
	estimate     uint64
	estimateErr  error

	sendErrs []error
	sent     []*types.Transaction
	receipts map[common.Hash]*types.Receipt
	// mineOnSend stores a receipt with this status for every sent tx.
	mineOnSend *uint64
}

func newFakeClient() *fakeClient {
	return &fakeClient{
		chainID:  big.NewInt(1337),
		gasPrice: big.NewInt(1_000_000_000),
		receipts: make(map[common.Hash]*types.Receipt),
	}
}

func (f *fakeClient) BlockNumber(context.Context) (uint64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.head, nil
}

func (f *fakeClient) FilterLogs(_ context.Context, q ethereum.FilterQuery) ([]types.Log, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.queries = append(f.queries, q)
	if f.logsErr != nil {
		return nil, f.logsErr
	}
	from, to := q.FromBlock.Uint64(), q.ToBlock.Uint64()
	var out []types.Log
	// Reverse order so the source has to sort.
	for i := len(f.logs) - 1; i >= 0; i-- {
		lg := f.logs[i]
		if lg.BlockNumber >= from && lg.BlockNumber <= to {
			out = append(out, lg)
		}
	}
	return out, nil
}

func (f *fakeClient) CallContract(context.Context, ethereum.CallMsg, *big.Int) ([]byte, error) {
	return f.callOut, f.callErr
}

func (f *fakeClient) ChainID(context.Context) (*big.Int, error) { return f.chainID, nil }

func (f *fakeClient) PendingNonceAt(context.Context, common.Address) (uint64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.pendingNonce, nil
}

func (f *fakeClient) SuggestGasPrice(context.Context) (*big.Int, error) { return f.gasPrice, nil }

func (f *fakeClient) EstimateGas(context.Context, ethereum.CallMsg) (uint64, error) {
	return f.estimate, f.estimateErr
}

func (f *fakeClient) SendTransaction(_ context.Context, tx *types.Transaction) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sent = append(f.sent, tx)
	if len(f.sendErrs) > 0 {
		err := f.sendErrs[0]
		f.sendErrs = f.sendErrs[1:]
		if err != nil {
			return err
		}
	}
	f.pendingNonce++
	if f.mineOnSend != nil {
		f.receipts[tx.Hash()] = &types.Receipt{
			TxHash:      tx.Hash(),
			Status:      *f.mineOnSend,
			GasUsed:     21000,
			BlockNumber: big.NewInt(int64(f.head)),
		}
	}
	return nil
}

func (f *fakeClient) TransactionReceipt(_ context.Context, hash common.Hash) (*types.Receipt, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if r, ok := f.receipts[hash]; ok {
		return r, nil
	}
	return nil, ethereum.NotFound
}

var errTransport = errors.New("connection reset by peer")
