package control

import (
	"context"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"

	"github.com/vietddude/mint-oracle/internal/core/config"
	"github.com/vietddude/mint-oracle/internal/infra/chain"
	"github.com/vietddude/mint-oracle/internal/infra/chain/evm"
	"github.com/vietddude/mint-oracle/internal/infra/rpc"
)

// StatusReport is a read-only view of the contract as the oracle sees it.
type StatusReport struct {
	Contract common.Address
	Signer   common.Address
	ChainID  *big.Int
	Marker   *big.Int
	Head     uint64
}

// chainReader is what ReadStatus needs from the node.
type chainReader interface {
	chain.MarkerReader
	LatestBlock(ctx context.Context) (uint64, error)
}

// ReadStatus dials the node and reads the processing marker and head.
func ReadStatus(ctx context.Context, cfg config.Config) (*StatusReport, error) {
	contract, err := evm.NewContract(common.HexToAddress(cfg.ContractAddress), cfg.ContractABI)
	if err != nil {
		return nil, &config.Error{Field: "CONTRACT_ABI", Msg: err.Error()}
	}
	key, err := evm.ParsePrivateKey(cfg.PrivateKey)
	if err != nil {
		return nil, &config.Error{Field: "PRIVATE_KEY", Msg: "not a valid secp256k1 hex key"}
	}

	client, err := evm.Dial(ctx, cfg.ProviderURL)
	if err != nil {
		return nil, err
	}
	defer client.Close()

	caller := rpc.NewCaller(rpc.Options{RateLimit: cfg.RPCRateLimit})
	report := &StatusReport{
		Contract: contract.Address(),
		Signer:   crypto.PubkeyToAddress(key.PublicKey),
	}
	err = caller.Do(ctx, rpc.ReadPolicy, func(ctx context.Context) error {
		id, err := client.ChainID(ctx)
		report.ChainID = id
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("read chain id: %w", err)
	}

	source := evm.NewSource(client, contract, cfg.LogChunkSize, nil)
	if err := readPosition(ctx, caller, source, report); err != nil {
		return nil, err
	}
	return report, nil
}

func readPosition(ctx context.Context, caller *rpc.Caller, r chainReader, report *StatusReport) error {
	err := caller.Do(ctx, rpc.ReadPolicy, func(ctx context.Context) error {
		m, err := r.LastProcessedNonce(ctx)
		report.Marker = m
		return err
	})
	if err != nil {
		return fmt.Errorf("read processing marker: %w", err)
	}
	err = caller.Do(ctx, rpc.ReadPolicy, func(ctx context.Context) error {
		h, err := r.LatestBlock(ctx)
		report.Head = h
		return err
	})
	if err != nil {
		return fmt.Errorf("read chain head: %w", err)
	}
	return nil
}
