package evm

import (
	"context"
	"crypto/ecdsa"
	"errors"
	"fmt"
	"log/slog"
	"math/big"
	"strings"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"

	"github.com/vietddude/mint-oracle/internal/core/domain"
	"github.com/vietddude/mint-oracle/internal/infra/chain"
)

const (
	DefaultReceiptPoll = 2 * time.Second

	// A replacement must outbid the pooled transaction by at least 10%.
	priceBumpPercent = 10
)

// SubmitterConfig tunes transaction building.
type SubmitterConfig struct {
	// GasLimit is used for every mint. 0 asks the node to estimate.
	GasLimit    uint64
	ReceiptPoll time.Duration
}

// Submitter signs mint transactions with the oracle key and waits for them
// to be mined.
//
// The signed transaction is remembered per request nonce until it is mined,
// so a retried submission reuses its account nonce and calldata instead of
// creating a second mint. A transaction the node accepted but did not mine
// before the attempt ended is re-signed at a higher gas price on the next
// attempt; every hash sent for the request stays in the receipt lookup.
type Submitter struct {
	client   Client
	contract *Contract
	key      *ecdsa.PrivateKey
	from     common.Address
	chainID  *big.Int
	cfg      SubmitterConfig
	log      *slog.Logger

	mu      sync.Mutex
	pending map[string]*pendingTx
}

// pendingTx tracks one request's transaction across attempts.
type pendingTx struct {
	tx *types.Transaction
	// hashes holds every version sent, oldest first. Any of them may be mined.
	hashes []common.Hash
	// accepted is set once the node has pooled tx, or refused it as underpriced.
	// The next attempt then replaces it with a better-paying copy.
	accepted bool
}

var _ chain.Submitter = (*Submitter)(nil)

// ParsePrivateKey accepts a hex key with or without the 0x prefix.
func ParsePrivateKey(hexKey string) (*ecdsa.PrivateKey, error) {
	trimmed := strings.TrimPrefix(strings.TrimSpace(hexKey), "0x")
	key, err := crypto.HexToECDSA(trimmed)
	if err != nil {
		return nil, fmt.Errorf("parse private key: %w", err)
	}
	return key, nil
}

// NewSubmitter reads the chain ID and returns a Submitter signing with key.
func NewSubmitter(ctx context.Context, client Client, contract *Contract, key *ecdsa.PrivateKey, cfg SubmitterConfig, log *slog.Logger) (*Submitter, error) {
	chainID, err := client.ChainID(ctx)
	if err != nil {
		return nil, fmt.Errorf("get chain id: %w", err)
	}
	if cfg.ReceiptPoll <= 0 {
		cfg.ReceiptPoll = DefaultReceiptPoll
	}
	if log == nil {
		log = slog.Default()
	}
	return &Submitter{
		client:   client,
		contract: contract,
		key:      key,
		from:     crypto.PubkeyToAddress(key.PublicKey),
		chainID:  chainID,
		cfg:      cfg,
		log:      log,
		pending:  make(map[string]*pendingTx),
	}, nil
}

// From returns the oracle account address.
func (s *Submitter) From() common.Address { return s.from }

// SubmitMint sends mint(user, itemIds, nonce, "") and blocks until the
// transaction is mined or ctx is done. A mined transaction with failed status
// returns the receipt together with domain.ErrSubmissionReverted.
func (s *Submitter) SubmitMint(ctx context.Context, sub domain.Submission) (*domain.Receipt, error) {
	if sub.Request.Nonce == nil {
		return nil, fmt.Errorf("submit mint: request nonce is nil")
	}
	key := sub.Request.Nonce.String()

	p := s.cached(key)
	if p == nil {
		data, err := s.contract.PackMint(sub)
		if err != nil {
			return nil, err
		}
		tx, err := s.buildTx(ctx, data)
		if err != nil {
			return nil, err
		}
		p = &pendingTx{tx: tx, hashes: []common.Hash{tx.Hash()}}
		s.remember(key, p)
	} else if p.accepted {
		// An earlier version may have been mined since the last attempt gave up.
		if r := s.findReceipt(ctx, p.hashes); r != nil {
			s.forget(key)
			return s.result(r)
		}
		tx, err := s.reprice(ctx, p.tx)
		if err != nil {
			return nil, err
		}
		s.log.Warn("Replacing unmined mint transaction",
			"nonce", key, "old_tx", p.tx.Hash().Hex(), "tx", tx.Hash().Hex(),
			"old_gas_price", p.tx.GasPrice(), "gas_price", tx.GasPrice())
		s.replace(p, tx)
	}
	tx := p.tx

	if err := s.client.SendTransaction(ctx, tx); err != nil {
		switch {
		case isAlreadyKnown(err):
			s.log.Debug("Mint transaction already in pool", "nonce", key, "tx", tx.Hash().Hex())
		case isNonceTooLow(err):
			// Either one of our versions was mined or another tx used the account nonce.
			r := s.findReceipt(ctx, s.hashes(p))
			s.forget(key)
			if r != nil {
				return s.result(r)
			}
			return nil, fmt.Errorf("send mint tx %s: %w", tx.Hash().Hex(), err)
		case isUnderpriced(err):
			s.markAccepted(p)
			return nil, fmt.Errorf("send mint tx %s: %w", tx.Hash().Hex(), err)
		default:
			return nil, fmt.Errorf("send mint tx %s: %w", tx.Hash().Hex(), err)
		}
	} else {
		s.log.Info("Mint transaction sent",
			"nonce", key, "tx", tx.Hash().Hex(), "gas_price", tx.GasPrice(), "items", len(sub.Items))
	}
	s.markAccepted(p)

	r, err := s.waitMined(ctx, s.hashes(p))
	if err != nil {
		return nil, err
	}
	s.forget(key)
	return s.result(r)
}

// reprice re-signs old with the same account nonce, gas and calldata at
// max(old*1.1+1, suggested) so the node treats it as a replacement.
func (s *Submitter) reprice(ctx context.Context, old *types.Transaction) (*types.Transaction, error) {
	suggested, err := s.client.SuggestGasPrice(ctx)
	if err != nil {
		return nil, fmt.Errorf("suggest gas price: %w", err)
	}
	gasPrice := bumpGasPrice(old.GasPrice(), suggested)
	return s.sign(old.Nonce(), old.Gas(), gasPrice, old.Data())
}

// bumpGasPrice returns the price a replacement of a tx paying old must offer.
func bumpGasPrice(old, suggested *big.Int) *big.Int {
	bumped := new(big.Int).Mul(old, big.NewInt(100+priceBumpPercent))
	bumped.Div(bumped, big.NewInt(100))
	bumped.Add(bumped, big.NewInt(1))
	if suggested != nil && suggested.Cmp(bumped) > 0 {
		return new(big.Int).Set(suggested)
	}
	return bumped
}

func (s *Submitter) buildTx(ctx context.Context, data []byte) (*types.Transaction, error) {
	to := s.contract.Address()

	accountNonce, err := s.client.PendingNonceAt(ctx, s.from)
	if err != nil {
		return nil, fmt.Errorf("get pending nonce: %w", err)
	}
	gasPrice, err := s.client.SuggestGasPrice(ctx)
	if err != nil {
		return nil, fmt.Errorf("suggest gas price: %w", err)
	}

	gasLimit := s.cfg.GasLimit
	if gasLimit == 0 {
		gasLimit, err = s.client.EstimateGas(ctx, ethereum.CallMsg{From: s.from, To: &to, Data: data})
		if err != nil {
			if isExecutionReverted(err) {
				return nil, fmt.Errorf("%w: estimate gas: %v", domain.ErrSubmissionReverted, err)
			}
			return nil, fmt.Errorf("estimate gas: %w", err)
		}
	}

	return s.sign(accountNonce, gasLimit, gasPrice, data)
}

func (s *Submitter) sign(accountNonce, gasLimit uint64, gasPrice *big.Int, data []byte) (*types.Transaction, error) {
	to := s.contract.Address()
	tx := types.NewTx(&types.LegacyTx{
		Nonce:    accountNonce,
		To:       &to,
		Value:    big.NewInt(0),
		Gas:      gasLimit,
		GasPrice: gasPrice,
		Data:     data,
	})
	signed, err := types.SignTx(tx, types.LatestSignerForChainID(s.chainID), s.key)
	if err != nil {
		return nil, fmt.Errorf("sign mint tx: %w", err)
	}
	return signed, nil
}

// waitMined polls until one of hashes has a receipt.
func (s *Submitter) waitMined(ctx context.Context, hashes []common.Hash) (*types.Receipt, error) {
	ticker := time.NewTicker(s.cfg.ReceiptPoll)
	defer ticker.Stop()

	latest := hashes[len(hashes)-1]
	for {
		if r := s.findReceipt(ctx, hashes); r != nil {
			return r, nil
		}

		select {
		case <-ctx.Done():
			return nil, fmt.Errorf("wait for mint tx %s: %w", latest.Hex(), ctx.Err())
		case <-ticker.C:
		}
	}
}

// findReceipt returns the receipt of whichever of hashes was mined, if any.
func (s *Submitter) findReceipt(ctx context.Context, hashes []common.Hash) *types.Receipt {
	for i := len(hashes) - 1; i >= 0; i-- {
		r, err := s.client.TransactionReceipt(ctx, hashes[i])
		if err == nil && r != nil {
			return r
		}
		if err != nil && !errors.Is(err, ethereum.NotFound) {
			s.log.Debug("Receipt lookup failed", "tx", hashes[i].Hex(), "error", err)
		}
	}
	return nil
}

func (s *Submitter) result(r *types.Receipt) (*domain.Receipt, error) {
	out := &domain.Receipt{
		TxHash:  r.TxHash,
		GasUsed: r.GasUsed,
		Success: r.Status == types.ReceiptStatusSuccessful,
	}
	if r.BlockNumber != nil {
		out.BlockNumber = r.BlockNumber.Uint64()
	}
	if !out.Success {
		return out, fmt.Errorf("%w: tx %s", domain.ErrSubmissionReverted, r.TxHash.Hex())
	}
	return out, nil
}

func (s *Submitter) cached(key string) *pendingTx {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.pending[key]
}

func (s *Submitter) remember(key string, p *pendingTx) {
	s.mu.Lock()
	s.pending[key] = p
	s.mu.Unlock()
}

func (s *Submitter) replace(p *pendingTx, tx *types.Transaction) {
	s.mu.Lock()
	p.tx = tx
	p.hashes = append(p.hashes, tx.Hash())
	p.accepted = false
	s.mu.Unlock()
}

func (s *Submitter) markAccepted(p *pendingTx) {
	s.mu.Lock()
	p.accepted = true
	s.mu.Unlock()
}

func (s *Submitter) hashes(p *pendingTx) []common.Hash {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]common.Hash(nil), p.hashes...)
}

func (s *Submitter) forget(key string) {
	s.mu.Lock()
	delete(s.pending, key)
	s.mu.Unlock()
}

func isAlreadyKnown(err error) bool {
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "already known") ||
		strings.Contains(msg, "known transaction") ||
		strings.Contains(msg, "already imported")
}

func isNonceTooLow(err error) bool {
	return strings.Contains(strings.ToLower(err.Error()), "nonce too low")
}

func isUnderpriced(err error) bool {
	return strings.Contains(strings.ToLower(err.Error()), "underpriced")
}

func isExecutionReverted(err error) bool {
	return strings.Contains(strings.ToLower(err.Error()), "execution reverted")
}
