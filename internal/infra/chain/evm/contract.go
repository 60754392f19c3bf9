package evm

import (
	"bytes"
	"fmt"
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"

	"github.com/vietddude/mint-oracle/internal/core/domain"
)

// Contract members the oracle relies on.
const (
	MethodLastProcessedNonce = "lastProcessedNonce"
	MethodMint               = "mint"
	EventMintRequest         = "MintRequest"
)

// Contract binds the parsed ABI to a deployed address.
type Contract struct {
	address common.Address
	abi     abi.ABI
	eventID common.Hash
}

// NewContract parses abiJSON and checks that it exposes the oracle surface.
func NewContract(address common.Address, abiJSON string) (*Contract, error) {
	parsed, err := abi.JSON(strings.NewReader(abiJSON))
	if err != nil {
		return nil, fmt.Errorf("parse contract abi: %w", err)
	}
	if err := checkSurface(parsed); err != nil {
		return nil, err
	}
	return &Contract{
		address: address,
		abi:     parsed,
		eventID: parsed.Events[EventMintRequest].ID,
	}, nil
}

func checkSurface(parsed abi.ABI) error {
	marker, ok := parsed.Methods[MethodLastProcessedNonce]
	if !ok || len(marker.Outputs) != 1 {
		return fmt.Errorf("abi: %s() returning one value not found", MethodLastProcessedNonce)
	}
	mint, ok := parsed.Methods[MethodMint]
	if !ok || len(mint.Inputs) != 4 {
		return fmt.Errorf("abi: %s(address,uint256[],uint256,bytes) not found", MethodMint)
	}
	ev, ok := parsed.Events[EventMintRequest]
	if !ok {
		return fmt.Errorf("abi: event %s not found", EventMintRequest)
	}
	indexed := 0
	for _, in := range ev.Inputs {
		if in.Indexed {
			indexed++
		}
	}
	if indexed != 3 || len(ev.Inputs.NonIndexed()) != 1 {
		return fmt.Errorf("abi: event %s must have 3 indexed inputs and 1 data input", EventMintRequest)
	}
	return nil
}

// Address returns the contract address.
func (c *Contract) Address() common.Address { return c.address }

// EventID returns the MintRequest topic.
func (c *Contract) EventID() common.Hash { return c.eventID }

// PackLastProcessedNonce encodes the marker read.
func (c *Contract) PackLastProcessedNonce() ([]byte, error) {
	return c.abi.Pack(MethodLastProcessedNonce)
}

// UnpackLastProcessedNonce decodes the marker read result.
func (c *Contract) UnpackLastProcessedNonce(out []byte) (*big.Int, error) {
	values, err := c.abi.Unpack(MethodLastProcessedNonce, out)
	if err != nil {
		return nil, fmt.Errorf("unpack %s: %w", MethodLastProcessedNonce, err)
	}
	if len(values) != 1 {
		return nil, fmt.Errorf("unpack %s: got %d values", MethodLastProcessedNonce, len(values))
	}
	nonce, ok := values[0].(*big.Int)
	if !ok {
		return nil, fmt.Errorf("unpack %s: unexpected type %T", MethodLastProcessedNonce, values[0])
	}
	return nonce, nil
}

// PackMint encodes mint(user, itemIds, nonce, data) with empty auxiliary data.
func (c *Contract) PackMint(sub domain.Submission) ([]byte, error) {
	data, err := c.abi.Pack(MethodMint,
		sub.Request.Requester,
		sub.ItemsBig(),
		sub.Request.Nonce,
		[]byte{},
	)
	if err != nil {
		return nil, fmt.Errorf("pack %s: %w", MethodMint, err)
	}
	return data, nil
}

// DecodeLog turns a MintRequest log into an event. Shape problems are reported
// through the returned event's Err, wrapping domain.ErrDecoding.
func (c *Contract) DecodeLog(lg types.Log) domain.MintRequestEvent {
	ev := domain.MintRequestEvent{
		BlockNumber: lg.BlockNumber,
		LogIndex:    lg.Index,
		TxHash:      lg.TxHash,
	}
	req, err := c.decode(lg)
	if err != nil {
		ev.Err = fmt.Errorf("block %d log %d: %w: %v", lg.BlockNumber, lg.Index, domain.ErrDecoding, err)
		return ev
	}
	ev.Request = req
	return ev
}

func (c *Contract) decode(lg types.Log) (domain.MintRequest, error) {
	var req domain.MintRequest
	if len(lg.Topics) != 4 {
		return req, fmt.Errorf("want 4 topics, got %d", len(lg.Topics))
	}
	if lg.Topics[0] != c.eventID {
		return req, fmt.Errorf("unexpected event topic %s", lg.Topics[0].Hex())
	}

	userTopic := lg.Topics[1].Bytes()
	if !bytes.Equal(userTopic[:common.HashLength-common.AddressLength], make([]byte, common.HashLength-common.AddressLength)) {
		return req, fmt.Errorf("user topic %s is not an address", lg.Topics[1].Hex())
	}
	req.Requester = common.BytesToAddress(userTopic)
	req.Nonce = new(big.Int).SetBytes(lg.Topics[2].Bytes())

	// Any non-zero crystals flag selects the premium table.
	req.Premium = lg.Topics[3] != (common.Hash{})

	values, err := c.abi.Unpack(EventMintRequest, lg.Data)
	if err != nil {
		return req, fmt.Errorf("unpack data: %w", err)
	}
	if len(values) != 1 {
		return req, fmt.Errorf("want 1 data value, got %d", len(values))
	}
	qty, ok := values[0].(*big.Int)
	if !ok {
		return req, fmt.Errorf("quantity has type %T", values[0])
	}
	if !qty.IsUint64() {
		return req, fmt.Errorf("quantity %s out of range", qty)
	}
	req.Quantity = qty.Uint64()
	return req, nil
}
