package domain

import (
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
)

// ItemID identifies a mintable item. Valid identifiers are 1 through 12.
type ItemID uint8

const (
	MinItemID ItemID = 1
	MaxItemID ItemID = 12
)

// Valid reports whether the identifier is inside [MinItemID, MaxItemID].
func (id ItemID) Valid() bool {
	return id >= MinItemID && id <= MaxItemID
}

// MintRequest is a user's request to receive Quantity randomly chosen items.
// Identity is (Requester, Nonce); the nonce alone is the dedup key on the contract.
type MintRequest struct {
	Requester common.Address
	Nonce     *big.Int
	Premium   bool // paid with crystals
	Quantity  uint64
}

func (r MintRequest) String() string {
	return fmt.Sprintf("nonce=%s user=%s premium=%t qty=%d",
		nonceString(r.Nonce), r.Requester.Hex(), r.Premium, r.Quantity)
}

// Submission is the mint call issued for one request.
type Submission struct {
	Request MintRequest
	Items   []ItemID
}

// ItemsBig converts the item list to the uint256[] argument of mint.
func (s Submission) ItemsBig() []*big.Int {
	out := make([]*big.Int, len(s.Items))
	for i, id := range s.Items {
		out[i] = big.NewInt(int64(id))
	}
	return out
}

// Receipt summarizes the mined mint transaction.
type Receipt struct {
	TxHash      common.Hash
	BlockNumber uint64
	GasUsed     uint64
	Success     bool
}

func nonceString(n *big.Int) string {
	if n == nil {
		return "<nil>"
	}
	return n.String()
}
