package domain

import "github.com/ethereum/go-ethereum/common"

// MintRequestEvent is a MintRequest log as delivered by the event source.
// Err is set when the log could not be decoded; Request is then incomplete.
type MintRequestEvent struct {
	Request     MintRequest
	BlockNumber uint64
	LogIndex    uint
	TxHash      common.Hash
	Err         error
}

// Before reports whether e was recorded on chain ahead of other.
func (e MintRequestEvent) Before(other MintRequestEvent) bool {
	if e.BlockNumber != other.BlockNumber {
		return e.BlockNumber < other.BlockNumber
	}
	return e.LogIndex < other.LogIndex
}
