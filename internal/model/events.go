package model

import (
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
)

// ZeroAddress is the sender of every mint.
var ZeroAddress = common.Address{}

// EventKey identifies a log within the chain.
type EventKey struct {
	BlockNumber uint64 `json:"block_number"`
	LogIndex    uint32 `json:"log_index"`
}

func (k EventKey) String() string {
	return fmt.Sprintf("%d:%d", k.BlockNumber, k.LogIndex)
}

// Less orders keys by block, then log index.
func (k EventKey) Less(other EventKey) bool {
	if k.BlockNumber != other.BlockNumber {
		return k.BlockNumber < other.BlockNumber
	}
	return k.LogIndex < other.LogIndex
}

// TransferEvent is a decoded ERC-721 Transfer log.
type TransferEvent struct {
	From        common.Address
	To          common.Address
	TokenID     *big.Int
	BlockNumber uint64
	LogIndex    uint32
	TxHash      common.Hash
}

// Key returns the dedup identity of the event.
func (e TransferEvent) Key() EventKey {
	return EventKey{BlockNumber: e.BlockNumber, LogIndex: e.LogIndex}
}

// IsMint reports whether the transfer created the token.
func (e TransferEvent) IsMint() bool {
	return e.From == ZeroAddress
}

// MintEvent is a transfer from the zero address.
type MintEvent struct {
	TransferEvent
}

// Owner returns the address that received the minted token.
func (m MintEvent) Owner() common.Address {
	return m.To
}
