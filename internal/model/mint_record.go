package model

import "time"

// MintRecord is the journal representation of a detected mint.
type MintRecord struct {
	ChainID     uint64 `json:"chain_id"`
	Contract    string `json:"contract"`
	BlockNumber uint64 `json:"block_number"`
	LogIndex    uint32 `json:"log_index"`
	TxHash      string `json:"tx_hash"`
	TokenID     string `json:"token_id"`
	Owner       string `json:"owner"`
	DetectedAt  string `json:"detected_at"`
}

// NewMintRecord builds a journal record for a mint.
func NewMintRecord(chainID uint64, contract string, mint MintEvent, detectedAt time.Time) MintRecord {
	return MintRecord{
		ChainID:     chainID,
		Contract:    contract,
		BlockNumber: mint.BlockNumber,
		LogIndex:    mint.LogIndex,
		TxHash:      mint.TxHash.Hex(),
		TokenID:     tokenIDString(mint.TokenID),
		Owner:       mint.To.Hex(),
		DetectedAt:  detectedAt.UTC().Format(time.RFC3339Nano),
	}
}

// Key returns the dedup identity of the record.
func (r MintRecord) Key() EventKey {
	return EventKey{BlockNumber: r.BlockNumber, LogIndex: r.LogIndex}
}
