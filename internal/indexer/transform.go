package indexer

import (
	"time"

	"mintWatch/internal/model"
)

func buildMintRecords(chainID uint64, contract string, mints []model.MintEvent, detectedAt time.Time) []model.MintRecord {
	records := make([]model.MintRecord, 0, len(mints))
	for _, mint := range mints {
		records = append(records, model.NewMintRecord(chainID, contract, mint, detectedAt))
	}
	return records
}
