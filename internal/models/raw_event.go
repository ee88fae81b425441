package models

import (
	"encoding/json"
	"time"
)

// RawEvent is the audit record of one handled log, stored in ClickHouse
type RawEvent struct {
	Key             string          `json:"key" ch:"key"`
	Name            string          `json:"name" ch:"name"`
	Contract        string          `json:"contract" ch:"contract"`
	BlockNumber     uint64          `json:"blockNumber" ch:"block_number"`
	BlockTimestamp  uint64          `json:"blockTimestamp" ch:"block_timestamp"`
	TransactionHash string          `json:"transactionHash" ch:"transaction_hash"`
	LogIndex        uint32          `json:"logIndex" ch:"log_index"`
	Payload         json.RawMessage `json:"payload" ch:"payload"`
}

// Time returns the block timestamp as a time.Time
func (e *RawEvent) Time() time.Time {
	return time.Unix(int64(e.BlockTimestamp), 0).UTC()
}

// AppliedEvent marks an event whose aggregate writes committed. It is
// written in the same transaction as those writes.
type AppliedEvent struct {
	Key         string `json:"key"`
	Name        string `json:"name"`
	BlockNumber uint64 `json:"blockNumber"`
}
