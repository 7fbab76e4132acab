package model

import "time"

// EventRecord is the normalized representation of one WebsitePublished
// event for storage. Records are append-only: written once by the
// subscriber, never updated or deleted.
type EventRecord struct {
	UserAddress string    `json:"user_address"`
	PayloadURL  string    `json:"payload_url"`
	TxHash      string    `json:"tx_hash"`
	ObservedAt  time.Time `json:"observed_at"`
	PersistedAt time.Time `json:"persisted_at"`
}
