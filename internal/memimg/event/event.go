// Package event defines the journal envelope that records one committed
// mutation, and the hashes that chain envelopes into a tamper-evident log.
package event

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"
)

// Type names a mutation kind, e.g. "bank.deposit".
type Type string

// Event is one journal entry. Storage assigns Seq and the chain fields when
// the event is appended.
type Event struct {
	Seq            uint64    `json:"seq"`
	ID             string    `json:"id"`
	Type           Type      `json:"type"`
	Timestamp      time.Time `json:"timestamp"`
	PayloadJSON    []byte    `json:"payload"`
	Hash           string    `json:"hash,omitempty"`
	PrevHash       string    `json:"prev_hash,omitempty"`
	ChainHash      string    `json:"chain_hash,omitempty"`
	Signature      string    `json:"signature,omitempty"`
	SignatureKeyID string    `json:"signature_key_id,omitempty"`
}

// Validate checks the fields a caller must provide before appending.
func (e Event) Validate() error {
	if strings.TrimSpace(e.ID) == "" {
		return fmt.Errorf("event id is required")
	}
	if strings.TrimSpace(string(e.Type)) == "" {
		return fmt.Errorf("event type is required")
	}
	if e.Timestamp.IsZero() {
		return fmt.Errorf("event timestamp is required")
	}
	if !json.Valid(e.PayloadJSON) {
		return fmt.Errorf("event %s payload is not valid json", e.ID)
	}
	return nil
}

// Seal links evt after prev, the last stored event (the zero Event for an
// empty log): it assigns the next sequence number and computes the content
// and chain hashes.
func Seal(evt Event, prev Event) (Event, error) {
	if err := evt.Validate(); err != nil {
		return Event{}, err
	}
	evt.Timestamp = evt.Timestamp.UTC().Truncate(time.Millisecond)
	evt.Seq = prev.Seq + 1
	evt.PrevHash = prev.ChainHash

	hash, err := EventHash(evt)
	if err != nil {
		return Event{}, fmt.Errorf("compute event hash: %w", err)
	}
	evt.Hash = hash

	chainHash, err := ChainHash(evt, evt.PrevHash)
	if err != nil {
		return Event{}, fmt.Errorf("compute chain hash: %w", err)
	}
	evt.ChainHash = chainHash
	return evt, nil
}
