package es

import (
	"encoding/json"
	"fmt"
	"time"
)

// Metadata travels with every stored event and links it to the command
// that caused it.
type Metadata struct {
	CorrelationID string `json:"correlation_id,omitempty"`
	CausationID   string `json:"causation_id,omitempty"`
	UserID        string `json:"user_id,omitempty"`
}

// Envelope is what gets persisted in the event store. It is immutable
// once appended.
type Envelope struct {
	ID            string          `json:"id"`             // unique event ID
	Seq           uint64          `json:"seq"`            // global sequence number, assigned by the store
	StreamType    string          `json:"stream_type"`    // aggregate root type
	StreamID      string          `json:"stream_id"`      // aggregate root ID
	Type          string          `json:"type"`           // event type discriminator
	SchemaVersion int             `json:"schema_version"` // schema version of the event type
	Version       Version         `json:"version"`        // 1..N, per stream
	Data          json.RawMessage `json:"data"`
	OccurredAt    time.Time       `json:"occurred_at"` // domain time
	StoredAt      time.Time       `json:"stored_at"`   // assigned by the store on append
	Metadata      Metadata        `json:"metadata,omitzero"`
}

func (e Envelope) Validate() error {
	if e.ID == "" {
		return fmt.Errorf("envelope id is empty")
	}
	if e.StreamID == "" {
		return fmt.Errorf("envelope stream id is empty")
	}
	if e.StreamType == "" {
		return fmt.Errorf("envelope stream type is empty")
	}
	if e.Type == "" {
		return fmt.Errorf("envelope type is empty")
	}
	if e.OccurredAt.IsZero() {
		return fmt.Errorf("envelope occurred at is zero")
	}
	return nil
}

// Decoder turns a persisted envelope back into a typed event.
type Decoder interface {
	Decode(e Envelope) (any, error)
}
