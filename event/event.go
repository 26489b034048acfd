// Package event defines the notifications the ledger service emits after a
// committed balance change.
package event

import (
	"encoding/json"
	"fmt"
	"slices"
	"time"

	"github.com/xraph/coinledger/id"
	"github.com/xraph/coinledger/types"
)

// Kind names what happened.
type Kind string

const (
	CoinCreated     Kind = "coin.created"
	CoinRemoved     Kind = "coin.removed"
	CoinEmitted     Kind = "coin.emitted"
	CoinBurned      Kind = "coin.burned"
	CoinHeld        Kind = "coin.held"
	CoinUnheld      Kind = "coin.unheld"
	CoinTransferred Kind = "coin.transferred"
	CoinNullified   Kind = "coin.nullified"
)

// Kinds lists every event kind.
var Kinds = []Kind{
	CoinCreated,
	CoinRemoved,
	CoinEmitted,
	CoinBurned,
	CoinHeld,
	CoinUnheld,
	CoinTransferred,
	CoinNullified,
}

func (k Kind) String() string { return string(k) }

// Event describes one balance change. Held reports which bucket the amount
// moved in or out of: for emitted, burned and nullified events it is the
// bucket touched; for a transfer it is set when either side is held.
type Event struct {
	ID          id.ID        `json:"id"`
	OperationID id.ID        `json:"operation_id"`
	Kind        Kind         `json:"kind"`
	CoinUID     string       `json:"coin_uid"`
	ObjectUID   string       `json:"object_uid,omitempty"`
	TargetUID   string       `json:"target_uid,omitempty"`
	Amount      types.Amount `json:"amount"`
	Held        bool         `json:"held,omitempty"`
	// InitiatorUID is the principal that requested the change, if known.
	InitiatorUID string    `json:"initiator_uid,omitempty"`
	OccurredAt   time.Time `json:"occurred_at"`
}

// New creates an event with a fresh ID stamped at now.
func New(kind Kind, opID id.ID, coinUID string) *Event {
	return &Event{
		ID:          id.NewEventID(),
		OperationID: opID,
		Kind:        kind,
		CoinUID:     coinUID,
		OccurredAt:  time.Now().UTC(),
	}
}

// Decode parses a JSON encoded event, as published by the Kafka hook, and
// rejects one whose kind or identifiers are not ledger event values.
func Decode(data []byte) (*Event, error) {
	var e Event
	if err := json.Unmarshal(data, &e); err != nil {
		return nil, fmt.Errorf("event: decode: %w", err)
	}
	if !slices.Contains(Kinds, e.Kind) {
		return nil, fmt.Errorf("event: unknown kind %q", e.Kind)
	}
	if e.ID.Prefix() != id.PrefixEvent {
		return nil, fmt.Errorf("event: id %q is not an event id", e.ID)
	}
	if e.OperationID.Prefix() != id.PrefixOperation {
		return nil, fmt.Errorf("event: operation id %q is not an operation id", e.OperationID)
	}
	return &e, nil
}
