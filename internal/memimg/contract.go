package memimg

import (
	"context"

	"github.com/louisbranch/memimg/internal/memimg/event"
	"github.com/louisbranch/memimg/internal/memimg/txn"
)

// Mutation is a serializable command that changes a system of type S.
//
// ExecuteOn must write only through change trackers bound to tx, and must be
// deterministic: replaying the same mutations over an empty system has to
// yield the same state.
type Mutation[S any] interface {
	MutationType() event.Type
	ExecuteOn(tx *txn.Tx, system S) (any, error)
}

// Query reads a system of type S. It must not write.
type Query[S any] interface {
	QueryType() string
	QueryOn(system S) (any, error)
}

// EventStorage is the durable, append-only log of mutations.
type EventStorage interface {
	// Replay calls apply for every stored event in append order, stopping
	// at the first error.
	Replay(ctx context.Context, apply func(event.Event) error) error
	// Append durably stores evt after every previously appended event and
	// returns it with its sequence number and chain fields assigned.
	Append(ctx context.Context, evt event.Event) (event.Event, error)
}
