package txn

import (
	"fmt"
)

// EntityID identifies an entity of the system independently of its memory
// address, e.g. "account/janet".
type EntityID string

// FieldID names a mutable field of an entity.
type FieldID string

// Key identifies one journaled field.
type Key struct {
	Entity EntityID
	Field  FieldID
}

func (k Key) String() string {
	return string(k.Entity) + "." + string(k.Field)
}

// Undo restores a field to its pre-transaction value.
type Undo func() error

// State is the lifecycle position of a transaction.
type State int

const (
	StateIdle State = iota
	StateBegan
	StateApplying
	StateAppending
	StateCommitted
	StateFailed
	StateRollingBack
	StateRolledBack
)

var stateNames = map[State]string{
	StateIdle:        "idle",
	StateBegan:       "began",
	StateApplying:    "applying",
	StateAppending:   "appending",
	StateCommitted:   "committed",
	StateFailed:      "failed",
	StateRollingBack: "rolling_back",
	StateRolledBack:  "rolled_back",
}

func (s State) String() string {
	if name, ok := stateNames[s]; ok {
		return name
	}
	return fmt.Sprintf("state(%d)", int(s))
}

// transitions lists the legal successors of each state.
var transitions = map[State][]State{
	StateIdle:        {StateBegan},
	StateBegan:       {StateApplying, StateCommitted, StateFailed},
	StateApplying:    {StateAppending, StateCommitted, StateFailed},
	StateAppending:   {StateCommitted, StateFailed},
	StateFailed:      {StateRollingBack},
	StateRollingBack: {StateRolledBack},
}

// Tx is the undo journal of one transaction. It is owned by a single
// goroutine for its whole life and is not safe for concurrent use.
type Tx struct {
	id    uint64
	state State
	keys  []Key
	undo  map[Key]Undo
}

func newTx(id uint64) *Tx {
	return &Tx{
		id:    id,
		state: StateBegan,
		undo:  make(map[Key]Undo),
	}
}

// ID returns the transaction sequence number assigned by its Manager.
func (tx *Tx) ID() uint64 {
	return tx.id
}

// State returns the current lifecycle state.
func (tx *Tx) State() State {
	return tx.state
}

// Active reports whether fields may still be written through tx.
func (tx *Tx) Active() bool {
	if tx == nil {
		return false
	}
	switch tx.state {
	case StateBegan, StateApplying, StateAppending:
		return true
	default:
		return false
	}
}

// Advance moves tx to next, rejecting transitions the lifecycle does not
// allow.
func (tx *Tx) Advance(next State) error {
	for _, allowed := range transitions[tx.state] {
		if allowed == next {
			tx.state = next
			return nil
		}
	}
	return fmt.Errorf("transaction %d: illegal transition %s -> %s", tx.id, tx.state, next)
}

// Remember registers undo for key unless key was already touched in this
// transaction. It reports whether undo was registered.
func (tx *Tx) Remember(key Key, undo Undo) bool {
	if undo == nil {
		return false
	}
	if _, ok := tx.undo[key]; ok {
		return false
	}
	tx.undo[key] = undo
	tx.keys = append(tx.keys, key)
	return true
}

// Touched returns the journaled keys in first-touch order.
func (tx *Tx) Touched() []Key {
	keys := make([]Key, len(tx.keys))
	copy(keys, tx.keys)
	return keys
}

// Len returns the number of journaled keys.
func (tx *Tx) Len() int {
	return len(tx.keys)
}

func (tx *Tx) discard() {
	tx.keys = nil
	tx.undo = make(map[Key]Undo)
}
