package field

import (
	"cmp"
	"fmt"
	"slices"

	"github.com/louisbranch/memimg/internal/memimg/txn"
	apperrors "github.com/louisbranch/memimg/internal/platform/errors"
)

// Map tracks a keyed collection of an entity. Each map key is journaled
// independently, so rolling back restores both removed and added entries.
type Map[K cmp.Ordered, V any] struct {
	entity  txn.EntityID
	name    txn.FieldID
	entries map[K]V
}

// NewMap declares an empty tracked map.
func NewMap[K cmp.Ordered, V any](entity txn.EntityID, name txn.FieldID) *Map[K, V] {
	return &Map[K, V]{
		entity:  entity,
		name:    name,
		entries: make(map[K]V),
	}
}

// Get returns the value stored under key.
func (m *Map[K, V]) Get(key K) (V, bool) {
	value, ok := m.entries[key]
	return value, ok
}

// Len returns the number of entries.
func (m *Map[K, V]) Len() int {
	return len(m.entries)
}

// Keys returns the keys in ascending order.
func (m *Map[K, V]) Keys() []K {
	keys := make([]K, 0, len(m.entries))
	for key := range m.entries {
		keys = append(keys, key)
	}
	slices.Sort(keys)
	return keys
}

// Put stores value under key.
func (m *Map[K, V]) Put(tx *txn.Tx, key K, value V) error {
	if err := m.remember(tx, key); err != nil {
		return err
	}
	m.entries[key] = value
	return nil
}

// Delete removes key. Deleting a missing key is a no-op.
func (m *Map[K, V]) Delete(tx *txn.Tx, key K) error {
	if _, ok := m.entries[key]; !ok {
		return nil
	}
	if err := m.remember(tx, key); err != nil {
		return err
	}
	delete(m.entries, key)
	return nil
}

// KeyOf returns the journal key used for entry key.
func (m *Map[K, V]) KeyOf(key K) txn.Key {
	return txn.Key{Entity: m.entity, Field: txn.FieldID(fmt.Sprintf("%s[%v]", m.name, key))}
}

func (m *Map[K, V]) remember(tx *txn.Tx, key K) error {
	journalKey := m.KeyOf(key)
	if !tx.Active() {
		return apperrors.System(apperrors.CodeNoTransaction, fmt.Sprintf("writing %s outside a transaction", journalKey), nil)
	}
	previous, existed := m.entries[key]
	tx.Remember(journalKey, func() error {
		if existed {
			m.entries[key] = previous
		} else {
			delete(m.entries, key)
		}
		return nil
	})
	return nil
}
