// Package field provides change trackers: wrappers through which every
// mutable field of a system entity is declared, so that writes are validated
// and journaled for rollback.
package field

import (
	"fmt"

	"github.com/louisbranch/memimg/internal/memimg/txn"
	"github.com/louisbranch/memimg/internal/memimg/validate"
	apperrors "github.com/louisbranch/memimg/internal/platform/errors"
)

// Field tracks one mutable value of an entity.
type Field[T any] struct {
	key   txn.Key
	value T
	rules []validate.Rule[T]
}

// New declares a field of entity with an initial value. The initial value
// must satisfy rules.
func New[T any](entity txn.EntityID, name txn.FieldID, initial T, rules ...validate.Rule[T]) (*Field[T], error) {
	f := &Field[T]{
		key:   txn.Key{Entity: entity, Field: name},
		rules: rules,
	}
	if err := f.validate(initial); err != nil {
		return nil, err
	}
	f.value = initial
	return f, nil
}

// Key returns the journal key of the field.
func (f *Field[T]) Key() txn.Key {
	return f.key
}

// Get returns the current value.
func (f *Field[T]) Get() T {
	return f.value
}

// Set validates value and stores it, journaling the pre-transaction value
// the first time the field is written within tx. An invalid value leaves
// both the field and the journal untouched.
func (f *Field[T]) Set(tx *txn.Tx, value T) error {
	if err := f.validate(value); err != nil {
		return err
	}
	if !tx.Active() {
		return apperrors.System(apperrors.CodeNoTransaction, fmt.Sprintf("writing %s outside a transaction", f.key), nil)
	}
	previous := f.value
	tx.Remember(f.key, func() error {
		f.value = previous
		return nil
	})
	f.value = value
	return nil
}

// Update sets the field to fn applied to its current value.
func (f *Field[T]) Update(tx *txn.Tx, fn func(T) T) error {
	return f.Set(tx, fn(f.value))
}

func (f *Field[T]) validate(value T) error {
	if err := validate.Check(value, f.rules...); err != nil {
		return invalid(f.key, value, err)
	}
	return nil
}

func invalid(key txn.Key, value any, cause error) error {
	failure := apperrors.Application(apperrors.CodeValidation, key.String(), cause)
	return failure.WithMetadata(map[string]string{
		"entity": string(key.Entity),
		"field":  string(key.Field),
		"value":  fmt.Sprint(value),
	})
}
