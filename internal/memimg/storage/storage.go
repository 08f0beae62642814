package storage

import (
	"context"
	"errors"
	"fmt"

	"github.com/louisbranch/memimg/internal/memimg/event"
	"github.com/louisbranch/memimg/internal/memimg/storage/integrity"
)

const defaultPageSize = 200

// DefaultScope names the log when none is configured. It is mixed into the
// signing key derivation.
const DefaultScope = "memimg"

var (
	// ErrListerRequired indicates a missing event source.
	ErrListerRequired = errors.New("event lister is required")
	// ErrApplyRequired indicates a missing apply callback.
	ErrApplyRequired = errors.New("apply callback is required")
	// ErrSequenceGap indicates a missing or out of order event.
	ErrSequenceGap = errors.New("event sequence gap")
	// ErrTampered indicates an event whose hashes or signature do not verify.
	ErrTampered = errors.New("event log integrity check failed")
	// ErrClosed indicates use of a closed log.
	ErrClosed = errors.New("event log is closed")
)

// Lister pages through stored events in sequence order.
type Lister interface {
	ListEvents(ctx context.Context, afterSeq uint64, limit int) ([]event.Event, error)
}

// Log is an append-only event log backend.
type Log interface {
	Lister
	Replay(ctx context.Context, apply func(event.Event) error) error
	Append(ctx context.Context, evt event.Event) (event.Event, error)
	Close() error
}

// Options configures Replay.
type Options struct {
	AfterSeq uint64
	UntilSeq uint64
	PageSize int
}

// Result captures replay outcomes.
type Result struct {
	LastSeq uint64
	Applied int
}

// Replay pages through lister and calls apply for each event in order. It
// fails on the first sequence gap.
func Replay(ctx context.Context, lister Lister, apply func(event.Event) error, options Options) (Result, error) {
	if lister == nil {
		return Result{}, ErrListerRequired
	}
	if apply == nil {
		return Result{}, ErrApplyRequired
	}
	pageSize := options.PageSize
	if pageSize <= 0 {
		pageSize = defaultPageSize
	}

	result := Result{LastSeq: options.AfterSeq}
	for {
		if err := ctx.Err(); err != nil {
			return result, err
		}
		events, err := lister.ListEvents(ctx, result.LastSeq, pageSize)
		if err != nil {
			return result, fmt.Errorf("list events after %d: %w", result.LastSeq, err)
		}
		if len(events) == 0 {
			return result, nil
		}
		for _, evt := range events {
			if options.UntilSeq > 0 && evt.Seq > options.UntilSeq {
				return result, nil
			}
			expectedSeq := result.LastSeq + 1
			if evt.Seq != expectedSeq {
				return result, fmt.Errorf("%w: expected %d got %d", ErrSequenceGap, expectedSeq, evt.Seq)
			}
			if err := apply(evt); err != nil {
				return result, err
			}
			result.LastSeq = evt.Seq
			result.Applied++
		}
	}
}

// Seal links evt after prev and, when keyring is set, signs its chain hash
// for scope.
func Seal(evt, prev event.Event, keyring *integrity.Keyring, scope string) (event.Event, error) {
	sealed, err := event.Seal(evt, prev)
	if err != nil {
		return event.Event{}, err
	}
	if keyring == nil {
		return sealed, nil
	}
	signature, keyID, err := keyring.SignChainHash(scopeOrDefault(scope), sealed.ChainHash)
	if err != nil {
		return event.Event{}, fmt.Errorf("sign chain hash: %w", err)
	}
	sealed.Signature = signature
	sealed.SignatureKeyID = keyID
	return sealed, nil
}

// Verify walks the whole log and checks every event's content hash, its
// link to the previous event and, when keyring is set, its signature.
func Verify(ctx context.Context, lister Lister, keyring *integrity.Keyring, scope string) (Result, error) {
	var prev event.Event
	return Replay(ctx, lister, func(evt event.Event) error {
		if err := verifyEvent(evt, prev, keyring, scopeOrDefault(scope)); err != nil {
			return fmt.Errorf("%w: event %d: %v", ErrTampered, evt.Seq, err)
		}
		prev = evt
		return nil
	}, Options{})
}

func verifyEvent(evt, prev event.Event, keyring *integrity.Keyring, scope string) error {
	hash, err := event.EventHash(evt)
	if err != nil {
		return err
	}
	if hash != evt.Hash {
		return fmt.Errorf("content hash mismatch")
	}
	if evt.PrevHash != prev.ChainHash {
		return fmt.Errorf("previous hash mismatch")
	}
	chainHash, err := event.ChainHash(evt, prev.ChainHash)
	if err != nil {
		return err
	}
	if chainHash != evt.ChainHash {
		return fmt.Errorf("chain hash mismatch")
	}
	if keyring == nil {
		return nil
	}
	return keyring.VerifyChainHash(scope, evt.ChainHash, evt.Signature, evt.SignatureKeyID)
}

func scopeOrDefault(scope string) string {
	if scope == "" {
		return DefaultScope
	}
	return scope
}
