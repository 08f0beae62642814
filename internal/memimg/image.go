package memimg

import (
	"context"
	"fmt"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/louisbranch/memimg/internal/memimg/event"
	"github.com/louisbranch/memimg/internal/memimg/txn"
	apperrors "github.com/louisbranch/memimg/internal/platform/errors"
	"github.com/louisbranch/memimg/internal/platform/logging"
	"github.com/louisbranch/memimg/internal/platform/metrics"
)

const tracerName = "github.com/louisbranch/memimg/internal/memimg"

// Image owns a system of type S and the log it is rebuilt from.
type Image[S any] struct {
	system   S
	storage  EventStorage
	registry *Registry[S]
	manager  *txn.Manager
	opts     options
	tracer   trace.Tracer
}

// New replays every stored event into system and returns the image that
// owns it. Replay holds the lock exclusively, journals into throwaway
// transactions and appends nothing. Any replay failure is fatal.
func New[S any](ctx context.Context, system S, storage EventStorage, registry *Registry[S], opts ...Option) (*Image[S], error) {
	if storage == nil {
		return nil, fmt.Errorf("event storage is required")
	}
	if registry == nil {
		return nil, fmt.Errorf("registry is required")
	}
	o := defaultOptions()
	for _, opt := range opts {
		if opt != nil {
			opt(&o)
		}
	}

	img := &Image[S]{
		system:   system,
		storage:  storage,
		registry: registry,
		opts:     o,
		tracer:   otel.Tracer(tracerName),
	}
	img.manager = txn.NewManager(txn.NewLock(),
		txn.WithLockTimeout(o.lockTimeout),
		txn.WithPanicOnInconsistency(o.panicOnInconsistency),
		txn.WithInconsistencyHook(img.inconsistent),
		txn.WithLockWaitObserver(o.metrics.ObserveLockWait),
	)

	if err := img.replay(ctx); err != nil {
		logging.LogFailure(o.logger, err)
		return nil, err
	}
	return img, nil
}

func (img *Image[S]) replay(ctx context.Context) error {
	ctx, span := img.tracer.Start(ctx, "memimg.Replay")
	defer span.End()

	release, err := img.manager.Hold(ctx)
	if err != nil {
		return apperrors.System(apperrors.CodeReplay, "replaying event log", err)
	}
	defer release()

	start := time.Now()
	var replayed int
	err = img.storage.Replay(ctx, func(evt event.Event) error {
		if err := img.replayEvent(evt); err != nil {
			return fmt.Errorf("event %d (%s): %w", evt.Seq, evt.Type, err)
		}
		replayed++
		return nil
	})
	img.opts.metrics.ObserveReplayed(replayed)
	span.SetAttributes(attribute.Int("memimg.replayed_events", replayed))
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "replay failed")
		return apperrors.System(apperrors.CodeReplay, "replaying event log", err)
	}
	img.opts.logger.Info("event log replayed",
		zap.Int("events", replayed),
		zap.Duration("elapsed", time.Since(start)),
	)
	return nil
}

func (img *Image[S]) replayEvent(evt event.Event) (err error) {
	m, err := img.registry.Decode(evt)
	if err != nil {
		return err
	}
	defer func() {
		if recovered := recover(); recovered != nil {
			err = fmt.Errorf("panic: %v", recovered)
		}
	}()
	tx := img.manager.Begin()
	if err := tx.Advance(txn.StateApplying); err != nil {
		return err
	}
	if _, err := m.ExecuteOn(tx, img.system); err != nil {
		return err
	}
	return tx.Advance(txn.StateCommitted)
}

// ExecuteMutation applies m to the system and appends it to the log as one
// transaction. If either step fails, every field m touched is rolled back
// and the failure is returned: an application failure when applying failed,
// a system failure when serializing or appending failed.
func (img *Image[S]) ExecuteMutation(ctx context.Context, m Mutation[S]) (any, error) {
	if m == nil {
		return nil, apperrors.Application(apperrors.CodeMutationFailed, "executing mutation", fmt.Errorf("mutation is required"))
	}
	mutationType := string(m.MutationType())
	ctx, span := img.tracer.Start(ctx, "memimg.ExecuteMutation",
		trace.WithAttributes(attribute.String("memimg.mutation_type", mutationType)),
	)
	defer span.End()

	start := time.Now()
	var result any
	err := img.manager.Run(ctx, func(tx *txn.Tx) error {
		if err := tx.Advance(txn.StateApplying); err != nil {
			return apperrors.System(apperrors.CodeTransactionFault, "executing mutation "+mutationType, err)
		}
		applied, err := m.ExecuteOn(tx, img.system)
		if err != nil {
			return apperrors.Application(apperrors.CodeMutationFailed, "executing mutation "+mutationType, err)
		}
		if err := tx.Advance(txn.StateAppending); err != nil {
			return apperrors.System(apperrors.CodeTransactionFault, "serializing mutation "+mutationType, err)
		}
		if err := img.append(ctx, m); err != nil {
			return apperrors.System(apperrors.CodeSerialization, "serializing mutation "+mutationType, err)
		}
		span.SetAttributes(attribute.Int("memimg.touched_fields", tx.Len()))
		result = applied
		return nil
	})

	outcome := metrics.OutcomeCommitted
	if err != nil {
		outcome = metrics.OutcomeRolledBack
		span.RecordError(err)
		span.SetStatus(codes.Error, "mutation failed")
		logging.LogFailure(img.opts.logger, err, zap.String("mutation_type", mutationType))
	}
	img.opts.metrics.ObserveMutation(mutationType, outcome, time.Since(start))
	if err != nil {
		return nil, err
	}
	return result, nil
}

func (img *Image[S]) append(ctx context.Context, m Mutation[S]) error {
	evt, err := img.registry.Encode(m)
	if err != nil {
		return err
	}
	evt.ID, err = img.opts.newID()
	if err != nil {
		return err
	}
	evt.Timestamp = img.opts.clock().UTC()
	if _, err := img.storage.Append(ctx, evt); err != nil {
		return err
	}
	return nil
}

// ExecuteQuery runs q against the system while holding the shared lock, so
// it never observes a mutation in progress.
func (img *Image[S]) ExecuteQuery(ctx context.Context, q Query[S]) (any, error) {
	if q == nil {
		return nil, apperrors.Application(apperrors.CodeQueryFailed, "executing query", fmt.Errorf("query is required"))
	}
	queryType := q.QueryType()
	ctx, span := img.tracer.Start(ctx, "memimg.ExecuteQuery",
		trace.WithAttributes(attribute.String("memimg.query_type", queryType)),
	)
	defer span.End()

	result, err := img.query(ctx, q)
	outcome := metrics.OutcomeOK
	if err != nil {
		outcome = metrics.OutcomeFailed
		span.RecordError(err)
		span.SetStatus(codes.Error, "query failed")
		logging.LogFailure(img.opts.logger, err, zap.String("query_type", queryType))
	}
	img.opts.metrics.ObserveQuery(queryType, outcome)
	return result, err
}

func (img *Image[S]) query(ctx context.Context, q Query[S]) (result any, err error) {
	release, err := img.manager.HoldShared(ctx)
	if err != nil {
		return nil, err
	}
	defer release()
	defer func() {
		if recovered := recover(); recovered != nil {
			result = nil
			err = apperrors.System(apperrors.CodeQueryFailed, "executing query "+q.QueryType(), fmt.Errorf("panic: %v", recovered))
		}
	}()
	result, err = q.QueryOn(img.system)
	if err != nil {
		return nil, apperrors.Application(apperrors.CodeQueryFailed, "executing query "+q.QueryType(), err)
	}
	return result, nil
}

// Registry returns the registry the image decodes mutations with.
func (img *Image[S]) Registry() *Registry[S] {
	return img.registry
}

// Healthy returns nil while the image is usable, or the inconsistency that
// made it unusable.
func (img *Image[S]) Healthy() error {
	if err := img.manager.Err(); err != nil {
		return apperrors.System(apperrors.CodeStoreUnusable, "store is unusable after a failed rollback", err)
	}
	return nil
}

func (img *Image[S]) inconsistent(err *txn.InconsistencyError) {
	img.opts.metrics.ObserveInconsistency()
	img.opts.logger.Error("rollback failed, image is unusable",
		zap.Uint64("tx_id", err.TxID),
		zap.String("key", err.Key.String()),
		zap.Error(err.Cause),
	)
}

// Mutate executes m and asserts its result type.
func Mutate[R any, S any](ctx context.Context, img *Image[S], m Mutation[S]) (R, error) {
	var zero R
	result, err := img.ExecuteMutation(ctx, m)
	if err != nil {
		return zero, err
	}
	return cast[R](result)
}

// Ask executes q and asserts its result type.
func Ask[R any, S any](ctx context.Context, img *Image[S], q Query[S]) (R, error) {
	var zero R
	result, err := img.ExecuteQuery(ctx, q)
	if err != nil {
		return zero, err
	}
	return cast[R](result)
}

func cast[R any](result any) (R, error) {
	var zero R
	if result == nil {
		return zero, nil
	}
	typed, ok := result.(R)
	if !ok {
		return zero, apperrors.System(apperrors.CodeTransactionFault, "converting result", fmt.Errorf("unexpected result type %T", result))
	}
	return typed, nil
}
