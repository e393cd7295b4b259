/*
Package learning implements the enrollment, progress and query engines.

PURPOSE:
  Every operation that moves points or changes completion state lives here.
  Each one runs as a single TxStore.WithTx unit: the debit or credit, the
  transaction log entry and the enrollment/progress writes commit together
  or not at all.

OPERATIONS:
  Enroll:           Debit the course cost and seed progress rows
  CompleteLesson:   Mark a lesson done, recount, reward on first completion
  UpdateLessonTime: Accumulate time on a lesson without completing it
  OpenAccount:      Create a user with a welcome bonus
  GrantBonus:       Credit an admin bonus
  Reconcile:        Backfill progress rows for lessons added after enrollment
  Balance, Transactions, CourseProgress, EnrolledCourses: pure reads

ERROR POLICY:
  Domain rejections (not found, unpublished, duplicate, insufficient funds)
  are returned unchanged and logged at Debug. Anything else means the unit
  rolled back: the cause is logged at Error and the caller receives a
  *ledger.InternalError.

CACHING:
  Balance reads go through an optional BalanceCache. Writers invalidate the
  entry after commit and never populate it. A reader fills a miss only under
  the generation it took before reading the store, so a fill that raced a
  commit is dropped.

SEE ALSO:
  - ledger/store.go: Store contracts the engine relies on
  - sweeper.go: Scheduled Reconcile over all enrollments
*/
package learning

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/warp/course-ledger/ledger"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
)

const tracerName = "github.com/warp/course-ledger/learning"

// Engine orchestrates the ledger and progress stores.
type Engine struct {
	store   ledger.TxStore
	cache   ledger.BalanceCache
	logger  *zap.Logger
	metrics *Metrics
	tracer  trace.Tracer
	now     func() time.Time
	newID   func() string
}

// Option configures an Engine.
type Option func(*Engine)

func WithLogger(l *zap.Logger) Option {
	return func(e *Engine) { e.logger = l }
}

func WithBalanceCache(c ledger.BalanceCache) Option {
	return func(e *Engine) { e.cache = c }
}

func WithMetrics(m *Metrics) Option {
	return func(e *Engine) { e.metrics = m }
}

// WithClock overrides time.Now. Tests use it to pin timestamps.
func WithClock(now func() time.Time) Option {
	return func(e *Engine) { e.now = now }
}

func WithTracer(t trace.Tracer) Option {
	return func(e *Engine) { e.tracer = t }
}

// NewEngine creates an engine over store. Without options it logs nothing,
// caches nothing and uses the global tracer provider.
func NewEngine(store ledger.TxStore, opts ...Option) *Engine {
	e := &Engine{
		store:  store,
		cache:  ledger.NopCache{},
		logger: zap.NewNop(),
		tracer: otel.Tracer(tracerName),
		now:    func() time.Time { return time.Now().UTC() },
		newID:  uuid.NewString,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Store returns the underlying store.
func (e *Engine) Store() ledger.TxStore { return e.store }

// =============================================================================
// HELPERS
// =============================================================================

func (e *Engine) start(ctx context.Context, op string, attrs ...attribute.KeyValue) (context.Context, trace.Span) {
	return e.tracer.Start(ctx, "learning."+op, trace.WithAttributes(attrs...))
}

// fail classifies err. Rejections pass through; everything else is logged
// and wrapped so the cause never reaches a client.
func (e *Engine) fail(span trace.Span, op string, err error, fields ...zap.Field) error {
	fields = append(fields, zap.String("op", op), zap.Error(err))
	if ledger.IsRejection(err) {
		e.logger.Debug("operation rejected", fields...)
		span.SetAttributes(attribute.String("rejection", err.Error()))
		e.metrics.rejected(op)
		return err
	}

	e.logger.Error("operation failed, unit rolled back", fields...)
	span.RecordError(err)
	span.SetStatus(codes.Error, op+" failed")
	e.metrics.failed(op)
	return &ledger.InternalError{Op: op, Err: err}
}

// invalidate drops the cached balance after a committed mutation.
func (e *Engine) invalidate(ctx context.Context, userID ledger.UserID) {
	if err := e.cache.Invalidate(ctx, userID); err != nil {
		e.logger.Warn("balance cache invalidate failed",
			zap.Int64("user_id", int64(userID)), zap.Error(err))
	}
}

func (e *Engine) appendTx(ctx context.Context, s ledger.Store, userID ledger.UserID, amount ledger.Points, kind ledger.Kind, description string, ref *ledger.CourseID, at time.Time) error {
	return s.AppendTransaction(ctx, ledger.PointTransaction{
		ID:          ledger.TransactionID(e.newID()),
		UserID:      userID,
		Amount:      amount,
		Kind:        kind,
		Description: description,
		ReferenceID: ref,
		CreatedAt:   at,
	})
}

func userAttr(id ledger.UserID) attribute.KeyValue {
	return attribute.Int64("user.id", int64(id))
}
