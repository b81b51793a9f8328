package engine

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/vbouzoukos/vbmongoengine/pkg/observability/logger"
	"github.com/vbouzoukos/vbmongoengine/pkg/observability/tracing"
	"go.mongodb.org/mongo-driver/mongo"
	"go.opentelemetry.io/otel/trace"
)

// ErrTransactionDone is returned when a finished transaction is committed.
var ErrTransactionDone = errors.New("transaction already finished")

// Transaction is a MongoDB multi-document transaction bound to one session.
type Transaction struct {
	id      string
	owner   *Context
	session mongo.Session
	ctx     context.Context
	span    trace.Span
	logger  logger.Logger

	mu   sync.Mutex
	done bool
}

// ID is the correlation id of the transaction.
func (t *Transaction) ID() string { return t.id }

// Context carries the session. Repository calls made with it join the transaction.
func (t *Transaction) Context() context.Context { return t.ctx }

// Commit commits the transaction and ends its session.
func (t *Transaction) Commit() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.done {
		return ErrTransactionDone
	}
	t.done = true
	defer t.finish()

	if err := t.session.CommitTransaction(t.ctx); err != nil {
		tracing.RecordError(t.span, err)
		t.logger.Error("transaction commit failed", "error", err)
		return fmt.Errorf("commit: %w", err)
	}
	tracing.RecordSuccess(t.span)
	t.logger.Debug("transaction committed")
	return nil
}

// Rollback aborts the transaction and ends its session. Rolling back a finished transaction
// does nothing.
func (t *Transaction) Rollback() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.done {
		return nil
	}
	t.done = true
	defer t.finish()

	// Abort must still run when the caller's context is already canceled.
	ctx := context.WithoutCancel(t.ctx)
	if err := t.session.AbortTransaction(ctx); err != nil {
		tracing.RecordError(t.span, err)
		t.logger.Error("transaction abort failed", "error", err)
		return fmt.Errorf("abort: %w", err)
	}
	tracing.RecordError(t.span, errors.New("transaction rolled back"))
	t.logger.Debug("transaction rolled back")
	return nil
}

func (t *Transaction) finish() {
	t.session.EndSession(context.WithoutCancel(t.ctx))
	t.span.End()
	t.owner.release(t)
}
