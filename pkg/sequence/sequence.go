// Package sequence issues auto-increment identities from named counters.
package sequence

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/vbouzoukos/vbmongoengine/pkg/observability/logger"
	"github.com/vbouzoukos/vbmongoengine/pkg/observability/metrics"
	"github.com/vbouzoukos/vbmongoengine/pkg/observability/tracing"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

// ErrInvalidName is returned for an empty sequence name.
var ErrInvalidName = errors.New("sequence name is required")

// Sequence is the persisted state of one counter. Value is the next value to issue.
type Sequence struct {
	ID    primitive.ObjectID `bson:"_id"`
	Name  string             `bson:"collectionName"`
	Value int64              `bson:"sequence"`
}

// Store persists counters. Advance returns the current value of name and moves it forward by
// one; a counter that does not exist yet starts at 1. Reset makes the next Advance return 1.
// Current reads the value the next Advance would return.
type Store interface {
	Advance(ctx context.Context, name string) (int64, error)
	Reset(ctx context.Context, name string) error
	Current(ctx context.Context, name string) (int64, error)
}

// Generator serializes every counter operation of the process behind one mutex, so a
// read-then-write Store never hands out the same value twice within the process.
type Generator struct {
	mu     sync.Mutex
	store  Store
	logger logger.Logger
}

// NewGenerator creates a generator over store.
func NewGenerator(store Store, log logger.Logger) *Generator {
	if log == nil {
		log = logger.NewNop()
	}
	return &Generator{store: store, logger: log}
}

// Next issues the next value of name.
func (g *Generator) Next(ctx context.Context, name string) (int64, error) {
	if strings.TrimSpace(name) == "" {
		return 0, ErrInvalidName
	}

	g.mu.Lock()
	defer g.mu.Unlock()

	ctx, span := tracing.StartDatabaseSpan(ctx, tracing.SpanOperationSequence,
		tracing.WithDBCollection(name),
	)
	value, err := g.store.Advance(ctx, name)
	tracing.End(span, err)
	if err != nil {
		return 0, fmt.Errorf("advance sequence %s: %w", name, err)
	}
	metrics.RecordSequenceIssued(name)
	g.logger.WithContext(ctx).Debug("sequence value issued", "sequence", name, "value", value)
	return value, nil
}

// Reset restarts name at 1.
func (g *Generator) Reset(ctx context.Context, name string) error {
	if strings.TrimSpace(name) == "" {
		return ErrInvalidName
	}

	g.mu.Lock()
	defer g.mu.Unlock()

	ctx, span := tracing.StartDatabaseSpan(ctx, tracing.SpanOperationSequence,
		tracing.WithDBCollection(name),
		tracing.WithDBStatement("reset"),
	)
	err := g.store.Reset(ctx, name)
	tracing.End(span, err)
	if err != nil {
		return fmt.Errorf("reset sequence %s: %w", name, err)
	}
	g.logger.WithContext(ctx).Info("sequence reset", "sequence", name)
	return nil
}

// Current returns the value the next call to Next would issue for name.
func (g *Generator) Current(ctx context.Context, name string) (int64, error) {
	if strings.TrimSpace(name) == "" {
		return 0, ErrInvalidName
	}
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.store.Current(ctx, name)
}
