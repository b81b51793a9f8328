package repository

import (
	"context"
	"time"

	"github.com/vbouzoukos/vbmongoengine/pkg/observability/metrics"
	"github.com/vbouzoukos/vbmongoengine/pkg/observability/tracing"
)

// observe runs one store call inside a database span and records its metrics.
// Failures are logged at debug level only; the caller decides what an error means.
func (r *Repository[T]) observe(ctx context.Context, op tracing.SpanOperation, name string, fn func(ctx context.Context) error, opts ...tracing.DatabaseSpanOption) error {
	collection := r.collection.Name()
	ctx, span := tracing.StartDatabaseSpan(ctx, op, append(opts, tracing.WithDBCollection(collection))...)

	start := time.Now()
	err := fn(ctx)
	metrics.RecordStoreOperation(collection, name, err, time.Since(start))
	tracing.End(span, err)

	if err != nil {
		r.logger.WithContext(ctx).Debug("store operation failed",
			"collection", collection,
			"operation", name,
			"error", err,
		)
	}
	return err
}
