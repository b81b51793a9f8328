// Package tracing provides OpenTelemetry tracing for document store operations.
package tracing

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	semconv "go.opentelemetry.io/otel/semconv/v1.17.0"
	"go.opentelemetry.io/otel/trace"
)

// ScopeName is the instrumentation scope of the spans started by the engine.
const ScopeName = "github.com/vbouzoukos/vbmongoengine"

// DefaultDBSystem is reported as db.system unless WithDBSystem overrides it.
const DefaultDBSystem = "mongodb"

// SpanOperation names the kind of database work a span covers.
type SpanOperation string

const (
	SpanOperationDBQuery  SpanOperation = "db.query"
	SpanOperationDBInsert SpanOperation = "db.insert"
	SpanOperationDBUpdate SpanOperation = "db.update"
	SpanOperationDBDelete SpanOperation = "db.delete"
	// SpanOperationDBBulk covers an ordered write plan sent as one bulk write.
	SpanOperationDBBulk   SpanOperation = "db.bulk_write"
	SpanOperationDBIndex  SpanOperation = "db.create_index"
	SpanOperationDBTx     SpanOperation = "db.transaction"
	SpanOperationSequence SpanOperation = "db.sequence"
)

// DatabaseSpanOption configures a database span.
type DatabaseSpanOption func(*dbSpan)

type dbSpan struct {
	system     string
	database   string
	collection string
	statement  string
	batchSize  int
}

func (s *dbSpan) name(op SpanOperation) string {
	if s.collection == "" {
		return "DB " + string(op)
	}
	return "DB " + string(op) + " " + s.collection
}

func (s *dbSpan) attributes(op SpanOperation) []attribute.KeyValue {
	attrs := []attribute.KeyValue{
		semconv.DBSystemKey.String(s.system),
		semconv.DBOperationKey.String(string(op)),
	}
	if s.database != "" {
		attrs = append(attrs, semconv.DBNameKey.String(s.database))
	}
	if s.collection != "" {
		attrs = append(attrs, semconv.DBMongoDBCollectionKey.String(s.collection))
	}
	if s.statement != "" {
		attrs = append(attrs, semconv.DBStatementKey.String(s.statement))
	}
	if s.batchSize > 0 {
		attrs = append(attrs, attribute.Int("db.batch_size", s.batchSize))
	}
	return attrs
}

// StartDatabaseSpan starts a client span named "DB <operation>[ <collection>]" on the global
// tracer provider.
func StartDatabaseSpan(ctx context.Context, operation SpanOperation, opts ...DatabaseSpanOption) (context.Context, trace.Span) {
	s := dbSpan{system: DefaultDBSystem}
	for _, opt := range opts {
		opt(&s)
	}
	return otel.Tracer(ScopeName).Start(ctx, s.name(operation),
		trace.WithSpanKind(trace.SpanKindClient),
		trace.WithAttributes(s.attributes(operation)...),
	)
}

// WithDBCollection names the collection, which also becomes part of the span name.
func WithDBCollection(collection string) DatabaseSpanOption {
	return func(s *dbSpan) { s.collection = collection }
}

// WithDBSystem overrides the reported database system, e.g. "redis" for sequence stores.
func WithDBSystem(system string) DatabaseSpanOption {
	return func(s *dbSpan) {
		if system != "" {
			s.system = system
		}
	}
}

// WithDBStatement records the rendered filter or command.
func WithDBStatement(statement string) DatabaseSpanOption {
	return func(s *dbSpan) { s.statement = statement }
}

func WithDBName(name string) DatabaseSpanOption {
	return func(s *dbSpan) { s.database = name }
}

// WithBatchSize records how many documents or write operations the call carries.
func WithBatchSize(size int) DatabaseSpanOption {
	return func(s *dbSpan) { s.batchSize = size }
}

// RecordError marks span as failed with err. A nil err is ignored.
func RecordError(span trace.Span, err error) {
	if err == nil {
		return
	}
	span.RecordError(err)
	span.SetStatus(codes.Error, err.Error())
}

// RecordSuccess marks span as completed without error.
func RecordSuccess(span trace.Span) {
	span.SetStatus(codes.Ok, "")
}

// End records the outcome of err on span and ends it.
func End(span trace.Span, err error) {
	if err != nil {
		RecordError(span, err)
	} else {
		RecordSuccess(span)
	}
	span.End()
}
