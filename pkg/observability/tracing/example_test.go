package tracing_test

import (
	"context"
	"errors"
	"fmt"

	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"

	"github.com/vbouzoukos/vbmongoengine/pkg/observability/tracing"
)

// ExampleNewTracerProvider records the spans of a disabled provider in memory, which is how
// tests observe the database spans without a collector.
func ExampleNewTracerProvider() {
	ctx := context.Background()
	recorder := tracetest.NewSpanRecorder()

	provider, err := tracing.NewTracerProvider(ctx, tracing.TracerConfig{ServiceName: "vbengine"},
		tracing.WithSpanProcessor(recorder))
	if err != nil {
		fmt.Println(err)
		return
	}
	defer provider.Shutdown(ctx)

	_, span := tracing.StartDatabaseSpan(ctx, tracing.SpanOperationDBBulk,
		tracing.WithDBCollection("orders"),
		tracing.WithBatchSize(7),
	)
	span.End()

	for _, s := range recorder.Ended() {
		fmt.Println(s.Name())
	}
	// Output: DB db.bulk_write orders
}

func ExampleEnd() {
	recorder := tracetest.NewSpanRecorder()
	provider := sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(recorder))
	tracer := provider.Tracer(tracing.ScopeName)

	_, span := tracer.Start(context.Background(), "DB db.delete products")
	tracing.End(span, errors.New("not found"))

	status := recorder.Ended()[0].Status()
	fmt.Println(status.Code, status.Description)
	// Output: Error not found
}
