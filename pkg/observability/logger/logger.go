// Package logger defines the structured Logger used across the engine and its zap backend.
package logger

import (
	"context"
)

// Logger defines the interface for structured logging.
// All log methods accept a message string followed by key-value pairs for structured fields.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)

	// With creates a child logger with additional key-value pairs that will be
	// included in all subsequent log entries
	With(args ...any) Logger

	// WithContext creates a child logger carrying the correlation fields stored in ctx
	// by ContextWithFields.
	WithContext(ctx context.Context) Logger
}

type fieldsKey struct{}

// ContextWithFields returns a copy of ctx carrying key-value pairs that WithContext adds to
// every entry. Pairs already present in ctx are kept.
func ContextWithFields(ctx context.Context, args ...any) context.Context {
	if len(args) == 0 {
		return ctx
	}
	existing := FieldsFromContext(ctx)
	fields := make([]any, 0, len(existing)+len(args))
	fields = append(fields, existing...)
	fields = append(fields, args...)
	return context.WithValue(ctx, fieldsKey{}, fields)
}

// FieldsFromContext returns the key-value pairs stored by ContextWithFields.
func FieldsFromContext(ctx context.Context) []any {
	if ctx == nil {
		return nil
	}
	fields, _ := ctx.Value(fieldsKey{}).([]any)
	return fields
}
