package repository

import (
	"context"

	"github.com/vbouzoukos/vbmongoengine/pkg/criteria"
)

// IndexSpec describes a single-field ascending index.
type IndexSpec struct {
	Name   string
	Field  string
	Unique bool
}

// ReplaceResult is the outcome of a single replace.
type ReplaceResult struct {
	Matched    int64
	Modified   int64
	UpsertedID interface{}
}

// BulkResult counts the operations a batch applied.
type BulkResult struct {
	Inserted int64
	Matched  int64
	Modified int64
	Upserted int64
	Deleted  int64
}

// Collection is the store-side handle a repository runs against. Implementations honor the
// session carried by ctx, so every call behaves the same inside and outside a transaction.
type Collection[T any] interface {
	Name() string

	// Find returns the matching documents in order. skip and limit of 0 mean unset.
	Find(ctx context.Context, filter criteria.Predicate, order criteria.Ordering, skip, limit int64) ([]T, error)
	// FindOne returns ErrNotFound when nothing matches.
	FindOne(ctx context.Context, filter criteria.Predicate) (*T, error)
	Count(ctx context.Context, filter criteria.Predicate) (int64, error)

	// InsertOne returns the stored identity, generated by the store when the item had none.
	InsertOne(ctx context.Context, item *T) (interface{}, error)
	InsertMany(ctx context.Context, items []*T) ([]interface{}, error)
	ReplaceOne(ctx context.Context, filter criteria.Predicate, item *T, upsert bool) (ReplaceResult, error)
	// BulkWrite submits ops as one batch. Failures are reported as *BatchWriteError.
	BulkWrite(ctx context.Context, ops []WriteOp[T], ordered bool) (BulkResult, error)
	DeleteOne(ctx context.Context, filter criteria.Predicate) (int64, error)
	DeleteMany(ctx context.Context, filter criteria.Predicate) (int64, error)

	// CreateIndex creates the index unless one with the same name exists. It reports whether
	// an index was created.
	CreateIndex(ctx context.Context, spec IndexSpec) (bool, error)
}
