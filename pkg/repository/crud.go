package repository

import "context"

// Reader provides read operations for entities
type Reader[T any] interface {
	FindByID(ctx context.Context, id interface{}) (*T, error)
	All(ctx context.Context) ([]T, error)
	Count(ctx context.Context, request *FindRequest[T]) (int64, error)
	CreateFindRequest() *FindRequest[T]
	CreateFindRequestPaged(page, itemsPerPage int) *FindRequest[T]
}

// Writer provides write operations for entities
type Writer[T any] interface {
	Store(ctx context.Context, item *T) error
	StoreMany(ctx context.Context, items []*T) error
	Replace(ctx context.Context, item *T) (int64, error)
	Bulk(ctx context.Context, items []*T) (BulkResult, error)
	BulkDelete(ctx context.Context, items []*T) (BulkResult, error)
	DeleteEntity(ctx context.Context, item *T) (int64, error)
	Delete(ctx context.Context, request *FindRequest[T]) (int64, error)
	DeleteAll(ctx context.Context) (int64, error)
}

// Indexer creates indexes that do not exist yet
type Indexer interface {
	Index(ctx context.Context, name, field string) error
	UniqueIndex(ctx context.Context, name, field string) error
}

// CRUD combines Reader, Writer and Indexer for complete document access
type CRUD[T any] interface {
	Reader[T]
	Writer[T]
	Indexer
}

var _ CRUD[struct{}] = (*Repository[struct{}])(nil)
