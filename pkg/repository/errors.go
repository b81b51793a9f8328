package repository

import (
	"errors"
	"fmt"
)

var (
	// ErrNotFound is returned when a lookup by identity matches nothing.
	ErrNotFound = errors.New("entity not found")
	// ErrDuplicateKey is returned when a write violates a unique index.
	ErrDuplicateKey = errors.New("duplicate key")
	// ErrInvalidPaging is returned when paging parameters cannot produce a window.
	ErrInvalidPaging = errors.New("invalid paging")
	// ErrNoSequencer is returned when an auto-increment mapping has no sequence source.
	ErrNoSequencer = errors.New("auto-increment mapping without a sequence generator")
	// ErrAsyncPanic is returned by Future.Await when the asynchronous call panicked.
	ErrAsyncPanic = errors.New("asynchronous call panicked")
)

// BatchWriteError reports an ordered batch that stopped at its first failing operation.
// Operations before Index were applied; the rest were not attempted.
type BatchWriteError struct {
	Total   int
	Applied int
	Index   int
	Err     error
}

func (e *BatchWriteError) Error() string {
	return fmt.Sprintf("batch write failed at operation %d (%d of %d applied): %v", e.Index, e.Applied, e.Total, e.Err)
}

func (e *BatchWriteError) Unwrap() error {
	return e.Err
}

// IsBatchWriteError checks if an error is a BatchWriteError.
func IsBatchWriteError(err error) bool {
	var batchErr *BatchWriteError
	return errors.As(err, &batchErr)
}
