package repository

import (
	"context"
	"errors"
	"fmt"
)

// TransactionManager runs fn in a transaction, committing when fn returns nil and aborting
// otherwise. The engine context implements it.
type TransactionManager interface {
	WithTransaction(ctx context.Context, fn func(ctx context.Context) error) error
}

// UnitOfWork begins transactions for RunInTransaction.
type UnitOfWork interface {
	Begin(ctx context.Context) (Transaction, error)
}

// Transaction is an open multi-document transaction. Repository calls made with Context()
// join it.
type Transaction interface {
	Commit() error
	Rollback() error
	Context() context.Context
}

// RunInTransaction runs fn inside a transaction begun on uow. When fn fails or panics the
// transaction is rolled back before the failure is returned or the panic resumes; otherwise it
// is committed. A failed rollback is joined to the original error, never in place of it.
func RunInTransaction(ctx context.Context, uow UnitOfWork, fn func(ctx context.Context) error) error {
	tx, err := uow.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}

	defer func() {
		if p := recover(); p != nil {
			_ = tx.Rollback()
			panic(p)
		}
	}()

	if err := fn(tx.Context()); err != nil {
		if rbErr := tx.Rollback(); rbErr != nil {
			return errors.Join(err, fmt.Errorf("rollback transaction: %w", rbErr))
		}
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit transaction: %w", err)
	}
	return nil
}
