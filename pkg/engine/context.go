package engine

import (
	"context"
	"fmt"
	"sync"

	"github.com/google/uuid"
	"github.com/vbouzoukos/vbmongoengine/pkg/observability/logger"
	"github.com/vbouzoukos/vbmongoengine/pkg/observability/tracing"
	"github.com/vbouzoukos/vbmongoengine/pkg/repository"
	"github.com/vbouzoukos/vbmongoengine/pkg/repository/document"
	mongostore "github.com/vbouzoukos/vbmongoengine/pkg/store/mongodb"
	"go.mongodb.org/mongo-driver/mongo"
	"go.opentelemetry.io/otel/trace"
)

// Context works on one database. It creates repositories and transactions; a repository call
// joins a transaction when it is given the transaction's context.
type Context struct {
	id      string
	engine  *Engine
	adapter *mongostore.MongoDBAdapter
	logger  logger.Logger

	mu   sync.Mutex
	open map[*Transaction]struct{}
}

var (
	_ repository.UnitOfWork         = (*Context)(nil)
	_ repository.TransactionManager = (*Context)(nil)
)

// ID is the correlation id of the context, present in its log lines.
func (c *Context) ID() string { return c.id }

// Database is the database the context works on.
func (c *Context) Database() string { return c.adapter.DatabaseName() }

// CreateCollectionIfNotExist creates the collection unless it exists. It reports whether it
// was created.
func (c *Context) CreateCollectionIfNotExist(ctx context.Context, name string) (bool, error) {
	created, err := c.adapter.EnsureCollection(ctx, name)
	if err != nil {
		return false, fmt.Errorf("create collection %s: %w", name, err)
	}
	if created {
		c.logger.Info("collection created", "collection", name)
	}
	return created, nil
}

// EnsureCollection creates the collection of the mapping registered for T.
func EnsureCollection[T any](ctx context.Context, c *Context) (bool, error) {
	m, err := MappingOf[T](c.engine)
	if err != nil {
		return false, err
	}
	return c.CreateCollectionIfNotExist(ctx, m.Collection)
}

// NewRepository creates a repository for the mapping registered for T.
func NewRepository[T any](c *Context) (*repository.Repository[T], error) {
	m, err := MappingOf[T](c.engine)
	if err != nil {
		return nil, err
	}
	coll, err := document.NewMongoDBExecutor[T](c.adapter, m.Collection)
	if err != nil {
		return nil, err
	}
	return repository.New[T](coll, m, repository.Options{
		ResultsLimit: c.engine.config.ResultsLimit,
		Sequencer:    detachedSequencer{c.engine},
		Logger:       c.logger,
	})
}

// Begin starts a transaction. Repository calls made with Transaction.Context join it.
func (c *Context) Begin(ctx context.Context) (repository.Transaction, error) {
	session, err := c.adapter.StartSession()
	if err != nil {
		return nil, fmt.Errorf("start session: %w", err)
	}
	if err := session.StartTransaction(); err != nil {
		session.EndSession(ctx)
		return nil, fmt.Errorf("start transaction: %w", err)
	}

	tx := &Transaction{
		id:      uuid.NewString(),
		owner:   c,
		session: session,
	}
	ctx = logger.ContextWithFields(ctx, "transaction_id", tx.id)
	tx.ctx, tx.span = tracing.StartDatabaseSpan(mongo.NewSessionContext(ctx, session), tracing.SpanOperationDBTx,
		tracing.WithDBName(c.Database()),
	)
	tx.logger = c.logger.With("transaction_id", tx.id)

	c.mu.Lock()
	c.open[tx] = struct{}{}
	c.mu.Unlock()

	tx.logger.Debug("transaction started")
	return tx, nil
}

// WithTransaction runs fn in a transaction, committing on success and aborting otherwise.
func (c *Context) WithTransaction(ctx context.Context, fn func(ctx context.Context) error) error {
	return repository.RunInTransaction(ctx, c, fn)
}

// DropDatabase drops the context database.
func (c *Context) DropDatabase(ctx context.Context) error {
	if err := c.adapter.DropDatabase(ctx); err != nil {
		return fmt.Errorf("drop database %s: %w", c.Database(), err)
	}
	c.logger.Warn("database dropped")
	return nil
}

// Close aborts the transactions still open on the context.
func (c *Context) Close() error {
	c.mu.Lock()
	open := make([]*Transaction, 0, len(c.open))
	for tx := range c.open {
		open = append(open, tx)
	}
	c.mu.Unlock()

	var firstErr error
	for _, tx := range open {
		if err := tx.Rollback(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

func (c *Context) release(tx *Transaction) {
	c.mu.Lock()
	delete(c.open, tx)
	c.mu.Unlock()
}

// detachedSequencer issues identities outside the caller's session, so counters are never
// rolled back with an aborted transaction.
type detachedSequencer struct {
	engine *Engine
}

func (s detachedSequencer) Next(ctx context.Context, name string) (int64, error) {
	if mongo.SessionFromContext(ctx) != nil {
		base := trace.ContextWithSpanContext(context.Background(), trace.SpanContextFromContext(ctx))
		if deadline, ok := ctx.Deadline(); ok {
			var cancel context.CancelFunc
			base, cancel = context.WithDeadline(base, deadline)
			defer cancel()
		}
		ctx = base
	}
	return s.engine.generator.Next(ctx, name)
}
