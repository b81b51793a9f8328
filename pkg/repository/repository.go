package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/vbouzoukos/vbmongoengine/pkg/criteria"
	"github.com/vbouzoukos/vbmongoengine/pkg/entity"
	"github.com/vbouzoukos/vbmongoengine/pkg/observability/logger"
	"github.com/vbouzoukos/vbmongoengine/pkg/observability/metrics"
	"github.com/vbouzoukos/vbmongoengine/pkg/observability/tracing"
)

// DefaultResultsLimit caps paged find requests when no limit is configured.
const DefaultResultsLimit = 1000

// Sequencer mints auto-increment identities.
type Sequencer interface {
	Next(ctx context.Context, name string) (int64, error)
}

// Options configures a Repository.
type Options struct {
	// ResultsLimit is the limitUp of paged find requests. Zero means DefaultResultsLimit.
	ResultsLimit int
	// Sequencer is required when the mapping declares an auto-increment sequence.
	Sequencer Sequencer
	Logger    logger.Logger
}

// Repository reads and writes entities of one mapping through a Collection.
type Repository[T any] struct {
	collection   Collection[T]
	mapping      entity.Mapping[T]
	resolver     *entity.Resolver[T]
	sequencer    Sequencer
	resultsLimit int
	logger       logger.Logger
}

// New creates a repository over collection.
func New[T any](collection Collection[T], mapping entity.Mapping[T], opts Options) (*Repository[T], error) {
	if collection == nil {
		return nil, errors.New("collection is required")
	}
	if err := mapping.Validate(); err != nil {
		return nil, err
	}
	if mapping.AutoIncrement != "" && opts.Sequencer == nil {
		return nil, fmt.Errorf("%w: %s", ErrNoSequencer, mapping.Collection)
	}
	if opts.ResultsLimit <= 0 {
		opts.ResultsLimit = DefaultResultsLimit
	}
	if opts.Logger == nil {
		opts.Logger = logger.NewNop()
	}
	return &Repository[T]{
		collection:   collection,
		mapping:      mapping,
		resolver:     entity.NewResolver(mapping),
		sequencer:    opts.Sequencer,
		resultsLimit: opts.ResultsLimit,
		logger:       opts.Logger.With("collection", collection.Name()),
	}, nil
}

// Collection returns the underlying collection handle.
func (r *Repository[T]) Collection() Collection[T] { return r.collection }

// Resolver returns the identity resolver of the mapping.
func (r *Repository[T]) Resolver() *entity.Resolver[T] { return r.resolver }

// ResultsLimit is the limitUp given to paged find requests.
func (r *Repository[T]) ResultsLimit() int { return r.resultsLimit }

// CreateFindRequest starts a query without paging.
func (r *Repository[T]) CreateFindRequest() *FindRequest[T] {
	return newFindRequest(r, NewPaging(0, 0, r.resultsLimit))
}

// CreateFindRequestPaged starts a query for one page, capped at the repository results limit.
func (r *Repository[T]) CreateFindRequestPaged(page, itemsPerPage int) *FindRequest[T] {
	return newFindRequest(r, NewPaging(page, itemsPerPage, r.resultsLimit))
}

func (r *Repository[T]) find(ctx context.Context, filter criteria.Predicate, order criteria.Ordering, skip, limit int64) ([]T, error) {
	var items []T
	err := r.observe(ctx, tracing.SpanOperationDBQuery, "find", func(ctx context.Context) error {
		var err error
		items, err = r.collection.Find(ctx, filter, order, skip, limit)
		return err
	}, tracing.WithDBStatement(filter.String()))
	return items, err
}

// FindByID returns the entity whose identity equals id, or ErrNotFound.
func (r *Repository[T]) FindByID(ctx context.Context, id interface{}) (*T, error) {
	var item *T
	err := r.observe(ctx, tracing.SpanOperationDBQuery, "find_one", func(ctx context.Context) error {
		var err error
		item, err = r.collection.FindOne(ctx, criteria.Eq(r.resolver.Field(), id))
		return err
	})
	return item, err
}

// All returns every entity of the collection in natural order.
func (r *Repository[T]) All(ctx context.Context) ([]T, error) {
	return r.find(ctx, criteria.All(), nil, 0, 0)
}

// Count returns the number of entities matching request. A nil request counts everything.
func (r *Repository[T]) Count(ctx context.Context, request *FindRequest[T]) (int64, error) {
	filter := criteria.All()
	if request != nil {
		var err error
		if filter, _, err = request.Compile(); err != nil {
			return 0, err
		}
	}
	var n int64
	err := r.observe(ctx, tracing.SpanOperationDBQuery, "count", func(ctx context.Context) error {
		var err error
		n, err = r.collection.Count(ctx, filter)
		return err
	})
	return n, err
}

// assignIdentity gives item an identity before it is inserted. Auto-increment mappings draw the
// next value of their sequence; other mappings get a fresh ObjectID when the entity can receive
// one. An entity that cannot receive one and carries no identity field is left to the store.
func (r *Repository[T]) assignIdentity(ctx context.Context, item *T) error {
	id, err := r.resolver.Resolve(item)
	if err != nil {
		return err
	}
	if !id.Empty {
		return nil
	}

	var value interface{}
	if r.mapping.AutoIncrement != "" {
		next, err := r.sequencer.Next(ctx, r.mapping.AutoIncrement)
		if err != nil {
			return fmt.Errorf("next %s: %w", r.mapping.AutoIncrement, err)
		}
		value = next
	} else {
		value = entity.NewObjectID(id.Value)
	}

	if err := r.resolver.Assign(item, value); err != nil {
		if !id.Present && r.mapping.AutoIncrement == "" && errors.Is(err, entity.ErrMissingIdentity) {
			return nil
		}
		return err
	}
	return nil
}

// Store inserts item as a new document.
func (r *Repository[T]) Store(ctx context.Context, item *T) error {
	if err := r.assignIdentity(ctx, item); err != nil {
		return err
	}
	return r.observe(ctx, tracing.SpanOperationDBInsert, "insert_one", func(ctx context.Context) error {
		_, err := r.collection.InsertOne(ctx, item)
		return err
	})
}

// StoreMany inserts items as new documents.
func (r *Repository[T]) StoreMany(ctx context.Context, items []*T) error {
	if len(items) == 0 {
		return nil
	}
	for i, item := range items {
		if err := r.assignIdentity(ctx, item); err != nil {
			return fmt.Errorf("item %d: %w", i, err)
		}
	}
	return r.observe(ctx, tracing.SpanOperationDBInsert, "insert_many", func(ctx context.Context) error {
		_, err := r.collection.InsertMany(ctx, items)
		return err
	}, tracing.WithBatchSize(len(items)))
}

// Replace overwrites the stored document with the same identity as item. Nothing is created
// when no document matches; the matched count is 0 in that case.
func (r *Repository[T]) Replace(ctx context.Context, item *T) (int64, error) {
	filter, err := identityFilter(r.resolver, item)
	if err != nil {
		return 0, err
	}
	var res ReplaceResult
	err = r.observe(ctx, tracing.SpanOperationDBUpdate, "replace_one", func(ctx context.Context) error {
		var err error
		res, err = r.collection.ReplaceOne(ctx, filter, item, false)
		return err
	})
	return res.Matched, err
}

// Bulk writes items as one ordered batch: items without identity are inserted, the others
// replace their stored document, or recreate it when it is gone. The batch stops at the first
// failure, reported as *BatchWriteError.
func (r *Repository[T]) Bulk(ctx context.Context, items []*T) (BulkResult, error) {
	ops, err := PlanBatch(r.resolver, items)
	if err != nil {
		return BulkResult{}, err
	}
	for i, op := range ops {
		if op.Kind != OpInsert {
			continue
		}
		if err := r.assignIdentity(ctx, op.Item); err != nil {
			return BulkResult{}, fmt.Errorf("item %d: %w", i, err)
		}
	}
	return r.submit(ctx, ops)
}

// BulkDelete deletes items by identity as one ordered batch.
func (r *Repository[T]) BulkDelete(ctx context.Context, items []*T) (BulkResult, error) {
	ops, err := PlanDelete(r.resolver, items)
	if err != nil {
		return BulkResult{}, err
	}
	return r.submit(ctx, ops)
}

func (r *Repository[T]) submit(ctx context.Context, ops []WriteOp[T]) (BulkResult, error) {
	if len(ops) == 0 {
		return BulkResult{}, nil
	}
	for _, op := range ops {
		metrics.RecordWriteOp(r.collection.Name(), op.Kind.String())
	}
	var res BulkResult
	err := r.observe(ctx, tracing.SpanOperationDBBulk, "bulk_write", func(ctx context.Context) error {
		var err error
		res, err = r.collection.BulkWrite(ctx, ops, true)
		return err
	}, tracing.WithBatchSize(len(ops)))
	if err != nil {
		var batchErr *BatchWriteError
		if errors.As(err, &batchErr) {
			r.logger.WithContext(ctx).Warn("bulk write stopped",
				"applied", batchErr.Applied,
				"total", batchErr.Total,
				"index", batchErr.Index,
			)
		}
		return res, err
	}
	return res, nil
}

// DeleteEntity deletes the stored document with the same identity as item.
func (r *Repository[T]) DeleteEntity(ctx context.Context, item *T) (int64, error) {
	filter, err := identityFilter(r.resolver, item)
	if err != nil {
		return 0, err
	}
	var n int64
	err = r.observe(ctx, tracing.SpanOperationDBDelete, "delete_one", func(ctx context.Context) error {
		var err error
		n, err = r.collection.DeleteOne(ctx, filter)
		return err
	})
	return n, err
}

// Delete deletes every document matching request. Sort and paging are ignored.
func (r *Repository[T]) Delete(ctx context.Context, request *FindRequest[T]) (int64, error) {
	if request == nil {
		return 0, fmt.Errorf("%w: nil find request", criteria.ErrInvalidCriterion)
	}
	filter, _, err := request.Compile()
	if err != nil {
		return 0, err
	}
	return r.deleteMany(ctx, filter)
}

// DeleteAll deletes every document of the collection.
func (r *Repository[T]) DeleteAll(ctx context.Context) (int64, error) {
	return r.deleteMany(ctx, criteria.All())
}

func (r *Repository[T]) deleteMany(ctx context.Context, filter criteria.Predicate) (int64, error) {
	var n int64
	err := r.observe(ctx, tracing.SpanOperationDBDelete, "delete_many", func(ctx context.Context) error {
		var err error
		n, err = r.collection.DeleteMany(ctx, filter)
		return err
	}, tracing.WithDBStatement(filter.String()))
	return n, err
}

// Index creates an ascending index on field unless an index named name exists.
func (r *Repository[T]) Index(ctx context.Context, name, field string) error {
	return r.createIndex(ctx, IndexSpec{Name: name, Field: field})
}

// UniqueIndex creates a unique ascending index on field unless an index named name exists.
func (r *Repository[T]) UniqueIndex(ctx context.Context, name, field string) error {
	return r.createIndex(ctx, IndexSpec{Name: name, Field: field, Unique: true})
}

// EnsureIndexes creates the indexes declared by the mapping.
func (r *Repository[T]) EnsureIndexes(ctx context.Context) error {
	for _, idx := range r.mapping.Indexes {
		if err := r.createIndex(ctx, IndexSpec{Name: idx.Name, Field: idx.Field, Unique: idx.Unique}); err != nil {
			return err
		}
	}
	return nil
}

func (r *Repository[T]) createIndex(ctx context.Context, spec IndexSpec) error {
	var created bool
	err := r.observe(ctx, tracing.SpanOperationDBIndex, "create_index", func(ctx context.Context) error {
		var err error
		created, err = r.collection.CreateIndex(ctx, spec)
		return err
	})
	if err != nil {
		return fmt.Errorf("index %s: %w", spec.Name, err)
	}
	if created {
		r.logger.Info("index created", "index", spec.Name, "field", spec.Field, "unique", spec.Unique)
	}
	return nil
}
