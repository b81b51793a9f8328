// Package document provides the store-side collection handles repositories run against.
package document

import (
	"context"
	"errors"
	"fmt"

	"github.com/vbouzoukos/vbmongoengine/pkg/criteria"
	"github.com/vbouzoukos/vbmongoengine/pkg/repository"
	mongostore "github.com/vbouzoukos/vbmongoengine/pkg/store/mongodb"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// MongoDBExecutor adapts the store/mongodb adapter to repository.Collection for one collection.
// The session carried by ctx, if any, is used by every call.
type MongoDBExecutor[T any] struct {
	adapter    *mongostore.MongoDBAdapter
	collection string
}

var _ repository.Collection[struct{}] = (*MongoDBExecutor[struct{}])(nil)

// NewMongoDBExecutor creates a new MongoDBExecutor instance.
func NewMongoDBExecutor[T any](adapter *mongostore.MongoDBAdapter, collection string) (*MongoDBExecutor[T], error) {
	if adapter == nil {
		return nil, fmt.Errorf("mongodb adapter is required")
	}
	if collection == "" {
		return nil, fmt.Errorf("collection name is required")
	}
	return &MongoDBExecutor[T]{adapter: adapter, collection: collection}, nil
}

func (e *MongoDBExecutor[T]) Name() string { return e.collection }

// Find returns the matching documents in order.
func (e *MongoDBExecutor[T]) Find(ctx context.Context, filter criteria.Predicate, order criteria.Ordering, skip, limit int64) ([]T, error) {
	opts := options.Find()
	if sort := order.Sort(); sort != nil {
		opts.SetSort(sort)
	}
	if skip > 0 {
		opts.SetSkip(skip)
	}
	if limit > 0 {
		opts.SetLimit(limit)
	}
	items := []T{}
	if err := e.adapter.Find(ctx, e.collection, filter.Filter(), opts, &items); err != nil {
		return nil, translate(err)
	}
	return items, nil
}

// FindOne returns the first matching document.
func (e *MongoDBExecutor[T]) FindOne(ctx context.Context, filter criteria.Predicate) (*T, error) {
	var item T
	if err := e.adapter.FindOne(ctx, e.collection, filter.Filter(), &item); err != nil {
		return nil, translate(err)
	}
	return &item, nil
}

func (e *MongoDBExecutor[T]) Count(ctx context.Context, filter criteria.Predicate) (int64, error) {
	n, err := e.adapter.CountDocuments(ctx, e.collection, filter.Filter())
	return n, translate(err)
}

// InsertOne inserts a document into the collection.
func (e *MongoDBExecutor[T]) InsertOne(ctx context.Context, item *T) (interface{}, error) {
	result, err := e.adapter.InsertOne(ctx, e.collection, item)
	if err != nil {
		return nil, translate(err)
	}
	return result.InsertedID, nil
}

// InsertMany inserts items in order, stopping at the first failure.
func (e *MongoDBExecutor[T]) InsertMany(ctx context.Context, items []*T) ([]interface{}, error) {
	docs := make([]interface{}, len(items))
	for i, item := range items {
		docs[i] = item
	}
	result, err := e.adapter.InsertMany(ctx, e.collection, docs)
	if err != nil {
		return nil, batchError(err, len(items), true)
	}
	return result.InsertedIDs, nil
}

func (e *MongoDBExecutor[T]) ReplaceOne(ctx context.Context, filter criteria.Predicate, item *T, upsert bool) (repository.ReplaceResult, error) {
	result, err := e.adapter.ReplaceOne(ctx, e.collection, filter.Filter(), item, upsert)
	if err != nil {
		return repository.ReplaceResult{}, translate(err)
	}
	return repository.ReplaceResult{
		Matched:    result.MatchedCount,
		Modified:   result.ModifiedCount,
		UpsertedID: result.UpsertedID,
	}, nil
}

// BulkWrite submits ops as one bulk write call.
func (e *MongoDBExecutor[T]) BulkWrite(ctx context.Context, ops []repository.WriteOp[T], ordered bool) (repository.BulkResult, error) {
	models := make([]mongo.WriteModel, 0, len(ops))
	for i, op := range ops {
		switch op.Kind {
		case repository.OpInsert:
			models = append(models, mongo.NewInsertOneModel().SetDocument(op.Item))
		case repository.OpUpsertReplace:
			models = append(models, mongo.NewReplaceOneModel().
				SetFilter(op.Filter.Filter()).
				SetReplacement(op.Item).
				SetUpsert(true))
		case repository.OpDelete:
			models = append(models, mongo.NewDeleteOneModel().SetFilter(op.Filter.Filter()))
		default:
			return repository.BulkResult{}, fmt.Errorf("operation %d: unsupported write kind %s", i, op.Kind)
		}
	}

	result, err := e.adapter.BulkWrite(ctx, e.collection, models, ordered)
	if err != nil {
		return bulkResult(result), batchError(err, len(ops), ordered)
	}
	return bulkResult(result), nil
}

func (e *MongoDBExecutor[T]) DeleteOne(ctx context.Context, filter criteria.Predicate) (int64, error) {
	result, err := e.adapter.DeleteOne(ctx, e.collection, filter.Filter())
	if err != nil {
		return 0, translate(err)
	}
	return result.DeletedCount, nil
}

func (e *MongoDBExecutor[T]) DeleteMany(ctx context.Context, filter criteria.Predicate) (int64, error) {
	result, err := e.adapter.DeleteMany(ctx, e.collection, filter.Filter())
	if err != nil {
		return 0, translate(err)
	}
	return result.DeletedCount, nil
}

func (e *MongoDBExecutor[T]) CreateIndex(ctx context.Context, spec repository.IndexSpec) (bool, error) {
	created, err := e.adapter.CreateIndex(ctx, e.collection, spec.Name, spec.Field, spec.Unique)
	return created, translate(err)
}

func bulkResult(res *mongo.BulkWriteResult) repository.BulkResult {
	if res == nil {
		return repository.BulkResult{}
	}
	return repository.BulkResult{
		Inserted: res.InsertedCount,
		Matched:  res.MatchedCount,
		Modified: res.ModifiedCount,
		Upserted: res.UpsertedCount,
		Deleted:  res.DeletedCount,
	}
}

func isDuplicateCode(code int) bool {
	return code == 11000 || code == 11001 || code == 12582
}

// translate maps driver errors onto repository sentinels.
func translate(err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, mongo.ErrNoDocuments):
		return repository.ErrNotFound
	case mongo.IsDuplicateKeyError(err):
		return fmt.Errorf("%w: %v", repository.ErrDuplicateKey, err)
	default:
		return err
	}
}

// batchError reports the first failed write of a bulk call as *repository.BatchWriteError.
// For an ordered batch every operation before the failing one was applied.
func batchError(err error, total int, ordered bool) error {
	var bwe mongo.BulkWriteException
	if !errors.As(err, &bwe) || len(bwe.WriteErrors) == 0 {
		return translate(err)
	}
	first := bwe.WriteErrors[0]
	var cause error = errors.New(first.Message)
	if isDuplicateCode(first.Code) {
		cause = fmt.Errorf("%w: %s", repository.ErrDuplicateKey, first.Message)
	}
	applied := first.Index
	if !ordered {
		applied = total - len(bwe.WriteErrors)
	}
	return &repository.BatchWriteError{
		Total:   total,
		Applied: applied,
		Index:   first.Index,
		Err:     cause,
	}
}
