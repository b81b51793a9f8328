package document

import (
	"bytes"
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/vbouzoukos/vbmongoengine/pkg/criteria"
	"github.com/vbouzoukos/vbmongoengine/pkg/entity"
	"github.com/vbouzoukos/vbmongoengine/pkg/repository"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

const idIndexName = "_id_"

// MemoryExecutor is an in-process repository.Collection. Documents are kept as BSON, so items
// go through the same codec as with MongoDB, and unique indexes are enforced on every write.
// Sessions carried by ctx are ignored.
type MemoryExecutor[T any] struct {
	mu      sync.RWMutex
	name    string
	docs    []stored
	indexes []repository.IndexSpec
}

type stored struct {
	raw bson.Raw
	doc bson.M
}

var _ repository.Collection[struct{}] = (*MemoryExecutor[struct{}])(nil)

// NewMemoryExecutor creates an empty collection with the implicit unique _id index.
func NewMemoryExecutor[T any](name string) *MemoryExecutor[T] {
	return &MemoryExecutor[T]{
		name:    name,
		indexes: []repository.IndexSpec{{Name: idIndexName, Field: entity.IDField, Unique: true}},
	}
}

func (e *MemoryExecutor[T]) Name() string { return e.name }

// Len returns the number of stored documents.
func (e *MemoryExecutor[T]) Len() int {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return len(e.docs)
}

func (e *MemoryExecutor[T]) Find(ctx context.Context, filter criteria.Predicate, order criteria.Ordering, skip, limit int64) ([]T, error) {
	if err := checkFilter(ctx, filter); err != nil {
		return nil, err
	}
	e.mu.RLock()
	matches := e.matching(filter)
	e.mu.RUnlock()

	if len(order) > 0 {
		sort.SliceStable(matches, func(i, j int) bool { return order.Less(matches[i].doc, matches[j].doc) })
	}
	if skip > int64(len(matches)) {
		skip = int64(len(matches))
	}
	matches = matches[skip:]
	if limit > 0 && limit < int64(len(matches)) {
		matches = matches[:limit]
	}

	items := make([]T, 0, len(matches))
	for _, s := range matches {
		var item T
		if err := bson.Unmarshal(s.raw, &item); err != nil {
			return nil, fmt.Errorf("decode %s document: %w", e.name, err)
		}
		items = append(items, item)
	}
	return items, nil
}

func (e *MemoryExecutor[T]) FindOne(ctx context.Context, filter criteria.Predicate) (*T, error) {
	if err := checkFilter(ctx, filter); err != nil {
		return nil, err
	}
	e.mu.RLock()
	defer e.mu.RUnlock()
	for _, s := range e.docs {
		if filter.Match(s.doc) {
			var item T
			if err := bson.Unmarshal(s.raw, &item); err != nil {
				return nil, fmt.Errorf("decode %s document: %w", e.name, err)
			}
			return &item, nil
		}
	}
	return nil, repository.ErrNotFound
}

func (e *MemoryExecutor[T]) Count(ctx context.Context, filter criteria.Predicate) (int64, error) {
	if err := checkFilter(ctx, filter); err != nil {
		return 0, err
	}
	e.mu.RLock()
	defer e.mu.RUnlock()
	return int64(len(e.matching(filter))), nil
}

func (e *MemoryExecutor[T]) InsertOne(ctx context.Context, item *T) (interface{}, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.insert(item, nil)
}

// InsertMany inserts items in order, stopping at the first failure.
func (e *MemoryExecutor[T]) InsertMany(ctx context.Context, items []*T) ([]interface{}, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	ids := make([]interface{}, 0, len(items))
	for i, item := range items {
		id, err := e.insert(item, nil)
		if err != nil {
			return ids, &repository.BatchWriteError{Total: len(items), Applied: i, Index: i, Err: err}
		}
		ids = append(ids, id)
	}
	return ids, nil
}

func (e *MemoryExecutor[T]) ReplaceOne(ctx context.Context, filter criteria.Predicate, item *T, upsert bool) (repository.ReplaceResult, error) {
	if err := checkFilter(ctx, filter); err != nil {
		return repository.ReplaceResult{}, err
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.replace(filter, item, upsert)
}

// BulkWrite applies ops one at a time under a single lock. An ordered batch stops at the first
// failure; an unordered one attempts every operation and reports the first failure.
func (e *MemoryExecutor[T]) BulkWrite(ctx context.Context, ops []repository.WriteOp[T], ordered bool) (repository.BulkResult, error) {
	if err := ctx.Err(); err != nil {
		return repository.BulkResult{}, err
	}
	e.mu.Lock()
	defer e.mu.Unlock()

	var res repository.BulkResult
	var firstErr *repository.BatchWriteError
	failed := 0
	for i, op := range ops {
		err := e.apply(op, &res)
		if err == nil {
			continue
		}
		failed++
		if firstErr == nil {
			firstErr = &repository.BatchWriteError{Total: len(ops), Applied: i, Index: i, Err: err}
		}
		if ordered {
			return res, firstErr
		}
	}
	if firstErr != nil {
		firstErr.Applied = len(ops) - failed
		return res, firstErr
	}
	return res, nil
}

func (e *MemoryExecutor[T]) apply(op repository.WriteOp[T], res *repository.BulkResult) error {
	if op.Filter != nil {
		if err := criteria.Evaluable(op.Filter); err != nil {
			return err
		}
	}
	switch op.Kind {
	case repository.OpInsert:
		if _, err := e.insert(op.Item, nil); err != nil {
			return err
		}
		res.Inserted++
	case repository.OpUpsertReplace:
		r, err := e.replace(op.Filter, op.Item, true)
		if err != nil {
			return err
		}
		res.Matched += r.Matched
		res.Modified += r.Modified
		if r.UpsertedID != nil {
			res.Upserted++
		}
	case repository.OpDelete:
		res.Deleted += e.delete(op.Filter, 1)
	default:
		return fmt.Errorf("unsupported write kind %s", op.Kind)
	}
	return nil
}

func (e *MemoryExecutor[T]) DeleteOne(ctx context.Context, filter criteria.Predicate) (int64, error) {
	if err := checkFilter(ctx, filter); err != nil {
		return 0, err
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.delete(filter, 1), nil
}

func (e *MemoryExecutor[T]) DeleteMany(ctx context.Context, filter criteria.Predicate) (int64, error) {
	if err := checkFilter(ctx, filter); err != nil {
		return 0, err
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.delete(filter, -1), nil
}

// CreateIndex adds an index unless one with the same name exists. A unique index is refused
// when stored documents already collide on its field.
func (e *MemoryExecutor[T]) CreateIndex(ctx context.Context, spec repository.IndexSpec) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	for _, idx := range e.indexes {
		if idx.Name == spec.Name {
			return false, nil
		}
	}
	if spec.Unique {
		for i := range e.docs {
			if err := e.checkUnique([]repository.IndexSpec{spec}, e.docs[i].doc, i); err != nil {
				return false, err
			}
		}
	}
	e.indexes = append(e.indexes, spec)
	return true, nil
}

func (e *MemoryExecutor[T]) matching(filter criteria.Predicate) []stored {
	var out []stored
	for _, s := range e.docs {
		if filter.Match(s.doc) {
			out = append(out, s)
		}
	}
	return out
}

// encode marshals item, giving it id when set and a fresh ObjectID when it has no _id at all.
func encode(item interface{}, id interface{}) (stored, interface{}, error) {
	raw, err := bson.Marshal(item)
	if err != nil {
		return stored{}, nil, err
	}
	var d bson.D
	if err := bson.Unmarshal(raw, &d); err != nil {
		return stored{}, nil, err
	}

	pos := -1
	for i, elem := range d {
		if elem.Key == entity.IDField {
			pos = i
			break
		}
	}
	switch {
	case pos >= 0 && id != nil:
		d[pos].Value = id
	case pos < 0:
		if id == nil {
			id = primitive.NewObjectID()
		}
		d = append(bson.D{{Key: entity.IDField, Value: id}}, d...)
	}

	if raw, err = bson.Marshal(d); err != nil {
		return stored{}, nil, err
	}
	var doc bson.M
	if err := bson.Unmarshal(raw, &doc); err != nil {
		return stored{}, nil, err
	}
	return stored{raw: raw, doc: doc}, doc[entity.IDField], nil
}

func (e *MemoryExecutor[T]) insert(item interface{}, id interface{}) (interface{}, error) {
	s, storedID, err := encode(item, id)
	if err != nil {
		return nil, err
	}
	if err := e.checkUnique(e.indexes, s.doc, -1); err != nil {
		return nil, err
	}
	e.docs = append(e.docs, s)
	return storedID, nil
}

func (e *MemoryExecutor[T]) replace(filter criteria.Predicate, item *T, upsert bool) (repository.ReplaceResult, error) {
	for i, existing := range e.docs {
		if !filter.Match(existing.doc) {
			continue
		}
		existingID := existing.doc[entity.IDField]
		// The stored _id is immutable; a replacement without one keeps it.
		if id, explicit := explicitID(item); explicit && !sameValue(id, existingID) {
			return repository.ReplaceResult{}, fmt.Errorf("replacement would modify the immutable field %s", entity.IDField)
		}
		s, _, err := encode(item, existingID)
		if err != nil {
			return repository.ReplaceResult{}, err
		}
		if err := e.checkUnique(e.indexes, s.doc, i); err != nil {
			return repository.ReplaceResult{}, err
		}
		modified := int64(0)
		if !bytes.Equal(existing.raw, s.raw) {
			modified = 1
		}
		e.docs[i] = s
		return repository.ReplaceResult{Matched: 1, Modified: modified}, nil
	}

	if !upsert {
		return repository.ReplaceResult{}, nil
	}
	var id interface{}
	if _, explicit := explicitID(item); !explicit {
		id = idFromFilter(filter)
	}
	storedID, err := e.insert(item, id)
	if err != nil {
		return repository.ReplaceResult{}, err
	}
	return repository.ReplaceResult{UpsertedID: storedID}, nil
}

// delete removes up to max matching documents, all of them when max is negative.
func (e *MemoryExecutor[T]) delete(filter criteria.Predicate, max int) int64 {
	kept := e.docs[:0]
	var n int64
	for _, s := range e.docs {
		if (max < 0 || n < int64(max)) && filter.Match(s.doc) {
			n++
			continue
		}
		kept = append(kept, s)
	}
	for i := len(kept); i < len(e.docs); i++ {
		e.docs[i] = stored{}
	}
	e.docs = kept
	return n
}

// checkUnique rejects doc when it collides with a stored document, other than the one at skip,
// on any unique index. A missing field counts as null, as in MongoDB.
func (e *MemoryExecutor[T]) checkUnique(indexes []repository.IndexSpec, doc bson.M, skip int) error {
	for _, idx := range indexes {
		if !idx.Unique {
			continue
		}
		clash := criteria.Eq(idx.Field, criteria.Value(doc, idx.Field))
		for i, s := range e.docs {
			if i == skip {
				continue
			}
			if clash.Match(s.doc) {
				return fmt.Errorf("%w: collection %s index %s", repository.ErrDuplicateKey, e.name, idx.Name)
			}
		}
	}
	return nil
}

// checkFilter rejects canceled contexts and filters Match cannot evaluate.
func checkFilter(ctx context.Context, filter criteria.Predicate) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return criteria.Evaluable(filter)
}

// explicitID reports whether item itself serializes an _id.
func explicitID(item interface{}) (interface{}, bool) {
	raw, err := bson.Marshal(item)
	if err != nil {
		return nil, false
	}
	var doc bson.M
	if err := bson.Unmarshal(raw, &doc); err != nil {
		return nil, false
	}
	value, ok := doc[entity.IDField]
	return value, ok
}

// idFromFilter extracts the _id an equality filter pins, so an upsert stores that identity.
func idFromFilter(filter criteria.Predicate) interface{} {
	for _, elem := range filter.Filter() {
		if elem.Key != entity.IDField {
			continue
		}
		if cond, ok := elem.Value.(bson.D); ok {
			for _, op := range cond {
				if op.Key == "$eq" {
					return op.Value
				}
			}
		}
	}
	return nil
}

func sameValue(a, b interface{}) bool {
	return criteria.Eq("v", a).Match(bson.M{"v": b})
}
