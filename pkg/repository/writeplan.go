package repository

import (
	"fmt"

	"github.com/vbouzoukos/vbmongoengine/pkg/criteria"
	"github.com/vbouzoukos/vbmongoengine/pkg/entity"
)

// WriteKind tags a WriteOp.
type WriteKind int

const (
	// OpInsert inserts the item as a new document.
	OpInsert WriteKind = iota
	// OpUpsertReplace replaces the document matching Filter, creating it when absent.
	OpUpsertReplace
	// OpDelete deletes the document matching Filter.
	OpDelete
)

func (k WriteKind) String() string {
	switch k {
	case OpInsert:
		return "insert"
	case OpUpsertReplace:
		return "upsert_replace"
	case OpDelete:
		return "delete"
	default:
		return fmt.Sprintf("write_kind(%d)", int(k))
	}
}

// WriteOp is one operation of a batch.
type WriteOp[T any] struct {
	Kind   WriteKind
	Filter criteria.Predicate
	Item   *T
}

// InsertOp returns an insert of item.
func InsertOp[T any](item *T) WriteOp[T] {
	return WriteOp[T]{Kind: OpInsert, Item: item}
}

// UpsertReplaceOp returns an upserting replace of the document matching filter.
func UpsertReplaceOp[T any](filter criteria.Predicate, item *T) WriteOp[T] {
	return WriteOp[T]{Kind: OpUpsertReplace, Filter: filter, Item: item}
}

// DeleteOp returns a delete of the document matching filter.
func DeleteOp[T any](filter criteria.Predicate) WriteOp[T] {
	return WriteOp[T]{Kind: OpDelete, Filter: filter}
}

// PlanBatch classifies each item, in input order. An item with an empty identity becomes an
// insert; replacing against an empty identity would match nothing. Any other item becomes an
// upserting replace filtered on its identity, so a document deleted since it was read is
// recreated instead of lost.
func PlanBatch[T any](resolver *entity.Resolver[T], items []*T) ([]WriteOp[T], error) {
	ops := make([]WriteOp[T], 0, len(items))
	for i, item := range items {
		id, err := resolver.Resolve(item)
		if err != nil {
			return nil, fmt.Errorf("item %d: %w", i, err)
		}
		if id.Empty {
			ops = append(ops, InsertOp(item))
			continue
		}
		ops = append(ops, UpsertReplaceOp(criteria.Eq(id.Field, id.Value), item))
	}
	return ops, nil
}

// PlanDelete builds one delete per item, filtered on its identity.
func PlanDelete[T any](resolver *entity.Resolver[T], items []*T) ([]WriteOp[T], error) {
	ops := make([]WriteOp[T], 0, len(items))
	for i, item := range items {
		filter, err := identityFilter(resolver, item)
		if err != nil {
			return nil, fmt.Errorf("item %d: %w", i, err)
		}
		ops = append(ops, DeleteOp[T](filter))
	}
	return ops, nil
}

// identityFilter matches the stored document of item. An item without identity cannot be addressed.
func identityFilter[T any](resolver *entity.Resolver[T], item *T) (criteria.Predicate, error) {
	id, err := resolver.Resolve(item)
	if err != nil {
		return nil, err
	}
	if id.Empty {
		return nil, fmt.Errorf("%w: %s is empty", entity.ErrMissingIdentity, id.Field)
	}
	return criteria.Eq(id.Field, id.Value), nil
}
