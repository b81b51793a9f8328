package entity

import (
	"fmt"
	"strings"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

// Index declares a secondary index created when the mapping is registered.
type Index struct {
	Name   string
	Field  string
	Unique bool
}

// Mapping binds an entity type to its collection and identity.
type Mapping[T any] struct {
	// Collection is the collection name.
	Collection string
	// Identity reads the identity. Nil means the implicit _id.
	Identity Accessor[T]
	// AutoIncrement names the sequence that mints identities. Empty disables auto-increment
	// and empty identities get a fresh ObjectID instead.
	AutoIncrement string
	Indexes       []Index
}

// Validate checks that the mapping can be used.
func (m Mapping[T]) Validate() error {
	if strings.TrimSpace(m.Collection) == "" {
		return fmt.Errorf("%w: collection name is required", ErrInvalidMapping)
	}
	if m.Identity != nil && strings.TrimSpace(m.Identity.Field()) == "" {
		return fmt.Errorf("%w: identity accessor of %s has no field", ErrInvalidMapping, m.Collection)
	}
	for _, idx := range m.Indexes {
		if idx.Name == "" || idx.Field == "" {
			return fmt.Errorf("%w: index on %s needs a name and a field", ErrInvalidMapping, m.Collection)
		}
	}
	return nil
}

// Identity is the resolved identity of one entity.
type Identity struct {
	Field   string
	Value   interface{}
	Present bool
	Empty   bool
}

// Resolver extracts and tests identities for one mapping.
type Resolver[T any] struct {
	accessor      Accessor[T]
	autoIncrement bool
}

// NewResolver builds the resolver of a mapping.
func NewResolver[T any](m Mapping[T]) *Resolver[T] {
	accessor := m.Identity
	if accessor == nil {
		accessor = Implicit[T]()
	}
	return &Resolver[T]{accessor: accessor, autoIncrement: m.AutoIncrement != ""}
}

// Field is the stored identity path.
func (r *Resolver[T]) Field() string { return r.accessor.Field() }

// Resolve reads the identity of item and decides whether it is empty.
func (r *Resolver[T]) Resolve(item *T) (Identity, error) {
	if item == nil {
		return Identity{}, fmt.Errorf("%w: nil entity", ErrMissingIdentity)
	}
	value, present := r.accessor.Get(item)
	id := Identity{Field: r.accessor.Field(), Value: value, Present: present}
	var err error
	if r.autoIncrement {
		id.Empty, err = IsEmptyAutoIncrement(value)
	} else {
		id.Empty, err = IsEmpty(value)
	}
	if err != nil {
		return Identity{}, fmt.Errorf("identity %s: %w", id.Field, err)
	}
	return id, nil
}

// Assign writes a generated identity on item.
func (r *Resolver[T]) Assign(item *T, value interface{}) error {
	settable, ok := r.accessor.(Settable[T])
	if !ok {
		return fmt.Errorf("%w: identity %s is read-only", ErrMissingIdentity, r.accessor.Field())
	}
	return settable.Set(item, value)
}

// NewObjectID mints an identity for a non auto-increment mapping, matching the declared value
// type of the current identity.
func NewObjectID(current interface{}) interface{} {
	if _, ok := current.(string); ok {
		return primitive.NewObjectID().Hex()
	}
	return primitive.NewObjectID()
}
