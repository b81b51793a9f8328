package entity

import (
	"fmt"
	"reflect"
	"strings"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

// Accessor reads the identity of an entity. Accessors are built once, at mapping time.
type Accessor[T any] interface {
	// Field is the stored document path of the identity.
	Field() string
	// Get returns the identity value and whether the entity carries one at all.
	Get(item *T) (interface{}, bool)
}

// Settable is an Accessor that can also write a freshly assigned identity back on the entity.
type Settable[T any] interface {
	Accessor[T]
	Set(item *T, value interface{}) error
}

type fieldAccessor[T any, V any] struct {
	path string
	get  func(*T) V
	set  func(*T, V)
}

// Field builds a typed identity accessor for the stored path. set may be nil when the entity
// never receives generated identities.
func Field[T any, V any](path string, get func(*T) V, set func(*T, V)) Accessor[T] {
	f := &fieldAccessor[T, V]{path: path, get: get, set: set}
	if set == nil {
		return readOnly[T]{f}
	}
	return f
}

func (f *fieldAccessor[T, V]) Field() string { return f.path }

func (f *fieldAccessor[T, V]) Get(item *T) (interface{}, bool) {
	if item == nil {
		return nil, false
	}
	return f.get(item), true
}

func (f *fieldAccessor[T, V]) Set(item *T, value interface{}) error {
	converted, err := convert[V](value)
	if err != nil {
		return fmt.Errorf("set %s: %w", f.path, err)
	}
	f.set(item, converted)
	return nil
}

// readOnly hides Set so that type assertions to Settable fail.
type readOnly[T any] struct {
	Accessor[T]
}

// convert adapts a store-assigned identity to the declared identity type.
func convert[V any](value interface{}) (V, error) {
	var zero V
	if v, ok := value.(V); ok {
		return v, nil
	}
	switch target := any(&zero).(type) {
	case *string:
		if oid, ok := value.(primitive.ObjectID); ok {
			*target = oid.Hex()
			return zero, nil
		}
	case *primitive.ObjectID:
		if s, ok := value.(string); ok {
			oid, err := primitive.ObjectIDFromHex(s)
			if err != nil {
				return zero, err
			}
			*target = oid
			return zero, nil
		}
	case *int64:
		switch n := value.(type) {
		case int32:
			*target = int64(n)
			return zero, nil
		case int:
			*target = int64(n)
			return zero, nil
		}
	case *int:
		switch n := value.(type) {
		case int64:
			*target = int(n)
			return zero, nil
		case int32:
			*target = int(n)
			return zero, nil
		}
	case *int32:
		if n, ok := value.(int64); ok {
			*target = int32(n)
			return zero, nil
		}
	}
	return zero, fmt.Errorf("%w: cannot assign %T to %T", ErrUnsupportedIdentity, value, zero)
}

// implicitAccessor reads _id through the struct field tagged `bson:"_id"` when T has one, and
// through the bson mapping layer otherwise.
type implicitAccessor[T any] struct {
	index []int
}

// Implicit returns the accessor of the implicit _id identity. It works for Document and for structs
// that tag a field `bson:"_id"`; such a field also receives generated identities. Other types are
// read through their bson encoding and leave identity generation to the store.
//
// A string _id tagged omitempty keeps "" as a regular identity here, but the codec drops it on
// insert, so the store assigns a fresh ObjectID to that document.
func Implicit[T any]() Accessor[T] {
	index, _ := structIDField(reflect.TypeOf((*T)(nil)).Elem())
	return implicitAccessor[T]{index: index}
}

func (implicitAccessor[T]) Field() string { return IDField }

func (a implicitAccessor[T]) Get(item *T) (interface{}, bool) {
	if item == nil {
		return nil, false
	}
	if doc, ok := any(item).(*Document); ok {
		v, found := (*doc)[IDField]
		return v, found
	}
	if a.index != nil {
		return reflect.ValueOf(item).Elem().FieldByIndex(a.index).Interface(), true
	}
	raw, err := bson.Marshal(*item)
	if err != nil {
		return nil, false
	}
	var out bson.M
	if err := bson.Unmarshal(raw, &out); err != nil {
		return nil, false
	}
	v, found := out[IDField]
	return v, found
}

func (a implicitAccessor[T]) Set(item *T, value interface{}) error {
	if doc, ok := any(item).(*Document); ok {
		if *doc == nil {
			*doc = Document{}
		}
		(*doc)[IDField] = value
		return nil
	}
	if a.index == nil || item == nil {
		return fmt.Errorf("%w: %T has no settable %s", ErrMissingIdentity, item, IDField)
	}
	field := reflect.ValueOf(item).Elem().FieldByIndex(a.index)
	v, err := assignable(value, field.Type())
	if err != nil {
		return fmt.Errorf("set %s: %w", IDField, err)
	}
	field.Set(v)
	return nil
}

var objectIDType = reflect.TypeOf(primitive.ObjectID{})

// structIDField finds the exported top-level field whose bson key is _id.
func structIDField(t reflect.Type) ([]int, bool) {
	if t.Kind() != reflect.Struct {
		return nil, false
	}
	for i := 0; i < t.NumField(); i++ {
		f := t.Field(i)
		if !f.IsExported() {
			continue
		}
		if key, _, _ := strings.Cut(f.Tag.Get("bson"), ","); key == IDField {
			return f.Index, true
		}
	}
	return nil, false
}

// assignable adapts a generated identity to the type of the _id field.
func assignable(value interface{}, target reflect.Type) (reflect.Value, error) {
	v := reflect.ValueOf(value)
	switch {
	case v.IsValid() && v.Type().AssignableTo(target):
		return v, nil
	case v.IsValid() && target.Kind() == reflect.Pointer && v.Type().AssignableTo(target.Elem()):
		p := reflect.New(target.Elem())
		p.Elem().Set(v)
		return p, nil
	case target.Kind() == reflect.String:
		if oid, ok := value.(primitive.ObjectID); ok {
			return reflect.ValueOf(oid.Hex()).Convert(target), nil
		}
	case target == objectIDType:
		if s, ok := value.(string); ok {
			oid, err := primitive.ObjectIDFromHex(s)
			if err != nil {
				return reflect.Value{}, err
			}
			return reflect.ValueOf(oid), nil
		}
	case v.IsValid() && isInteger(v.Kind()) && isInteger(target.Kind()):
		return v.Convert(target), nil
	}
	return reflect.Value{}, fmt.Errorf("%w: cannot assign %T to %s", ErrUnsupportedIdentity, value, target)
}

func isInteger(k reflect.Kind) bool {
	switch k {
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		return true
	}
	return false
}
