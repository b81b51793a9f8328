package entity

import (
	"errors"
	"testing"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

type product struct {
	ID   primitive.ObjectID `bson:"_id,omitempty"`
	Code string             `bson:"code"`
}

type stringKeyed struct {
	ID   string `bson:"_id"`
	Name string `bson:"name"`
}

type counted struct {
	ID   int64  `bson:"_id"`
	Name string `bson:"name"`
}

func TestIsEmpty(t *testing.T) {
	oid := primitive.NewObjectID()
	tests := []struct {
		name    string
		value   interface{}
		empty   bool
		wantErr bool
	}{
		{name: "nil", value: nil, empty: true},
		{name: "nil object id", value: primitive.NilObjectID, empty: true},
		{name: "object id", value: oid, empty: false},
		{name: "sentinel hex string", value: primitive.NilObjectID.Hex(), empty: true},
		{name: "empty string is not the sentinel", value: "", empty: false},
		{name: "hex string", value: oid.Hex(), empty: false},
		{name: "int is unsupported", value: 0, wantErr: true},
		{name: "float is unsupported", value: 1.5, wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := IsEmpty(tt.value)
			if tt.wantErr {
				if !errors.Is(err, ErrUnsupportedIdentity) {
					t.Fatalf("expected ErrUnsupportedIdentity, got %v", err)
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if got != tt.empty {
				t.Fatalf("IsEmpty(%v) = %v, want %v", tt.value, got, tt.empty)
			}
		})
	}
}

func TestIsEmptyAutoIncrement(t *testing.T) {
	for _, v := range []interface{}{0, int32(0), int64(0)} {
		empty, err := IsEmptyAutoIncrement(v)
		if err != nil || !empty {
			t.Fatalf("IsEmptyAutoIncrement(%T 0) = %v, %v", v, empty, err)
		}
	}
	empty, err := IsEmptyAutoIncrement(int64(7))
	if err != nil || empty {
		t.Fatalf("IsEmptyAutoIncrement(7) = %v, %v", empty, err)
	}
	if _, err := IsEmptyAutoIncrement(uint8(1)); !errors.Is(err, ErrUnsupportedIdentity) {
		t.Fatalf("expected ErrUnsupportedIdentity, got %v", err)
	}
}

func TestResolver_ImplicitStruct(t *testing.T) {
	r := NewResolver(Mapping[product]{Collection: "products"})

	fresh := &product{Code: "A1"}
	id, err := r.Resolve(fresh)
	if err != nil {
		t.Fatalf("Resolve() error = %v", err)
	}
	if !id.Empty || !id.Present {
		t.Fatalf("expected present empty identity, got %+v", id)
	}

	stored := &product{ID: primitive.NewObjectID(), Code: "A1"}
	id, err = r.Resolve(stored)
	if err != nil {
		t.Fatalf("Resolve() error = %v", err)
	}
	if id.Empty || id.Value != stored.ID || id.Field != IDField {
		t.Fatalf("expected populated identity, got %+v", id)
	}

	oid := primitive.NewObjectID()
	if err := r.Assign(fresh, oid); err != nil {
		t.Fatalf("Assign() error = %v", err)
	}
	if fresh.ID != oid {
		t.Fatalf("expected assigned id %v, got %v", oid, fresh.ID)
	}
}

type plainKeyed struct {
	ID   primitive.ObjectID `bson:"_id"`
	Code string             `bson:"code"`
}

type omitString struct {
	ID   string `bson:"_id,omitempty"`
	Name string `bson:"name"`
}

type pointerKeyed struct {
	ID *primitive.ObjectID `bson:"_id,omitempty"`
}

type untagged struct {
	Name string
}

func TestResolver_ImplicitTaggedFields(t *testing.T) {
	t.Run("object id without omitempty", func(t *testing.T) {
		r := NewResolver(Mapping[plainKeyed]{Collection: "items"})
		item := &plainKeyed{Code: "x"}
		id, err := r.Resolve(item)
		if err != nil || !id.Empty {
			t.Fatalf("Resolve() = %+v, %v; want empty", id, err)
		}
		oid := primitive.NewObjectID()
		if err := r.Assign(item, oid); err != nil {
			t.Fatalf("Assign() error = %v", err)
		}
		if item.ID != oid {
			t.Fatalf("expected %v, got %v", oid, item.ID)
		}
	})

	t.Run("omitempty empty string is an identity", func(t *testing.T) {
		r := NewResolver(Mapping[omitString]{Collection: "items"})
		id, err := r.Resolve(&omitString{Name: "x"})
		if err != nil {
			t.Fatalf("Resolve() error = %v", err)
		}
		if id.Empty || !id.Present || id.Value != "" {
			t.Fatalf("expected non-empty \"\" identity, got %+v", id)
		}
	})

	t.Run("string field receives hex", func(t *testing.T) {
		r := NewResolver(Mapping[omitString]{Collection: "items"})
		item := &omitString{}
		oid := primitive.NewObjectID()
		if err := r.Assign(item, oid); err != nil {
			t.Fatalf("Assign() error = %v", err)
		}
		if item.ID != oid.Hex() {
			t.Fatalf("expected %s, got %q", oid.Hex(), item.ID)
		}
	})

	t.Run("pointer field", func(t *testing.T) {
		r := NewResolver(Mapping[pointerKeyed]{Collection: "items"})
		item := &pointerKeyed{}
		id, err := r.Resolve(item)
		if err != nil || !id.Empty {
			t.Fatalf("Resolve() = %+v, %v; want empty", id, err)
		}
		oid := primitive.NewObjectID()
		if err := r.Assign(item, oid); err != nil {
			t.Fatalf("Assign() error = %v", err)
		}
		if item.ID == nil || *item.ID != oid {
			t.Fatalf("expected %v, got %v", oid, item.ID)
		}
	})

	t.Run("auto increment field", func(t *testing.T) {
		r := NewResolver(Mapping[counted]{Collection: "items", AutoIncrement: "items"})
		item := &counted{}
		if err := r.Assign(item, int32(9)); err != nil {
			t.Fatalf("Assign() error = %v", err)
		}
		if item.ID != 9 {
			t.Fatalf("expected 9, got %d", item.ID)
		}
	})

	t.Run("no _id field", func(t *testing.T) {
		r := NewResolver(Mapping[untagged]{Collection: "items"})
		item := &untagged{Name: "x"}
		id, err := r.Resolve(item)
		if err != nil || id.Present || !id.Empty {
			t.Fatalf("Resolve() = %+v, %v; want absent", id, err)
		}
		if err := r.Assign(item, primitive.NewObjectID()); !errors.Is(err, ErrMissingIdentity) {
			t.Fatalf("expected ErrMissingIdentity, got %v", err)
		}
	})
}

func TestResolver_ImplicitDocument(t *testing.T) {
	r := NewResolver(Mapping[Document]{Collection: "things"})

	doc := Document{"name": "x"}
	id, err := r.Resolve(&doc)
	if err != nil {
		t.Fatalf("Resolve() error = %v", err)
	}
	if !id.Empty {
		t.Fatalf("expected empty identity, got %+v", id)
	}

	oid := primitive.NewObjectID()
	if err := r.Assign(&doc, oid); err != nil {
		t.Fatalf("Assign() error = %v", err)
	}
	if doc.ID() != oid {
		t.Fatalf("expected assigned id %v, got %v", oid, doc.ID())
	}

	doc[IDField] = 3.14
	if _, err := r.Resolve(&doc); !errors.Is(err, ErrUnsupportedIdentity) {
		t.Fatalf("expected ErrUnsupportedIdentity, got %v", err)
	}
}

func TestResolver_StringIdentity(t *testing.T) {
	r := NewResolver(Mapping[stringKeyed]{
		Collection: "keyed",
		Identity: Field("_id",
			func(s *stringKeyed) string { return s.ID },
			func(s *stringKeyed, v string) { s.ID = v }),
	})

	item := &stringKeyed{ID: primitive.NilObjectID.Hex()}
	id, err := r.Resolve(item)
	if err != nil || !id.Empty {
		t.Fatalf("expected sentinel string to be empty, got %+v, %v", id, err)
	}

	item.ID = ""
	id, err = r.Resolve(item)
	if err != nil || id.Empty {
		t.Fatalf("expected empty string to be a real identity, got %+v, %v", id, err)
	}

	oid := primitive.NewObjectID()
	if err := r.Assign(item, oid); err != nil {
		t.Fatalf("Assign() error = %v", err)
	}
	if item.ID != oid.Hex() {
		t.Fatalf("expected hex identity %s, got %s", oid.Hex(), item.ID)
	}
}

func TestResolver_AutoIncrement(t *testing.T) {
	r := NewResolver(Mapping[counted]{
		Collection:    "counted",
		AutoIncrement: "counted",
		Identity: Field("_id",
			func(c *counted) int64 { return c.ID },
			func(c *counted, v int64) { c.ID = v }),
	})

	item := &counted{Name: "first"}
	id, err := r.Resolve(item)
	if err != nil || !id.Empty {
		t.Fatalf("expected zero to be empty, got %+v, %v", id, err)
	}
	if err := r.Assign(item, int64(42)); err != nil {
		t.Fatalf("Assign() error = %v", err)
	}
	if item.ID != 42 {
		t.Fatalf("expected 42, got %d", item.ID)
	}
	if err := r.Assign(item, "nope"); !errors.Is(err, ErrUnsupportedIdentity) {
		t.Fatalf("expected ErrUnsupportedIdentity, got %v", err)
	}
}

func TestResolver_ReadOnlyField(t *testing.T) {
	r := NewResolver(Mapping[product]{
		Collection: "products",
		Identity:   Field("_id", func(p *product) primitive.ObjectID { return p.ID }, nil),
	})
	if err := r.Assign(&product{}, primitive.NewObjectID()); !errors.Is(err, ErrMissingIdentity) {
		t.Fatalf("expected ErrMissingIdentity, got %v", err)
	}
}

func TestMapping_Validate(t *testing.T) {
	if err := (Mapping[product]{}).Validate(); !errors.Is(err, ErrInvalidMapping) {
		t.Fatalf("expected ErrInvalidMapping for missing collection, got %v", err)
	}
	bad := Mapping[product]{Collection: "p", Indexes: []Index{{Name: "x"}}}
	if err := bad.Validate(); !errors.Is(err, ErrInvalidMapping) {
		t.Fatalf("expected ErrInvalidMapping for index without field, got %v", err)
	}
	ok := Mapping[product]{Collection: "p", Indexes: []Index{{Name: "code", Field: "code", Unique: true}}}
	if err := ok.Validate(); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestNewObjectID_FollowsDeclaredType(t *testing.T) {
	if _, ok := NewObjectID("").(string); !ok {
		t.Fatal("expected string identity for string-typed current value")
	}
	if _, ok := NewObjectID(nil).(primitive.ObjectID); !ok {
		t.Fatal("expected ObjectID identity by default")
	}
}
