package entity

import (
	"testing"

	"go.mongodb.org/mongo-driver/bson"
)

func TestDocument_GetSet(t *testing.T) {
	d := Document{
		"name":  "widget",
		"sizes": bson.A{"s", "m"},
		"meta":  bson.M{"owner": "ops"},
	}

	if v, ok := d.Get("meta.owner"); !ok || v != "ops" {
		t.Fatalf("Get(meta.owner) = %v, %v", v, ok)
	}
	if v, ok := d.Get("sizes.1"); !ok || v != "m" {
		t.Fatalf("Get(sizes.1) = %v, %v", v, ok)
	}
	if _, ok := d.Get("sizes.9"); ok {
		t.Fatal("expected out of range index to be missing")
	}
	if _, ok := d.Get("name.first"); ok {
		t.Fatal("expected path through a scalar to be missing")
	}

	d.Set("dims.width", 10)
	if v, ok := d.Get("dims.width"); !ok || v != 10 {
		t.Fatalf("Get(dims.width) = %v, %v", v, ok)
	}
	d.Set("meta.team", "core")
	if v, ok := d.Get("meta.team"); !ok || v != "core" {
		t.Fatalf("Get(meta.team) = %v, %v", v, ok)
	}
	if v, _ := d.Get("meta.owner"); v != "ops" {
		t.Fatalf("Set overwrote sibling: %v", v)
	}
}

func TestDocument_RoundTripsThroughBSON(t *testing.T) {
	d := Document{"a": int32(1), "nested": Document{"b": "c"}}
	raw, err := bson.Marshal(d)
	if err != nil {
		t.Fatalf("Marshal() error = %v", err)
	}
	var out Document
	if err := bson.Unmarshal(raw, &out); err != nil {
		t.Fatalf("Unmarshal() error = %v", err)
	}
	if v, ok := out.Get("nested.b"); !ok || v != "c" {
		t.Fatalf("Get(nested.b) = %v, %v", v, ok)
	}
}
