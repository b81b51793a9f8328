// Package entity describes how typed entities map to collections and how their identity is
// read, tested for emptiness and assigned.
package entity

import (
	"errors"
	"fmt"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

// IDField is the implicit identity field of every stored document.
const IDField = "_id"

var (
	// ErrUnsupportedIdentity is returned when an identity value has a type whose emptiness is undefined.
	ErrUnsupportedIdentity = errors.New("unsupported identity type")
	// ErrMissingIdentity is returned when an entity has no readable identity or no way to receive one.
	ErrMissingIdentity = errors.New("identity field missing")
	// ErrInvalidMapping is returned when an entity mapping is incomplete.
	ErrInvalidMapping = errors.New("invalid entity mapping")
)

// IsEmpty reports whether an identity value is unset.
//
// An ObjectID is empty when it equals primitive.NilObjectID. A string is empty only when it equals
// the hex form of that sentinel; "" is a regular, non-empty identity. A nil value is empty. Any
// other type fails with ErrUnsupportedIdentity.
func IsEmpty(v interface{}) (bool, error) {
	return isEmpty(v, false)
}

// IsEmptyAutoIncrement is IsEmpty for identities minted by a sequence: integer identities are
// also accepted and are empty when zero.
func IsEmptyAutoIncrement(v interface{}) (bool, error) {
	return isEmpty(v, true)
}

func isEmpty(v interface{}, autoIncrement bool) (bool, error) {
	switch id := v.(type) {
	case nil:
		return true, nil
	case primitive.ObjectID:
		return id == primitive.NilObjectID, nil
	case *primitive.ObjectID:
		return id == nil || *id == primitive.NilObjectID, nil
	case string:
		return id == primitive.NilObjectID.Hex(), nil
	}
	if autoIncrement {
		switch id := v.(type) {
		case int:
			return id == 0, nil
		case int32:
			return id == 0, nil
		case int64:
			return id == 0, nil
		}
	}
	return false, fmt.Errorf("%w: %T", ErrUnsupportedIdentity, v)
}
