package entity

import (
	"strconv"
	"strings"

	"go.mongodb.org/mongo-driver/bson"
)

// Document is a dynamic entity: an arbitrary key-value document stored as-is.
type Document bson.M

// Get resolves a dotted path. Numeric segments index into arrays.
func (d Document) Get(path string) (interface{}, bool) {
	var current interface{} = d
	for _, segment := range strings.Split(path, ".") {
		switch node := current.(type) {
		case Document:
			v, ok := node[segment]
			if !ok {
				return nil, false
			}
			current = v
		case bson.M:
			v, ok := node[segment]
			if !ok {
				return nil, false
			}
			current = v
		case map[string]interface{}:
			v, ok := node[segment]
			if !ok {
				return nil, false
			}
			current = v
		case bson.D:
			v, ok := node.Map()[segment]
			if !ok {
				return nil, false
			}
			current = v
		case bson.A:
			idx, err := strconv.Atoi(segment)
			if err != nil || idx < 0 || idx >= len(node) {
				return nil, false
			}
			current = node[idx]
		default:
			return nil, false
		}
	}
	return current, true
}

// Set writes value at a dotted path, creating intermediate documents as needed.
func (d Document) Set(path string, value interface{}) {
	segments := strings.Split(path, ".")
	node := map[string]interface{}(d)
	for _, segment := range segments[:len(segments)-1] {
		next, ok := asMutable(node[segment])
		if !ok {
			next = Document{}
			node[segment] = next
		}
		node = next
	}
	node[segments[len(segments)-1]] = value
}

func asMutable(v interface{}) (map[string]interface{}, bool) {
	switch m := v.(type) {
	case Document:
		return m, true
	case bson.M:
		return m, true
	case map[string]interface{}:
		return m, true
	}
	return nil, false
}

// ID returns the implicit identity of the document.
func (d Document) ID() interface{} { return d[IDField] }
