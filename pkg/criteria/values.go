package criteria

import (
	"bytes"
	"reflect"
	"strconv"
	"strings"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

// lookup resolves a dotted path against a decoded document. Arrays are fanned out the way
// MongoDB does: a numeric segment indexes the array, any other segment is applied to every
// element, and a terminal array yields both itself and its elements.
func lookup(doc bson.M, path string) []interface{} {
	current := []interface{}{doc}
	for _, segment := range strings.Split(path, ".") {
		next := make([]interface{}, 0, len(current))
		for _, v := range current {
			next = append(next, step(v, segment)...)
		}
		if len(next) == 0 {
			return nil
		}
		current = next
	}

	out := make([]interface{}, 0, len(current))
	for _, v := range current {
		out = append(out, v)
		if arr, ok := asArray(v); ok {
			out = append(out, arr...)
		}
	}
	return out
}

func step(v interface{}, segment string) []interface{} {
	if m, ok := asMap(v); ok {
		if child, found := m[segment]; found {
			return []interface{}{child}
		}
		return nil
	}
	arr, ok := asArray(v)
	if !ok {
		return nil
	}
	if idx, err := strconv.Atoi(segment); err == nil {
		if idx >= 0 && idx < len(arr) {
			return []interface{}{arr[idx]}
		}
		return nil
	}
	var out []interface{}
	for _, elem := range arr {
		if m, ok := asMap(elem); ok {
			if child, found := m[segment]; found {
				out = append(out, child)
			}
		}
	}
	return out
}

func asMap(v interface{}) (map[string]interface{}, bool) {
	switch t := v.(type) {
	case bson.M:
		return t, true
	case map[string]interface{}:
		return t, true
	case bson.D:
		return t.Map(), true
	}
	// Named map types, such as dynamic entity documents, decode with their own type.
	rv := reflect.ValueOf(v)
	if rv.Kind() == reflect.Map && rv.Type().Key().Kind() == reflect.String && rv.Type().Elem().Kind() == reflect.Interface {
		out := make(map[string]interface{}, rv.Len())
		iter := rv.MapRange()
		for iter.Next() {
			out[iter.Key().String()] = iter.Value().Interface()
		}
		return out, true
	}
	return nil, false
}

func asArray(v interface{}) ([]interface{}, bool) {
	switch t := v.(type) {
	case bson.A:
		return t, true
	case []interface{}:
		return t, true
	}
	return nil, false
}

// normalize passes a Go value through the bson codec so that it has the same shape as a
// value decoded from a stored document.
func normalize(v interface{}) interface{} {
	if v == nil {
		return nil
	}
	raw, err := bson.Marshal(bson.D{{Key: "v", Value: v}})
	if err != nil {
		return v
	}
	var out bson.M
	if err := bson.Unmarshal(raw, &out); err != nil {
		return v
	}
	return out["v"]
}

// Normalize is exported for stores that need decoded-shape values, such as the in-memory executor.
func Normalize(v interface{}) interface{} { return normalize(v) }

func asNumber(v interface{}) (float64, int64, bool, bool) {
	switch n := v.(type) {
	case int32:
		return float64(n), int64(n), true, true
	case int64:
		return float64(n), n, true, true
	case int:
		return float64(n), int64(n), true, true
	case float64:
		return n, int64(n), false, true
	case float32:
		return float64(n), int64(n), false, true
	}
	return 0, 0, false, false
}

func asTime(v interface{}) (time.Time, bool) {
	switch t := v.(type) {
	case primitive.DateTime:
		return t.Time(), true
	case time.Time:
		return t, true
	}
	return time.Time{}, false
}

// compareOrdered compares two values of the same BSON type class.
func compareOrdered(a, b interface{}) (int, bool) {
	if af, ai, aInt, ok := asNumber(a); ok {
		bf, bi, bInt, ok := asNumber(b)
		if !ok {
			return 0, false
		}
		if aInt && bInt {
			return cmpInt(ai, bi), true
		}
		switch {
		case af < bf:
			return -1, true
		case af > bf:
			return 1, true
		}
		return 0, true
	}
	switch av := a.(type) {
	case string:
		bv, ok := b.(string)
		if !ok {
			return 0, false
		}
		return strings.Compare(av, bv), true
	case primitive.ObjectID:
		bv, ok := b.(primitive.ObjectID)
		if !ok {
			return 0, false
		}
		return bytes.Compare(av[:], bv[:]), true
	case bool:
		bv, ok := b.(bool)
		if !ok {
			return 0, false
		}
		switch {
		case av == bv:
			return 0, true
		case !av:
			return -1, true
		}
		return 1, true
	}
	if at, ok := asTime(a); ok {
		bt, ok := asTime(b)
		if !ok {
			return 0, false
		}
		return at.Compare(bt), true
	}
	return 0, false
}

func cmpInt(a, b int64) int {
	switch {
	case a < b:
		return -1
	case a > b:
		return 1
	}
	return 0
}

func equalValues(a, b interface{}) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	if cmp, ok := compareOrdered(a, b); ok {
		return cmp == 0
	}
	return reflect.DeepEqual(a, b)
}

// typeRank follows the BSON comparison order used by MongoDB when sorting mixed types.
func typeRank(v interface{}) int {
	if v == nil {
		return 1
	}
	if _, _, _, ok := asNumber(v); ok {
		return 2
	}
	switch v.(type) {
	case string, primitive.Symbol:
		return 3
	case bson.M, bson.D, map[string]interface{}:
		return 4
	case bson.A, []interface{}:
		return 5
	case primitive.Binary, []byte:
		return 6
	case primitive.ObjectID:
		return 7
	case bool:
		return 8
	case primitive.DateTime, time.Time:
		return 9
	case primitive.Timestamp:
		return 10
	case primitive.Regex:
		return 11
	}
	return 12
}

// compareForSort orders two values, falling back to the BSON type order across types.
func compareForSort(a, b interface{}) int {
	ra, rb := typeRank(a), typeRank(b)
	if ra != rb {
		return cmpInt(int64(ra), int64(rb))
	}
	if cmp, ok := compareOrdered(a, b); ok {
		return cmp
	}
	return 0
}
