package criteria

import (
	"fmt"
	"sort"

	"go.mongodb.org/mongo-driver/bson"
)

// Compile folds criteria, in insertion order, into one predicate.
//
// The fold is flat and left-associative: Find and And conjoin, Or disjoins, Not conjoins the
// negation. Find(A) Or(B) And(C) therefore compiles to ((A OR B) AND C). An empty sequence
// compiles to All.
func Compile(criteria []Criterion) (Predicate, error) {
	var acc Predicate
	for i, c := range criteria {
		token, err := tokenFor(c)
		if err != nil {
			return nil, fmt.Errorf("criterion %d: %w", i, err)
		}
		switch c.Role {
		case Find, And:
			if acc == nil {
				acc = token
			} else {
				acc = AndOf(acc, token)
			}
		case Or:
			if acc == nil {
				acc = token
			} else {
				acc = OrOf(acc, token)
			}
		case Not:
			if acc == nil {
				acc = NotOf(token)
			} else {
				acc = AndOf(acc, NotOf(token))
			}
		}
	}
	if acc == nil {
		return All(), nil
	}
	return acc, nil
}

func tokenFor(c Criterion) (Predicate, error) {
	if err := c.Validate(); err != nil {
		return nil, err
	}
	switch c.Comparator {
	case Like:
		return Regex(c.Field, c.Value.(string)), nil
	case GreaterThan:
		return Gt(c.Field, c.Value), nil
	case LessThan:
		return Lt(c.Field, c.Value), nil
	default:
		return Eq(c.Field, c.Value), nil
	}
}

// Ordering is a compiled multi-key sort. The first key is primary; each later key only breaks
// ties left by the keys before it. A nil Ordering means natural order.
type Ordering []SortKey

// CompileSort builds an ordering from sort keys in insertion order.
func CompileSort(keys []SortKey) Ordering {
	if len(keys) == 0 {
		return nil
	}
	out := make(Ordering, len(keys))
	copy(out, keys)
	return out
}

// Sort renders the ordering as a MongoDB sort document, or nil when empty.
func (o Ordering) Sort() bson.D {
	if len(o) == 0 {
		return nil
	}
	d := make(bson.D, 0, len(o))
	for _, k := range o {
		dir := -1
		if k.Ascending {
			dir = 1
		}
		d = append(d, bson.E{Key: k.Field, Value: dir})
	}
	return d
}

// Less reports whether a sorts before b.
func (o Ordering) Less(a, b bson.M) bool {
	for _, k := range o {
		cmp := compareForSort(first(a, k.Field), first(b, k.Field))
		if cmp == 0 {
			continue
		}
		if k.Ascending {
			return cmp < 0
		}
		return cmp > 0
	}
	return false
}

// Apply sorts docs in place, keeping the original order for full ties.
func (o Ordering) Apply(docs []bson.M) {
	if len(o) == 0 {
		return
	}
	sort.SliceStable(docs, func(i, j int) bool { return o.Less(docs[i], docs[j]) })
}

func first(doc bson.M, path string) interface{} {
	values := lookup(doc, path)
	if len(values) == 0 {
		return nil
	}
	return values[0]
}

// Value returns the first value at path in doc, or nil when the path is absent.
func Value(doc bson.M, path string) interface{} { return first(doc, path) }
