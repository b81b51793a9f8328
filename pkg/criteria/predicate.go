package criteria

import (
	"fmt"
	"regexp"
	"sync"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

// Predicate is a compiled boolean filter over documents.
type Predicate interface {
	// Filter renders the predicate as a MongoDB filter document.
	Filter() bson.D
	// Match evaluates the predicate against a decoded document.
	Match(doc bson.M) bool
	String() string
}

type matchAll struct{}

// All returns the predicate matching every document.
func All() Predicate { return matchAll{} }

func (matchAll) Filter() bson.D { return bson.D{} }

func (matchAll) Match(bson.M) bool { return true }

func (matchAll) String() string { return "true" }

type comparison struct {
	field   string
	compare Comparator
	value   interface{}
	want    interface{}

	once       sync.Once
	pattern    *regexp.Regexp
	patternErr error
}

// Eq returns field == value.
func Eq(field string, value interface{}) Predicate {
	return &comparison{field: field, compare: Equals, value: value, want: normalize(value)}
}

// Gt returns field > value.
func Gt(field string, value interface{}) Predicate {
	return &comparison{field: field, compare: GreaterThan, value: value, want: normalize(value)}
}

// Lt returns field < value.
func Lt(field string, value interface{}) Predicate {
	return &comparison{field: field, compare: LessThan, value: value, want: normalize(value)}
}

// Regex returns a case-sensitive, unanchored regular expression match on field. The pattern is
// passed to MongoDB as is. In-memory evaluation compiles it with the regexp package on first use,
// so patterns outside RE2 syntax (lookaround, backreferences) only work against MongoDB.
func Regex(field, pattern string) Predicate {
	return &comparison{field: field, compare: Like, value: pattern}
}

func (c *comparison) compiled() (*regexp.Regexp, error) {
	c.once.Do(func() {
		c.pattern, c.patternErr = regexp.Compile(c.value.(string))
		if c.patternErr != nil {
			c.patternErr = fmt.Errorf("%w: like pattern %q: %v", ErrUnsupportedPattern, c.value, c.patternErr)
		}
	})
	return c.pattern, c.patternErr
}

// Evaluable reports whether p can be evaluated in memory by Match. It fails with
// ErrUnsupportedPattern for Like patterns the regexp package rejects; Match never matches those.
func Evaluable(p Predicate) error {
	switch t := p.(type) {
	case *comparison:
		if t.compare == Like {
			_, err := t.compiled()
			return err
		}
	case *logical:
		for _, inner := range t.children {
			if err := Evaluable(inner); err != nil {
				return err
			}
		}
	case *negation:
		return Evaluable(t.inner)
	}
	return nil
}

func (c *comparison) Filter() bson.D {
	switch c.compare {
	case Like:
		return bson.D{{Key: c.field, Value: bson.D{{Key: "$regex", Value: primitive.Regex{Pattern: c.value.(string)}}}}}
	case GreaterThan:
		return bson.D{{Key: c.field, Value: bson.D{{Key: "$gt", Value: c.value}}}}
	case LessThan:
		return bson.D{{Key: c.field, Value: bson.D{{Key: "$lt", Value: c.value}}}}
	default:
		return bson.D{{Key: c.field, Value: bson.D{{Key: "$eq", Value: c.value}}}}
	}
}

func (c *comparison) Match(doc bson.M) bool {
	want := c.want
	for _, got := range lookup(doc, c.field) {
		switch c.compare {
		case Like:
			re, err := c.compiled()
			if err != nil {
				return false
			}
			if s, ok := got.(string); ok && re.MatchString(s) {
				return true
			}
		case GreaterThan:
			if cmp, ok := compareOrdered(got, want); ok && cmp > 0 {
				return true
			}
		case LessThan:
			if cmp, ok := compareOrdered(got, want); ok && cmp < 0 {
				return true
			}
		default:
			if equalValues(got, want) {
				return true
			}
		}
	}
	// {field: {$eq: null}} also matches a missing field.
	if c.compare == Equals && want == nil && len(lookup(doc, c.field)) == 0 {
		return true
	}
	return false
}

func (c *comparison) String() string {
	return fmt.Sprintf("%s %s %v", c.field, c.compare, c.value)
}

type logical struct {
	op       string
	children []Predicate
}

// AndOf returns the conjunction of the given predicates.
func AndOf(preds ...Predicate) Predicate { return joined("$and", preds) }

// OrOf returns the disjunction of the given predicates.
func OrOf(preds ...Predicate) Predicate { return joined("$or", preds) }

// joined flattens directly nested nodes of the same operator; both operators are associative.
func joined(op string, preds []Predicate) Predicate {
	children := make([]Predicate, 0, len(preds))
	for _, p := range preds {
		if l, ok := p.(*logical); ok && l.op == op {
			children = append(children, l.children...)
			continue
		}
		children = append(children, p)
	}
	return &logical{op: op, children: children}
}

func (l *logical) Filter() bson.D {
	parts := make(bson.A, 0, len(l.children))
	for _, c := range l.children {
		parts = append(parts, c.Filter())
	}
	return bson.D{{Key: l.op, Value: parts}}
}

func (l *logical) Match(doc bson.M) bool {
	if l.op == "$or" {
		for _, c := range l.children {
			if c.Match(doc) {
				return true
			}
		}
		return false
	}
	for _, c := range l.children {
		if !c.Match(doc) {
			return false
		}
	}
	return true
}

func (l *logical) String() string {
	sep := " AND "
	if l.op == "$or" {
		sep = " OR "
	}
	out := "("
	for i, c := range l.children {
		if i > 0 {
			out += sep
		}
		out += c.String()
	}
	return out + ")"
}

type negation struct {
	inner Predicate
}

// NotOf returns the negation of p. It renders as {$nor: [p]} since $not is not a top-level operator.
func NotOf(p Predicate) Predicate { return &negation{inner: p} }

func (n *negation) Filter() bson.D {
	return bson.D{{Key: "$nor", Value: bson.A{n.inner.Filter()}}}
}

func (n *negation) Match(doc bson.M) bool { return !n.inner.Match(doc) }

func (n *negation) String() string { return "NOT " + n.inner.String() }
