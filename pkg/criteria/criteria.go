// Package criteria holds the query criteria model and compiles ordered criteria into a single
// MongoDB filter predicate and a multi-key sort order.
package criteria

import (
	"errors"
	"fmt"
	"strings"
)

// ErrInvalidCriterion is returned when a criterion cannot be compiled.
var ErrInvalidCriterion = errors.New("invalid criterion")

// ErrUnsupportedPattern is returned when a Like pattern cannot be evaluated in memory.
var ErrUnsupportedPattern = errors.New("like pattern not supported in memory")

// Comparator selects how a criterion value is compared against a document field.
type Comparator int

const (
	// Equals tests field equality. It is the default comparator.
	Equals Comparator = iota
	// Like tests that the field contains a match of the value used as a regular expression.
	Like
	// GreaterThan is a strict ordered comparison.
	GreaterThan
	// LessThan is a strict ordered comparison.
	LessThan
)

// String implements fmt.Stringer.
func (c Comparator) String() string {
	switch c {
	case Equals:
		return "eq"
	case Like:
		return "like"
	case GreaterThan:
		return "gt"
	case LessThan:
		return "lt"
	default:
		return fmt.Sprintf("comparator(%d)", int(c))
	}
}

// Role is the logical role of a criterion inside the fold.
type Role int

const (
	// Find is conjunctive and equivalent to And.
	Find Role = iota
	And
	Or
	Not
)

// String implements fmt.Stringer.
func (r Role) String() string {
	switch r {
	case Find:
		return "find"
	case And:
		return "and"
	case Or:
		return "or"
	case Not:
		return "not"
	default:
		return fmt.Sprintf("role(%d)", int(r))
	}
}

// Criterion is one field/value/comparator/role tuple of a query.
type Criterion struct {
	Field      string
	Value      interface{}
	Comparator Comparator
	Role       Role
}

// New builds a criterion. The comparator defaults to Equals when omitted.
func New(role Role, field string, value interface{}, compare ...Comparator) Criterion {
	c := Criterion{Field: field, Value: value, Role: role}
	if len(compare) > 0 {
		c.Comparator = compare[0]
	}
	return c
}

// Validate checks the criterion invariants.
func (c Criterion) Validate() error {
	if strings.TrimSpace(c.Field) == "" {
		return fmt.Errorf("%w: field is required", ErrInvalidCriterion)
	}
	switch c.Comparator {
	case Equals, GreaterThan, LessThan:
	case Like:
		if _, ok := c.Value.(string); !ok {
			return fmt.Errorf("%w: like on %q needs a string pattern, got %T", ErrInvalidCriterion, c.Field, c.Value)
		}
	default:
		return fmt.Errorf("%w: unknown comparator %d on %q", ErrInvalidCriterion, int(c.Comparator), c.Field)
	}
	switch c.Role {
	case Find, And, Or, Not:
	default:
		return fmt.Errorf("%w: unknown role %d on %q", ErrInvalidCriterion, int(c.Role), c.Field)
	}
	return nil
}

// SortKey is one key of a multi-key ordering.
type SortKey struct {
	Field     string
	Ascending bool
}

// Asc returns an ascending sort key.
func Asc(field string) SortKey { return SortKey{Field: field, Ascending: true} }

// Desc returns a descending sort key.
func Desc(field string) SortKey { return SortKey{Field: field} }
