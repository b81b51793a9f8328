package criteria

import (
	"fmt"
	"testing"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
	"go.mongodb.org/mongo-driver/bson"
)

// TestProperty_FoldMatchesLeftToRightEvaluation checks that a compiled criteria chain accepts a
// document exactly when a plain left-to-right boolean fold over the same roles does.
func TestProperty_FoldMatchesLeftToRightEvaluation(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 200
	properties := gopter.NewProperties(parameters)

	genRoles := gen.SliceOfN(6, gen.IntRange(int(Find), int(Not)))
	genBits := gen.SliceOfN(6, gen.Bool())

	properties.Property("compiled predicate equals sequential fold", prop.ForAll(
		func(roles []int, bits []bool) bool {
			doc := bson.M{}
			cs := make([]Criterion, 0, len(roles))
			for i, r := range roles {
				field := fmt.Sprintf("f%d", i)
				doc[field] = bits[i]
				cs = append(cs, New(Role(r), field, true))
			}

			p, err := Compile(cs)
			if err != nil {
				t.Logf("Compile() error = %v", err)
				return false
			}

			var acc *bool
			for i, r := range roles {
				token := bits[i]
				var next bool
				switch Role(r) {
				case Find, And:
					next = token
					if acc != nil {
						next = *acc && token
					}
				case Or:
					next = token
					if acc != nil {
						next = *acc || token
					}
				case Not:
					next = !token
					if acc != nil {
						next = *acc && !token
					}
				}
				acc = &next
			}
			return p.Match(doc) == *acc
		},
		genRoles,
		genBits,
	))

	properties.Property("sort keys after the first only break ties", prop.ForAll(
		func(a1, a2, b1, b2 int) bool {
			a := bson.M{"k1": a1, "k2": a2}
			b := bson.M{"k1": b1, "k2": b2}
			order := CompileSort([]SortKey{Asc("k1"), Desc("k2")})
			if a1 != b1 {
				return order.Less(a, b) == (a1 < b1)
			}
			return order.Less(a, b) == (a2 > b2)
		},
		gen.IntRange(0, 5), gen.IntRange(0, 5), gen.IntRange(0, 5), gen.IntRange(0, 5),
	))

	properties.TestingRun(t)
}
