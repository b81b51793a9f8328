package repository

import (
	"context"

	"github.com/vbouzoukos/vbmongoengine/pkg/criteria"
)

// Page is one page of query results.
type Page[T any] struct {
	Items        []T
	Page         int
	ItemsPerPage int
	TotalPages   int
}

// FindRequest builds a query with a fluent API. Criteria fold in the order they are added, see
// criteria.Compile. The first invalid criterion is kept and reported by Execute.
//
// A FindRequest is owned by one goroutine until it is executed.
type FindRequest[T any] struct {
	repo     *Repository[T]
	criteria []criteria.Criterion
	sort     []criteria.SortKey
	paging   Paging
	err      error
}

func newFindRequest[T any](repo *Repository[T], paging Paging) *FindRequest[T] {
	return &FindRequest[T]{repo: repo, paging: paging}
}

func (q *FindRequest[T]) add(role criteria.Role, field string, value interface{}, compare []criteria.Comparator) *FindRequest[T] {
	c := criteria.New(role, field, value, compare...)
	if err := c.Validate(); err != nil && q.err == nil {
		q.err = err
	}
	q.criteria = append(q.criteria, c)
	return q
}

// Find adds a conjunctive criterion. It is the same as And.
func (q *FindRequest[T]) Find(field string, value interface{}, compare ...criteria.Comparator) *FindRequest[T] {
	return q.add(criteria.Find, field, value, compare)
}

// And adds a conjunctive criterion.
func (q *FindRequest[T]) And(field string, value interface{}, compare ...criteria.Comparator) *FindRequest[T] {
	return q.add(criteria.And, field, value, compare)
}

// Or disjoins a criterion with everything added before it.
func (q *FindRequest[T]) Or(field string, value interface{}, compare ...criteria.Comparator) *FindRequest[T] {
	return q.add(criteria.Or, field, value, compare)
}

// Not conjoins the negation of a criterion.
func (q *FindRequest[T]) Not(field string, value interface{}, compare ...criteria.Comparator) *FindRequest[T] {
	return q.add(criteria.Not, field, value, compare)
}

// Sort appends a sort key. Earlier keys take precedence.
func (q *FindRequest[T]) Sort(field string, ascending bool) *FindRequest[T] {
	q.sort = append(q.sort, criteria.SortKey{Field: field, Ascending: ascending})
	return q
}

// SetPage changes the requested page.
func (q *FindRequest[T]) SetPage(page int) *FindRequest[T] {
	q.paging.SetPage(page)
	return q
}

// SetItemsPerPage changes the page size.
func (q *FindRequest[T]) SetItemsPerPage(itemsPerPage int) *FindRequest[T] {
	q.paging.SetItemsPerPage(itemsPerPage)
	return q
}

// SetLimitUp changes the result cap.
func (q *FindRequest[T]) SetLimitUp(limitUp int) *FindRequest[T] {
	q.paging.SetLimitUp(limitUp)
	return q
}

// Paging returns the current paging window.
func (q *FindRequest[T]) Paging() Paging {
	return q.paging
}

// Criteria returns a copy of the criteria added so far.
func (q *FindRequest[T]) Criteria() []criteria.Criterion {
	out := make([]criteria.Criterion, len(q.criteria))
	copy(out, q.criteria)
	return out
}

// Compile returns the filter and the ordering of the request.
func (q *FindRequest[T]) Compile() (criteria.Predicate, criteria.Ordering, error) {
	if q.err != nil {
		return nil, nil, q.err
	}
	filter, err := criteria.Compile(q.criteria)
	if err != nil {
		return nil, nil, err
	}
	return filter, criteria.CompileSort(q.sort), nil
}

// Execute runs the query and waits for the page.
func (q *FindRequest[T]) Execute(ctx context.Context) (*Page[T], error) {
	future, err := q.ExecuteAsync(ctx)
	if err != nil {
		return nil, err
	}
	return future.Await()
}

// ExecuteAsync starts the query in the background. Configuration errors are returned here,
// before anything is started; store errors are returned by the future.
func (q *FindRequest[T]) ExecuteAsync(ctx context.Context) (*Future[*Page[T]], error) {
	filter, order, err := q.Compile()
	if err != nil {
		return nil, err
	}
	paging := q.paging
	if err := paging.Err(); err != nil {
		return nil, err
	}

	var skip, limit int64
	if paging.Applied() {
		skip, limit = int64(paging.Skip()), int64(paging.Take())
	}
	return Go(func() (*Page[T], error) {
		items, err := q.repo.find(ctx, filter, order, skip, limit)
		if err != nil {
			return nil, err
		}
		return &Page[T]{
			Items:        items,
			Page:         paging.Page(),
			ItemsPerPage: paging.ItemsPerPage(),
			TotalPages:   paging.TotalPages(),
		}, nil
	}), nil
}
