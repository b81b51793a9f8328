package repository

import "fmt"

// Paging derives the skip/take window of a page. Every setter recomputes the derived values,
// so a Paging never holds a window that disagrees with its inputs.
//
// A page below 1 leaves paging unset and the whole result set is returned. On the last page
// take shrinks to the remainder of limitUp.
type Paging struct {
	page         int
	itemsPerPage int
	limitUp      int

	skip       int
	take       int
	totalPages int
	applied    bool
	err        error
}

// NewPaging builds a window for page (1-based) of itemsPerPage results, capped at limitUp.
func NewPaging(page, itemsPerPage, limitUp int) Paging {
	p := Paging{page: page, itemsPerPage: itemsPerPage, limitUp: limitUp}
	p.recompute()
	return p
}

// SetPage changes the page and recomputes the window.
func (p *Paging) SetPage(page int) {
	p.page = page
	p.recompute()
}

// SetItemsPerPage changes the page size and recomputes the window.
func (p *Paging) SetItemsPerPage(itemsPerPage int) {
	p.itemsPerPage = itemsPerPage
	p.recompute()
}

// SetLimitUp changes the result cap and recomputes the window.
func (p *Paging) SetLimitUp(limitUp int) {
	p.limitUp = limitUp
	p.recompute()
}

func (p *Paging) recompute() {
	p.skip, p.take, p.totalPages, p.applied, p.err = 0, 0, 0, false, nil

	zeroBasedPage := p.page - 1
	if zeroBasedPage < 0 {
		return
	}
	if p.itemsPerPage <= 0 {
		p.err = fmt.Errorf("%w: items per page must be positive, got %d", ErrInvalidPaging, p.itemsPerPage)
		return
	}
	if p.limitUp <= 0 {
		p.err = fmt.Errorf("%w: results limit must be positive, got %d", ErrInvalidPaging, p.limitUp)
		return
	}

	p.applied = true
	p.skip = zeroBasedPage * p.itemsPerPage
	p.totalPages = (p.limitUp + p.itemsPerPage - 1) / p.itemsPerPage
	if p.page == p.totalPages {
		p.take = p.limitUp - (p.totalPages-1)*p.itemsPerPage
	} else {
		p.take = p.itemsPerPage
	}
}

// Page is the 1-based page number.
func (p Paging) Page() int { return p.page }

// ItemsPerPage is the page size.
func (p Paging) ItemsPerPage() int { return p.itemsPerPage }

// LimitUp is the overall result cap.
func (p Paging) LimitUp() int { return p.limitUp }

// Skip is the number of results before the page.
func (p Paging) Skip() int { return p.skip }

// Take is the number of results on the page.
func (p Paging) Take() int { return p.take }

// TotalPages is ceil(limitUp / itemsPerPage).
func (p Paging) TotalPages() int { return p.totalPages }

// Applied reports whether a window is in effect.
func (p Paging) Applied() bool { return p.applied }

// Err returns the configuration error of the current inputs, if any.
func (p Paging) Err() error { return p.err }
