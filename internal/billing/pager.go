package billing

import "context"

// Page is one response of a cursor-paginated listing.
type Page[T any] struct {
	Items      []T
	NextCursor string
	HasMore    bool
}

// PageFunc fetches the page starting at cursor. The first call receives "".
type PageFunc[T any] func(ctx context.Context, cursor string) (Page[T], error)

// Pager adapts a PageFunc to Iter, fetching pages only as items are consumed.
type Pager[T any] struct {
	ctx   context.Context
	fetch PageFunc[T]

	buf     []T
	idx     int
	cursor  string
	more    bool
	started bool

	cur T
	err error
}

// NewPager returns an iterator over every item fetch yields.
func NewPager[T any](ctx context.Context, fetch PageFunc[T]) *Pager[T] {
	return &Pager[T]{ctx: ctx, fetch: fetch}
}

func (p *Pager[T]) Next() bool {
	if p.err != nil {
		return false
	}

	for p.idx >= len(p.buf) {
		if p.started && !p.more {
			return false
		}
		if err := p.ctx.Err(); err != nil {
			p.err = err
			return false
		}

		page, err := p.fetch(p.ctx, p.cursor)
		if err != nil {
			p.err = err
			return false
		}

		p.started = true
		p.buf = page.Items
		p.idx = 0
		p.cursor = page.NextCursor
		// an empty page ends the walk even if the provider claims more
		p.more = page.HasMore && len(page.Items) > 0
	}

	p.cur = p.buf[p.idx]
	p.idx++
	return true
}

func (p *Pager[T]) Current() T {
	return p.cur
}

func (p *Pager[T]) Err() error {
	return p.err
}
