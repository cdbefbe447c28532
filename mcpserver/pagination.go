package mcpserver

import (
	"github.com/google/uuid"
)

// initialCursor keys the first page. It never appears on the wire: clients
// request the first page by omitting the cursor.
const initialCursor = "\x00initial"

// Page is one slice of a paginated collection. Cursor addresses the next
// page; an empty Cursor marks the last page.
type Page[T any] struct {
	Items  []T
	Cursor string
}

// IsLast reports whether no further pages follow.
func (p Page[T]) IsLast() bool { return p.Cursor == "" }

// Pagination splits an ordered collection into cursor-linked pages. It is
// built once and is immutable afterwards, so it is safe for concurrent use.
type Pagination[T any] struct {
	items []T
	byKey map[string]int
	pages map[string]Page[T]
	first string
}

// NewPagination builds the pages for items. A pageSize of zero (or less)
// disables pagination: a single page holds every item. key names each item
// for Get; items with duplicate keys are reachable by iteration only through
// the first.
func NewPagination[T any](items []T, pageSize int, key func(T) string) *Pagination[T] {
	p := &Pagination[T]{
		items: append([]T(nil), items...),
		byKey: make(map[string]int, len(items)),
		pages: make(map[string]Page[T]),
		first: initialCursor,
	}
	if key != nil {
		for i, it := range p.items {
			k := key(it)
			if _, dup := p.byKey[k]; !dup {
				p.byKey[k] = i
			}
		}
	}

	if pageSize <= 0 || len(p.items) <= pageSize {
		p.pages[initialCursor] = Page[T]{Items: p.items}
		return p
	}

	at := initialCursor
	for start := 0; start < len(p.items); start += pageSize {
		end := start + pageSize
		next := ""
		if end < len(p.items) {
			next = uuid.NewString()
		} else {
			end = len(p.items)
		}
		p.pages[at] = Page[T]{Items: p.items[start:end:end], Cursor: next}
		at = next
	}
	return p
}

// Page returns the page addressed by cursor. An empty cursor selects the
// first page. Unknown cursors report false.
func (p *Pagination[T]) Page(cursor string) (Page[T], bool) {
	if cursor == "" {
		cursor = p.first
	} else if cursor == initialCursor {
		return Page[T]{}, false
	}
	pg, ok := p.pages[cursor]
	return pg, ok
}

// Get looks up a single item by key.
func (p *Pagination[T]) Get(key string) (T, bool) {
	i, ok := p.byKey[key]
	if !ok {
		var zero T
		return zero, false
	}
	return p.items[i], true
}

// All returns every item in original order.
func (p *Pagination[T]) All() []T { return p.items }

// Len is the number of items.
func (p *Pagination[T]) Len() int { return len(p.items) }

// PageCount is the number of pages.
func (p *Pagination[T]) PageCount() int { return len(p.pages) }
