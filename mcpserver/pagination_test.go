package mcpserver

import (
	"fmt"
	"slices"
	"strconv"
	"testing"
)

func collect(t *testing.T, p *Pagination[int]) []int {
	t.Helper()
	var out []int
	cursor := ""
	for range p.PageCount() + 1 {
		pg, ok := p.Page(cursor)
		if !ok {
			t.Fatalf("cursor %q not found", cursor)
		}
		out = append(out, pg.Items...)
		if pg.IsLast() {
			return out
		}
		cursor = pg.Cursor
	}
	t.Fatal("pagination did not terminate")
	return nil
}

func TestPaginationCompleteness(t *testing.T) {
	for _, size := range []int{1, 2, 3, 5, 10} {
		for _, n := range []int{0, 1, size - 1, size, size + 1, 2 * size, 2*size + 1, 17} {
			t.Run(fmt.Sprintf("n=%d/p=%d", n, size), func(t *testing.T) {
				items := make([]int, n)
				for i := range items {
					items[i] = i
				}
				p := NewPagination(items, size, strconv.Itoa)
				got := collect(t, p)
				if !slices.Equal(got, items) {
					t.Fatalf("got %v, want %v", got, items)
				}
				want := (n + size - 1) / size
				if want == 0 {
					want = 1
				}
				if p.PageCount() != want {
					t.Fatalf("page count = %d, want %d", p.PageCount(), want)
				}
			})
		}
	}
}

func TestPaginationDisabled(t *testing.T) {
	p := NewPagination([]int{1, 2, 3}, 0, nil)
	pg, ok := p.Page("")
	if !ok || len(pg.Items) != 3 || !pg.IsLast() {
		t.Fatalf("page = %+v", pg)
	}
	if p.PageCount() != 1 {
		t.Fatalf("page count = %d", p.PageCount())
	}
}

func TestPaginationCursorLookup(t *testing.T) {
	p := NewPagination([]string{"tool1", "tool2"}, 1, func(s string) string { return s })

	first, ok := p.Page("")
	if !ok || !slices.Equal(first.Items, []string{"tool1"}) || first.Cursor == "" {
		t.Fatalf("first = %+v", first)
	}
	second, ok := p.Page(first.Cursor)
	if !ok || !slices.Equal(second.Items, []string{"tool2"}) || second.Cursor != "" {
		t.Fatalf("second = %+v", second)
	}

	if _, ok := p.Page("bogus"); ok {
		t.Fatal("unknown cursor must not resolve")
	}
	if _, ok := p.Page(initialCursor); ok {
		t.Fatal("internal sentinel must not be addressable")
	}
}

func TestPaginationGetAll(t *testing.T) {
	p := NewPagination([]string{"a", "b", "c"}, 2, func(s string) string { return "k-" + s })
	if v, ok := p.Get("k-b"); !ok || v != "b" {
		t.Fatalf("Get = %q, %v", v, ok)
	}
	if _, ok := p.Get("b"); ok {
		t.Fatal("lookup is by key")
	}
	if !slices.Equal(p.All(), []string{"a", "b", "c"}) {
		t.Fatalf("All = %v", p.All())
	}
}
