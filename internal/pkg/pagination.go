package pkg

import (
	"github.com/simp-lee/pagination"
)

// CursorPage wraps one page of cursor-paged results. next and prev are the
// opaque cursors for the neighbouring pages; an empty cursor means there is
// no page in that direction.
func CursorPage[T any](items []T, limit int, next, prev string) *pagination.CursorPagination[T] {
	if items == nil {
		items = []T{}
	}
	page := &pagination.CursorPagination[T]{
		Items:     items,
		HasMore:   next != "",
		Limit:     limit,
		Direction: pagination.DirectionForward,
	}
	if next != "" {
		page.NextCursor = &next
	}
	if prev != "" {
		page.PreviousCursor = &prev
	}
	return page
}
