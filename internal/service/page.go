package service

import (
	"strconv"

	appErrors "github.com/htyf-mp-community/Thread-Rest/pkg/errors"
)

const (
	DefaultPageSize = 10
	MaxPageSize     = 100
)

// Page is one slice of a cursor-paginated list. Meta.LastOffset is the
// cursor for the next page and is null once a page comes back short.
type Page[T any] struct {
	Data []T      `json:"data"`
	Meta PageMeta `json:"meta"`
}

type PageMeta struct {
	LastOffset *string `json:"lastOffset"`
	PageSize   int     `json:"pageSize"`
}

// PageSize clamps a requested page size into [1, MaxPageSize]. Zero and
// negative values select the default.
func PageSize(n int) int {
	switch {
	case n <= 0:
		return DefaultPageSize
	case n > MaxPageSize:
		return MaxPageSize
	default:
		return n
	}
}

func newPage[T any](data []T, pageSize int, last func(T) string) *Page[T] {
	p := &Page[T]{Data: data, Meta: PageMeta{PageSize: pageSize}}
	if len(data) == pageSize && pageSize > 0 {
		offset := last(data[len(data)-1])
		p.Meta.LastOffset = &offset
	}
	return p
}

// parseIDCursor reads an ascending integer cursor. An empty cursor starts
// from the beginning.
func parseIDCursor(cursor string) (int64, error) {
	if cursor == "" {
		return 0, nil
	}
	id, err := strconv.ParseInt(cursor, 10, 64)
	if err != nil || id < 0 {
		return 0, appErrors.ErrInvalidCursor
	}
	return id, nil
}

func formatID(id int64) string {
	return strconv.FormatInt(id, 10)
}
