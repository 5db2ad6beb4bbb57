package option

import (
	"strings"

	"gorm.io/gorm"
)

// QueryOption mutates a gorm statement before it is executed.
type QueryOption interface {
	Apply(stmt *gorm.DB) *gorm.DB
}

type sortBy struct {
	column    string
	direction string
}

func (s sortBy) Apply(stmt *gorm.DB) *gorm.DB {
	if s.column == "" {
		return stmt
	}
	return stmt.Order(s.column + " " + s.direction)
}

// SortSpec is a validated column and direction pair.
type SortSpec struct {
	Column    string
	Direction string
}

// WithQuerySortBy resolves a user supplied sort column against an allowlist.
// Unknown columns resolve to the fallback.
func WithQuerySortBy(column, order string, allowed map[string]bool, fallback string) SortSpec {
	column = strings.ToLower(strings.TrimSpace(column))
	if !allowed[column] {
		column = fallback
	}
	direction := "asc"
	if strings.EqualFold(strings.TrimSpace(order), "desc") {
		direction = "desc"
	}
	return SortSpec{Column: column, Direction: direction}
}

func WithSortBy(spec SortSpec) QueryOption {
	return sortBy{column: spec.Column, direction: spec.Direction}
}
