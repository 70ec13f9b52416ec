// Package dataset holds the merged items of the most recent search run, in
// page-completion order until a sort is applied.
package dataset

import (
	"sort"
	"sync"

	"betterbuy/pkg/models"
)

// Column identifies a sortable table column.
type Column int

const (
	ColumnNone Column = iota
	ColumnRegularPrice
	ColumnStaffPrice
	ColumnDiscountPercent
	ColumnDiscountFlat
)

// ParseColumn maps the wire name of a column to its Column value.
func ParseColumn(name string) (Column, bool) {
	switch name {
	case "regular_price":
		return ColumnRegularPrice, true
	case "staff_price":
		return ColumnStaffPrice, true
	case "discount_percent":
		return ColumnDiscountPercent, true
	case "discount_flat":
		return ColumnDiscountFlat, true
	}
	return ColumnNone, false
}

func (c Column) String() string {
	switch c {
	case ColumnRegularPrice:
		return "regular_price"
	case ColumnStaffPrice:
		return "staff_price"
	case ColumnDiscountPercent:
		return "discount_percent"
	case ColumnDiscountFlat:
		return "discount_flat"
	}
	return ""
}

func (c Column) key(item models.Item) float64 {
	switch c {
	case ColumnRegularPrice:
		return item.RegularPrice
	case ColumnStaffPrice:
		return item.StaffPrice
	case ColumnDiscountPercent:
		return item.DiscountPercent
	case ColumnDiscountFlat:
		return item.DiscountFlat
	}
	return 0
}

// Direction is a sort direction. Descending is the default for every column.
type Direction int

const (
	Descending Direction = iota
	Ascending
)

// ParseDirection maps a wire direction name to its Direction value. An empty
// name means the default.
func ParseDirection(name string) (Direction, bool) {
	switch name {
	case "", "desc":
		return Descending, true
	case "asc":
		return Ascending, true
	}
	return Descending, false
}

// Store is the ordered collection of merged items. During a run it is mutated
// only by the run's collector; between runs it belongs to the HTTP layer.
type Store struct {
	mu     sync.RWMutex
	items  []models.Item
	sorted Column
	dir    Direction
}

func New() *Store {
	return &Store{}
}

// Append adds items in page-completion order. Any active sort is invalidated;
// ordering is only guaranteed after an explicit SortBy.
func (s *Store) Append(items ...models.Item) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.items = append(s.items, items...)
	s.sorted = ColumnNone
}

// Replace swaps the whole dataset, e.g. after a CSV import.
func (s *Store) Replace(items []models.Item) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.items = items
	s.sorted = ColumnNone
}

func (s *Store) Clear() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.items = nil
	s.sorted = ColumnNone
	s.dir = Descending
}

func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.items)
}

// SortBy orders the dataset by the given column, stable for equal keys.
// Re-sorting by the already-active column and direction is a no-op and
// reports false, so callers can skip a redundant re-render.
func (s *Store) SortBy(col Column, dir Direction) bool {
	if col == ColumnNone {
		return false
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.sorted == col && s.dir == dir {
		return false
	}

	sort.SliceStable(s.items, func(i, j int) bool {
		a, b := col.key(s.items[i]), col.key(s.items[j])
		if dir == Ascending {
			return a < b
		}
		return a > b
	})
	s.sorted = col
	s.dir = dir
	return true
}

// SortColumn returns the currently-active sort column, or ColumnNone.
func (s *Store) SortColumn() Column {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.sorted
}

// Page returns one 1-based page of the dataset and the total page count.
func (s *Store) Page(page, size int) ([]models.Item, int) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if size <= 0 {
		return nil, 0
	}
	totalPages := (len(s.items) + size - 1) / size
	if page < 1 || page > totalPages {
		return nil, totalPages
	}

	start := (page - 1) * size
	end := start + size
	if end > len(s.items) {
		end = len(s.items)
	}

	out := make([]models.Item, end-start)
	copy(out, s.items[start:end])
	return out, totalPages
}

// All returns a copy of the dataset in its current order.
func (s *Store) All() []models.Item {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]models.Item, len(s.items))
	copy(out, s.items)
	return out
}
