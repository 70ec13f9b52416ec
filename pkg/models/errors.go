package models

import (
	"errors"
	"fmt"
)

var (
	// ErrSearchInProgress is returned when a search is triggered while another
	// run is still active. Only one run may be in flight at a time.
	ErrSearchInProgress = errors.New("a search is already in progress")

	// ErrProbeFailed is returned when the first-page request yields no usable
	// total page count, so the run aborts before any dataset mutation.
	ErrProbeFailed = errors.New("search probe failed: no usable first-page response")
)

// TooManyPagesError is the page-count guard: fast-path runs that would load at
// least this many pages are cancelled outright instead of hammering the
// upstream search API.
type TooManyPagesError struct {
	Pages int
	Limit int
}

func (e *TooManyPagesError) Error() string {
	return fmt.Sprintf("search cancelled: it would load %d pages (limit %d)", e.Pages, e.Limit)
}
