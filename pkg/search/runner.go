// Package search drives one end-to-end search run: probe the first page for
// the total page count, fan page fetches out against the search API, pair each
// page with its staff-price batch lookup, and feed the merged records into the
// dataset as pages settle.
package search

import (
	"sync"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"betterbuy/pkg/bestbuy"
	"betterbuy/pkg/cache"
	"betterbuy/pkg/dataset"
	"betterbuy/pkg/logger"
	"betterbuy/pkg/merge"
	"betterbuy/pkg/models"
)

// startedProgress distinguishes "just started" from "not started" in the UI.
const startedProgress = 0.02

// Runner owns the run lifecycle. At most one run is active at a time; a
// trigger while one is active is rejected without touching any state.
type Runner struct {
	client    *bestbuy.Client
	store     *dataset.Store
	cache     *cache.Cache // optional; nil disables staff-price caching
	pageGuard int

	mu  sync.Mutex
	cur *run
}

// run is the state of one search from trigger to finalization.
type run struct {
	id         string
	categoryID string
	query      string
	sequential bool

	mu         sync.Mutex
	totalPages int
	pages      int
	pagesLeft  int
	progress   float64
	cancelled  bool
	finished   bool
	cancelCh   chan struct{}
}

// Status is a point-in-time snapshot of the current run, zero when idle.
type Status struct {
	RunID      string  `json:"run_id,omitempty"`
	InProgress bool    `json:"in_progress"`
	Progress   float64 `json:"progress"`
	TotalPages int     `json:"total_pages"`
	PagesLeft  int     `json:"pages_left"`
}

// StartInfo describes a successfully launched run.
type StartInfo struct {
	RunID      string `json:"run_id"`
	TotalPages int    `json:"total_pages"`
	FromPage   int    `json:"from_page"`
	ToPage     int    `json:"to_page"`
}

type pageResult struct {
	page  int
	ok    bool
	items []models.Item
}

func New(client *bestbuy.Client, store *dataset.Store, c *cache.Cache, pageGuard int) *Runner {
	return &Runner{
		client:    client,
		store:     store,
		cache:     c,
		pageGuard: pageGuard,
	}
}

// Start launches the fast path: probe, enforce the page-count guard, then
// fetch every page concurrently. Pages complete in arbitrary order; the
// dataset is sorted before display, so that is fine.
func (r *Runner) Start(categoryID, query string) (StartInfo, error) {
	return r.start(categoryID, query, 0, 0, false)
}

// StartRange launches the slow path for operator-confirmed large runs: the
// guard is not applied, the page range is clamped to what the probe reports,
// and pages are fetched one at a time to keep burst load down.
func (r *Runner) StartRange(categoryID, query string, fromPage, toPage int) (StartInfo, error) {
	return r.start(categoryID, query, fromPage, toPage, true)
}

func (r *Runner) start(categoryID, query string, from, to int, sequential bool) (StartInfo, error) {
	ru := &run{
		id:         uuid.NewString(),
		categoryID: categoryID,
		query:      query,
		sequential: sequential,
		cancelCh:   make(chan struct{}),
	}

	r.mu.Lock()
	if r.cur != nil {
		r.mu.Unlock()
		return StartInfo{}, models.ErrSearchInProgress
	}
	// Reserve the single run slot through the probe, so a second trigger is
	// rejected even before the page count is known.
	r.cur = ru
	r.mu.Unlock()

	log.Info().
		Str("run_id", ru.id).
		Str("category_id", categoryID).
		Str("query", query).
		Bool("sequential", sequential).
		Msg("Probing search")

	first := r.client.FetchSearchPage(categoryID, 1, query)
	if first == nil || first.TotalPages <= 0 {
		r.drop(ru)
		return StartInfo{}, models.ErrProbeFailed
	}
	total := first.TotalPages

	if !sequential && total >= r.pageGuard {
		r.drop(ru)
		return StartInfo{}, &models.TooManyPagesError{Pages: total, Limit: r.pageGuard}
	}

	fromPage, toPage := 1, total
	if sequential {
		fromPage, toPage = clampRange(from, to, total)
	}
	pages := toPage - fromPage + 1

	r.store.Clear()

	ru.mu.Lock()
	ru.totalPages = total
	ru.pages = pages
	ru.pagesLeft = pages
	ru.progress = startedProgress
	ru.mu.Unlock()

	// Buffered to the page count: fetchers never block on a collector that
	// has already stopped listening after a cancellation.
	results := make(chan pageResult, pages)

	if sequential {
		go func() {
			for page := fromPage; page <= toPage; page++ {
				if ru.isCancelled() {
					return
				}
				r.fetchCombined(ru, page, results)
			}
		}()
	} else {
		for page := fromPage; page <= toPage; page++ {
			go r.fetchCombined(ru, page, results)
		}
	}
	go r.collect(ru, results)

	return StartInfo{RunID: ru.id, TotalPages: total, FromPage: fromPage, ToPage: toPage}, nil
}

// Cancel requests cooperative cancellation of the current run. Pages not yet
// issued stay unissued; completions that straggle in afterwards are ignored.
// In-flight requests are not aborted. Reports whether a run was cancelled.
func (r *Runner) Cancel() bool {
	r.mu.Lock()
	cur := r.cur
	r.mu.Unlock()
	if cur == nil {
		return false
	}
	return cur.cancel()
}

// Status snapshots the current run; the zero Status means idle.
func (r *Runner) Status() Status {
	r.mu.Lock()
	cur := r.cur
	r.mu.Unlock()
	if cur == nil {
		return Status{}
	}

	cur.mu.Lock()
	defer cur.mu.Unlock()
	return Status{
		RunID:      cur.id,
		InProgress: !cur.finished,
		Progress:   cur.progress,
		TotalPages: cur.totalPages,
		PagesLeft:  cur.pagesLeft,
	}
}

// InProgress reports whether a run is currently active.
func (r *Runner) InProgress() bool {
	return r.Status().InProgress
}

// fetchCombined performs one page's combined fetch: the search page, then,
// only when the page yields eligible SKUs, the staff-price batch for exactly
// that page. A failed search page is a page failure; a failed staff-price
// lookup is not, the page just merges without discounts.
func (r *Runner) fetchCombined(ru *run, page int, results chan<- pageResult) {
	resp := r.client.FetchSearchPage(ru.categoryID, page, ru.query)
	if resp == nil {
		results <- pageResult{page: page}
		return
	}

	var details []bestbuy.StaffPriceDetail
	if skus := merge.EligibleSkus(resp.Products); len(skus) > 0 {
		details = r.staffPrices(skus)
	}

	results <- pageResult{page: page, ok: true, items: merge.Page(resp.Products, details)}
}

// staffPrices resolves a SKU batch, serving from the cache first when one is
// configured and fetching only the misses. Returns nil when nothing usable
// could be resolved.
func (r *Runner) staffPrices(skus []string) []bestbuy.StaffPriceDetail {
	if r.cache == nil {
		resp := r.client.FetchStaffPrices(skus)
		if resp == nil {
			log.Warn().Int("skus", len(skus)).Msg("Staff-price lookup failed; merging page without discounts")
			return nil
		}
		return resp.StaffPriceDetailList
	}

	details, missing := r.cache.GetMany(skus)
	if len(details) > 0 {
		log.Debug().Int("hits", len(details)).Int("misses", len(missing)).Msg("Staff-price cache")
	}
	if len(missing) > 0 {
		resp := r.client.FetchStaffPrices(missing)
		if resp == nil {
			log.Warn().Int("skus", len(missing)).Msg("Staff-price lookup failed; merging page with cached records only")
		} else {
			r.cache.SetMany(resp.StaffPriceDetailList)
			details = append(details, resp.StaffPriceDetailList...)
		}
	}
	return details
}

// collect is the run's single mutation point: page completions from any
// number of fetch goroutines are applied to the dataset here, one at a time,
// so appends stay atomic even though their order is arbitrary.
func (r *Runner) collect(ru *run, results <-chan pageResult) {
	ru.mu.Lock()
	remaining := ru.pages
	ru.mu.Unlock()

loop:
	for remaining > 0 {
		select {
		case res := <-results:
			if ru.isCancelled() {
				break loop
			}
			if res.ok {
				r.store.Append(res.items...)
			} else {
				log.Warn().Str("run_id", ru.id).Int("page", res.page).Msg("Page failed; continuing without it")
			}
			remaining--
			ru.setProgress(remaining)
			logger.Dedup("Run %s: page settled", ru.id)
		case <-ru.cancelCh:
			break loop
		}
	}

	ru.mu.Lock()
	ru.finished = true
	ru.progress = 0
	ru.pagesLeft = 0
	cancelled := ru.cancelled
	ru.mu.Unlock()

	log.Info().
		Str("run_id", ru.id).
		Bool("cancelled", cancelled).
		Int("items", r.store.Len()).
		Msg("Search finished")

	r.drop(ru)
}

// drop releases the run slot if ru still owns it.
func (r *Runner) drop(ru *run) {
	ru.mu.Lock()
	ru.finished = true
	ru.mu.Unlock()

	r.mu.Lock()
	if r.cur == ru {
		r.cur = nil
	}
	r.mu.Unlock()
}

func (ru *run) cancel() bool {
	ru.mu.Lock()
	defer ru.mu.Unlock()
	if ru.finished || ru.cancelled {
		return false
	}
	ru.cancelled = true
	close(ru.cancelCh)
	return true
}

func (ru *run) isCancelled() bool {
	ru.mu.Lock()
	defer ru.mu.Unlock()
	return ru.cancelled
}

func (ru *run) setProgress(remaining int) {
	ru.mu.Lock()
	defer ru.mu.Unlock()
	ru.pagesLeft = remaining
	if ru.pages > 0 {
		ru.progress = float64(ru.pages-remaining) / float64(ru.pages)
	}
}

// clampRange normalizes an operator-supplied page range against the probed
// total. Zero values mean "from the start" / "to the end".
func clampRange(from, to, total int) (int, int) {
	if from < 1 {
		from = 1
	}
	if to < 1 || to > total {
		to = total
	}
	if from > total {
		from = total
	}
	if from > to {
		from, to = to, from
	}
	return from, to
}
