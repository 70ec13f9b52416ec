package search

import (
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"sync"
	"testing"
	"time"

	"betterbuy/pkg/bestbuy"
	"betterbuy/pkg/dataset"
	"betterbuy/pkg/models"
)

// fakeUpstream stands in for both the search API and the staff-price API.
type fakeUpstream struct {
	totalPages int

	mu        sync.Mutex
	pagesSeen []int
	failPages map[int]bool
	gates     map[int]chan struct{} // page blocks until its gate is closed
}

func newFakeUpstream(totalPages int) *fakeUpstream {
	return &fakeUpstream{
		totalPages: totalPages,
		failPages:  map[int]bool{},
		gates:      map[int]chan struct{}{},
	}
}

// gate makes the given page hang until the returned function is called. The
// probe always hits page 1, so gates are normally placed on later pages.
func (f *fakeUpstream) gate(page int) func() {
	ch := make(chan struct{})
	f.mu.Lock()
	f.gates[page] = ch
	f.mu.Unlock()
	var once sync.Once
	return func() { once.Do(func() { close(ch) }) }
}

func (f *fakeUpstream) seen() []int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]int(nil), f.pagesSeen...)
}

func (f *fakeUpstream) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if strings.HasPrefix(r.URL.Path, "/staff/") {
		f.serveStaff(w, r)
		return
	}
	f.serveSearch(w, r)
}

func (f *fakeUpstream) serveSearch(w http.ResponseWriter, r *http.Request) {
	page, _ := strconv.Atoi(r.URL.Query().Get("page"))

	f.mu.Lock()
	f.pagesSeen = append(f.pagesSeen, page)
	gate := f.gates[page]
	fail := f.failPages[page]
	f.mu.Unlock()

	if gate != nil {
		<-gate
	}
	if fail {
		http.Error(w, "upstream unavailable", http.StatusInternalServerError)
		return
	}

	// two products per page, one of them staff-price eligible
	fmt.Fprintf(w, `{
		"currentPage": %d,
		"total": %d,
		"totalPages": %d,
		"pageSize": 100,
		"products": [
			{"sku": "%d0001", "name": "Widget p%d", "productUrl": "/en-ca/product/w/%d0001", "salePrice": 100.00},
			{"sku": "B%d0002", "name": "Bundle p%d", "productUrl": "/en-ca/product/b/%d0002", "salePrice": 50.00}
		]
	}`, page, f.totalPages*2, f.totalPages, page, page, page, page, page, page)
}

func (f *fakeUpstream) serveStaff(w http.ResponseWriter, r *http.Request) {
	skus := strings.Split(strings.TrimPrefix(r.URL.Path, "/staff/"), ",")
	var records []string
	for _, sku := range skus {
		records = append(records, fmt.Sprintf(
			`{"sku": "%s", "spAllowed": "Y", "currentPrice": 100.00, "staffPrice": 80.00, "skuDesc": "STAFF %s"}`,
			sku, sku))
	}
	fmt.Fprintf(w, `{"records": %d, "staffPriceDetailList": [%s]}`, len(records), strings.Join(records, ","))
}

func newTestRunner(t *testing.T, upstream *fakeUpstream, pageGuard int) (*Runner, *dataset.Store) {
	t.Helper()
	ts := httptest.NewServer(upstream)
	t.Cleanup(ts.Close)

	client := bestbuy.NewClient(bestbuy.Options{
		SearchBaseURL:     ts.URL + "/search",
		StaffPriceBaseURL: ts.URL + "/staff/",
		Timeout:           5 * time.Second,
	})
	store := dataset.New()
	return New(client, store, nil, pageGuard), store
}

func waitIdle(t *testing.T, r *Runner) {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		if !r.InProgress() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal("run did not finish in time")
}

func TestStartMergesAllPages(t *testing.T) {
	runner, store := newTestRunner(t, newFakeUpstream(3), 300)

	info, err := runner.Start("", "widget")
	if err != nil {
		t.Fatal(err)
	}
	if info.TotalPages != 3 || info.FromPage != 1 || info.ToPage != 3 {
		t.Errorf("unexpected start info: %+v", info)
	}
	if info.RunID == "" {
		t.Error("expected a run id")
	}

	waitIdle(t, runner)

	items := store.All()
	if len(items) != 6 {
		t.Fatalf("got %d items, want 6", len(items))
	}

	bySku := map[string]models.Item{}
	for _, it := range items {
		bySku[it.Sku] = it
	}
	// the eligible product carries the staff price and the STAFF name
	it, ok := bySku["10001"]
	if !ok {
		t.Fatal("missing item 10001")
	}
	if it.StaffPrice != 80.00 || it.Name != "STAFF 10001" {
		t.Errorf("staff merge not applied: %+v", it)
	}
	if it.DiscountFlat != 20.00 || it.DiscountPercent != 20.0 {
		t.Errorf("discounts = %v%% / $%v", it.DiscountPercent, it.DiscountFlat)
	}
	// the B-prefixed product is never sent to the staff-price endpoint
	bit, ok := bySku["B10002"]
	if !ok {
		t.Fatal("missing item B10002")
	}
	if bit.StaffPrice != 50.00 || bit.DiscountFlat != 0 {
		t.Errorf("excluded sku picked up a discount: %+v", bit)
	}
}

func TestStartRejectsTooManyPages(t *testing.T) {
	runner, store := newTestRunner(t, newFakeUpstream(372), 300)

	_, err := runner.Start("", "tv")
	var tooMany *models.TooManyPagesError
	if !errors.As(err, &tooMany) {
		t.Fatalf("expected TooManyPagesError, got %v", err)
	}
	if tooMany.Pages != 372 || tooMany.Limit != 300 {
		t.Errorf("unexpected error payload: %+v", tooMany)
	}
	if store.Len() != 0 {
		t.Errorf("dataset should be untouched, has %d items", store.Len())
	}
	if runner.InProgress() {
		t.Error("runner should be idle after a guarded abort")
	}
}

func TestStartProbeFailure(t *testing.T) {
	upstream := newFakeUpstream(2)
	upstream.failPages[1] = true
	runner, store := newTestRunner(t, upstream, 300)

	if _, err := runner.Start("", "tv"); !errors.Is(err, models.ErrProbeFailed) {
		t.Fatalf("expected ErrProbeFailed, got %v", err)
	}
	if store.Len() != 0 {
		t.Errorf("dataset should be untouched, has %d items", store.Len())
	}

	// the slot must be released so a later trigger can run
	upstream.mu.Lock()
	upstream.failPages[1] = false
	upstream.mu.Unlock()
	if _, err := runner.Start("", "tv"); err != nil {
		t.Fatalf("slot not released after probe failure: %v", err)
	}
	waitIdle(t, runner)
}

func TestFailedPageIsSkipped(t *testing.T) {
	upstream := newFakeUpstream(2)
	runner, store := newTestRunner(t, upstream, 300)

	// page 2 fails only on the fetch pass, not the probe
	upstream.mu.Lock()
	upstream.failPages[2] = true
	upstream.mu.Unlock()

	if _, err := runner.Start("", "widget"); err != nil {
		t.Fatal(err)
	}
	waitIdle(t, runner)

	items := store.All()
	if len(items) != 2 {
		t.Fatalf("got %d items, want only page 1's 2", len(items))
	}
	for _, it := range items {
		if strings.Contains(it.Sku, "2000") {
			t.Errorf("item from the failed page leaked in: %+v", it)
		}
	}

	st := runner.Status()
	if st.InProgress || st.PagesLeft != 0 {
		t.Errorf("run did not finalize cleanly: %+v", st)
	}
}

func TestSecondStartIsRejected(t *testing.T) {
	upstream := newFakeUpstream(2)
	release := upstream.gate(2)
	defer release()
	runner, store := newTestRunner(t, upstream, 300)

	info, err := runner.Start("", "widget")
	if err != nil {
		t.Fatal(err)
	}

	if _, err := runner.Start("", "other"); !errors.Is(err, models.ErrSearchInProgress) {
		t.Fatalf("expected ErrSearchInProgress, got %v", err)
	}
	if st := runner.Status(); st.RunID != info.RunID {
		t.Errorf("rejected trigger disturbed the active run: %+v", st)
	}

	release()
	waitIdle(t, runner)
	if store.Len() != 4 {
		t.Errorf("got %d items, want 4", store.Len())
	}
}

func TestCancel(t *testing.T) {
	upstream := newFakeUpstream(3)
	release := upstream.gate(3)
	defer release()
	runner, store := newTestRunner(t, upstream, 300)

	if _, err := runner.Start("", "widget"); err != nil {
		t.Fatal(err)
	}

	if !runner.Cancel() {
		t.Error("expected Cancel to report an active run")
	}
	waitIdle(t, runner)

	// page 3 is still held; nothing from it may ever be appended
	release()
	time.Sleep(50 * time.Millisecond)
	for _, it := range store.All() {
		if strings.HasPrefix(it.Sku, "3000") {
			t.Errorf("item appended after cancellation: %+v", it)
		}
	}

	if runner.Cancel() {
		t.Error("Cancel with no active run should report false")
	}
}

func TestStartRangeSequential(t *testing.T) {
	upstream := newFakeUpstream(5)
	runner, store := newTestRunner(t, upstream, 300)

	info, err := runner.StartRange("", "widget", 2, 0)
	if err != nil {
		t.Fatal(err)
	}
	if info.FromPage != 2 || info.ToPage != 5 {
		t.Errorf("range not clamped to probe: %+v", info)
	}
	waitIdle(t, runner)

	if store.Len() != 8 {
		t.Errorf("got %d items, want 8 (pages 2..5)", store.Len())
	}

	// beyond the probe, page 1 must not have been fetched again
	for _, p := range upstream.seen()[1:] {
		if p == 1 {
			t.Error("sequential range re-fetched page 1")
		}
	}
}

func TestStartRangeIgnoresPageGuard(t *testing.T) {
	runner, store := newTestRunner(t, newFakeUpstream(4), 3)

	info, err := runner.StartRange("", "widget", 0, 0)
	if err != nil {
		t.Fatalf("guard must not apply to ranged runs: %v", err)
	}
	if info.FromPage != 1 || info.ToPage != 4 {
		t.Errorf("unexpected range: %+v", info)
	}
	waitIdle(t, runner)
	if store.Len() != 8 {
		t.Errorf("got %d items, want 8", store.Len())
	}
}

func TestClampRange(t *testing.T) {
	tests := []struct {
		name                   string
		from, to, total        int
		wantFrom, wantTo       int
	}{
		{"zero means full range", 0, 0, 10, 1, 10},
		{"in range untouched", 3, 7, 10, 3, 7},
		{"to clamped to total", 8, 99, 10, 8, 10},
		{"from clamped to total", 99, 0, 10, 10, 10},
		{"reversed bounds swap", 7, 3, 10, 3, 7},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			from, to := clampRange(tt.from, tt.to, tt.total)
			if from != tt.wantFrom || to != tt.wantTo {
				t.Errorf("clampRange(%d, %d, %d) = %d, %d; want %d, %d",
					tt.from, tt.to, tt.total, from, to, tt.wantFrom, tt.wantTo)
			}
		})
	}
}
