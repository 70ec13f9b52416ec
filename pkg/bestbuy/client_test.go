package bestbuy

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
)

func TestSearchURL(t *testing.T) {
	c := NewClient(Options{SearchBaseURL: "https://example.test/api/v2/json/search"})

	got := c.SearchURL("20003", 2, "projector stand")
	want := "https://example.test/api/v2/json/search" +
		"?categoryid=20003" +
		"&currentRegion=BC" +
		"&lang=en-CA" +
		"&page=2" +
		"&pageSize=100" +
		"&path=soldandshippedby0enrchstring%3ABest%20Buy" +
		"&query=projector+stand" +
		"&sortBy=price" +
		"&sortDir=desc"
	if got != want {
		t.Errorf("SearchURL:\n got %s\nwant %s", got, want)
	}

	// empty category means all categories, still present as an empty parameter
	if !strings.Contains(c.SearchURL("", 1, "tv"), "?categoryid=&") {
		t.Error("empty category id should produce an empty categoryid parameter")
	}
}

func TestStaffPriceURL(t *testing.T) {
	c := NewClient(Options{StaffPriceBaseURL: "https://staff.test/skus/"})

	got := c.StaffPriceURL([]string{"11657071", "10200521"})
	if got != "https://staff.test/skus/11657071,10200521" {
		t.Errorf("StaffPriceURL = %s", got)
	}
}

func TestFetchSearchPage(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Query().Get("page") != "1" {
			t.Errorf("unexpected page parameter: %s", r.URL.Query().Get("page"))
		}
		fmt.Fprint(w, `{
			"currentPage": 1,
			"total": 205,
			"totalPages": 3,
			"pageSize": 100,
			"products": [
				{"sku": "11657071", "name": "BenQ Projector", "productUrl": "/en-ca/product/benq/11657071", "salePrice": 949.99, "thumbnailImage": "https://img.test/11657071.jpg"}
			]
		}`)
	}))
	defer ts.Close()

	c := NewClient(Options{SearchBaseURL: ts.URL})

	resp := c.FetchSearchPage("", 1, "projector")
	if resp == nil {
		t.Fatal("expected a response, got nil")
	}
	if resp.TotalPages != 3 {
		t.Errorf("totalPages = %d, want 3", resp.TotalPages)
	}
	if len(resp.Products) != 1 || resp.Products[0].Sku != "11657071" {
		t.Errorf("unexpected products: %+v", resp.Products)
	}
}

func TestFetchSearchPageReturnsNilOnFailure(t *testing.T) {
	t.Run("invalid json", func(t *testing.T) {
		ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			fmt.Fprint(w, "<html>maintenance</html>")
		}))
		defer ts.Close()

		c := NewClient(Options{SearchBaseURL: ts.URL})
		if resp := c.FetchSearchPage("", 1, "tv"); resp != nil {
			t.Errorf("expected nil for undecodable body, got %+v", resp)
		}
	})

	t.Run("server error", func(t *testing.T) {
		ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			http.Error(w, "boom", http.StatusInternalServerError)
		}))
		defer ts.Close()

		c := NewClient(Options{SearchBaseURL: ts.URL})
		if resp := c.FetchSearchPage("", 1, "tv"); resp != nil {
			t.Errorf("expected nil for 500 response, got %+v", resp)
		}
	})

	t.Run("connection refused", func(t *testing.T) {
		c := NewClient(Options{SearchBaseURL: "http://127.0.0.1:1/api"})
		if resp := c.FetchSearchPage("", 1, "tv"); resp != nil {
			t.Errorf("expected nil for unreachable upstream, got %+v", resp)
		}
	})
}

func TestFetchStaffPrices(t *testing.T) {
	var requests int64
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt64(&requests, 1)
		if !strings.HasSuffix(r.URL.Path, "/11657071,10200521") {
			t.Errorf("unexpected path: %s", r.URL.Path)
		}
		fmt.Fprint(w, `{
			"records": 2,
			"staffPriceDetailList": [
				{"sku": 11657071, "spAllowed": "Y", "staffPrice": 949.99, "skuDesc": "BENQ DLP PROJ"},
				{"sku": 10200521, "spAllowed": "Y", "staffPrice": 55.91, "skuDesc": "TYGERCLAW MT"}
			]
		}`)
	}))
	defer ts.Close()

	c := NewClient(Options{StaffPriceBaseURL: ts.URL + "/skus/"})

	resp := c.FetchStaffPrices([]string{"11657071", "10200521"})
	if resp == nil {
		t.Fatal("expected a response, got nil")
	}
	if len(resp.StaffPriceDetailList) != 2 {
		t.Fatalf("got %d details", len(resp.StaffPriceDetailList))
	}
	// numeric SKUs must land in canonical string form
	if resp.StaffPriceDetailList[0].Sku != "11657071" {
		t.Errorf("sku = %q, want \"11657071\"", resp.StaffPriceDetailList[0].Sku)
	}
	if !resp.StaffPriceDetailList[0].Allowed() {
		t.Error("spAllowed Y should report allowed")
	}

	// an empty batch must not issue a request at all
	if resp := c.FetchStaffPrices(nil); resp != nil {
		t.Errorf("empty batch should yield nil, got %+v", resp)
	}
	if n := atomic.LoadInt64(&requests); n != 1 {
		t.Errorf("expected exactly 1 upstream request, got %d", n)
	}
}

func TestSkuUnmarshal(t *testing.T) {
	var detail StaffPriceDetail
	if err := json.Unmarshal([]byte(`{"sku": "abc", "spAllowed": "N"}`), &detail); err != nil {
		t.Fatal(err)
	}
	if detail.Sku != "abc" {
		t.Errorf("string sku = %q", detail.Sku)
	}
	if detail.Allowed() {
		t.Error("spAllowed N should not report allowed")
	}

	if err := json.Unmarshal([]byte(`{"sku": 10200521}`), &detail); err != nil {
		t.Fatal(err)
	}
	if detail.Sku != "10200521" {
		t.Errorf("numeric sku = %q", detail.Sku)
	}

	if err := json.Unmarshal([]byte(`{"sku": null}`), &detail); err != nil {
		t.Fatal(err)
	}
	if detail.Sku != "" {
		t.Errorf("null sku = %q, want empty", detail.Sku)
	}
}
