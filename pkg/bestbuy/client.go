// Package bestbuy talks to the two upstream endpoints: the public product
// search API and the staff-price lookup API. Fetches never return an error to
// callers; any transport or parse failure is logged and surfaced as a nil
// response, which callers treat as "this request contributed nothing usable".
package bestbuy

import (
	"encoding/json"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/gocolly/colly/v2"
	"github.com/rs/zerolog/log"
)

const (
	DefaultSearchBaseURL     = "https://www.bestbuy.ca/api/v2/json/search"
	DefaultStaffPriceBaseURL = "https://staffprice-app-hr-staffprice-prod.apps.prod-ocp-corp.ca.bestbuy.com/bizdm/api/staffprice/skus/"

	userAgent = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/91.0.4472.124 Safari/537.36"

	// Restricts results to first-party fulfillment. Pre-encoded; the upstream
	// expects the %3A / %20 form verbatim.
	pathFilter = "soldandshippedby0enrchstring%3ABest%20Buy"
)

// Options configures a Client. Zero values fall back to production defaults.
type Options struct {
	SearchBaseURL     string
	StaffPriceBaseURL string
	Region            string
	Lang              string
	PageSize          int
	Timeout           time.Duration
}

// Client builds upstream URLs and performs JSON GETs against them.
type Client struct {
	searchBase     string
	staffPriceBase string
	region         string
	lang           string
	pageSize       int
	timeout        time.Duration
	allowedDomains []string
}

// NewClient constructs a Client with sane defaults.
func NewClient(opts Options) *Client {
	c := &Client{
		searchBase:     opts.SearchBaseURL,
		staffPriceBase: opts.StaffPriceBaseURL,
		region:         opts.Region,
		lang:           opts.Lang,
		pageSize:       opts.PageSize,
		timeout:        opts.Timeout,
	}
	if c.searchBase == "" {
		c.searchBase = DefaultSearchBaseURL
	}
	if c.staffPriceBase == "" {
		c.staffPriceBase = DefaultStaffPriceBaseURL
	}
	if c.region == "" {
		c.region = "BC"
	}
	if c.lang == "" {
		c.lang = "en-CA"
	}
	if c.pageSize <= 0 {
		c.pageSize = 100
	}
	if c.timeout <= 0 {
		c.timeout = 30 * time.Second
	}
	for _, base := range []string{c.searchBase, c.staffPriceBase} {
		if u, err := url.Parse(base); err == nil && u.Hostname() != "" {
			c.allowedDomains = append(c.allowedDomains, u.Hostname())
		}
	}
	return c
}

// SearchURL builds the paged search request. An empty categoryID means all
// categories. Results are sorted by price descending; the tie-break is fixed
// and not configurable here.
func (c *Client) SearchURL(categoryID string, page int, query string) string {
	return fmt.Sprintf(
		"%s?categoryid=%s&currentRegion=%s&lang=%s&page=%d&pageSize=%d&path=%s&query=%s&sortBy=price&sortDir=desc",
		c.searchBase,
		url.QueryEscape(categoryID),
		c.region,
		c.lang,
		page,
		c.pageSize,
		pathFilter,
		url.QueryEscape(query),
	)
}

// StaffPriceURL builds a batched staff-price lookup for a set of SKUs.
func (c *Client) StaffPriceURL(skus []string) string {
	return c.staffPriceBase + strings.Join(skus, ",")
}

// FetchSearchPage fetches one page of search results, or nil on any failure.
func (c *Client) FetchSearchPage(categoryID string, page int, query string) *SearchResponse {
	var resp SearchResponse
	if !c.fetchJSON(c.SearchURL(categoryID, page, query), &resp) {
		return nil
	}
	return &resp
}

// FetchStaffPrices fetches staff-price records for a batch of SKUs, or nil on
// any failure. An empty batch yields nil without issuing a request; the
// endpoint errors on an empty SKU list.
func (c *Client) FetchStaffPrices(skus []string) *StaffPriceResponse {
	if len(skus) == 0 {
		return nil
	}
	var resp StaffPriceResponse
	if !c.fetchJSON(c.StaffPriceURL(skus), &resp) {
		return nil
	}
	return &resp
}

func (c *Client) newCollector() *colly.Collector {
	opts := []colly.CollectorOption{
		colly.UserAgent(userAgent),
	}
	if len(c.allowedDomains) > 0 {
		opts = append(opts, colly.AllowedDomains(c.allowedDomains...))
	}
	col := colly.NewCollector(opts...)
	col.SetRequestTimeout(c.timeout)
	return col
}

// fetchJSON performs a GET and decodes the body into out. It reports false on
// transport errors, non-2xx responses and undecodable bodies; it never panics
// or returns an error. A fresh collector per request keeps colly's visited-URL
// bookkeeping from swallowing repeat fetches of the same page.
func (c *Client) fetchJSON(rawURL string, out any) bool {
	col := c.newCollector()

	var decoded bool
	col.OnResponse(func(r *colly.Response) {
		if err := json.Unmarshal(r.Body, out); err != nil {
			log.Warn().Err(err).Str("url", rawURL).Msg("Discarding undecodable response")
			return
		}
		decoded = true
	})

	if err := col.Visit(rawURL); err != nil {
		log.Warn().Err(err).Str("url", rawURL).Msg("Fetch failed")
		return false
	}
	return decoded
}
