package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"
	"strconv"
	"strings"
	"time"

	scalargo "github.com/bdpiprava/scalar-go"
	"github.com/rs/zerolog/log"

	"betterbuy/pkg/api"
	"betterbuy/pkg/bestbuy"
	"betterbuy/pkg/cache"
	"betterbuy/pkg/config"
	"betterbuy/pkg/csvio"
	"betterbuy/pkg/dataset"
	"betterbuy/pkg/logger"
	"betterbuy/pkg/models"
	"betterbuy/pkg/search"
)

// tablePageSize is how many rows one table page holds, matching the upstream
// search page size.
const tablePageSize = 100

var (
	cfg    *config.Config
	store  *dataset.Store
	runner *search.Runner
)

func main() {
	var err error
	cfg, err = config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load configuration: %v\n", err)
		os.Exit(1)
	}
	logger.Setup(cfg.Env)

	staffCache, err := cache.New(cfg.CacheDBPath, cfg.CacheTTL)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to initialize staff-price cache")
	}
	defer staffCache.Close()
	log.Info().Str("path", cfg.CacheDBPath).Dur("ttl", cfg.CacheTTL).Msg("Staff-price cache initialized")

	client := bestbuy.NewClient(bestbuy.Options{
		SearchBaseURL:     cfg.SearchBaseURL,
		StaffPriceBaseURL: cfg.StaffPriceBaseURL,
		Region:            cfg.Region,
		Lang:              cfg.Lang,
		PageSize:          cfg.PageSize,
		Timeout:           cfg.RequestTimeout,
	})
	store = dataset.New()
	runner = search.New(client, store, staffCache, cfg.PageGuard)

	http.HandleFunc("/", rootHandler)

	ip := GetOutboundIP()
	if ip != nil {
		fmt.Printf("Local Network URL: http://%s:%s\n", ip.String(), cfg.Port)
	} else {
		fmt.Println("Could not determine local IP address.")
	}
	fmt.Printf("Access URL: http://localhost:%s\n", cfg.Port)
	fmt.Printf("API Docs: http://localhost:%s/\n", cfg.Port)

	server := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           nil,
		ReadHeaderTimeout: 15 * time.Second,
		IdleTimeout:       120 * time.Second,
	}

	log.Fatal().Err(server.ListenAndServe()).Msg("Server stopped")
}

func rootHandler(w http.ResponseWriter, r *http.Request) {
	// API requests go to the API dispatcher
	if strings.HasPrefix(r.URL.Path, "/api/") {
		apiHandler(w, r)
		return
	}

	// Serve Scalar docs on root path
	html, err := scalargo.NewV2(
		scalargo.WithSpecDir("./"),
		scalargo.WithMetaDataOpts(
			scalargo.WithTitle("BetterBuy Staff Price API"),
		),
	)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	fmt.Fprint(w, html)
}

func apiHandler(w http.ResponseWriter, r *http.Request) {
	switch r.URL.Path {
	case "/api/categories":
		categoriesHandler(w, r)
	case "/api/search":
		searchHandler(w, r)
	case "/api/search/all":
		searchAllHandler(w, r)
	case "/api/search/status":
		statusHandler(w, r)
	case "/api/items":
		itemsHandler(w, r)
	case "/api/sort":
		sortHandler(w, r)
	case "/api/export.csv":
		exportHandler(w, r)
	case "/api/import":
		importHandler(w, r)
	default:
		api.WriteNotFound(w, "Unknown API path", r.URL.Path)
	}
}

func GetOutboundIP() net.IP {
	conn, err := net.Dial("udp", "8.8.8.8:80")
	if err != nil {
		addrs, _ := net.InterfaceAddrs()
		for _, addr := range addrs {
			if ipnet, ok := addr.(*net.IPNet); ok && !ipnet.IP.IsLoopback() {
				if ipnet.IP.To4() != nil {
					return ipnet.IP
				}
			}
		}
		return nil
	}
	defer conn.Close()

	localAddr := conn.LocalAddr().(*net.UDPAddr)

	return localAddr.IP
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Error().Err(err).Msg("Failed to encode response")
	}
}

func categoriesHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		api.WriteBadRequest(w, "Method not allowed. Use GET.", r.URL.Path)
		return
	}
	writeJSON(w, http.StatusOK, config.Categories())
}

type searchRequest struct {
	Query    string `json:"query"`
	Category string `json:"category"`
	FromPage int    `json:"from_page"`
	ToPage   int    `json:"to_page"`
}

// searchHandler starts the fast (concurrent) search path on POST and cancels
// the current run on DELETE.
func searchHandler(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodDelete:
		writeJSON(w, http.StatusOK, map[string]bool{"cancelled": runner.Cancel()})
		return
	case http.MethodPost:
	default:
		api.WriteBadRequest(w, "Method not allowed. Use POST to search, DELETE to cancel.", r.URL.Path)
		return
	}

	req, ok := decodeSearchRequest(w, r)
	if !ok {
		return
	}
	categoryID, ok := config.CategoryID(req.Category)
	if !ok {
		api.WriteBadRequest(w, fmt.Sprintf("Unknown category: %s", req.Category), r.URL.Path)
		return
	}

	info, err := runner.Start(categoryID, req.Query)
	if err != nil {
		writeSearchError(w, r, err)
		return
	}
	writeJSON(w, http.StatusAccepted, info)
}

// searchAllHandler starts the slow (sequential) path for operator-confirmed
// large runs over an explicit page range.
func searchAllHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		api.WriteBadRequest(w, "Method not allowed. Use POST.", r.URL.Path)
		return
	}

	req, ok := decodeSearchRequest(w, r)
	if !ok {
		return
	}
	categoryID, ok := config.CategoryID(req.Category)
	if !ok {
		api.WriteBadRequest(w, fmt.Sprintf("Unknown category: %s", req.Category), r.URL.Path)
		return
	}

	info, err := runner.StartRange(categoryID, req.Query, req.FromPage, req.ToPage)
	if err != nil {
		writeSearchError(w, r, err)
		return
	}
	writeJSON(w, http.StatusAccepted, info)
}

func decodeSearchRequest(w http.ResponseWriter, r *http.Request) (searchRequest, bool) {
	var req searchRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		api.WriteBadRequest(w, "Invalid JSON body.", r.URL.Path)
		return searchRequest{}, false
	}
	defer r.Body.Close()
	return req, true
}

func writeSearchError(w http.ResponseWriter, r *http.Request, err error) {
	var tooMany *models.TooManyPagesError
	switch {
	case errors.Is(err, models.ErrSearchInProgress):
		api.WriteConflict(w, err.Error(), r.URL.Path)
	case errors.Is(err, models.ErrProbeFailed):
		api.WriteBadGateway(w, err.Error(), r.URL.Path)
	case errors.As(err, &tooMany):
		api.WriteUnprocessable(w, err.Error(), r.URL.Path)
	default:
		api.WriteInternalServerError(w, err, r.URL.Path)
	}
}

func statusHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		api.WriteBadRequest(w, "Method not allowed. Use GET.", r.URL.Path)
		return
	}
	writeJSON(w, http.StatusOK, runner.Status())
}

type itemsResponse struct {
	Items       []models.Item `json:"items"`
	CurrentPage int           `json:"current_page"`
	TotalPages  int           `json:"total_pages"`
	TotalItems  int           `json:"total_items"`
	SortColumn  string        `json:"sort_column,omitempty"`
}

func itemsHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		api.WriteBadRequest(w, "Method not allowed. Use GET.", r.URL.Path)
		return
	}

	page := 1
	if raw := r.URL.Query().Get("page"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed < 1 {
			api.WriteBadRequest(w, fmt.Sprintf("Invalid page number: %s", raw), r.URL.Path)
			return
		}
		page = parsed
	}

	items, totalPages := store.Page(page, tablePageSize)
	if items == nil && totalPages > 0 {
		api.WriteBadRequest(w, fmt.Sprintf("Invalid page number: %d. Dataset has %d pages.", page, totalPages), r.URL.Path)
		return
	}

	for i := range items {
		items[i].Name = trimName(items[i].Name, 80)
	}
	if items == nil {
		items = []models.Item{}
	}

	writeJSON(w, http.StatusOK, itemsResponse{
		Items:       items,
		CurrentPage: page,
		TotalPages:  totalPages,
		TotalItems:  store.Len(),
		SortColumn:  store.SortColumn().String(),
	})
}

type sortRequest struct {
	Column    string `json:"column"`
	Direction string `json:"direction"`
}

func sortHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		api.WriteBadRequest(w, "Method not allowed. Use POST.", r.URL.Path)
		return
	}

	var req sortRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		api.WriteBadRequest(w, "Invalid JSON body.", r.URL.Path)
		return
	}
	defer r.Body.Close()

	col, ok := dataset.ParseColumn(req.Column)
	if !ok {
		api.WriteBadRequest(w, "Unknown sort column. Available: regular_price, staff_price, discount_percent, discount_flat", r.URL.Path)
		return
	}
	dir, ok := dataset.ParseDirection(req.Direction)
	if !ok {
		api.WriteBadRequest(w, "Unknown sort direction. Available: asc, desc", r.URL.Path)
		return
	}

	writeJSON(w, http.StatusOK, map[string]bool{"sorted": store.SortBy(col, dir)})
}

func exportHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		api.WriteBadRequest(w, "Method not allowed. Use GET.", r.URL.Path)
		return
	}

	w.Header().Set("Content-Type", "text/csv")
	w.Header().Set("Content-Disposition", `attachment; filename="staff-prices.csv"`)
	if err := csvio.Export(w, store.All()); err != nil {
		log.Error().Err(err).Msg("CSV export failed")
	}
}

func importHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		api.WriteBadRequest(w, "Method not allowed. Use POST.", r.URL.Path)
		return
	}
	if runner.InProgress() {
		api.WriteConflict(w, "A search is in progress; import would clash with its dataset.", r.URL.Path)
		return
	}

	if err := r.ParseMultipartForm(10 << 20); err != nil {
		api.WriteBadRequest(w, "Invalid multipart upload.", r.URL.Path)
		return
	}
	file, _, err := r.FormFile("file")
	if err != nil {
		api.WriteBadRequest(w, `Missing "file" form field.`, r.URL.Path)
		return
	}
	defer file.Close()

	items, skipped, err := csvio.Import(file)
	if err != nil {
		api.WriteBadRequest(w, fmt.Sprintf("Could not parse CSV: %v", err), r.URL.Path)
		return
	}
	store.Replace(items)

	writeJSON(w, http.StatusOK, map[string]int{"imported": len(items), "skipped": skipped})
}

func trimName(name string, length int) string {
	if len(name) > length {
		return name[:length] + "..."
	}
	return name
}
