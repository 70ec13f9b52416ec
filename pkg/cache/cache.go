// Package cache keeps staff-price records fetched from the staff-price API so
// overlapping searches do not re-request the same SKU batches. It defaults to
// an in-memory database, so by default nothing survives the process.
package cache

import (
	"database/sql"
	"encoding/json"
	"strings"
	"time"

	"github.com/rs/zerolog/log"
	_ "modernc.org/sqlite"

	"betterbuy/pkg/bestbuy"
)

type Cache struct {
	db  *sql.DB
	ttl time.Duration
}

func New(dbPath string, ttl time.Duration) (*Cache, error) {
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, err
	}

	// A :memory: database exists per connection; a pool of more than one
	// would silently shard the cache.
	db.SetMaxOpenConns(1)

	_, err = db.Exec(`
		CREATE TABLE IF NOT EXISTS staff_prices (
			sku TEXT NOT NULL PRIMARY KEY,
			data TEXT NOT NULL,
			fetched_at DATETIME NOT NULL
		)
	`)
	if err != nil {
		db.Close()
		return nil, err
	}

	return &Cache{db: db, ttl: ttl}, nil
}

// Get returns the cached record for one SKU, if present and fresh.
func (c *Cache) Get(sku string) (*bestbuy.StaffPriceDetail, bool) {
	var data string
	var fetchedAt time.Time

	err := c.db.QueryRow(
		`SELECT data, fetched_at FROM staff_prices WHERE sku = ?`,
		sku,
	).Scan(&data, &fetchedAt)

	if err != nil {
		return nil, false
	}

	if time.Since(fetchedAt) > c.ttl {
		return nil, false
	}

	var detail bestbuy.StaffPriceDetail
	if err := json.Unmarshal([]byte(data), &detail); err != nil {
		log.Warn().Err(err).Str("sku", sku).Msg("Cache: failed to unmarshal staff-price record")
		return nil, false
	}

	return &detail, true
}

// GetMany splits a SKU batch into cached records and the SKUs still missing.
// The missing slice preserves the order of the input batch.
func (c *Cache) GetMany(skus []string) (hits []bestbuy.StaffPriceDetail, missing []string) {
	for _, sku := range skus {
		if detail, ok := c.Get(sku); ok {
			hits = append(hits, *detail)
		} else {
			missing = append(missing, sku)
		}
	}
	return hits, missing
}

// SetMany stores freshly fetched records, replacing any stale entries.
func (c *Cache) SetMany(details []bestbuy.StaffPriceDetail) {
	now := time.Now()
	for _, detail := range details {
		sku := strings.TrimSpace(detail.Sku.String())
		if sku == "" {
			continue
		}

		data, err := json.Marshal(detail)
		if err != nil {
			log.Warn().Err(err).Str("sku", sku).Msg("Cache: failed to marshal staff-price record")
			continue
		}

		_, err = c.db.Exec(
			`INSERT INTO staff_prices (sku, data, fetched_at)
			 VALUES (?, ?, ?)
			 ON CONFLICT(sku)
			 DO UPDATE SET data = excluded.data, fetched_at = excluded.fetched_at`,
			sku, string(data), now,
		)
		if err != nil {
			log.Warn().Err(err).Str("sku", sku).Msg("Cache: failed to store staff-price record")
		}
	}
}

func (c *Cache) Close() error {
	return c.db.Close()
}
