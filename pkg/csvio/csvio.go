// Package csvio writes the dataset out as CSV and rebuilds it from an
// uploaded file.
package csvio

import (
	"encoding/csv"
	"fmt"
	"io"
	"strconv"
	"strings"

	"betterbuy/pkg/merge"
	"betterbuy/pkg/models"
)

// Header is the fixed export header row.
var Header = []string{"Name", "Sku", "Regular Price", "Staff Price", "Discount (%)", "Discount ($)"}

// Fixed URL templates for rebuilding links on import; the thumbnail CDN
// shards images by the SKU's first three and first five digits.
const (
	imageTemplate      = "https://multimedia.bbycastatic.ca/multimedia/products/150x150/%s/%s/%s.jpg"
	productURLTemplate = "https://www.bestbuy.ca/en-ca/product/%s"
)

// Export writes one row per item in current dataset order. Commas inside
// names are stripped rather than quoted, so the file round-trips through
// spreadsheet tools that mishandle quoting.
func Export(w io.Writer, items []models.Item) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(Header); err != nil {
		return err
	}
	for _, item := range items {
		row := []string{
			strings.ReplaceAll(item.Name, ",", ""),
			item.Sku,
			strconv.FormatFloat(item.RegularPrice, 'f', 2, 64),
			strconv.FormatFloat(item.StaffPrice, 'f', 2, 64),
			strconv.FormatFloat(item.DiscountPercent, 'f', 1, 64),
			strconv.FormatFloat(item.DiscountFlat, 'f', 2, 64),
		}
		if err := cw.Write(row); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}

// Import rebuilds items from an exported file. Rows without a SKU are skipped
// rather than aborting the whole import; the skipped count is reported so the
// caller can surface it. Image and product URLs are derived from the SKU, and
// discounts are recomputed from the two prices so the invariant holds even
// for hand-edited files.
func Import(r io.Reader) (items []models.Item, skipped int, err error) {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = -1

	for lineNo := 0; ; lineNo++ {
		record, err := cr.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, 0, fmt.Errorf("reading csv: %w", err)
		}

		if lineNo == 0 && isHeader(record) {
			continue
		}
		if len(record) < 4 {
			skipped++
			continue
		}

		sku := strings.TrimSpace(record[1])
		if sku == "" {
			skipped++
			continue
		}

		item := models.Item{
			Sku:          sku,
			Name:         strings.TrimSpace(record[0]),
			URL:          fmt.Sprintf(productURLTemplate, sku),
			RegularPrice: parsePrice(record[2]),
			StaffPrice:   parsePrice(record[3]),
		}
		if len(sku) >= 5 {
			item.Image = fmt.Sprintf(imageTemplate, sku[:3], sku[:5], sku)
		}
		if item.StaffPrice <= 0 {
			// No usable staff price in the file means no discount.
			item.StaffPrice = item.RegularPrice
		}
		item.DiscountPercent, item.DiscountFlat = merge.Discounts(item.RegularPrice, item.StaffPrice)

		items = append(items, item)
	}
	return items, skipped, nil
}

func isHeader(record []string) bool {
	if len(record) != len(Header) {
		return false
	}
	for i, field := range record {
		if !strings.EqualFold(strings.TrimSpace(field), Header[i]) {
			return false
		}
	}
	return true
}

func parsePrice(s string) float64 {
	v, err := strconv.ParseFloat(strings.TrimSpace(s), 64)
	if err != nil {
		return 0
	}
	return v
}
