// Package merge joins one page of search results with its staff-price lookup
// response into the unified item records the table is built from.
package merge

import (
	"math"
	"strings"

	"betterbuy/pkg/bestbuy"
	"betterbuy/pkg/models"
)

const (
	productLinkBase = "https://www.bestbuy.ca"

	// SKU prefixes that never have staff pricing (special product classes,
	// e.g. "B..." gift-card style SKUs). Looking these up only wastes a call.
	excludedSkuPrefixes = "B"
)

// EligibleSku reports whether a SKU may be submitted to the staff-price
// lookup. Empty SKUs and excluded prefixes are not eligible.
func EligibleSku(sku string) bool {
	if sku == "" {
		return false
	}
	return !strings.ContainsRune(excludedSkuPrefixes, rune(sku[0]))
}

// EligibleSkus filters a page of products down to the SKUs worth a
// staff-price lookup, preserving page order.
func EligibleSkus(products []bestbuy.Product) []string {
	skus := make([]string, 0, len(products))
	for _, p := range products {
		if sku := p.Sku.String(); EligibleSku(sku) {
			skus = append(skus, sku)
		}
	}
	return skus
}

// Discounts computes the percent and flat discount between a regular and a
// staff price. Percent is rounded to one decimal. Both are zero when the
// regular price is zero.
func Discounts(regularPrice, staffPrice float64) (percent, flat float64) {
	if regularPrice <= 0 {
		return 0, 0
	}
	flat = regularPrice - staffPrice
	percent = math.Round(flat/regularPrice*1000) / 10
	return percent, flat
}

// Page merges one page of products with its staff-price records.
//
// Per product: no matching record means no discount and the product keeps its
// own name. A matching record with staff pricing allowed contributes the staff
// price and its catalog description (the staff-price catalog's description is
// authoritative for display). A matching record without staff pricing allowed
// contributes only the description. details may be nil after a failed lookup,
// in which case every product falls through to the no-discount case.
func Page(products []bestbuy.Product, details []bestbuy.StaffPriceDetail) []models.Item {
	bySku := make(map[string]bestbuy.StaffPriceDetail, len(details))
	for _, d := range details {
		bySku[d.Sku.String()] = d
	}

	items := make([]models.Item, 0, len(products))
	for _, p := range products {
		item := models.Item{
			Sku:          p.Sku.String(),
			Name:         p.Name,
			Image:        p.ThumbnailImage,
			URL:          productLinkBase + p.ProductURL,
			RegularPrice: p.SalePrice,
			StaffPrice:   p.SalePrice,
		}

		if detail, ok := bySku[item.Sku]; ok {
			if detail.SkuDesc != "" {
				item.Name = detail.SkuDesc
			}
			if detail.Allowed() {
				item.StaffPrice = detail.StaffPrice
				item.DiscountPercent, item.DiscountFlat = Discounts(item.RegularPrice, item.StaffPrice)
			}
		}

		items = append(items, item)
	}
	return items
}
