package models

// Item is one merged row of the result table: a storefront product joined with
// its staff-price record (when one exists).
type Item struct {
	Sku             string  `json:"sku"`
	Name            string  `json:"name"`
	Image           string  `json:"image"`
	URL             string  `json:"url"`
	RegularPrice    float64 `json:"regular_price"`
	StaffPrice      float64 `json:"staff_price"`
	DiscountPercent float64 `json:"discount_percent"`
	DiscountFlat    float64 `json:"discount_flat"`
}
