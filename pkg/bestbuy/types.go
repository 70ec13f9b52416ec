package bestbuy

import (
	"encoding/json"
	"fmt"
	"strconv"
)

// Sku is a product identifier. The search API sends SKUs as strings while the
// staff-price API sends them as bare numbers; both unmarshal into the same
// canonical string form so lookups can use exact equality.
type Sku string

func (s *Sku) UnmarshalJSON(b []byte) error {
	var raw any
	if err := json.Unmarshal(b, &raw); err != nil {
		return err
	}
	switch v := raw.(type) {
	case string:
		*s = Sku(v)
	case float64:
		*s = Sku(strconv.FormatFloat(v, 'f', -1, 64))
	case nil:
		*s = ""
	default:
		return fmt.Errorf("sku: unsupported JSON type %T", raw)
	}
	return nil
}

func (s Sku) String() string { return string(s) }

// Product is one search result as returned by the search endpoint.
type Product struct {
	Sku            Sku     `json:"sku"`
	Name           string  `json:"name"`
	ProductURL     string  `json:"productUrl"`
	SalePrice      float64 `json:"salePrice"`
	ThumbnailImage string  `json:"thumbnailImage"`
}

// SearchResponse is one page of paginated search results. TotalPages is fixed
// by the first-page response for the duration of a run.
type SearchResponse struct {
	CurrentPage int       `json:"currentPage"`
	Total       int       `json:"total"`
	TotalPages  int       `json:"totalPages"`
	PageSize    int       `json:"pageSize"`
	Products    []Product `json:"products"`
}

// StaffPriceDetail is one record of a batched staff-price lookup.
type StaffPriceDetail struct {
	Sku          Sku     `json:"sku"`
	CurrentPrice float64 `json:"currentPrice"`
	SpAllowed    string  `json:"spAllowed"`
	SkuDesc      string  `json:"skuDesc"`
	StaffPrice   float64 `json:"staffPrice"`
	Remark       string  `json:"remark"`
}

// Allowed reports whether the record carries a real staff discount.
func (d StaffPriceDetail) Allowed() bool { return d.SpAllowed == "Y" }

// StaffPriceResponse is the staff-price endpoint's answer for a batch of SKUs.
type StaffPriceResponse struct {
	Records              int                `json:"records"`
	StaffPriceDetailList []StaffPriceDetail `json:"staffPriceDetailList"`
}
