// Package commerce maintains the product catalog and historized price list:
// synced from the partner API, imported from CSV price sheets, and read by
// the recommendation engine's price book.
package commerce

import (
	"github.com/shopspring/decimal"

	"github.com/seatwise/seatwise/internal/domain"
)

// Product is one (product, SKU) catalog entry.
type Product struct {
	ID           string `json:"id"`
	ProductID    string `json:"product_id"`
	SkuID        string `json:"sku_id"`
	ProductTitle string `json:"product_title"`
	SkuTitle     string `json:"sku_title"`
	Publisher    string `json:"publisher"`
	Family       string `json:"family,omitempty"`
	CreatedAt    int64  `json:"created_at"`
	UpdatedAt    int64  `json:"updated_at"`
}

// Price is one historized price-list row. A price applies from
// EffectiveStartDate until EffectiveEndDate; an empty end date means the
// price is open-ended. Dates are ISO yyyy-mm-dd strings.
type Price struct {
	ID                 string             `json:"id"`
	ProductID          string             `json:"product_id"`
	SkuID              string             `json:"sku_id"`
	Market             string             `json:"market"`
	Currency           string             `json:"currency"`
	Segment            domain.Segment     `json:"segment"`
	BillingPlan        domain.BillingPlan `json:"billing_plan"`
	UnitPrice          decimal.Decimal    `json:"unit_price"`
	TierMinQuantity    int64              `json:"tier_min_quantity"`
	TierMaxQuantity    int64              `json:"tier_max_quantity"`
	EffectiveStartDate string             `json:"effective_start_date"`
	EffectiveEndDate   string             `json:"effective_end_date,omitempty"`
	CreatedAt          int64              `json:"created_at"`
	UpdatedAt          int64              `json:"updated_at"`
}

// Key is the natural uniqueness key of a price row.
func (p *Price) Key() string {
	return p.ProductID + "|" + p.SkuID + "|" + p.Market + "|" + p.Currency + "|" +
		string(p.Segment) + "|" + string(p.BillingPlan) + "|" + p.EffectiveStartDate
}

// ProductSyncStats summarizes one product catalog sync.
type ProductSyncStats struct {
	Markets int `json:"markets"`
	Fetched int `json:"fetched"`
	Created int `json:"created"`
	Updated int `json:"updated"`
}

// PriceSyncStats summarizes one price list sync.
type PriceSyncStats struct {
	Markets  int `json:"markets"`
	Fetched  int `json:"fetched"`
	Upserted int `json:"upserted"`
}

// ImportStats summarizes one CSV price import. SkippedDuplicates counts rows
// beyond the first occurrence of a natural key within the file; Rejected
// counts rows that failed validation.
type ImportStats struct {
	TotalRows         int `json:"total_rows"`
	ProductsInserted  int `json:"products_inserted"`
	PricesInserted    int `json:"prices_inserted"`
	SkippedDuplicates int `json:"skipped_duplicates"`
	Rejected          int `json:"rejected"`
}
