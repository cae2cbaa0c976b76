package optimization

import (
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"github.com/seatwise/seatwise/internal/domain"
	"github.com/seatwise/seatwise/internal/modules/commerce"
	"github.com/seatwise/seatwise/internal/modules/skus"
)

// PriceFinder resolves one historized price row, nil when no row matches.
// *commerce.Repository satisfies it.
type PriceFinder interface {
	FindPrice(productID, skuID, market, currency string, segment domain.Segment, plan domain.BillingPlan, date string) (*commerce.Price, error)
}

// PriceBook resolves monthly unit prices for directory SKUs during one
// analysis. It pins the market, currency and date once so every lookup in
// the run prices against the same commercial context, and it remembers
// which SKUs it already warned about so a missing price logs once per run,
// not once per user.
type PriceBook struct {
	finder   PriceFinder
	snap     *skus.Snapshot
	market   string
	currency string
	date     string
	fallback decimal.Decimal
	resolved map[string]decimal.Decimal
	warned   map[string]bool
	log      zerolog.Logger
}

// NewPriceBook builds the price resolver for one analysis run. The tenant's
// country picks the market and currency; overrides win over the built-in
// table. An unknown country prices against the default market with a
// warning.
func NewPriceBook(
	finder PriceFinder,
	snap *skus.Snapshot,
	countryCode string,
	overrides map[string]string,
	date string,
	fallback decimal.Decimal,
	log zerolog.Logger,
) *PriceBook {
	market, currency, known := domain.ResolveMarket(countryCode, overrides)
	book := &PriceBook{
		finder:   finder,
		snap:     snap,
		market:   market,
		currency: currency,
		date:     date,
		fallback: fallback,
		resolved: map[string]decimal.Decimal{},
		warned:   map[string]bool{},
		log:      log.With().Str("service", "price_book").Logger(),
	}
	if !known {
		book.log.Warn().
			Str("country", countryCode).
			Str("market", market).
			Msg("country not in market table, pricing against default market")
	}
	return book
}

// Market returns the commerce market the book prices against.
func (b *PriceBook) Market() string { return b.market }

// Currency returns the price-list currency the book prices in.
func (b *PriceBook) Currency() string { return b.currency }

// MonthlyPrice returns the commercial monthly unit price for a directory
// SKU. When the SKU is unmapped or no price row covers the analysis date it
// returns the configured fallback price so an incomplete price list never
// stops a run. Each SKU is resolved against the store once; repeat lookups
// are served from the run's cache.
func (b *PriceBook) MonthlyPrice(directorySkuID string) decimal.Decimal {
	if price, ok := b.resolved[directorySkuID]; ok {
		return price
	}
	price := b.lookup(directorySkuID)
	b.resolved[directorySkuID] = price
	return price
}

func (b *PriceBook) lookup(directorySkuID string) decimal.Decimal {
	mapping := b.snap.MappingForDirectorySku(directorySkuID)
	if mapping == nil {
		b.warnOnce(directorySkuID, "sku not mapped to a commerce product")
		return b.fallback
	}

	price, err := b.finder.FindPrice(
		mapping.ProductID, mapping.SkuID,
		b.market, b.currency,
		domain.SegmentCommercial, domain.BillingPlanMonthly,
		b.date,
	)
	if err != nil {
		b.warnOnce(directorySkuID, "price lookup failed: "+err.Error())
		return b.fallback
	}
	if price == nil {
		b.warnOnce(directorySkuID, "no price row covers the analysis date")
		return b.fallback
	}
	return price.UnitPrice
}

// FallbackCount reports how many distinct SKUs priced at the fallback.
func (b *PriceBook) FallbackCount() int {
	return len(b.warned)
}

func (b *PriceBook) warnOnce(directorySkuID, why string) {
	if b.warned[directorySkuID] {
		return
	}
	b.warned[directorySkuID] = true
	b.log.Warn().
		Str("sku_id", directorySkuID).
		Str("market", b.market).
		Str("date", b.date).
		Str("fallback", b.fallback.StringFixed(2)).
		Msg("using fallback unit price: " + why)
}
