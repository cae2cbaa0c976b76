package commerce

import (
	"context"
	"database/sql"
	"io"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"github.com/seatwise/seatwise/internal/clientdata"
	"github.com/seatwise/seatwise/internal/clients/rest"
	"github.com/seatwise/seatwise/internal/database"
	"github.com/seatwise/seatwise/internal/domain"
	"github.com/seatwise/seatwise/internal/events"
)

// Importer ingests CSV price sheets. Rows are validated and normalized
// before anything reaches the store: enum columns map onto their known sets
// (unknown values coerce to the sentinel default with a warning), malformed
// rows are rejected and counted, and duplicate natural keys within one file
// collapse to the first occurrence.
type Importer struct {
	repo  *Repository
	cache *clientdata.Repository
	db    *database.DB
	bus   *events.Bus
	log   zerolog.Logger
}

// NewImporter creates a price CSV importer.
func NewImporter(repo *Repository, cache *clientdata.Repository, db *database.DB, bus *events.Bus, log zerolog.Logger) *Importer {
	return &Importer{
		repo:  repo,
		cache: cache,
		db:    db,
		bus:   bus,
		log:   log.With().Str("service", "commerce_import").Logger(),
	}
}

// ImportPriceCSV reads a header-prefixed CSV price sheet and upserts its
// products and prices in one transaction. An import that wrote rows
// invalidates the cached upstream snapshots, which may now disagree with
// the store.
func (i *Importer) ImportPriceCSV(ctx context.Context, reader io.Reader) (*ImportStats, error) {
	records, err := rest.ParseCSV(reader)
	if err != nil {
		return nil, domain.Parse("commerce_import", "price sheet is not valid CSV", err)
	}

	stats := &ImportStats{}
	seenKeys := make(map[string]bool)
	seenProducts := make(map[string]bool)
	warned := make(map[string]bool)

	var products []*Product
	var prices []*Price

	for _, record := range records {
		stats.TotalRows++

		price, reason := i.priceFromRecord(record, warned)
		if reason != "" {
			stats.Rejected++
			i.log.Debug().Int("row", stats.TotalRows).Str("reason", reason).Msg("Rejected price row")
			continue
		}

		key := price.Key()
		if seenKeys[key] {
			stats.SkippedDuplicates++
			continue
		}
		seenKeys[key] = true
		prices = append(prices, price)

		productKey := price.ProductID + "|" + price.SkuID
		if !seenProducts[productKey] {
			seenProducts[productKey] = true
			products = append(products, &Product{
				ProductID:    price.ProductID,
				SkuID:        price.SkuID,
				ProductTitle: strings.TrimSpace(record["ProductTitle"]),
				SkuTitle:     strings.TrimSpace(record["SkuTitle"]),
				Publisher:    strings.TrimSpace(record["Publisher"]),
			})
		}
	}

	err = database.WithTransactionContext(ctx, i.db.Conn(), func(tx *sql.Tx) error {
		for _, p := range products {
			created, err := i.repo.UpsertProduct(tx, p)
			if err != nil {
				return err
			}
			if created {
				stats.ProductsInserted++
			}
		}
		for _, p := range prices {
			if err := i.repo.UpsertPrice(tx, p); err != nil {
				return err
			}
			stats.PricesInserted++
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	if stats.PricesInserted > 0 {
		i.invalidateCache()
		i.bus.Emit("commerce", &events.PricesRefreshedData{
			Products: stats.ProductsInserted,
			Prices:   stats.PricesInserted,
			Source:   "csv",
		})
	}

	i.log.Info().
		Int("total", stats.TotalRows).
		Int("prices", stats.PricesInserted).
		Int("products", stats.ProductsInserted).
		Int("duplicates", stats.SkippedDuplicates).
		Int("rejected", stats.Rejected).
		Msg("Price CSV import completed")
	return stats, nil
}

// priceFromRecord validates and normalizes one CSV row. The returned reason
// is empty for a good row.
func (i *Importer) priceFromRecord(record map[string]string, warned map[string]bool) (*Price, string) {
	productID := strings.TrimSpace(record["ProductId"])
	skuID := strings.TrimSpace(record["SkuId"])
	market := strings.ToUpper(strings.TrimSpace(record["Market"]))
	currency := strings.ToUpper(strings.TrimSpace(record["Currency"]))
	startDate := strings.TrimSpace(record["EffectiveStartDate"])
	endDate := strings.TrimSpace(record["EffectiveEndDate"])

	switch {
	case productID == "":
		return nil, "missing ProductId"
	case skuID == "":
		return nil, "missing SkuId"
	case market == "":
		return nil, "missing Market"
	case currency == "":
		return nil, "missing Currency"
	case startDate == "":
		return nil, "missing EffectiveStartDate"
	}

	if _, err := time.Parse("2006-01-02", startDate); err != nil {
		return nil, "EffectiveStartDate is not an ISO date"
	}
	if endDate != "" {
		if _, err := time.Parse("2006-01-02", endDate); err != nil {
			return nil, "EffectiveEndDate is not an ISO date"
		}
	}

	unitPrice, err := decimal.NewFromString(strings.TrimSpace(record["UnitPrice"]))
	if err != nil {
		return nil, "UnitPrice is not a decimal"
	}

	tierMin, ok := parseTier(record["TierMinQuantity"], 1)
	if !ok {
		return nil, "TierMinQuantity is not an integer"
	}
	tierMax, ok := parseTier(record["TierMaxQuantity"], 0)
	if !ok {
		return nil, "TierMaxQuantity is not an integer"
	}

	segment, segmentOK := domain.NormalizeSegment(record["Segment"])
	if !segmentOK && !warned["segment:"+record["Segment"]] {
		warned["segment:"+record["Segment"]] = true
		i.log.Warn().Str("value", record["Segment"]).Str("fallback", string(segment)).
			Msg("Unknown segment in price sheet")
	}
	plan, planOK := domain.NormalizeBillingPlan(record["BillingPlan"])
	if !planOK && !warned["plan:"+record["BillingPlan"]] {
		warned["plan:"+record["BillingPlan"]] = true
		i.log.Warn().Str("value", record["BillingPlan"]).Str("fallback", string(plan)).
			Msg("Unknown billing plan in price sheet")
	}

	return &Price{
		ProductID:          productID,
		SkuID:              skuID,
		Market:             market,
		Currency:           currency,
		Segment:            segment,
		BillingPlan:        plan,
		UnitPrice:          unitPrice.Round(2),
		TierMinQuantity:    tierMin,
		TierMaxQuantity:    tierMax,
		EffectiveStartDate: startDate,
		EffectiveEndDate:   endDate,
	}, ""
}

func (i *Importer) invalidateCache() {
	for _, table := range []string{clientdata.TablePartnerPrices, clientdata.TablePartnerProducts} {
		if err := i.cache.DeleteAll(table); err != nil {
			i.log.Warn().Err(err).Str("table", table).Msg("Failed to invalidate cache after import")
		}
	}
}

func parseTier(v string, def int64) (int64, bool) {
	v = strings.TrimSpace(v)
	if v == "" {
		return def, true
	}
	n, err := strconv.ParseInt(v, 10, 64)
	if err != nil {
		return 0, false
	}
	return n, true
}
