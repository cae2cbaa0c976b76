package commerce

import (
	"context"
	"database/sql"
	"fmt"
	"sort"

	"github.com/rs/zerolog"

	"github.com/seatwise/seatwise/internal/clientdata"
	"github.com/seatwise/seatwise/internal/clients/partner"
	"github.com/seatwise/seatwise/internal/database"
	"github.com/seatwise/seatwise/internal/domain"
	"github.com/seatwise/seatwise/internal/events"
	"github.com/seatwise/seatwise/internal/modules/tenants"
)

// OpSyncCommerce is the work type id for the combined catalog and price
// sync. Commerce data is process-global, so the in-flight subject is empty.
const OpSyncCommerce = "sync:commerce"

// CommerceClient is the slice of the partner API client the sync service
// needs.
type CommerceClient interface {
	ListProducts(ctx context.Context, market string) ([]partner.Product, error)
	ListPrices(ctx context.Context, market string) ([]partner.Price, error)
}

// TenantSource yields the tenants whose price markets need syncing.
type TenantSource interface {
	ListSyncable() ([]tenants.Tenant, error)
}

// SyncService pulls the product catalog and price sheets from the partner
// API for every market the active tenants price in. Raw responses are cached
// write-through so the scheduled sweep can skip upstream calls while fresh.
type SyncService struct {
	repo      *Repository
	client    CommerceClient
	source    TenantSource
	cache     *clientdata.Repository
	db        *database.DB
	bus       *events.Bus
	overrides map[string]string
	log       zerolog.Logger
}

// NewSyncService creates a commerce sync service. overrides maps tenant
// country codes to price markets.
func NewSyncService(
	repo *Repository,
	client CommerceClient,
	source TenantSource,
	cache *clientdata.Repository,
	db *database.DB,
	bus *events.Bus,
	overrides map[string]string,
	log zerolog.Logger,
) *SyncService {
	return &SyncService{
		repo:      repo,
		client:    client,
		source:    source,
		cache:     cache,
		db:        db,
		bus:       bus,
		overrides: overrides,
		log:       log.With().Str("service", "commerce_sync").Logger(),
	}
}

// Markets returns the sorted distinct price markets of all syncable tenants,
// falling back to the default market when no tenant is ready yet.
func (s *SyncService) Markets() ([]string, error) {
	active, err := s.source.ListSyncable()
	if err != nil {
		return nil, fmt.Errorf("failed to list tenants for market resolution: %w", err)
	}

	seen := make(map[string]bool)
	for i := range active {
		market, _, known := domain.ResolveMarket(active[i].CountryCode, s.overrides)
		if !known {
			s.log.Warn().
				Str("tenant_id", active[i].ID).
				Str("country", active[i].CountryCode).
				Str("market", market).
				Msg("Unknown country code, using default market")
		}
		seen[market] = true
	}
	if len(seen) == 0 {
		return []string{domain.DefaultMarket}, nil
	}

	markets := make([]string, 0, len(seen))
	for m := range seen {
		markets = append(markets, m)
	}
	sort.Strings(markets)
	return markets, nil
}

// SyncProducts refreshes the product catalog for every active market.
func (s *SyncService) SyncProducts(ctx context.Context) (*ProductSyncStats, error) {
	markets, err := s.Markets()
	if err != nil {
		return nil, err
	}

	var fetched []partner.Product
	for _, market := range markets {
		products, err := s.client.ListProducts(ctx, market)
		if err != nil {
			s.emitFailed(err)
			return nil, fmt.Errorf("failed to fetch products for market %s: %w", market, err)
		}
		if err := s.cache.Store(clientdata.TablePartnerProducts, market, products, clientdata.TTLPartnerProducts); err != nil {
			s.log.Warn().Err(err).Str("market", market).Msg("Failed to cache product catalog")
		}
		fetched = append(fetched, products...)
	}

	stats := &ProductSyncStats{Markets: len(markets), Fetched: len(fetched)}
	err = database.WithTransactionContext(ctx, s.db.Conn(), func(tx *sql.Tx) error {
		// The catalog is market-independent; rows repeat across markets.
		done := make(map[string]bool, len(fetched))
		for i := range fetched {
			key := fetched[i].ProductID + "|" + fetched[i].SkuID
			if done[key] {
				continue
			}
			done[key] = true

			created, err := s.repo.UpsertProduct(tx, &Product{
				ProductID:    fetched[i].ProductID,
				SkuID:        fetched[i].SkuID,
				ProductTitle: fetched[i].ProductTitle,
				SkuTitle:     fetched[i].SkuTitle,
				Publisher:    fetched[i].Publisher,
			})
			if err != nil {
				return err
			}
			if created {
				stats.Created++
			} else {
				stats.Updated++
			}
		}
		return nil
	})
	if err != nil {
		s.emitFailed(err)
		return nil, err
	}

	s.log.Info().
		Int("markets", stats.Markets).
		Int("fetched", stats.Fetched).
		Int("created", stats.Created).
		Msg("Product sync completed")
	return stats, nil
}

// SyncPrices refreshes the price list for every active market.
func (s *SyncService) SyncPrices(ctx context.Context) (*PriceSyncStats, error) {
	markets, err := s.Markets()
	if err != nil {
		return nil, err
	}

	var fetched []partner.Price
	for _, market := range markets {
		prices, err := s.client.ListPrices(ctx, market)
		if err != nil {
			s.emitFailed(err)
			return nil, fmt.Errorf("failed to fetch prices for market %s: %w", market, err)
		}
		if err := s.cache.Store(clientdata.TablePartnerPrices, market, prices, clientdata.TTLPartnerPrices); err != nil {
			s.log.Warn().Err(err).Str("market", market).Msg("Failed to cache price sheet")
		}
		fetched = append(fetched, prices...)
	}

	stats := &PriceSyncStats{Markets: len(markets), Fetched: len(fetched)}
	err = database.WithTransactionContext(ctx, s.db.Conn(), func(tx *sql.Tx) error {
		for i := range fetched {
			price, warn := priceFromPartner(&fetched[i])
			if warn != "" {
				s.log.Warn().Str("key", price.Key()).Msg(warn)
			}
			if err := s.repo.UpsertPrice(tx, price); err != nil {
				return err
			}
			stats.Upserted++
		}
		return nil
	})
	if err != nil {
		s.emitFailed(err)
		return nil, err
	}

	s.bus.Emit("commerce", &events.PricesRefreshedData{Prices: stats.Upserted, Source: "sync"})
	s.log.Info().
		Int("markets", stats.Markets).
		Int("fetched", stats.Fetched).
		Int("upserted", stats.Upserted).
		Msg("Price sync completed")
	return stats, nil
}

// PricesFresh reports whether every active market still has a fresh cached
// price sheet, letting the scheduled sweep skip the upstream calls.
func (s *SyncService) PricesFresh() bool {
	markets, err := s.Markets()
	if err != nil {
		return false
	}
	for _, market := range markets {
		var out []partner.Price
		fresh, err := s.cache.GetIfFresh(clientdata.TablePartnerPrices, market, &out)
		if err != nil || !fresh {
			return false
		}
	}
	return true
}

// priceFromPartner normalizes one upstream price row. Unknown segment or
// billing plan values map to their sentinel defaults; the returned warning
// is empty when nothing was coerced.
func priceFromPartner(in *partner.Price) (*Price, string) {
	segment, segmentOK := domain.NormalizeSegment(in.Segment)
	plan, planOK := domain.NormalizeBillingPlan(in.BillingPlan)

	warn := ""
	if !segmentOK {
		warn = fmt.Sprintf("unknown segment %q normalized to %s", in.Segment, segment)
	}
	if !planOK {
		warn = fmt.Sprintf("unknown billing plan %q normalized to %s", in.BillingPlan, plan)
	}

	return &Price{
		ProductID:          in.ProductID,
		SkuID:              in.SkuID,
		Market:             in.Market,
		Currency:           in.Currency,
		Segment:            segment,
		BillingPlan:        plan,
		UnitPrice:          in.UnitPrice.Round(2),
		TierMinQuantity:    int64(in.TierMinQuantity),
		TierMaxQuantity:    int64(in.TierMaxQuantity),
		EffectiveStartDate: in.EffectiveStartDate,
		EffectiveEndDate:   in.EffectiveEndDate,
	}, warn
}

func (s *SyncService) emitFailed(err error) {
	s.bus.Emit("commerce", &events.SyncFailedData{
		Operation: OpSyncCommerce,
		Reason:    err.Error(),
	})
}
