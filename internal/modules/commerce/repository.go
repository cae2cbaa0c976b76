package commerce

import (
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"github.com/seatwise/seatwise/internal/domain"
)

// Querier is satisfied by both *sql.DB and *sql.Tx so bulk writes can run
// inside one transaction.
type Querier interface {
	Exec(query string, args ...interface{}) (sql.Result, error)
	Query(query string, args ...interface{}) (*sql.Rows, error)
	QueryRow(query string, args ...interface{}) *sql.Row
}

const productColumns = `id, product_id, sku_id, product_title, sku_title, publisher, family,
created_at, updated_at`

const priceColumns = `id, product_id, sku_id, market, currency, segment, billing_plan, unit_price,
tier_min_quantity, tier_max_quantity, effective_start_date, effective_end_date, created_at, updated_at`

// Repository handles catalog and price persistence.
type Repository struct {
	db  *sql.DB
	log zerolog.Logger
}

// NewRepository creates a commerce repository.
func NewRepository(db *sql.DB, log zerolog.Logger) *Repository {
	return &Repository{
		db:  db,
		log: log.With().Str("repository", "commerce").Logger(),
	}
}

// UpsertProduct inserts or updates a catalog entry by (product_id, sku_id)
// and reports whether a new row was created.
func (r *Repository) UpsertProduct(q Querier, p *Product) (bool, error) {
	var existingID string
	err := q.QueryRow("SELECT id FROM commerce_products WHERE product_id = ? AND sku_id = ?",
		p.ProductID, p.SkuID).Scan(&existingID)
	if err != nil && !errors.Is(err, sql.ErrNoRows) {
		return false, fmt.Errorf("failed to look up product %s/%s: %w", p.ProductID, p.SkuID, err)
	}

	now := time.Now().Unix()
	if existingID != "" {
		p.ID = existingID
		p.UpdatedAt = now
		_, err = q.Exec(`
			UPDATE commerce_products
			SET product_title = ?, sku_title = ?, publisher = ?, family = ?, updated_at = ?
			WHERE id = ?`,
			p.ProductTitle, p.SkuTitle, p.Publisher, p.Family, p.UpdatedAt, p.ID,
		)
		if err != nil {
			return false, fmt.Errorf("failed to update product %s/%s: %w", p.ProductID, p.SkuID, err)
		}
		return false, nil
	}

	if p.ID == "" {
		p.ID = uuid.New().String()
	}
	p.CreatedAt = now
	p.UpdatedAt = now
	_, err = q.Exec(`
		INSERT INTO commerce_products (id, product_id, sku_id, product_title, sku_title,
			publisher, family, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		p.ID, p.ProductID, p.SkuID, p.ProductTitle, p.SkuTitle,
		p.Publisher, p.Family, p.CreatedAt, p.UpdatedAt,
	)
	if err != nil {
		return false, fmt.Errorf("failed to insert product %s/%s: %w", p.ProductID, p.SkuID, err)
	}
	return true, nil
}

// UpsertPrice inserts or updates a price row by its natural key.
func (r *Repository) UpsertPrice(q Querier, p *Price) error {
	if p.ID == "" {
		p.ID = uuid.New().String()
	}
	now := time.Now().Unix()
	p.CreatedAt = now
	p.UpdatedAt = now

	_, err := q.Exec(`
		INSERT INTO commerce_prices (id, product_id, sku_id, market, currency, segment,
			billing_plan, unit_price, tier_min_quantity, tier_max_quantity,
			effective_start_date, effective_end_date, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (product_id, sku_id, market, currency, segment, billing_plan, effective_start_date)
		DO UPDATE SET
			unit_price = excluded.unit_price,
			tier_min_quantity = excluded.tier_min_quantity,
			tier_max_quantity = excluded.tier_max_quantity,
			effective_end_date = excluded.effective_end_date,
			updated_at = excluded.updated_at`,
		p.ID, p.ProductID, p.SkuID, p.Market, p.Currency, string(p.Segment),
		string(p.BillingPlan), p.UnitPrice.StringFixed(2), p.TierMinQuantity, p.TierMaxQuantity,
		p.EffectiveStartDate, nullIfEmpty(p.EffectiveEndDate), p.CreatedAt, p.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to upsert price %s: %w", p.Key(), err)
	}
	return nil
}

// GetProduct returns a catalog entry by (product_id, sku_id), nil when
// missing.
func (r *Repository) GetProduct(productID, skuID string) (*Product, error) {
	row := r.db.QueryRow(
		"SELECT "+productColumns+" FROM commerce_products WHERE product_id = ? AND sku_id = ?",
		productID, skuID)

	p, err := scanProduct(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to scan product: %w", err)
	}
	return p, nil
}

// ListProducts returns the whole catalog ordered by product then SKU.
func (r *Repository) ListProducts() ([]Product, error) {
	rows, err := r.db.Query("SELECT " + productColumns + " FROM commerce_products ORDER BY product_id, sku_id")
	if err != nil {
		return nil, fmt.Errorf("failed to query products: %w", err)
	}
	defer rows.Close()

	var products []Product
	for rows.Next() {
		p, err := scanProduct(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan product: %w", err)
		}
		products = append(products, *p)
	}
	return products, rows.Err()
}

// CountProducts returns the catalog size.
func (r *Repository) CountProducts() (int, error) {
	var count int
	if err := r.db.QueryRow("SELECT COUNT(*) FROM commerce_products").Scan(&count); err != nil {
		return 0, fmt.Errorf("failed to count products: %w", err)
	}
	return count, nil
}

// CountPrices returns the price list size.
func (r *Repository) CountPrices() (int, error) {
	var count int
	if err := r.db.QueryRow("SELECT COUNT(*) FROM commerce_prices").Scan(&count); err != nil {
		return 0, fmt.Errorf("failed to count prices: %w", err)
	}
	return count, nil
}

// FindPrice returns the price row for a SKU effective on a date in the given
// market, currency, segment, and billing plan, nil when no row matches. When
// several rows are effective the newest start date wins.
func (r *Repository) FindPrice(
	productID, skuID, market, currency string,
	segment domain.Segment,
	plan domain.BillingPlan,
	date string,
) (*Price, error) {
	row := r.db.QueryRow(`
		SELECT `+priceColumns+` FROM commerce_prices
		WHERE product_id = ? AND sku_id = ? AND market = ? AND currency = ?
			AND segment = ? AND billing_plan = ?
			AND effective_start_date <= ?
			AND (effective_end_date IS NULL OR effective_end_date >= ?)
		ORDER BY effective_start_date DESC
		LIMIT 1`,
		productID, skuID, market, currency, string(segment), string(plan), date, date)

	p, err := scanPrice(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to scan price: %w", err)
	}
	return p, nil
}

// ListPricesBySku returns all price rows for a SKU ordered by market and
// start date.
func (r *Repository) ListPricesBySku(skuID string) ([]Price, error) {
	rows, err := r.db.Query(
		"SELECT "+priceColumns+" FROM commerce_prices WHERE sku_id = ? ORDER BY market, effective_start_date",
		skuID)
	if err != nil {
		return nil, fmt.Errorf("failed to query prices: %w", err)
	}
	defer rows.Close()

	var prices []Price
	for rows.Next() {
		p, err := scanPrice(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan price: %w", err)
		}
		prices = append(prices, *p)
	}
	return prices, rows.Err()
}

func scanProduct(s scanner) (*Product, error) {
	var p Product
	err := s.Scan(&p.ID, &p.ProductID, &p.SkuID, &p.ProductTitle, &p.SkuTitle, &p.Publisher,
		&p.Family, &p.CreatedAt, &p.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return &p, nil
}

func scanPrice(s scanner) (*Price, error) {
	var p Price
	var segment, plan, unitPrice string
	var endDate sql.NullString
	err := s.Scan(&p.ID, &p.ProductID, &p.SkuID, &p.Market, &p.Currency, &segment, &plan,
		&unitPrice, &p.TierMinQuantity, &p.TierMaxQuantity, &p.EffectiveStartDate, &endDate,
		&p.CreatedAt, &p.UpdatedAt)
	if err != nil {
		return nil, err
	}

	p.Segment = domain.Segment(segment)
	p.BillingPlan = domain.BillingPlan(plan)
	p.EffectiveEndDate = endDate.String

	p.UnitPrice, err = decimal.NewFromString(unitPrice)
	if err != nil {
		return nil, fmt.Errorf("stored unit price %q is not a decimal: %w", unitPrice, err)
	}
	return &p, nil
}

// scanner abstracts *sql.Row and *sql.Rows.
type scanner interface {
	Scan(dest ...interface{}) error
}

func nullIfEmpty(s string) interface{} {
	if s == "" {
		return nil
	}
	return s
}
