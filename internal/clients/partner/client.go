// Package partner reads the commerce catalog, price sheets, and customer
// subscriptions from the Partner Center API. Unlike the graph client it
// authenticates as the application itself, with one fixed credential.
package partner

import (
	"context"
	"encoding/json"
	"net/url"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"github.com/seatwise/seatwise/internal/clients/rest"
	"github.com/seatwise/seatwise/internal/domain"
)

// TokenKey is the single token-cache key the partner client authenticates
// under.
const TokenKey = "partner"

// Product is one catalog entry, identified by (productId, skuId).
type Product struct {
	ProductID    string `json:"productId"`
	SkuID        string `json:"skuId"`
	ProductTitle string `json:"productTitle"`
	SkuTitle     string `json:"skuTitle"`
	Publisher    string `json:"publisher"`
}

// Price is one price sheet row. Dates are ISO strings; an empty
// EffectiveEndDate means the price is open-ended.
type Price struct {
	ProductID          string          `json:"productId"`
	SkuID              string          `json:"skuId"`
	ProductTitle       string          `json:"productTitle"`
	SkuTitle           string          `json:"skuTitle"`
	Publisher          string          `json:"publisher"`
	Market             string          `json:"market"`
	Currency           string          `json:"currency"`
	UnitPrice          decimal.Decimal `json:"unitPrice"`
	Segment            string          `json:"segment"`
	BillingPlan        string          `json:"billingPlan"`
	TierMinQuantity    int             `json:"tierMinQuantity"`
	TierMaxQuantity    int             `json:"tierMaxQuantity"`
	EffectiveStartDate string          `json:"effectiveStartDate"`
	EffectiveEndDate   string          `json:"effectiveEndDate"`
}

// Subscription is one customer subscription as billed by the partner.
type Subscription struct {
	ID                 string `json:"id"`
	OfferID            string `json:"offerId"`
	OfferName          string `json:"offerName"`
	Quantity           int    `json:"quantity"`
	Status             string `json:"status"`
	BillingCycle       string `json:"billingCycle"`
	EffectiveStartDate string `json:"effectiveStartDate"`
	CommitmentEndDate  string `json:"commitmentEndDate"`
	AutoRenewEnabled   bool   `json:"autoRenewEnabled"`
}

// Client is the Partner Center API client.
type Client struct {
	rest *rest.Client
	log  zerolog.Logger
}

// New creates a partner client. tokens must resolve TokenKey.
func New(baseURL string, timeout time.Duration, tokens rest.TokenSource, log zerolog.Logger) *Client {
	return &Client{
		rest: rest.New(rest.Config{
			Name:    "partner",
			BaseURL: baseURL,
			Timeout: timeout,
			Tokens:  tokens,
			Log:     log,
		}),
		log: log.With().Str("client", "partner").Logger(),
	}
}

// ListProducts pages through the product catalog for one market.
func (c *Client) ListProducts(ctx context.Context, market string) ([]Product, error) {
	raw, err := c.rest.GetAllPages(ctx, TokenKey, "/products?country="+url.QueryEscape(market))
	if err != nil {
		return nil, err
	}

	products := make([]Product, 0, len(raw))
	for _, item := range raw {
		var product Product
		if err := json.Unmarshal(item, &product); err != nil {
			return nil, domain.Parse("partner", "product record is malformed", err)
		}
		products = append(products, product)
	}

	c.log.Debug().Str("market", market).Int("products", len(products)).Msg("Listed catalog products")
	return products, nil
}

// ListPrices pages through the price sheet for one market.
func (c *Client) ListPrices(ctx context.Context, market string) ([]Price, error) {
	raw, err := c.rest.GetAllPages(ctx, TokenKey, "/pricing?country="+url.QueryEscape(market))
	if err != nil {
		return nil, err
	}

	prices := make([]Price, 0, len(raw))
	for _, item := range raw {
		var price Price
		if err := json.Unmarshal(item, &price); err != nil {
			return nil, domain.Parse("partner", "price record is malformed", err)
		}
		prices = append(prices, price)
	}

	c.log.Debug().Str("market", market).Int("prices", len(prices)).Msg("Listed price sheet")
	return prices, nil
}

// ListCustomerSubscriptions pages through one customer's subscriptions.
// customerID is the customer's external directory id.
func (c *Client) ListCustomerSubscriptions(ctx context.Context, customerID string) ([]Subscription, error) {
	path := "/customers/" + url.PathEscape(customerID) + "/subscriptions"

	raw, err := c.rest.GetAllPages(ctx, TokenKey, path)
	if err != nil {
		return nil, err
	}

	subscriptions := make([]Subscription, 0, len(raw))
	for _, item := range raw {
		var subscription Subscription
		if err := json.Unmarshal(item, &subscription); err != nil {
			return nil, domain.Parse("partner", "subscription record is malformed", err)
		}
		subscriptions = append(subscriptions, subscription)
	}

	return subscriptions, nil
}
