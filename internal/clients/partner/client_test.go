package partner

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type staticTokens struct{}

func (staticTokens) Token(context.Context, string) (string, error) { return "partner-token", nil }
func (staticTokens) Invalidate(string)                             {}
func (staticTokens) MarkInvalid(context.Context, string) error     { return nil }

func newTestPartner(server *httptest.Server) *Client {
	return New(server.URL, time.Second, staticTokens{}, zerolog.Nop())
}

func TestListPrices(t *testing.T) {
	mux := http.NewServeMux()
	server := httptest.NewServer(mux)
	defer server.Close()

	mux.HandleFunc("/pricing", func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "US", r.URL.Query().Get("country"))
		assert.Equal(t, "Bearer partner-token", r.Header.Get("Authorization"))
		fmt.Fprintf(w, `{
			"value":[
				{"productId":"CFQ7TTC0LF8R","skuId":"0001","productTitle":"Microsoft 365 E3","skuTitle":"Microsoft 365 E3",
				 "publisher":"Microsoft","market":"US","currency":"USD","unitPrice":36.00,"segment":"Commercial",
				 "billingPlan":"Monthly","tierMinQuantity":1,"tierMaxQuantity":10000000,
				 "effectiveStartDate":"2025-01-01","effectiveEndDate":""}
			],
			"nextLink":"%s/pricing/page2"
		}`, server.URL)
	})
	mux.HandleFunc("/pricing/page2", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"value":[
			{"productId":"CFQ7TTC0LFLX","skuId":"0001","productTitle":"Microsoft 365 E5","skuTitle":"Microsoft 365 E5",
			 "publisher":"Microsoft","market":"US","currency":"USD","unitPrice":"57.00","segment":"Commercial",
			 "billingPlan":"Monthly","effectiveStartDate":"2025-01-01"}
		]}`)
	})

	prices, err := newTestPartner(server).ListPrices(context.Background(), "US")
	require.NoError(t, err)
	require.Len(t, prices, 2)
	assert.Equal(t, "CFQ7TTC0LF8R", prices[0].ProductID)
	assert.Equal(t, "36", prices[0].UnitPrice.String())
	// Quoted decimals decode the same as bare numbers.
	assert.Equal(t, "57", prices[1].UnitPrice.String())
	assert.Equal(t, "Monthly", prices[1].BillingPlan)
}

func TestListProducts(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/products", r.URL.Path)
		assert.Equal(t, "DE", r.URL.Query().Get("country"))
		fmt.Fprint(w, `{"value":[
			{"productId":"CFQ7TTC0LH18","skuId":"0001","productTitle":"Microsoft 365 Business Premium",
			 "skuTitle":"Microsoft 365 Business Premium","publisher":"Microsoft"}
		]}`)
	}))
	defer server.Close()

	products, err := newTestPartner(server).ListProducts(context.Background(), "DE")
	require.NoError(t, err)
	require.Len(t, products, 1)
	assert.Equal(t, "Microsoft 365 Business Premium", products[0].ProductTitle)
}

func TestListCustomerSubscriptions(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/customers/cust-1/subscriptions", r.URL.Path)
		fmt.Fprint(w, `{"value":[
			{"id":"sub-1","offerId":"offer-1","offerName":"Microsoft 365 E3","quantity":120,"status":"active",
			 "billingCycle":"monthly","effectiveStartDate":"2025-01-15","commitmentEndDate":"2026-01-14",
			 "autoRenewEnabled":true}
		]}`)
	}))
	defer server.Close()

	subs, err := newTestPartner(server).ListCustomerSubscriptions(context.Background(), "cust-1")
	require.NoError(t, err)
	require.Len(t, subs, 1)
	assert.Equal(t, 120, subs[0].Quantity)
	assert.True(t, subs[0].AutoRenewEnabled)
}
