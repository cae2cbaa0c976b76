// Package graph reads directory and usage data from the Microsoft Graph
// API on behalf of individual tenants. All calls are keyed by tenant so the
// shared token cache can scope tokens correctly.
package graph

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"time"

	"github.com/rs/zerolog"

	"github.com/seatwise/seatwise/internal/clients/rest"
	"github.com/seatwise/seatwise/internal/domain"
)

// Report names a usage report endpoint.
type Report string

const (
	ReportEmailActivity      Report = "getEmailActivityUserDetail"
	ReportOneDriveActivity   Report = "getOneDriveActivityUserDetail"
	ReportSharePointActivity Report = "getSharePointActivityUserDetail"
	ReportTeamsActivity      Report = "getTeamsActivityUserDetail"
)

// AllReports lists the usage reports a full usage sync pulls.
var AllReports = []Report{
	ReportEmailActivity,
	ReportOneDriveActivity,
	ReportSharePointActivity,
	ReportTeamsActivity,
}

// validPeriods are the report periods the reports endpoints accept.
var validPeriods = map[string]bool{
	"D7":  true,
	"D28": true,
	"D30": true,
	"D90": true,
}

// User is the wire shape of a directory user.
type User struct {
	ID                string `json:"id"`
	UserPrincipalName string `json:"userPrincipalName"`
	DisplayName       string `json:"displayName"`
	AccountEnabled    bool   `json:"accountEnabled"`
	Department        string `json:"department"`
	JobTitle          string `json:"jobTitle"`
	PreferredLanguage string `json:"preferredLanguage"`
}

// ServicePlan is one service inside a license.
type ServicePlan struct {
	ServicePlanID      string `json:"servicePlanId"`
	ServicePlanName    string `json:"servicePlanName"`
	ProvisioningStatus string `json:"provisioningStatus"`
}

// LicenseDetail is one license assigned to a user.
type LicenseDetail struct {
	ID            string        `json:"id"`
	SkuID         string        `json:"skuId"`
	SkuPartNumber string        `json:"skuPartNumber"`
	ServicePlans  []ServicePlan `json:"servicePlans"`
}

// PrepaidUnits is the seat breakdown of a subscribed SKU.
type PrepaidUnits struct {
	Enabled   int `json:"enabled"`
	Suspended int `json:"suspended"`
	Warning   int `json:"warning"`
}

// SubscribedSku is one SKU the tenant has purchased.
type SubscribedSku struct {
	SkuID            string       `json:"skuId"`
	SkuPartNumber    string       `json:"skuPartNumber"`
	CapabilityStatus string       `json:"capabilityStatus"`
	ConsumedUnits    int          `json:"consumedUnits"`
	PrepaidUnits     PrepaidUnits `json:"prepaidUnits"`
}

// Client is a tenant-scoped graph API client.
type Client struct {
	rest *rest.Client
	log  zerolog.Logger
}

// New creates a graph client. tokens is keyed by tenant.
func New(baseURL string, timeout time.Duration, tokens rest.TokenSource, log zerolog.Logger) *Client {
	return &Client{
		rest: rest.New(rest.Config{
			Name:    "graph",
			BaseURL: baseURL,
			Timeout: timeout,
			Tokens:  tokens,
			Log:     log,
		}),
		log: log.With().Str("client", "graph").Logger(),
	}
}

// ListUsers pages through the tenant's directory users.
func (c *Client) ListUsers(ctx context.Context, tenantKey string) ([]User, error) {
	const path = "/users?$select=id,userPrincipalName,displayName,accountEnabled,department,jobTitle,preferredLanguage&$top=999"

	raw, err := c.rest.GetAllPages(ctx, tenantKey, path)
	if err != nil {
		return nil, err
	}

	users := make([]User, 0, len(raw))
	for _, item := range raw {
		var user User
		if err := json.Unmarshal(item, &user); err != nil {
			return nil, domain.Parse("graph", "user record is malformed", err)
		}
		users = append(users, user)
	}

	c.log.Debug().Str("tenant", tenantKey).Int("users", len(users)).Msg("Listed directory users")
	return users, nil
}

// ListUserLicenseDetails returns the licenses assigned to one user.
func (c *Client) ListUserLicenseDetails(ctx context.Context, tenantKey, userID string) ([]LicenseDetail, error) {
	path := "/users/" + url.PathEscape(userID) + "/licenseDetails"

	raw, err := c.rest.GetAllPages(ctx, tenantKey, path)
	if err != nil {
		return nil, err
	}

	details := make([]LicenseDetail, 0, len(raw))
	for _, item := range raw {
		var detail LicenseDetail
		if err := json.Unmarshal(item, &detail); err != nil {
			return nil, domain.Parse("graph", "license detail record is malformed", err)
		}
		details = append(details, detail)
	}

	return details, nil
}

// ListSubscribedSkus returns the SKUs the tenant has purchased.
func (c *Client) ListSubscribedSkus(ctx context.Context, tenantKey string) ([]SubscribedSku, error) {
	raw, err := c.rest.GetAllPages(ctx, tenantKey, "/subscribedSkus")
	if err != nil {
		return nil, err
	}

	skus := make([]SubscribedSku, 0, len(raw))
	for _, item := range raw {
		var sku SubscribedSku
		if err := json.Unmarshal(item, &sku); err != nil {
			return nil, domain.Parse("graph", "subscribed sku record is malformed", err)
		}
		skus = append(skus, sku)
	}

	c.log.Debug().Str("tenant", tenantKey).Int("skus", len(skus)).Msg("Listed subscribed SKUs")
	return skus, nil
}

// GetUsageReport downloads one usage report as header-keyed CSV records.
// The period must be one of D7, D28, D30, D90.
func (c *Client) GetUsageReport(ctx context.Context, tenantKey string, report Report, period string) ([]map[string]string, error) {
	if !validPeriods[period] {
		return nil, domain.BadRequest("graph", fmt.Sprintf("invalid report period %q, want one of D7, D28, D30, D90", period))
	}

	path := fmt.Sprintf("/reports/%s(period='%s')", report, period)
	records, err := c.rest.GetCSV(ctx, tenantKey, path)
	if err != nil {
		return nil, err
	}

	c.log.Debug().
		Str("tenant", tenantKey).
		Str("report", string(report)).
		Str("period", period).
		Int("rows", len(records)).
		Msg("Downloaded usage report")

	return records, nil
}
