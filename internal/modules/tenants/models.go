// Package tenants manages the customer tenants the engine works for: their
// onboarding lifecycle and their encrypted API credentials.
package tenants

import (
	"encoding/json"
	"time"
)

// OnboardingState tracks how far a tenant has come before syncs can run.
type OnboardingState string

const (
	StatePending    OnboardingState = "pending"
	StateConfigured OnboardingState = "configured"
	StateActive     OnboardingState = "active"
	StateError      OnboardingState = "error"
)

// Tenant is one managed customer tenant. ExternalID is the tenant's id in
// the external directory and doubles as the token-cache key.
type Tenant struct {
	ID              string          `json:"id"`
	ExternalID      string          `json:"external_id"`
	DisplayName     string          `json:"display_name"`
	CountryCode     string          `json:"country_code"`
	DefaultLanguage string          `json:"default_language"`
	OnboardingState OnboardingState `json:"onboarding_state"`
	ConsentedAt     *int64          `json:"-"` // Unix seconds, formatted in MarshalJSON
	CreatedAt       int64           `json:"created_at"`
	UpdatedAt       int64           `json:"updated_at"`
}

// MarshalJSON converts the consent timestamp to RFC3339 for the API.
func (t Tenant) MarshalJSON() ([]byte, error) {
	type Alias Tenant
	aux := &struct {
		ConsentedAt string `json:"consented_at,omitempty"`
		*Alias
	}{
		Alias: (*Alias)(&t),
	}

	if t.ConsentedAt != nil {
		aux.ConsentedAt = time.Unix(*t.ConsentedAt, 0).UTC().Format(time.RFC3339)
	}

	return json.Marshal(aux)
}

// CredentialsInfo is the API-safe view of stored credentials. The secret is
// never part of it, in any form.
type CredentialsInfo struct {
	ClientID              string   `json:"client_id"`
	CertificateThumbprint string   `json:"certificate_thumbprint,omitempty"`
	AuthorityURL          string   `json:"authority_url,omitempty"`
	Scopes                []string `json:"scopes,omitempty"`
	IsValid               bool     `json:"is_valid"`
	UpdatedAt             int64    `json:"updated_at"`
}
