package tenants

import (
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/seatwise/seatwise/internal/domain"
	"github.com/seatwise/seatwise/internal/events"
)

// TokenInvalidator drops cached tokens when credentials change.
type TokenInvalidator interface {
	Invalidate(key string)
}

// Service implements the tenant onboarding flow on top of the repository.
type Service struct {
	repo   *Repository
	bus    *events.Bus
	tokens TokenInvalidator
	log    zerolog.Logger
}

// NewService creates a tenant service. tokens may be nil in tests.
func NewService(repo *Repository, bus *events.Bus, tokens TokenInvalidator, log zerolog.Logger) *Service {
	return &Service{
		repo:   repo,
		bus:    bus,
		tokens: tokens,
		log:    log.With().Str("service", "tenants").Logger(),
	}
}

// CreateTenantInput carries the onboarding surface for a new tenant.
type CreateTenantInput struct {
	ExternalID      string `json:"external_id"`
	DisplayName     string `json:"display_name"`
	CountryCode     string `json:"country_code"`
	DefaultLanguage string `json:"default_language"`
}

// CreateTenant validates and registers a tenant in the pending state.
func (s *Service) CreateTenant(input CreateTenantInput) (*Tenant, error) {
	externalID := strings.TrimSpace(input.ExternalID)
	if externalID == "" {
		return nil, domain.BadRequest("tenants", "external_id is required")
	}
	if strings.TrimSpace(input.DisplayName) == "" {
		return nil, domain.BadRequest("tenants", "display_name is required")
	}

	country := strings.ToUpper(strings.TrimSpace(input.CountryCode))
	if country == "" {
		country = "US"
	}
	if len(country) != 2 || !isAlpha(country) {
		return nil, domain.BadRequest("tenants", "country_code must be a two-letter ISO code")
	}

	language := strings.ToLower(strings.TrimSpace(input.DefaultLanguage))
	if language == "" {
		language = "en"
	}

	if existing, err := s.repo.GetByExternalID(externalID); err != nil {
		return nil, err
	} else if existing != nil {
		return nil, domain.BadRequest("tenants", "tenant with this external_id already exists")
	}

	tenant := &Tenant{
		ExternalID:      externalID,
		DisplayName:     strings.TrimSpace(input.DisplayName),
		CountryCode:     country,
		DefaultLanguage: language,
		OnboardingState: StatePending,
	}
	if err := s.repo.Create(tenant); err != nil {
		return nil, err
	}

	s.log.Info().Str("tenant_id", tenant.ID).Str("display_name", tenant.DisplayName).Msg("Tenant created")
	s.emit(&events.TenantUpdatedData{TenantID: tenant.ID, Change: "created"})

	return tenant, nil
}

// CredentialsInput carries new client credentials for a tenant. The secret
// arrives in plaintext over the internal facade and is encrypted before it
// touches disk.
type CredentialsInput struct {
	ClientID              string   `json:"client_id"`
	ClientSecret          string   `json:"client_secret"`
	CertificateThumbprint string   `json:"certificate_thumbprint"`
	AuthorityURL          string   `json:"authority_url"`
	Scopes                []string `json:"scopes"`
}

// UpdateCredentials stores fresh credentials, advances pending tenants to
// configured, and drops any cached token so the next call authenticates
// with the new secret.
func (s *Service) UpdateCredentials(tenantID string, input CredentialsInput) error {
	tenant, err := s.repo.GetByID(tenantID)
	if err != nil {
		return err
	}
	if tenant == nil {
		return domain.NotFound("tenants", "tenant "+tenantID+" not found")
	}

	if strings.TrimSpace(input.ClientID) == "" {
		return domain.BadRequest("tenants", "client_id is required")
	}
	if input.ClientSecret == "" {
		return domain.BadRequest("tenants", "client_secret is required")
	}

	err = s.repo.UpsertCredentials(tenantID, strings.TrimSpace(input.ClientID), input.ClientSecret,
		strings.TrimSpace(input.CertificateThumbprint), strings.TrimSpace(input.AuthorityURL), input.Scopes)
	if err != nil {
		return err
	}

	// Fresh credentials clear the error state too.
	if tenant.OnboardingState == StatePending || tenant.OnboardingState == StateError {
		if err := s.repo.UpdateState(tenantID, StateConfigured); err != nil {
			return err
		}
	}

	if s.tokens != nil {
		s.tokens.Invalidate(tenant.ExternalID)
	}

	s.emit(&events.TenantUpdatedData{TenantID: tenantID, Change: "credentials"})
	return nil
}

// RecordConsent stamps consent and activates configured tenants.
func (s *Service) RecordConsent(tenantID string) (*Tenant, error) {
	tenant, err := s.repo.GetByID(tenantID)
	if err != nil {
		return nil, err
	}
	if tenant == nil {
		return nil, domain.NotFound("tenants", "tenant "+tenantID+" not found")
	}

	if err := s.repo.RecordConsent(tenantID, time.Now()); err != nil {
		return nil, err
	}

	if tenant.OnboardingState == StateConfigured {
		if err := s.repo.UpdateState(tenantID, StateActive); err != nil {
			return nil, err
		}
	}

	return s.GetTenant(tenantID)
}

// GetTenant returns one tenant or NotFound.
func (s *Service) GetTenant(tenantID string) (*Tenant, error) {
	tenant, err := s.repo.GetByID(tenantID)
	if err != nil {
		return nil, err
	}
	if tenant == nil {
		return nil, domain.NotFound("tenants", "tenant "+tenantID+" not found")
	}
	return tenant, nil
}

// ListTenants returns all tenants.
func (s *Service) ListTenants() ([]Tenant, error) {
	return s.repo.List()
}

// GetCredentialsInfo returns credential metadata for a tenant, or NotFound
// when none are stored yet.
func (s *Service) GetCredentialsInfo(tenantID string) (*CredentialsInfo, error) {
	if _, err := s.GetTenant(tenantID); err != nil {
		return nil, err
	}

	info, err := s.repo.GetCredentialsInfo(tenantID)
	if err != nil {
		return nil, err
	}
	if info == nil {
		return nil, domain.NotFound("tenants", "tenant "+tenantID+" has no credentials")
	}
	return info, nil
}

func (s *Service) emit(data events.EventData) {
	if s.bus != nil {
		s.bus.Emit("tenants", data)
	}
}

func isAlpha(s string) bool {
	for _, r := range s {
		if r < 'A' || r > 'Z' {
			return false
		}
	}
	return true
}
