package tenants

import (
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/seatwise/seatwise/internal/domain"
	"github.com/seatwise/seatwise/internal/identity"
	"github.com/seatwise/seatwise/internal/secrets"
	"github.com/seatwise/seatwise/internal/utils"
)

// tenantColumns is the column list for the tenants table, kept explicit so
// schema changes fail loudly instead of shifting scan positions.
const tenantColumns = `id, external_id, display_name, country_code, default_language,
onboarding_state, consented_at, created_at, updated_at`

// Repository handles tenant and credential persistence. Client secrets pass
// through the vault on the way in and out; the plaintext is never stored.
type Repository struct {
	db    *sql.DB
	vault *secrets.Vault
	log   zerolog.Logger
}

// NewRepository creates a tenant repository.
func NewRepository(db *sql.DB, vault *secrets.Vault, log zerolog.Logger) *Repository {
	return &Repository{
		db:    db,
		vault: vault,
		log:   log.With().Str("repository", "tenants").Logger(),
	}
}

// Create inserts a tenant. A missing id is generated.
func (r *Repository) Create(t *Tenant) error {
	if t.ID == "" {
		t.ID = uuid.New().String()
	}
	if t.OnboardingState == "" {
		t.OnboardingState = StatePending
	}

	now := time.Now().Unix()
	t.CreatedAt = now
	t.UpdatedAt = now

	_, err := r.db.Exec(`
		INSERT INTO tenants (id, external_id, display_name, country_code, default_language,
			onboarding_state, consented_at, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		t.ID, t.ExternalID, t.DisplayName, t.CountryCode, t.DefaultLanguage,
		string(t.OnboardingState), t.ConsentedAt, t.CreatedAt, t.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to insert tenant: %w", err)
	}

	return nil
}

// GetByID returns a tenant by id, nil when missing.
func (r *Repository) GetByID(id string) (*Tenant, error) {
	return r.getOne("SELECT "+tenantColumns+" FROM tenants WHERE id = ?", id)
}

// GetByExternalID returns a tenant by its external directory id, nil when
// missing.
func (r *Repository) GetByExternalID(externalID string) (*Tenant, error) {
	return r.getOne("SELECT "+tenantColumns+" FROM tenants WHERE external_id = ?", externalID)
}

func (r *Repository) getOne(query string, arg interface{}) (*Tenant, error) {
	row := r.db.QueryRow(query, arg)

	tenant, err := scanTenant(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to scan tenant: %w", err)
	}

	return tenant, nil
}

// List returns all tenants ordered by display name.
func (r *Repository) List() ([]Tenant, error) {
	rows, err := r.db.Query("SELECT " + tenantColumns + " FROM tenants ORDER BY display_name")
	if err != nil {
		return nil, fmt.Errorf("failed to query tenants: %w", err)
	}
	defer rows.Close()

	var tenants []Tenant
	for rows.Next() {
		tenant, err := scanTenant(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan tenant: %w", err)
		}
		tenants = append(tenants, *tenant)
	}

	return tenants, rows.Err()
}

// ListSyncable returns tenants whose syncs can run: onboarding past pending
// and credentials present and valid.
func (r *Repository) ListSyncable() ([]Tenant, error) {
	rows, err := r.db.Query(`
		SELECT ` + tenantColumns + `
		FROM tenants
		WHERE onboarding_state IN ('configured', 'active')
		  AND id IN (SELECT tenant_id FROM tenant_credentials WHERE is_valid = 1)
		ORDER BY display_name`)
	if err != nil {
		return nil, fmt.Errorf("failed to query syncable tenants: %w", err)
	}
	defer rows.Close()

	var tenants []Tenant
	for rows.Next() {
		tenant, err := scanTenant(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan tenant: %w", err)
		}
		tenants = append(tenants, *tenant)
	}

	return tenants, rows.Err()
}

// UpdateState moves a tenant to a new onboarding state.
func (r *Repository) UpdateState(id string, state OnboardingState) error {
	_, err := r.db.Exec(
		"UPDATE tenants SET onboarding_state = ?, updated_at = ? WHERE id = ?",
		string(state), time.Now().Unix(), id,
	)
	if err != nil {
		return fmt.Errorf("failed to update tenant state: %w", err)
	}
	return nil
}

// RecordConsent stamps the consent timestamp.
func (r *Repository) RecordConsent(id string, at time.Time) error {
	_, err := r.db.Exec(
		"UPDATE tenants SET consented_at = ?, updated_at = ? WHERE id = ?",
		at.Unix(), time.Now().Unix(), id,
	)
	if err != nil {
		return fmt.Errorf("failed to record consent: %w", err)
	}
	return nil
}

// Update persists mutable profile fields.
func (r *Repository) Update(t *Tenant) error {
	t.UpdatedAt = time.Now().Unix()
	_, err := r.db.Exec(`
		UPDATE tenants
		SET display_name = ?, country_code = ?, default_language = ?, updated_at = ?
		WHERE id = ?`,
		t.DisplayName, t.CountryCode, t.DefaultLanguage, t.UpdatedAt, t.ID,
	)
	if err != nil {
		return fmt.Errorf("failed to update tenant: %w", err)
	}
	return nil
}

// UpsertCredentials encrypts the client secret and stores the credential
// row, resetting the validity flag. An empty secret is rejected before any
// write.
func (r *Repository) UpsertCredentials(tenantID, clientID, clientSecret, thumbprint, authorityURL string, scopes []string) error {
	if clientSecret == "" {
		return domain.BadRequest("tenants", "client secret must not be empty")
	}

	ciphertext, err := r.vault.EncryptString(clientSecret)
	if err != nil {
		return fmt.Errorf("failed to encrypt client secret: %w", err)
	}

	now := time.Now().Unix()
	_, err = r.db.Exec(`
		INSERT INTO tenant_credentials (id, tenant_id, client_id, client_secret_enc,
			certificate_thumbprint, authority_url, scopes, is_valid, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, 1, ?, ?)
		ON CONFLICT(tenant_id) DO UPDATE SET
			client_id = excluded.client_id,
			client_secret_enc = excluded.client_secret_enc,
			certificate_thumbprint = excluded.certificate_thumbprint,
			authority_url = excluded.authority_url,
			scopes = excluded.scopes,
			is_valid = 1,
			updated_at = excluded.updated_at`,
		uuid.New().String(), tenantID, clientID, ciphertext,
		thumbprint, authorityURL, utils.JoinCSV(scopes), now, now,
	)
	if err != nil {
		return fmt.Errorf("failed to upsert credentials: %w", err)
	}

	r.log.Info().Str("tenant_id", tenantID).Str("client_id", clientID).Msg("Stored tenant credentials")
	return nil
}

// GetCredentialsInfo returns the API-safe credential metadata, nil when the
// tenant has no credentials.
func (r *Repository) GetCredentialsInfo(tenantID string) (*CredentialsInfo, error) {
	var (
		info    CredentialsInfo
		scopes  string
		isValid int
	)
	err := r.db.QueryRow(`
		SELECT client_id, certificate_thumbprint, authority_url, scopes, is_valid, updated_at
		FROM tenant_credentials WHERE tenant_id = ?`, tenantID,
	).Scan(&info.ClientID, &info.CertificateThumbprint, &info.AuthorityURL, &scopes, &isValid, &info.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read credentials: %w", err)
	}

	info.Scopes = utils.ParseCSV(scopes)
	info.IsValid = isValid == 1
	return &info, nil
}

// CredentialsForToken resolves a tenant external id to decrypted
// credentials for the token cache. Credentials flagged invalid surface
// domain.ErrInvalidCredentials without being decrypted.
func (r *Repository) CredentialsForToken(externalID string) (*identity.Credentials, error) {
	var (
		clientID   string
		ciphertext []byte
		scopes     string
		isValid    int
	)
	err := r.db.QueryRow(`
		SELECT c.client_id, c.client_secret_enc, c.scopes, c.is_valid
		FROM tenant_credentials c
		JOIN tenants t ON t.id = c.tenant_id
		WHERE t.external_id = ?`, externalID,
	).Scan(&clientID, &ciphertext, &scopes, &isValid)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, domain.NotFound("tenants", "no credentials for tenant "+externalID)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read credentials: %w", err)
	}

	if isValid != 1 {
		return nil, domain.E(domain.KindUnauthorized, "tenants",
			"credentials for tenant "+externalID+" are flagged invalid", domain.ErrInvalidCredentials)
	}

	secret, err := r.vault.DecryptString(ciphertext)
	if err != nil {
		return nil, fmt.Errorf("failed to decrypt client secret: %w", err)
	}
	if secret == "" {
		return nil, domain.Internal("tenants", "decrypted client secret is empty", nil)
	}

	return &identity.Credentials{
		DirectoryID:  externalID,
		ClientID:     clientID,
		ClientSecret: secret,
		Scopes:       utils.ParseCSV(scopes),
	}, nil
}

// MarkCredentialsInvalid flips the validity flag after an upstream
// rejection and parks the tenant in the error state for operator attention.
func (r *Repository) MarkCredentialsInvalid(externalID string) error {
	now := time.Now().Unix()

	_, err := r.db.Exec(`
		UPDATE tenant_credentials SET is_valid = 0, updated_at = ?
		WHERE tenant_id = (SELECT id FROM tenants WHERE external_id = ?)`,
		now, externalID,
	)
	if err != nil {
		return fmt.Errorf("failed to mark credentials invalid: %w", err)
	}

	_, err = r.db.Exec(
		"UPDATE tenants SET onboarding_state = ?, updated_at = ? WHERE external_id = ?",
		string(StateError), now, externalID,
	)
	if err != nil {
		return fmt.Errorf("failed to park tenant in error state: %w", err)
	}

	r.log.Warn().Str("tenant_external_id", externalID).Msg("Tenant credentials marked invalid")
	return nil
}

// scanner covers both *sql.Row and *sql.Rows.
type scanner interface {
	Scan(dest ...interface{}) error
}

func scanTenant(s scanner) (*Tenant, error) {
	var (
		t           Tenant
		state       string
		consentedAt sql.NullInt64
	)
	err := s.Scan(&t.ID, &t.ExternalID, &t.DisplayName, &t.CountryCode, &t.DefaultLanguage,
		&state, &consentedAt, &t.CreatedAt, &t.UpdatedAt)
	if err != nil {
		return nil, err
	}

	t.OnboardingState = OnboardingState(state)
	if consentedAt.Valid {
		t.ConsentedAt = &consentedAt.Int64
	}

	return &t, nil
}
