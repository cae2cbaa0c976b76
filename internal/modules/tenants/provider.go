package tenants

import (
	"context"

	"github.com/rs/zerolog"

	"github.com/seatwise/seatwise/internal/events"
	"github.com/seatwise/seatwise/internal/identity"
)

// CredentialsProvider adapts the repository to the shape the token cache
// consumes. Keys are tenant external ids. When stored scopes are empty the
// configured default graph scope applies.
type CredentialsProvider struct {
	repo         *Repository
	defaultScope string
	bus          *events.Bus
	log          zerolog.Logger
}

// NewCredentialsProvider creates a provider over the tenant repository.
func NewCredentialsProvider(repo *Repository, defaultScope string, bus *events.Bus, log zerolog.Logger) *CredentialsProvider {
	return &CredentialsProvider{
		repo:         repo,
		defaultScope: defaultScope,
		bus:          bus,
		log:          log.With().Str("component", "tenant_credentials").Logger(),
	}
}

// Credentials resolves the tenant's decrypted credentials.
func (p *CredentialsProvider) Credentials(_ context.Context, key string) (*identity.Credentials, error) {
	creds, err := p.repo.CredentialsForToken(key)
	if err != nil {
		return nil, err
	}

	if len(creds.Scopes) == 0 && p.defaultScope != "" {
		creds.Scopes = []string{p.defaultScope}
	}

	return creds, nil
}

// MarkInvalid flips the stored validity flag and announces the change so
// operators see the tenant needs new credentials.
func (p *CredentialsProvider) MarkInvalid(_ context.Context, key string) error {
	if err := p.repo.MarkCredentialsInvalid(key); err != nil {
		return err
	}

	if p.bus != nil {
		p.bus.Emit("tenants", &events.TenantUpdatedData{
			TenantID: key,
			Change:   "credentials_invalidated",
		})
	}

	return nil
}
