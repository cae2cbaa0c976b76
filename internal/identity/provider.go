package identity

import (
	"context"

	"github.com/rs/zerolog"
)

// Credentials is the decrypted material needed for a client-credentials
// grant. The secret exists only in memory; it is never persisted or logged
// in this form.
type Credentials struct {
	DirectoryID  string
	ClientID     string
	ClientSecret string
	Scopes       []string
}

// CredentialsProvider resolves a token key to usable credentials. The tenant
// module backs this with the credentials table and the vault; the partner
// client uses a StaticProvider. Providers return
// domain.ErrInvalidCredentials for keys whose stored credentials are flagged
// invalid.
type CredentialsProvider interface {
	Credentials(ctx context.Context, key string) (*Credentials, error)
	// MarkInvalid records that upstream rejected the key's credentials.
	MarkInvalid(ctx context.Context, key string) error
}

// StaticProvider serves one fixed set of credentials regardless of key.
// Used for the partner API, which authenticates as the application itself.
type StaticProvider struct {
	creds Credentials
	log   zerolog.Logger
}

// NewStaticProvider creates a provider around fixed credentials.
func NewStaticProvider(creds Credentials, log zerolog.Logger) *StaticProvider {
	return &StaticProvider{
		creds: creds,
		log:   log.With().Str("component", "static_credentials").Logger(),
	}
}

// Credentials returns a copy of the fixed credentials.
func (p *StaticProvider) Credentials(_ context.Context, _ string) (*Credentials, error) {
	creds := p.creds
	return &creds, nil
}

// MarkInvalid only logs; static credentials come from configuration and
// have no stored validity flag to flip.
func (p *StaticProvider) MarkInvalid(_ context.Context, key string) error {
	p.log.Warn().Str("token_key", key).Msg("Configured credentials rejected upstream")
	return nil
}
