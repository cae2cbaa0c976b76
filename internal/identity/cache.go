// Package identity manages bearer tokens for outbound API calls. It caches
// tokens per credential key, refreshes them ahead of expiry, and guarantees
// at most one in-flight acquisition per key.
package identity

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/seatwise/seatwise/internal/clients/authority"
	"github.com/seatwise/seatwise/internal/domain"
)

const (
	// refreshSkew is subtracted from the upstream expiry so tokens are
	// refreshed before they actually lapse mid-request.
	refreshSkew = 5 * time.Minute

	// minTTL keeps very short-lived tokens usable for at least one cycle.
	minTTL = time.Minute
)

// TokenIssuer acquires fresh tokens. Satisfied by authority.Client.
type TokenIssuer interface {
	AcquireToken(ctx context.Context, directoryID, clientID, clientSecret string, scopes []string) (*authority.Token, error)
}

// entry holds one cached token. Its mutex serializes acquisition per key so
// concurrent callers ride a single upstream request.
type entry struct {
	mu         sync.Mutex
	token      string
	validUntil time.Time
}

// TokenCache implements rest.TokenSource on top of a credentials provider
// and a token issuer.
type TokenCache struct {
	issuer   TokenIssuer
	provider CredentialsProvider
	log      zerolog.Logger

	mu      sync.Mutex
	entries map[string]*entry

	now func() time.Time
}

// NewTokenCache creates a cache over the issuer and provider.
func NewTokenCache(issuer TokenIssuer, provider CredentialsProvider, log zerolog.Logger) *TokenCache {
	return &TokenCache{
		issuer:   issuer,
		provider: provider,
		log:      log.With().Str("component", "token_cache").Logger(),
		entries:  make(map[string]*entry),
		now:      time.Now,
	}
}

// Token returns a cached token for the key or acquires a fresh one. Only one
// acquisition runs per key at a time; other keys proceed independently.
func (c *TokenCache) Token(ctx context.Context, key string) (string, error) {
	e := c.entryFor(key)

	e.mu.Lock()
	defer e.mu.Unlock()

	if e.token != "" && c.now().Before(e.validUntil) {
		return e.token, nil
	}

	creds, err := c.provider.Credentials(ctx, key)
	if err != nil {
		return "", err
	}

	token, err := c.issuer.AcquireToken(ctx, creds.DirectoryID, creds.ClientID, creds.ClientSecret, creds.Scopes)
	if err != nil {
		if errors.Is(err, domain.ErrInvalidCredentials) {
			if merr := c.provider.MarkInvalid(ctx, key); merr != nil {
				c.log.Warn().Err(merr).Str("token_key", key).Msg("Failed to mark credentials invalid")
			}
		}
		return "", err
	}

	ttl := token.ExpiresIn - refreshSkew
	if ttl < minTTL {
		ttl = minTTL
	}

	e.token = token.AccessToken
	e.validUntil = c.now().Add(ttl)

	c.log.Debug().
		Str("token_key", key).
		Dur("ttl", ttl).
		Msg("Cached fresh token")

	return e.token, nil
}

// Invalidate drops the cached token for the key. The next Token call
// acquires a fresh one.
func (c *TokenCache) Invalidate(key string) {
	c.mu.Lock()
	e, ok := c.entries[key]
	c.mu.Unlock()
	if !ok {
		return
	}

	e.mu.Lock()
	e.token = ""
	e.validUntil = time.Time{}
	e.mu.Unlock()

	c.log.Debug().Str("token_key", key).Msg("Dropped cached token")
}

// MarkInvalid drops the cached token and records the credential rejection
// with the provider.
func (c *TokenCache) MarkInvalid(ctx context.Context, key string) error {
	c.Invalidate(key)
	return c.provider.MarkInvalid(ctx, key)
}

func (c *TokenCache) entryFor(key string) *entry {
	c.mu.Lock()
	defer c.mu.Unlock()

	e, ok := c.entries[key]
	if !ok {
		e = &entry{}
		c.entries[key] = e
	}
	return e
}
