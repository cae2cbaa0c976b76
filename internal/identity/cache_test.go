package identity

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/seatwise/seatwise/internal/clients/authority"
	"github.com/seatwise/seatwise/internal/domain"
)

type fakeIssuer struct {
	mu        sync.Mutex
	calls     int32
	expiresIn time.Duration
	err       error
	delay     time.Duration
}

func (f *fakeIssuer) AcquireToken(_ context.Context, directoryID, clientID, clientSecret string, scopes []string) (*authority.Token, error) {
	if f.delay > 0 {
		time.Sleep(f.delay)
	}
	n := atomic.AddInt32(&f.calls, 1)
	if f.err != nil {
		return nil, f.err
	}
	return &authority.Token{
		AccessToken: fmt.Sprintf("token-%s-%d", directoryID, n),
		TokenType:   "Bearer",
		ExpiresIn:   f.expiresIn,
	}, nil
}

type fakeProvider struct {
	mu      sync.Mutex
	creds   map[string]*Credentials
	marked  []string
	credErr error
}

func (f *fakeProvider) Credentials(_ context.Context, key string) (*Credentials, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.credErr != nil {
		return nil, f.credErr
	}
	creds, ok := f.creds[key]
	if !ok {
		return nil, domain.NotFound("credentials", "no credentials for "+key)
	}
	return creds, nil
}

func (f *fakeProvider) MarkInvalid(_ context.Context, key string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.marked = append(f.marked, key)
	return nil
}

func newTestCache(issuer *fakeIssuer, provider *fakeProvider) *TokenCache {
	return NewTokenCache(issuer, provider, zerolog.Nop())
}

func singleTenantProvider() *fakeProvider {
	return &fakeProvider{creds: map[string]*Credentials{
		"tenant-1": {DirectoryID: "dir-1", ClientID: "app", ClientSecret: "s", Scopes: []string{"scope"}},
		"tenant-2": {DirectoryID: "dir-2", ClientID: "app", ClientSecret: "s", Scopes: []string{"scope"}},
	}}
}

func TestTokenIsCachedUntilRefreshWindow(t *testing.T) {
	issuer := &fakeIssuer{expiresIn: 3599 * time.Second}
	cache := newTestCache(issuer, singleTenantProvider())

	start := time.Date(2025, 6, 1, 9, 0, 0, 0, time.UTC)
	now := start
	cache.now = func() time.Time { return now }

	first, err := cache.Token(context.Background(), "tenant-1")
	require.NoError(t, err)

	// Inside the window (ttl is expiry minus the five-minute skew, 3299s
	// here) the cached token is reused.
	now = start.Add(3298 * time.Second)
	again, err := cache.Token(context.Background(), "tenant-1")
	require.NoError(t, err)
	assert.Equal(t, first, again)
	assert.EqualValues(t, 1, issuer.calls)

	// Past the window a fresh token is acquired.
	now = start.Add(3300 * time.Second)
	fresh, err := cache.Token(context.Background(), "tenant-1")
	require.NoError(t, err)
	assert.NotEqual(t, first, fresh)
	assert.EqualValues(t, 2, issuer.calls)
}

func TestShortLivedTokenKeptForMinimumTTL(t *testing.T) {
	issuer := &fakeIssuer{expiresIn: 320 * time.Second}
	cache := newTestCache(issuer, singleTenantProvider())

	start := time.Date(2025, 6, 1, 9, 0, 0, 0, time.UTC)
	now := start
	cache.now = func() time.Time { return now }

	_, err := cache.Token(context.Background(), "tenant-1")
	require.NoError(t, err)

	now = start.Add(59 * time.Second)
	_, err = cache.Token(context.Background(), "tenant-1")
	require.NoError(t, err)
	assert.EqualValues(t, 1, issuer.calls)

	now = start.Add(61 * time.Second)
	_, err = cache.Token(context.Background(), "tenant-1")
	require.NoError(t, err)
	assert.EqualValues(t, 2, issuer.calls)
}

func TestConcurrentCallersShareOneAcquisition(t *testing.T) {
	issuer := &fakeIssuer{expiresIn: time.Hour, delay: 20 * time.Millisecond}
	cache := newTestCache(issuer, singleTenantProvider())

	const callers = 10
	tokens := make([]string, callers)
	errs := make([]error, callers)
	var wg sync.WaitGroup
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			tokens[i], errs[i] = cache.Token(context.Background(), "tenant-1")
		}(i)
	}
	wg.Wait()

	for _, err := range errs {
		require.NoError(t, err)
	}
	assert.EqualValues(t, 1, issuer.calls)
	for _, token := range tokens {
		assert.Equal(t, tokens[0], token)
	}
}

func TestDistinctKeysAcquireIndependently(t *testing.T) {
	issuer := &fakeIssuer{expiresIn: time.Hour}
	cache := newTestCache(issuer, singleTenantProvider())

	t1, err := cache.Token(context.Background(), "tenant-1")
	require.NoError(t, err)
	t2, err := cache.Token(context.Background(), "tenant-2")
	require.NoError(t, err)

	assert.NotEqual(t, t1, t2)
	assert.EqualValues(t, 2, issuer.calls)
}

func TestInvalidateForcesReacquisition(t *testing.T) {
	issuer := &fakeIssuer{expiresIn: time.Hour}
	cache := newTestCache(issuer, singleTenantProvider())

	first, err := cache.Token(context.Background(), "tenant-1")
	require.NoError(t, err)

	cache.Invalidate("tenant-1")

	second, err := cache.Token(context.Background(), "tenant-1")
	require.NoError(t, err)
	assert.NotEqual(t, first, second)
	assert.EqualValues(t, 2, issuer.calls)
}

func TestRejectedCredentialsAreMarkedInvalid(t *testing.T) {
	issuer := &fakeIssuer{err: domain.E(domain.KindUnauthorized, "authority", "credentials rejected", domain.ErrInvalidCredentials)}
	provider := singleTenantProvider()
	cache := newTestCache(issuer, provider)

	_, err := cache.Token(context.Background(), "tenant-1")
	require.Error(t, err)
	assert.ErrorIs(t, err, domain.ErrInvalidCredentials)
	assert.Equal(t, []string{"tenant-1"}, provider.marked)
}

func TestTransientIssuerFailureDoesNotMarkInvalid(t *testing.T) {
	issuer := &fakeIssuer{err: domain.Transient("authority", "authority unreachable", nil)}
	provider := singleTenantProvider()
	cache := newTestCache(issuer, provider)

	_, err := cache.Token(context.Background(), "tenant-1")
	require.Error(t, err)
	assert.Empty(t, provider.marked)
}

func TestMarkInvalidDropsTokenAndRecords(t *testing.T) {
	issuer := &fakeIssuer{expiresIn: time.Hour}
	provider := singleTenantProvider()
	cache := newTestCache(issuer, provider)

	_, err := cache.Token(context.Background(), "tenant-1")
	require.NoError(t, err)

	require.NoError(t, cache.MarkInvalid(context.Background(), "tenant-1"))
	assert.Equal(t, []string{"tenant-1"}, provider.marked)

	_, err = cache.Token(context.Background(), "tenant-1")
	require.NoError(t, err)
	assert.EqualValues(t, 2, issuer.calls)
}

func TestStaticProviderServesFixedCredentials(t *testing.T) {
	provider := NewStaticProvider(Credentials{
		DirectoryID:  "partner-dir",
		ClientID:     "partner-app",
		ClientSecret: "partner-secret",
		Scopes:       []string{"https://api.partnercenter.microsoft.com/.default"},
	}, zerolog.Nop())

	creds, err := provider.Credentials(context.Background(), "anything")
	require.NoError(t, err)
	assert.Equal(t, "partner-dir", creds.DirectoryID)

	assert.NoError(t, provider.MarkInvalid(context.Background(), "anything"))
}
