package tenants

import (
	"bytes"
	"context"
	"sync"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/seatwise/seatwise/internal/domain"
	"github.com/seatwise/seatwise/internal/events"
	"github.com/seatwise/seatwise/internal/secrets"
	seatwisetesting "github.com/seatwise/seatwise/internal/testing"
)

type recordingInvalidator struct {
	mu   sync.Mutex
	keys []string
}

func (r *recordingInvalidator) Invalidate(key string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.keys = append(r.keys, key)
}

func newTestService(t *testing.T) (*Service, *recordingInvalidator) {
	t.Helper()

	db, cleanup := seatwisetesting.NewTestDB(t, "tenants")
	t.Cleanup(cleanup)

	vault, err := secrets.NewFromKey(bytes.Repeat([]byte{0x42}, 32))
	require.NoError(t, err)

	repo := NewRepository(db.Conn(), vault, zerolog.Nop())
	invalidator := &recordingInvalidator{}
	return NewService(repo, events.NewBus(), invalidator, zerolog.Nop()), invalidator
}

func TestCreateTenantValidation(t *testing.T) {
	service, _ := newTestService(t)

	tests := []struct {
		name  string
		input CreateTenantInput
	}{
		{"missing external id", CreateTenantInput{DisplayName: "X"}},
		{"missing display name", CreateTenantInput{ExternalID: "ext-1"}},
		{"bad country", CreateTenantInput{ExternalID: "ext-1", DisplayName: "X", CountryCode: "USA"}},
		{"numeric country", CreateTenantInput{ExternalID: "ext-1", DisplayName: "X", CountryCode: "1A"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := service.CreateTenant(tt.input)
			require.Error(t, err)
			assert.Equal(t, domain.KindBadRequest, domain.KindOf(err))
		})
	}
}

func TestCreateTenantDefaults(t *testing.T) {
	service, _ := newTestService(t)

	tenant, err := service.CreateTenant(CreateTenantInput{
		ExternalID:  "ext-1",
		DisplayName: "Contoso",
		CountryCode: "de",
	})
	require.NoError(t, err)
	assert.Equal(t, "DE", tenant.CountryCode)
	assert.Equal(t, "en", tenant.DefaultLanguage)
	assert.Equal(t, StatePending, tenant.OnboardingState)
}

func TestCreateTenantDuplicate(t *testing.T) {
	service, _ := newTestService(t)

	_, err := service.CreateTenant(CreateTenantInput{ExternalID: "ext-1", DisplayName: "A"})
	require.NoError(t, err)

	_, err = service.CreateTenant(CreateTenantInput{ExternalID: "ext-1", DisplayName: "B"})
	require.Error(t, err)
	assert.Equal(t, domain.KindBadRequest, domain.KindOf(err))
}

func TestOnboardingFlow(t *testing.T) {
	service, invalidator := newTestService(t)

	tenant, err := service.CreateTenant(CreateTenantInput{ExternalID: "ext-1", DisplayName: "Contoso"})
	require.NoError(t, err)

	// Consent before credentials does not activate.
	updated, err := service.RecordConsent(tenant.ID)
	require.NoError(t, err)
	assert.Equal(t, StatePending, updated.OnboardingState)
	assert.NotNil(t, updated.ConsentedAt)

	err = service.UpdateCredentials(tenant.ID, CredentialsInput{ClientID: "app", ClientSecret: "secret"})
	require.NoError(t, err)

	updated, err = service.GetTenant(tenant.ID)
	require.NoError(t, err)
	assert.Equal(t, StateConfigured, updated.OnboardingState)
	assert.Equal(t, []string{"ext-1"}, invalidator.keys)

	updated, err = service.RecordConsent(tenant.ID)
	require.NoError(t, err)
	assert.Equal(t, StateActive, updated.OnboardingState)
}

func TestUpdateCredentialsUnknownTenant(t *testing.T) {
	service, _ := newTestService(t)

	err := service.UpdateCredentials("missing", CredentialsInput{ClientID: "app", ClientSecret: "s"})
	require.Error(t, err)
	assert.Equal(t, domain.KindNotFound, domain.KindOf(err))
}

func TestUpdateCredentialsValidation(t *testing.T) {
	service, _ := newTestService(t)

	tenant, err := service.CreateTenant(CreateTenantInput{ExternalID: "ext-1", DisplayName: "Contoso"})
	require.NoError(t, err)

	err = service.UpdateCredentials(tenant.ID, CredentialsInput{ClientSecret: "s"})
	require.Error(t, err)
	assert.Equal(t, domain.KindBadRequest, domain.KindOf(err))

	err = service.UpdateCredentials(tenant.ID, CredentialsInput{ClientID: "app"})
	require.Error(t, err)
	assert.Equal(t, domain.KindBadRequest, domain.KindOf(err))
}

func TestGetCredentialsInfoNeverCarriesSecret(t *testing.T) {
	service, _ := newTestService(t)

	tenant, err := service.CreateTenant(CreateTenantInput{ExternalID: "ext-1", DisplayName: "Contoso"})
	require.NoError(t, err)
	require.NoError(t, service.UpdateCredentials(tenant.ID, CredentialsInput{ClientID: "app", ClientSecret: "super-secret"}))

	info, err := service.GetCredentialsInfo(tenant.ID)
	require.NoError(t, err)
	assert.Equal(t, "app", info.ClientID)
	assert.True(t, info.IsValid)
}

func TestTenantChangesPublishToBus(t *testing.T) {
	db, cleanup := seatwisetesting.NewTestDB(t, "tenants")
	t.Cleanup(cleanup)

	vault, err := secrets.NewFromKey(bytes.Repeat([]byte{0x42}, 32))
	require.NoError(t, err)
	repo := NewRepository(db.Conn(), vault, zerolog.Nop())

	bus := events.NewBus()
	var changes []string
	bus.Subscribe(events.TenantUpdated, func(e *events.Event) {
		changes = append(changes, e.Data["change"].(string))
	})

	service := NewService(repo, bus, &recordingInvalidator{}, zerolog.Nop())
	tenant, err := service.CreateTenant(CreateTenantInput{ExternalID: "ext-1", DisplayName: "Contoso"})
	require.NoError(t, err)
	require.NoError(t, service.UpdateCredentials(tenant.ID, CredentialsInput{ClientID: "app", ClientSecret: "s3cret"}))

	provider := NewCredentialsProvider(repo, "https://graph.microsoft.com/.default", bus, zerolog.Nop())
	require.NoError(t, provider.MarkInvalid(context.Background(), tenant.ExternalID))

	assert.Equal(t, []string{"created", "credentials", "credentials_invalidated"}, changes)
}
