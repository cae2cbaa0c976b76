package optimization

import (
	"context"
	"testing"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/seatwise/seatwise/internal/database"
	"github.com/seatwise/seatwise/internal/domain"
	"github.com/seatwise/seatwise/internal/modules/commerce"
	"github.com/seatwise/seatwise/internal/modules/directory"
	"github.com/seatwise/seatwise/internal/modules/skus"
	seatwisetesting "github.com/seatwise/seatwise/internal/testing"
)

// Directory SKU ids from the seeded catalog.
const (
	skuE1        = "18181a46-0d4e-45cd-891e-60aabd171b4e" // Office 365 E1
	skuE3        = "6fd2c87f-b296-42f0-b197-1e91e994b900" // Office 365 E3
	skuE5        = "c7df2760-2c81-4ef7-b578-5b5392b571df" // Office 365 E5
	skuM365E3    = "05e9a617-0261-4cee-bb44-138d3ef5d965" // Microsoft 365 E3
	skuM365F1    = "44575883-256e-4a79-9da4-ebe9acabe2b2" // Microsoft 365 F1
	skuAudioConf = "0dab259f-bf13-4952-b7f8-7db8f131b28d" // Audio Conferencing add-on
)

const analysisDate = "2025-06-15"

type engineFixture struct {
	snap *skus.Snapshot
	repo *commerce.Repository
	db   *database.DB
}

func newEngineFixture(t *testing.T) *engineFixture {
	t.Helper()

	db, cleanup := seatwisetesting.NewTestDB(t, "commerce")
	t.Cleanup(cleanup)

	log := zerolog.Nop()
	registry := skus.NewRegistry(skus.NewRepository(db.Conn(), log), db, log)
	require.NoError(t, registry.EnsureSeeded(context.Background()))

	return &engineFixture{
		snap: registry.Snapshot(),
		repo: commerce.NewRepository(db.Conn(), log),
		db:   db,
	}
}

// price stores a US commercial monthly price for a directory SKU, effective
// across the analysis date.
func (f *engineFixture) price(t *testing.T, directorySkuID, amount string) {
	t.Helper()

	mapping := f.snap.MappingForDirectorySku(directorySkuID)
	require.NotNil(t, mapping, "sku %s not in seed catalog", directorySkuID)

	require.NoError(t, f.repo.UpsertPrice(f.db.Conn(), &commerce.Price{
		ProductID:          mapping.ProductID,
		SkuID:              mapping.SkuID,
		Market:             "US",
		Currency:           "USD",
		Segment:            domain.SegmentCommercial,
		BillingPlan:        domain.BillingPlanMonthly,
		UnitPrice:          decimal.RequireFromString(amount),
		TierMinQuantity:    1,
		EffectiveStartDate: "2025-01-01",
	}))
}

func (f *engineFixture) engine(t *testing.T, fallback string) *Engine {
	t.Helper()

	book := NewPriceBook(
		f.repo, f.snap, "US", nil, analysisDate,
		decimal.RequireFromString(fallback), zerolog.Nop(),
	)
	return NewEngine(f.snap, book, "en", zerolog.Nop())
}

func enabledUser() *directory.User {
	return &directory.User{ID: "user-1", TenantID: "tenant-1", AccountEnabled: true}
}

func active(skuID string) *directory.LicenseAssignment {
	return &directory.LicenseAssignment{UserID: "user-1", SkuID: skuID, Status: directory.AssignmentActive}
}

func TestEvaluateLowUsageDowngradesToCheapestCoveringSku(t *testing.T) {
	f := newEngineFixture(t)
	f.price(t, skuE1, "8.00")
	f.price(t, skuE3, "23.00")
	f.price(t, skuE5, "35.00")
	e := f.engine(t, "10.00")

	// Light email and Teams usage: both services required, nothing else.
	metrics := &directory.UsageMetrics{EmailsSent: 15, TeamsMessages: 20}

	d := e.Evaluate(enabledUser(), []*directory.LicenseAssignment{active(skuE5)}, metrics)

	require.NotNil(t, d)
	assert.Equal(t, ActionDowngrade, d.Action)
	assert.Equal(t, skuE5, d.CurrentSkuID)
	assert.Equal(t, skuE1, d.RecommendedSkuID)
	assert.True(t, d.CurrentMonthly.Equal(decimal.RequireFromString("35.00")))
	assert.True(t, d.RecommendedMonthly.Equal(decimal.RequireFromString("8.00")))
	assert.True(t, d.MonthlySavings.Equal(decimal.RequireFromString("27.00")))
	assert.Equal(t, ReasonDowngradeE3ToE1, d.ReasonCode)
	assert.Contains(t, d.Reason, "Office 365 E1")
	assert.Equal(t, []domain.Service{domain.ServiceExchange, domain.ServiceTeams}, d.RequiredServices)
}

func TestEvaluateDisabledAccountIsRemoved(t *testing.T) {
	f := newEngineFixture(t)
	f.price(t, skuE3, "23.00")
	e := f.engine(t, "10.00")

	user := enabledUser()
	user.AccountEnabled = false
	// Heavy usage does not save a disabled account.
	metrics := &directory.UsageMetrics{EmailsSent: 500, TeamsMessages: 400}

	d := e.Evaluate(user, []*directory.LicenseAssignment{active(skuE3)}, metrics)

	require.NotNil(t, d)
	assert.Equal(t, ActionRemove, d.Action)
	assert.Empty(t, d.RecommendedSkuID)
	assert.True(t, d.MonthlySavings.Equal(decimal.RequireFromString("23.00")))
	assert.Equal(t, ReasonRemoveAccountDisabled, d.ReasonCode)
	assert.Contains(t, d.Reason, "disabled")
}

func TestEvaluateInactiveUserIsRemoved(t *testing.T) {
	f := newEngineFixture(t)
	f.price(t, skuE3, "23.00")
	e := f.engine(t, "10.00")

	// Two emails in 28 days: every score under the inactivity floor.
	metrics := &directory.UsageMetrics{EmailsSent: 2}

	d := e.Evaluate(enabledUser(), []*directory.LicenseAssignment{active(skuE3)}, metrics)

	require.NotNil(t, d)
	assert.Equal(t, ActionRemove, d.Action)
	assert.Equal(t, ReasonRemoveInactive, d.ReasonCode)
	assert.True(t, d.MonthlySavings.Equal(decimal.RequireFromString("23.00")))
}

func TestEvaluateMissingUsageRowIsNotRemoval(t *testing.T) {
	f := newEngineFixture(t)
	f.price(t, skuE1, "8.00")
	f.price(t, skuE5, "35.00")
	e := f.engine(t, "100.00")

	d := e.Evaluate(enabledUser(), []*directory.LicenseAssignment{active(skuE5)}, nil)

	// No telemetry: the user keeps a license, but the empty required set
	// means the cheapest plan on record suffices.
	require.NotNil(t, d)
	assert.Equal(t, ActionDowngrade, d.Action)
	assert.Equal(t, skuE1, d.RecommendedSkuID)
	assert.True(t, d.MonthlySavings.Equal(decimal.RequireFromString("27.00")))
}

func TestEvaluateWellMatchedLicenseIsNoChange(t *testing.T) {
	f := newEngineFixture(t)
	f.price(t, skuE3, "23.00")
	e := f.engine(t, "100.00")

	metrics := &directory.UsageMetrics{
		EmailsSent:            200,
		OneDriveFilesModified: 40,
		SharePointEdits:       30,
		TeamsMessages:         150,
		HasDesktopActivation:  true,
	}

	d := e.Evaluate(enabledUser(), []*directory.LicenseAssignment{active(skuE3)}, metrics)

	require.NotNil(t, d)
	assert.Equal(t, ActionNoChange, d.Action)
	assert.Equal(t, skuE3, d.RecommendedSkuID)
	assert.True(t, d.MonthlySavings.IsZero())
	assert.Equal(t, ReasonNoChange, d.ReasonCode)
}

func TestEvaluateEqualPriceAlternativeIsNotChurned(t *testing.T) {
	f := newEngineFixture(t)
	f.price(t, skuE1, "23.00")
	f.price(t, skuE3, "23.00")
	e := f.engine(t, "100.00")

	metrics := &directory.UsageMetrics{EmailsSent: 60}

	d := e.Evaluate(enabledUser(), []*directory.LicenseAssignment{active(skuE3)}, metrics)

	// A same-price SKU that also covers the usage is not worth a swap.
	require.NotNil(t, d)
	assert.Equal(t, ActionNoChange, d.Action)
}

func TestEvaluateUpgradeOnlyWhenCoverageFails(t *testing.T) {
	f := newEngineFixture(t)
	f.price(t, skuE1, "8.00")
	f.price(t, skuE3, "23.00")
	e := f.engine(t, "100.00")

	// Desktop activation on an E1: the current plan cannot cover it.
	metrics := &directory.UsageMetrics{EmailsSent: 60, HasDesktopActivation: true}

	d := e.Evaluate(enabledUser(), []*directory.LicenseAssignment{active(skuE1)}, metrics)

	require.NotNil(t, d)
	assert.Equal(t, ActionUpgrade, d.Action)
	assert.Equal(t, skuE3, d.RecommendedSkuID)
	assert.Equal(t, ReasonUpgradeMissingService, d.ReasonCode)
	assert.True(t, d.MonthlySavings.Equal(decimal.RequireFromString("-15.00")))
}

func TestEvaluateFrontlinePlanReason(t *testing.T) {
	f := newEngineFixture(t)
	f.price(t, skuM365F1, "2.25")
	f.price(t, skuE3, "23.00")
	e := f.engine(t, "100.00")

	// Teams chatter only: a frontline plan covers it.
	metrics := &directory.UsageMetrics{TeamsMessages: 30}

	d := e.Evaluate(enabledUser(), []*directory.LicenseAssignment{active(skuE3)}, metrics)

	require.NotNil(t, d)
	assert.Equal(t, ActionDowngrade, d.Action)
	assert.Equal(t, skuM365F1, d.RecommendedSkuID)
	assert.Equal(t, ReasonDowngradeToFrontline, d.ReasonCode)
	assert.True(t, d.MonthlySavings.Equal(decimal.RequireFromString("20.75")))
}

func TestEvaluateAdvancedFeatureDropReason(t *testing.T) {
	f := newEngineFixture(t)
	f.price(t, skuE3, "23.00")
	f.price(t, skuE5, "35.00")
	e := f.engine(t, "100.00")

	// Desktop in use, so E3 is the floor; only the E5 extras go.
	metrics := &directory.UsageMetrics{EmailsSent: 60, HasDesktopActivation: true}

	d := e.Evaluate(enabledUser(), []*directory.LicenseAssignment{active(skuE5)}, metrics)

	require.NotNil(t, d)
	assert.Equal(t, ActionDowngrade, d.Action)
	assert.Equal(t, skuE3, d.RecommendedSkuID)
	assert.Equal(t, ReasonDowngradeE5ToE3, d.ReasonCode)
	assert.True(t, d.MonthlySavings.Equal(decimal.RequireFromString("12.00")))
}

func TestEvaluatePriceTieBreaksOnSkuID(t *testing.T) {
	f := newEngineFixture(t)
	f.price(t, skuE1, "5.00")
	f.price(t, skuM365E3, "5.00")
	f.price(t, skuE5, "35.00")
	e := f.engine(t, "100.00")

	metrics := &directory.UsageMetrics{EmailsSent: 50}

	d := e.Evaluate(enabledUser(), []*directory.LicenseAssignment{active(skuE5)}, metrics)

	// Both candidates cost the same; the lexicographically smaller SKU id
	// wins deterministically.
	require.NotNil(t, d)
	require.True(t, skuM365E3 < skuE1)
	assert.Equal(t, skuM365E3, d.RecommendedSkuID)
}

func TestEvaluateSkipsUsersWithNothingToOptimize(t *testing.T) {
	f := newEngineFixture(t)
	e := f.engine(t, "10.00")
	metrics := &directory.UsageMetrics{EmailsSent: 60}

	// No license at all.
	assert.Nil(t, e.Evaluate(enabledUser(), nil, metrics))

	// Only a suspended assignment.
	suspended := &directory.LicenseAssignment{UserID: "user-1", SkuID: skuE3, Status: directory.AssignmentSuspended}
	assert.Nil(t, e.Evaluate(enabledUser(), []*directory.LicenseAssignment{suspended}, metrics))

	// Only an add-on.
	assert.Nil(t, e.Evaluate(enabledUser(), []*directory.LicenseAssignment{active(skuAudioConf)}, metrics))
}

func TestEvaluateOptimizesMostExpensiveBaseAssignment(t *testing.T) {
	f := newEngineFixture(t)
	f.price(t, skuE1, "8.00")
	f.price(t, skuE5, "35.00")
	e := f.engine(t, "100.00")

	metrics := &directory.UsageMetrics{EmailsSent: 50}
	assignments := []*directory.LicenseAssignment{
		active(skuE1),
		active(skuE5),
		active(skuAudioConf),
	}

	d := e.Evaluate(enabledUser(), assignments, metrics)

	require.NotNil(t, d)
	assert.Equal(t, skuE5, d.CurrentSkuID)
	assert.Equal(t, ActionDowngrade, d.Action)
	assert.True(t, d.MonthlySavings.Equal(decimal.RequireFromString("27.00")))
}

func TestEvaluateUnknownSku(t *testing.T) {
	f := newEngineFixture(t)
	e := f.engine(t, "10.00")

	unknown := "ffffffff-0000-0000-0000-000000000000"
	metrics := &directory.UsageMetrics{EmailsSent: 60}

	// Active user on an unknown SKU: coverage cannot be reasoned about.
	d := e.Evaluate(enabledUser(), []*directory.LicenseAssignment{active(unknown)}, metrics)
	assert.Nil(t, d)

	// A disabled user is still a removal, priced at the fallback.
	user := enabledUser()
	user.AccountEnabled = false
	d = e.Evaluate(user, []*directory.LicenseAssignment{active(unknown)}, metrics)
	require.NotNil(t, d)
	assert.Equal(t, ActionRemove, d.Action)
	assert.True(t, d.MonthlySavings.Equal(decimal.RequireFromString("10.00")))
}
