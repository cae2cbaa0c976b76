package analysis

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"gonum.org/v1/gonum/stat"

	"github.com/seatwise/seatwise/internal/config"
	"github.com/seatwise/seatwise/internal/database"
	"github.com/seatwise/seatwise/internal/domain"
	"github.com/seatwise/seatwise/internal/events"
	"github.com/seatwise/seatwise/internal/modules/directory"
	"github.com/seatwise/seatwise/internal/modules/optimization"
	"github.com/seatwise/seatwise/internal/modules/skus"
	"github.com/seatwise/seatwise/internal/modules/tenants"
)

// OpRunAnalysis is the in-flight fingerprint operation for analysis runs.
const OpRunAnalysis = "analysis:run"

// TenantSource resolves tenants for analysis runs.
type TenantSource interface {
	GetByID(id string) (*tenants.Tenant, error)
}

// DirectorySource loads the synced directory tables the pipeline reads.
type DirectorySource interface {
	ListUsersByTenant(tenantID string) ([]directory.User, error)
	AssignmentsByTenant(tenantID string) (map[string][]directory.LicenseAssignment, error)
	LatestUsageByTenant(tenantID, period string) (map[string]*directory.UsageMetrics, error)
}

// SnapshotSource hands out immutable SKU catalog snapshots. *skus.Registry
// satisfies it.
type SnapshotSource interface {
	Snapshot() *skus.Snapshot
}

// Service runs analyses and owns the recommendation state machine.
type Service struct {
	repo      *Repository
	db        *database.DB
	tenants   TenantSource
	directory DirectorySource
	registry  SnapshotSource
	prices    optimization.PriceFinder
	bus       *events.Bus
	log       zerolog.Logger

	defaultPrice    decimal.Decimal
	marketOverrides map[string]string

	now func() time.Time
}

// NewService creates the analysis orchestrator.
func NewService(
	repo *Repository,
	db *database.DB,
	tenantSource TenantSource,
	directorySource DirectorySource,
	registry SnapshotSource,
	prices optimization.PriceFinder,
	bus *events.Bus,
	cfg *config.Config,
	log zerolog.Logger,
) *Service {
	fallback, err := decimal.NewFromString(cfg.DefaultUnitPrice)
	if err != nil {
		// Config validation rejects unparseable prices; this is the net
		// under a hand-constructed config.
		fallback = decimal.NewFromInt(10)
	}

	return &Service{
		repo:            repo,
		db:              db,
		tenants:         tenantSource,
		directory:       directorySource,
		registry:        registry,
		prices:          prices,
		bus:             bus,
		log:             log.With().Str("service", "analysis").Logger(),
		defaultPrice:    fallback,
		marketOverrides: cfg.PriceMarketOverrides,
		now:             time.Now,
	}
}

// Run executes one analysis for a tenant: snapshot the directory, score and
// evaluate every user, and persist the summary with all recommendations in
// one transaction. The analysis row is created up front with status running
// so observers can see it; any failure flips it to failed with the reason
// recorded.
func (s *Service) Run(ctx context.Context, tenantID string) (*Analysis, error) {
	tenant, err := s.tenants.GetByID(tenantID)
	if err != nil {
		return nil, fmt.Errorf("failed to load tenant %s: %w", tenantID, err)
	}
	if tenant == nil {
		return nil, fmt.Errorf("tenant %s: %w", tenantID, domain.ErrNotFound)
	}
	if tenant.OnboardingState == tenants.StatePending {
		return nil, fmt.Errorf("tenant %s: %w", tenantID, domain.ErrNoData)
	}

	started := s.now()
	a := &Analysis{
		TenantID:     tenantID,
		AnalysisDate: started.Unix(),
		Status:       StatusRunning,
	}
	if err := s.repo.Insert(s.db.Conn(), a); err != nil {
		return nil, err
	}

	s.bus.Emit("analysis", &events.AnalysisStartedData{TenantID: tenantID, AnalysisID: a.ID})

	if err := s.execute(ctx, tenant, a, started); err != nil {
		reason := err.Error()
		if errors.Is(err, context.Canceled) {
			reason = "cancelled"
		}
		if failErr := s.repo.MarkFailed(a.ID, reason); failErr != nil {
			s.log.Error().Err(failErr).Str("analysis_id", a.ID).Msg("Failed to record analysis failure")
		}
		s.bus.Emit("analysis", &events.AnalysisFailedData{
			TenantID:   tenantID,
			AnalysisID: a.ID,
			Reason:     reason,
		})
		return nil, fmt.Errorf("analysis %s: %w", a.ID, err)
	}

	s.bus.Emit("analysis", &events.AnalysisCompletedData{
		TenantID:        tenantID,
		AnalysisID:      a.ID,
		TotalUsers:      int(a.TotalUsers),
		Recommendations: int(a.RecommendationCount),
		SavingsMonthly:  a.SavingsMonthly.StringFixed(2),
	})

	s.log.Info().
		Str("tenant_id", tenantID).
		Str("analysis_id", a.ID).
		Int64("users", a.TotalUsers).
		Int64("recommendations", a.RecommendationCount).
		Str("savings_monthly", a.SavingsMonthly.StringFixed(2)).
		Dur("elapsed", s.now().Sub(started)).
		Msg("Analysis completed")

	return a, nil
}

func (s *Service) execute(ctx context.Context, tenant *tenants.Tenant, a *Analysis, started time.Time) error {
	users, err := s.directory.ListUsersByTenant(tenant.ID)
	if err != nil {
		return fmt.Errorf("failed to load users: %w", err)
	}
	assignments, err := s.directory.AssignmentsByTenant(tenant.ID)
	if err != nil {
		return fmt.Errorf("failed to load assignments: %w", err)
	}
	usage, err := s.directory.LatestUsageByTenant(tenant.ID, directory.DefaultUsagePeriod)
	if err != nil {
		return fmt.Errorf("failed to load usage: %w", err)
	}

	snap := s.registry.Snapshot()
	book := optimization.NewPriceBook(
		s.prices, snap, tenant.CountryCode, s.marketOverrides,
		started.UTC().Format("2006-01-02"), s.defaultPrice, s.log,
	)
	engine := optimization.NewEngine(snap, book, tenant.DefaultLanguage, s.log)

	var recs []*Recommendation
	var activity []float64
	current, optimized := decimal.Zero, decimal.Zero

	for i := range users {
		if err := ctx.Err(); err != nil {
			return err
		}

		user := &users[i]
		d := engine.Evaluate(user, assignmentPtrs(assignments[user.ID]), usage[user.ID])
		if d == nil {
			continue
		}

		activity = append(activity, d.Scores.Peak())
		current = current.Add(d.CurrentMonthly)
		optimized = optimized.Add(d.RecommendedMonthly)

		switch d.Action {
		case optimization.ActionRemove:
			a.RemoveCount++
		case optimization.ActionDowngrade:
			a.DowngradeCount++
		case optimization.ActionUpgrade:
			a.UpgradeCount++
		case optimization.ActionNoChange:
			a.NoChangeCount++
			continue
		}

		recs = append(recs, &Recommendation{
			AnalysisID:        a.ID,
			TenantID:          tenant.ID,
			UserID:            user.ID,
			UserPrincipalName: user.PrincipalName,
			CurrentSku:        d.CurrentSkuID,
			RecommendedSku:    d.RecommendedSkuID,
			Action:            d.Action,
			SavingsMonthly:    d.MonthlySavings,
			ReasonCode:        d.ReasonCode,
			ReasonText:        d.Reason,
			Status:            RecommendationPending,
		})
	}

	a.TotalUsers = int64(len(users))
	a.CurrentMonthlyCost = current.Round(2)
	a.OptimizedMonthlyCost = optimized.Round(2)
	a.SavingsMonthly = current.Sub(optimized).Round(2)
	a.SavingsAnnual = a.SavingsMonthly.Mul(decimal.NewFromInt(12))
	a.RecommendationCount = int64(len(recs))
	a.ActivityMean, a.ActivityMedian, a.ActivityStddev = distribution(activity)

	return database.WithTransactionContext(ctx, s.db.Conn(), func(tx *sql.Tx) error {
		if err := s.repo.UpdateCompleted(tx, a); err != nil {
			return err
		}
		for _, rec := range recs {
			if err := s.repo.InsertRecommendation(tx, rec); err != nil {
				return err
			}
		}
		return nil
	})
}

// Get returns an analysis with its recommendations.
func (s *Service) Get(analysisID string) (*Analysis, []Recommendation, error) {
	a, err := s.repo.GetByID(analysisID)
	if err != nil {
		return nil, nil, err
	}
	if a == nil {
		return nil, nil, fmt.Errorf("analysis %s: %w", analysisID, domain.ErrNotFound)
	}

	recs, err := s.repo.ListRecommendations(analysisID)
	if err != nil {
		return nil, nil, err
	}
	return a, recs, nil
}

// List returns a page of a tenant's analyses, newest first.
func (s *Service) List(tenantID string, limit, offset int) ([]Analysis, int, error) {
	tenant, err := s.tenants.GetByID(tenantID)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to load tenant %s: %w", tenantID, err)
	}
	if tenant == nil {
		return nil, 0, fmt.Errorf("tenant %s: %w", tenantID, domain.ErrNotFound)
	}
	return s.repo.ListByTenant(tenantID, limit, offset)
}

// Apply moves a pending recommendation to accepted or rejected. The status
// flip is a conditional update, so when two applies race exactly one wins
// and the loser gets ErrInvalidTransition.
func (s *Service) Apply(recommendationID, action string) (*Recommendation, error) {
	var status string
	switch action {
	case ApplyAccept:
		status = RecommendationAccepted
	case ApplyReject:
		status = RecommendationRejected
	default:
		return nil, domain.BadRequest("analysis",
			fmt.Sprintf("invalid action %q, want %q or %q", action, ApplyAccept, ApplyReject))
	}

	rec, err := s.repo.GetRecommendation(recommendationID)
	if err != nil {
		return nil, err
	}
	if rec == nil {
		return nil, fmt.Errorf("recommendation %s: %w", recommendationID, domain.ErrNotFound)
	}

	applied, err := s.repo.ApplyRecommendation(recommendationID, status)
	if err != nil {
		return nil, err
	}
	if !applied {
		return nil, fmt.Errorf("recommendation %s is not pending: %w",
			recommendationID, domain.ErrInvalidTransition)
	}

	rec, err = s.repo.GetRecommendation(recommendationID)
	if err != nil {
		return nil, err
	}

	s.bus.Emit("analysis", &events.RecommendationAppliedData{
		RecommendationID: recommendationID,
		TenantID:         rec.TenantID,
		Action:           action,
		Status:           status,
	})

	s.log.Info().
		Str("recommendation_id", recommendationID).
		Str("status", status).
		Msg("Recommendation applied")

	return rec, nil
}

// assignmentPtrs adapts the repository's value slice to the engine's
// pointer slice.
func assignmentPtrs(assignments []directory.LicenseAssignment) []*directory.LicenseAssignment {
	if len(assignments) == 0 {
		return nil
	}
	ptrs := make([]*directory.LicenseAssignment, len(assignments))
	for i := range assignments {
		ptrs[i] = &assignments[i]
	}
	return ptrs
}

// distribution summarizes the per-user peak activity scores. A single
// sample has no spread; an empty run reports zeros.
func distribution(scores []float64) (mean, median, stddev float64) {
	if len(scores) == 0 {
		return 0, 0, 0
	}
	sort.Float64s(scores)
	mean = stat.Mean(scores, nil)
	median = stat.Quantile(0.5, stat.Empirical, scores, nil)
	if len(scores) > 1 {
		stddev = stat.StdDev(scores, nil)
	}
	return mean, median, stddev
}
