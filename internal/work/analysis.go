package work

import (
	"context"
	"time"

	"github.com/rs/zerolog"

	"github.com/seatwise/seatwise/internal/modules/analysis"
	"github.com/seatwise/seatwise/internal/modules/directory"
)

// AnalysisRunner is the slice of the analysis service the work type calls.
type AnalysisRunner interface {
	Run(ctx context.Context, tenantID string) (*analysis.Analysis, error)
}

// AnalysisDeps contains the dependencies for the analysis work type.
type AnalysisDeps struct {
	Tenants  TenantSource
	Analyses AnalysisRunner
	Log      zerolog.Logger
}

// RegisterAnalysisWorkTypes registers the scheduled analysis run. It waits
// for the tenant's license and usage syncs, so the first analysis of a fresh
// tenant only runs over populated directory data.
func RegisterAnalysisWorkTypes(registry *Registry, deps *AnalysisDeps) {
	registry.Register(&WorkType{
		ID:           analysis.OpRunAnalysis,
		DependsOn:    []string{directory.OpSyncLicenses, directory.OpSyncUsage},
		Priority:     PriorityMedium,
		Interval:     24 * time.Hour,
		FindSubjects: func() []string { return syncableTenantIDs(deps.Tenants, deps.Log) },
		Execute: func(ctx context.Context, subject string) error {
			_, err := deps.Analyses.Run(ctx, subject)
			return err
		},
	})
}
