package work

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/seatwise/seatwise/internal/modules/commerce"
	"github.com/seatwise/seatwise/internal/modules/directory"
	"github.com/seatwise/seatwise/internal/modules/tenants"
)

// TenantSource lists the tenants eligible for background work and resolves
// subjects back to tenant records.
type TenantSource interface {
	ListSyncable() ([]tenants.Tenant, error)
	GetByID(id string) (*tenants.Tenant, error)
}

// DirectorySyncer is the slice of the directory sync service the work types
// call.
type DirectorySyncer interface {
	SyncUsers(ctx context.Context, tenant *tenants.Tenant) (*directory.UserSyncStats, error)
	SyncLicenses(ctx context.Context, tenant *tenants.Tenant) (*directory.LicenseSyncStats, error)
	SyncUsage(ctx context.Context, tenant *tenants.Tenant, period string) (*directory.UsageSyncStats, error)
}

// CommerceSyncer is the slice of the commerce sync service the work types
// call.
type CommerceSyncer interface {
	SyncProducts(ctx context.Context) (*commerce.ProductSyncStats, error)
	SyncPrices(ctx context.Context) (*commerce.PriceSyncStats, error)
	PricesFresh() bool
}

// SyncDeps contains the dependencies for the sync work types.
type SyncDeps struct {
	Tenants   TenantSource
	Directory DirectorySyncer
	Commerce  CommerceSyncer

	// UsagePeriod is the report window for usage syncs. Empty means the
	// directory default.
	UsagePeriod string

	// Interval is the gap between directory sweeps per tenant. Usage
	// reports refresh at twice that; zero means the 6 hour default.
	Interval time.Duration

	Log zerolog.Logger
}

// RegisterSyncWorkTypes registers the directory and commerce sync work
// types. The directory chain fans out per syncable tenant; licenses and
// usage wait for the same tenant's user sync so assignment and usage rows
// always find their user.
func RegisterSyncWorkTypes(registry *Registry, deps *SyncDeps) {
	period := deps.UsagePeriod
	if period == "" {
		period = directory.DefaultUsagePeriod
	}

	interval := deps.Interval
	if interval <= 0 {
		interval = 6 * time.Hour
	}

	registry.Register(&WorkType{
		ID:           directory.OpSyncUsers,
		Priority:     PriorityCritical,
		Interval:     interval,
		FindSubjects: func() []string { return syncableTenantIDs(deps.Tenants, deps.Log) },
		Execute: func(ctx context.Context, subject string) error {
			tenant, err := resolveTenant(deps.Tenants, subject)
			if err != nil {
				return err
			}
			_, err = deps.Directory.SyncUsers(ctx, tenant)
			return err
		},
	})

	registry.Register(&WorkType{
		ID:           directory.OpSyncLicenses,
		DependsOn:    []string{directory.OpSyncUsers},
		Priority:     PriorityHigh,
		Interval:     interval,
		FindSubjects: func() []string { return syncableTenantIDs(deps.Tenants, deps.Log) },
		Execute: func(ctx context.Context, subject string) error {
			tenant, err := resolveTenant(deps.Tenants, subject)
			if err != nil {
				return err
			}
			_, err = deps.Directory.SyncLicenses(ctx, tenant)
			return err
		},
	})

	registry.Register(&WorkType{
		ID:           directory.OpSyncUsage,
		DependsOn:    []string{directory.OpSyncUsers},
		Priority:     PriorityHigh,
		Interval:     2 * interval,
		FindSubjects: func() []string { return syncableTenantIDs(deps.Tenants, deps.Log) },
		Execute: func(ctx context.Context, subject string) error {
			tenant, err := resolveTenant(deps.Tenants, subject)
			if err != nil {
				return err
			}
			_, err = deps.Directory.SyncUsage(ctx, tenant, period)
			return err
		},
	})

	// The commerce refresh is process-global: one price list serves every
	// tenant. A fresh cache skips the network round trip entirely. Without
	// partner credentials there is no syncer, so the work type is not
	// registered at all; prices then come from CSV imports only.
	if deps.Commerce == nil {
		return
	}
	registry.Register(&WorkType{
		ID:           commerce.OpSyncCommerce,
		Priority:     PriorityMedium,
		Interval:     24 * time.Hour,
		FindSubjects: func() []string { return []string{""} },
		Execute: func(ctx context.Context, subject string) error {
			if deps.Commerce.PricesFresh() {
				deps.Log.Debug().Msg("Commerce prices still fresh, skipping sync")
				return nil
			}
			if _, err := deps.Commerce.SyncProducts(ctx); err != nil {
				return err
			}
			_, err := deps.Commerce.SyncPrices(ctx)
			return err
		},
	})
}

func syncableTenantIDs(source TenantSource, log zerolog.Logger) []string {
	list, err := source.ListSyncable()
	if err != nil {
		log.Error().Err(err).Msg("Failed to list syncable tenants")
		return nil
	}

	ids := make([]string, 0, len(list))
	for _, tenant := range list {
		ids = append(ids, tenant.ID)
	}
	return ids
}

func resolveTenant(source TenantSource, id string) (*tenants.Tenant, error) {
	tenant, err := source.GetByID(id)
	if err != nil {
		return nil, fmt.Errorf("failed to load tenant %s: %w", id, err)
	}
	if tenant == nil {
		// Listed a moment ago but gone now; the next sweep re-lists.
		return nil, fmt.Errorf("tenant %s no longer exists", id)
	}
	return tenant, nil
}
