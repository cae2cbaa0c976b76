// Package di wires the application together: databases, clients, services,
// the work processor, and the HTTP handlers. The Container built by Wire is
// the single source of truth for every service instance.
package di

import (
	"github.com/seatwise/seatwise/internal/clientdata"
	"github.com/seatwise/seatwise/internal/clients/authority"
	"github.com/seatwise/seatwise/internal/clients/graph"
	"github.com/seatwise/seatwise/internal/clients/partner"
	"github.com/seatwise/seatwise/internal/database"
	"github.com/seatwise/seatwise/internal/events"
	"github.com/seatwise/seatwise/internal/identity"
	"github.com/seatwise/seatwise/internal/modules/analysis"
	analysishandlers "github.com/seatwise/seatwise/internal/modules/analysis/handlers"
	"github.com/seatwise/seatwise/internal/modules/commerce"
	commercehandlers "github.com/seatwise/seatwise/internal/modules/commerce/handlers"
	"github.com/seatwise/seatwise/internal/modules/directory"
	directoryhandlers "github.com/seatwise/seatwise/internal/modules/directory/handlers"
	"github.com/seatwise/seatwise/internal/modules/settings"
	"github.com/seatwise/seatwise/internal/modules/skus"
	skushandlers "github.com/seatwise/seatwise/internal/modules/skus/handlers"
	"github.com/seatwise/seatwise/internal/modules/tenants"
	tenantshandlers "github.com/seatwise/seatwise/internal/modules/tenants/handlers"
	"github.com/seatwise/seatwise/internal/ratelimit"
	"github.com/seatwise/seatwise/internal/reliability"
	"github.com/seatwise/seatwise/internal/scheduler"
	"github.com/seatwise/seatwise/internal/secrets"
	"github.com/seatwise/seatwise/internal/work"
)

// Container holds all application dependencies. Created by Wire; handed to
// the HTTP server and the main loop.
type Container struct {
	// Databases. Five stores under the data dir, one schema each.
	TenantsDB   *database.DB
	DirectoryDB *database.DB
	CommerceDB  *database.DB
	AnalysisDB  *database.DB
	CacheDB     *database.DB

	// Databases by name, for the backup and maintenance services.
	Databases map[string]*database.DB

	// Core plumbing.
	Vault    *secrets.Vault
	EventBus *events.Bus

	// External API clients. PartnerClient is nil without partner
	// credentials; the commerce sync and subscription lookups are then
	// disabled while CSV imports keep working.
	AuthorityClient *authority.Client
	GraphClient     *graph.Client
	PartnerClient   *partner.Client
	GraphTokens     *identity.TokenCache
	PartnerTokens   *identity.TokenCache

	// Repositories.
	TenantRepo     *tenants.Repository
	DirectoryRepo  *directory.Repository
	CommerceRepo   *commerce.Repository
	SkuRepo        *skus.Repository
	AnalysisRepo   *analysis.Repository
	SettingsRepo   *settings.Repository
	ClientDataRepo *clientdata.Repository

	// Services.
	TenantService    *tenants.Service
	DirectorySync    *directory.SyncService
	CommerceSync     *commerce.SyncService
	CommerceImporter *commerce.Importer
	SkuRegistry      *skus.Registry
	SkuValidator     *skus.Validator
	AnalysisService  *analysis.Service
	SyncLimiter      *ratelimit.Limiter

	// Reliability.
	BackupService       *reliability.BackupService
	RemoteBackupService *reliability.RemoteBackupService
	MaintenanceService  *reliability.MaintenanceService
	CleanupService      *reliability.CleanupService

	// Work processor and scheduling.
	WorkRegistry   *work.Registry
	WorkCompletion *work.CompletionTracker
	InFlight       *work.InFlight
	WorkProcessor  *work.Processor
	JobHistory     *scheduler.Recorder
	Scheduler      *scheduler.Scheduler

	// HTTP handlers.
	TenantHandler    *tenantshandlers.Handler
	DirectoryHandler *directoryhandlers.Handler
	CommerceHandler  *commercehandlers.Handler
	SkuHandler       *skushandlers.Handler
	AnalysisHandler  *analysishandlers.Handler
}

// Close releases every database. Safe to call on a partially built
// container.
func (c *Container) Close() {
	for _, db := range []*database.DB{c.TenantsDB, c.DirectoryDB, c.CommerceDB, c.AnalysisDB, c.CacheDB} {
		if db != nil {
			db.Close()
		}
	}
}
