package di

import (
	"context"
	"fmt"
	"path/filepath"
	"time"

	"github.com/rs/zerolog"

	"github.com/seatwise/seatwise/internal/clientdata"
	"github.com/seatwise/seatwise/internal/clients/authority"
	"github.com/seatwise/seatwise/internal/clients/graph"
	"github.com/seatwise/seatwise/internal/clients/partner"
	"github.com/seatwise/seatwise/internal/config"
	"github.com/seatwise/seatwise/internal/events"
	"github.com/seatwise/seatwise/internal/identity"
	"github.com/seatwise/seatwise/internal/modules/analysis"
	"github.com/seatwise/seatwise/internal/modules/commerce"
	"github.com/seatwise/seatwise/internal/modules/directory"
	"github.com/seatwise/seatwise/internal/modules/settings"
	"github.com/seatwise/seatwise/internal/modules/skus"
	"github.com/seatwise/seatwise/internal/modules/tenants"
	"github.com/seatwise/seatwise/internal/ratelimit"
	"github.com/seatwise/seatwise/internal/reliability"
	"github.com/seatwise/seatwise/internal/scheduler"
	"github.com/seatwise/seatwise/internal/secrets"
)

// InitializeServices builds the clients, repositories, and services on top
// of the opened databases. The SKU registry is seeded here so every later
// consumer sees a populated catalog.
func InitializeServices(ctx context.Context, container *Container, cfg *config.Config, log zerolog.Logger) error {
	vault, err := secrets.New(cfg.VaultKey)
	if err != nil {
		return fmt.Errorf("failed to open secret vault: %w", err)
	}
	container.Vault = vault

	bus := events.NewBus()
	container.EventBus = bus

	// Repositories.
	container.SettingsRepo = settings.NewRepository(container.TenantsDB.Conn(), log)

	// Settings stored in the database override the environment. This has to
	// happen before anything below reads cfg.
	if err := cfg.UpdateFromSettings(container.SettingsRepo); err != nil {
		log.Warn().Err(err).Msg("Failed to load settings overrides, using environment values")
	}

	container.ClientDataRepo = clientdata.NewRepository(container.CacheDB.Conn())
	container.TenantRepo = tenants.NewRepository(container.TenantsDB.Conn(), vault, log)
	container.DirectoryRepo = directory.NewRepository(container.DirectoryDB.Conn(), log)
	container.CommerceRepo = commerce.NewRepository(container.CommerceDB.Conn(), log)
	container.SkuRepo = skus.NewRepository(container.CommerceDB.Conn(), log)
	container.AnalysisRepo = analysis.NewRepository(container.AnalysisDB.Conn(), log)

	// Token plumbing. Tenant syncs authenticate per tenant through the
	// credentials table; the partner API authenticates as the application.
	container.AuthorityClient = authority.New(cfg.AuthorityURL, cfg.HTTPTimeout, log)
	tenantCreds := tenants.NewCredentialsProvider(container.TenantRepo, cfg.GraphScope, bus, log)
	container.GraphTokens = identity.NewTokenCache(container.AuthorityClient, tenantCreds, log)
	container.GraphClient = graph.New(cfg.GraphBaseURL, cfg.HTTPTimeout, container.GraphTokens, log)

	if cfg.PartnerEnabled() {
		partnerCreds := identity.NewStaticProvider(identity.Credentials{
			DirectoryID:  cfg.PartnerTenantID,
			ClientID:     cfg.PartnerClientID,
			ClientSecret: cfg.PartnerClientSecret,
			Scopes:       []string{cfg.PartnerScope},
		}, log)
		container.PartnerTokens = identity.NewTokenCache(container.AuthorityClient, partnerCreds, log)
		container.PartnerClient = partner.New(cfg.PartnerBaseURL, cfg.HTTPTimeout, container.PartnerTokens, log)
	} else {
		log.Info().Msg("Partner credentials not configured, commerce sync disabled")
	}

	// Services.
	container.TenantService = tenants.NewService(container.TenantRepo, bus, container.GraphTokens, log)
	container.DirectorySync = directory.NewSyncService(
		container.DirectoryRepo,
		container.GraphClient,
		container.ClientDataRepo,
		container.DirectoryDB,
		bus,
		log,
	)
	container.CommerceImporter = commerce.NewImporter(container.CommerceRepo, container.ClientDataRepo, container.CommerceDB, bus, log)
	if container.PartnerClient != nil {
		container.CommerceSync = commerce.NewSyncService(
			container.CommerceRepo,
			container.PartnerClient,
			container.TenantRepo,
			container.ClientDataRepo,
			container.CommerceDB,
			bus,
			cfg.PriceMarketOverrides,
			log,
		)
	}

	container.SkuRegistry = skus.NewRegistry(container.SkuRepo, container.CommerceDB, log)
	if err := container.SkuRegistry.EnsureSeeded(ctx); err != nil {
		return fmt.Errorf("failed to seed SKU registry: %w", err)
	}
	container.SkuValidator = skus.NewValidator(container.SkuRegistry, log)

	container.AnalysisService = analysis.NewService(
		container.AnalysisRepo,
		container.AnalysisDB,
		container.TenantRepo,
		container.DirectoryRepo,
		container.SkuRegistry,
		container.CommerceRepo,
		bus,
		cfg,
		log,
	)

	// One manual sync or analysis per tenant and operation per minute.
	container.SyncLimiter = ratelimit.New(time.Minute)

	container.JobHistory = scheduler.NewRecorder(container.CacheDB, log)

	// Reliability. S3 is optional; without it the remote backup service
	// reports disabled and the related work types find no subjects.
	container.BackupService = reliability.NewBackupService(container.Databases, filepath.Join(cfg.DataDir, "backups"), log)
	if cfg.BackupsEnabled() {
		s3, err := reliability.NewS3Client(cfg.S3Endpoint, cfg.S3Region, cfg.S3AccessKey, cfg.S3SecretKey, cfg.S3Bucket, log)
		if err != nil {
			return fmt.Errorf("failed to build S3 client: %w", err)
		}
		container.RemoteBackupService = reliability.NewRemoteBackupService(s3, container.BackupService, cfg.DataDir, cfg.BackupRetentionDays, log)
	} else {
		container.RemoteBackupService = reliability.NewRemoteBackupService(nil, container.BackupService, cfg.DataDir, cfg.BackupRetentionDays, log)
	}
	container.MaintenanceService = reliability.NewMaintenanceService(container.Databases, log)
	container.CleanupService = reliability.NewCleanupService(container.ClientDataRepo, container.JobHistory, log)

	return nil
}
