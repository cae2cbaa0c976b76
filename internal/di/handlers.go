package di

import (
	"github.com/rs/zerolog"

	analysishandlers "github.com/seatwise/seatwise/internal/modules/analysis/handlers"
	commercehandlers "github.com/seatwise/seatwise/internal/modules/commerce/handlers"
	directoryhandlers "github.com/seatwise/seatwise/internal/modules/directory/handlers"
	skushandlers "github.com/seatwise/seatwise/internal/modules/skus/handlers"
	tenantshandlers "github.com/seatwise/seatwise/internal/modules/tenants/handlers"
)

// InitializeHandlers builds the HTTP handlers over the wired services. The
// server mounts them; they are constructed here so the whole dependency
// graph lives in one place.
func InitializeHandlers(container *Container, log zerolog.Logger) {
	container.TenantHandler = tenantshandlers.NewHandler(container.TenantService, subscriptionLister(container), log)
	container.DirectoryHandler = directoryhandlers.NewHandler(
		container.TenantService,
		container.DirectorySync,
		container.DirectoryRepo,
		container.SyncLimiter,
		container.InFlight,
		log,
	)
	container.CommerceHandler = commercehandlers.NewHandler(
		container.CommerceSync,
		container.CommerceImporter,
		container.CommerceRepo,
		container.InFlight,
		log,
	)
	container.SkuHandler = skushandlers.NewHandler(container.SkuRegistry, container.SkuValidator, log)
	container.AnalysisHandler = analysishandlers.NewHandler(
		container.AnalysisService,
		container.SyncLimiter,
		container.InFlight,
		log,
	)
}

// subscriptionLister returns the partner client as an interface value, or a
// true nil when the partner API is not configured so the handler's nil
// check works.
func subscriptionLister(container *Container) tenantshandlers.SubscriptionLister {
	if container.PartnerClient == nil {
		return nil
	}
	return container.PartnerClient
}
