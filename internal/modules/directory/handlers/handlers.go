// Package handlers provides HTTP handlers for directory sync operations.
package handlers

import (
	"fmt"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"

	"github.com/seatwise/seatwise/internal/api"
	"github.com/seatwise/seatwise/internal/domain"
	"github.com/seatwise/seatwise/internal/modules/directory"
	"github.com/seatwise/seatwise/internal/modules/tenants"
	"github.com/seatwise/seatwise/internal/ratelimit"
	"github.com/seatwise/seatwise/internal/work"
)

// Handler handles directory HTTP requests. Manual sync triggers share the
// in-flight registry with the scheduler, so a request for work that is
// already running returns 409 instead of starting a second run.
type Handler struct {
	tenants  *tenants.Service
	sync     *directory.SyncService
	repo     *directory.Repository
	limiter  *ratelimit.Limiter
	inflight *work.InFlight
	log      zerolog.Logger
}

// NewHandler creates a directory handler.
func NewHandler(
	tenantService *tenants.Service,
	syncService *directory.SyncService,
	repo *directory.Repository,
	limiter *ratelimit.Limiter,
	inflight *work.InFlight,
	log zerolog.Logger,
) *Handler {
	return &Handler{
		tenants:  tenantService,
		sync:     syncService,
		repo:     repo,
		limiter:  limiter,
		inflight: inflight,
		log:      log.With().Str("handler", "directory").Logger(),
	}
}

// RegisterRoutes mounts the directory routes on the router.
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Post("/api/tenants/{tenantID}/sync/users", h.HandleSyncUsers)
	r.Post("/api/tenants/{tenantID}/sync/licenses", h.HandleSyncLicenses)
	r.Post("/api/tenants/{tenantID}/sync/usage", h.HandleSyncUsage)
	r.Get("/api/tenants/{tenantID}/users", h.HandleListUsers)
}

// HandleSyncUsers triggers a user sync for the tenant.
func (h *Handler) HandleSyncUsers(w http.ResponseWriter, r *http.Request) {
	h.runSync(w, r, directory.OpSyncUsers, func(tenant *tenants.Tenant) (interface{}, error) {
		return h.sync.SyncUsers(r.Context(), tenant)
	})
}

// HandleSyncLicenses triggers a license sync for the tenant.
func (h *Handler) HandleSyncLicenses(w http.ResponseWriter, r *http.Request) {
	h.runSync(w, r, directory.OpSyncLicenses, func(tenant *tenants.Tenant) (interface{}, error) {
		return h.sync.SyncLicenses(r.Context(), tenant)
	})
}

// HandleSyncUsage triggers a usage report sync for the tenant. The period
// query parameter defaults to D28.
func (h *Handler) HandleSyncUsage(w http.ResponseWriter, r *http.Request) {
	period := r.URL.Query().Get("period")
	h.runSync(w, r, directory.OpSyncUsage, func(tenant *tenants.Tenant) (interface{}, error) {
		return h.sync.SyncUsage(r.Context(), tenant, period)
	})
}

// HandleListUsers returns the synced users of a tenant.
func (h *Handler) HandleListUsers(w http.ResponseWriter, r *http.Request) {
	tenant, err := h.tenants.GetTenant(chi.URLParam(r, "tenantID"))
	if err != nil {
		api.WriteError(w, h.log, err)
		return
	}

	users, err := h.repo.ListUsersByTenant(tenant.ID)
	if err != nil {
		api.WriteError(w, h.log, err)
		return
	}

	api.WriteJSON(w, h.log, http.StatusOK, map[string]interface{}{
		"users": users,
		"count": len(users),
	})
}

// runSync resolves the tenant, claims the single-flight slot, applies the
// per-(tenant, operation) admission limit, and runs the sync. The in-flight
// check comes first so a duplicate trigger does not burn the rate token.
func (h *Handler) runSync(w http.ResponseWriter, r *http.Request, op string, run func(*tenants.Tenant) (interface{}, error)) {
	tenant, err := h.tenants.GetTenant(chi.URLParam(r, "tenantID"))
	if err != nil {
		api.WriteError(w, h.log, err)
		return
	}

	fingerprint := work.Fingerprint(op, tenant.ID)
	if !h.inflight.TryAcquire(fingerprint) {
		api.WriteError(w, h.log, fmt.Errorf("%s for tenant %s: %w", op, tenant.ID, domain.ErrAlreadyRunning))
		return
	}
	defer h.inflight.Release(fingerprint)

	if ok, wait := h.limiter.Allow(tenant.ID + ":" + op); !ok {
		api.WriteError(w, h.log, domain.RateLimited(op, wait, nil))
		return
	}

	stats, err := run(tenant)
	if err != nil {
		api.WriteError(w, h.log, err)
		return
	}

	api.WriteJSON(w, h.log, http.StatusOK, stats)
}
