// Package handlers provides HTTP handlers for the commerce catalog.
package handlers

import (
	"fmt"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"

	"github.com/seatwise/seatwise/internal/api"
	"github.com/seatwise/seatwise/internal/domain"
	"github.com/seatwise/seatwise/internal/modules/commerce"
	"github.com/seatwise/seatwise/internal/work"
)

// Handler handles commerce HTTP requests. Catalog syncs are global, not
// per-tenant, so they claim the bare operation fingerprint; a scheduled run
// and a manual trigger of the same sync cannot overlap.
type Handler struct {
	sync     *commerce.SyncService
	importer *commerce.Importer
	repo     *commerce.Repository
	inflight *work.InFlight
	log      zerolog.Logger
}

// NewHandler creates a commerce handler. The sync service may be nil when
// no partner credentials are configured; the sync routes then return 503
// while CSV import keeps working.
func NewHandler(
	syncService *commerce.SyncService,
	importer *commerce.Importer,
	repo *commerce.Repository,
	inflight *work.InFlight,
	log zerolog.Logger,
) *Handler {
	return &Handler{
		sync:     syncService,
		importer: importer,
		repo:     repo,
		inflight: inflight,
		log:      log.With().Str("handler", "commerce").Logger(),
	}
}

// RegisterRoutes mounts the commerce routes on the router.
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Post("/api/commerce/sync/products", h.HandleSyncProducts)
	r.Post("/api/commerce/sync/prices", h.HandleSyncPrices)
	r.Post("/api/commerce/import/prices", h.HandleImportPrices)
	r.Get("/api/commerce/products", h.HandleListProducts)
}

// HandleSyncProducts triggers a product catalog sync across all tenant markets.
func (h *Handler) HandleSyncProducts(w http.ResponseWriter, r *http.Request) {
	h.runSync(w, r, func() (interface{}, error) {
		return h.sync.SyncProducts(r.Context())
	})
}

// HandleSyncPrices triggers a price sheet sync across all tenant markets.
func (h *Handler) HandleSyncPrices(w http.ResponseWriter, r *http.Request) {
	h.runSync(w, r, func() (interface{}, error) {
		return h.sync.SyncPrices(r.Context())
	})
}

// HandleImportPrices ingests a CSV price sheet from the request body.
func (h *Handler) HandleImportPrices(w http.ResponseWriter, r *http.Request) {
	stats, err := h.importer.ImportPriceCSV(r.Context(), r.Body)
	if err != nil {
		api.WriteError(w, h.log, err)
		return
	}

	api.WriteJSON(w, h.log, http.StatusOK, stats)
}

// HandleListProducts returns the synced product catalog.
func (h *Handler) HandleListProducts(w http.ResponseWriter, r *http.Request) {
	products, err := h.repo.ListProducts()
	if err != nil {
		api.WriteError(w, h.log, err)
		return
	}

	api.WriteJSON(w, h.log, http.StatusOK, map[string]interface{}{
		"products": products,
		"count":    len(products),
	})
}

func (h *Handler) runSync(w http.ResponseWriter, r *http.Request, run func() (interface{}, error)) {
	if h.sync == nil {
		api.WriteErrorMessage(w, h.log, http.StatusServiceUnavailable, "partner center is not configured")
		return
	}

	fingerprint := work.Fingerprint(commerce.OpSyncCommerce, "")
	if !h.inflight.TryAcquire(fingerprint) {
		api.WriteError(w, h.log, fmt.Errorf("%s: %w", commerce.OpSyncCommerce, domain.ErrAlreadyRunning))
		return
	}
	defer h.inflight.Release(fingerprint)

	stats, err := run()
	if err != nil {
		api.WriteError(w, h.log, err)
		return
	}

	api.WriteJSON(w, h.log, http.StatusOK, stats)
}
