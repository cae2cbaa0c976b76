// Package handlers provides HTTP handlers for the SKU registry.
package handlers

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"

	"github.com/seatwise/seatwise/internal/api"
	"github.com/seatwise/seatwise/internal/modules/skus"
)

// Handler handles SKU registry HTTP requests.
type Handler struct {
	registry  *skus.Registry
	validator *skus.Validator
	log       zerolog.Logger
}

// NewHandler creates a SKU registry handler.
func NewHandler(registry *skus.Registry, validator *skus.Validator, log zerolog.Logger) *Handler {
	return &Handler{
		registry:  registry,
		validator: validator,
		log:       log.With().Str("handler", "skus").Logger(),
	}
}

// RegisterRoutes mounts the SKU routes on the router.
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Get("/api/skus", h.HandleListSkus)
	r.Post("/api/skus/validate-addon", h.HandleValidateAddon)
	r.Post("/api/skus/reload", h.HandleReload)
}

// validateAddonBody accepts a single validation request or a bulk list.
type validateAddonBody struct {
	skus.ValidationRequest
	Items []skus.ValidationRequest `json:"items,omitempty"`
}

// HandleValidateAddon validates add-on attachment. A body with "items"
// validates every item against one catalog snapshot and returns per-item
// reports; otherwise the body is a single request.
func (h *Handler) HandleValidateAddon(w http.ResponseWriter, r *http.Request) {
	var body validateAddonBody
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		api.WriteErrorMessage(w, h.log, http.StatusBadRequest, "invalid request body")
		return
	}

	if len(body.Items) > 0 {
		reports := h.validator.ValidateBulk(body.Items)
		api.WriteJSON(w, h.log, http.StatusOK, map[string]interface{}{
			"reports": reports,
			"count":   len(reports),
		})
		return
	}

	if body.BaseSku == "" || body.AddonSku == "" {
		api.WriteErrorMessage(w, h.log, http.StatusBadRequest, "base_sku and addon_sku are required")
		return
	}

	api.WriteJSON(w, h.log, http.StatusOK, h.validator.Validate(body.ValidationRequest))
}

// HandleListSkus returns the active catalog snapshot.
func (h *Handler) HandleListSkus(w http.ResponseWriter, r *http.Request) {
	snap := h.registry.Snapshot()

	base := snap.BaseSkus()
	skuList := make([]interface{}, 0, len(base))
	for _, info := range base {
		skuList = append(skuList, info)
	}

	mappings, matrix, rules := snap.Size()
	api.WriteJSON(w, h.log, http.StatusOK, map[string]interface{}{
		"skus":      skuList,
		"mappings":  mappings,
		"matrix":    matrix,
		"rules":     rules,
		"loaded_at": snap.LoadedAt,
	})
}

// HandleReload rebuilds the snapshot from the store, picking up admin edits.
func (h *Handler) HandleReload(w http.ResponseWriter, r *http.Request) {
	if err := h.registry.Reload(); err != nil {
		api.WriteError(w, h.log, err)
		return
	}

	mappings, matrix, rules := h.registry.Snapshot().Size()
	api.WriteJSON(w, h.log, http.StatusOK, map[string]interface{}{
		"mappings": mappings,
		"matrix":   matrix,
		"rules":    rules,
	})
}
