// Package handlers provides HTTP handlers for analyses and recommendations.
package handlers

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"

	"github.com/seatwise/seatwise/internal/api"
	"github.com/seatwise/seatwise/internal/domain"
	"github.com/seatwise/seatwise/internal/modules/analysis"
	"github.com/seatwise/seatwise/internal/ratelimit"
	"github.com/seatwise/seatwise/internal/work"
)

const (
	defaultPageSize = 20
	maxPageSize     = 200
)

// Handler handles analysis HTTP requests. Manual runs share the in-flight
// registry with the scheduler, so a run for a tenant whose analysis is
// already executing returns 409.
type Handler struct {
	service  *analysis.Service
	limiter  *ratelimit.Limiter
	inflight *work.InFlight
	log      zerolog.Logger
}

// NewHandler creates an analysis handler.
func NewHandler(
	service *analysis.Service,
	limiter *ratelimit.Limiter,
	inflight *work.InFlight,
	log zerolog.Logger,
) *Handler {
	return &Handler{
		service:  service,
		limiter:  limiter,
		inflight: inflight,
		log:      log.With().Str("handler", "analysis").Logger(),
	}
}

// RegisterRoutes mounts the analysis routes on the router.
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Post("/api/tenants/{tenantID}/analyses", h.HandleRunAnalysis)
	r.Get("/api/tenants/{tenantID}/analyses", h.HandleListAnalyses)
	r.Get("/api/analyses/{analysisID}", h.HandleGetAnalysis)
	r.Post("/api/recommendations/{recommendationID}/apply", h.HandleApplyRecommendation)
}

// HandleRunAnalysis runs an analysis for the tenant and returns the
// completed snapshot. The in-flight check comes before the admission limit
// so a duplicate trigger does not burn the rate token.
func (h *Handler) HandleRunAnalysis(w http.ResponseWriter, r *http.Request) {
	tenantID := chi.URLParam(r, "tenantID")

	fingerprint := work.Fingerprint(analysis.OpRunAnalysis, tenantID)
	if !h.inflight.TryAcquire(fingerprint) {
		api.WriteError(w, h.log, fmt.Errorf("%s for tenant %s: %w",
			analysis.OpRunAnalysis, tenantID, domain.ErrAlreadyRunning))
		return
	}
	defer h.inflight.Release(fingerprint)

	if ok, wait := h.limiter.Allow(tenantID + ":" + analysis.OpRunAnalysis); !ok {
		api.WriteError(w, h.log, domain.RateLimited(analysis.OpRunAnalysis, wait, nil))
		return
	}

	a, err := h.service.Run(r.Context(), tenantID)
	if err != nil {
		api.WriteError(w, h.log, err)
		return
	}

	api.WriteJSON(w, h.log, http.StatusCreated, a)
}

// HandleListAnalyses returns a page of the tenant's analyses, newest first.
func (h *Handler) HandleListAnalyses(w http.ResponseWriter, r *http.Request) {
	limit, offset := pageParams(r)

	analyses, total, err := h.service.List(chi.URLParam(r, "tenantID"), limit, offset)
	if err != nil {
		api.WriteError(w, h.log, err)
		return
	}
	if analyses == nil {
		analyses = []analysis.Analysis{}
	}

	api.WriteJSON(w, h.log, http.StatusOK, map[string]interface{}{
		"analyses": analyses,
		"total":    total,
		"limit":    limit,
		"offset":   offset,
	})
}

// HandleGetAnalysis returns one analysis with its recommendations.
func (h *Handler) HandleGetAnalysis(w http.ResponseWriter, r *http.Request) {
	a, recs, err := h.service.Get(chi.URLParam(r, "analysisID"))
	if err != nil {
		api.WriteError(w, h.log, err)
		return
	}
	if recs == nil {
		recs = []analysis.Recommendation{}
	}

	api.WriteJSON(w, h.log, http.StatusOK, map[string]interface{}{
		"analysis":        a,
		"recommendations": recs,
		"count":           len(recs),
	})
}

// HandleApplyRecommendation accepts or rejects a pending recommendation.
func (h *Handler) HandleApplyRecommendation(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Action string `json:"action"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		api.WriteErrorMessage(w, h.log, http.StatusBadRequest, "invalid JSON body")
		return
	}

	rec, err := h.service.Apply(chi.URLParam(r, "recommendationID"), body.Action)
	if err != nil {
		api.WriteError(w, h.log, err)
		return
	}

	api.WriteJSON(w, h.log, http.StatusOK, rec)
}

func pageParams(r *http.Request) (limit, offset int) {
	limit = defaultPageSize
	if v, err := strconv.Atoi(r.URL.Query().Get("limit")); err == nil && v > 0 {
		limit = v
		if limit > maxPageSize {
			limit = maxPageSize
		}
	}
	if v, err := strconv.Atoi(r.URL.Query().Get("offset")); err == nil && v > 0 {
		offset = v
	}
	return limit, offset
}
