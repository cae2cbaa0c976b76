// Package handlers provides HTTP handlers for tenant onboarding and
// credential management.
package handlers

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"

	"github.com/seatwise/seatwise/internal/api"
	"github.com/seatwise/seatwise/internal/clients/partner"
	"github.com/seatwise/seatwise/internal/modules/tenants"
)

// SubscriptionLister reads a customer's live subscriptions from the partner
// API. Nil when the partner API is not configured.
type SubscriptionLister interface {
	ListCustomerSubscriptions(ctx context.Context, customerID string) ([]partner.Subscription, error)
}

// Handler handles tenant HTTP requests.
type Handler struct {
	service       *tenants.Service
	subscriptions SubscriptionLister
	log           zerolog.Logger
}

// NewHandler creates a tenant handler.
func NewHandler(service *tenants.Service, subscriptions SubscriptionLister, log zerolog.Logger) *Handler {
	return &Handler{
		service:       service,
		subscriptions: subscriptions,
		log:           log.With().Str("handler", "tenants").Logger(),
	}
}

// RegisterRoutes mounts the tenant routes on the router.
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Get("/api/tenants", h.HandleList)
	r.Post("/api/tenants", h.HandleCreate)
	r.Get("/api/tenants/{tenantID}", h.HandleGet)
	r.Post("/api/tenants/{tenantID}/consent", h.HandleConsent)
	r.Get("/api/tenants/{tenantID}/credentials", h.HandleGetCredentials)
	r.Put("/api/tenants/{tenantID}/credentials", h.HandleUpdateCredentials)
	r.Get("/api/tenants/{tenantID}/subscriptions", h.HandleGetSubscriptions)
}

// HandleList returns all tenants.
func (h *Handler) HandleList(w http.ResponseWriter, r *http.Request) {
	list, err := h.service.ListTenants()
	if err != nil {
		api.WriteError(w, h.log, err)
		return
	}

	api.WriteJSON(w, h.log, http.StatusOK, map[string]interface{}{
		"tenants": list,
		"count":   len(list),
	})
}

// HandleCreate registers a new tenant.
func (h *Handler) HandleCreate(w http.ResponseWriter, r *http.Request) {
	var input tenants.CreateTenantInput
	if err := json.NewDecoder(r.Body).Decode(&input); err != nil {
		api.WriteErrorMessage(w, h.log, http.StatusBadRequest, "invalid JSON body")
		return
	}

	tenant, err := h.service.CreateTenant(input)
	if err != nil {
		api.WriteError(w, h.log, err)
		return
	}

	api.WriteJSON(w, h.log, http.StatusCreated, tenant)
}

// HandleGet returns one tenant.
func (h *Handler) HandleGet(w http.ResponseWriter, r *http.Request) {
	tenant, err := h.service.GetTenant(chi.URLParam(r, "tenantID"))
	if err != nil {
		api.WriteError(w, h.log, err)
		return
	}

	api.WriteJSON(w, h.log, http.StatusOK, tenant)
}

// HandleConsent records operator consent for data processing.
func (h *Handler) HandleConsent(w http.ResponseWriter, r *http.Request) {
	tenant, err := h.service.RecordConsent(chi.URLParam(r, "tenantID"))
	if err != nil {
		api.WriteError(w, h.log, err)
		return
	}

	api.WriteJSON(w, h.log, http.StatusOK, tenant)
}

// HandleGetCredentials returns credential metadata. The secret is never
// echoed, not even masked.
func (h *Handler) HandleGetCredentials(w http.ResponseWriter, r *http.Request) {
	info, err := h.service.GetCredentialsInfo(chi.URLParam(r, "tenantID"))
	if err != nil {
		api.WriteError(w, h.log, err)
		return
	}

	api.WriteJSON(w, h.log, http.StatusOK, info)
}

// HandleUpdateCredentials stores fresh client credentials for a tenant.
func (h *Handler) HandleUpdateCredentials(w http.ResponseWriter, r *http.Request) {
	var input tenants.CredentialsInput
	if err := json.NewDecoder(r.Body).Decode(&input); err != nil {
		api.WriteErrorMessage(w, h.log, http.StatusBadRequest, "invalid JSON body")
		return
	}

	tenantID := chi.URLParam(r, "tenantID")
	if err := h.service.UpdateCredentials(tenantID, input); err != nil {
		api.WriteError(w, h.log, err)
		return
	}

	api.WriteJSON(w, h.log, http.StatusOK, map[string]string{"status": "stored"})
}

// HandleGetSubscriptions proxies the tenant's live partner subscriptions.
func (h *Handler) HandleGetSubscriptions(w http.ResponseWriter, r *http.Request) {
	if h.subscriptions == nil {
		api.WriteErrorMessage(w, h.log, http.StatusServiceUnavailable, "partner API is not configured")
		return
	}

	tenant, err := h.service.GetTenant(chi.URLParam(r, "tenantID"))
	if err != nil {
		api.WriteError(w, h.log, err)
		return
	}

	subs, err := h.subscriptions.ListCustomerSubscriptions(r.Context(), tenant.ExternalID)
	if err != nil {
		api.WriteError(w, h.log, err)
		return
	}

	api.WriteJSON(w, h.log, http.StatusOK, map[string]interface{}{
		"subscriptions": subs,
		"count":         len(subs),
	})
}
