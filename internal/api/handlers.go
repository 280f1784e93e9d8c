/**
 * @description
 * This file contains the HTTP handlers for the studio-service's API endpoints.
 * Handlers are responsible for parsing incoming requests, calling the appropriate
 * methods on the application service, and writing the HTTP response. They act as the
 * bridge between the web layer and the business logic layer.
 *
 * @dependencies
 * - encoding/json, log, net/http, strconv: Standard Go libraries.
 * - github.com/go-chi/chi/v5: URL parameter extraction.
 * - github.com/google/uuid: UUID parsing.
 * - internal/app, internal/domain, internal/plans, internal/store: For service logic, models, and custom errors.
 */

package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/proshoot/studio-service/internal/app"
	"github.com/proshoot/studio-service/internal/domain"
	"github.com/proshoot/studio-service/internal/plans"
	"github.com/proshoot/studio-service/internal/store"
)

// StudioHandlers holds the application service that handlers will use.
type StudioHandlers struct {
	service *app.Service
}

// NewStudioHandlers creates a new instance of StudioHandlers.
func NewStudioHandlers(service *app.Service) *StudioHandlers {
	return &StudioHandlers{service: service}
}

// insufficientCreditsResponse is the payload for a 402 so the dashboard can
// route the user to checkout with the exact shortfall.
type insufficientCreditsResponse struct {
	Error    string `json:"error"`
	Current  int64  `json:"current_credits"`
	Required int64  `json:"required_credits"`
}

// authenticate resolves the Clerk subject from the request context into the
// internal user UUID. It writes the error response itself and reports success.
func (h *StudioHandlers) authenticate(w http.ResponseWriter, r *http.Request) (uuid.UUID, bool) {
	clerkUserID, ok := GetClerkUserID(r.Context())
	if !ok {
		http.Error(w, "Could not get user ID from context", http.StatusInternalServerError)
		return uuid.Nil, false
	}
	userID, err := h.service.ResolveInternalUserID(r.Context(), clerkUserID)
	if err != nil {
		log.Printf("level=warn component=api outcome=reject reason=user_resolution_failed clerk_user_id=%s err=%v", clerkUserID, err)
		http.Error(w, "User not found", http.StatusBadRequest)
		return uuid.Nil, false
	}
	return userID, true
}

// CreateCheckoutHandler creates a hosted checkout session for a plan purchase.
func (h *StudioHandlers) CreateCheckoutHandler(w http.ResponseWriter, r *http.Request) {
	userID, ok := h.authenticate(w, r)
	if !ok {
		return
	}

	var req struct {
		Plan                   string     `json:"plan"`
		Quantity               int        `json:"quantity"`
		Email                  string     `json:"email"`
		StudioID               *uuid.UUID `json:"studio_id,omitempty"`
		OrganizationID         *uuid.UUID `json:"organization_id,omitempty"`
		FirstPromoterReference string     `json:"first_promoter_reference,omitempty"`
		FirstPromoterTID       string     `json:"first_promoter_tid,omitempty"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, fmt.Sprintf("Invalid request body: %v", err), http.StatusBadRequest)
		return
	}

	url, err := h.service.CreateCheckout(r.Context(), userID, app.CheckoutRequest{
		Plan:                   req.Plan,
		Quantity:               req.Quantity,
		Email:                  req.Email,
		StudioID:               req.StudioID,
		OrganizationID:         req.OrganizationID,
		FirstPromoterReference: req.FirstPromoterReference,
		FirstPromoterTID:       req.FirstPromoterTID,
	})
	if err != nil {
		var validation *plans.ValidationError
		if errors.As(err, &validation) {
			h.writeJSON(w, http.StatusBadRequest, map[string]string{"error": validation.Message, "code": validation.Code})
			return
		}
		log.Printf("level=error component=api endpoint=create_checkout user_id=%s err=%v", userID, err)
		http.Error(w, "Failed to create checkout session", http.StatusBadGateway)
		return
	}

	log.Printf("level=info component=api endpoint=create_checkout outcome=accepted user_id=%s plan=%s", userID, req.Plan)
	h.writeJSON(w, http.StatusCreated, map[string]string{"checkout_url": url})
}

// QuoteHandler prices a plan selection without creating a checkout.
func (h *StudioHandlers) QuoteHandler(w http.ResponseWriter, r *http.Request) {
	if _, ok := h.authenticate(w, r); !ok {
		return
	}

	planKey := r.URL.Query().Get("plan")
	quantity, _ := strconv.Atoi(r.URL.Query().Get("quantity"))

	quote, err := h.service.Plans().Quote(planKey, quantity)
	if err != nil {
		var validation *plans.ValidationError
		if errors.As(err, &validation) {
			h.writeJSON(w, http.StatusBadRequest, map[string]string{"error": validation.Message, "code": validation.Code})
			return
		}
		http.Error(w, "Failed to compute quote", http.StatusInternalServerError)
		return
	}
	h.writeJSON(w, http.StatusOK, quote)
}

// ListPlansHandler returns the client-safe plan catalog for one account context.
func (h *StudioHandlers) ListPlansHandler(w http.ResponseWriter, r *http.Request) {
	ctx := plans.ContextPersonal
	if r.URL.Query().Get("context") == "team" {
		ctx = plans.ContextTeam
	}
	h.writeJSON(w, http.StatusOK, h.service.Plans().PlansForContext(ctx))
}

// CreateStudioHandler records a pending studio ahead of payment.
func (h *StudioHandlers) CreateStudioHandler(w http.ResponseWriter, r *http.Request) {
	userID, ok := h.authenticate(w, r)
	if !ok {
		return
	}

	var req domain.CreateStudioRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, fmt.Sprintf("Invalid request body: %v", err), http.StatusBadRequest)
		return
	}

	status, err := h.service.CreatePendingStudio(r.Context(), userID, req)
	if err != nil {
		if errors.Is(err, app.ErrUnauthorized) {
			http.Error(w, "Not a member of this organization", http.StatusForbidden)
			return
		}
		var validation *plans.ValidationError
		if errors.As(err, &validation) {
			h.writeJSON(w, http.StatusBadRequest, map[string]string{"error": validation.Message, "code": validation.Code})
			return
		}
		log.Printf("level=warn component=api endpoint=create_studio outcome=reject user_id=%s err=%v", userID, err)
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	log.Printf("level=info component=api endpoint=create_studio outcome=accepted user_id=%s studio_id=%s status=%s", userID, req.StudioID, status)
	h.writeJSON(w, http.StatusCreated, map[string]string{
		"studio_id": req.StudioID.String(),
		"status":    string(status),
	})
}

// GetStudioHandler returns one studio with headshots and signed delivery URLs.
func (h *StudioHandlers) GetStudioHandler(w http.ResponseWriter, r *http.Request) {
	userID, ok := h.authenticate(w, r)
	if !ok {
		return
	}
	studioID, err := uuid.Parse(chi.URLParam(r, "studioID"))
	if err != nil {
		http.Error(w, "Invalid studio ID", http.StatusBadRequest)
		return
	}

	out, err := h.service.GetStudio(r.Context(), userID, studioID)
	if err != nil {
		h.writeStudioError(w, userID, studioID, err)
		return
	}
	h.writeJSON(w, http.StatusOK, out)
}

// ListStudiosHandler lists the caller's personal studios.
func (h *StudioHandlers) ListStudiosHandler(w http.ResponseWriter, r *http.Request) {
	userID, ok := h.authenticate(w, r)
	if !ok {
		return
	}
	limit, offset := paginationParams(r)

	studios, err := h.service.ListStudios(r.Context(), userID, limit, offset)
	if err != nil {
		log.Printf("level=error component=api endpoint=list_studios user_id=%s err=%v", userID, err)
		http.Error(w, "Internal server error", http.StatusInternalServerError)
		return
	}
	h.writeJSON(w, http.StatusOK, map[string]any{"studios": studios})
}

// ListOrganizationStudiosHandler lists an organization's studios for a member.
func (h *StudioHandlers) ListOrganizationStudiosHandler(w http.ResponseWriter, r *http.Request) {
	userID, ok := h.authenticate(w, r)
	if !ok {
		return
	}
	orgID, err := uuid.Parse(chi.URLParam(r, "organizationID"))
	if err != nil {
		http.Error(w, "Invalid organization ID", http.StatusBadRequest)
		return
	}
	limit, offset := paginationParams(r)

	studios, err := h.service.ListOrganizationStudios(r.Context(), userID, orgID, limit, offset)
	if err != nil {
		if errors.Is(err, app.ErrUnauthorized) {
			http.Error(w, "Not a member of this organization", http.StatusForbidden)
			return
		}
		log.Printf("level=error component=api endpoint=list_org_studios user_id=%s org_id=%s err=%v", userID, orgID, err)
		http.Error(w, "Internal server error", http.StatusInternalServerError)
		return
	}
	h.writeJSON(w, http.StatusOK, map[string]any{"studios": studios})
}

// AcceptStudioHandler unlocks full-resolution delivery for a completed studio.
func (h *StudioHandlers) AcceptStudioHandler(w http.ResponseWriter, r *http.Request) {
	userID, ok := h.authenticate(w, r)
	if !ok {
		return
	}
	studioID, err := uuid.Parse(chi.URLParam(r, "studioID"))
	if err != nil {
		http.Error(w, "Invalid studio ID", http.StatusBadRequest)
		return
	}

	if err := h.service.AcceptStudio(r.Context(), userID, studioID); err != nil {
		if errors.Is(err, app.ErrStudioNotComplete) {
			http.Error(w, "Studio is not completed yet", http.StatusConflict)
			return
		}
		h.writeStudioError(w, userID, studioID, err)
		return
	}

	log.Printf("level=info component=api endpoint=accept_studio outcome=accepted user_id=%s studio_id=%s", userID, studioID)
	h.writeJSON(w, http.StatusOK, map[string]string{"status": string(domain.StudioStatusAccepted)})
}

// DeleteStudioHandler moves a studio to its terminal DELETED state.
func (h *StudioHandlers) DeleteStudioHandler(w http.ResponseWriter, r *http.Request) {
	userID, ok := h.authenticate(w, r)
	if !ok {
		return
	}
	studioID, err := uuid.Parse(chi.URLParam(r, "studioID"))
	if err != nil {
		http.Error(w, "Invalid studio ID", http.StatusBadRequest)
		return
	}

	if err := h.service.DeleteStudio(r.Context(), userID, studioID); err != nil {
		if errors.Is(err, store.ErrInvalidTransition) {
			http.Error(w, "Studio is already deleted", http.StatusConflict)
			return
		}
		h.writeStudioError(w, userID, studioID, err)
		return
	}
	h.writeJSON(w, http.StatusOK, map[string]string{"status": string(domain.StudioStatusDeleted)})
}

// ToggleFavoriteHandler flips a headshot in or out of the delivery set.
func (h *StudioHandlers) ToggleFavoriteHandler(w http.ResponseWriter, r *http.Request) {
	userID, ok := h.authenticate(w, r)
	if !ok {
		return
	}
	studioID, err := uuid.Parse(chi.URLParam(r, "studioID"))
	if err != nil {
		http.Error(w, "Invalid studio ID", http.StatusBadRequest)
		return
	}
	headshotID, err := uuid.Parse(chi.URLParam(r, "headshotID"))
	if err != nil {
		http.Error(w, "Invalid headshot ID", http.StatusBadRequest)
		return
	}

	added, err := h.service.ToggleFavorite(r.Context(), userID, studioID, headshotID)
	if err != nil {
		if errors.Is(err, store.ErrHeadshotNotFound) {
			http.Error(w, "Headshot not found", http.StatusNotFound)
			return
		}
		h.writeStudioError(w, userID, studioID, err)
		return
	}
	h.writeJSON(w, http.StatusOK, map[string]bool{"favorited": added})
}

// GetCreditsHandler returns the caller's ledger, or the organization's when
// the organization_id query parameter is present.
func (h *StudioHandlers) GetCreditsHandler(w http.ResponseWriter, r *http.Request) {
	userID, ok := h.authenticate(w, r)
	if !ok {
		return
	}

	account := domain.PersonalAccount(userID)
	if orgParam := r.URL.Query().Get("organization_id"); orgParam != "" {
		orgID, err := uuid.Parse(orgParam)
		if err != nil {
			http.Error(w, "Invalid organization ID", http.StatusBadRequest)
			return
		}
		account = domain.OrganizationAccount(orgID)
	}

	ledger, err := h.service.GetCredits(r.Context(), account)
	if err != nil {
		log.Printf("level=error component=api endpoint=get_credits user_id=%s err=%v", userID, err)
		http.Error(w, "Internal server error", http.StatusInternalServerError)
		return
	}
	h.writeJSON(w, http.StatusOK, ledger)
}

// ListCreditTransactionsHandler returns the caller's ledger mutation log.
func (h *StudioHandlers) ListCreditTransactionsHandler(w http.ResponseWriter, r *http.Request) {
	userID, ok := h.authenticate(w, r)
	if !ok {
		return
	}

	account := domain.PersonalAccount(userID)
	if orgParam := r.URL.Query().Get("organization_id"); orgParam != "" {
		orgID, err := uuid.Parse(orgParam)
		if err != nil {
			http.Error(w, "Invalid organization ID", http.StatusBadRequest)
			return
		}
		account = domain.OrganizationAccount(orgID)
	}
	limit, offset := paginationParams(r)

	transactions, err := h.service.ListCreditTransactions(r.Context(), account, limit, offset)
	if err != nil {
		log.Printf("level=error component=api endpoint=list_credit_transactions user_id=%s err=%v", userID, err)
		http.Error(w, "Internal server error", http.StatusInternalServerError)
		return
	}
	h.writeJSON(w, http.StatusOK, map[string]any{"transactions": transactions})
}

// TransferTeamCreditsHandler moves organization credits to a member.
func (h *StudioHandlers) TransferTeamCreditsHandler(w http.ResponseWriter, r *http.Request) {
	userID, ok := h.authenticate(w, r)
	if !ok {
		return
	}

	var req struct {
		OrganizationID uuid.UUID `json:"organization_id"`
		MemberUserID   uuid.UUID `json:"member_user_id"`
		Bucket         string    `json:"bucket"`
		Amount         int64     `json:"amount"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, fmt.Sprintf("Invalid request body: %v", err), http.StatusBadRequest)
		return
	}

	bucket := domain.CreditBucket(req.Bucket)
	if bucket == "" {
		bucket = domain.BucketTeam
	}
	err := h.service.TransferTeamCredits(r.Context(), userID, domain.TeamCreditTransfer{
		OrganizationID: req.OrganizationID,
		MemberUserID:   req.MemberUserID,
		Bucket:         bucket,
		Amount:         req.Amount,
	})
	if err != nil {
		if errors.Is(err, app.ErrUnauthorized) {
			http.Error(w, "Only the organization owner may transfer credits", http.StatusForbidden)
			return
		}
		var insufficient *app.InsufficientCreditsError
		if errors.As(err, &insufficient) {
			h.writeJSON(w, http.StatusPaymentRequired, insufficientCreditsResponse{
				Error:    "Insufficient credits",
				Current:  insufficient.Current,
				Required: insufficient.Required,
			})
			return
		}
		if errors.Is(err, store.ErrInvalidBucket) {
			http.Error(w, "Invalid credit bucket", http.StatusBadRequest)
			return
		}
		log.Printf("level=error component=api endpoint=transfer_team_credits user_id=%s err=%v", userID, err)
		http.Error(w, "Internal server error", http.StatusInternalServerError)
		return
	}
	h.writeJSON(w, http.StatusOK, map[string]string{"status": "transferred"})
}

// GenerateSimilarImageHandler renders a new image from an existing headshot.
func (h *StudioHandlers) GenerateSimilarImageHandler(w http.ResponseWriter, r *http.Request) {
	h.handleAIAction(w, r, h.service.GenerateSimilarImage)
}

// AIEditImageHandler applies a prompt-driven edit to an existing headshot.
func (h *StudioHandlers) AIEditImageHandler(w http.ResponseWriter, r *http.Request) {
	h.handleAIAction(w, r, h.service.AIEditImage)
}

func (h *StudioHandlers) handleAIAction(w http.ResponseWriter, r *http.Request, action func(ctx context.Context, userID, headshotID uuid.UUID, prompt string) (string, error)) {
	userID, ok := h.authenticate(w, r)
	if !ok {
		return
	}

	var req struct {
		HeadshotID uuid.UUID `json:"headshot_id"`
		Prompt     string    `json:"prompt"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, fmt.Sprintf("Invalid request body: %v", err), http.StatusBadRequest)
		return
	}

	url, err := action(r.Context(), userID, req.HeadshotID, req.Prompt)
	if err != nil {
		var limited *app.RateLimitedError
		if errors.As(err, &limited) {
			w.Header().Set("Retry-After", strconv.Itoa(limited.RetryAfterSeconds))
			http.Error(w, "Rate limit exceeded", http.StatusTooManyRequests)
			return
		}
		var insufficient *app.InsufficientCreditsError
		if errors.As(err, &insufficient) {
			h.writeJSON(w, http.StatusPaymentRequired, insufficientCreditsResponse{
				Error:    "Insufficient credits",
				Current:  insufficient.Current,
				Required: insufficient.Required,
			})
			return
		}
		if errors.Is(err, app.ErrUnauthorized) {
			http.Error(w, "You do not own this headshot", http.StatusForbidden)
			return
		}
		if errors.Is(err, store.ErrHeadshotNotFound) {
			http.Error(w, "Headshot not found", http.StatusNotFound)
			return
		}
		log.Printf("level=error component=api endpoint=ai_action user_id=%s err=%v", userID, err)
		http.Error(w, "Image generation failed", http.StatusBadGateway)
		return
	}
	h.writeJSON(w, http.StatusOK, map[string]string{"url": url})
}

// writeStudioError maps the common studio lookup failures onto HTTP statuses.
func (h *StudioHandlers) writeStudioError(w http.ResponseWriter, userID, studioID uuid.UUID, err error) {
	if errors.Is(err, store.ErrStudioNotFound) {
		http.Error(w, "Studio not found", http.StatusNotFound)
		return
	}
	if errors.Is(err, app.ErrUnauthorized) {
		http.Error(w, "You do not have access to this studio", http.StatusForbidden)
		return
	}
	log.Printf("level=error component=api user_id=%s studio_id=%s err=%v", userID, studioID, err)
	http.Error(w, "Internal server error", http.StatusInternalServerError)
}

func paginationParams(r *http.Request) (limit, offset int) {
	limit, _ = strconv.Atoi(r.URL.Query().Get("limit"))
	offset, _ = strconv.Atoi(r.URL.Query().Get("offset"))
	return limit, offset
}

// writeJSON is a helper for writing JSON responses.
func (h *StudioHandlers) writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if data != nil {
		json.NewEncoder(w).Encode(data)
	}
}
