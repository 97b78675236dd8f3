/*
handlers.go - HTTP API handlers for the ticketing engine

PURPOSE:
  Exposes the ticketing engine via REST API. Handles HTTP request/response,
  JSON serialization, and delegates to domain logic.

ENDPOINTS:
  Accounts:
    POST   /api/accounts                     Register an account record
    GET    /api/accounts/me/points           Caller's balance and grants
    POST   /api/accounts/{id}/points         Award points (organizer only)

  Events:
    GET    /api/events                       Upcoming events (q, category, location)
    POST   /api/events                       Create event with tiers
    GET    /api/events/{id}                  Event detail
    POST   /api/events/{id}/tiers            Add tiers to an event
    POST   /api/events/{id}/promotions       Open a promotion window

  Transactions:
    POST   /api/transactions                 Checkout (reserve tickets)
    GET    /api/transactions                 Caller's transactions
    GET    /api/transactions/{id}            One transaction
    POST   /api/transactions/{id}/payment-proof  Upload proof of payment
    POST   /api/transactions/{id}/confirm    Accept or reject (organizer)

  Organizer:
    GET    /api/organizer/dashboard          Revenue rollup

  Admin:
    POST   /api/admin/sweep                  Trigger an expiry sweep now

ERROR HANDLING:
  Engine errors are mapped to HTTP status by category:
  - 400: Invalid input
  - 403: Caller does not own the resource
  - 404: Missing entity
  - 409: Insufficient inventory, illegal state transition
  - 422: Promotion price violation
  - 500: Everything else

SEE ALSO:
  - dto.go: Request/response data structures
  - auth.go: Principal middleware
  - server.go: Router setup and middleware
*/
package api

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
	"github.com/sirupsen/logrus"

	"github.com/gatehall/ticketing-engine/ticketing"
)

// maxProofBytes caps a payment-proof upload.
const maxProofBytes = 5 << 20

// =============================================================================
// HANDLER CONTEXT
// =============================================================================

// Handler holds all dependencies for HTTP handlers.
type Handler struct {
	Engine   *ticketing.Engine
	Proofs   ticketing.ProofStore
	Logger   *logrus.Logger
	validate *validator.Validate
}

// NewHandler creates a new handler around the engine.
func NewHandler(engine *ticketing.Engine, proofs ticketing.ProofStore, logger *logrus.Logger) *Handler {
	return &Handler{
		Engine:   engine,
		Proofs:   proofs,
		Logger:   logger,
		validate: validator.New(),
	}
}

// =============================================================================
// ACCOUNT HANDLERS
// =============================================================================

// CreateAccount registers an account record.
// POST /api/accounts
func (h *Handler) CreateAccount(w http.ResponseWriter, r *http.Request) {
	var req CreateAccountRequest
	if !h.decode(w, r, &req) {
		return
	}

	acct, err := h.Engine.CreateAccount(r.Context(),
		ticketing.AccountID(req.ID), req.Name, ticketing.Role(req.Role))
	if err != nil {
		h.engineError(w, "Failed to create account", err)
		return
	}
	writeJSON(w, http.StatusCreated, toAccountDTO(*acct))
}

// GetMyPoints returns the caller's point balance and grant history.
// GET /api/accounts/me/points
func (h *Handler) GetMyPoints(w http.ResponseWriter, r *http.Request) {
	p := principalFrom(r)
	summary, err := h.Engine.GetPointsSummary(r.Context(), p.AccountID)
	if err != nil {
		h.engineError(w, "Failed to get points", err)
		return
	}
	writeJSON(w, http.StatusOK, toPointsSummaryDTO(*summary))
}

// GrantPoints awards points to an account. Organizer only.
// POST /api/accounts/{id}/points
func (h *Handler) GrantPoints(w http.ResponseWriter, r *http.Request) {
	var req GrantPointsRequest
	if !h.decode(w, r, &req) {
		return
	}

	p := principalFrom(r)
	target := ticketing.AccountID(chi.URLParam(r, "id"))
	grant, err := h.Engine.GrantPoints(r.Context(), p.AccountID, target,
		ticketing.Money(req.Amount), req.Reason)
	if err != nil {
		h.engineError(w, "Failed to grant points", err)
		return
	}

	writeJSON(w, http.StatusCreated, PointGrantDTO{
		ID:        string(grant.ID),
		Amount:    int64(grant.Amount),
		Reason:    grant.Reason,
		ExpiresAt: grant.ExpiresAt.Format(timeFormat),
		Active:    grant.Active,
		CreatedAt: grant.CreatedAt.Format(timeFormat),
	})
}

// =============================================================================
// EVENT HANDLERS
// =============================================================================

// ListEvents returns upcoming events matching the query filters.
// GET /api/events?q=&category=&location=
func (h *Handler) ListEvents(w http.ResponseWriter, r *http.Request) {
	f := ticketing.EventListFilter{
		Query:    r.URL.Query().Get("q"),
		Category: r.URL.Query().Get("category"),
		Location: r.URL.Query().Get("location"),
	}
	details, err := h.Engine.ListEvents(r.Context(), f)
	if err != nil {
		h.engineError(w, "Failed to list events", err)
		return
	}

	dtos := make([]EventDTO, len(details))
	for i, d := range details {
		dtos[i] = toEventDTO(d)
	}
	writeJSON(w, http.StatusOK, dtos)
}

// CreateEvent creates an event with its tiers. Organizer only.
// POST /api/events
func (h *Handler) CreateEvent(w http.ResponseWriter, r *http.Request) {
	var req CreateEventRequest
	if !h.decode(w, r, &req) {
		return
	}

	in := ticketing.EventInput{
		Name:        req.Name,
		Description: req.Description,
		Category:    req.Category,
		Location:    req.Location,
		StartDate:   req.StartDate,
		EndDate:     req.EndDate,
	}
	for _, t := range req.Tiers {
		in.Tiers = append(in.Tiers, ticketing.TierSpec{
			Name:  t.Name,
			Price: ticketing.Money(t.Price),
			Quota: t.Quota,
		})
	}

	p := principalFrom(r)
	event, err := h.Engine.CreateEvent(r.Context(), p.AccountID, in)
	if err != nil {
		h.engineError(w, "Failed to create event", err)
		return
	}

	detail, err := h.Engine.GetEventDetail(r.Context(), event.ID)
	if err != nil {
		h.engineError(w, "Failed to load created event", err)
		return
	}
	writeJSON(w, http.StatusCreated, toEventDTO(*detail))
}

// GetEvent returns one event with tiers and active promotions.
// GET /api/events/{id}
func (h *Handler) GetEvent(w http.ResponseWriter, r *http.Request) {
	id := ticketing.EventID(chi.URLParam(r, "id"))
	detail, err := h.Engine.GetEventDetail(r.Context(), id)
	if err != nil {
		h.engineError(w, "Failed to get event", err)
		return
	}
	writeJSON(w, http.StatusOK, toEventDTO(*detail))
}

// AddTiers appends new ticket tiers to an event the caller owns, typically
// discounted ones ahead of a promotion window.
// POST /api/events/{id}/tiers
func (h *Handler) AddTiers(w http.ResponseWriter, r *http.Request) {
	var req AddTiersRequest
	if !h.decode(w, r, &req) {
		return
	}

	specs := make([]ticketing.TierSpec, len(req.Tiers))
	for i, t := range req.Tiers {
		specs[i] = ticketing.TierSpec{
			Name:  t.Name,
			Price: ticketing.Money(t.Price),
			Quota: t.Quota,
		}
	}

	p := principalFrom(r)
	eventID := ticketing.EventID(chi.URLParam(r, "id"))
	tiers, err := h.Engine.AddTiers(r.Context(), p.AccountID, eventID, specs)
	if err != nil {
		h.engineError(w, "Failed to add tiers", err)
		return
	}

	dtos := make([]TierDTO, len(tiers))
	for i, t := range tiers {
		dtos[i] = TierDTO{
			ID:    string(t.ID),
			Name:  t.Name,
			Price: int64(t.Price),
			Quota: t.Quota,
		}
	}
	writeJSON(w, http.StatusCreated, dtos)
}

// CreatePromotion opens a promotion window on an event. Organizer only.
// POST /api/events/{id}/promotions
func (h *Handler) CreatePromotion(w http.ResponseWriter, r *http.Request) {
	var req CreatePromotionRequest
	if !h.decode(w, r, &req) {
		return
	}

	p := principalFrom(r)
	eventID := ticketing.EventID(chi.URLParam(r, "id"))
	promo, err := h.Engine.CreatePromotion(r.Context(), p.AccountID, eventID,
		req.Title, req.StartDate, req.EndDate)
	if err != nil {
		h.engineError(w, "Failed to create promotion", err)
		return
	}

	writeJSON(w, http.StatusCreated, PromotionDTO{
		ID:        string(promo.ID),
		Title:     promo.Title,
		StartDate: promo.StartDate.Format(timeFormat),
		EndDate:   promo.EndDate.Format(timeFormat),
	})
}

// =============================================================================
// TRANSACTION HANDLERS
// =============================================================================

// Checkout reserves tickets and creates a waiting_payment transaction.
// POST /api/transactions
func (h *Handler) Checkout(w http.ResponseWriter, r *http.Request) {
	var req CheckoutRequest
	if !h.decode(w, r, &req) {
		return
	}

	p := principalFrom(r)
	result, err := h.Engine.Checkout(r.Context(), ticketing.CheckoutInput{
		BuyerID:   p.AccountID,
		TierID:    ticketing.TierID(req.TierID),
		Quantity:  req.Quantity,
		UsePoints: req.UsePoints,
	})
	if err != nil {
		h.engineError(w, "Checkout failed", err)
		return
	}

	writeJSON(w, http.StatusCreated, CheckoutResponseDTO{
		TransactionID: string(result.TransactionID),
		FinalPrice:    int64(result.FinalPrice),
		PointsUsed:    int64(result.PointsUsed),
		Status:        string(ticketing.StatusWaitingPayment),
	})
}

// ListTransactions returns the caller's transactions, newest first.
// GET /api/transactions
func (h *Handler) ListTransactions(w http.ResponseWriter, r *http.Request) {
	p := principalFrom(r)
	details, err := h.Engine.ListTransactions(r.Context(), p.AccountID)
	if err != nil {
		h.engineError(w, "Failed to list transactions", err)
		return
	}

	dtos := make([]TransactionDTO, len(details))
	for i, d := range details {
		dtos[i] = toTransactionDTO(d)
	}
	writeJSON(w, http.StatusOK, dtos)
}

// GetTransaction returns one transaction, visible to its buyer and the
// event's organizer.
// GET /api/transactions/{id}
func (h *Handler) GetTransaction(w http.ResponseWriter, r *http.Request) {
	p := principalFrom(r)
	id := ticketing.TransactionID(chi.URLParam(r, "id"))
	detail, err := h.Engine.GetTransaction(r.Context(), id, p.AccountID)
	if err != nil {
		h.engineError(w, "Failed to get transaction", err)
		return
	}
	writeJSON(w, http.StatusOK, toTransactionDTO(*detail))
}

// SubmitPaymentProof accepts the proof upload and advances the transaction
// to waiting_confirmation. The blob is stored opaquely; only its reference
// lands on the transaction.
// POST /api/transactions/{id}/payment-proof  (multipart field "proof")
func (h *Handler) SubmitPaymentProof(w http.ResponseWriter, r *http.Request) {
	p := principalFrom(r)
	id := ticketing.TransactionID(chi.URLParam(r, "id"))

	if err := r.ParseMultipartForm(maxProofBytes); err != nil {
		writeError(w, http.StatusBadRequest, "Expected multipart form with a proof file", err)
		return
	}
	file, _, err := r.FormFile("proof")
	if err != nil {
		writeError(w, http.StatusBadRequest, "Missing proof file", err)
		return
	}
	defer file.Close()

	blob, err := io.ReadAll(io.LimitReader(file, maxProofBytes))
	if err != nil {
		writeError(w, http.StatusBadRequest, "Failed to read proof file", err)
		return
	}

	proofRef, err := h.Proofs.Save(r.Context(), id, blob)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to store proof", err)
		return
	}

	if err := h.Engine.SubmitPaymentProof(r.Context(), id, p.AccountID, proofRef); err != nil {
		h.engineError(w, "Failed to submit payment proof", err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"transaction_id": id,
		"status":         ticketing.StatusWaitingConfirmation,
		"proof_ref":      proofRef,
	})
}

// Confirm resolves a waiting_confirmation transaction. Organizer only.
// POST /api/transactions/{id}/confirm
func (h *Handler) Confirm(w http.ResponseWriter, r *http.Request) {
	var req ConfirmRequest
	if !h.decode(w, r, &req) {
		return
	}

	p := principalFrom(r)
	id := ticketing.TransactionID(chi.URLParam(r, "id"))
	if err := h.Engine.Confirm(r.Context(), id, p.AccountID, ticketing.ConfirmAction(req.Action)); err != nil {
		h.engineError(w, "Failed to confirm transaction", err)
		return
	}

	status := ticketing.StatusDone
	if ticketing.ConfirmAction(req.Action) == ticketing.ActionReject {
		status = ticketing.StatusRejected
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"transaction_id": id,
		"status":         status,
	})
}

// =============================================================================
// ORGANIZER / ADMIN HANDLERS
// =============================================================================

// Dashboard returns the organizer's revenue rollup.
// GET /api/organizer/dashboard
func (h *Handler) Dashboard(w http.ResponseWriter, r *http.Request) {
	p := principalFrom(r)
	report, err := h.Engine.OrganizerDashboard(r.Context(), p.AccountID)
	if err != nil {
		h.engineError(w, "Failed to build dashboard", err)
		return
	}
	writeJSON(w, http.StatusOK, toDashboardDTO(*report))
}

// TriggerSweep runs one expiry sweep immediately.
// POST /api/admin/sweep
func (h *Handler) TriggerSweep(w http.ResponseWriter, r *http.Request) {
	result, err := h.Engine.RunSweep(r.Context(), ticketing.DefaultSweepConfig())
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Sweep failed", err)
		return
	}
	writeJSON(w, http.StatusOK, SweepResultDTO{
		Expired:       result.Expired,
		Canceled:      result.Canceled,
		GrantsExpired: result.GrantsExpired,
		Failed:        result.Failed,
	})
}

// =============================================================================
// HELPERS
// =============================================================================

const timeFormat = "2006-01-02T15:04:05Z07:00" // RFC3339

// decode parses and validates a JSON request body, writing a 400 and
// returning false on failure.
func (h *Handler) decode(w http.ResponseWriter, r *http.Request, dst any) bool {
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return false
	}
	if err := h.validate.Struct(dst); err != nil {
		writeError(w, http.StatusBadRequest, "Validation failed", err)
		return false
	}
	return true
}

// engineError maps a domain error to an HTTP response.
func (h *Handler) engineError(w http.ResponseWriter, message string, err error) {
	switch {
	case ticketing.IsNotFound(err):
		writeError(w, http.StatusNotFound, message, err)
	case errors.Is(err, ticketing.ErrForbidden):
		writeError(w, http.StatusForbidden, message, err)
	case errors.Is(err, ticketing.ErrInsufficientInventory):
		writeError(w, http.StatusConflict, message, err)
	case errors.Is(err, ticketing.ErrInvalidState):
		writeError(w, http.StatusConflict, message, err)
	case errors.Is(err, ticketing.ErrPromotionPrice):
		writeError(w, http.StatusUnprocessableEntity, message, err)
	case errors.Is(err, ticketing.ErrInvalidInput):
		writeError(w, http.StatusBadRequest, message, err)
	default:
		h.Logger.WithError(err).Error(message)
		writeError(w, http.StatusInternalServerError, message, err)
	}
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func writeError(w http.ResponseWriter, status int, message string, err error) {
	resp := ErrorResponse{Error: message}
	if err != nil {
		resp.Details = err.Error()
	}
	writeJSON(w, status, resp)
}
