package reimbursements

import (
	"encoding/base64"
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"github.com/expensio/expensio/internal/domain"
	"github.com/expensio/expensio/internal/pkg/httputil"
	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
	"github.com/shopspring/decimal"
	"golang.org/x/text/currency"
	"golang.org/x/text/language"
	"golang.org/x/text/message"
)

// Handler handles HTTP requests for the reimbursements module.
type Handler struct {
	service   *Service
	validator *validator.Validate
	printer   *message.Printer
}

// NewHandler creates a new reimbursements handler.
func NewHandler(service *Service) *Handler {
	return &Handler{
		service:   service,
		validator: validator.New(),
		printer:   message.NewPrinter(language.AmericanEnglish),
	}
}

// RegisterRoutes registers the employee-facing routes. Callers must
// already be authenticated; per-record ownership is enforced by the
// service.
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Route("/reimbursements", func(r chi.Router) {
		r.Post("/", h.Submit)
		r.Get("/", h.ListOwn)
		r.Get("/{id}", h.GetOwn)
		r.Patch("/{id}", h.Update)
		r.Get("/{id}/receipt", h.Receipt)
	})
}

// RegisterManagerRoutes registers the finance manager routes.
func (h *Handler) RegisterManagerRoutes(r chi.Router) {
	r.Route("/reimbursements/all", func(r chi.Router) {
		r.Get("/", h.ListAll)
		r.Get("/{id}", h.GetAny)
		r.Post("/{id}/resolve", h.Resolve)
	})
}

var errorMappings = []httputil.ErrorMapping{
	{Error: ErrNotFound, Status: http.StatusNotFound},
	{Error: ErrReceiptNotFound, Status: http.StatusNotFound},
	{Error: ErrAlreadyResolved, Status: http.StatusConflict},
	{Error: ErrInvalidDecision, Status: http.StatusBadRequest},
	{Error: domain.ErrInvalidReimbursement, Status: http.StatusBadRequest},
}

// ReimbursementResponse is the wire representation of a reimbursement.
// Amount is a decimal string; AmountFormatted is a display string in US
// dollars.
type ReimbursementResponse struct {
	ID              int64      `json:"id"`
	Amount          string     `json:"amount"`
	AmountFormatted string     `json:"amount_formatted"`
	Description     string     `json:"description"`
	Status          string     `json:"status"`
	Type            string     `json:"type"`
	AuthorID        int64      `json:"author_id"`
	ResolverID      *int64     `json:"resolver_id,omitempty"`
	HasReceipt      bool       `json:"has_receipt"`
	SubmittedAt     time.Time  `json:"submitted_at"`
	ResolvedAt      *time.Time `json:"resolved_at,omitempty"`
}

func (h *Handler) toResponse(reimb *domain.Reimbursement) ReimbursementResponse {
	amount, _ := reimb.Amount.Float64()
	return ReimbursementResponse{
		ID:              reimb.ID,
		Amount:          reimb.Amount.StringFixed(2),
		AmountFormatted: h.printer.Sprintf("%v", currency.Symbol(currency.USD.Amount(amount))),
		Description:     reimb.Description,
		Status:          string(reimb.Status),
		Type:            string(reimb.Type),
		AuthorID:        reimb.AuthorID,
		ResolverID:      reimb.ResolverID,
		HasReceipt:      reimb.ReceiptKey != nil,
		SubmittedAt:     reimb.SubmittedAt,
		ResolvedAt:      reimb.ResolvedAt,
	}
}

func (h *Handler) toResponses(reimbs []domain.Reimbursement) []ReimbursementResponse {
	result := make([]ReimbursementResponse, 0, len(reimbs))
	for i := range reimbs {
		result = append(result, h.toResponse(&reimbs[i]))
	}
	return result
}

// SubmitRequest represents the submission body. Receipt is optional
// base64-encoded file content.
type SubmitRequest struct {
	Amount      string `json:"amount" validate:"required"`
	Description string `json:"description" validate:"required"`
	Type        string `json:"type" validate:"required,oneof=lodging travel food other"`
	Receipt     string `json:"receipt" validate:"omitempty,base64"`
}

// Submit handles POST /reimbursements.
func (h *Handler) Submit(w http.ResponseWriter, r *http.Request) {
	actor := httputil.ActorFromContext(r.Context())

	var req SubmitRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		httputil.Error(w, http.StatusBadRequest, "invalid json")
		return
	}
	if err := h.validator.Struct(req); err != nil {
		httputil.ValidationError(w, err)
		return
	}

	amount, err := decimal.NewFromString(req.Amount)
	if err != nil {
		httputil.Error(w, http.StatusBadRequest, "amount must be a decimal number")
		return
	}

	var receipt []byte
	if req.Receipt != "" {
		receipt, err = base64.StdEncoding.DecodeString(req.Receipt)
		if err != nil {
			httputil.Error(w, http.StatusBadRequest, "receipt must be base64 encoded")
			return
		}
	}

	reimb, err := h.service.Submit(r.Context(), actor, SubmitInput{
		Amount:      amount,
		Description: req.Description,
		Type:        domain.ReimbursementType(req.Type),
		Receipt:     receipt,
	})
	if err != nil {
		h.handleError(w, r, err)
		return
	}

	httputil.Success(w, http.StatusCreated, h.toResponse(reimb))
}

// ListOwn handles GET /reimbursements.
func (h *Handler) ListOwn(w http.ResponseWriter, r *http.Request) {
	actor := httputil.ActorFromContext(r.Context())

	reimbs, err := h.service.ListOwn(r.Context(), actor)
	if err != nil {
		h.handleError(w, r, err)
		return
	}
	httputil.Success(w, http.StatusOK, h.toResponses(reimbs))
}

// GetOwn handles GET /reimbursements/{id}.
func (h *Handler) GetOwn(w http.ResponseWriter, r *http.Request) {
	actor := httputil.ActorFromContext(r.Context())
	id, ok := h.reimbursementID(w, r)
	if !ok {
		return
	}

	reimb, err := h.service.GetOwn(r.Context(), actor, id)
	if err != nil {
		h.handleError(w, r, err)
		return
	}
	httputil.Success(w, http.StatusOK, h.toResponse(reimb))
}

// UpdateRequest represents the author patch body. Absent fields are
// left untouched.
type UpdateRequest struct {
	Amount      *string `json:"amount"`
	Description *string `json:"description"`
	Type        *string `json:"type" validate:"omitempty,oneof=lodging travel food other"`
}

// Update handles PATCH /reimbursements/{id}.
func (h *Handler) Update(w http.ResponseWriter, r *http.Request) {
	actor := httputil.ActorFromContext(r.Context())
	id, ok := h.reimbursementID(w, r)
	if !ok {
		return
	}

	var req UpdateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		httputil.Error(w, http.StatusBadRequest, "invalid json")
		return
	}
	if err := h.validator.Struct(req); err != nil {
		httputil.ValidationError(w, err)
		return
	}

	var patch UpdatePatch
	if req.Amount != nil {
		amount, err := decimal.NewFromString(*req.Amount)
		if err != nil {
			httputil.Error(w, http.StatusBadRequest, "amount must be a decimal number")
			return
		}
		patch.Amount = &amount
	}
	patch.Description = req.Description
	if req.Type != nil {
		typ := domain.ReimbursementType(*req.Type)
		patch.Type = &typ
	}

	reimb, err := h.service.UpdateByAuthor(r.Context(), actor, id, patch)
	if err != nil {
		h.handleError(w, r, err)
		return
	}
	httputil.Success(w, http.StatusOK, h.toResponse(reimb))
}

// Receipt handles GET /reimbursements/{id}/receipt, streaming the
// stored attachment bytes.
func (h *Handler) Receipt(w http.ResponseWriter, r *http.Request) {
	actor := httputil.ActorFromContext(r.Context())
	id, ok := h.reimbursementID(w, r)
	if !ok {
		return
	}

	data, err := h.service.Receipt(r.Context(), actor, id)
	if err != nil {
		h.handleError(w, r, err)
		return
	}

	w.Header().Set("Content-Type", http.DetectContentType(data))
	w.WriteHeader(http.StatusOK)
	w.Write(data) //nolint:errcheck
}

// ListAll handles GET /reimbursements/all with optional status, type
// and resolver_id filters.
func (h *Handler) ListAll(w http.ResponseWriter, r *http.Request) {
	actor := httputil.ActorFromContext(r.Context())

	var criteria Criteria
	if v := r.URL.Query().Get("status"); v != "" {
		status := domain.ReimbursementStatus(v)
		if !status.IsValid() {
			httputil.Error(w, http.StatusBadRequest, "unknown status filter")
			return
		}
		criteria.Status = &status
	}
	if v := r.URL.Query().Get("type"); v != "" {
		typ := domain.ReimbursementType(v)
		if !typ.IsValid() {
			httputil.Error(w, http.StatusBadRequest, "unknown type filter")
			return
		}
		criteria.Type = &typ
	}
	if v := r.URL.Query().Get("resolver_id"); v != "" {
		resolverID, err := strconv.ParseInt(v, 10, 64)
		if err != nil || resolverID <= 0 {
			httputil.Error(w, http.StatusBadRequest, "invalid resolver_id filter")
			return
		}
		criteria.ResolverID = &resolverID
	}

	reimbs, err := h.service.ListAll(r.Context(), actor, criteria)
	if err != nil {
		h.handleError(w, r, err)
		return
	}
	httputil.Success(w, http.StatusOK, h.toResponses(reimbs))
}

// GetAny handles GET /reimbursements/all/{id}.
func (h *Handler) GetAny(w http.ResponseWriter, r *http.Request) {
	actor := httputil.ActorFromContext(r.Context())
	id, ok := h.reimbursementID(w, r)
	if !ok {
		return
	}

	reimb, err := h.service.GetAny(r.Context(), actor, id)
	if err != nil {
		h.handleError(w, r, err)
		return
	}
	httputil.Success(w, http.StatusOK, h.toResponse(reimb))
}

// ResolveRequest represents the resolution body.
type ResolveRequest struct {
	Decision string `json:"decision" validate:"required,oneof=approved denied"`
}

// Resolve handles POST /reimbursements/all/{id}/resolve.
func (h *Handler) Resolve(w http.ResponseWriter, r *http.Request) {
	actor := httputil.ActorFromContext(r.Context())
	id, ok := h.reimbursementID(w, r)
	if !ok {
		return
	}

	var req ResolveRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		httputil.Error(w, http.StatusBadRequest, "invalid json")
		return
	}
	if err := h.validator.Struct(req); err != nil {
		httputil.ValidationError(w, err)
		return
	}

	if err := h.service.Resolve(r.Context(), actor, id, domain.ReimbursementStatus(req.Decision)); err != nil {
		h.handleError(w, r, err)
		return
	}

	reimb, err := h.service.GetAny(r.Context(), actor, id)
	if err != nil {
		h.handleError(w, r, err)
		return
	}
	httputil.Success(w, http.StatusOK, h.toResponse(reimb))
}

// handleError routes authorization failures to 401/403 and everything
// else through the module error mappings.
func (h *Handler) handleError(w http.ResponseWriter, r *http.Request, err error) {
	if httputil.AuthzError(w, err) {
		return
	}
	httputil.HandleError(r.Context(), w, err, errorMappings)
}

func (h *Handler) reimbursementID(w http.ResponseWriter, r *http.Request) (int64, bool) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil || id <= 0 {
		httputil.Error(w, http.StatusBadRequest, "invalid reimbursement id")
		return 0, false
	}
	return id, true
}
