package teller

import (
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
	"github.com/shopspring/decimal"

	"github.com/tellerdesk/tellerdesk/internal/liquidity"
	"github.com/tellerdesk/tellerdesk/internal/platform/httpx"
	"github.com/tellerdesk/tellerdesk/internal/shared"
)

// Handler wires HTTP endpoints for counter transactions.
type Handler struct {
	logger   *slog.Logger
	service  *Service
	validate *validator.Validate
}

// NewHandler constructs a teller HTTP handler.
func NewHandler(logger *slog.Logger, service *Service) *Handler {
	return &Handler{logger: logger, service: service, validate: validator.New()}
}

// MountRoutes registers HTTP routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Route("/transactions", func(r chi.Router) {
		r.Post("/", h.create)
		r.Get("/", h.list)
		r.Get("/{id}", h.get)
		r.Put("/{id}", h.edit)
		r.Delete("/{id}", h.remove)
		r.Post("/{id}/reverse", h.reverse)
	})
}

type createRequest struct {
	Module           string  `json:"module" validate:"required"`
	Type             string  `json:"type" validate:"required"`
	Reference        string  `json:"reference" validate:"required"`
	Amount           float64 `json:"amount" validate:"gt=0"`
	Fee              float64 `json:"fee" validate:"gte=0"`
	BranchID         int64   `json:"branchId" validate:"required"`
	BranchCode       string  `json:"branchCode" validate:"required"`
	Provider         string  `json:"provider"`
	PaymentAccountID *int64  `json:"paymentAccountId"`
	CustomerName     string  `json:"customerName"`
	CustomerPhone    string  `json:"customerPhone"`
	Description      string  `json:"description"`
}

type transactionResponse struct {
	ID           int64      `json:"id"`
	Reference    string     `json:"reference"`
	Module       string     `json:"module"`
	Type         string     `json:"type"`
	Amount       string     `json:"amount"`
	Fee          string     `json:"fee"`
	BranchID     int64      `json:"branchId"`
	Provider     string     `json:"provider,omitempty"`
	CustomerName string     `json:"customerName,omitempty"`
	Description  string     `json:"description,omitempty"`
	Status       string     `json:"status"`
	GLStatus     string     `json:"glStatus"`
	CreatedAt    time.Time  `json:"createdAt"`
	ReversedAt   *time.Time `json:"reversedAt,omitempty"`
}

type resultResponse struct {
	Transaction transactionResponse `json:"transaction"`
	GLStatus    string              `json:"glPostingStatus"`
	GLReason    string              `json:"glPostingReason,omitempty"`
}

func toTransactionResponse(t Transaction) transactionResponse {
	return transactionResponse{
		ID:           t.ID,
		Reference:    t.Reference,
		Module:       string(t.Module),
		Type:         string(t.Type),
		Amount:       t.Amount.StringFixed(2),
		Fee:          t.Fee.StringFixed(2),
		BranchID:     t.BranchID,
		Provider:     t.Provider,
		CustomerName: t.CustomerName,
		Description:  t.Description,
		Status:       string(t.Status),
		GLStatus:     t.GLStatus,
		CreatedAt:    t.CreatedAt,
		ReversedAt:   t.ReversedAt,
	}
}

func toResultResponse(res Result) resultResponse {
	return resultResponse{
		Transaction: toTransactionResponse(res.Transaction),
		GLStatus:    string(res.GL.Status),
		GLReason:    res.GL.Reason,
	}
}

func (h *Handler) create(w http.ResponseWriter, r *http.Request) {
	var req createRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid JSON", err.Error())
		return
	}
	if err := h.validate.Struct(req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return
	}
	result, err := h.service.Create(r.Context(), CreateInput{
		Module:           liquidity.Module(req.Module),
		Type:             req.Type,
		Reference:        req.Reference,
		Amount:           decimal.NewFromFloat(req.Amount),
		Fee:              decimal.NewFromFloat(req.Fee),
		BranchID:         req.BranchID,
		BranchCode:       req.BranchCode,
		Provider:         req.Provider,
		PaymentAccountID: req.PaymentAccountID,
		CustomerName:     req.CustomerName,
		CustomerPhone:    req.CustomerPhone,
		Description:      req.Description,
		ActorID:          shared.ActorFromContext(r.Context()),
	})
	if err != nil {
		h.respondErr(w, r, "create transaction", err)
		return
	}
	httpx.JSON(w, http.StatusCreated, toResultResponse(result))
}

type editRequest struct {
	Amount      float64 `json:"amount" validate:"gt=0"`
	Fee         float64 `json:"fee" validate:"gte=0"`
	Description string  `json:"description"`
}

func (h *Handler) edit(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	var req editRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid JSON", err.Error())
		return
	}
	if err := h.validate.Struct(req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return
	}
	result, err := h.service.Edit(r.Context(), EditInput{
		ID:          id,
		Amount:      decimal.NewFromFloat(req.Amount),
		Fee:         decimal.NewFromFloat(req.Fee),
		Description: req.Description,
		ActorID:     shared.ActorFromContext(r.Context()),
	})
	if err != nil {
		h.respondErr(w, r, "edit transaction", err)
		return
	}
	httpx.JSON(w, http.StatusOK, toResultResponse(result))
}

type reverseRequest struct {
	Reason string `json:"reason" validate:"required"`
}

func (h *Handler) reverse(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	var req reverseRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid JSON", err.Error())
		return
	}
	if err := h.validate.Struct(req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return
	}
	result, err := h.service.Reverse(r.Context(), id, req.Reason, shared.ActorFromContext(r.Context()))
	if err != nil {
		h.respondErr(w, r, "reverse transaction", err)
		return
	}
	httpx.JSON(w, http.StatusOK, toResultResponse(result))
}

func (h *Handler) remove(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	result, err := h.service.Delete(r.Context(), id, shared.ActorFromContext(r.Context()))
	if err != nil {
		h.respondErr(w, r, "delete transaction", err)
		return
	}
	httpx.JSON(w, http.StatusOK, toResultResponse(result))
}

func (h *Handler) get(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	txn, err := h.service.Get(r.Context(), id)
	if err != nil {
		h.respondErr(w, r, "get transaction", err)
		return
	}
	httpx.JSON(w, http.StatusOK, toTransactionResponse(txn))
}

func (h *Handler) list(w http.ResponseWriter, r *http.Request) {
	branchID, err := strconv.ParseInt(r.URL.Query().Get("branchId"), 10, 64)
	if err != nil || branchID <= 0 {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "branchId query parameter required")
		return
	}
	page, _ := strconv.Atoi(r.URL.Query().Get("page"))
	perPage, _ := strconv.Atoi(r.URL.Query().Get("perPage"))
	txns, err := h.service.List(r.Context(), branchID,
		r.URL.Query().Get("module"), r.URL.Query().Get("status"),
		shared.Pagination{Page: page, PerPage: perPage})
	if err != nil {
		h.respondErr(w, r, "list transactions", err)
		return
	}
	out := make([]transactionResponse, 0, len(txns))
	for _, t := range txns {
		out = append(out, toTransactionResponse(t))
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"transactions": out})
}

func (h *Handler) respondErr(w http.ResponseWriter, r *http.Request, op string, err error) {
	switch {
	case errors.Is(err, ErrNotFound):
		httpx.Problem(w, http.StatusNotFound, "Not Found", err.Error())
	case errors.Is(err, ErrAlreadyReversed), errors.Is(err, ErrAlreadyDeleted), errors.Is(err, ErrNotEditable):
		httpx.Problem(w, http.StatusConflict, "Conflict", err.Error())
	case errors.Is(err, ErrDuplicateReference):
		httpx.Problem(w, http.StatusConflict, "Duplicate", err.Error())
	case errors.Is(err, ErrValidation),
		errors.Is(err, liquidity.ErrUnknownModule),
		errors.Is(err, liquidity.ErrUnknownTransactionType):
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
	case errors.Is(err, liquidity.ErrInsufficientBalance):
		httpx.Problem(w, http.StatusUnprocessableEntity, "Insufficient Balance", err.Error())
	case errors.Is(err, liquidity.ErrAccountInactive):
		httpx.Problem(w, http.StatusUnprocessableEntity, "Account Inactive", err.Error())
	case errors.Is(err, liquidity.ErrAccountNotFound):
		httpx.Problem(w, http.StatusNotFound, "Not Found", err.Error())
	default:
		h.logger.Error(op, slog.Any("error", err))
		httpx.Problem(w, http.StatusInternalServerError, "Internal Error", "")
	}
}

func pathID(w http.ResponseWriter, r *http.Request) (int64, bool) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil || id <= 0 {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "invalid id")
		return 0, false
	}
	return id, true
}
