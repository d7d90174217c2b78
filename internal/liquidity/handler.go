package liquidity

import (
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
	"github.com/shopspring/decimal"

	"github.com/tellerdesk/tellerdesk/internal/platform/httpx"
	"github.com/tellerdesk/tellerdesk/internal/shared"
)

// Handler exposes float and till account management endpoints.
type Handler struct {
	logger   *slog.Logger
	service  *Service
	validate *validator.Validate
}

// NewHandler constructs a liquidity HTTP handler.
func NewHandler(logger *slog.Logger, service *Service) *Handler {
	return &Handler{logger: logger, service: service, validate: validator.New()}
}

// MountRoutes registers HTTP routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Route("/float-accounts", func(r chi.Router) {
		r.Post("/", h.create)
		r.Get("/", h.list)
		r.Get("/{id}", h.get)
		r.Post("/{id}/deactivate", h.deactivate)
		r.Delete("/{id}", h.remove)
		r.Post("/{id}/adjust", h.adjust)
	})
}

type createAccountRequest struct {
	BranchID       int64   `json:"branchId" validate:"required"`
	Kind           string  `json:"kind" validate:"required"`
	Provider       string  `json:"provider"`
	AccountNumber  string  `json:"accountNumber"`
	OpeningBalance float64 `json:"openingBalance" validate:"gte=0"`
	MinThreshold   float64 `json:"minThreshold" validate:"gte=0"`
	MaxThreshold   float64 `json:"maxThreshold" validate:"gte=0"`
}

type accountResponse struct {
	ID             int64     `json:"id"`
	BranchID       int64     `json:"branchId"`
	Kind           string    `json:"kind"`
	Provider       string    `json:"provider,omitempty"`
	AccountNumber  string    `json:"accountNumber,omitempty"`
	CurrentBalance string    `json:"currentBalance"`
	MinThreshold   string    `json:"minThreshold"`
	MaxThreshold   string    `json:"maxThreshold"`
	IsActive       bool      `json:"isActive"`
	CreatedAt      time.Time `json:"createdAt"`
}

func toAccountResponse(a LiquidityAccount) accountResponse {
	return accountResponse{
		ID:             a.ID,
		BranchID:       a.BranchID,
		Kind:           string(a.Kind),
		Provider:       a.Provider,
		AccountNumber:  a.AccountNumber,
		CurrentBalance: a.CurrentBalance.StringFixed(2),
		MinThreshold:   a.MinThreshold.StringFixed(2),
		MaxThreshold:   a.MaxThreshold.StringFixed(2),
		IsActive:       a.IsActive,
		CreatedAt:      a.CreatedAt,
	}
}

func (h *Handler) create(w http.ResponseWriter, r *http.Request) {
	var req createAccountRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid JSON", err.Error())
		return
	}
	if err := h.validate.Struct(req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return
	}
	account, err := h.service.CreateAccount(r.Context(), CreateAccountInput{
		BranchID:       req.BranchID,
		Kind:           AccountKind(req.Kind),
		Provider:       req.Provider,
		AccountNumber:  req.AccountNumber,
		OpeningBalance: decimal.NewFromFloat(req.OpeningBalance),
		MinThreshold:   decimal.NewFromFloat(req.MinThreshold),
		MaxThreshold:   decimal.NewFromFloat(req.MaxThreshold),
		ActorID:        shared.ActorFromContext(r.Context()),
	})
	if err != nil {
		h.respondErr(w, "create float account", err)
		return
	}
	httpx.JSON(w, http.StatusCreated, toAccountResponse(account))
}

func (h *Handler) list(w http.ResponseWriter, r *http.Request) {
	branchID, err := strconv.ParseInt(r.URL.Query().Get("branchId"), 10, 64)
	if err != nil || branchID <= 0 {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "branchId query parameter required")
		return
	}
	accounts, err := h.service.ListByBranch(r.Context(), branchID)
	if err != nil {
		h.respondErr(w, "list float accounts", err)
		return
	}
	out := make([]accountResponse, 0, len(accounts))
	for _, a := range accounts {
		out = append(out, toAccountResponse(a))
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"accounts": out})
}

func (h *Handler) get(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	account, err := h.service.GetAccount(r.Context(), id)
	if err != nil {
		h.respondErr(w, "get float account", err)
		return
	}
	httpx.JSON(w, http.StatusOK, toAccountResponse(account))
}

func (h *Handler) deactivate(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	if err := h.service.Deactivate(r.Context(), id, shared.ActorFromContext(r.Context())); err != nil {
		h.respondErr(w, "deactivate float account", err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]string{"status": "deactivated"})
}

func (h *Handler) remove(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	if err := h.service.Delete(r.Context(), id, shared.ActorFromContext(r.Context())); err != nil {
		h.respondErr(w, "delete float account", err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]string{"status": "deleted"})
}

type adjustRequest struct {
	Delta       float64 `json:"delta" validate:"required"`
	Reference   string  `json:"reference" validate:"required"`
	Description string  `json:"description"`
}

// adjust applies a manual balance correction, recorded as an adjustment line.
func (h *Handler) adjust(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	var req adjustRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid JSON", err.Error())
		return
	}
	if err := h.validate.Struct(req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return
	}
	line, err := h.service.ApplyDelta(r.Context(), ApplyDeltaInput{
		AccountID:   id,
		Delta:       decimal.NewFromFloat(req.Delta),
		Type:        LineAdjustment,
		Reference:   req.Reference,
		Description: req.Description,
		ActorID:     shared.ActorFromContext(r.Context()),
	})
	if err != nil {
		h.respondErr(w, "adjust float account", err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{
		"lineId":        line.ID,
		"balanceBefore": line.BalanceBefore.StringFixed(2),
		"balanceAfter":  line.BalanceAfter.StringFixed(2),
	})
}

func (h *Handler) respondErr(w http.ResponseWriter, op string, err error) {
	switch {
	case errors.Is(err, ErrAccountNotFound):
		httpx.Problem(w, http.StatusNotFound, "Not Found", err.Error())
	case errors.Is(err, ErrAccountExists):
		httpx.Problem(w, http.StatusConflict, "Duplicate", err.Error())
	case errors.Is(err, ErrInsufficientBalance):
		httpx.Problem(w, http.StatusUnprocessableEntity, "Insufficient Balance", err.Error())
	case errors.Is(err, ErrAccountInactive):
		httpx.Problem(w, http.StatusUnprocessableEntity, "Account Inactive", err.Error())
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
