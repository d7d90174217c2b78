package ledger

import (
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"

	"github.com/tellerdesk/tellerdesk/internal/liquidity"
	"github.com/tellerdesk/tellerdesk/internal/platform/httpx"
	"github.com/tellerdesk/tellerdesk/internal/shared"
)

// Handler exposes read endpoints over the GL plus the manual provisioning
// trigger for branch onboarding.
type Handler struct {
	logger      *slog.Logger
	service     *Service
	provisioner *Provisioner
	validate    *validator.Validate
}

// NewHandler constructs a ledger HTTP handler.
func NewHandler(logger *slog.Logger, service *Service, provisioner *Provisioner) *Handler {
	return &Handler{logger: logger, service: service, provisioner: provisioner, validate: validator.New()}
}

// MountRoutes registers HTTP routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Route("/gl", func(r chi.Router) {
		r.Get("/accounts", h.listAccounts)
		r.Get("/transactions", h.listTransactions)
		r.Get("/transactions/{module}/{type}/{sourceId}", h.getTransaction)
		r.Post("/mappings/provision", h.provision)
	})
}

type accountResponse struct {
	ID       int64   `json:"id"`
	Code     string  `json:"code"`
	Name     string  `json:"name"`
	Type     string  `json:"type"`
	BranchID int64   `json:"branchId"`
	Balance  float64 `json:"balance"`
	IsActive bool    `json:"isActive"`
}

func (h *Handler) listAccounts(w http.ResponseWriter, r *http.Request) {
	branchID, err := strconv.ParseInt(r.URL.Query().Get("branchId"), 10, 64)
	if err != nil || branchID <= 0 {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "branchId query parameter required")
		return
	}
	page, _ := strconv.Atoi(r.URL.Query().Get("page"))
	perPage, _ := strconv.Atoi(r.URL.Query().Get("perPage"))
	accounts, err := h.service.ListAccounts(r.Context(), branchID, shared.Pagination{Page: page, PerPage: perPage})
	if err != nil {
		h.logger.Error("list gl accounts", slog.Any("error", err))
		httpx.Problem(w, http.StatusInternalServerError, "Internal Error", "")
		return
	}
	out := make([]accountResponse, 0, len(accounts))
	for _, a := range accounts {
		out = append(out, accountResponse{
			ID: a.ID, Code: a.Code, Name: a.Name, Type: string(a.Type),
			BranchID: a.BranchID, Balance: a.Balance, IsActive: a.IsActive,
		})
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"accounts": out})
}

type transactionResponse struct {
	ID          int64           `json:"id"`
	Date        time.Time       `json:"date"`
	Module      string          `json:"module"`
	SourceID    string          `json:"sourceId"`
	Type        string          `json:"type"`
	Description string          `json:"description"`
	Status      string          `json:"status"`
	CreatedBy   string          `json:"createdBy,omitempty"`
	Entries     []entryResponse `json:"entries,omitempty"`
}

type entryResponse struct {
	AccountID   int64   `json:"accountId"`
	AccountCode string  `json:"accountCode"`
	Debit       float64 `json:"debit"`
	Credit      float64 `json:"credit"`
	Description string  `json:"description,omitempty"`
}

func toTransactionResponse(t GLTransaction) transactionResponse {
	out := transactionResponse{
		ID:          t.ID,
		Date:        t.Date,
		Module:      t.SourceModule,
		SourceID:    t.SourceTransactionID.String(),
		Type:        t.SourceTransactionType,
		Description: t.Description,
		Status:      string(t.Status),
		CreatedBy:   t.CreatedBy,
	}
	for _, e := range t.Entries {
		out.Entries = append(out.Entries, entryResponse{
			AccountID: e.AccountID, AccountCode: e.AccountCode,
			Debit: e.Debit, Credit: e.Credit, Description: e.Description,
		})
	}
	return out
}

func (h *Handler) listTransactions(w http.ResponseWriter, r *http.Request) {
	since := time.Time{}
	if raw := r.URL.Query().Get("since"); raw != "" {
		parsed, err := time.Parse("2006-01-02", raw)
		if err != nil {
			httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "since must be YYYY-MM-DD")
			return
		}
		since = parsed
	}
	page, _ := strconv.Atoi(r.URL.Query().Get("page"))
	perPage, _ := strconv.Atoi(r.URL.Query().Get("perPage"))
	txns, err := h.service.ListTransactions(r.Context(), r.URL.Query().Get("module"), since,
		shared.Pagination{Page: page, PerPage: perPage})
	if err != nil {
		h.logger.Error("list gl transactions", slog.Any("error", err))
		httpx.Problem(w, http.StatusInternalServerError, "Internal Error", "")
		return
	}
	out := make([]transactionResponse, 0, len(txns))
	for _, t := range txns {
		out = append(out, toTransactionResponse(t))
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"transactions": out})
}

func (h *Handler) getTransaction(w http.ResponseWriter, r *http.Request) {
	txn, err := h.service.GetTransaction(r.Context(),
		liquidity.Module(chi.URLParam(r, "module")), chi.URLParam(r, "type"), chi.URLParam(r, "sourceId"))
	switch {
	case errors.Is(err, ErrTransactionNotFound):
		httpx.Problem(w, http.StatusNotFound, "Not Found", err.Error())
	case errors.Is(err, liquidity.ErrUnknownModule), errors.Is(err, liquidity.ErrUnknownTransactionType):
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
	case err != nil:
		h.logger.Error("get gl transaction", slog.Any("error", err))
		httpx.Problem(w, http.StatusInternalServerError, "Internal Error", "")
	default:
		httpx.JSON(w, http.StatusOK, toTransactionResponse(txn))
	}
}

type provisionRequest struct {
	Module         string `json:"module" validate:"required"`
	BranchID       int64  `json:"branchId" validate:"required"`
	BranchCode     string `json:"branchCode" validate:"required"`
	Provider       string `json:"provider"`
	FloatAccountID *int64 `json:"floatAccountId"`
}

func (h *Handler) provision(w http.ResponseWriter, r *http.Request) {
	var req provisionRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid JSON", err.Error())
		return
	}
	if err := h.validate.Struct(req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return
	}
	module := liquidity.Module(req.Module)
	if _, err := liquidity.FloatAccountKind(module); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return
	}
	if err := h.provisioner.EnsureMappings(r.Context(), module, req.BranchID, req.BranchCode, req.Provider, req.FloatAccountID); err != nil {
		h.logger.Error("provision mappings", slog.Any("error", err))
		httpx.Problem(w, http.StatusInternalServerError, "Internal Error", "")
		return
	}
	if err := h.provisioner.EnsureTillMapping(r.Context(), req.BranchID, req.BranchCode); err != nil {
		h.logger.Error("provision till mapping", slog.Any("error", err))
		httpx.Problem(w, http.StatusInternalServerError, "Internal Error", "")
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]string{"status": "provisioned"})
}
