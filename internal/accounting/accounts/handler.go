package accounts

import (
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"

	"github.com/odyssey-erp/odyssey-ledger/internal/platform/httpx"
)

// Handler serves the chart of accounts as JSON.
type Handler struct {
	service *Service
	logger  *slog.Logger
}

func NewHandler(logger *slog.Logger, service *Service) *Handler {
	return &Handler{logger: logger, service: service}
}

// MountRoutes registers the chart of accounts routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Get("/", h.List)
	r.Get("/tree", h.Tree)
	r.Get("/{id}", h.Get)
	r.Post("/", h.Create)
}

func (h *Handler) List(w http.ResponseWriter, r *http.Request) {
	orgID, ok := h.organization(w, r)
	if !ok {
		return
	}
	accounts, err := h.service.List(r.Context(), orgID)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"accounts": accounts})
}

func (h *Handler) Tree(w http.ResponseWriter, r *http.Request) {
	orgID, ok := h.organization(w, r)
	if !ok {
		return
	}
	tree, err := h.service.Tree(r.Context(), orgID)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"accounts": tree})
}

func (h *Handler) Get(w http.ResponseWriter, r *http.Request) {
	orgID, ok := h.organization(w, r)
	if !ok {
		return
	}
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		h.fail(w, r, fmt.Errorf("%w: invalid id", ErrInvalidAccount))
		return
	}
	account, err := h.service.Get(r.Context(), orgID, id)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusOK, account)
}

type createRequest struct {
	OrganizationID int64           `json:"organization_id"`
	Code           string          `json:"code"`
	Name           string          `json:"name"`
	Type           AccountType     `json:"type"`
	Amount         decimal.Decimal `json:"amount"`
	ParentID       *int64          `json:"parent_id"`
}

func (h *Handler) Create(w http.ResponseWriter, r *http.Request) {
	var req createRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		h.fail(w, r, fmt.Errorf("%w: %v", ErrInvalidAccount, err))
		return
	}
	account, err := h.service.Create(r.Context(), CreateInput(req))
	if err != nil {
		h.fail(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, account)
}

func (h *Handler) organization(w http.ResponseWriter, r *http.Request) (int64, bool) {
	orgID, err := strconv.ParseInt(r.URL.Query().Get("organization_id"), 10, 64)
	if err != nil || orgID <= 0 {
		h.fail(w, r, fmt.Errorf("%w: organization_id required", ErrInvalidAccount))
		return 0, false
	}
	return orgID, true
}

func (h *Handler) fail(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, ErrInvalidAccount), errors.Is(err, ErrParentNotFound):
		httpx.RespondError(w, fmt.Errorf("%w: %s", httpx.ErrValidation, err.Error()))
	case errors.Is(err, ErrNotFound):
		httpx.RespondError(w, fmt.Errorf("%w: %s", httpx.ErrNotFound, err.Error()))
	case errors.Is(err, ErrDuplicateCode):
		httpx.RespondError(w, fmt.Errorf("%w: %s", httpx.ErrDuplicate, err.Error()))
	default:
		h.logger.Error("accounts request failed", slog.String("path", r.URL.Path), slog.Any("error", err))
		httpx.RespondError(w, httpx.ErrInternal)
	}
}
