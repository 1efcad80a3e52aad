package accounting

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"

	"github.com/odyssey-erp/odyssey-ledger/internal/accounting/ledger"
	"github.com/odyssey-erp/odyssey-ledger/internal/platform/httpx"
	"github.com/odyssey-erp/odyssey-ledger/internal/workflow"
)

// Handler wires general ledger endpoints.
type Handler struct {
	logger  *slog.Logger
	service *Service
}

// NewHandler builds a Handler instance.
func NewHandler(logger *slog.Logger, service *Service) *Handler {
	return &Handler{logger: logger, service: service}
}

// MountRoutes registers HTTP routes for the ledger module.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Get("/", h.handleBuild)
	r.Post("/entries", h.handleRecord)
	r.Post("/entries/{id}/status", h.handleChangeStatus)
	r.Get("/entries/transitions", h.handleTransitions)
	r.Post("/recalculate", h.handleRecalculate)
	r.Get("/integrity", h.handleVerify)
}

func (h *Handler) handleBuild(w http.ResponseWriter, r *http.Request) {
	filters, err := parseFilters(r)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	rows, err := h.service.BuildLedger(r.Context(), filters)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"rows": rows})
}

type recordEntryRequest struct {
	ChartAccountID int64           `json:"chart_account_id"`
	OrganizationID int64           `json:"organization_id"`
	BranchID       *int64          `json:"branch_id"`
	SupplierID     *int64          `json:"supplier_id"`
	PostingDate    string          `json:"posting_date"`
	VoucherType    string          `json:"voucher_type"`
	VoucherSubtype string          `json:"voucher_subtype"`
	VoucherNumber  string          `json:"voucher_number"`
	AgainstVoucher string          `json:"against_voucher"`
	PartnerType    string          `json:"partner_type"`
	PartnerName    string          `json:"partner_name"`
	Project        string          `json:"project"`
	Description    string          `json:"description"`
	Remarks        string          `json:"remarks"`
	Currency       string          `json:"currency"`
	Debit          decimal.Decimal `json:"debit"`
	Credit         decimal.Decimal `json:"credit"`
	IsOpening      bool            `json:"is_opening_entry"`
	Status         string          `json:"status"`
	ActorID        int64           `json:"actor_id"`
}

func (h *Handler) handleRecord(w http.ResponseWriter, r *http.Request) {
	var req recordEntryRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		h.fail(w, r, fmt.Errorf("%w: %v", ErrInvalidInput, err))
		return
	}
	date, err := parseDate(req.PostingDate)
	if err != nil {
		h.fail(w, r, fmt.Errorf("%w: posting_date: %v", ErrInvalidInput, err))
		return
	}
	entry, err := h.service.RecordEntry(r.Context(), RecordEntryInput{
		ChartAccountID: req.ChartAccountID,
		OrganizationID: req.OrganizationID,
		BranchID:       req.BranchID,
		SupplierID:     req.SupplierID,
		PostingDate:    date,
		VoucherType:    req.VoucherType,
		VoucherSubtype: req.VoucherSubtype,
		VoucherNumber:  req.VoucherNumber,
		AgainstVoucher: req.AgainstVoucher,
		PartnerType:    req.PartnerType,
		PartnerName:    req.PartnerName,
		Project:        req.Project,
		Description:    req.Description,
		Remarks:        req.Remarks,
		Currency:       req.Currency,
		Debit:          req.Debit,
		Credit:         req.Credit,
		IsOpening:      req.IsOpening,
		Status:         ledger.EntryStatus(req.Status),
		ActorID:        req.ActorID,
		IdempotencyKey: r.Header.Get("Idempotency-Key"),
	})
	if err != nil {
		h.fail(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, entry)
}

type changeStatusRequest struct {
	Status  string `json:"status"`
	ActorID int64  `json:"actor_id"`
	Reason  string `json:"reason"`
}

func (h *Handler) handleChangeStatus(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		h.fail(w, r, fmt.Errorf("%w: invalid entry id", ErrInvalidInput))
		return
	}
	var req changeStatusRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		h.fail(w, r, fmt.Errorf("%w: %v", ErrInvalidInput, err))
		return
	}
	entry, err := h.service.ChangeEntryStatus(r.Context(), ChangeStatusInput{
		EntryID: id,
		To:      ledger.EntryStatus(req.Status),
		ActorID: req.ActorID,
		Reason:  req.Reason,
	})
	if err != nil {
		h.fail(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusOK, entry)
}

func (h *Handler) handleTransitions(w http.ResponseWriter, r *http.Request) {
	status := ledger.EntryStatus(r.URL.Query().Get("status"))
	httpx.JSON(w, http.StatusOK, map[string]any{
		"status":      status,
		"transitions": h.service.AvailableEntryTransitions(status),
	})
}

func (h *Handler) handleRecalculate(w http.ResponseWriter, r *http.Request) {
	var pair ledger.Pair
	if err := httpx.DecodeJSON(r, &pair); err != nil {
		h.fail(w, r, fmt.Errorf("%w: %v", ErrInvalidInput, err))
		return
	}
	result, err := h.service.Recalculate(r.Context(), pair)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusOK, result)
}

func (h *Handler) handleVerify(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	accountID, errA := strconv.ParseInt(q.Get("chart_account_id"), 10, 64)
	orgID, errO := strconv.ParseInt(q.Get("organization_id"), 10, 64)
	if errA != nil || errO != nil {
		h.fail(w, r, fmt.Errorf("%w: chart_account_id and organization_id required", ErrInvalidInput))
		return
	}
	report, err := h.service.Verify(r.Context(), ledger.Pair{ChartAccountID: accountID, OrganizationID: orgID})
	if err != nil {
		h.fail(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusOK, report)
}

func (h *Handler) fail(w http.ResponseWriter, r *http.Request, err error) {
	mapped := classify(err)
	if errors.Is(mapped, httpx.ErrInternal) {
		h.logger.Error("ledger request failed", slog.String("path", r.URL.Path), slog.Any("error", err))
	}
	httpx.RespondError(w, mapped)
}

func classify(err error) error {
	switch {
	case errors.Is(err, ErrInvalidInput), errors.Is(err, ledger.ErrInvalidCurrency):
		return fmt.Errorf("%w: %s", httpx.ErrValidation, err.Error())
	case errors.Is(err, ErrEntryNotFound):
		return fmt.Errorf("%w: %s", httpx.ErrNotFound, err.Error())
	case errors.Is(err, workflow.ErrIllegalTransition), errors.Is(err, ErrSystemEntry):
		return fmt.Errorf("%w: %s", httpx.ErrConflict, err.Error())
	case errors.Is(err, ErrDuplicateRequest):
		return fmt.Errorf("%w: %s", httpx.ErrDuplicate, err.Error())
	case errors.Is(err, context.DeadlineExceeded):
		return fmt.Errorf("%w: ledger query timed out", httpx.ErrUnavailable)
	default:
		return fmt.Errorf("%w: %s", httpx.ErrInternal, err.Error())
	}
}

func parseFilters(r *http.Request) (ledger.Filters, error) {
	q := r.URL.Query()
	start, err := parseDate(q.Get("start_date"))
	if err != nil {
		return ledger.Filters{}, fmt.Errorf("%w: start_date: %v", ErrInvalidInput, err)
	}
	end, err := parseDate(q.Get("end_date"))
	if err != nil {
		return ledger.Filters{}, fmt.Errorf("%w: end_date: %v", ErrInvalidInput, err)
	}
	f := ledger.Filters{
		StartDate:               start,
		EndDate:                 end,
		IncludeOpeningStructure: parseBool(q.Get("opening")),
		IncludeCancelled:        parseBool(q.Get("include_cancelled")),
		Currency:                strings.TrimSpace(q.Get("currency")),
	}
	if f.ChartAccountID, err = parseOptionalID(q.Get("chart_account_id")); err != nil {
		return ledger.Filters{}, fmt.Errorf("%w: chart_account_id: %v", ErrInvalidInput, err)
	}
	if f.OrganizationID, err = parseOptionalID(q.Get("organization_id")); err != nil {
		return ledger.Filters{}, fmt.Errorf("%w: organization_id: %v", ErrInvalidInput, err)
	}
	return f, nil
}

func parseDate(raw string) (time.Time, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return time.Time{}, errors.New("date required")
	}
	return time.Parse(time.DateOnly, raw)
}

func parseOptionalID(raw string) (*int64, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil, nil
	}
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return nil, err
	}
	return &id, nil
}

func parseBool(raw string) bool {
	v, err := strconv.ParseBool(strings.TrimSpace(raw))
	return err == nil && v
}
