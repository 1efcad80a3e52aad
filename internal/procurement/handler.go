package procurement

import (
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"

	"github.com/odyssey-erp/odyssey-ledger/internal/platform/httpx"
	"github.com/odyssey-erp/odyssey-ledger/internal/shared"
	"github.com/odyssey-erp/odyssey-ledger/internal/workflow"
)

// Handler exposes requisition endpoints.
type Handler struct {
	logger  *slog.Logger
	service *Service
}

// NewHandler builds procurement handler.
func NewHandler(logger *slog.Logger, service *Service) *Handler {
	return &Handler{logger: logger, service: service}
}

// MountRoutes registers procurement routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Route("/requisitions", func(r chi.Router) {
		r.Post("/", h.createRequisition)
		r.Get("/transitions", h.listTransitions)
		r.Get("/{id}", h.showRequisition)
		r.Post("/{id}/transition", h.transitionRequisition)
		r.Get("/{id}/approvals", h.listApprovals)
	})
	r.Route("/assignments", func(r chi.Router) {
		r.Get("/", h.listApprovers)
		r.Post("/", h.assignApprover)
		r.Delete("/", h.revokeApprover)
	})
}

type lineRequest struct {
	ProductID int64           `json:"product_id"`
	Qty       decimal.Decimal `json:"qty"`
	Note      string          `json:"note"`
}

type createRequest struct {
	OrganizationID int64         `json:"organization_id"`
	CostCenterID   int64         `json:"cost_center_id"`
	ProjectID      *int64        `json:"project_id"`
	RequestedBy    int64         `json:"requested_by"`
	Note           string        `json:"note"`
	Lines          []lineRequest `json:"lines"`
}

func (h *Handler) createRequisition(w http.ResponseWriter, r *http.Request) {
	var req createRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		h.fail(w, r, fmt.Errorf("%w: %v", ErrValidation, err))
		return
	}
	input := CreateRequisitionInput{
		OrganizationID: req.OrganizationID,
		CostCenterID:   req.CostCenterID,
		ProjectID:      req.ProjectID,
		RequestedBy:    req.RequestedBy,
		Note:           req.Note,
		Lines:          make([]LineInput, len(req.Lines)),
	}
	for i, l := range req.Lines {
		input.Lines[i] = LineInput(l)
	}
	pr, err := h.service.CreateRequisition(r.Context(), input)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, pr)
}

func (h *Handler) showRequisition(w http.ResponseWriter, r *http.Request) {
	id, err := parseID(r)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	pr, err := h.service.GetRequisition(r.Context(), id)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{
		"requisition": pr,
		"transitions": h.service.AvailableTransitions(pr.Status),
	})
}

type transitionRequest struct {
	Status  RequisitionStatus `json:"status"`
	ActorID int64             `json:"actor_id"`
	Note    string            `json:"note"`
}

func (h *Handler) transitionRequisition(w http.ResponseWriter, r *http.Request) {
	id, err := parseID(r)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	var req transitionRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		h.fail(w, r, fmt.Errorf("%w: %v", ErrValidation, err))
		return
	}
	pr, err := h.service.TransitionRequisition(r.Context(), TransitionInput{
		RequisitionID: id,
		To:            req.Status,
		ActorID:       req.ActorID,
		Note:          req.Note,
	})
	if err != nil {
		h.fail(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusOK, pr)
}

func (h *Handler) listTransitions(w http.ResponseWriter, r *http.Request) {
	status := RequisitionStatus(r.URL.Query().Get("status"))
	httpx.JSON(w, http.StatusOK, map[string]any{
		"status":      status,
		"label":       RequisitionTransitions.Label(status),
		"transitions": h.service.AvailableTransitions(status),
	})
}

func (h *Handler) listApprovals(w http.ResponseWriter, r *http.Request) {
	id, err := parseID(r)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	logs, err := h.service.ApprovalHistory(r.Context(), id)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	if logs == nil {
		logs = []shared.ApprovalLog{}
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"approvals": logs})
}

type assignmentRequest struct {
	UserID      int64              `json:"user_id"`
	ContextType shared.ContextKind `json:"context_type"`
	ContextID   int64              `json:"context_id"`
}

func (h *Handler) decodeAssignment(r *http.Request) (int64, shared.ContextRef, error) {
	var req assignmentRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		return 0, nil, fmt.Errorf("%w: %v", ErrValidation, err)
	}
	ref, err := shared.ParseContextRef(req.ContextType, req.ContextID)
	if err != nil {
		return 0, nil, fmt.Errorf("%w: %v", ErrValidation, err)
	}
	return req.UserID, ref, nil
}

type assignmentView struct {
	UserID      int64              `json:"user_id"`
	Role        string             `json:"role"`
	ContextType shared.ContextKind `json:"context_type"`
	ContextID   int64              `json:"context_id"`
}

func (h *Handler) listApprovers(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	id, err := strconv.ParseInt(q.Get("context_id"), 10, 64)
	if err != nil {
		httpx.RespondError(w, fmt.Errorf("%w: invalid context_id", httpx.ErrValidation))
		return
	}
	ref, err := shared.ParseContextRef(shared.ContextKind(q.Get("context_type")), id)
	if err != nil {
		h.fail(w, r, fmt.Errorf("%w: %v", ErrValidation, err))
		return
	}
	assignments, err := h.service.ListApprovers(r.Context(), ref)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	views := make([]assignmentView, 0, len(assignments))
	for _, a := range assignments {
		views = append(views, assignmentView{UserID: a.UserID, Role: a.Role, ContextType: a.Context.Kind(), ContextID: a.Context.RefID()})
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"assignments": views})
}

func (h *Handler) assignApprover(w http.ResponseWriter, r *http.Request) {
	userID, ref, err := h.decodeAssignment(r)
	if err == nil {
		err = h.service.AssignApprover(r.Context(), userID, ref)
	}
	if err != nil {
		h.fail(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) revokeApprover(w http.ResponseWriter, r *http.Request) {
	userID, ref, err := h.decodeAssignment(r)
	if err == nil {
		err = h.service.RevokeApprover(r.Context(), userID, ref)
	}
	if err != nil {
		h.fail(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func parseID(r *http.Request) (int64, error) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil || id <= 0 {
		return 0, fmt.Errorf("%w: invalid requisition id", ErrValidation)
	}
	return id, nil
}

func (h *Handler) fail(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, ErrValidation):
		httpx.RespondError(w, fmt.Errorf("%w: %s", httpx.ErrValidation, err.Error()))
	case errors.Is(err, ErrNotFound):
		httpx.RespondError(w, fmt.Errorf("%w: %s", httpx.ErrNotFound, err.Error()))
	case errors.Is(err, workflow.ErrIllegalTransition):
		httpx.RespondError(w, fmt.Errorf("%w: %s", httpx.ErrConflict, err.Error()))
	case errors.Is(err, shared.ErrForbidden):
		httpx.RespondError(w, fmt.Errorf("%w: %s", httpx.ErrForbidden, err.Error()))
	case errors.Is(err, shared.ErrAssignmentExists):
		httpx.RespondError(w, fmt.Errorf("%w: %s", httpx.ErrDuplicate, err.Error()))
	case errors.Is(err, ErrAssignmentsReadOnly):
		httpx.Problem(w, http.StatusNotImplemented, "Not Implemented", err.Error())
	default:
		h.logger.Error("procurement request failed", slog.String("path", r.URL.Path), slog.Any("error", err))
		httpx.RespondError(w, httpx.ErrInternal)
	}
}
