package accounting

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/require"

	"github.com/odyssey-erp/odyssey-ledger/internal/accounting/ledger"
	"github.com/odyssey-erp/odyssey-ledger/internal/platform/httpx"
)

func newLedgerServer(t *testing.T) (http.Handler, *MemoryRepository) {
	t.Helper()
	repo := NewMemoryRepository()
	svc, _ := newTestService(t, repo, ServiceConfig{Idempotency: newIdempotencyStub()})
	r := chi.NewRouter()
	NewHandler(slog.New(slog.NewTextHandler(io.Discard, nil)), svc).MountRoutes(r)
	return r, repo
}

func do(h http.Handler, method, target, body string, headers ...string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, target, strings.NewReader(body))
	for i := 0; i+1 < len(headers); i += 2 {
		req.Header.Set(headers[i], headers[i+1])
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

const entryBody = `{"chart_account_id":10,"organization_id":1,"posting_date":"%s","voucher_type":"Journal Entry","currency":"BRL","debit":"%s","credit":"0"}`

func entryJSON(date, debit string) string {
	return strings.Replace(strings.Replace(entryBody, "%s", date, 1), "%s", debit, 1)
}

func TestHandlerRecordAndBuild(t *testing.T) {
	srv, _ := newLedgerServer(t)

	rec := do(srv, http.MethodPost, "/entries", entryJSON("2026-01-15", "1000"))
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	rec = do(srv, http.MethodPost, "/entries", entryJSON("2026-02-01", "500"))
	require.Equal(t, http.StatusCreated, rec.Code)

	rec = do(srv, http.MethodGet, "/?start_date=2026-02-01&end_date=2026-02-28&chart_account_id=10&organization_id=1&opening=true", "")
	require.Equal(t, http.StatusOK, rec.Code)

	var body struct {
		Rows []struct {
			Kind    ledger.RowKind `json:"kind"`
			Balance string         `json:"balance"`
		} `json:"rows"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	require.Len(t, body.Rows, 5)
	require.Equal(t, ledger.RowPreviousBalance, body.Rows[1].Kind)
	require.Equal(t, ledger.RowEntry, body.Rows[2].Kind)
	require.Equal(t, "1500", body.Rows[2].Balance)
}

func TestHandlerIdempotencyKeyConflict(t *testing.T) {
	srv, _ := newLedgerServer(t)
	rec := do(srv, http.MethodPost, "/entries", entryJSON("2026-02-01", "5"), "Idempotency-Key", "abc")
	require.Equal(t, http.StatusCreated, rec.Code)
	rec = do(srv, http.MethodPost, "/entries", entryJSON("2026-02-01", "5"), "Idempotency-Key", "abc")
	require.Equal(t, http.StatusConflict, rec.Code)
}

func TestHandlerStatusChange(t *testing.T) {
	srv, repo := newLedgerServer(t)
	rec := do(srv, http.MethodPost, "/entries", entryJSON("2026-02-01", "5"))
	require.Equal(t, http.StatusCreated, rec.Code)

	rec = do(srv, http.MethodPost, "/entries/1/status", `{"status":"cancelled","reason":"typo"}`)
	require.Equal(t, http.StatusOK, rec.Code)
	stored, _ := repo.Entry(1)
	require.Equal(t, ledger.StatusCancelled, stored.Status)

	rec = do(srv, http.MethodPost, "/entries/1/status", `{"status":"active"}`)
	require.Equal(t, http.StatusConflict, rec.Code)

	rec = do(srv, http.MethodPost, "/entries/9/status", `{"status":"cancelled"}`)
	require.Equal(t, http.StatusNotFound, rec.Code)

	rec = do(srv, http.MethodPost, "/entries/x/status", `{"status":"cancelled"}`)
	require.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestHandlerTransitions(t *testing.T) {
	srv, _ := newLedgerServer(t)
	rec := do(srv, http.MethodGet, "/entries/transitions?status=active", "")
	require.Equal(t, http.StatusOK, rec.Code)
	require.Contains(t, rec.Body.String(), `"value":"cancelled"`)
}

func TestHandlerRecalculateAndIntegrity(t *testing.T) {
	srv, _ := newLedgerServer(t)
	rec := do(srv, http.MethodPost, "/entries", entryJSON("2026-02-01", "5"))
	require.Equal(t, http.StatusCreated, rec.Code)

	rec = do(srv, http.MethodPost, "/recalculate", `{"chart_account_id":10,"organization_id":1}`)
	require.Equal(t, http.StatusOK, rec.Code)
	require.Contains(t, rec.Body.String(), `"updated":0`)

	rec = do(srv, http.MethodGet, "/integrity?chart_account_id=10&organization_id=1", "")
	require.Equal(t, http.StatusOK, rec.Code)
	require.Contains(t, rec.Body.String(), `"mismatches":[]`)

	rec = do(srv, http.MethodGet, "/integrity?chart_account_id=10", "")
	require.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestHandlerRejectsBadInput(t *testing.T) {
	srv, _ := newLedgerServer(t)

	rec := do(srv, http.MethodGet, "/?start_date=2026-02-28&end_date=2026-02-01", "")
	require.Equal(t, http.StatusBadRequest, rec.Code)

	rec = do(srv, http.MethodGet, "/?start_date=yesterday&end_date=2026-02-01", "")
	require.Equal(t, http.StatusBadRequest, rec.Code)

	rec = do(srv, http.MethodPost, "/entries", entryJSON("2026/02/01", "5"))
	require.Equal(t, http.StatusBadRequest, rec.Code)

	rec = do(srv, http.MethodPost, "/entries", `{"chart_account_id":10}`)
	require.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestClassifyTimeoutIsUnavailable(t *testing.T) {
	err := classify(fmt.Errorf("fetch ordered: %w", context.DeadlineExceeded))
	require.ErrorIs(t, err, httpx.ErrUnavailable)

	rec := httptest.NewRecorder()
	httpx.RespondError(rec, err)
	require.Equal(t, http.StatusServiceUnavailable, rec.Code)
}
