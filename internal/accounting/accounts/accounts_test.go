package accounts

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
)

func ptr(v int64) *int64 { return &v }

func fixture() *MemoryRepository {
	return NewMemoryRepository([]Account{
		{ID: 1, OrganizationID: 1, Code: "1", Name: "Assets", Type: AccountTypeDebit},
		{ID: 2, OrganizationID: 1, Code: "1.2", Name: "Receivables", Type: AccountTypeDebit, ParentID: ptr(1), AmountMinor: 2500},
		{ID: 3, OrganizationID: 1, Code: "1.1", Name: "Cash", Type: AccountTypeDebit, ParentID: ptr(1), AmountMinor: 100000},
		{ID: 4, OrganizationID: 1, Code: "2", Name: "Liabilities", Type: AccountTypeCredit},
		{ID: 5, OrganizationID: 2, Code: "1", Name: "Other org", Type: AccountTypeDebit},
	}...)
}

func TestAmountPresentsMajorUnits(t *testing.T) {
	a := Account{AmountMinor: 100000}
	require.True(t, a.Amount().Equal(decimal.NewFromInt(1000)))
	require.Equal(t, "-0.05", Account{AmountMinor: -5}.Amount().StringFixed(2))
}

func TestMarshalHidesMinorUnits(t *testing.T) {
	raw, err := json.Marshal(Account{ID: 3, Code: "1.1", Type: AccountTypeDebit, AmountMinor: 123456})
	require.NoError(t, err)
	require.Contains(t, string(raw), `"amount":"1234.56"`)
	require.NotContains(t, string(raw), "123456")
}

func TestBuildTreeNestsByParentAndCode(t *testing.T) {
	repo := fixture()
	tree := BuildTree(repo.accounts[:4])
	require.Len(t, tree, 2)
	require.Equal(t, "1", tree[0].Code)
	require.Equal(t, "2", tree[1].Code)
	require.Len(t, tree[0].Children, 2)
	require.Equal(t, "1.1", tree[0].Children[0].Code)
	require.Equal(t, "1.2", tree[0].Children[1].Code)
	require.Empty(t, tree[1].Children)
}

func TestBuildTreeOrphansBecomeRootsAndCyclesAreDropped(t *testing.T) {
	tree := BuildTree([]Account{
		{ID: 1, Code: "9", ParentID: ptr(42)},
		{ID: 2, Code: "7", ParentID: ptr(3)},
		{ID: 3, Code: "8", ParentID: ptr(2)},
	})
	require.Len(t, tree, 1)
	require.Equal(t, int64(1), tree[0].ID)
}

func TestServiceTreeScopesOrganization(t *testing.T) {
	svc := NewService(fixture())
	tree, err := svc.Tree(context.Background(), 2)
	require.NoError(t, err)
	require.Len(t, tree, 1)
	require.Equal(t, "Other org", tree[0].Name)

	_, err = svc.Get(context.Background(), 2, 3)
	require.ErrorIs(t, err, ErrNotFound)
}

func TestServiceCreateStoresMinorUnits(t *testing.T) {
	repo := fixture()
	svc := NewService(repo)
	now := time.Date(2026, 2, 1, 10, 0, 0, 0, time.UTC)
	svc.WithNow(func() time.Time { return now })

	created, err := svc.Create(context.Background(), CreateInput{
		OrganizationID: 1,
		Code:           " 1.3 ",
		Name:           "Inventory",
		Type:           AccountTypeDebit,
		Amount:         decimal.RequireFromString("10.005"),
		ParentID:       ptr(1),
	})
	require.NoError(t, err)
	require.Equal(t, "1.3", created.Code)
	require.Equal(t, int64(1001), created.AmountMinor)
	require.Equal(t, now, created.CreatedAt)
}

func TestServiceCreateRejects(t *testing.T) {
	svc := NewService(fixture())
	ctx := context.Background()

	_, err := svc.Create(ctx, CreateInput{OrganizationID: 1, Code: "3", Name: "Equity", Type: "X"})
	require.ErrorIs(t, err, ErrInvalidAccount)

	_, err = svc.Create(ctx, CreateInput{OrganizationID: 1, Code: "3", Name: "Equity", Type: AccountTypeCredit, ParentID: ptr(5)})
	require.ErrorIs(t, err, ErrParentNotFound)

	_, err = svc.Create(ctx, CreateInput{OrganizationID: 1, Code: "2", Name: "Dup", Type: AccountTypeCredit})
	require.ErrorIs(t, err, ErrDuplicateCode)
}

func newServer() http.Handler {
	r := chi.NewRouter()
	NewHandler(slog.New(slog.NewTextHandler(io.Discard, nil)), NewService(fixture())).MountRoutes(r)
	return r
}

func TestHandlerTree(t *testing.T) {
	rec := httptest.NewRecorder()
	newServer().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/tree?organization_id=1", nil))
	require.Equal(t, http.StatusOK, rec.Code)

	var body struct {
		Accounts []struct {
			Code     string `json:"code"`
			Amount   string `json:"amount"`
			Children []struct {
				Code   string `json:"code"`
				Amount string `json:"amount"`
			} `json:"children"`
		} `json:"accounts"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	require.Len(t, body.Accounts, 2)
	require.Equal(t, "1000.00", body.Accounts[0].Children[0].Amount)
}

func TestHandlerErrors(t *testing.T) {
	srv := newServer()

	rec := httptest.NewRecorder()
	srv.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
	require.Equal(t, http.StatusBadRequest, rec.Code)

	rec = httptest.NewRecorder()
	srv.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/99?organization_id=1", nil))
	require.Equal(t, http.StatusNotFound, rec.Code)

	rec = httptest.NewRecorder()
	body := strings.NewReader(`{"organization_id":1,"code":"2","name":"Dup","type":"C","amount":"0"}`)
	srv.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/", body))
	require.Equal(t, http.StatusConflict, rec.Code)
}
