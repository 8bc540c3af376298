package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/erp/settlement/internal/application/openitem"
	settlementapp "github.com/erp/settlement/internal/application/settlement"
	"github.com/erp/settlement/internal/domain/settlement"
	"github.com/erp/settlement/internal/domain/shared"
	"github.com/erp/settlement/internal/infrastructure/cache"
	"github.com/erp/settlement/internal/infrastructure/strategy"
	"github.com/erp/settlement/internal/interfaces/http/dto"
	"github.com/erp/settlement/internal/interfaces/http/middleware"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

func init() {
	gin.SetMode(gin.TestMode)
}

var (
	testTenantID   = uuid.MustParse("00000000-0000-0000-0000-000000000002")
	testCustomerID = uuid.MustParse("11111111-1111-1111-1111-111111111111")
)

// MockOpenItemRepository is a mock implementation of settlement.OpenItemRepository
type MockOpenItemRepository struct {
	mock.Mock
}

func (m *MockOpenItemRepository) FindOpenItems(ctx context.Context, tenantID uuid.UUID, ledger settlement.Ledger, counterpartyID uuid.UUID) ([]settlement.OpenItem, error) {
	args := m.Called(ctx, tenantID, ledger, counterpartyID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]settlement.OpenItem), args.Error(1)
}

func (m *MockOpenItemRepository) Upsert(ctx context.Context, items []*settlement.OpenItem) error {
	args := m.Called(ctx, items)
	return args.Error(0)
}

// MockSettlementRepository is a mock implementation of settlement.SettlementRepository
type MockSettlementRepository struct {
	mock.Mock
}

func (m *MockSettlementRepository) Save(ctx context.Context, record *settlement.SettlementRecord) error {
	args := m.Called(ctx, record)
	return args.Error(0)
}

func (m *MockSettlementRepository) UpdateMethodFlags(ctx context.Context, record *settlement.SettlementRecord) error {
	args := m.Called(ctx, record)
	return args.Error(0)
}

func (m *MockSettlementRepository) FindByIDForTenant(ctx context.Context, tenantID, id uuid.UUID) (*settlement.SettlementRecord, error) {
	args := m.Called(ctx, tenantID, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*settlement.SettlementRecord), args.Error(1)
}

func openInvoice(no string, day int, balance string) settlement.OpenItem {
	return settlement.OpenItem{
		TenantAggregateRoot: shared.NewTenantAggregateRoot(testTenantID),
		Ledger:              settlement.LedgerReceivable,
		CounterpartyID:      testCustomerID,
		Kind:                settlement.DocumentKindInvoice,
		DocumentNo:          no,
		DocumentDate:        time.Date(2024, time.January, day, 0, 0, 0, 0, time.UTC),
		Amount:              decimal.RequireFromString(balance),
		Balance:             decimal.RequireFromString(balance),
		DiscountAmount:      decimal.Zero,
	}
}

type apiFixture struct {
	engine   *gin.Engine
	items    *MockOpenItemRepository
	records  *MockSettlementRepository
	sessions *cache.InMemoryDraftStore
}

func newAPIFixture(t *testing.T) *apiFixture {
	t.Helper()
	middleware.SetupValidator()

	registry, err := strategy.NewRegistryWithDefaults("")
	require.NoError(t, err)

	f := &apiFixture{
		items:    new(MockOpenItemRepository),
		records:  new(MockSettlementRepository),
		sessions: cache.NewInMemoryDraftStore(),
	}
	f.items.On("FindOpenItems", mock.Anything, testTenantID, settlement.LedgerReceivable, testCustomerID).
		Return([]settlement.OpenItem{
			openInvoice("INV-001", 1, "100.00"),
			openInvoice("INV-002", 2, "80.00"),
		}, nil).Maybe()

	svc := settlementapp.NewService(f.items, f.records, f.sessions, registry)
	settlements := NewSettlementHandler(svc)
	openItems := NewOpenItemHandler(openitem.NewImportService(f.items))
	strategies := NewStrategyHandler(svc)

	engine := gin.New()
	engine.Use(middleware.RequestID(), middleware.TenantMiddleware())
	api := engine.Group("/api/v1")
	api.GET("/strategies/allocation", strategies.ListAllocation)
	api.GET("/open-items", openItems.List)
	api.POST("/open-items/import", openItems.Import)
	api.POST("/settlements/sessions", settlements.OpenSession)
	api.GET("/settlements/sessions/:sid", settlements.GetSession)
	api.DELETE("/settlements/sessions/:sid", settlements.DiscardSession)
	api.PUT("/settlements/sessions/:sid/counterparty", settlements.ChangeCounterparty)
	api.PUT("/settlements/sessions/:sid/methods", settlements.SetMethods)
	api.PATCH("/settlements/sessions/:sid/methods/:index/post-dated", settlements.SetPostDated)
	api.PUT("/settlements/sessions/:sid/documents/:doc/selection", settlements.SetSelection)
	api.PUT("/settlements/sessions/:sid/documents/:doc/applied-amount", settlements.SetAppliedAmount)
	api.PUT("/settlements/sessions/:sid/documents/:doc/discount", settlements.SetDiscount)
	api.POST("/settlements/sessions/:sid/auto-allocate", settlements.AutoAllocate)
	api.POST("/settlements/sessions/:sid/sort", settlements.SortDocuments)
	api.POST("/settlements/sessions/:sid/save", settlements.SaveSession)
	api.GET("/settlements/:id", settlements.GetSettlement)
	api.POST("/settlements/:id/reopen", settlements.ReopenSettlement)
	f.engine = engine
	return f
}

func (f *apiFixture) do(t *testing.T, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set(middleware.TenantHeaderKey, testTenantID.String())
	w := httptest.NewRecorder()
	f.engine.ServeHTTP(w, req)
	return w
}

type sessionEnvelope struct {
	Success bool                      `json:"success"`
	Data    settlementapp.SessionView `json:"data"`
	Error   *dto.ErrorInfo            `json:"error"`
}

func decodeSession(t *testing.T, w *httptest.ResponseRecorder) settlementapp.SessionView {
	t.Helper()
	var env sessionEnvelope
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &env), w.Body.String())
	require.True(t, env.Success, w.Body.String())
	return env.Data
}

func decodeError(t *testing.T, w *httptest.ResponseRecorder) *dto.ErrorInfo {
	t.Helper()
	var env dto.Response
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &env), w.Body.String())
	require.False(t, env.Success)
	require.NotNil(t, env.Error)
	return env.Error
}

func (f *apiFixture) openReceipt(t *testing.T) settlementapp.SessionView {
	t.Helper()
	w := f.do(t, http.MethodPost, "/api/v1/settlements/sessions", gin.H{
		"type":            "receipt",
		"counterparty_id": testCustomerID,
		"settlement_date": "2024-01-31T00:00:00Z",
		"methods":         []gin.H{{"method": "CASH", "amount": "150.00"}},
	})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	return decodeSession(t, w)
}

func sessionPath(id uuid.UUID, suffix string) string {
	return "/api/v1/settlements/sessions/" + id.String() + suffix
}

func docByNo(view settlementapp.SessionView, no string) settlementapp.DocumentView {
	for _, d := range view.Documents {
		if d.DocumentNo == no {
			return d
		}
	}
	return settlementapp.DocumentView{}
}

func TestSettlementHandler_ReceiptFlow(t *testing.T) {
	f := newAPIFixture(t)

	view := f.openReceipt(t)
	assert.Equal(t, "NEW", view.Mode)
	assert.Equal(t, "RECEIVABLE", view.Ledger)
	assert.True(t, view.Total.Equal(decimal.NewFromInt(150)))
	require.Len(t, view.Documents, 2)

	// Typing more than the outstanding balance is clamped and reported
	w := f.do(t, http.MethodPut, sessionPath(view.ID, "/documents/INV-001/applied-amount"), gin.H{"amount": "500"})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	view = decodeSession(t, w)
	require.NotNil(t, view.Adjustment)
	assert.Equal(t, "CAPPED_AT_OUTSTANDING", view.Adjustment.Reason)
	assert.True(t, docByNo(view, "INV-001").AppliedAmount.Equal(decimal.NewFromInt(100)))
	assert.True(t, view.Remaining.Equal(decimal.NewFromInt(50)))

	// A receipt with money left over needs the remainder accepted
	w = f.do(t, http.MethodPost, sessionPath(view.ID, "/save"), gin.H{})
	assert.Equal(t, http.StatusUnprocessableEntity, w.Code)
	assert.Equal(t, dto.ErrCodeUnbalancedSettlement, decodeError(t, w).Code)

	w = f.do(t, http.MethodPost, sessionPath(view.ID, "/auto-allocate"), nil)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	view = decodeSession(t, w)
	assert.True(t, view.Remaining.IsZero())
	assert.True(t, view.Balanced)
	assert.True(t, docByNo(view, "INV-002").AppliedAmount.Equal(decimal.NewFromInt(50)))

	f.records.On("Save", mock.Anything, mock.MatchedBy(func(r *settlement.SettlementRecord) bool {
		return r.TenantID == testTenantID && len(r.Lines) == 2
	})).Return(nil).Once()

	w = f.do(t, http.MethodPost, sessionPath(view.ID, "/save"), gin.H{"remark": "January receipts"})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	assert.Contains(t, w.Body.String(), "January receipts")
	f.records.AssertExpectations(t)

	// The session ends with the save
	w = f.do(t, http.MethodGet, sessionPath(view.ID, ""), nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestSettlementHandler_SessionEdits(t *testing.T) {
	f := newAPIFixture(t)
	view := f.openReceipt(t)

	t.Run("selection fills a row", func(t *testing.T) {
		w := f.do(t, http.MethodPut, sessionPath(view.ID, "/documents/INV-002/selection"), gin.H{"selected": true})
		require.Equal(t, http.StatusOK, w.Code, w.Body.String())
		got := decodeSession(t, w)
		assert.True(t, docByNo(got, "INV-002").Selected)
		assert.True(t, docByNo(got, "INV-002").AppliedAmount.Equal(decimal.NewFromInt(80)))
	})

	t.Run("sort by amount descending", func(t *testing.T) {
		w := f.do(t, http.MethodPost, sessionPath(view.ID, "/sort"), gin.H{"key": "amount", "direction": "desc"})
		require.Equal(t, http.StatusOK, w.Code, w.Body.String())
		got := decodeSession(t, w)
		assert.Equal(t, "INV-001", got.Documents[0].DocumentNo)
	})

	t.Run("methods are replaced", func(t *testing.T) {
		w := f.do(t, http.MethodPut, sessionPath(view.ID, "/methods"), gin.H{
			"methods": []gin.H{
				{"method": "CHEQUE", "reference": "CHQ-9", "amount": "1,000.00", "deduction": "5"},
			},
		})
		require.Equal(t, http.StatusOK, w.Code, w.Body.String())
		got := decodeSession(t, w)
		require.Len(t, got.Methods, 1)
		assert.True(t, got.Total.Equal(decimal.NewFromInt(995)))
	})

	t.Run("post-dated flag", func(t *testing.T) {
		w := f.do(t, http.MethodPatch, sessionPath(view.ID, "/methods/0/post-dated"), gin.H{
			"post_dated":  true,
			"cheque_date": "2024-02-15T00:00:00Z",
		})
		require.Equal(t, http.StatusOK, w.Code, w.Body.String())
		assert.True(t, decodeSession(t, w).Methods[0].PostDated)
	})

	t.Run("invalid method is a validation error", func(t *testing.T) {
		w := f.do(t, http.MethodPut, sessionPath(view.ID, "/methods"), gin.H{
			"methods": []gin.H{{"method": "BARTER", "amount": "-3"}},
		})
		assert.Equal(t, http.StatusBadRequest, w.Code)
		assert.Equal(t, dto.ErrCodeValidation, decodeError(t, w).Code)
	})

	t.Run("unknown document", func(t *testing.T) {
		w := f.do(t, http.MethodPut, sessionPath(view.ID, "/documents/INV-999/applied-amount"), gin.H{"amount": "1"})
		assert.Equal(t, http.StatusNotFound, w.Code)
		assert.Equal(t, dto.ErrCodeDocumentNotFound, decodeError(t, w).Code)
	})

	t.Run("exponent amount counts as zero", func(t *testing.T) {
		w := f.do(t, http.MethodPut, sessionPath(view.ID, "/documents/INV-001/applied-amount"), gin.H{"amount": "1e20000000"})
		require.Equal(t, http.StatusOK, w.Code, w.Body.String())
		assert.True(t, docByNo(decodeSession(t, w), "INV-001").AppliedAmount.IsZero())
	})

	t.Run("overlong amount is a validation error", func(t *testing.T) {
		w := f.do(t, http.MethodPut, sessionPath(view.ID, "/documents/INV-001/applied-amount"), gin.H{"amount": strings.Repeat("9", 65)})
		assert.Equal(t, http.StatusBadRequest, w.Code)
		assert.Equal(t, dto.ErrCodeValidation, decodeError(t, w).Code)
	})

	t.Run("exponent discount is a validation error", func(t *testing.T) {
		w := f.do(t, http.MethodPut, sessionPath(view.ID, "/documents/INV-001/discount"), gin.H{"with_discount": true, "amount": "1e9"})
		assert.Equal(t, http.StatusBadRequest, w.Code)
	})

	t.Run("unknown strategy", func(t *testing.T) {
		w := f.do(t, http.MethodPost, sessionPath(view.ID, "/auto-allocate"), gin.H{"strategy": "lifo"})
		assert.Equal(t, http.StatusBadRequest, w.Code)
		assert.Equal(t, dto.ErrCodeInvalidInput, decodeError(t, w).Code)
	})

	t.Run("bad scope", func(t *testing.T) {
		w := f.do(t, http.MethodPost, sessionPath(view.ID, "/auto-allocate"), gin.H{"scope": "SOME"})
		assert.Equal(t, http.StatusBadRequest, w.Code)
	})

	t.Run("discard", func(t *testing.T) {
		w := f.do(t, http.MethodDelete, sessionPath(view.ID, ""), nil)
		assert.Equal(t, http.StatusNoContent, w.Code)

		w = f.do(t, http.MethodDelete, sessionPath(view.ID, ""), nil)
		assert.Equal(t, http.StatusNotFound, w.Code)
	})
}

func TestSettlementHandler_OpenSessionErrors(t *testing.T) {
	f := newAPIFixture(t)

	t.Run("unsupported type", func(t *testing.T) {
		w := f.do(t, http.MethodPost, "/api/v1/settlements/sessions", gin.H{"type": "barter"})
		assert.Equal(t, http.StatusBadRequest, w.Code)
		assert.Equal(t, "ERR_INVALID_SETTLEMENT_TYPE", decodeError(t, w).Code)
	})

	t.Run("missing type", func(t *testing.T) {
		w := f.do(t, http.MethodPost, "/api/v1/settlements/sessions", gin.H{})
		assert.Equal(t, http.StatusBadRequest, w.Code)
		assert.Equal(t, dto.ErrCodeValidation, decodeError(t, w).Code)
	})

	t.Run("no counterparty then change", func(t *testing.T) {
		w := f.do(t, http.MethodPost, "/api/v1/settlements/sessions", gin.H{"type": "RECEIPT"})
		require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
		view := decodeSession(t, w)
		assert.Empty(t, view.Documents)
		assert.False(t, view.CanSave)

		w = f.do(t, http.MethodPut, sessionPath(view.ID, "/counterparty"), gin.H{"counterparty_id": testCustomerID})
		require.Equal(t, http.StatusOK, w.Code, w.Body.String())
		assert.Len(t, decodeSession(t, w).Documents, 2)
	})

	t.Run("malformed session id", func(t *testing.T) {
		w := f.do(t, http.MethodGet, "/api/v1/settlements/sessions/not-a-uuid", nil)
		assert.Equal(t, http.StatusBadRequest, w.Code)
	})

	t.Run("unknown session", func(t *testing.T) {
		w := f.do(t, http.MethodGet, sessionPath(uuid.New(), ""), nil)
		assert.Equal(t, http.StatusNotFound, w.Code)
		assert.Equal(t, dto.ErrCodeNotFound, decodeError(t, w).Code)
	})
}

func TestSettlementHandler_SavedSettlements(t *testing.T) {
	f := newAPIFixture(t)

	t.Run("not found", func(t *testing.T) {
		id := uuid.New()
		f.records.On("FindByIDForTenant", mock.Anything, testTenantID, id).Return(nil, shared.ErrNotFound).Once()

		w := f.do(t, http.MethodGet, "/api/v1/settlements/"+id.String(), nil)
		assert.Equal(t, http.StatusNotFound, w.Code)
	})

	t.Run("invalid reopen mode", func(t *testing.T) {
		w := f.do(t, http.MethodPost, "/api/v1/settlements/"+uuid.NewString()+"/reopen", gin.H{"mode": "NEW"})
		assert.Equal(t, http.StatusBadRequest, w.Code)
		assert.Equal(t, dto.ErrCodeValidation, decodeError(t, w).Code)
	})
}

func TestStrategyHandler_ListAllocation(t *testing.T) {
	f := newAPIFixture(t)

	w := f.do(t, http.MethodGet, "/api/v1/strategies/allocation", nil)
	require.Equal(t, http.StatusOK, w.Code)

	var env struct {
		Data []settlementapp.StrategyResponse `json:"data"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &env))
	names := map[string]bool{}
	for _, s := range env.Data {
		names[s.Name] = s.IsDefault
	}
	assert.Contains(t, names, "fifo")
	assert.Contains(t, names, "early_discount")
	assert.True(t, names[settlement.SequentialFillStrategyName])
}

func TestOpenItemHandler(t *testing.T) {
	f := newAPIFixture(t)

	t.Run("list", func(t *testing.T) {
		w := f.do(t, http.MethodGet, "/api/v1/open-items?ledger=receivable&counterparty_id="+testCustomerID.String(), nil)
		require.Equal(t, http.StatusOK, w.Code, w.Body.String())
		assert.Contains(t, w.Body.String(), "INV-001")
	})

	t.Run("list requires counterparty", func(t *testing.T) {
		w := f.do(t, http.MethodGet, "/api/v1/open-items?ledger=receivable", nil)
		assert.Equal(t, http.StatusBadRequest, w.Code)
	})

	t.Run("import", func(t *testing.T) {
		f.items.On("Upsert", mock.Anything, mock.Anything).Return(nil).Once()

		var body bytes.Buffer
		mw := multipart.NewWriter(&body)
		part, err := mw.CreateFormFile("file", "items.csv")
		require.NoError(t, err)
		_, err = part.Write([]byte("ledger,counterparty_id,kind,document_no,document_date,amount\n" +
			"RECEIVABLE," + testCustomerID.String() + ",INVOICE,INV-010,2024-01-10,250\n"))
		require.NoError(t, err)
		require.NoError(t, mw.Close())

		req := httptest.NewRequest(http.MethodPost, "/api/v1/open-items/import", &body)
		req.Header.Set("Content-Type", mw.FormDataContentType())
		req.Header.Set(middleware.TenantHeaderKey, testTenantID.String())
		w := httptest.NewRecorder()
		f.engine.ServeHTTP(w, req)

		require.Equal(t, http.StatusOK, w.Code, w.Body.String())
		assert.Contains(t, w.Body.String(), `"imported_rows":1`)
	})

	t.Run("import without file", func(t *testing.T) {
		w := f.do(t, http.MethodPost, "/api/v1/open-items/import", nil)
		assert.Equal(t, http.StatusBadRequest, w.Code)
	})
}
