package handler

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/erp/settlement/internal/domain/settlement"
	"github.com/erp/settlement/internal/domain/shared"
	"github.com/erp/settlement/internal/interfaces/http/dto"
	"github.com/erp/settlement/internal/interfaces/http/middleware"
	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBaseHandler_HandleError(t *testing.T) {
	tests := []struct {
		name         string
		err          error
		expectedCode string
		status       int
	}{
		{"not found", shared.ErrNotFound, dto.ErrCodeNotFound, http.StatusNotFound},
		{"wrapped invalid input", fmt.Errorf("%w: bad scope", shared.ErrInvalidInput), dto.ErrCodeInvalidInput, http.StatusBadRequest},
		{"unbalanced", settlement.ErrUnbalanced, dto.ErrCodeUnbalancedSettlement, http.StatusUnprocessableEntity},
		{"locked", settlement.ErrSettlementLocked, dto.ErrCodeSettlementLocked, http.StatusConflict},
		{"invariant", shared.NewDomainError("INVARIANT_VIOLATION", "broken"), dto.ErrCodeInternal, http.StatusInternalServerError},
		{"concurrency", shared.ErrConcurrencyConflict, dto.ErrCodeConcurrencyConflict, http.StatusConflict},
		{"plain error", errors.New("boom"), dto.ErrCodeInternal, http.StatusInternalServerError},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := httptest.NewRecorder()
			c, _ := gin.CreateTestContext(w)
			c.Request = httptest.NewRequest(http.MethodGet, "/", nil)
			c.Set(middleware.RequestIDKey, "req-42")

			h := &BaseHandler{}
			h.HandleError(c, tt.err)

			assert.Equal(t, tt.status, w.Code)
			var resp dto.Response
			require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
			require.NotNil(t, resp.Error)
			assert.Equal(t, tt.expectedCode, resp.Error.Code)
			assert.Equal(t, "req-42", resp.Error.RequestID)
		})
	}

	t.Run("wrapped message is kept", func(t *testing.T) {
		w := httptest.NewRecorder()
		c, _ := gin.CreateTestContext(w)
		c.Request = httptest.NewRequest(http.MethodGet, "/", nil)

		(&BaseHandler{}).HandleError(c, fmt.Errorf("%w: unknown allocation strategy %q", shared.ErrInvalidInput, "lifo"))
		assert.Contains(t, w.Body.String(), "lifo")
	})

	t.Run("nil error writes nothing", func(t *testing.T) {
		w := httptest.NewRecorder()
		c, _ := gin.CreateTestContext(w)
		c.Request = httptest.NewRequest(http.MethodGet, "/", nil)

		(&BaseHandler{}).HandleError(c, nil)
		assert.Empty(t, w.Body.String())
	})
}

func TestGetTenantID_DefaultsWithoutMiddleware(t *testing.T) {
	c, _ := gin.CreateTestContext(httptest.NewRecorder())
	assert.Equal(t, middleware.DevelopmentTenantID, getTenantID(c))
}

func TestHealthHandler(t *testing.T) {
	route := func(checks map[string]Pinger) *httptest.ResponseRecorder {
		engine := gin.New()
		engine.GET("/health", NewHealthHandler("settlement", "test", checks).Health)
		w := httptest.NewRecorder()
		engine.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/health", nil))
		return w
	}

	t.Run("healthy", func(t *testing.T) {
		w := route(map[string]Pinger{
			"database": PingerFunc(func(context.Context) error { return nil }),
		})
		assert.Equal(t, http.StatusOK, w.Code)
		assert.Contains(t, w.Body.String(), `"database":"ok"`)
	})

	t.Run("unhealthy dependency", func(t *testing.T) {
		w := route(map[string]Pinger{
			"database": PingerFunc(func(context.Context) error { return nil }),
			"redis":    PingerFunc(func(context.Context) error { return errors.New("connection refused") }),
		})
		assert.Equal(t, http.StatusServiceUnavailable, w.Code)
		assert.Contains(t, w.Body.String(), "connection refused")
		assert.Contains(t, w.Body.String(), `"status":"unhealthy"`)
	})
}
