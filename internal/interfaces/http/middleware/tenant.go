package middleware

import (
	"net/http"
	"slices"

	"github.com/erp/settlement/internal/infrastructure/logger"
	"github.com/erp/settlement/internal/interfaces/http/dto"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// Tenant context keys and headers
const (
	TenantIDKey     = "tenant_id"
	TenantHeaderKey = "X-Tenant-ID"
	UserIDKey       = "user_id"
	UserHeaderKey   = "X-User-ID"
)

// DevelopmentTenantID is used when no tenant header is sent and no tenant is required
var DevelopmentTenantID = uuid.MustParse("00000000-0000-0000-0000-000000000001")

// TenantMiddlewareConfig holds configuration for tenant middleware
type TenantMiddlewareConfig struct {
	// SkipPaths are paths that don't require tenant context (e.g., health check)
	SkipPaths []string
	// Required rejects requests without X-Tenant-ID instead of using DefaultTenantID
	Required bool
	// DefaultTenantID is used when the header is absent and Required is false
	DefaultTenantID uuid.UUID
	// Logger for middleware logging
	Logger *zap.Logger
}

// DefaultTenantConfig returns default tenant middleware configuration
func DefaultTenantConfig() TenantMiddlewareConfig {
	return TenantMiddlewareConfig{
		SkipPaths:       []string{"/health", "/api/v1/health"},
		Required:        false,
		DefaultTenantID: DevelopmentTenantID,
	}
}

// TenantMiddleware extracts the tenant from X-Tenant-ID
func TenantMiddleware() gin.HandlerFunc {
	return TenantMiddlewareWithConfig(DefaultTenantConfig())
}

// TenantMiddlewareWithConfig returns tenant middleware with custom configuration.
// The tenant lands in the gin context under TenantIDKey and in the request
// context's logger fields. An optional X-User-ID is stored under UserIDKey.
func TenantMiddlewareWithConfig(cfg TenantMiddlewareConfig) gin.HandlerFunc {
	return func(c *gin.Context) {
		if slices.Contains(cfg.SkipPaths, c.Request.URL.Path) {
			c.Next()
			return
		}

		tenantID := cfg.DefaultTenantID
		if raw := c.GetHeader(TenantHeaderKey); raw != "" {
			parsed, err := uuid.Parse(raw)
			if err != nil || parsed == uuid.Nil {
				abortTenant(c, cfg, dto.ErrCodeInvalidTenant, "X-Tenant-ID must be a UUID")
				return
			}
			tenantID = parsed
		} else if cfg.Required || tenantID == uuid.Nil {
			abortTenant(c, cfg, dto.ErrCodeInvalidTenant, "X-Tenant-ID header is required")
			return
		}

		if raw := c.GetHeader(UserHeaderKey); raw != "" {
			userID, err := uuid.Parse(raw)
			if err != nil {
				abortTenant(c, cfg, dto.ErrCodeInvalidInput, "X-User-ID must be a UUID")
				return
			}
			c.Set(UserIDKey, userID)
		}

		c.Set(TenantIDKey, tenantID)
		c.Request = c.Request.WithContext(logger.WithTenantID(c.Request.Context(), tenantID.String()))
		c.Next()
	}
}

func abortTenant(c *gin.Context, cfg TenantMiddlewareConfig, code, message string) {
	if cfg.Logger != nil {
		cfg.Logger.Warn("Tenant extraction failed",
			zap.String("path", c.Request.URL.Path),
			zap.String("reason", message),
		)
	}
	c.AbortWithStatusJSON(http.StatusBadRequest, dto.NewErrorResponseWithRequestID(code, message, GetRequestID(c)))
}

// GetTenantID returns the tenant set by TenantMiddleware
func GetTenantID(c *gin.Context) (uuid.UUID, bool) {
	v, ok := c.Get(TenantIDKey)
	if !ok {
		return uuid.Nil, false
	}
	id, ok := v.(uuid.UUID)
	return id, ok
}

// GetUserID returns the acting user set by TenantMiddleware, if any
func GetUserID(c *gin.Context) *uuid.UUID {
	v, ok := c.Get(UserIDKey)
	if !ok {
		return nil
	}
	id, ok := v.(uuid.UUID)
	if !ok {
		return nil
	}
	return &id
}
