package router

import (
	"github.com/erp/settlement/internal/interfaces/http/handler"
)

// Handlers are the HTTP handlers served by the settlement API
type Handlers struct {
	Settlement *handler.SettlementHandler
	OpenItem   *handler.OpenItemHandler
	Strategy   *handler.StrategyHandler
	Health     *handler.HealthHandler
}

// SettlementRoutes groups session and saved settlement endpoints
func SettlementRoutes(h *handler.SettlementHandler) *DomainGroup {
	g := NewDomainGroup("settlements", "/settlements")

	sessions := g.Group("sessions", "/sessions")
	sessions.POST("", h.OpenSession)
	sessions.GET("/:sid", h.GetSession)
	sessions.DELETE("/:sid", h.DiscardSession)
	sessions.PUT("/:sid/counterparty", h.ChangeCounterparty)
	sessions.PUT("/:sid/methods", h.SetMethods)
	sessions.PATCH("/:sid/methods/:index/post-dated", h.SetPostDated)
	sessions.PUT("/:sid/documents/:doc/selection", h.SetSelection)
	sessions.PUT("/:sid/documents/:doc/applied-amount", h.SetAppliedAmount)
	sessions.PUT("/:sid/documents/:doc/discount", h.SetDiscount)
	sessions.POST("/:sid/auto-allocate", h.AutoAllocate)
	sessions.POST("/:sid/sort", h.SortDocuments)
	sessions.POST("/:sid/save", h.SaveSession)

	g.GET("/:id", h.GetSettlement)
	g.POST("/:id/reopen", h.ReopenSettlement)
	return g
}

// OpenItemRoutes groups the open item catalog endpoints
func OpenItemRoutes(h *handler.OpenItemHandler) *DomainGroup {
	return NewDomainGroup("open-items", "/open-items").
		GET("", h.List).
		POST("/import", h.Import)
}

// SystemRoutes groups health and strategy discovery
func SystemRoutes(health *handler.HealthHandler, strategies *handler.StrategyHandler) *DomainGroup {
	return NewDomainGroup("system", "").
		GET("/health", health.Health).
		GET("/strategies/allocation", strategies.ListAllocation)
}

// RegisterAll adds every API group to r
func (r *Router) RegisterAll(h Handlers) *Router {
	return r.
		Register(SystemRoutes(h.Health, h.Strategy)).
		Register(OpenItemRoutes(h.OpenItem)).
		Register(SettlementRoutes(h.Settlement))
}
