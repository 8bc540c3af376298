package handler

import (
	settlementapp "github.com/erp/settlement/internal/application/settlement"
	"github.com/gin-gonic/gin"
)

// StrategyLister lists the registered allocation strategies
type StrategyLister interface {
	ListStrategies() []settlementapp.StrategyResponse
}

// StrategyHandler handles strategy-related API endpoints
type StrategyHandler struct {
	BaseHandler
	lister StrategyLister
}

// NewStrategyHandler creates a new StrategyHandler
func NewStrategyHandler(lister StrategyLister) *StrategyHandler {
	return &StrategyHandler{lister: lister}
}

// ListAllocation godoc
// @ID           listAllocationStrategies
// @Summary      List allocation strategies
// @Description  Returns every auto-allocation strategy and marks the default
// @Tags         system
// @Produce      json
// @Success      200 {object} dto.Response
// @Router       /strategies/allocation [get]
func (h *StrategyHandler) ListAllocation(c *gin.Context) {
	h.Success(c, h.lister.ListStrategies())
}
