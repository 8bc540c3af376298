package handler

import (
	"strconv"
	"strings"

	settlementapp "github.com/erp/settlement/internal/application/settlement"
	"github.com/erp/settlement/internal/domain/settlement"
	"github.com/erp/settlement/internal/interfaces/http/middleware"
	"github.com/gin-gonic/gin"
)

// IdempotencyKeyHeader lets a client retry a save without saving twice
const IdempotencyKeyHeader = "Idempotency-Key"

// SettlementHandler exposes settlement sessions and saved settlements
type SettlementHandler struct {
	BaseHandler
	service *settlementapp.Service
}

// NewSettlementHandler creates a new SettlementHandler
func NewSettlementHandler(service *settlementapp.Service) *SettlementHandler {
	return &SettlementHandler{service: service}
}

// OpenSession godoc
// @ID           openSettlementSession
// @Summary      Open a settlement session
// @Description  Starts a NEW session; documents load when a counterparty is given
// @Tags         settlements
// @Accept       json
// @Produce      json
// @Param        request body OpenSessionRequest true "Session request"
// @Success      201 {object} dto.Response
// @Failure      400 {object} dto.Response
// @Router       /settlements/sessions [post]
func (h *SettlementHandler) OpenSession(c *gin.Context) {
	var req OpenSessionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		middleware.HandleValidationError(c, err)
		return
	}

	appReq := settlementapp.OpenSessionRequest{
		Type:    settlement.SettlementType(strings.ToUpper(req.Type)),
		Methods: toMethodLines(req.Methods),
	}
	if req.CounterpartyID != nil {
		appReq.CounterpartyID = *req.CounterpartyID
	}
	if req.SettlementDate != nil {
		appReq.SettlementDate = *req.SettlementDate
	}

	view, err := h.service.OpenSession(c.Request.Context(), getTenantID(c), appReq)
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Created(c, view)
}

// GetSession godoc
// @ID           getSettlementSession
// @Summary      Get a settlement session
// @Tags         settlements
// @Produce      json
// @Param        sid path string true "Session ID"
// @Success      200 {object} dto.Response
// @Failure      404 {object} dto.Response
// @Router       /settlements/sessions/{sid} [get]
func (h *SettlementHandler) GetSession(c *gin.Context) {
	sid, ok := h.parseUUIDParam(c, "sid")
	if !ok {
		return
	}
	h.respond(c, func() (*settlementapp.SessionView, error) {
		return h.service.GetSession(c.Request.Context(), getTenantID(c), sid)
	})
}

// DiscardSession godoc
// @ID           discardSettlementSession
// @Summary      Discard a settlement session
// @Tags         settlements
// @Param        sid path string true "Session ID"
// @Success      204
// @Failure      404 {object} dto.Response
// @Router       /settlements/sessions/{sid} [delete]
func (h *SettlementHandler) DiscardSession(c *gin.Context) {
	sid, ok := h.parseUUIDParam(c, "sid")
	if !ok {
		return
	}
	if err := h.service.Discard(c.Request.Context(), getTenantID(c), sid); err != nil {
		h.HandleError(c, err)
		return
	}
	h.NoContent(c)
}

// ChangeCounterparty godoc
// @ID           changeSettlementCounterparty
// @Summary      Change the session counterparty
// @Description  Reloads the session's documents for another counterparty and clears every allocation
// @Tags         settlements
// @Accept       json
// @Produce      json
// @Param        sid path string true "Session ID"
// @Param        request body ChangeCounterpartyRequest true "Counterparty"
// @Success      200 {object} dto.Response
// @Failure      400 {object} dto.Response
// @Failure      404 {object} dto.Response
// @Failure      409 {object} dto.Response
// @Router       /settlements/sessions/{sid}/counterparty [put]
func (h *SettlementHandler) ChangeCounterparty(c *gin.Context) {
	sid, ok := h.parseUUIDParam(c, "sid")
	if !ok {
		return
	}
	var req ChangeCounterpartyRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		middleware.HandleValidationError(c, err)
		return
	}
	h.respond(c, func() (*settlementapp.SessionView, error) {
		return h.service.ChangeCounterparty(c.Request.Context(), getTenantID(c), sid, req.CounterpartyID)
	})
}

// SetMethods godoc
// @ID           setSettlementMethods
// @Summary      Replace method lines
// @Description  Replaces the payment method lines; the remaining amount is recomputed
// @Tags         settlements
// @Accept       json
// @Produce      json
// @Param        sid path string true "Session ID"
// @Param        request body SetMethodsRequest true "Method lines"
// @Success      200 {object} dto.Response
// @Failure      400 {object} dto.Response
// @Failure      404 {object} dto.Response
// @Failure      409 {object} dto.Response
// @Router       /settlements/sessions/{sid}/methods [put]
func (h *SettlementHandler) SetMethods(c *gin.Context) {
	sid, ok := h.parseUUIDParam(c, "sid")
	if !ok {
		return
	}
	var req SetMethodsRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		middleware.HandleValidationError(c, err)
		return
	}
	h.respond(c, func() (*settlementapp.SessionView, error) {
		return h.service.SetMethods(c.Request.Context(), getTenantID(c), sid, toMethodLines(req.Methods))
	})
}

// SetPostDated godoc
// @ID           setSettlementPostDated
// @Summary      Flag a method line as post-dated
// @Description  Sets or clears the post-dated flag and cheque date of one method line
// @Tags         settlements
// @Accept       json
// @Produce      json
// @Param        sid path string true "Session ID"
// @Param        index path int true "Method line index"
// @Param        request body PostDatedRequest true "Post-dated flag"
// @Success      200 {object} dto.Response
// @Failure      400 {object} dto.Response
// @Failure      404 {object} dto.Response
// @Router       /settlements/sessions/{sid}/methods/{index}/post-dated [patch]
func (h *SettlementHandler) SetPostDated(c *gin.Context) {
	sid, ok := h.parseUUIDParam(c, "sid")
	if !ok {
		return
	}
	index, err := strconv.Atoi(c.Param("index"))
	if err != nil {
		h.BadRequest(c, "Invalid index: must be an integer")
		return
	}
	var req PostDatedRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		middleware.HandleValidationError(c, err)
		return
	}
	h.respond(c, func() (*settlementapp.SessionView, error) {
		return h.service.SetPostDated(c.Request.Context(), getTenantID(c), sid, index, req.PostDated, req.ChequeDate)
	})
}

// SetSelection godoc
// @ID           setSettlementSelection
// @Summary      Check or uncheck a document row
// @Description  Checking fills the row from the remaining amount; unchecking releases it
// @Tags         settlements
// @Accept       json
// @Produce      json
// @Param        sid path string true "Session ID"
// @Param        doc path string true "Document number"
// @Param        request body SelectionRequest true "Selection"
// @Success      200 {object} dto.Response
// @Failure      400 {object} dto.Response
// @Failure      404 {object} dto.Response
// @Failure      409 {object} dto.Response
// @Router       /settlements/sessions/{sid}/documents/{doc}/selection [put]
func (h *SettlementHandler) SetSelection(c *gin.Context) {
	sid, ok := h.parseUUIDParam(c, "sid")
	if !ok {
		return
	}
	var req SelectionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		middleware.HandleValidationError(c, err)
		return
	}
	h.respond(c, func() (*settlementapp.SessionView, error) {
		return h.service.ToggleSelection(c.Request.Context(), getTenantID(c), sid, c.Param("doc"), req.Selected)
	})
}

// SetAppliedAmount godoc
// @ID           setSettlementAppliedAmount
// @Summary      Set a document row's applied amount
// @Description  Unparseable amounts count as zero; the adjustment field reports any clamping
// @Tags         settlements
// @Accept       json
// @Produce      json
// @Param        sid path string true "Session ID"
// @Param        doc path string true "Document number"
// @Param        request body AppliedAmountRequest true "Applied amount"
// @Success      200 {object} dto.Response
// @Failure      400 {object} dto.Response
// @Failure      404 {object} dto.Response
// @Failure      409 {object} dto.Response
// @Router       /settlements/sessions/{sid}/documents/{doc}/applied-amount [put]
func (h *SettlementHandler) SetAppliedAmount(c *gin.Context) {
	sid, ok := h.parseUUIDParam(c, "sid")
	if !ok {
		return
	}
	var req AppliedAmountRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		middleware.HandleValidationError(c, err)
		return
	}
	h.respond(c, func() (*settlementapp.SessionView, error) {
		return h.service.SetAppliedAmount(c.Request.Context(), getTenantID(c), sid, c.Param("doc"), req.Amount)
	})
}

// SetDiscount godoc
// @ID           setSettlementDiscount
// @Summary      Set a document row's discount
// @Description  Turns the discount on or off for a row and sets the amount taken
// @Tags         settlements
// @Accept       json
// @Produce      json
// @Param        sid path string true "Session ID"
// @Param        doc path string true "Document number"
// @Param        request body DiscountRequest true "Discount"
// @Success      200 {object} dto.Response
// @Failure      400 {object} dto.Response
// @Failure      404 {object} dto.Response
// @Failure      409 {object} dto.Response
// @Router       /settlements/sessions/{sid}/documents/{doc}/discount [put]
func (h *SettlementHandler) SetDiscount(c *gin.Context) {
	sid, ok := h.parseUUIDParam(c, "sid")
	if !ok {
		return
	}
	var req DiscountRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		middleware.HandleValidationError(c, err)
		return
	}
	h.respond(c, func() (*settlementapp.SessionView, error) {
		return h.service.SetDiscount(c.Request.Context(), getTenantID(c), sid, c.Param("doc"), req.WithDiscount, req.Amount)
	})
}

// AutoAllocate godoc
// @ID           autoAllocateSettlement
// @Summary      Auto-allocate the remaining amount
// @Description  Fills document rows from the remaining amount with the chosen or default strategy
// @Tags         settlements
// @Accept       json
// @Produce      json
// @Param        sid path string true "Session ID"
// @Param        request body AutoAllocateRequest false "Scope and strategy"
// @Success      200 {object} dto.Response
// @Failure      400 {object} dto.Response
// @Failure      404 {object} dto.Response
// @Failure      409 {object} dto.Response
// @Router       /settlements/sessions/{sid}/auto-allocate [post]
func (h *SettlementHandler) AutoAllocate(c *gin.Context) {
	sid, ok := h.parseUUIDParam(c, "sid")
	if !ok {
		return
	}
	var req AutoAllocateRequest
	if c.Request.ContentLength != 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			middleware.HandleValidationError(c, err)
			return
		}
	}
	if req.Scope == "" {
		req.Scope = string(settlement.ScopeAll)
	}
	h.respond(c, func() (*settlementapp.SessionView, error) {
		return h.service.AutoAllocate(c.Request.Context(), getTenantID(c), sid, req.Scope, req.Strategy)
	})
}

// SortDocuments godoc
// @ID           sortSettlementDocuments
// @Summary      Sort document rows
// @Description  Reorders the rows by DATE, DOCUMENT_NO, AMOUNT or KIND; allocations are kept
// @Tags         settlements
// @Accept       json
// @Produce      json
// @Param        sid path string true "Session ID"
// @Param        request body SortRequest true "Sort key and direction"
// @Success      200 {object} dto.Response
// @Failure      400 {object} dto.Response
// @Failure      404 {object} dto.Response
// @Router       /settlements/sessions/{sid}/sort [post]
func (h *SettlementHandler) SortDocuments(c *gin.Context) {
	sid, ok := h.parseUUIDParam(c, "sid")
	if !ok {
		return
	}
	var req SortRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		middleware.HandleValidationError(c, err)
		return
	}
	if req.Direction == "" {
		req.Direction = string(settlement.SortAscending)
	}
	h.respond(c, func() (*settlementapp.SessionView, error) {
		return h.service.SortDocuments(c.Request.Context(), getTenantID(c), sid, req.Key, req.Direction)
	})
}

// SaveSession godoc
// @ID           saveSettlementSession
// @Summary      Save a settlement session
// @Description  NEW sessions become settlement records; EDIT sessions store post-dated flags
// @Tags         settlements
// @Accept       json
// @Produce      json
// @Param        sid path string true "Session ID"
// @Param        Idempotency-Key header string false "Replays the settlement saved earlier under the same key"
// @Param        request body SaveSessionRequest false "Save options"
// @Success      201 {object} dto.Response
// @Failure      409 {object} dto.Response
// @Failure      422 {object} dto.Response
// @Router       /settlements/sessions/{sid}/save [post]
func (h *SettlementHandler) SaveSession(c *gin.Context) {
	sid, ok := h.parseUUIDParam(c, "sid")
	if !ok {
		return
	}
	var req SaveSessionRequest
	if c.Request.ContentLength != 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			middleware.HandleValidationError(c, err)
			return
		}
	}

	resp, err := h.service.Save(c.Request.Context(), getTenantID(c), sid, settlementapp.SaveRequest{
		AcceptRemainder: req.AcceptRemainder,
		Remark:          req.Remark,
		CreatedBy:       middleware.GetUserID(c),
		IdempotencyKey:  c.GetHeader(IdempotencyKeyHeader),
	})
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Created(c, resp)
}

// GetSettlement godoc
// @ID           getSettlement
// @Summary      Get a saved settlement
// @Tags         settlements
// @Produce      json
// @Param        id path string true "Settlement ID"
// @Success      200 {object} dto.Response
// @Failure      404 {object} dto.Response
// @Router       /settlements/{id} [get]
func (h *SettlementHandler) GetSettlement(c *gin.Context) {
	id, ok := h.parseUUIDParam(c, "id")
	if !ok {
		return
	}
	resp, err := h.service.GetSettlement(c.Request.Context(), getTenantID(c), id)
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Success(c, resp)
}

// ReopenSettlement godoc
// @ID           reopenSettlement
// @Summary      Reopen a saved settlement
// @Description  Opens a session over a saved settlement in EDIT or VIEW mode
// @Tags         settlements
// @Accept       json
// @Produce      json
// @Param        id path string true "Settlement ID"
// @Param        request body ReopenRequest false "Mode, VIEW by default"
// @Success      201 {object} dto.Response
// @Failure      400 {object} dto.Response
// @Failure      404 {object} dto.Response
// @Router       /settlements/{id}/reopen [post]
func (h *SettlementHandler) ReopenSettlement(c *gin.Context) {
	id, ok := h.parseUUIDParam(c, "id")
	if !ok {
		return
	}
	var req ReopenRequest
	if c.Request.ContentLength != 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			middleware.HandleValidationError(c, err)
			return
		}
	}
	view, err := h.service.ReopenSession(c.Request.Context(), getTenantID(c), id, req.Mode)
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Created(c, view)
}

// respond writes the session view returned by fn, or its error
func (h *SettlementHandler) respond(c *gin.Context, fn func() (*settlementapp.SessionView, error)) {
	view, err := fn()
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Success(c, view)
}
