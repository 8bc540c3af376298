package handler

import (
	"github.com/erp/settlement/internal/application/openitem"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

// OpenItemHandler lists and imports the open item catalog
type OpenItemHandler struct {
	BaseHandler
	service *openitem.ImportService
}

// NewOpenItemHandler creates a new OpenItemHandler
func NewOpenItemHandler(service *openitem.ImportService) *OpenItemHandler {
	return &OpenItemHandler{service: service}
}

// ListOpenItemsQuery selects one counterparty's open items
type ListOpenItemsQuery struct {
	Ledger         string `form:"ledger" binding:"required"`
	CounterpartyID string `form:"counterparty_id" binding:"required,uuid"`
}

// List godoc
// @ID           listOpenItems
// @Summary      List open items
// @Description  Returns a counterparty's open items in one ledger, oldest first
// @Tags         open-items
// @Produce      json
// @Param        ledger query string true "RECEIVABLE or PAYABLE"
// @Param        counterparty_id query string true "Counterparty ID"
// @Success      200 {object} dto.Response
// @Failure      400 {object} dto.Response
// @Router       /open-items [get]
func (h *OpenItemHandler) List(c *gin.Context) {
	var q ListOpenItemsQuery
	if err := c.ShouldBindQuery(&q); err != nil {
		h.BadRequest(c, "ledger and counterparty_id are required")
		return
	}
	counterpartyID, _ := uuid.Parse(q.CounterpartyID)

	items, err := h.service.List(c.Request.Context(), getTenantID(c), q.Ledger, counterpartyID)
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Success(c, items)
}

// Import godoc
// @ID           importOpenItems
// @Summary      Import open items
// @Description  Upserts open items from a CSV or XLSX upload; row errors are reported, not fatal
// @Tags         open-items
// @Accept       multipart/form-data
// @Produce      json
// @Param        file formData file true "CSV or XLSX file"
// @Success      200 {object} dto.Response
// @Failure      400 {object} dto.Response
// @Router       /open-items/import [post]
func (h *OpenItemHandler) Import(c *gin.Context) {
	fileHeader, err := c.FormFile("file")
	if err != nil {
		h.BadRequest(c, "A file field is required")
		return
	}
	file, err := fileHeader.Open()
	if err != nil {
		h.BadRequest(c, "Uploaded file cannot be read")
		return
	}
	defer file.Close()

	result, err := h.service.Import(c.Request.Context(), getTenantID(c), fileHeader.Filename, file)
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Success(c, result)
}
