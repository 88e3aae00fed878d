package handler

import (
	"fmt"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/campus-key-api/internal/models"
	"github.com/noah-isme/campus-key-api/internal/service"
	"github.com/noah-isme/campus-key-api/pkg/response"
)

// ExportHandler serves key status report downloads.
type ExportHandler struct {
	service *service.ExportService
}

// NewExportHandler constructs an export handler.
func NewExportHandler(svc *service.ExportService) *ExportHandler {
	return &ExportHandler{service: svc}
}

// Keys godoc
// @Summary Export the key inventory
// @Tags Exports
// @Produce text/csv
// @Produce application/pdf
// @Param format query string false "csv or pdf" default(csv)
// @Param block query string false "Filter by block"
// @Param status query string false "Filter by status"
// @Success 200 {file} file
// @Router /keys/export [get]
func (h *ExportHandler) Keys(c *gin.Context) {
	format := service.ExportFormat(strings.ToLower(c.DefaultQuery("format", "csv")))
	filter := models.KeyFilter{
		Block:  c.Query("block"),
		Status: models.KeyStatus(strings.ToUpper(c.Query("status"))),
	}

	payload, contentType, err := h.service.Render(c.Request.Context(), filter, format)
	if err != nil {
		response.Error(c, err)
		return
	}

	filename := fmt.Sprintf("keys-%s.%s", time.Now().UTC().Format("20060102-150405"), format)
	c.Header("Content-Disposition", fmt.Sprintf("attachment; filename=%q", filename))
	c.Data(200, contentType, payload)
}
