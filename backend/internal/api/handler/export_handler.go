package handler

import (
	"github.com/gin-gonic/gin"

	"zimpharmhub/backend/internal/service"
	"zimpharmhub/backend/pkg/response"
)

// ExportHandler 导出模块 HTTP 处理器
type ExportHandler struct {
	exportSvc service.ExportService
}

// NewExportHandler 创建 ExportHandler
func NewExportHandler(exportSvc service.ExportService) *ExportHandler {
	return &ExportHandler{exportSvc: exportSvc}
}

// ExportAlertStats 导出职位提醒统计
// GET /api/v1/admin/job-alerts/export
func (h *ExportHandler) ExportAlertStats(c *gin.Context) {
	buf, filename, err := h.exportSvc.ExportAlertStats(c.Request.Context())
	if err != nil {
		response.InternalError(c)
		return
	}

	response.Attachment(c, filename, response.XLSXContentType, buf.Bytes())
}
