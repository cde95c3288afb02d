package handler

import (
	"context"
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"zimpharmhub/backend/internal/dto"
	"zimpharmhub/backend/internal/service"
	pkgerrors "zimpharmhub/backend/pkg/errors"
	"zimpharmhub/backend/pkg/response"
)

// AlertPassHandler 提醒批处理的手动触发入口（管理员）
type AlertPassHandler struct {
	processor service.AlertProcessor
}

// NewAlertPassHandler 创建 AlertPassHandler
func NewAlertPassHandler(processor service.AlertProcessor) *AlertPassHandler {
	return &AlertPassHandler{processor: processor}
}

// ProcessJobAlerts 执行一次匹配批处理
// POST /api/v1/admin/job-alerts/process?frequency=instant
func (h *AlertPassHandler) ProcessJobAlerts(c *gin.Context) {
	var req dto.ProcessAlertsRequest
	if err := c.ShouldBindQuery(&req); err != nil {
		response.BadRequest(c, 10001, "参数校验失败")
		return
	}

	result, err := h.processor.ProcessJobAlerts(c.Request.Context(), req.Frequency)
	if err != nil {
		h.handlePassError(c, err)
		return
	}

	response.OK(c, result)
}

// SendAlertDigests 执行一次摘要批处理
// POST /api/v1/admin/job-alerts/digests?frequency=daily
func (h *AlertPassHandler) SendAlertDigests(c *gin.Context) {
	var req dto.SendDigestsRequest
	if err := c.ShouldBindQuery(&req); err != nil {
		response.BadRequest(c, 10001, "参数校验失败")
		return
	}

	result, err := h.processor.SendAlertDigests(c.Request.Context(), req.Frequency)
	if err != nil {
		h.handlePassError(c, err)
		return
	}

	response.OK(c, result)
}

func (h *AlertPassHandler) handlePassError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, pkgerrors.ErrPassInProgress):
		response.Conflict(c, 13001, "同频率批处理正在执行")
	case errors.Is(err, service.ErrInvalidFrequency):
		response.BadRequest(c, 13002, err.Error())
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		response.Error(c, http.StatusServiceUnavailable, 13003, "批处理被中断")
	default:
		response.InternalError(c)
	}
}
