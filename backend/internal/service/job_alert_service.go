package service

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/lib/pq"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"zimpharmhub/backend/config"
	"zimpharmhub/backend/internal/dto"
	"zimpharmhub/backend/internal/model"
	"zimpharmhub/backend/internal/repository"
	pkgerrors "zimpharmhub/backend/pkg/errors"
)

// ── 职位提醒模块业务错误 ──

var (
	ErrJobAlertNotFound   = errors.New("职位提醒不存在")
	ErrInvalidSalaryRange = errors.New("最低薪资不能高于最高薪资")
	ErrInvalidDigestTime  = errors.New("摘要时间必须为 HH:mm 格式")
	ErrInvalidDigestDay   = errors.New("摘要星期必须为英文星期全称")
)

const defaultPreviewLimit = 10

// JobAlertService 职位提醒管理（用户自有资源）
// 非所有者访问一律视为不存在；管理员可读取任意提醒
type JobAlertService interface {
	Create(ctx context.Context, req *dto.CreateJobAlertRequest, callerID string) (*dto.JobAlertResponse, error)
	GetByID(ctx context.Context, id, callerID, callerRole string) (*dto.JobAlertResponse, error)
	List(ctx context.Context, req *dto.JobAlertListRequest, callerID string) ([]dto.JobAlertResponse, int64, error)
	Update(ctx context.Context, id string, req *dto.UpdateJobAlertRequest, callerID string) (*dto.JobAlertResponse, error)
	Toggle(ctx context.Context, id string, active bool, callerID string) (*dto.JobAlertResponse, error)
	Delete(ctx context.Context, id, callerID string) error
	ListMatches(ctx context.Context, id, callerID, callerRole string) ([]dto.JobAlertMatchResponse, error)
	Preview(ctx context.Context, id string, limit int, callerID, callerRole string) ([]dto.JobSummary, error)
}

type jobAlertService struct {
	cfg         *config.Config
	repo        *repository.Repository
	matcher     JobMatcher
	frontendURL string
	logger      *zap.Logger
}

// NewJobAlertService 创建 JobAlertService 实例
func NewJobAlertService(cfg *config.Config, repo *repository.Repository, matcher JobMatcher, logger *zap.Logger) JobAlertService {
	return &jobAlertService{
		cfg:         cfg,
		repo:        repo,
		matcher:     matcher,
		frontendURL: strings.TrimRight(cfg.Server.FrontendURL, "/"),
		logger:      logger,
	}
}

// ────────────────────── Create ──────────────────────

func (s *jobAlertService) Create(ctx context.Context, req *dto.CreateJobAlertRequest, callerID string) (*dto.JobAlertResponse, error) {
	alert := &model.JobAlert{
		UserID:             callerID,
		Name:               req.Name,
		Positions:          pq.StringArray(nonNil(req.Positions)),
		Locations:          pq.StringArray(nonNil(req.Locations)),
		SalaryMin:          req.SalaryMin,
		SalaryMax:          req.SalaryMax,
		EmploymentTypes:    pq.StringArray(nonNil(req.EmploymentTypes)),
		NotificationMethod: orDefault(req.NotificationMethod, model.NotifyEmail),
		Frequency:          orDefault(req.Frequency, model.FrequencyInstant),
		DigestDay:          orDefault(req.DigestDay, s.cfg.Alert.DefaultDigestDay),
		DigestTime:         orDefault(req.DigestTime, s.cfg.Alert.DefaultDigestTime),
		IsActive:           true,
	}
	alert.CreatedBy = &callerID
	alert.UpdatedBy = &callerID

	if err := validateAlert(alert); err != nil {
		return nil, err
	}

	if err := s.repo.JobAlert.Create(ctx, alert); err != nil {
		s.logger.Error("创建职位提醒失败", zap.String("user_id", callerID), zap.Error(err))
		return nil, err
	}

	return toJobAlertResponse(alert), nil
}

// ────────────────────── GetByID ──────────────────────

func (s *jobAlertService) GetByID(ctx context.Context, id, callerID, callerRole string) (*dto.JobAlertResponse, error) {
	alert, err := s.load(ctx, id, callerID, callerRole)
	if err != nil {
		return nil, err
	}
	return toJobAlertResponse(alert), nil
}

// ────────────────────── List ──────────────────────

func (s *jobAlertService) List(ctx context.Context, req *dto.JobAlertListRequest, callerID string) ([]dto.JobAlertResponse, int64, error) {
	alerts, total, err := s.repo.JobAlert.ListByUser(ctx, callerID, req.GetOffset(), req.GetPageSize())
	if err != nil {
		s.logger.Error("列出职位提醒失败", zap.String("user_id", callerID), zap.Error(err))
		return nil, 0, err
	}

	result := make([]dto.JobAlertResponse, 0, len(alerts))
	for i := range alerts {
		result = append(result, *toJobAlertResponse(&alerts[i]))
	}
	return result, total, nil
}

// ────────────────────── Update ──────────────────────

func (s *jobAlertService) Update(ctx context.Context, id string, req *dto.UpdateJobAlertRequest, callerID string) (*dto.JobAlertResponse, error) {
	alert, err := s.load(ctx, id, callerID, "")
	if err != nil {
		return nil, err
	}
	if alert.Version != req.Version {
		return nil, pkgerrors.ErrOptimisticLock
	}

	if req.Name != nil {
		alert.Name = *req.Name
	}
	if req.Positions != nil {
		alert.Positions = pq.StringArray(nonNil(*req.Positions))
	}
	if req.Locations != nil {
		alert.Locations = pq.StringArray(nonNil(*req.Locations))
	}
	if req.ClearSalary {
		alert.SalaryMin, alert.SalaryMax = nil, nil
	}
	if req.SalaryMin != nil {
		alert.SalaryMin = req.SalaryMin
	}
	if req.SalaryMax != nil {
		alert.SalaryMax = req.SalaryMax
	}
	if req.EmploymentTypes != nil {
		alert.EmploymentTypes = pq.StringArray(nonNil(*req.EmploymentTypes))
	}
	if req.NotificationMethod != nil {
		alert.NotificationMethod = *req.NotificationMethod
	}
	if req.Frequency != nil {
		alert.Frequency = *req.Frequency
	}
	if req.DigestDay != nil {
		alert.DigestDay = *req.DigestDay
	}
	if req.DigestTime != nil {
		alert.DigestTime = *req.DigestTime
	}
	if req.IsActive != nil {
		alert.IsActive = *req.IsActive
	}
	alert.UpdatedBy = &callerID

	if err := validateAlert(alert); err != nil {
		return nil, err
	}

	if err := s.repo.JobAlert.Update(ctx, alert); err != nil {
		if !errors.Is(err, pkgerrors.ErrOptimisticLock) {
			s.logger.Error("更新职位提醒失败", zap.String("id", id), zap.Error(err))
		}
		return nil, err
	}

	return toJobAlertResponse(alert), nil
}

// ────────────────────── Toggle ──────────────────────

func (s *jobAlertService) Toggle(ctx context.Context, id string, active bool, callerID string) (*dto.JobAlertResponse, error) {
	alert, err := s.load(ctx, id, callerID, "")
	if err != nil {
		return nil, err
	}
	if alert.IsActive == active {
		return toJobAlertResponse(alert), nil
	}

	alert.IsActive = active
	alert.UpdatedBy = &callerID
	if err := s.repo.JobAlert.Update(ctx, alert); err != nil {
		if !errors.Is(err, pkgerrors.ErrOptimisticLock) {
			s.logger.Error("切换职位提醒状态失败", zap.String("id", id), zap.Error(err))
		}
		return nil, err
	}
	return toJobAlertResponse(alert), nil
}

// ────────────────────── Delete ──────────────────────

func (s *jobAlertService) Delete(ctx context.Context, id, callerID string) error {
	if _, err := s.load(ctx, id, callerID, ""); err != nil {
		return err
	}

	if err := s.repo.JobAlert.Delete(ctx, id); err != nil {
		s.logger.Error("删除职位提醒失败", zap.String("id", id), zap.Error(err))
		return err
	}
	return nil
}

// ────────────────────── ListMatches ──────────────────────

func (s *jobAlertService) ListMatches(ctx context.Context, id, callerID, callerRole string) ([]dto.JobAlertMatchResponse, error) {
	alert, err := s.load(ctx, id, callerID, callerRole)
	if err != nil {
		return nil, err
	}

	ids := make([]string, 0, len(alert.Matches))
	for _, m := range alert.Matches {
		ids = append(ids, m.JobID)
	}
	jobs, err := s.repo.Job.ListByIDs(ctx, ids)
	if err != nil {
		s.logger.Error("查询匹配职位详情失败", zap.String("id", id), zap.Error(err))
		return nil, err
	}
	byID := make(map[string]*model.Job, len(jobs))
	for i := range jobs {
		byID[jobs[i].JobID] = &jobs[i]
	}

	result := make([]dto.JobAlertMatchResponse, 0, len(alert.Matches))
	for _, m := range alert.Matches {
		item := dto.JobAlertMatchResponse{
			JobID:            m.JobID,
			MatchedAt:        m.MatchedAt.Format(time.RFC3339),
			NotificationSent: m.NotificationSent,
			SentAt:           formatTimePtr(m.SentAt),
		}
		if job, ok := byID[m.JobID]; ok {
			summary := s.toJobSummary(job)
			item.Job = &summary
		}
		result = append(result, item)
	}
	return result, nil
}

// ────────────────────── Preview ──────────────────────

func (s *jobAlertService) Preview(ctx context.Context, id string, limit int, callerID, callerRole string) ([]dto.JobSummary, error) {
	alert, err := s.load(ctx, id, callerID, callerRole)
	if err != nil {
		return nil, err
	}
	if limit <= 0 {
		limit = defaultPreviewLimit
	}

	jobs, err := s.matcher.FindMatchingJobs(ctx, alert, limit)
	if err != nil {
		return nil, err
	}

	result := make([]dto.JobSummary, 0, len(jobs))
	for i := range jobs {
		result = append(result, s.toJobSummary(&jobs[i]))
	}
	return result, nil
}

// ────────────────────── 内部方法 ──────────────────────

// load 读取提醒并校验归属；callerRole 为 admin 时跳过归属校验
func (s *jobAlertService) load(ctx context.Context, id, callerID, callerRole string) (*model.JobAlert, error) {
	alert, err := s.repo.JobAlert.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrJobAlertNotFound
		}
		s.logger.Error("查询职位提醒失败", zap.String("id", id), zap.Error(err))
		return nil, err
	}
	if alert.UserID != callerID && callerRole != model.RoleAdmin {
		return nil, ErrJobAlertNotFound
	}
	return alert, nil
}

func (s *jobAlertService) toJobSummary(j *model.Job) dto.JobSummary {
	return dto.JobSummary{
		ID:             j.JobID,
		Title:          j.Title,
		Position:       j.Position,
		PharmacyName:   j.PharmacyName,
		LocationCity:   j.LocationCity,
		EmploymentType: j.EmploymentType,
		SalaryMin:      j.SalaryMin,
		SalaryMax:      j.SalaryMax,
		SalaryCurrency: j.SalaryCurrency,
		Status:         j.Status,
		URL:            jobURL(s.frontendURL, j.JobID),
		CreatedAt:      j.CreatedAt.Format(time.RFC3339),
	}
}

// validateAlert 服务层兜底校验（CLI 等非 HTTP 调用方同样经过这里）
func validateAlert(alert *model.JobAlert) error {
	switch alert.Frequency {
	case model.FrequencyInstant, model.FrequencyDaily, model.FrequencyWeekly:
	default:
		return ErrInvalidFrequency
	}
	if alert.SalaryMin != nil && alert.SalaryMax != nil && *alert.SalaryMin > *alert.SalaryMax {
		return ErrInvalidSalaryRange
	}
	if _, ok := parseHHMM(alert.DigestTime); !ok {
		return ErrInvalidDigestTime
	}
	if !dto.IsWeekday(alert.DigestDay) {
		return ErrInvalidDigestDay
	}
	return nil
}

func toJobAlertResponse(a *model.JobAlert) *dto.JobAlertResponse {
	return &dto.JobAlertResponse{
		ID:                     a.JobAlertID,
		UserID:                 a.UserID,
		Name:                   a.Name,
		Positions:              nonNil(a.Positions),
		Locations:              nonNil(a.Locations),
		SalaryMin:              a.SalaryMin,
		SalaryMax:              a.SalaryMax,
		EmploymentTypes:        nonNil(a.EmploymentTypes),
		NotificationMethod:     a.NotificationMethod,
		Frequency:              a.Frequency,
		DigestDay:              a.DigestDay,
		DigestTime:             a.DigestTime,
		IsActive:               a.IsActive,
		LastDigestSent:         formatTimePtr(a.LastDigestSent),
		LastJobMatched:         formatTimePtr(a.LastJobMatched),
		TotalMatches:           a.TotalMatches,
		TotalNotificationsSent: a.TotalNotificationsSent,
		PendingMatches:         len(a.PendingMatches()),
		Version:                a.Version,
		CreatedAt:              a.CreatedAt.Format(time.RFC3339),
		UpdatedAt:              a.UpdatedAt.Format(time.RFC3339),
	}
}

func formatTimePtr(t *time.Time) string {
	if t == nil {
		return ""
	}
	return t.Format(time.RFC3339)
}

func nonNil(values []string) []string {
	if values == nil {
		return []string{}
	}
	return values
}

func orDefault(v, def string) string {
	if v == "" {
		return def
	}
	return v
}
