package service

import (
	"context"

	"go.uber.org/zap"

	"zimpharmhub/backend/internal/matching"
	"zimpharmhub/backend/internal/model"
	"zimpharmhub/backend/internal/repository"
)

// JobMatcher 职位匹配
type JobMatcher interface {
	// FindMatchingJobs 返回提醒当前匹配的在招职位，按发布时间倒序；limit<=0 不限条数
	FindMatchingJobs(ctx context.Context, alert *model.JobAlert, limit int) ([]model.Job, error)
}

type jobMatcher struct {
	repo   *repository.Repository
	logger *zap.Logger
}

// NewJobMatcher 创建 JobMatcher 实例
func NewJobMatcher(repo *repository.Repository, logger *zap.Logger) JobMatcher {
	return &jobMatcher{repo: repo, logger: logger}
}

func (m *jobMatcher) FindMatchingJobs(ctx context.Context, alert *model.JobAlert, limit int) ([]model.Job, error) {
	criteria := matching.CriteriaFromAlert(alert)

	jobs, err := m.repo.Job.FindMatching(ctx, criteria, limit)
	if err != nil {
		m.logger.Error("查询匹配职位失败", zap.String("alert_id", alert.JobAlertID), zap.Error(err))
		return nil, err
	}
	return jobs, nil
}
