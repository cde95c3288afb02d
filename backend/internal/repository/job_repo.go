package repository

import (
	"context"

	"gorm.io/gorm"

	"zimpharmhub/backend/internal/matching"
	"zimpharmhub/backend/internal/model"
)

// JobRepository 职位数据访问接口（职位由其他模块维护，这里只读）
type JobRepository interface {
	// FindMatching 按条件查询在招职位，按发布时间倒序；limit<=0 表示不限
	FindMatching(ctx context.Context, criteria matching.Criteria, limit int) ([]model.Job, error)
	ListByIDs(ctx context.Context, ids []string) ([]model.Job, error)
}

type jobRepo struct {
	db *gorm.DB
}

// NewJobRepo 创建 JobRepository 实例
func NewJobRepo(db *gorm.DB) JobRepository {
	return &jobRepo{db: db}
}

func (r *jobRepo) FindMatching(ctx context.Context, criteria matching.Criteria, limit int) ([]model.Job, error) {
	var jobs []model.Job
	q := r.db.WithContext(ctx).
		Scopes(criteria.Scopes()...).
		Order("created_at DESC").
		Order("job_id DESC")
	if limit > 0 {
		q = q.Limit(limit)
	}
	if err := q.Find(&jobs).Error; err != nil {
		return nil, err
	}
	return jobs, nil
}

func (r *jobRepo) ListByIDs(ctx context.Context, ids []string) ([]model.Job, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	var jobs []model.Job
	err := r.db.WithContext(ctx).
		Where("job_id IN ?", ids).
		Find(&jobs).Error
	if err != nil {
		return nil, err
	}
	return jobs, nil
}
