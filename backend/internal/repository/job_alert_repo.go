package repository

import (
	"context"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"zimpharmhub/backend/internal/model"
	pkgerrors "zimpharmhub/backend/pkg/errors"
)

// JobAlertRepository 职位提醒数据访问接口
type JobAlertRepository interface {
	Create(ctx context.Context, alert *model.JobAlert) error
	GetByID(ctx context.Context, id string) (*model.JobAlert, error)
	ListByUser(ctx context.Context, userID string, offset, limit int) ([]model.JobAlert, int64, error)
	// ListActive 加载启用中的提醒及其匹配记录；frequencies 为空时不按频率过滤
	ListActive(ctx context.Context, frequencies ...string) ([]model.JobAlert, error)
	ListAll(ctx context.Context) ([]model.JobAlert, error)
	Update(ctx context.Context, alert *model.JobAlert) error
	Delete(ctx context.Context, id string) error

	ListMatches(ctx context.Context, alertID string) ([]model.JobAlertMatch, error)
	// SaveMatches 在一个事务内追加匹配记录并写回提醒的计数器
	SaveMatches(ctx context.Context, alert *model.JobAlert, matches []model.JobAlertMatch) error
	// MarkMatchesSent 在一个事务内标记匹配记录已发送并写回提醒的计数器
	MarkMatchesSent(ctx context.Context, alert *model.JobAlert, matchIDs []string, sentAt time.Time) error
}

type jobAlertRepo struct {
	db *gorm.DB
}

// NewJobAlertRepo 创建 JobAlertRepository 实例
func NewJobAlertRepo(db *gorm.DB) JobAlertRepository {
	return &jobAlertRepo{db: db}
}

// orderedMatches 匹配记录按追加顺序预加载
func orderedMatches(db *gorm.DB) *gorm.DB {
	return db.Order("matched_at ASC").Order("job_alert_match_id ASC")
}

func (r *jobAlertRepo) Create(ctx context.Context, alert *model.JobAlert) error {
	return r.db.WithContext(ctx).Omit(clause.Associations).Create(alert).Error
}

func (r *jobAlertRepo) GetByID(ctx context.Context, id string) (*model.JobAlert, error) {
	var alert model.JobAlert
	err := r.db.WithContext(ctx).
		Preload("Matches", orderedMatches).
		Where("job_alert_id = ?", id).
		First(&alert).Error
	if err != nil {
		return nil, err
	}
	return &alert, nil
}

func (r *jobAlertRepo) ListByUser(ctx context.Context, userID string, offset, limit int) ([]model.JobAlert, int64, error) {
	var alerts []model.JobAlert
	var total int64

	db := r.db.WithContext(ctx).Model(&model.JobAlert{}).Where("user_id = ?", userID)

	if err := db.Count(&total).Error; err != nil {
		return nil, 0, err
	}

	if err := db.Offset(offset).Limit(limit).
		Order("created_at DESC").
		Find(&alerts).Error; err != nil {
		return nil, 0, err
	}

	return alerts, total, nil
}

func (r *jobAlertRepo) ListActive(ctx context.Context, frequencies ...string) ([]model.JobAlert, error) {
	var alerts []model.JobAlert
	q := r.db.WithContext(ctx).
		Preload("Matches", orderedMatches).
		Where("is_active = ?", true)
	if len(frequencies) > 0 {
		q = q.Where("frequency IN ?", frequencies)
	}
	if err := q.Order("created_at ASC").Find(&alerts).Error; err != nil {
		return nil, err
	}
	return alerts, nil
}

func (r *jobAlertRepo) ListAll(ctx context.Context) ([]model.JobAlert, error) {
	var alerts []model.JobAlert
	err := r.db.WithContext(ctx).
		Preload("User").
		Order("created_at ASC").
		Find(&alerts).Error
	if err != nil {
		return nil, err
	}
	return alerts, nil
}

// Update 更新用户可编辑字段（乐观锁）
func (r *jobAlertRepo) Update(ctx context.Context, alert *model.JobAlert) error {
	oldVersion := alert.Version
	// Model 使用空结构体，避免 GORM 连带回写已预加载的 Matches
	result := r.db.WithContext(ctx).
		Model(&model.JobAlert{}).
		Where("job_alert_id = ? AND version = ?", alert.JobAlertID, oldVersion).
		Updates(map[string]interface{}{
			"name":                alert.Name,
			"positions":           alert.Positions,
			"locations":           alert.Locations,
			"salary_min":          alert.SalaryMin,
			"salary_max":          alert.SalaryMax,
			"employment_types":    alert.EmploymentTypes,
			"notification_method": alert.NotificationMethod,
			"frequency":           alert.Frequency,
			"digest_day":          alert.DigestDay,
			"digest_time":         alert.DigestTime,
			"is_active":           alert.IsActive,
			"updated_by":          alert.UpdatedBy,
			"version":             oldVersion + 1,
		})
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return pkgerrors.ErrOptimisticLock
	}
	alert.Version = oldVersion + 1
	return nil
}

func (r *jobAlertRepo) Delete(ctx context.Context, id string) error {
	return r.db.WithContext(ctx).
		Where("job_alert_id = ?", id).
		Delete(&model.JobAlert{}).Error
}

func (r *jobAlertRepo) ListMatches(ctx context.Context, alertID string) ([]model.JobAlertMatch, error) {
	var matches []model.JobAlertMatch
	err := r.db.WithContext(ctx).
		Scopes(orderedMatches).
		Where("job_alert_id = ?", alertID).
		Find(&matches).Error
	if err != nil {
		return nil, err
	}
	return matches, nil
}

// SaveMatches 追加匹配记录并更新提醒计数（乐观锁）
// 成功后 alert.Matches 为库中完整的匹配列表，ID 以数据库为准
func (r *jobAlertRepo) SaveMatches(ctx context.Context, alert *model.JobAlert, matches []model.JobAlertMatch) error {
	oldVersion := alert.Version
	var saved []model.JobAlertMatch
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if len(matches) > 0 {
			// 写入副本：冲突行不返回 RETURNING，回填的 ID 无法按位置对应
			rows := make([]model.JobAlertMatch, len(matches))
			copy(rows, matches)
			for i := range rows {
				rows[i].JobAlertMatchID = ""
				rows[i].JobAlertID = alert.JobAlertID
			}
			// 唯一约束 (job_alert_id, job_id) 兜底，已记录的职位不会重复写入
			if err := tx.Clauses(clause.OnConflict{DoNothing: true}).Create(&rows).Error; err != nil {
				return err
			}
		}

		if err := tx.Scopes(orderedMatches).
			Where("job_alert_id = ?", alert.JobAlertID).
			Find(&saved).Error; err != nil {
			return err
		}

		result := tx.Model(&model.JobAlert{}).
			Where("job_alert_id = ? AND version = ?", alert.JobAlertID, oldVersion).
			Updates(map[string]interface{}{
				"total_matches":            len(saved),
				"total_notifications_sent": alert.TotalNotificationsSent,
				"last_job_matched":         alert.LastJobMatched,
				"version":                  oldVersion + 1,
			})
		if result.Error != nil {
			return result.Error
		}
		if result.RowsAffected == 0 {
			return pkgerrors.ErrOptimisticLock
		}
		return nil
	})
	if err != nil {
		return err
	}
	alert.Matches = saved
	alert.TotalMatches = len(saved)
	alert.Version = oldVersion + 1
	return nil
}

func (r *jobAlertRepo) MarkMatchesSent(ctx context.Context, alert *model.JobAlert, matchIDs []string, sentAt time.Time) error {
	oldVersion := alert.Version
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if len(matchIDs) > 0 {
			if err := tx.Model(&model.JobAlertMatch{}).
				Where("job_alert_id = ? AND job_alert_match_id IN ?", alert.JobAlertID, matchIDs).
				Updates(map[string]interface{}{
					"notification_sent": true,
					"sent_at":           sentAt,
				}).Error; err != nil {
				return err
			}
		}

		result := tx.Model(&model.JobAlert{}).
			Where("job_alert_id = ? AND version = ?", alert.JobAlertID, oldVersion).
			Updates(map[string]interface{}{
				"total_notifications_sent": alert.TotalNotificationsSent,
				"last_digest_sent":         alert.LastDigestSent,
				"version":                  oldVersion + 1,
			})
		if result.Error != nil {
			return result.Error
		}
		if result.RowsAffected == 0 {
			return pkgerrors.ErrOptimisticLock
		}
		return nil
	})
	if err != nil {
		return err
	}
	alert.Version = oldVersion + 1
	return nil
}
