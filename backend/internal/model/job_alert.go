package model

import (
	"time"

	"github.com/lib/pq"
)

// 提醒频率
const (
	FrequencyInstant = "instant"
	FrequencyDaily   = "daily"
	FrequencyWeekly  = "weekly"
)

// 通知方式（目前仅实现 email）
const (
	NotifyEmail = "email"
	NotifySMS   = "sms"
	NotifyBoth  = "both"
)

// JobAlert 职位提醒表 — 对应 job_alerts
// 条件字段全部可选：空数组 / nil 表示该维度不做过滤
type JobAlert struct {
	JobAlertID         string         `gorm:"type:uuid;primaryKey;default:gen_random_uuid()" json:"job_alert_id"`
	UserID             string         `gorm:"type:uuid;not null;index"                       json:"user_id"`
	Name               string         `gorm:"type:varchar(100);not null;default:''"          json:"name"`
	Positions          pq.StringArray `gorm:"type:text[];not null;default:'{}'"              json:"positions"`
	Locations          pq.StringArray `gorm:"type:text[];not null;default:'{}'"              json:"locations"`
	SalaryMin          *float64       `gorm:"type:numeric(12,2)"                             json:"salary_min,omitempty"`
	SalaryMax          *float64       `gorm:"type:numeric(12,2)"                             json:"salary_max,omitempty"`
	EmploymentTypes    pq.StringArray `gorm:"type:text[];not null;default:'{}'"              json:"employment_types"`
	NotificationMethod string         `gorm:"type:varchar(10);not null;default:'email'"      json:"notification_method"`
	Frequency          string         `gorm:"type:varchar(10);not null;default:'instant'"    json:"frequency"`
	DigestDay          string         `gorm:"type:varchar(10);not null;default:'Monday'"     json:"digest_day"`  // 仅 weekly 使用
	DigestTime         string         `gorm:"type:varchar(5);not null;default:'09:00'"       json:"digest_time"` // HH:mm，daily / weekly 使用
	IsActive           bool           `gorm:"not null;default:true"                          json:"is_active"`

	LastDigestSent         *time.Time `json:"last_digest_sent,omitempty"`
	LastJobMatched         *time.Time `json:"last_job_matched,omitempty"`
	TotalMatches           int        `gorm:"not null;default:0" json:"total_matches"`
	TotalNotificationsSent int        `gorm:"not null;default:0" json:"total_notifications_sent"`
	VersionedModel

	// 关联：已匹配职位（只增不减，同一职位只出现一次）
	Matches []JobAlertMatch `gorm:"foreignKey:JobAlertID;references:JobAlertID" json:"matches,omitempty"`
	User    *User           `gorm:"foreignKey:UserID;references:UserID"         json:"user,omitempty"`
}

// TableName 指定表名
func (JobAlert) TableName() string { return "job_alerts" }

// HasMatched 判断职位是否已记录过
func (a *JobAlert) HasMatched(jobID string) bool {
	for i := range a.Matches {
		if a.Matches[i].JobID == jobID {
			return true
		}
	}
	return false
}

// PendingMatches 返回尚未通知的匹配记录（保持原有顺序）
func (a *JobAlert) PendingMatches() []JobAlertMatch {
	var pending []JobAlertMatch
	for _, m := range a.Matches {
		if !m.NotificationSent {
			pending = append(pending, m)
		}
	}
	return pending
}

// JobAlertMatch 提醒匹配记录表 — 对应 job_alert_matches
type JobAlertMatch struct {
	JobAlertMatchID  string     `gorm:"type:uuid;primaryKey;default:gen_random_uuid()" json:"job_alert_match_id"`
	JobAlertID       string     `gorm:"type:uuid;not null;uniqueIndex:uk_job_alert_matches" json:"job_alert_id"`
	JobID            string     `gorm:"type:uuid;not null;uniqueIndex:uk_job_alert_matches" json:"job_id"`
	MatchedAt        time.Time  `gorm:"not null;default:CURRENT_TIMESTAMP"             json:"matched_at"`
	NotificationSent bool       `gorm:"not null;default:false"                         json:"notification_sent"`
	SentAt           *time.Time `json:"sent_at,omitempty"`
}

// TableName 指定表名
func (JobAlertMatch) TableName() string { return "job_alert_matches" }
