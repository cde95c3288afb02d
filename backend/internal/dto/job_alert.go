package dto

// ── 职位提醒 DTO ──

// CreateJobAlertRequest 创建提醒请求
// 条件字段均可选，未填写的维度不做过滤
type CreateJobAlertRequest struct {
	Name               string   `json:"name"                binding:"omitempty,max=100"`
	Positions          []string `json:"positions"           binding:"omitempty,max=20,dive,min=1,max=100"`
	Locations          []string `json:"locations"           binding:"omitempty,max=20,dive,min=1,max=100"`
	SalaryMin          *float64 `json:"salary_min"          binding:"omitempty,gte=0"`
	SalaryMax          *float64 `json:"salary_max"          binding:"omitempty,gte=0"`
	EmploymentTypes    []string `json:"employment_types"    binding:"omitempty,max=10,dive,min=1,max=30"`
	NotificationMethod string   `json:"notification_method" binding:"omitempty,oneof=email sms both"`
	Frequency          string   `json:"frequency"           binding:"omitempty,oneof=instant daily weekly"`
	DigestDay          string   `json:"digest_day"          binding:"omitempty,weekday"`
	DigestTime         string   `json:"digest_time"         binding:"omitempty,hhmm"`
}

// UpdateJobAlertRequest 更新提醒请求（只更新非 nil 字段）
type UpdateJobAlertRequest struct {
	Name               *string   `json:"name"                binding:"omitempty,max=100"`
	Positions          *[]string `json:"positions"           binding:"omitempty,max=20,dive,min=1,max=100"`
	Locations          *[]string `json:"locations"           binding:"omitempty,max=20,dive,min=1,max=100"`
	SalaryMin          *float64  `json:"salary_min"          binding:"omitempty,gte=0"`
	SalaryMax          *float64  `json:"salary_max"          binding:"omitempty,gte=0"`
	ClearSalary        bool      `json:"clear_salary"` // 为 true 时清空薪资区间
	EmploymentTypes    *[]string `json:"employment_types"    binding:"omitempty,max=10,dive,min=1,max=30"`
	NotificationMethod *string   `json:"notification_method" binding:"omitempty,oneof=email sms both"`
	Frequency          *string   `json:"frequency"           binding:"omitempty,oneof=instant daily weekly"`
	DigestDay          *string   `json:"digest_day"          binding:"omitempty,weekday"`
	DigestTime         *string   `json:"digest_time"         binding:"omitempty,hhmm"`
	IsActive           *bool     `json:"is_active"`
	Version            int       `json:"version"             binding:"required,min=1"`
}

// ToggleJobAlertRequest 启用/停用提醒
type ToggleJobAlertRequest struct {
	IsActive *bool `json:"is_active" binding:"required"`
}

// JobAlertListRequest 提醒列表查询参数
type JobAlertListRequest struct {
	PaginationRequest
}

// PreviewRequest 预览匹配结果
type PreviewRequest struct {
	Limit int `form:"limit" binding:"omitempty,min=1,max=50"`
}

// JobAlertResponse 提醒信息响应
type JobAlertResponse struct {
	ID                     string   `json:"id"`
	UserID                 string   `json:"user_id"`
	Name                   string   `json:"name"`
	Positions              []string `json:"positions"`
	Locations              []string `json:"locations"`
	SalaryMin              *float64 `json:"salary_min,omitempty"`
	SalaryMax              *float64 `json:"salary_max,omitempty"`
	EmploymentTypes        []string `json:"employment_types"`
	NotificationMethod     string   `json:"notification_method"`
	Frequency              string   `json:"frequency"`
	DigestDay              string   `json:"digest_day,omitempty"`
	DigestTime             string   `json:"digest_time,omitempty"`
	IsActive               bool     `json:"is_active"`
	LastDigestSent         string   `json:"last_digest_sent,omitempty"`
	LastJobMatched         string   `json:"last_job_matched,omitempty"`
	TotalMatches           int      `json:"total_matches"`
	TotalNotificationsSent int      `json:"total_notifications_sent"`
	PendingMatches         int      `json:"pending_matches"`
	Version                int      `json:"version"`
	CreatedAt              string   `json:"created_at"`
	UpdatedAt              string   `json:"updated_at"`
}

// JobSummary 职位摘要（邮件与预览共用字段）
type JobSummary struct {
	ID             string   `json:"id"`
	Title          string   `json:"title"`
	Position       string   `json:"position"`
	PharmacyName   string   `json:"pharmacy_name,omitempty"`
	LocationCity   string   `json:"location_city"`
	EmploymentType string   `json:"employment_type"`
	SalaryMin      *float64 `json:"salary_min,omitempty"`
	SalaryMax      *float64 `json:"salary_max,omitempty"`
	SalaryCurrency string   `json:"salary_currency,omitempty"`
	Status         string   `json:"status"`
	URL            string   `json:"url"`
	CreatedAt      string   `json:"created_at"`
}

// JobAlertMatchResponse 已记录的匹配
type JobAlertMatchResponse struct {
	JobID            string      `json:"job_id"`
	MatchedAt        string      `json:"matched_at"`
	NotificationSent bool        `json:"notification_sent"`
	SentAt           string      `json:"sent_at,omitempty"`
	Job              *JobSummary `json:"job,omitempty"` // 职位已删除时为空
}

// ── 批处理 DTO ──

// ProcessAlertsRequest 触发匹配批处理
type ProcessAlertsRequest struct {
	Frequency string `form:"frequency" binding:"omitempty,oneof=instant daily weekly"`
}

// SendDigestsRequest 触发摘要批处理
type SendDigestsRequest struct {
	Frequency string `form:"frequency" binding:"omitempty,oneof=daily weekly"`
}

// 单条提醒的处理结果
const (
	OutcomeNotified       = "notified"        // 即时邮件已发送并记录
	OutcomeQueued         = "queued"          // 新匹配已记录，等待摘要
	OutcomeNoNewMatches   = "no_new_matches"  // 无新匹配，状态不变
	OutcomeDigestSent     = "digest_sent"     // 摘要已发送并标记
	OutcomeNotDue         = "not_due"         // 不在摘要时间窗口内
	OutcomeNothingPending = "nothing_pending" // 窗口内但没有待发送匹配
	OutcomeInactive       = "inactive"
	OutcomeFailed         = "failed"
)

// 失败原因
const (
	ReasonUserNotFound    = "user_not_found"
	ReasonUserLookup      = "user_lookup_failed"
	ReasonUserEmailEmpty  = "user_email_missing"
	ReasonMatchingFailed  = "matching_failed"
	ReasonMailFailed      = "mail_failed"
	ReasonPersistFailed   = "persist_failed"
	ReasonJobLookupFailed = "job_lookup_failed"
	ReasonPanic           = "panic"
)

// AlertOutcome 单条提醒在一次批处理中的结果
type AlertOutcome struct {
	AlertID    string `json:"alert_id"`
	UserID     string `json:"user_id"`
	Status     string `json:"status"`
	Reason     string `json:"reason,omitempty"`
	Error      string `json:"error,omitempty"`
	NewMatches int    `json:"new_matches,omitempty"`
	JobsSent   int    `json:"jobs_sent,omitempty"`
}

// ProcessAlertsResult 匹配批处理汇总
type ProcessAlertsResult struct {
	Frequency         string         `json:"frequency,omitempty"`
	Processed         int            `json:"processed"`
	NotificationsSent int            `json:"notifications_sent"`
	Errors            int            `json:"errors"`
	Total             int            `json:"total"`
	Outcomes          []AlertOutcome `json:"outcomes"`
}

// SendDigestsResult 摘要批处理汇总
type SendDigestsResult struct {
	Frequency string         `json:"frequency,omitempty"`
	Sent      int            `json:"sent"`
	Failed    int            `json:"failed"`
	Total     int            `json:"total"`
	Outcomes  []AlertOutcome `json:"outcomes"`
}
