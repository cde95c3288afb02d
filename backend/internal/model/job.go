package model

// 职位状态
const (
	JobStatusActive = "active"
	JobStatusClosed = "closed"
	JobStatusFilled = "filled"
)

// Job 职位表 — 对应 jobs（由职位模块维护，提醒引擎只读）
type Job struct {
	JobID            string   `gorm:"type:uuid;primaryKey;default:gen_random_uuid()" json:"job_id"`
	Title            string   `gorm:"type:varchar(200);not null"                     json:"title"`
	Position         string   `gorm:"type:varchar(100);not null"                     json:"position"`
	PharmacyName     string   `gorm:"type:varchar(200);not null;default:''"          json:"pharmacy_name"`
	LocationCity     string   `gorm:"type:varchar(100);not null;default:''"          json:"location_city"`
	LocationProvince string   `gorm:"type:varchar(100);not null;default:''"          json:"location_province"`
	SalaryMin        *float64 `gorm:"type:numeric(12,2)"                             json:"salary_min,omitempty"`
	SalaryMax        *float64 `gorm:"type:numeric(12,2)"                             json:"salary_max,omitempty"`
	SalaryCurrency   string   `gorm:"type:varchar(10);not null;default:'USD'"        json:"salary_currency"`
	EmploymentType   string   `gorm:"type:varchar(30);not null;default:'full-time'"  json:"employment_type"`
	Status           string   `gorm:"type:varchar(20);not null;default:'active'"     json:"status"`
	PostedBy         *string  `gorm:"type:uuid"                                      json:"posted_by,omitempty"`
	SoftDeleteModel
}

// TableName 指定表名
func (Job) TableName() string { return "jobs" }
