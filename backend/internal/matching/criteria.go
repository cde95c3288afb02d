// Package matching 职位提醒的匹配条件与过滤管道
//
// 每个条件组对应一个独立的 Filter：既能在内存中判定单个职位，
// 也能生成等价的 GORM 查询条件。条件组之间为 AND，组内多值为 OR。
package matching

import (
	"strings"

	"gorm.io/gorm"

	"zimpharmhub/backend/internal/model"
)

// Criteria 提醒的匹配条件；零值字段表示该维度不过滤
type Criteria struct {
	Positions       []string
	Locations       []string
	EmploymentTypes []string
	SalaryMin       *float64
	SalaryMax       *float64
}

// CriteriaFromAlert 从提醒中提取匹配条件，去除空白项
func CriteriaFromAlert(alert *model.JobAlert) Criteria {
	return Criteria{
		Positions:       compact(alert.Positions),
		Locations:       compact(alert.Locations),
		EmploymentTypes: compact(alert.EmploymentTypes),
		SalaryMin:       alert.SalaryMin,
		SalaryMax:       alert.SalaryMax,
	}
}

// IsEmpty 是否未设置任何条件（匹配全部在招职位）
func (c Criteria) IsEmpty() bool {
	return len(c.Filters()) == 0
}

// Filters 按固定顺序返回已设置的条件组
func (c Criteria) Filters() []Filter {
	var filters []Filter
	if len(c.Positions) > 0 {
		filters = append(filters, positionFilter{values: c.Positions})
	}
	if len(c.Locations) > 0 {
		filters = append(filters, locationFilter{values: c.Locations})
	}
	if c.SalaryMin != nil || c.SalaryMax != nil {
		filters = append(filters, salaryFilter{min: c.SalaryMin, max: c.SalaryMax})
	}
	if len(c.EmploymentTypes) > 0 {
		filters = append(filters, employmentTypeFilter{values: c.EmploymentTypes})
	}
	return filters
}

// Match 职位在招且满足全部条件组
func (c Criteria) Match(job *model.Job) bool {
	if job == nil || job.Status != model.JobStatusActive {
		return false
	}
	for _, f := range c.Filters() {
		if !f.Match(job) {
			return false
		}
	}
	return true
}

// Scopes 返回等价的查询条件，第一个始终是在招状态
func (c Criteria) Scopes() []func(*gorm.DB) *gorm.DB {
	scopes := []func(*gorm.DB) *gorm.DB{ActiveOnly}
	for _, f := range c.Filters() {
		scopes = append(scopes, f.Scope)
	}
	return scopes
}

// ActiveOnly 仅查询在招职位
func ActiveOnly(db *gorm.DB) *gorm.DB {
	return db.Where("status = ?", model.JobStatusActive)
}

func compact(values []string) []string {
	var out []string
	for _, v := range values {
		if v = strings.TrimSpace(v); v != "" {
			out = append(out, v)
		}
	}
	return out
}
