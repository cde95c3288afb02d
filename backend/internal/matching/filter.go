package matching

import (
	"strings"

	"gorm.io/gorm"

	"zimpharmhub/backend/internal/model"
)

// Filter 单个条件组
type Filter interface {
	Name() string
	Match(job *model.Job) bool
	Scope(db *gorm.DB) *gorm.DB
}

// ────────────────────── 职位名称：精确匹配任一 ──────────────────────

type positionFilter struct {
	values []string
}

func (positionFilter) Name() string { return "positions" }

func (f positionFilter) Match(job *model.Job) bool {
	return contains(f.values, job.Position)
}

func (f positionFilter) Scope(db *gorm.DB) *gorm.DB {
	return db.Where("position IN ?", f.values)
}

// ────────────────────── 城市：忽略大小写的子串匹配任一 ──────────────────────

type locationFilter struct {
	values []string
}

func (locationFilter) Name() string { return "locations" }

func (f locationFilter) Match(job *model.Job) bool {
	city := strings.ToLower(job.LocationCity)
	for _, v := range f.values {
		if strings.Contains(city, strings.ToLower(v)) {
			return true
		}
	}
	return false
}

func (f locationFilter) Scope(db *gorm.DB) *gorm.DB {
	conds := make([]string, 0, len(f.values))
	args := make([]interface{}, 0, len(f.values))
	for _, v := range f.values {
		conds = append(conds, "location_city ILIKE ?")
		args = append(args, "%"+escapeLike(v)+"%")
	}
	return db.Where("("+strings.Join(conds, " OR ")+")", args...)
}

// ────────────────────── 薪资：职位最高薪资落在闭区间内 ──────────────────────

// salaryFilter 只比较职位的 salary_max；职位未填最高薪资时不匹配
type salaryFilter struct {
	min *float64
	max *float64
}

func (salaryFilter) Name() string { return "salary" }

func (f salaryFilter) Match(job *model.Job) bool {
	if job.SalaryMax == nil {
		return false
	}
	if f.min != nil && *job.SalaryMax < *f.min {
		return false
	}
	if f.max != nil && *job.SalaryMax > *f.max {
		return false
	}
	return true
}

func (f salaryFilter) Scope(db *gorm.DB) *gorm.DB {
	if f.min != nil {
		db = db.Where("salary_max >= ?", *f.min)
	}
	if f.max != nil {
		db = db.Where("salary_max <= ?", *f.max)
	}
	return db
}

// ────────────────────── 雇佣类型：精确匹配任一 ──────────────────────

type employmentTypeFilter struct {
	values []string
}

func (employmentTypeFilter) Name() string { return "employment_types" }

func (f employmentTypeFilter) Match(job *model.Job) bool {
	return contains(f.values, job.EmploymentType)
}

func (f employmentTypeFilter) Scope(db *gorm.DB) *gorm.DB {
	return db.Where("employment_type IN ?", f.values)
}

func contains(values []string, s string) bool {
	for _, v := range values {
		if v == s {
			return true
		}
	}
	return false
}

var likeEscaper = strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)

// escapeLike 转义 LIKE 通配符（PostgreSQL 默认转义符为反斜杠）
func escapeLike(s string) string {
	return likeEscaper.Replace(s)
}
