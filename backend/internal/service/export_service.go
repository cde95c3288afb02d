package service

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/xuri/excelize/v2"
	"go.uber.org/zap"

	"zimpharmhub/backend/internal/model"
	"zimpharmhub/backend/internal/repository"
)

// ── 导出模块业务错误 ──

var (
	ErrExportGenerateFail = errors.New("生成 Excel 文件失败")
)

// ExportService 导出业务接口
//
// 导出以 bytes.Buffer 返回，由 Handler 层设置响应头后写出。
// 每条提醒一行：条件、投递配置与累计统计。
type ExportService interface {
	ExportAlertStats(ctx context.Context) (*bytes.Buffer, string, error)
}

type exportService struct {
	repo   *repository.Repository
	loc    *time.Location
	now    func() time.Time
	logger *zap.Logger
}

// NewExportService 创建 ExportService 实例
func NewExportService(repo *repository.Repository, loc *time.Location, logger *zap.Logger) ExportService {
	return &exportService{repo: repo, loc: loc, now: time.Now, logger: logger}
}

var alertStatsHeader = []string{
	"提醒 ID", "用户邮箱", "名称", "职位", "城市", "薪资区间", "雇佣类型",
	"频率", "摘要时间", "启用", "累计匹配", "待发送", "累计通知", "最近匹配", "最近摘要",
}

func (s *exportService) ExportAlertStats(ctx context.Context) (*bytes.Buffer, string, error) {
	alerts, err := s.repo.JobAlert.ListAll(ctx)
	if err != nil {
		s.logger.Error("查询职位提醒失败", zap.Error(err))
		return nil, "", err
	}

	f := excelize.NewFile()
	defer f.Close()

	sheetName := "提醒统计"
	idx, _ := f.NewSheet(sheetName)
	f.SetActiveSheet(idx)
	f.DeleteSheet("Sheet1")

	headerStyle, _ := f.NewStyle(&excelize.Style{
		Font:      &excelize.Font{Bold: true, Size: 11, Color: "#FFFFFF"},
		Fill:      excelize.Fill{Type: "pattern", Color: []string{"#0F766E"}, Pattern: 1},
		Alignment: &excelize.Alignment{Horizontal: "center", Vertical: "center"},
	})

	for i, title := range alertStatsHeader {
		f.SetCellValue(sheetName, cell(colName(i), 1), title)
	}
	f.SetCellStyle(sheetName, "A1", cell(colName(len(alertStatsHeader)-1), 1), headerStyle)
	f.SetColWidth(sheetName, "A", "B", 36)
	f.SetColWidth(sheetName, "C", colName(len(alertStatsHeader)-1), 16)

	// 冻结表头
	f.SetPanes(sheetName, &excelize.Panes{Freeze: true, YSplit: 1, TopLeftCell: "A2", ActivePane: "bottomLeft"})

	row := 2
	for i := range alerts {
		a := &alerts[i]
		email := ""
		if a.User != nil {
			email = a.User.Email
		}
		digest := "-"
		switch a.Frequency {
		case model.FrequencyDaily:
			digest = a.DigestTime
		case model.FrequencyWeekly:
			digest = a.DigestDay + " " + a.DigestTime
		}

		values := []interface{}{
			a.JobAlertID,
			email,
			a.Name,
			strings.Join(a.Positions, ", "),
			strings.Join(a.Locations, ", "),
			formatSalaryRange(a.SalaryMin, a.SalaryMax),
			strings.Join(a.EmploymentTypes, ", "),
			a.Frequency,
			digest,
			yesNo(a.IsActive),
			a.TotalMatches,
			len(a.PendingMatches()),
			a.TotalNotificationsSent,
			s.formatLocal(a.LastJobMatched),
			s.formatLocal(a.LastDigestSent),
		}
		for c, v := range values {
			f.SetCellValue(sheetName, cell(colName(c), row), v)
		}
		row++
	}

	buf := new(bytes.Buffer)
	if err := f.Write(buf); err != nil {
		s.logger.Error("写入 Excel 失败", zap.Error(err))
		return nil, "", ErrExportGenerateFail
	}

	filename := fmt.Sprintf("job_alerts_%s.xlsx", s.now().In(s.loc).Format("20060102_1504"))
	return buf, filename, nil
}

func (s *exportService) formatLocal(t *time.Time) string {
	if t == nil {
		return "-"
	}
	return t.In(s.loc).Format("2006-01-02 15:04")
}

func formatSalaryRange(min, max *float64) string {
	switch {
	case min != nil && max != nil:
		return formatAmount(*min) + " - " + formatAmount(*max)
	case min != nil:
		return "≥ " + formatAmount(*min)
	case max != nil:
		return "≤ " + formatAmount(*max)
	default:
		return "-"
	}
}

func yesNo(b bool) string {
	if b {
		return "是"
	}
	return "否"
}

// colName 0-based 列号转 Excel 列名
func colName(i int) string {
	name, _ := excelize.ColumnNumberToName(i + 1)
	return name
}

func cell(col string, row int) string {
	return fmt.Sprintf("%s%d", col, row)
}
