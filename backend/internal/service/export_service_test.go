package service

import (
	"context"
	"testing"
	"time"

	"github.com/xuri/excelize/v2"
	"go.uber.org/zap"

	"zimpharmhub/backend/internal/model"
)

func TestExportService_ExportAlertStats(t *testing.T) {
	env := newTestEnv()
	user := env.users.add(&model.User{UserID: "u1", Email: "u1@example.com"})

	matched := time.Date(2026, 1, 5, 7, 0, 0, 0, time.UTC)
	env.addAlert(&model.JobAlert{
		UserID:         "u1",
		User:           user,
		Name:           "Weekly locum",
		Positions:      []string{"Pharmacist", "Locum Pharmacist"},
		Locations:      []string{"Harare"},
		SalaryMin:      f64(1000),
		Frequency:      model.FrequencyWeekly,
		DigestDay:      "Friday",
		DigestTime:     "17:00",
		TotalMatches:   3,
		LastJobMatched: &matched,
		Matches: []model.JobAlertMatch{
			{JobID: "j1", NotificationSent: true},
			{JobID: "j2"},
			{JobID: "j3"},
		},
	})
	env.addAlert(&model.JobAlert{UserID: "u2", Name: "instant"})

	svc := NewExportService(env.repo, harare(), zap.NewNop()).(*exportService)
	svc.now = func() time.Time { return env.now }

	buf, filename, err := svc.ExportAlertStats(context.Background())
	if err != nil {
		t.Fatalf("导出失败: %v", err)
	}
	if filename != "job_alerts_20260105_0905.xlsx" {
		t.Errorf("文件名不符: %s", filename)
	}

	f, err := excelize.OpenReader(buf)
	if err != nil {
		t.Fatalf("读取导出文件失败: %v", err)
	}
	defer f.Close()

	rows, err := f.GetRows("提醒统计")
	if err != nil {
		t.Fatalf("读取工作表失败: %v", err)
	}
	if len(rows) != 3 {
		t.Fatalf("期望 1 行表头 + 2 行数据，实际 %d", len(rows))
	}
	if rows[0][0] != "提醒 ID" || len(rows[0]) != len(alertStatsHeader) {
		t.Errorf("表头不符: %v", rows[0])
	}

	first := rows[1]
	checks := map[int]string{
		1:  "u1@example.com",
		3:  "Pharmacist, Locum Pharmacist",
		5:  "≥ 1000",
		8:  "Friday 17:00",
		9:  "是",
		10: "3",
		11: "2",
		13: "2026-01-05 09:00",
		14: "-",
	}
	for col, want := range checks {
		if first[col] != want {
			t.Errorf("第 %d 列期望 %q，实际 %q", col, want, first[col])
		}
	}

	if rows[2][1] != "" || rows[2][8] != "-" {
		t.Errorf("无用户的即时提醒行不符: %v", rows[2])
	}
}

func TestFormatSalaryRange(t *testing.T) {
	tests := []struct {
		min, max *float64
		want     string
	}{
		{f64(500), f64(1500.5), "500 - 1500.5"},
		{nil, f64(900), "≤ 900"},
		{nil, nil, "-"},
	}
	for _, tt := range tests {
		if got := formatSalaryRange(tt.min, tt.max); got != tt.want {
			t.Errorf("期望 %q，实际 %q", tt.want, got)
		}
	}
}
