package service

import (
	"bytes"
	"context"
	"embed"
	"fmt"
	htmltemplate "html/template"
	"net/url"
	"strconv"
	"strings"
	texttemplate "text/template"

	"go.uber.org/zap"

	"zimpharmhub/backend/internal/model"
	"zimpharmhub/backend/pkg/mailer"
)

//go:embed templates/*.tmpl
var templateFS embed.FS

var (
	htmlTemplates = htmltemplate.Must(htmltemplate.ParseFS(templateFS, "templates/*.html.tmpl"))
	textTemplates = texttemplate.Must(texttemplate.ParseFS(templateFS, "templates/*.txt.tmpl"))
)

// AlertNotifier 提醒邮件组装与发送
// 两个方法都不向上返回错误：发送失败记录日志并返回 false
type AlertNotifier interface {
	SendInstantNotification(ctx context.Context, user *model.User, alert *model.JobAlert, jobs []model.Job) bool
	SendDigest(ctx context.Context, user *model.User, alert *model.JobAlert, jobs []model.Job) bool
}

type alertNotifier struct {
	sender      mailer.Sender
	frontendURL string
	maxJobs     int
	logger      *zap.Logger
}

// NewAlertNotifier 创建 AlertNotifier 实例
func NewAlertNotifier(sender mailer.Sender, frontendURL string, maxJobs int, logger *zap.Logger) AlertNotifier {
	return &alertNotifier{
		sender:      sender,
		frontendURL: strings.TrimRight(frontendURL, "/"),
		maxJobs:     maxJobs,
		logger:      logger,
	}
}

// emailJob 模板中的单个职位
type emailJob struct {
	Title          string
	Position       string
	PharmacyName   string
	Location       string
	EmploymentType string
	Salary         string
	URL            string
}

// emailData 模板数据
type emailData struct {
	Name         string
	AlertName    string
	Frequency    string
	Count        int
	Extra        int
	TotalMatches int
	Jobs         []emailJob
	JobsURL      string
	ManageURL    string
}

// ────────────────────── SendInstantNotification ──────────────────────

func (n *alertNotifier) SendInstantNotification(ctx context.Context, user *model.User, alert *model.JobAlert, jobs []model.Job) bool {
	if len(jobs) == 0 {
		return false
	}

	shown := jobs
	if n.maxJobs > 0 && len(shown) > n.maxJobs {
		shown = shown[:n.maxJobs]
	}

	data := n.baseData(user, alert)
	data.Count = len(jobs)
	data.Extra = len(jobs) - len(shown)
	data.Jobs = n.toEmailJobs(shown)

	subject := fmt.Sprintf("%d new job match", len(jobs))
	if len(jobs) > 1 {
		subject += "es"
	}
	subject += " for " + alertTitle(alert)

	return n.send(ctx, user, alert, "instant", subject, data)
}

// ────────────────────── SendDigest ──────────────────────

func (n *alertNotifier) SendDigest(ctx context.Context, user *model.User, alert *model.JobAlert, jobs []model.Job) bool {
	if len(jobs) == 0 {
		return false
	}

	data := n.baseData(user, alert)
	data.Count = len(jobs)
	data.TotalMatches = alert.TotalMatches
	data.Jobs = n.toEmailJobs(jobs)

	subject := fmt.Sprintf("Your %s job digest: %d job", alert.Frequency, len(jobs))
	if len(jobs) > 1 {
		subject += "s"
	}
	subject += " for " + alertTitle(alert)

	return n.send(ctx, user, alert, "digest", subject, data)
}

// ────────────────────── 内部方法 ──────────────────────

func (n *alertNotifier) send(ctx context.Context, user *model.User, alert *model.JobAlert, kind, subject string, data emailData) bool {
	var html, text bytes.Buffer
	if err := htmlTemplates.ExecuteTemplate(&html, kind+".html.tmpl", data); err != nil {
		n.logger.Error("渲染 HTML 邮件失败", zap.String("alert_id", alert.JobAlertID), zap.Error(err))
		return false
	}
	if err := textTemplates.ExecuteTemplate(&text, kind+".txt.tmpl", data); err != nil {
		n.logger.Error("渲染文本邮件失败", zap.String("alert_id", alert.JobAlertID), zap.Error(err))
		return false
	}

	messageID, err := n.sender.Send(ctx, user.Email, subject, text.String(), html.String())
	if err != nil {
		n.logger.Error("发送提醒邮件失败",
			zap.String("kind", kind),
			zap.String("alert_id", alert.JobAlertID),
			zap.String("to", user.Email),
			zap.Error(err),
		)
		return false
	}

	n.logger.Info("提醒邮件已发送",
		zap.String("kind", kind),
		zap.String("alert_id", alert.JobAlertID),
		zap.String("message_id", messageID),
		zap.Int("jobs", data.Count),
	)
	return true
}

func (n *alertNotifier) baseData(user *model.User, alert *model.JobAlert) emailData {
	return emailData{
		Name:      user.DisplayName(),
		AlertName: alertTitle(alert),
		Frequency: alert.Frequency,
		JobsURL:   n.frontendURL + "/jobs",
		ManageURL: n.frontendURL + "/job-alerts",
	}
}

func (n *alertNotifier) toEmailJobs(jobs []model.Job) []emailJob {
	out := make([]emailJob, 0, len(jobs))
	for i := range jobs {
		j := &jobs[i]
		out = append(out, emailJob{
			Title:          j.Title,
			Position:       j.Position,
			PharmacyName:   j.PharmacyName,
			Location:       formatLocation(j),
			EmploymentType: j.EmploymentType,
			Salary:         formatSalary(j),
			URL:            jobURL(n.frontendURL, j.JobID),
		})
	}
	return out
}

// alertTitle 未命名的提醒用职位条件代替
func alertTitle(alert *model.JobAlert) string {
	if alert.Name != "" {
		return alert.Name
	}
	if len(alert.Positions) > 0 {
		return strings.Join(alert.Positions, ", ")
	}
	return "your job alert"
}

func jobURL(frontendURL, jobID string) string {
	return frontendURL + "/jobs/" + url.PathEscape(jobID)
}

func formatLocation(j *model.Job) string {
	switch {
	case j.LocationCity != "" && j.LocationProvince != "":
		return j.LocationCity + ", " + j.LocationProvince
	case j.LocationCity != "":
		return j.LocationCity
	case j.LocationProvince != "":
		return j.LocationProvince
	default:
		return "Not specified"
	}
}

// formatSalary 无薪资信息时返回空串，模板据此省略该行
func formatSalary(j *model.Job) string {
	currency := j.SalaryCurrency
	if currency == "" {
		currency = "USD"
	}
	switch {
	case j.SalaryMin != nil && j.SalaryMax != nil:
		return fmt.Sprintf("%s %s - %s", currency, formatAmount(*j.SalaryMin), formatAmount(*j.SalaryMax))
	case j.SalaryMin != nil:
		return fmt.Sprintf("From %s %s", currency, formatAmount(*j.SalaryMin))
	case j.SalaryMax != nil:
		return fmt.Sprintf("Up to %s %s", currency, formatAmount(*j.SalaryMax))
	default:
		return ""
	}
}

func formatAmount(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}
