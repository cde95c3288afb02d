package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"
	"gorm.io/gorm"

	"zimpharmhub/backend/config"
	"zimpharmhub/backend/internal/dto"
	"zimpharmhub/backend/internal/model"
	"zimpharmhub/backend/internal/repository"
	pkgerrors "zimpharmhub/backend/pkg/errors"
)

// ── 批处理业务错误 ──

var (
	ErrInvalidFrequency = errors.New("提醒频率无效")
)

// AlertProcessor 提醒批处理（由外部定时任务或管理员触发）
//
// 每条提醒独立处理，单条失败只记入结果，不中断整批。
// 邮件先发送、状态后落库：落库失败时下次批处理会重发（至少一次投递）。
type AlertProcessor interface {
	// ProcessJobAlerts 发现新匹配；instant 立即发送，daily / weekly 记录待摘要
	ProcessJobAlerts(ctx context.Context, frequency string) (*dto.ProcessAlertsResult, error)
	// SendAlertDigests 对处于摘要窗口内的提醒发送待发送匹配
	SendAlertDigests(ctx context.Context, frequency string) (*dto.SendDigestsResult, error)
}

type alertProcessor struct {
	cfg      *config.AlertConfig
	loc      *time.Location
	repo     *repository.Repository
	matcher  JobMatcher
	notifier AlertNotifier
	locker   PassLocker
	now      func() time.Time
	logger   *zap.Logger
}

// NewAlertProcessor 创建 AlertProcessor 实例；locker 为 nil 时不做互斥
func NewAlertProcessor(
	cfg *config.AlertConfig,
	loc *time.Location,
	repo *repository.Repository,
	matcher JobMatcher,
	notifier AlertNotifier,
	locker PassLocker,
	logger *zap.Logger,
) AlertProcessor {
	return &alertProcessor{
		cfg:      cfg,
		loc:      loc,
		repo:     repo,
		matcher:  matcher,
		notifier: notifier,
		locker:   locker,
		now:      time.Now,
		logger:   logger,
	}
}

// ═══════════════════════════════════════════════════════════
// ProcessJobAlerts — 匹配批处理
// ═══════════════════════════════════════════════════════════

func (p *alertProcessor) ProcessJobAlerts(ctx context.Context, frequency string) (*dto.ProcessAlertsResult, error) {
	var frequencies []string
	switch frequency {
	case "":
		frequencies = []string{model.FrequencyInstant, model.FrequencyDaily, model.FrequencyWeekly}
	case model.FrequencyInstant, model.FrequencyDaily, model.FrequencyWeekly:
		frequencies = []string{frequency}
	default:
		return nil, ErrInvalidFrequency
	}

	release, err := p.acquire(ctx, "alert-pass:process", frequencies)
	if err != nil {
		return nil, err
	}
	defer release()

	var filter []string
	if frequency != "" {
		filter = frequencies
	}
	alerts, err := p.repo.JobAlert.ListActive(ctx, filter...)
	if err != nil {
		p.logger.Error("加载启用中的提醒失败", zap.String("frequency", frequency), zap.Error(err))
		return nil, fmt.Errorf("加载提醒失败: %w", err)
	}

	result := &dto.ProcessAlertsResult{
		Frequency: frequency,
		Outcomes:  make([]dto.AlertOutcome, 0, len(alerts)),
	}

	for i := range alerts {
		if err := ctx.Err(); err != nil {
			p.logger.Warn("匹配批处理被取消", zap.Int("remaining", len(alerts)-i))
			return result, err
		}

		outcome, emailed := p.processAlert(ctx, &alerts[i])
		result.Outcomes = append(result.Outcomes, outcome)
		if emailed {
			result.NotificationsSent++
		}

		switch outcome.Status {
		case dto.OutcomeNotified, dto.OutcomeQueued:
			result.Processed++
		case dto.OutcomeFailed:
			result.Errors++
			p.logger.Warn("提醒处理失败",
				zap.String("alert_id", outcome.AlertID),
				zap.String("reason", outcome.Reason),
				zap.String("error", outcome.Error),
			)
		}
	}

	p.logger.Info("匹配批处理完成",
		zap.String("frequency", frequency),
		zap.Int("total", result.Total),
		zap.Int("processed", result.Processed),
		zap.Int("notifications_sent", result.NotificationsSent),
		zap.Int("errors", result.Errors),
	)
	return result, nil
}

// processAlert 处理单条提醒；emailed 表示即时邮件是否已发出（与落库结果无关）
func (p *alertProcessor) processAlert(ctx context.Context, alert *model.JobAlert) (outcome dto.AlertOutcome, emailed bool) {
	outcome = dto.AlertOutcome{AlertID: alert.JobAlertID, UserID: alert.UserID}
	defer func() {
		if r := recover(); r != nil {
			p.logger.Error("提醒处理 panic", zap.String("alert_id", alert.JobAlertID), zap.Any("panic", r))
			outcome.Status = dto.OutcomeFailed
			outcome.Reason = dto.ReasonPanic
			outcome.Error = fmt.Sprint(r)
		}
	}()

	// 1. 已停用的提醒跳过
	if !alert.IsActive {
		outcome.Status = dto.OutcomeInactive
		return outcome, false
	}

	// 2. 收件人
	user, failed := p.resolveUser(ctx, alert, &outcome)
	if failed {
		return outcome, false
	}

	// 3. 当前匹配
	jobs, err := p.matcher.FindMatchingJobs(ctx, alert, 0)
	if err != nil {
		return failOutcome(outcome, dto.ReasonMatchingFailed, err), false
	}

	// 4. 与已记录的匹配做差集
	seen := make(map[string]struct{}, len(alert.Matches))
	for _, m := range alert.Matches {
		seen[m.JobID] = struct{}{}
	}
	var newJobs []model.Job
	for _, job := range jobs {
		if _, ok := seen[job.JobID]; ok {
			continue
		}
		seen[job.JobID] = struct{}{}
		newJobs = append(newJobs, job)
	}
	outcome.NewMatches = len(newJobs)

	// 5. 无新匹配，不修改状态
	if len(newJobs) == 0 {
		outcome.Status = dto.OutcomeNoNewMatches
		return outcome, false
	}

	// 6. 即时提醒先发送，失败则整条放弃
	instant := alert.Frequency == model.FrequencyInstant
	if instant {
		if !p.notifier.SendInstantNotification(ctx, user, alert, newJobs) {
			return failOutcome(outcome, dto.ReasonMailFailed, nil), false
		}
		emailed = true
	}

	// 7. 在副本上更新计数，落库成功后再写回
	now := p.now()
	newMatches := make([]model.JobAlertMatch, 0, len(newJobs))
	for _, job := range newJobs {
		m := model.JobAlertMatch{
			JobAlertID:       alert.JobAlertID,
			JobID:            job.JobID,
			MatchedAt:        now,
			NotificationSent: instant,
		}
		if instant {
			sentAt := now
			m.SentAt = &sentAt
		}
		newMatches = append(newMatches, m)
	}

	updated := *alert
	updated.LastJobMatched = &now
	if instant {
		updated.TotalNotificationsSent += len(newJobs)
	}

	// 8. 落库
	if err := p.repo.JobAlert.SaveMatches(ctx, &updated, newMatches); err != nil {
		if emailed {
			p.logger.Warn("即时邮件已发送但记录失败，下次批处理将重发",
				zap.String("alert_id", alert.JobAlertID), zap.Error(err))
		}
		return failOutcome(outcome, dto.ReasonPersistFailed, err), emailed
	}
	// SaveMatches 已按库中记录刷新 Matches 与 TotalMatches
	*alert = updated

	if instant {
		outcome.Status = dto.OutcomeNotified
		outcome.JobsSent = len(newJobs)
	} else {
		outcome.Status = dto.OutcomeQueued
	}
	return outcome, emailed
}

// ═══════════════════════════════════════════════════════════
// SendAlertDigests — 摘要批处理
// ═══════════════════════════════════════════════════════════

func (p *alertProcessor) SendAlertDigests(ctx context.Context, frequency string) (*dto.SendDigestsResult, error) {
	var frequencies []string
	switch frequency {
	case "":
		frequencies = []string{model.FrequencyDaily, model.FrequencyWeekly}
	case model.FrequencyDaily, model.FrequencyWeekly:
		frequencies = []string{frequency}
	default:
		return nil, ErrInvalidFrequency
	}

	release, err := p.acquire(ctx, "alert-pass:digest", frequencies)
	if err != nil {
		return nil, err
	}
	defer release()

	alerts, err := p.repo.JobAlert.ListActive(ctx, frequencies...)
	if err != nil {
		p.logger.Error("加载摘要提醒失败", zap.String("frequency", frequency), zap.Error(err))
		return nil, fmt.Errorf("加载提醒失败: %w", err)
	}

	now := p.now().In(p.loc)
	window := p.cfg.DigestWindow()

	result := &dto.SendDigestsResult{
		Frequency: frequency,
		Outcomes:  make([]dto.AlertOutcome, 0, len(alerts)),
	}

	for i := range alerts {
		if err := ctx.Err(); err != nil {
			p.logger.Warn("摘要批处理被取消", zap.Int("remaining", len(alerts)-i))
			return result, err
		}

		outcome := p.digestAlert(ctx, &alerts[i], now, window)
		result.Outcomes = append(result.Outcomes, outcome)

		// total 只统计实际尝试发送摘要的提醒
		switch outcome.Status {
		case dto.OutcomeDigestSent:
			result.Total++
			result.Sent++
		case dto.OutcomeFailed:
			result.Total++
			result.Failed++
			p.logger.Warn("摘要发送失败",
				zap.String("alert_id", outcome.AlertID),
				zap.String("reason", outcome.Reason),
				zap.String("error", outcome.Error),
			)
		}
	}

	p.logger.Info("摘要批处理完成",
		zap.String("frequency", frequency),
		zap.Time("local_time", now),
		zap.Int("total", result.Total),
		zap.Int("sent", result.Sent),
		zap.Int("failed", result.Failed),
	)
	return result, nil
}

func (p *alertProcessor) digestAlert(ctx context.Context, alert *model.JobAlert, now time.Time, window time.Duration) (outcome dto.AlertOutcome) {
	outcome = dto.AlertOutcome{AlertID: alert.JobAlertID, UserID: alert.UserID}
	defer func() {
		if r := recover(); r != nil {
			p.logger.Error("摘要处理 panic", zap.String("alert_id", alert.JobAlertID), zap.Any("panic", r))
			outcome.Status = dto.OutcomeFailed
			outcome.Reason = dto.ReasonPanic
			outcome.Error = fmt.Sprint(r)
		}
	}()

	if !alert.IsActive {
		outcome.Status = dto.OutcomeInactive
		return outcome
	}
	if !ShouldSendDigest(alert, now, window) {
		outcome.Status = dto.OutcomeNotDue
		return outcome
	}

	// 1-2. 待发送匹配
	pending := alert.PendingMatches()
	if len(pending) == 0 {
		outcome.Status = dto.OutcomeNothingPending
		return outcome
	}

	user, failed := p.resolveUser(ctx, alert, &outcome)
	if failed {
		return outcome
	}

	// 3. 加载职位，保持记录顺序；已删除的职位不列入本次摘要
	ids := make([]string, 0, len(pending))
	for _, m := range pending {
		ids = append(ids, m.JobID)
	}
	found, err := p.repo.Job.ListByIDs(ctx, ids)
	if err != nil {
		return failOutcome(outcome, dto.ReasonJobLookupFailed, err)
	}
	byID := make(map[string]model.Job, len(found))
	for _, job := range found {
		byID[job.JobID] = job
	}

	jobs := make([]model.Job, 0, len(pending))
	included := make(map[string]struct{}, len(pending))
	var matchIDs []string
	for _, m := range pending {
		job, ok := byID[m.JobID]
		if !ok {
			continue
		}
		jobs = append(jobs, job)
		included[m.JobAlertMatchID] = struct{}{}
		matchIDs = append(matchIDs, m.JobAlertMatchID)
	}
	if len(jobs) == 0 {
		outcome.Status = dto.OutcomeNothingPending
		return outcome
	}

	// 4. 发送，失败时不修改任何状态
	if !p.notifier.SendDigest(ctx, user, alert, jobs) {
		return failOutcome(outcome, dto.ReasonMailFailed, nil)
	}

	// 5. 标记已发送
	sentAt := p.now()
	updated := *alert
	updated.Matches = make([]model.JobAlertMatch, len(alert.Matches))
	copy(updated.Matches, alert.Matches)
	for i := range updated.Matches {
		if _, ok := included[updated.Matches[i].JobAlertMatchID]; ok {
			updated.Matches[i].NotificationSent = true
			ts := sentAt
			updated.Matches[i].SentAt = &ts
		}
	}
	updated.LastDigestSent = &sentAt
	updated.TotalNotificationsSent += len(jobs)

	if err := p.repo.JobAlert.MarkMatchesSent(ctx, &updated, matchIDs, sentAt); err != nil {
		p.logger.Warn("摘要已发送但标记失败，下次窗口内将重发",
			zap.String("alert_id", alert.JobAlertID), zap.Error(err))
		return failOutcome(outcome, dto.ReasonPersistFailed, err)
	}
	*alert = updated

	outcome.Status = dto.OutcomeDigestSent
	outcome.JobsSent = len(jobs)
	return outcome
}

// ────────────────────── 内部方法 ──────────────────────

// resolveUser 查询提醒所属用户；失败时写入 outcome 并返回 failed=true
func (p *alertProcessor) resolveUser(ctx context.Context, alert *model.JobAlert, outcome *dto.AlertOutcome) (*model.User, bool) {
	user, err := p.repo.User.GetByID(ctx, alert.UserID)
	if err != nil {
		reason := dto.ReasonUserLookup
		if errors.Is(err, gorm.ErrRecordNotFound) {
			reason = dto.ReasonUserNotFound
		}
		*outcome = failOutcome(*outcome, reason, err)
		return nil, true
	}
	if user == nil {
		*outcome = failOutcome(*outcome, dto.ReasonUserNotFound, nil)
		return nil, true
	}
	if user.Email == "" {
		*outcome = failOutcome(*outcome, dto.ReasonUserEmailEmpty, nil)
		return nil, true
	}
	return user, false
}

// acquire 按频率逐个加锁，任一被占用则释放已获取的锁并返回 ErrPassInProgress
func (p *alertProcessor) acquire(ctx context.Context, prefix string, frequencies []string) (func(), error) {
	if p.locker == nil {
		return func() {}, nil
	}

	var releases []func()
	releaseAll := func() {
		for i := len(releases) - 1; i >= 0; i-- {
			releases[i]()
		}
	}

	for _, f := range frequencies {
		key := prefix + ":" + f
		release, ok, err := p.locker.TryLock(ctx, key, p.cfg.PassLockTTL)
		if err != nil {
			// Redis 不可用时按无锁模式继续
			p.logger.Warn("获取批处理锁失败，跳过互斥", zap.String("key", key), zap.Error(err))
			continue
		}
		if !ok {
			releaseAll()
			p.logger.Info("同类批处理正在执行，本次跳过", zap.String("key", key))
			return nil, pkgerrors.ErrPassInProgress
		}
		releases = append(releases, release)
	}
	return releaseAll, nil
}

func failOutcome(o dto.AlertOutcome, reason string, err error) dto.AlertOutcome {
	o.Status = dto.OutcomeFailed
	o.Reason = reason
	if err != nil {
		o.Error = err.Error()
	}
	return o
}
