package service

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/lib/pq"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"zimpharmhub/backend/config"
	"zimpharmhub/backend/internal/matching"
	"zimpharmhub/backend/internal/model"
	"zimpharmhub/backend/internal/repository"
	pkgerrors "zimpharmhub/backend/pkg/errors"
)

// ── Mock UserRepository ──

type mockUserRepo struct {
	users map[string]*model.User
	errs  map[string]error // 按 user_id 注入查询错误
}

func newMockUserRepo() *mockUserRepo {
	return &mockUserRepo{users: make(map[string]*model.User), errs: make(map[string]error)}
}

func (m *mockUserRepo) add(u *model.User) *model.User {
	m.users[u.UserID] = u
	return u
}

func (m *mockUserRepo) GetByID(_ context.Context, id string) (*model.User, error) {
	if err, ok := m.errs[id]; ok {
		return nil, err
	}
	if u, ok := m.users[id]; ok {
		return u, nil
	}
	return nil, gorm.ErrRecordNotFound
}

func (m *mockUserRepo) GetByEmail(_ context.Context, email string) (*model.User, error) {
	for _, u := range m.users {
		if strings.EqualFold(u.Email, email) {
			return u, nil
		}
	}
	return nil, gorm.ErrRecordNotFound
}

// ── Mock JobRepository ──

// mockJobRepo 用 matching.Criteria 的内存判定模拟数据库查询
type mockJobRepo struct {
	jobs    []model.Job
	findErr error
	listErr error
}

func newMockJobRepo() *mockJobRepo {
	return &mockJobRepo{}
}

func (m *mockJobRepo) add(j model.Job) model.Job {
	if j.Status == "" {
		j.Status = model.JobStatusActive
	}
	if j.CreatedAt.IsZero() {
		j.CreatedAt = time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC).Add(time.Duration(len(m.jobs)) * time.Hour)
	}
	m.jobs = append(m.jobs, j)
	return j
}

func (m *mockJobRepo) FindMatching(_ context.Context, criteria matching.Criteria, limit int) ([]model.Job, error) {
	if m.findErr != nil {
		return nil, m.findErr
	}
	var out []model.Job
	for i := range m.jobs {
		if criteria.Match(&m.jobs[i]) {
			out = append(out, m.jobs[i])
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (m *mockJobRepo) ListByIDs(_ context.Context, ids []string) ([]model.Job, error) {
	if m.listErr != nil {
		return nil, m.listErr
	}
	want := make(map[string]bool, len(ids))
	for _, id := range ids {
		want[id] = true
	}
	// 倒序返回，模拟数据库不保证 IN 查询的顺序
	var out []model.Job
	for i := len(m.jobs) - 1; i >= 0; i-- {
		if want[m.jobs[i].JobID] {
			out = append(out, m.jobs[i])
		}
	}
	return out, nil
}

// ── Mock JobAlertRepository ──

// mockJobAlertRepo 保存深拷贝，模拟“落库”后的状态
type mockJobAlertRepo struct {
	alerts    map[string]*model.JobAlert
	order     []string
	seq       int
	matchSeq  int
	listErr   error
	saveErr   error
	markErr   error
	saveCalls int
	markCalls int
}

func newMockJobAlertRepo() *mockJobAlertRepo {
	return &mockJobAlertRepo{alerts: make(map[string]*model.JobAlert)}
}

func cloneAlert(a *model.JobAlert) *model.JobAlert {
	c := *a
	c.Positions = append(pq.StringArray(nil), a.Positions...)
	c.Locations = append(pq.StringArray(nil), a.Locations...)
	c.EmploymentTypes = append(pq.StringArray(nil), a.EmploymentTypes...)
	c.Matches = append([]model.JobAlertMatch(nil), a.Matches...)
	return &c
}

// stored 返回已落库状态（测试断言用）
func (m *mockJobAlertRepo) stored(id string) *model.JobAlert {
	return m.alerts[id]
}

func (m *mockJobAlertRepo) Create(_ context.Context, alert *model.JobAlert) error {
	m.seq++
	if alert.JobAlertID == "" {
		alert.JobAlertID = fmt.Sprintf("alert-%d", m.seq)
	}
	if alert.Version == 0 {
		alert.Version = 1
	}
	for i := range alert.Matches {
		if alert.Matches[i].JobAlertMatchID == "" {
			m.matchSeq++
			alert.Matches[i].JobAlertMatchID = fmt.Sprintf("match-%d", m.matchSeq)
		}
	}
	m.alerts[alert.JobAlertID] = cloneAlert(alert)
	m.order = append(m.order, alert.JobAlertID)
	return nil
}

func (m *mockJobAlertRepo) GetByID(_ context.Context, id string) (*model.JobAlert, error) {
	if a, ok := m.alerts[id]; ok {
		return cloneAlert(a), nil
	}
	return nil, gorm.ErrRecordNotFound
}

func (m *mockJobAlertRepo) ListByUser(_ context.Context, userID string, offset, limit int) ([]model.JobAlert, int64, error) {
	var all []model.JobAlert
	for _, id := range m.order {
		if a, ok := m.alerts[id]; ok && a.UserID == userID {
			all = append(all, *cloneAlert(a))
		}
	}
	total := int64(len(all))
	if offset >= len(all) {
		return nil, total, nil
	}
	end := offset + limit
	if end > len(all) {
		end = len(all)
	}
	return all[offset:end], total, nil
}

func (m *mockJobAlertRepo) ListActive(_ context.Context, frequencies ...string) ([]model.JobAlert, error) {
	if m.listErr != nil {
		return nil, m.listErr
	}
	var out []model.JobAlert
	for _, id := range m.order {
		a, ok := m.alerts[id]
		if !ok || !a.IsActive {
			continue
		}
		if len(frequencies) > 0 && !containsString(frequencies, a.Frequency) {
			continue
		}
		out = append(out, *cloneAlert(a))
	}
	return out, nil
}

func (m *mockJobAlertRepo) ListAll(_ context.Context) ([]model.JobAlert, error) {
	var out []model.JobAlert
	for _, id := range m.order {
		if a, ok := m.alerts[id]; ok {
			out = append(out, *cloneAlert(a))
		}
	}
	return out, nil
}

func (m *mockJobAlertRepo) Update(_ context.Context, alert *model.JobAlert) error {
	cur, ok := m.alerts[alert.JobAlertID]
	if !ok || cur.Version != alert.Version {
		return pkgerrors.ErrOptimisticLock
	}
	alert.Version++
	next := cloneAlert(alert)
	next.Matches = cur.Matches
	m.alerts[alert.JobAlertID] = next
	return nil
}

func (m *mockJobAlertRepo) Delete(_ context.Context, id string) error {
	delete(m.alerts, id)
	return nil
}

func (m *mockJobAlertRepo) ListMatches(_ context.Context, alertID string) ([]model.JobAlertMatch, error) {
	if a, ok := m.alerts[alertID]; ok {
		return append([]model.JobAlertMatch(nil), a.Matches...), nil
	}
	return nil, nil
}

func (m *mockJobAlertRepo) SaveMatches(_ context.Context, alert *model.JobAlert, matches []model.JobAlertMatch) error {
	m.saveCalls++
	if m.saveErr != nil {
		return m.saveErr
	}
	cur, ok := m.alerts[alert.JobAlertID]
	if !ok || cur.Version != alert.Version {
		return pkgerrors.ErrOptimisticLock
	}

	next := cloneAlert(alert)
	next.Matches = append([]model.JobAlertMatch(nil), cur.Matches...)
	for _, match := range matches {
		if cur.HasMatched(match.JobID) {
			continue // 唯一约束
		}
		m.matchSeq++
		match.JobAlertMatchID = fmt.Sprintf("match-%d", m.matchSeq)
		match.JobAlertID = alert.JobAlertID
		next.Matches = append(next.Matches, match)
	}
	next.TotalMatches = len(next.Matches)
	next.Version = alert.Version + 1
	m.alerts[alert.JobAlertID] = next

	alert.Matches = append([]model.JobAlertMatch(nil), next.Matches...)
	alert.TotalMatches = next.TotalMatches
	alert.Version = next.Version
	return nil
}

func (m *mockJobAlertRepo) MarkMatchesSent(_ context.Context, alert *model.JobAlert, matchIDs []string, sentAt time.Time) error {
	m.markCalls++
	if m.markErr != nil {
		return m.markErr
	}
	cur, ok := m.alerts[alert.JobAlertID]
	if !ok || cur.Version != alert.Version {
		return pkgerrors.ErrOptimisticLock
	}

	next := cloneAlert(alert)
	next.Matches = append([]model.JobAlertMatch(nil), cur.Matches...)
	for i := range next.Matches {
		if containsString(matchIDs, next.Matches[i].JobAlertMatchID) {
			next.Matches[i].NotificationSent = true
			ts := sentAt
			next.Matches[i].SentAt = &ts
		}
	}
	next.Version = alert.Version + 1
	m.alerts[alert.JobAlertID] = next

	alert.Version = next.Version
	return nil
}

func containsString(values []string, s string) bool {
	for _, v := range values {
		if v == s {
			return true
		}
	}
	return false
}

// ── Fake 邮件发送 ──

type sentMail struct {
	to, subject, text, html string
}

type fakeSender struct {
	mu     sync.Mutex
	sent   []sentMail
	err    error
	failTo map[string]bool
}

func newFakeSender() *fakeSender {
	return &fakeSender{failTo: make(map[string]bool)}
}

func (f *fakeSender) Send(_ context.Context, to, subject, text, html string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return "", f.err
	}
	if f.failTo[to] {
		return "", fmt.Errorf("smtp: mailbox unavailable %s", to)
	}
	f.sent = append(f.sent, sentMail{to: to, subject: subject, text: text, html: html})
	return fmt.Sprintf("<msg-%d@test>", len(f.sent)), nil
}

func (f *fakeSender) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.sent)
}

// ── Fake 锁 / 黑名单 ──

type fakeLocker struct {
	mu   sync.Mutex
	held map[string]bool
	err  error
}

func newFakeLocker() *fakeLocker {
	return &fakeLocker{held: make(map[string]bool)}
}

func (l *fakeLocker) TryLock(_ context.Context, key string, _ time.Duration) (func(), bool, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.err != nil {
		return nil, false, l.err
	}
	if l.held[key] {
		return nil, false, nil
	}
	l.held[key] = true
	return func() {
		l.mu.Lock()
		defer l.mu.Unlock()
		delete(l.held, key)
	}, true, nil
}

type fakeBlacklist struct {
	tokens map[string]time.Duration
}

func newFakeBlacklist() *fakeBlacklist {
	return &fakeBlacklist{tokens: make(map[string]time.Duration)}
}

func (b *fakeBlacklist) BlacklistToken(_ context.Context, jti string, ttl time.Duration) error {
	if ttl > 0 {
		b.tokens[jti] = ttl
	}
	return nil
}

func (b *fakeBlacklist) IsBlacklisted(_ context.Context, jti string) (bool, error) {
	_, ok := b.tokens[jti]
	return ok, nil
}

// ── 测试辅助 ──

func testConfig() *config.Config {
	return &config.Config{
		Server: config.ServerConfig{Port: 8080, FrontendURL: "https://zimpharmhub.test/"},
		Auth:   config.AuthConfig{JWTSecret: "test-secret-at-least-16", AccessTokenTTL: time.Hour},
		Alert: config.AlertConfig{
			Timezone:            "Africa/Harare",
			DigestWindowMinutes: 10,
			InstantMaxJobs:      10,
			DefaultDigestTime:   "09:00",
			DefaultDigestDay:    "Monday",
			PassLockTTL:         time.Minute,
		},
	}
}

func harare() *time.Location {
	loc, err := time.LoadLocation("Africa/Harare")
	if err != nil {
		panic(err)
	}
	return loc
}

type testEnv struct {
	cfg       *config.Config
	users     *mockUserRepo
	jobs      *mockJobRepo
	alerts    *mockJobAlertRepo
	repo      *repository.Repository
	sender    *fakeSender
	locker    *fakeLocker
	processor *alertProcessor
	now       time.Time
}

func newTestEnv() *testEnv {
	env := &testEnv{
		cfg:    testConfig(),
		users:  newMockUserRepo(),
		jobs:   newMockJobRepo(),
		alerts: newMockJobAlertRepo(),
		sender: newFakeSender(),
		locker: newFakeLocker(),
		// 2026-01-05 是星期一
		now: time.Date(2026, 1, 5, 9, 5, 0, 0, harare()),
	}
	env.repo = &repository.Repository{User: env.users, Job: env.jobs, JobAlert: env.alerts}

	logger := zap.NewNop()
	matcher := NewJobMatcher(env.repo, logger)
	notifier := NewAlertNotifier(env.sender, env.cfg.Server.FrontendURL, env.cfg.Alert.InstantMaxJobs, logger)
	p := NewAlertProcessor(&env.cfg.Alert, harare(), env.repo, matcher, notifier, env.locker, logger).(*alertProcessor)
	p.now = func() time.Time { return env.now }
	env.processor = p
	return env
}

func (e *testEnv) addAlert(a *model.JobAlert) *model.JobAlert {
	if a.Frequency == "" {
		a.Frequency = model.FrequencyInstant
	}
	if a.DigestTime == "" {
		a.DigestTime = "09:00"
	}
	if a.DigestDay == "" {
		a.DigestDay = "Monday"
	}
	a.IsActive = true
	_ = e.alerts.Create(context.Background(), a)
	return a
}
