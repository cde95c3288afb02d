package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gin-gonic/gin/binding"
	"github.com/go-playground/validator/v10"

	"zimpharmhub/backend/internal/dto"
	"zimpharmhub/backend/internal/service"
	pkgerrors "zimpharmhub/backend/pkg/errors"
	"zimpharmhub/backend/pkg/response"
)

func init() {
	gin.SetMode(gin.TestMode)
	if v, ok := binding.Validator.Engine().(*validator.Validate); ok {
		_ = dto.RegisterValidators(v)
	}
}

// ═══════════════════════════════════════════════════════════
// Mock Services
// ═══════════════════════════════════════════════════════════

// ── Mock AuthService ──

type mockAuthService struct {
	loginResult *dto.TokenResponse
	loginErr    error
	logoutErr   error
	logoutJTI   string
	meResult    *dto.UserResponse
	meErr       error
}

func (m *mockAuthService) Login(_ context.Context, _ *dto.LoginRequest) (*dto.TokenResponse, error) {
	return m.loginResult, m.loginErr
}
func (m *mockAuthService) Logout(_ context.Context, jti string, _ time.Time) error {
	m.logoutJTI = jti
	return m.logoutErr
}
func (m *mockAuthService) Me(_ context.Context, _ string) (*dto.UserResponse, error) {
	return m.meResult, m.meErr
}

// ── Mock JobAlertService ──

type mockJobAlertService struct {
	alert      *dto.JobAlertResponse
	list       []dto.JobAlertResponse
	total      int64
	matches    []dto.JobAlertMatchResponse
	preview    []dto.JobSummary
	err        error
	lastCaller string
	lastRole   string
	lastLimit  int
	lastActive *bool
}

func (m *mockJobAlertService) Create(_ context.Context, _ *dto.CreateJobAlertRequest, callerID string) (*dto.JobAlertResponse, error) {
	m.lastCaller = callerID
	return m.alert, m.err
}
func (m *mockJobAlertService) GetByID(_ context.Context, _, callerID, callerRole string) (*dto.JobAlertResponse, error) {
	m.lastCaller, m.lastRole = callerID, callerRole
	return m.alert, m.err
}
func (m *mockJobAlertService) List(_ context.Context, _ *dto.JobAlertListRequest, _ string) ([]dto.JobAlertResponse, int64, error) {
	return m.list, m.total, m.err
}
func (m *mockJobAlertService) Update(_ context.Context, _ string, _ *dto.UpdateJobAlertRequest, _ string) (*dto.JobAlertResponse, error) {
	return m.alert, m.err
}
func (m *mockJobAlertService) Toggle(_ context.Context, _ string, active bool, _ string) (*dto.JobAlertResponse, error) {
	m.lastActive = &active
	return m.alert, m.err
}
func (m *mockJobAlertService) Delete(_ context.Context, _, _ string) error {
	return m.err
}
func (m *mockJobAlertService) ListMatches(_ context.Context, _, _, _ string) ([]dto.JobAlertMatchResponse, error) {
	return m.matches, m.err
}
func (m *mockJobAlertService) Preview(_ context.Context, _ string, limit int, _, _ string) ([]dto.JobSummary, error) {
	m.lastLimit = limit
	return m.preview, m.err
}

// ── Mock AlertProcessor ──

type mockProcessor struct {
	processResult *dto.ProcessAlertsResult
	digestResult  *dto.SendDigestsResult
	err           error
	lastFrequency string
}

func (m *mockProcessor) ProcessJobAlerts(_ context.Context, frequency string) (*dto.ProcessAlertsResult, error) {
	m.lastFrequency = frequency
	return m.processResult, m.err
}
func (m *mockProcessor) SendAlertDigests(_ context.Context, frequency string) (*dto.SendDigestsResult, error) {
	m.lastFrequency = frequency
	return m.digestResult, m.err
}

// ── Mock ExportService ──

type mockExportService struct {
	buf      *bytes.Buffer
	filename string
	err      error
}

func (m *mockExportService) ExportAlertStats(_ context.Context) (*bytes.Buffer, string, error) {
	return m.buf, m.filename, m.err
}

// ═══════════════════════════════════════════════════════════
// Test Helpers
// ═══════════════════════════════════════════════════════════

func setAuth(c *gin.Context) {
	c.Set("user_id", "test-user-id")
	c.Set("role", "jobseeker")
	c.Set("token_jti", "test-jti")
	c.Set("token_exp", time.Now().Add(15*time.Minute))
}

func withAuth(h gin.HandlerFunc) gin.HandlerFunc {
	return func(c *gin.Context) {
		setAuth(c)
		h(c)
	}
}

func jsonBody(v interface{}) io.Reader {
	b, _ := json.Marshal(v)
	return bytes.NewReader(b)
}

func parseResponse(w *httptest.ResponseRecorder) response.Response {
	var resp response.Response
	json.Unmarshal(w.Body.Bytes(), &resp)
	return resp
}

func serve(r *gin.Engine, method, path string, body io.Reader) *httptest.ResponseRecorder {
	w := httptest.NewRecorder()
	req := httptest.NewRequest(method, path, body)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	r.ServeHTTP(w, req)
	return w
}

// ═══════════════════════════════════════════════════════════
// AuthHandler Tests
// ═══════════════════════════════════════════════════════════

func TestAuthHandler_Login_Success(t *testing.T) {
	mock := &mockAuthService{
		loginResult: &dto.TokenResponse{AccessToken: "test-access-token", ExpiresIn: 7200},
	}
	h := NewAuthHandler(mock)

	r := gin.New()
	r.POST("/auth/login", h.Login)
	w := serve(r, "POST", "/auth/login", jsonBody(dto.LoginRequest{Email: "a@example.com", Password: "pw"}))

	if w.Code != http.StatusOK {
		t.Errorf("expected 200, got %d", w.Code)
	}
	if resp := parseResponse(w); resp.Code != 0 {
		t.Errorf("expected code 0, got %d", resp.Code)
	}
}

func TestAuthHandler_Login_BadJSON(t *testing.T) {
	h := NewAuthHandler(&mockAuthService{})

	r := gin.New()
	r.POST("/auth/login", h.Login)
	w := serve(r, "POST", "/auth/login", bytes.NewReader([]byte("invalid json")))

	if w.Code != http.StatusBadRequest {
		t.Errorf("expected 400, got %d", w.Code)
	}
}

func TestAuthHandler_Login_Errors(t *testing.T) {
	tests := []struct {
		err      error
		wantHTTP int
		wantCode int
	}{
		{service.ErrInvalidCredentials, http.StatusUnauthorized, 11001},
		{service.ErrUserDisabled, http.StatusForbidden, 11002},
		{errors.New("db down"), http.StatusInternalServerError, 50000},
	}
	for _, tt := range tests {
		h := NewAuthHandler(&mockAuthService{loginErr: tt.err})
		r := gin.New()
		r.POST("/auth/login", h.Login)
		w := serve(r, "POST", "/auth/login", jsonBody(dto.LoginRequest{Email: "a@example.com", Password: "pw"}))

		if w.Code != tt.wantHTTP {
			t.Errorf("%v: expected %d, got %d", tt.err, tt.wantHTTP, w.Code)
		}
		if resp := parseResponse(w); resp.Code != tt.wantCode {
			t.Errorf("%v: expected code %d, got %d", tt.err, tt.wantCode, resp.Code)
		}
	}
}

func TestAuthHandler_Logout_PassesJTI(t *testing.T) {
	mock := &mockAuthService{}
	h := NewAuthHandler(mock)

	r := gin.New()
	r.POST("/auth/logout", withAuth(h.Logout))
	w := serve(r, "POST", "/auth/logout", nil)

	if w.Code != http.StatusOK {
		t.Errorf("expected 200, got %d", w.Code)
	}
	if mock.logoutJTI != "test-jti" {
		t.Errorf("expected jti test-jti, got %q", mock.logoutJTI)
	}
}

func TestAuthHandler_GetCurrentUser(t *testing.T) {
	h := NewAuthHandler(&mockAuthService{meResult: &dto.UserResponse{ID: "test-user-id"}})

	r := gin.New()
	r.GET("/auth/me", withAuth(h.GetCurrentUser))
	if w := serve(r, "GET", "/auth/me", nil); w.Code != http.StatusOK {
		t.Errorf("expected 200, got %d", w.Code)
	}

	// 未经过 JWT 中间件
	r2 := gin.New()
	r2.GET("/auth/me", h.GetCurrentUser)
	if w := serve(r2, "GET", "/auth/me", nil); w.Code != http.StatusUnauthorized {
		t.Errorf("expected 401, got %d", w.Code)
	}
}

// ═══════════════════════════════════════════════════════════
// JobAlertHandler Tests
// ═══════════════════════════════════════════════════════════

func TestJobAlertHandler_Create_Success(t *testing.T) {
	mock := &mockJobAlertService{alert: &dto.JobAlertResponse{ID: "alert-1"}}
	h := NewJobAlertHandler(mock)

	r := gin.New()
	r.POST("/job-alerts", withAuth(h.CreateJobAlert))
	w := serve(r, "POST", "/job-alerts", jsonBody(map[string]interface{}{
		"positions":   []string{"Pharmacist"},
		"frequency":   "weekly",
		"digest_day":  "Friday",
		"digest_time": "17:30",
	}))

	if w.Code != http.StatusCreated {
		t.Errorf("expected 201, got %d", w.Code)
	}
	if mock.lastCaller != "test-user-id" {
		t.Errorf("expected caller test-user-id, got %q", mock.lastCaller)
	}
}

func TestJobAlertHandler_Create_ValidationFails(t *testing.T) {
	h := NewJobAlertHandler(&mockJobAlertService{})

	r := gin.New()
	r.POST("/job-alerts", withAuth(h.CreateJobAlert))

	bodies := []map[string]interface{}{
		{"digest_time": "9:30"},
		{"digest_day": "someday"},
		{"frequency": "hourly"},
		{"salary_min": -1},
	}
	for _, body := range bodies {
		if w := serve(r, "POST", "/job-alerts", jsonBody(body)); w.Code != http.StatusBadRequest {
			t.Errorf("%v: expected 400, got %d", body, w.Code)
		}
	}
}

func TestJobAlertHandler_ErrorMapping(t *testing.T) {
	tests := []struct {
		err      error
		wantHTTP int
		wantCode int
	}{
		{service.ErrJobAlertNotFound, http.StatusNotFound, 12001},
		{service.ErrInvalidSalaryRange, http.StatusBadRequest, 12002},
		{service.ErrInvalidDigestTime, http.StatusBadRequest, 12003},
		{service.ErrInvalidDigestDay, http.StatusBadRequest, 12004},
		{service.ErrInvalidFrequency, http.StatusBadRequest, 12005},
		{pkgerrors.ErrOptimisticLock, http.StatusConflict, 12006},
		{errors.New("unexpected"), http.StatusInternalServerError, 50000},
	}
	for _, tt := range tests {
		h := NewJobAlertHandler(&mockJobAlertService{err: tt.err})
		r := gin.New()
		r.PUT("/job-alerts/:id", withAuth(h.UpdateJobAlert))
		w := serve(r, "PUT", "/job-alerts/a1", jsonBody(map[string]interface{}{"name": "x", "version": 1}))

		if w.Code != tt.wantHTTP {
			t.Errorf("%v: expected %d, got %d", tt.err, tt.wantHTTP, w.Code)
		}
		if resp := parseResponse(w); resp.Code != tt.wantCode {
			t.Errorf("%v: expected code %d, got %d", tt.err, tt.wantCode, resp.Code)
		}
	}
}

func TestJobAlertHandler_Update_RequiresVersion(t *testing.T) {
	h := NewJobAlertHandler(&mockJobAlertService{})
	r := gin.New()
	r.PUT("/job-alerts/:id", withAuth(h.UpdateJobAlert))

	if w := serve(r, "PUT", "/job-alerts/a1", jsonBody(map[string]interface{}{"name": "x"})); w.Code != http.StatusBadRequest {
		t.Errorf("expected 400, got %d", w.Code)
	}
}

func TestJobAlertHandler_Toggle(t *testing.T) {
	mock := &mockJobAlertService{alert: &dto.JobAlertResponse{ID: "a1"}}
	h := NewJobAlertHandler(mock)
	r := gin.New()
	r.PUT("/job-alerts/:id/toggle", withAuth(h.ToggleJobAlert))

	// is_active 缺失
	if w := serve(r, "PUT", "/job-alerts/a1/toggle", jsonBody(map[string]interface{}{})); w.Code != http.StatusBadRequest {
		t.Errorf("expected 400, got %d", w.Code)
	}

	w := serve(r, "PUT", "/job-alerts/a1/toggle", jsonBody(map[string]interface{}{"is_active": false}))
	if w.Code != http.StatusOK {
		t.Errorf("expected 200, got %d", w.Code)
	}
	if mock.lastActive == nil || *mock.lastActive {
		t.Error("expected toggle to false")
	}
}

func TestJobAlertHandler_List(t *testing.T) {
	mock := &mockJobAlertService{list: []dto.JobAlertResponse{{ID: "a1"}, {ID: "a2"}}, total: 5}
	h := NewJobAlertHandler(mock)
	r := gin.New()
	r.GET("/job-alerts", withAuth(h.ListJobAlerts))

	w := serve(r, "GET", "/job-alerts?page=2&page_size=2", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}

	var body struct {
		Data response.PageData `json:"data"`
	}
	json.Unmarshal(w.Body.Bytes(), &body)
	if body.Data.Pagination.TotalPages != 3 || body.Data.Pagination.Page != 2 {
		t.Errorf("unexpected pagination: %+v", body.Data.Pagination)
	}

	if w := serve(r, "GET", "/job-alerts?page_size=1000", nil); w.Code != http.StatusBadRequest {
		t.Errorf("expected 400 for oversized page, got %d", w.Code)
	}
}

func TestJobAlertHandler_GetAndPreview_PassRole(t *testing.T) {
	mock := &mockJobAlertService{alert: &dto.JobAlertResponse{ID: "a1"}, preview: []dto.JobSummary{{ID: "j1"}}}
	h := NewJobAlertHandler(mock)
	r := gin.New()
	r.GET("/job-alerts/:id", withAuth(h.GetJobAlert))
	r.GET("/job-alerts/:id/preview", withAuth(h.PreviewJobAlert))

	if w := serve(r, "GET", "/job-alerts/a1", nil); w.Code != http.StatusOK {
		t.Errorf("expected 200, got %d", w.Code)
	}
	if mock.lastRole != "jobseeker" {
		t.Errorf("expected role jobseeker, got %q", mock.lastRole)
	}

	if w := serve(r, "GET", "/job-alerts/a1/preview?limit=5", nil); w.Code != http.StatusOK {
		t.Errorf("expected 200, got %d", w.Code)
	}
	if mock.lastLimit != 5 {
		t.Errorf("expected limit 5, got %d", mock.lastLimit)
	}
	if w := serve(r, "GET", "/job-alerts/a1/preview?limit=500", nil); w.Code != http.StatusBadRequest {
		t.Errorf("expected 400, got %d", w.Code)
	}
}

func TestJobAlertHandler_DeleteAndMatches(t *testing.T) {
	mock := &mockJobAlertService{matches: []dto.JobAlertMatchResponse{{JobID: "j1"}}}
	h := NewJobAlertHandler(mock)
	r := gin.New()
	r.DELETE("/job-alerts/:id", withAuth(h.DeleteJobAlert))
	r.GET("/job-alerts/:id/matches", withAuth(h.ListMatches))

	if w := serve(r, "DELETE", "/job-alerts/a1", nil); w.Code != http.StatusOK {
		t.Errorf("expected 200, got %d", w.Code)
	}
	if w := serve(r, "GET", "/job-alerts/a1/matches", nil); w.Code != http.StatusOK {
		t.Errorf("expected 200, got %d", w.Code)
	}

	mock.err = service.ErrJobAlertNotFound
	if w := serve(r, "DELETE", "/job-alerts/a1", nil); w.Code != http.StatusNotFound {
		t.Errorf("expected 404, got %d", w.Code)
	}
}

// ═══════════════════════════════════════════════════════════
// AlertPassHandler Tests
// ═══════════════════════════════════════════════════════════

func TestAlertPassHandler_Process(t *testing.T) {
	mock := &mockProcessor{processResult: &dto.ProcessAlertsResult{Processed: 2, NotificationsSent: 1, Total: 2}}
	h := NewAlertPassHandler(mock)
	r := gin.New()
	r.POST("/process", h.ProcessJobAlerts)

	w := serve(r, "POST", "/process?frequency=instant", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}
	if mock.lastFrequency != "instant" {
		t.Errorf("expected frequency instant, got %q", mock.lastFrequency)
	}

	var body struct {
		Data dto.ProcessAlertsResult `json:"data"`
	}
	json.Unmarshal(w.Body.Bytes(), &body)
	if body.Data.Processed != 2 || body.Data.NotificationsSent != 1 {
		t.Errorf("unexpected result: %+v", body.Data)
	}

	if w := serve(r, "POST", "/process?frequency=hourly", nil); w.Code != http.StatusBadRequest {
		t.Errorf("expected 400, got %d", w.Code)
	}
}

func TestAlertPassHandler_Digests(t *testing.T) {
	mock := &mockProcessor{digestResult: &dto.SendDigestsResult{Sent: 1, Total: 3}}
	h := NewAlertPassHandler(mock)
	r := gin.New()
	r.POST("/digests", h.SendAlertDigests)

	if w := serve(r, "POST", "/digests", nil); w.Code != http.StatusOK {
		t.Errorf("expected 200, got %d", w.Code)
	}
	if w := serve(r, "POST", "/digests?frequency=instant", nil); w.Code != http.StatusBadRequest {
		t.Errorf("instant has no digest, expected 400, got %d", w.Code)
	}
}

func TestAlertPassHandler_ErrorMapping(t *testing.T) {
	tests := []struct {
		err      error
		wantHTTP int
	}{
		{pkgerrors.ErrPassInProgress, http.StatusConflict},
		{service.ErrInvalidFrequency, http.StatusBadRequest},
		{context.Canceled, http.StatusServiceUnavailable},
		{errors.New("db down"), http.StatusInternalServerError},
	}
	for _, tt := range tests {
		h := NewAlertPassHandler(&mockProcessor{err: tt.err})
		r := gin.New()
		r.POST("/process", h.ProcessJobAlerts)
		if w := serve(r, "POST", "/process", nil); w.Code != tt.wantHTTP {
			t.Errorf("%v: expected %d, got %d", tt.err, tt.wantHTTP, w.Code)
		}
	}
}

// ═══════════════════════════════════════════════════════════
// ExportHandler Tests
// ═══════════════════════════════════════════════════════════

func TestExportHandler_Success(t *testing.T) {
	mock := &mockExportService{
		buf:      bytes.NewBufferString("excel content"),
		filename: "job_alerts_20260105_0905.xlsx",
	}
	h := NewExportHandler(mock)
	r := gin.New()
	r.GET("/export", h.ExportAlertStats)

	w := serve(r, "GET", "/export", nil)
	if w.Code != http.StatusOK {
		t.Errorf("expected 200, got %d", w.Code)
	}
	if ct := w.Header().Get("Content-Type"); ct != response.XLSXContentType {
		t.Errorf("unexpected content type: %s", ct)
	}
	if cd := w.Header().Get("Content-Disposition"); cd != "attachment; filename*=UTF-8''job_alerts_20260105_0905.xlsx" {
		t.Errorf("unexpected Content-Disposition: %s", cd)
	}
	if w.Body.String() != "excel content" {
		t.Errorf("unexpected body: %s", w.Body.String())
	}
}

func TestExportHandler_Failure(t *testing.T) {
	h := NewExportHandler(&mockExportService{err: service.ErrExportGenerateFail})
	r := gin.New()
	r.GET("/export", h.ExportAlertStats)

	if w := serve(r, "GET", "/export", nil); w.Code != http.StatusInternalServerError {
		t.Errorf("expected 500, got %d", w.Code)
	}
}
