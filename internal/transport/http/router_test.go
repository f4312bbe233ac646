package http

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"tablevault/internal/domain"
	"tablevault/internal/dto"
	"tablevault/internal/service/impl"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type stubAuth struct {
	err       error
	lastLogin dto.LoginRequest
}

func (s *stubAuth) Register(context.Context, dto.RegisterRequest) (*dto.MessageResponse, error) {
	if s.err != nil {
		return nil, s.err
	}
	return &dto.MessageResponse{Message: "registered"}, nil
}

func (s *stubAuth) VerifyOTP(context.Context, dto.VerifyOTPRequest) (*dto.MessageResponse, error) {
	if s.err != nil {
		return nil, s.err
	}
	return &dto.MessageResponse{Message: "verified"}, nil
}

func (s *stubAuth) ResendOTP(context.Context, dto.ResendOTPRequest) (*dto.MessageResponse, error) {
	if s.err != nil {
		return nil, s.err
	}
	return &dto.MessageResponse{Message: "resent"}, nil
}

func (s *stubAuth) Login(_ context.Context, r dto.LoginRequest) (*dto.TokenResponse, error) {
	s.lastLogin = r
	if s.err != nil {
		return nil, s.err
	}
	return &dto.TokenResponse{AccessToken: "a", RefreshToken: "r", TokenType: dto.TokenTypeBearer}, nil
}

func (s *stubAuth) Refresh(context.Context, dto.RefreshRequest) (*dto.TokenResponse, error) {
	if s.err != nil {
		return nil, s.err
	}
	return &dto.TokenResponse{AccessToken: "a2", RefreshToken: "r2", TokenType: dto.TokenTypeBearer}, nil
}

func (s *stubAuth) Me(_ context.Context, id domain.UserID) (*dto.MeResponse, error) {
	return &dto.MeResponse{UserID: id, Email: "a@example.com", IsVerified: true}, nil
}

func (s *stubAuth) DeleteAccount(_ context.Context, id domain.UserID) (*dto.DeleteAccountResponse, error) {
	if id == 404 {
		return nil, domain.ErrUserNotFound
	}
	return &dto.DeleteAccountResponse{Message: "Account deleted.", Deleted: map[string]int64{"users": 1}}, nil
}

type stubFiles struct {
	uploaded  []byte
	mimeType  string
	table     string
	getErr    error
	uploadErr error
}

func (s *stubFiles) Upload(_ context.Context, _ domain.UserID, filename, mimeType string, data []byte) (*dto.UploadResponse, error) {
	if s.uploadErr != nil {
		return nil, s.uploadErr
	}
	s.uploaded, s.mimeType = data, mimeType
	return &dto.UploadResponse{FileID: 1, Filename: "uuid_" + filename}, nil
}

func (s *stubFiles) List(context.Context, domain.UserID) (*dto.FileListResponse, error) {
	return &dto.FileListResponse{Files: []dto.FileInfo{}}, nil
}

func (s *stubFiles) Get(_ context.Context, userID domain.UserID, id domain.FileID) (*domain.File, []byte, error) {
	if s.getErr != nil {
		return nil, nil, s.getErr
	}
	return &domain.File{ID: id, UserID: userID, OriginalName: "report.txt", MimeType: "text/plain"}, []byte("hello"), nil
}

func (s *stubFiles) UploadCSV(_ context.Context, _ domain.UserID, table, _ string, data []byte) (*dto.CSVUploadResponse, error) {
	if s.uploadErr != nil {
		return nil, s.uploadErr
	}
	s.table, s.uploaded = table, data
	return &dto.CSVUploadResponse{FileID: 2, TableName: table, ColumnNames: []string{"a"}}, nil
}

func (s *stubFiles) ListTables(context.Context, domain.UserID) (*dto.CSVTableListResponse, error) {
	return &dto.CSVTableListResponse{Tables: []dto.CSVTableInfo{}}, nil
}

type stubAnalytics struct {
	lastUser  domain.UserID
	lastPage  int
	lastSize  int
	lastChart dto.ChartRequest
}

func (s *stubAnalytics) Schema(_ context.Context, userID domain.UserID, table string) (*dto.SchemaResponse, error) {
	s.lastUser = userID
	if table != "sales" {
		return nil, domain.ErrTableNotFound
	}
	return &dto.SchemaResponse{TableName: table}, nil
}

func (s *stubAnalytics) Rows(_ context.Context, _ domain.UserID, table string, page, size int) (*dto.RowsResponse, error) {
	s.lastPage, s.lastSize = page, size
	return &dto.RowsResponse{TableName: table, Page: page}, nil
}

func (s *stubAnalytics) Chart(_ context.Context, _ domain.UserID, _ string, r dto.ChartRequest) (*dto.ChartResponse, error) {
	s.lastChart = r
	if r.Agg == "median" {
		return nil, fmt.Errorf("%w: agg must be one of none, sum, avg, count, min, max", domain.ErrInvalidRequest)
	}
	return &dto.ChartResponse{X: r.X, Y: r.Y, Agg: r.Agg}, nil
}

func (s *stubAnalytics) Overview(context.Context, domain.UserID) (*dto.OverviewResponse, error) {
	return &dto.OverviewResponse{FilesByType: map[string]int64{}}, nil
}

func (s *stubAnalytics) RecentFiles(context.Context, domain.UserID) (*dto.RecentFilesResponse, error) {
	return &dto.RecentFilesResponse{RecentFiles: []dto.RecentFile{}}, nil
}

func (s *stubAnalytics) FileAnalytics(_ context.Context, _ domain.UserID, id domain.FileID) (*dto.FileAnalyticsResponse, error) {
	if id == 9 {
		return nil, &domain.NotCSVError{Filename: "photo.png"}
	}
	return &dto.FileAnalyticsResponse{Filename: "a.csv"}, nil
}

func (s *stubAnalytics) UploadTrends(context.Context, domain.UserID) (*dto.UploadTrendsResponse, error) {
	return nil, errors.New("db went away")
}

var routerKey = []byte("router-secret")

type routerFixture struct {
	handler   http.Handler
	auth      *stubAuth
	files     *stubFiles
	analytics *stubAnalytics
	tokens    *impl.TokenServiceImpl
}

func newRouterFixture(t *testing.T, cfg RouterConfig) *routerFixture {
	t.Helper()
	ts, err := impl.NewTokenServiceHMAC(impl.TokenConfig{
		Algorithm:  "HS256",
		AccessTTL:  15 * time.Minute,
		RefreshTTL: 96 * time.Hour,
		SigningKey: routerKey,
	})
	require.NoError(t, err)
	f := &routerFixture{auth: &stubAuth{}, files: &stubFiles{}, analytics: &stubAnalytics{}, tokens: ts}
	f.handler = NewRouter(Services{Auth: f.auth, Tokens: ts, Files: f.files, Analytics: f.analytics}, cfg)
	return f
}

func (f *routerFixture) accessToken(t *testing.T, userID domain.UserID) string {
	t.Helper()
	tok, err := f.tokens.IssueAccess(context.Background(), userID, "a@example.com")
	require.NoError(t, err)
	return tok
}

func (f *routerFixture) do(req *http.Request) *httptest.ResponseRecorder {
	rec := httptest.NewRecorder()
	f.handler.ServeHTTP(rec, req)
	return rec
}

func jsonRequest(method, path, body string) *http.Request {
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	return req
}

func authed(req *http.Request, token string) *http.Request {
	req.Header.Set("Authorization", "Bearer "+token)
	return req
}

func detailOf(t *testing.T, rec *httptest.ResponseRecorder) any {
	t.Helper()
	var body errorBody
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body), rec.Body.String())
	return body.Detail
}

func TestHealthz(t *testing.T) {
	f := newRouterFixture(t, RouterConfig{})
	rec := f.do(httptest.NewRequest(http.MethodGet, "/healthz", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "ok", rec.Body.String())
	assert.NotEmpty(t, rec.Header().Get("X-Request-ID"))

	down := newRouterFixture(t, RouterConfig{Ready: func(context.Context) error { return errors.New("no db") }})
	rec = down.do(httptest.NewRequest(http.MethodGet, "/healthz", nil))
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}

func TestAuthRoutes(t *testing.T) {
	f := newRouterFixture(t, RouterConfig{})

	rec := f.do(jsonRequest(http.MethodPost, "/register", `{"email":"a@example.com","password":"pw"}`))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"message":"registered"}`, rec.Body.String())

	rec = f.do(jsonRequest(http.MethodPost, "/login", `{"email":"a@example.com","password":"pw"}`))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"access_token":"a","refresh_token":"r","token_type":"bearer"}`, rec.Body.String())
	assert.Equal(t, "a@example.com", f.auth.lastLogin.Email)

	rec = f.do(jsonRequest(http.MethodPost, "/refresh", `{"refresh_token":"r"}`))
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = f.do(jsonRequest(http.MethodPost, "/verify-otp", `{"email":`))
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = f.do(jsonRequest(http.MethodGet, "/login", ``))
	assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)
}

func TestErrorMapping(t *testing.T) {
	tests := []struct {
		err    error
		status int
		detail string
	}{
		{domain.ErrAlreadyExists, http.StatusBadRequest, "Email already registered"},
		{domain.ErrUserNotFound, http.StatusNotFound, "User not found"},
		{domain.ErrAlreadyVerified, http.StatusBadRequest, "Email already verified"},
		{domain.ErrOTPExpired, http.StatusBadRequest, "OTP has expired"},
		{domain.ErrInvalidOTP, http.StatusBadRequest, "Invalid OTP"},
		{domain.ErrInvalidCredentials, http.StatusUnauthorized, "Invalid email or password"},
		{domain.ErrEmailNotVerified, http.StatusUnauthorized, "Email not verified"},
		{domain.ErrInvalidRefreshToken, http.StatusUnauthorized, "Invalid refresh token"},
		{fmt.Errorf("%w: retry in 30 seconds", domain.ErrOTPResendThrottled), http.StatusTooManyRequests, "otp resend throttled: retry in 30 seconds"},
		{fmt.Errorf("%w: user record has no id", domain.ErrInternal), http.StatusInternalServerError, "internal error: user record has no id"},
		{errors.New("dial tcp: connection refused"), http.StatusInternalServerError, "dial tcp: connection refused"},
	}
	for _, tt := range tests {
		t.Run(tt.err.Error(), func(t *testing.T) {
			f := newRouterFixture(t, RouterConfig{})
			f.auth.err = tt.err
			rec := f.do(jsonRequest(http.MethodPost, "/login", `{"email":"a@example.com","password":"pw"}`))
			assert.Equal(t, tt.status, rec.Code)
			assert.Equal(t, tt.detail, detailOf(t, rec))
		})
	}
}

func TestLoginErrorsAreIndistinguishable(t *testing.T) {
	f := newRouterFixture(t, RouterConfig{})
	f.auth.err = domain.ErrInvalidCredentials
	a := f.do(jsonRequest(http.MethodPost, "/login", `{"email":"a@example.com","password":"wrong"}`))
	b := f.do(jsonRequest(http.MethodPost, "/login", `{"email":"ghost@example.com","password":"pw"}`))
	assert.Equal(t, a.Code, b.Code)
	assert.Equal(t, a.Body.String(), b.Body.String())
}

func TestBearerMiddleware(t *testing.T) {
	f := newRouterFixture(t, RouterConfig{})

	rec := f.do(httptest.NewRequest(http.MethodGet, "/me", nil))
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Equal(t, "Not authenticated", detailOf(t, rec))
	assert.Equal(t, "Bearer", rec.Header().Get("WWW-Authenticate"))

	req := httptest.NewRequest(http.MethodGet, "/me", nil)
	req.Header.Set("Authorization", "Basic Zm9vOmJhcg==")
	rec = f.do(req)
	assert.Equal(t, "Not authenticated", detailOf(t, rec))

	rec = f.do(authed(httptest.NewRequest(http.MethodGet, "/me", nil), "garbage"))
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Equal(t, "Invalid token", detailOf(t, rec))

	refresh, err := f.tokens.IssueRefresh(context.Background(), 3, "a@example.com")
	require.NoError(t, err)
	rec = f.do(authed(httptest.NewRequest(http.MethodGet, "/me", nil), refresh))
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	shapeless, err := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"sub": "3", "exp": time.Now().Add(time.Minute).Unix(),
	}).SignedString(routerKey)
	require.NoError(t, err)
	rec = f.do(authed(httptest.NewRequest(http.MethodGet, "/me", nil), shapeless))
	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)
	assert.Contains(t, rec.Body.String(), `"field":"user_id"`)

	rec = f.do(authed(httptest.NewRequest(http.MethodGet, "/me", nil), f.accessToken(t, 3)))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"user_id":3,"email":"a@example.com","is_verified":true}`, rec.Body.String())
}

func TestDeleteAccount(t *testing.T) {
	f := newRouterFixture(t, RouterConfig{})

	rec := f.do(authed(httptest.NewRequest(http.MethodDelete, "/me", nil), f.accessToken(t, 3)))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"message":"Account deleted.","deleted":{"users":1}}`, rec.Body.String())

	rec = f.do(authed(httptest.NewRequest(http.MethodDelete, "/me", nil), f.accessToken(t, 404)))
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = f.do(httptest.NewRequest(http.MethodDelete, "/me", nil))
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func multipartBody(t *testing.T, fields map[string]string, filename, contentType string, data []byte) (*bytes.Buffer, string) {
	t.Helper()
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	for k, v := range fields {
		require.NoError(t, mw.WriteField(k, v))
	}
	if filename != "" {
		h := make(map[string][]string)
		h["Content-Disposition"] = []string{fmt.Sprintf(`form-data; name="file"; filename=%q`, filename)}
		h["Content-Type"] = []string{contentType}
		part, err := mw.CreatePart(h)
		require.NoError(t, err)
		_, err = part.Write(data)
		require.NoError(t, err)
	}
	require.NoError(t, mw.Close())
	return &buf, mw.FormDataContentType()
}

func TestFileUploadAndDownload(t *testing.T) {
	f := newRouterFixture(t, RouterConfig{MaxUploadBytes: 16})
	tok := f.accessToken(t, 5)

	body, ct := multipartBody(t, nil, "notes.txt", "text/plain", []byte("hello"))
	req := authed(httptest.NewRequest(http.MethodPost, "/files", body), tok)
	req.Header.Set("Content-Type", ct)
	rec := f.do(req)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, []byte("hello"), f.files.uploaded)
	assert.Equal(t, "text/plain", f.files.mimeType)

	body, ct = multipartBody(t, nil, "big.bin", "application/octet-stream", bytes.Repeat([]byte("x"), 17))
	req = authed(httptest.NewRequest(http.MethodPost, "/files", body), tok)
	req.Header.Set("Content-Type", ct)
	rec = f.do(req)
	assert.Equal(t, http.StatusRequestEntityTooLarge, rec.Code)

	body, ct = multipartBody(t, map[string]string{"other": "x"}, "", "", nil)
	req = authed(httptest.NewRequest(http.MethodPost, "/files", body), tok)
	req.Header.Set("Content-Type", ct)
	rec = f.do(req)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = f.do(authed(httptest.NewRequest(http.MethodGet, "/files/7", nil), tok))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "hello", rec.Body.String())
	assert.Equal(t, "text/plain", rec.Header().Get("Content-Type"))
	assert.Equal(t, `attachment; filename=report.txt`, rec.Header().Get("Content-Disposition"))

	rec = f.do(authed(httptest.NewRequest(http.MethodGet, "/files/abc", nil), tok))
	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)

	f.files.getErr = domain.ErrFileNotFound
	rec = f.do(authed(httptest.NewRequest(http.MethodGet, "/files/7", nil), tok))
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, "File not found", detailOf(t, rec))
}

func TestCSVRoutes(t *testing.T) {
	f := newRouterFixture(t, RouterConfig{})
	tok := f.accessToken(t, 5)

	body, ct := multipartBody(t, map[string]string{"table_name": "sales"}, "sales.csv", "text/csv", []byte("a\n1\n"))
	req := authed(httptest.NewRequest(http.MethodPost, "/csv", body), tok)
	req.Header.Set("Content-Type", ct)
	rec := f.do(req)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, "sales", f.files.table)

	body, ct = multipartBody(t, nil, "sales.csv", "text/csv", []byte("a\n1\n"))
	req = authed(httptest.NewRequest(http.MethodPost, "/csv", body), tok)
	req.Header.Set("Content-Type", ct)
	rec = f.do(req)
	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)

	f.files.uploadErr = domain.ErrTableExists
	body, ct = multipartBody(t, map[string]string{"table_name": "sales"}, "sales.csv", "text/csv", []byte("a\n1\n"))
	req = authed(httptest.NewRequest(http.MethodPost, "/csv", body), tok)
	req.Header.Set("Content-Type", ct)
	rec = f.do(req)
	assert.Equal(t, http.StatusConflict, rec.Code)

	rec = f.do(authed(httptest.NewRequest(http.MethodGet, "/csv/sales/schema", nil), tok))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, domain.UserID(5), f.analytics.lastUser)

	rec = f.do(authed(httptest.NewRequest(http.MethodGet, "/csv/missing/schema", nil), tok))
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = f.do(authed(httptest.NewRequest(http.MethodGet, "/csv/sales/rows?page=3&page_size=20", nil), tok))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, 3, f.analytics.lastPage)
	assert.Equal(t, 20, f.analytics.lastSize)

	rec = f.do(authed(httptest.NewRequest(http.MethodGet, "/csv/sales/rows?page=x", nil), tok))
	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)

	rec = f.do(authed(httptest.NewRequest(http.MethodGet, "/csv/sales/chart?x=region&y=amount&agg=sum&limit=5", nil), tok))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, dto.ChartRequest{X: "region", Y: "amount", Agg: "sum", Limit: 5}, f.analytics.lastChart)

	rec = f.do(authed(httptest.NewRequest(http.MethodGet, "/csv/sales/chart?x=region&y=amount&agg=median", nil), tok))
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestDashboardRoutes(t *testing.T) {
	f := newRouterFixture(t, RouterConfig{})
	tok := f.accessToken(t, 5)

	for _, path := range []string{"/dashboard/overview", "/dashboard/recent-files", "/dashboard/file-analytics/1"} {
		rec := f.do(authed(httptest.NewRequest(http.MethodGet, path, nil), tok))
		assert.Equal(t, http.StatusOK, rec.Code, path)
	}

	rec := f.do(authed(httptest.NewRequest(http.MethodGet, "/dashboard/file-analytics/9", nil), tok))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"error":"File is not a CSV","filename":"photo.png"}`, rec.Body.String())

	rec = f.do(authed(httptest.NewRequest(http.MethodGet, "/dashboard/upload-trends", nil), tok))
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.Equal(t, "db went away", detailOf(t, rec))
}

func TestAuthRateLimit(t *testing.T) {
	f := newRouterFixture(t, RouterConfig{RateLimitPerMinute: 2})
	var last int
	for i := 0; i < 3; i++ {
		rec := f.do(jsonRequest(http.MethodPost, "/register", `{"email":"a@example.com","password":"pw"}`))
		last = rec.Code
	}
	assert.Equal(t, http.StatusTooManyRequests, last)

	rec := f.do(authed(httptest.NewRequest(http.MethodGet, "/me", nil), f.accessToken(t, 1)))
	assert.Equal(t, http.StatusOK, rec.Code, "protected routes are not rate limited")
}

func TestAuthRateLimitIgnoresForwardedHeaders(t *testing.T) {
	login := func(f *routerFixture, xff string) int {
		req := jsonRequest(http.MethodPost, "/login", `{"email":"a@example.com","password":"pw"}`)
		req.Header.Set("X-Forwarded-For", xff)
		req.Header.Set("X-Real-IP", xff)
		return f.do(req).Code
	}

	f := newRouterFixture(t, RouterConfig{RateLimitPerMinute: 2})
	var codes []int
	for i := 0; i < 4; i++ {
		codes = append(codes, login(f, fmt.Sprintf("10.0.0.%d", i)))
	}
	assert.Equal(t, []int{200, 200, 429, 429}, codes)

	// Behind a proxy only the hop it appended counts.
	f = newRouterFixture(t, RouterConfig{RateLimitPerMinute: 2, TrustProxy: true})
	codes = codes[:0]
	for i := 0; i < 4; i++ {
		codes = append(codes, login(f, fmt.Sprintf("10.0.0.%d, 203.0.113.9", i)))
	}
	assert.Equal(t, []int{200, 200, 429, 429}, codes)
}

func TestCORSCredentials(t *testing.T) {
	get := func(f *routerFixture) *httptest.ResponseRecorder {
		req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
		req.Header.Set("Origin", "https://app.example")
		return f.do(req)
	}

	rec := get(newRouterFixture(t, RouterConfig{}))
	assert.Equal(t, "*", rec.Header().Get("Access-Control-Allow-Origin"))
	assert.Empty(t, rec.Header().Get("Access-Control-Allow-Credentials"))

	rec = get(newRouterFixture(t, RouterConfig{CORSOrigins: []string{"https://app.example"}}))
	assert.Equal(t, "https://app.example", rec.Header().Get("Access-Control-Allow-Origin"))
	assert.Equal(t, "true", rec.Header().Get("Access-Control-Allow-Credentials"))
}

func TestWriteJSONUnencodableBody(t *testing.T) {
	rec := httptest.NewRecorder()
	writeJSON(rec, http.StatusOK, dto.ChartResponse{Values: []float64{math.Inf(1)}})
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.Equal(t, "failed to encode response", detailOf(t, rec))

	rec = httptest.NewRecorder()
	writeJSON(rec, http.StatusCreated, dto.MessageResponse{Message: "ok"})
	assert.Equal(t, http.StatusCreated, rec.Code)
	assert.JSONEq(t, `{"message":"ok"}`, rec.Body.String())
}
