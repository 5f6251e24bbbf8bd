package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/go-playground/validator/v10"
	"github.com/rs/zerolog"

	"adminpanel/api/internal/config"
	"adminpanel/api/internal/models"
	"adminpanel/api/internal/service"
)

func init() {
	gin.SetMode(gin.TestMode)
}

const goodToken = "good-token"

type stubAuth struct {
	loginInput   service.LoginInput
	loginErr     error
	refreshToken string
	refreshErr   error
	loggedOut    string
	revoked      string
	revokeErr    error
	sessions     []models.Session
	profileErr   error
	permissions  []string
}

func (s *stubAuth) result() service.AuthResult {
	return service.AuthResult{
		AccessToken:      "access",
		RefreshToken:     "refresh-next",
		RefreshExpiresAt: time.Now().Add(time.Hour),
		SessionID:        "s1",
		Profile: service.Profile{
			User:   service.UserProfile{UserID: 1, Username: "jsanchez5678", Enabled: true},
			RoleID: 1,
			Menu:   []models.MenuModule{},
		},
	}
}

func (s *stubAuth) Login(_ context.Context, in service.LoginInput) (service.AuthResult, error) {
	s.loginInput = in
	if s.loginErr != nil {
		return service.AuthResult{}, s.loginErr
	}
	return s.result(), nil
}

func (s *stubAuth) Refresh(_ context.Context, token string) (service.AuthResult, error) {
	s.refreshToken = token
	if s.refreshErr != nil {
		return service.AuthResult{}, s.refreshErr
	}
	return s.result(), nil
}

func (s *stubAuth) Logout(_ context.Context, sessionID string) error {
	s.loggedOut = sessionID
	return nil
}

func (s *stubAuth) Authenticate(_ context.Context, token string) (service.Principal, error) {
	if token != goodToken {
		return service.Principal{}, service.ErrInvalidToken
	}
	return service.Principal{UserID: 1, RoleID: 1, SessionID: "s1", Permissions: s.permissions}, nil
}

func (s *stubAuth) Profile(_ context.Context, userID int64) (service.Profile, error) {
	if s.profileErr != nil {
		return service.Profile{}, s.profileErr
	}
	return s.result().Profile, nil
}

func (s *stubAuth) Sessions(_ context.Context, _ int64) ([]models.Session, error) {
	return s.sessions, nil
}

func (s *stubAuth) RevokeSession(_ context.Context, _ int64, sessionID string) error {
	s.revoked = sessionID
	return s.revokeErr
}

type stubUsers struct {
	taken     bool
	created   service.CreateUserInput
	createErr error
	enabled   map[int64]bool
	limit     int
	offset    int
}

func (s *stubUsers) CheckUsername(_ context.Context, _ string) (bool, error) {
	return !s.taken, nil
}

func (s *stubUsers) CreateUser(_ context.Context, in service.CreateUserInput) (models.User, error) {
	s.created = in
	if s.createErr != nil {
		return models.User{}, s.createErr
	}
	return models.User{ID: 7, Username: "anaperez1234", Enabled: in.Enabled}, nil
}

func (s *stubUsers) SetEnabled(_ context.Context, userID int64, enabled bool) error {
	if s.enabled == nil {
		s.enabled = map[int64]bool{}
	}
	s.enabled[userID] = enabled
	return nil
}

func (s *stubUsers) List(_ context.Context, limit, offset int) ([]models.User, error) {
	s.limit, s.offset = limit, offset
	return []models.User{{ID: 1, Username: "jsanchez5678", Enabled: true}}, nil
}

type stubMenu struct{}

func (stubMenu) Menu(_ context.Context, _ int64) ([]models.MenuModule, error) {
	return []models.MenuModule{{ID: 3, Key: "inicio", Label: "Inicio", Path: "/", IsDefault: true}}, nil
}

func testConfig() *config.AppConfig {
	return &config.AppConfig{
		Environment: "development",
		Cookie:      config.CookieConfig{Name: "refresh_token", Domain: "example.test", Path: "/api/auth"},
	}
}

type fixture struct {
	auth   *stubAuth
	users  *stubUsers
	cfg    *config.AppConfig
	checks map[string]HealthCheck
}

func newFixture() *fixture {
	return &fixture{
		auth:  &stubAuth{permissions: []string{"usuarios.ver", "usuarios.crear", "usuarios.editar"}},
		users: &stubUsers{},
		cfg:   testConfig(),
	}
}

func (f *fixture) router() *gin.Engine {
	r := gin.New()
	h, err := NewHandlerSet(zerolog.Nop(), f.cfg, Deps{
		Auth:   f.auth,
		Users:  f.users,
		Menu:   stubMenu{},
		Checks: f.checks,
	})
	if err != nil {
		panic(err)
	}
	h.Register(r.Group("/api"))
	return r
}

func (f *fixture) do(method, path, body string, mutate ...func(*http.Request)) *httptest.ResponseRecorder {
	var req *http.Request
	if body != "" {
		req = httptest.NewRequest(method, path, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	} else {
		req = httptest.NewRequest(method, path, nil)
	}
	for _, m := range mutate {
		m(req)
	}
	w := httptest.NewRecorder()
	f.router().ServeHTTP(w, req)
	return w
}

func bearer(req *http.Request) { req.Header.Set("Authorization", "Bearer "+goodToken) }

type envelope struct {
	OK        bool            `json:"ok"`
	Code      string          `json:"code"`
	Message   string          `json:"message"`
	Available *bool           `json:"available"`
	Data      json.RawMessage `json:"data"`
}

func decode(t *testing.T, w *httptest.ResponseRecorder) envelope {
	t.Helper()
	var body envelope
	if err := json.Unmarshal(w.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode %q: %v", w.Body.String(), err)
	}
	return body
}

func refreshCookie(w *httptest.ResponseRecorder) *http.Cookie {
	for _, c := range w.Result().Cookies() {
		if c.Name == "refresh_token" {
			return c
		}
	}
	return nil
}

func TestLoginSetsRefreshCookie(t *testing.T) {
	f := newFixture()
	w := f.do(http.MethodPost, "/api/auth/login", `{"usuario":" jsanchez5678 ","password":"secreto"}`)

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d body=%s", w.Code, w.Body.String())
	}
	body := decode(t, w)
	var data struct {
		AccessToken string `json:"accessToken"`
		RoleID      int64  `json:"roleId"`
	}
	if err := json.Unmarshal(body.Data, &data); err != nil {
		t.Fatalf("decode data: %v", err)
	}
	if !body.OK || data.AccessToken != "access" || data.RoleID != 1 {
		t.Errorf("unexpected body %s", w.Body.String())
	}
	if strings.Contains(w.Body.String(), "refresh-next") {
		t.Error("refresh token leaked into the response body")
	}
	if f.auth.loginInput.Username != "jsanchez5678" {
		t.Errorf("username = %q, want trimmed", f.auth.loginInput.Username)
	}

	cookie := refreshCookie(w)
	if cookie == nil {
		t.Fatal("refresh cookie not set")
	}
	if cookie.Value != "refresh-next" || !cookie.HttpOnly || cookie.Path != "/api/auth" {
		t.Errorf("cookie = %+v", cookie)
	}
	if cookie.Secure || cookie.SameSite != http.SameSiteLaxMode || cookie.Domain != "" {
		t.Errorf("development cookie = %+v", cookie)
	}
}

func TestLoginProductionCookieIsStrict(t *testing.T) {
	f := newFixture()
	f.cfg.Environment = "production"
	w := f.do(http.MethodPost, "/api/auth/login", `{"usuario":"jsanchez5678","password":"secreto"}`)

	cookie := refreshCookie(w)
	if cookie == nil {
		t.Fatal("refresh cookie not set")
	}
	if !cookie.Secure || cookie.SameSite != http.SameSiteStrictMode || cookie.Domain != "example.test" {
		t.Errorf("production cookie = %+v", cookie)
	}
}

func TestLoginRecordsClientHints(t *testing.T) {
	f := newFixture()
	f.do(http.MethodPost, "/api/auth/login", `{"usuario":"jsanchez5678","password":"secreto"}`, func(r *http.Request) {
		r.Header.Set("User-Agent", "test-agent")
		r.Header.Set("Sec-CH-UA-Platform", `"Windows"`)
		r.Header.Set("Sec-CH-UA-Mobile", "?0")
	})

	client := f.auth.loginInput.Client
	if client.UserAgent != "test-agent" {
		t.Errorf("user agent = %q", client.UserAgent)
	}
	var device map[string]string
	if err := json.Unmarshal(client.DeviceInfo, &device); err != nil {
		t.Fatalf("device info %q: %v", client.DeviceInfo, err)
	}
	if device["platform"] != "Windows" || device["mobile"] != "?0" {
		t.Errorf("device = %v", device)
	}
}

func TestLoginValidation(t *testing.T) {
	f := newFixture()
	w := f.do(http.MethodPost, "/api/auth/login", `{"usuario":"jsanchez5678"}`)

	if w.Code != http.StatusBadRequest {
		t.Fatalf("status = %d", w.Code)
	}
	if body := decode(t, w); body.Code != "VALIDATION_ERROR" {
		t.Errorf("code = %q", body.Code)
	}
}

func TestLoginMapsServiceErrors(t *testing.T) {
	cases := []struct {
		err    error
		status int
		code   string
	}{
		{service.ErrInvalidCredentials, http.StatusUnauthorized, "INVALID_CREDENTIALS"},
		{service.ErrAccountDisabled, http.StatusForbidden, "ACCOUNT_DISABLED"},
		{service.ErrAmbiguousRole, http.StatusConflict, "AMBIGUOUS_ROLE"},
		{errors.New("db down"), http.StatusInternalServerError, "INTERNAL_ERROR"},
	}
	for _, tc := range cases {
		t.Run(tc.code, func(t *testing.T) {
			f := newFixture()
			f.auth.loginErr = tc.err
			w := f.do(http.MethodPost, "/api/auth/login", `{"usuario":"x","password":"y"}`)

			if w.Code != tc.status {
				t.Fatalf("status = %d, want %d", w.Code, tc.status)
			}
			body := decode(t, w)
			if body.OK || body.Code != tc.code {
				t.Errorf("body = %+v", body)
			}
			if strings.Contains(w.Body.String(), "db down") {
				t.Error("internal error detail leaked")
			}
		})
	}
}

func TestRefreshRequiresCookie(t *testing.T) {
	f := newFixture()
	w := f.do(http.MethodPost, "/api/auth/refresh", "")

	if w.Code != http.StatusUnauthorized {
		t.Fatalf("status = %d", w.Code)
	}
	body := decode(t, w)
	if body.Code != "MISSING_REFRESH_TOKEN" || body.Message != "Token de refresco requerido" {
		t.Errorf("body = %+v", body)
	}
}

func TestRefreshRotatesCookie(t *testing.T) {
	f := newFixture()
	w := f.do(http.MethodPost, "/api/auth/refresh", "", func(r *http.Request) {
		r.AddCookie(&http.Cookie{Name: "refresh_token", Value: "refresh-old"})
	})

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d body=%s", w.Code, w.Body.String())
	}
	if f.auth.refreshToken != "refresh-old" {
		t.Errorf("refresh token passed = %q", f.auth.refreshToken)
	}
	if cookie := refreshCookie(w); cookie == nil || cookie.Value != "refresh-next" {
		t.Errorf("cookie = %+v", cookie)
	}
}

func TestRefreshFailureClearsCookie(t *testing.T) {
	f := newFixture()
	f.auth.refreshErr = service.ErrInvalidRefreshToken
	w := f.do(http.MethodPost, "/api/auth/refresh", "", func(r *http.Request) {
		r.AddCookie(&http.Cookie{Name: "refresh_token", Value: "stale"})
	})

	if w.Code != http.StatusUnauthorized {
		t.Fatalf("status = %d", w.Code)
	}
	if body := decode(t, w); body.Code != "INVALID_REFRESH_TOKEN" {
		t.Errorf("code = %q", body.Code)
	}
	cookie := refreshCookie(w)
	if cookie == nil || cookie.Value != "" || cookie.MaxAge >= 0 {
		t.Errorf("cookie not cleared: %+v", cookie)
	}
}

func TestLogout(t *testing.T) {
	f := newFixture()

	if w := f.do(http.MethodPost, "/api/auth/logout", ""); w.Code != http.StatusUnauthorized {
		t.Fatalf("anonymous logout status = %d", w.Code)
	}

	w := f.do(http.MethodPost, "/api/auth/logout", "", bearer)
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d", w.Code)
	}
	if body := decode(t, w); body.Message != "Sesión cerrada exitosamente" {
		t.Errorf("message = %q", body.Message)
	}
	if f.auth.loggedOut != "s1" {
		t.Errorf("logged out session = %q", f.auth.loggedOut)
	}
	if cookie := refreshCookie(w); cookie == nil || cookie.MaxAge >= 0 {
		t.Errorf("cookie not cleared: %+v", cookie)
	}
}

func TestMe(t *testing.T) {
	f := newFixture()
	w := f.do(http.MethodGet, "/api/auth/me", "", bearer)

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d", w.Code)
	}
	var profile service.Profile
	if err := json.Unmarshal(decode(t, w).Data, &profile); err != nil {
		t.Fatalf("decode profile: %v", err)
	}
	if profile.User.Username != "jsanchez5678" || profile.RoleID != 1 {
		t.Errorf("profile = %+v", profile)
	}

	f.auth.profileErr = service.ErrUserNotFound
	if w := f.do(http.MethodGet, "/api/auth/me", "", bearer); w.Code != http.StatusNotFound {
		t.Errorf("missing user status = %d", w.Code)
	}
}

func TestSessionsMarkCurrent(t *testing.T) {
	f := newFixture()
	f.auth.sessions = []models.Session{{ID: "s2"}, {ID: "s1"}}
	w := f.do(http.MethodGet, "/api/auth/sessions", "", bearer)

	var sessions []sessionResponse
	if err := json.Unmarshal(decode(t, w).Data, &sessions); err != nil {
		t.Fatalf("decode sessions: %v", err)
	}
	if len(sessions) != 2 || sessions[0].Current || !sessions[1].Current {
		t.Errorf("sessions = %+v", sessions)
	}
}

func TestRevokeSession(t *testing.T) {
	f := newFixture()

	w := f.do(http.MethodDelete, "/api/auth/sessions/s1", "", bearer)
	if w.Code != http.StatusBadRequest || f.auth.revoked != "" {
		t.Errorf("revoking current session: status = %d revoked=%q", w.Code, f.auth.revoked)
	}

	w = f.do(http.MethodDelete, "/api/auth/sessions/s2", "", bearer)
	if w.Code != http.StatusOK || f.auth.revoked != "s2" {
		t.Errorf("status = %d revoked=%q", w.Code, f.auth.revoked)
	}

	f.auth.revokeErr = service.ErrSessionNotFound
	w = f.do(http.MethodDelete, "/api/auth/sessions/s9", "", bearer)
	if w.Code != http.StatusNotFound {
		t.Errorf("unknown session status = %d", w.Code)
	}
}

func TestMenu(t *testing.T) {
	f := newFixture()
	w := f.do(http.MethodGet, "/api/menu", "", bearer)

	var menu []models.MenuModule
	if err := json.Unmarshal(decode(t, w).Data, &menu); err != nil {
		t.Fatalf("decode menu: %v", err)
	}
	if len(menu) != 1 || menu[0].Key != "inicio" {
		t.Errorf("menu = %+v", menu)
	}
}

func TestUsersRequirePermission(t *testing.T) {
	f := newFixture()
	f.auth.permissions = []string{"inicio.ingresar"}

	w := f.do(http.MethodGet, "/api/users", "", bearer)
	if w.Code != http.StatusForbidden {
		t.Fatalf("status = %d", w.Code)
	}
	if body := decode(t, w); body.Code != "FORBIDDEN" {
		t.Errorf("code = %q", body.Code)
	}
}

func TestListUsers(t *testing.T) {
	f := newFixture()
	w := f.do(http.MethodGet, "/api/users?limit=10&offset=20", "", bearer)

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d body=%s", w.Code, w.Body.String())
	}
	if f.users.limit != 10 || f.users.offset != 20 {
		t.Errorf("limit/offset = %d/%d", f.users.limit, f.users.offset)
	}
	if strings.Contains(w.Body.String(), "PasswordHash") {
		t.Error("password hash field exposed")
	}

	if w := f.do(http.MethodGet, "/api/users?limit=500", "", bearer); w.Code != http.StatusBadRequest {
		t.Errorf("oversized limit status = %d", w.Code)
	}
}

func TestCheckUsername(t *testing.T) {
	f := newFixture()

	w := f.do(http.MethodGet, "/api/users/check-username?u=anaperez1234", "", bearer)
	if body := decode(t, w); w.Code != http.StatusOK || !body.OK || body.Available == nil || !*body.Available {
		t.Errorf("free username: status=%d body=%s", w.Code, w.Body.String())
	}

	f.users.taken = true
	w = f.do(http.MethodGet, "/api/users/check-username?u=anaperez1234", "", bearer)
	body := decode(t, w)
	if w.Code != http.StatusConflict || body.Code != "USERNAME_TAKEN" || body.Available == nil || *body.Available {
		t.Errorf("taken username: status=%d body=%s", w.Code, w.Body.String())
	}

	w = f.do(http.MethodGet, "/api/users/check-username?u=Ana-P", "", bearer)
	if w.Code != http.StatusBadRequest {
		t.Errorf("malformed username status = %d", w.Code)
	}
}

func TestCreateUser(t *testing.T) {
	f := newFixture()
	w := f.do(http.MethodPost, "/api/users",
		`{"firstName":"Ana","lastName":"Pérez","document":"10001234","password":"supersecreto","roles":[1,2],"activeRole":2}`,
		bearer)

	if w.Code != http.StatusCreated {
		t.Fatalf("status = %d body=%s", w.Code, w.Body.String())
	}
	if body := decode(t, w); body.Message != "Usuario creado exitosamente" {
		t.Errorf("message = %q", body.Message)
	}
	if !f.users.created.Enabled || f.users.created.ActiveRole != 2 || len(f.users.created.Roles) != 2 {
		t.Errorf("created input = %+v", f.users.created)
	}
}

func TestCreateUserPassesNamePartsToService(t *testing.T) {
	f := newFixture()
	w := f.do(http.MethodPost, "/api/users",
		`{"firstName":"Ana","lastName":"Pérez","secondLastName":"Gómez","document":"10001234","password":"supersecreto","roles":[1],"activeRole":1}`,
		bearer)

	if w.Code != http.StatusCreated {
		t.Fatalf("status = %d body=%s", w.Code, w.Body.String())
	}
	in := f.users.created
	if in.FirstName != "Ana" || in.LastName != "Pérez" || in.Document != "10001234" {
		t.Errorf("created input = %+v", in)
	}
}

func TestCreateUserValidation(t *testing.T) {
	cases := map[string]string{
		"short document": `{"firstName":"Ana","lastName":"Pérez","document":"123","password":"supersecreto","roles":[1],"activeRole":1}`,
		"short password": `{"firstName":"Ana","lastName":"Pérez","document":"10001234","password":"corto","roles":[1],"activeRole":1}`,
		"three roles":    `{"firstName":"Ana","lastName":"Pérez","document":"10001234","password":"supersecreto","roles":[1,2,3],"activeRole":1}`,
		"no roles":       `{"firstName":"Ana","lastName":"Pérez","document":"10001234","password":"supersecreto","roles":[],"activeRole":1}`,
		"bad person id":  `{"firstName":"Ana","lastName":"Pérez","document":"10001234","password":"supersecreto","roles":[1],"activeRole":1,"personId":"nope"}`,
	}
	for name, payload := range cases {
		t.Run(name, func(t *testing.T) {
			f := newFixture()
			w := f.do(http.MethodPost, "/api/users", payload, bearer)
			if w.Code != http.StatusBadRequest {
				t.Fatalf("status = %d body=%s", w.Code, w.Body.String())
			}
			if body := decode(t, w); body.Code != "VALIDATION_ERROR" {
				t.Errorf("code = %q", body.Code)
			}
		})
	}
}

func TestCreateUserServiceErrors(t *testing.T) {
	f := newFixture()
	f.users.createErr = service.ErrActiveRoleNotAssigned
	w := f.do(http.MethodPost, "/api/users",
		`{"firstName":"Ana","lastName":"Pérez","document":"10001234","password":"supersecreto","roles":[1],"activeRole":3}`,
		bearer)

	if w.Code != http.StatusBadRequest {
		t.Fatalf("status = %d", w.Code)
	}
	if body := decode(t, w); body.Code != "INVALID_ROLES" {
		t.Errorf("code = %q", body.Code)
	}

	f.users.createErr = service.ErrUsernameTaken
	w = f.do(http.MethodPost, "/api/users",
		`{"firstName":"Ana","lastName":"Pérez","document":"10001234","password":"supersecreto","roles":[1],"activeRole":1}`,
		bearer)
	if w.Code != http.StatusConflict {
		t.Errorf("taken status = %d", w.Code)
	}
}

func TestSetUserStatus(t *testing.T) {
	f := newFixture()

	if w := f.do(http.MethodPatch, "/api/users/abc/status", `{"enabled":false}`, bearer); w.Code != http.StatusBadRequest {
		t.Errorf("bad id status = %d", w.Code)
	}
	if w := f.do(http.MethodPatch, "/api/users/5/status", `{}`, bearer); w.Code != http.StatusBadRequest {
		t.Errorf("missing flag status = %d", w.Code)
	}

	w := f.do(http.MethodPatch, "/api/users/5/status", `{"enabled":false}`, bearer)
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d body=%s", w.Code, w.Body.String())
	}
	if enabled, ok := f.users.enabled[5]; !ok || enabled {
		t.Errorf("enabled map = %v", f.users.enabled)
	}
}

func TestHealth(t *testing.T) {
	f := newFixture()
	f.checks = map[string]HealthCheck{
		"database": func(context.Context) error { return nil },
		"cache":    func(context.Context) error { return errors.New("refused") },
	}

	w := f.do(http.MethodGet, "/api/healthz", "")
	if w.Code != http.StatusServiceUnavailable {
		t.Fatalf("status = %d", w.Code)
	}
	var resp healthResponse
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if resp.Status != "degraded" || resp.Checks["database"] != "ok" || resp.Checks["cache"] != "error" {
		t.Errorf("health = %+v", resp)
	}

	f.checks["cache"] = func(context.Context) error { return nil }
	if w := f.do(http.MethodGet, "/api/healthz", ""); w.Code != http.StatusOK {
		t.Errorf("healthy status = %d", w.Code)
	}
}

func TestCustomValidationsRegister(t *testing.T) {
	if err := registerValidators(); err != nil {
		t.Fatalf("registerValidators: %v", err)
	}

	v := validator.New()
	if err := registerCustomValidations(v); err != nil {
		t.Fatalf("registerCustomValidations: %v", err)
	}
	if err := v.Var("jperez1234", "username"); err != nil {
		t.Errorf("valid username rejected: %v", err)
	}
	if err := v.Var("JP", "username"); err == nil {
		t.Error("short uppercase username accepted")
	}
}
