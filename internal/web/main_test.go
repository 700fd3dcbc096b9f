package web

import (
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"regexp"
	"strings"
	"testing"
	"time"

	"github.com/glebarez/sqlite"
	memory "github.com/gofiber/storage/memory/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/gendoc-app/gendoc/internal/audit"
	"github.com/gendoc-app/gendoc/internal/auth"
	"github.com/gendoc-app/gendoc/internal/config"
	"github.com/gendoc-app/gendoc/internal/db/models"
	"github.com/gendoc-app/gendoc/internal/lockout"
	"github.com/gendoc-app/gendoc/internal/web/session"
)

var csrfTokenPattern = regexp.MustCompile(`name="csrf_token" value="([A-Za-z0-9]+)"`)

type testEnv struct {
	service *Service
	db      *gorm.DB
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()

	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{})
	require.NoError(t, err)

	require.NoError(t, db.AutoMigrate(
		&models.User{},
		&models.Setting{},
		&models.Template{},
		&models.Document{},
		&models.AuditLog{},
	))

	cfg := &config.Config{Title: "Gendoc"}
	cfg.Webserver.Session.ExpiryTime = 24 * time.Hour
	cfg.Security.MaxLoginAttempts = 5
	cfg.Security.LockoutWindow = 15 * time.Minute
	cfg.Security.SessionTimeout = time.Hour

	recorder := audit.NewRecorder(db)
	tracker := lockout.New(cfg.Security.MaxLoginAttempts, cfg.Security.LockoutWindow, recorder)

	authService, err := auth.NewService(db, cfg, tracker, recorder)
	require.NoError(t, err)

	sessions := session.NewManager(memory.New(), 24*time.Hour, time.Hour, func(userID uint64) (*models.User, bool) {
		user, err := authService.Local().GetUserByID(userID)
		if err != nil {
			return nil, false
		}

		return user, user.Active
	})

	service, err := New(cfg, db, sessions, authService, recorder)
	require.NoError(t, err)

	return &testEnv{service: service, db: db}
}

func (e *testEnv) do(t *testing.T, req *http.Request) *http.Response {
	t.Helper()

	resp, err := e.service.App.Test(req, 5000)
	require.NoError(t, err)

	return resp
}

func (e *testEnv) get(t *testing.T, path string, cookies ...*http.Cookie) *http.Response {
	t.Helper()

	req := httptest.NewRequest(http.MethodGet, path, nil)
	for _, c := range cookies {
		req.AddCookie(c)
	}

	return e.do(t, req)
}

func (e *testEnv) postForm(t *testing.T, path string, form url.Values, cookies ...*http.Cookie) *http.Response {
	t.Helper()

	req := httptest.NewRequest(http.MethodPost, path, strings.NewReader(form.Encode()))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	for _, c := range cookies {
		req.AddCookie(c)
	}

	return e.do(t, req)
}

func sessionCookie(t *testing.T, resp *http.Response) *http.Cookie {
	t.Helper()

	for _, c := range resp.Cookies() {
		if c.Name == SessionCookieName {
			return c
		}
	}

	t.Fatal("no session cookie in response")

	return nil
}

func readBody(t *testing.T, resp *http.Response) string {
	t.Helper()

	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)

	return string(body)
}

func extractCSRFToken(t *testing.T, body string) string {
	t.Helper()

	m := csrfTokenPattern.FindStringSubmatch(body)
	require.NotNil(t, m, "no csrf token in page")

	return m[1]
}

// installAdmin runs the install wizard and returns nothing; the admin
// account "admin"/"admin-password-1" exists afterwards.
func (e *testEnv) installAdmin(t *testing.T) {
	t.Helper()

	resp := e.get(t, "/install")
	require.Equal(t, http.StatusOK, resp.StatusCode)

	cookie := sessionCookie(t, resp)
	token := extractCSRFToken(t, readBody(t, resp))

	resp = e.postForm(t, "/install", url.Values{
		"csrf_token":       {token},
		"username":         {"admin"},
		"password":         {"admin-password-1"},
		"password_confirm": {"admin-password-1"},
	}, cookie)

	require.Equal(t, http.StatusSeeOther, resp.StatusCode)
	require.Equal(t, "/login", resp.Header.Get("Location"))
}

// login performs a full login and returns the authenticated session cookie.
func (e *testEnv) login(t *testing.T, username, password string) *http.Cookie {
	t.Helper()

	resp := e.get(t, "/login")
	require.Equal(t, http.StatusOK, resp.StatusCode)

	cookie := sessionCookie(t, resp)
	token := extractCSRFToken(t, readBody(t, resp))

	resp = e.postForm(t, "/login", url.Values{
		"csrf_token": {token},
		"username":   {username},
		"password":   {password},
	}, cookie)

	require.Equal(t, http.StatusSeeOther, resp.StatusCode)
	require.Equal(t, "/dashboard", resp.Header.Get("Location"))

	rotated := sessionCookie(t, resp)
	require.NotEqual(t, cookie.Value, rotated.Value, "session id must rotate on login")

	return rotated
}

func TestFirstLaunchRedirectsToInstall(t *testing.T) {
	env := newTestEnv(t)

	resp := env.get(t, "/login")

	assert.Equal(t, http.StatusSeeOther, resp.StatusCode)
	assert.Equal(t, "/install", resp.Header.Get("Location"))
}

func TestInstallAndLoginFlow(t *testing.T) {
	env := newTestEnv(t)
	env.installAdmin(t)

	// the wizard refuses to run twice
	resp := env.get(t, "/install")
	assert.Equal(t, http.StatusSeeOther, resp.StatusCode)
	assert.Equal(t, "/login", resp.Header.Get("Location"))

	cookie := env.login(t, "admin", "admin-password-1")

	resp = env.get(t, "/dashboard", cookie)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, readBody(t, resp), "Dashboard")
}

func TestProtectedRouteAnonymous(t *testing.T) {
	env := newTestEnv(t)
	env.installAdmin(t)

	resp := env.get(t, "/dashboard")
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)
}

func TestUnknownRouteIs404(t *testing.T) {
	env := newTestEnv(t)
	env.installAdmin(t)

	resp := env.get(t, "/no/such/page")
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestAJAXErrorsAreJSON(t *testing.T) {
	env := newTestEnv(t)
	env.installAdmin(t)

	req := httptest.NewRequest(http.MethodGet, "/no/such/page", nil)
	req.Header.Set("X-Requested-With", "XMLHttpRequest")

	resp := env.do(t, req)

	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
	assert.Contains(t, resp.Header.Get("Content-Type"), "application/json")
	assert.Contains(t, readBody(t, resp), `"error"`)
}

func TestLoginWrongPasswordFlashesGenericError(t *testing.T) {
	env := newTestEnv(t)
	env.installAdmin(t)

	resp := env.get(t, "/login")
	cookie := sessionCookie(t, resp)
	token := extractCSRFToken(t, readBody(t, resp))

	resp = env.postForm(t, "/login", url.Values{
		"csrf_token": {token},
		"username":   {"admin"},
		"password":   {"not the password"},
	}, cookie)

	require.Equal(t, http.StatusSeeOther, resp.StatusCode)
	require.Equal(t, "/login", resp.Header.Get("Location"))

	// the flash message is generic
	resp = env.get(t, "/login", cookie)
	assert.Contains(t, readBody(t, resp), "Invalid username or password")
}

func TestLockedAccountFlashesGenericError(t *testing.T) {
	env := newTestEnv(t)
	env.installAdmin(t)

	resp := env.get(t, "/login")
	cookie := sessionCookie(t, resp)

	// five failures exhaust the attempt budget, the sixth hits the
	// locked account
	for i := 0; i < 6; i++ {
		resp = env.get(t, "/login", cookie)
		token := extractCSRFToken(t, readBody(t, resp))

		resp = env.postForm(t, "/login", url.Values{
			"csrf_token": {token},
			"username":   {"admin"},
			"password":   {"not the password"},
		}, cookie)
		require.Equal(t, http.StatusSeeOther, resp.StatusCode)
	}

	// the lockout is indistinguishable from a bad password
	resp = env.get(t, "/login", cookie)
	body := readBody(t, resp)
	assert.Contains(t, body, "Invalid username or password")
	assert.NotContains(t, body, "Too many failed login attempts")
}

func TestLoginRejectsBadCSRFToken(t *testing.T) {
	env := newTestEnv(t)
	env.installAdmin(t)

	resp := env.get(t, "/login")
	cookie := sessionCookie(t, resp)

	resp = env.postForm(t, "/login", url.Values{
		"csrf_token": {"forged"},
		"username":   {"admin"},
		"password":   {"admin-password-1"},
	}, cookie)

	require.Equal(t, http.StatusSeeOther, resp.StatusCode)
	require.Equal(t, "/login", resp.Header.Get("Location"))

	// the rejection is audited
	var count int64
	require.NoError(t, env.db.Model(&models.AuditLog{}).
		Where("action = ?", models.AuditCSRFRejected).
		Count(&count).Error)
	assert.EqualValues(t, 1, count)
}

func TestLogoutInvalidatesSession(t *testing.T) {
	env := newTestEnv(t)
	env.installAdmin(t)

	cookie := env.login(t, "admin", "admin-password-1")

	resp := env.get(t, "/logout", cookie)
	require.Equal(t, http.StatusSeeOther, resp.StatusCode)
	require.Equal(t, "/login", resp.Header.Get("Location"))

	// replaying the old post-login id behaves as anonymous
	resp = env.get(t, "/dashboard", cookie)
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)
}

func TestAdminRouteRequiresRole(t *testing.T) {
	env := newTestEnv(t)
	env.installAdmin(t)

	admin := env.login(t, "admin", "admin-password-1")

	// create a regular user through the admin area
	resp := env.get(t, "/admin/users", admin)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	token := extractCSRFToken(t, readBody(t, resp))

	resp = env.postForm(t, "/admin/users", url.Values{
		"csrf_token": {token},
		"username":   {"bob"},
		"password":   {"bob-password-1"},
		"role":       {"user"},
	}, admin)
	require.Equal(t, http.StatusSeeOther, resp.StatusCode)

	user := env.login(t, "bob", "bob-password-1")

	resp = env.get(t, "/templates", user)
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)

	resp = env.get(t, "/templates", admin)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestDirectorySearchRequiresDirectory(t *testing.T) {
	env := newTestEnv(t)
	env.installAdmin(t)

	admin := env.login(t, "admin", "admin-password-1")

	resp := env.get(t, "/admin/users/directory", admin)
	require.Equal(t, http.StatusSeeOther, resp.StatusCode)
	require.Equal(t, "/admin/users", resp.Header.Get("Location"))

	resp = env.get(t, "/admin/users", admin)
	assert.Contains(t, readBody(t, resp), "Directory authentication is not enabled")
}

func TestDirectoryConnectionTestRequiresDirectory(t *testing.T) {
	env := newTestEnv(t)
	env.installAdmin(t)

	admin := env.login(t, "admin", "admin-password-1")

	resp := env.get(t, "/settings", admin)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	token := extractCSRFToken(t, readBody(t, resp))

	resp = env.postForm(t, "/settings/directory/test", url.Values{
		"csrf_token": {token},
	}, admin)
	require.Equal(t, http.StatusSeeOther, resp.StatusCode)
	require.Equal(t, "/settings", resp.Header.Get("Location"))

	resp = env.get(t, "/settings", admin)
	assert.Contains(t, readBody(t, resp), "Directory authentication is not enabled")
}

func TestDocumentLifecycle(t *testing.T) {
	env := newTestEnv(t)
	env.installAdmin(t)

	admin := env.login(t, "admin", "admin-password-1")

	// add a template first
	resp := env.get(t, "/templates", admin)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	token := extractCSRFToken(t, readBody(t, resp))

	resp = env.postForm(t, "/templates", url.Values{
		"csrf_token": {token},
		"name":       {"Letter"},
		"filename":   {"letter.docx"},
		"fields":     {`["recipient"]`},
	}, admin)
	require.Equal(t, http.StatusSeeOther, resp.StatusCode)

	// generate a document from it
	resp = env.get(t, "/documents/new", admin)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	token = extractCSRFToken(t, readBody(t, resp))

	resp = env.postForm(t, "/documents", url.Values{
		"csrf_token":  {token},
		"template_id": {"1"},
		"title":       {"Letter to Bob"},
	}, admin)
	require.Equal(t, http.StatusSeeOther, resp.StatusCode)

	resp = env.get(t, "/documents", admin)
	assert.Contains(t, readBody(t, resp), "Letter to Bob")

	// documents are owner-scoped: another user sees nothing
	respUsers := env.get(t, "/admin/users", admin)
	token = extractCSRFToken(t, readBody(t, respUsers))

	resp = env.postForm(t, "/admin/users", url.Values{
		"csrf_token": {token},
		"username":   {"bob"},
		"password":   {"bob-password-1"},
		"role":       {"user"},
	}, admin)
	require.Equal(t, http.StatusSeeOther, resp.StatusCode)

	bob := env.login(t, "bob", "bob-password-1")

	resp = env.get(t, "/documents/1", bob)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}
