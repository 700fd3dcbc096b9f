package session

import (
	"testing"
	"time"

	memory "github.com/gofiber/storage/memory/v2"

	"github.com/gendoc-app/gendoc/internal/db/models"
)

func newTestManager(t *testing.T, lookup UserLookup) *Manager {
	t.Helper()

	return NewManager(memory.New(), time.Hour, time.Hour, lookup)
}

func testUser() *models.User {
	return &models.User{
		ID:       7,
		Active:   true,
		Username: "alice",
		Role:     models.RoleUser,
	}
}

func TestBind_RotatesSessionID(t *testing.T) {
	m := newTestManager(t, nil)

	sess, err := m.StartAnonymous()
	if err != nil {
		t.Fatalf("StartAnonymous: %v", err)
	}

	preLoginID := sess.ID()

	if sess.Authenticated() {
		t.Fatal("fresh session must be anonymous")
	}

	if err := sess.Bind(testUser()); err != nil {
		t.Fatalf("Bind: %v", err)
	}

	if sess.ID() == preLoginID {
		t.Fatal("session id must rotate on bind")
	}

	if !sess.Authenticated() || sess.UserID() != 7 {
		t.Fatalf("expected authenticated session for user 7, got user %d", sess.UserID())
	}

	// the pre-login id must no longer resolve to the bound session
	replayed, err := m.Resolve(preLoginID)
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}

	if replayed.Authenticated() {
		t.Fatal("pre-login id must not resolve to an authenticated session")
	}

	if replayed.ID() == preLoginID {
		t.Fatal("unknown id must be replaced by a fresh one")
	}
}

func TestLogout_InvalidatesID(t *testing.T) {
	m := newTestManager(t, nil)

	sess, _ := m.StartAnonymous()
	if err := sess.Bind(testUser()); err != nil {
		t.Fatalf("Bind: %v", err)
	}

	postLoginID := sess.ID()

	if err := sess.Logout(); err != nil {
		t.Fatalf("Logout: %v", err)
	}

	if sess.Authenticated() || !sess.Destroyed() {
		t.Fatal("logged out session must be destroyed")
	}

	replayed, err := m.Resolve(postLoginID)
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}

	if replayed.Authenticated() {
		t.Fatal("replay of a logged out id must behave as anonymous")
	}
}

func TestResolve_ExpiresInactiveSession(t *testing.T) {
	m := newTestManager(t, nil)

	now := time.Now()
	m.now = func() time.Time { return now }

	sess, _ := m.StartAnonymous()
	if err := sess.Bind(testUser()); err != nil {
		t.Fatalf("Bind: %v", err)
	}

	id := sess.ID()

	// before the timeout the session stays bound
	now = now.Add(30 * time.Minute)

	alive, _ := m.Resolve(id)
	if !alive.Authenticated() {
		t.Fatal("session must survive within the timeout")
	}

	// past the timeout any access forces a logout first
	now = now.Add(2 * time.Hour)

	expired, err := m.Resolve(id)
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}

	if expired.Authenticated() {
		t.Fatal("expired session must resolve as anonymous")
	}

	if expired.ID() == id {
		t.Fatal("expired session id must not be reused")
	}
}

func TestResolve_SelfHealsInactiveUser(t *testing.T) {
	active := true
	lookup := func(userID uint64) (*models.User, bool) {
		if !active {
			return nil, false
		}

		u := testUser()
		u.ID = userID

		return u, true
	}

	m := newTestManager(t, lookup)

	sess, _ := m.StartAnonymous()
	if err := sess.Bind(testUser()); err != nil {
		t.Fatalf("Bind: %v", err)
	}

	id := sess.ID()

	if got, _ := m.Resolve(id); !got.Authenticated() {
		t.Fatal("session must stay bound while the user is active")
	}

	// deactivate the user behind the session's back
	active = false

	healed, err := m.Resolve(id)
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}

	if healed.Authenticated() {
		t.Fatal("session bound to an inactive user must be forced out")
	}
}

func TestCSRFTokenLifecycle(t *testing.T) {
	m := newTestManager(t, nil)
	sess, _ := m.StartAnonymous()

	token, err := sess.IssueCSRFToken()
	if err != nil {
		t.Fatalf("IssueCSRFToken: %v", err)
	}

	if !sess.VerifyCSRFToken(token) {
		t.Fatal("issued token must verify")
	}

	if sess.VerifyCSRFToken("anything-else") {
		t.Fatal("foreign token must not verify")
	}

	// verification does not consume the token
	if !sess.VerifyCSRFToken(token) {
		t.Fatal("token must stay valid until reissued")
	}

	second, err := sess.IssueCSRFToken()
	if err != nil {
		t.Fatalf("IssueCSRFToken: %v", err)
	}

	if sess.VerifyCSRFToken(token) {
		t.Fatal("first token must be invalid after reissue")
	}

	if !sess.VerifyCSRFToken(second) {
		t.Fatal("second token must verify")
	}
}

func TestVerifyCSRFToken_EmptyNeverVerifies(t *testing.T) {
	m := newTestManager(t, nil)
	sess, _ := m.StartAnonymous()

	if sess.VerifyCSRFToken("") {
		t.Fatal("empty candidate must not verify")
	}

	if sess.VerifyCSRFToken("guess") {
		t.Fatal("candidate must not verify before any token was issued")
	}
}

func TestFlash_ReadOnce(t *testing.T) {
	m := newTestManager(t, nil)
	sess, _ := m.StartAnonymous()

	if err := sess.SetFlash("error", "x"); err != nil {
		t.Fatalf("SetFlash: %v", err)
	}

	if got := sess.GetFlash("error"); got != "x" {
		t.Fatalf("GetFlash = %q, want %q", got, "x")
	}

	if got := sess.GetFlash("error"); got != "" {
		t.Fatalf("second GetFlash = %q, want empty", got)
	}

	// the removal is persisted, a re-resolved session sees nothing either
	resolved, _ := m.Resolve(sess.ID())
	if got := resolved.GetFlash("error"); got != "" {
		t.Fatalf("GetFlash after re-resolve = %q, want empty", got)
	}
}

func TestFlash_PersistsAcrossResolve(t *testing.T) {
	m := newTestManager(t, nil)
	sess, _ := m.StartAnonymous()

	if err := sess.SetFlash("success", "saved"); err != nil {
		t.Fatalf("SetFlash: %v", err)
	}

	next, err := m.Resolve(sess.ID())
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}

	if got := next.GetFlash("success"); got != "saved" {
		t.Fatalf("GetFlash = %q, want %q", got, "saved")
	}
}

func TestTouch_UpdatesActivity(t *testing.T) {
	m := newTestManager(t, nil)

	now := time.Now()
	m.now = func() time.Time { return now }

	sess, _ := m.StartAnonymous()
	if err := sess.Bind(testUser()); err != nil {
		t.Fatalf("Bind: %v", err)
	}

	id := sess.ID()

	// keep touching within the window, the session must never expire
	for i := 0; i < 3; i++ {
		now = now.Add(45 * time.Minute)

		current, err := m.Resolve(id)
		if err != nil {
			t.Fatalf("Resolve: %v", err)
		}

		if !current.Authenticated() {
			t.Fatalf("session expired despite activity at step %d", i)
		}

		if err := current.Touch(); err != nil {
			t.Fatalf("Touch: %v", err)
		}
	}
}
