// Package session owns the server-side session lifecycle: identity binding
// with anti-fixation rotation, inactivity expiry, one-shot flash messages and
// CSRF token issuance/verification.
//
// Session blobs are JSON documents keyed by an opaque identifier in a
// storage.Storage backend, so any gofiber storage driver can back the store.
// Authentication-state transitions are serialized per session id; flash
// writes and activity stamps are last-write-wins.
package session

import (
	"crypto/rand"
	"crypto/subtle"
	"encoding/hex"
	"encoding/json"
	"hash/fnv"
	"sync"
	"time"

	"github.com/gofiber/storage"
	"github.com/rs/zerolog/log"

	"github.com/gendoc-app/gendoc/internal/db/models"
	"github.com/gendoc-app/gendoc/internal/uniuri"
)

const (
	lockStripes = 64

	// csrfTokenLength is the character length of issued CSRF tokens,
	// roughly 190 bits of entropy over the standard charset.
	csrfTokenLength = 32
)

// UserLookup resolves a bound user id against the credential store. It is
// used to self-heal sessions whose user vanished or was deactivated.
type UserLookup func(userID uint64) (*models.User, bool)

// Manager owns all sessions in a storage backend.
type Manager struct {
	storage storage.Storage
	ttl     time.Duration
	timeout time.Duration
	lookup  UserLookup
	locks   [lockStripes]sync.Mutex

	now func() time.Time
}

// Data is the serialized per-session state.
type Data struct {
	UserID       uint64            `json:"user_id,omitempty"`
	User         *models.User      `json:"user,omitempty"`
	AuthTime     time.Time         `json:"auth_time,omitzero"`
	LastActivity time.Time         `json:"last_activity,omitzero"`
	CSRFToken    string            `json:"csrf_token,omitempty"`
	Flash        map[string]string `json:"flash,omitempty"`
}

// Session is one resolved client session. Exactly one of anonymous or
// authenticated (bound user id set) holds at any time.
type Session struct {
	manager   *Manager
	id        string
	data      Data
	destroyed bool
}

// NewManager creates a session manager.
//
// ttl is the storage retention for session blobs, timeout the inactivity
// span after which an authenticated session is forced out (default 1 hour
// when zero). lookup may be nil to disable user self-healing.
func NewManager(st storage.Storage, ttl, timeout time.Duration, lookup UserLookup) *Manager {
	if st == nil {
		panic("storage is nil")
	}

	if timeout == 0 {
		timeout = time.Hour
	}

	if ttl == 0 {
		ttl = 24 * time.Hour
	}

	return &Manager{
		storage: st,
		ttl:     ttl,
		timeout: timeout,
		lookup:  lookup,
		now:     time.Now,
	}
}

// GenerateSessionID generates a new secure random session ID.
func GenerateSessionID() (string, error) {
	// 32 bytes = 256 bits
	b := make([]byte, 32) //nolint:mnd
	if _, err := rand.Read(b); err != nil {
		return "", err
	}

	return hex.EncodeToString(b), nil
}

func (m *Manager) lockFor(id string) *sync.Mutex {
	h := fnv.New32a()
	_, _ = h.Write([]byte(id))

	return &m.locks[h.Sum32()%lockStripes]
}

func (m *Manager) write(id string, data *Data) error {
	out, err := json.Marshal(data)
	if err != nil {
		return err
	}

	return m.storage.Set(id, out, m.ttl)
}

func (m *Manager) read(id string) (*Data, bool) {
	raw, err := m.storage.Get(id)
	if err != nil || len(raw) == 0 {
		return nil, false
	}

	var data Data
	if err := json.Unmarshal(raw, &data); err != nil {
		return nil, false
	}

	return &data, true
}

// StartAnonymous creates and persists a fresh anonymous session.
func (m *Manager) StartAnonymous() (*Session, error) {
	id, err := GenerateSessionID()
	if err != nil {
		return nil, err
	}

	sess := &Session{
		manager: m,
		id:      id,
		data:    Data{LastActivity: m.now()},
	}

	if err := m.write(id, &sess.data); err != nil {
		return nil, err
	}

	return sess, nil
}

// Resolve loads the session for the given client-supplied id, creating a
// fresh anonymous session when the id is absent, unknown or corrupt.
//
// An authenticated session past the inactivity timeout, or one whose bound
// user no longer exists or is inactive, is destroyed and replaced by a fresh
// anonymous session before the caller ever sees it.
func (m *Manager) Resolve(id string) (*Session, error) {
	if id == "" {
		return m.StartAnonymous()
	}

	mu := m.lockFor(id)
	mu.Lock()

	data, ok := m.read(id)
	if !ok {
		mu.Unlock()
		return m.StartAnonymous()
	}

	sess := &Session{manager: m, id: id, data: *data}

	if sess.Authenticated() && m.now().Sub(data.LastActivity) > m.timeout {
		if err := m.storage.Delete(id); err != nil {
			log.Error().Err(err).Msg("failed to delete expired session")
		}

		mu.Unlock()

		log.Debug().Str("session", abbrev(id)).Msg("session expired, forcing logout")

		return m.StartAnonymous()
	}

	if sess.Authenticated() && m.lookup != nil {
		user, active := m.lookup(data.UserID)
		if !active {
			if err := m.storage.Delete(id); err != nil {
				log.Error().Err(err).Msg("failed to delete stale session")
			}

			mu.Unlock()

			log.Warn().Uint64("user_id", data.UserID).
				Msg("session bound to missing or inactive user, forcing logout")

			return m.StartAnonymous()
		}

		// refresh the snapshot from the credential store
		sess.data.User = user
	}

	mu.Unlock()

	return sess, nil
}

// abbrev shortens a session id for log output.
func abbrev(id string) string {
	if len(id) <= 8 {
		return id
	}

	return id[:8]
}

// ID returns the current session identifier.
func (s *Session) ID() string {
	return s.id
}

// Destroyed reports whether the session has been logged out and its
// identifier invalidated.
func (s *Session) Destroyed() bool {
	return s.destroyed
}

// Authenticated reports whether a user is bound to this session.
func (s *Session) Authenticated() bool {
	return !s.destroyed && s.data.UserID != 0
}

// UserID returns the bound user id, zero when anonymous.
func (s *Session) UserID() uint64 {
	return s.data.UserID
}

// User returns the cached user snapshot, nil when anonymous.
func (s *Session) User() *models.User {
	if !s.Authenticated() {
		return nil
	}

	return s.data.User
}

// AuthTime returns when the session was bound to its user.
func (s *Session) AuthTime() time.Time {
	return s.data.AuthTime
}

// Bind transitions the session from Anonymous to Authenticated for the given
// user and rotates the session identifier, so an id issued before login is
// never valid afterwards. The transition is atomic per session id.
func (s *Session) Bind(user *models.User) error {
	newID, err := GenerateSessionID()
	if err != nil {
		return err
	}

	m := s.manager
	mu := m.lockFor(s.id)
	mu.Lock()
	defer mu.Unlock()

	oldID := s.id
	now := m.now()

	s.data.UserID = user.ID
	s.data.User = user
	s.data.AuthTime = now
	s.data.LastActivity = now

	if err := m.write(newID, &s.data); err != nil {
		return err
	}

	if err := m.storage.Delete(oldID); err != nil {
		log.Error().Err(err).Msg("failed to delete pre-login session")
	}

	s.id = newID

	return nil
}

// Logout transitions the session to Anonymous: all state is cleared and the
// identifier is invalidated, so a replayed id behaves as a fresh client.
func (s *Session) Logout() error {
	m := s.manager
	mu := m.lockFor(s.id)
	mu.Lock()
	defer mu.Unlock()

	if err := m.storage.Delete(s.id); err != nil {
		return err
	}

	s.data = Data{}
	s.destroyed = true

	return nil
}

// Touch updates the activity stamp. Called on every authenticated request.
func (s *Session) Touch() error {
	m := s.manager
	mu := m.lockFor(s.id)
	mu.Lock()
	defer mu.Unlock()

	s.data.LastActivity = m.now()

	return m.write(s.id, &s.data)
}

// IssueCSRFToken generates, stores and returns a new CSRF token for
// embedding in the next rendered form. Issuing invalidates any previous
// token.
func (s *Session) IssueCSRFToken() (string, error) {
	token := uniuri.NewLen(csrfTokenLength)

	m := s.manager
	mu := m.lockFor(s.id)
	mu.Lock()
	defer mu.Unlock()

	s.data.CSRFToken = token

	if err := m.write(s.id, &s.data); err != nil {
		return "", err
	}

	return token, nil
}

// VerifyCSRFToken compares the candidate against the stored token in
// constant time. Verification does not rotate the token; it stays valid
// until the next IssueCSRFToken call.
func (s *Session) VerifyCSRFToken(candidate string) bool {
	if s.data.CSRFToken == "" || candidate == "" {
		return false
	}

	return subtle.ConstantTimeCompare([]byte(s.data.CSRFToken), []byte(candidate)) == 1
}

// SetFlash stores a one-shot message under the given key, replacing any
// previous message for that key.
func (s *Session) SetFlash(key, message string) error {
	m := s.manager
	mu := m.lockFor(s.id)
	mu.Lock()
	defer mu.Unlock()

	if s.data.Flash == nil {
		s.data.Flash = make(map[string]string)
	}

	s.data.Flash[key] = message

	return m.write(s.id, &s.data)
}

// GetFlash returns and removes the message stored under the given key.
// A second read returns the empty string.
func (s *Session) GetFlash(key string) string {
	m := s.manager
	mu := m.lockFor(s.id)
	mu.Lock()
	defer mu.Unlock()

	message, ok := s.data.Flash[key]
	if !ok {
		return ""
	}

	delete(s.data.Flash, key)

	if err := m.write(s.id, &s.data); err != nil {
		log.Error().Err(err).Msg("failed to persist flash removal")
	}

	return message
}
