package auth

import (
	"errors"
	"strings"

	"gorm.io/gorm"

	"github.com/gendoc-app/gendoc/internal/audit"
	"github.com/gendoc-app/gendoc/internal/config"
	"github.com/gendoc-app/gendoc/internal/db/models"
	"github.com/gendoc-app/gendoc/internal/lockout"
)

// Authentication strategies.
const (
	StrategyLocal     = "local"
	StrategyDirectory = "directory"
)

// Service verifies credentials against the configured backends, enforcing
// the per-account lockout before any backend is consulted.
type Service struct {
	db        *gorm.DB
	local     *LocalProvider
	directory *DirectoryProvider
	lockout   *lockout.Tracker
	recorder  *audit.Recorder
}

// NewService creates the authentication service. The directory provider is
// only constructed when directory authentication is enabled.
func NewService(
	db *gorm.DB,
	cfg *config.Config,
	tracker *lockout.Tracker,
	recorder *audit.Recorder,
) (*Service, error) {
	s := &Service{
		db:       db,
		local:    NewLocalProvider(db),
		lockout:  tracker,
		recorder: recorder,
	}

	if cfg.LDAP.Enabled {
		directory, err := NewDirectoryProvider(&cfg.LDAP, db)
		if err != nil {
			return nil, err
		}

		s.directory = directory
	}

	return s, nil
}

// Local returns the local provider for user administration.
func (s *Service) Local() *LocalProvider {
	return s.local
}

// Directory returns the directory provider, nil when disabled.
func (s *Service) Directory() *DirectoryProvider {
	return s.directory
}

// DirectoryEnabled reports whether directory authentication can be offered.
func (s *Service) DirectoryEnabled() bool {
	return s.directory != nil
}

// Authenticate verifies the credentials using the given strategy and returns
// the authenticated user.
//
// The returned error is one of the package sentinel values (possibly
// wrapped); callers map every failure to the same generic user-facing
// message and leave the distinction to the audit trail.
func (s *Service) Authenticate(
	username, password, strategy string,
	meta lockout.Metadata,
) (*models.User, error) {
	if username == "" || password == "" {
		return nil, ErrValidation
	}

	// lockout counters are keyed case-insensitively so case variants of
	// the same account share one attempt budget
	identity := strings.ToLower(username)

	if s.lockout.IsLocked(identity) {
		s.recorder.Record(audit.Event{
			Action:    models.AuditAccountLocked,
			Username:  username,
			IPAddress: meta.IPAddress,
			UserAgent: meta.UserAgent,
			Details:   map[string]any{"strategy": strategy, "blocked": true},
		})

		return nil, ErrAccountLocked
	}

	var (
		user *models.User
		err  error
	)

	switch strategy {
	case StrategyLocal:
		user, err = s.local.Authenticate(username, password)
	case StrategyDirectory:
		if s.directory == nil {
			return nil, ErrDirectoryDisabled
		}

		user, err = s.directory.Authenticate(username, password)
	default:
		return nil, ErrUnknownStrategy
	}

	if err != nil {
		s.lockout.RecordFailure(identity, meta)

		if errors.Is(err, ErrDirectoryUnavailable) {
			s.recorder.Record(audit.Event{
				Action:    models.AuditDirectoryUnavailable,
				Username:  username,
				IPAddress: meta.IPAddress,
				UserAgent: meta.UserAgent,
				Details:   map[string]any{"error": err.Error()},
			})
		}

		return nil, err
	}

	s.lockout.Reset(identity)

	s.recorder.Record(audit.Event{
		Action:    models.AuditLoginSuccess,
		UserID:    &user.ID,
		Username:  user.Username,
		IPAddress: meta.IPAddress,
		UserAgent: meta.UserAgent,
		Details:   map[string]any{"strategy": strategy},
	})

	return user, nil
}
