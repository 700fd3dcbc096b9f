// Package logout terminates the caller's session.
package logout

import (
	"errors"

	"github.com/rs/zerolog/log"

	"github.com/gendoc-app/gendoc/internal/audit"
	"github.com/gendoc-app/gendoc/internal/config"
	"github.com/gendoc-app/gendoc/internal/db/models"
	"github.com/gendoc-app/gendoc/internal/router"
	"github.com/gendoc-app/gendoc/internal/web/handler"
	"github.com/gendoc-app/gendoc/internal/web/handler/login"
	"github.com/gendoc-app/gendoc/internal/web/session"
)

// Path is the path of the logout action.
const Path = "/logout"

// Service is the logout handler service.
type Service struct {
	handler.Service
	cfg      *config.Config
	sessions *session.Manager
	recorder *audit.Recorder
}

// Handler is the logout handler.
var Handler = Service{}

// Init initializes the logout handler.
func (s *Service) Init(
	rt *router.Router,
	cfg *config.Config,
	sessions *session.Manager,
	recorder *audit.Recorder,
) error {
	if rt == nil || cfg == nil || sessions == nil {
		return errors.New(handler.ErrNilDepsFatalLogMsg)
	}

	s.cfg = cfg
	s.sessions = sessions
	s.recorder = recorder

	if err := rt.Register("GET", Path, s.Logout); err != nil {
		return err
	}

	return rt.Register("POST", Path, s.Logout)
}

// Logout destroys the caller's session and redirects to the login page. A
// logout for an anonymous caller is a no-op redirect.
func (s *Service) Logout(req *router.Request) (any, error) {
	if req.Session.Authenticated() {
		userID := req.Session.UserID()
		username := ""

		if user := req.Session.User(); user != nil {
			username = user.Username
		}

		if err := req.Session.Logout(); err != nil {
			return nil, err
		}

		s.recorder.Record(audit.Event{
			Action:    models.AuditLogout,
			UserID:    &userID,
			Username:  username,
			IPAddress: req.RemoteIP,
			UserAgent: req.UserAgent,
		})

		log.Info().Str("username", username).Msg("user logged out")
	}

	// hand the caller a fresh anonymous session so the reply can still
	// carry a flash message
	fresh, err := s.sessions.StartAnonymous()
	if err != nil {
		return nil, err
	}

	req.Session = fresh

	if err := fresh.SetFlash(handler.FlashSuccess, "You have been logged out"); err != nil {
		return nil, err
	}

	return router.Redirect(login.Path), nil
}
