// Package login serves the login form and authenticates submitted
// credentials against the configured backends.
package login

import (
	"errors"

	"github.com/go-playground/validator/v10"
	"github.com/rs/zerolog/log"
	"gorm.io/gorm"

	"github.com/gendoc-app/gendoc/internal/audit"
	"github.com/gendoc-app/gendoc/internal/auth"
	"github.com/gendoc-app/gendoc/internal/config"
	"github.com/gendoc-app/gendoc/internal/db/models"
	"github.com/gendoc-app/gendoc/internal/lockout"
	"github.com/gendoc-app/gendoc/internal/router"
	"github.com/gendoc-app/gendoc/internal/web/handler"
	"github.com/gendoc-app/gendoc/internal/web/view"
)

const (
	// Path is the path to the login page.
	Path = "/login"

	// TemplateName is the name of the login template.
	TemplateName = "login"
)

// Form is the submitted login form.
type Form struct {
	Username   string `validate:"required,max=64"`
	Password   string `validate:"required,max=256"`
	AuthMethod string `validate:"omitempty,oneof=local directory"`
}

// Service is the login handler service.
type Service struct {
	handler.Service
	cfg      *config.Config
	db       *gorm.DB
	views    *view.Renderer
	auth     *auth.Service
	recorder *audit.Recorder
	validate *validator.Validate
}

// Handler is the login handler.
var Handler = Service{}

// Init initializes the login handler.
func (s *Service) Init(
	rt *router.Router,
	cfg *config.Config,
	db *gorm.DB,
	views *view.Renderer,
	authService *auth.Service,
	recorder *audit.Recorder,
) error {
	if rt == nil || cfg == nil || db == nil || views == nil || authService == nil {
		return errors.New(handler.ErrNilDepsFatalLogMsg)
	}

	s.cfg = cfg
	s.db = db
	s.views = views
	s.auth = authService
	s.recorder = recorder
	s.validate = validator.New()

	if err := rt.Register("GET", Path, s.Get); err != nil {
		return err
	}

	return rt.Register("POST", Path, s.Post)
}

// firstLaunch reports whether no user account exists yet.
func (s *Service) firstLaunch() bool {
	var count int64
	if err := s.db.Model(&models.User{}).Count(&count).Error; err != nil {
		log.Error().Err(err).Msg("failed to count users")
		return false
	}

	return count == 0
}

// Get handles the login page rendering.
func (s *Service) Get(req *router.Request) (any, error) {
	if s.firstLaunch() {
		return router.Redirect("/install"), nil
	}

	if req.Session.Authenticated() {
		return router.Redirect("/dashboard"), nil
	}

	token, err := req.Session.IssueCSRFToken()
	if err != nil {
		return nil, err
	}

	return s.views.Render(TemplateName, map[string]any{
		"CSRFToken":        token,
		"LocalEnabled":     true,
		"DirectoryEnabled": s.auth.DirectoryEnabled(),
		"Error":            req.Session.GetFlash(handler.FlashError),
		"Success":          req.Session.GetFlash(handler.FlashSuccess),
	})
}

// Post handles the login form submission.
func (s *Service) Post(req *router.Request) (any, error) {
	if !req.Session.VerifyCSRFToken(req.FormValue("csrf_token")) {
		s.recorder.Record(audit.Event{
			Action:    models.AuditCSRFRejected,
			Username:  req.FormValue("username"),
			IPAddress: req.RemoteIP,
			UserAgent: req.UserAgent,
			Details:   map[string]any{"path": Path},
		})

		return s.flashAndRetry(req, "The form has expired, please try again")
	}

	form := Form{
		Username:   req.FormValue("username"),
		Password:   req.FormValue("password"),
		AuthMethod: req.FormValue("auth_method"),
	}

	if err := s.validate.Struct(&form); err != nil {
		return s.flashAndRetry(req, handler.GenericLoginError)
	}

	strategy := form.AuthMethod
	if strategy == "" {
		strategy = auth.StrategyLocal
	}

	user, err := s.auth.Authenticate(form.Username, form.Password, strategy, lockout.Metadata{
		IPAddress: req.RemoteIP,
		UserAgent: req.UserAgent,
	})
	if err != nil {
		// the distinction between the failure modes stays in the logs and
		// the audit trail, the client always sees the same message
		log.Warn().Err(err).
			Str("username", form.Username).
			Str("strategy", strategy).
			Str("ip", req.RemoteIP).
			Msg("login failed")

		return s.flashAndRetry(req, handler.GenericLoginError)
	}

	if err := req.Session.Bind(user); err != nil {
		return nil, err
	}

	log.Info().
		Str("username", user.Username).
		Str("strategy", strategy).
		Msg("user logged in")

	return router.Redirect("/dashboard"), nil
}

func (s *Service) flashAndRetry(req *router.Request, message string) (any, error) {
	if err := req.Session.SetFlash(handler.FlashError, message); err != nil {
		return nil, err
	}

	return router.Redirect(Path), nil
}
