// Package install serves the first-launch wizard that creates the initial
// administrator account.
package install

import (
	"errors"

	"github.com/go-playground/validator/v10"
	"github.com/rs/zerolog/log"
	"gorm.io/gorm"

	"github.com/gendoc-app/gendoc/internal/audit"
	"github.com/gendoc-app/gendoc/internal/auth"
	"github.com/gendoc-app/gendoc/internal/config"
	"github.com/gendoc-app/gendoc/internal/db/models"
	"github.com/gendoc-app/gendoc/internal/router"
	"github.com/gendoc-app/gendoc/internal/web/handler"
	"github.com/gendoc-app/gendoc/internal/web/handler/login"
	"github.com/gendoc-app/gendoc/internal/web/view"
)

const (
	// Path is the path of the install wizard.
	Path = "/install"

	// TemplateName is the name of the install template.
	TemplateName = "install"
)

// Form is the submitted administrator bootstrap form.
type Form struct {
	Username        string `validate:"required,min=3,max=64,alphanumunicode"`
	Email           string `validate:"omitempty,email"`
	Password        string `validate:"required,min=8,max=256"`
	PasswordConfirm string `validate:"required,eqfield=Password"`
}

// Service is the install wizard handler service.
type Service struct {
	handler.Service
	cfg      *config.Config
	db       *gorm.DB
	views    *view.Renderer
	auth     *auth.Service
	recorder *audit.Recorder
	validate *validator.Validate
}

// Handler is the install wizard handler.
var Handler = Service{}

// Init initializes the install wizard handler.
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

// installed reports whether at least one user account exists. Once it does,
// the wizard refuses to run again.
func (s *Service) installed() bool {
	var count int64
	if err := s.db.Model(&models.User{}).Count(&count).Error; err != nil {
		log.Error().Err(err).Msg("failed to count users")

		// fail closed: never offer the wizard when the store is unreadable
		return true
	}

	return count > 0
}

// Get renders the wizard form.
func (s *Service) Get(req *router.Request) (any, error) {
	if s.installed() {
		return router.Redirect(login.Path), nil
	}

	token, err := req.Session.IssueCSRFToken()
	if err != nil {
		return nil, err
	}

	return s.views.Render(TemplateName, map[string]any{
		"CSRFToken": token,
		"Error":     req.Session.GetFlash(handler.FlashError),
	})
}

// Post creates the initial administrator account.
func (s *Service) Post(req *router.Request) (any, error) {
	if s.installed() {
		return router.Redirect(login.Path), nil
	}

	if !req.Session.VerifyCSRFToken(req.FormValue("csrf_token")) {
		s.recorder.Record(audit.Event{
			Action:    models.AuditCSRFRejected,
			IPAddress: req.RemoteIP,
			UserAgent: req.UserAgent,
			Details:   map[string]any{"path": Path},
		})

		return s.flashAndRetry(req, "The form has expired, please try again")
	}

	form := Form{
		Username:        req.FormValue("username"),
		Email:           req.FormValue("email"),
		Password:        req.FormValue("password"),
		PasswordConfirm: req.FormValue("password_confirm"),
	}

	if err := s.validate.Struct(&form); err != nil {
		return s.flashAndRetry(req, "Please check the entered values: username at least 3 characters, password at least 8, passwords matching")
	}

	user, err := s.auth.Local().CreateUser(form.Username, form.Email, form.Password, "", "", models.RoleAdmin)
	if err != nil {
		log.Error().Err(err).Msg("failed to create initial administrator")

		return s.flashAndRetry(req, "Could not create the administrator account")
	}

	log.Info().Str("username", user.Username).Msg("initial administrator created")

	if err := req.Session.SetFlash(handler.FlashSuccess, "Administrator account created, you can log in now"); err != nil {
		return nil, err
	}

	return router.Redirect(login.Path), nil
}

func (s *Service) flashAndRetry(req *router.Request, message string) (any, error) {
	if err := req.Session.SetFlash(handler.FlashError, message); err != nil {
		return nil, err
	}

	return router.Redirect(Path), nil
}
