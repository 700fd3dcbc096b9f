// Package settings provides the account settings page: password change for
// local accounts and, for admins, runtime-editable site settings backed by
// the settings table.
package settings

import (
	"errors"

	"github.com/go-playground/validator/v10"
	"github.com/rs/zerolog/log"
	"gorm.io/gorm"

	"github.com/gendoc-app/gendoc/internal/auth"
	"github.com/gendoc-app/gendoc/internal/config"
	"github.com/gendoc-app/gendoc/internal/db/controller/setting"
	"github.com/gendoc-app/gendoc/internal/db/models"
	"github.com/gendoc-app/gendoc/internal/router"
	"github.com/gendoc-app/gendoc/internal/web/handler"
	"github.com/gendoc-app/gendoc/internal/web/handler/dashboard"
	"github.com/gendoc-app/gendoc/internal/web/navigation"
	"github.com/gendoc-app/gendoc/internal/web/view"
)

const (
	// Path is the path of the settings page.
	Path = handler.RootPath + "settings"

	// TemplateName is the name of the settings template.
	TemplateName = "settings"

	// SettingSiteTitle is the name of the site title setting row.
	SettingSiteTitle = "site_title"
)

// PasswordForm is the submitted password change form.
type PasswordForm struct {
	OldPassword string `validate:"required"`
	NewPassword string `validate:"required,min=8,max=256"`
	Confirm     string `validate:"required,eqfield=NewPassword"`
}

// Service provides the settings handlers.
type Service struct {
	handler.Service
	cfg      *config.Config
	db       *gorm.DB
	views    *view.Renderer
	auth     *auth.Service
	validate *validator.Validate
}

// Handler is the exported instance.
var Handler = Service{}

// Init registers routes.
func (s *Service) Init(
	rt *router.Router,
	cfg *config.Config,
	db *gorm.DB,
	views *view.Renderer,
	authService *auth.Service,
) error {
	if rt == nil || cfg == nil || db == nil || views == nil || authService == nil {
		return errors.New(handler.ErrNilDepsFatalLogMsg)
	}

	s.cfg = cfg
	s.db = db
	s.views = views
	s.auth = authService
	s.validate = validator.New()

	if err := rt.Register("GET", Path, s.Get, router.WithAuth()); err != nil {
		return err
	}

	if err := rt.Register("POST", Path+"/password", s.ChangePassword, router.WithAuth()); err != nil {
		return err
	}

	if err := rt.Register("POST", Path+"/site", s.UpdateSite, router.WithRole(models.RoleAdmin)); err != nil {
		return err
	}

	return rt.Register("POST", Path+"/directory/test", s.TestDirectory, router.WithRole(models.RoleAdmin))
}

// TestDirectory checks connectivity and the service bind against the
// configured directory server and reports the outcome as a flash message.
func (s *Service) TestDirectory(req *router.Request) (any, error) {
	if !req.Session.VerifyCSRFToken(req.FormValue("csrf_token")) {
		return s.flashAndBack(req, handler.FlashError, "The form has expired, please try again")
	}

	if !s.auth.DirectoryEnabled() {
		return s.flashAndBack(req, handler.FlashError, "Directory authentication is not enabled")
	}

	if err := s.auth.Directory().TestConnection(); err != nil {
		log.Warn().Err(err).Msg("directory connection test failed")

		return s.flashAndBack(req, handler.FlashError, "Directory connection failed")
	}

	return s.flashAndBack(req, handler.FlashSuccess, "Directory connection established")
}

// siteTitle reads the stored site title, falling back to the configured one.
func (s *Service) siteTitle() string {
	row, err := setting.Get(s.db, SettingSiteTitle)
	if err != nil || len(row.Value) == 0 {
		return s.cfg.Title
	}

	return string(row.Value)
}

// Get renders the settings page.
func (s *Service) Get(req *router.Request) (any, error) {
	nav := navigation.NewContext("Settings", "settings", "settings").
		AddBreadcrumb("Home", dashboard.Path, false).
		AddBreadcrumb("Settings", Path, true)

	user := req.Session.User()

	token, err := req.Session.IssueCSRFToken()
	if err != nil {
		return nil, err
	}

	return s.views.Render(TemplateName, map[string]any{
		"Navigation":   nav,
		"User":         user,
		"IsAdmin":      user.Role == models.RoleAdmin,
		"IsLocal":      user.AuthSource == models.AuthSourceLocal,
		"SiteTitleRow": s.siteTitle(),
		"CSRFToken":    token,
		"Error":        req.Session.GetFlash(handler.FlashError),
		"Success":      req.Session.GetFlash(handler.FlashSuccess),
	}, handler.BaseLayout)
}

// ChangePassword updates the caller's password. Directory accounts have no
// local password to change.
func (s *Service) ChangePassword(req *router.Request) (any, error) {
	if !req.Session.VerifyCSRFToken(req.FormValue("csrf_token")) {
		return s.flashAndBack(req, handler.FlashError, "The form has expired, please try again")
	}

	user := req.Session.User()
	if user.AuthSource != models.AuthSourceLocal {
		return s.flashAndBack(req, handler.FlashError, "Directory accounts change their password in the directory")
	}

	form := PasswordForm{
		OldPassword: req.FormValue("old_password"),
		NewPassword: req.FormValue("new_password"),
		Confirm:     req.FormValue("new_password_confirm"),
	}

	if err := s.validate.Struct(&form); err != nil {
		return s.flashAndBack(req, handler.FlashError, "New password must be at least 8 characters and both entries must match")
	}

	if err := s.auth.Local().ChangePassword(user.ID, form.OldPassword, form.NewPassword); err != nil {
		if errors.Is(err, auth.ErrInvalidOldPassword) {
			return s.flashAndBack(req, handler.FlashError, "The current password is not correct")
		}

		return nil, err
	}

	log.Info().Uint64("user_id", user.ID).Msg("password changed")

	return s.flashAndBack(req, handler.FlashSuccess, "Password changed")
}

// UpdateSite stores the admin-editable site settings.
func (s *Service) UpdateSite(req *router.Request) (any, error) {
	if !req.Session.VerifyCSRFToken(req.FormValue("csrf_token")) {
		return s.flashAndBack(req, handler.FlashError, "The form has expired, please try again")
	}

	title := req.FormValue("site_title")
	if title == "" {
		return s.flashAndBack(req, handler.FlashError, "The site title cannot be empty")
	}

	if _, err := setting.Set(s.db, SettingSiteTitle, []byte(title)); err != nil {
		return nil, err
	}

	log.Info().
		Str("site_title", title).
		Uint64("changed_by", req.Session.UserID()).
		Msg("site settings updated")

	return s.flashAndBack(req, handler.FlashSuccess, "Settings saved")
}

func (s *Service) flashAndBack(req *router.Request, key, message string) (any, error) {
	if err := req.Session.SetFlash(key, message); err != nil {
		return nil, err
	}

	return router.Redirect(Path), nil
}
