// Package user provides the admin area user management handlers.
package user

import (
	"errors"
	"strconv"

	"github.com/go-playground/validator/v10"
	"github.com/rs/zerolog/log"
	"gorm.io/gorm"

	"github.com/gendoc-app/gendoc/internal/auth"
	"github.com/gendoc-app/gendoc/internal/config"
	"github.com/gendoc-app/gendoc/internal/db/models"
	"github.com/gendoc-app/gendoc/internal/router"
	"github.com/gendoc-app/gendoc/internal/web/handler"
	"github.com/gendoc-app/gendoc/internal/web/handler/dashboard"
	"github.com/gendoc-app/gendoc/internal/web/navigation"
	"github.com/gendoc-app/gendoc/internal/web/view"
)

const (
	// Path is the base path for user management.
	Path = handler.RootPath + "admin/users"

	// TemplateList is the template for listing users.
	TemplateList = "admin/users"

	// TemplateDirectory is the template for the directory search page.
	TemplateDirectory = "admin/directory"

	// DirectorySearchLimit caps the number of entries one directory
	// search returns.
	DirectorySearchLimit = 50

	// DefaultPageSize for pagination.
	DefaultPageSize = 25
)

// Form is the submitted user creation form.
type Form struct {
	Username  string `validate:"required,min=3,max=64"`
	Email     string `validate:"omitempty,email"`
	Password  string `validate:"required,min=8,max=256"`
	FirstName string `validate:"max=64"`
	LastName  string `validate:"max=64"`
	Role      string `validate:"required,oneof=user admin"`
}

// Service provides user management handlers.
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

// Init registers routes. The whole area requires the admin role.
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

	admin := router.WithRole(models.RoleAdmin)

	if err := rt.Register("GET", Path, s.List, admin); err != nil {
		return err
	}

	if err := rt.Register("POST", Path, s.Create, admin); err != nil {
		return err
	}

	if err := rt.Register("GET", Path+"/directory", s.DirectorySearch, admin); err != nil {
		return err
	}

	return rt.Register("POST", Path+"/{id}/active", s.SetActive, admin)
}

// List shows users with simple pagination and search.
func (s *Service) List(req *router.Request) (any, error) {
	nav := navigation.NewContext("Users", "admin", "users").
		AddBreadcrumb("Home", dashboard.Path, false).
		AddBreadcrumb("Users", Path, true)

	page, _ := strconv.Atoi(req.QueryValue("page"))
	if page < 1 {
		page = 1
	}

	pageSize, _ := strconv.Atoi(req.QueryValue("pageSize"))
	if pageSize < 1 || pageSize > 100 {
		pageSize = DefaultPageSize
	}

	search := req.QueryValue("search")

	var (
		users      []models.User
		totalCount int64
		tx         = s.db.Model(&models.User{})
	)

	if search != "" {
		like := "%" + search + "%"
		tx = tx.Where(
			"username LIKE ? OR email LIKE ? OR first_name LIKE ? OR last_name LIKE ?",
			like, like, like, like,
		)
	}

	if err := tx.Count(&totalCount).Error; err != nil {
		return nil, err
	}

	if err := tx.Order("username ASC").
		Limit(pageSize).
		Offset((page - 1) * pageSize).
		Find(&users).Error; err != nil {
		return nil, err
	}

	token, err := req.Session.IssueCSRFToken()
	if err != nil {
		return nil, err
	}

	return s.views.Render(TemplateList, map[string]any{
		"Navigation": nav,
		"User":       req.Session.User(),
		"Users":      users,
		"TotalCount": totalCount,
		"Page":       page,
		"PageSize":   pageSize,
		"Search":     search,
		"CSRFToken":  token,
		"Error":      req.Session.GetFlash(handler.FlashError),
		"Success":    req.Session.GetFlash(handler.FlashSuccess),
	}, handler.BaseLayout)
}

// DirectorySearch looks up accounts in the external directory, for
// reviewing who would be able to sign in before their first login creates
// the local mirror row.
func (s *Service) DirectorySearch(req *router.Request) (any, error) {
	if !s.auth.DirectoryEnabled() {
		if err := req.Session.SetFlash(handler.FlashError, "Directory authentication is not enabled"); err != nil {
			return nil, err
		}

		return router.Redirect(Path), nil
	}

	filters := auth.SearchFilters{
		Username: req.QueryValue("username"),
		Email:    req.QueryValue("email"),
		Name:     req.QueryValue("name"),
		Group:    req.QueryValue("group"),
	}
	searched := filters != (auth.SearchFilters{})

	var (
		results   []*auth.DirectoryUser
		searchErr string
	)

	if searched {
		var err error

		results, err = s.auth.Directory().SearchUsers(filters, DirectorySearchLimit)
		if err != nil {
			if req.WantsJSON() {
				return nil, err
			}

			log.Error().Err(err).Msg("directory search failed")

			searchErr = "The directory could not be searched"
		}
	}

	if req.WantsJSON() {
		return results, nil
	}

	nav := navigation.NewContext("Directory", "admin", "users").
		AddBreadcrumb("Home", dashboard.Path, false).
		AddBreadcrumb("Users", Path, false).
		AddBreadcrumb("Directory", Path+"/directory", true)

	if searchErr == "" {
		searchErr = req.Session.GetFlash(handler.FlashError)
	}

	return s.views.Render(TemplateDirectory, map[string]any{
		"Navigation": nav,
		"User":       req.Session.User(),
		"Filters":    filters,
		"Searched":   searched,
		"Results":    results,
		"Error":      searchErr,
	}, handler.BaseLayout)
}

// Create adds a local user account.
func (s *Service) Create(req *router.Request) (any, error) {
	if !req.Session.VerifyCSRFToken(req.FormValue("csrf_token")) {
		return s.flashAndBack(req, handler.FlashError, "The form has expired, please try again")
	}

	form := Form{
		Username:  req.FormValue("username"),
		Email:     req.FormValue("email"),
		Password:  req.FormValue("password"),
		FirstName: req.FormValue("first_name"),
		LastName:  req.FormValue("last_name"),
		Role:      req.FormValue("role"),
	}

	if err := s.validate.Struct(&form); err != nil {
		return s.flashAndBack(req, handler.FlashError, "Please check the entered values")
	}

	created, err := s.auth.Local().CreateUser(
		form.Username, form.Email, form.Password,
		form.FirstName, form.LastName, form.Role,
	)
	if err != nil {
		if errors.Is(err, auth.ErrUserNameExists) {
			return s.flashAndBack(req, handler.FlashError, "A user with that name already exists")
		}

		return nil, err
	}

	log.Info().
		Str("username", created.Username).
		Str("role", created.Role).
		Uint64("created_by", req.Session.UserID()).
		Msg("user created")

	return s.flashAndBack(req, handler.FlashSuccess, "User created")
}

// SetActive enables or disables an account. Admins cannot disable their own
// account, so there is always a way back in.
func (s *Service) SetActive(req *router.Request) (any, error) {
	if !req.Session.VerifyCSRFToken(req.FormValue("csrf_token")) {
		return s.flashAndBack(req, handler.FlashError, "The form has expired, please try again")
	}

	id, err := strconv.ParseUint(req.Param("id"), 10, 64)
	if err != nil {
		return s.flashAndBack(req, handler.FlashError, "Unknown user")
	}

	if id == req.Session.UserID() {
		return s.flashAndBack(req, handler.FlashError, "You cannot deactivate your own account")
	}

	active := req.FormValue("active") == "1"

	if err := s.auth.Local().SetActive(id, active); err != nil {
		return nil, err
	}

	log.Info().
		Uint64("user_id", id).
		Bool("active", active).
		Uint64("changed_by", req.Session.UserID()).
		Msg("user active flag changed")

	return s.flashAndBack(req, handler.FlashSuccess, "User updated")
}

func (s *Service) flashAndBack(req *router.Request, key, message string) (any, error) {
	if err := req.Session.SetFlash(key, message); err != nil {
		return nil, err
	}

	return router.Redirect(Path), nil
}
