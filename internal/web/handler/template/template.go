// Package template provides the administrator-facing management of document
// templates.
package template

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"

	"github.com/rs/zerolog/log"
	"gorm.io/gorm"

	"github.com/gendoc-app/gendoc/internal/config"
	"github.com/gendoc-app/gendoc/internal/db/models"
	"github.com/gendoc-app/gendoc/internal/router"
	"github.com/gendoc-app/gendoc/internal/web/handler"
	"github.com/gendoc-app/gendoc/internal/web/handler/dashboard"
	"github.com/gendoc-app/gendoc/internal/web/navigation"
	"github.com/gendoc-app/gendoc/internal/web/view"
)

const (
	// Path is the base path for template management.
	Path = handler.RootPath + "templates"

	// TemplateList is the template for listing document templates.
	TemplateList = "templates/list"

	// TemplateView is the template for one document template.
	TemplateView = "templates/view"
)

// Service provides template management handlers.
type Service struct {
	handler.Service
	cfg   *config.Config
	db    *gorm.DB
	views *view.Renderer
}

// Handler is the exported instance.
var Handler = Service{}

// Init registers routes. All template management requires the admin role.
func (s *Service) Init(rt *router.Router, cfg *config.Config, db *gorm.DB, views *view.Renderer) error {
	if rt == nil || cfg == nil || db == nil || views == nil {
		return errors.New(handler.ErrNilDepsFatalLogMsg)
	}

	s.cfg = cfg
	s.db = db
	s.views = views

	admin := router.WithRole(models.RoleAdmin)

	if err := rt.Register("GET", Path, s.List, admin); err != nil {
		return err
	}

	if err := rt.Register("POST", Path, s.Create, admin); err != nil {
		return err
	}

	if err := rt.Register("GET", Path+"/{id}", s.View, admin); err != nil {
		return err
	}

	return rt.Register("POST", Path+"/{id}/delete", s.Delete, admin)
}

// List shows all templates with an inline creation form.
func (s *Service) List(req *router.Request) (any, error) {
	nav := navigation.NewContext("Templates", "templates", "list").
		AddBreadcrumb("Home", dashboard.Path, false).
		AddBreadcrumb("Templates", Path, true)

	var templates []models.Template
	if err := s.db.Order("name ASC").Find(&templates).Error; err != nil {
		return nil, err
	}

	token, err := req.Session.IssueCSRFToken()
	if err != nil {
		return nil, err
	}

	return s.views.Render(TemplateList, map[string]any{
		"Navigation": nav,
		"User":       req.Session.User(),
		"Templates":  templates,
		"CSRFToken":  token,
		"Error":      req.Session.GetFlash(handler.FlashError),
		"Success":    req.Session.GetFlash(handler.FlashSuccess),
	}, handler.BaseLayout)
}

// Create registers a new template.
func (s *Service) Create(req *router.Request) (any, error) {
	if !req.Session.VerifyCSRFToken(req.FormValue("csrf_token")) {
		return s.flashAndBack(req, handler.FlashError, "The form has expired, please try again")
	}

	name := req.FormValue("name")
	filename := req.FormValue("filename")

	if name == "" || filename == "" {
		return s.flashAndBack(req, handler.FlashError, "Name and filename are required")
	}

	fields := req.FormValue("fields")
	if fields != "" && !json.Valid([]byte(fields)) {
		return s.flashAndBack(req, handler.FlashError, "Fields must be a JSON list")
	}

	tmpl := models.Template{
		Name:        name,
		Filename:    filename,
		Description: req.FormValue("description"),
		Fields:      fields,
		CreatedBy:   req.Session.UserID(),
	}

	if err := s.db.Create(&tmpl).Error; err != nil {
		log.Error().Err(err).Str("name", name).Msg("failed to create template")

		return s.flashAndBack(req, handler.FlashError, "Could not create the template, is the name unique?")
	}

	log.Info().Uint64("template_id", tmpl.ID).Str("name", tmpl.Name).Msg("template created")

	return s.flashAndBack(req, handler.FlashSuccess, "Template created")
}

// View shows one template and its fillable fields.
func (s *Service) View(req *router.Request) (any, error) {
	id, err := strconv.ParseUint(req.Param("id"), 10, 64)
	if err != nil {
		return s.notFound(req)
	}

	var tmpl models.Template
	if err := s.db.First(&tmpl, id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return s.notFound(req)
		}

		return nil, err
	}

	// tolerate templates without a parseable field list
	var fields []string
	if tmpl.Fields != "" {
		if err := json.Unmarshal([]byte(tmpl.Fields), &fields); err != nil {
			log.Warn().Err(err).Uint64("template_id", tmpl.ID).Msg("unparseable template field list")
		}
	}

	nav := navigation.NewContext(tmpl.Name, "templates", "view").
		AddBreadcrumb("Home", dashboard.Path, false).
		AddBreadcrumb("Templates", Path, false).
		AddBreadcrumb(tmpl.Name, fmt.Sprintf("%s/%d", Path, tmpl.ID), true)

	return s.views.Render(TemplateView, map[string]any{
		"Navigation": nav,
		"User":       req.Session.User(),
		"Template":   tmpl,
		"Fields":     fields,
	}, handler.BaseLayout)
}

// Delete removes a template. Existing documents keep their records; only the
// template itself goes away.
func (s *Service) Delete(req *router.Request) (any, error) {
	if !req.Session.VerifyCSRFToken(req.FormValue("csrf_token")) {
		return s.flashAndBack(req, handler.FlashError, "The form has expired, please try again")
	}

	id, err := strconv.ParseUint(req.Param("id"), 10, 64)
	if err != nil {
		return s.notFound(req)
	}

	if err := s.db.Delete(&models.Template{}, id).Error; err != nil {
		return nil, err
	}

	log.Info().Uint64("template_id", id).Msg("template deleted")

	return s.flashAndBack(req, handler.FlashSuccess, "Template deleted")
}

func (s *Service) flashAndBack(req *router.Request, key, message string) (any, error) {
	if err := req.Session.SetFlash(key, message); err != nil {
		return nil, err
	}

	return router.Redirect(Path), nil
}

func (s *Service) notFound(req *router.Request) (any, error) {
	if req.WantsJSON() {
		return router.JSON(http.StatusNotFound, map[string]string{"error": "template not found"}), nil
	}

	return s.views.RenderStatus(http.StatusNotFound, "errors/error", map[string]any{
		"Code":    http.StatusNotFound,
		"Message": "template not found",
		"Text":    http.StatusText(http.StatusNotFound),
	})
}
