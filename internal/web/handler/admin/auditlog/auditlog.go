// Package auditlog provides the admin view of recorded security events.
package auditlog

import (
	"errors"
	"strconv"

	"github.com/gendoc-app/gendoc/internal/audit"
	"github.com/gendoc-app/gendoc/internal/config"
	"github.com/gendoc-app/gendoc/internal/db/models"
	"github.com/gendoc-app/gendoc/internal/router"
	"github.com/gendoc-app/gendoc/internal/web/handler"
	"github.com/gendoc-app/gendoc/internal/web/handler/dashboard"
	"github.com/gendoc-app/gendoc/internal/web/navigation"
	"github.com/gendoc-app/gendoc/internal/web/view"
)

const (
	// Path is the path of the audit log page.
	Path = handler.RootPath + "admin/audit"

	// TemplateName is the name of the audit log template.
	TemplateName = "admin/audit"

	// DefaultLimit is the default number of events shown.
	DefaultLimit = 100
)

// Service provides the audit log handler.
type Service struct {
	handler.Service
	cfg      *config.Config
	views    *view.Renderer
	recorder *audit.Recorder
}

// Handler is the exported instance.
var Handler = Service{}

// Init registers routes.
func (s *Service) Init(rt *router.Router, cfg *config.Config, views *view.Renderer, recorder *audit.Recorder) error {
	if rt == nil || cfg == nil || views == nil || recorder == nil {
		return errors.New(handler.ErrNilDepsFatalLogMsg)
	}

	s.cfg = cfg
	s.views = views
	s.recorder = recorder

	return rt.Register("GET", Path, s.List, router.WithRole(models.RoleAdmin))
}

// List shows the most recent security events, newest first.
func (s *Service) List(req *router.Request) (any, error) {
	nav := navigation.NewContext("Audit log", "admin", "audit").
		AddBreadcrumb("Home", dashboard.Path, false).
		AddBreadcrumb("Audit log", Path, true)

	limit, _ := strconv.Atoi(req.QueryValue("limit"))
	if limit < 1 || limit > 1000 {
		limit = DefaultLimit
	}

	events, err := s.recorder.Recent(limit)
	if err != nil {
		return nil, err
	}

	if req.WantsJSON() {
		return events, nil
	}

	return s.views.Render(TemplateName, map[string]any{
		"Navigation": nav,
		"User":       req.Session.User(),
		"Events":     events,
		"Limit":      limit,
	}, handler.BaseLayout)
}
