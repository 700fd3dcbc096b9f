// Package dashboard provides the dashboard handler with per-user and
// site-wide statistics.
package dashboard

import (
	"errors"

	"github.com/rs/zerolog/log"
	"gorm.io/gorm"

	"github.com/gendoc-app/gendoc/internal/config"
	"github.com/gendoc-app/gendoc/internal/db/models"
	"github.com/gendoc-app/gendoc/internal/router"
	"github.com/gendoc-app/gendoc/internal/web/handler"
	"github.com/gendoc-app/gendoc/internal/web/navigation"
	"github.com/gendoc-app/gendoc/internal/web/view"
)

const (
	// Path is the path to the dashboard page.
	Path = handler.RootPath + "dashboard"

	// TemplateName is the name of the dashboard template.
	TemplateName = "dashboard"

	// RecentDocumentCount is the number of recent documents shown.
	RecentDocumentCount = 10
)

// Stats holds the counters rendered on the dashboard.
type Stats struct {
	MyDocuments    int64
	TotalDocuments int64
	Templates      int64
	Users          int64
}

// Service is the dashboard handler service.
type Service struct {
	handler.Service
	cfg   *config.Config
	db    *gorm.DB
	views *view.Renderer
}

// Handler is the dashboard handler.
var Handler = Service{}

// Init initializes the dashboard handler.
func (s *Service) Init(rt *router.Router, cfg *config.Config, db *gorm.DB, views *view.Renderer) error {
	if rt == nil || cfg == nil || db == nil || views == nil {
		return errors.New(handler.ErrNilDepsFatalLogMsg)
	}

	s.cfg = cfg
	s.db = db
	s.views = views

	if err := rt.Register("GET", Path, s.Get, router.WithAuth()); err != nil {
		return err
	}

	return rt.Register("GET", "/api/stats", s.GetAPI, router.WithAuth())
}

// GetAPI returns the caller's statistics as JSON.
func (s *Service) GetAPI(req *router.Request) (any, error) {
	stats, err := s.collect(req.Session.User())
	if err != nil {
		return nil, err
	}

	return stats, nil
}

// collect gathers the counters for one user. Site-wide numbers are only
// computed for admins.
func (s *Service) collect(user *models.User) (*Stats, error) {
	var stats Stats

	if err := s.db.Model(&models.Document{}).
		Where("user_id = ?", user.ID).
		Count(&stats.MyDocuments).Error; err != nil {
		return nil, err
	}

	if err := s.db.Model(&models.Template{}).Count(&stats.Templates).Error; err != nil {
		return nil, err
	}

	if user.Role == models.RoleAdmin {
		if err := s.db.Model(&models.Document{}).Count(&stats.TotalDocuments).Error; err != nil {
			return nil, err
		}

		if err := s.db.Model(&models.User{}).Count(&stats.Users).Error; err != nil {
			return nil, err
		}
	}

	return &stats, nil
}

// Get handles the dashboard page rendering.
func (s *Service) Get(req *router.Request) (any, error) {
	nav := navigation.NewContext("Dashboard", "dashboard", "dashboard").
		AddBreadcrumb("Home", Path, false).
		AddBreadcrumb("Dashboard", Path, true)

	user := req.Session.User()

	stats, err := s.collect(user)
	if err != nil {
		return nil, err
	}

	var recent []models.Document
	if err := s.db.Where("user_id = ?", user.ID).
		Order("created_at DESC").
		Limit(RecentDocumentCount).
		Find(&recent).Error; err != nil {
		return nil, err
	}

	log.Debug().
		Uint64("user_id", user.ID).
		Int64("my_documents", stats.MyDocuments).
		Int("recent", len(recent)).
		Msg("dashboard rendered")

	return s.views.Render(TemplateName, map[string]any{
		"Navigation": nav,
		"User":       user,
		"Stats":      stats,
		"Recent":     recent,
		"IsAdmin":    user.Role == models.RoleAdmin,
		"Success":    req.Session.GetFlash(handler.FlashSuccess),
	}, handler.BaseLayout)
}
