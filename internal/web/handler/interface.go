package handler

import (
	"gorm.io/gorm"

	"github.com/gendoc-app/gendoc/internal/config"
	"github.com/gendoc-app/gendoc/internal/router"
	"github.com/gendoc-app/gendoc/internal/web/view"
)

// Service is the interface for a web handler service.
type Service interface {
	Init(rt *router.Router, cfg *config.Config, db *gorm.DB, views *view.Renderer) error
}
