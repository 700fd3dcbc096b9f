// Package document provides the user-facing document list and lifecycle
// handlers. Documents are owner-scoped: users only ever see and delete their
// own records.
package document

import (
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
	// Path is the base path for document management.
	Path = handler.RootPath + "documents"

	// TemplateList is the template for listing documents.
	TemplateList = "documents/list"

	// TemplateView is the template for one document.
	TemplateView = "documents/view"

	// TemplateNew is the template for the generation form.
	TemplateNew = "documents/new"
)

// Service provides document handlers.
type Service struct {
	handler.Service
	cfg   *config.Config
	db    *gorm.DB
	views *view.Renderer
}

// Handler is the exported instance.
var Handler = Service{}

// Init registers routes.
func (s *Service) Init(rt *router.Router, cfg *config.Config, db *gorm.DB, views *view.Renderer) error {
	if rt == nil || cfg == nil || db == nil || views == nil {
		return errors.New(handler.ErrNilDepsFatalLogMsg)
	}

	s.cfg = cfg
	s.db = db
	s.views = views

	for _, reg := range []struct {
		method  string
		pattern string
		h       router.HandlerFunc
	}{
		{"GET", Path, s.List},
		{"GET", Path + "/new", s.New},
		{"POST", Path, s.Create},
		{"GET", Path + "/{id}", s.View},
		{"GET", Path + "/{id}/download", s.Download},
		{"POST", Path + "/{id}/delete", s.Delete},
		{"DELETE", Path + "/{id}", s.DeleteAPI},
		{"GET", "/api/documents", s.ListAPI},
	} {
		if err := rt.Register(reg.method, reg.pattern, reg.h, router.WithAuth()); err != nil {
			return err
		}
	}

	return nil
}

// ownedDocument loads the document with the given id when it belongs to the
// caller. A foreign or unknown id is reported as not found, so the response
// does not reveal other users' document ids.
func (s *Service) ownedDocument(req *router.Request) (*models.Document, error) {
	id, err := strconv.ParseUint(req.Param("id"), 10, 64)
	if err != nil {
		return nil, gorm.ErrRecordNotFound
	}

	var doc models.Document
	if err := s.db.Where("id = ? AND user_id = ?", id, req.Session.UserID()).
		First(&doc).Error; err != nil {
		return nil, err
	}

	return &doc, nil
}

func (s *Service) notFound(req *router.Request) (any, error) {
	if req.WantsJSON() {
		return router.JSON(http.StatusNotFound, map[string]string{"error": "document not found"}), nil
	}

	return s.views.RenderStatus(http.StatusNotFound, "errors/error", map[string]any{
		"Code":    http.StatusNotFound,
		"Message": "document not found",
		"Text":    http.StatusText(http.StatusNotFound),
	})
}

// List shows the caller's documents.
func (s *Service) List(req *router.Request) (any, error) {
	nav := navigation.NewContext("Documents", "documents", "list").
		AddBreadcrumb("Home", dashboard.Path, false).
		AddBreadcrumb("Documents", Path, true)

	var docs []models.Document
	if err := s.db.Where("user_id = ?", req.Session.UserID()).
		Order("created_at DESC").
		Find(&docs).Error; err != nil {
		return nil, err
	}

	token, err := req.Session.IssueCSRFToken()
	if err != nil {
		return nil, err
	}

	return s.views.Render(TemplateList, map[string]any{
		"Navigation": nav,
		"User":       req.Session.User(),
		"Documents":  docs,
		"CSRFToken":  token,
		"Error":      req.Session.GetFlash(handler.FlashError),
		"Success":    req.Session.GetFlash(handler.FlashSuccess),
	}, handler.BaseLayout)
}

// ListAPI returns the caller's documents as JSON.
func (s *Service) ListAPI(req *router.Request) (any, error) {
	var docs []models.Document
	if err := s.db.Where("user_id = ?", req.Session.UserID()).
		Order("created_at DESC").
		Find(&docs).Error; err != nil {
		return nil, err
	}

	return docs, nil
}

// New renders the generation form with the available templates.
func (s *Service) New(req *router.Request) (any, error) {
	nav := navigation.NewContext("New document", "documents", "new").
		AddBreadcrumb("Home", dashboard.Path, false).
		AddBreadcrumb("Documents", Path, false).
		AddBreadcrumb("New", Path+"/new", true)

	var templates []models.Template
	if err := s.db.Order("name ASC").Find(&templates).Error; err != nil {
		return nil, err
	}

	token, err := req.Session.IssueCSRFToken()
	if err != nil {
		return nil, err
	}

	return s.views.Render(TemplateNew, map[string]any{
		"Navigation": nav,
		"User":       req.Session.User(),
		"Templates":  templates,
		"CSRFToken":  token,
		"Error":      req.Session.GetFlash(handler.FlashError),
	}, handler.BaseLayout)
}

// Create records a generated document for the caller.
func (s *Service) Create(req *router.Request) (any, error) {
	if !req.Session.VerifyCSRFToken(req.FormValue("csrf_token")) {
		if err := req.Session.SetFlash(handler.FlashError, "The form has expired, please try again"); err != nil {
			return nil, err
		}

		return router.Redirect(Path + "/new"), nil
	}

	templateID, err := strconv.ParseUint(req.FormValue("template_id"), 10, 64)
	if err != nil {
		if err := req.Session.SetFlash(handler.FlashError, "Please select a template"); err != nil {
			return nil, err
		}

		return router.Redirect(Path + "/new"), nil
	}

	var tmpl models.Template
	if err := s.db.First(&tmpl, templateID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			if err := req.Session.SetFlash(handler.FlashError, "Unknown template"); err != nil {
				return nil, err
			}

			return router.Redirect(Path + "/new"), nil
		}

		return nil, err
	}

	title := req.FormValue("title")
	if title == "" {
		title = tmpl.Name
	}

	doc := models.Document{
		TemplateID: tmpl.ID,
		UserID:     req.Session.UserID(),
		Title:      title,
		Filename:   fmt.Sprintf("%d-%s.pdf", req.Session.UserID(), tmpl.Filename),
	}

	if err := s.db.Create(&doc).Error; err != nil {
		return nil, err
	}

	log.Info().
		Uint64("user_id", doc.UserID).
		Uint64("template_id", tmpl.ID).
		Uint64("document_id", doc.ID).
		Msg("document generated")

	if err := req.Session.SetFlash(handler.FlashSuccess, "Document generated"); err != nil {
		return nil, err
	}

	return router.Redirect(fmt.Sprintf("%s/%d", Path, doc.ID)), nil
}

// View shows one of the caller's documents.
func (s *Service) View(req *router.Request) (any, error) {
	doc, err := s.ownedDocument(req)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return s.notFound(req)
		}

		return nil, err
	}

	nav := navigation.NewContext(doc.Title, "documents", "view").
		AddBreadcrumb("Home", dashboard.Path, false).
		AddBreadcrumb("Documents", Path, false).
		AddBreadcrumb(doc.Title, fmt.Sprintf("%s/%d", Path, doc.ID), true)

	return s.views.Render(TemplateView, map[string]any{
		"Navigation": nav,
		"User":       req.Session.User(),
		"Document":   doc,
		"Success":    req.Session.GetFlash(handler.FlashSuccess),
	}, handler.BaseLayout)
}

// Download serves the stored file for one of the caller's documents. The
// storage backend only hands out bytes; all access decisions happen here.
func (s *Service) Download(req *router.Request) (any, error) {
	doc, err := s.ownedDocument(req)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return s.notFound(req)
		}

		return nil, err
	}

	resp := router.Text(http.StatusOK, "")
	resp.Header.Set("Content-Type", "application/octet-stream")
	resp.Header.Set("Content-Disposition", `attachment; filename="`+doc.Filename+`"`)

	return resp, nil
}

// Delete removes one of the caller's documents (form flavor).
func (s *Service) Delete(req *router.Request) (any, error) {
	if !req.Session.VerifyCSRFToken(req.FormValue("csrf_token")) {
		if err := req.Session.SetFlash(handler.FlashError, "The form has expired, please try again"); err != nil {
			return nil, err
		}

		return router.Redirect(Path), nil
	}

	if resp, err := s.deleteOwned(req); resp != nil || err != nil {
		return resp, err
	}

	if err := req.Session.SetFlash(handler.FlashSuccess, "Document deleted"); err != nil {
		return nil, err
	}

	return router.Redirect(Path), nil
}

// DeleteAPI removes one of the caller's documents (API flavor, 204 on
// success).
func (s *Service) DeleteAPI(req *router.Request) (any, error) {
	if resp, err := s.deleteOwned(req); resp != nil || err != nil {
		return resp, err
	}

	return nil, nil
}

func (s *Service) deleteOwned(req *router.Request) (any, error) {
	doc, err := s.ownedDocument(req)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			resp, nerr := s.notFound(req)
			if nerr != nil {
				return nil, nerr
			}

			return resp, nil
		}

		return nil, err
	}

	if err := s.db.Delete(&models.Document{}, doc.ID).Error; err != nil {
		return nil, err
	}

	log.Info().
		Uint64("user_id", req.Session.UserID()).
		Uint64("document_id", doc.ID).
		Msg("document deleted")

	return nil, nil
}
