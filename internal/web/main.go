// Package web owns the HTTP surface: the fiber listener, the adapter that
// feeds requests into the dispatch table and the registration of all page
// handlers.
package web

import (
	"errors"
	"net/http"
	"os"
	"os/signal"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/filesystem"
	"github.com/gofiber/template/html/v2"
	"github.com/rs/zerolog/log"
	"gorm.io/gorm"

	"github.com/gendoc-app/gendoc/internal/audit"
	"github.com/gendoc-app/gendoc/internal/auth"
	"github.com/gendoc-app/gendoc/internal/config"
	fiberlogger "github.com/gendoc-app/gendoc/internal/logger/adapter/fiber"
	"github.com/gendoc-app/gendoc/internal/router"
	"github.com/gendoc-app/gendoc/internal/web/handler/admin/auditlog"
	adminuser "github.com/gendoc-app/gendoc/internal/web/handler/admin/user"
	"github.com/gendoc-app/gendoc/internal/web/handler/dashboard"
	"github.com/gendoc-app/gendoc/internal/web/handler/document"
	"github.com/gendoc-app/gendoc/internal/web/handler/install"
	"github.com/gendoc-app/gendoc/internal/web/handler/login"
	"github.com/gendoc-app/gendoc/internal/web/handler/logout"
	"github.com/gendoc-app/gendoc/internal/web/handler/settings"
	doctemplate "github.com/gendoc-app/gendoc/internal/web/handler/template"
	"github.com/gendoc-app/gendoc/internal/web/session"
	"github.com/gendoc-app/gendoc/internal/web/view"
)

// Service represents the web service.
type Service struct {
	App          *fiber.App
	cfg          *config.Config
	fastShutDown bool
	alive        atomic.Bool
	db           *gorm.DB
	router       *router.Router
	sessions     *session.Manager
}

// Start starts the web service on the given address.
func (s *Service) Start(addr string) error {
	var doneFiber = make(chan bool)

	go func() {
		if err := s.App.Listen(addr); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal().Msgf("fiber listen error: %v", err)
		}

		doneFiber <- true
	}()

	<-doneFiber // wait for fiber to stop

	return nil
}

// WaitShutdown waits for graceful shutdown of the web service.
func (s *Service) WaitShutdown() {
	irqSig := make(chan os.Signal, 1)
	signal.Notify(irqSig, syscall.SIGINT, syscall.SIGTERM)

	sig := <-irqSig
	log.Info().Msgf("shutdown request (signal: %v)", sig)

	// Graceful shutdown for reverse proxies: set status to fail, so checkalive returns fail.
	if !s.fastShutDown {
		log.Info().Msgf(
			"graceful shutdown: return 503 while %d seconds to let LB to remove this pod from active targets",
			s.cfg.Webserver.ShutDownTime,
		)

		s.alive.Store(false)
		time.Sleep(time.Duration(s.cfg.Webserver.ShutDownTime) * time.Second)
	}

	// stop fiber http server
	serverShutdown := make(chan struct{})

	go func() {
		log.Info().Msg("stopping http server ...")

		err := s.App.Shutdown()
		if err != nil {
			log.Error().Err(err).Msg("")
		}

		serverShutdown <- struct{}{}
	}()

	<-serverShutdown
	log.Info().Msg("http server was stopped ... good bye...")
}

// New creates a new web service with the given configuration and wires every
// page handler into the dispatch table.
func New(
	cfg *config.Config,
	db *gorm.DB,
	sessions *session.Manager,
	authService *auth.Service,
	recorder *audit.Recorder,
) (*Service, error) {
	if cfg == nil {
		panic("config cannot be nil")
	}

	if db == nil {
		panic("db cannot be nil")
	}

	httpFS := http.FS(templateEmbedFS{embeddedTemplates})
	templateEngine := html.NewFileSystem(httpFS, ".gohtml")

	// in debug mode, use local filesystem for templates
	if cfg.DevMode {
		templateEngine = html.New("./internal/web/templates", ".gohtml")
		templateEngine.ShouldReload = true

		log.Warn().Msg("debug mode enabled: using local filesystem for templates")
	}

	// Add template helper functions
	templateEngine.AddFunc("iterate", func(count int) []int {
		result := make([]int, count)
		for i := range result {
			result[i] = i
		}

		return result
	})
	templateEngine.AddFunc("add", func(a, b int) int {
		return a + b
	})
	templateEngine.AddFunc("sub", func(a, b int) int {
		return a - b
	})

	if err := templateEngine.Load(); err != nil {
		return nil, err
	}

	views := view.New(templateEngine, cfg.Title)

	// create fiber app
	app := fiber.New(
		fiber.Config{
			ReadBufferSize: 8192,
			AppName:        cfg.Title,
			CaseSensitive:  true,
			Prefork:        false,
			Immutable:      true,
		},
	)

	// access log
	app.Use(fiberlogger.New(fiberlogger.Config{Config: cfg.Log}))

	// serve embedded static files
	app.Use("/static",
		filesystem.New(
			filesystem.Config{
				Root:       http.FS(embeddedStaticFiles),
				PathPrefix: "static",
			},
		),
	)

	rt := router.New(
		router.WithDevMode(cfg.DevMode),
		router.WithErrorRenderer(func(req *router.Request, code int, message string) *router.Response {
			return views.ErrorPage(code, message)
		}),
		router.WithAuditRecorder(recorder),
	)

	service := &Service{
		cfg:      cfg,
		App:      app,
		db:       db,
		router:   rt,
		sessions: sessions,
	}

	// init handlers (they register their own routes and access requirements)
	type registration struct {
		name string
		init func() error
	}

	for _, reg := range []registration{
		{"login", func() error { return login.Handler.Init(rt, cfg, db, views, authService, recorder) }},
		{"logout", func() error { return logout.Handler.Init(rt, cfg, sessions, recorder) }},
		{"install", func() error { return install.Handler.Init(rt, cfg, db, views, authService, recorder) }},
		{"dashboard", func() error { return dashboard.Handler.Init(rt, cfg, db, views) }},
		{"document", func() error { return document.Handler.Init(rt, cfg, db, views) }},
		{"template", func() error { return doctemplate.Handler.Init(rt, cfg, db, views) }},
		{"admin/user", func() error { return adminuser.Handler.Init(rt, cfg, db, views, authService) }},
		{"admin/auditlog", func() error { return auditlog.Handler.Init(rt, cfg, views, recorder) }},
		{"settings", func() error { return settings.Handler.Init(rt, cfg, db, views, authService) }},
	} {
		if err := reg.init(); err != nil {
			return nil, err
		}
	}

	// root redirects into the application
	if err := rt.Register("GET", "/", func(req *router.Request) (any, error) {
		if req.Session.Authenticated() {
			return router.Redirect(dashboard.Path), nil
		}

		return router.Redirect(login.Path), nil
	}); err != nil {
		return nil, err
	}

	// every remaining request goes through the dispatch table
	app.All("/*", service.dispatch)

	return service, nil
}
