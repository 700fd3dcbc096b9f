// Package daemon assembles the application: database, session store,
// security services and the web service.
package daemon

import (
	"fmt"
	"time"

	"github.com/glebarez/sqlite"
	"github.com/gofiber/storage"
	memorystorage "github.com/gofiber/storage/memory/v2"
	mysqlstorage "github.com/gofiber/storage/mysql/v2"
	postgresstorage "github.com/gofiber/storage/postgres/v3"
	"github.com/rs/zerolog/log"
	gormmysql "gorm.io/driver/mysql"
	gormpostgres "gorm.io/driver/postgres"
	"gorm.io/gorm"

	"github.com/gendoc-app/gendoc/internal/audit"
	"github.com/gendoc-app/gendoc/internal/auth"
	"github.com/gendoc-app/gendoc/internal/config"
	"github.com/gendoc-app/gendoc/internal/db/dsn"
	"github.com/gendoc-app/gendoc/internal/db/models"
	"github.com/gendoc-app/gendoc/internal/lockout"
	"github.com/gendoc-app/gendoc/internal/web"
	"github.com/gendoc-app/gendoc/internal/web/session"
)

// Daemon represents the main application daemon.
type Daemon struct {
	cfg        *config.Config
	webService *web.Service
}

// Start runs the web service until a shutdown signal arrives.
func (d *Daemon) Start() error {
	go d.webService.WaitShutdown()

	return d.webService.Start(fmt.Sprintf(":%d", d.cfg.Webserver.Port))
}

// New creates a new Daemon instance with the provided configuration.
func New(cfg *config.Config) (*Daemon, error) {
	if cfg == nil {
		return nil, fmt.Errorf("config is nil")
	}

	db, err := openDatabase(cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to connect database: %w", err)
	}

	if err = db.AutoMigrate(
		&models.User{},
		&models.Setting{},
		&models.Template{},
		&models.Document{},
		&models.AuditLog{},
	); err != nil {
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}

	seedSettings(cfg, db)

	recorder := audit.NewRecorder(db)
	tracker := lockout.New(cfg.Security.MaxLoginAttempts, cfg.Security.LockoutWindow, recorder)

	authService, err := auth.NewService(db, cfg, tracker, recorder)
	if err != nil {
		return nil, fmt.Errorf("failed to create auth service: %w", err)
	}

	sessions := session.NewManager(
		sessionStorage(cfg),
		cfg.Webserver.Session.ExpiryTime,
		cfg.Security.SessionTimeout,
		userLookup(authService),
	)

	webService, err := web.New(cfg, db, sessions, authService, recorder)
	if err != nil {
		return nil, fmt.Errorf("failed to create web service: %w", err)
	}

	log.Info().
		Str("engine", cfg.DB.Engine).
		Bool("directory", authService.DirectoryEnabled()).
		Msg("daemon initialized")

	return &Daemon{
		cfg:        cfg,
		webService: webService,
	}, nil
}

// openDatabase opens the gorm connection for the configured engine.
func openDatabase(cfg *config.Config) (*gorm.DB, error) {
	var dialector gorm.Dialector

	switch cfg.DB.Engine {
	case config.DBEnginePostgres:
		dialector = gormpostgres.Open(dsn.Create(cfg))
	case config.DBEngineSQLite:
		dialector = sqlite.Open(cfg.DB.Path)
	default:
		dialector = gormmysql.Open(dsn.Create(cfg))
	}

	return gorm.Open(dialector, &gorm.Config{})
}

// sessionStorage creates the session byte-store matching the DB engine. The
// sqlite engine keeps sessions in memory, which matches its single-node use.
func sessionStorage(cfg *config.Config) storage.Storage {
	switch cfg.DB.Engine {
	case config.DBEnginePostgres:
		return postgresstorage.New(postgresstorage.Config{
			ConnectionURI: dsn.Create(cfg),
			Table:         "sessions",
		})
	case config.DBEngineSQLite:
		return memorystorage.New(memorystorage.Config{
			GCInterval: time.Minute,
		})
	default:
		return mysqlstorage.New(mysqlstorage.Config{
			ConnectionURI: dsn.Create(cfg),
			Table:         "sessions",
		})
	}
}

// userLookup adapts the credential store for session self-healing: a session
// stays bound only while its user still exists and is active.
func userLookup(authService *auth.Service) session.UserLookup {
	return func(userID uint64) (*models.User, bool) {
		user, err := authService.Local().GetUserByID(userID)
		if err != nil {
			return nil, false
		}

		return user, user.Active
	}
}
