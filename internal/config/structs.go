package config

import (
	"time"

	"github.com/gendoc-app/gendoc/internal/logger"
)

// Supported database engines.
const (
	DBEngineMySQL    = "mysql"
	DBEnginePostgres = "postgres"
	DBEngineSQLite   = "sqlite"
)

// Session settings.
type Session struct {
	ExpiryTime time.Duration
}

// Config overall data structure.
type Config struct {
	DevMode   bool // enable dev mode for development
	DB        DB
	LDAP      LDAP
	Log       logger.Log
	Security  Security
	Storage   Storage
	Title     string
	Webserver Webserver
}

// Webserver implement webserver settings.
type Webserver struct {
	Domain       string  // domain name for the webserver
	Port         int     // listening port for the webserver
	ShutDownTime int     // wait time for shutdown
	URL          string  // base url for the webserver
	Session      Session // session settings
}

// DB holds the database configuration settings.
type DB struct {
	Engine   string // one of mysql, postgres, sqlite
	Extras   string
	Host     string
	Port     int
	User     string
	Password string
	Name     string
	Path     string // file path for the sqlite engine
}

// Security holds authentication throttling and session lifecycle settings.
type Security struct {
	// MaxLoginAttempts is the number of failed logins after which an
	// account is locked out. Defaults to 5.
	MaxLoginAttempts int
	// LockoutWindow is how long an account stays locked after the last
	// failed attempt. Defaults to 15 minutes.
	LockoutWindow time.Duration
	// SessionTimeout is the inactivity span after which an authenticated
	// session is forced out. Defaults to 1 hour.
	SessionTimeout time.Duration
}

// LDAP holds directory service settings for directory-backed authentication.
type LDAP struct {
	// Enabled indicates if directory authentication is enabled.
	Enabled bool
	// Host is the directory server hostname or IP address.
	Host string
	// Port is the directory server port (typically 389 for LDAP, 636 for LDAPS).
	Port int
	// UseSSL enables LDAPS on port 636.
	UseSSL bool
	// UseTLS enables StartTLS to upgrade a plain connection.
	UseTLS bool
	// SkipVerify skips TLS certificate verification (insecure, for testing only).
	SkipVerify bool
	// BindDN is the distinguished name to bind with for performing searches.
	BindDN string
	// BindPassword is the password for the bind DN.
	BindPassword string
	// BaseDN is the base distinguished name for user searches.
	BaseDN string
	// UserFilter is the search filter for finding users, e.g. "(uid={username})".
	// The {username} placeholder is replaced with the escaped username.
	UserFilter string
	// Timeout is the connection and search timeout in seconds.
	Timeout int
}

// Storage holds filesystem paths for generated documents and templates.
type Storage struct {
	Documents string
	Templates string
}
