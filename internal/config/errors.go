package config

import (
	"errors"
)

var (
	// ErrEmptyURL error if config webserver.URL is empty.
	ErrEmptyURL = errors.New("toml config webserver.url can not be empty")

	// ErrWebServerPortCanNotBeZero error if config webserver listening port is 0.
	ErrWebServerPortCanNotBeZero = errors.New("toml config webserver.port listening port can not be 0")

	// ErrUnknownDBEngine error if config db.engine is empty or not one of mysql, postgres, sqlite.
	ErrUnknownDBEngine = errors.New("toml config db.engine must be one of mysql, postgres, sqlite")

	// ErrLDAPHostEmpty error if directory auth is enabled without a host.
	ErrLDAPHostEmpty = errors.New("toml config ldap.host can not be empty when ldap is enabled")
)
