// Package config handles input from etc/*.toml files
package config

import (
	"bytes"
	"encoding/json"
	"os"
	"time"

	"github.com/pkg/errors"

	"github.com/BurntSushi/toml"
)

// ReadConfig from config file.
func ReadConfig(path string) (Config, error) {
	var (
		c             Config
		JSONConfigEnv string
		err           error
	)

	// Read main configuration
	if path == "" {
		path = "./etc/"
	}

	if _, err = toml.DecodeFile(path+"main.toml", &c); err != nil {
		return Config{}, errors.Wrap(err, "failed to read main config file")
	}

	// override it from env
	JSONConfigEnv = os.Getenv("GENDOC_CONFIG_JSON")

	if JSONConfigEnv != "" {
		c, err = decodeAndMergeConfig(c, JSONConfigEnv)
		if err != nil {
			return c, err
		}
	}

	c.Defaults()

	return c, validate(c)
}

func decodeAndMergeConfig(c Config, configAsJSON string) (Config, error) {
	err := json.Unmarshal([]byte(configAsJSON), &c)
	if err != nil {
		return Config{}, errors.Wrap(err, "failed to merge json config from env")
	}

	return c, nil
}

// DumpConfig config as TOML String.
func DumpConfig(c Config) (string, error) {
	var buffer bytes.Buffer
	t := toml.NewEncoder(&buffer)

	if err := t.Encode(c); err != nil {
		return "", err //nolint: wrapcheck
	}

	return buffer.String(), nil
}

// validate minimal config settings for gendoc and fill in the
// security defaults the rest of the application relies on.
func validate(c Config) error {
	invalidErrMessage := "invalid config"

	if c.Webserver.Port == 0 {
		return errors.Wrap(ErrWebServerPortCanNotBeZero, invalidErrMessage)
	}

	if c.Webserver.URL == "" {
		return errors.Wrap(ErrEmptyURL, invalidErrMessage)
	}

	if c.DB.Engine == "" {
		return errors.Wrap(ErrUnknownDBEngine, invalidErrMessage)
	}

	switch c.DB.Engine {
	case DBEngineMySQL, DBEnginePostgres, DBEngineSQLite:
	default:
		return errors.Wrap(ErrUnknownDBEngine, invalidErrMessage)
	}

	if c.LDAP.Enabled && c.LDAP.Host == "" {
		return errors.Wrap(ErrLDAPHostEmpty, invalidErrMessage)
	}

	return nil
}

// Defaults fills zero-valued security settings with their documented defaults.
func (c *Config) Defaults() {
	if c.Webserver.ShutDownTime == 0 {
		c.Webserver.ShutDownTime = 5 // set default of 5 seconds
	}

	if c.Security.MaxLoginAttempts == 0 {
		c.Security.MaxLoginAttempts = 5
	}

	if c.Security.LockoutWindow == 0 {
		c.Security.LockoutWindow = 15 * time.Minute
	}

	if c.Security.SessionTimeout == 0 {
		c.Security.SessionTimeout = time.Hour
	}

	if c.LDAP.Timeout == 0 {
		c.LDAP.Timeout = 10 // seconds, bounded directory I/O
	}
}
