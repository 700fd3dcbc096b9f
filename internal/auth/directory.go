package auth

import (
	"crypto/tls"
	"errors"
	"fmt"
	"net"
	"strconv"
	"strings"
	"time"

	"github.com/go-ldap/ldap/v3"
	"github.com/rs/zerolog/log"

	"gorm.io/gorm"

	"github.com/gendoc-app/gendoc/internal/config"
	"github.com/gendoc-app/gendoc/internal/db/models"
)

// Directory attributes read for every user entry.
const (
	attrUID         = "uid"
	attrSurname     = "sn"
	attrGivenName   = "givenName"
	attrMail        = "mail"
	attrCommonName  = "cn"
	attrDisplayName = "displayName"
	attrMemberOf    = "memberOf"
)

// DirectoryUser is the fixed attribute set read from a directory entry.
type DirectoryUser struct {
	DN          string
	UID         string
	Username    string
	Surname     string
	GivenName   string
	Mail        string
	CommonName  string
	DisplayName string
	Groups      []string
}

// SearchFilters narrows an administrative directory search.
type SearchFilters struct {
	Username string
	Email    string
	Name     string
	Group    string
}

// DirectoryProvider handles authentication against the external directory service.
type DirectoryProvider struct {
	config *config.LDAP
	db     *gorm.DB
}

// NewDirectoryProvider creates a new directory provider.
func NewDirectoryProvider(cfg *config.LDAP, db *gorm.DB) (*DirectoryProvider, error) {
	if !cfg.Enabled {
		return nil, ErrDirectoryDisabled
	}

	if cfg.UserFilter == "" {
		cfg.UserFilter = "(uid={username})"
	}

	if cfg.Timeout == 0 {
		cfg.Timeout = 10
	}

	return &DirectoryProvider{
		config: cfg,
		db:     db,
	}, nil
}

// Connect establishes a connection to the directory server. Connection
// failures are reported as ErrDirectoryUnavailable.
func (p *DirectoryProvider) Connect() (*ldap.Conn, error) {
	hostPort := net.JoinHostPort(p.config.Host, strconv.Itoa(p.config.Port))

	var ldapURL string
	if p.config.UseSSL {
		ldapURL = "ldaps://" + hostPort
	} else {
		ldapURL = "ldap://" + hostPort
	}

	var tlsConfig *tls.Config
	if p.config.UseSSL || p.config.UseTLS {
		tlsConfig = &tls.Config{
			InsecureSkipVerify: p.config.SkipVerify, //nolint:gosec // skipping verifying tls is ok
			ServerName:         p.config.Host,
		}
	}

	conn, err := ldap.DialURL(ldapURL, ldap.DialWithTLSConfig(tlsConfig))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrDirectoryUnavailable, err)
	}

	if !p.config.UseSSL && p.config.UseTLS {
		if errStartTLS := conn.StartTLS(tlsConfig); errStartTLS != nil {
			if errClose := conn.Close(); errClose != nil {
				log.Error().Err(errClose).Msg("failed to close directory connection")
			}

			return nil, fmt.Errorf("%w: start tls: %v", ErrDirectoryUnavailable, errStartTLS)
		}
	}

	if p.config.Timeout > 0 {
		conn.SetTimeout(time.Duration(p.config.Timeout) * time.Second)
	}

	return conn, nil
}

// Authenticate authenticates a user against the directory and upserts the
// local mirror row on success.
func (p *DirectoryProvider) Authenticate(username, password string) (*models.User, error) {
	conn, err := p.Connect()
	if err != nil {
		return nil, err
	}

	defer func() {
		if errClose := conn.Close(); errClose != nil {
			log.Warn().Err(errClose).Msg("failed to close directory connection")
		}
	}()

	if errBindService := p.bindService(conn); errBindService != nil {
		return nil, errBindService
	}

	entry, errSearch := p.searchUserEntry(conn, username)
	if errSearch != nil {
		return nil, errSearch
	}

	if errBind := conn.Bind(entry.DN, password); errBind != nil {
		if ldap.IsErrorWithCode(errBind, ldap.LDAPResultInvalidCredentials) {
			return nil, ErrInvalidCredentials
		}

		return nil, fmt.Errorf("%w: bind as user: %v", ErrDirectoryUnavailable, errBind)
	}

	directoryUser := entryToDirectoryUser(entry, username)

	return p.upsertDirectoryUser(directoryUser)
}

// bindService binds with the configured service account, if provided.
// Bind failures here mean misconfiguration, not bad user credentials.
func (p *DirectoryProvider) bindService(conn *ldap.Conn) error {
	if p.config.BindDN == "" {
		return nil
	}

	if err := conn.Bind(p.config.BindDN, p.config.BindPassword); err != nil {
		return fmt.Errorf("%w: service bind: %v", ErrDirectoryUnavailable, err)
	}

	return nil
}

// searchUserEntry searches the directory for the given username and returns a single entry.
func (p *DirectoryProvider) searchUserEntry(conn *ldap.Conn, username string) (*ldap.Entry, error) {
	userFilter := strings.ReplaceAll(p.config.UserFilter, "{username}", ldap.EscapeFilter(username))
	searchRequest := ldap.NewSearchRequest(
		p.config.BaseDN,
		ldap.ScopeWholeSubtree,
		ldap.NeverDerefAliases,
		0, // Size limit
		p.config.Timeout,
		false,
		userFilter,
		userAttributes(),
		nil,
	)

	searchResult, err := conn.Search(searchRequest)
	if err != nil {
		return nil, fmt.Errorf("%w: search: %v", ErrDirectoryUnavailable, err)
	}

	switch len(searchResult.Entries) {
	case 0:
		return nil, ErrUserNotFound
	case 1:
		return searchResult.Entries[0], nil
	default:
		return nil, ErrMultipleUsersFound
	}
}

func userAttributes() []string {
	return []string{
		attrUID,
		attrSurname,
		attrGivenName,
		attrMail,
		attrCommonName,
		attrDisplayName,
		attrMemberOf,
		"dn",
	}
}

func entryToDirectoryUser(entry *ldap.Entry, username string) *DirectoryUser {
	uid := entry.GetAttributeValue(attrUID)
	if uid == "" {
		uid = username
	}

	return &DirectoryUser{
		DN:          entry.DN,
		UID:         uid,
		Username:    username,
		Surname:     entry.GetAttributeValue(attrSurname),
		GivenName:   entry.GetAttributeValue(attrGivenName),
		Mail:        entry.GetAttributeValue(attrMail),
		CommonName:  entry.GetAttributeValue(attrCommonName),
		DisplayName: entry.GetAttributeValue(attrDisplayName),
		Groups:      entry.GetAttributeValues(attrMemberOf),
	}
}

// upsertDirectoryUser creates or updates the local mirror row for a directory
// account. Rows are matched on the stable directory uid, never the username,
// so a directory-side rename updates the same account.
func (p *DirectoryProvider) upsertDirectoryUser(du *DirectoryUser) (*models.User, error) {
	var user models.User

	err := p.db.Where("directory_uid = ? AND auth_source = ?", du.UID, models.AuthSourceDirectory).
		First(&user).Error

	notFound := errors.Is(err, gorm.ErrRecordNotFound)

	if notFound {
		user = models.User{
			Active:       true,
			Username:     du.Username,
			Email:        du.Mail,
			FirstName:    du.GivenName,
			LastName:     du.Surname,
			Role:         models.RoleUser,
			AuthSource:   models.AuthSourceDirectory,
			DirectoryUID: du.UID,
			CreatedAt:    time.Now(),
			UpdatedAt:    time.Now(),
		}

		if err = p.db.Create(&user).Error; err != nil {
			return nil, fmt.Errorf("failed to create user: %w", err)
		}

		return &user, nil
	}

	if err != nil {
		return nil, fmt.Errorf("failed to query user: %w", err)
	}

	if !user.Active {
		return nil, ErrUserAccountDisabled
	}

	user.Email = du.Mail
	user.FirstName = du.GivenName
	user.LastName = du.Surname
	user.UpdatedAt = time.Now()

	if err = p.db.Save(&user).Error; err != nil {
		return nil, fmt.Errorf("failed to update user: %w", err)
	}

	return &user, nil
}

// BuildSearchFilter composes an escaped directory search filter from the
// given administrative filters. With no filters it matches all persons.
func BuildSearchFilter(filters SearchFilters) string {
	var conditions []string

	if filters.Username != "" {
		conditions = append(conditions, fmt.Sprintf("(uid=%s)", ldap.EscapeFilter(filters.Username)))
	}

	if filters.Email != "" {
		conditions = append(conditions, fmt.Sprintf("(mail=%s)", ldap.EscapeFilter(filters.Email)))
	}

	if filters.Name != "" {
		name := ldap.EscapeFilter(filters.Name)
		conditions = append(conditions,
			fmt.Sprintf("(|(cn=*%s*)(sn=*%s*)(givenName=*%s*))", name, name, name))
	}

	if filters.Group != "" {
		conditions = append(conditions, fmt.Sprintf("(memberOf=%s)", ldap.EscapeFilter(filters.Group)))
	}

	if len(conditions) == 0 {
		return "(objectClass=person)"
	}

	return "(&(objectClass=person)" + strings.Join(conditions, "") + ")"
}

// SearchUsers searches the directory with the given filters, for
// administrative lookup and synchronization.
func (p *DirectoryProvider) SearchUsers(filters SearchFilters, limit int) ([]*DirectoryUser, error) {
	conn, err := p.Connect()
	if err != nil {
		return nil, err
	}

	defer func() {
		if errClose := conn.Close(); errClose != nil {
			log.Warn().Err(errClose).Msg("failed to close directory connection")
		}
	}()

	if err = p.bindService(conn); err != nil {
		return nil, err
	}

	searchRequest := ldap.NewSearchRequest(
		p.config.BaseDN,
		ldap.ScopeWholeSubtree,
		ldap.NeverDerefAliases,
		limit,
		p.config.Timeout,
		false,
		BuildSearchFilter(filters),
		userAttributes(),
		nil,
	)

	searchResult, errSearch := conn.Search(searchRequest)
	if errSearch != nil {
		return nil, fmt.Errorf("%w: search: %v", ErrDirectoryUnavailable, errSearch)
	}

	users := make([]*DirectoryUser, len(searchResult.Entries))
	for i, entry := range searchResult.Entries {
		users[i] = entryToDirectoryUser(entry, entry.GetAttributeValue(attrUID))
	}

	return users, nil
}

// TestConnection tests the directory server connection and service bind.
func (p *DirectoryProvider) TestConnection() error {
	conn, err := p.Connect()
	if err != nil {
		return err
	}

	defer func() {
		if errClose := conn.Close(); errClose != nil {
			log.Warn().Err(errClose).Msg("failed to close directory connection")
		}
	}()

	return p.bindService(conn)
}
