package auth

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gendoc-app/gendoc/internal/config"
	"github.com/gendoc-app/gendoc/internal/db/models"
)

func TestBuildSearchFilter(t *testing.T) {
	tests := []struct {
		name    string
		filters SearchFilters
		want    string
	}{
		{
			name:    "no filters matches all persons",
			filters: SearchFilters{},
			want:    "(objectClass=person)",
		},
		{
			name:    "username",
			filters: SearchFilters{Username: "alice"},
			want:    "(&(objectClass=person)(uid=alice))",
		},
		{
			name:    "email",
			filters: SearchFilters{Email: "alice@example.org"},
			want:    "(&(objectClass=person)(mail=alice@example.org))",
		},
		{
			name:    "name searches cn, sn and givenName",
			filters: SearchFilters{Name: "ali"},
			want:    "(&(objectClass=person)(|(cn=*ali*)(sn=*ali*)(givenName=*ali*)))",
		},
		{
			name:    "group",
			filters: SearchFilters{Group: "cn=staff,ou=groups,dc=example,dc=org"},
			want:    "(&(objectClass=person)(memberOf=cn=staff,ou=groups,dc=example,dc=org))",
		},
		{
			name:    "combined",
			filters: SearchFilters{Username: "alice", Group: "cn=staff"},
			want:    "(&(objectClass=person)(uid=alice)(memberOf=cn=staff))",
		},
		{
			name:    "filter metacharacters are escaped",
			filters: SearchFilters{Username: "ali*)(uid=*"},
			want:    `(&(objectClass=person)(uid=ali\2a\29\28uid=\2a))`,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, BuildSearchFilter(tt.filters))
		})
	}
}

func TestNewDirectoryProvider_Defaults(t *testing.T) {
	cfg := &config.LDAP{Enabled: true, Host: "ldap.example.org", Port: 389}

	p, err := NewDirectoryProvider(cfg, newTestDB(t))
	require.NoError(t, err)

	assert.Equal(t, "(uid={username})", p.config.UserFilter)
	assert.Equal(t, 10, p.config.Timeout)
}

func TestNewDirectoryProvider_Disabled(t *testing.T) {
	_, err := NewDirectoryProvider(&config.LDAP{}, newTestDB(t))
	assert.ErrorIs(t, err, ErrDirectoryDisabled)
}

func TestUpsertDirectoryUser_CreatesMirrorOnce(t *testing.T) {
	db := newTestDB(t)
	p := &DirectoryProvider{config: &config.LDAP{Enabled: true}, db: db}

	du := &DirectoryUser{
		UID:       "emp1234",
		Username:  "alice",
		Mail:      "alice@example.org",
		GivenName: "Alice",
		Surname:   "Smith",
	}

	first, err := p.upsertDirectoryUser(du)
	require.NoError(t, err)

	assert.Equal(t, models.AuthSourceDirectory, first.AuthSource)
	assert.Equal(t, "emp1234", first.DirectoryUID)
	assert.Equal(t, models.RoleUser, first.Role)
	assert.True(t, first.Active)

	// a second authentication updates, never duplicates
	du.Mail = "a.smith@example.org"

	second, err := p.upsertDirectoryUser(du)
	require.NoError(t, err)

	assert.Equal(t, first.ID, second.ID)
	assert.Equal(t, "a.smith@example.org", second.Email)

	var count int64
	require.NoError(t, db.Model(&models.User{}).Count(&count).Error)
	assert.EqualValues(t, 1, count)
}

func TestUpsertDirectoryUser_KeyedByUIDNotUsername(t *testing.T) {
	db := newTestDB(t)
	p := &DirectoryProvider{config: &config.LDAP{Enabled: true}, db: db}

	first, err := p.upsertDirectoryUser(&DirectoryUser{UID: "emp1234", Username: "alice"})
	require.NoError(t, err)

	// a directory-side rename keeps the same account
	renamed, err := p.upsertDirectoryUser(&DirectoryUser{UID: "emp1234", Username: "alice.smith"})
	require.NoError(t, err)
	assert.Equal(t, first.ID, renamed.ID)

	// a different directory identity with the same display data is a new row
	other, err := p.upsertDirectoryUser(&DirectoryUser{UID: "emp9999", Username: "bob"})
	require.NoError(t, err)
	assert.NotEqual(t, first.ID, other.ID)
}

func TestUpsertDirectoryUser_DisabledMirror(t *testing.T) {
	db := newTestDB(t)
	p := &DirectoryProvider{config: &config.LDAP{Enabled: true}, db: db}

	created, err := p.upsertDirectoryUser(&DirectoryUser{UID: "emp1234", Username: "alice"})
	require.NoError(t, err)

	require.NoError(t, db.Model(&models.User{}).
		Where("id = ?", created.ID).
		Update("active", false).Error)

	_, err = p.upsertDirectoryUser(&DirectoryUser{UID: "emp1234", Username: "alice"})
	assert.ErrorIs(t, err, ErrUserAccountDisabled)
}
