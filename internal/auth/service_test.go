package auth

import (
	"testing"
	"time"

	"github.com/glebarez/sqlite"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/gendoc-app/gendoc/internal/audit"
	"github.com/gendoc-app/gendoc/internal/config"
	"github.com/gendoc-app/gendoc/internal/db/models"
	"github.com/gendoc-app/gendoc/internal/lockout"
)

func newTestDB(t *testing.T) *gorm.DB {
	t.Helper()

	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{})
	require.NoError(t, err)

	require.NoError(t, db.AutoMigrate(&models.User{}, &models.AuditLog{}))

	return db
}

func newTestService(t *testing.T, db *gorm.DB) *Service {
	t.Helper()

	cfg := &config.Config{}
	cfg.Security.MaxLoginAttempts = 3
	cfg.Security.LockoutWindow = 15 * time.Minute

	recorder := audit.NewRecorder(db)
	tracker := lockout.New(cfg.Security.MaxLoginAttempts, cfg.Security.LockoutWindow, recorder)

	svc, err := NewService(db, cfg, tracker, recorder)
	require.NoError(t, err)

	return svc
}

func createLocalUser(t *testing.T, svc *Service, username, password string) *models.User {
	t.Helper()

	user, err := svc.Local().CreateUser(username, username+"@example.org", password, "", "", models.RoleUser)
	require.NoError(t, err)

	return user
}

func TestAuthenticate_LocalSuccess(t *testing.T) {
	db := newTestDB(t)
	svc := newTestService(t, db)
	created := createLocalUser(t, svc, "alice", "correct horse battery")

	user, err := svc.Authenticate("alice", "correct horse battery", StrategyLocal, lockout.Metadata{})

	require.NoError(t, err)
	assert.Equal(t, created.ID, user.ID)
	assert.Equal(t, models.AuthSourceLocal, user.AuthSource)

	// success leaves an audit row
	var count int64
	require.NoError(t, db.Model(&models.AuditLog{}).
		Where("action = ?", models.AuditLoginSuccess).
		Count(&count).Error)
	assert.EqualValues(t, 1, count)
}

func TestAuthenticate_WrongPassword(t *testing.T) {
	svc := newTestService(t, newTestDB(t))
	createLocalUser(t, svc, "alice", "correct horse battery")

	_, err := svc.Authenticate("alice", "wrong", StrategyLocal, lockout.Metadata{})
	assert.ErrorIs(t, err, ErrInvalidCredentials)
}

func TestAuthenticate_UnknownUser(t *testing.T) {
	svc := newTestService(t, newTestDB(t))

	_, err := svc.Authenticate("nobody", "whatever", StrategyLocal, lockout.Metadata{})
	assert.ErrorIs(t, err, ErrUserNotFound)
}

func TestAuthenticate_InactiveUser(t *testing.T) {
	db := newTestDB(t)
	svc := newTestService(t, db)
	created := createLocalUser(t, svc, "alice", "correct horse battery")

	require.NoError(t, svc.Local().SetActive(created.ID, false))

	_, err := svc.Authenticate("alice", "correct horse battery", StrategyLocal, lockout.Metadata{})
	assert.ErrorIs(t, err, ErrUserAccountDisabled)
}

func TestAuthenticate_EmptyCredentials(t *testing.T) {
	svc := newTestService(t, newTestDB(t))

	_, err := svc.Authenticate("", "secret", StrategyLocal, lockout.Metadata{})
	assert.ErrorIs(t, err, ErrValidation)

	_, err = svc.Authenticate("alice", "", StrategyLocal, lockout.Metadata{})
	assert.ErrorIs(t, err, ErrValidation)
}

func TestAuthenticate_UnknownStrategy(t *testing.T) {
	svc := newTestService(t, newTestDB(t))

	_, err := svc.Authenticate("alice", "secret", "token", lockout.Metadata{})
	assert.ErrorIs(t, err, ErrUnknownStrategy)
}

func TestAuthenticate_DirectoryDisabled(t *testing.T) {
	svc := newTestService(t, newTestDB(t))

	_, err := svc.Authenticate("alice", "secret", StrategyDirectory, lockout.Metadata{})
	assert.ErrorIs(t, err, ErrDirectoryDisabled)
}

func TestAuthenticate_LockoutAfterRepeatedFailures(t *testing.T) {
	db := newTestDB(t)
	svc := newTestService(t, db)
	createLocalUser(t, svc, "alice", "correct horse battery")

	for i := 0; i < 3; i++ {
		_, err := svc.Authenticate("alice", "wrong", StrategyLocal, lockout.Metadata{IPAddress: "10.0.0.1"})
		assert.ErrorIs(t, err, ErrInvalidCredentials)
	}

	// locked out now, even with the right password
	_, err := svc.Authenticate("alice", "correct horse battery", StrategyLocal, lockout.Metadata{})
	assert.ErrorIs(t, err, ErrAccountLocked)

	// the lockout is audited with the client metadata
	var logs []models.AuditLog
	require.NoError(t, db.Where("action = ?", models.AuditLoginFailed).Find(&logs).Error)
	assert.Len(t, logs, 3)
	assert.Equal(t, "10.0.0.1", logs[0].IPAddress)
}

func TestAuthenticate_SuccessResetsLockout(t *testing.T) {
	svc := newTestService(t, newTestDB(t))
	createLocalUser(t, svc, "alice", "correct horse battery")

	for i := 0; i < 2; i++ {
		_, err := svc.Authenticate("alice", "wrong", StrategyLocal, lockout.Metadata{})
		assert.ErrorIs(t, err, ErrInvalidCredentials)
	}

	_, err := svc.Authenticate("alice", "correct horse battery", StrategyLocal, lockout.Metadata{})
	require.NoError(t, err)

	// the counter starts from zero again
	for i := 0; i < 2; i++ {
		_, err := svc.Authenticate("alice", "wrong", StrategyLocal, lockout.Metadata{})
		assert.ErrorIs(t, err, ErrInvalidCredentials)
	}

	_, err = svc.Authenticate("alice", "correct horse battery", StrategyLocal, lockout.Metadata{})
	assert.NoError(t, err)
}

func TestAuthenticate_LockoutIgnoresUsernameCase(t *testing.T) {
	svc := newTestService(t, newTestDB(t))
	createLocalUser(t, svc, "alice", "correct horse battery")

	// case variants of the same account share one attempt budget
	for _, username := range []string{"alice", "Alice", "ALICE"} {
		_, err := svc.Authenticate(username, "wrong", StrategyLocal, lockout.Metadata{})
		assert.Error(t, err)
	}

	_, err := svc.Authenticate("AlIcE", "correct horse battery", StrategyLocal, lockout.Metadata{})
	assert.ErrorIs(t, err, ErrAccountLocked)
}

func TestCreateUser_DuplicateUsername(t *testing.T) {
	svc := newTestService(t, newTestDB(t))
	createLocalUser(t, svc, "alice", "correct horse battery")

	_, err := svc.Local().CreateUser("alice", "", "another password", "", "", models.RoleUser)
	assert.ErrorIs(t, err, ErrUserNameExists)
}

func TestChangePassword(t *testing.T) {
	svc := newTestService(t, newTestDB(t))
	created := createLocalUser(t, svc, "alice", "correct horse battery")

	err := svc.Local().ChangePassword(created.ID, "not the old one", "a new password")
	assert.ErrorIs(t, err, ErrInvalidOldPassword)

	require.NoError(t, svc.Local().ChangePassword(created.ID, "correct horse battery", "a new password"))

	_, err = svc.Authenticate("alice", "a new password", StrategyLocal, lockout.Metadata{})
	assert.NoError(t, err)
}
