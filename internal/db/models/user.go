package models

import (
	"time"

	"github.com/alexedwards/argon2id"
	"github.com/rs/zerolog/log"
)

// AuthSource represents the credential backend for a user account.
// It indicates how the user authenticates (local password or directory bind).
type AuthSource string

const (
	// AuthSourceLocal indicates the user authenticates with a local database password.
	AuthSourceLocal AuthSource = "local"
	// AuthSourceDirectory indicates the user authenticates via the external directory service.
	AuthSourceDirectory AuthSource = "directory"
)

// User roles. Authorization is literal role equality, there is no hierarchy.
const (
	// RoleUser is the least-privileged role, assigned to directory accounts on first login.
	RoleUser = "user"
	// RoleAdmin grants access to template management, user administration and settings.
	RoleAdmin = "admin"
)

// User represents a user account in the system.
// Users authenticate either with a locally stored password hash or by
// binding against the external directory service; directory accounts are
// mirrored into this table on first successful login.
type User struct {
	// ID is the unique identifier for the user.
	ID uint64 `gorm:"primaryKey"`
	// Active indicates whether the user account is active and can log in.
	Active bool
	// Username is the unique username for login.
	Username string `gorm:"unique;size:100;not null"`
	// Email is the user's email address.
	Email string `gorm:"size:255"`
	// Password is the Argon2id hashed password (only used for local authentication).
	Password string `gorm:"size:255"`
	// FirstName is the user's first or given name.
	FirstName string `gorm:"size:100"`
	// LastName is the user's last or family name.
	LastName string `gorm:"size:100"`
	// Role is the user's role name, one of RoleUser or RoleAdmin.
	Role string `gorm:"size:20;not null;default:'user'"`
	// AuthSource indicates how this user authenticates (local or directory).
	AuthSource AuthSource `gorm:"type:varchar(20);not null;default:'local'"`
	// DirectoryUID is the stable directory identifier for directory users.
	// Mirror rows are matched on this value, not the username, so directory
	// renames do not duplicate accounts.
	DirectoryUID string `gorm:"size:255;index"`
	// CreatedAt is the timestamp when the user was created (managed by GORM).
	CreatedAt time.Time
	// UpdatedAt is the timestamp when the user was last updated (managed by GORM).
	UpdatedAt time.Time
}

// DisplayName returns the user's human readable name, falling back to the username.
func (u *User) DisplayName() string {
	switch {
	case u.FirstName != "" && u.LastName != "":
		return u.FirstName + " " + u.LastName
	case u.LastName != "":
		return u.LastName
	default:
		return u.Username
	}
}

// HashPassword hashes a plaintext password using the Argon2id algorithm.
// This function should be used when creating or updating local user passwords.
func HashPassword(password string) string {
	hashedPassword, err := argon2id.CreateHash(password, argon2id.DefaultParams)
	if err != nil {
		log.Fatal().Msgf("failed to hash password: %v", err)
	}

	return hashedPassword
}

// VerifyPassword verifies a plaintext password against the user's stored hashed password.
// It uses constant-time comparison to prevent timing attacks.
// Returns true if the password matches, false otherwise.
func (u *User) VerifyPassword(password string) bool {
	match, err := argon2id.ComparePasswordAndHash(password, u.Password)
	if err != nil {
		log.Error().Msgf("failed to verify password: %v", err)
		return false
	}

	return match
}
