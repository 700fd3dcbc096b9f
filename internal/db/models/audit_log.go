package models

import "time"

// Audit actions recorded by the security subsystem.
const (
	AuditLoginSuccess         = "login_success"
	AuditLoginFailed          = "login_failed"
	AuditAccountLocked        = "account_locked"
	AuditDirectoryUnavailable = "directory_unavailable"
	AuditLogout               = "logout"
	AuditCSRFRejected         = "csrf_rejected"
	AuditForbidden            = "forbidden"
)

// AuditLog represents one auditable security or application event.
// Rows are append-only; the admin log view reads them in reverse
// chronological order.
type AuditLog struct {
	ID uint64 `gorm:"primaryKey"`
	// UserID is the acting user, nil for anonymous events such as failed logins.
	UserID *uint64 `gorm:"index"`
	// Action is one of the Audit* constants.
	Action string `gorm:"size:100;not null;index"`
	// Details carries JSON-encoded event metadata.
	Details string `gorm:"type:text"`
	// IPAddress is the client address the event originated from.
	IPAddress string `gorm:"size:64"`
	// UserAgent is the client user agent string.
	UserAgent string `gorm:"size:255"`
	// CreatedAt is the event timestamp (managed by GORM).
	CreatedAt time.Time
}
