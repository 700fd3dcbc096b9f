// Package audit records security and application events to the database
// and mirrors them to the structured log.
package audit

import (
	"encoding/json"
	"fmt"

	"github.com/rs/zerolog/log"
	"gorm.io/gorm"

	"github.com/gendoc-app/gendoc/internal/db/models"
)

// Recorder writes audit events. A nil Recorder drops events silently so
// callers do not need to guard every call site.
type Recorder struct {
	db *gorm.DB
}

// NewRecorder creates a new audit recorder backed by the given database.
func NewRecorder(db *gorm.DB) *Recorder {
	return &Recorder{db: db}
}

// Event is one auditable occurrence. Action must be one of the
// models.Audit* constants.
type Event struct {
	Action    string
	UserID    *uint64
	Username  string
	IPAddress string
	UserAgent string
	Details   map[string]any
}

// Record persists the event and emits a structured security log entry.
// Persistence failures are logged but never propagated; auditing must not
// break the request that triggered it.
func (r *Recorder) Record(e Event) {
	logEvent := log.Info()
	if e.Action == models.AuditLoginFailed || e.Action == models.AuditForbidden ||
		e.Action == models.AuditCSRFRejected || e.Action == models.AuditAccountLocked {
		logEvent = log.Warn()
	}

	logEvent.
		Str("action", e.Action).
		Str("username", e.Username).
		Str("ip", e.IPAddress).
		Fields(map[string]any{"details": e.Details}).
		Msg("security event")

	if r == nil || r.db == nil {
		return
	}

	// copied so augmenting never mutates the caller's map
	details := make(map[string]any, len(e.Details)+1)
	for k, v := range e.Details {
		details[k] = v
	}

	if e.Username != "" {
		details["username"] = e.Username
	}

	encoded, err := json.Marshal(details)
	if err != nil {
		encoded = []byte(fmt.Sprintf(`{"marshal_error":%q}`, err.Error()))
	}

	row := models.AuditLog{
		UserID:    e.UserID,
		Action:    e.Action,
		Details:   string(encoded),
		IPAddress: e.IPAddress,
		UserAgent: e.UserAgent,
	}

	if err := r.db.Create(&row).Error; err != nil {
		log.Error().Err(err).Str("action", e.Action).Msg("failed to persist audit event")
	}
}

// Recent returns the newest events, newest first.
func (r *Recorder) Recent(limit int) ([]models.AuditLog, error) {
	var rows []models.AuditLog

	err := r.db.Order("id DESC").Limit(limit).Find(&rows).Error
	if err != nil {
		return nil, fmt.Errorf("failed to query audit log: %w", err)
	}

	return rows, nil
}
