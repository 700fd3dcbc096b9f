package models

import "time"

// Template represents an administrator-managed document template.
type Template struct {
	ID uint64 `gorm:"primaryKey"`
	// Name is the unique display name of the template.
	Name string `gorm:"unique;size:150;not null"`
	// Filename is the stored template file name under the template storage path.
	Filename string `gorm:"size:255;not null"`
	// Description is an optional human readable description.
	Description string `gorm:"size:255"`
	// Fields is a JSON-encoded list of fillable field names.
	Fields string `gorm:"type:text"`
	// CreatedBy is the ID of the admin who uploaded the template.
	CreatedBy uint64
	CreatedAt time.Time
	UpdatedAt time.Time
}
