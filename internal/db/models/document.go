package models

import "time"

// Document represents a generated document owned by a user.
type Document struct {
	ID uint64 `gorm:"primaryKey"`
	// TemplateID references the template the document was generated from.
	TemplateID uint64 `gorm:"index"`
	// UserID is the owner; users only see and delete their own documents.
	UserID uint64 `gorm:"index;not null"`
	// Title is the user-supplied document title.
	Title string `gorm:"size:255"`
	// Filename is the stored file name under the document storage path.
	Filename  string `gorm:"size:255;not null"`
	CreatedAt time.Time
}
