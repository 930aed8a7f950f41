package models

import (
	"time"

	"github.com/google/uuid"
)

// ShareLink is a capability token granting access to one file. A file may
// carry any number of independent links.
type ShareLink struct {
	BaseModel
	Token       string          `json:"token" gorm:"type:varchar(64);uniqueIndex;not null"`
	FileID      uuid.UUID       `json:"fileID" gorm:"type:uuid;not null;index"`
	Permission  SharePermission `json:"permission" gorm:"type:varchar(20);not null;default:'view'"`
	IsPublic    bool            `json:"isPublic" gorm:"not null;default:false"`
	CreatedByID uuid.UUID       `json:"createdByID" gorm:"type:uuid;not null;index"`
	ExpiresAt   *time.Time      `json:"expiresAt,omitempty"`

	File      File `json:"file,omitempty" gorm:"foreignKey:FileID;references:ID"`
	CreatedBy User `json:"createdBy,omitempty" gorm:"foreignKey:CreatedByID;references:ID"`
}

func (ShareLink) TableName() string {
	return "share_links"
}

// Expired reports whether the link's declarative expiry has passed.
func (s *ShareLink) Expired(now time.Time) bool {
	return s.ExpiresAt != nil && !s.ExpiresAt.After(now)
}
