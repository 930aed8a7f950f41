package models

import "github.com/google/uuid"

type SharePermission string

const (
	SharePermissionView SharePermission = "view"
	SharePermissionEdit SharePermission = "edit"
)

// FileShare is a per-user access-control entry on a file. A (file, user)
// pair is unique; re-sharing updates the permission in place.
type FileShare struct {
	BaseModel
	FileID     uuid.UUID       `json:"fileID" gorm:"type:uuid;not null;index;uniqueIndex:idx_file_user"`
	UserID     uuid.UUID       `json:"userID" gorm:"type:uuid;not null;index;uniqueIndex:idx_file_user"`
	Permission SharePermission `json:"permission" gorm:"type:varchar(20);not null;default:'view'"`

	File File `json:"file,omitempty" gorm:"foreignKey:FileID;references:ID"`
	User User `json:"user,omitempty" gorm:"foreignKey:UserID;references:ID"`
}

func (FileShare) TableName() string {
	return "file_shares"
}
