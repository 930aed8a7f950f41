package models

type UserRole string

const (
	UserRoleAdmin UserRole = "admin"
	UserRoleUser  UserRole = "user"
)

type User struct {
	BaseModel
	Email        string   `json:"email" gorm:"type:varchar(255);uniqueIndex;not null"`
	PasswordHash string   `json:"-" gorm:"type:text;not null"`
	Name         string   `json:"name" gorm:"type:varchar(100);not null"`
	Role         UserRole `json:"role" gorm:"type:varchar(20);not null;default:'user'"`
	StorageUsed  int64    `json:"storageUsed" gorm:"not null;default:0"`
	StorageLimit int64    `json:"storageLimit" gorm:"not null;default:0"`
	AvatarURL    *string  `json:"avatarURL,omitempty" gorm:"type:text"`

	Files      []File      `json:"-" gorm:"foreignKey:OwnerID"`
	ShareLinks []ShareLink `json:"-" gorm:"foreignKey:CreatedByID"`
}
