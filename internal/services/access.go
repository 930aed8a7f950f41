package services

import (
	"context"

	"github.com/clouddrive/backend/internal/models"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

type AccessService struct {
	DB *gorm.DB
}

func NewAccessService(db *gorm.DB) *AccessService {
	return &AccessService{DB: db}
}

// HasAccess reports whether the user may act on the file with at least the
// required permission. Ownership always grants access; otherwise ACL entries
// are consulted on the file and each ancestor folder in turn, so sharing a
// folder implicitly shares its subtree.
func (a *AccessService) HasAccess(ctx context.Context, userID uuid.UUID, fileID uuid.UUID, required models.SharePermission) bool {
	requiredLevel, ok := permissionLevel(required)
	if !ok {
		return false
	}

	currentID := fileID
	for {
		var file models.File
		if err := a.DB.WithContext(ctx).First(&file, "id = ?", currentID).Error; err != nil {
			return false
		}

		if file.OwnerID == userID {
			return true
		}

		var entry models.FileShare
		err := a.DB.WithContext(ctx).
			First(&entry, "file_id = ? AND user_id = ?", currentID, userID).Error
		if err == nil {
			if lvl, exists := permissionLevel(entry.Permission); exists && lvl >= requiredLevel {
				return true
			}
		}

		if file.ParentID == nil {
			return false
		}
		currentID = *file.ParentID
	}
}

func permissionLevel(permission models.SharePermission) (int, bool) {
	switch permission {
	case models.SharePermissionView:
		return 1, true
	case models.SharePermissionEdit:
		return 2, true
	default:
		return 0, false
	}
}
