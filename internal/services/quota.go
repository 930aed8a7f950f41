package services

import (
	"context"

	"github.com/clouddrive/backend/internal/models"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

// QuotaService maintains per-user storage accounting. Counter updates are
// expressed as SQL increments so concurrent uploads never lose updates to a
// read-modify-write race.
type QuotaService struct {
	DB *gorm.DB
}

func NewQuotaService(db *gorm.DB) *QuotaService {
	return &QuotaService{DB: db}
}

// CanStore reports whether adding size bytes would keep the user within
// their storage limit.
func (q *QuotaService) CanStore(user *models.User, size int64) bool {
	return user.StorageUsed+size <= user.StorageLimit
}

// Add shifts the user's storage counter by delta bytes (negative on delete).
func (q *QuotaService) Add(ctx context.Context, userID uuid.UUID, delta int64) error {
	if delta == 0 {
		return nil
	}
	return q.DB.WithContext(ctx).
		Model(&models.User{}).
		Where("id = ?", userID).
		UpdateColumn("storage_used", gorm.Expr("storage_used + ?", delta)).Error
}
