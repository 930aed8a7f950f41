package handlers

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/clouddrive/backend/internal/middleware"
	"github.com/clouddrive/backend/internal/models"
	"github.com/clouddrive/backend/internal/services"
	"github.com/clouddrive/backend/pkg/logger"
	"github.com/clouddrive/backend/pkg/utils"
	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

type SharesHandler struct {
	DB        *gorm.DB
	Access    *services.AccessService
	Audit     *services.AuditService
	ClientURL string
}

func NewSharesHandler(db *gorm.DB, access *services.AccessService, audit *services.AuditService, clientURL string) *SharesHandler {
	return &SharesHandler{DB: db, Access: access, Audit: audit, ClientURL: clientURL}
}

var errInvalidFileID = errors.New("invalid file id")

// ownedFile loads a file strictly owner-scoped. Sharing is an owner-only
// capability; anyone else gets the same "not found" as a missing record.
func (h *SharesHandler) ownedFile(c *fiber.Ctx, ownerID uuid.UUID) (*models.File, error) {
	fileID, err := parseUUID(c.Params("id"))
	if err != nil {
		return nil, errInvalidFileID
	}

	var file models.File
	if err := h.DB.First(&file, "id = ? AND owner_id = ?", fileID, ownerID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, gorm.ErrRecordNotFound
		}
		return nil, err
	}
	return &file, nil
}

type createShareLinkRequest struct {
	Permission string     `json:"permission"`
	IsPublic   bool       `json:"isPublic"`
	ExpiresAt  *time.Time `json:"expiresAt"`
}

func (h *SharesHandler) CreateShareLink(c *fiber.Ctx) error {
	currentUser := middleware.GetCurrentUser(c)
	if currentUser == nil {
		return utils.Error(c, fiber.StatusUnauthorized, "unauthorized")
	}

	file, err := h.ownedFile(c, currentUser.ID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return utils.Error(c, fiber.StatusNotFound, "file not found")
		}
		if errors.Is(err, errInvalidFileID) {
			return utils.Error(c, fiber.StatusBadRequest, "invalid file id")
		}
		return utils.Error(c, fiber.StatusInternalServerError, "failed loading file")
	}

	var req createShareLinkRequest
	if err := c.BodyParser(&req); err != nil {
		return utils.Error(c, fiber.StatusBadRequest, "invalid request body")
	}

	permission := models.SharePermissionView
	if req.Permission != "" {
		if !isValidSharePermission(req.Permission) {
			return utils.Error(c, fiber.StatusBadRequest, "invalid permission")
		}
		permission = models.SharePermission(strings.ToLower(strings.TrimSpace(req.Permission)))
	}

	token, err := utils.GenerateShareToken()
	if err != nil {
		return utils.Error(c, fiber.StatusInternalServerError, "failed generating share token")
	}

	// Every call mints an independent link; existing links stay valid.
	link := models.ShareLink{
		Token:       token,
		FileID:      file.ID,
		Permission:  permission,
		IsPublic:    req.IsPublic,
		CreatedByID: currentUser.ID,
		ExpiresAt:   req.ExpiresAt,
	}
	if err := h.DB.Create(&link).Error; err != nil {
		return utils.Error(c, fiber.StatusInternalServerError, "failed creating share link")
	}

	logger.InfoWithUser(currentUser.ID.String(), "share_link_created", map[string]interface{}{
		"file_id":    file.ID.String(),
		"link_id":    link.ID.String(),
		"permission": string(permission),
		"is_public":  req.IsPublic,
	})

	h.Audit.LogAsync(services.AuditEntry{
		UserID:       &currentUser.ID,
		Action:       "share.link_create",
		ResourceType: "share_link",
		ResourceID:   &link.ID,
		Details: map[string]interface{}{
			"file_name":  file.Name,
			"permission": string(permission),
			"is_public":  req.IsPublic,
		},
		IPAddress: c.IP(),
		RequestID: getRequestID(c),
	})

	return utils.Success(c, fiber.StatusOK, fiber.Map{
		"shareLink": fmt.Sprintf("%s/share/%s", strings.TrimRight(h.ClientURL, "/"), token),
	})
}

type shareWithUserRequest struct {
	Email      string `json:"email"`
	Permission string `json:"permission"`
}

func (h *SharesHandler) ShareWithUser(c *fiber.Ctx) error {
	currentUser := middleware.GetCurrentUser(c)
	if currentUser == nil {
		return utils.Error(c, fiber.StatusUnauthorized, "unauthorized")
	}

	file, err := h.ownedFile(c, currentUser.ID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return utils.Error(c, fiber.StatusNotFound, "file not found")
		}
		if errors.Is(err, errInvalidFileID) {
			return utils.Error(c, fiber.StatusBadRequest, "invalid file id")
		}
		return utils.Error(c, fiber.StatusInternalServerError, "failed loading file")
	}

	var req shareWithUserRequest
	if err := c.BodyParser(&req); err != nil {
		return utils.Error(c, fiber.StatusBadRequest, "invalid request body")
	}

	email := strings.ToLower(strings.TrimSpace(req.Email))
	if email == "" {
		return utils.Error(c, fiber.StatusBadRequest, "email is required")
	}
	if !isValidSharePermission(req.Permission) {
		return utils.Error(c, fiber.StatusBadRequest, "invalid permission")
	}
	permission := models.SharePermission(strings.ToLower(strings.TrimSpace(req.Permission)))

	var recipient models.User
	if err := h.DB.First(&recipient, "email = ?", email).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return utils.Error(c, fiber.StatusNotFound, "user not found")
		}
		return utils.Error(c, fiber.StatusInternalServerError, "failed loading user")
	}

	if recipient.ID == currentUser.ID {
		return utils.Error(c, fiber.StatusBadRequest, "cannot share with yourself")
	}

	// Re-sharing with the same user updates the entry instead of stacking
	// duplicates.
	var entry models.FileShare
	err = h.DB.First(&entry, "file_id = ? AND user_id = ?", file.ID, recipient.ID).Error
	switch {
	case err == nil:
		if err := h.DB.Model(&entry).Update("permission", permission).Error; err != nil {
			return utils.Error(c, fiber.StatusInternalServerError, "failed updating share")
		}
	case errors.Is(err, gorm.ErrRecordNotFound):
		entry = models.FileShare{
			FileID:     file.ID,
			UserID:     recipient.ID,
			Permission: permission,
		}
		if err := h.DB.Create(&entry).Error; err != nil {
			return utils.Error(c, fiber.StatusInternalServerError, "failed creating share")
		}
	default:
		return utils.Error(c, fiber.StatusInternalServerError, "failed checking existing share")
	}

	logger.InfoWithUser(currentUser.ID.String(), "file_shared", map[string]interface{}{
		"file_id":      file.ID.String(),
		"recipient_id": recipient.ID.String(),
		"permission":   string(permission),
	})

	h.Audit.LogAsync(services.AuditEntry{
		UserID:       &currentUser.ID,
		Action:       "share.user_create",
		ResourceType: "file_share",
		ResourceID:   &entry.ID,
		Details: map[string]interface{}{
			"file_name":       file.Name,
			"recipient_email": recipient.Email,
			"permission":      string(permission),
		},
		IPAddress: c.IP(),
		RequestID: getRequestID(c),
	})

	return utils.Message(c, fiber.StatusOK, "file shared successfully")
}

func (h *SharesHandler) ListFileShares(c *fiber.Ctx) error {
	currentUser := middleware.GetCurrentUser(c)
	if currentUser == nil {
		return utils.Error(c, fiber.StatusUnauthorized, "unauthorized")
	}

	file, err := h.ownedFile(c, currentUser.ID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return utils.Error(c, fiber.StatusNotFound, "file not found")
		}
		if errors.Is(err, errInvalidFileID) {
			return utils.Error(c, fiber.StatusBadRequest, "invalid file id")
		}
		return utils.Error(c, fiber.StatusInternalServerError, "failed loading file")
	}

	shares := []models.FileShare{}
	if err := h.DB.Preload("User").Where("file_id = ?", file.ID).Find(&shares).Error; err != nil {
		return utils.Error(c, fiber.StatusInternalServerError, "failed loading shares")
	}

	links := []models.ShareLink{}
	if err := h.DB.Where("file_id = ?", file.ID).Order("created_at DESC").Find(&links).Error; err != nil {
		return utils.Error(c, fiber.StatusInternalServerError, "failed loading share links")
	}

	return utils.Success(c, fiber.StatusOK, fiber.Map{
		"shares": shares,
		"links":  links,
	})
}

func (h *SharesHandler) RevokeShare(c *fiber.Ctx) error {
	currentUser := middleware.GetCurrentUser(c)
	if currentUser == nil {
		return utils.Error(c, fiber.StatusUnauthorized, "unauthorized")
	}

	shareID, err := parseUUID(c.Params("id"))
	if err != nil {
		return utils.Error(c, fiber.StatusBadRequest, "invalid share id")
	}

	var entry models.FileShare
	if err := h.DB.Preload("File").First(&entry, "id = ?", shareID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return utils.Error(c, fiber.StatusNotFound, "share not found")
		}
		return utils.Error(c, fiber.StatusInternalServerError, "failed loading share")
	}

	if entry.File.OwnerID != currentUser.ID {
		return utils.Error(c, fiber.StatusForbidden, "insufficient permissions")
	}

	// Hard delete so the (file_id, user_id) unique index never blocks a
	// future re-share.
	if err := h.DB.Unscoped().Delete(&models.FileShare{}, "id = ?", entry.ID).Error; err != nil {
		return utils.Error(c, fiber.StatusInternalServerError, "failed revoking share")
	}

	h.Audit.LogAsync(services.AuditEntry{
		UserID:       &currentUser.ID,
		Action:       "share.revoke",
		ResourceType: "file_share",
		ResourceID:   &entry.ID,
		Details: map[string]interface{}{
			"file_id": entry.FileID.String(),
		},
		IPAddress: c.IP(),
		RequestID: getRequestID(c),
	})

	return utils.Message(c, fiber.StatusOK, "share revoked")
}

func (h *SharesHandler) ListSharedWithMe(c *fiber.Ctx) error {
	currentUser := middleware.GetCurrentUser(c)
	if currentUser == nil {
		return utils.Error(c, fiber.StatusUnauthorized, "unauthorized")
	}

	sharedIDs := h.DB.
		Model(&models.FileShare{}).
		Select("file_id").
		Where("user_id = ?", currentUser.ID)

	files := []models.File{}
	if err := h.DB.Preload("Owner").
		Where("id IN (?)", sharedIDs).
		Where("owner_id <> ?", currentUser.ID).
		Order("created_at DESC").
		Find(&files).Error; err != nil {
		return utils.Error(c, fiber.StatusInternalServerError, "failed listing shared files")
	}

	return utils.Success(c, fiber.StatusOK, files)
}

// ResolveShareLink exchanges a share token for the file it grants. Public
// links work unauthenticated; private ones require a valid bearer token.
// Expired and unknown tokens are indistinguishable on purpose.
func (h *SharesHandler) ResolveShareLink(c *fiber.Ctx) error {
	token := strings.TrimSpace(c.Params("token"))
	if token == "" {
		return utils.Error(c, fiber.StatusBadRequest, "invalid share token")
	}

	var link models.ShareLink
	if err := h.DB.First(&link, "token = ?", token).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return utils.Error(c, fiber.StatusNotFound, "share link not found")
		}
		return utils.Error(c, fiber.StatusInternalServerError, "failed loading share link")
	}

	if link.Expired(time.Now()) {
		return utils.Error(c, fiber.StatusNotFound, "share link not found")
	}

	if !link.IsPublic && middleware.GetCurrentUser(c) == nil {
		return utils.Error(c, fiber.StatusUnauthorized, "login required to access this file")
	}

	var file models.File
	if err := h.DB.Preload("Owner").First(&file, "id = ?", link.FileID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return utils.Error(c, fiber.StatusNotFound, "file not found")
		}
		return utils.Error(c, fiber.StatusInternalServerError, "failed loading file")
	}

	return utils.Success(c, fiber.StatusOK, fiber.Map{
		"file":       file,
		"permission": link.Permission,
	})
}
