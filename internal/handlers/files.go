package handlers

import (
	"errors"
	"fmt"
	"math"
	"mime"
	"path/filepath"
	"strings"
	"time"

	"github.com/clouddrive/backend/internal/middleware"
	"github.com/clouddrive/backend/internal/models"
	"github.com/clouddrive/backend/internal/services"
	"github.com/clouddrive/backend/internal/storage"
	"github.com/clouddrive/backend/pkg/logger"
	"github.com/clouddrive/backend/pkg/utils"
	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

type FilesHandler struct {
	DB      *gorm.DB
	Storage storage.ObjectStore
	Access  *services.AccessService
	Quota   *services.QuotaService
	Audit   *services.AuditService
}

func NewFilesHandler(db *gorm.DB, store storage.ObjectStore, access *services.AccessService, quota *services.QuotaService, audit *services.AuditService) *FilesHandler {
	return &FilesHandler{DB: db, Storage: store, Access: access, Quota: quota, Audit: audit}
}

var (
	errParentInvalid   = errors.New("invalid parentId")
	errParentNotFound  = errors.New("parent folder not found")
	errParentNotFolder = errors.New("parentId must be a folder")
)

// resolveParentFolder validates an optional parentId form/body value against
// the caller's own folders. A nil result with nil error means no parent was
// requested.
func (h *FilesHandler) resolveParentFolder(c *fiber.Ctx, raw string, ownerID uuid.UUID) (*uuid.UUID, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil, nil
	}

	parsed, err := parseUUID(raw)
	if err != nil {
		return nil, errParentInvalid
	}

	var parent models.File
	if err := h.DB.WithContext(c.Context()).First(&parent, "id = ? AND owner_id = ?", parsed, ownerID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, errParentNotFound
		}
		return nil, err
	}
	if !parent.IsFolder {
		return nil, errParentNotFolder
	}

	return &parsed, nil
}

func parentFolderError(c *fiber.Ctx, err error) error {
	switch {
	case errors.Is(err, errParentInvalid):
		return utils.Error(c, fiber.StatusBadRequest, errParentInvalid.Error())
	case errors.Is(err, errParentNotFound):
		return utils.Error(c, fiber.StatusNotFound, errParentNotFound.Error())
	case errors.Is(err, errParentNotFolder):
		return utils.Error(c, fiber.StatusBadRequest, errParentNotFolder.Error())
	default:
		return utils.Error(c, fiber.StatusInternalServerError, "failed validating parent folder")
	}
}

func (h *FilesHandler) Upload(c *fiber.Ctx) error {
	currentUser := middleware.GetCurrentUser(c)
	if currentUser == nil {
		return utils.Error(c, fiber.StatusUnauthorized, "unauthorized")
	}

	fileHeader, err := c.FormFile("file")
	if err != nil {
		return utils.Error(c, fiber.StatusBadRequest, "file is required")
	}

	parentID, err := h.resolveParentFolder(c, c.FormValue("parentId"), currentUser.ID)
	if err != nil {
		return parentFolderError(c, err)
	}

	filename := filepath.Base(strings.TrimSpace(fileHeader.Filename))
	if filename == "" || filename == "." || filename == string(filepath.Separator) {
		return utils.Error(c, fiber.StatusBadRequest, "invalid filename")
	}

	if !h.Quota.CanStore(currentUser, fileHeader.Size) {
		logger.WarnWithUser(currentUser.ID.String(), "quota_exceeded", map[string]interface{}{
			"file_size":     fileHeader.Size,
			"storage_used":  currentUser.StorageUsed,
			"storage_limit": currentUser.StorageLimit,
		})
		return utils.Error(c, fiber.StatusBadRequest, "storage limit exceeded")
	}

	stream, err := fileHeader.Open()
	if err != nil {
		return utils.Error(c, fiber.StatusInternalServerError, "failed opening uploaded file")
	}
	defer stream.Close()

	contentType := fileHeader.Header.Get("Content-Type")
	if contentType == "" {
		contentType = mime.TypeByExtension(filepath.Ext(filename))
	}
	if contentType == "" {
		contentType = "application/octet-stream"
	}

	// Blob first, metadata second. A crash in between leaves an orphaned
	// object for the reconciler to sweep.
	objectName := fmt.Sprintf("%s/%s/%s", currentUser.ID.String(), uuid.New().String(), filename)
	if err := h.Storage.Upload(c.Context(), objectName, stream, fileHeader.Size, contentType); err != nil {
		return utils.Error(c, fiber.StatusInternalServerError, "failed uploading file")
	}

	entry := models.File{
		Name:        filename,
		MimeType:    contentType,
		Size:        fileHeader.Size,
		IsFolder:    false,
		ParentID:    parentID,
		OwnerID:     currentUser.ID,
		StoragePath: objectName,
	}

	if err := h.DB.Create(&entry).Error; err != nil {
		_ = h.Storage.Delete(c.Context(), objectName)
		return utils.Error(c, fiber.StatusInternalServerError, "failed creating file record")
	}

	if err := h.Quota.Add(c.Context(), currentUser.ID, fileHeader.Size); err != nil {
		logger.Error("quota_increment_failed", err, map[string]interface{}{
			"user_id": currentUser.ID.String(),
			"file_id": entry.ID.String(),
		})
	}

	logger.InfoWithUser(currentUser.ID.String(), "file_uploaded", map[string]interface{}{
		"file_id":      entry.ID.String(),
		"file_name":    filename,
		"file_size":    fileHeader.Size,
		"mime_type":    contentType,
		"storage_path": objectName,
	})

	h.Audit.LogAsync(services.AuditEntry{
		UserID:       &currentUser.ID,
		Action:       "file.upload",
		ResourceType: "file",
		ResourceID:   &entry.ID,
		Details: map[string]interface{}{
			"file_name": filename,
			"file_size": fileHeader.Size,
			"mime_type": contentType,
		},
		IPAddress: c.IP(),
		RequestID: getRequestID(c),
	})

	return utils.Success(c, fiber.StatusCreated, entry)
}

type createFolderRequest struct {
	Name     string  `json:"name"`
	ParentID *string `json:"parentId"`
}

func (h *FilesHandler) CreateFolder(c *fiber.Ctx) error {
	currentUser := middleware.GetCurrentUser(c)
	if currentUser == nil {
		return utils.Error(c, fiber.StatusUnauthorized, "unauthorized")
	}

	var req createFolderRequest
	if err := c.BodyParser(&req); err != nil {
		return utils.Error(c, fiber.StatusBadRequest, "invalid request body")
	}

	name := strings.TrimSpace(req.Name)
	if name == "" {
		return utils.Error(c, fiber.StatusBadRequest, "name is required")
	}

	var rawParent string
	if req.ParentID != nil {
		rawParent = *req.ParentID
	}
	parentID, err := h.resolveParentFolder(c, rawParent, currentUser.ID)
	if err != nil {
		return parentFolderError(c, err)
	}

	folder := models.File{
		Name:        name,
		MimeType:    "inode/directory",
		Size:        0,
		IsFolder:    true,
		ParentID:    parentID,
		OwnerID:     currentUser.ID,
		StoragePath: "",
	}

	if err := h.DB.Create(&folder).Error; err != nil {
		return utils.Error(c, fiber.StatusInternalServerError, "failed creating folder")
	}

	h.Audit.LogAsync(services.AuditEntry{
		UserID:       &currentUser.ID,
		Action:       "folder.create",
		ResourceType: "file",
		ResourceID:   &folder.ID,
		Details: map[string]interface{}{
			"folder_name": name,
		},
		IPAddress: c.IP(),
		RequestID: getRequestID(c),
	})

	return utils.Success(c, fiber.StatusCreated, folder)
}

func (h *FilesHandler) List(c *fiber.Ctx) error {
	currentUser := middleware.GetCurrentUser(c)
	if currentUser == nil {
		return utils.Error(c, fiber.StatusUnauthorized, "unauthorized")
	}

	query := h.DB.Where("owner_id = ?", currentUser.ID)

	folderIDRaw := strings.TrimSpace(c.Query("folderId"))
	if folderIDRaw == "" {
		query = query.Where("parent_id IS NULL")
	} else {
		folderID, err := parseUUID(folderIDRaw)
		if err != nil {
			return utils.Error(c, fiber.StatusBadRequest, "invalid folderId")
		}
		query = query.Where("parent_id = ?", folderID)
	}

	files := []models.File{}
	if err := query.Preload("SharedWith").Order("created_at DESC").Find(&files).Error; err != nil {
		return utils.Error(c, fiber.StatusInternalServerError, "failed listing files")
	}

	return utils.Success(c, fiber.StatusOK, files)
}

func (h *FilesHandler) Get(c *fiber.Ctx) error {
	currentUser := middleware.GetCurrentUser(c)
	if currentUser == nil {
		return utils.Error(c, fiber.StatusUnauthorized, "unauthorized")
	}

	fileID, err := parseUUID(c.Params("id"))
	if err != nil {
		return utils.Error(c, fiber.StatusBadRequest, "invalid file id")
	}

	var file models.File
	if err := h.DB.Preload("Owner").First(&file, "id = ?", fileID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return utils.Error(c, fiber.StatusNotFound, "file not found")
		}
		return utils.Error(c, fiber.StatusInternalServerError, "failed loading file")
	}

	if !h.Access.HasAccess(c.Context(), currentUser.ID, file.ID, models.SharePermissionView) {
		return utils.Error(c, fiber.StatusForbidden, "access denied")
	}

	return utils.Success(c, fiber.StatusOK, file)
}

type renameFileRequest struct {
	Name string `json:"name"`
}

func (h *FilesHandler) Rename(c *fiber.Ctx) error {
	currentUser := middleware.GetCurrentUser(c)
	if currentUser == nil {
		return utils.Error(c, fiber.StatusUnauthorized, "unauthorized")
	}

	fileID, err := parseUUID(c.Params("id"))
	if err != nil {
		return utils.Error(c, fiber.StatusBadRequest, "invalid file id")
	}

	var file models.File
	if err := h.DB.First(&file, "id = ? AND owner_id = ?", fileID, currentUser.ID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return utils.Error(c, fiber.StatusNotFound, "file not found")
		}
		return utils.Error(c, fiber.StatusInternalServerError, "failed loading file")
	}

	var req renameFileRequest
	if err := c.BodyParser(&req); err != nil {
		return utils.Error(c, fiber.StatusBadRequest, "invalid request body")
	}

	name := strings.TrimSpace(req.Name)
	if name == "" {
		return utils.Error(c, fiber.StatusBadRequest, "name is required")
	}

	if err := h.DB.Model(&file).Update("name", name).Error; err != nil {
		return utils.Error(c, fiber.StatusInternalServerError, "failed renaming file")
	}

	return utils.Success(c, fiber.StatusOK, file)
}

func (h *FilesHandler) Delete(c *fiber.Ctx) error {
	currentUser := middleware.GetCurrentUser(c)
	if currentUser == nil {
		return utils.Error(c, fiber.StatusUnauthorized, "unauthorized")
	}

	fileID, err := parseUUID(c.Params("id"))
	if err != nil {
		return utils.Error(c, fiber.StatusBadRequest, "invalid file id")
	}

	var file models.File
	if err := h.DB.First(&file, "id = ? AND owner_id = ?", fileID, currentUser.ID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return utils.Error(c, fiber.StatusNotFound, "file not found")
		}
		return utils.Error(c, fiber.StatusInternalServerError, "failed loading file")
	}

	if !file.IsFolder {
		// Best-effort blob cleanup; a missing or unreachable object must
		// not keep the metadata row alive.
		if err := h.Storage.Delete(c.Context(), file.StoragePath); err != nil && !errors.Is(err, storage.ErrNotFound) {
			logger.WarnWithUser(currentUser.ID.String(), "blob_delete_failed", map[string]interface{}{
				"file_id":      file.ID.String(),
				"storage_path": file.StoragePath,
				"error":        err.Error(),
			})
		}

		if err := h.Quota.Add(c.Context(), currentUser.ID, -file.Size); err != nil {
			logger.Error("quota_decrement_failed", err, map[string]interface{}{
				"user_id": currentUser.ID.String(),
				"file_id": file.ID.String(),
			})
		}
	}

	// Folder deletion is intentionally not recursive: children keep their
	// parent reference and stay listable under it.
	if err := h.DB.Unscoped().Where("file_id = ?", file.ID).Delete(&models.FileShare{}).Error; err != nil {
		return utils.Error(c, fiber.StatusInternalServerError, "failed deleting file shares")
	}
	if err := h.DB.Unscoped().Where("file_id = ?", file.ID).Delete(&models.ShareLink{}).Error; err != nil {
		return utils.Error(c, fiber.StatusInternalServerError, "failed deleting share links")
	}
	if err := h.DB.Delete(&models.File{}, "id = ?", file.ID).Error; err != nil {
		return utils.Error(c, fiber.StatusInternalServerError, "failed deleting file")
	}

	logger.InfoWithUser(currentUser.ID.String(), "file_deleted", map[string]interface{}{
		"file_id":   file.ID.String(),
		"file_name": file.Name,
		"is_folder": file.IsFolder,
	})

	h.Audit.LogAsync(services.AuditEntry{
		UserID:       &currentUser.ID,
		Action:       "file.delete",
		ResourceType: "file",
		ResourceID:   &file.ID,
		Details: map[string]interface{}{
			"file_name": file.Name,
			"file_size": file.Size,
			"is_folder": file.IsFolder,
		},
		IPAddress: c.IP(),
		RequestID: getRequestID(c),
	})

	return utils.Message(c, fiber.StatusOK, "file deleted successfully")
}

func (h *FilesHandler) Download(c *fiber.Ctx) error {
	currentUser := middleware.GetCurrentUser(c)
	if currentUser == nil {
		return utils.Error(c, fiber.StatusUnauthorized, "unauthorized")
	}

	fileID, err := parseUUID(c.Params("id"))
	if err != nil {
		return utils.Error(c, fiber.StatusBadRequest, "invalid file id")
	}

	var file models.File
	if err := h.DB.First(&file, "id = ?", fileID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return utils.Error(c, fiber.StatusNotFound, "file not found")
		}
		return utils.Error(c, fiber.StatusInternalServerError, "failed loading file")
	}
	if file.IsFolder {
		return utils.Error(c, fiber.StatusBadRequest, "cannot download a folder")
	}

	if !h.Access.HasAccess(c.Context(), currentUser.ID, file.ID, models.SharePermissionView) {
		return utils.Error(c, fiber.StatusForbidden, "access denied")
	}

	obj, info, err := h.Storage.Download(c.Context(), file.StoragePath)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return utils.Error(c, fiber.StatusNotFound, "file content not found")
		}
		return utils.Error(c, fiber.StatusInternalServerError, "failed downloading file")
	}

	contentType := info.ContentType
	if contentType == "" {
		contentType = file.MimeType
	}

	c.Set(fiber.HeaderContentType, contentType)
	c.Set(fiber.HeaderContentDisposition, fmt.Sprintf("attachment; filename=%q", file.Name))
	// int is 32 bits on some platforms; stream without a length rather
	// than truncate.
	if info.Size > math.MaxInt {
		return c.SendStream(obj)
	}
	return c.SendStream(obj, int(info.Size))
}

func (h *FilesHandler) DownloadURL(c *fiber.Ctx) error {
	currentUser := middleware.GetCurrentUser(c)
	if currentUser == nil {
		return utils.Error(c, fiber.StatusUnauthorized, "unauthorized")
	}

	fileID, err := parseUUID(c.Params("id"))
	if err != nil {
		return utils.Error(c, fiber.StatusBadRequest, "invalid file id")
	}

	var file models.File
	if err := h.DB.First(&file, "id = ?", fileID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return utils.Error(c, fiber.StatusNotFound, "file not found")
		}
		return utils.Error(c, fiber.StatusInternalServerError, "failed loading file")
	}
	if file.IsFolder {
		return utils.Error(c, fiber.StatusBadRequest, "cannot download a folder")
	}
	if !h.Access.HasAccess(c.Context(), currentUser.ID, file.ID, models.SharePermissionView) {
		return utils.Error(c, fiber.StatusForbidden, "access denied")
	}

	url, err := h.Storage.PresignedGetURL(c.Context(), file.StoragePath, 15*time.Minute, file.Name)
	if err != nil {
		return utils.Error(c, fiber.StatusInternalServerError, "failed generating download url")
	}

	return utils.Success(c, fiber.StatusOK, fiber.Map{"url": url})
}
