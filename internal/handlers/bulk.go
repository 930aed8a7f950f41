package handlers

import (
	"archive/zip"
	"bufio"
	"context"
	"errors"
	"io"

	"github.com/clouddrive/backend/internal/middleware"
	"github.com/clouddrive/backend/internal/models"
	"github.com/clouddrive/backend/internal/services"
	"github.com/clouddrive/backend/internal/storage"
	"github.com/clouddrive/backend/pkg/logger"
	"github.com/clouddrive/backend/pkg/utils"
	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
	"github.com/hashicorp/go-multierror"
	"gorm.io/gorm"
)

type BulkHandler struct {
	DB      *gorm.DB
	Storage storage.ObjectStore
	Quota   *services.QuotaService
	Audit   *services.AuditService
}

func NewBulkHandler(db *gorm.DB, store storage.ObjectStore, quota *services.QuotaService, audit *services.AuditService) *BulkHandler {
	return &BulkHandler{DB: db, Storage: store, Quota: quota, Audit: audit}
}

type bulkRequest struct {
	FileIDs []string `json:"fileIds"`
}

// selectedFiles parses the request body and loads the caller's rows for the
// requested ids. On failure it writes the error response itself and reports
// ok=false. Ids the caller does not own are silently dropped.
func (h *BulkHandler) selectedFiles(c *fiber.Ctx) ([]models.File, bool) {
	currentUser := middleware.GetCurrentUser(c)
	if currentUser == nil {
		_ = utils.Error(c, fiber.StatusUnauthorized, "unauthorized")
		return nil, false
	}

	var req bulkRequest
	if err := c.BodyParser(&req); err != nil {
		_ = utils.Error(c, fiber.StatusBadRequest, "invalid request body")
		return nil, false
	}
	if len(req.FileIDs) == 0 {
		_ = utils.Error(c, fiber.StatusBadRequest, "fileIds is required")
		return nil, false
	}

	ids, err := parseUUIDList(req.FileIDs)
	if err != nil {
		_ = utils.Error(c, fiber.StatusBadRequest, "invalid file id in fileIds")
		return nil, false
	}

	var files []models.File
	if err := h.DB.Where("id IN ? AND owner_id = ?", ids, currentUser.ID).Find(&files).Error; err != nil {
		_ = utils.Error(c, fiber.StatusInternalServerError, "failed loading files")
		return nil, false
	}

	return files, true
}

// BulkDelete removes a selection of the caller's files. Blob deletes are
// best-effort: a failing object delete is recorded but never blocks the
// metadata cleanup, matching the single-file delete path. The storage
// counter drops by the full sum so it stays equal to the surviving rows.
func (h *BulkHandler) BulkDelete(c *fiber.Ctx) error {
	files, ok := h.selectedFiles(c)
	if !ok {
		return nil
	}
	currentUser := middleware.GetCurrentUser(c)

	if len(files) == 0 {
		return utils.Success(c, fiber.StatusOK, fiber.Map{
			"message":      "files deleted successfully",
			"deletedCount": 0,
		})
	}

	var blobErrs *multierror.Error
	var freedBytes int64
	fileIDs := make([]uuid.UUID, 0, len(files))

	for _, file := range files {
		fileIDs = append(fileIDs, file.ID)
		if file.IsFolder {
			continue
		}

		freedBytes += file.Size
		if err := h.Storage.Delete(c.Context(), file.StoragePath); err != nil && !errors.Is(err, storage.ErrNotFound) {
			blobErrs = multierror.Append(blobErrs, err)
		}
	}

	if err := blobErrs.ErrorOrNil(); err != nil {
		logger.Error("bulk_delete_blob_errors", err, map[string]interface{}{
			"user_id": currentUser.ID.String(),
			"count":   blobErrs.Len(),
		})
	}

	if err := h.Quota.Add(c.Context(), currentUser.ID, -freedBytes); err != nil {
		logger.Error("quota_decrement_failed", err, map[string]interface{}{
			"user_id": currentUser.ID.String(),
		})
	}

	if err := h.DB.Unscoped().Where("file_id IN ?", fileIDs).Delete(&models.FileShare{}).Error; err != nil {
		return utils.Error(c, fiber.StatusInternalServerError, "failed deleting file shares")
	}
	if err := h.DB.Unscoped().Where("file_id IN ?", fileIDs).Delete(&models.ShareLink{}).Error; err != nil {
		return utils.Error(c, fiber.StatusInternalServerError, "failed deleting share links")
	}
	if err := h.DB.Where("id IN ?", fileIDs).Delete(&models.File{}).Error; err != nil {
		return utils.Error(c, fiber.StatusInternalServerError, "failed deleting files")
	}

	logger.InfoWithUser(currentUser.ID.String(), "bulk_delete_done", map[string]interface{}{
		"deleted_count": len(files),
		"freed_bytes":   freedBytes,
	})

	h.Audit.LogAsync(services.AuditEntry{
		UserID:       &currentUser.ID,
		Action:       "file.bulk_delete",
		ResourceType: "file",
		Details: map[string]interface{}{
			"deleted_count": len(files),
			"freed_bytes":   freedBytes,
		},
		IPAddress: c.IP(),
		RequestID: getRequestID(c),
	})

	return utils.Success(c, fiber.StatusOK, fiber.Map{
		"message":      "files deleted successfully",
		"deletedCount": len(files),
	})
}

// BulkDownload streams the selection as a zip archive. Entries are appended
// one blob at a time so the whole set is never buffered in memory; folders
// in the selection are skipped. Writing stops as soon as the client goes
// away.
func (h *BulkHandler) BulkDownload(c *fiber.Ctx) error {
	files, ok := h.selectedFiles(c)
	if !ok {
		return nil
	}
	currentUser := middleware.GetCurrentUser(c)

	entries := make([]models.File, 0, len(files))
	for _, file := range files {
		if !file.IsFolder {
			entries = append(entries, file)
		}
	}

	userID := currentUser.ID.String()

	c.Set(fiber.HeaderContentType, "application/zip")
	c.Set(fiber.HeaderContentDisposition, `attachment; filename="files.zip"`)

	// The stream writer runs after this handler returns, so it must not
	// touch the fiber context. Blob reads use a detached context; client
	// disconnects surface as Flush errors instead.
	ctx := context.Background()

	c.Context().SetBodyStreamWriter(func(w *bufio.Writer) {
		archive := zip.NewWriter(w)
		defer archive.Close()

		for _, file := range entries {
			obj, _, err := h.Storage.Download(ctx, file.StoragePath)
			if err != nil {
				logger.WarnWithUser(userID, "bulk_download_blob_missing", map[string]interface{}{
					"file_id":      file.ID.String(),
					"storage_path": file.StoragePath,
					"error":        err.Error(),
				})
				continue
			}

			entry, err := archive.Create(file.Name)
			if err != nil {
				_ = obj.Close()
				return
			}

			_, copyErr := io.Copy(entry, obj)
			_ = obj.Close()
			if copyErr != nil {
				return
			}

			// A failed flush means the sink is gone; stop reading blobs.
			if err := archive.Flush(); err != nil {
				return
			}
			if err := w.Flush(); err != nil {
				return
			}
		}
	})

	h.Audit.LogAsync(services.AuditEntry{
		UserID:       &currentUser.ID,
		Action:       "file.bulk_download",
		ResourceType: "file",
		Details: map[string]interface{}{
			"file_count": len(entries),
		},
		IPAddress: c.IP(),
		RequestID: getRequestID(c),
	})

	return nil
}
