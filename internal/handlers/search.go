package handlers

import (
	"strings"
	"time"

	"github.com/clouddrive/backend/internal/middleware"
	"github.com/clouddrive/backend/internal/models"
	"github.com/clouddrive/backend/internal/services"
	"github.com/clouddrive/backend/pkg/utils"
	"github.com/gofiber/fiber/v2"
)

// Search filters the caller's library by free text, type and date facets.
// Results are capped; there is no pagination cursor.
func (h *FilesHandler) Search(c *fiber.Ctx) error {
	currentUser := middleware.GetCurrentUser(c)
	if currentUser == nil {
		return utils.Error(c, fiber.StatusUnauthorized, "unauthorized")
	}

	params := services.SearchParams{
		Query:     strings.TrimSpace(c.Query("q")),
		Type:      strings.TrimSpace(c.Query("type")),
		DateRange: strings.TrimSpace(c.Query("dateRange")),
		SortBy:    strings.TrimSpace(c.Query("sortBy")),
		SortOrder: strings.TrimSpace(c.Query("sortOrder")),
	}

	if !services.ValidSearchType(params.Type) {
		return utils.Error(c, fiber.StatusBadRequest, "invalid type filter")
	}
	if !services.ValidDateRange(params.DateRange) {
		return utils.Error(c, fiber.StatusBadRequest, "invalid dateRange filter")
	}

	files := []models.File{}
	query := services.BuildSearchQuery(h.DB.Model(&models.File{}), currentUser.ID, params, time.Now())
	if err := query.Find(&files).Error; err != nil {
		return utils.Error(c, fiber.StatusInternalServerError, "search failed")
	}

	return utils.Success(c, fiber.StatusOK, files)
}
