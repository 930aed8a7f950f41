package services

import (
	"strings"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// SearchResultLimit caps every search; there is no pagination cursor.
const SearchResultLimit = 100

// documentMimeTypes is the fixed set matched by the "document" facet.
var documentMimeTypes = []string{
	"application/pdf",
	"application/msword",
	"application/vnd.openxmlformats-officedocument.wordprocessingml.document",
	"application/vnd.ms-excel",
	"application/vnd.openxmlformats-officedocument.spreadsheetml.sheet",
	"text/plain",
}

type SearchParams struct {
	Query     string
	Type      string
	DateRange string
	SortBy    string
	SortOrder string
}

// ValidSearchType reports whether the type facet is one the engine knows.
func ValidSearchType(value string) bool {
	switch value {
	case "", "all", "image", "document", "video", "audio":
		return true
	default:
		return false
	}
}

// ValidDateRange reports whether the dateRange facet is one the engine knows.
func ValidDateRange(value string) bool {
	switch value {
	case "", "all", "today", "week", "month", "year":
		return true
	default:
		return false
	}
}

// BuildSearchQuery narrows db to the owner's files matching the params.
// An unset SortBy leaves results unordered.
func BuildSearchQuery(db *gorm.DB, ownerID uuid.UUID, p SearchParams, now time.Time) *gorm.DB {
	query := db.Where("owner_id = ?", ownerID)

	if q := strings.TrimSpace(p.Query); q != "" {
		pattern := "%" + strings.ToLower(q) + "%"
		query = query.Where("LOWER(name) LIKE ? OR LOWER(mime_type) LIKE ?", pattern, pattern)
	}

	switch p.Type {
	case "image":
		query = query.Where("mime_type LIKE ?", "image/%")
	case "document":
		query = query.Where("mime_type IN ?", documentMimeTypes)
	case "video":
		query = query.Where("mime_type LIKE ?", "video/%")
	case "audio":
		query = query.Where("mime_type LIKE ?", "audio/%")
	}

	if cutoff, ok := dateCutoff(p.DateRange, now); ok {
		query = query.Where("created_at >= ?", cutoff)
	}

	if order, ok := sortClause(p.SortBy, p.SortOrder); ok {
		query = query.Order(order)
	}

	return query.Limit(SearchResultLimit)
}

// dateCutoff computes the inclusive lower bound for a dateRange facet.
// "today" resets to local midnight rather than a rolling 24 hours.
func dateCutoff(dateRange string, now time.Time) (time.Time, bool) {
	switch dateRange {
	case "today":
		year, month, day := now.Date()
		return time.Date(year, month, day, 0, 0, 0, 0, now.Location()), true
	case "week":
		return now.AddDate(0, 0, -7), true
	case "month":
		return now.AddDate(0, -1, 0), true
	case "year":
		return now.AddDate(-1, 0, 0), true
	default:
		return time.Time{}, false
	}
}

func sortClause(sortBy, sortOrder string) (string, bool) {
	var column string
	switch sortBy {
	case "name":
		column = "name"
	case "date":
		column = "created_at"
	case "size":
		column = "size"
	case "type":
		column = "mime_type"
	default:
		return "", false
	}

	direction := "ASC"
	if sortOrder == "desc" {
		direction = "DESC"
	}
	return column + " " + direction, true
}
