package handlers

import (
	"net/http"
	"strings"
	"testing"
	"time"

	"github.com/clouddrive/backend/internal/models"
	"github.com/google/uuid"
)

func createOwnedFile(t *testing.T, env *testEnv, ownerID uuid.UUID, name string) *models.File {
	t.Helper()

	file := models.File{
		Name:        name,
		MimeType:    "text/plain",
		Size:        4,
		OwnerID:     ownerID,
		StoragePath: "test/" + name,
	}
	if err := env.db.Create(&file).Error; err != nil {
		t.Fatalf("failed creating file %q: %v", name, err)
	}
	env.store.put(file.StoragePath, []byte("data"), "text/plain")
	return &file
}

func extractShareToken(t *testing.T, body map[string]any) string {
	t.Helper()

	link, _ := body["data"].(map[string]any)["shareLink"].(string)
	idx := strings.LastIndex(link, "/share/")
	if idx < 0 {
		t.Fatalf("unexpected share link %q", link)
	}
	return link[idx+len("/share/"):]
}

func TestShareLinkEndpoints(t *testing.T) {
	env := setupTestEnv(t)
	owner, ownerToken := createTestUser(t, env.db, "links-owner@test.com", "password123", models.UserRoleUser)
	_, otherToken := createTestUser(t, env.db, "links-other@test.com", "password123", models.UserRoleUser)

	file := createOwnedFile(t, env, owner.ID, "linked.txt")

	var publicToken string
	var privateToken string

	t.Run("POST share/link creates public link", func(t *testing.T) {
		resp := performJSONRequest(t, env.app, http.MethodPost, "/api/files/"+file.ID.String()+"/share/link", map[string]any{
			"isPublic": true,
		}, authHeaders(ownerToken))
		body := decodeJSONMap(t, resp)
		assertStatus(t, resp, http.StatusOK)
		publicToken = extractShareToken(t, body)
		if publicToken == "" {
			t.Fatalf("expected non-empty share token")
		}
	})

	t.Run("POST share/link twice mints distinct tokens", func(t *testing.T) {
		resp := performJSONRequest(t, env.app, http.MethodPost, "/api/files/"+file.ID.String()+"/share/link", map[string]any{
			"permission": "edit",
		}, authHeaders(ownerToken))
		body := decodeJSONMap(t, resp)
		assertStatus(t, resp, http.StatusOK)
		privateToken = extractShareToken(t, body)
		if privateToken == publicToken {
			t.Fatalf("expected a fresh token per link")
		}

		var count int64
		env.db.Model(&models.ShareLink{}).Where("file_id = ?", file.ID).Count(&count)
		if count != 2 {
			t.Fatalf("expected 2 link rows, got %d", count)
		}
	})

	t.Run("POST share/link by non-owner is a miss", func(t *testing.T) {
		resp := performJSONRequest(t, env.app, http.MethodPost, "/api/files/"+file.ID.String()+"/share/link", map[string]any{
			"isPublic": true,
		}, authHeaders(otherToken))
		body := decodeJSONMap(t, resp)
		assertStatus(t, resp, http.StatusNotFound)
		assertEnvelopeError(t, body, "file not found")
	})

	t.Run("POST share/link invalid permission", func(t *testing.T) {
		resp := performJSONRequest(t, env.app, http.MethodPost, "/api/files/"+file.ID.String()+"/share/link", map[string]any{
			"permission": "owner",
		}, authHeaders(ownerToken))
		body := decodeJSONMap(t, resp)
		assertStatus(t, resp, http.StatusBadRequest)
		assertEnvelopeError(t, body, "invalid permission")
	})

	t.Run("GET /api/share/:token public link works unauthenticated", func(t *testing.T) {
		resp := performRequest(t, env.app, http.MethodGet, "/api/share/"+publicToken, nil, nil)
		body := decodeJSONMap(t, resp)
		assertStatus(t, resp, http.StatusOK)
		data := body["data"].(map[string]any)
		if data["file"].(map[string]any)["id"] != file.ID.String() {
			t.Fatalf("expected resolved file id to match")
		}
		if data["permission"] != "view" {
			t.Fatalf("expected view permission, got %v", data["permission"])
		}
	})

	t.Run("GET /api/share/:token private link requires login", func(t *testing.T) {
		resp := performRequest(t, env.app, http.MethodGet, "/api/share/"+privateToken, nil, nil)
		body := decodeJSONMap(t, resp)
		assertStatus(t, resp, http.StatusUnauthorized)
		assertEnvelopeError(t, body, "login required to access this file")

		resp = performRequest(t, env.app, http.MethodGet, "/api/share/"+privateToken, nil, authHeaders(otherToken))
		assertStatus(t, resp, http.StatusOK)
		_ = decodeJSONMap(t, resp)
	})

	t.Run("GET /api/share/:token unknown token", func(t *testing.T) {
		resp := performRequest(t, env.app, http.MethodGet, "/api/share/definitely-not-a-token", nil, nil)
		body := decodeJSONMap(t, resp)
		assertStatus(t, resp, http.StatusNotFound)
		assertEnvelopeError(t, body, "share link not found")
	})

	t.Run("GET /api/share/:token expired token looks unknown", func(t *testing.T) {
		expired := time.Now().Add(-1 * time.Hour)
		link := models.ShareLink{
			Token:       "expired-token-0123456789",
			FileID:      file.ID,
			Permission:  models.SharePermissionView,
			IsPublic:    true,
			CreatedByID: owner.ID,
			ExpiresAt:   &expired,
		}
		if err := env.db.Create(&link).Error; err != nil {
			t.Fatalf("failed creating expired link: %v", err)
		}

		resp := performRequest(t, env.app, http.MethodGet, "/api/share/"+link.Token, nil, nil)
		body := decodeJSONMap(t, resp)
		assertStatus(t, resp, http.StatusNotFound)
		assertEnvelopeError(t, body, "share link not found")
	})
}

func TestUserShareEndpoints(t *testing.T) {
	env := setupTestEnv(t)
	owner, ownerToken := createTestUser(t, env.db, "shares-owner@test.com", "password123", models.UserRoleUser)
	recipient, recipientToken := createTestUser(t, env.db, "shares-recipient@test.com", "password123", models.UserRoleUser)

	file := createOwnedFile(t, env, owner.ID, "shared.txt")

	t.Run("POST share/user grants view access", func(t *testing.T) {
		resp := performJSONRequest(t, env.app, http.MethodPost, "/api/files/"+file.ID.String()+"/share/user", map[string]any{
			"email":      recipient.Email,
			"permission": "view",
		}, authHeaders(ownerToken))
		assertStatus(t, resp, http.StatusOK)
		_ = decodeJSONMap(t, resp)

		resp = performRequest(t, env.app, http.MethodGet, "/api/files/"+file.ID.String(), nil, authHeaders(recipientToken))
		assertStatus(t, resp, http.StatusOK)
	})

	t.Run("POST share/user again upgrades instead of duplicating", func(t *testing.T) {
		resp := performJSONRequest(t, env.app, http.MethodPost, "/api/files/"+file.ID.String()+"/share/user", map[string]any{
			"email":      recipient.Email,
			"permission": "edit",
		}, authHeaders(ownerToken))
		assertStatus(t, resp, http.StatusOK)
		_ = decodeJSONMap(t, resp)

		var shares []models.FileShare
		env.db.Where("file_id = ? AND user_id = ?", file.ID, recipient.ID).Find(&shares)
		if len(shares) != 1 {
			t.Fatalf("expected a single share row, got %d", len(shares))
		}
		if shares[0].Permission != models.SharePermissionEdit {
			t.Fatalf("expected edit permission after upgrade, got %s", shares[0].Permission)
		}
	})

	t.Run("POST share/user unknown recipient", func(t *testing.T) {
		resp := performJSONRequest(t, env.app, http.MethodPost, "/api/files/"+file.ID.String()+"/share/user", map[string]any{
			"email":      "ghost@test.com",
			"permission": "view",
		}, authHeaders(ownerToken))
		body := decodeJSONMap(t, resp)
		assertStatus(t, resp, http.StatusNotFound)
		assertEnvelopeError(t, body, "user not found")
	})

	t.Run("POST share/user with yourself", func(t *testing.T) {
		resp := performJSONRequest(t, env.app, http.MethodPost, "/api/files/"+file.ID.String()+"/share/user", map[string]any{
			"email":      owner.Email,
			"permission": "view",
		}, authHeaders(ownerToken))
		body := decodeJSONMap(t, resp)
		assertStatus(t, resp, http.StatusBadRequest)
		assertEnvelopeError(t, body, "cannot share with yourself")
	})

	t.Run("GET /api/shared lists incoming shares", func(t *testing.T) {
		resp := performRequest(t, env.app, http.MethodGet, "/api/shared", nil, authHeaders(recipientToken))
		body := decodeJSONMap(t, resp)
		assertStatus(t, resp, http.StatusOK)
		data := body["data"].([]any)
		if len(data) != 1 {
			t.Fatalf("expected 1 shared file, got %d", len(data))
		}
		if data[0].(map[string]any)["id"] != file.ID.String() {
			t.Fatalf("expected shared file id to match")
		}
	})

	t.Run("GET /api/shared empty for the owner", func(t *testing.T) {
		resp := performRequest(t, env.app, http.MethodGet, "/api/shared", nil, authHeaders(ownerToken))
		body := decodeJSONMap(t, resp)
		assertStatus(t, resp, http.StatusOK)
		if len(body["data"].([]any)) != 0 {
			t.Fatalf("expected owner's incoming shares to be empty")
		}
	})

	t.Run("GET files/:id/shares lists shares and links", func(t *testing.T) {
		resp := performRequest(t, env.app, http.MethodGet, "/api/files/"+file.ID.String()+"/shares", nil, authHeaders(ownerToken))
		body := decodeJSONMap(t, resp)
		assertStatus(t, resp, http.StatusOK)
		data := body["data"].(map[string]any)
		if len(data["shares"].([]any)) != 1 {
			t.Fatalf("expected 1 user share")
		}
	})

	t.Run("DELETE /api/shares/:id revokes access", func(t *testing.T) {
		var share models.FileShare
		if err := env.db.First(&share, "file_id = ? AND user_id = ?", file.ID, recipient.ID).Error; err != nil {
			t.Fatalf("failed loading share: %v", err)
		}

		resp := performRequest(t, env.app, http.MethodDelete, "/api/shares/"+share.ID.String(), nil, authHeaders(recipientToken))
		body := decodeJSONMap(t, resp)
		assertStatus(t, resp, http.StatusForbidden)
		assertEnvelopeError(t, body, "insufficient permissions")

		resp = performRequest(t, env.app, http.MethodDelete, "/api/shares/"+share.ID.String(), nil, authHeaders(ownerToken))
		assertStatus(t, resp, http.StatusOK)

		resp = performRequest(t, env.app, http.MethodGet, "/api/files/"+file.ID.String(), nil, authHeaders(recipientToken))
		assertStatus(t, resp, http.StatusForbidden)
		_ = decodeJSONMap(t, resp)
	})

	t.Run("POST share/user works again after a revoke", func(t *testing.T) {
		resp := performJSONRequest(t, env.app, http.MethodPost, "/api/files/"+file.ID.String()+"/share/user", map[string]any{
			"email":      recipient.Email,
			"permission": "view",
		}, authHeaders(ownerToken))
		assertStatus(t, resp, http.StatusOK)
		_ = decodeJSONMap(t, resp)

		resp = performRequest(t, env.app, http.MethodGet, "/api/files/"+file.ID.String(), nil, authHeaders(recipientToken))
		assertStatus(t, resp, http.StatusOK)
	})
}
