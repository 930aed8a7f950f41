package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/clouddrive/backend/internal/config"
	"github.com/clouddrive/backend/internal/database"
	"github.com/clouddrive/backend/internal/handlers"
	"github.com/clouddrive/backend/internal/middleware"
	"github.com/clouddrive/backend/internal/services"
	"github.com/clouddrive/backend/internal/storage"
	"github.com/clouddrive/backend/pkg/logger"
	"github.com/clouddrive/backend/pkg/utils"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cache"
	"github.com/gofiber/fiber/v2/middleware/limiter"
	"github.com/gofiber/fiber/v2/middleware/recover"
)

func newObjectStore(cfg *config.Config) (storage.ObjectStore, error) {
	switch cfg.Storage.Backend {
	case "s3":
		return storage.NewS3Client(cfg.S3)
	case "minio":
		return storage.NewMinIOClient(cfg.MinIO)
	default:
		return nil, fmt.Errorf("unknown storage backend %q", cfg.Storage.Backend)
	}
}

// newSearchCache caches search responses briefly. The key includes the
// caller's token so users never see each other's results, and the filter is
// re-evaluated after the handler runs so failed responses are never stored.
func newSearchCache(ttl time.Duration) fiber.Handler {
	return cache.New(cache.Config{
		Expiration: ttl,
		KeyGenerator: func(c *fiber.Ctx) string {
			return c.Get(fiber.HeaderAuthorization) + "|" + c.OriginalURL()
		},
		Next: func(c *fiber.Ctx) bool {
			return c.Response().StatusCode() != fiber.StatusOK
		},
	})
}

func main() {
	logger.Init()

	cfg := config.Load()
	tokenSigner := utils.NewTokenSigner(cfg.JWT.Secret, time.Duration(cfg.JWT.ExpirationHours)*time.Hour)

	db, err := database.Connect(cfg.DB, cfg.Quota)
	if err != nil {
		log.Fatalf("database connection failed: %v", err)
	}

	store, err := newObjectStore(cfg)
	if err != nil {
		log.Fatalf("storage initialization failed: %v", err)
	}
	if err := store.EnsureBucket(context.Background()); err != nil {
		log.Fatalf("failed ensuring storage bucket: %v", err)
	}

	accessService := services.NewAccessService(db)
	quotaService := services.NewQuotaService(db)
	auditService := services.NewAuditService(db)
	reconciler := services.NewReconciler(db, store, cfg.Reconciler)
	reconciler.Start()

	authHandler := handlers.NewAuthHandler(db, tokenSigner, auditService, cfg.Quota.DefaultLimitBytes)
	usersHandler := handlers.NewUsersHandler(db)
	filesHandler := handlers.NewFilesHandler(db, store, accessService, quotaService, auditService)
	sharesHandler := handlers.NewSharesHandler(db, accessService, auditService, cfg.Server.ClientURL)
	bulkHandler := handlers.NewBulkHandler(db, store, quotaService, auditService)

	authMiddleware := middleware.NewAuthMiddleware(db, tokenSigner)

	app := fiber.New(fiber.Config{BodyLimit: 100 * 1024 * 1024})
	app.Use(recover.New(recover.Config{EnableStackTrace: true}))
	app.Use(middleware.CORS(cfg.Server.ClientURL))
	app.Use(middleware.RequestLogger())

	app.Get("/health", func(c *fiber.Ctx) error {
		return c.Status(fiber.StatusOK).JSON(fiber.Map{"status": "ok"})
	})

	api := app.Group("/api")

	// Credential endpoints are rate limited per client address.
	authLimiter := limiter.New(limiter.Config{
		Max:        20,
		Expiration: 1 * time.Minute,
	})

	authRoutes := api.Group("/auth")
	authRoutes.Post("/register", authLimiter, authHandler.Register)
	authRoutes.Post("/login", authLimiter, authHandler.Login)
	authRoutes.Get("/me", authMiddleware.RequireAuth, authHandler.Me)

	userRoutes := api.Group("/users", authMiddleware.RequireAuth, middleware.AdminOnly)
	userRoutes.Get("/", usersHandler.List)
	userRoutes.Get("/:id", usersHandler.Get)
	userRoutes.Put("/:id", usersHandler.Update)
	userRoutes.Delete("/:id", usersHandler.Delete)

	searchCache := newSearchCache(cfg.Server.SearchCacheTTL)

	fileRoutes := api.Group("/files", authMiddleware.RequireAuth)
	fileRoutes.Post("/upload", filesHandler.Upload)
	fileRoutes.Post("/folder", filesHandler.CreateFolder)
	fileRoutes.Get("/", filesHandler.List)
	fileRoutes.Get("/search", searchCache, filesHandler.Search)
	fileRoutes.Post("/bulk-delete", bulkHandler.BulkDelete)
	fileRoutes.Post("/bulk-download", bulkHandler.BulkDownload)
	fileRoutes.Get("/:id/download", filesHandler.Download)
	fileRoutes.Get("/:id/download-url", filesHandler.DownloadURL)
	fileRoutes.Get("/:id/shares", sharesHandler.ListFileShares)
	fileRoutes.Post("/:id/share/link", sharesHandler.CreateShareLink)
	fileRoutes.Post("/:id/share/user", sharesHandler.ShareWithUser)
	fileRoutes.Get("/:id", filesHandler.Get)
	fileRoutes.Put("/:id", filesHandler.Rename)
	fileRoutes.Delete("/:id", filesHandler.Delete)

	shareRoutes := api.Group("/shares", authMiddleware.RequireAuth)
	shareRoutes.Delete("/:id", sharesHandler.RevokeShare)

	api.Get("/shared", authMiddleware.RequireAuth, sharesHandler.ListSharedWithMe)
	api.Get("/share/:token", authMiddleware.OptionalAuth, sharesHandler.ResolveShareLink)

	listenAddr := fmt.Sprintf(":%s", cfg.Server.Port)

	logger.Info("server_starting", map[string]interface{}{
		"port":            cfg.Server.Port,
		"address":         listenAddr,
		"storage_backend": cfg.Storage.Backend,
	})

	errCh := make(chan error, 1)
	go func() {
		errCh <- app.Listen(listenAddr)
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-quit:
		log.Printf("shutting down server due to signal: %s", sig)
		shutdownDone := make(chan struct{})
		go func() {
			_ = app.Shutdown()
			close(shutdownDone)
		}()
		select {
		case <-shutdownDone:
		case <-time.After(10 * time.Second):
			log.Print("forced shutdown timeout reached")
		}
		reconciler.Stop()
		auditService.Close()
	case err := <-errCh:
		if err != nil {
			log.Fatalf("server error: %v", err)
		}
	}
}
