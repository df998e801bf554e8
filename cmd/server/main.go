package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/procur/backend/internal/config"
	"github.com/procur/backend/internal/database"
	"github.com/procur/backend/internal/handlers"
	"github.com/procur/backend/internal/middleware"
	"github.com/procur/backend/internal/policy"
	"github.com/procur/backend/internal/services"
	"github.com/procur/backend/internal/storage"
	"github.com/procur/backend/pkg/logger"
	"github.com/procur/backend/pkg/utils"
)

func main() {
	logger.Init()

	cfg := config.Load()
	utils.ConfigureJWT(cfg.JWT.Secret, cfg.JWT.ExpirationHours)

	db, err := database.Connect(cfg.DB)
	if err != nil {
		log.Fatalf("database connection failed: %v", err)
	}

	store, err := storage.NewObjectStore(cfg.MinIO)
	if err != nil {
		log.Fatalf("minio initialization failed: %v", err)
	}
	if err := store.EnsureBucket(context.Background()); err != nil {
		log.Fatalf("failed ensuring minio bucket: %v", err)
	}

	mailer := services.NewSMTPMailer(cfg.SMTP)
	notify := services.NewNotifyService(db, mailer, cfg.Notify)
	pol := policy.New(db)

	authHandler := handlers.NewAuthHandler(db, notify)
	ssoHandler := handlers.NewSSOHandler(db, cfg)
	usersHandler := handlers.NewUsersHandler(db)
	groupsHandler := handlers.NewGroupsHandler(db, pol, notify)
	joinRequestsHandler := handlers.NewJoinRequestsHandler(db, pol, notify)
	invitationsHandler := handlers.NewInvitationsHandler(db, pol, notify, cfg.Server.FrontendURL)
	uploadsHandler := handlers.NewUploadsHandler(db, store, pol)

	authMiddleware := middleware.NewAuthMiddleware(db)
	authLimiter := middleware.NewRateLimiter(cfg.RateLimit)

	app := fiber.New(fiber.Config{BodyLimit: 10 * 1024 * 1024})
	app.Use(recover.New(recover.Config{EnableStackTrace: true}))
	app.Use(middleware.CORS())
	app.Use(middleware.RequestLogger())

	app.Get("/health", func(c *fiber.Ctx) error {
		return c.Status(fiber.StatusOK).JSON(fiber.Map{"status": "ok"})
	})

	api := app.Group("/api")

	authRoutes := api.Group("/auth")
	authRoutes.Post("/register", authLimiter.Handle, authHandler.Register)
	authRoutes.Post("/login", authLimiter.Handle, authHandler.Login)
	authRoutes.Get("/sso/google", authLimiter.Handle, ssoHandler.GoogleLogin)
	authRoutes.Get("/sso/google/callback", authLimiter.Handle, ssoHandler.GoogleCallback)
	authRoutes.Get("/me", authMiddleware.RequireAuth, authHandler.Me)
	authRoutes.Put("/me", authMiddleware.RequireAuth, authHandler.UpdateMe)
	authRoutes.Put("/password", authMiddleware.RequireAuth, authHandler.ChangePassword)
	authRoutes.Get("/dashboard", authMiddleware.RequireAuth, authHandler.Dashboard)
	authRoutes.Delete("/me", authMiddleware.RequireAuth, usersHandler.DeleteMe)

	api.Get("/users/notifications", authMiddleware.RequireAuth, usersHandler.Notifications)
	api.Put("/users/notifications/read-all", authMiddleware.RequireAuth, usersHandler.MarkAllNotificationsRead)
	api.Put("/users/notifications/:id/read", authMiddleware.RequireAuth, usersHandler.MarkNotificationRead)

	userRoutes := api.Group("/users", authMiddleware.RequireAuth, middleware.AdminOnly)
	userRoutes.Get("/", usersHandler.List)
	userRoutes.Get("/:id", usersHandler.Get)
	userRoutes.Put("/:id", usersHandler.Update)
	userRoutes.Delete("/:id", usersHandler.Delete)

	// Browse and detail stay reachable without a session; visibility is
	// decided by the policy layer.
	api.Get("/groups/", authMiddleware.OptionalAuth, groupsHandler.List)
	api.Get("/groups/:id", authMiddleware.OptionalAuth, groupsHandler.Get)

	groupRoutes := api.Group("/groups", authMiddleware.RequireAuth)
	groupRoutes.Post("/", groupsHandler.Create)
	groupRoutes.Put("/:id", groupsHandler.Update)
	groupRoutes.Delete("/:id", groupsHandler.Delete)
	groupRoutes.Get("/:id/members", groupsHandler.Members)
	groupRoutes.Delete("/:id/members/:userId", groupsHandler.RemoveMember)
	groupRoutes.Put("/:id/members/:userId", groupsHandler.UpdateMemberRole)
	groupRoutes.Post("/:id/leave", groupsHandler.Leave)
	groupRoutes.Post("/:id/join", groupsHandler.Join)
	groupRoutes.Get("/:id/join-requests", joinRequestsHandler.List)
	groupRoutes.Post("/:id/join-requests/:requestId/resolve", joinRequestsHandler.Resolve)

	api.Get("/invitations/validate/:token", invitationsHandler.Validate)

	invitationRoutes := api.Group("/invitations", authMiddleware.RequireAuth)
	invitationRoutes.Post("/", invitationsHandler.Create)
	invitationRoutes.Get("/mine", invitationsHandler.Mine)
	invitationRoutes.Get("/group/:groupId", invitationsHandler.ListByGroup)
	invitationRoutes.Post("/:token/redeem", invitationsHandler.Redeem)
	invitationRoutes.Post("/:id/deactivate", invitationsHandler.Deactivate)
	invitationRoutes.Post("/:id/regenerate", invitationsHandler.Regenerate)

	api.Get("/uploads/:id", uploadsHandler.Get)
	uploadRoutes := api.Group("/uploads", authMiddleware.RequireAuth)
	uploadRoutes.Post("/avatar", uploadsHandler.UploadAvatar)
	uploadRoutes.Delete("/avatar", uploadsHandler.DeleteAvatar)
	uploadRoutes.Post("/group-logo/:groupId", uploadsHandler.UploadGroupLogo)

	listenAddr := fmt.Sprintf(":%s", cfg.Server.Port)

	logger.Info("server_starting", map[string]interface{}{
		"port":    cfg.Server.Port,
		"address": listenAddr,
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
	case err := <-errCh:
		if err != nil {
			log.Fatalf("server error: %v", err)
		}
	}
}
