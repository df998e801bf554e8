package handlers

import (
	"bytes"
	"database/sql/driver"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	gosqlite "github.com/glebarez/go-sqlite"
	"github.com/glebarez/sqlite"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/google/uuid"
	"github.com/procur/backend/internal/config"
	"github.com/procur/backend/internal/database"
	"github.com/procur/backend/internal/middleware"
	"github.com/procur/backend/internal/models"
	"github.com/procur/backend/internal/policy"
	"github.com/procur/backend/internal/services"
	"github.com/procur/backend/pkg/logger"
	"github.com/procur/backend/pkg/utils"
	"gorm.io/gorm"
)

type testEnv struct {
	app *fiber.App
	db  *gorm.DB
}

var testSetupOnce sync.Once

func setupTestEnv(t *testing.T) *testEnv {
	t.Helper()

	testSetupOnce.Do(func() {
		gosqlite.MustRegisterScalarFunction("NOW", 0, func(ctx *gosqlite.FunctionContext, args []driver.Value) (driver.Value, error) {
			return time.Now().UTC(), nil
		})
		logger.Init()
		utils.ConfigureJWT("test-secret", 24)
	})

	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{})
	if err != nil {
		t.Fatalf("failed opening in-memory sqlite database: %v", err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		t.Fatalf("failed getting sql.DB from gorm: %v", err)
	}
	sqlDB.SetMaxOpenConns(1)

	t.Cleanup(func() {
		_ = sqlDB.Close()
	})

	if err := database.Migrate(db); err != nil {
		t.Fatalf("failed migrating models: %v", err)
	}

	mailer := services.NewSMTPMailer(config.SMTPConfig{Enabled: false})
	notify := services.NewNotifyService(db, mailer, config.NotifyConfig{
		QueueBufferSize: 50,
		MaxAttempts:     1,
		RetryDelay:      time.Millisecond,
	})
	pol := policy.New(db)

	cfg := &config.Config{
		Server: config.ServerConfig{
			FrontendURL: "http://localhost:3000",
		},
	}

	authHandler := NewAuthHandler(db, notify)
	ssoHandler := NewSSOHandler(db, cfg)
	usersHandler := NewUsersHandler(db)
	groupsHandler := NewGroupsHandler(db, pol, notify)
	joinRequestsHandler := NewJoinRequestsHandler(db, pol, notify)
	invitationsHandler := NewInvitationsHandler(db, pol, notify, cfg.Server.FrontendURL)
	authMiddleware := middleware.NewAuthMiddleware(db)

	app := fiber.New(fiber.Config{BodyLimit: 10 * 1024 * 1024})
	app.Use(recover.New(recover.Config{EnableStackTrace: true}))
	app.Use(middleware.CORS())
	app.Use(middleware.RequestLogger())

	app.Get("/health", func(c *fiber.Ctx) error {
		return c.Status(fiber.StatusOK).JSON(fiber.Map{"status": "ok"})
	})

	api := app.Group("/api")

	authRoutes := api.Group("/auth")
	authRoutes.Post("/register", authHandler.Register)
	authRoutes.Post("/login", authHandler.Login)
	authRoutes.Get("/sso/google", ssoHandler.GoogleLogin)
	authRoutes.Get("/sso/google/callback", ssoHandler.GoogleCallback)
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

	return &testEnv{app: app, db: db}
}

func createTestUser(t *testing.T, db *gorm.DB, email, password string, role models.UserRole) (*models.User, string) {
	t.Helper()

	hash, err := utils.HashPassword(password)
	if err != nil {
		t.Fatalf("failed hashing password: %v", err)
	}

	user := &models.User{
		Email:        email,
		PasswordHash: hash,
		DisplayName:  "Test User",
		Role:         role,
		IsActive:     true,
	}
	if err := db.Create(user).Error; err != nil {
		t.Fatalf("failed creating test user: %v", err)
	}

	token, err := utils.GenerateToken(user)
	if err != nil {
		t.Fatalf("failed generating auth token: %v", err)
	}

	return user, token
}

// createTestGroup inserts a group plus owner membership the way the create
// handler would.
func createTestGroup(t *testing.T, db *gorm.DB, owner *models.User, privacy models.GroupPrivacy, maxMembers *int) *models.Group {
	t.Helper()

	group := &models.Group{
		Name:        "Test Buying Group",
		Description: "Pooled purchasing for tests",
		Industry:    "Manufacturing",
		Privacy:     privacy,
		MaxMembers:  maxMembers,
		MemberCount: 1,
		IsActive:    true,
		CreatedByID: owner.ID,
	}
	if err := db.Create(group).Error; err != nil {
		t.Fatalf("failed creating test group: %v", err)
	}

	membership := &models.GroupMembership{
		UserID:  owner.ID,
		GroupID: group.ID,
		Role:    models.GroupRoleOwner,
	}
	if err := db.Create(membership).Error; err != nil {
		t.Fatalf("failed creating owner membership: %v", err)
	}

	return group
}

func addTestMember(t *testing.T, db *gorm.DB, group *models.Group, user *models.User, role models.GroupMembershipRole) {
	t.Helper()

	membership := &models.GroupMembership{
		UserID:  user.ID,
		GroupID: group.ID,
		Role:    role,
	}
	if err := db.Create(membership).Error; err != nil {
		t.Fatalf("failed adding test member: %v", err)
	}
	if err := db.Exec("UPDATE groups SET member_count = member_count + 1 WHERE id = ?", group.ID).Error; err != nil {
		t.Fatalf("failed bumping member count: %v", err)
	}
}

func createTestInvitation(t *testing.T, db *gorm.DB, group *models.Group, creator *models.User, maxUses *int, expiresAt time.Time) *models.Invitation {
	t.Helper()

	token, err := utils.GenerateSecureToken(32)
	if err != nil {
		t.Fatalf("failed generating invitation token: %v", err)
	}

	invitation := &models.Invitation{
		GroupID:     group.ID,
		CreatedByID: creator.ID,
		Mode:        models.InvitationModeLink,
		RoleToGrant: models.GroupRoleMember,
		Token:       token,
		MaxUses:     maxUses,
		ExpiresAt:   expiresAt,
		IsActive:    true,
	}
	if err := db.Create(invitation).Error; err != nil {
		t.Fatalf("failed creating test invitation: %v", err)
	}
	return invitation
}

// waitForNotifications polls until the recipient has at least want rows; the
// dispatch queue is asynchronous.
func waitForNotifications(t *testing.T, db *gorm.DB, userID uuid.UUID, want int64) {
	t.Helper()

	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		var count int64
		if err := db.Model(&models.Notification{}).Where("user_id = ?", userID).Count(&count).Error; err != nil {
			t.Fatalf("failed counting notifications: %v", err)
		}
		if count >= want {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for %d notifications for user %s", want, userID)
}

func authHeaders(token string) map[string]string {
	return map[string]string{"Authorization": "Bearer " + token}
}

func performRequest(t *testing.T, app *fiber.App, method, path string, body io.Reader, headers map[string]string) *http.Response {
	t.Helper()

	req := httptest.NewRequest(method, path, body)
	for key, value := range headers {
		req.Header.Set(key, value)
	}

	resp, err := app.Test(req, int((10 * time.Second).Milliseconds()))
	if err != nil {
		t.Fatalf("request %s %s failed: %v", method, path, err)
	}

	return resp
}

func performJSONRequest(t *testing.T, app *fiber.App, method, path string, payload any, headers map[string]string) *http.Response {
	t.Helper()

	var body io.Reader
	if payload != nil {
		encoded, err := json.Marshal(payload)
		if err != nil {
			t.Fatalf("failed to marshal payload: %v", err)
		}
		body = bytes.NewReader(encoded)
	}

	requestHeaders := map[string]string{}
	for key, value := range headers {
		requestHeaders[key] = value
	}
	if payload != nil {
		requestHeaders["Content-Type"] = "application/json"
	}

	return performRequest(t, app, method, path, body, requestHeaders)
}

func decodeJSONMap(t *testing.T, resp *http.Response) map[string]any {
	t.Helper()
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		t.Fatalf("failed reading response body: %v", err)
	}

	var payload map[string]any
	if err := json.Unmarshal(raw, &payload); err != nil {
		t.Fatalf("failed decoding JSON response: %v body=%q", err, string(raw))
	}

	return payload
}

func assertStatus(t *testing.T, resp *http.Response, expected int) {
	t.Helper()
	if resp.StatusCode != expected {
		t.Fatalf("expected status %d, got %d", expected, resp.StatusCode)
	}
}

func assertEnvelopeError(t *testing.T, body map[string]any, expected string) {
	t.Helper()
	if success, _ := body["success"].(bool); success {
		t.Fatalf("expected success=false, got %+v", body)
	}
	if got, _ := body["error"].(string); got != expected {
		t.Fatalf("expected error %q, got %q", expected, got)
	}
}
