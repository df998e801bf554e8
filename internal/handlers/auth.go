package handlers

import (
	"strings"

	"github.com/gofiber/fiber/v2"
	"github.com/procur/backend/internal/middleware"
	"github.com/procur/backend/internal/models"
	"github.com/procur/backend/internal/services"
	"github.com/procur/backend/pkg/logger"
	"github.com/procur/backend/pkg/utils"
	"gorm.io/gorm"
)

type AuthHandler struct {
	DB     *gorm.DB
	Notify *services.NotifyService
}

func NewAuthHandler(db *gorm.DB, notify *services.NotifyService) *AuthHandler {
	return &AuthHandler{DB: db, Notify: notify}
}

type registerRequest struct {
	Email       string  `json:"email"`
	Password    string  `json:"password"`
	DisplayName string  `json:"displayName"`
	CompanyName *string `json:"companyName"`
	JobTitle    *string `json:"jobTitle"`
	Industry    *string `json:"industry"`
	Location    *string `json:"location"`
	Phone       *string `json:"phone"`
}

func (h *AuthHandler) Register(c *fiber.Ctx) error {
	var req registerRequest
	if err := c.BodyParser(&req); err != nil {
		return utils.Error(c, fiber.StatusBadRequest, "invalid request body")
	}

	req.Email = strings.ToLower(strings.TrimSpace(req.Email))
	req.DisplayName = strings.TrimSpace(req.DisplayName)

	if !isValidEmail(req.Email) {
		return utils.Error(c, fiber.StatusBadRequest, "a valid email is required")
	}
	if len(req.Password) < 8 {
		return utils.Error(c, fiber.StatusBadRequest, "password must be at least 8 characters")
	}
	if req.DisplayName == "" {
		return utils.Error(c, fiber.StatusBadRequest, "displayName is required")
	}

	hash, err := utils.HashPassword(req.Password)
	if err != nil {
		return utils.Error(c, fiber.StatusInternalServerError, "failed hashing password")
	}

	user := models.User{
		Email:        req.Email,
		PasswordHash: hash,
		DisplayName:  req.DisplayName,
		CompanyName:  req.CompanyName,
		JobTitle:     req.JobTitle,
		Industry:     req.Industry,
		Location:     req.Location,
		Phone:        req.Phone,
		Role:         models.UserRoleUser,
		IsActive:     true,
	}

	if err := h.DB.Create(&user).Error; err != nil {
		return utils.Error(c, fiber.StatusConflict, "email is already registered")
	}

	token, err := utils.GenerateToken(&user)
	if err != nil {
		return utils.Error(c, fiber.StatusInternalServerError, "failed issuing token")
	}

	h.Notify.Welcome(&user)

	logger.InfoWithUser(user.ID.String(), "user_registered", map[string]interface{}{
		"email": user.Email,
	})

	return utils.Success(c, fiber.StatusCreated, fiber.Map{
		"token": token,
		"user":  user,
	})
}

type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

func (h *AuthHandler) Login(c *fiber.Ctx) error {
	var req loginRequest
	if err := c.BodyParser(&req); err != nil {
		return utils.Error(c, fiber.StatusBadRequest, "invalid request body")
	}

	req.Email = strings.ToLower(strings.TrimSpace(req.Email))

	var user models.User
	if err := h.DB.First(&user, "email = ?", req.Email).Error; err != nil {
		logger.Warn("login_unknown_email", map[string]interface{}{
			"ip": c.IP(),
		})
		return utils.Error(c, fiber.StatusUnauthorized, "invalid email or password")
	}

	if user.PasswordHash == "" || !utils.CheckPassword(user.PasswordHash, req.Password) {
		logger.WarnWithUser(user.ID.String(), "login_bad_password", map[string]interface{}{
			"ip": c.IP(),
		})
		return utils.Error(c, fiber.StatusUnauthorized, "invalid email or password")
	}

	if !user.IsActive {
		logger.WarnWithUser(user.ID.String(), "login_disabled_account", map[string]interface{}{
			"ip": c.IP(),
		})
		return utils.Error(c, fiber.StatusForbidden, "account disabled")
	}

	token, err := utils.GenerateToken(&user)
	if err != nil {
		return utils.Error(c, fiber.StatusInternalServerError, "failed issuing token")
	}

	logger.InfoWithUser(user.ID.String(), "user_logged_in", map[string]interface{}{
		"ip": c.IP(),
	})

	return utils.Success(c, fiber.StatusOK, fiber.Map{
		"token": token,
		"user":  user,
	})
}

func (h *AuthHandler) Me(c *fiber.Ctx) error {
	currentUser := middleware.GetCurrentUser(c)
	if currentUser == nil {
		return utils.Error(c, fiber.StatusUnauthorized, "unauthorized")
	}
	return utils.Success(c, fiber.StatusOK, currentUser)
}

type updateProfileRequest struct {
	DisplayName *string `json:"displayName"`
	CompanyName *string `json:"companyName"`
	JobTitle    *string `json:"jobTitle"`
	Industry    *string `json:"industry"`
	Location    *string `json:"location"`
	Phone       *string `json:"phone"`
	Bio         *string `json:"bio"`
}

func (h *AuthHandler) UpdateMe(c *fiber.Ctx) error {
	currentUser := middleware.GetCurrentUser(c)
	if currentUser == nil {
		return utils.Error(c, fiber.StatusUnauthorized, "unauthorized")
	}

	var req updateProfileRequest
	if err := c.BodyParser(&req); err != nil {
		return utils.Error(c, fiber.StatusBadRequest, "invalid request body")
	}

	updates := map[string]interface{}{}
	if req.DisplayName != nil {
		name := strings.TrimSpace(*req.DisplayName)
		if name == "" {
			return utils.Error(c, fiber.StatusBadRequest, "displayName cannot be empty")
		}
		updates["display_name"] = name
	}
	if req.CompanyName != nil {
		updates["company_name"] = nullableString(*req.CompanyName)
	}
	if req.JobTitle != nil {
		updates["job_title"] = nullableString(*req.JobTitle)
	}
	if req.Industry != nil {
		updates["industry"] = nullableString(*req.Industry)
	}
	if req.Location != nil {
		updates["location"] = nullableString(*req.Location)
	}
	if req.Phone != nil {
		updates["phone"] = nullableString(*req.Phone)
	}
	if req.Bio != nil {
		updates["bio"] = nullableString(*req.Bio)
	}

	if len(updates) == 0 {
		return utils.Error(c, fiber.StatusBadRequest, "no valid fields to update")
	}

	if err := h.DB.Model(&models.User{}).Where("id = ?", currentUser.ID).Updates(updates).Error; err != nil {
		return utils.Error(c, fiber.StatusInternalServerError, "failed updating profile")
	}

	var updated models.User
	if err := h.DB.First(&updated, "id = ?", currentUser.ID).Error; err != nil {
		return utils.Error(c, fiber.StatusInternalServerError, "failed loading profile")
	}

	return utils.Success(c, fiber.StatusOK, updated)
}

type changePasswordRequest struct {
	CurrentPassword string `json:"currentPassword"`
	NewPassword     string `json:"newPassword"`
}

func (h *AuthHandler) ChangePassword(c *fiber.Ctx) error {
	currentUser := middleware.GetCurrentUser(c)
	if currentUser == nil {
		return utils.Error(c, fiber.StatusUnauthorized, "unauthorized")
	}

	var req changePasswordRequest
	if err := c.BodyParser(&req); err != nil {
		return utils.Error(c, fiber.StatusBadRequest, "invalid request body")
	}

	if len(req.NewPassword) < 8 {
		return utils.Error(c, fiber.StatusBadRequest, "password must be at least 8 characters")
	}
	if currentUser.PasswordHash != "" && !utils.CheckPassword(currentUser.PasswordHash, req.CurrentPassword) {
		return utils.Error(c, fiber.StatusForbidden, "current password is incorrect")
	}

	hash, err := utils.HashPassword(req.NewPassword)
	if err != nil {
		return utils.Error(c, fiber.StatusInternalServerError, "failed hashing password")
	}

	if err := h.DB.Model(&models.User{}).Where("id = ?", currentUser.ID).Update("password_hash", hash).Error; err != nil {
		return utils.Error(c, fiber.StatusInternalServerError, "failed updating password")
	}

	logger.InfoWithUser(currentUser.ID.String(), "password_changed", nil)

	return utils.Success(c, fiber.StatusOK, fiber.Map{"message": "password updated"})
}

// Dashboard aggregates the signed-in user's standing in one round trip: their
// memberships, pending join requests, and unread notification count.
func (h *AuthHandler) Dashboard(c *fiber.Ctx) error {
	currentUser := middleware.GetCurrentUser(c)
	if currentUser == nil {
		return utils.Error(c, fiber.StatusUnauthorized, "unauthorized")
	}

	var memberships []models.GroupMembership
	if err := h.DB.
		Preload("Group").
		Where("user_id = ?", currentUser.ID).
		Order("created_at DESC").
		Find(&memberships).Error; err != nil {
		return utils.Error(c, fiber.StatusInternalServerError, "failed loading memberships")
	}

	var pendingRequests []models.JoinRequest
	if err := h.DB.
		Preload("Group").
		Where("user_id = ? AND status = ?", currentUser.ID, models.JoinRequestStatusPending).
		Order("created_at DESC").
		Find(&pendingRequests).Error; err != nil {
		return utils.Error(c, fiber.StatusInternalServerError, "failed loading join requests")
	}

	var unreadCount int64
	if err := h.DB.Model(&models.Notification{}).
		Where("user_id = ? AND is_read = ?", currentUser.ID, false).
		Count(&unreadCount).Error; err != nil {
		return utils.Error(c, fiber.StatusInternalServerError, "failed counting notifications")
	}

	return utils.Success(c, fiber.StatusOK, fiber.Map{
		"user":                currentUser,
		"memberships":         memberships,
		"pendingJoinRequests": pendingRequests,
		"unreadNotifications": unreadCount,
	})
}

func nullableString(value string) interface{} {
	trimmed := strings.TrimSpace(value)
	if trimmed == "" {
		return nil
	}
	return trimmed
}
