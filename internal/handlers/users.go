package handlers

import (
	"strings"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
	"github.com/procur/backend/internal/middleware"
	"github.com/procur/backend/internal/models"
	"github.com/procur/backend/pkg/logger"
	"github.com/procur/backend/pkg/utils"
	"gorm.io/gorm"
)

type UsersHandler struct {
	DB *gorm.DB
}

func NewUsersHandler(db *gorm.DB) *UsersHandler {
	return &UsersHandler{DB: db}
}

func (h *UsersHandler) List(c *fiber.Ctx) error {
	p := utils.ParsePagination(c)

	query := h.DB.Model(&models.User{})
	if search := strings.TrimSpace(c.Query("search")); search != "" {
		pattern := "%" + strings.ToLower(search) + "%"
		query = query.Where("LOWER(email) LIKE ? OR LOWER(display_name) LIKE ?", pattern, pattern)
	}

	var total int64
	if err := query.Count(&total).Error; err != nil {
		return utils.Error(c, fiber.StatusInternalServerError, "failed listing users")
	}

	var users []models.User
	if err := utils.ApplyPagination(query.Order("created_at DESC"), p).Find(&users).Error; err != nil {
		return utils.Error(c, fiber.StatusInternalServerError, "failed listing users")
	}

	return utils.Paginated(c, users, p.Page, p.Limit, total)
}

func (h *UsersHandler) Get(c *fiber.Ctx) error {
	userID, err := parseUUID(c.Params("id"))
	if err != nil {
		return utils.Error(c, fiber.StatusBadRequest, "invalid user id")
	}

	var user models.User
	if err := h.DB.First(&user, "id = ?", userID).Error; err != nil {
		return utils.Error(c, fiber.StatusNotFound, "user not found")
	}

	return utils.Success(c, fiber.StatusOK, user)
}

type adminUpdateUserRequest struct {
	DisplayName *string          `json:"displayName"`
	Role        *models.UserRole `json:"role"`
	IsActive    *bool            `json:"isActive"`
	IsVerified  *bool            `json:"isVerified"`
}

// Update is the site-admin surface. Flipping IsActive to false is the
// administrative disable: the account stops resolving at the auth middleware
// on its next request.
func (h *UsersHandler) Update(c *fiber.Ctx) error {
	currentUser := middleware.GetCurrentUser(c)
	if currentUser == nil {
		return utils.Error(c, fiber.StatusUnauthorized, "unauthorized")
	}

	userID, err := parseUUID(c.Params("id"))
	if err != nil {
		return utils.Error(c, fiber.StatusBadRequest, "invalid user id")
	}

	var user models.User
	if err := h.DB.First(&user, "id = ?", userID).Error; err != nil {
		return utils.Error(c, fiber.StatusNotFound, "user not found")
	}

	var req adminUpdateUserRequest
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
	if req.Role != nil {
		if *req.Role != models.UserRoleAdmin && *req.Role != models.UserRoleUser {
			return utils.Error(c, fiber.StatusBadRequest, "invalid role")
		}
		updates["role"] = *req.Role
	}
	if req.IsActive != nil {
		if user.ID == currentUser.ID && !*req.IsActive {
			return utils.Error(c, fiber.StatusBadRequest, "cannot disable your own account")
		}
		updates["is_active"] = *req.IsActive
	}
	if req.IsVerified != nil {
		updates["is_verified"] = *req.IsVerified
	}

	if len(updates) == 0 {
		return utils.Error(c, fiber.StatusBadRequest, "no valid fields to update")
	}

	if err := h.DB.Model(&user).Updates(updates).Error; err != nil {
		return utils.Error(c, fiber.StatusInternalServerError, "failed updating user")
	}

	if req.IsActive != nil && !*req.IsActive {
		logger.InfoWithUser(currentUser.ID.String(), "user_disabled", map[string]interface{}{
			"target_user_id": user.ID.String(),
		})
	}

	var updated models.User
	if err := h.DB.First(&updated, "id = ?", userID).Error; err != nil {
		return utils.Error(c, fiber.StatusInternalServerError, "failed loading user")
	}
	return utils.Success(c, fiber.StatusOK, updated)
}

func (h *UsersHandler) Delete(c *fiber.Ctx) error {
	currentUser := middleware.GetCurrentUser(c)
	if currentUser == nil {
		return utils.Error(c, fiber.StatusUnauthorized, "unauthorized")
	}

	userID, err := parseUUID(c.Params("id"))
	if err != nil {
		return utils.Error(c, fiber.StatusBadRequest, "invalid user id")
	}
	if userID == currentUser.ID {
		return utils.Error(c, fiber.StatusBadRequest, "cannot delete your own account")
	}

	var user models.User
	if err := h.DB.First(&user, "id = ?", userID).Error; err != nil {
		return utils.Error(c, fiber.StatusNotFound, "user not found")
	}

	owns, err := h.ownsGroups(userID)
	if err != nil {
		return utils.Error(c, fiber.StatusInternalServerError, "failed deleting user")
	}
	if owns {
		return utils.Error(c, fiber.StatusConflict, "cannot delete a user who owns groups")
	}

	if err := h.deleteUserAccount(userID); err != nil {
		return utils.Error(c, fiber.StatusInternalServerError, "failed deleting user")
	}

	logger.InfoWithUser(currentUser.ID.String(), "user_deleted", map[string]interface{}{
		"target_user_id": userID.String(),
	})

	return utils.Success(c, fiber.StatusOK, fiber.Map{"message": "user deleted"})
}

// DeleteMe is the self-service account deletion. The same owner guard
// applies: the account must first hand off or delete its groups.
func (h *UsersHandler) DeleteMe(c *fiber.Ctx) error {
	currentUser := middleware.GetCurrentUser(c)
	if currentUser == nil {
		return utils.Error(c, fiber.StatusUnauthorized, "unauthorized")
	}

	owns, err := h.ownsGroups(currentUser.ID)
	if err != nil {
		return utils.Error(c, fiber.StatusInternalServerError, "failed deleting account")
	}
	if owns {
		return utils.Error(c, fiber.StatusConflict, "cannot delete your account while you own groups")
	}

	if err := h.deleteUserAccount(currentUser.ID); err != nil {
		return utils.Error(c, fiber.StatusInternalServerError, "failed deleting account")
	}

	logger.InfoWithUser(currentUser.ID.String(), "account_deleted", nil)

	return utils.Success(c, fiber.StatusOK, fiber.Map{"message": "account deleted"})
}

// ownsGroups reports whether the user still holds an owner membership.
// Owner memberships are never removed while the group row exists, so this
// guard also keeps groups.created_by_id from dangling after a delete.
func (h *UsersHandler) ownsGroups(userID uuid.UUID) (bool, error) {
	var count int64
	err := h.DB.Model(&models.GroupMembership{}).
		Where("user_id = ? AND role = ?", userID, models.GroupRoleOwner).
		Count(&count).Error
	return count > 0, err
}

// deleteUserAccount removes the user row and everything referencing it:
// memberships (with member_count decrements), join requests, invitations
// the user issued, notifications either addressed to or acted by the
// user, and upload rows. Resolved-by marks on other users' join requests
// are cleared rather than deleted.
func (h *UsersHandler) deleteUserAccount(userID uuid.UUID) error {
	return h.DB.Transaction(func(tx *gorm.DB) error {
		var memberships []models.GroupMembership
		if err := tx.Where("user_id = ?", userID).Find(&memberships).Error; err != nil {
			return err
		}
		for _, m := range memberships {
			if err := tx.Exec(
				"UPDATE groups SET member_count = member_count - 1 WHERE id = ? AND member_count > 0",
				m.GroupID,
			).Error; err != nil {
				return err
			}
		}
		if err := tx.Where("user_id = ?", userID).Delete(&models.GroupMembership{}).Error; err != nil {
			return err
		}
		if err := tx.Where("user_id = ?", userID).Delete(&models.JoinRequest{}).Error; err != nil {
			return err
		}
		if err := tx.Model(&models.JoinRequest{}).
			Where("resolved_by_id = ?", userID).
			Update("resolved_by_id", nil).Error; err != nil {
			return err
		}
		if err := tx.Where("created_by_id = ?", userID).Delete(&models.Invitation{}).Error; err != nil {
			return err
		}
		if err := tx.Where("user_id = ? OR actor_id = ?", userID, userID).Delete(&models.Notification{}).Error; err != nil {
			return err
		}
		if err := tx.Where("owner_id = ?", userID).Delete(&models.Upload{}).Error; err != nil {
			return err
		}
		return tx.Delete(&models.User{}, "id = ?", userID).Error
	})
}

func (h *UsersHandler) Notifications(c *fiber.Ctx) error {
	currentUser := middleware.GetCurrentUser(c)
	if currentUser == nil {
		return utils.Error(c, fiber.StatusUnauthorized, "unauthorized")
	}

	p := utils.ParsePagination(c)

	query := h.DB.Model(&models.Notification{}).Where("user_id = ?", currentUser.ID)
	if c.QueryBool("unread", false) {
		query = query.Where("is_read = ?", false)
	}

	var total int64
	if err := query.Count(&total).Error; err != nil {
		return utils.Error(c, fiber.StatusInternalServerError, "failed listing notifications")
	}

	var notifications []models.Notification
	if err := utils.ApplyPagination(query.Preload("Actor").Order("created_at DESC"), p).
		Find(&notifications).Error; err != nil {
		return utils.Error(c, fiber.StatusInternalServerError, "failed listing notifications")
	}

	return utils.Paginated(c, notifications, p.Page, p.Limit, total)
}

func (h *UsersHandler) MarkNotificationRead(c *fiber.Ctx) error {
	currentUser := middleware.GetCurrentUser(c)
	if currentUser == nil {
		return utils.Error(c, fiber.StatusUnauthorized, "unauthorized")
	}

	notificationID, err := parseUUID(c.Params("id"))
	if err != nil {
		return utils.Error(c, fiber.StatusBadRequest, "invalid notification id")
	}

	result := h.DB.Model(&models.Notification{}).
		Where("id = ? AND user_id = ?", notificationID, currentUser.ID).
		Update("is_read", true)
	if result.Error != nil {
		return utils.Error(c, fiber.StatusInternalServerError, "failed updating notification")
	}
	if result.RowsAffected == 0 {
		return utils.Error(c, fiber.StatusNotFound, "notification not found")
	}

	return utils.Success(c, fiber.StatusOK, fiber.Map{"message": "notification marked as read"})
}

func (h *UsersHandler) MarkAllNotificationsRead(c *fiber.Ctx) error {
	currentUser := middleware.GetCurrentUser(c)
	if currentUser == nil {
		return utils.Error(c, fiber.StatusUnauthorized, "unauthorized")
	}

	if err := h.DB.Model(&models.Notification{}).
		Where("user_id = ? AND is_read = ?", currentUser.ID, false).
		Update("is_read", true).Error; err != nil {
		return utils.Error(c, fiber.StatusInternalServerError, "failed updating notifications")
	}

	return utils.Success(c, fiber.StatusOK, fiber.Map{"message": "all notifications marked as read"})
}
