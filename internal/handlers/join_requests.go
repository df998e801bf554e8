package handlers

import (
	"errors"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/procur/backend/internal/middleware"
	"github.com/procur/backend/internal/models"
	"github.com/procur/backend/internal/policy"
	"github.com/procur/backend/internal/services"
	"github.com/procur/backend/pkg/logger"
	"github.com/procur/backend/pkg/utils"
	"gorm.io/gorm"
)

var errAlreadyResolved = errors.New("join request already resolved")

type JoinRequestsHandler struct {
	DB     *gorm.DB
	Policy *policy.Policy
	Notify *services.NotifyService
}

func NewJoinRequestsHandler(db *gorm.DB, pol *policy.Policy, notify *services.NotifyService) *JoinRequestsHandler {
	return &JoinRequestsHandler{DB: db, Policy: pol, Notify: notify}
}

func (h *JoinRequestsHandler) List(c *fiber.Ctx) error {
	currentUser := middleware.GetCurrentUser(c)
	if currentUser == nil {
		return utils.Error(c, fiber.StatusUnauthorized, "unauthorized")
	}

	groupID, err := parseUUID(c.Params("id"))
	if err != nil {
		return utils.Error(c, fiber.StatusBadRequest, "invalid group id")
	}

	if _, err := h.Policy.RequireAdmin(groupID, currentUser.ID); err != nil {
		return policyError(c, err)
	}

	query := h.DB.Preload("User").Preload("ResolvedBy").Where("group_id = ?", groupID)

	status := strings.TrimSpace(c.Query("status"))
	switch models.JoinRequestStatus(status) {
	case models.JoinRequestStatusPending, models.JoinRequestStatusApproved, models.JoinRequestStatusRejected:
		query = query.Where("status = ?", status)
	case "":
	default:
		return utils.Error(c, fiber.StatusBadRequest, "invalid status filter")
	}

	var requests []models.JoinRequest
	if err := query.Order("created_at ASC").Find(&requests).Error; err != nil {
		return utils.Error(c, fiber.StatusInternalServerError, "failed listing join requests")
	}

	return utils.Success(c, fiber.StatusOK, requests)
}

type resolveJoinRequestRequest struct {
	Decision     string  `json:"decision"`
	AdminMessage *string `json:"adminMessage"`
}

// Resolve applies an admin decision. The pending-status guard makes the
// transition one-shot: a second resolver loses with 409 instead of flipping
// an already terminal row.
func (h *JoinRequestsHandler) Resolve(c *fiber.Ctx) error {
	currentUser := middleware.GetCurrentUser(c)
	if currentUser == nil {
		return utils.Error(c, fiber.StatusUnauthorized, "unauthorized")
	}

	groupID, err := parseUUID(c.Params("id"))
	if err != nil {
		return utils.Error(c, fiber.StatusBadRequest, "invalid group id")
	}
	requestID, err := parseUUID(c.Params("requestId"))
	if err != nil {
		return utils.Error(c, fiber.StatusBadRequest, "invalid request id")
	}

	if _, err := h.Policy.RequireAdmin(groupID, currentUser.ID); err != nil {
		return policyError(c, err)
	}

	var req resolveJoinRequestRequest
	if err := c.BodyParser(&req); err != nil {
		return utils.Error(c, fiber.StatusBadRequest, "invalid request body")
	}

	decision := strings.ToLower(strings.TrimSpace(req.Decision))
	if decision != "approved" && decision != "rejected" {
		return utils.Error(c, fiber.StatusBadRequest, "decision must be approved or rejected")
	}

	var request models.JoinRequest
	if err := h.DB.First(&request, "id = ? AND group_id = ?", requestID, groupID).Error; err != nil {
		return utils.Error(c, fiber.StatusNotFound, "join request not found")
	}
	if request.IsResolved() {
		return utils.Error(c, fiber.StatusConflict, "join request already resolved")
	}

	now := time.Now()
	updates := map[string]interface{}{
		"status":         models.JoinRequestStatus(decision),
		"resolved_by_id": currentUser.ID,
		"resolved_at":    now,
	}
	if req.AdminMessage != nil {
		trimmed := strings.TrimSpace(*req.AdminMessage)
		if len(trimmed) > 500 {
			return utils.Error(c, fiber.StatusBadRequest, "adminMessage must be at most 500 characters")
		}
		if trimmed != "" {
			updates["admin_message"] = trimmed
		}
	}

	err = h.DB.Transaction(func(tx *gorm.DB) error {
		result := tx.Model(&models.JoinRequest{}).
			Where("id = ? AND status = ?", requestID, models.JoinRequestStatusPending).
			Updates(updates)
		if result.Error != nil {
			return result.Error
		}
		if result.RowsAffected == 0 {
			return errAlreadyResolved
		}

		if decision != "approved" {
			return nil
		}

		capacity := tx.Exec(
			`UPDATE groups SET member_count = member_count + 1
			 WHERE id = ? AND is_active = ? AND (max_members IS NULL OR member_count < max_members)`,
			groupID, true,
		)
		if capacity.Error != nil {
			return capacity.Error
		}
		if capacity.RowsAffected == 0 {
			return errGroupFull
		}

		membership := models.GroupMembership{
			UserID:  request.UserID,
			GroupID: groupID,
			Role:    models.GroupRoleMember,
		}
		if err := tx.Create(&membership).Error; err != nil {
			return errAlreadyMember
		}
		return nil
	})
	if err != nil {
		switch {
		case errors.Is(err, errAlreadyResolved):
			return utils.Error(c, fiber.StatusConflict, "join request already resolved")
		case errors.Is(err, errGroupFull):
			return utils.Error(c, fiber.StatusConflict, "group is full")
		case errors.Is(err, errAlreadyMember):
			return utils.Error(c, fiber.StatusConflict, "user is already a member of this group")
		default:
			return utils.Error(c, fiber.StatusInternalServerError, "failed resolving join request")
		}
	}

	var group models.Group
	var requester models.User
	if h.DB.First(&group, "id = ?", groupID).Error == nil &&
		h.DB.First(&requester, "id = ?", request.UserID).Error == nil {
		h.Notify.JoinRequestResolved(&group, &requester, currentUser.ID, decision == "approved")
	}

	logger.InfoWithUser(currentUser.ID.String(), "join_request_resolved", map[string]interface{}{
		"group_id":   groupID.String(),
		"request_id": requestID.String(),
		"decision":   decision,
	})

	var resolved models.JoinRequest
	if err := h.DB.Preload("User").First(&resolved, "id = ?", requestID).Error; err != nil {
		return utils.Error(c, fiber.StatusInternalServerError, "failed loading resolved request")
	}
	return utils.Success(c, fiber.StatusOK, resolved)
}
