package handlers

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
	"github.com/procur/backend/internal/middleware"
	"github.com/procur/backend/internal/models"
	"github.com/procur/backend/internal/policy"
	"github.com/procur/backend/internal/services"
	"github.com/procur/backend/pkg/logger"
	"github.com/procur/backend/pkg/utils"
	"gorm.io/gorm"
)

const (
	invitationTokenBytes   = 32
	defaultInvitationDays  = 7
	maxInvitationDays      = 90
	maxInvitationUsesLimit = 1000
)

var errInvitationSpent = errors.New("invitation not redeemable")

type InvitationsHandler struct {
	DB          *gorm.DB
	Policy      *policy.Policy
	Notify      *services.NotifyService
	FrontendURL string
}

func NewInvitationsHandler(db *gorm.DB, pol *policy.Policy, notify *services.NotifyService, frontendURL string) *InvitationsHandler {
	return &InvitationsHandler{DB: db, Policy: pol, Notify: notify, FrontendURL: frontendURL}
}

type createInvitationRequest struct {
	GroupID       uuid.UUID                  `json:"groupID"`
	Mode          models.InvitationMode      `json:"mode"`
	Email         *string                    `json:"email"`
	RoleToGrant   models.GroupMembershipRole `json:"roleToGrant"`
	MaxUses       *int                       `json:"maxUses"`
	ExpiresInDays int                        `json:"expiresInDays"`
}

func (h *InvitationsHandler) Create(c *fiber.Ctx) error {
	currentUser := middleware.GetCurrentUser(c)
	if currentUser == nil {
		return utils.Error(c, fiber.StatusUnauthorized, "unauthorized")
	}

	var req createInvitationRequest
	if err := c.BodyParser(&req); err != nil {
		return utils.Error(c, fiber.StatusBadRequest, "invalid request body")
	}

	if req.GroupID == uuid.Nil {
		return utils.Error(c, fiber.StatusBadRequest, "groupID is required")
	}

	actorMembership, err := h.Policy.RequireAdmin(req.GroupID, currentUser.ID)
	if err != nil {
		return policyError(c, err)
	}

	var group models.Group
	if err := h.DB.First(&group, "id = ? AND is_active = ?", req.GroupID, true).Error; err != nil {
		return utils.Error(c, fiber.StatusNotFound, "group not found")
	}

	if req.Mode == "" {
		req.Mode = models.InvitationModeLink
	}
	if req.Mode != models.InvitationModeLink && req.Mode != models.InvitationModeEmail {
		return utils.Error(c, fiber.StatusBadRequest, "mode must be link or email")
	}

	if req.RoleToGrant == "" {
		req.RoleToGrant = models.GroupRoleMember
	}
	if req.RoleToGrant != models.GroupRoleMember && req.RoleToGrant != models.GroupRoleAdmin {
		return utils.Error(c, fiber.StatusBadRequest, "roleToGrant must be member or admin")
	}
	if actorMembership.Role == models.GroupRoleAdmin && req.RoleToGrant != models.GroupRoleMember {
		return utils.Error(c, fiber.StatusForbidden, "admins can only invite with member role")
	}

	if req.ExpiresInDays <= 0 {
		req.ExpiresInDays = defaultInvitationDays
	}
	if req.ExpiresInDays > maxInvitationDays {
		return utils.Error(c, fiber.StatusBadRequest, fmt.Sprintf("expiresInDays must be at most %d", maxInvitationDays))
	}

	invitation := models.Invitation{
		GroupID:     group.ID,
		CreatedByID: currentUser.ID,
		Mode:        req.Mode,
		RoleToGrant: req.RoleToGrant,
		ExpiresAt:   time.Now().Add(time.Duration(req.ExpiresInDays) * 24 * time.Hour),
		IsActive:    true,
	}

	switch req.Mode {
	case models.InvitationModeEmail:
		if req.Email == nil || !isValidEmail(*req.Email) {
			return utils.Error(c, fiber.StatusBadRequest, "a valid recipient email is required")
		}
		email := strings.ToLower(strings.TrimSpace(*req.Email))
		invitation.Email = &email
		singleUse := 1
		invitation.MaxUses = &singleUse

	case models.InvitationModeLink:
		if req.MaxUses != nil {
			if *req.MaxUses < 1 || *req.MaxUses > maxInvitationUsesLimit {
				return utils.Error(c, fiber.StatusBadRequest, fmt.Sprintf("maxUses must be between 1 and %d", maxInvitationUsesLimit))
			}
			invitation.MaxUses = req.MaxUses
		}
	}

	token, err := utils.GenerateSecureToken(invitationTokenBytes)
	if err != nil {
		return utils.Error(c, fiber.StatusInternalServerError, "failed generating token")
	}
	invitation.Token = token

	if err := h.DB.Create(&invitation).Error; err != nil {
		return utils.Error(c, fiber.StatusInternalServerError, "failed creating invitation")
	}

	url := h.invitationURL(invitation.Token)
	if invitation.Mode == models.InvitationModeEmail {
		h.Notify.InvitationEmail(&group, currentUser, *invitation.Email, url)
	}

	logger.InfoWithUser(currentUser.ID.String(), "invitation_created", map[string]interface{}{
		"group_id":      group.ID.String(),
		"invitation_id": invitation.ID.String(),
		"mode":          string(invitation.Mode),
	})

	return utils.Success(c, fiber.StatusCreated, fiber.Map{
		"invitation": invitation,
		"url":        url,
	})
}

// Validate is the public pre-flight for invitation links. Invalid tokens are
// an answer, not an error: the response always carries isValid plus a reason.
func (h *InvitationsHandler) Validate(c *fiber.Ctx) error {
	token := strings.TrimSpace(c.Params("token"))
	if token == "" {
		return utils.Success(c, fiber.StatusOK, fiber.Map{
			"isValid": false,
			"reason":  "invitation not found",
		})
	}

	var invitation models.Invitation
	if err := h.DB.Preload("Group").Preload("CreatedBy").First(&invitation, "token = ?", token).Error; err != nil {
		return utils.Success(c, fiber.StatusOK, fiber.Map{
			"isValid": false,
			"reason":  "invitation not found",
		})
	}

	status := invitation.EffectiveStatus(time.Now())
	if status != models.InvitationStatusActive || !invitation.Group.IsActive {
		return utils.Success(c, fiber.StatusOK, fiber.Map{
			"isValid": false,
			"reason":  invitationReason(status, invitation.Group.IsActive),
			"status":  status,
		})
	}

	return utils.Success(c, fiber.StatusOK, fiber.Map{
		"isValid": true,
		"status":  status,
		"group": fiber.Map{
			"id":          invitation.Group.ID,
			"name":        invitation.Group.Name,
			"description": invitation.Group.Description,
			"industry":    invitation.Group.Industry,
			"memberCount": invitation.Group.MemberCount,
		},
		"invitedBy":     invitation.CreatedBy.DisplayName,
		"roleToGrant":   invitation.RoleToGrant,
		"usesRemaining": invitation.UsesRemaining(),
		"expiresAt":     invitation.ExpiresAt,
	})
}

// Redeem converts a token into a membership. The usage increment is a
// conditional update: with MaxUses=N exactly N redeemers can ever pass it, no
// matter how many race.
func (h *InvitationsHandler) Redeem(c *fiber.Ctx) error {
	currentUser := middleware.GetCurrentUser(c)
	if currentUser == nil {
		return utils.Error(c, fiber.StatusUnauthorized, "unauthorized")
	}

	token := strings.TrimSpace(c.Params("token"))

	var invitation models.Invitation
	if err := h.DB.Preload("Group").First(&invitation, "token = ?", token).Error; err != nil {
		return utils.Error(c, fiber.StatusNotFound, "invitation not found")
	}

	now := time.Now()
	if status := invitation.EffectiveStatus(now); status != models.InvitationStatusActive {
		return utils.Error(c, fiber.StatusConflict, invitationReason(status, invitation.Group.IsActive))
	}
	if !invitation.Group.IsActive {
		return utils.Error(c, fiber.StatusConflict, "group is no longer active")
	}
	if invitation.Mode == models.InvitationModeEmail && invitation.Email != nil &&
		!strings.EqualFold(*invitation.Email, currentUser.Email) {
		return utils.Error(c, fiber.StatusForbidden, "invitation was issued to a different email")
	}

	if membership, err := h.Policy.Membership(invitation.GroupID, currentUser.ID); err == nil && membership != nil {
		return utils.Error(c, fiber.StatusConflict, "already a member of this group")
	}

	err := h.DB.Transaction(func(tx *gorm.DB) error {
		usage := tx.Exec(
			`UPDATE invitations SET current_uses = current_uses + 1
			 WHERE id = ? AND is_active = ? AND expires_at > ?
			   AND (max_uses IS NULL OR current_uses < max_uses)`,
			invitation.ID, true, now,
		)
		if usage.Error != nil {
			return usage.Error
		}
		if usage.RowsAffected == 0 {
			return errInvitationSpent
		}

		capacity := tx.Exec(
			`UPDATE groups SET member_count = member_count + 1
			 WHERE id = ? AND is_active = ? AND (max_members IS NULL OR member_count < max_members)`,
			invitation.GroupID, true,
		)
		if capacity.Error != nil {
			return capacity.Error
		}
		if capacity.RowsAffected == 0 {
			return errGroupFull
		}

		membership := models.GroupMembership{
			UserID:  currentUser.ID,
			GroupID: invitation.GroupID,
			Role:    invitation.RoleToGrant,
		}
		if err := tx.Create(&membership).Error; err != nil {
			return errAlreadyMember
		}
		return nil
	})
	if err != nil {
		switch {
		case errors.Is(err, errInvitationSpent):
			return utils.Error(c, fiber.StatusConflict, "invitation has been exhausted")
		case errors.Is(err, errGroupFull):
			return utils.Error(c, fiber.StatusConflict, "group is full")
		case errors.Is(err, errAlreadyMember):
			return utils.Error(c, fiber.StatusConflict, "already a member of this group")
		default:
			return utils.Error(c, fiber.StatusInternalServerError, "failed redeeming invitation")
		}
	}

	h.Notify.MemberJoined(&invitation.Group, currentUser)

	logger.InfoWithUser(currentUser.ID.String(), "invitation_redeemed", map[string]interface{}{
		"group_id":      invitation.GroupID.String(),
		"invitation_id": invitation.ID.String(),
	})

	return utils.Success(c, fiber.StatusCreated, fiber.Map{
		"status":  "joined",
		"groupID": invitation.GroupID,
		"role":    invitation.RoleToGrant,
	})
}

func (h *InvitationsHandler) ListByGroup(c *fiber.Ctx) error {
	currentUser := middleware.GetCurrentUser(c)
	if currentUser == nil {
		return utils.Error(c, fiber.StatusUnauthorized, "unauthorized")
	}

	groupID, err := parseUUID(c.Params("groupId"))
	if err != nil {
		return utils.Error(c, fiber.StatusBadRequest, "invalid group id")
	}

	if _, err := h.Policy.RequireAdmin(groupID, currentUser.ID); err != nil {
		return policyError(c, err)
	}

	var invitations []models.Invitation
	if err := h.DB.Preload("CreatedBy").
		Where("group_id = ?", groupID).
		Order("created_at DESC").
		Find(&invitations).Error; err != nil {
		return utils.Error(c, fiber.StatusInternalServerError, "failed listing invitations")
	}

	return utils.Success(c, fiber.StatusOK, h.withStatuses(invitations))
}

func (h *InvitationsHandler) Mine(c *fiber.Ctx) error {
	currentUser := middleware.GetCurrentUser(c)
	if currentUser == nil {
		return utils.Error(c, fiber.StatusUnauthorized, "unauthorized")
	}

	var invitations []models.Invitation
	if err := h.DB.Preload("Group").
		Where("created_by_id = ?", currentUser.ID).
		Order("created_at DESC").
		Find(&invitations).Error; err != nil {
		return utils.Error(c, fiber.StatusInternalServerError, "failed listing invitations")
	}

	return utils.Success(c, fiber.StatusOK, h.withStatuses(invitations))
}

func (h *InvitationsHandler) Deactivate(c *fiber.Ctx) error {
	currentUser := middleware.GetCurrentUser(c)
	if currentUser == nil {
		return utils.Error(c, fiber.StatusUnauthorized, "unauthorized")
	}

	invitationID, err := parseUUID(c.Params("id"))
	if err != nil {
		return utils.Error(c, fiber.StatusBadRequest, "invalid invitation id")
	}

	var invitation models.Invitation
	if err := h.DB.First(&invitation, "id = ?", invitationID).Error; err != nil {
		return utils.Error(c, fiber.StatusNotFound, "invitation not found")
	}

	if _, err := h.Policy.RequireAdmin(invitation.GroupID, currentUser.ID); err != nil {
		return policyError(c, err)
	}

	if !invitation.IsActive {
		return utils.Error(c, fiber.StatusConflict, "invitation is already deactivated")
	}

	now := time.Now()
	if err := h.DB.Model(&invitation).Updates(map[string]interface{}{
		"is_active":         false,
		"deactivated_at":    now,
		"deactivated_by_id": currentUser.ID,
	}).Error; err != nil {
		return utils.Error(c, fiber.StatusInternalServerError, "failed deactivating invitation")
	}

	logger.InfoWithUser(currentUser.ID.String(), "invitation_deactivated", map[string]interface{}{
		"invitation_id": invitation.ID.String(),
		"group_id":      invitation.GroupID.String(),
	})

	return utils.Success(c, fiber.StatusOK, fiber.Map{"message": "invitation deactivated"})
}

// Regenerate issues a fresh token on an existing invitation: usage count back
// to zero, reactivated, new expiry window. The old token stops resolving
// immediately because lookups go by token.
func (h *InvitationsHandler) Regenerate(c *fiber.Ctx) error {
	currentUser := middleware.GetCurrentUser(c)
	if currentUser == nil {
		return utils.Error(c, fiber.StatusUnauthorized, "unauthorized")
	}

	invitationID, err := parseUUID(c.Params("id"))
	if err != nil {
		return utils.Error(c, fiber.StatusBadRequest, "invalid invitation id")
	}

	var invitation models.Invitation
	if err := h.DB.First(&invitation, "id = ?", invitationID).Error; err != nil {
		return utils.Error(c, fiber.StatusNotFound, "invitation not found")
	}

	if _, err := h.Policy.RequireAdmin(invitation.GroupID, currentUser.ID); err != nil {
		return policyError(c, err)
	}

	token, err := utils.GenerateSecureToken(invitationTokenBytes)
	if err != nil {
		return utils.Error(c, fiber.StatusInternalServerError, "failed generating token")
	}

	if err := h.DB.Model(&invitation).Updates(map[string]interface{}{
		"token":             token,
		"current_uses":      0,
		"is_active":         true,
		"deactivated_at":    nil,
		"deactivated_by_id": nil,
		"expires_at":        time.Now().Add(defaultInvitationDays * 24 * time.Hour),
	}).Error; err != nil {
		return utils.Error(c, fiber.StatusInternalServerError, "failed regenerating invitation")
	}

	if err := h.DB.First(&invitation, "id = ?", invitationID).Error; err != nil {
		return utils.Error(c, fiber.StatusInternalServerError, "failed loading invitation")
	}

	logger.InfoWithUser(currentUser.ID.String(), "invitation_regenerated", map[string]interface{}{
		"invitation_id": invitation.ID.String(),
		"group_id":      invitation.GroupID.String(),
	})

	return utils.Success(c, fiber.StatusOK, fiber.Map{
		"invitation": invitation,
		"url":        h.invitationURL(invitation.Token),
	})
}

func (h *InvitationsHandler) invitationURL(token string) string {
	return strings.TrimRight(h.FrontendURL, "/") + "/invitations/" + token
}

func (h *InvitationsHandler) withStatuses(invitations []models.Invitation) []fiber.Map {
	now := time.Now()
	results := make([]fiber.Map, 0, len(invitations))
	for _, inv := range invitations {
		results = append(results, fiber.Map{
			"invitation":    inv,
			"status":        inv.EffectiveStatus(now),
			"usesRemaining": inv.UsesRemaining(),
			"url":           h.invitationURL(inv.Token),
		})
	}
	return results
}

func invitationReason(status models.InvitationStatus, groupActive bool) string {
	switch {
	case status == models.InvitationStatusDeactivated:
		return "invitation has been deactivated"
	case status == models.InvitationStatusExpired:
		return "invitation has expired"
	case status == models.InvitationStatusExhausted:
		return "invitation has been exhausted"
	case !groupActive:
		return "group is no longer active"
	default:
		return "invitation is not redeemable"
	}
}
