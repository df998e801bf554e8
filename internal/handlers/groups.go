package handlers

import (
	"errors"
	"strings"

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

var (
	errGroupFull     = errors.New("group is full")
	errAlreadyMember = errors.New("already a member")
)

type GroupsHandler struct {
	DB     *gorm.DB
	Policy *policy.Policy
	Notify *services.NotifyService
}

func NewGroupsHandler(db *gorm.DB, pol *policy.Policy, notify *services.NotifyService) *GroupsHandler {
	return &GroupsHandler{DB: db, Policy: pol, Notify: notify}
}

type createGroupRequest struct {
	Name              string              `json:"name"`
	Description       string              `json:"description"`
	Industry          string              `json:"industry"`
	Privacy           models.GroupPrivacy `json:"privacy"`
	MaxMembers        *int                `json:"maxMembers"`
	MinimumOrderValue *float64            `json:"minimumOrderValue"`
	CommissionRate    *float64            `json:"commissionRate"`
	Tags              *string             `json:"tags"`
}

func (h *GroupsHandler) Create(c *fiber.Ctx) error {
	currentUser := middleware.GetCurrentUser(c)
	if currentUser == nil {
		return utils.Error(c, fiber.StatusUnauthorized, "unauthorized")
	}

	var req createGroupRequest
	if err := c.BodyParser(&req); err != nil {
		return utils.Error(c, fiber.StatusBadRequest, "invalid request body")
	}

	req.Name = strings.TrimSpace(req.Name)
	req.Description = strings.TrimSpace(req.Description)
	req.Industry = strings.TrimSpace(req.Industry)

	if req.Name == "" {
		return utils.Error(c, fiber.StatusBadRequest, "name is required")
	}
	if req.Description == "" {
		return utils.Error(c, fiber.StatusBadRequest, "description is required")
	}
	if req.Industry == "" {
		return utils.Error(c, fiber.StatusBadRequest, "industry is required")
	}
	if req.Privacy == "" {
		req.Privacy = models.GroupPrivacyPublic
	}
	if !isValidPrivacy(req.Privacy) {
		return utils.Error(c, fiber.StatusBadRequest, "invalid privacy value")
	}
	if req.MaxMembers != nil && *req.MaxMembers < 1 {
		return utils.Error(c, fiber.StatusBadRequest, "maxMembers must be at least 1")
	}

	group := models.Group{
		Name:              req.Name,
		Description:       req.Description,
		Industry:          req.Industry,
		Privacy:           req.Privacy,
		MaxMembers:        req.MaxMembers,
		MemberCount:       1,
		MinimumOrderValue: req.MinimumOrderValue,
		CommissionRate:    req.CommissionRate,
		Tags:              req.Tags,
		IsActive:          true,
		CreatedByID:       currentUser.ID,
	}

	// Group and owner membership land together or not at all.
	err := h.DB.Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(&group).Error; err != nil {
			return err
		}
		membership := models.GroupMembership{
			UserID:  currentUser.ID,
			GroupID: group.ID,
			Role:    models.GroupRoleOwner,
		}
		return tx.Create(&membership).Error
	})
	if err != nil {
		return utils.Error(c, fiber.StatusInternalServerError, "failed creating group")
	}

	logger.InfoWithUser(currentUser.ID.String(), "group_created", map[string]interface{}{
		"group_id":   group.ID.String(),
		"group_name": group.Name,
		"privacy":    string(group.Privacy),
	})

	return utils.Success(c, fiber.StatusCreated, group)
}

// List is the browse view. Anonymous callers see only active public groups;
// authenticated callers additionally see the non-public groups they belong to.
func (h *GroupsHandler) List(c *fiber.Ctx) error {
	currentUser := middleware.GetCurrentUser(c)
	p := utils.ParsePagination(c)

	query := h.DB.Model(&models.Group{}).Where("groups.is_active = ?", true)

	if currentUser == nil {
		query = query.Where("groups.privacy = ?", models.GroupPrivacyPublic)
	} else {
		query = query.Where(
			"groups.privacy = ? OR groups.id IN (?)",
			models.GroupPrivacyPublic,
			h.DB.Model(&models.GroupMembership{}).Select("group_id").Where("user_id = ?", currentUser.ID),
		)
	}

	if industry := strings.TrimSpace(c.Query("industry")); industry != "" {
		query = query.Where("groups.industry = ?", industry)
	}
	if privacy := strings.TrimSpace(c.Query("privacy")); privacy != "" {
		query = query.Where("groups.privacy = ?", privacy)
	}
	if search := strings.TrimSpace(c.Query("search")); search != "" {
		pattern := "%" + strings.ToLower(search) + "%"
		query = query.Where("LOWER(groups.name) LIKE ? OR LOWER(groups.description) LIKE ?", pattern, pattern)
	}

	var total int64
	if err := query.Count(&total).Error; err != nil {
		return utils.Error(c, fiber.StatusInternalServerError, "failed listing groups")
	}

	var groups []models.Group
	if err := utils.ApplyPagination(query.Order("groups.created_at DESC"), p).Find(&groups).Error; err != nil {
		return utils.Error(c, fiber.StatusInternalServerError, "failed listing groups")
	}

	results := make([]fiber.Map, 0, len(groups))
	flags := h.userFlags(currentUser, groups)
	for _, group := range groups {
		entry := fiber.Map{
			"group":             group,
			"isMember":          false,
			"hasPendingRequest": false,
		}
		if f, ok := flags[group.ID]; ok {
			entry["isMember"] = f.isMember
			entry["hasPendingRequest"] = f.hasPendingRequest
			if f.role != "" {
				entry["userRole"] = f.role
			}
		}
		results = append(results, entry)
	}

	return utils.Paginated(c, results, p.Page, p.Limit, total)
}

type groupFlags struct {
	isMember          bool
	role              models.GroupMembershipRole
	hasPendingRequest bool
}

func (h *GroupsHandler) userFlags(user *models.User, groups []models.Group) map[uuid.UUID]groupFlags {
	flags := map[uuid.UUID]groupFlags{}
	if user == nil || len(groups) == 0 {
		return flags
	}

	ids := make([]uuid.UUID, len(groups))
	for i, g := range groups {
		ids[i] = g.ID
	}

	var memberships []models.GroupMembership
	h.DB.Where("user_id = ? AND group_id IN ?", user.ID, ids).Find(&memberships)
	for _, m := range memberships {
		flags[m.GroupID] = groupFlags{isMember: true, role: m.Role}
	}

	var pending []models.JoinRequest
	h.DB.Where("user_id = ? AND group_id IN ? AND status = ?", user.ID, ids, models.JoinRequestStatusPending).Find(&pending)
	for _, r := range pending {
		f := flags[r.GroupID]
		f.hasPendingRequest = true
		flags[r.GroupID] = f
	}

	return flags
}

func (h *GroupsHandler) Get(c *fiber.Ctx) error {
	currentUser := middleware.GetCurrentUser(c)

	groupID, err := parseUUID(c.Params("id"))
	if err != nil {
		return utils.Error(c, fiber.StatusBadRequest, "invalid group id")
	}

	var group models.Group
	if err := h.DB.First(&group, "id = ? AND is_active = ?", groupID, true).Error; err != nil {
		return utils.Error(c, fiber.StatusNotFound, "group not found")
	}

	userID := uuid.Nil
	if currentUser != nil {
		userID = currentUser.ID
	}
	if err := h.Policy.CanView(&group, userID); err != nil {
		return policyError(c, err)
	}

	response := fiber.Map{
		"group":             group,
		"isMember":          false,
		"hasPendingRequest": false,
	}

	var membership *models.GroupMembership
	if currentUser != nil {
		membership, _ = h.Policy.Membership(group.ID, currentUser.ID)
		if membership != nil {
			response["isMember"] = true
			response["userRole"] = membership.Role
		} else {
			var pendingCount int64
			h.DB.Model(&models.JoinRequest{}).
				Where("group_id = ? AND user_id = ? AND status = ?", group.ID, currentUser.ID, models.JoinRequestStatusPending).
				Count(&pendingCount)
			response["hasPendingRequest"] = pendingCount > 0
		}
	}

	if membership != nil {
		var roster []models.GroupMembership
		if err := h.DB.Preload("User").
			Where("group_id = ?", group.ID).
			Order("CASE role WHEN 'owner' THEN 0 WHEN 'admin' THEN 1 ELSE 2 END, created_at ASC").
			Find(&roster).Error; err == nil {
			response["members"] = roster
		}

		if membership.IsAdmin() {
			var pendingRequests []models.JoinRequest
			if err := h.DB.Preload("User").
				Where("group_id = ? AND status = ?", group.ID, models.JoinRequestStatusPending).
				Order("created_at ASC").
				Find(&pendingRequests).Error; err == nil {
				response["pendingJoinRequests"] = pendingRequests
			}
		}
	}

	return utils.Success(c, fiber.StatusOK, response)
}

type updateGroupRequest struct {
	Name              *string  `json:"name"`
	Description       *string  `json:"description"`
	Industry          *string  `json:"industry"`
	Privacy           *string  `json:"privacy"`
	MaxMembers        *int     `json:"maxMembers"`
	MinimumOrderValue *float64 `json:"minimumOrderValue"`
	CommissionRate    *float64 `json:"commissionRate"`
	Tags              *string  `json:"tags"`
}

func (h *GroupsHandler) Update(c *fiber.Ctx) error {
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

	var req updateGroupRequest
	if err := c.BodyParser(&req); err != nil {
		return utils.Error(c, fiber.StatusBadRequest, "invalid request body")
	}

	// Privacy is fixed at creation. A flip would silently change the join
	// semantics for everyone holding a link.
	if req.Privacy != nil {
		return utils.Error(c, fiber.StatusBadRequest, "privacy cannot be changed after creation")
	}

	updates := map[string]interface{}{}
	if req.Name != nil {
		name := strings.TrimSpace(*req.Name)
		if name == "" {
			return utils.Error(c, fiber.StatusBadRequest, "name cannot be empty")
		}
		updates["name"] = name
	}
	if req.Description != nil {
		description := strings.TrimSpace(*req.Description)
		if description == "" {
			return utils.Error(c, fiber.StatusBadRequest, "description cannot be empty")
		}
		updates["description"] = description
	}
	if req.Industry != nil {
		industry := strings.TrimSpace(*req.Industry)
		if industry == "" {
			return utils.Error(c, fiber.StatusBadRequest, "industry cannot be empty")
		}
		updates["industry"] = industry
	}
	if req.MinimumOrderValue != nil {
		updates["minimum_order_value"] = *req.MinimumOrderValue
	}
	if req.CommissionRate != nil {
		updates["commission_rate"] = *req.CommissionRate
	}
	if req.Tags != nil {
		updates["tags"] = nullableString(*req.Tags)
	}

	capacityGuard := false
	if req.MaxMembers != nil {
		if *req.MaxMembers == 0 {
			updates["max_members"] = nil
		} else if *req.MaxMembers < 1 {
			return utils.Error(c, fiber.StatusBadRequest, "maxMembers must be at least 1")
		} else {
			updates["max_members"] = *req.MaxMembers
			capacityGuard = true
		}
	}

	if len(updates) == 0 {
		return utils.Error(c, fiber.StatusBadRequest, "no valid fields to update")
	}

	query := h.DB.Model(&models.Group{}).Where("id = ? AND is_active = ?", groupID, true)
	if capacityGuard {
		// Lowering the cap below the current roster would strand members.
		query = query.Where("member_count <= ?", *req.MaxMembers)
	}
	result := query.Updates(updates)
	if result.Error != nil {
		return utils.Error(c, fiber.StatusInternalServerError, "failed updating group")
	}
	if result.RowsAffected == 0 {
		if capacityGuard {
			var live models.Group
			if err := h.DB.First(&live, "id = ? AND is_active = ?", groupID, true).Error; err == nil {
				return utils.Error(c, fiber.StatusBadRequest, "maxMembers cannot be below the current member count")
			}
		}
		return utils.Error(c, fiber.StatusNotFound, "group not found")
	}

	var updated models.Group
	if err := h.DB.First(&updated, "id = ?", groupID).Error; err != nil {
		return utils.Error(c, fiber.StatusInternalServerError, "failed loading updated group")
	}

	return utils.Success(c, fiber.StatusOK, updated)
}

// Delete deactivates the group. Rows stay behind for audit; every read path
// filters on is_active.
func (h *GroupsHandler) Delete(c *fiber.Ctx) error {
	currentUser := middleware.GetCurrentUser(c)
	if currentUser == nil {
		return utils.Error(c, fiber.StatusUnauthorized, "unauthorized")
	}

	groupID, err := parseUUID(c.Params("id"))
	if err != nil {
		return utils.Error(c, fiber.StatusBadRequest, "invalid group id")
	}

	if _, err := h.Policy.RequireOwner(groupID, currentUser.ID); err != nil {
		return policyError(c, err)
	}

	result := h.DB.Model(&models.Group{}).
		Where("id = ? AND is_active = ?", groupID, true).
		Update("is_active", false)
	if result.Error != nil {
		return utils.Error(c, fiber.StatusInternalServerError, "failed deleting group")
	}
	if result.RowsAffected == 0 {
		return utils.Error(c, fiber.StatusNotFound, "group not found")
	}

	logger.InfoWithUser(currentUser.ID.String(), "group_deleted", map[string]interface{}{
		"group_id": groupID.String(),
	})

	return utils.Success(c, fiber.StatusOK, fiber.Map{"message": "group deleted"})
}

func (h *GroupsHandler) Members(c *fiber.Ctx) error {
	currentUser := middleware.GetCurrentUser(c)
	if currentUser == nil {
		return utils.Error(c, fiber.StatusUnauthorized, "unauthorized")
	}

	groupID, err := parseUUID(c.Params("id"))
	if err != nil {
		return utils.Error(c, fiber.StatusBadRequest, "invalid group id")
	}

	if _, err := h.Policy.RequireMember(groupID, currentUser.ID); err != nil {
		return policyError(c, err)
	}

	p := utils.ParsePagination(c)

	var total int64
	if err := h.DB.Model(&models.GroupMembership{}).Where("group_id = ?", groupID).Count(&total).Error; err != nil {
		return utils.Error(c, fiber.StatusInternalServerError, "failed listing members")
	}

	var roster []models.GroupMembership
	if err := utils.ApplyPagination(
		h.DB.Preload("User").
			Where("group_id = ?", groupID).
			Order("CASE role WHEN 'owner' THEN 0 WHEN 'admin' THEN 1 ELSE 2 END, created_at ASC"),
		p,
	).Find(&roster).Error; err != nil {
		return utils.Error(c, fiber.StatusInternalServerError, "failed listing members")
	}

	return utils.Paginated(c, roster, p.Page, p.Limit, total)
}

func (h *GroupsHandler) RemoveMember(c *fiber.Ctx) error {
	currentUser := middleware.GetCurrentUser(c)
	if currentUser == nil {
		return utils.Error(c, fiber.StatusUnauthorized, "unauthorized")
	}

	groupID, err := parseUUID(c.Params("id"))
	if err != nil {
		return utils.Error(c, fiber.StatusBadRequest, "invalid group id")
	}
	userID, err := parseUUID(c.Params("userId"))
	if err != nil {
		return utils.Error(c, fiber.StatusBadRequest, "invalid user id")
	}

	actorMembership, err := h.Policy.RequireAdmin(groupID, currentUser.ID)
	if err != nil {
		return policyError(c, err)
	}

	targetMembership, err := h.Policy.Membership(groupID, userID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return utils.Error(c, fiber.StatusNotFound, "member not found")
		}
		return utils.Error(c, fiber.StatusInternalServerError, "failed loading target membership")
	}

	if targetMembership.Role == models.GroupRoleOwner {
		return utils.Error(c, fiber.StatusForbidden, "cannot remove group owner")
	}
	if actorMembership.Role == models.GroupRoleAdmin && targetMembership.Role == models.GroupRoleAdmin {
		return utils.Error(c, fiber.StatusForbidden, "admins cannot remove other admins")
	}

	err = h.DB.Transaction(func(tx *gorm.DB) error {
		if err := tx.Delete(&models.GroupMembership{}, "id = ?", targetMembership.ID).Error; err != nil {
			return err
		}
		return tx.Exec(
			"UPDATE groups SET member_count = member_count - 1 WHERE id = ? AND member_count > 0",
			groupID,
		).Error
	})
	if err != nil {
		return utils.Error(c, fiber.StatusInternalServerError, "failed removing member")
	}

	var group models.Group
	if err := h.DB.First(&group, "id = ?", groupID).Error; err == nil {
		h.Notify.MemberRemoved(&group, currentUser.ID, userID)
	}

	logger.InfoWithUser(currentUser.ID.String(), "member_removed", map[string]interface{}{
		"group_id": groupID.String(),
		"user_id":  userID.String(),
	})

	return utils.Success(c, fiber.StatusOK, fiber.Map{"message": "member removed"})
}

type updateMemberRoleRequest struct {
	Role models.GroupMembershipRole `json:"role"`
}

func (h *GroupsHandler) UpdateMemberRole(c *fiber.Ctx) error {
	currentUser := middleware.GetCurrentUser(c)
	if currentUser == nil {
		return utils.Error(c, fiber.StatusUnauthorized, "unauthorized")
	}

	groupID, err := parseUUID(c.Params("id"))
	if err != nil {
		return utils.Error(c, fiber.StatusBadRequest, "invalid group id")
	}
	userID, err := parseUUID(c.Params("userId"))
	if err != nil {
		return utils.Error(c, fiber.StatusBadRequest, "invalid user id")
	}

	actorMembership, err := h.Policy.RequireAdmin(groupID, currentUser.ID)
	if err != nil {
		return policyError(c, err)
	}

	targetMembership, err := h.Policy.Membership(groupID, userID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return utils.Error(c, fiber.StatusNotFound, "member not found")
		}
		return utils.Error(c, fiber.StatusInternalServerError, "failed loading target membership")
	}
	if targetMembership.Role == models.GroupRoleOwner {
		return utils.Error(c, fiber.StatusForbidden, "cannot change owner role")
	}

	var req updateMemberRoleRequest
	if err := c.BodyParser(&req); err != nil {
		return utils.Error(c, fiber.StatusBadRequest, "invalid request body")
	}

	if req.Role != models.GroupRoleAdmin && req.Role != models.GroupRoleMember {
		return utils.Error(c, fiber.StatusBadRequest, "invalid role")
	}
	if actorMembership.Role == models.GroupRoleAdmin && req.Role != models.GroupRoleMember {
		return utils.Error(c, fiber.StatusForbidden, "admins can only set member role")
	}

	if err := h.DB.Model(&models.GroupMembership{}).
		Where("id = ?", targetMembership.ID).
		Update("role", req.Role).Error; err != nil {
		return utils.Error(c, fiber.StatusInternalServerError, "failed updating member role")
	}

	targetMembership.Role = req.Role
	return utils.Success(c, fiber.StatusOK, targetMembership)
}

// Leave removes the caller's own membership. The owner cannot leave; they
// delete the group or transfer nothing, there is no ownership handoff.
func (h *GroupsHandler) Leave(c *fiber.Ctx) error {
	currentUser := middleware.GetCurrentUser(c)
	if currentUser == nil {
		return utils.Error(c, fiber.StatusUnauthorized, "unauthorized")
	}

	groupID, err := parseUUID(c.Params("id"))
	if err != nil {
		return utils.Error(c, fiber.StatusBadRequest, "invalid group id")
	}

	membership, err := h.Policy.RequireMember(groupID, currentUser.ID)
	if err != nil {
		return policyError(c, err)
	}
	if membership.Role == models.GroupRoleOwner {
		return utils.Error(c, fiber.StatusForbidden, "owner cannot leave the group")
	}

	err = h.DB.Transaction(func(tx *gorm.DB) error {
		if err := tx.Delete(&models.GroupMembership{}, "id = ?", membership.ID).Error; err != nil {
			return err
		}
		return tx.Exec(
			"UPDATE groups SET member_count = member_count - 1 WHERE id = ? AND member_count > 0",
			groupID,
		).Error
	})
	if err != nil {
		return utils.Error(c, fiber.StatusInternalServerError, "failed leaving group")
	}

	logger.InfoWithUser(currentUser.ID.String(), "group_left", map[string]interface{}{
		"group_id": groupID.String(),
	})

	return utils.Success(c, fiber.StatusOK, fiber.Map{"message": "left group"})
}

type joinGroupRequest struct {
	Message *string `json:"message"`
}

// Join enters a public group directly or files a join request for a
// privacy-gated one. The capacity check is the conditional member_count
// update; two racers for the last slot cannot both win.
func (h *GroupsHandler) Join(c *fiber.Ctx) error {
	currentUser := middleware.GetCurrentUser(c)
	if currentUser == nil {
		return utils.Error(c, fiber.StatusUnauthorized, "unauthorized")
	}

	groupID, err := parseUUID(c.Params("id"))
	if err != nil {
		return utils.Error(c, fiber.StatusBadRequest, "invalid group id")
	}

	var req joinGroupRequest
	if len(c.Body()) > 0 {
		if err := c.BodyParser(&req); err != nil {
			return utils.Error(c, fiber.StatusBadRequest, "invalid request body")
		}
	}

	var group models.Group
	if err := h.DB.First(&group, "id = ?", groupID).Error; err != nil {
		return utils.Error(c, fiber.StatusNotFound, "group not found")
	}

	switch err := h.Policy.CanJoinDirectly(&group, currentUser.ID); {
	case err == nil:
		return h.joinDirectly(c, &group, currentUser)
	case errors.Is(err, policy.ErrApprovalRequired):
		return h.createJoinRequest(c, &group, currentUser, req.Message)
	case errors.Is(err, policy.ErrGroupInactive):
		return utils.Error(c, fiber.StatusBadRequest, "group is not active")
	case errors.Is(err, policy.ErrAlreadyMember):
		return utils.Error(c, fiber.StatusConflict, "already a member of this group")
	default:
		return utils.Error(c, fiber.StatusInternalServerError, "failed joining group")
	}
}

func (h *GroupsHandler) joinDirectly(c *fiber.Ctx, group *models.Group, user *models.User) error {
	err := h.DB.Transaction(func(tx *gorm.DB) error {
		result := tx.Exec(
			`UPDATE groups SET member_count = member_count + 1
			 WHERE id = ? AND is_active = ? AND (max_members IS NULL OR member_count < max_members)`,
			group.ID, true,
		)
		if result.Error != nil {
			return result.Error
		}
		if result.RowsAffected == 0 {
			return errGroupFull
		}

		membership := models.GroupMembership{
			UserID:  user.ID,
			GroupID: group.ID,
			Role:    models.GroupRoleMember,
		}
		if err := tx.Create(&membership).Error; err != nil {
			return errAlreadyMember
		}
		return nil
	})
	if err != nil {
		switch {
		case errors.Is(err, errGroupFull):
			return utils.Error(c, fiber.StatusConflict, "group is full")
		case errors.Is(err, errAlreadyMember):
			return utils.Error(c, fiber.StatusConflict, "already a member of this group")
		default:
			return utils.Error(c, fiber.StatusInternalServerError, "failed joining group")
		}
	}

	h.Notify.MemberJoined(group, user)

	logger.InfoWithUser(user.ID.String(), "group_joined", map[string]interface{}{
		"group_id": group.ID.String(),
	})

	return utils.Success(c, fiber.StatusCreated, fiber.Map{
		"status":  "joined",
		"groupID": group.ID,
	})
}

func (h *GroupsHandler) createJoinRequest(c *fiber.Ctx, group *models.Group, user *models.User, message *string) error {
	if message != nil {
		trimmed := strings.TrimSpace(*message)
		if len(trimmed) > 500 {
			return utils.Error(c, fiber.StatusBadRequest, "message must be at most 500 characters")
		}
		if trimmed == "" {
			message = nil
		} else {
			message = &trimmed
		}
	}

	request := models.JoinRequest{
		GroupID: group.ID,
		UserID:  user.ID,
		Message: message,
		Status:  models.JoinRequestStatusPending,
	}

	// The partial unique index on (group_id, user_id) WHERE pending turns a
	// double submit into an insert conflict.
	if err := h.DB.Create(&request).Error; err != nil {
		return utils.Error(c, fiber.StatusConflict, "a pending join request already exists")
	}

	h.Notify.JoinRequestSubmitted(group, user, derefString(message))

	logger.InfoWithUser(user.ID.String(), "join_request_created", map[string]interface{}{
		"group_id":   group.ID.String(),
		"request_id": request.ID.String(),
	})

	return utils.Success(c, fiber.StatusCreated, fiber.Map{
		"status":  "pending_approval",
		"request": request,
	})
}

func isValidPrivacy(value models.GroupPrivacy) bool {
	switch value {
	case models.GroupPrivacyPublic, models.GroupPrivacyPrivate, models.GroupPrivacyInviteOnly:
		return true
	default:
		return false
	}
}

func derefString(value *string) string {
	if value == nil {
		return ""
	}
	return *value
}
