// Package policy is the single source of group authorization decisions.
// Handlers must route every membership and role check through it; none may
// re-implement its logic inline.
package policy

import (
	"errors"

	"github.com/google/uuid"
	"github.com/procur/backend/internal/models"
	"gorm.io/gorm"
)

var (
	// ErrForbidden means the user is authenticated but lacks the required
	// membership or role.
	ErrForbidden = errors.New("forbidden")
	// ErrNotFound is returned for groups that must stay invisible to the
	// caller (missing, inactive, or non-public without membership).
	ErrNotFound = errors.New("group not found")
	// ErrGroupInactive means the group exists but has been deactivated.
	ErrGroupInactive = errors.New("group is not active")
	// ErrApprovalRequired means the group is joinable only through a join
	// request or an invitation, never directly.
	ErrApprovalRequired = errors.New("joining requires admin approval")
)

type Policy struct {
	DB *gorm.DB
}

func New(db *gorm.DB) *Policy {
	return &Policy{DB: db}
}

// Membership returns the user's membership in the group, or
// gorm.ErrRecordNotFound when none exists.
func (p *Policy) Membership(groupID, userID uuid.UUID) (*models.GroupMembership, error) {
	var membership models.GroupMembership
	err := p.DB.First(&membership, "group_id = ? AND user_id = ?", groupID, userID).Error
	if err != nil {
		return nil, err
	}
	return &membership, nil
}

// CanView decides group visibility. Public groups are visible to anyone,
// including anonymous callers (userID == uuid.Nil). Non-public groups are
// visible only to members; everyone else gets ErrNotFound so that the
// group's existence is not leaked.
func (p *Policy) CanView(group *models.Group, userID uuid.UUID) error {
	if group.Privacy == models.GroupPrivacyPublic {
		return nil
	}
	if userID == uuid.Nil {
		return ErrNotFound
	}
	if _, err := p.Membership(group.ID, userID); err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return ErrNotFound
		}
		return err
	}
	return nil
}

// CanJoinDirectly decides how a join attempt proceeds: nil means the user
// may join now, ErrApprovalRequired means the attempt becomes a join
// request, and ErrGroupInactive/ErrAlreadyMember reject it outright.
// Capacity is deliberately not checked here: the authoritative capacity
// guard is the conditional member_count update at write time.
func (p *Policy) CanJoinDirectly(group *models.Group, userID uuid.UUID) error {
	if !group.IsActive {
		return ErrGroupInactive
	}
	_, err := p.Membership(group.ID, userID)
	if err == nil {
		return ErrAlreadyMember
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return err
	}
	if group.Privacy != models.GroupPrivacyPublic {
		return ErrApprovalRequired
	}
	return nil
}

// ErrAlreadyMember is returned when the user already holds a membership.
var ErrAlreadyMember = errors.New("already a member of this group")

// RequireMember returns the membership, or ErrForbidden when none exists.
func (p *Policy) RequireMember(groupID, userID uuid.UUID) (*models.GroupMembership, error) {
	membership, err := p.Membership(groupID, userID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrForbidden
		}
		return nil, err
	}
	return membership, nil
}

// RequireAdmin returns the membership when its role is owner or admin.
// Every admin-gated operation in the API goes through this.
func (p *Policy) RequireAdmin(groupID, userID uuid.UUID) (*models.GroupMembership, error) {
	membership, err := p.RequireMember(groupID, userID)
	if err != nil {
		return nil, err
	}
	if !membership.IsAdmin() {
		return nil, ErrForbidden
	}
	return membership, nil
}

// RequireOwner returns the membership only for the group owner.
func (p *Policy) RequireOwner(groupID, userID uuid.UUID) (*models.GroupMembership, error) {
	membership, err := p.RequireMember(groupID, userID)
	if err != nil {
		return nil, err
	}
	if membership.Role != models.GroupRoleOwner {
		return nil, ErrForbidden
	}
	return membership, nil
}

// AdminIDs lists the user IDs holding owner or admin roles in the group,
// used when fanning out join-request notifications.
func (p *Policy) AdminIDs(groupID uuid.UUID) ([]uuid.UUID, error) {
	var memberships []models.GroupMembership
	err := p.DB.Select("user_id").
		Where("group_id = ? AND role IN ?", groupID, []models.GroupMembershipRole{models.GroupRoleOwner, models.GroupRoleAdmin}).
		Find(&memberships).Error
	if err != nil {
		return nil, err
	}

	ids := make([]uuid.UUID, len(memberships))
	for i, m := range memberships {
		ids[i] = m.UserID
	}
	return ids, nil
}
