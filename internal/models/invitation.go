package models

import (
	"time"

	"github.com/google/uuid"
)

type InvitationMode string

const (
	InvitationModeLink  InvitationMode = "link"
	InvitationModeEmail InvitationMode = "email"
)

// InvitationStatus is computed lazily from the row; only IsActive is stored.
type InvitationStatus string

const (
	InvitationStatusActive      InvitationStatus = "active"
	InvitationStatusDeactivated InvitationStatus = "deactivated"
	InvitationStatusExpired     InvitationStatus = "expired"
	InvitationStatusExhausted   InvitationStatus = "exhausted"
)

type Invitation struct {
	BaseModel
	GroupID         uuid.UUID           `json:"groupID" gorm:"type:uuid;not null;index"`
	CreatedByID     uuid.UUID           `json:"createdByID" gorm:"type:uuid;not null;index"`
	Mode            InvitationMode      `json:"mode" gorm:"type:varchar(10);not null;default:'link'"`
	Email           *string             `json:"email,omitempty" gorm:"type:varchar(255)"`
	RoleToGrant     GroupMembershipRole `json:"roleToGrant" gorm:"type:varchar(20);not null;default:'member'"`
	Token           string              `json:"token" gorm:"type:varchar(64);uniqueIndex;not null"`
	MaxUses         *int                `json:"maxUses,omitempty"`
	CurrentUses     int                 `json:"currentUses" gorm:"not null;default:0"`
	ExpiresAt       time.Time           `json:"expiresAt" gorm:"not null"`
	IsActive        bool                `json:"isActive" gorm:"not null;default:true;index"`
	DeactivatedAt   *time.Time          `json:"deactivatedAt,omitempty"`
	DeactivatedByID *uuid.UUID          `json:"deactivatedByID,omitempty" gorm:"type:uuid"`

	Group     Group `json:"group,omitempty" gorm:"foreignKey:GroupID"`
	CreatedBy User  `json:"createdBy,omitempty" gorm:"foreignKey:CreatedByID"`
}

func (Invitation) TableName() string {
	return "invitations"
}

// EffectiveStatus resolves the lazy lifecycle state at the given instant.
// Deactivation wins over expiry, expiry over exhaustion.
func (i *Invitation) EffectiveStatus(now time.Time) InvitationStatus {
	if !i.IsActive {
		return InvitationStatusDeactivated
	}
	if now.After(i.ExpiresAt) {
		return InvitationStatusExpired
	}
	if i.MaxUses != nil && i.CurrentUses >= *i.MaxUses {
		return InvitationStatusExhausted
	}
	return InvitationStatusActive
}

// UsesRemaining returns nil for unlimited links.
func (i *Invitation) UsesRemaining() *int {
	if i.MaxUses == nil {
		return nil
	}
	remaining := *i.MaxUses - i.CurrentUses
	if remaining < 0 {
		remaining = 0
	}
	return &remaining
}
