package models

import (
	"time"

	"github.com/google/uuid"
)

type JoinRequestStatus string

const (
	JoinRequestStatusPending  JoinRequestStatus = "pending"
	JoinRequestStatusApproved JoinRequestStatus = "approved"
	JoinRequestStatusRejected JoinRequestStatus = "rejected"
)

// JoinRequest tracks a user's ask to enter a privacy-gated group. Rows in a
// terminal status are never mutated again.
type JoinRequest struct {
	BaseModel
	GroupID      uuid.UUID         `json:"groupID" gorm:"type:uuid;not null;index"`
	UserID       uuid.UUID         `json:"userID" gorm:"type:uuid;not null;index"`
	Message      *string           `json:"message,omitempty" gorm:"type:varchar(500)"`
	Status       JoinRequestStatus `json:"status" gorm:"type:varchar(20);not null;default:'pending';index"`
	ResolvedByID *uuid.UUID        `json:"resolvedByID,omitempty" gorm:"type:uuid"`
	ResolvedAt   *time.Time        `json:"resolvedAt,omitempty"`
	AdminMessage *string           `json:"adminMessage,omitempty" gorm:"type:varchar(500)"`

	Group      Group `json:"group,omitempty" gorm:"foreignKey:GroupID"`
	User       User  `json:"user,omitempty" gorm:"foreignKey:UserID"`
	ResolvedBy *User `json:"resolvedBy,omitempty" gorm:"foreignKey:ResolvedByID"`
}

func (JoinRequest) TableName() string {
	return "join_requests"
}

func (r *JoinRequest) IsResolved() bool {
	return r.Status != JoinRequestStatusPending
}
