package models

import "github.com/google/uuid"

type NotificationType string

const (
	NotificationJoinRequest   NotificationType = "join_request"
	NotificationJoinApproved  NotificationType = "join_approved"
	NotificationJoinRejected  NotificationType = "join_rejected"
	NotificationInvitation    NotificationType = "group_invitation"
	NotificationMemberAdded   NotificationType = "member_added"
	NotificationMemberRemoved NotificationType = "member_removed"
)

type Notification struct {
	BaseModel
	UserID  uuid.UUID        `json:"userID" gorm:"type:uuid;not null;index"`
	ActorID uuid.UUID        `json:"actorID" gorm:"type:uuid;not null"`
	Type    NotificationType `json:"type" gorm:"type:varchar(30);not null"`
	GroupID *uuid.UUID       `json:"groupID,omitempty" gorm:"type:uuid"`
	Message string           `json:"message" gorm:"type:text;not null"`
	IsRead  bool             `json:"isRead" gorm:"not null;default:false;index"`

	Actor User `json:"actor,omitempty" gorm:"foreignKey:ActorID;references:ID"`
}

func (Notification) TableName() string {
	return "notifications"
}
