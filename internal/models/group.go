package models

import "github.com/google/uuid"

type GroupPrivacy string

const (
	GroupPrivacyPublic     GroupPrivacy = "public"
	GroupPrivacyPrivate    GroupPrivacy = "private"
	GroupPrivacyInviteOnly GroupPrivacy = "invite_only"
)

type Group struct {
	BaseModel
	Name              string       `json:"name" gorm:"type:varchar(100);not null;index"`
	Description       string       `json:"description" gorm:"type:text;not null"`
	Industry          string       `json:"industry" gorm:"type:varchar(100);not null;index"`
	Privacy           GroupPrivacy `json:"privacy" gorm:"type:varchar(20);not null;default:'public';index"`
	MaxMembers        *int         `json:"maxMembers,omitempty"`
	MemberCount       int          `json:"memberCount" gorm:"not null;default:0"`
	MinimumOrderValue *float64     `json:"minimumOrderValue,omitempty"`
	CommissionRate    *float64     `json:"commissionRate,omitempty"`
	LogoURL           *string      `json:"logoURL,omitempty" gorm:"type:text"`
	BannerURL         *string      `json:"bannerURL,omitempty" gorm:"type:text"`
	Tags              *string      `json:"tags,omitempty" gorm:"type:text"`
	IsActive          bool         `json:"isActive" gorm:"not null;default:true;index"`
	CreatedByID       uuid.UUID    `json:"createdByID" gorm:"type:uuid;not null;index"`

	CreatedBy   User              `json:"createdBy,omitempty" gorm:"foreignKey:CreatedByID;references:ID"`
	Memberships []GroupMembership `json:"memberships,omitempty" gorm:"foreignKey:GroupID"`
}

func (Group) TableName() string {
	return "groups"
}

// IsFull reports whether the member capacity has been reached. The
// authoritative check happens as a conditional update at write time; this is
// only for read paths.
func (g *Group) IsFull() bool {
	return g.MaxMembers != nil && g.MemberCount >= *g.MaxMembers
}
