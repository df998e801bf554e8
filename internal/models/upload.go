package models

import "github.com/google/uuid"

type UploadKind string

const (
	UploadKindAvatar    UploadKind = "avatar"
	UploadKindGroupLogo UploadKind = "group_logo"
)

// Upload is the metadata row for an object stored in MinIO; the bytes
// themselves never touch the database.
type Upload struct {
	BaseModel
	OwnerID     uuid.UUID  `json:"ownerID" gorm:"type:uuid;not null;index"`
	GroupID     *uuid.UUID `json:"groupID,omitempty" gorm:"type:uuid;index"`
	Kind        UploadKind `json:"kind" gorm:"type:varchar(20);not null"`
	FileName    string     `json:"fileName" gorm:"type:varchar(255);not null"`
	ContentType string     `json:"contentType" gorm:"type:varchar(255);not null"`
	Size        int64      `json:"size" gorm:"not null;default:0"`
	StoragePath string     `json:"storagePath" gorm:"type:text;not null"`

	Owner User   `json:"owner,omitempty" gorm:"foreignKey:OwnerID;references:ID"`
	Group *Group `json:"group,omitempty" gorm:"foreignKey:GroupID;references:ID"`
}

func (Upload) TableName() string {
	return "uploads"
}
