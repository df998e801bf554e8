package models

type UserRole string

const (
	UserRoleAdmin UserRole = "admin"
	UserRoleUser  UserRole = "user"
)

type User struct {
	BaseModel
	Email        string   `json:"email" gorm:"type:varchar(255);uniqueIndex;not null"`
	PasswordHash string   `json:"-" gorm:"type:text"`
	DisplayName  string   `json:"displayName" gorm:"type:varchar(100);not null"`
	CompanyName  *string  `json:"companyName,omitempty" gorm:"type:varchar(200)"`
	JobTitle     *string  `json:"jobTitle,omitempty" gorm:"type:varchar(100)"`
	Industry     *string  `json:"industry,omitempty" gorm:"type:varchar(100)"`
	Location     *string  `json:"location,omitempty" gorm:"type:varchar(100)"`
	Phone        *string  `json:"phone,omitempty" gorm:"type:varchar(20)"`
	AvatarURL    *string  `json:"avatarURL,omitempty" gorm:"type:text"`
	Bio          *string  `json:"bio,omitempty" gorm:"type:text"`
	Role         UserRole `json:"role" gorm:"type:varchar(20);not null;default:'user'"`
	IsVerified   bool     `json:"isVerified" gorm:"not null;default:false"`
	IsActive     bool     `json:"isActive" gorm:"not null;default:true"`

	GroupMemberships []GroupMembership `json:"-" gorm:"foreignKey:UserID"`
	Uploads          []Upload          `json:"-" gorm:"foreignKey:OwnerID"`
}
