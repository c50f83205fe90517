package domain

import (
	"fmt"
	"strings"
	"time"
)

// User is the account record. Email is the sole login identifier and stays
// unique across live and soft-deleted rows: soft deletion rewrites the email
// to a deletion-tagged value so the original can be registered again.
type User struct {
	ID           string `gorm:"type:uuid;default:uuid_generate_v4();primaryKey" json:"id"`
	Email        string `gorm:"uniqueIndex;not null" json:"email"`
	PasswordHash string `gorm:"not null" json:"-"`

	FirstName string `gorm:"size:30;not null" json:"first_name"`
	LastName  string `gorm:"size:30;not null" json:"last_name"`
	Bio       string `gorm:"size:500" json:"bio"`
	AvatarURL string `json:"avatar_url"`

	Timezone string `gorm:"size:50;default:'Asia/Seoul'" json:"timezone"`
	Theme    string `gorm:"size:10;default:'light'" json:"theme"`
	Language string `gorm:"size:10;default:'ko'" json:"language"`

	Active        bool `gorm:"not null;default:true" json:"active"`
	EmailVerified bool `gorm:"not null;default:false" json:"email_verified"`

	SocialProvider string `gorm:"size:20" json:"social_provider,omitempty"`
	SocialID       string `gorm:"size:100" json:"-"`

	LastLoginAt *time.Time `json:"last_login_at"`
	LastLoginIP string     `json:"-"`
	CreatedAt   time.Time  `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt   time.Time  `gorm:"autoUpdateTime" json:"updated_at"`

	Profile *UserProfile `gorm:"foreignKey:UserID;constraint:OnDelete:CASCADE" json:"profile,omitempty"`
}

func (User) TableName() string { return "users" }

func (u *User) FullName() string {
	return strings.TrimSpace(u.LastName + u.FirstName)
}

func (u *User) IsSocial() bool {
	return u.SocialProvider != "" && u.SocialID != ""
}

// DeletedEmail is the deletion-tagged derivative written on soft delete.
// Prefixed with the user id it can never collide with a future registration.
func (u *User) DeletedEmail() string {
	return fmt.Sprintf("deleted_%s_%s", u.ID, u.Email)
}

// UserProfile holds extended per-user settings, owned 1:1 by the account and
// created empty at registration.
type UserProfile struct {
	ID     string `gorm:"type:uuid;default:uuid_generate_v4();primaryKey" json:"id"`
	UserID string `gorm:"type:uuid;uniqueIndex;not null" json:"user_id"`

	PhoneNumber string     `gorm:"size:20" json:"phone_number"`
	BirthDate   *time.Time `json:"birth_date"`

	EmailNotifications bool `gorm:"not null;default:true" json:"email_notifications"`
	PushNotifications  bool `gorm:"not null;default:true" json:"push_notifications"`

	CreatedAt time.Time `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt time.Time `gorm:"autoUpdateTime" json:"updated_at"`
}

func (UserProfile) TableName() string { return "user_profiles" }
