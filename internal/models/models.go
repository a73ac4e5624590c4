package models

import (
	"time"

	"github.com/oklog/ulid/v2"
	"gorm.io/gorm"

	"github.com/givebridge/givebridge/internal/auth"
)

// BaseModel provides common fields and auto-generated ULID for all models
type BaseModel struct {
	ID        string    `json:"id" gorm:"primaryKey;type:varchar(26)"`
	CreatedAt time.Time `json:"created_at" gorm:"autoCreateTime"`
}

// BeforeCreate generates a ULID for the ID field if it's empty
func (b *BaseModel) BeforeCreate(tx *gorm.DB) error {
	if b.ID == "" {
		b.ID = ulid.Make().String()
	}
	return nil
}

// User represents a platform account: an administrator, a donor or a volunteer
type User struct {
	BaseModel
	Email        string    `json:"email" gorm:"unique;not null"`
	PasswordHash string    `json:"-" gorm:"not null"`
	Name         string    `json:"name"`
	Role         string    `json:"role" gorm:"type:varchar(32);not null;default:donor"`
	UpdatedAt    time.Time `json:"updated_at" gorm:"autoUpdateTime"`
}

// RoleValue returns the parsed role of the user
func (u *User) RoleValue() auth.Role {
	return auth.ParseRole(u.Role)
}

// AuthSession is the server-side record of an issued session token.
// The ID equals the token's jti claim.
type AuthSession struct {
	ID        string     `json:"id" gorm:"primaryKey;type:varchar(26)"`
	UserID    string     `json:"user_id" gorm:"type:varchar(26);not null;index"`
	CreatedAt time.Time  `json:"created_at" gorm:"autoCreateTime"`
	ExpiresAt time.Time  `json:"expires_at" gorm:"not null;index"`
	RevokedAt *time.Time `json:"revoked_at"`
	UserAgent string     `json:"user_agent"`
	ClientIP  string     `json:"client_ip"`

	User *User `json:"-" gorm:"foreignKey:UserID;references:ID;constraint:OnDelete:CASCADE"`
}

// Active reports whether the session is neither revoked nor expired at now
func (s *AuthSession) Active(now time.Time) bool {
	return s.RevokedAt == nil && now.Before(s.ExpiresAt)
}

// AutoMigrate runs database migrations for all models
func AutoMigrate(db *gorm.DB) error {
	models := []interface{}{
		&User{}, &AuthSession{},
	}

	return db.AutoMigrate(models...)
}

// FindByID safely finds a record by string ID
func FindByID[T any](db *gorm.DB, id string, model *T) error {
	return db.Where("id = ?", id).First(model).Error
}
