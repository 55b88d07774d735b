package users

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

type User struct {
	ID        string    `gorm:"column:id;primaryKey;type:uuid" json:"id"`
	Username    string    `gorm:"column:username;type:varchar(50);not null;uniqueIndex" json:"username"`
	Email       *string   `gorm:"column:email;type:varchar(120);uniqueIndex" json:"email,omitempty"`
	PhoneNumber string    `gorm:"column:phone_number;type:varchar(15);not null" json:"phone_number"`
	Password    string    `gorm:"column:password;type:varchar(255);not null" json:"-"` // bcrypt hash
	IsAdmin     bool      `gorm:"column:is_admin;not null;default:false" json:"is_admin"`
	CreatedAt   time.Time `gorm:"column:created_at;not null" json:"created_at"`
	UpdatedAt   time.Time `gorm:"column:updated_at;not null" json:"updated_at"`
}

func (User) TableName() string { return "users" }

func (u *User) BeforeCreate(tx *gorm.DB) error {
	if u.ID == "" {
		u.ID = uuid.New().String()
	}
	return nil
}

type RegisterRequest struct {
	Username    string `json:"username"`
	Email       string `json:"email"` // optional
	PhoneNumber string `json:"phone_number"`
	Password    string `json:"password"`
}

type LoginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}
