package user

import "time"

// User mirrors an identity from the external provider. The provider stays
// authoritative for credentials; the local hash is never returned to callers.
type User struct {
	Username     string    `gorm:"column:username;primaryKey;size:150" json:"username"`
	PasswordHash string    `gorm:"column:password_hash;not null" json:"-"`
	CreatedAt    time.Time `gorm:"column:created_at" json:"created_at"`
	LastLoginAt  time.Time `gorm:"column:last_login_at" json:"last_login_at"`
}

func (User) TableName() string { return "users" }

// PublicUser is the response-facing view of a User.
type PublicUser struct {
	Username    string    `json:"username"`
	CreatedAt   time.Time `json:"created_at"`
	LastLoginAt time.Time `json:"last_login_at"`
}

func (u *User) Public() PublicUser {
	return PublicUser{
		Username:    u.Username,
		CreatedAt:   u.CreatedAt,
		LastLoginAt: u.LastLoginAt,
	}
}
