package auth

import "segportal/internal/domain/user"

type LoginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

type LoginResponse struct {
	Token     string `json:"token"`
	Username  string `json:"username"`
	IsNewUser bool   `json:"is_new_user"`
}

type UserResponse struct {
	Authenticated bool             `json:"authenticated"`
	User          *user.PublicUser `json:"user,omitempty"`
}
