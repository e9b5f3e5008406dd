package auth

import (
	"github.com/akshaykankal/facto/internal/infrastructure/repository"
)

type SignupRequest struct {
	Username       string `json:"username" validate:"required,min=3,max=64"`
	Password       string `json:"password" validate:"required,min=8,max=72"`
	PortalUsername string `json:"portalUsername" validate:"required,max=255"`
	PortalPassword string `json:"portalPassword" validate:"required"`
}

type LoginRequest struct {
	Username string `json:"username" validate:"required"`
	Password string `json:"password" validate:"required"`
}

type UserSummary struct {
	ID          uint64                  `json:"id"`
	Username    string                  `json:"username"`
	Preferences *repository.Preferences `json:"preferences,omitempty"`
}

type AuthResponse struct {
	Token string      `json:"token"`
	User  UserSummary `json:"user"`
}
