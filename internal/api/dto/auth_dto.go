package dto

import (
	"time"

	"github.com/staylink/verification-service/internal/domain"
)

// UserRegisterRequest payload for new partners.
type UserRegisterRequest struct {
	Name     string `json:"name" validate:"required,max=120"`
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required,min=8,max=72"`
}

// LoginRequest payload for partner and operator login.
type LoginRequest struct {
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required"`
}

// AuthResponse standard response for auth endpoints.
type AuthResponse struct {
	Token     string    `json:"token"`
	ExpiresAt time.Time `json:"expires_at"`
}

// AccountResponse identifies the logged-in account.
type AccountResponse struct {
	ID    string `json:"id"`
	Name  string `json:"name"`
	Email string `json:"email"`
	Role  string `json:"role,omitempty"`
}

// UserAccount renders a partner account.
func UserAccount(user *domain.User) AccountResponse {
	return AccountResponse{ID: user.ID, Name: user.Name, Email: user.Email}
}

// OperatorAccount renders an operator account.
func OperatorAccount(operator *domain.Operator) AccountResponse {
	return AccountResponse{ID: operator.ID, Name: operator.Name, Email: operator.Email, Role: string(operator.Role)}
}
