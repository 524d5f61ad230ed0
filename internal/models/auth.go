package models

// RegisterRequest is the registration payload.
type RegisterRequest struct {
	Username    string   `json:"username" validate:"required,min=3,max=50"`
	Email       string   `json:"email" validate:"required,email,max=254"`
	Password    string   `json:"password" validate:"required,max=128"`
	FirstName   string   `json:"firstName" validate:"max=100"`
	LastName    string   `json:"lastName" validate:"max=100"`
	PhoneNumber string   `json:"phoneNumber" validate:"omitempty,e164"`
	Role        UserRole `json:"role" validate:"omitempty,oneof=AGENT USER"`
}

// LoginRequest holds credentials for authenticating a user.
type LoginRequest struct {
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required"`
}

// RefreshTokenRequest exchanges a refresh token for a new token pair.
type RefreshTokenRequest struct {
	RefreshToken string `json:"refreshToken" validate:"required"`
}

// ChangePasswordRequest is the payload for a self-service password change.
type ChangePasswordRequest struct {
	CurrentPassword string `json:"currentPassword" validate:"required"`
	NewPassword     string `json:"newPassword" validate:"required,max=128"`
}

// AccountStatusRequest is the admin payload toggling account flags.
type AccountStatusRequest struct {
	Email   string `json:"email" validate:"required,email"`
	Enabled *bool  `json:"enabled" validate:"required"`
	Locked  *bool  `json:"locked" validate:"required"`
}

// AuthResponse is returned by register, login and refresh. Durations are milliseconds.
type AuthResponse struct {
	AccessToken      string   `json:"accessToken"`
	RefreshToken     string   `json:"refreshToken"`
	Username         string   `json:"username"`
	Email            string   `json:"email"`
	Role             UserRole `json:"role"`
	Message          string   `json:"message"`
	ExpiresIn        int64    `json:"expiresIn"`
	RefreshExpiresIn int64    `json:"refreshExpiresIn"`
}

// Principal is the authenticated user attached to a request.
type Principal struct {
	ID       string   `json:"id"`
	Email    string   `json:"email"`
	Username string   `json:"username"`
	Role     UserRole `json:"role"`
}

// PrincipalFromUser projects a user record into a request principal.
func PrincipalFromUser(u *User) *Principal {
	if u == nil {
		return nil
	}
	return &Principal{ID: u.ID, Email: u.Email, Username: u.Username, Role: u.Role}
}
