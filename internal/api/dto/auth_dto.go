package dto

import "time"

// RegisterRequest payload for new users. Secret defaults to the national id.
type RegisterRequest struct {
	FullName   string  `json:"fullName"`
	NationalID string  `json:"nationalId"`
	Role       string  `json:"role"`
	BirthDate  string  `json:"birthDate"`
	Secret     *string `json:"secret,omitempty"`
}

// RegisterResponse is returned after registration.
type RegisterResponse struct {
	UserID     string `json:"userId"`
	Identifier string `json:"identifier"`
}

// LoginRequest carries either identifier or nationalId and role, plus secret.
type LoginRequest struct {
	Identifier string `json:"identifier"`
	NationalID string `json:"nationalId"`
	Role       string `json:"role"`
	Secret     string `json:"secret"`
}

// LoginResponse is returned after a successful login.
type LoginResponse struct {
	UserID     string    `json:"userId"`
	Token      string    `json:"token"`
	ExpiresAt  time.Time `json:"expiresAt"`
	Role       string    `json:"role"`
	FullName   string    `json:"fullName"`
	Identifier string    `json:"identifier"`
}

// MeResponse describes the authenticated user.
type MeResponse struct {
	UserID     string `json:"userId"`
	Role       string `json:"role"`
	FullName   string `json:"fullName"`
	Identifier string `json:"identifier"`
}

// VerifyUserRequest starts a password reset.
type VerifyUserRequest struct {
	Identifier string `json:"identifier"`
	BirthDate  string `json:"birthDate"`
}

// VerifyUserResponse hands out a single-use reset token.
type VerifyUserResponse struct {
	UserID     string    `json:"userId"`
	ResetToken string    `json:"resetToken"`
	ExpiresAt  time.Time `json:"expiresAt"`
}

// ResetPasswordRequest redeems a reset token.
type ResetPasswordRequest struct {
	ResetToken string `json:"resetToken"`
	NewSecret  string `json:"newSecret"`
}

// ChangePasswordRequest payload for authenticated secret changes.
type ChangePasswordRequest struct {
	CurrentSecret string `json:"currentSecret"`
	NewSecret     string `json:"newSecret"`
}
