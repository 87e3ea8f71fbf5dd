package auth

import "time"

// LoginRequest is the catalog login form. The catalog only asks for a name
// and an email address.
type LoginRequest struct {
	Name  string `json:"name" form:"name" binding:"required,min=1,max=100"`
	Email string `json:"email" form:"email" binding:"required,email,max=254"`
}

// TokenResponse is the workspace token returned after an API login.
type TokenResponse struct {
	Token     string `json:"token"`
	ExpiresAt int64  `json:"expires_at"`
}

// SessionResponse reports the catalog session state of a workspace.
type SessionResponse struct {
	Authenticated bool       `json:"authenticated"`
	EstablishedAt *time.Time `json:"established_at,omitempty"`
	ExpiresAt     int64      `json:"expires_at,omitempty"`
}
