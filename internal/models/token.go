package models

import "time"

// RefreshTokenData is the server-side record behind an opaque refresh token.
// The token itself is the JTI and travels only in the refresh cookie.
type RefreshTokenData struct {
	JTI       string    `json:"jti"`
	UserID    string    `json:"user_id"`
	FamilyID  string    `json:"family_id"`
	CreatedAt time.Time `json:"created_at"`
	ExpiresAt time.Time `json:"expires_at"`
	Revoked   bool      `json:"revoked"`
}
