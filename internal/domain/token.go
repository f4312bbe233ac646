package domain

import "time"

type TokenType string

const (
	TokenAccess  TokenType = "access"
	TokenRefresh TokenType = "refresh"
)

// TokenClaims is the decoded identity carried by a session token.
type TokenClaims struct {
	UserID    UserID
	Email     string
	Type      TokenType
	ID        string
	IssuedAt  time.Time
	ExpiresAt time.Time
}
