package service

import (
	"context"
	"time"

	"tablevault/internal/domain"
)

type TokenService interface {
	IssueAccess(ctx context.Context, userID domain.UserID, email string) (string, error)
	IssueRefresh(ctx context.Context, userID domain.UserID, email string) (string, error)
	// Verify fails with domain.ErrInvalidToken for bad signatures or expiry and
	// with *domain.ValidationError when the payload has the wrong claim shape.
	Verify(token string) (*domain.TokenClaims, error)
}

type OTPService interface {
	Generate(now time.Time) (code string, expiry time.Time, err error)
}
