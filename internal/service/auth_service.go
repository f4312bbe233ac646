package service

import (
	"context"

	"tablevault/internal/domain"
	"tablevault/internal/dto"
)

type AuthService interface {
	Register(ctx context.Context, r dto.RegisterRequest) (*dto.MessageResponse, error)
	VerifyOTP(ctx context.Context, r dto.VerifyOTPRequest) (*dto.MessageResponse, error)
	ResendOTP(ctx context.Context, r dto.ResendOTPRequest) (*dto.MessageResponse, error)
	Login(ctx context.Context, r dto.LoginRequest) (*dto.TokenResponse, error)
	Refresh(ctx context.Context, r dto.RefreshRequest) (*dto.TokenResponse, error)
	Me(ctx context.Context, userID domain.UserID) (*dto.MeResponse, error)
	DeleteAccount(ctx context.Context, userID domain.UserID) (*dto.DeleteAccountResponse, error)
}
