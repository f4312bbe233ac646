package service

import (
	"context"
	"time"
)

type EmailService interface {
	SendOTP(ctx context.Context, to, code string, validity time.Duration) error
}
