package domain

import (
	"errors"
	"strings"
)

var (
	ErrInvalidRequest = errors.New("invalid request")
	ErrInternal       = errors.New("internal error")
)

// Account lifecycle
var (
	ErrAlreadyExists      = errors.New("email already registered")
	ErrUserNotFound       = errors.New("user not found")
	ErrAlreadyVerified    = errors.New("email already verified")
	ErrOTPExpired         = errors.New("otp has expired")
	ErrInvalidOTP         = errors.New("invalid otp")
	ErrOTPResendThrottled = errors.New("otp resend throttled")
	ErrInvalidCredentials = errors.New("invalid email or password")
	ErrEmailNotVerified   = errors.New("email not verified")
)

// Tokens
var (
	ErrInvalidToken        = errors.New("invalid token")
	ErrInvalidRefreshToken = errors.New("invalid refresh token")
)

// Files and tables
var (
	ErrFileNotFound    = errors.New("file not found")
	ErrTableNotFound   = errors.New("csv table not found")
	ErrTableExists     = errors.New("csv table already exists")
	ErrInvalidCSV      = errors.New("invalid csv")
	ErrPayloadTooLarge = errors.New("payload too large")
)

type FieldError struct {
	Field   string `json:"field"`
	Message string `json:"msg"`
}

// ValidationError reports a decoded token payload that does not have the expected claim shape.
type ValidationError struct {
	Fields []FieldError
}

func (e *ValidationError) Error() string {
	parts := make([]string, 0, len(e.Fields))
	for _, f := range e.Fields {
		parts = append(parts, f.Field+": "+f.Message)
	}
	return "validation error: " + strings.Join(parts, "; ")
}

// NotCSVError is returned when CSV analytics are requested for a file of another type.
type NotCSVError struct {
	Filename string
}

func (e *NotCSVError) Error() string { return "file is not a csv: " + e.Filename }
