package impl

import "errors"

var (
	ErrMalformedHash = errors.New("malformed password hash")
	ErrOTPLength     = errors.New("otp length must be positive")
	ErrNoSigningKey  = errors.New("empty signing key")
)
