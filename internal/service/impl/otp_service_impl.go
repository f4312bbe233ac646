package impl

import (
	"crypto/rand"
	"fmt"
	"io"
	"math/big"
	"time"
)

type OTPConfig struct {
	Length int
	TTL    time.Duration
}

type OTPServiceImpl struct {
	cfg    OTPConfig
	random io.Reader
}

func NewOTPService(cfg OTPConfig) (*OTPServiceImpl, error) {
	if cfg.Length <= 0 {
		return nil, ErrOTPLength
	}
	return &OTPServiceImpl{cfg: cfg, random: rand.Reader}, nil
}

// Generate draws each digit uniformly from 0-9; leading zeros are kept.
func (s *OTPServiceImpl) Generate(now time.Time) (string, time.Time, error) {
	digits := make([]byte, s.cfg.Length)
	for i := range digits {
		n, err := rand.Int(s.random, big.NewInt(10))
		if err != nil {
			return "", time.Time{}, fmt.Errorf("generate otp digit: %w", err)
		}
		digits[i] = byte('0' + n.Int64())
	}
	return string(digits), now.Add(s.cfg.TTL), nil
}
