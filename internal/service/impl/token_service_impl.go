package impl

import (
	"context"
	"fmt"
	"math"
	"strings"
	"time"

	"tablevault/internal/domain"
	"tablevault/internal/observability/metrics"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

// ====== Config ======

type TokenConfig struct {
	Issuer     string        // optional; checked on verify when set
	Algorithm  string        // HS256, HS384 or HS512
	AccessTTL  time.Duration // e.g. 15 * time.Minute
	RefreshTTL time.Duration // e.g. 4 * 24h
	SigningKey []byte
}

// ====== Service ======

type TokenServiceImpl struct {
	cfg    TokenConfig
	method *jwt.SigningMethodHMAC
	now    func() time.Time
}

func NewTokenServiceHMAC(cfg TokenConfig) (*TokenServiceImpl, error) {
	if len(cfg.SigningKey) == 0 {
		return nil, ErrNoSigningKey
	}
	if cfg.Algorithm == "" {
		cfg.Algorithm = jwt.SigningMethodHS256.Alg()
	}
	method, ok := jwt.GetSigningMethod(cfg.Algorithm).(*jwt.SigningMethodHMAC)
	if !ok {
		return nil, fmt.Errorf("unsupported signing algorithm %q", cfg.Algorithm)
	}
	return &TokenServiceImpl{cfg: cfg, method: method, now: time.Now}, nil
}

func (t *TokenServiceImpl) IssueAccess(ctx context.Context, userID domain.UserID, email string) (string, error) {
	return t.issue(domain.TokenAccess, userID, email, t.cfg.AccessTTL)
}

func (t *TokenServiceImpl) IssueRefresh(ctx context.Context, userID domain.UserID, email string) (string, error) {
	return t.issue(domain.TokenRefresh, userID, email, t.cfg.RefreshTTL)
}

func (t *TokenServiceImpl) issue(typ domain.TokenType, userID domain.UserID, email string, ttl time.Duration) (string, error) {
	result := "success"
	defer func() {
		metrics.TokensIssuedTotal.WithLabelValues(string(typ), result).Inc()
	}()

	now := t.now().UTC()
	claims := jwt.MapClaims{
		"user_id": userID,
		"email":   email,
		"typ":     string(typ),
		"jti":     uuid.NewString(),
		"iat":     now.Unix(),
		"exp":     now.Add(ttl).Unix(),
	}
	if t.cfg.Issuer != "" {
		claims["iss"] = t.cfg.Issuer
	}
	signed, err := jwt.NewWithClaims(t.method, claims).SignedString(t.cfg.SigningKey)
	if err != nil {
		result = "failure"
		return "", fmt.Errorf("sign %s token: %w", typ, err)
	}
	return signed, nil
}

// Verify checks signature, algorithm and expiry, then the claim shape.
func (t *TokenServiceImpl) Verify(token string) (*domain.TokenClaims, error) {
	opts := []jwt.ParserOption{
		jwt.WithValidMethods([]string{t.method.Alg()}),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(t.now),
	}
	if t.cfg.Issuer != "" {
		opts = append(opts, jwt.WithIssuer(t.cfg.Issuer))
	}

	claims := jwt.MapClaims{}
	_, err := jwt.NewParser(opts...).ParseWithClaims(token, claims, func(*jwt.Token) (interface{}, error) {
		return t.cfg.SigningKey, nil
	})
	if err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrInvalidToken, err)
	}
	return claimsFromMap(claims)
}

// ====== Helpers ======

func claimsFromMap(m jwt.MapClaims) (*domain.TokenClaims, error) {
	var fields []domain.FieldError
	out := &domain.TokenClaims{}

	switch v := m["user_id"].(type) {
	case nil:
		fields = append(fields, domain.FieldError{Field: "user_id", Message: "field required"})
	case float64:
		if v <= 0 || v != math.Trunc(v) || v > math.MaxUint32 {
			fields = append(fields, domain.FieldError{Field: "user_id", Message: "value is not a valid integer"})
		} else {
			out.UserID = domain.UserID(v)
		}
	default:
		fields = append(fields, domain.FieldError{Field: "user_id", Message: "value is not a valid integer"})
	}

	switch v := m["email"].(type) {
	case nil:
		fields = append(fields, domain.FieldError{Field: "email", Message: "field required"})
	case string:
		if strings.TrimSpace(v) == "" {
			fields = append(fields, domain.FieldError{Field: "email", Message: "must not be empty"})
		}
		out.Email = v
	default:
		fields = append(fields, domain.FieldError{Field: "email", Message: "str type expected"})
	}

	switch v := m["typ"].(type) {
	case nil:
		fields = append(fields, domain.FieldError{Field: "typ", Message: "field required"})
	case string:
		if typ := domain.TokenType(v); typ == domain.TokenAccess || typ == domain.TokenRefresh {
			out.Type = typ
		} else {
			fields = append(fields, domain.FieldError{Field: "typ", Message: "unexpected value"})
		}
	default:
		fields = append(fields, domain.FieldError{Field: "typ", Message: "str type expected"})
	}

	if len(fields) > 0 {
		return nil, &domain.ValidationError{Fields: fields}
	}

	if jti, ok := m["jti"].(string); ok {
		out.ID = jti
	}
	if iat, err := m.GetIssuedAt(); err == nil && iat != nil {
		out.IssuedAt = iat.Time
	}
	if exp, err := m.GetExpirationTime(); err == nil && exp != nil {
		out.ExpiresAt = exp.Time
	}
	return out, nil
}
