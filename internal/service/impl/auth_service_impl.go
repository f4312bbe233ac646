package impl

import (
	"context"
	"crypto/subtle"
	"errors"
	"fmt"
	"math"
	"strings"
	"time"

	"tablevault/internal/domain"
	"tablevault/internal/dto"
	"tablevault/internal/observability/metrics"
	"tablevault/internal/observability/middleware"
	"tablevault/internal/service"
	"tablevault/internal/store"
)

const (
	msgRegistered = "User registered successfully. Please check your email for the OTP to verify your account."
	msgVerified   = "Email verified successfully. You can now login."
	msgResent     = "OTP resent successfully. Please check your email."
	msgDeleted    = "Account deleted."
)

type userStore interface {
	Create(ctx context.Context, usr *domain.User) error
	GetByEmail(ctx context.Context, email string) (*domain.User, error)
	GetByID(ctx context.Context, id domain.UserID) (*domain.User, error)
	UpdateOTP(ctx context.Context, id domain.UserID, otp string, expiry time.Time) error
	MarkVerified(ctx context.Context, id domain.UserID) error
}

// refreshLedger records redeemed refresh token ids. MarkUsed reports true
// only for the first redemption of an id.
type refreshLedger interface {
	MarkUsed(ctx context.Context, jti string, ttl time.Duration) (bool, error)
}

// accountPurger removes a user and their metadata rows, handing back the
// storage keys of blobs left behind.
type accountPurger interface {
	DeleteUserData(ctx context.Context, userID domain.UserID) (map[string]int64, []string, error)
}

// resendThrottle limits how often a code can be re-sent to one address.
type resendThrottle interface {
	Allow(ctx context.Context, email string) (bool, time.Duration, error)
}

type AuthServiceImpl struct {
	Users           userStore
	PasswordService service.PasswordService
	TService        service.TokenService
	OTPService      service.OTPService
	Email           service.EmailService
	Accounts        accountPurger
	Blobs           store.BlobStore

	// Optional; nil disables the feature.
	Ledger   refreshLedger
	Throttle resendThrottle

	now func() time.Time
}

func NewAuthServiceImpl(
	st *store.Store,
	passwordService service.PasswordService,
	tokenService service.TokenService,
	otpService service.OTPService,
	email service.EmailService,
	blobs store.BlobStore,
) *AuthServiceImpl {
	return &AuthServiceImpl{
		Users:           st.Users(),
		PasswordService: passwordService,
		TService:        tokenService,
		OTPService:      otpService,
		Email:           email,
		Accounts:        st,
		Blobs:           blobs,
		now:             time.Now,
	}
}

func (a *AuthServiceImpl) clock() time.Time {
	if a.now == nil {
		return time.Now().UTC()
	}
	return a.now().UTC()
}

func (a *AuthServiceImpl) Register(ctx context.Context, r dto.RegisterRequest) (*dto.MessageResponse, error) {
	result := "failure"
	defer func() {
		metrics.AuthRegistrationsTotal.WithLabelValues(result).Inc()
	}()

	if strings.TrimSpace(r.Email) == "" || r.Password == "" {
		return nil, domain.ErrInvalidRequest
	}

	// existence check is a shortcut; the unique index on email decides races
	if _, err := a.Users.GetByEmail(ctx, r.Email); err == nil {
		result = "exists"
		return nil, domain.ErrAlreadyExists
	} else if !errors.Is(err, store.ErrRecordNotFound) {
		return nil, fmt.Errorf("lookup user: %w", err)
	}

	now := a.clock()
	code, expiry, err := a.OTPService.Generate(now)
	if err != nil {
		return nil, err
	}
	hash, err := a.PasswordService.Hash(r.Password)
	if err != nil {
		return nil, fmt.Errorf("hash password: %w", err)
	}

	u := &domain.User{
		Email:        r.Email,
		PasswordHash: hash,
		IsVerified:   false,
		OTP:          &code,
		OTPExpiry:    &expiry,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	if err := a.Users.Create(ctx, u); err != nil {
		if errors.Is(err, store.ErrDuplicate) {
			result = "exists"
			return nil, domain.ErrAlreadyExists
		}
		return nil, fmt.Errorf("create user: %w", err)
	}

	a.sendOTP(ctx, u.Email, code, expiry.Sub(now))

	result = "success"
	middleware.Logger(ctx).Info("user registered", "user_id", u.ID)
	return &dto.MessageResponse{Message: msgRegistered}, nil
}

func (a *AuthServiceImpl) VerifyOTP(ctx context.Context, r dto.VerifyOTPRequest) (*dto.MessageResponse, error) {
	result := "failure"
	defer func() {
		metrics.OTPVerificationsTotal.WithLabelValues(result).Inc()
	}()

	if strings.TrimSpace(r.Email) == "" || strings.TrimSpace(r.OTP) == "" {
		return nil, domain.ErrInvalidRequest
	}

	u, err := a.lookupByEmail(ctx, r.Email)
	if err != nil {
		return nil, err
	}
	if u.IsVerified {
		result = "already_verified"
		return nil, domain.ErrAlreadyVerified
	}
	if u.OTPExpired(a.clock()) {
		result = "expired"
		return nil, domain.ErrOTPExpired
	}
	if u.OTP == nil || subtle.ConstantTimeCompare([]byte(*u.OTP), []byte(r.OTP)) != 1 {
		result = "invalid"
		return nil, domain.ErrInvalidOTP
	}

	if err := a.Users.MarkVerified(ctx, u.ID); err != nil {
		return nil, fmt.Errorf("mark verified: %w", err)
	}

	result = "success"
	middleware.Logger(ctx).Info("email verified", "user_id", u.ID)
	return &dto.MessageResponse{Message: msgVerified}, nil
}

func (a *AuthServiceImpl) ResendOTP(ctx context.Context, r dto.ResendOTPRequest) (*dto.MessageResponse, error) {
	if strings.TrimSpace(r.Email) == "" {
		return nil, domain.ErrInvalidRequest
	}

	u, err := a.lookupByEmail(ctx, r.Email)
	if err != nil {
		return nil, err
	}
	if u.IsVerified {
		return nil, domain.ErrAlreadyVerified
	}

	if a.Throttle != nil {
		ok, wait, err := a.Throttle.Allow(ctx, u.Email)
		if err != nil {
			return nil, fmt.Errorf("resend throttle: %w", err)
		}
		if !ok {
			return nil, fmt.Errorf("%w: retry in %d seconds", domain.ErrOTPResendThrottled, int(math.Ceil(wait.Seconds())))
		}
	}

	now := a.clock()
	code, expiry, err := a.OTPService.Generate(now)
	if err != nil {
		return nil, err
	}
	if err := a.Users.UpdateOTP(ctx, u.ID, code, expiry); err != nil {
		return nil, fmt.Errorf("update otp: %w", err)
	}

	a.sendOTP(ctx, u.Email, code, expiry.Sub(now))

	middleware.Logger(ctx).Info("otp reissued", "user_id", u.ID)
	return &dto.MessageResponse{Message: msgResent}, nil
}

func (a *AuthServiceImpl) Login(ctx context.Context, r dto.LoginRequest) (*dto.TokenResponse, error) {
	result := "failure"
	defer func() {
		metrics.AuthLoginsTotal.WithLabelValues(result).Inc()
	}()

	if strings.TrimSpace(r.Email) == "" || r.Password == "" {
		return nil, domain.ErrInvalidRequest
	}

	u, err := a.Users.GetByEmail(ctx, r.Email)
	if err != nil {
		if errors.Is(err, store.ErrRecordNotFound) {
			// same error as a wrong password so callers cannot enumerate accounts
			return nil, domain.ErrInvalidCredentials
		}
		return nil, fmt.Errorf("lookup user: %w", err)
	}
	if !u.IsVerified {
		result = "unverified"
		return nil, domain.ErrEmailNotVerified
	}
	if !a.PasswordService.Verify(r.Password, u.PasswordHash) {
		return nil, domain.ErrInvalidCredentials
	}
	if u.ID == 0 {
		return nil, fmt.Errorf("%w: user record has no id", domain.ErrInternal)
	}

	tokens, err := a.issuePair(ctx, u)
	if err != nil {
		return nil, err
	}

	result = "success"
	middleware.Logger(ctx).Info("user logged in", "user_id", u.ID)
	return tokens, nil
}

// Refresh collapses every codec failure into ErrInvalidRefreshToken.
func (a *AuthServiceImpl) Refresh(ctx context.Context, r dto.RefreshRequest) (*dto.TokenResponse, error) {
	if strings.TrimSpace(r.RefreshToken) == "" {
		return nil, domain.ErrInvalidRequest
	}

	claims, err := a.TService.Verify(r.RefreshToken)
	if err != nil || claims.Type != domain.TokenRefresh {
		return nil, domain.ErrInvalidRefreshToken
	}

	if a.Ledger != nil && claims.ID == "" {
		return nil, domain.ErrInvalidRefreshToken
	}

	u, err := a.Users.GetByID(ctx, claims.UserID)
	if err != nil {
		if errors.Is(err, store.ErrRecordNotFound) {
			return nil, domain.ErrInvalidRefreshToken
		}
		return nil, fmt.Errorf("lookup user: %w", err)
	}
	if u.ID == 0 {
		return nil, fmt.Errorf("%w: user record has no id", domain.ErrInternal)
	}

	tokens, err := a.issuePair(ctx, u)
	if err != nil {
		return nil, err
	}

	// The jti is only spent once a replacement pair exists, so a failed lookup
	// or signing step leaves the token redeemable.
	if a.Ledger != nil {
		ttl := claims.ExpiresAt.Sub(a.clock())
		first, err := a.Ledger.MarkUsed(ctx, claims.ID, ttl)
		if err != nil {
			return nil, fmt.Errorf("refresh ledger: %w", err)
		}
		if !first {
			middleware.Logger(ctx).Warn("refresh token replayed", "user_id", claims.UserID, "jti", claims.ID)
			return nil, domain.ErrInvalidRefreshToken
		}
	}
	middleware.Logger(ctx).Info("tokens refreshed", "user_id", u.ID)
	return tokens, nil
}

func (a *AuthServiceImpl) Me(ctx context.Context, userID domain.UserID) (*dto.MeResponse, error) {
	u, err := a.Users.GetByID(ctx, userID)
	if err != nil {
		if errors.Is(err, store.ErrRecordNotFound) {
			return nil, domain.ErrUserNotFound
		}
		return nil, fmt.Errorf("lookup user: %w", err)
	}
	return &dto.MeResponse{UserID: u.ID, Email: u.Email, IsVerified: u.IsVerified}, nil
}

// DeleteAccount removes the user, their files and tables. Blob removal is
// best-effort once the metadata is gone.
func (a *AuthServiceImpl) DeleteAccount(ctx context.Context, userID domain.UserID) (*dto.DeleteAccountResponse, error) {
	counts, keys, err := a.Accounts.DeleteUserData(ctx, userID)
	if err != nil {
		if errors.Is(err, store.ErrRecordNotFound) {
			return nil, domain.ErrUserNotFound
		}
		return nil, fmt.Errorf("delete account: %w", err)
	}

	log := middleware.Logger(ctx)
	if a.Blobs != nil {
		for _, key := range keys {
			if err := a.Blobs.Delete(ctx, key); err != nil {
				log.Warn("orphaned blob not removed", "storage_key", key, "error", err)
			}
		}
	}

	log.Info("account deleted", "user_id", userID, "files", counts["files"], "csv_tables", counts["csvTables"])
	return &dto.DeleteAccountResponse{Message: msgDeleted, Deleted: counts}, nil
}

func (a *AuthServiceImpl) lookupByEmail(ctx context.Context, email string) (*domain.User, error) {
	u, err := a.Users.GetByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, store.ErrRecordNotFound) {
			return nil, domain.ErrUserNotFound
		}
		return nil, fmt.Errorf("lookup user: %w", err)
	}
	return u, nil
}

func (a *AuthServiceImpl) issuePair(ctx context.Context, u *domain.User) (*dto.TokenResponse, error) {
	access, err := a.TService.IssueAccess(ctx, u.ID, u.Email)
	if err != nil {
		return nil, err
	}
	refresh, err := a.TService.IssueRefresh(ctx, u.ID, u.Email)
	if err != nil {
		return nil, err
	}
	return &dto.TokenResponse{
		AccessToken:  access,
		RefreshToken: refresh,
		TokenType:    dto.TokenTypeBearer,
	}, nil
}

// sendOTP never fails the calling flow; delivery problems are only logged.
func (a *AuthServiceImpl) sendOTP(ctx context.Context, to, code string, validity time.Duration) {
	if a.Email == nil {
		return
	}
	if err := a.Email.SendOTP(ctx, to, code, validity); err != nil {
		middleware.Logger(ctx).Warn("otp email delivery failed", "to", to, "error", err)
	}
}
