package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"tablevault/internal/config"
	"tablevault/internal/observability/logging"
	"tablevault/internal/observability/metrics"
	impl "tablevault/internal/service/impl"
	"tablevault/internal/store"
	"tablevault/internal/store/redisstore"
	httpx "tablevault/internal/transport/http"
	"tablevault/pkg/db"
)

const serviceName = "tablevault"

func main() {
	cfg, cfgErr := config.Load()

	logger := logging.NewLogger(logging.Config{
		ServiceName: serviceName,
		Environment: cfg.Environment,
		Level:       cfg.LogLevel,
	})
	slog.SetDefault(logger)

	if cfgErr != nil {
		logger.Error("invalid configuration", "error", cfgErr)
		os.Exit(1)
	}
	if err := run(cfg, logger); err != nil {
		logger.Error("service stopped", "error", err)
		os.Exit(1)
	}
}

func run(cfg config.Config, logger *slog.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	logger.Info("starting service", "addr", cfg.Addr, "blob_backend", cfg.BlobBackend)
	metrics.MustRegister(serviceName)

	// 1) DB
	gdb, err := db.OpenGorm(db.Config{
		DSN:             cfg.DatabaseURL,
		LogSQL:          cfg.LogSQL,
		DisableFK:       true,
		MaxOpenConns:    20,
		MaxIdleConns:    5,
		ConnMaxLifetime: 30 * time.Minute,
	})
	if err != nil {
		return err
	}
	if err := store.Migrate(ctx, gdb); err != nil {
		return err
	}
	st := store.New(gdb)

	// 2) Blobs
	var blobs store.BlobStore = st.Blobs()
	if cfg.BlobBackend == config.BlobBackendS3 {
		s3, err := store.NewS3BlobStore(ctx, store.S3Config{
			Endpoint:  cfg.S3Endpoint,
			Region:    cfg.S3Region,
			Bucket:    cfg.S3Bucket,
			AccessKey: cfg.S3AccessKey,
			SecretKey: cfg.S3SecretKey,
		})
		if err != nil {
			return err
		}
		blobs = s3
	}

	// 3) Services
	pw := impl.NewPasswordServiceArgon2id()
	ts, err := impl.NewTokenServiceHMAC(impl.TokenConfig{
		Issuer:     cfg.Issuer,
		Algorithm:  cfg.Algorithm,
		AccessTTL:  cfg.AccessTTL,
		RefreshTTL: cfg.RefreshTTL,
		SigningKey: []byte(cfg.SecretKey),
	})
	if err != nil {
		return err
	}
	otp, err := impl.NewOTPService(impl.OTPConfig{Length: cfg.OTPLength, TTL: cfg.OTPTTL})
	if err != nil {
		return err
	}
	email := impl.NewEmailService(impl.EmailConfig{
		APIKey:      cfg.BrevoAPIKey,
		SenderEmail: cfg.SenderEmail,
		SenderName:  cfg.SenderName,
	})
	if cfg.BrevoAPIKey == "" {
		logger.Warn("BREV_API_KEY not set, OTP codes will only be logged")
	}

	as := impl.NewAuthServiceImpl(st, pw, ts, otp, email, blobs)

	// optional Redis features
	if cfg.RedisURL != "" {
		rdb, err := redisstore.Open(ctx, cfg.RedisURL)
		if err != nil {
			return err
		}
		defer func() { _ = rdb.Close() }()
		as.Ledger = redisstore.NewRefreshLedger(rdb)
		if cfg.OTPResendWindow > 0 {
			as.Throttle = redisstore.NewResendThrottle(rdb, cfg.OTPResendWindow)
		}
		logger.Info("redis enabled", "refresh_ledger", true, "resend_window", cfg.OTPResendWindow)
	}

	fs := impl.NewFileServiceImpl(st, blobs, cfg.MaxUploadBytes)
	an := impl.NewAnalyticsServiceImpl(st, blobs)

	// 4) HTTP router
	handler := httpx.NewRouter(httpx.Services{
		Auth:      as,
		Tokens:    ts,
		Files:     fs,
		Analytics: an,
	}, httpx.RouterConfig{
		CORSOrigins:        cfg.CORSOrigins,
		RateLimitPerMinute: cfg.RateLimitPerMinute,
		TrustProxy:         cfg.TrustProxy,
		MaxUploadBytes:     cfg.MaxUploadBytes,
		Ready: func(ctx context.Context) error {
			return db.Ping(ctx, gdb)
		},
	})

	srv := &http.Server{
		Addr:              cfg.Addr,
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("tablevault listening", "addr", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	logger.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return err
	}
	return <-errCh
}
