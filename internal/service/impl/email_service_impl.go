package impl

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"html/template"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"tablevault/internal/observability/metrics"
	"tablevault/internal/observability/middleware"
	"tablevault/internal/service"

	brevo "github.com/getbrevo/brevo-go/lib"
)

const otpSubject = "Email Verification - OTP Code"

var otpTemplate = template.Must(template.New("otp").Parse(`<!DOCTYPE html>
<html>
<head>
<style>
body { font-family: Arial, sans-serif; background-color: #f4f4f4; margin: 0; padding: 20px; }
.container { max-width: 600px; margin: 0 auto; background-color: white; padding: 30px; border-radius: 10px; }
.otp-box { background-color: #f8f9fa; border: 2px solid #007bff; border-radius: 8px; padding: 20px; text-align: center; margin: 20px 0; }
.otp-code { font-size: 32px; font-weight: bold; color: #007bff; letter-spacing: 5px; margin: 10px 0; }
.footer { margin-top: 30px; text-align: center; color: #666; font-size: 12px; }
</style>
</head>
<body>
<div class="container">
<h1>Email Verification</h1>
<p>Please verify your email address to complete registration</p>
<div class="otp-box">
<h2>Your Verification Code</h2>
<div class="otp-code">{{.Code}}</div>
<p>This code will expire in {{.Minutes}} minutes</p>
</div>
<p>Enter this code in the verification form to activate your account.</p>
<p>If you didn't request this verification, please ignore this email.</p>
<div class="footer"><p>This is an automated message, please do not reply.</p></div>
</div>
</body>
</html>`))

func renderOTPEmail(code string, validity time.Duration) (string, error) {
	var buf bytes.Buffer
	err := otpTemplate.Execute(&buf, struct {
		Code    string
		Minutes int
	}{Code: code, Minutes: int(validity.Round(time.Minute).Minutes())})
	if err != nil {
		return "", fmt.Errorf("render otp email: %w", err)
	}
	return buf.String(), nil
}

type EmailConfig struct {
	APIKey      string
	SenderEmail string
	SenderName  string
	BasePath    string // defaults to the SDK's production API root
}

// BrevoEmailService sends transactional mail through the Brevo SDK.
type BrevoEmailService struct {
	cfg    EmailConfig
	client *brevo.APIClient
}

// NewEmailService returns a Brevo sender, or a log-only sender when no API key
// is configured.
func NewEmailService(cfg EmailConfig) service.EmailService {
	if strings.TrimSpace(cfg.APIKey) == "" {
		return LogEmailService{}
	}
	return NewBrevoEmailService(cfg, &http.Client{Timeout: 10 * time.Second})
}

func NewBrevoEmailService(cfg EmailConfig, hc *http.Client) *BrevoEmailService {
	if hc == nil {
		hc = &http.Client{Timeout: 10 * time.Second}
	}
	bc := brevo.NewConfiguration()
	bc.AddDefaultHeader("api-key", cfg.APIKey)
	bc.HTTPClient = hc
	if cfg.BasePath != "" {
		bc.BasePath = strings.TrimRight(cfg.BasePath, "/")
	}
	return &BrevoEmailService{cfg: cfg, client: brevo.NewAPIClient(bc)}
}

func (s *BrevoEmailService) SendOTP(ctx context.Context, to, code string, validity time.Duration) (err error) {
	result := "success"
	defer func() {
		if err != nil {
			result = "failure"
		}
		metrics.EmailsSentTotal.WithLabelValues("otp", result).Inc()
	}()

	html, err := renderOTPEmail(code, validity)
	if err != nil {
		return err
	}
	msg := brevo.SendSmtpEmail{
		Sender:      &brevo.SendSmtpEmailSender{Email: s.cfg.SenderEmail, Name: s.cfg.SenderName},
		To:          []brevo.SendSmtpEmailTo{{Email: to, Name: "User"}},
		Subject:     otpSubject,
		HtmlContent: html,
	}

	res, _, err := s.client.TransactionalEmailsApi.SendTransacEmail(ctx, msg)
	if err != nil {
		var apiErr brevo.GenericSwaggerError
		if errors.As(err, &apiErr) {
			return fmt.Errorf("brevo send failed: %s: %s", apiErr.Error(), strings.TrimSpace(string(apiErr.Body())))
		}
		return fmt.Errorf("brevo send: %w", err)
	}

	middleware.Logger(ctx).Info("otp email sent", "to", to, "message_id", res.MessageId)
	return nil
}

// LogEmailService writes the code to the log instead of sending it. Meant for
// local development without a provider key.
type LogEmailService struct{}

func (LogEmailService) SendOTP(ctx context.Context, to, code string, validity time.Duration) error {
	metrics.EmailsSentTotal.WithLabelValues("otp", "logged").Inc()
	middleware.Logger(ctx).Info("email provider not configured, otp logged",
		slog.String("to", to),
		slog.String("otp", code),
		slog.Duration("validity", validity),
	)
	return nil
}
