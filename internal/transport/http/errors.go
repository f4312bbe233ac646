package http

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"tablevault/internal/domain"
	"tablevault/internal/observability/middleware"
)

type errorBody struct {
	Detail any `json:"detail"`
}

type errorKind struct {
	err    error
	status int
	detail string // empty uses err.Error()
}

// order matters only where one sentinel wraps another
var errorKinds = []errorKind{
	{domain.ErrInvalidRequest, http.StatusBadRequest, ""},
	{domain.ErrAlreadyExists, http.StatusBadRequest, "Email already registered"},
	{domain.ErrUserNotFound, http.StatusNotFound, "User not found"},
	{domain.ErrAlreadyVerified, http.StatusBadRequest, "Email already verified"},
	{domain.ErrOTPExpired, http.StatusBadRequest, "OTP has expired"},
	{domain.ErrInvalidOTP, http.StatusBadRequest, "Invalid OTP"},
	{domain.ErrOTPResendThrottled, http.StatusTooManyRequests, ""},
	{domain.ErrInvalidCredentials, http.StatusUnauthorized, "Invalid email or password"},
	{domain.ErrEmailNotVerified, http.StatusUnauthorized, "Email not verified"},
	{domain.ErrInvalidRefreshToken, http.StatusUnauthorized, "Invalid refresh token"},
	{domain.ErrInvalidToken, http.StatusUnauthorized, "Invalid token"},
	{domain.ErrFileNotFound, http.StatusNotFound, "File not found"},
	{domain.ErrTableNotFound, http.StatusNotFound, "CSV file not found"},
	{domain.ErrTableExists, http.StatusConflict, "A table with this name already exists"},
	{domain.ErrInvalidCSV, http.StatusBadRequest, ""},
	{domain.ErrPayloadTooLarge, http.StatusRequestEntityTooLarge, "File too large"},
}

// writeJSON encodes body before committing the status, so a value json cannot
// represent turns into a 500 instead of a truncated success.
func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	if body == nil {
		w.WriteHeader(status)
		return
	}
	data, err := json.Marshal(body)
	if err != nil {
		slog.Error("encode response", "status", status, "error", err)
		w.WriteHeader(http.StatusInternalServerError)
		_, _ = w.Write([]byte(`{"detail":"failed to encode response"}` + "\n"))
		return
	}
	w.WriteHeader(status)
	_, _ = w.Write(append(data, '\n'))
}

func writeDetail(w http.ResponseWriter, status int, detail any) {
	writeJSON(w, status, errorBody{Detail: detail})
}

// writeError maps err to a status code and a {"detail": ...} body. Anything
// unrecognised is a 500 carrying the raw message.
func writeError(w http.ResponseWriter, r *http.Request, err error) {
	var verr *domain.ValidationError
	if errors.As(err, &verr) {
		writeDetail(w, http.StatusUnprocessableEntity, verr.Fields)
		return
	}

	var maxErr *http.MaxBytesError
	if errors.As(err, &maxErr) {
		writeDetail(w, http.StatusRequestEntityTooLarge, "File too large")
		return
	}

	for _, k := range errorKinds {
		if errors.Is(err, k.err) {
			detail := k.detail
			if detail == "" {
				detail = err.Error()
			}
			writeDetail(w, k.status, detail)
			return
		}
	}

	middleware.Logger(r.Context()).Error("request failed", "path", r.URL.Path, "error", err)
	writeDetail(w, http.StatusInternalServerError, err.Error())
}
