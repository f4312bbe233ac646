package dto

type RegisterRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type VerifyOTPRequest struct {
	Email string `json:"email"`
	OTP   string `json:"otp"`
}

type ResendOTPRequest struct {
	Email string `json:"email"`
}

// MessageResponse is the acknowledgement body for flows that issue no token.
type MessageResponse struct {
	Message string `json:"message"`
}
