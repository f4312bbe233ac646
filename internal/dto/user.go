package dto

type MeResponse struct {
	UserID     uint   `json:"user_id"`
	Email      string `json:"email"`
	IsVerified bool   `json:"is_verified"`
}

// DeleteAccountResponse reports how many records of each kind were removed.
type DeleteAccountResponse struct {
	Message string           `json:"message"`
	Deleted map[string]int64 `json:"deleted"`
}
