package service

type PasswordService interface {
	Hash(password string) (string, error)
	// Verify reports whether password matches encoded. Malformed hashes never match.
	Verify(password, encoded string) bool
}
