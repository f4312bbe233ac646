package domain

import "time"

// User is one registered account. OTP and OTPExpiry are set together while a
// verification code is outstanding and cleared together once the email is verified.
type User struct {
	ID           UserID     `gorm:"primaryKey;autoIncrement" db:"id" json:"user_id"`
	Email        string     `gorm:"type:varchar(255);not null;uniqueIndex:ux_users_email" db:"email" json:"email"`
	PasswordHash string     `gorm:"column:password_hash;type:text;not null" db:"password_hash" json:"-"`
	IsVerified   bool       `gorm:"column:is_verified;not null;default:false" db:"is_verified" json:"is_verified"`
	OTP          *string    `gorm:"column:otp;type:varchar(16)" db:"otp" json:"-"`
	OTPExpiry    *time.Time `gorm:"column:otp_expiry" db:"otp_expiry" json:"-"`
	CreatedAt    time.Time  `gorm:"not null" db:"created_at" json:"created_at"`
	UpdatedAt    time.Time  `gorm:"not null" db:"updated_at" json:"updated_at"`
}

func (User) TableName() string { return "users" }

// OTPExpired reports whether the outstanding code is unusable at now. A missing
// expiry counts as expired.
func (u *User) OTPExpired(now time.Time) bool {
	if u.OTPExpiry == nil {
		return true
	}
	return now.After(*u.OTPExpiry)
}
