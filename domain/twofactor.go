package domain

import "time"

// TwoFactorMethod names the second-factor mechanism of an enrollment.
// TOTP is the only method currently issued; the field keeps stored
// enrollments forward-compatible.
type TwoFactorMethod string

const TwoFactorMethodTOTP TwoFactorMethod = "TOTP"

// TwoFactorEnrollment is the persisted 2FA state of a user, one record per
// user. The shared secret stays in the record until the enrollment is
// verified; re-running setup before verification replaces it.
type TwoFactorEnrollment struct {
	UserID string          `bson:"_id" json:"user_id"`
	Method TwoFactorMethod `bson:"method" json:"method"`
	Secret string          `bson:"secret" json:"-"`

	// BackupCodes holds the bcrypt digests of the single-use recovery
	// codes. Plaintext codes are shown exactly once at generation.
	BackupCodes []string `bson:"backup_codes" json:"-"`

	IsEnabled      bool       `bson:"is_enabled" json:"is_enabled"`
	IsVerified     bool       `bson:"is_verified" json:"is_verified"`
	LastVerifiedAt *time.Time `bson:"last_verified_at,omitempty" json:"last_verified_at,omitempty"`
	CreatedAt      time.Time  `bson:"created_at" json:"created_at"`
	UpdatedAt      time.Time  `bson:"updated_at" json:"updated_at"`
}
