// Package totp wraps the pquerna/otp primitives for time-based codes and
// manages the single-use backup codes that accompany an enrollment.
package totp

import (
	"crypto/rand"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/pquerna/otp"
	"github.com/pquerna/otp/totp"
	"golang.org/x/crypto/bcrypt"
)

const (
	// NumBackupCodes is how many codes a (re)generation mints.
	NumBackupCodes = 10

	backupCodeGroup = 4 // XXXX-XXXX
	period          = 30
	skewSteps       = 1 // accept one time step either side
)

// Charset for backup codes; easily confused characters are excluded.
const backupCharset = "ABCDEFGHJKLMNPQRSTUVWXYZ23456789"

// GenerateSecret issues a fresh shared secret for an account. The returned
// key carries the base32 secret and the otpauth:// provisioning URI.
func GenerateSecret(issuer, accountName string) (*otp.Key, error) {
	key, err := totp.Generate(totp.GenerateOpts{
		Issuer:      issuer,
		AccountName: accountName,
		Period:      period,
		SecretSize:  20,
		Digits:      otp.DigitsSix,
		Algorithm:   otp.AlgorithmSHA1,
	})
	if err != nil {
		return nil, fmt.Errorf("generate totp key: %w", err)
	}
	return key, nil
}

// ValidateCode checks a 6-digit live code against the base32 secret,
// tolerating one period of clock skew either side.
func ValidateCode(secret, code string) bool {
	valid, err := totp.ValidateCustom(
		strings.TrimSpace(code),
		strings.TrimSpace(secret),
		time.Now().UTC(),
		totp.ValidateOpts{
			Period:    period,
			Skew:      skewSteps,
			Digits:    otp.DigitsSix,
			Algorithm: otp.AlgorithmSHA1,
		},
	)
	return err == nil && valid
}

// GenerateBackupCodes mints a fresh set of formatted single-use codes.
// The plaintext slice is shown to the user exactly once; only the bcrypt
// digests are stored.
func GenerateBackupCodes() (plaintext []string, hashed []string, err error) {
	plaintext = make([]string, NumBackupCodes)
	hashed = make([]string, NumBackupCodes)
	seen := make(map[string]bool, NumBackupCodes)

	for i := 0; i < NumBackupCodes; i++ {
		var code string
		for {
			code, err = randomCode()
			if err != nil {
				return nil, nil, err
			}
			if !seen[code] {
				seen[code] = true
				break
			}
		}
		plaintext[i] = code[:backupCodeGroup] + "-" + code[backupCodeGroup:]

		digest, hashErr := bcrypt.GenerateFromPassword([]byte(code), bcrypt.DefaultCost)
		if hashErr != nil {
			return nil, nil, fmt.Errorf("hash backup code: %w", hashErr)
		}
		hashed[i] = string(digest)
	}
	return plaintext, hashed, nil
}

// VerifyBackupCode checks a provided code against the stored digests,
// tolerant of case and separator formatting. It returns the index of the
// matched digest so the caller can consume it; verification alone does not
// invalidate the code.
func VerifyBackupCode(hashedCodes []string, provided string) (bool, int) {
	normalized := []byte(NormalizeBackupCode(provided))
	for i, digest := range hashedCodes {
		err := bcrypt.CompareHashAndPassword([]byte(digest), normalized)
		if err == nil {
			return true, i
		}
		if !errors.Is(err, bcrypt.ErrMismatchedHashAndPassword) {
			// Malformed stored digest; skip it rather than abort the scan.
			continue
		}
	}
	return false, -1
}

// NormalizeBackupCode strips separators and uppercases, so "abcd-efgh",
// "ABCD EFGH" and "abcdefgh" all denote the same code.
func NormalizeBackupCode(code string) string {
	replacer := strings.NewReplacer("-", "", " ", "")
	return strings.ToUpper(replacer.Replace(strings.TrimSpace(code)))
}

func randomCode() (string, error) {
	raw := make([]byte, backupCodeGroup*2)
	if _, err := rand.Read(raw); err != nil {
		return "", fmt.Errorf("read random bytes for backup code: %w", err)
	}
	for i := range raw {
		raw[i] = backupCharset[int(raw[i])%len(backupCharset)]
	}
	return string(raw), nil
}
