package auth

import (
	"github.com/pquerna/otp"
	"github.com/pquerna/otp/totp"
)

// ValidateTOTP checks a six digit code against the user's enrolled secret.
// An empty secret never validates.
func ValidateTOTP(code, secret string) bool {
	if secret == "" {
		return false
	}

	return totp.Validate(code, secret)
}

// GenerateTOTPKey enrolls a new time based one time password secret for the
// given account. The returned key carries the otpauth URL for QR rendering
// and the secret to persist.
func GenerateTOTPKey(issuer, accountName string) (*otp.Key, error) {
	return totp.Generate(totp.GenerateOpts{
		Issuer:      issuer,
		AccountName: accountName,
	})
}
