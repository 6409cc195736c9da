package security

import (
	"fmt"
	"strings"
	"time"

	"github.com/pquerna/otp"
	"github.com/pquerna/otp/totp"
)

const totpPeriod = 30

// TOTPEnrollment carries the secret and the provisioning URI shown to the user once.
type TOTPEnrollment struct {
	Secret          string
	ProvisioningURI string
}

// ErrMissingSecret is returned when secret is empty.
var ErrMissingSecret = fmt.Errorf("totp secret is required")

func totpDigits(length int) otp.Digits {
	if length == 8 {
		return otp.DigitsEight
	}
	return otp.DigitsSix
}

// NewTOTPEnrollment generates a fresh authenticator-app secret for the account.
func NewTOTPEnrollment(issuer, account string, codeLength int) (*TOTPEnrollment, error) {
	if strings.TrimSpace(account) == "" {
		return nil, fmt.Errorf("account is required")
	}
	key, err := totp.Generate(totp.GenerateOpts{
		Issuer:      issuer,
		AccountName: account,
		Period:      totpPeriod,
		Digits:      totpDigits(codeLength),
		Algorithm:   otp.AlgorithmSHA1,
	})
	if err != nil {
		return nil, fmt.Errorf("generate totp secret: %w", err)
	}
	return &TOTPEnrollment{Secret: key.Secret(), ProvisioningURI: key.URL()}, nil
}

// ValidateTOTP checks the passcode against the secret at the supplied moment, allowing one step of skew.
func ValidateTOTP(secret, passcode string, at time.Time, codeLength int) (bool, error) {
	if secret == "" {
		return false, ErrMissingSecret
	}
	return totp.ValidateCustom(passcode, secret, at.UTC(), totp.ValidateOpts{
		Period:    totpPeriod,
		Skew:      1,
		Digits:    totpDigits(codeLength),
		Algorithm: otp.AlgorithmSHA1,
	})
}

// GenerateTOTP returns the passcode an authenticator app would show at the supplied moment.
func GenerateTOTP(secret string, at time.Time, codeLength int) (string, error) {
	if secret == "" {
		return "", ErrMissingSecret
	}
	return totp.GenerateCodeCustom(secret, at.UTC(), totp.ValidateOpts{
		Period:    totpPeriod,
		Digits:    totpDigits(codeLength),
		Algorithm: otp.AlgorithmSHA1,
	})
}
