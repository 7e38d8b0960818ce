package vault

import (
	"encoding/base32"
	"strings"
	"time"

	"github.com/pquerna/otp"
	"github.com/pquerna/otp/totp"

	"trade_engine/internal/domain"
	"trade_engine/pkg/errcodes"
)

const (
	CodeStep   = 30 * time.Second
	CodeDigits = 6
)

//nolint:gochecknoglobals
var codeOpts = totp.ValidateOpts{
	Period:    uint(CodeStep / time.Second),
	Digits:    otp.DigitsSix,
	Algorithm: otp.AlgorithmSHA1,
}

func normalizeSeed(seed []byte) string {
	return strings.ToUpper(strings.NewReplacer(" ", "", "-", "", "=", "").Replace(string(seed)))
}

// DecodeSeed parses a base32 authenticator seed, tolerating spaces,
// lowercase letters and missing padding.
func DecodeSeed(seed []byte) ([]byte, error) {
	cleaned := normalizeSeed(seed)
	if cleaned == "" {
		return nil, domain.NewError(errcodes.InvalidSecret, "empty seed")
	}

	key, err := base32.StdEncoding.WithPadding(base32.NoPadding).DecodeString(cleaned)
	if err != nil {
		return nil, domain.WrapError(err, errcodes.InvalidSecret, "seed is not base32")
	}

	return key, nil
}

// GenerateCode returns the 6-digit TOTP code of seed for the step holding at.
func GenerateCode(seed []byte, at time.Time) (string, error) {
	cleaned := normalizeSeed(seed)
	if cleaned == "" {
		return "", domain.NewError(errcodes.InvalidSecret, "empty seed")
	}

	code, err := totp.GenerateCodeCustom(cleaned, at, codeOpts)
	if err != nil {
		return "", domain.WrapError(err, errcodes.InvalidSecret, "seed is not base32")
	}

	return code, nil
}
