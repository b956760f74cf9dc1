package credentials

import (
	"crypto/rand"
	"encoding/base64"
	"math/big"

	"github.com/goliatone/go-errors"
)

const resetTokenBytes = 32

// GenerateNumericCode draws a fixed-width numeric code from crypto/rand.
// A uniform draw is sufficient; collisions with outstanding codes are
// tolerated because verification matches on value, not recency.
func GenerateNumericCode(width int) (string, error) {
	if width <= 0 {
		return "", errors.New("code width must be positive", errors.CategoryBadInput)
	}

	digits := make([]byte, width)
	max := big.NewInt(10)
	for i := range digits {
		n, err := rand.Int(rand.Reader, max)
		if err != nil {
			return "", errors.Wrap(err, errors.CategoryInternal, "failed to generate one-time code")
		}
		digits[i] = byte('0' + n.Int64())
	}

	return string(digits), nil
}

// GenerateOpaqueToken returns a high-entropy URL-safe token for reset and
// invitation records. Never derived from user identifiers; a guessable reset
// token is an account-takeover primitive.
func GenerateOpaqueToken() (string, error) {
	buf := make([]byte, resetTokenBytes)
	if _, err := rand.Read(buf); err != nil {
		return "", errors.Wrap(err, errors.CategoryInternal, "failed to generate token")
	}
	return base64.RawURLEncoding.EncodeToString(buf), nil
}
