package credentials

import (
	"context"
	"strings"

	"github.com/nyaruka/phonenumbers"
)

// CodePurpose tells the notifier why a secret is being sent so it can pick
// the right template and channel.
type CodePurpose string

const (
	PurposeTwoFactor     CodePurpose = "twofa"
	PurposePasswordReset CodePurpose = "password_reset"
	PurposeInvitation    CodePurpose = "invitation"
)

// CodeDelivery is the out-of-band delivery payload. Code carries the
// plaintext secret (numeric code, reset token, or invitation token).
type CodeDelivery struct {
	Email       string
	Phone       string
	DisplayName string
	Code        string
	Purpose     CodePurpose
}

// CodeNotifier delivers secrets out-of-band. Delivery is best-effort: a
// failure never aborts issuance, the record stays valid and callers may
// offer a resend.
type CodeNotifier interface {
	SendCode(ctx context.Context, delivery CodeDelivery) error
}

// CodeNotifierFunc adapts a function to the CodeNotifier interface.
type CodeNotifierFunc func(ctx context.Context, delivery CodeDelivery) error

// SendCode implements CodeNotifier.
func (f CodeNotifierFunc) SendCode(ctx context.Context, delivery CodeDelivery) error {
	if f == nil {
		return nil
	}
	return f(ctx, delivery)
}

type noopCodeNotifier struct{}

func (noopCodeNotifier) SendCode(context.Context, CodeDelivery) error {
	return nil
}

func normalizeCodeNotifier(n CodeNotifier) CodeNotifier {
	if n == nil {
		return noopCodeNotifier{}
	}
	return n
}

// NormalizePhone formats a raw phone number to E.164 for SMS delivery.
// Returns an empty string when the input cannot be parsed as a dialable
// number, so SMS-capable notifiers can fall back to email.
func NormalizePhone(raw, region string) string {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return ""
	}

	num, err := phonenumbers.Parse(raw, region)
	if err != nil || !phonenumbers.IsValidNumber(num) {
		return ""
	}

	return phonenumbers.Format(num, phonenumbers.E164)
}
