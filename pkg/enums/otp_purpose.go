package enums

import "fmt"

// OTPPurpose scopes a one-time code to the action it unlocks.
type OTPPurpose string

const (
	OTPPurposePurchaseConfirmation OTPPurpose = "purchase_confirmation"
	OTPPurposeLogin                OTPPurpose = "login"
)

var validOTPPurposes = []OTPPurpose{
	OTPPurposePurchaseConfirmation,
	OTPPurposeLogin,
}

func (p OTPPurpose) String() string {
	return string(p)
}

func (p OTPPurpose) IsValid() bool {
	for _, candidate := range validOTPPurposes {
		if candidate == p {
			return true
		}
	}
	return false
}

// RequiresSession reports whether challenges for this purpose are keyed by a session id.
func (p OTPPurpose) RequiresSession() bool {
	return p == OTPPurposeLogin
}

func ParseOTPPurpose(value string) (OTPPurpose, error) {
	for _, candidate := range validOTPPurposes {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid otp purpose %q", value)
}
