package console

import "fmt"

const (
	// PickupPrefix starts every pickup message.
	PickupPrefix = "PICKUP:"
	// PickupCodeLength is the number of digits in a pickup code.
	PickupCodeLength = 4
)

// ValidatePickupCode accepts exactly four ASCII digits.
func ValidatePickupCode(code string) error {
	if len(code) != PickupCodeLength {
		return fmt.Errorf("pickup code must be %d digits, got %q", PickupCodeLength, code)
	}
	for i := 0; i < len(code); i++ {
		if code[i] < '0' || code[i] > '9' {
			return fmt.Errorf("pickup code must be %d digits, got %q", PickupCodeLength, code)
		}
	}
	return nil
}

// PickupMessage builds the wire message for code.
func PickupMessage(code string) (string, error) {
	if err := ValidatePickupCode(code); err != nil {
		return "", err
	}
	return PickupPrefix + code, nil
}
