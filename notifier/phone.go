package notifier

import (
	"errors"
	"strings"
)

var (
	ErrEmptyPhone   = errors.New("phone number is empty")
	ErrInvalidPhone = errors.New("phone number is not a valid argentine number")
)

const whatsappSuffix = "@s.whatsapp.net"

// NormalizePhone maps an Argentine phone number as typed by reception staff
// ("011 15-1234-5678", "+54 9 351 555-1234", "1123456789") to the WhatsApp
// address of the mobile line: "549" + 10 national digits + "@s.whatsapp.net".
func NormalizePhone(raw string) (string, error) {
	if strings.TrimSpace(raw) == "" {
		return "", ErrEmptyPhone
	}

	var b strings.Builder
	for _, r := range raw {
		if r >= '0' && r <= '9' {
			b.WriteRune(r)
		}
	}
	digits := b.String()
	if digits == "" {
		return "", ErrInvalidPhone
	}

	digits = strings.TrimPrefix(digits, "00")
	if strings.HasPrefix(digits, "54") {
		digits = strings.TrimPrefix(digits[2:], "9")
	}
	digits = strings.TrimPrefix(digits, "0")

	if len(digits) == 12 {
		for _, area := range []int{2, 3, 4} {
			if digits[area:area+2] == "15" {
				digits = digits[:area] + digits[area+2:]
				break
			}
		}
	}

	if len(digits) != 10 {
		return "", ErrInvalidPhone
	}
	return "549" + digits + whatsappSuffix, nil
}

// ValidPhone reports whether raw normalizes to a WhatsApp address.
func ValidPhone(raw string) bool {
	_, err := NormalizePhone(raw)
	return err == nil
}
