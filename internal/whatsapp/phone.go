package whatsapp

import (
	"strings"
	"unicode"
)

// DefaultCountryCode is prefixed to bare national numbers.
const DefaultCountryCode = "+91"

// NormalizePhone canonicalizes a phone number for identity matching:
// formatting characters are stripped, a national trunk zero is dropped, and
// bare 10-digit numbers get the default country code. Already-international
// numbers keep their prefix.
func NormalizePhone(raw string) string {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return ""
	}

	hasPlus := strings.HasPrefix(raw, "+")
	var digits strings.Builder
	for _, r := range raw {
		if unicode.IsDigit(r) {
			digits.WriteRune(r)
		}
	}
	num := digits.String()
	if num == "" {
		return ""
	}

	if hasPlus {
		return "+" + num
	}
	if strings.HasPrefix(num, "00") {
		return "+" + num[2:]
	}
	if strings.HasPrefix(num, "0") && len(num) == 11 {
		num = num[1:]
	}
	if len(num) == 10 {
		return DefaultCountryCode + num
	}
	return "+" + num
}

// ChatIDToPhone converts a relay chat id like "919876543210@c.us" to a
// normalized phone number.
func ChatIDToPhone(chatID string) string {
	if i := strings.IndexByte(chatID, '@'); i >= 0 {
		chatID = chatID[:i]
	}
	return NormalizePhone(chatID)
}
