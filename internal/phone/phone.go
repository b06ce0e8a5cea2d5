package phone

import (
	"fmt"
	"strings"

	"github.com/metacodeltd/mookh-tickets/internal/domain"
)

// Normalize validates a Kenyan mobile number and returns it in the
// 12-digit 2547XXXXXXXX form the gateway requires. Separators and a leading
// plus are tolerated; a leading 0 is swapped for the country code and a bare
// local number gets it prepended. Only Safaricom numbers (2547...) pass,
// so malformed input is rejected before any billable gateway call.
func Normalize(raw string) (string, error) {
	cleaned := stripNonDigits(raw)
	if cleaned == "" {
		return "", fmt.Errorf("%w: no digits in %q", domain.ErrInvalidPhone, raw)
	}

	switch {
	case strings.HasPrefix(cleaned, "0"):
		cleaned = "254" + cleaned[1:]
	case strings.HasPrefix(cleaned, "254"):
		// already in international form
	default:
		cleaned = "254" + cleaned
	}

	if len(cleaned) != 12 {
		return "", fmt.Errorf("%w: must be 9 digits excluding the country code", domain.ErrInvalidPhone)
	}
	if !strings.HasPrefix(cleaned, "2547") {
		return "", fmt.Errorf("%w: not a Safaricom number (07xx xxx xxx)", domain.ErrInvalidPhone)
	}
	return cleaned, nil
}

func stripNonDigits(s string) string {
	var b strings.Builder
	b.Grow(len(s))
	for _, r := range s {
		if r >= '0' && r <= '9' {
			b.WriteRune(r)
		}
	}
	return b.String()
}
