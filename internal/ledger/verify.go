package ledger

import (
	"fmt"
	"strings"

	"github.com/fjod/go_loyalty/internal/domain"
)

const cardNumberLength = 16

// NormalizeCardNumber strips spaces and dashes.
func NormalizeCardNumber(raw string) string {
	return strings.Map(func(r rune) rune {
		if r == ' ' || r == '-' {
			return -1
		}
		return r
	}, raw)
}

// VerifyCardNumber checks the format of a card number and derives the
// instrument kind from its first digit.
func VerifyCardNumber(raw string) (domain.InstrumentKind, string, error) {
	number := NormalizeCardNumber(raw)
	if len(number) != cardNumberLength {
		return "", "", fmt.Errorf("card number must have %d digits: %w", cardNumberLength, domain.ErrInvalidCode)
	}
	for _, r := range number {
		if r < '0' || r > '9' {
			return "", "", fmt.Errorf("card number must be numeric: %w", domain.ErrInvalidCode)
		}
	}

	switch number[0] {
	case '4':
		return domain.InstrumentKindStampCard, number, nil
	case '5':
		return domain.InstrumentKindGiftCard, number, nil
	default:
		return "", "", fmt.Errorf("unknown card type %c: %w", number[0], domain.ErrInvalidCode)
	}
}
