package broker

import (
	"fmt"
	"math"
	"time"

	"alertbot/internal/models"
)

// maxStrikeThousandths caps the OSI strike field at 8 digits: 5 for dollars,
// 3 for thousandths. Strikes beyond it cannot be encoded and must fail fast
// rather than silently truncate.
const maxStrikeThousandths = 100000000

// OptionSymbol builds the OSI-style identifier for an option contract:
// root padded to 6 characters, YYMMDD expiration, C/P, and the strike as an
// 8-digit dollars-and-thousandths field.
//
//	AAPL 250 Call 2025-10-10 -> "AAPL  251010C00250000"
func OptionSymbol(symbol string, strike float64, optionType models.OptionType, expiration time.Time) (string, error) {
	if symbol == "" {
		return "", fmt.Errorf("option symbol root is empty")
	}
	if len(symbol) > 6 {
		return "", fmt.Errorf("symbol %q exceeds the 6-character OSI root field", symbol)
	}

	var typeCode string
	switch optionType {
	case models.OptionTypeCall:
		typeCode = "C"
	case models.OptionTypePut:
		typeCode = "P"
	default:
		return "", fmt.Errorf("unknown option type %q", optionType)
	}

	// Round to the nearest thousandth of a dollar; eps guards against
	// floating point representations like 123.4569999.
	const eps = 1e-9
	strikeInt := int(math.Round(strike*1000 + eps))
	if strikeInt <= 0 {
		return "", fmt.Errorf("strike %.4f must be > 0", strike)
	}
	if strikeInt >= maxStrikeThousandths {
		return "", fmt.Errorf("strike %.4f out of range for 8-digit OSI encoding", strike)
	}

	return fmt.Sprintf("%-6s%s%s%08d", symbol, expiration.Format("060102"), typeCode, strikeInt), nil
}
