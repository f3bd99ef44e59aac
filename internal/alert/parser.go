// Package alert extracts structured trade parameters from free-form chat
// messages. Parsing is pure: no I/O, no shared state beyond the injected
// clock used for ambiguous-year expiration dates.
package alert

import (
	"errors"
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"

	"alertbot/internal/models"
)

// ErrNoMatch means the text does not resemble a trade alert. It is the
// expected outcome for most channel traffic and is not a failure.
var ErrNoMatch = errors.New("no alert pattern in message")

// ErrMalformedPayload means the alert pattern matched but a numeric field is
// zero, negative, or unparseable.
var ErrMalformedPayload = errors.New("malformed alert payload")

// ErrInvalidDate means the expiration token does not form a valid calendar date.
var ErrInvalidDate = errors.New("invalid expiration date")

// markupPattern strips Discord-style inline markup such as custom emoji
// (<a:RedAlert:759583962237763595>) and mentions before matching.
var markupPattern = regexp.MustCompile(`<[^>]+>`)

// alertPattern matches, anywhere in the cleaned text:
//
//	SYMBOL - $STRIKE CALLS|PUTS EXPIRATION MM/DD[/YY[YY]] $ENTRY STOP LOSS AT $STOP
//
// Whitespace around literal tokens and dollar signs is insignificant.
var alertPattern = regexp.MustCompile(
	`(?i)(?P<symbol>[A-Za-z]+)\s*-\s*\$\s*(?P<strike>[0-9]+(?:\.[0-9]+)?)\s*` +
		`(?P<otype>CALLS|PUTS)\s*` +
		`EXPIRATION\s*(?P<expiry>[0-9/]+)\s*` +
		`\$\s*(?P<entry>[0-9]+(?:\.[0-9]+)?)\s*` +
		`STOP\s*LOSS\s*AT\s*\$\s*(?P<stop>[0-9]+(?:\.[0-9]+)?)`)

// Parser turns raw message text into TradeAlerts. The zero value is not
// usable; construct with NewParser.
type Parser struct {
	now func() time.Time
}

// NewParser returns a Parser using wall-clock time for year resolution.
func NewParser() *Parser {
	return &Parser{now: time.Now}
}

// NewParserWithClock returns a Parser with an injected clock.
func NewParserWithClock(now func() time.Time) *Parser {
	if now == nil {
		now = time.Now
	}
	return &Parser{now: now}
}

// Parse extracts a TradeAlert from raw message text. A text that does not
// contain the alert pattern returns ErrNoMatch; a matched pattern with an
// invalid payload returns ErrMalformedPayload or ErrInvalidDate.
func (p *Parser) Parse(content string) (*models.TradeAlert, error) {
	cleaned := markupPattern.ReplaceAllString(content, "")
	cleaned = strings.Join(strings.Fields(cleaned), " ")

	m := alertPattern.FindStringSubmatch(cleaned)
	if m == nil {
		return nil, ErrNoMatch
	}

	groups := make(map[string]string, 6)
	for i, name := range alertPattern.SubexpNames() {
		if name != "" {
			groups[name] = m[i]
		}
	}

	strike, err := parsePositive("strike", groups["strike"])
	if err != nil {
		return nil, err
	}
	entry, err := parsePositive("entry price", groups["entry"])
	if err != nil {
		return nil, err
	}
	stop, err := parsePositive("stop price", groups["stop"])
	if err != nil {
		return nil, err
	}

	optionType := models.OptionTypePut
	if strings.EqualFold(groups["otype"], "CALLS") {
		optionType = models.OptionTypeCall
	}

	expiration, err := ResolveExpiration(groups["expiry"], p.now())
	if err != nil {
		return nil, err
	}

	alert := &models.TradeAlert{
		Symbol:     strings.ToUpper(groups["symbol"]),
		Strike:     strike,
		Type:       optionType,
		Expiration: expiration,
		EntryPrice: entry,
		StopPrice:  stop,
	}
	if err := alert.Validate(); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedPayload, err)
	}
	return alert, nil
}

func parsePositive(field, raw string) (float64, error) {
	v, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		return 0, fmt.Errorf("%w: %s %q is not a number", ErrMalformedPayload, field, raw)
	}
	if v <= 0 {
		return 0, fmt.Errorf("%w: %s %q must be > 0", ErrMalformedPayload, field, raw)
	}
	return v, nil
}

// ResolveExpiration normalizes a slash-delimited date token to a concrete
// calendar date (UTC midnight).
//
// MM/DD assumes the current year; if the result is on or before today it
// rolls forward to the same month/day next year. Same-day alerts roll forward
// too: an alert naming today's date refers to next year's expiration.
// MM/DD/YY adds 2000 to the year. MM/DD/YYYY is used as-is. Neither
// three-component form rolls over.
func ResolveExpiration(token string, today time.Time) (time.Time, error) {
	parts := strings.Split(token, "/")
	switch len(parts) {
	case 2:
		month, day, err := parseDateComponents(token, parts[0], parts[1])
		if err != nil {
			return time.Time{}, err
		}
		year := today.Year()
		dt, err := makeDate(token, year, month, day)
		if err != nil {
			return time.Time{}, err
		}
		todayDate := time.Date(today.Year(), today.Month(), today.Day(), 0, 0, 0, 0, time.UTC)
		if !dt.After(todayDate) {
			// Rolled date must itself be valid: 2/29 in a leap year has
			// no counterpart the year after.
			return makeDate(token, year+1, month, day)
		}
		return dt, nil
	case 3:
		month, day, err := parseDateComponents(token, parts[0], parts[1])
		if err != nil {
			return time.Time{}, err
		}
		year, err := strconv.Atoi(parts[2])
		if err != nil {
			return time.Time{}, fmt.Errorf("%w: %q", ErrInvalidDate, token)
		}
		if year >= 0 && year < 100 {
			year += 2000
		}
		return makeDate(token, year, month, day)
	default:
		return time.Time{}, fmt.Errorf("%w: %q", ErrInvalidDate, token)
	}
}

func parseDateComponents(token, monthStr, dayStr string) (int, int, error) {
	month, err := strconv.Atoi(monthStr)
	if err != nil {
		return 0, 0, fmt.Errorf("%w: %q", ErrInvalidDate, token)
	}
	day, err := strconv.Atoi(dayStr)
	if err != nil {
		return 0, 0, fmt.Errorf("%w: %q", ErrInvalidDate, token)
	}
	return month, day, nil
}

// makeDate builds a UTC date and rejects component combinations that
// time.Date would silently normalize (month 13, February 31, ...).
func makeDate(token string, year, month, day int) (time.Time, error) {
	if month < 1 || month > 12 || day < 1 {
		return time.Time{}, fmt.Errorf("%w: %q", ErrInvalidDate, token)
	}
	dt := time.Date(year, time.Month(month), day, 0, 0, 0, 0, time.UTC)
	if dt.Year() != year || dt.Month() != time.Month(month) || dt.Day() != day {
		return time.Time{}, fmt.Errorf("%w: %q", ErrInvalidDate, token)
	}
	return dt, nil
}
