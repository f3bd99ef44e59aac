// Package models defines the core domain types shared between the alert
// parser and the broker session.
package models

import (
	"fmt"
	"strings"
	"time"
)

// OptionType represents the type of option contract named in an alert.
type OptionType string

const (
	// OptionTypeCall represents a call option contract
	OptionTypeCall OptionType = "Call"
	// OptionTypePut represents a put option contract
	OptionTypePut OptionType = "Put"
)

// TradeAlert is the structured trade extracted from a single chat message.
// It is a flat value object: created by the parser, consumed once by the
// broker session, never stored.
type TradeAlert struct {
	Symbol     string
	Strike     float64
	Type       OptionType
	Expiration time.Time
	EntryPrice float64
	StopPrice  float64
}

// Validate checks the TradeAlert invariants: non-empty alphabetic symbol,
// strictly positive prices, a known option type, and a resolved expiration.
func (a *TradeAlert) Validate() error {
	if a.Symbol == "" {
		return fmt.Errorf("symbol is empty")
	}
	for _, r := range a.Symbol {
		if r < 'A' || r > 'Z' {
			return fmt.Errorf("symbol %q must be upper-case letters only", a.Symbol)
		}
	}
	if a.Strike <= 0 {
		return fmt.Errorf("strike %.4f must be > 0", a.Strike)
	}
	if a.Type != OptionTypeCall && a.Type != OptionTypePut {
		return fmt.Errorf("unknown option type %q", a.Type)
	}
	if a.Expiration.IsZero() {
		return fmt.Errorf("expiration is unset")
	}
	if a.EntryPrice <= 0 {
		return fmt.Errorf("entry price %.4f must be > 0", a.EntryPrice)
	}
	if a.StopPrice <= 0 {
		return fmt.Errorf("stop price %.4f must be > 0", a.StopPrice)
	}
	return nil
}

// String renders the alert in a compact single-line form for logs.
func (a *TradeAlert) String() string {
	var b strings.Builder
	fmt.Fprintf(&b, "%s $%g %ss %s entry $%g stop $%g",
		a.Symbol, a.Strike, strings.ToLower(string(a.Type)),
		a.Expiration.Format("2006-01-02"), a.EntryPrice, a.StopPrice)
	return b.String()
}
