package model

import "strings"

// Instrument identifies a tradeable symbol on an exchange.
// Both fields are case-normalized at construction and immutable afterwards.
type Instrument struct {
	Exchange string `json:"exchange"`
	Symbol   string `json:"symbol"`
}

// NewInstrument builds a case-normalized instrument identity.
func NewInstrument(exchange, symbol string) Instrument {
	return Instrument{
		Exchange: strings.ToUpper(strings.TrimSpace(exchange)),
		Symbol:   strings.ToUpper(strings.TrimSpace(symbol)),
	}
}

// Key returns a unique key for this instrument: "exchange:symbol".
func (i Instrument) Key() string {
	return i.Exchange + ":" + i.Symbol
}
