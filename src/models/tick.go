package models

import (
	"time"
)

// -----------------------------------------------------------------------------

// MCategory identifies the kind of market data a tick or subscription refers to.
type MCategory string

const (
	CategoryQuote  MCategory = "QUOTE"
	CategoryOption MCategory = "OPTION"
)

// -----------------------------------------------------------------------------

// UnresolvedUnderlying marks an option tick whose underlying symbol could not
// be derived from the contract symbol.
const UnresolvedUnderlying = "UNRESOLVED"

// -----------------------------------------------------------------------------

// MTickRecord is the canonical normalized unit of market data. One record is
// produced per accepted item of a feed envelope. Fields and Texts always carry
// the full known field set for the record's category; fields absent from the
// wire message default to 0 / "" so consumers stay schema-stable.
//
// Records are treated as immutable once normalized. Components that hand them
// out (aggregator snapshots, handler fan-out) rely on that and do not copy the
// inner maps.
type MTickRecord struct {
	Symbol     string    `json:"symbol"`
	Underlying string    `json:"underlying,omitempty"` // options only
	Category   MCategory `json:"category"`

	// Timestamp is taken with time.Now() at normalization so it carries both a
	// wall-clock and a monotonic reading.
	Timestamp time.Time `json:"timestamp"`

	Fields map[string]float64 `json:"fields"`
	Texts  map[string]string  `json:"texts,omitempty"`
}

// -----------------------------------------------------------------------------

// Field returns the named numeric field, 0 if unknown.
func (t *MTickRecord) Field(name string) float64 {
	return t.Fields[name]
}

// -----------------------------------------------------------------------------

// Text returns the named text field, "" if unknown.
func (t *MTickRecord) Text(name string) string {
	return t.Texts[name]
}
