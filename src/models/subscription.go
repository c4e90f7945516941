package models

// -----------------------------------------------------------------------------

// MSubscription is a standing request for ticks of one (symbol, category)
// pair. It is comparable and used directly as a set key; insertion order is
// irrelevant.
type MSubscription struct {
	Symbol   string    `json:"symbol"`
	Category MCategory `json:"category"`
}
