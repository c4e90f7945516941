package normalizer

import (
	"market-streamer/src/models"
)

// -----------------------------------------------------------------------------
// Field alias table and per-category schemas
// -----------------------------------------------------------------------------

// DefaultAliases returns the built-in wire-name table. Key is the canonical
// field name, value the ordered list of wire names to try; first match wins.
// The feed has never been consistent about naming across message variants, so
// the table is configuration (config `aliases:` entries override per key),
// not hard-wired behavior.
func DefaultAliases() map[string][]string {
	return map[string][]string{
		"symbol":     {"key", "symbol"},
		"underlying": {"underlying", "underlyingSymbol", "underlying_symbol"},

		"lastPrice":   {"lastPrice", "last", "last_price"},
		"bidPrice":    {"bidPrice", "bid", "bid_price"},
		"askPrice":    {"askPrice", "ask", "ask_price"},
		"openPrice":   {"openPrice", "open", "open_price"},
		"highPrice":   {"highPrice", "high", "high_price"},
		"lowPrice":    {"lowPrice", "low", "low_price"},
		"totalVolume": {"totalVolume", "volume", "total_volume"},

		"strikePrice":  {"strikePrice", "strike", "strike_price"},
		"openInterest": {"openInterest", "open_interest"},
		"delta":        {"delta"},
		"gamma":        {"gamma"},
		"theta":        {"theta"},
		"vega":         {"vega"},

		"expirationDate": {"expirationDate", "expiration", "expiration_date"},
		"putCall":        {"putCall", "put_call", "contractType"},
	}
}

// -----------------------------------------------------------------------------

// Known numeric fields per category. Every record carries all of them;
// unmatched fields default to 0 so consumers stay schema-stable.
var (
	quoteNumericFields = []string{
		"lastPrice", "bidPrice", "askPrice",
		"openPrice", "highPrice", "lowPrice", "totalVolume",
	}
	optionNumericFields = []string{
		"lastPrice", "bidPrice", "askPrice", "strikePrice",
		"totalVolume", "openInterest", "delta", "gamma", "theta", "vega",
	}
)

// Known text fields per category; unmatched fields default to "".
var (
	quoteTextFields  = []string{}
	optionTextFields = []string{"expirationDate", "putCall"}
)

// -----------------------------------------------------------------------------

func numericSchema(category models.MCategory) []string {
	if category == models.CategoryOption {
		return optionNumericFields
	}
	return quoteNumericFields
}

// -----------------------------------------------------------------------------

func textSchema(category models.MCategory) []string {
	if category == models.CategoryOption {
		return optionTextFields
	}
	return quoteTextFields
}

// -----------------------------------------------------------------------------

// mergeAliases lays the configured overrides over the default table.
func mergeAliases(overrides map[string][]string) map[string][]string {
	merged := DefaultAliases()
	for field, names := range overrides {
		if len(names) > 0 {
			merged[field] = names
		}
	}
	return merged
}
