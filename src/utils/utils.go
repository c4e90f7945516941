package utils

import (
	"net/url"
	"strconv"
	"strings"
)

// -----------------------------------------------------------------------------

// ParseFloat converts a numeric string to float64, returning 0 on failure.
// Feed payloads carry prices and sizes as strings.
func ParseFloat(s string) float64 {
	f, err := strconv.ParseFloat(strings.TrimSpace(s), 64)
	if err != nil {
		return 0
	}
	return f
}

// -----------------------------------------------------------------------------

// MaskAPIKey hides credential material in an endpoint URL so it can be logged
// or returned by the status API. Query parameters that look like secrets are
// replaced with "***".
func MaskAPIKey(endpoint string) string {
	u, err := url.Parse(endpoint)
	if err != nil {
		return endpoint
	}

	q := u.Query()
	changed := false
	for key := range q {
		lower := strings.ToLower(key)
		if strings.Contains(lower, "token") || strings.Contains(lower, "key") || strings.Contains(lower, "secret") {
			q.Set(key, "***")
			changed = true
		}
	}
	if changed {
		u.RawQuery = q.Encode()
	}
	return u.String()
}
