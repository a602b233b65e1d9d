package logging

import (
	"log/slog"
	"sort"
	"strings"
)

// RedactedValue replaces secrets in log output.
const RedactedValue = "[REDACTED]"

var redactionAllowlist = map[string]struct{}{
	"service":   {},
	"env":       {},
	"message":   {},
	"severity":  {},
	"timestamp": {},
	"error":     {},
	"method":    {},
	"caller":    {},
	"oracle":    {},
	"agent":     {},
	"flight":    {},
	"index":     {},
	"status":    {},
	"component": {},
	"keystore":  {},
}

var sensitiveKeys = map[string]struct{}{
	"passphrase":    {},
	"private_key":   {},
	"privatekey":    {},
	"key":           {},
	"faucet_secret": {},
}

// IsAllowlisted reports whether key may be logged in clear.
func IsAllowlisted(key string) bool {
	normalized := strings.ToLower(strings.TrimSpace(key))
	if _, secret := sensitiveKeys[normalized]; secret {
		return false
	}
	_, ok := redactionAllowlist[normalized]
	return ok
}

// RedactionAllowlist lists, sorted, the keys logged in clear.
func RedactionAllowlist() []string {
	keys := make([]string, 0, len(redactionAllowlist))
	for key := range redactionAllowlist {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	return keys
}

// MaskValue returns the redacted placeholder for non-empty values.
func MaskValue(value string) string {
	if strings.TrimSpace(value) == "" {
		return value
	}
	return RedactedValue
}

// MaskField returns an attribute that redacts value unless key is allowlisted.
func MaskField(key, value string) slog.Attr {
	if strings.TrimSpace(value) == "" || IsAllowlisted(key) {
		return slog.String(key, value)
	}
	return slog.String(key, RedactedValue)
}
