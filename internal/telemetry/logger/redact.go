package logger

import (
	"log/slog"
	"strings"
)

// Attribute names that are always redacted in full.
var sensitiveKeys = map[string]struct{}{
	"key":   {},
	"iv":    {},
	"nonce": {},
	"salt":  {},
}

// Substrings that mark an attribute name as sensitive.
var sensitiveKeyPatterns = []string{
	"passphrase",
	"password",
	"secret",
	"material",
}

// Substrings for attributes that are partially masked rather than removed.
var maskedKeyPatterns = []string{
	"ciphertext",
}

const redactedValue = "***REDACTED***"

func redactSensitive(a slog.Attr) slog.Attr {
	if a.Value.Kind() == slog.KindGroup {
		attrs := a.Value.Group()
		newAttrs := make([]slog.Attr, len(attrs))
		for i, attr := range attrs {
			newAttrs[i] = redactSensitive(attr)
		}
		return slog.Attr{Key: a.Key, Value: slog.GroupValue(newAttrs...)}
	}

	keyLower := strings.ToLower(a.Key)
	for _, pattern := range maskedKeyPatterns {
		if strings.Contains(keyLower, pattern) {
			return slog.String(a.Key, maskValue(a.Value.String()))
		}
	}
	if IsSensitiveKey(a.Key) {
		if a.Value.Kind() == slog.KindString && a.Value.String() == "" {
			return a
		}
		return slog.String(a.Key, redactedValue)
	}

	return a
}

// maskValue keeps the first and last 3 characters.
func maskValue(value string) string {
	if len(value) <= 8 {
		return "***"
	}
	return value[:3] + "..." + value[len(value)-3:]
}

// RedactString masks a value before it is placed in a message string.
func RedactString(value string) string {
	return maskValue(value)
}

// IsSensitiveKey reports whether an attribute name suggests secret content.
func IsSensitiveKey(key string) bool {
	keyLower := strings.ToLower(key)
	if _, ok := sensitiveKeys[keyLower]; ok {
		return true
	}
	for _, pattern := range sensitiveKeyPatterns {
		if strings.Contains(keyLower, pattern) {
			return true
		}
	}
	return false
}
