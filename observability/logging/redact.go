package logging

import (
	"log/slog"
	"strings"
)

// RedactedValue is the canonical placeholder used for sensitive fields in logs.
const RedactedValue = "[REDACTED]"

// sensitiveFragments are matched against lower-cased attribute keys. Admin
// approvals are replayable signatures and bearer tokens grant caller identity,
// so neither may reach a log sink.
var sensitiveFragments = []string{
	"secret",
	"token",
	"authorization",
	"approval",
	"signature",
	"password",
}

// IsSensitive reports whether values logged under key are masked by Setup.
func IsSensitive(key string) bool {
	normalized := strings.ToLower(strings.TrimSpace(key))
	if normalized == "" {
		return false
	}
	for _, fragment := range sensitiveFragments {
		if strings.Contains(normalized, fragment) {
			return true
		}
	}
	return false
}

// MaskField returns a slog.Attr whose value is always redacted when non-empty.
// Use it for values that are sensitive regardless of the key they are logged
// under.
func MaskField(key, value string) slog.Attr {
	if strings.TrimSpace(value) == "" {
		return slog.String(key, value)
	}
	return slog.String(key, RedactedValue)
}

func redactAttr(attr slog.Attr) slog.Attr {
	if !IsSensitive(attr.Key) {
		return attr
	}
	if attr.Value.Kind() == slog.KindString && attr.Value.String() == "" {
		return attr
	}
	return slog.String(attr.Key, RedactedValue)
}
