package logger

import (
	"fmt"
	"log/slog"
	"net/url"
	"sort"
	"strings"
)

// SanitizedEmail masks an email address for logging (e.g., "u***@e***.com")
func SanitizedEmail(email string) string {
	parts := strings.Split(email, "@")
	if len(parts) != 2 {
		return "[invalid-email]"
	}

	username := parts[0]
	domain := parts[1]

	// Mask username: keep first char, mask rest
	if len(username) > 1 {
		username = string(username[0]) + strings.Repeat("*", len(username)-1)
	}

	// Mask domain: keep TLD, mask the rest
	domainParts := strings.Split(domain, ".")
	if len(domainParts) > 1 {
		// Mask all but the TLD
		for i := 0; i < len(domainParts)-1; i++ {
			domainParts[i] = strings.Repeat("*", len(domainParts[i]))
		}
		domain = strings.Join(domainParts, ".")
	}

	return username + "@" + domain
}

// RedactedAttr returns a redacted slog attribute for sensitive values
// In production, returns "[REDACTED]"; in development, returns the actual value
func RedactedAttr(key, value, env string) slog.Attr {
	if env == "production" {
		return slog.String(key, "[REDACTED]")
	}
	return slog.String(key, value)
}

// ErrorAttr logs the full error outside production and only its category
// in production, where driver and SDK messages may echo user input
func ErrorAttr(err error, env string) slog.Attr {
	if err == nil {
		return slog.String("error", "")
	}
	if env == "production" {
		return slog.String("error", fmt.Sprintf("%T", err))
	}
	return slog.String("error", err.Error())
}

// sensitiveParams are query keys whose values never reach the log
var sensitiveParams = []string{"password", "token", "secret", "email", "code", "otp", "auth"}

// RedactQuery masks the value of every query parameter whose key contains a
// sensitive word, e.g. "access_token=abc&x=1" becomes "access_token=[REDACTED]&x=1".
// Unparseable queries are redacted entirely.
func RedactQuery(rawQuery string) string {
	values, err := url.ParseQuery(rawQuery)
	if err != nil {
		return "[REDACTED]"
	}

	keys := make([]string, 0, len(values))
	for key := range values {
		keys = append(keys, key)
	}
	sort.Strings(keys)

	parts := make([]string, 0, len(keys))
	for _, key := range keys {
		for _, v := range values[key] {
			if isSensitiveParam(key) {
				v = "[REDACTED]"
			} else {
				v = url.QueryEscape(v)
			}
			parts = append(parts, url.QueryEscape(key)+"="+v)
		}
	}
	return strings.Join(parts, "&")
}

func isSensitiveParam(key string) bool {
	key = strings.ToLower(key)
	for _, word := range sensitiveParams {
		if strings.Contains(key, word) {
			return true
		}
	}
	return false
}
