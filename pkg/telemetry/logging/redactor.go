package logging

import (
	"log/slog"
	"net/url"
	"regexp"
	"strings"
)

// Redactor masks credentials in log attributes.
type Redactor struct {
	sensitiveKeys []string
	patterns      []redactPattern
}

// redactPattern contains a compiled regex and replacement string.
type redactPattern struct {
	regex       *regexp.Regexp
	replacement string
}

// NewRedactor creates a Redactor with the built-in key list and patterns.
func NewRedactor() *Redactor {
	return &Redactor{
		sensitiveKeys: []string{
			"password", "passwd", "pwd",
			"secret", "token", "api_key", "apikey",
			"auth", "cookie", "session",
			"private_key", "privatekey",
		},
		patterns: []redactPattern{
			{
				regex:       regexp.MustCompile(`Bearer\s+[a-zA-Z0-9\-._~+/]+=*`),
				replacement: "Bearer ***",
			},
			{
				regex:       regexp.MustCompile(`(?i)(password|passwd|pwd)[:=]\s*[^\s&]+`),
				replacement: "$1=***",
			},
		},
	}
}

// ReplaceAttr is a slog.HandlerOptions.ReplaceAttr function.
func (r *Redactor) ReplaceAttr(_ []string, a slog.Attr) slog.Attr {
	if a.Value.Kind() != slog.KindString {
		if r.IsSensitiveKey(a.Key) && a.Value.Kind() != slog.KindGroup {
			return slog.String(a.Key, "***")
		}
		return a
	}

	value := a.Value.String()
	if r.IsSensitiveKey(a.Key) {
		return slog.String(a.Key, RedactValue(value))
	}
	return slog.String(a.Key, r.RedactString(value))
}

// RedactString masks credentials embedded in a free-form string. Values
// that look like URLs have sensitive query parameters and userinfo
// passwords masked.
func (r *Redactor) RedactString(value string) string {
	if value == "" {
		return value
	}
	if strings.Contains(value, "?") || strings.Contains(value, "@") {
		value = r.redactURL(value)
	}
	for _, p := range r.patterns {
		value = p.regex.ReplaceAllString(value, p.replacement)
	}
	return value
}

// IsSensitiveKey reports whether a key name indicates a credential.
func (r *Redactor) IsSensitiveKey(key string) bool {
	lowerKey := strings.ToLower(key)
	for _, sensitive := range r.sensitiveKeys {
		if strings.Contains(lowerKey, sensitive) {
			return true
		}
	}
	return false
}

func (r *Redactor) redactURL(raw string) string {
	u, err := url.Parse(raw)
	if err != nil {
		return raw
	}

	changed := false
	if u.User != nil {
		if _, ok := u.User.Password(); ok {
			u.User = url.UserPassword(u.User.Username(), "***")
			changed = true
		}
	}

	if u.RawQuery != "" {
		q := u.Query()
		for key := range q {
			if r.IsSensitiveKey(key) {
				q.Set(key, "***")
				changed = true
			}
		}
		if changed {
			u.RawQuery = q.Encode()
		}
	}

	if !changed {
		return raw
	}
	return u.String()
}

// RedactValue masks a credential, keeping a short prefix for correlation.
func RedactValue(v string) string {
	if v == "" {
		return ""
	}
	if len(v) <= 8 {
		return "***"
	}
	return v[:4] + "***"
}
