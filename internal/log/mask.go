package log

import (
	"net/url"
	"regexp"
	"strings"
)

// Query parameters whose values must never appear in logs.
var sensitiveParams = map[string]struct{}{
	"token": {}, "key": {}, "secret": {}, "password": {}, "auth": {},
	"session": {}, "code": {}, "access_token": {}, "refresh_token": {},
	"api_key": {}, "client_secret": {}, "credential": {}, "signature": {},
}

var (
	sensitiveWord = regexp.MustCompile(`(?i)secret|token|key|credential|password|code|auth|session`)
	longOpaque    = regexp.MustCompile(`^[A-Za-z0-9_-]{20,}$`)
)

// MaskURL removes user info from a URL and masks path segments and query
// values that look like credentials, so source URLs can be logged safely.
func MaskURL(raw string) string {
	u, err := url.Parse(raw)
	if err != nil {
		if i := strings.Index(raw, "://"); i > 0 {
			return raw[:i] + "://***.***"
		}
		return "***"
	}
	u.User = nil
	u.Path = maskPath(u.Path)
	u.RawQuery = maskQuery(u.RawQuery)
	if u.Fragment != "" {
		u.Fragment = strings.Repeat("*", min(len(u.Fragment), 10))
	}
	return u.String()
}

func maskPath(path string) string {
	if path == "" {
		return path
	}
	parts := strings.Split(path, "/")
	for i, part := range parts {
		if part != "" && isSensitive(part) {
			parts[i] = maskValue(part)
		}
	}
	return strings.Join(parts, "/")
}

func maskQuery(query string) string {
	if query == "" {
		return query
	}
	pairs := strings.Split(query, "&")
	for i, pair := range pairs {
		k, v, ok := strings.Cut(pair, "=")
		if !ok {
			continue
		}
		if _, hit := sensitiveParams[strings.ToLower(k)]; hit || isSensitive(k) {
			pairs[i] = k + "=" + strings.Repeat("*", min(len(v), 20))
		}
	}
	return strings.Join(pairs, "&")
}

func isSensitive(s string) bool {
	return sensitiveWord.MatchString(s) || longOpaque.MatchString(s)
}

func maskValue(s string) string {
	if len(s) <= 8 {
		return strings.Repeat("*", len(s))
	}
	visible := max(3, len(s)/4)
	if 2*visible >= len(s) {
		visible = len(s) / 3
	}
	return s[:visible] + strings.Repeat("*", len(s)-2*visible) + s[len(s)-visible:]
}
