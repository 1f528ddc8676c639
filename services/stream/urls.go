package stream

import (
	"net/url"
	"strings"
)

// appendQuery adds key=value to rawURL unless the key is already present.
// Re-running plan construction must never duplicate a parameter.
func appendQuery(rawURL, key, value string) string {
	u, err := url.Parse(rawURL)
	if err != nil {
		return rawURL
	}
	q := u.Query()
	if q.Has(key) {
		return rawURL
	}
	q.Set(key, value)
	u.RawQuery = q.Encode()
	return u.String()
}

// joinURL glues a base URL and a server-relative path.
func joinURL(base, path string) string {
	if !strings.HasPrefix(path, "/") {
		path = "/" + path
	}
	return strings.TrimRight(base, "/") + path
}
