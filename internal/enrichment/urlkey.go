package enrichment

import (
	"net/url"
	"strings"
)

// URLKey normalizes a social URL so a resolver's echo of the URL matches the
// search result it came from. Only the YouTube video id survives from the
// query string.
func URLKey(raw string) string {
	raw = strings.TrimSpace(raw)
	u, err := url.Parse(raw)
	if err != nil || u.Host == "" {
		if !strings.Contains(raw, "://") {
			if u2, err2 := url.Parse("https://" + raw); err2 == nil && u2.Host != "" {
				u, err = u2, nil
			}
		}
		if err != nil || u == nil || u.Host == "" {
			return strings.ToLower(strings.TrimRight(raw, "/"))
		}
	}
	host := strings.ToLower(u.Hostname())
	host = strings.TrimPrefix(host, "www.")
	host = strings.TrimPrefix(host, "m.")
	path := strings.TrimRight(u.EscapedPath(), "/")

	if host == "youtu.be" {
		return "youtube.com/watch?v=" + strings.TrimPrefix(path, "/")
	}
	if host == "youtube.com" && path == "/watch" {
		if v := u.Query().Get("v"); v != "" {
			return "youtube.com/watch?v=" + v
		}
	}
	return host + strings.ToLower(path)
}
