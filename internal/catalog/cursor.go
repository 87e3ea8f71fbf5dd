package catalog

import (
	"net/url"
	"strings"
)

// CursorFrom extracts the page cursor from a next/prev link returned by the
// search endpoint. The link is otherwise opaque: only its "from" query
// parameter is read. Both absolute and relative links are accepted.
// It returns "" when the link is empty, unparsable or carries no cursor.
func CursorFrom(link string) string {
	link = strings.TrimSpace(link)
	if link == "" {
		return ""
	}
	u, err := url.Parse(link)
	if err != nil {
		return ""
	}
	return u.Query().Get("from")
}
