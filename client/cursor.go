package client

import (
	"net/http"
	"net/url"
	"strings"
)

// LinkNextMaxID extracts the max_id parameter from the rel="next" entry
// of a Link response header. Favourites and bookmarks do not echo cursors
// in their bodies, so this header is the only way to page them; an empty
// return means the feed is exhausted.
func LinkNextMaxID(header http.Header) string {
	link := header.Get("Link")
	if link == "" {
		return ""
	}

	for _, part := range strings.Split(link, ",") {
		section := strings.Split(part, ";")
		if len(section) < 2 {
			continue
		}

		isNext := false
		for _, attr := range section[1:] {
			attr = strings.TrimSpace(attr)
			if attr == `rel="next"` || attr == "rel=next" {
				isNext = true
				break
			}
		}
		if !isNext {
			continue
		}

		raw := strings.Trim(strings.TrimSpace(section[0]), "<>")
		u, err := url.Parse(raw)
		if err != nil {
			continue
		}
		return u.Query().Get("max_id")
	}

	return ""
}
