package fetch

import (
	"fmt"
	"net/url"
	"strings"

	"shelfsync/internal/scrape"
)

// PageURL maps a source key onto the external site's URL space.
func PageURL(baseURL string, key scrape.SourceKey) string {
	base := strings.TrimRight(baseURL, "/")
	switch key.Kind {
	case scrape.KindBook:
		return fmt.Sprintf("%s/book/show/%s", base, key.ID)
	case scrape.KindAuthor:
		return fmt.Sprintf("%s/author/show/%s", base, key.ID)
	case scrape.KindSeries:
		return fmt.Sprintf("%s/series/show/%s", base, key.ID)
	case scrape.KindSimilar:
		return fmt.Sprintf("%s/book/similar/%s", base, key.ID)
	case scrape.KindList:
		u := fmt.Sprintf("%s/list/show/%s", base, key.ID)
		if page := pageVariant(key.Variant); page > 1 {
			u += fmt.Sprintf("?page=%d", page)
		}
		return u
	case scrape.KindEditions:
		page := pageVariant(key.Variant)
		if page < 1 {
			page = 1
		}
		return fmt.Sprintf("%s/work/editions/%s?page=%d&per_page=100", base, key.ID, page)
	default:
		return fmt.Sprintf("%s/%s/%s", base, key.Kind, key.ID)
	}
}

// pageVariant reads the page number out of a "pageN" variant; anything else
// is page 1.
func pageVariant(variant string) int {
	var page int
	if _, err := fmt.Sscanf(variant, "page%d", &page); err != nil {
		return 1
	}
	return page
}

// Host extracts the hostname from a URL, for rate limiting.
func Host(rawURL string) string {
	u, err := url.Parse(rawURL)
	if err != nil {
		return "unknown"
	}
	return u.Hostname()
}
