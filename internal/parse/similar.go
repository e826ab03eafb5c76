package parse

import (
	"github.com/PuerkitoBio/goquery"

	"shelfsync/internal/scrape"
)

// Similar extracts the similar-books edge list. The page lists the source
// book first, then its neighbors; the first entry is skipped.
type Similar struct{}

// Parse implements scrape.Parser.
func (Similar) Parse(key scrape.SourceKey, body []byte) (scrape.Draft, error) {
	doc, err := newDocument(key, body)
	if err != nil {
		return scrape.Draft{}, err
	}

	items := doc.Find("div.u-paddingBottomXSmall")
	if items.Length() == 0 {
		return scrape.Draft{}, structureChanged(key, "no similar-book entries found")
	}

	draft := scrape.Draft{Key: key}
	items.Each(func(i int, item *goquery.Selection) {
		if i == 0 {
			// First entry is the source book itself.
			return
		}
		link := item.Find("a.gr-h3").First()
		href, ok := link.Attr("href")
		if !ok {
			return
		}
		ref := scrape.BookRef{
			ID:    idFromHref(bookIDPattern, href),
			Title: collapseSpaces(link.Text()),
		}
		if ref.ID != "" && ref.Title != "" {
			draft.Books = append(draft.Books, ref)
		}
	})
	return draft, nil
}
