package parse

import (
	"strings"

	"github.com/PuerkitoBio/goquery"

	"shelfsync/internal/scrape"
)

// Series extracts a series draft, including the member books in order, from
// a series show page.
type Series struct{}

// Parse implements scrape.Parser.
func (Series) Parse(key scrape.SourceKey, body []byte) (scrape.Draft, error) {
	doc, err := newDocument(key, body)
	if err != nil {
		return scrape.Draft{}, err
	}

	name := collapseSpaces(doc.Find("h1.gr-h1--serif").First().Text())
	if name == "" {
		return scrape.Draft{}, structureChanged(key, "missing series title element")
	}
	name = strings.TrimSuffix(name, " Series")

	draft := scrape.Draft{Key: key, Name: name}
	doc.Find("div.listWithDividers__item").Each(func(_ int, item *goquery.Selection) {
		ref := scrape.BookRef{}

		heading := strings.TrimSpace(item.Find("h3.gr-h3--noBottomMargin").First().Text())
		ref.Order = strings.TrimPrefix(heading, "Book ")

		link := item.Find("a.gr-h3--serif").First()
		if href, ok := link.Attr("href"); ok {
			ref.ID = idFromHref(bookIDPattern, href)
		}
		ref.Title = collapseSpaces(link.Find("span[itemprop=name]").Text())

		if ref.ID != "" && ref.Title != "" {
			draft.Books = append(draft.Books, ref)
		}
	})

	if len(draft.Books) == 0 {
		draft.Missing = append(draft.Missing, "books")
	}
	return draft, nil
}
