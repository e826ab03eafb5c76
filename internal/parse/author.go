package parse

import (
	"strings"

	"github.com/PuerkitoBio/goquery"

	"shelfsync/internal/scrape"
)

// Author extracts an author draft from an author show page.
type Author struct{}

// Parse implements scrape.Parser.
func (Author) Parse(key scrape.SourceKey, body []byte) (scrape.Draft, error) {
	doc, err := newDocument(key, body)
	if err != nil {
		return scrape.Draft{}, err
	}

	name := collapseSpaces(doc.Find("h1.authorName span[itemprop=name]").First().Text())
	if name == "" {
		return scrape.Draft{}, structureChanged(key, "missing authorName element")
	}

	draft := scrape.Draft{Key: key, Name: name}
	draft.Bio = extractAuthorBio(doc)
	if src, ok := doc.Find("img.authorPhotoImg").First().Attr("src"); ok {
		draft.ImageURL = src
	}
	draft.Series = extractAuthorSeries(doc)

	if draft.Bio == "" {
		draft.Missing = append(draft.Missing, "bio")
	}
	if draft.ImageURL == "" {
		draft.Missing = append(draft.Missing, "image_url")
	}
	return draft, nil
}

func extractAuthorBio(doc *goquery.Document) string {
	var bio string
	doc.Find("div.aboutAuthorInfo span").EachWithBreak(func(_ int, sel *goquery.Selection) bool {
		id, ok := sel.Attr("id")
		if !ok || !strings.HasPrefix(id, "freeTextContainer") {
			return true
		}
		bio = strings.TrimSpace(sel.Text())
		return false
	})
	return bio
}

func extractAuthorSeries(doc *goquery.Document) []scrape.SeriesRef {
	var series []scrape.SeriesRef
	doc.Find("div.bookRow.seriesBookRow a.bookTitle").Each(func(_ int, sel *goquery.Selection) {
		href, ok := sel.Attr("href")
		if !ok {
			return
		}
		id := idFromHref(seriesIDPattern, href)
		name := collapseSpaces(sel.Text())
		if id == "" || name == "" {
			return
		}
		series = append(series, scrape.SeriesRef{ID: id, Name: name})
	})
	return series
}
