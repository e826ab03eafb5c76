package parse

import (
	"regexp"
	"strconv"
	"strings"

	"github.com/PuerkitoBio/goquery"

	"shelfsync/internal/scrape"
)

// Editions extracts the editions of a work: the canonical book plus every
// listed edition with format, year, and ISBN where present.
type Editions struct{}

var (
	formatPattern = regexp.MustCompile(`(?i)(Paperback|Hardcover|Kindle Edition|ebook|Audio CD|Audiobook|Mass Market Paperback|Unknown Binding)`)
	yearPattern   = regexp.MustCompile(`\b((?:19|20)\d{2})\b`)
	isbnPattern   = regexp.MustCompile(`ISBN\s*(\d{13}|\d{10})`)
)

// Parse implements scrape.Parser.
func (Editions) Parse(key scrape.SourceKey, body []byte) (scrape.Draft, error) {
	doc, err := newDocument(key, body)
	if err != nil {
		return scrape.Draft{}, err
	}

	canonical := doc.Find("h1 a").First()
	if canonical.Length() == 0 {
		return scrape.Draft{}, structureChanged(key, "missing work heading")
	}

	draft := scrape.Draft{
		Key:        key,
		Title:      collapseSpaces(canonical.Text()),
		TotalPages: extractPagination(doc),
	}
	if href, ok := canonical.Attr("href"); ok {
		draft.WorkID = key.ID
		if id := idFromHref(bookIDPattern, href); id != "" {
			draft.Books = append(draft.Books, scrape.BookRef{ID: id, Title: draft.Title})
		}
	}

	doc.Find("div.elementList.clearFix").Each(func(_ int, item *goquery.Selection) {
		ref := scrape.BookRef{}

		link := item.Find("a.bookTitle").First()
		if href, ok := link.Attr("href"); ok {
			ref.ID = idFromHref(bookIDPattern, href)
		}
		ref.Title = collapseSpaces(link.Text())

		details := collapseSpaces(item.Find("div.editionData").Text())
		if m := formatPattern.FindStringSubmatch(details); m != nil {
			ref.Format = m[1]
		}
		if m := yearPattern.FindStringSubmatch(details); m != nil {
			ref.Published = m[1]
		}
		if m := isbnPattern.FindStringSubmatch(details); m != nil {
			ref.ISBN = m[1]
		}

		if ref.ID != "" && ref.Title != "" {
			draft.Books = append(draft.Books, ref)
		}
	})

	if len(draft.Books) == 0 {
		draft.Missing = append(draft.Missing, "editions")
	}
	return draft, nil
}

// extractPagination reads the page selector shared by list and editions
// pages: an em.current marker plus numbered links.
func extractPagination(doc *goquery.Document) int {
	total := 1
	if current, err := strconv.Atoi(strings.TrimSpace(doc.Find("em.current").First().Text())); err == nil && current > total {
		total = current
	}
	doc.Find("em.current").Parent().Find("a").Each(func(_ int, link *goquery.Selection) {
		if n, err := strconv.Atoi(strings.TrimSpace(link.Text())); err == nil && n > total {
			total = n
		}
	})
	return total
}
