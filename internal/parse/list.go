package parse

import (
	"regexp"
	"strconv"
	"strings"

	"github.com/PuerkitoBio/goquery"

	"shelfsync/internal/scrape"
)

// List extracts a snapshot of one page of a curated list: ranked books with
// their authors, community ratings, and list scores.
type List struct{}

var (
	miniratingPattern = regexp.MustCompile(`(\d+\.\d+)\s*avg rating\s*[—-]\s*([\d,]+)\s*ratings`)
	scorePattern      = regexp.MustCompile(`score:\s*([\d,]+)`)
	votesPattern      = regexp.MustCompile(`([\d,]+)\s*people voted`)
)

// Parse implements scrape.Parser.
func (List) Parse(key scrape.SourceKey, body []byte) (scrape.Draft, error) {
	doc, err := newDocument(key, body)
	if err != nil {
		return scrape.Draft{}, err
	}

	rows := doc.Find(`tr[itemtype="http://schema.org/Book"]`)
	if rows.Length() == 0 {
		return scrape.Draft{}, structureChanged(key, "no book rows found")
	}

	draft := scrape.Draft{Key: key, TotalPages: extractPagination(doc)}
	rows.Each(func(_ int, row *goquery.Selection) {
		ref := scrape.BookRef{}

		title := row.Find("a.bookTitle").First()
		if href, ok := title.Attr("href"); ok {
			ref.ID = idFromHref(bookIDPattern, href)
		}
		ref.Title = collapseSpaces(title.Find("span[itemprop=name]").Text())

		author := row.Find("a.authorName").First()
		if href, ok := author.Attr("href"); ok {
			ref.AuthorID = idFromHref(authorIDPattern, href)
		}
		ref.AuthorName = collapseSpaces(author.Find("span[itemprop=name]").Text())

		if m := miniratingPattern.FindStringSubmatch(row.Find("span.minirating").Text()); m != nil {
			ref.Rating, _ = strconv.ParseFloat(m[1], 64)
			ref.RatingCount = parseGroupedInt(m[2])
		}

		row.Find("a").Each(func(_ int, link *goquery.Selection) {
			if onclick, ok := link.Attr("onclick"); ok && strings.Contains(onclick, "score_explanation") {
				if m := scorePattern.FindStringSubmatch(link.Text()); m != nil {
					ref.Score = parseGroupedInt(m[1])
				}
			}
			if id, ok := link.Attr("id"); ok && strings.HasPrefix(id, "loading_link_") {
				if m := votesPattern.FindStringSubmatch(link.Text()); m != nil {
					ref.Votes = parseGroupedInt(m[1])
				}
			}
		})

		if ref.ID != "" && ref.Title != "" {
			draft.Books = append(draft.Books, ref)
		}
	})
	return draft, nil
}

func parseGroupedInt(s string) int {
	n, _ := strconv.Atoi(strings.ReplaceAll(s, ",", ""))
	return n
}
