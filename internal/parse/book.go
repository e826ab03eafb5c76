package parse

import (
	"encoding/json"
	"strings"

	"github.com/PuerkitoBio/goquery"

	"shelfsync/internal/scrape"
)

// Book extracts a book draft from a book show page. Field sources follow the
// page's own layering: the visible DOM for title/authors/series, the
// embedded apollo state for description, genres, and work id, and the
// schema.org block for language, pages, isbn, and rating.
type Book struct{}

// apolloEntry is one value in the embedded apollo state map.
type apolloEntry struct {
	Description string `json:"description"`
	BookGenres  []struct {
		Genre struct {
			Name string `json:"name"`
		} `json:"genre"`
	} `json:"bookGenres"`
	Editions struct {
		WebURL string `json:"webUrl"`
	} `json:"editions"`
}

// schemaOrgBook is the ld+json payload on a book page.
type schemaOrgBook struct {
	InLanguage      string `json:"inLanguage"`
	NumberOfPages   int    `json:"numberOfPages"`
	ISBN            string `json:"isbn"`
	Image           string `json:"image"`
	AggregateRating struct {
		RatingValue float64 `json:"ratingValue"`
		RatingCount int     `json:"ratingCount"`
	} `json:"aggregateRating"`
}

// Parse implements scrape.Parser.
func (Book) Parse(key scrape.SourceKey, body []byte) (scrape.Draft, error) {
	doc, err := newDocument(key, body)
	if err != nil {
		return scrape.Draft{}, err
	}

	title := extractBookTitle(doc)
	if title == "" {
		// The title element anchors the whole layout; its absence means the
		// page no longer looks like a book page at all.
		return scrape.Draft{}, structureChanged(key, "missing bookTitle element")
	}

	draft := scrape.Draft{Key: key, Title: title}

	apollo := extractApolloState(doc)
	draft.Description = apollo.description
	draft.Genres = apollo.genres
	draft.WorkID = apollo.workID

	if schema, ok := extractSchemaOrg(doc); ok {
		draft.Language = schema.InLanguage
		draft.Pages = schema.NumberOfPages
		draft.ISBN = schema.ISBN
		draft.Rating = schema.AggregateRating.RatingValue
		draft.RatingCount = schema.AggregateRating.RatingCount
		if draft.ImageURL == "" {
			draft.ImageURL = schema.Image
		}
	}

	draft.PublishedDate, draft.PublishedState = extractPublicationInfo(doc)
	draft.Authors = extractContributors(doc)
	draft.Series = extractBookSeries(doc)

	if src, ok := doc.Find("img.ResponsiveImage").First().Attr("src"); ok {
		draft.ImageURL = src
	}

	for _, field := range []struct {
		name  string
		empty bool
	}{
		{"description", draft.Description == ""},
		{"language", draft.Language == ""},
		{"isbn", draft.ISBN == ""},
		{"pages", draft.Pages == 0},
		{"published_date", draft.PublishedDate == ""},
		{"genres", len(draft.Genres) == 0},
		{"work_id", draft.WorkID == ""},
	} {
		if field.empty {
			draft.Missing = append(draft.Missing, field.name)
		}
	}

	return draft, nil
}

func extractBookTitle(doc *goquery.Document) string {
	el := doc.Find(`h1[data-testid="bookTitle"]`).First()
	if el.Length() == 0 {
		return ""
	}
	if label, ok := el.Attr("aria-label"); ok {
		return strings.TrimSpace(strings.TrimPrefix(label, "Book title:"))
	}
	return collapseSpaces(el.Text())
}

type apolloState struct {
	description string
	genres      []string
	workID      string
}

func extractApolloState(doc *goquery.Document) apolloState {
	var out apolloState
	raw := doc.Find(`script#__NEXT_DATA__`).First().Text()
	if raw == "" {
		return out
	}

	var payload struct {
		Props struct {
			PageProps struct {
				ApolloState map[string]json.RawMessage `json:"apolloState"`
			} `json:"pageProps"`
		} `json:"props"`
	}
	if err := json.Unmarshal([]byte(raw), &payload); err != nil {
		return out
	}

	for id, rawEntry := range payload.Props.PageProps.ApolloState {
		var entry apolloEntry
		if err := json.Unmarshal(rawEntry, &entry); err != nil {
			continue
		}
		if strings.HasPrefix(id, "Book:") && entry.Description != "" && out.description == "" {
			out.description = entry.Description
		}
		if len(entry.BookGenres) > 0 && len(out.genres) == 0 {
			for _, g := range entry.BookGenres {
				if g.Genre.Name != "" {
					out.genres = append(out.genres, g.Genre.Name)
				}
			}
		}
		if entry.Editions.WebURL != "" && out.workID == "" {
			out.workID = workIDFromURL(entry.Editions.WebURL)
		}
	}
	return out
}

// workIDFromURL pulls the numeric work id out of an editions URL like
// .../work/editions/56597885-project-hail-mary.
func workIDFromURL(webURL string) string {
	parts := strings.Split(webURL, "/")
	last := parts[len(parts)-1]
	id, _, _ := strings.Cut(last, "-")
	return id
}

func extractSchemaOrg(doc *goquery.Document) (schemaOrgBook, bool) {
	raw := doc.Find(`script[type="application/ld+json"]`).First().Text()
	if raw == "" {
		return schemaOrgBook{}, false
	}
	var schema schemaOrgBook
	if err := json.Unmarshal([]byte(raw), &schema); err != nil {
		return schemaOrgBook{}, false
	}
	return schema, true
}

// Publication prefixes seen on book pages. "Expected publication" marks an
// upcoming book, which relaxes several exclusion rules downstream.
func extractPublicationInfo(doc *goquery.Document) (date, state string) {
	text := strings.TrimSpace(doc.Find(`p[data-testid="publicationInfo"]`).First().Text())
	if text == "" {
		return "", ""
	}
	switch {
	case strings.HasPrefix(text, "Expected publication "):
		return strings.TrimPrefix(text, "Expected publication "), "upcoming"
	case strings.HasPrefix(text, "First published "):
		return strings.TrimPrefix(text, "First published "), "published"
	case strings.HasPrefix(text, "Published "):
		return strings.TrimPrefix(text, "Published "), "published"
	}
	return text, ""
}

func extractContributors(doc *goquery.Document) []scrape.AuthorRef {
	var authors []scrape.AuthorRef
	seen := make(map[string]struct{})
	doc.Find("a.ContributorLink").Each(func(_ int, sel *goquery.Selection) {
		name := collapseSpaces(sel.Find("span.ContributorLink__name").Text())
		if name == "" {
			return
		}
		ref := scrape.AuthorRef{Name: name, Role: "Author"}
		if href, ok := sel.Attr("href"); ok {
			ref.ID = idFromHref(authorIDPattern, href)
		}
		if role := strings.Trim(strings.TrimSpace(sel.Find("span.ContributorLink__role").Text()), "()"); role != "" {
			ref.Role = strings.TrimSpace(role)
		}
		dedupe := ref.ID + "|" + ref.Name
		if _, ok := seen[dedupe]; ok {
			return
		}
		seen[dedupe] = struct{}{}
		authors = append(authors, ref)
	})
	return authors
}

func extractBookSeries(doc *goquery.Document) []scrape.SeriesRef {
	var series []scrape.SeriesRef
	doc.Find("h3.Text__title3 a").Each(func(_ int, sel *goquery.Selection) {
		href, ok := sel.Attr("href")
		if !ok {
			return
		}
		id := idFromHref(seriesIDPattern, href)
		if id == "" {
			return
		}
		name := collapseSpaces(sel.Text())
		ref := scrape.SeriesRef{ID: id, Name: name}
		if before, after, found := strings.Cut(name, "#"); found {
			ref.Name = strings.TrimSpace(before)
			ref.Order = strings.TrimSpace(after)
		}
		series = append(series, ref)
	})
	return series
}
