// Package parse turns raw pages into entity drafts, one parser per entity
// kind. Parsers are pure: no I/O, no shared state, fixture-testable.
package parse

import (
	"bytes"
	"fmt"
	"regexp"
	"strings"

	"github.com/PuerkitoBio/goquery"

	"shelfsync/internal/scrape"
)

// Registry returns the parser for each entity kind.
func Registry() map[scrape.EntityKind]scrape.Parser {
	return map[scrape.EntityKind]scrape.Parser{
		scrape.KindBook:     Book{},
		scrape.KindAuthor:   Author{},
		scrape.KindSeries:   Series{},
		scrape.KindSimilar:  Similar{},
		scrape.KindList:     List{},
		scrape.KindEditions: Editions{},
	}
}

var (
	bookIDPattern   = regexp.MustCompile(`/show/(\d+)`)
	authorIDPattern = regexp.MustCompile(`/author/show/(\d+)`)
	seriesIDPattern = regexp.MustCompile(`/series/(\d+)`)
)

// newDocument parses the body into a goquery document.
func newDocument(key scrape.SourceKey, body []byte) (*goquery.Document, error) {
	if len(bytes.TrimSpace(body)) == 0 {
		return nil, &scrape.ParseError{Reason: scrape.ReasonEmptyBody, Key: key}
	}
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(body))
	if err != nil {
		return nil, &scrape.ParseError{
			Reason: scrape.ReasonStructureChanged,
			Key:    key,
			Detail: fmt.Sprintf("html parse: %v", err),
		}
	}
	return doc, nil
}

func structureChanged(key scrape.SourceKey, detail string) error {
	return &scrape.ParseError{Reason: scrape.ReasonStructureChanged, Key: key, Detail: detail}
}

// idFromHref extracts the first numeric id matched by pattern in href.
func idFromHref(pattern *regexp.Regexp, href string) string {
	m := pattern.FindStringSubmatch(href)
	if m == nil {
		return ""
	}
	return m[1]
}

// collapseSpaces normalizes runs of whitespace to single spaces.
func collapseSpaces(s string) string {
	return strings.Join(strings.Fields(s), " ")
}
