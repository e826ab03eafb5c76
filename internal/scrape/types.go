// Package scrape defines the core types and interfaces for the bibliographic
// sync engine: fetchable page keys, parsed entity drafts, fetch modes, and
// the resolution outcomes produced by the pipeline.
package scrape

import (
	"fmt"
	"time"
)

// EntityKind selects the parser and cache namespace for a fetchable page.
type EntityKind string

// Entity kinds known to the pipeline.
const (
	KindBook     EntityKind = "book"
	KindAuthor   EntityKind = "author"
	KindSeries   EntityKind = "series"
	KindSimilar  EntityKind = "similar"
	KindList     EntityKind = "list"
	KindEditions EntityKind = "editions"
)

// Kinds lists every entity kind, in the order batch commands iterate them.
func Kinds() []EntityKind {
	return []EntityKind{KindBook, KindAuthor, KindSeries, KindSimilar, KindList, KindEditions}
}

// SourceKey identifies one fetchable page. Immutable once constructed.
type SourceKey struct {
	Kind    EntityKind
	ID      string
	Variant string
}

// NewSourceKey builds a key with the default page variant for the kind.
func NewSourceKey(kind EntityKind, id string) SourceKey {
	return SourceKey{Kind: kind, ID: id, Variant: defaultVariant(kind)}
}

func defaultVariant(kind EntityKind) string {
	switch kind {
	case KindSimilar:
		return "similar"
	case KindEditions:
		return "editions"
	default:
		return "show"
	}
}

// String renders the key for logs and lock identity.
func (k SourceKey) String() string {
	return fmt.Sprintf("%s/%s/%s", k.Kind, k.Variant, k.ID)
}

// CachePath returns the relative storage path for the raw page. Kind and
// variant both participate so distinct keys can never alias.
func (k SourceKey) CachePath() string {
	return fmt.Sprintf("%s/%s/%s.html", k.Kind, k.Variant, k.ID)
}

// FetchMode selects how the cache participates in a fetch.
type FetchMode int

// Fetch modes.
const (
	// PreferCache returns a stored page if one exists, regardless of age.
	// Freshness is the resolver's concern, not the cache's.
	PreferCache FetchMode = iota
	// ForceRefetch bypasses the stored page and goes to the network; the
	// fetched body overwrites the stored entry.
	ForceRefetch
)

// FetchResult is a successfully retrieved page.
type FetchResult struct {
	Key       SourceKey
	Body      []byte
	FromCache bool
}

// AuthorRef is a relation from a draft to an author by external id.
type AuthorRef struct {
	ID   string
	Name string
	Role string
}

// SeriesRef is a relation from a draft to a series, with the position of the
// book within it ("#2.5" style orders stay textual, matching the source).
type SeriesRef struct {
	ID    string
	Name  string
	Order string
}

// BookRef is a lightweight relation to another book by external id, used by
// similar/series/list/editions pages.
type BookRef struct {
	ID          string
	Title       string
	Order       string
	AuthorID    string
	AuthorName  string
	Format      string
	ISBN        string
	Published   string
	Rating      float64
	RatingCount int
	Score       int
	Votes       int
}

// Draft is the loosely validated output of a parser. It is never persisted
// directly; it always passes through the exclusion filter and the
// persistence collaborator.
type Draft struct {
	Key SourceKey

	Title          string
	Name           string
	WorkID         string
	Description    string
	Bio            string
	Language       string
	Pages          int
	ISBN           string
	Rating         float64
	RatingCount    int
	PublishedDate  string
	PublishedState string
	ImageURL       string

	Authors []AuthorRef
	Series  []SeriesRef
	Genres  []string
	Books   []BookRef

	// TotalPages reports pagination for paged kinds (lists, editions), so
	// callers can fetch the remaining page variants.
	TotalPages int

	// Missing names the optional fields the page did not carry, making the
	// draft partial rather than failed.
	Missing []string
}

// Partial reports whether any optional field was absent from the page.
func (d Draft) Partial() bool {
	return len(d.Missing) > 0
}

// Status classifies the outcome of resolving one identifier.
type Status string

// Resolution statuses.
const (
	StatusResolved Status = "resolved"
	StatusSkipped  Status = "skipped_stale"
	StatusRejected Status = "rejected"
	StatusFailed   Status = "failed"
)

// Outcome is the per-identifier result of a resolve call.
type Outcome struct {
	Key      SourceKey
	Status   Status
	EntityID int64
	// Rule and RuleVersion are set when the exclusion filter rejected the draft.
	Rule        string
	RuleVersion string
	Err         error
}

// Summary aggregates the outcomes of a resolve_many batch. Individual
// failures never abort the batch; they are counted here instead.
type Summary struct {
	RunID    string
	Kind     EntityKind
	Resolved int
	Skipped  int
	Rejected int
	Failed   int
	Outcomes []Outcome
}

// Add folds one outcome into the summary counters.
func (s *Summary) Add(o Outcome) {
	s.Outcomes = append(s.Outcomes, o)
	switch o.Status {
	case StatusResolved:
		s.Resolved++
	case StatusSkipped:
		s.Skipped++
	case StatusRejected:
		s.Rejected++
	case StatusFailed:
		s.Failed++
	}
}

// SyncRecord reports when an entity was last reconciled and how it was
// discovered. The backing store belongs to the ledger collaborator.
type SyncRecord struct {
	Kind       EntityKind
	ID         string
	LastSynced time.Time
	Source     string
}
