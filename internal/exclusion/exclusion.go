// Package exclusion filters book drafts against a versioned, ordered rule
// set. Rules run in declaration order and the first rejection wins, so the
// reported rule name is deterministic for a given draft.
package exclusion

import (
	"regexp"
	"strings"

	"shelfsync/internal/scrape"
)

// upcomingState marks drafts whose publication date is still in the future.
// Those drafts are exempt from maturity rules (ratings, description): the
// community has not had a chance to produce either yet.
const upcomingState = "upcoming"

// Decision is the outcome of evaluating one draft.
type Decision struct {
	Rejected bool
	// Rule names the first rule that rejected the draft.
	Rule string
	// Version identifies the rule set that produced the decision, so stored
	// rejections can be re-evaluated when the rules change.
	Version string
}

// Rule rejects or passes a single draft.
type Rule interface {
	Name() string
	Rejects(d scrape.Draft) bool
}

// Config declares the rule set. Zero values disable the matching rule.
type Config struct {
	// Version tags every decision made by the resulting filter.
	Version string `mapstructure:"version"`
	// Genres rejects drafts carrying any of the listed genres.
	Genres []string `mapstructure:"genres"`
	// TitlePatterns rejects drafts whose title matches any pattern. Aimed at
	// boxed sets, omnibus editions, and multi-book bundles.
	TitlePatterns []string `mapstructure:"title_patterns"`
	// MaxPages rejects drafts longer than the limit.
	MaxPages int `mapstructure:"max_pages"`
	// MinRatings rejects published drafts with fewer ratings.
	MinRatings int `mapstructure:"min_ratings"`
	// RequireDescription rejects published drafts with no description.
	RequireDescription bool `mapstructure:"require_description"`
}

// DefaultConfig mirrors the curation policy the catalog started with.
func DefaultConfig() Config {
	return Config{
		Version: "v1",
		Genres: []string{
			"Graphic Novel",
			"Graphic Novels",
			"Comics",
			"Comic Book",
			"Manga",
			"Anime",
			"Cookbooks",
			"Colouring Books",
			"Picture Books",
		},
		TitlePatterns: []string{
			`(?i)\bbox(ed)?\s+set\b`,
			`(?i)\bbooks?\s+set\b`,
			`(?i)\bcomplete collection\b`,
			`(?i)\bomnibus\b`,
			`(?i)\banthology\b`,
			`(?i)\btrilogy\b`,
			`(?i)\bbundle\b`,
			`(?i)\bsampler\b`,
			` / `,
			`#\d+\s*[-–]\s*#?\d+`,
			`(?i)\bbooks?\s+\d+\s*[-–]\s*\d+`,
		},
		MaxPages:           1800,
		MinRatings:         100,
		RequireDescription: true,
	}
}

// Filter is an ordered rule set.
type Filter struct {
	version string
	rules   []Rule
}

// New compiles the config into a filter. Invalid title patterns surface as an
// error rather than a silently weaker rule set.
func New(cfg Config) (*Filter, error) {
	f := &Filter{version: cfg.Version}

	if len(cfg.Genres) > 0 {
		f.rules = append(f.rules, genreRule{genres: cfg.Genres})
	}
	if len(cfg.TitlePatterns) > 0 {
		patterns := make([]*regexp.Regexp, 0, len(cfg.TitlePatterns))
		for _, p := range cfg.TitlePatterns {
			re, err := regexp.Compile(p)
			if err != nil {
				return nil, err
			}
			patterns = append(patterns, re)
		}
		f.rules = append(f.rules, titleRule{patterns: patterns})
	}
	if cfg.MaxPages > 0 {
		f.rules = append(f.rules, maxPagesRule{limit: cfg.MaxPages})
	}
	if cfg.MinRatings > 0 {
		f.rules = append(f.rules, minRatingsRule{min: cfg.MinRatings})
	}
	if cfg.RequireDescription {
		f.rules = append(f.rules, descriptionRule{})
	}
	return f, nil
}

// Evaluate runs the rules in order and reports the first rejection.
func (f *Filter) Evaluate(d scrape.Draft) Decision {
	for _, rule := range f.rules {
		if rule.Rejects(d) {
			return Decision{Rejected: true, Rule: rule.Name(), Version: f.version}
		}
	}
	return Decision{Version: f.version}
}

// Version reports the rule set version the filter was built with.
func (f *Filter) Version() string { return f.version }

type genreRule struct {
	genres []string
}

func (genreRule) Name() string { return "excluded_genre" }

func (r genreRule) Rejects(d scrape.Draft) bool {
	for _, have := range d.Genres {
		for _, banned := range r.genres {
			if strings.EqualFold(have, banned) {
				return true
			}
		}
	}
	return false
}

type titleRule struct {
	patterns []*regexp.Regexp
}

func (titleRule) Name() string { return "title_pattern" }

func (r titleRule) Rejects(d scrape.Draft) bool {
	for _, re := range r.patterns {
		if re.MatchString(d.Title) {
			return true
		}
	}
	return false
}

type maxPagesRule struct {
	limit int
}

func (maxPagesRule) Name() string { return "max_pages" }

func (r maxPagesRule) Rejects(d scrape.Draft) bool {
	return d.Pages > r.limit
}

type minRatingsRule struct {
	min int
}

func (minRatingsRule) Name() string { return "min_ratings" }

func (r minRatingsRule) Rejects(d scrape.Draft) bool {
	if d.PublishedState == upcomingState {
		return false
	}
	return d.RatingCount < r.min
}

type descriptionRule struct{}

func (descriptionRule) Name() string { return "missing_description" }

func (r descriptionRule) Rejects(d scrape.Draft) bool {
	if d.PublishedState == upcomingState {
		return false
	}
	return strings.TrimSpace(d.Description) == ""
}
