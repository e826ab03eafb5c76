package scrape

import (
	"errors"
	"fmt"
)

// ErrNoProxy is returned by a proxy pool when every record is cooling down.
// The current fetch attempt fails; the pipeline itself keeps going.
var ErrNoProxy = errors.New("no proxy available")

// FailKind classifies fetch failures after retries are exhausted.
type FailKind string

// Fetch failure kinds.
const (
	FailNoProxy FailKind = "no_proxy"
	FailNetwork FailKind = "network"
	FailBlocked FailKind = "blocked"
	FailParse   FailKind = "parse"
)

// FetchError is the terminal failure of a fetch, after the retry budget.
type FetchError struct {
	Kind FailKind
	Key  SourceKey
	Err  error
}

func (e *FetchError) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("fetch %s: %s", e.Key, e.Kind)
	}
	return fmt.Sprintf("fetch %s: %s: %v", e.Key, e.Kind, e.Err)
}

func (e *FetchError) Unwrap() error { return e.Err }

// ParseReason distinguishes tolerable gaps from systemic breakage.
type ParseReason string

// Parse failure reasons.
const (
	// ReasonStructureChanged means the page layout no longer matches the
	// parser's expectations. This affects every future resolution of the
	// kind, so it is surfaced loudly rather than skipped.
	ReasonStructureChanged ParseReason = "structure_changed"
	// ReasonEmptyBody means there was nothing to parse at all.
	ReasonEmptyBody ParseReason = "empty_body"
)

// ParseError is a parser's terminal failure. Missing optional fields do not
// produce a ParseError; they produce a partial draft.
type ParseError struct {
	Reason ParseReason
	Key    SourceKey
	Detail string
}

func (e *ParseError) Error() string {
	if e.Detail == "" {
		return fmt.Sprintf("parse %s: %s", e.Key, e.Reason)
	}
	return fmt.Sprintf("parse %s: %s: %s", e.Key, e.Reason, e.Detail)
}

// AsFetchError unwraps err as a *FetchError if possible.
func AsFetchError(err error) (*FetchError, bool) {
	var fe *FetchError
	if errors.As(err, &fe) {
		return fe, true
	}
	return nil, false
}

// AsParseError unwraps err as a *ParseError if possible.
func AsParseError(err error) (*ParseError, bool) {
	var pe *ParseError
	if errors.As(err, &pe) {
		return pe, true
	}
	return nil, false
}
