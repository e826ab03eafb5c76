// Package resolver orchestrates one entity's journey from identifier to
// catalog row: staleness check, fetch, parse, exclusion filter, upsert, and
// ledger write. Failures are contained per identifier; a batch never aborts.
package resolver

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"shelfsync/internal/exclusion"
	"shelfsync/internal/scrape"
	"shelfsync/internal/telemetry"
)

// Options steer a single resolve call or a whole batch.
type Options struct {
	// Scrape forces a network refetch and skips the staleness check.
	Scrape bool
	// DryRun runs the full pipeline but suppresses the upsert and the
	// ledger write, leaving both stores untouched.
	DryRun bool
	// Source tags ledger writes with how the entity was discovered.
	Source string
	// MaxAge is the staleness window. An entity synced within it is skipped
	// without any fetch. Zero disables skipping.
	MaxAge time.Duration
}

// Resolver wires the pipeline collaborators together.
type Resolver struct {
	fetcher scrape.Fetcher
	parsers map[scrape.EntityKind]scrape.Parser
	filter  *exclusion.Filter
	ledger  scrape.Ledger
	store   scrape.Persister
	clock   scrape.Clock
	logger  *zap.Logger

	locks keyLocks
}

// New builds a resolver. The filter applies to book drafts only; other kinds
// pass through unfiltered.
func New(
	fetcher scrape.Fetcher,
	parsers map[scrape.EntityKind]scrape.Parser,
	filter *exclusion.Filter,
	ledger scrape.Ledger,
	store scrape.Persister,
	clock scrape.Clock,
	logger *zap.Logger,
) *Resolver {
	return &Resolver{
		fetcher: fetcher,
		parsers: parsers,
		filter:  filter,
		ledger:  ledger,
		store:   store,
		clock:   clock,
		logger:  logger,
		locks:   keyLocks{held: make(map[string]*sync.Mutex)},
	}
}

// Resolve runs the pipeline for one identifier. Concurrent calls for the
// same (kind, id) serialize on a per-key lock so they cannot interleave
// fetches or double-write the ledger.
func (r *Resolver) Resolve(ctx context.Context, key scrape.SourceKey, opts Options) scrape.Outcome {
	unlock := r.locks.lock(key.String())
	defer unlock()

	outcome := r.resolveLocked(ctx, key, opts)
	telemetry.ObserveResolveOutcome(string(key.Kind), string(outcome.Status))
	r.logOutcome(outcome)
	return outcome
}

func (r *Resolver) resolveLocked(ctx context.Context, key scrape.SourceKey, opts Options) scrape.Outcome {
	if !opts.Scrape && opts.MaxAge > 0 {
		last, found, err := r.ledger.LastSynced(ctx, key.Kind, key.ID)
		if err != nil {
			return scrape.Outcome{Key: key, Status: scrape.StatusFailed, Err: err}
		}
		if found && r.clock.Now().Sub(last) < opts.MaxAge {
			return scrape.Outcome{Key: key, Status: scrape.StatusSkipped}
		}
	}

	mode := scrape.PreferCache
	if opts.Scrape {
		mode = scrape.ForceRefetch
	}

	// A failed fetch leaves the ledger untouched: the entity was not
	// reconciled, so the next run must try again.
	page, err := r.fetcher.Fetch(ctx, key, mode)
	if err != nil {
		return scrape.Outcome{Key: key, Status: scrape.StatusFailed, Err: err}
	}

	parser, ok := r.parsers[key.Kind]
	if !ok {
		return scrape.Outcome{Key: key, Status: scrape.StatusFailed, Err: &scrape.ParseError{
			Reason: scrape.ReasonStructureChanged,
			Key:    key,
			Detail: "no parser registered for kind",
		}}
	}

	draft, err := parser.Parse(key, page.Body)
	if err != nil {
		if perr, ok := scrape.AsParseError(err); ok {
			telemetry.ObserveParseFailure(string(key.Kind), string(perr.Reason))
		}
		return scrape.Outcome{Key: key, Status: scrape.StatusFailed, Err: err}
	}

	if key.Kind == scrape.KindBook && r.filter != nil {
		if decision := r.filter.Evaluate(draft); decision.Rejected {
			// A rejection is still a completed reconciliation: the ledger
			// records it so the entity is not refetched every run.
			if !opts.DryRun {
				if err := r.markSynced(ctx, key, opts.Source); err != nil {
					return scrape.Outcome{Key: key, Status: scrape.StatusFailed, Err: err}
				}
			}
			return scrape.Outcome{
				Key:         key,
				Status:      scrape.StatusRejected,
				Rule:        decision.Rule,
				RuleVersion: decision.Version,
			}
		}
	}

	outcome := scrape.Outcome{Key: key, Status: scrape.StatusResolved}
	if opts.DryRun {
		return outcome
	}

	entityID, err := r.store.Upsert(ctx, draft)
	if err != nil {
		return scrape.Outcome{Key: key, Status: scrape.StatusFailed, Err: err}
	}
	outcome.EntityID = entityID

	if err := r.markSynced(ctx, key, opts.Source); err != nil {
		// The upsert landed, so the worst case is one redundant refetch
		// next run. Idempotent upserts make that harmless.
		r.logger.Warn("ledger write failed after upsert",
			zap.String("key", key.String()),
			zap.Error(err),
		)
	}
	return outcome
}

func (r *Resolver) markSynced(ctx context.Context, key scrape.SourceKey, source string) error {
	return r.ledger.MarkSynced(ctx, scrape.SyncRecord{
		Kind:       key.Kind,
		ID:         key.ID,
		LastSynced: r.clock.Now(),
		Source:     source,
	})
}

// ResolveMany resolves a batch of identifiers of one kind, sequentially so
// the rate limiter and proxy pool see a predictable request stream. One
// identifier's failure never aborts the batch; cancellation stops new work
// without discarding completed outcomes.
func (r *Resolver) ResolveMany(ctx context.Context, kind scrape.EntityKind, ids []string, opts Options) scrape.Summary {
	summary := scrape.Summary{RunID: uuid.NewString(), Kind: kind}

	for _, id := range ids {
		if ctx.Err() != nil {
			r.logger.Warn("batch interrupted",
				zap.String("run_id", summary.RunID),
				zap.Int("remaining", len(ids)-len(summary.Outcomes)),
			)
			break
		}
		summary.Add(r.Resolve(ctx, scrape.NewSourceKey(kind, id), opts))
	}

	r.logger.Info("batch finished",
		zap.String("run_id", summary.RunID),
		zap.String("kind", string(kind)),
		zap.Int("resolved", summary.Resolved),
		zap.Int("skipped", summary.Skipped),
		zap.Int("rejected", summary.Rejected),
		zap.Int("failed", summary.Failed),
	)
	return summary
}

func (r *Resolver) logOutcome(o scrape.Outcome) {
	fields := []zap.Field{
		zap.String("key", o.Key.String()),
		zap.String("status", string(o.Status)),
	}
	switch o.Status {
	case scrape.StatusFailed:
		fields = append(fields, zap.Error(o.Err))
		if perr, ok := scrape.AsParseError(o.Err); ok && perr.Reason == scrape.ReasonStructureChanged {
			// Structure drift breaks every future resolution of the kind.
			r.logger.Error("page structure changed", fields...)
			return
		}
		r.logger.Warn("resolve failed", fields...)
	case scrape.StatusRejected:
		fields = append(fields,
			zap.String("rule", o.Rule),
			zap.String("rule_version", o.RuleVersion),
		)
		r.logger.Info("draft rejected", fields...)
	default:
		r.logger.Debug("resolved", fields...)
	}
}

// keyLocks hands out one mutex per key string.
type keyLocks struct {
	mu   sync.Mutex
	held map[string]*sync.Mutex
}

func (l *keyLocks) lock(key string) func() {
	l.mu.Lock()
	m, ok := l.held[key]
	if !ok {
		m = &sync.Mutex{}
		l.held[key] = m
	}
	l.mu.Unlock()

	m.Lock()
	return m.Unlock
}
