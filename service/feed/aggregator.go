// Package feed aggregates the colony's on-chain activity into a single
// chronologically ordered feed.
package feed

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/awrenn/colonyfeed/service/colony"
	"github.com/awrenn/colonyfeed/service/metrics"
	"golang.org/x/sync/errgroup"
)

// SourceError reports that one category's event fetch failed. The category
// contributes zero records to the feed; the other categories are unaffected.
type SourceError struct {
	Category colony.EventCategory `json:"category"`
	Message  string               `json:"message"`
}

// Snapshot is the committed state handed to callers: an immutable copy of
// the feed, any category failures from the cycle that produced it, and
// whether a cycle is currently in flight.
type Snapshot struct {
	Events   []colony.Event
	Warnings []SourceError
	Loading  bool
}

// pendingEvent pairs a normalized event with its in-flight timestamp
// resolution.
type pendingEvent struct {
	event colony.Event
	ts    *colony.TimestampFuture
}

// Aggregator fans out to the four category fetches, normalizes every
// record, joins the full set of deferred block timestamps once, sorts the
// merged collection newest-first, and commits it as the feed in one atomic
// replace. It exclusively owns the in-flight merge state; callers only ever
// see committed snapshots.
type Aggregator struct {
	reader     colony.ChainReader
	timestamps *colony.TimestampResolver
	addresses  *colony.AddressResolver
	symbols    colony.SymbolTable
	logger     *slog.Logger
	metrics    *metrics.Metrics

	mu         sync.RWMutex
	generation uint64
	loading    bool
	events     []colony.Event
	warnings   []SourceError
}

// New creates an Aggregator over the given chain reader. The symbol table
// decides token tickers during normalization; metrics may be nil.
func New(reader colony.ChainReader, symbols colony.SymbolTable, m *metrics.Metrics, logger *slog.Logger) *Aggregator {
	return &Aggregator{
		reader:     reader,
		timestamps: colony.NewTimestampResolver(reader, logger),
		addresses:  colony.NewAddressResolver(reader, logger),
		symbols:    symbols,
		logger:     logger,
		metrics:    m,
	}
}

// Refresh runs one full aggregation cycle and commits the result. The four
// category fetches run concurrently; a failed category is isolated as a
// warning while the others proceed. When a newer cycle has started in the
// meantime, the result is discarded rather than committed over it.
//
// The returned slice is the cycle's own; the caller may keep it.
func (a *Aggregator) Refresh(ctx context.Context) ([]colony.Event, []SourceError, error) {
	gen := a.beginCycle()
	start := time.Now()

	events, warnings, err := a.aggregate(ctx)

	status := "success"
	if err != nil {
		status = "error"
	}
	if a.metrics != nil {
		a.metrics.RecordFeedRefresh(status, time.Since(start).Seconds(), len(events))
	}
	if err != nil {
		a.endCycle(gen)
		return nil, nil, err
	}

	if !a.commit(gen, events, warnings) {
		// A newer cycle superseded this one while it was in flight; its
		// result must not clobber the newer feed.
		a.logger.DebugContext(ctx, "discarding stale aggregation cycle", "generation", gen)
		return events, warnings, nil
	}

	a.logger.InfoContext(ctx, "committed feed",
		"events", len(events),
		"failed_categories", len(warnings),
		"duration", time.Since(start).String(),
	)
	return events, warnings, nil
}

// Snapshot returns the committed feed without blocking on any in-flight
// cycle. The event slice is a copy; mutating it does not affect the feed.
func (a *Aggregator) Snapshot() Snapshot {
	a.mu.RLock()
	defer a.mu.RUnlock()

	events := make([]colony.Event, len(a.events))
	copy(events, a.events)
	warnings := make([]SourceError, len(a.warnings))
	copy(warnings, a.warnings)

	return Snapshot{Events: events, Warnings: warnings, Loading: a.loading}
}

// ResolveRecipient resolves the payout recipient behind a funding pot. The
// aggregator leaves this to per-row callers on purpose: the two-hop lookup
// is slower than the timestamp joins and has no bearing on feed order.
func (a *Aggregator) ResolveRecipient(ctx context.Context, fundingPotID string) (string, error) {
	recipient, err := a.addresses.Resolve(ctx, fundingPotID)
	if a.metrics != nil {
		status := "success"
		if err != nil {
			status = "error"
		}
		a.metrics.RecordRecipientLookup(status)
	}
	return recipient, err
}

// aggregate performs the fetch, normalize, join, and sort steps and returns
// the finished collection without touching committed state.
func (a *Aggregator) aggregate(ctx context.Context) ([]colony.Event, []SourceError, error) {
	categories := colony.Categories()

	type categoryResult struct {
		pending []pendingEvent
		err     error
	}
	results := make([]categoryResult, len(categories))

	// Fan out the category fetches. Failures stay in their slot so one bad
	// source cannot cancel the rest.
	var g errgroup.Group
	for i, cat := range categories {
		g.Go(func() error {
			raws, err := a.reader.FilterEvents(ctx, cat)
			if err != nil {
				if a.metrics != nil {
					a.metrics.RecordFetchFailure(cat.String())
				}
				results[i].err = err
				return nil
			}
			if a.metrics != nil {
				a.metrics.RecordEventsFetched(cat.String(), len(raws))
			}

			pending := make([]pendingEvent, 0, len(raws))
			for _, raw := range raws {
				ev, err := colony.Normalize(raw, a.symbols)
				if err != nil {
					// An unknown category means the reader and the
					// normalizer disagree about the category set. That is
					// not a per-record degradation; fail the cycle.
					if a.metrics != nil {
						a.metrics.RecordEventNormalized(cat.String(), "error")
					}
					results[i].err = fmt.Errorf("normalize %s record: %w", cat, err)
					return nil
				}
				if a.metrics != nil {
					a.metrics.RecordEventNormalized(cat.String(), "success")
				}
				// Timestamp resolution is fire-and-forget here; the full
				// set is joined below, after every category has fetched.
				pending = append(pending, pendingEvent{
					event: ev,
					ts:    a.timestamps.Resolve(ctx, raw.BlockHash),
				})
			}
			results[i].pending = pending
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, nil, err
	}

	// Concatenate in fixed category order. The final order is date-derived,
	// so this only decides the tie-break for identical timestamps.
	var merged []pendingEvent
	var warnings []SourceError
	for i, cat := range categories {
		if err := results[i].err; err != nil {
			if errors.Is(err, colony.ErrUnknownCategory) {
				return nil, nil, err
			}
			a.logger.WarnContext(ctx, "category fetch failed, continuing without it",
				"category", cat.String(),
				"error", err,
			)
			warnings = append(warnings, SourceError{Category: cat, Message: err.Error()})
			continue
		}
		merged = append(merged, results[i].pending...)
	}

	// Join every timestamp before any ordering decision. A single failed
	// lookup degrades that one record to the unknown-date sentinel instead
	// of stalling the feed.
	events := make([]colony.Event, len(merged))
	for i, p := range merged {
		ev := p.event
		sec, err := p.ts.Wait(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return nil, nil, ctx.Err()
			}
			ev.Timestamp = 0
			ev.TimestampUnknown = true
		} else {
			ev.Timestamp = sec
			ev.DisplayDate = colony.FormatDisplayDate(sec)
		}
		events[i] = ev
	}

	// Newest first; the stable sort keeps discovery order for ties.
	sort.SliceStable(events, func(i, j int) bool {
		return events[i].Timestamp > events[j].Timestamp
	})

	return events, warnings, nil
}

// beginCycle marks a new cycle as the current generation and flips the
// loading flag.
func (a *Aggregator) beginCycle() uint64 {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.generation++
	a.loading = true
	return a.generation
}

// commit atomically replaces the feed if the cycle is still current.
func (a *Aggregator) commit(gen uint64, events []colony.Event, warnings []SourceError) bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	if gen != a.generation {
		return false
	}
	a.events = events
	a.warnings = warnings
	a.loading = false
	return true
}

// endCycle clears the loading flag for a failed cycle that is still current.
func (a *Aggregator) endCycle(gen uint64) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if gen == a.generation {
		a.loading = false
	}
}
