// Package aggregator fans a query out to every source adapter and merges
// their records into one bounded, recency-ordered list.
package aggregator

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"freshctx/internal/config"
	"freshctx/internal/crawler"
	"freshctx/internal/logger"
	"freshctx/internal/models"
	"freshctx/internal/sources"
)

// DefaultLimit applies when a caller passes a non-positive limit.
const DefaultLimit = 8

// ErrSourcePanic marks the outcome of a source that panicked during Fetch.
var ErrSourcePanic = errors.New("source panicked")

// Outcome is what a single source produced during one run.
type Outcome struct {
	Provider string
	Records  []models.ContextRecord
	Err      error
	Elapsed  time.Duration
}

// Result is a completed run.
type Result struct {
	RunID     string
	Query     string
	Limit     int
	StartedAt time.Time
	Elapsed   time.Duration
	Records   []models.ContextRecord
	Outcomes  []Outcome
}

// Failed returns the outcomes that ended with an error.
func (r Result) Failed() []Outcome {
	var failed []Outcome

	for _, o := range r.Outcomes {
		if o.Err != nil {
			failed = append(failed, o)
		}
	}

	return failed
}

// Aggregator dispatches every source concurrently and merges the results.
type Aggregator struct {
	sources []sources.Source
	timeout time.Duration
	log     *logger.Logger
	newID   func() string
}

// New builds an aggregator over every adapter enabled in cfg, sharing one scraper.
func New(cfg *config.Config, log *logger.Logger) *Aggregator {
	scraper := crawler.NewScraperWithConfig(&cfg.Retrieval)

	return NewWithSources(sources.FromConfig(cfg, scraper, log), cfg.Retrieval.AdapterTimeout(), log)
}

// NewWithSources builds an aggregator over an explicit source list.
// A non-positive timeout leaves sources bounded only by the caller's context.
func NewWithSources(srcs []sources.Source, timeout time.Duration, log *logger.Logger) *Aggregator {
	if log == nil {
		log = logger.Discard()
	}

	return &Aggregator{
		sources: srcs,
		timeout: timeout,
		log:     log,
		newID:   uuid.NewString,
	}
}

// Sources returns the provider names in dispatch order.
func (a *Aggregator) Sources() []string {
	names := make([]string, len(a.sources))
	for i, s := range a.sources {
		names[i] = s.Name()
	}

	return names
}

// Aggregate returns at most limit records for query, newest first.
func (a *Aggregator) Aggregate(ctx context.Context, query string, limit int) []models.ContextRecord {
	return a.Run(ctx, query, limit).Records
}

// Run is Aggregate with per-source outcomes and run bookkeeping attached.
func (a *Aggregator) Run(ctx context.Context, query string, limit int) Result {
	if limit <= 0 {
		limit = DefaultLimit
	}

	result := Result{
		RunID:     a.newID(),
		Query:     query,
		Limit:     limit,
		StartedAt: time.Now().UTC(),
	}

	log := a.log.With("run_id", result.RunID)
	log.Info("🚀 aggregation started", "query", query, "limit", limit, "sources", len(a.sources))

	result.Outcomes = a.dispatch(ctx, query, limit)

	var collected []models.ContextRecord

	for _, o := range result.Outcomes {
		if errors.Is(o.Err, ErrSourcePanic) {
			log.Error("❌ source panicked", "provider", o.Provider, "error", o.Err, "elapsed", o.Elapsed)
			continue
		}

		if o.Err != nil {
			log.Warn("source failed", "provider", o.Provider, "error", o.Err, "elapsed", o.Elapsed)
			continue
		}

		log.Debug("source finished", "provider", o.Provider, "records", len(o.Records), "elapsed", o.Elapsed)
		collected = append(collected, o.Records...)
	}

	result.Records = Merge(collected, limit)
	result.Elapsed = time.Since(result.StartedAt)

	log.Info("✅ aggregation finished",
		"collected", len(collected),
		"returned", len(result.Records),
		"failed", len(result.Failed()),
		"elapsed", result.Elapsed)

	return result
}

// dispatch runs every source in its own goroutine and waits for all of them.
// Outcomes are index-aligned with a.sources.
func (a *Aggregator) dispatch(ctx context.Context, query string, limit int) []Outcome {
	outcomes := make([]Outcome, len(a.sources))

	var wg sync.WaitGroup

	for i, src := range a.sources {
		wg.Add(1)

		go func(index int, src sources.Source) {
			defer wg.Done()

			outcomes[index] = a.invoke(ctx, src, query, limit)
		}(i, src)
	}

	wg.Wait()

	return outcomes
}

func (a *Aggregator) invoke(ctx context.Context, src sources.Source, query string, limit int) (out Outcome) {
	out.Provider = src.Name()
	start := time.Now()

	if a.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, a.timeout)

		defer cancel()
	}

	defer func() {
		if r := recover(); r != nil {
			out.Records = nil
			out.Err = fmt.Errorf("%w: %s: %v", ErrSourcePanic, out.Provider, r)
		}

		out.Elapsed = time.Since(start)
	}()

	out.Records, out.Err = src.Fetch(ctx, query, limit)

	if out.Err == nil && ctx.Err() != nil {
		out.Err = fmt.Errorf("source %s: %w", out.Provider, ctx.Err())
		out.Records = nil
	}

	return out
}

// Merge deduplicates records, orders them newest first and keeps at most limit.
//
// Records sharing a DedupKey collapse to the one with the later timestamp;
// on a tie the first one seen stays. Unknown-dated records sort last.
func Merge(records []models.ContextRecord, limit int) []models.ContextRecord {
	if limit <= 0 {
		limit = DefaultLimit
	}

	index := make(map[string]int, len(records))
	merged := make([]models.ContextRecord, 0, len(records))

	for _, record := range records {
		key := record.DedupKey()

		pos, seen := index[key]
		if !seen {
			index[key] = len(merged)
			merged = append(merged, record)

			continue
		}

		if record.PublishedTime().After(merged[pos].PublishedTime()) {
			merged[pos] = record
		}
	}

	sort.SliceStable(merged, func(i, j int) bool {
		return merged[i].PublishedTime().After(merged[j].PublishedTime())
	})

	if len(merged) > limit {
		merged = merged[:limit]
	}

	return merged
}
