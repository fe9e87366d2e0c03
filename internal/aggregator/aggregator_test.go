package aggregator

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"
	"time"

	"freshctx/internal/logger"
	"freshctx/internal/models"
	"freshctx/internal/normalizer"
	"freshctx/internal/sources"
)

// mockSource returns canned records, an error, a panic or blocks until its context ends.
type mockSource struct {
	name    string
	records []models.ContextRecord
	err     error
	panics  bool
	blocks  bool
	gotHint int
}

func (m *mockSource) Name() string { return m.name }

func (m *mockSource) Fetch(ctx context.Context, _ string, limitHint int) ([]models.ContextRecord, error) {
	m.gotHint = limitHint

	if m.panics {
		panic("malformed search response")
	}

	if m.blocks {
		<-ctx.Done()
		return nil, ctx.Err()
	}

	return m.records, m.err
}

func record(provider, url, published string) models.ContextRecord {
	return normalizer.Build(models.RecordInput{
		Provider:  provider,
		Title:     provider + " " + url,
		URL:       url,
		Published: published,
	})
}

func newTestAggregator(timeout time.Duration, srcs ...sources.Source) *Aggregator {
	a := NewWithSources(srcs, timeout, nil)
	a.newID = func() string { return "run-test" }

	return a
}

func TestAggregate_KeepsNewerDuplicate(t *testing.T) {
	older := record("rss", "https://example.org/dup", "2024-01-01 00:00 UTC")
	newer := record("semantic_scholar", "https://example.org/dup", "2024-02-01 00:00 UTC")

	a := newTestAggregator(time.Second,
		&mockSource{name: "newsapi", records: []models.ContextRecord{older}},
		&mockSource{name: "arxiv"},
		&mockSource{name: "github"},
		&mockSource{name: "semantic_scholar", records: []models.ContextRecord{newer}},
		&mockSource{name: "crossref"},
		&mockSource{name: "proceedings"},
		&mockSource{name: "rss"},
	)

	got := a.Aggregate(context.Background(), "test", 5)
	if len(got) != 1 {
		t.Fatalf("expected 1 record, got %d", len(got))
	}

	if got[0].Provider != "semantic_scholar" || got[0].PublishedAt != "2024-02-01 00:00 UTC" {
		t.Errorf("kept %q at %q, want the February record", got[0].Provider, got[0].PublishedAt)
	}
}

func TestMerge_DedupIndependentOfOrder(t *testing.T) {
	jan := record("a", "https://example.org/dup", "2024-01-01 00:00 UTC")
	feb := record("b", "https://example.org/dup", "2024-02-01 00:00 UTC")

	for _, in := range [][]models.ContextRecord{{jan, feb}, {feb, jan}} {
		got := Merge(in, 8)
		if len(got) != 1 || got[0].Provider != "b" {
			t.Errorf("Merge(%s first) = %+v", in[0].Provider, got)
		}
	}
}

func TestMerge_DedupWithoutURL(t *testing.T) {
	a := normalizer.Build(models.RecordInput{Provider: "rss", Source: "Blog", Title: "Same", Published: "2024-01-01"})
	b := normalizer.Build(models.RecordInput{Provider: "rss", Source: "Blog", Title: "Same", Published: "2024-03-01"})
	c := normalizer.Build(models.RecordInput{Provider: "rss", Source: "Other", Title: "Same", Published: "2024-02-01"})

	got := Merge([]models.ContextRecord{a, b, c}, 8)
	if len(got) != 2 {
		t.Fatalf("expected 2 records, got %d", len(got))
	}

	if got[0].PublishedAt != "2024-03-01 00:00 UTC" || got[1].Source != "Other" {
		t.Errorf("unexpected merge result %+v", got)
	}
}

func TestMerge_RankAndUnknownLast(t *testing.T) {
	in := []models.ContextRecord{
		record("p", "https://x.test/unknown", "not a date"),
		record("p", "https://x.test/2023", "2023-06-01T00:00:00Z"),
		record("p", "https://x.test/2025", "2025-01-01"),
		record("p", "https://x.test/2024", "2024"),
	}

	got := Merge(in, 8)

	for i := 1; i < len(got); i++ {
		if got[i].PublishedTime().After(got[i-1].PublishedTime()) {
			t.Errorf("record %d (%s) is newer than record %d (%s)", i, got[i].PublishedAt, i-1, got[i-1].PublishedAt)
		}
	}

	if got[len(got)-1].PublishedAt != models.UnknownDate {
		t.Errorf("last record = %q, want the unknown-dated one", got[len(got)-1].PublishedAt)
	}

	if got[0].URL != "https://x.test/2025" {
		t.Errorf("first record = %q", got[0].URL)
	}
}

func TestMerge_UnknownNeverReplacesDated(t *testing.T) {
	dated := record("a", "https://x.test/same", "2024-01-01")
	unknown := record("b", "https://x.test/same", "")

	got := Merge([]models.ContextRecord{dated, unknown}, 8)
	if len(got) != 1 || got[0].Provider != "a" {
		t.Errorf("Merge = %+v", got)
	}
}

func TestMerge_Truncates(t *testing.T) {
	var in []models.ContextRecord
	for i := 1; i <= 20; i++ {
		in = append(in, record("p", fmt.Sprintf("https://x.test/%d", i), fmt.Sprintf("2024-01-%02d", i)))
	}

	if got := Merge(in, 5); len(got) != 5 || got[0].URL != "https://x.test/20" {
		t.Errorf("Merge(limit 5) returned %d records starting at %q", len(got), got[0].URL)
	}

	if got := Merge(in, 0); len(got) != DefaultLimit {
		t.Errorf("Merge(limit 0) returned %d records, want %d", len(got), DefaultLimit)
	}

	if got := Merge(nil, 5); len(got) != 0 {
		t.Errorf("Merge(nil) returned %d records", len(got))
	}
}

func TestRun_SurvivesFailingSources(t *testing.T) {
	good := func(name string) *mockSource {
		return &mockSource{name: name, records: []models.ContextRecord{
			record(name, "https://x.test/"+name, "2024-05-01"),
		}}
	}

	a := newTestAggregator(time.Second,
		good("newsapi"),
		&mockSource{name: "arxiv", panics: true},
		good("github"),
		good("semantic_scholar"),
		good("crossref"),
		good("proceedings"),
		good("rss"),
	)

	result := a.Run(context.Background(), "agents", 10)

	if len(result.Records) != 6 {
		t.Fatalf("expected 6 records from the healthy sources, got %d", len(result.Records))
	}

	failed := result.Failed()
	if len(failed) != 1 || failed[0].Provider != "arxiv" {
		t.Fatalf("failed outcomes = %+v", failed)
	}

	if !errors.Is(failed[0].Err, ErrSourcePanic) || !strings.Contains(failed[0].Err.Error(), "malformed search response") {
		t.Errorf("panic not captured in error: %v", failed[0].Err)
	}

	if result.RunID != "run-test" || result.Limit != 10 || result.Query != "agents" {
		t.Errorf("run bookkeeping = %q/%d/%q", result.RunID, result.Limit, result.Query)
	}
}

func TestRun_LogsPanicsAsErrors(t *testing.T) {
	var buf bytes.Buffer

	a := NewWithSources([]sources.Source{
		&mockSource{name: "arxiv", panics: true},
		&mockSource{name: "github", err: errors.New("rate limited")},
	}, time.Second, logger.New("warn", "text", &buf))

	a.Run(context.Background(), "agents", 3)

	var panicLine, errLine string

	for _, line := range strings.Split(buf.String(), "\n") {
		switch {
		case strings.Contains(line, "provider=arxiv"):
			panicLine = line
		case strings.Contains(line, "provider=github"):
			errLine = line
		}
	}

	if !strings.Contains(panicLine, "level=ERROR") {
		t.Errorf("panic log line = %q, want level=ERROR", panicLine)
	}

	if !strings.Contains(errLine, "level=WARN") {
		t.Errorf("error log line = %q, want level=WARN", errLine)
	}
}

func TestRun_ErrorOutcome(t *testing.T) {
	a := newTestAggregator(time.Second,
		&mockSource{name: "arxiv", err: errors.New("arXiv feed: unexpected EOF")},
		&mockSource{name: "rss", records: []models.ContextRecord{record("rss", "https://x.test/1", "2024-01-01")}},
	)

	result := a.Run(context.Background(), "q", 0)

	if result.Limit != DefaultLimit {
		t.Errorf("Limit = %d, want default", result.Limit)
	}

	if len(result.Records) != 1 || len(result.Failed()) != 1 {
		t.Errorf("records %d, failed %d", len(result.Records), len(result.Failed()))
	}

	if result.Outcomes[0].Provider != "arxiv" || result.Outcomes[1].Provider != "rss" {
		t.Errorf("outcomes not in dispatch order: %+v", result.Outcomes)
	}
}

func TestRun_TimeoutDoesNotBlockOthers(t *testing.T) {
	fast := &mockSource{name: "rss", records: []models.ContextRecord{record("rss", "https://x.test/1", "2024-01-01")}}
	slow := &mockSource{name: "github", blocks: true}

	a := newTestAggregator(50*time.Millisecond, slow, fast)

	start := time.Now()
	result := a.Run(context.Background(), "q", 8)

	if elapsed := time.Since(start); elapsed > 2*time.Second {
		t.Errorf("run took %v", elapsed)
	}

	if len(result.Records) != 1 {
		t.Errorf("expected the fast source's record, got %d", len(result.Records))
	}

	if !errors.Is(result.Outcomes[0].Err, context.DeadlineExceeded) {
		t.Errorf("slow outcome error = %v, want deadline exceeded", result.Outcomes[0].Err)
	}
}

func TestRun_PassesLimitHint(t *testing.T) {
	src := &mockSource{name: "newsapi"}

	newTestAggregator(time.Second, src).Run(context.Background(), "q", 3)

	if src.gotHint != 3 {
		t.Errorf("limit hint = %d, want 3", src.gotHint)
	}
}

func TestSources(t *testing.T) {
	a := newTestAggregator(0, &mockSource{name: "a"}, &mockSource{name: "b"})

	if got := strings.Join(a.Sources(), ","); got != "a,b" {
		t.Errorf("Sources() = %q", got)
	}
}
