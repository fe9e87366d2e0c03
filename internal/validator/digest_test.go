package validator

import (
	"errors"
	"strings"
	"testing"
	"time"

	"freshctx/internal/formatter"
	"freshctx/internal/models"
	"freshctx/pkg/metadata"
)

func render(records []models.ContextRecord) string {
	return formatter.RenderDigest(formatter.Digest{
		GeneratedAt: time.Date(2026, time.March, 1, 9, 0, 0, 0, time.UTC),
		RunID:       "run-1",
		Query:       "agents",
		Records:     records,
	})
}

func ranked() []models.ContextRecord {
	return []models.ContextRecord{
		{Provider: "rss", Source: "Lab Blog", Title: "Agents, revisited", PublishedAt: "2026-02-28 10:00 UTC"},
		{Provider: "crossref", Source: "JMLR", Title: "Agent theory", PublishedAt: "2026-02-20 00:00 UTC"},
		{Provider: "github", Source: "org/repo", Title: "v1.0", PublishedAt: models.UnknownDate},
	}
}

func TestValidate_RenderedDigest(t *testing.T) {
	result := Validate(render(ranked()))

	if !result.IsValid {
		t.Fatalf("expected valid digest, got %v", result.Err())
	}

	if result.Stats.TotalRows != 3 || result.Stats.ValidRows != 3 || result.Stats.UndatedRows != 1 {
		t.Errorf("stats = %+v", result.Stats)
	}

	if result.Meta == nil || result.Meta.RunID != "run-1" {
		t.Errorf("meta = %+v", result.Meta)
	}

	if !strings.HasPrefix(result.String(), "✅ VALID") {
		t.Errorf("String() = %q", result.String())
	}
}

func TestValidate_EmptyDigest(t *testing.T) {
	result := Validate(render(nil))

	if !result.IsValid || result.Stats.TotalRows != 0 {
		t.Errorf("empty digest: valid=%v stats=%+v err=%v", result.IsValid, result.Stats, result.Err())
	}
}

func TestValidateTable_RankOrder(t *testing.T) {
	records := ranked()
	records[0], records[1] = records[1], records[0]

	result := ValidateTable(render(records))

	if result.IsValid {
		t.Fatal("expected out-of-order records to fail")
	}

	if !errors.Is(result.Err(), ErrRankOrder) {
		t.Errorf("expected ErrRankOrder, got %v", result.Err())
	}
}

func TestValidateTable_UndatedBeforeDated(t *testing.T) {
	records := ranked()
	records[1], records[2] = records[2], records[1]

	if result := ValidateTable(render(records)); !errors.Is(result.Err(), ErrRankOrder) {
		t.Errorf("expected ErrRankOrder, got %v", result.Err())
	}
}

func TestValidateTable_BadRows(t *testing.T) {
	content := strings.Join([]string{
		"| # | Published | Provider | Source | Title |",
		"| --- | --- | --- | --- | --- |",
		"| 1 | yesterday | rss | Blog | A |",
		"| 3 | 2026-01-01 00:00 UTC |  | Blog |  |",
		"| 4 | 2026-01-01 |",
	}, "\n")

	result := ValidateTable(content)

	if result.IsValid {
		t.Fatal("expected invalid table")
	}

	if result.Stats.TotalRows != 3 || result.Stats.InvalidRows != 3 {
		t.Errorf("stats = %+v", result.Stats)
	}

	if !errors.Is(result.Err(), ErrInvalidPublish) {
		t.Errorf("expected ErrInvalidPublish, got %v", result.Err())
	}

	fields := map[string]bool{}
	for _, e := range result.Errors {
		fields[e.Field] = true
	}

	for _, want := range []string{"published", "#", "provider", "title"} {
		if !fields[want] {
			t.Errorf("missing error for field %q: %+v", want, result.Errors)
		}
	}
}

func TestValidateTable_IgnoresOtherTables(t *testing.T) {
	content := "| Key | Value |\n| --- | --- |\n| a | b |\n"

	if result := ValidateTable(content); !result.IsValid || result.Stats.TotalRows != 0 {
		t.Errorf("unrelated table validated: %+v", result)
	}
}

func TestValidate_Tampered(t *testing.T) {
	content := strings.Replace(render(ranked()), "Agent theory", "Agent practice", 1)

	result := Validate(content)

	if result.IsValid {
		t.Fatal("expected tampered digest to fail")
	}

	if !errors.Is(result.Err(), metadata.ErrHashMismatch) {
		t.Errorf("expected ErrHashMismatch, got %v", result.Err())
	}
}

func TestValidate_CountMismatch(t *testing.T) {
	_, body := metadata.Extract(render(ranked()))
	lines := strings.Split(body, "\n")

	var kept []string
	for _, line := range lines {
		if !strings.Contains(line, "Agent theory") {
			kept = append(kept, line)
		}
	}

	// restamp the edited body with the original count
	content := metadata.Stamp(strings.Join(kept, "\n"), metadata.Metadata{RunID: "run-1", Query: "agents", Records: 3})

	result := Validate(content)
	if !errors.Is(result.Err(), ErrCountMismatch) {
		t.Errorf("expected ErrCountMismatch, got %v", result.Err())
	}
}
