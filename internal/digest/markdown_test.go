package digest

import (
	"strings"
	"testing"
	"time"

	"github.com/dukanov/research-monitor/internal/domain"
)

func entry(t *testing.T, itemType domain.ItemType, title string, score float64) domain.DigestEntry {
	t.Helper()
	item, err := domain.NewItem(itemType, title, "https://example.org/"+title, "content", "test", time.Now(), nil)
	if err != nil {
		t.Fatalf("build item: %v", err)
	}
	return domain.DigestEntry{Item: item, Summary: "summary of " + title, Score: score}
}

func TestRenderEmpty(t *testing.T) {
	t.Parallel()

	got := NewMarkdown().Render(nil, time.Date(2026, 8, 24, 0, 0, 0, 0, time.UTC))
	if !strings.Contains(got, "24.08.2026") {
		t.Fatalf("date missing: %q", got)
	}
	if !strings.Contains(got, "No relevant items found") {
		t.Fatalf("empty notice missing: %q", got)
	}
}

func TestRenderGroupsAndSorts(t *testing.T) {
	t.Parallel()

	entries := []domain.DigestEntry{
		entry(t, domain.TypeRepository, "repo-low", 0.6),
		entry(t, domain.TypePaper, "paper-low", 0.7),
		entry(t, domain.TypePaper, "paper-high", 0.95),
		entry(t, domain.TypeModelCard, "model-a", 0.8),
	}
	got := NewMarkdown().Render(entries, time.Now())

	papers := strings.Index(got, "## Papers")
	models := strings.Index(got, "## Models")
	repos := strings.Index(got, "## Repositories")
	if papers == -1 || models == -1 || repos == -1 {
		t.Fatalf("missing sections:\n%s", got)
	}
	if !(papers < models && models < repos) {
		t.Fatalf("sections out of order:\n%s", got)
	}

	high := strings.Index(got, "paper-high")
	low := strings.Index(got, "paper-low")
	if high == -1 || low == -1 || high > low {
		t.Fatalf("papers not sorted by score:\n%s", got)
	}
}

func TestRenderEntryDetails(t *testing.T) {
	t.Parallel()

	e := entry(t, domain.TypePaper, "detailed", 0.85)
	e.Highlights = []string{"first point", "second point"}
	e.Item.Metadata["stars"] = "123"

	got := NewMarkdown().Render([]domain.DigestEntry{e}, time.Now())
	for _, want := range []string{
		"### [detailed](https://example.org/detailed)",
		"**Relevance:** 85.0%",
		"summary of detailed",
		"- first point",
		"- second point",
		"stars: 123",
		"---",
	} {
		if !strings.Contains(got, want) {
			t.Fatalf("missing %q in:\n%s", want, got)
		}
	}
}
