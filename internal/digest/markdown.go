package digest

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/dukanov/research-monitor/internal/domain"
	"github.com/dukanov/research-monitor/internal/ports"
)

// Markdown renders digest entries grouped by item type, each group sorted by
// relevance score descending.
type Markdown struct{}

var _ ports.DigestRenderer = (*Markdown)(nil)

// NewMarkdown returns the renderer.
func NewMarkdown() *Markdown {
	return &Markdown{}
}

// Render produces the digest document. An empty entry list still yields a
// valid "nothing found" document.
func (m *Markdown) Render(entries []domain.DigestEntry, date time.Time) string {
	header := fmt.Sprintf("# Research Digest — %s", date.Format("02.01.2006"))
	if len(entries) == 0 {
		return header + "\n\nNo relevant items found."
	}

	groups := map[domain.ItemType][]domain.DigestEntry{}
	for _, entry := range entries {
		groups[entry.Item.Type] = append(groups[entry.Item.Type], entry)
	}
	for _, group := range groups {
		sort.SliceStable(group, func(i, j int) bool { return group[i].Score > group[j].Score })
	}

	var b strings.Builder
	b.WriteString(header)
	b.WriteString("\n\n")
	b.WriteString(fmt.Sprintf("Items found: %d\n\n", len(entries)))

	sections := []struct {
		itemType domain.ItemType
		heading  string
	}{
		{domain.TypePaper, "## Papers"},
		{domain.TypeModelCard, "## Models"},
		{domain.TypeRepository, "## Repositories"},
	}
	for _, section := range sections {
		group := groups[section.itemType]
		if len(group) == 0 {
			continue
		}
		b.WriteString(section.heading)
		b.WriteString("\n\n")
		for _, entry := range group {
			writeEntry(&b, entry)
		}
	}

	return strings.TrimRight(b.String(), "\n") + "\n"
}

func writeEntry(b *strings.Builder, entry domain.DigestEntry) {
	fmt.Fprintf(b, "### [%s](%s)\n\n", entry.Item.Title, entry.Item.URL)
	fmt.Fprintf(b, "**Relevance:** %.1f%%\n\n", entry.Score*100)
	b.WriteString(entry.Summary)
	b.WriteString("\n\n")

	if len(entry.Highlights) > 0 {
		b.WriteString("**Highlights:**\n\n")
		for _, highlight := range entry.Highlights {
			fmt.Fprintf(b, "- %s\n", highlight)
		}
		b.WriteString("\n")
	}

	if len(entry.Item.Metadata) > 0 {
		keys := make([]string, 0, len(entry.Item.Metadata))
		for k := range entry.Item.Metadata {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		parts := make([]string, 0, len(keys))
		for _, k := range keys {
			if v := entry.Item.Metadata[k]; v != "" {
				parts = append(parts, fmt.Sprintf("%s: %s", k, v))
			}
		}
		if len(parts) > 0 {
			fmt.Fprintf(b, "*%s*\n\n", strings.Join(parts, " | "))
		}
	}

	b.WriteString("---\n\n")
}
