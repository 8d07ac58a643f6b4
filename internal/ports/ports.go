package ports

import (
	"context"
	"time"

	"github.com/dukanov/research-monitor/internal/domain"
)

// ItemSource pulls fresh items from an upstream provider. A failing source
// contributes zero items; the pipeline never aborts on a single source.
type ItemSource interface {
	Name() string
	FetchItems(ctx context.Context, since time.Time) ([]domain.Item, error)
}

// LLMClient covers the four model-backed operations of the pipeline.
type LLMClient interface {
	CheckRelevance(ctx context.Context, item domain.Item, interests string) (domain.FilterResult, error)
	GenerateSummary(ctx context.Context, item domain.Item) (string, error)
	ExtractHighlights(ctx context.Context, item domain.Item) ([]string, error)
	GenerateDigestSummary(ctx context.Context, entries []domain.DigestEntry) (string, error)
}

// SeenStore records processed items so reruns skip them.
type SeenStore interface {
	IsSeen(item domain.Item) bool
	MarkSeen(item domain.Item)
	MarkSeenWithRelevance(item domain.Item, relevant bool, score float64, reason string)
	FilterUnseen(items []domain.Item) (unseen []domain.Item, seenCount int)
}

// DigestRenderer turns enriched entries into the final document.
type DigestRenderer interface {
	Render(entries []domain.DigestEntry, date time.Time) string
}

// Notifier pushes the short digest summary to an external channel.
type Notifier interface {
	SendDigest(ctx context.Context, summary string, date time.Time) error
}
