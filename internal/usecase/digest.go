package usecase

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/dukanov/research-monitor/internal/domain"
	"github.com/dukanov/research-monitor/internal/ports"
)

// DigestDeps wires the digest assembly collaborators.
type DigestDeps struct {
	LLMClient ports.LLMClient
	Renderer  ports.DigestRenderer
	Notifier  ports.Notifier
	Logger    *slog.Logger
}

// Digest enriches relevant results into digest entries and drives the
// renderer, the cross-item summary, and the notifier.
type Digest struct {
	llm      ports.LLMClient
	renderer ports.DigestRenderer
	notifier ports.Notifier
	logger   *slog.Logger
}

// NewDigest constructs the digest assembly service.
func NewDigest(deps DigestDeps) *Digest {
	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Digest{
		llm:      deps.LLMClient,
		renderer: deps.Renderer,
		notifier: deps.Notifier,
		logger:   logger,
	}
}

// GenerateDigest builds one entry per relevant result, requesting summary
// and highlights concurrently per item. Either sub-call failing downgrades
// that entry instead of failing the digest: a dead summary becomes a
// diagnostic placeholder, dead highlights become an empty list. Entry order
// matches input order.
func (d *Digest) GenerateDigest(ctx context.Context, results []domain.FilterResult, date time.Time) (string, []domain.DigestEntry, error) {
	entries := make([]domain.DigestEntry, 0, len(results))

	for _, result := range results {
		var (
			wg            sync.WaitGroup
			summary       string
			summaryErr    error
			highlights    []string
			highlightsErr error
		)

		wg.Add(2)
		go func() {
			defer wg.Done()
			summary, summaryErr = d.llm.GenerateSummary(ctx, result.Item)
		}()
		go func() {
			defer wg.Done()
			highlights, highlightsErr = d.llm.ExtractHighlights(ctx, result.Item)
		}()
		wg.Wait()

		if summaryErr != nil {
			d.logger.Warn("summary generation failed", "title", result.Item.Title, "error", summaryErr)
			summary = fmt.Sprintf("summary generation failed: %v", summaryErr)
		}
		if highlightsErr != nil {
			d.logger.Warn("highlight extraction failed", "title", result.Item.Title, "error", highlightsErr)
			highlights = []string{}
		}

		entries = append(entries, domain.DigestEntry{
			Item:       result.Item,
			Summary:    summary,
			Score:      result.Score,
			Highlights: highlights,
		})
	}

	if d.renderer == nil {
		return "", entries, fmt.Errorf("digest renderer is not configured")
	}
	return d.renderer.Render(entries, date), entries, nil
}

// GenerateDigestSummary asks the gateway for a short cross-item summary.
func (d *Digest) GenerateDigestSummary(ctx context.Context, entries []domain.DigestEntry) (string, error) {
	return d.llm.GenerateDigestSummary(ctx, entries)
}

// SendNotification forwards the summary to the notifier; silently a no-op
// when no notifier is configured.
func (d *Digest) SendNotification(ctx context.Context, summary string, date time.Time) error {
	if d.notifier == nil {
		return nil
	}
	return d.notifier.SendDigest(ctx, summary, date)
}

// SaveDigest writes the rendered document, creating parent directories.
func (d *Digest) SaveDigest(digest, path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("create output dir: %w", err)
	}
	if err := os.WriteFile(path, []byte(digest), 0o644); err != nil {
		return fmt.Errorf("write digest: %w", err)
	}
	d.logger.Info("digest saved", "path", path)
	return nil
}
