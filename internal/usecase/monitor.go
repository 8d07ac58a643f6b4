package usecase

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"time"
	"unicode/utf8"

	"github.com/dukanov/research-monitor/internal/domain"
	"github.com/dukanov/research-monitor/internal/ports"
)

// MonitorDeps wires the driven adapters into the monitoring pipeline.
type MonitorDeps struct {
	Sources            []ports.ItemSource
	LLMClient          ports.LLMClient
	SeenStore          ports.SeenStore
	Interests          string
	RelevanceThreshold float64
	MaxItemsPerSource  int
	DebugDir           string
	Logger             *slog.Logger
}

// Monitor runs one collection pass: fetch from every source, drop already
// seen items, score the rest against the relevance threshold.
type Monitor struct {
	sources            []ports.ItemSource
	llm                ports.LLMClient
	seen               ports.SeenStore
	interests          string
	relevanceThreshold float64
	maxItemsPerSource  int
	debugDir           string
	logger             *slog.Logger
}

// NewMonitor constructs the pipeline.
func NewMonitor(deps MonitorDeps) *Monitor {
	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Monitor{
		sources:            deps.Sources,
		llm:                deps.LLMClient,
		seen:               deps.SeenStore,
		interests:          deps.Interests,
		relevanceThreshold: deps.RelevanceThreshold,
		maxItemsPerSource:  deps.MaxItemsPerSource,
		debugDir:           deps.DebugDir,
		logger:             logger,
	}
}

// CollectAndFilter stages collection, dedupe, relevance filtering, and
// aggregation. It returns the above-threshold subset and everything that was
// checked without raising. Zero relevant results is a normal outcome.
func (m *Monitor) CollectAndFilter(ctx context.Context, since time.Time) (relevant, all []domain.FilterResult, err error) {
	items := m.collect(ctx, since)

	if m.debugDir != "" {
		m.saveCollectedSnapshot(items)
	}

	if m.seen != nil {
		unseen, seenCount := m.seen.FilterUnseen(items)
		m.logger.Info("dedupe complete", "collected", len(items), "already_seen", seenCount, "to_check", len(unseen))
		items = unseen
	}

	// Sequential by design: keeps result ordering deterministic and leaves
	// rate limiting to the gateway.
	for _, item := range items {
		result, checkErr := m.llm.CheckRelevance(ctx, item, m.interests)
		if checkErr != nil {
			if ctx.Err() != nil {
				return nil, nil, ctx.Err()
			}
			m.logger.Warn("relevance check failed", "title", item.Title, "error", checkErr)
			continue
		}
		all = append(all, result)
		if result.Relevant && result.Score >= m.relevanceThreshold {
			relevant = append(relevant, result)
		}
	}

	m.logger.Info("filtering complete",
		"checked", len(all),
		"relevant", len(relevant),
		"threshold", m.relevanceThreshold)

	if m.debugDir != "" {
		m.saveFilterSnapshot(all, relevant)
	}

	return relevant, all, nil
}

// collect fetches from every source, isolating per-source failures.
func (m *Monitor) collect(ctx context.Context, since time.Time) []domain.Item {
	var items []domain.Item
	for _, source := range m.sources {
		fetched, err := source.FetchItems(ctx, since)
		if err != nil {
			m.logger.Warn("source fetch failed", "source", source.Name(), "error", err)
			continue
		}
		if m.maxItemsPerSource > 0 && len(fetched) > m.maxItemsPerSource {
			fetched = fetched[:m.maxItemsPerSource]
		}
		m.logger.Info("source fetched", "source", source.Name(), "items", len(fetched))
		items = append(items, fetched...)
	}
	return items
}

// SaveArtifacts marks every checked item seen with its relevance outcome.
// Idempotent: re-marking overwrites the same artifact. Called after a digest
// has been produced so a failed run does not silently consume items.
func (m *Monitor) SaveArtifacts(results []domain.FilterResult) {
	if m.seen == nil {
		return
	}
	for _, result := range results {
		m.seen.MarkSeenWithRelevance(result.Item, result.Relevant, result.Score, result.Reason)
	}
	m.logger.Info("artifacts saved", "count", len(results))
}

const snapshotPreviewLen = 500

func truncateRunes(s string, limit int) string {
	runes := []rune(s)
	if len(runes) <= limit {
		return s
	}
	return string(runes[:limit])
}

type collectedSnapshot struct {
	Type           string            `json:"type"`
	Title          string            `json:"title"`
	URL            string            `json:"url"`
	Source         string            `json:"source"`
	DiscoveredAt   string            `json:"discovered_at"`
	Metadata       map[string]string `json:"metadata"`
	ContentLength  int               `json:"content_length"`
	ContentPreview string            `json:"content_preview"`
}

func (m *Monitor) saveCollectedSnapshot(items []domain.Item) {
	snapshots := make([]collectedSnapshot, 0, len(items))
	for _, item := range items {
		preview := item.Content
		if utf8.RuneCountInString(preview) > snapshotPreviewLen {
			preview = truncateRunes(preview, snapshotPreviewLen) + "..."
		}
		snapshots = append(snapshots, collectedSnapshot{
			Type:           string(item.Type),
			Title:          item.Title,
			URL:            item.URL,
			Source:         item.Source,
			DiscoveredAt:   item.DiscoveredAt.UTC().Format(time.RFC3339),
			Metadata:       item.Metadata,
			ContentLength:  utf8.RuneCountInString(item.Content),
			ContentPreview: preview,
		})
	}
	m.writeDebugFile(fmt.Sprintf("collected_items_%s.json", time.Now().Format("20060102_150405")), snapshots)
}

type filterSnapshot struct {
	Title    string  `json:"title"`
	URL      string  `json:"url"`
	Type     string  `json:"type"`
	Source   string  `json:"source"`
	Relevant bool    `json:"is_relevant"`
	Score    float64 `json:"relevance_score"`
	Reason   string  `json:"reason"`
}

func (m *Monitor) saveFilterSnapshot(all, relevant []domain.FilterResult) {
	snapshots := make([]filterSnapshot, 0, len(all))
	for _, result := range all {
		snapshots = append(snapshots, filterSnapshot{
			Title:    result.Item.Title,
			URL:      result.Item.URL,
			Type:     string(result.Item.Type),
			Source:   result.Item.Source,
			Relevant: result.Relevant,
			Score:    result.Score,
			Reason:   result.Reason,
		})
	}
	sort.Slice(snapshots, func(i, j int) bool { return snapshots[i].Score > snapshots[j].Score })

	payload := map[string]any{
		"total_checked":  len(all),
		"relevant_count": len(relevant),
		"threshold":      m.relevanceThreshold,
		"results":        snapshots,
	}
	m.writeDebugFile(fmt.Sprintf("filter_results_%s.json", time.Now().Format("20060102_150405")), payload)
}

func (m *Monitor) writeDebugFile(name string, payload any) {
	if err := os.MkdirAll(m.debugDir, 0o755); err != nil {
		m.logger.Warn("could not create debug dir", "error", err)
		return
	}
	data, err := json.MarshalIndent(payload, "", "  ")
	if err != nil {
		m.logger.Warn("could not marshal debug snapshot", "error", err)
		return
	}
	path := filepath.Join(m.debugDir, name)
	if err := os.WriteFile(path, data, 0o644); err != nil {
		m.logger.Warn("could not write debug snapshot", "path", path, "error", err)
		return
	}
	m.logger.Debug("debug snapshot written", "path", path)
}
