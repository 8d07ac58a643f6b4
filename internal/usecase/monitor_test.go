package usecase

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
	"unicode/utf8"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dukanov/research-monitor/internal/domain"
	"github.com/dukanov/research-monitor/internal/ports"
)

type stubSource struct {
	name  string
	items []domain.Item
	err   error
}

func (s *stubSource) Name() string { return s.name }

func (s *stubSource) FetchItems(ctx context.Context, since time.Time) ([]domain.Item, error) {
	return s.items, s.err
}

func singleSource(items ...domain.Item) []ports.ItemSource {
	return []ports.ItemSource{&stubSource{name: "stub", items: items}}
}

// stubLLM scores items from a lookup table keyed by title and records call
// order; unknown titles fail the check.
type stubLLM struct {
	scores        map[string]float64
	relevant      map[string]bool
	checkErr      map[string]error
	checkedOrder  []string
	summaries     map[string]string
	summaryErr    map[string]error
	highlights    map[string][]string
	highlightsErr map[string]error
	digestSummary string
	digestErr     error
}

func (s *stubLLM) CheckRelevance(ctx context.Context, item domain.Item, interests string) (domain.FilterResult, error) {
	s.checkedOrder = append(s.checkedOrder, item.Title)
	if err := s.checkErr[item.Title]; err != nil {
		return domain.FilterResult{}, err
	}
	return domain.FilterResult{
		Item:     item,
		Relevant: s.relevant[item.Title],
		Score:    s.scores[item.Title],
		Reason:   "stubbed",
	}, nil
}

func (s *stubLLM) GenerateSummary(ctx context.Context, item domain.Item) (string, error) {
	if err := s.summaryErr[item.Title]; err != nil {
		return "", err
	}
	return s.summaries[item.Title], nil
}

func (s *stubLLM) ExtractHighlights(ctx context.Context, item domain.Item) ([]string, error) {
	if err := s.highlightsErr[item.Title]; err != nil {
		return nil, err
	}
	return s.highlights[item.Title], nil
}

func (s *stubLLM) GenerateDigestSummary(ctx context.Context, entries []domain.DigestEntry) (string, error) {
	return s.digestSummary, s.digestErr
}

type memorySeen struct {
	seen   map[string]bool
	marked []domain.Item
}

func newMemorySeen() *memorySeen {
	return &memorySeen{seen: map[string]bool{}}
}

func (m *memorySeen) key(item domain.Item) string { return item.Source + "|" + item.URL }

func (m *memorySeen) IsSeen(item domain.Item) bool { return m.seen[m.key(item)] }

func (m *memorySeen) MarkSeen(item domain.Item) {
	m.seen[m.key(item)] = true
	m.marked = append(m.marked, item)
}

func (m *memorySeen) MarkSeenWithRelevance(item domain.Item, relevant bool, score float64, reason string) {
	m.MarkSeen(item)
}

func (m *memorySeen) FilterUnseen(items []domain.Item) ([]domain.Item, int) {
	var unseen []domain.Item
	seenCount := 0
	for _, item := range items {
		if m.IsSeen(item) {
			seenCount++
			continue
		}
		unseen = append(unseen, item)
	}
	return unseen, seenCount
}

func makeItem(t *testing.T, title string) domain.Item {
	t.Helper()
	item, err := domain.NewItem(domain.TypePaper, title, "https://example.org/"+title, "content of "+title, "stub", time.Now(), nil)
	require.NoError(t, err)
	return item
}

func TestCollectAndFilterEndToEnd(t *testing.T) {
	t.Parallel()

	item := makeItem(t, "paper-a")
	llm := &stubLLM{
		scores:   map[string]float64{"paper-a": 0.9},
		relevant: map[string]bool{"paper-a": true},
	}
	monitor := NewMonitor(MonitorDeps{
		Sources:            singleSource(item),
		LLMClient:          llm,
		Interests:          "speech synthesis",
		RelevanceThreshold: 0.6,
	})

	relevant, all, err := monitor.CollectAndFilter(context.Background(), time.Now().AddDate(0, 0, -1))
	require.NoError(t, err)
	assert.Len(t, all, 1)
	require.Len(t, relevant, 1)
	assert.Equal(t, "paper-a", relevant[0].Item.Title)
	assert.Equal(t, 0.9, relevant[0].Score)
}

func TestCollectAndFilterThresholdBoundary(t *testing.T) {
	t.Parallel()

	exact := makeItem(t, "exact")
	below := makeItem(t, "below")
	llm := &stubLLM{
		scores:   map[string]float64{"exact": 0.6, "below": 0.6 - 1e-9},
		relevant: map[string]bool{"exact": true, "below": true},
	}
	monitor := NewMonitor(MonitorDeps{
		Sources:            singleSource(exact, below),
		LLMClient:          llm,
		RelevanceThreshold: 0.6,
	})

	relevant, all, err := monitor.CollectAndFilter(context.Background(), time.Now())
	require.NoError(t, err)
	assert.Len(t, all, 2)
	require.Len(t, relevant, 1)
	assert.Equal(t, "exact", relevant[0].Item.Title)
}

func TestCollectAndFilterRelevantFlagRequired(t *testing.T) {
	t.Parallel()

	// High score but the model said not relevant: both conditions required.
	item := makeItem(t, "high-score-irrelevant")
	llm := &stubLLM{
		scores:   map[string]float64{"high-score-irrelevant": 0.95},
		relevant: map[string]bool{"high-score-irrelevant": false},
	}
	monitor := NewMonitor(MonitorDeps{
		Sources:            singleSource(item),
		LLMClient:          llm,
		RelevanceThreshold: 0.6,
	})

	relevant, all, err := monitor.CollectAndFilter(context.Background(), time.Now())
	require.NoError(t, err)
	assert.Len(t, all, 1)
	assert.Empty(t, relevant)
}

func TestCollectAndFilterSourceFailureIsolated(t *testing.T) {
	t.Parallel()

	good := makeItem(t, "good")
	llm := &stubLLM{
		scores:   map[string]float64{"good": 0.8},
		relevant: map[string]bool{"good": true},
	}
	monitor := NewMonitor(MonitorDeps{
		Sources: []ports.ItemSource{
			&stubSource{name: "broken", err: errors.New("network down")},
			&stubSource{name: "working", items: []domain.Item{good}},
		},
		LLMClient:          llm,
		RelevanceThreshold: 0.5,
	})

	relevant, all, err := monitor.CollectAndFilter(context.Background(), time.Now())
	require.NoError(t, err)
	assert.Len(t, all, 1)
	assert.Len(t, relevant, 1)
}

func TestCollectAndFilterCheckErrorsExcluded(t *testing.T) {
	t.Parallel()

	ok := makeItem(t, "ok")
	broken := makeItem(t, "broken")
	llm := &stubLLM{
		scores:   map[string]float64{"ok": 0.7},
		relevant: map[string]bool{"ok": true},
		checkErr: map[string]error{"broken": errors.New("api exploded")},
	}
	monitor := NewMonitor(MonitorDeps{
		Sources:            singleSource(broken, ok),
		LLMClient:          llm,
		RelevanceThreshold: 0.5,
	})

	relevant, all, err := monitor.CollectAndFilter(context.Background(), time.Now())
	require.NoError(t, err)
	assert.Len(t, all, 1)
	assert.Len(t, relevant, 1)
	assert.Equal(t, []string{"broken", "ok"}, llm.checkedOrder)
}

func TestCollectAndFilterDedupesSeenItems(t *testing.T) {
	t.Parallel()

	seen := makeItem(t, "already-seen")
	fresh := makeItem(t, "fresh")
	store := newMemorySeen()
	store.MarkSeen(seen)

	llm := &stubLLM{
		scores:   map[string]float64{"fresh": 0.9},
		relevant: map[string]bool{"fresh": true},
	}
	monitor := NewMonitor(MonitorDeps{
		Sources:            singleSource(seen, fresh),
		LLMClient:          llm,
		SeenStore:          store,
		RelevanceThreshold: 0.5,
	})

	relevant, all, err := monitor.CollectAndFilter(context.Background(), time.Now())
	require.NoError(t, err)
	assert.Len(t, all, 1)
	assert.Len(t, relevant, 1)
	assert.Equal(t, []string{"fresh"}, llm.checkedOrder)
}

func TestCollectAndFilterPreservesInputOrder(t *testing.T) {
	t.Parallel()

	var items []domain.Item
	llm := &stubLLM{scores: map[string]float64{}, relevant: map[string]bool{}}
	for i := 0; i < 5; i++ {
		title := fmt.Sprintf("item-%d", i)
		items = append(items, makeItem(t, title))
		llm.scores[title] = 0.5
		llm.relevant[title] = true
	}

	monitor := NewMonitor(MonitorDeps{
		Sources:            []ports.ItemSource{&stubSource{name: "stub", items: items}},
		LLMClient:          llm,
		RelevanceThreshold: 0.1,
	})

	_, all, err := monitor.CollectAndFilter(context.Background(), time.Now())
	require.NoError(t, err)
	require.Len(t, all, 5)
	for i, result := range all {
		assert.Equal(t, fmt.Sprintf("item-%d", i), result.Item.Title)
	}
}

func TestCollectAndFilterRespectsPerSourceCap(t *testing.T) {
	t.Parallel()

	var items []domain.Item
	llm := &stubLLM{scores: map[string]float64{}, relevant: map[string]bool{}}
	for i := 0; i < 10; i++ {
		title := fmt.Sprintf("capped-%d", i)
		items = append(items, makeItem(t, title))
		llm.scores[title] = 0.9
		llm.relevant[title] = true
	}

	monitor := NewMonitor(MonitorDeps{
		Sources:            []ports.ItemSource{&stubSource{name: "stub", items: items}},
		LLMClient:          llm,
		RelevanceThreshold: 0.5,
		MaxItemsPerSource:  3,
	})

	_, all, err := monitor.CollectAndFilter(context.Background(), time.Now())
	require.NoError(t, err)
	assert.Len(t, all, 3)
}

func TestSaveArtifactsMarksEverything(t *testing.T) {
	t.Parallel()

	store := newMemorySeen()
	monitor := NewMonitor(MonitorDeps{SeenStore: store})

	results := []domain.FilterResult{
		{Item: makeItem(t, "one"), Relevant: true, Score: 0.9},
		{Item: makeItem(t, "two"), Relevant: false, Score: 0.1},
	}
	monitor.SaveArtifacts(results)
	assert.Len(t, store.marked, 2)

	// Idempotent: marking again overwrites, never errors.
	monitor.SaveArtifacts(results)
	assert.True(t, store.IsSeen(results[0].Item))
	assert.True(t, store.IsSeen(results[1].Item))
}

func TestCollectedSnapshotPreviewKeepsRunesIntact(t *testing.T) {
	t.Parallel()

	content := strings.Repeat("и", 600)
	item, err := domain.NewItem(domain.TypePaper, "paper-ru", "https://example.org/ru", content, "stub", time.Now(), nil)
	require.NoError(t, err)

	debugDir := t.TempDir()
	llm := &stubLLM{
		scores:   map[string]float64{"paper-ru": 0.9},
		relevant: map[string]bool{"paper-ru": true},
	}
	monitor := NewMonitor(MonitorDeps{
		Sources:            singleSource(item),
		LLMClient:          llm,
		RelevanceThreshold: 0.6,
		DebugDir:           debugDir,
	})

	_, _, err = monitor.CollectAndFilter(context.Background(), time.Now().AddDate(0, 0, -1))
	require.NoError(t, err)

	paths, err := filepath.Glob(filepath.Join(debugDir, "collected_items_*.json"))
	require.NoError(t, err)
	require.Len(t, paths, 1)

	raw, err := os.ReadFile(paths[0])
	require.NoError(t, err)

	var snapshots []struct {
		ContentLength  int    `json:"content_length"`
		ContentPreview string `json:"content_preview"`
	}
	require.NoError(t, json.Unmarshal(raw, &snapshots))
	require.Len(t, snapshots, 1)

	preview := snapshots[0].ContentPreview
	assert.True(t, utf8.ValidString(preview))
	assert.True(t, strings.HasSuffix(preview, "..."))
	assert.NotContains(t, preview, "�")
	assert.Equal(t, 503, utf8.RuneCountInString(preview))
	assert.Equal(t, 600, snapshots[0].ContentLength)
}
