package app

import (
	"context"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/dukanov/research-monitor/internal/config"
	"github.com/dukanov/research-monitor/internal/digest"
	"github.com/dukanov/research-monitor/internal/domain"
	"github.com/dukanov/research-monitor/internal/ports"
	"github.com/dukanov/research-monitor/internal/store"
	"github.com/dukanov/research-monitor/internal/usecase"
)

type stubSource struct {
	items []domain.Item
}

func (s stubSource) Name() string { return "stub" }

func (s stubSource) FetchItems(ctx context.Context, since time.Time) ([]domain.Item, error) {
	return s.items, nil
}

type stubLLM struct{}

func (stubLLM) CheckRelevance(ctx context.Context, item domain.Item, interests string) (domain.FilterResult, error) {
	return domain.FilterResult{Item: item, Relevant: true, Score: 0.9, Reason: "match"}, nil
}

func (stubLLM) GenerateSummary(ctx context.Context, item domain.Item) (string, error) {
	return "summary of " + item.Title, nil
}

func (stubLLM) ExtractHighlights(ctx context.Context, item domain.Item) ([]string, error) {
	return []string{"point"}, nil
}

func (stubLLM) GenerateDigestSummary(ctx context.Context, entries []domain.DigestEntry) (string, error) {
	return "cross-item summary", nil
}

type recordingNotifier struct {
	sent []string
}

func (n *recordingNotifier) SendDigest(ctx context.Context, summary string, date time.Time) error {
	n.sent = append(n.sent, summary)
	return nil
}

func newTestApp(t *testing.T, notifier ports.Notifier) (*Application, config.Config) {
	t.Helper()

	root := t.TempDir()
	cfg := config.Config{
		Paths: config.PathsConfig{
			ArtifactsDir: filepath.Join(root, "artifacts"),
			OutputDir:    filepath.Join(root, "digests"),
			SummariesDir: filepath.Join(root, "summaries"),
		},
		Monitoring: config.MonitoringConfig{RelevanceThreshold: 0.6},
	}
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	seen, err := store.New(cfg.Paths.ArtifactsDir, logger)
	require.NoError(t, err)

	item, err := domain.NewItem(domain.TypePaper, "Stub Paper", "https://example.org/p1", "content", "stub", time.Now(), nil)
	require.NoError(t, err)

	monitor := usecase.NewMonitor(usecase.MonitorDeps{
		Sources:            []ports.ItemSource{stubSource{items: []domain.Item{item}}},
		LLMClient:          stubLLM{},
		SeenStore:          seen,
		RelevanceThreshold: cfg.Monitoring.RelevanceThreshold,
		Logger:             logger,
	})
	digestSvc := usecase.NewDigest(usecase.DigestDeps{
		LLMClient: stubLLM{},
		Renderer:  digest.NewMarkdown(),
		Notifier:  notifier,
		Logger:    logger,
	})

	return &Application{
		cfg:     cfg,
		logger:  logger,
		seen:    seen,
		monitor: monitor,
		digest:  digestSvc,
	}, cfg
}

func summaryFiles(t *testing.T, dir string) []string {
	t.Helper()
	entries, err := os.ReadDir(dir)
	if os.IsNotExist(err) {
		return nil
	}
	require.NoError(t, err)
	names := make([]string, 0, len(entries))
	for _, entry := range entries {
		names = append(names, entry.Name())
	}
	return names
}

func TestRunSavesSummaryWithoutSlack(t *testing.T) {
	notifier := &recordingNotifier{}
	application, cfg := newTestApp(t, notifier)

	err := application.Run(context.Background(), RunOptions{Days: 1, NoSlack: true})
	require.NoError(t, err)

	// The summary is persisted even when the notification is suppressed.
	files := summaryFiles(t, cfg.Paths.SummariesDir)
	require.Len(t, files, 1)
	raw, err := os.ReadFile(filepath.Join(cfg.Paths.SummariesDir, files[0]))
	require.NoError(t, err)
	require.Equal(t, "cross-item summary", string(raw))

	require.Empty(t, notifier.sent)

	digests := summaryFiles(t, cfg.Paths.OutputDir)
	require.Len(t, digests, 1)
}

func TestRunNotifiesWhenSlackEnabled(t *testing.T) {
	notifier := &recordingNotifier{}
	application, cfg := newTestApp(t, notifier)

	err := application.Run(context.Background(), RunOptions{Days: 1})
	require.NoError(t, err)

	require.Equal(t, []string{"cross-item summary"}, notifier.sent)
	require.Len(t, summaryFiles(t, cfg.Paths.SummariesDir), 1)
}
