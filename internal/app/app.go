package app

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"
	"time"

	"github.com/dukanov/research-monitor/internal/config"
	"github.com/dukanov/research-monitor/internal/digest"
	"github.com/dukanov/research-monitor/internal/llm"
	"github.com/dukanov/research-monitor/internal/logging"
	"github.com/dukanov/research-monitor/internal/notify"
	"github.com/dukanov/research-monitor/internal/ports"
	"github.com/dukanov/research-monitor/internal/source"
	"github.com/dukanov/research-monitor/internal/source/arxiv"
	"github.com/dukanov/research-monitor/internal/source/github"
	"github.com/dukanov/research-monitor/internal/source/huggingface"
	"github.com/dukanov/research-monitor/internal/store"
	"github.com/dukanov/research-monitor/internal/usecase"
)

// Application wires config to use cases and drives one monitoring run.
type Application struct {
	cfg     config.Config
	logger  *slog.Logger
	seen    *store.SeenItems
	monitor *usecase.Monitor
	digest  *usecase.Digest
}

// RunOptions adjust a single run without touching persisted config.
type RunOptions struct {
	// Days sets the lookback window for source fetching.
	Days int
	// Output overrides the digest file path.
	Output string
	// NoSlack suppresses the notification step.
	NoSlack bool
}

// New builds a runnable application instance.
func New(cfg config.Config, baseLogger *slog.Logger) (*Application, error) {
	if baseLogger == nil {
		baseLogger = logging.New(cfg.Logging.Level)
	}

	seen, err := store.New(cfg.Paths.ArtifactsDir, baseLogger.With("component", "store"))
	if err != nil {
		return nil, fmt.Errorf("init seen store: %w", err)
	}

	client := llm.NewClient(llm.Options{
		BaseURL:           cfg.Claude.BaseURL,
		APIKey:            cfg.Claude.APIKey,
		Model:             cfg.Claude.Model,
		MaxTokens:         cfg.Claude.MaxTokens,
		Temperature:       cfg.Claude.Temperature,
		MaxRetries:        cfg.Claude.MaxRetries,
		InitialRetryDelay: cfg.Claude.InitialRetryDelay(),
		RequestDelay:      cfg.Claude.RequestDelay(),
		Prompts:           promptSet(cfg.Prompts),
		Logger:            baseLogger.With("component", "llm"),
	})

	sources, err := buildSources(cfg, baseLogger)
	if err != nil {
		return nil, err
	}

	debugDir := ""
	if cfg.Monitoring.SaveDebugData {
		debugDir = cfg.Paths.DebugDir
	}

	monitor := usecase.NewMonitor(usecase.MonitorDeps{
		Sources:            sources,
		LLMClient:          client,
		SeenStore:          seen,
		Interests:          cfg.Monitoring.Interests,
		RelevanceThreshold: cfg.Monitoring.RelevanceThreshold,
		MaxItemsPerSource:  cfg.Monitoring.MaxItemsPerSource,
		DebugDir:           debugDir,
		Logger:             baseLogger.With("component", "monitor"),
	})

	digestSvc := usecase.NewDigest(usecase.DigestDeps{
		LLMClient: client,
		Renderer:  digest.NewMarkdown(),
		Notifier:  notify.NewSlack(cfg.Notifications.SlackWebhookURL, nil),
		Logger:    baseLogger.With("component", "digest"),
	})

	return &Application{
		cfg:     cfg,
		logger:  baseLogger,
		seen:    seen,
		monitor: monitor,
		digest:  digestSvc,
	}, nil
}

// Store exposes the seen-item store for maintenance commands.
func (a *Application) Store() *store.SeenItems {
	return a.seen
}

// Run executes one full monitoring pass: collect and filter, assemble the
// digest, save it, notify, and only then persist seen artifacts so a failed
// digest leaves items eligible for the next run.
func (a *Application) Run(ctx context.Context, opts RunOptions) error {
	days := opts.Days
	if days <= 0 {
		days = 1
	}
	now := time.Now().UTC()
	since := now.AddDate(0, 0, -days)

	relevant, all, err := a.monitor.CollectAndFilter(ctx, since)
	if err != nil {
		return fmt.Errorf("collect and filter: %w", err)
	}

	if len(relevant) == 0 {
		a.logger.Info("no relevant items found", "checked", len(all))
		a.monitor.SaveArtifacts(all)
		return nil
	}

	text, entries, err := a.digest.GenerateDigest(ctx, relevant, now)
	if err != nil {
		return fmt.Errorf("generate digest: %w", err)
	}

	output := opts.Output
	if output == "" {
		output = filepath.Join(a.cfg.Paths.OutputDir, fmt.Sprintf("digest_%s.md", now.Format("2006-01-02")))
	}
	if err := a.digest.SaveDigest(text, output); err != nil {
		return fmt.Errorf("save digest: %w", err)
	}

	// The cross-item summary is generated and persisted on every run; the
	// flag only suppresses the outbound notification.
	summary, err := a.digest.GenerateDigestSummary(ctx, entries)
	if err != nil {
		a.logger.Warn("digest summary failed", "error", err)
	} else {
		summaryPath := filepath.Join(a.cfg.Paths.SummariesDir, fmt.Sprintf("%s_summary.md", now.Format("2006-01-02_15-04-05")))
		if err := a.digest.SaveDigest(summary, summaryPath); err != nil {
			a.logger.Warn("could not save summary", "error", err)
		}
		if !opts.NoSlack {
			if err := a.digest.SendNotification(ctx, summary, now); err != nil {
				a.logger.Warn("notification failed", "error", err)
			}
		}
	}

	a.monitor.SaveArtifacts(all)
	a.logger.Info("run finished", "relevant", len(relevant), "checked", len(all), "digest", output)
	return nil
}

func buildSources(cfg config.Config, logger *slog.Logger) ([]ports.ItemSource, error) {
	registry := source.NewRegistry()
	enabled := make([]string, 0, 4)

	if cfg.Sources.Arxiv.Enabled {
		categories := make([]arxiv.Category, 0, len(cfg.Sources.Arxiv.Categories))
		for _, cat := range cfg.Sources.Arxiv.Categories {
			categories = append(categories, arxiv.Category{Name: cat.Name, URL: cat.URL})
		}
		registry.Register(arxiv.New(categories, arxiv.Options{
			Keywords: cfg.Monitoring.Keywords,
			PageSize: cfg.Sources.Arxiv.PageSize,
			MaxItems: cfg.Sources.Arxiv.MaxItems,
			Logger:   logger.With("component", "source.arxiv"),
		}))
		enabled = append(enabled, "arxiv")
	}

	if cfg.Sources.GitHub.Enabled {
		registry.Register(github.New(github.Options{
			Token:    cfg.Sources.GitHub.Token,
			Topics:   cfg.Sources.GitHub.Topics,
			Keywords: cfg.Sources.GitHub.Keywords,
			MinStars: cfg.Sources.GitHub.MinStars,
			MaxItems: cfg.Sources.GitHub.MaxItems,
			Logger:   logger.With("component", "source.github"),
		}))
		enabled = append(enabled, "github")
	}

	if cfg.Sources.HuggingFacePapers.Enabled {
		registry.Register(huggingface.NewPapers(huggingface.PapersOptions{
			Keywords:   cfg.Monitoring.Keywords,
			SearchDays: cfg.Sources.HuggingFacePapers.SearchDays,
			MaxItems:   cfg.Sources.HuggingFacePapers.MaxItems,
			Logger:     logger.With("component", "source.hf_papers"),
		}))
		enabled = append(enabled, "huggingface_papers")
	}

	if cfg.Sources.HuggingFaceTrending.Enabled {
		registry.Register(huggingface.NewTrending(huggingface.TrendingOptions{
			PipelineTag: cfg.Sources.HuggingFaceTrending.PipelineTag,
			MaxDaysOld:  cfg.Sources.HuggingFaceTrending.MaxDaysOld,
			MaxItems:    cfg.Sources.HuggingFaceTrending.MaxItems,
			Logger:      logger.With("component", "source.hf_trending"),
		}))
		enabled = append(enabled, "huggingface_trending")
	}

	return registry.Enabled(enabled)
}

func promptSet(p config.PromptsConfig) llm.PromptSet {
	return llm.PromptSet{
		RelevanceSystem:     p.RelevanceSystem,
		RelevanceUser:       p.RelevanceUser,
		SummarySystem:       p.SummarySystem,
		SummaryUser:         p.SummaryUser,
		HighlightsSystem:    p.HighlightsSystem,
		HighlightsUser:      p.HighlightsUser,
		DigestSummarySystem: p.DigestSummarySystem,
		DigestSummaryUser:   p.DigestSummaryUser,
	}
}
