package huggingface

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"sort"
	"time"

	"github.com/dukanov/research-monitor/internal/domain"
)

const maxCardRunes = 10000

// Trending fetches trending models for a pipeline tag from the HuggingFace
// model API and enriches each with its model card.
type Trending struct {
	client      *http.Client
	baseURL     string
	pipelineTag string
	maxItems    int
	maxDaysOld  int
	logger      *slog.Logger
}

// TrendingOptions tune the fetch; zero values pick defaults.
type TrendingOptions struct {
	Client      *http.Client
	BaseURL     string
	PipelineTag string
	MaxItems    int
	// MaxDaysOld drops models whose last modification is older than this.
	MaxDaysOld int
	Logger     *slog.Logger
}

// NewTrending builds the source.
func NewTrending(opts TrendingOptions) *Trending {
	if opts.Client == nil {
		opts.Client = &http.Client{Timeout: 30 * time.Second}
	}
	if opts.BaseURL == "" {
		opts.BaseURL = defaultBaseURL
	}
	if opts.PipelineTag == "" {
		opts.PipelineTag = "text-to-speech"
	}
	if opts.MaxItems <= 0 {
		opts.MaxItems = 50
	}
	if opts.MaxDaysOld <= 0 {
		opts.MaxDaysOld = 14
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	return &Trending{
		client:      opts.Client,
		baseURL:     opts.BaseURL,
		pipelineTag: opts.PipelineTag,
		maxItems:    opts.MaxItems,
		maxDaysOld:  opts.MaxDaysOld,
		logger:      opts.Logger,
	}
}

// Name identifies the source inside the registry.
func (t *Trending) Name() string {
	return "huggingface_trending"
}

type modelSummary struct {
	ID            string  `json:"id"`
	ModelID       string  `json:"modelId"`
	TrendingScore float64 `json:"trendingScore"`
}

type modelDetails struct {
	LastModified string `json:"lastModified"`
	Likes        int    `json:"likes"`
	Downloads    int    `json:"downloads"`
}

// FetchItems lists trending models, drops those not modified within the
// freshness window, and attaches model card content. Models whose details or
// card cannot be fetched are skipped.
func (t *Trending) FetchItems(ctx context.Context, since time.Time) ([]domain.Item, error) {
	models, err := t.listModels(ctx)
	if err != nil {
		return nil, err
	}

	sort.SliceStable(models, func(i, j int) bool {
		return models[i].TrendingScore > models[j].TrendingScore
	})

	cutoff := time.Now().UTC().AddDate(0, 0, -t.maxDaysOld)
	items := make([]domain.Item, 0)

	for _, model := range models {
		if len(items) >= t.maxItems {
			break
		}
		modelID := model.ID
		if modelID == "" {
			modelID = model.ModelID
		}
		if modelID == "" {
			continue
		}

		details, err := t.fetchDetails(ctx, modelID)
		if err != nil {
			t.logger.Warn("model details skipped", "model", modelID, "error", err)
			continue
		}

		// Unparseable modification dates keep the model in.
		if details.LastModified != "" {
			if lastModified, err := time.Parse(time.RFC3339, details.LastModified); err == nil {
				if lastModified.Before(cutoff) {
					continue
				}
			}
		}

		card, err := t.fetchCard(ctx, modelID)
		if err != nil {
			t.logger.Warn("model card skipped", "model", modelID, "error", err)
			continue
		}

		lastModified := details.LastModified
		if lastModified == "" {
			lastModified = "unknown"
		}
		item, err := domain.NewItem(
			domain.TypeModelCard,
			modelID,
			t.baseURL+"/"+modelID,
			card,
			"huggingface_trending",
			time.Now().UTC(),
			map[string]string{
				"likes":          fmt.Sprintf("%d", details.Likes),
				"downloads":      fmt.Sprintf("%d", details.Downloads),
				"trending_score": fmt.Sprintf("%g", model.TrendingScore),
				"last_modified":  lastModified,
			},
		)
		if err != nil {
			continue
		}
		items = append(items, item)
	}

	t.logger.Info("huggingface trending fetch finished", "items", len(items), "pipeline", t.pipelineTag)
	return items, nil
}

func (t *Trending) listModels(ctx context.Context) ([]modelSummary, error) {
	listURL := fmt.Sprintf("%s/api/models?pipeline_tag=%s&limit=100", t.baseURL, t.pipelineTag)
	var models []modelSummary
	if err := t.getJSON(ctx, listURL, &models); err != nil {
		return nil, fmt.Errorf("list models: %w", err)
	}
	return models, nil
}

func (t *Trending) fetchDetails(ctx context.Context, modelID string) (modelDetails, error) {
	var details modelDetails
	detailsURL := fmt.Sprintf("%s/api/models/%s", t.baseURL, modelID)
	if err := t.getJSON(ctx, detailsURL, &details); err != nil {
		return modelDetails{}, err
	}
	return details, nil
}

func (t *Trending) fetchCard(ctx context.Context, modelID string) (string, error) {
	cardURL := fmt.Sprintf("%s/%s/raw/main/README.md", t.baseURL, modelID)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, cardURL, nil)
	if err != nil {
		return "", fmt.Errorf("build request: %w", err)
	}

	resp, err := t.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("request card: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("card returned %s", resp.Status)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("read card: %w", err)
	}

	runes := []rune(string(body))
	if len(runes) > maxCardRunes {
		return string(runes[:maxCardRunes]), nil
	}
	return string(runes), nil
}

func (t *Trending) getJSON(ctx context.Context, rawURL string, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}

	resp, err := t.client.Do(req)
	if err != nil {
		return fmt.Errorf("request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("huggingface returned %s", resp.Status)
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}
