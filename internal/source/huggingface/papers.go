package huggingface

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/PuerkitoBio/goquery"

	"github.com/dukanov/research-monitor/internal/domain"
	"github.com/dukanov/research-monitor/internal/source"
)

const defaultBaseURL = "https://huggingface.co"

// Papers fetches the HuggingFace daily papers listing. The listing is a
// server-rendered page whose paper data lives in a hydration JSON attribute,
// so each day's page is parsed rather than called through an API.
type Papers struct {
	client     *http.Client
	baseURL    string
	keywords   []string
	searchDays int
	maxItems   int
	logger     *slog.Logger
}

// PapersOptions tune the fetch; zero values pick defaults.
type PapersOptions struct {
	Client     *http.Client
	BaseURL    string
	Keywords   []string
	SearchDays int
	MaxItems   int
	Logger     *slog.Logger
}

// NewPapers builds the source.
func NewPapers(opts PapersOptions) *Papers {
	if opts.Client == nil {
		opts.Client = &http.Client{Timeout: 30 * time.Second}
	}
	if opts.BaseURL == "" {
		opts.BaseURL = defaultBaseURL
	}
	if opts.SearchDays <= 0 {
		opts.SearchDays = 7
	}
	if opts.MaxItems <= 0 {
		opts.MaxItems = 50
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	return &Papers{
		client:     opts.Client,
		baseURL:    opts.BaseURL,
		keywords:   opts.Keywords,
		searchDays: opts.SearchDays,
		maxItems:   opts.MaxItems,
		logger:     opts.Logger,
	}
}

// Name identifies the source inside the registry.
func (p *Papers) Name() string {
	return "huggingface_papers"
}

type dailyPaper struct {
	Title   string `json:"title"`
	Summary string `json:"summary"`
	Paper   struct {
		ID      string `json:"id"`
		Upvotes int    `json:"upvotes"`
	} `json:"paper"`
}

// FetchItems walks the daily papers archive day by day, newest first, and
// collects keyword-matching papers. Days that fail to load are skipped.
func (p *Papers) FetchItems(ctx context.Context, since time.Time) ([]domain.Item, error) {
	items := make([]domain.Item, 0)
	seen := map[string]struct{}{}
	today := time.Now().UTC().Truncate(24 * time.Hour)

	for offset := 0; offset < p.searchDays && len(items) < p.maxItems; offset++ {
		day := today.AddDate(0, 0, -offset)
		pageURL := p.baseURL + "/papers"
		if offset > 0 {
			pageURL = fmt.Sprintf("%s/papers?date=%s", p.baseURL, day.Format("2006-01-02"))
		}

		papers, err := p.fetchDay(ctx, pageURL)
		if err != nil {
			p.logger.Warn("daily papers page skipped", "date", day.Format("2006-01-02"), "error", err)
			continue
		}

		for _, paper := range papers {
			if len(items) >= p.maxItems {
				break
			}
			if paper.Paper.ID == "" {
				continue
			}
			if _, ok := seen[paper.Paper.ID]; ok {
				continue
			}
			seen[paper.Paper.ID] = struct{}{}

			if !source.MatchesKeywords(paper.Title, paper.Summary, p.keywords) {
				continue
			}

			content := fmt.Sprintf("Title: %s\n\nSummary:\n%s\n\nPaper ID: %s",
				paper.Title, paper.Summary, paper.Paper.ID)
			item, err := domain.NewItem(
				domain.TypePaper,
				paper.Title,
				fmt.Sprintf("%s/papers/%s", p.baseURL, paper.Paper.ID),
				content,
				"huggingface_papers",
				time.Now().UTC(),
				map[string]string{
					"upvotes":        fmt.Sprintf("%d", paper.Paper.Upvotes),
					"paper_id":       paper.Paper.ID,
					"published_date": day.Format("2006-01-02"),
				},
			)
			if err != nil {
				continue
			}
			items = append(items, item)
		}
	}

	p.logger.Info("huggingface papers fetch finished", "items", len(items), "days", p.searchDays)
	return items, nil
}

func (p *Papers) fetchDay(ctx context.Context, pageURL string) ([]dailyPaper, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, pageURL, nil)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}

	resp, err := p.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request page: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("huggingface returned %s", resp.Status)
	}

	doc, err := goquery.NewDocumentFromReader(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("parse page: %w", err)
	}

	props, ok := doc.Find(`div.SVELTE_HYDRATER[data-target="DailyPapers"]`).First().Attr("data-props")
	if !ok {
		return nil, fmt.Errorf("hydration data not found")
	}

	var payload struct {
		DailyPapers []dailyPaper `json:"dailyPapers"`
	}
	if err := json.Unmarshal([]byte(props), &payload); err != nil {
		return nil, fmt.Errorf("decode hydration data: %w", err)
	}
	return payload.DailyPapers, nil
}
