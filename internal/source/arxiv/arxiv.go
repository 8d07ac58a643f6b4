package arxiv

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"

	"github.com/dukanov/research-monitor/internal/domain"
	"github.com/dukanov/research-monitor/internal/source"
)

const arxivBaseURL = "https://arxiv.org"

var dateExpr = regexp.MustCompile(`\d{1,2} [A-Za-z]{3} \d{4}`)

// Category is a named listing page to crawl.
type Category struct {
	Name string
	URL  string
}

// Source crawls arXiv category listing pages and yields papers published on or
// after the requested day. Listings are ordered newest first, so crawling stops
// at the first entry older than the cutoff.
type Source struct {
	client     *http.Client
	categories []Category
	keywords   []string
	pageSize   int
	maxItems   int
	logger     *slog.Logger
}

// Options tune the crawl; zero values pick defaults.
type Options struct {
	Client   *http.Client
	Keywords []string
	PageSize int
	MaxItems int
	Logger   *slog.Logger
}

// New builds the source for the given categories.
func New(categories []Category, opts Options) *Source {
	if opts.Client == nil {
		opts.Client = &http.Client{Timeout: 20 * time.Second}
	}
	if opts.PageSize <= 0 {
		opts.PageSize = 200
	}
	if opts.MaxItems <= 0 {
		opts.MaxItems = 100
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	return &Source{
		client:     opts.Client,
		categories: categories,
		keywords:   opts.Keywords,
		pageSize:   opts.PageSize,
		maxItems:   opts.MaxItems,
		logger:     opts.Logger,
	}
}

// Name identifies the source inside the registry.
func (s *Source) Name() string {
	return "arxiv"
}

// FetchItems walks each category page by page and collects papers published on
// or after since. Duplicates across categories are dropped by URL.
func (s *Source) FetchItems(ctx context.Context, since time.Time) ([]domain.Item, error) {
	if len(s.categories) == 0 {
		return nil, fmt.Errorf("no arxiv categories configured")
	}

	cutoff := since.UTC().Truncate(24 * time.Hour)
	items := make([]domain.Item, 0)
	seen := map[string]struct{}{}

	for _, cat := range s.categories {
		skip := 0
		for len(items) < s.maxItems {
			pageURL, err := buildPageURL(cat.URL, skip, s.pageSize)
			if err != nil {
				return nil, fmt.Errorf("category %s: %w", cat.Name, err)
			}

			doc, err := s.fetchDocument(ctx, pageURL)
			if err != nil {
				return nil, fmt.Errorf("category %s: %w", cat.Name, err)
			}

			pageItems, shouldContinue := s.extractItems(doc, cutoff, cat.Name)
			for _, item := range pageItems {
				if _, ok := seen[item.URL]; ok {
					continue
				}
				seen[item.URL] = struct{}{}
				items = append(items, item)
				if len(items) >= s.maxItems {
					break
				}
			}

			if !shouldContinue {
				break
			}
			skip += s.pageSize
		}
	}

	s.logger.Info("arxiv fetch finished", "items", len(items), "since", cutoff.Format("2006-01-02"))
	return items, nil
}

func (s *Source) fetchDocument(ctx context.Context, pageURL string) (*goquery.Document, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, pageURL, nil)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("User-Agent", "research-monitor/1.0")

	resp, err := s.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request document: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("arxiv returned %s", resp.Status)
	}

	doc, err := goquery.NewDocumentFromReader(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("parse document: %w", err)
	}

	return doc, nil
}

func (s *Source) extractItems(doc *goquery.Document, cutoff time.Time, category string) ([]domain.Item, bool) {
	var (
		collected    []domain.Item
		continueScan = true
		processed    int
	)

	doc.Find("dl > dt").EachWithBreak(func(i int, dt *goquery.Selection) bool {
		dd := dt.Next()
		processed++

		item, publishedAt, err := parseEntry(dt, dd, category)
		if err != nil {
			return true
		}

		entryDay := publishedAt.UTC().Truncate(24 * time.Hour)
		if entryDay.Before(cutoff) {
			continueScan = false
			return false
		}
		if source.MatchesKeywords(item.Title, item.Content, s.keywords) {
			collected = append(collected, item)
		}

		return true
	})

	if processed < s.pageSize {
		continueScan = false
	}

	return collected, continueScan
}

func parseEntry(dt, dd *goquery.Selection, category string) (domain.Item, time.Time, error) {
	link := dt.Find("a[href*=\"/abs/\"]").First()
	href, _ := link.Attr("href")
	if href == "" {
		return domain.Item{}, time.Time{}, fmt.Errorf("entry has no abstract link")
	}
	if !strings.HasPrefix(href, "http") {
		href = strings.TrimSuffix(arxivBaseURL, "/") + href
	}

	id := strings.TrimSpace(link.Text())
	if id == "" {
		id = strings.TrimPrefix(href, arxivBaseURL+"/abs/")
	}

	title := strings.TrimSpace(dd.Find(".list-title").First().Text())
	title = strings.TrimSpace(strings.TrimPrefix(title, "Title:"))

	// The title div also carries the mathjax class; the abstract is the
	// paragraph node.
	abstract := dd.Find("p.mathjax").First().Text()
	abstract = strings.TrimSpace(strings.TrimPrefix(strings.TrimSpace(abstract), "Abstract:"))

	dateText := strings.TrimSpace(dd.Find(".list-date").First().Text())
	if dateText == "" {
		dateText = strings.TrimSpace(dd.Find(".list-dateline").First().Text())
	}

	publishedAt := time.Now().UTC()
	if match := dateExpr.FindString(dateText); match != "" {
		if parsed, err := time.Parse("2 Jan 2006", match); err == nil {
			publishedAt = parsed
		}
	}

	item, err := domain.NewItem(domain.TypePaper, title, href, abstract, "arxiv", publishedAt, map[string]string{
		"arxiv_id": id,
		"category": category,
	})
	if err != nil {
		return domain.Item{}, time.Time{}, err
	}

	return item, publishedAt, nil
}

func buildPageURL(base string, skip, pageSize int) (string, error) {
	parsed, err := url.Parse(base)
	if err != nil {
		return "", fmt.Errorf("invalid category url %s: %w", base, err)
	}

	query := parsed.Query()
	query.Set("skip", strconv.Itoa(skip))
	query.Set("show", strconv.Itoa(pageSize))
	parsed.RawQuery = query.Encode()
	return parsed.String(), nil
}
