package github

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	gh "github.com/google/go-github/v80/github"
	"golang.org/x/oauth2"
	"golang.org/x/time/rate"

	"github.com/dukanov/research-monitor/internal/domain"
)

const maxReadmeRunes = 10000

// Source discovers repositories through the GitHub search API. The query
// combines configured topics and keywords with a minimum star count and a
// pushed-since window derived from the fetch cutoff.
type Source struct {
	client   *gh.Client
	topics   []string
	keywords []string
	minStars int
	maxItems int
	limiter  *rate.Limiter
	logger   *slog.Logger
}

// Options tune the search; zero values pick defaults.
type Options struct {
	// Token authenticates API calls; anonymous access works with tight limits.
	Token    string
	Topics   []string
	Keywords []string
	MinStars int
	MaxItems int
	// RequestDelay spaces consecutive API calls.
	RequestDelay time.Duration
	Logger       *slog.Logger
	// HTTPClient overrides the oauth2 transport, mainly for tests.
	HTTPClient *http.Client
}

// New builds the source.
func New(opts Options) *Source {
	httpClient := opts.HTTPClient
	if httpClient == nil && opts.Token != "" {
		ts := oauth2.StaticTokenSource(&oauth2.Token{AccessToken: opts.Token})
		httpClient = oauth2.NewClient(context.Background(), ts)
	}
	if opts.MaxItems <= 0 {
		opts.MaxItems = 50
	}
	if opts.RequestDelay <= 0 {
		opts.RequestDelay = time.Second
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	return &Source{
		client:   gh.NewClient(httpClient),
		topics:   opts.Topics,
		keywords: opts.Keywords,
		minStars: opts.MinStars,
		maxItems: opts.MaxItems,
		limiter:  rate.NewLimiter(rate.Every(opts.RequestDelay), 1),
		logger:   opts.Logger,
	}
}

// SetBaseURL points the underlying client at a different API host, for tests.
func (s *Source) SetBaseURL(base string) error {
	if !strings.HasSuffix(base, "/") {
		base += "/"
	}
	parsed, err := s.client.BaseURL.Parse(base)
	if err != nil {
		return fmt.Errorf("parse base url: %w", err)
	}
	s.client.BaseURL = parsed
	return nil
}

// Name identifies the source inside the registry.
func (s *Source) Name() string {
	return "github"
}

// FetchItems searches for matching repositories pushed on or after since and
// enriches each with its README.
func (s *Source) FetchItems(ctx context.Context, since time.Time) ([]domain.Item, error) {
	query := s.buildQuery(since)

	if err := s.limiter.Wait(ctx); err != nil {
		return nil, err
	}
	result, _, err := s.client.Search.Repositories(ctx, query, &gh.SearchOptions{
		Sort:        "updated",
		Order:       "desc",
		ListOptions: gh.ListOptions{PerPage: s.maxItems},
	})
	if err != nil {
		return nil, fmt.Errorf("search repositories: %w", err)
	}

	items := make([]domain.Item, 0, len(result.Repositories))
	for _, repo := range result.Repositories {
		if len(items) >= s.maxItems {
			break
		}
		item, err := s.buildItem(ctx, repo)
		if err != nil {
			s.logger.Warn("skipping repository", "repo", repo.GetFullName(), "error", err)
			continue
		}
		items = append(items, item)
	}

	s.logger.Info("github fetch finished", "items", len(items), "query", query)
	return items, nil
}

func (s *Source) buildQuery(since time.Time) string {
	parts := make([]string, 0, len(s.topics)+len(s.keywords)+2)
	parts = append(parts, s.keywords...)
	for _, topic := range s.topics {
		parts = append(parts, "topic:"+topic)
	}
	if s.minStars > 0 {
		parts = append(parts, fmt.Sprintf("stars:>=%d", s.minStars))
	}
	parts = append(parts, "pushed:>="+since.UTC().Format("2006-01-02"))
	return strings.Join(parts, " ")
}

func (s *Source) buildItem(ctx context.Context, repo *gh.Repository) (domain.Item, error) {
	readme := s.fetchReadme(ctx, repo)

	content := fmt.Sprintf("Description: %s\n\nTopics: %s\n\nREADME:\n%s",
		repo.GetDescription(), strings.Join(repo.Topics, ", "), readme)

	return domain.NewItem(
		domain.TypeRepository,
		repo.GetFullName(),
		repo.GetHTMLURL(),
		content,
		"github",
		time.Now().UTC(),
		map[string]string{
			"stars":      fmt.Sprintf("%d", repo.GetStargazersCount()),
			"language":   repo.GetLanguage(),
			"updated_at": repo.GetUpdatedAt().UTC().Format(time.RFC3339),
		},
	)
}

// fetchReadme returns the repository README truncated to maxReadmeRunes.
// A missing or unreadable README degrades to an empty string.
func (s *Source) fetchReadme(ctx context.Context, repo *gh.Repository) string {
	if err := s.limiter.Wait(ctx); err != nil {
		return ""
	}
	file, _, err := s.client.Repositories.GetReadme(ctx, repo.GetOwner().GetLogin(), repo.GetName(), nil)
	if err != nil {
		return ""
	}
	content, err := file.GetContent()
	if err != nil {
		return ""
	}
	runes := []rune(content)
	if len(runes) > maxReadmeRunes {
		return string(runes[:maxReadmeRunes])
	}
	return content
}
