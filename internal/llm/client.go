package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/dukanov/research-monitor/internal/domain"
	"github.com/dukanov/research-monitor/internal/ports"
)

const (
	defaultBaseURL   = "https://api.anthropic.com/v1"
	anthropicVersion = "2023-06-01"
	maxContentRunes  = 8000
	maxHighlights    = 5
	requestTimeout   = 60 * time.Second
	errorBodySnippet = 1024
)

// Options configures a Client. Zero values fall back to usable defaults.
type Options struct {
	BaseURL           string
	APIKey            string
	Model             string
	MaxTokens         int
	Temperature       float64
	MaxRetries        int
	InitialRetryDelay time.Duration
	RequestDelay      time.Duration
	Prompts           PromptSet
	HTTPClient        *http.Client
	Logger            *slog.Logger
}

// Client talks to a Claude-compatible messages endpoint with rate limiting
// and retry/backoff. One client instance serializes its own requests: the
// lastRequest marker is single-writer and callers must not share an instance
// across goroutines without external locking, or the minimum inter-request
// spacing can be violated.
type Client struct {
	baseURL           string
	apiKey            string
	model             string
	maxTokens         int
	temperature       float64
	maxRetries        int
	initialRetryDelay time.Duration
	requestDelay      time.Duration
	prompts           PromptSet
	httpClient        *http.Client
	logger            *slog.Logger
	lastRequest       time.Time
}

var _ ports.LLMClient = (*Client)(nil)

// NewClient builds a gateway from options.
func NewClient(opts Options) *Client {
	if opts.BaseURL == "" {
		opts.BaseURL = defaultBaseURL
	}
	if opts.MaxRetries < 1 {
		opts.MaxRetries = 1
	}
	if opts.HTTPClient == nil {
		opts.HTTPClient = &http.Client{Timeout: requestTimeout}
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	return &Client{
		baseURL:           strings.TrimSuffix(opts.BaseURL, "/"),
		apiKey:            opts.APIKey,
		model:             opts.Model,
		maxTokens:         opts.MaxTokens,
		temperature:       opts.Temperature,
		maxRetries:        opts.MaxRetries,
		initialRetryDelay: opts.InitialRetryDelay,
		requestDelay:      opts.RequestDelay,
		prompts:           opts.Prompts.withDefaults(),
		httpClient:        opts.HTTPClient,
		logger:            opts.Logger,
	}
}

// CheckRelevance asks the model whether the item matches the interests.
// Malformed model output is recovered into a negative zero-score result with
// a diagnostic reason; only transport/API failures surface as errors.
func (c *Client) CheckRelevance(ctx context.Context, item domain.Item, interests string) (domain.FilterResult, error) {
	prompt := renderPrompt(c.prompts.RelevanceUser, item, map[string]string{"{interests}": interests})

	response, err := c.callAPI(ctx, c.prompts.RelevanceSystem, prompt)
	if err != nil {
		return domain.FilterResult{}, err
	}

	var parsed struct {
		IsRelevant *bool    `json:"is_relevant"`
		Score      *float64 `json:"score"`
		Reason     string   `json:"reason"`
	}
	if err := json.Unmarshal([]byte(ExtractJSON(response)), &parsed); err != nil || parsed.IsRelevant == nil || parsed.Score == nil {
		reason := "failed to parse relevance response"
		if err != nil {
			reason = fmt.Sprintf("failed to parse relevance response: %v", err)
		}
		c.logger.Warn("relevance response unparsable", "title", item.Title, "reason", reason)
		return domain.FilterResult{
			Item:      item,
			Relevant:  false,
			Score:     0.0,
			Reason:    reason,
			CheckedAt: time.Now(),
		}, nil
	}

	return domain.FilterResult{
		Item:      item,
		Relevant:  *parsed.IsRelevant,
		Score:     *parsed.Score,
		Reason:    parsed.Reason,
		CheckedAt: time.Now(),
	}, nil
}

// GenerateSummary returns the model text verbatim.
func (c *Client) GenerateSummary(ctx context.Context, item domain.Item) (string, error) {
	prompt := renderPrompt(c.prompts.SummaryUser, item, nil)
	return c.callAPI(ctx, c.prompts.SummarySystem, prompt)
}

// ExtractHighlights returns up to five short strings. A JSON array is taken
// as-is; a JSON object degrades to its values in key order; anything else
// degrades to a bullet-line split of the raw text.
func (c *Client) ExtractHighlights(ctx context.Context, item domain.Item) ([]string, error) {
	prompt := renderPrompt(c.prompts.HighlightsUser, item, nil)

	response, err := c.callAPI(ctx, c.prompts.HighlightsSystem, prompt)
	if err != nil {
		return nil, err
	}

	payload := ExtractJSON(response)

	var list []any
	if err := json.Unmarshal([]byte(payload), &list); err == nil {
		return stringify(list), nil
	}

	var object map[string]any
	if err := json.Unmarshal([]byte(payload), &object); err == nil {
		keys := make([]string, 0, len(object))
		for k := range object {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		values := make([]any, 0, len(object))
		for _, k := range keys {
			values = append(values, object[k])
		}
		return stringify(values), nil
	}

	return splitHighlightLines(response), nil
}

// GenerateDigestSummary serializes entry data as JSON into the template and
// returns the model text verbatim.
func (c *Client) GenerateDigestSummary(ctx context.Context, entries []domain.DigestEntry) (string, error) {
	type entryPayload struct {
		Title   string  `json:"title"`
		URL     string  `json:"url"`
		Type    string  `json:"type"`
		Summary string  `json:"summary"`
		Score   float64 `json:"score"`
	}

	payload := make([]entryPayload, 0, len(entries))
	for _, entry := range entries {
		payload = append(payload, entryPayload{
			Title:   entry.Item.Title,
			URL:     entry.Item.URL,
			Type:    string(entry.Item.Type),
			Summary: entry.Summary,
			Score:   entry.Score,
		})
	}

	serialized, err := json.MarshalIndent(payload, "", "  ")
	if err != nil {
		return "", fmt.Errorf("marshal digest entries: %w", err)
	}

	prompt := strings.ReplaceAll(c.prompts.DigestSummaryUser, "{entries}", string(serialized))
	return c.callAPI(ctx, c.prompts.DigestSummarySystem, prompt)
}

type messagesRequest struct {
	Model       string        `json:"model"`
	MaxTokens   int           `json:"max_tokens"`
	Temperature float64       `json:"temperature"`
	System      string        `json:"system"`
	Messages    []chatMessage `json:"messages"`
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type messagesResponse struct {
	Content []struct {
		Text string `json:"text"`
	} `json:"content"`
}

// callAPI is the shared request primitive: minimum inter-request spacing,
// then up to maxRetries attempts with exponential backoff on 429/5xx and
// transport errors. Other HTTP errors propagate without retrying.
func (c *Client) callAPI(ctx context.Context, system, prompt string) (string, error) {
	if wait := c.requestDelay - time.Since(c.lastRequest); wait > 0 {
		if err := sleepCtx(ctx, wait); err != nil {
			return "", err
		}
	}

	body, err := json.Marshal(messagesRequest{
		Model:       c.model,
		MaxTokens:   c.maxTokens,
		Temperature: c.temperature,
		System:      system,
		Messages:    []chatMessage{{Role: "user", Content: prompt}},
	})
	if err != nil {
		return "", fmt.Errorf("marshal request: %w", err)
	}

	var lastErr error
	for attempt := 0; attempt < c.maxRetries; attempt++ {
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/messages", bytes.NewReader(body))
		if err != nil {
			return "", fmt.Errorf("new request: %w", err)
		}
		req.Header.Set("x-api-key", c.apiKey)
		req.Header.Set("anthropic-version", anthropicVersion)
		req.Header.Set("content-type", "application/json")

		resp, err := c.httpClient.Do(req)
		if err != nil {
			lastErr = fmt.Errorf("request failed: %w", err)
			if attempt < c.maxRetries-1 {
				delay := c.backoff(attempt)
				c.logger.Warn("network error, retrying", "delay", delay, "attempt", attempt+1)
				if serr := sleepCtx(ctx, delay); serr != nil {
					return "", serr
				}
				continue
			}
			return "", lastErr
		}

		payload, readErr := io.ReadAll(resp.Body)
		resp.Body.Close()
		c.lastRequest = time.Now()
		if readErr != nil {
			lastErr = fmt.Errorf("read response: %w", readErr)
			if attempt < c.maxRetries-1 {
				if serr := sleepCtx(ctx, c.backoff(attempt)); serr != nil {
					return "", serr
				}
				continue
			}
			return "", lastErr
		}

		switch {
		case resp.StatusCode == http.StatusOK:
			var decoded messagesResponse
			if err := json.Unmarshal(payload, &decoded); err != nil {
				return "", fmt.Errorf("decode response: %w", err)
			}
			if len(decoded.Content) == 0 {
				return "", fmt.Errorf("empty response content")
			}
			return decoded.Content[0].Text, nil

		case resp.StatusCode == http.StatusTooManyRequests:
			delay := c.retryAfter(resp, attempt)
			lastErr = fmt.Errorf("rate limited: %s", resp.Status)
			c.logger.Warn("rate limit hit, retrying", "delay", delay, "attempt", attempt+1, "max", c.maxRetries)
			if serr := sleepCtx(ctx, delay); serr != nil {
				return "", serr
			}

		case resp.StatusCode >= http.StatusInternalServerError:
			delay := c.backoff(attempt)
			lastErr = fmt.Errorf("server error: %s", resp.Status)
			c.logger.Warn("server error, retrying", "status", resp.StatusCode, "delay", delay)
			if serr := sleepCtx(ctx, delay); serr != nil {
				return "", serr
			}

		default:
			snippet := strings.TrimSpace(string(payload[:min(len(payload), errorBodySnippet)]))
			return "", fmt.Errorf("api error %s: %s", resp.Status, snippet)
		}
	}

	if lastErr != nil {
		return "", lastErr
	}
	return "", fmt.Errorf("exhausted %d attempts without a response", c.maxRetries)
}

// retryAfter prefers a server-supplied Retry-After value over backoff.
func (c *Client) retryAfter(resp *http.Response, attempt int) time.Duration {
	if header := resp.Header.Get("Retry-After"); header != "" {
		if seconds, err := strconv.ParseFloat(header, 64); err == nil {
			return time.Duration(seconds * float64(time.Second))
		}
	}
	return c.backoff(attempt)
}

func (c *Client) backoff(attempt int) time.Duration {
	return c.initialRetryDelay * (1 << attempt)
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

// renderPrompt substitutes item fields into a user template. Content is
// truncated so oversized READMEs and papers fit the model context.
func renderPrompt(template string, item domain.Item, extra map[string]string) string {
	pairs := []string{
		"{title}", item.Title,
		"{url}", item.URL,
		"{type}", string(item.Type),
		"{source}", item.Source,
		"{content}", truncateRunes(item.Content, maxContentRunes),
	}
	for k, v := range extra {
		pairs = append(pairs, k, v)
	}
	return strings.NewReplacer(pairs...).Replace(template)
}

func truncateRunes(s string, limit int) string {
	runes := []rune(s)
	if len(runes) <= limit {
		return s
	}
	return string(runes[:limit])
}

func stringify(values []any) []string {
	out := make([]string, 0, len(values))
	for _, v := range values {
		text := strings.TrimSpace(fmt.Sprint(v))
		if text == "" {
			continue
		}
		out = append(out, text)
		if len(out) == maxHighlights {
			break
		}
	}
	return out
}

// splitHighlightLines is the last-resort highlight parser for non-JSON
// responses: keep non-empty, non-fence lines with bullet markers stripped.
func splitHighlightLines(response string) []string {
	lines := strings.Split(response, "\n")
	out := make([]string, 0, maxHighlights)
	for _, line := range lines {
		line = strings.TrimSpace(line)
		if line == "" || strings.HasPrefix(line, "```") {
			continue
		}
		line = strings.TrimSpace(strings.TrimLeft(line, "-*• \t"))
		if line == "" {
			continue
		}
		out = append(out, line)
		if len(out) == maxHighlights {
			break
		}
	}
	return out
}
