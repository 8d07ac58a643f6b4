package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/dukanov/research-monitor/internal/ports"
)

// Slack sends digest summaries to a Slack incoming webhook. An empty webhook
// URL makes every send a silent no-op so the notifier can always be wired.
type Slack struct {
	webhookURL string
	client     *http.Client
}

var _ ports.Notifier = (*Slack)(nil)

// NewSlack builds the notifier; client may be nil.
func NewSlack(webhookURL string, client *http.Client) *Slack {
	if client == nil {
		client = &http.Client{Timeout: 30 * time.Second}
	}
	return &Slack{webhookURL: webhookURL, client: client}
}

// SendDigest posts the summary with a dated header as a markdown message.
func (s *Slack) SendDigest(ctx context.Context, summary string, date time.Time) error {
	if s.webhookURL == "" {
		return nil
	}

	message := fmt.Sprintf("*Research Digest — %s*\n\n%s", date.Format("02.01.2006"), summary)
	body, err := json.Marshal(map[string]any{
		"text":   message,
		"mrkdwn": true,
	})
	if err != nil {
		return fmt.Errorf("marshal slack payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.webhookURL, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("new request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := s.client.Do(req)
	if err != nil {
		return fmt.Errorf("send to slack: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= http.StatusBadRequest {
		payload, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return fmt.Errorf("slack error %s: %s", resp.Status, strings.TrimSpace(string(payload)))
	}
	return nil
}
