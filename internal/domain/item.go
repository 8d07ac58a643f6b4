package domain

import (
	"fmt"
	"time"
)

// ItemType classifies a monitored item.
type ItemType string

const (
	TypePaper      ItemType = "paper"
	TypeRepository ItemType = "repository"
	TypeModelCard  ItemType = "model_card"
)

// Item is an immutable unit fetched from a source. Construct through NewItem
// so the title/url invariants hold everywhere downstream.
type Item struct {
	Type         ItemType
	Title        string
	URL          string
	Content      string
	Source       string
	DiscoveredAt time.Time
	Metadata     map[string]string
}

// NewItem validates required fields and returns the item by value.
func NewItem(itemType ItemType, title, url, content, source string, discoveredAt time.Time, metadata map[string]string) (Item, error) {
	if title == "" {
		return Item{}, fmt.Errorf("item title cannot be empty")
	}
	if url == "" {
		return Item{}, fmt.Errorf("item url cannot be empty")
	}
	if metadata == nil {
		metadata = map[string]string{}
	}
	return Item{
		Type:         itemType,
		Title:        title,
		URL:          url,
		Content:      content,
		Source:       source,
		DiscoveredAt: discoveredAt,
		Metadata:     metadata,
	}, nil
}

// FilterResult is the outcome of one relevance check. Score is taken from the
// model output as-is and is not clamped to [0,1]; consumers compare against
// the threshold defensively.
type FilterResult struct {
	Item      Item
	Relevant  bool
	Score     float64
	Reason    string
	CheckedAt time.Time
}

// DigestEntry is a relevant item enriched with a summary and highlights.
type DigestEntry struct {
	Item       Item
	Summary    string
	Score      float64
	Highlights []string
}
