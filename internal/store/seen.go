package store

import (
	"crypto/md5"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strings"
	"time"
	"unicode/utf8"

	"gopkg.in/yaml.v3"

	"github.com/dukanov/research-monitor/internal/domain"
	"github.com/dukanov/research-monitor/internal/ports"
)

const (
	artifactExt        = ".yaml"
	titlePrefixLen     = 50
	previewLen         = 500
	llmContentLen      = 8000
	artifactDateLayout = "2006-01-02"
)

// Letters and digits in any script survive sanitization; titles are not
// ASCII-only.
var (
	unsafeCharsExpr = regexp.MustCompile(`[^\p{L}\p{N}_\s-]`)
	separatorExpr   = regexp.MustCompile(`[-\s]+`)
)

// Artifact is the durable per-item record written under the storage root.
type Artifact struct {
	Title            string            `yaml:"title"`
	URL              string            `yaml:"url"`
	Source           string            `yaml:"source"`
	Type             string            `yaml:"type"`
	DateDiscovered   string            `yaml:"date_discovered"`
	DateSeen         string            `yaml:"date_seen"`
	Metadata         map[string]string `yaml:"metadata"`
	ContentPreview   string            `yaml:"content_preview"`
	ContentLength    int               `yaml:"content_length"`
	LLMContentSent   int               `yaml:"llm_content_sent"`
	RelevanceChecked bool              `yaml:"relevance_checked"`
	IsRelevant       *bool             `yaml:"is_relevant,omitempty"`
	RelevanceScore   *float64          `yaml:"relevance_score,omitempty"`
	Reason           *string           `yaml:"reason,omitempty"`

	// File is the path relative to the storage root, filled by List.
	File string `yaml:"-"`
}

// SeenItems tracks processed items as one YAML file per item, grouped in a
// subdirectory per source. Write failures are logged and swallowed so a
// storage fault degrades to reprocessing on the next run.
type SeenItems struct {
	root   string
	logger *slog.Logger
}

var _ ports.SeenStore = (*SeenItems)(nil)

// New creates the storage root if needed.
func New(root string, logger *slog.Logger) (*SeenItems, error) {
	if logger == nil {
		logger = slog.Default()
	}
	if err := os.MkdirAll(root, 0o755); err != nil {
		return nil, fmt.Errorf("create storage dir: %w", err)
	}
	return &SeenItems{root: root, logger: logger}, nil
}

// IsSeen reports whether an artifact already exists for the item.
func (s *SeenItems) IsSeen(item domain.Item) bool {
	_, err := os.Stat(s.artifactPath(item))
	return err == nil
}

// MarkSeen writes the artifact without relevance data.
func (s *SeenItems) MarkSeen(item domain.Item) {
	s.save(item, nil, nil, nil)
}

// MarkSeenWithRelevance writes the artifact with relevance check results.
func (s *SeenItems) MarkSeenWithRelevance(item domain.Item, relevant bool, score float64, reason string) {
	s.save(item, &relevant, &score, &reason)
}

// FilterUnseen partitions items in input order, preserving the relative
// order of the unseen subset, and reports how many were already seen.
func (s *SeenItems) FilterUnseen(items []domain.Item) ([]domain.Item, int) {
	unseen := make([]domain.Item, 0, len(items))
	seen := 0
	for _, item := range items {
		if s.IsSeen(item) {
			seen++
			continue
		}
		unseen = append(unseen, item)
	}
	return unseen, seen
}

func (s *SeenItems) save(item domain.Item, relevant *bool, score *float64, reason *string) {
	path := s.artifactPath(item)
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		s.logger.Warn("could not create artifact dir", "item", item.Title, "error", err)
		return
	}

	preview := truncateRunes(item.Content, previewLen)
	contentLen := utf8.RuneCountInString(item.Content)

	artifact := Artifact{
		Title:            item.Title,
		URL:              item.URL,
		Source:           item.Source,
		Type:             string(item.Type),
		DateDiscovered:   item.DiscoveredAt.UTC().Format(time.RFC3339),
		DateSeen:         time.Now().UTC().Format(artifactDateLayout),
		Metadata:         item.Metadata,
		ContentPreview:   preview,
		ContentLength:    contentLen,
		LLMContentSent:   min(llmContentLen, contentLen),
		RelevanceChecked: relevant != nil,
		IsRelevant:       relevant,
		RelevanceScore:   score,
		Reason:           reason,
	}

	data, err := yaml.Marshal(artifact)
	if err != nil {
		s.logger.Warn("could not marshal artifact", "item", item.Title, "error", err)
		return
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		s.logger.Warn("could not save artifact", "item", item.Title, "error", err)
	}
}

// Stats holds artifact counts for the whole store.
type Stats struct {
	Total    int
	BySource map[string]int
}

// GetStats counts artifacts per source subdirectory.
func (s *SeenItems) GetStats() (Stats, error) {
	stats := Stats{BySource: map[string]int{}}

	entries, err := os.ReadDir(s.root)
	if err != nil {
		return stats, fmt.Errorf("read storage dir: %w", err)
	}
	for _, entry := range entries {
		if !entry.IsDir() {
			continue
		}
		paths, err := filepath.Glob(filepath.Join(s.root, entry.Name(), "*"+artifactExt))
		if err != nil {
			continue
		}
		stats.BySource[entry.Name()] = len(paths)
		stats.Total += len(paths)
	}
	return stats, nil
}

// List returns up to limit artifacts, most recently modified first,
// optionally restricted to one source. Unreadable artifacts are skipped.
func (s *SeenItems) List(source string, limit int) ([]Artifact, error) {
	var dirs []string
	if source != "" {
		dir := filepath.Join(s.root, source)
		if _, err := os.Stat(dir); err == nil {
			dirs = append(dirs, dir)
		}
	} else {
		entries, err := os.ReadDir(s.root)
		if err != nil {
			return nil, fmt.Errorf("read storage dir: %w", err)
		}
		for _, entry := range entries {
			if entry.IsDir() {
				dirs = append(dirs, filepath.Join(s.root, entry.Name()))
			}
		}
	}

	type candidate struct {
		path    string
		modTime time.Time
	}
	var candidates []candidate
	for _, dir := range dirs {
		paths, err := filepath.Glob(filepath.Join(dir, "*"+artifactExt))
		if err != nil {
			continue
		}
		for _, path := range paths {
			info, err := os.Stat(path)
			if err != nil {
				continue
			}
			candidates = append(candidates, candidate{path: path, modTime: info.ModTime()})
		}
	}
	sort.Slice(candidates, func(i, j int) bool {
		return candidates[i].modTime.After(candidates[j].modTime)
	})

	artifacts := make([]Artifact, 0, limit)
	for _, c := range candidates {
		if len(artifacts) >= limit {
			break
		}
		data, err := os.ReadFile(c.path)
		if err != nil {
			continue
		}
		var artifact Artifact
		if err := yaml.Unmarshal(data, &artifact); err != nil {
			continue
		}
		if rel, err := filepath.Rel(s.root, c.path); err == nil {
			artifact.File = rel
		}
		artifacts = append(artifacts, artifact)
	}
	return artifacts, nil
}

// PruneOld deletes artifacts whose recorded seen date is older than the
// given number of days and returns how many were removed. Artifacts with a
// missing or unreadable date are left untouched.
func (s *SeenItems) PruneOld(days int) (int, error) {
	entries, err := os.ReadDir(s.root)
	if err != nil {
		return 0, fmt.Errorf("read storage dir: %w", err)
	}

	today := time.Now().UTC().Truncate(24 * time.Hour)
	removed := 0
	for _, entry := range entries {
		if !entry.IsDir() {
			continue
		}
		paths, err := filepath.Glob(filepath.Join(s.root, entry.Name(), "*"+artifactExt))
		if err != nil {
			continue
		}
		for _, path := range paths {
			data, err := os.ReadFile(path)
			if err != nil {
				continue
			}
			var artifact Artifact
			if err := yaml.Unmarshal(data, &artifact); err != nil {
				continue
			}
			if artifact.DateSeen == "" {
				continue
			}
			seen, err := time.Parse(artifactDateLayout, artifact.DateSeen)
			if err != nil {
				continue
			}
			if int(today.Sub(seen).Hours()/24) > days {
				if err := os.Remove(path); err != nil {
					s.logger.Warn("could not remove artifact", "path", path, "error", err)
					continue
				}
				removed++
			}
		}
	}
	return removed, nil
}

// artifactPath derives the content address for an item. Two items sharing
// the same URL hash bytes and the same sanitized 50-char title prefix under
// one source collide to the same file: a deliberately lossy scheme where
// collisions count as duplicates.
func (s *SeenItems) artifactPath(item domain.Item) string {
	urlHash := fmt.Sprintf("%x", md5.Sum([]byte(item.URL)))[:8]
	filename := fmt.Sprintf("%s_%s%s", safeTitlePrefix(item.Title), urlHash, artifactExt)
	return filepath.Join(s.root, item.Source, filename)
}

func safeTitlePrefix(title string) string {
	title = unsafeCharsExpr.ReplaceAllString(title, "")
	title = separatorExpr.ReplaceAllString(title, "-")
	title = strings.Trim(title, "-")
	return truncateRunes(title, titlePrefixLen)
}

// truncateRunes caps a string at limit runes without splitting a multi-byte
// character.
func truncateRunes(s string, limit int) string {
	runes := []rune(s)
	if len(runes) <= limit {
		return s
	}
	return string(runes[:limit])
}
