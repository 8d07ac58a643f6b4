package source

import "strings"

// MatchesKeywords reports whether any keyword occurs in the title or content,
// case-insensitive. An empty keyword list matches everything.
func MatchesKeywords(title, content string, keywords []string) bool {
	if len(keywords) == 0 {
		return true
	}
	text := strings.ToLower(title + " " + content)
	for _, keyword := range keywords {
		if keyword == "" {
			continue
		}
		if strings.Contains(text, strings.ToLower(keyword)) {
			return true
		}
	}
	return false
}
