package llm

// PromptSet holds the system/user template pairs for every gateway
// operation. User templates use {placeholder} markers substituted from item
// or entry fields; empty fields fall back to the defaults below so a partial
// config override keeps the rest working.
type PromptSet struct {
	RelevanceSystem     string
	RelevanceUser       string
	SummarySystem       string
	SummaryUser         string
	HighlightsSystem    string
	HighlightsUser      string
	DigestSummarySystem string
	DigestSummaryUser   string
}

const (
	defaultRelevanceSystem = "You are an expert research analyst. Analyze the provided content and determine its relevance to the given interests. Respond with a JSON object containing: is_relevant (boolean), score (float 0-1), and reason (string)."

	defaultRelevanceUser = `Analyze the following item for relevance:

INTERESTS:
{interests}

ITEM:
Title: {title}
Type: {type}
URL: {url}
Source: {source}

Content (truncated):
{content}

Determine if this item is relevant to the interests described above.

Respond with JSON:
{
    "is_relevant": true/false,
    "score": 0.0-1.0,
    "reason": "Brief explanation"
}`

	defaultSummarySystem = "You are a technical writer. Write concise, informative summaries."

	defaultSummaryUser = `Content to summarize:

Title: {title}
URL: {url}
Type: {type}

Content:
{content}

Generate a brief, informative summary (2-4 sentences) focusing on key technical contributions and practical applications.`

	defaultHighlightsSystem = "You are a research analyst. Extract key points concisely."

	defaultHighlightsUser = `Content to analyze:

Title: {title}
Type: {type}

Content:
{content}

Extract 3-5 key highlights as bullet points. Focus on:
- Main technical innovations
- Practical applications
- Performance improvements
- Novel approaches

Respond with a JSON array of strings.`

	defaultDigestSummarySystem = "You are an editor of a short research newsletter. Write a punchy, scannable update."

	defaultDigestSummaryUser = `Below is today's digest data as JSON (title, url, type, summary, relevance score per entry):

{entries}

Write a short cross-item summary suitable for a chat notification: one or two opening sentences on the overall picture, then one line per notable entry with its link.`
)

func (p PromptSet) withDefaults() PromptSet {
	def := func(value, fallback string) string {
		if value == "" {
			return fallback
		}
		return value
	}
	return PromptSet{
		RelevanceSystem:     def(p.RelevanceSystem, defaultRelevanceSystem),
		RelevanceUser:       def(p.RelevanceUser, defaultRelevanceUser),
		SummarySystem:       def(p.SummarySystem, defaultSummarySystem),
		SummaryUser:         def(p.SummaryUser, defaultSummaryUser),
		HighlightsSystem:    def(p.HighlightsSystem, defaultHighlightsSystem),
		HighlightsUser:      def(p.HighlightsUser, defaultHighlightsUser),
		DigestSummarySystem: def(p.DigestSummarySystem, defaultDigestSummarySystem),
		DigestSummaryUser:   def(p.DigestSummaryUser, defaultDigestSummaryUser),
	}
}
